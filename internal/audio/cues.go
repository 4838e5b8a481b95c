package audio

import (
	_ "embed"

	"github.com/distantorigin/modpack-installer/internal/events"
)

var (
	//go:embed sounds/start.wav
	StartSound []byte
	//go:embed sounds/downloading.wav
	DownloadingSound []byte
	//go:embed sounds/installing.wav
	InstallingSound []byte
	//go:embed sounds/success.wav
	SuccessSound []byte
	//go:embed sounds/error.wav
	ErrorSound []byte
	//go:embed sounds/select.wav
	SelectSound []byte
)

// Cues is an event sink that plays a short sound on phase changes, warnings and completion
type Cues struct {
	play func([]byte)
}

// NewCues returns a sink that plays cues in the background
func NewCues() *Cues {
	return &Cues{play: func(data []byte) { PlayAsync(data, 0) }}
}

func (c *Cues) Emit(e events.Event) error {
	if sound := cueFor(e); sound != nil {
		c.play(sound)
	}
	return nil
}

func cueFor(e events.Event) []byte {
	switch e.Type {
	case events.TypeChangePhase:
		switch e.Phase {
		case events.PhaseDownloadModLoader, events.PhaseDownloadMods, events.PhaseDownloadResources:
			return DownloadingSound
		case events.PhaseLaunchModLoader:
			return StartSound
		default:
			return InstallingSound
		}
	case events.TypeUpdateProgress:
		if e.Progress >= 1 {
			return SuccessSound
		}
	case events.TypeAddAlert:
		if e.Level == events.LevelWarning {
			return ErrorSound
		}
	}
	return nil
}
