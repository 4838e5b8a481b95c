package audio

import (
	"bytes"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/gopxl/beep/speaker"
	"github.com/gopxl/beep/wav"
)

var (
	speakerOnce   sync.Once
	speakerReady  bool
	speakerFormat beep.Format
	quiet         bool
)

// Init configures the audio package
func Init(quietMode bool) {
	quiet = quietMode
}

func ensureSpeakerInitialized(format beep.Format) bool {
	speakerOnce.Do(func() {
		log.Debug("setting up audio")
		if err := speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10)); err != nil {
			log.Warn("audio output is unavailable", "err", err)
			return
		}
		speakerFormat = format
		speakerReady = true
	})
	return speakerReady
}

// DecodeSound decodes WAV sound data into a streamer
func DecodeSound(soundData []byte) (beep.StreamSeekCloser, beep.Format, error) {
	if len(soundData) == 0 {
		log.Debug("couldn't play sound (no data)")
		return nil, beep.Format{}, nil
	}

	streamer, format, err := wav.Decode(bytes.NewReader(soundData))
	if err != nil {
		log.Debug("sound file couldn't be decoded", "err", err)
		return nil, beep.Format{}, err
	}

	return streamer, format, nil
}

// prepare decodes soundData and resamples it to the speaker's format
func prepare(soundData []byte) (beep.Streamer, func(), bool) {
	if quiet {
		return nil, nil, false
	}

	streamer, format, err := DecodeSound(soundData)
	if err != nil || streamer == nil {
		return nil, nil, false
	}
	if !ensureSpeakerInitialized(format) {
		streamer.Close()
		return nil, nil, false
	}

	var s beep.Streamer = streamer
	if format.SampleRate != speakerFormat.SampleRate {
		s = beep.Resample(4, format.SampleRate, speakerFormat.SampleRate, streamer)
	}
	return s, func() { streamer.Close() }, true
}

// Play plays a sound synchronously (blocks until complete)
func Play(soundData []byte) {
	s, closeFn, ok := prepare(soundData)
	if !ok {
		return
	}
	defer closeFn()

	done := make(chan struct{})
	speaker.Play(beep.Seq(s, beep.Callback(func() {
		close(done)
	})))
	<-done
}

// PlayAsync plays a sound in the background at the specified volume (dB)
func PlayAsync(soundData []byte, volumeDB float64) {
	s, closeFn, ok := prepare(soundData)
	if !ok {
		return
	}

	volume := &effects.Volume{
		Streamer: s,
		Base:     2,
		Volume:   volumeDB,
	}
	speaker.Play(beep.Seq(volume, beep.Callback(closeFn)))
}

// StopAll stops all currently playing sounds
func StopAll() {
	if !speakerReady {
		return
	}
	speaker.Clear()
}
