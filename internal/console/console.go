package console

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/distantorigin/modpack-installer/internal/events"
)

var quiet bool

// Init configures the console package
func Init(quietMode bool) {
	quiet = quietMode
}

// WaitForKey prompts the user to press Enter. Does nothing in non-interactive mode.
func WaitForKey(prompt string, nonInteractive bool) {
	if nonInteractive {
		return
	}
	fmt.Print(prompt)
	_, _ = bufio.NewReader(os.Stdin).ReadBytes('\n')
}

// Log prints a message if not in quiet mode
func Log(format string, args ...interface{}) {
	if !quiet {
		fmt.Printf(format+"\n", args...)
	}
}

var phaseTitles = map[events.Phase]string{
	events.PhaseDownloadModLoader: "Downloading mod loader",
	events.PhaseRemoveMods:        "Removing old mods",
	events.PhaseDownloadMods:      "Downloading mods",
	events.PhaseDownloadResources: "Downloading resources",
	events.PhaseRunMigrations:     "Updating settings",
	events.PhaseAddProfile:        "Adding launcher profile",
	events.PhaseLaunchModLoader:   "Launching mod loader installer",
}

var alertMessages = map[string]string{
	events.AlertFailedAddProfile:      "Could not add the launcher profile. Add it by hand in the game launcher.",
	events.AlertFailedLaunchModLoader: "Could not start the mod loader installer. Run the .jar in the install folder yourself.",
	events.AlertLaunchModLoader:       "The mod loader installer has been started. Finish it to complete the setup.",
}

// Renderer is an event sink that prints a human readable run log
type Renderer struct {
	mu       sync.Mutex
	w        io.Writer
	started  time.Time
	lastStep int
	now      func() time.Time
}

// NewRenderer writes to w
func NewRenderer(w io.Writer) *Renderer {
	return &Renderer{w: w, lastStep: -1, now: time.Now}
}

func (r *Renderer) Emit(e events.Event) error {
	if quiet {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch e.Type {
	case events.TypeChangePhase:
		title, ok := phaseTitles[e.Phase]
		if !ok {
			title = string(e.Phase)
		}
		_, err := fmt.Fprintf(r.w, "\n%s...\n", title)
		return err
	case events.TypeChangeDetail:
		_, err := fmt.Fprintf(r.w, "  %s\n", e.Detail)
		return err
	case events.TypeUpdateProgress:
		return r.progress(e.Progress)
	case events.TypeAddAlert:
		msg, ok := alertMessages[e.TranslationKey]
		if !ok {
			msg = e.TranslationKey
		}
		prefix := "Note"
		if e.Level == events.LevelWarning {
			prefix = "Warning"
		}
		_, err := fmt.Fprintf(r.w, "%s: %s\n", prefix, msg)
		return err
	}
	return nil
}

// progress prints every tenth and the final value
func (r *Renderer) progress(v float64) error {
	if r.started.IsZero() {
		r.started = r.now()
	}
	step := int(v * 10)
	if step <= r.lastStep {
		return nil
	}
	r.lastStep = step

	if v >= 1 {
		took := strings.TrimSpace(humanize.RelTime(r.started, r.now(), "", ""))
		_, err := fmt.Fprintf(r.w, "[100%%] downloads finished (%s)\n", took)
		return err
	}
	_, err := fmt.Fprintf(r.w, "[%3d%%]\n", step*10)
	return err
}
