// Package app holds the long-lived installer context behind the shell commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/skratchdot/open-golang/open"

	"github.com/distantorigin/modpack-installer/internal/config"
	"github.com/distantorigin/modpack-installer/internal/download"
	"github.com/distantorigin/modpack-installer/internal/events"
	"github.com/distantorigin/modpack-installer/internal/install"
	"github.com/distantorigin/modpack-installer/internal/launcher"
	"github.com/distantorigin/modpack-installer/internal/paths"
	"github.com/distantorigin/modpack-installer/internal/process"
	"github.com/distantorigin/modpack-installer/internal/registry"
	"github.com/distantorigin/modpack-installer/internal/state"
	"github.com/distantorigin/modpack-installer/internal/version"
)

var (
	// ErrAlreadyRunning is returned when a run is requested while another is active
	ErrAlreadyRunning = errors.New("installer is already running")
	// ErrUpToDate is returned by AutoMode for a finished installation with nothing newer to apply
	ErrUpToDate = errors.New("the modpack is installed and up to date")
)

// Status tells the shell which modes can be offered
type Status struct {
	CanInstall bool `json:"canInstall"`
	CanUpdate  bool `json:"canUpdate"`
}

// Selection is the answer to a mode selection
type Selection struct {
	IsAccept bool   `json:"isAccept"`
	Error    string `json:"error,omitempty"`
}

// Options wire an App. Zero collaborators fall back to the installer defaults.
type Options struct {
	Layout           paths.Layout
	InstallerVersion version.Version
	Events           events.Sink

	Fetcher  install.Fetcher
	Resolver registry.Resolver
	Profiles install.ProfileRegistrar
	Launcher install.LoaderLauncher
}

// App owns the install root for the lifetime of the process and allows one run at a time
type App struct {
	opts    Options
	running sync.Mutex
	open    func(string) error
}

func New(opts Options) *App {
	return &App{opts: opts, open: open.Run}
}

// FromConfig builds an App for the layout and collaborators described by cfg
func FromConfig(cfg *config.Config, layout paths.Layout, installerVersion version.Version, sink events.Sink) *App {
	return New(Options{
		Layout:           layout,
		InstallerVersion: installerVersion,
		Events:           sink,
		Fetcher:          download.NewFetcher(cfg.Download.Timeout),
		Resolver: registry.New(registry.Options{
			CurseForgeBase: cfg.Registry.CurseForge.BaseURL,
			APIKey:         cfg.Registry.CurseForge.APIKey,
		}),
		Profiles: launcher.NewRegistrar(cfg.Launcher.ProfilesPath),
		Launcher: process.NewLoaderLauncher(cfg.Launcher.RuntimeDirs...),
	})
}

// Layout returns the install layout this App works on
func (a *App) Layout() paths.Layout { return a.opts.Layout }

// Status reports which modes may start right now
func (a *App) Status() Status {
	l := a.opts.Layout
	canInstall := install.CanInstall(l.ManifestPath, l.StatePath())
	if canInstall != nil {
		log.Warn("disabled install mode", "err", canInstall)
	}
	canUpdate := install.CanUpdate(l.ManifestPath, l.StatePath())
	if canUpdate != nil {
		log.Warn("disabled update mode", "err", canUpdate)
	}
	return Status{CanInstall: canInstall == nil, CanUpdate: canUpdate == nil}
}

// AutoMode picks the mode to run when the user made no choice: a pending or
// interrupted update, otherwise a fresh or interrupted install.
func (a *App) AutoMode() (state.Mode, error) {
	l := a.opts.Layout
	err := install.CanUpdate(l.ManifestPath, l.StatePath())
	switch {
	case err == nil:
		return state.ModeUpdate, nil
	case errors.Is(err, install.ErrNoUpdateNeeded):
		log.Info("installation is up to date", "manifest", l.ManifestPath)
		return "", ErrUpToDate
	default:
		return state.ModeInstall, nil
	}
}

// ParseMode maps a shell argument to a mode
func ParseMode(s string) (state.Mode, error) {
	switch m := state.Mode(s); m {
	case state.ModeInstall, state.ModeUpdate:
		return m, nil
	default:
		return "", fmt.Errorf("unknown mode %q (expected %q or %q)", s, state.ModeInstall, state.ModeUpdate)
	}
}

// SelectMode checks whether mode may start and explains why not
func (a *App) SelectMode(mode state.Mode) Selection {
	log.Info("selected mode", "mode", mode)
	l := a.opts.Layout

	var err error
	switch mode {
	case state.ModeInstall:
		err = install.CanInstall(l.ManifestPath, l.StatePath())
	case state.ModeUpdate:
		err = install.CanUpdate(l.ManifestPath, l.StatePath())
	default:
		_, err = ParseMode(string(mode))
	}
	if err != nil {
		log.Error("failed to start mode", "mode", mode, "err", err)
		return Selection{Error: err.Error()}
	}
	return Selection{IsAccept: true}
}

// Run executes mode. Only one run may be active per App.
func (a *App) Run(ctx context.Context, mode state.Mode) error {
	if !a.running.TryLock() {
		log.Warn("installer is already running, ignoring duplicate call")
		return ErrAlreadyRunning
	}
	defer a.running.Unlock()

	in, err := install.New(install.Options{
		Mode:             mode,
		Layout:           a.opts.Layout,
		InstallerVersion: a.opts.InstallerVersion,
		Fetcher:          a.opts.Fetcher,
		Resolver:         a.opts.Resolver,
		Profiles:         a.opts.Profiles,
		Launcher:         a.opts.Launcher,
		Events:           a.opts.Events,
	})
	if err != nil {
		log.Error("failed to initialize installer", "err", err)
		return err
	}
	if err := in.Run(ctx); err != nil {
		log.Error("run failed", "mode", mode, "err", err)
		return err
	}
	return nil
}

// OpenLogFolder shows the log directory in the system file browser
func (a *App) OpenLogFolder() error {
	dir := a.opts.Layout.LogDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	if err := a.open(dir); err != nil {
		log.Error("failed to open log folder", "err", err)
		return fmt.Errorf("failed to open log folder: %w", err)
	}
	return nil
}
