package install

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"

	"github.com/distantorigin/modpack-installer/internal/download"
	"github.com/distantorigin/modpack-installer/internal/events"
	"github.com/distantorigin/modpack-installer/internal/manifest"
	"github.com/distantorigin/modpack-installer/internal/paths"
	"github.com/distantorigin/modpack-installer/internal/registry"
	"github.com/distantorigin/modpack-installer/internal/state"
	"github.com/distantorigin/modpack-installer/internal/version"
)

// Fetcher downloads a URL into scratch space
type Fetcher interface {
	Fetch(ctx context.Context, url, scratchDir string, progress download.ProgressFunc) (*download.Outcome, error)
}

// ProfileRegistrar adds the pack's profile to the game launcher
type ProfileRegistrar interface {
	Register(profile manifest.Profile, gameDir string) error
}

// LoaderLauncher starts the downloaded loader installer
type LoaderLauncher interface {
	Launch(ctx context.Context, installDir string) error
}

// Options configure an Installer
type Options struct {
	Mode             state.Mode
	Layout           paths.Layout
	InstallerVersion version.Version

	Fetcher  Fetcher
	Resolver registry.Resolver
	Profiles ProfileRegistrar
	Launcher LoaderLauncher
	Events   events.Sink

	// Migrations defaults to DefaultMigrations
	Migrations []Migration
	// Side defaults to manifest.SideClient
	Side manifest.Side
}

// Installer runs one install or update of the pack described by the manifest
type Installer struct {
	mode             state.Mode
	layout           paths.Layout
	installerVersion version.Version
	manifest         *manifest.Manifest

	fetcher    Fetcher
	resolver   registry.Resolver
	profiles   ProfileRegistrar
	launcher   LoaderLauncher
	em         *events.Emitter
	migrations []Migration
	side       manifest.Side

	progress *progress
}

// New loads and validates the manifest and prepares a run
func New(opts Options) (*Installer, error) {
	if opts.Mode != state.ModeInstall && opts.Mode != state.ModeUpdate {
		return nil, fmt.Errorf("unknown installer mode %q", opts.Mode)
	}

	m, err := loadManifest(opts.Layout.ManifestPath)
	if err != nil {
		return nil, err
	}

	in := &Installer{
		mode:             opts.Mode,
		layout:           opts.Layout,
		installerVersion: opts.InstallerVersion,
		manifest:         m,
		fetcher:          opts.Fetcher,
		resolver:         opts.Resolver,
		profiles:         opts.Profiles,
		launcher:         opts.Launcher,
		em:               events.NewEmitter(opts.Events),
		migrations:       opts.Migrations,
		side:             opts.Side,
	}
	if in.fetcher == nil {
		in.fetcher = download.NewFetcher(0)
	}
	if in.resolver == nil {
		in.resolver = registry.New(registry.Options{})
	}
	if in.migrations == nil {
		in.migrations = DefaultMigrations
	}
	if in.side == "" {
		in.side = manifest.SideClient
	}
	in.progress = newProgress(in.em, 0)
	return in, nil
}

func loadManifest(path string) (*manifest.Manifest, error) {
	m, err := manifest.Load(path)
	if errors.Is(err, manifest.ErrNotFound) {
		return nil, conflict(ErrNoManifest)
	}
	return m, err
}

// CanInstall reports whether an install may start: the manifest must exist and
// no other mode may be in progress. A recorded install in progress is a resume.
func CanInstall(manifestPath, statePath string) error {
	if _, err := os.Stat(manifestPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return conflict(ErrNoManifest)
		}
		return fmt.Errorf("failed to check manifest: %w", err)
	}

	st, err := state.Load(statePath)
	if errors.Is(err, state.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return checkInstallable(st)
}

func checkInstallable(st *state.State) error {
	if mode := st.ProcessMode(); mode != "" && mode != state.ModeInstall {
		return &ConflictError{Mode: mode, Err: ErrModeInProgress}
	}
	return nil
}

// CanUpdate reports whether an update may start: an installation must exist and
// either an update is in progress or the manifest carries a newer pack version.
func CanUpdate(manifestPath, statePath string) error {
	m, err := loadManifest(manifestPath)
	if err != nil {
		return err
	}
	_, err = updatableState(m, statePath)
	return err
}

func updatableState(m *manifest.Manifest, statePath string) (*state.State, error) {
	st, err := state.Load(statePath)
	if errors.Is(err, state.ErrNotFound) {
		return nil, conflict(ErrNoState)
	}
	if err != nil {
		return nil, err
	}

	switch mode := st.ProcessMode(); mode {
	case "":
		if st.PackVersion().Less(m.PackVersion) {
			return st, nil
		}
		return nil, conflict(ErrNoUpdateNeeded)
	case state.ModeUpdate:
		return st, nil
	default:
		return nil, &ConflictError{Mode: mode, Err: ErrModeInProgress}
	}
}

// Run executes the configured mode to completion
func (in *Installer) Run(ctx context.Context) error {
	in.em.UpdateProgress(0)
	switch in.mode {
	case state.ModeInstall:
		return in.runInstall(ctx)
	default:
		return in.runUpdate(ctx)
	}
}

func (in *Installer) save(st *state.State) error {
	return st.Save(in.layout.StatePath())
}

func (in *Installer) clearScratch() error {
	scratch := in.layout.ScratchDir()
	if err := os.RemoveAll(scratch); err != nil {
		return fmt.Errorf("failed to wipe temp directory %s: %w", scratch, err)
	}
	if err := os.MkdirAll(scratch, 0755); err != nil {
		return fmt.Errorf("failed to create temp directory %s: %w", scratch, err)
	}
	return nil
}

// fetchInto downloads url, verifies it against expectedHash and places or extracts
// it into finalDir. It returns the file name the download was stored under.
func (in *Installer) fetchInto(ctx context.Context, name, url, expectedHash, finalDir string, decompress bool) (string, error) {
	log.Info("downloading", "name", name, "url", url)
	in.em.ChangeDetail(name)

	outcome, err := in.fetcher.Fetch(ctx, url, in.layout.ScratchDir(), in.progress.partial)
	if err != nil {
		return "", fmt.Errorf("failed to download %s: %w", name, err)
	}
	if err := outcome.Verify(expectedHash); err != nil {
		return "", err
	}

	if decompress {
		log.Info("extracting", "name", name, "target", finalDir)
		if err := outcome.Unpack(finalDir); err != nil {
			return "", err
		}
	} else if _, err := outcome.Place(finalDir); err != nil {
		return "", err
	}
	return outcome.FileName, nil
}
