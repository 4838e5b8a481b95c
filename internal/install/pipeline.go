package install

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/distantorigin/modpack-installer/internal/events"
	"github.com/distantorigin/modpack-installer/internal/state"
)

func (in *Installer) runInstall(ctx context.Context) error {
	log.Info("starting installation", "pack", in.manifest.Profile.Name, "version", in.manifest.PackVersion)
	if err := in.clearScratch(); err != nil {
		return err
	}

	st, err := state.Load(in.layout.StatePath())
	switch {
	case errors.Is(err, state.ErrNotFound):
		st = state.New(in.installerVersion, in.manifest.PackVersion)
	case err != nil:
		return err
	default:
		if err := checkInstallable(st); err != nil {
			return err
		}
		if st.ProcessMode() == state.ModeInstall {
			log.Info("resuming previous installation")
		}
	}
	st.SetProcessMode(state.ModeInstall)
	if err := in.save(st); err != nil {
		return err
	}

	if st.ResumePoint() == state.ResumeTail {
		log.Info("all downloads are complete, retrying launcher integration")
	} else {
		total := 1 + len(in.manifest.ModsFor(in.side)) + len(in.manifest.ResourcesFor(in.side))
		in.progress = newProgress(in.em, total)

		if err := in.downloadLoader(ctx, st); err != nil {
			return err
		}
		in.em.ChangePhase(events.PhaseDownloadMods)
		if err := in.downloadMods(ctx, st, false); err != nil {
			return err
		}
		in.em.ChangePhase(events.PhaseDownloadResources)
		if err := in.downloadResources(ctx, st, false); err != nil {
			return err
		}

		st.SetResumePoint(state.ResumeTail)
		if err := in.save(st); err != nil {
			return err
		}
	}
	in.progress.finish()

	in.runTail(ctx)

	st.SetInstallerVersion(in.installerVersion)
	if err := st.Finalize(in.layout.StatePath()); err != nil {
		return err
	}
	log.Info("installation completed")
	return nil
}

func (in *Installer) runUpdate(ctx context.Context) error {
	log.Info("starting update", "pack", in.manifest.Profile.Name, "version", in.manifest.PackVersion)
	if err := in.clearScratch(); err != nil {
		return err
	}

	st, err := updatableState(in.manifest, in.layout.StatePath())
	if err != nil {
		return err
	}
	st.SetProcessMode(state.ModeUpdate)
	if err := in.save(st); err != nil {
		return err
	}

	migrations := Pending(in.migrations, st.PackVersion(), in.manifest.PackVersion)
	total := st.ModCount() + len(in.manifest.ModsFor(in.side)) + len(in.manifest.ResourcesFor(in.side)) + len(migrations)
	in.progress = newProgress(in.em, total)

	in.em.ChangePhase(events.PhaseRemoveMods)
	if err := in.removeObsoleteMods(st); err != nil {
		return err
	}
	in.em.ChangePhase(events.PhaseDownloadMods)
	if err := in.downloadMods(ctx, st, true); err != nil {
		return err
	}
	in.em.ChangePhase(events.PhaseDownloadResources)
	if err := in.downloadResources(ctx, st, true); err != nil {
		return err
	}
	in.em.ChangePhase(events.PhaseRunMigrations)
	for _, m := range migrations {
		log.Info("running migration", "threshold", m.Threshold, "action", m.Action.Describe())
		if err := m.Action.apply(ctx, in); err != nil {
			return fmt.Errorf("migration for %s failed: %w", m.Threshold, err)
		}
		in.progress.step()
	}
	in.progress.finish()

	st.SetInstallerVersion(in.installerVersion)
	st.SetPackVersion(in.manifest.PackVersion)
	if err := st.Finalize(in.layout.StatePath()); err != nil {
		return err
	}
	log.Info("update completed")
	return nil
}

func (in *Installer) downloadLoader(ctx context.Context, st *state.State) error {
	in.em.ChangePhase(events.PhaseDownloadModLoader)
	spec := in.manifest.ModLoader

	if rec, ok := st.ModLoader(); ok {
		if rec.Matches(spec) {
			log.Info("mod loader is already downloaded, skipping", "name", spec.Name)
		} else {
			log.Error("mod loader is downloaded, but uploaded file was changed; leaving it", "name", spec.Name, "file", rec.FileName)
		}
		in.progress.step()
		return nil
	}

	fileName, err := in.fetchInto(ctx, spec.Name, spec.URL, spec.Hash, in.layout.InstallDir, false)
	if err != nil {
		return err
	}
	st.SetModLoader(state.LoaderRecord{FileName: fileName, URL: spec.URL, Hash: spec.Hash})
	if err := in.save(st); err != nil {
		return err
	}
	in.progress.step()
	return nil
}

// downloadMods fetches every applicable mod that has no matching record. With
// refresh set, a record whose hash no longer matches is downloaded again and
// replaced; otherwise it is left alone.
func (in *Installer) downloadMods(ctx context.Context, st *state.State, refresh bool) error {
	modsDir := in.layout.ModsDir()
	for _, entry := range in.manifest.ModsFor(in.side) {
		rec, found := st.Mod(entry)
		if found {
			if rec.Equals(entry, false) {
				log.Info("mod is already downloaded, skipping", "name", entry.Name)
				in.progress.step()
				continue
			}
			if !refresh {
				log.Warn("mod is downloaded, but uploaded file was changed; leaving it", "name", entry.Name, "file", rec.FileName)
				in.progress.step()
				continue
			}
			log.Warn("mod upload was changed, downloading again", "name", entry.Name)
		}

		url, err := in.resolver.Resolve(ctx, entry.Source)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", entry.Name, err)
		}
		fileName, err := in.fetchInto(ctx, entry.Name, url, entry.Hash, modsDir, false)
		if err != nil {
			return err
		}
		st.AddMod(state.ModRecord{FileName: fileName, Source: entry.Source, Hash: entry.Hash})
		if err := in.save(st); err != nil {
			return err
		}
		if found && rec.FileName != fileName {
			removeReplaced(filepath.Join(modsDir, rec.FileName))
		}
		in.progress.step()
	}
	return nil
}

func (in *Installer) downloadResources(ctx context.Context, st *state.State, refresh bool) error {
	for _, entry := range in.manifest.ResourcesFor(in.side) {
		rec, found := st.Resource(entry)
		if found {
			if rec.Equals(entry) {
				log.Info("resource is already downloaded, skipping", "name", entry.Name)
				in.progress.step()
				continue
			}
			if !refresh {
				log.Warn("resource is downloaded, but uploaded file was changed; leaving it", "name", entry.Name, "file", rec.FileName)
				in.progress.step()
				continue
			}
			log.Warn("resource upload was changed, downloading again", "name", entry.Name)
		}

		url, err := in.resolver.Resolve(ctx, entry.Source)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", entry.Name, err)
		}
		targetDir := in.layout.ResourceDir(entry.TargetDir)
		fileName, err := in.fetchInto(ctx, entry.Name, url, entry.Hash, targetDir, entry.Decompress)
		if err != nil {
			return err
		}
		st.AddResource(state.ResourceRecord{
			FileName:   fileName,
			Source:     entry.Source,
			Hash:       entry.Hash,
			TargetDir:  entry.TargetDir,
			Decompress: entry.Decompress,
		})
		if err := in.save(st); err != nil {
			return err
		}
		// extracted archives are overwritten in place, only plain files can be left behind
		if found && !rec.Decompress && rec.FileName != fileName {
			removeReplaced(filepath.Join(targetDir, rec.FileName))
		}
		in.progress.step()
	}
	return nil
}

func removeReplaced(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("failed to remove replaced file", "path", path, "err", err)
	}
}

// removeObsoleteMods deletes every recorded mod the manifest no longer declares.
// Identity is the source alone, a changed hash is not obsolete.
func (in *Installer) removeObsoleteMods(st *state.State) error {
	modsDir := in.layout.ModsDir()
	for _, rec := range st.Mods() {
		if !in.manifest.HasMod(rec.Source) {
			path := filepath.Join(modsDir, rec.FileName)
			switch err := os.Remove(path); {
			case err == nil:
				log.Info("removed mod", "file", rec.FileName)
			case errors.Is(err, os.ErrNotExist):
				log.Warn("mod file to remove does not exist", "path", path)
			default:
				return fmt.Errorf("failed to remove mod file %s: %w", path, err)
			}
			st.RemoveMod(rec.Source)
			if err := in.save(st); err != nil {
				return err
			}
		}
		in.progress.step()
	}
	return nil
}

// runTail performs the launcher integration. Failures become warning alerts.
func (in *Installer) runTail(ctx context.Context) {
	in.em.ChangePhase(events.PhaseAddProfile)
	if in.profiles == nil {
		log.Debug("no launcher profile registrar configured")
	} else if err := in.profiles.Register(in.manifest.Profile, in.layout.InstallDir); err != nil {
		log.Warn("failed to add launcher profile", "err", err)
		in.em.AddAlert(events.LevelWarning, events.AlertFailedAddProfile)
	}

	if !in.manifest.ModLoader.AutoOpen {
		return
	}
	in.em.ChangePhase(events.PhaseLaunchModLoader)
	if in.launcher == nil {
		log.Debug("no loader launcher configured")
		return
	}
	if err := in.launcher.Launch(ctx, in.layout.InstallDir); err != nil {
		log.Warn("failed to launch mod loader", "err", err)
		in.em.AddAlert(events.LevelWarning, events.AlertFailedLaunchModLoader)
		return
	}
	in.em.AddAlert(events.LevelInfo, events.AlertLaunchModLoader)
}
