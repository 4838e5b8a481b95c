package install

import (
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/distantorigin/modpack-installer/internal/download"
	"github.com/distantorigin/modpack-installer/internal/events"
	"github.com/distantorigin/modpack-installer/internal/manifest"
	"github.com/distantorigin/modpack-installer/internal/state"
	"github.com/distantorigin/modpack-installer/internal/version"
	testutil "github.com/distantorigin/modpack-installer/testing"
)

// TestInstall_FreshThenIdempotent installs a pack and then runs the install again
func TestInstall_FreshThenIdempotent(t *testing.T) {
	env := setupTestEnvironment(t)

	m := env.baseManifest("1.0.0")
	m.Mods = []manifest.ModEntry{
		env.serveMod("alpha", "alpha bytes", manifest.SideBoth),
		env.serveRegistryMod("Beta", 100, 200, "beta-1.0.jar", "beta bytes"),
		env.serveMod("server-only", "server bytes", manifest.SideServer),
	}
	shadersURL, shadersHash := env.server.SetFile("/res/shaders.zip", testutil.ZipBytes(t, map[string]string{"pack/shader.txt": "glsl"}))
	iconURL, iconHash := env.server.SetFile("/res/icon.png", []byte("png"))
	m.Resources = []manifest.ResourceEntry{
		{Name: "Shaders", Source: manifest.Direct(shadersURL), Hash: shadersHash, TargetDir: "shaderpacks", Decompress: true, Side: manifest.SideClient},
		{Name: "Icon", Source: manifest.Direct(iconURL), Hash: strings.ToUpper(iconHash), TargetDir: "resourcepacks/icons", Side: manifest.SideBoth},
	}
	env.writeManifest(m)

	if err := env.run(state.ModeInstall, nil); err != nil {
		t.Fatalf("Run(install) error = %v", err)
	}

	testutil.AssertFileContent(t, env.path("neoforge-installer.jar"), "loader")
	testutil.AssertFileContent(t, env.path("mods", "alpha.jar"), "alpha bytes")
	testutil.AssertFileContent(t, env.path("mods", "beta-1.0.jar"), "beta bytes")
	testutil.AssertFileNotExists(t, env.path("mods", "server-only.jar"))
	testutil.AssertFileContent(t, env.path("shaderpacks", "pack", "shader.txt"), "glsl")
	testutil.AssertFileNotExists(t, env.path("shaderpacks", "shaders.zip"))
	testutil.AssertFileContent(t, env.path("resourcepacks", "icons", "icon.png"), "png")

	st := env.loadState()
	if st.ProcessMode() != "" || st.ResumePoint() != "" {
		t.Errorf("markers after install = %q/%q, want cleared", st.ProcessMode(), st.ResumePoint())
	}
	if got := fileNames(st.Mods()); !reflect.DeepEqual(got, []string{"alpha.jar", "beta-1.0.jar"}) {
		t.Errorf("state mods = %v", got)
	}
	if len(st.Resources()) != 2 {
		t.Errorf("state resources = %+v", st.Resources())
	}
	if st.PackVersion() != version.MustParse("1.0.0") || st.InstallerVersion() != testInstallerVersion {
		t.Errorf("versions = %s/%s", st.PackVersion(), st.InstallerVersion())
	}

	wantPhases := []events.Phase{
		events.PhaseDownloadModLoader,
		events.PhaseDownloadMods,
		events.PhaseDownloadResources,
		events.PhaseAddProfile,
		events.PhaseLaunchModLoader,
	}
	if got := env.events.Phases(); !reflect.DeepEqual(got, wantPhases) {
		t.Errorf("phases = %v, want %v", got, wantPhases)
	}
	env.assertProgressMonotonic()
	if env.profiles.calls != 1 || env.profiles.profile.Name != "Test Pack" || env.profiles.gameDir != env.layout.InstallDir {
		t.Errorf("profile registration = %+v", env.profiles)
	}
	if env.launcher.calls != 1 {
		t.Errorf("launcher calls = %d, want 1", env.launcher.calls)
	}
	if alerts := env.events.Alerts(); len(alerts) != 1 || alerts[0].TranslationKey != events.AlertLaunchModLoader {
		t.Errorf("alerts = %v", alerts)
	}

	// Second run: nothing to download, same terminal state
	env.server.ClearRequests()
	if err := env.run(state.ModeInstall, nil); err != nil {
		t.Fatalf("second Run(install) error = %v", err)
	}
	if n := env.server.TotalRequests(); n != 0 {
		t.Errorf("second install made %d requests, want 0", n)
	}
	again := env.loadState()
	if !reflect.DeepEqual(again.Mods(), st.Mods()) || !reflect.DeepEqual(again.Resources(), st.Resources()) {
		t.Errorf("state changed on idempotent run:\n got %+v\nwant %+v", again.Mods(), st.Mods())
	}
}

// TestInstall_ResumeAfterInterruption fails on the third mod and resumes
func TestInstall_ResumeAfterInterruption(t *testing.T) {
	env := setupTestEnvironment(t)

	m := env.baseManifest("1.0.0")
	a := env.serveMod("a", "aaa", manifest.SideBoth)
	b := env.serveMod("b", "bbb", manifest.SideClient)
	c := env.serveMod("c", "ccc", manifest.SideBoth)
	m.Mods = []manifest.ModEntry{a, b, c}
	env.writeManifest(m)
	env.server.Remove("/mods/c.jar")

	err := env.run(state.ModeInstall, nil)
	var fetchErr *download.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Run(install) error = %v, want *download.FetchError", err)
	}

	partial := env.loadState()
	if partial.ProcessMode() != state.ModeInstall {
		t.Errorf("process mode after failure = %q, want install", partial.ProcessMode())
	}
	if got := fileNames(partial.Mods()); !reflect.DeepEqual(got, []string{"a.jar", "b.jar"}) {
		t.Errorf("mods after failure = %v", got)
	}
	if err := CanInstall(env.layout.ManifestPath, env.layout.StatePath()); err != nil {
		t.Errorf("CanInstall() after interruption = %v, want resumable", err)
	}

	env.serveMod("c", "ccc", manifest.SideBoth)
	env.server.ClearRequests()
	if err := env.run(state.ModeInstall, nil); err != nil {
		t.Fatalf("resumed Run(install) error = %v", err)
	}

	for _, p := range []string{"/loader/neoforge-installer.jar", "/mods/a.jar", "/mods/b.jar"} {
		if n := env.server.GetRequestCount(p); n != 0 {
			t.Errorf("%s downloaded %d times on resume, want 0", p, n)
		}
	}
	if n := env.server.GetRequestCount("/mods/c.jar"); n != 1 {
		t.Errorf("/mods/c.jar downloaded %d times, want 1", n)
	}

	final := env.loadState()
	if got := fileNames(final.Mods()); !reflect.DeepEqual(got, []string{"a.jar", "b.jar", "c.jar"}) {
		t.Errorf("final mods = %v", got)
	}
	if final.ProcessMode() != "" {
		t.Errorf("process mode = %q, want cleared", final.ProcessMode())
	}
}

func TestInstall_HashGate(t *testing.T) {
	env := setupTestEnvironment(t)

	m := env.baseManifest("1.0.0")
	bad := env.serveMod("bad", "def456 content", manifest.SideBoth)
	bad.Hash = "abc123"
	m.Mods = []manifest.ModEntry{bad}
	env.writeManifest(m)

	err := env.run(state.ModeInstall, nil)
	var integrityErr *IntegrityError
	if !errors.As(err, &integrityErr) {
		t.Fatalf("Run(install) error = %v, want *IntegrityError", err)
	}
	if integrityErr.Expected != "abc123" {
		t.Errorf("Expected = %q", integrityErr.Expected)
	}
	testutil.AssertFileNotExists(t, env.path("mods", "bad.jar"))

	st := env.loadState()
	if st.ModCount() != 0 {
		t.Errorf("mismatched mod was recorded: %v", st.Mods())
	}
	if st.ProcessMode() != state.ModeInstall {
		t.Errorf("process mode = %q, want install", st.ProcessMode())
	}
}

func TestInstall_ChangedUploadIsLeftAlone(t *testing.T) {
	env := setupTestEnvironment(t)

	m := env.baseManifest("1.0.0")
	m.Mods = []manifest.ModEntry{env.serveMod("alpha", "v1", manifest.SideBoth)}
	env.writeManifest(m)
	if err := env.run(state.ModeInstall, nil); err != nil {
		t.Fatal(err)
	}

	m.Mods = []manifest.ModEntry{env.serveMod("alpha", "v2", manifest.SideBoth)}
	env.writeManifest(m)
	env.server.ClearRequests()
	if err := env.run(state.ModeInstall, nil); err != nil {
		t.Fatalf("Run(install) error = %v", err)
	}

	if n := env.server.TotalRequests(); n != 0 {
		t.Errorf("install re-downloaded changed upload (%d requests)", n)
	}
	testutil.AssertFileContent(t, env.path("mods", "alpha.jar"), "v1")
	rec := env.loadState().Mods()[0]
	if rec.Hash != testutil.SHA1([]byte("v1")) {
		t.Errorf("recorded hash = %q, want the original", rec.Hash)
	}
}

func TestInstall_ResumeAtTailSkipsDownloads(t *testing.T) {
	env := setupTestEnvironment(t)

	m := env.baseManifest("1.0.0")
	m.Mods = []manifest.ModEntry{env.serveMod("alpha", "a", manifest.SideBoth)}
	env.writeManifest(m)

	st := state.New(testInstallerVersion, m.PackVersion)
	st.SetProcessMode(state.ModeInstall)
	st.SetResumePoint(state.ResumeTail)
	if err := st.Save(env.layout.StatePath()); err != nil {
		t.Fatal(err)
	}

	env.profiles.err = errBoom
	env.launcher.err = errBoom
	if err := env.run(state.ModeInstall, nil); err != nil {
		t.Fatalf("Run(install) error = %v, want best-effort failures to be ignored", err)
	}

	if n := env.server.TotalRequests(); n != 0 {
		t.Errorf("tail resume made %d requests, want 0", n)
	}
	wantPhases := []events.Phase{events.PhaseAddProfile, events.PhaseLaunchModLoader}
	if got := env.events.Phases(); !reflect.DeepEqual(got, wantPhases) {
		t.Errorf("phases = %v, want %v", got, wantPhases)
	}

	var keys []string
	for _, a := range env.events.Alerts() {
		if a.Level != events.LevelWarning {
			t.Errorf("alert %v is not a warning", a)
		}
		keys = append(keys, a.TranslationKey)
	}
	if want := []string{events.AlertFailedAddProfile, events.AlertFailedLaunchModLoader}; !reflect.DeepEqual(keys, want) {
		t.Errorf("alert keys = %v, want %v", keys, want)
	}

	final := env.loadState()
	if final.ProcessMode() != "" || final.ResumePoint() != "" {
		t.Errorf("markers = %q/%q, want cleared", final.ProcessMode(), final.ResumePoint())
	}
	env.assertProgressMonotonic()
}

func TestInstall_NoAutoOpen(t *testing.T) {
	env := setupTestEnvironment(t)
	m := env.baseManifest("1.0.0")
	m.ModLoader.AutoOpen = false
	env.writeManifest(m)

	if err := env.run(state.ModeInstall, nil); err != nil {
		t.Fatal(err)
	}
	if env.launcher.calls != 0 {
		t.Errorf("launcher called %d times with autoOpen off", env.launcher.calls)
	}
	for _, p := range env.events.Phases() {
		if p == events.PhaseLaunchModLoader {
			t.Error("launchModLoader phase emitted with autoOpen off")
		}
	}
}

func TestInstall_RefusesWhileUpdateInProgress(t *testing.T) {
	env := setupTestEnvironment(t)
	env.writeManifest(env.baseManifest("1.0.0"))

	st := state.New(testInstallerVersion, version.MustParse("0.9.0"))
	st.SetProcessMode(state.ModeUpdate)
	if err := st.Save(env.layout.StatePath()); err != nil {
		t.Fatal(err)
	}

	err := env.run(state.ModeInstall, nil)
	var conflictErr *ConflictError
	if !errors.As(err, &conflictErr) || !errors.Is(err, ErrModeInProgress) {
		t.Fatalf("Run(install) error = %v, want ErrModeInProgress", err)
	}
	if conflictErr.Mode != state.ModeUpdate {
		t.Errorf("ConflictError.Mode = %q", conflictErr.Mode)
	}
	if env.server.TotalRequests() != 0 {
		t.Error("refused run made requests")
	}
}

func TestNew_MissingOrInvalidManifest(t *testing.T) {
	env := setupTestEnvironment(t)

	_, err := New(Options{Mode: state.ModeInstall, Layout: env.layout})
	if !errors.Is(err, ErrNoManifest) {
		t.Errorf("New() error = %v, want ErrNoManifest", err)
	}

	m := env.baseManifest("1.0.0")
	m.Profile.Name = " "
	env.writeManifest(m)
	_, err = New(Options{Mode: state.ModeInstall, Layout: env.layout})
	var verr *manifest.ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("New() error = %v, want *manifest.ValidationError", err)
	}

	if _, err := New(Options{Mode: "repair", Layout: env.layout}); err == nil {
		t.Error("New() accepted an unknown mode")
	}
}

func TestCanInstallCanUpdate(t *testing.T) {
	tests := []struct {
		name        string
		manifest    string // pack version, empty for no manifest
		stored      string // stored pack version, empty for no state
		mode        state.Mode
		wantInstall error
		wantUpdate  error
	}{
		{name: "no manifest", stored: "1.0.0", wantInstall: ErrNoManifest, wantUpdate: ErrNoManifest},
		{name: "fresh machine", manifest: "1.0.0", wantUpdate: ErrNoState},
		{name: "install in progress", manifest: "1.0.0", stored: "1.0.0", mode: state.ModeInstall, wantUpdate: ErrModeInProgress},
		{name: "update in progress", manifest: "1.1.0", stored: "1.0.0", mode: state.ModeUpdate, wantInstall: ErrModeInProgress},
		{name: "up to date", manifest: "1.0.0", stored: "1.0.0", wantUpdate: ErrNoUpdateNeeded},
		{name: "manifest older", manifest: "0.9.0", stored: "1.0.0", wantUpdate: ErrNoUpdateNeeded},
		{name: "newer pack", manifest: "1.1.0", stored: "1.0.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestEnvironment(t)
			if tt.manifest != "" {
				env.writeManifest(env.baseManifest(tt.manifest))
			}
			if tt.stored != "" {
				st := state.New(testInstallerVersion, version.MustParse(tt.stored))
				st.SetProcessMode(tt.mode)
				if err := st.Save(env.layout.StatePath()); err != nil {
					t.Fatal(err)
				}
			}

			checks := []struct {
				op   string
				err  error
				want error
			}{
				{"CanInstall", CanInstall(env.layout.ManifestPath, env.layout.StatePath()), tt.wantInstall},
				{"CanUpdate", CanUpdate(env.layout.ManifestPath, env.layout.StatePath()), tt.wantUpdate},
			}
			for _, c := range checks {
				if c.want == nil {
					if c.err != nil {
						t.Errorf("%s() error = %v, want nil", c.op, c.err)
					}
					continue
				}
				var conflictErr *ConflictError
				if !errors.As(c.err, &conflictErr) || !errors.Is(c.err, c.want) {
					t.Errorf("%s() error = %v, want %v", c.op, c.err, c.want)
				}
			}
		})
	}
}

func TestProgress(t *testing.T) {
	var rec events.Recorder
	p := newProgress(events.NewEmitter(&rec), 4)

	p.partial(50, 100)  // 0.125
	p.partial(10, 0)    // unknown size, nothing
	p.partial(10, 100)  // would go backwards, dropped
	p.step()            // 0.25
	p.partial(200, 100) // clamped to the end of step 2
	p.step()            // still 0.5, not repeated
	p.finish()

	want := []float64{0.125, 0.25, 0.5, 1}
	if got := rec.Progress(); !reflect.DeepEqual(got, want) {
		t.Errorf("progress = %v, want %v", got, want)
	}
}

func TestProgress_ZeroSteps(t *testing.T) {
	var rec events.Recorder
	p := newProgress(events.NewEmitter(&rec), 0)
	p.partial(1, 2)
	p.finish()

	if got := rec.Progress(); !reflect.DeepEqual(got, []float64{1}) {
		t.Errorf("progress = %v, want [1]", got)
	}
}

func TestInstall_WipesScratch(t *testing.T) {
	env := setupTestEnvironment(t)
	env.writeManifest(env.baseManifest("1.0.0"))
	testutil.WriteFile(t, filepath.Join(env.layout.ScratchDir(), "stale", "leftover.jar"), "x")

	if err := env.run(state.ModeInstall, nil); err != nil {
		t.Fatal(err)
	}
	testutil.AssertFileNotExists(t, filepath.Join(env.layout.ScratchDir(), "stale"))
}
