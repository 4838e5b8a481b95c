package install

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/distantorigin/modpack-installer/internal/download"
	"github.com/distantorigin/modpack-installer/internal/events"
	"github.com/distantorigin/modpack-installer/internal/manifest"
	"github.com/distantorigin/modpack-installer/internal/paths"
	"github.com/distantorigin/modpack-installer/internal/registry"
	"github.com/distantorigin/modpack-installer/internal/state"
	"github.com/distantorigin/modpack-installer/internal/version"
	testutil "github.com/distantorigin/modpack-installer/testing"
)

var testInstallerVersion = version.MustParse("2.0.0")

// testEnvironment is an install root plus a content server
type testEnvironment struct {
	t        *testing.T
	layout   paths.Layout
	server   *testutil.MockContentServer
	events   *events.Recorder
	profiles *fakeProfiles
	launcher *fakeLauncher
}

func setupTestEnvironment(t *testing.T) *testEnvironment {
	t.Helper()
	root := t.TempDir()
	return &testEnvironment{
		t:        t,
		layout:   paths.NewLayout(root, "", ""),
		server:   testutil.NewMockContentServer(t),
		events:   &events.Recorder{},
		profiles: &fakeProfiles{},
		launcher: &fakeLauncher{},
	}
}

// baseManifest returns a manifest with a served loader and no content
func (e *testEnvironment) baseManifest(packVersion string) manifest.Manifest {
	e.t.Helper()
	url, hash := e.server.SetFile("/loader/neoforge-installer.jar", []byte("loader"))
	return manifest.Manifest{
		SchemaVersion: manifest.LatestSchemaVersion,
		PackVersion:   version.MustParse(packVersion),
		Profile:       manifest.Profile{Name: "Test Pack", Icon: "Furnace", Version: "neoforge-21.1.77"},
		ModLoader:     manifest.ModLoader{Name: "NeoForge", URL: url, Hash: hash, AutoOpen: true},
	}
}

// serveMod serves content as a direct mod and returns its manifest entry
func (e *testEnvironment) serveMod(name, content string, side manifest.Side) manifest.ModEntry {
	url, hash := e.server.SetFile("/mods/"+name+".jar", []byte(content))
	return manifest.ModEntry{Name: name, Source: manifest.Direct(url), Hash: hash, Side: side}
}

// serveRegistryMod serves content under the public registry download URL
func (e *testEnvironment) serveRegistryMod(name string, projectID, fileID uint32, fileName, content string) manifest.ModEntry {
	path := registry.TemplateURL("", projectID, fileID)
	_, hash := e.server.SetAttachment(path, fileName, []byte(content))
	return manifest.ModEntry{Name: name, Source: manifest.CurseForge(projectID, fileID), Hash: hash, Side: manifest.SideBoth}
}

func (e *testEnvironment) writeManifest(m manifest.Manifest) {
	e.t.Helper()
	data, err := yaml.Marshal(m)
	if err != nil {
		e.t.Fatalf("failed to marshal manifest: %v", err)
	}
	testutil.WriteFile(e.t, e.layout.ManifestPath, string(data))
}

func (e *testEnvironment) installer(mode state.Mode, migrations []Migration) *Installer {
	e.t.Helper()
	if migrations == nil {
		migrations = []Migration{}
	}
	in, err := New(Options{
		Mode:             mode,
		Layout:           e.layout,
		InstallerVersion: testInstallerVersion,
		Fetcher:          download.NewFetcher(0),
		Resolver:         registry.New(registry.Options{CurseForgeBase: e.server.URL}),
		Profiles:         e.profiles,
		Launcher:         e.launcher,
		Events:           e.events,
		Migrations:       migrations,
	})
	if err != nil {
		e.t.Fatalf("New() error = %v", err)
	}
	return in
}

func (e *testEnvironment) run(mode state.Mode, migrations []Migration) error {
	e.t.Helper()
	return e.installer(mode, migrations).Run(context.Background())
}

func (e *testEnvironment) loadState() *state.State {
	e.t.Helper()
	st, err := state.Load(e.layout.StatePath())
	if err != nil {
		e.t.Fatalf("failed to load state: %v", err)
	}
	return st
}

func (e *testEnvironment) path(rel ...string) string {
	return filepath.Join(append([]string{e.layout.InstallDir}, rel...)...)
}

func (e *testEnvironment) assertProgressMonotonic() {
	e.t.Helper()
	values := e.events.Progress()
	if len(values) == 0 {
		e.t.Fatal("no progress events")
	}
	for i := 1; i < len(values); i++ {
		if values[i] < values[i-1] {
			e.t.Fatalf("progress went backwards at %d: %v", i, values)
		}
	}
	if last := values[len(values)-1]; last != 1 {
		e.t.Errorf("final progress = %v, want 1", last)
	}
}

func fileNames(mods []state.ModRecord) []string {
	var out []string
	for _, m := range mods {
		out = append(out, m.FileName)
	}
	return out
}

type fakeProfiles struct {
	calls   int
	err     error
	profile manifest.Profile
	gameDir string
}

func (f *fakeProfiles) Register(p manifest.Profile, gameDir string) error {
	f.calls++
	f.profile = p
	f.gameDir = gameDir
	return f.err
}

type fakeLauncher struct {
	calls int
	err   error
}

func (f *fakeLauncher) Launch(_ context.Context, _ string) error {
	f.calls++
	return f.err
}

var errBoom = errors.New("boom")

// recordAction is a migration that only records that it ran
type recordAction struct {
	name string
	ran  *[]string
}

func (a recordAction) Describe() string { return a.name }

func (a recordAction) apply(context.Context, *Installer) error {
	*a.ran = append(*a.ran, a.name)
	return nil
}

func mustExist(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected %s to exist: %v", path, err)
	}
}
