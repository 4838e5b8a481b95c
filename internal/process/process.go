package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
)

// ErrJavaNotFound is returned when neither PATH nor a launcher runtime provides java
var ErrJavaNotFound = errors.New("java executable not found")

// ErrNoLoaderJar is returned when the install directory holds no loader installer
var ErrNoLoaderJar = errors.New("mod loader installer jar file not found")

// LoaderLauncher starts the downloaded mod loader installer with a discovered Java runtime
type LoaderLauncher struct {
	// RuntimeDirs are searched for bundled runtimes when java is not on PATH.
	// Defaults to the vanilla launcher's runtime directory for this OS.
	RuntimeDirs []string

	lookPath func(string) (string, error)
}

// NewLoaderLauncher searches runtimeDirs, or the platform defaults when none are given
func NewLoaderLauncher(runtimeDirs ...string) *LoaderLauncher {
	if len(runtimeDirs) == 0 {
		runtimeDirs = DefaultRuntimeDirs()
	}
	return &LoaderLauncher{RuntimeDirs: runtimeDirs, lookPath: exec.LookPath}
}

// DefaultRuntimeDirs returns where the vanilla launcher keeps its Java runtimes
func DefaultRuntimeDirs() []string {
	switch runtime.GOOS {
	case "windows":
		local := os.Getenv("LOCALAPPDATA")
		if local == "" {
			log.Warn("LOCALAPPDATA is not set, skipping launcher runtimes")
			return nil
		}
		return []string{filepath.Join(local, "Packages", "Microsoft.4297127D64EC6_8wekyb3d8bbwe", "LocalCache", "Local", "runtime")}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			log.Warn("home directory is unknown, skipping launcher runtimes", "err", err)
			return nil
		}
		return []string{filepath.Join(home, "Library", "Application Support", "minecraft", "runtime")}
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			log.Warn("home directory is unknown, skipping launcher runtimes", "err", err)
			return nil
		}
		return []string{filepath.Join(home, ".minecraft", "runtime")}
	}
}

// FindJava locates a java executable: PATH first, then the runtime directories
func (l *LoaderLauncher) FindJava() (string, error) {
	lookPath := l.lookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}

	log.Info("searching for system java")
	path, err := lookPath("java")
	if err == nil {
		return path, nil
	}
	log.Warn("java is not on PATH", "err", err)

	log.Info("searching for java from the game launcher")
	for _, dir := range l.RuntimeDirs {
		if java := searchRuntimeDir(dir); java != "" {
			return java, nil
		}
	}
	return "", ErrJavaNotFound
}

func javaBinary() string {
	if runtime.GOOS == "windows" {
		return "javaw.exe"
	}
	return "java"
}

// searchRuntimeDir returns the java binary of the preferred runtime below dir.
// java-runtime-* directories win over older jre-* ones; within a kind, the
// name that sorts last is newest.
func searchRuntimeDir(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := strings.HasPrefix(names[i], "java-runtime-"), strings.HasPrefix(names[j], "java-runtime-")
		if a != b {
			return a
		}
		return names[i] > names[j]
	})

	for _, name := range names {
		java := filepath.Join(dir, name, "bin", javaBinary())
		if info, err := os.Stat(java); err == nil && !info.IsDir() {
			return java
		}
	}
	return ""
}

// FindLoaderJar returns the first .jar file directly inside dir
func FindLoaderJar(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read install directory: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".jar") {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", ErrNoLoaderJar
}

// Launch runs "java -jar <loader>" from installDir and returns once it has started.
// The child is detached and keeps running after the installer exits.
func (l *LoaderLauncher) Launch(ctx context.Context, installDir string) error {
	log.Info("launching mod loader")
	jar, err := FindLoaderJar(installDir)
	if err != nil {
		return err
	}
	log.Info("found mod loader", "path", jar)

	java, err := l.FindJava()
	if err != nil {
		return err
	}
	log.Info("using java", "path", java)

	if err := ctx.Err(); err != nil {
		return err
	}

	cmd := exec.Command(java, "-jar", jar)
	cmd.Dir = installDir
	detach(cmd)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to launch mod loader installer: %w", err)
	}
	if err := cmd.Process.Release(); err != nil {
		log.Warn("failed to release loader process", "err", err)
	}
	log.Info("launched mod loader installer")
	return nil
}
