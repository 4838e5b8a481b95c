package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// AppDirName is the installer's own folder inside the install root
	AppDirName       = "mm-installer"
	ManifestFileName = "config.yaml"
	StateFileName    = "installer-state.json"
	ScratchDirName   = ".temp"
	LogDirName       = "logs"
	ModsDirName      = "mods"

	// ConfigDirName and DefaultsDirName are used by the config-restoring migrations
	ConfigDirName   = "config"
	DefaultsDirName = "configureddefaults/config"
)

// Layout describes where everything lives below an install root
type Layout struct {
	InstallDir   string
	AppDir       string
	ManifestPath string
}

// NewLayout builds the layout for installDir. Empty names fall back to the defaults.
func NewLayout(installDir, appDirName, manifestFile string) Layout {
	if appDirName == "" {
		appDirName = AppDirName
	}
	if manifestFile == "" {
		manifestFile = ManifestFileName
	}
	if !filepath.IsAbs(manifestFile) {
		manifestFile = filepath.Join(installDir, manifestFile)
	}
	return Layout{
		InstallDir:   installDir,
		AppDir:       filepath.Join(installDir, appDirName),
		ManifestPath: manifestFile,
	}
}

// ExecutableDir returns the directory holding the running binary
func ExecutableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to locate executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe), nil
}

func (l Layout) StatePath() string  { return filepath.Join(l.AppDir, StateFileName) }
func (l Layout) ScratchDir() string { return filepath.Join(l.AppDir, ScratchDirName) }
func (l Layout) LogDir() string     { return filepath.Join(l.AppDir, LogDirName) }
func (l Layout) ModsDir() string    { return filepath.Join(l.InstallDir, ModsDirName) }

// ResourceDir resolves a validated, slash-separated target directory below the install root
func (l Layout) ResourceDir(targetDir string) string {
	return filepath.Join(l.InstallDir, Denormalize(targetDir))
}

// ConfigFile and DefaultsFile resolve a slash-separated config path
func (l Layout) ConfigFile(rel string) string {
	return filepath.Join(l.InstallDir, ConfigDirName, Denormalize(rel))
}

func (l Layout) DefaultsFile(rel string) string {
	return filepath.Join(l.InstallDir, Denormalize(DefaultsDirName), Denormalize(rel))
}

// Denormalize converts a path from forward slashes to platform-specific separators
func Denormalize(p string) string {
	return strings.ReplaceAll(p, "/", string(filepath.Separator))
}

// ValidateRelativeDir checks a manifest-supplied directory: it must be relative,
// must not climb out with "..", and its segments must not carry "\" or ":".
func ValidateRelativeDir(dir string) error {
	if dir == "" {
		return nil
	}
	if filepath.IsAbs(dir) || strings.HasPrefix(dir, "/") || filepath.VolumeName(dir) != "" {
		return fmt.Errorf("must be a relative path")
	}
	for _, segment := range strings.Split(dir, "/") {
		switch {
		case segment == "..":
			return fmt.Errorf("must not contain '..' segments")
		case strings.ContainsAny(segment, `\:`):
			return fmt.Errorf("contains invalid characters")
		}
	}
	return nil
}

// ValidatePath ensures a path doesn't escape the base directory (path traversal protection)
func ValidatePath(basePath, targetPath string) (string, error) {
	absBase, err := filepath.Abs(basePath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base path: %w", err)
	}

	absTarget, err := filepath.Abs(targetPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve target path: %w", err)
	}

	if absTarget != absBase && !strings.HasPrefix(absTarget, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal attempt detected")
	}

	return absTarget, nil
}
