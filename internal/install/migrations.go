package install

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/distantorigin/modpack-installer/internal/paths"
	"github.com/distantorigin/modpack-installer/internal/version"
)

// Action is the work a migration performs on an installation
type Action interface {
	Describe() string
	apply(ctx context.Context, in *Installer) error
}

// Migration runs once when an update crosses Threshold
type Migration struct {
	Threshold version.Version
	Action    Action
}

// DownloadArchive downloads a zip archive and extracts it over TargetDir
type DownloadArchive struct {
	Name      string
	URL       string
	Hash      string
	TargetDir string
}

func (a DownloadArchive) Describe() string {
	return fmt.Sprintf("extract %s into %s", a.Name, a.TargetDir)
}

func (a DownloadArchive) apply(ctx context.Context, in *Installer) error {
	_, err := in.fetchInto(ctx, a.Name, a.URL, a.Hash, in.layout.ResourceDir(a.TargetDir), true)
	return err
}

// RestoreDefaults copies files from the configured-defaults tree over the live
// config tree. Paths are slash-separated and relative to both roots.
type RestoreDefaults struct {
	Paths []string
}

func (a RestoreDefaults) Describe() string {
	return fmt.Sprintf("restore %d default config files", len(a.Paths))
}

func (a RestoreDefaults) apply(_ context.Context, in *Installer) error {
	for _, p := range a.Paths {
		if err := paths.ValidateRelativeDir(p); err != nil || p == "" {
			return fmt.Errorf("config path %q is not a safe relative path", p)
		}

		src := in.layout.DefaultsFile(p)
		dst := in.layout.ConfigFile(p)
		log.Info("overwriting config file", "path", p)
		if err := copyConfig(src, dst); err != nil {
			return err
		}
	}
	return nil
}

func copyConfig(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("original config file does not exist: %s", src)
		}
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", dst, err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	return out.Close()
}

const resourcesRelease = "https://github.com/kyazuki/Makibania-Modpack-Resources/releases/download/"

// DefaultMigrations is the shipped table, in threshold order
var DefaultMigrations = []Migration{
	{
		Threshold: version.MustParse("1.2.0"),
		Action: DownloadArchive{
			Name:      "configs",
			URL:       resourcesRelease + "v1.2.0/configs.zip",
			Hash:      "4cb14e94845a0f03775c0d1b8f3f0cbddb675ddb",
			TargetDir: paths.ConfigDirName,
		},
	},
	{
		Threshold: version.MustParse("1.2.1"),
		Action: DownloadArchive{
			Name:      "configs",
			URL:       resourcesRelease + "v1.2.1/configs.zip",
			Hash:      "9e5f63a8b1a6da42792ffc1563dcd6c6f6eac495",
			TargetDir: paths.ConfigDirName,
		},
	},
	{
		Threshold: version.MustParse("1.3.0"),
		Action: RestoreDefaults{Paths: []string{
			"fancymenu/customization/loading_makibania_default.txt",
			"fancymenu/customization/options_makibania.txt",
			"fancymenu/customization/title_makibania_default.txt",
			"fancymenu/customization/universal_makibania_bg.txt",
			"fancymenu/custom_gui_screens.txt",
			"fancymenu/customizablemenus.txt",
			"fancymenu/options.txt",
			"fancymenu/user_variables.db",
			"ftbquests/quests/chapters/welcome.snbt",
			"ftbquests/quests/lang/en_us.snbt",
			"ftbquests/quests/lang/ja_jp.snbt",
			"ftbquests/quests/chapter_groups.snbt",
			"ftbquests/quests/data.snbt",
		}},
	},
}

// Pending returns the migrations crossed when moving from stored to next, in table order
func Pending(table []Migration, stored, next version.Version) []Migration {
	var out []Migration
	for _, m := range table {
		if version.Crossed(stored, m.Threshold, next) {
			out = append(out, m)
		}
	}
	return out
}
