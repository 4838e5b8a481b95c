package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/distantorigin/modpack-installer/internal/download"
	"github.com/distantorigin/modpack-installer/internal/paths"
)

const (
	// ConfigFileName is the name of the settings file (without extension)
	ConfigFileName = "installer"
	// EnvPrefix prefixes environment overrides, e.g. MMI_INSTALL_DIR
	EnvPrefix = "MMI"
)

// Config holds the installer settings. Empty paths mean "next to the executable"
// or the platform default.
type Config struct {
	InstallDir   string         `mapstructure:"install_dir"`
	ManifestFile string         `mapstructure:"manifest_file"`
	AppDirName   string         `mapstructure:"app_dir_name"`
	Download     DownloadConfig `mapstructure:"download"`
	Registry     RegistryConfig `mapstructure:"registry"`
	Launcher     LauncherConfig `mapstructure:"launcher"`
	Log          LogConfig      `mapstructure:"log"`
	Quiet        bool           `mapstructure:"quiet"`
	Verbose      bool           `mapstructure:"verbose"`
}

type DownloadConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type RegistryConfig struct {
	CurseForge CurseForgeConfig `mapstructure:"curseforge"`
}

type CurseForgeConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

type LauncherConfig struct {
	ProfilesPath string   `mapstructure:"profiles_path"`
	RuntimeDirs  []string `mapstructure:"runtime_dirs"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// DefaultConfig returns the settings used when nothing is configured
func DefaultConfig() Config {
	return Config{
		ManifestFile: paths.ManifestFileName,
		AppDirName:   paths.AppDirName,
		Download:     DownloadConfig{Timeout: download.DefaultTimeout},
		Registry: RegistryConfig{CurseForge: CurseForgeConfig{
			BaseURL: "https://www.curseforge.com",
		}},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads settings from configFile, or from installer.yaml in one of
// searchDirs when configFile is empty. A missing search-path file is not an
// error; environment variables override file values.
func Load(configFile string, searchDirs ...string) (*Config, string, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("install_dir", defaults.InstallDir)
	v.SetDefault("manifest_file", defaults.ManifestFile)
	v.SetDefault("app_dir_name", defaults.AppDirName)
	v.SetDefault("download.timeout", defaults.Download.Timeout)
	v.SetDefault("registry.curseforge.base_url", defaults.Registry.CurseForge.BaseURL)
	v.SetDefault("registry.curseforge.api_key", defaults.Registry.CurseForge.APIKey)
	v.SetDefault("launcher.profiles_path", defaults.Launcher.ProfilesPath)
	v.SetDefault("launcher.runtime_dirs", defaults.Launcher.RuntimeDirs)
	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("quiet", defaults.Quiet)
	v.SetDefault("verbose", defaults.Verbose)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		if _, err := os.Stat(configFile); err != nil {
			return nil, "", fmt.Errorf("config file not found: %s", configFile)
		}
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(ConfigFileName)
		v.SetConfigType("yaml")
		for _, dir := range searchDirs {
			v.AddConfigPath(dir)
		}
	}

	if configFile != "" || len(searchDirs) > 0 {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if configFile != "" || !errors.As(err, &notFound) {
				return nil, "", fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Download.Timeout <= 0 {
		return nil, "", fmt.Errorf("download.timeout must be positive, got %s", cfg.Download.Timeout)
	}
	return &cfg, v.ConfigFileUsed(), nil
}

// Layout resolves the install layout, defaulting the install root to fallbackDir
func (c *Config) Layout(fallbackDir string) paths.Layout {
	root := c.InstallDir
	if root == "" {
		root = fallbackDir
	}
	return paths.NewLayout(root, c.AppDirName, c.ManifestFile)
}
