// Package launcher registers the pack as a profile of the vanilla game launcher.
package launcher

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dchest/safefile"
	"github.com/google/uuid"

	"github.com/distantorigin/modpack-installer/internal/manifest"
)

const ProfilesFileName = "launcher_profiles.json"

// ErrProfilesNotFound is returned when the launcher has never been run on this machine
var ErrProfilesNotFound = errors.New("launcher profiles file not found")

// Profile is the launcher's record of a game configuration
type Profile struct {
	Created       time.Time `json:"created"`
	GameDir       string    `json:"gameDir,omitempty"`
	Icon          string    `json:"icon"`
	JavaArgs      string    `json:"javaArgs,omitempty"`
	LastUsed      time.Time `json:"lastUsed"`
	LastVersionID string    `json:"lastVersionId"`
	Name          string    `json:"name"`
	Type          string    `json:"type"`
}

// Registrar adds profiles to a launcher_profiles.json file
type Registrar struct {
	path    string
	pathErr error
	now     func() time.Time
	newID   func() string
}

// NewRegistrar edits the profiles file at path, or the platform default when
// path is empty. A default that cannot be resolved is reported by Register.
func NewRegistrar(path string) *Registrar {
	r := &Registrar{
		path:  path,
		now:   time.Now,
		newID: func() string { return uuidSimple(uuid.New()) },
	}
	if path == "" {
		r.path, r.pathErr = DefaultProfilesPath()
	}
	return r
}

// Path returns the profiles file being edited
func (r *Registrar) Path() string { return r.path }

// DefaultProfilesPath returns where the vanilla launcher keeps its profiles
func DefaultProfilesPath() (string, error) {
	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", errors.New("APPDATA environment variable not found")
		}
		return filepath.Join(appData, ".minecraft", ProfilesFileName), nil
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to locate home directory: %w", err)
		}
		return filepath.Join(home, "Library", "Application Support", "minecraft", ProfilesFileName), nil
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to locate home directory: %w", err)
		}
		return filepath.Join(home, ".minecraft", ProfilesFileName), nil
	}
}

func uuidSimple(id uuid.UUID) string {
	return fmt.Sprintf("%x", id[:])
}

// Register inserts a custom profile for p pointing at gameDir. A profile that
// already carries the same name is left untouched. The previous file is kept
// as a numbered .bak copy, and fields this installer does not know about survive.
func (r *Registrar) Register(p manifest.Profile, gameDir string) error {
	if r.pathErr != nil {
		return r.pathErr
	}
	log.Info("adding launcher profile", "name", p.Name, "file", r.path)

	content, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrProfilesNotFound
		}
		return fmt.Errorf("failed to read %s: %w", ProfilesFileName, err)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(content, &doc); err != nil {
		return fmt.Errorf("failed to parse %s: %w", ProfilesFileName, err)
	}
	if doc == nil {
		doc = map[string]json.RawMessage{}
	}

	profiles := map[string]json.RawMessage{}
	if raw, ok := doc["profiles"]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &profiles); err != nil {
			return fmt.Errorf("failed to parse profiles in %s: %w", ProfilesFileName, err)
		}
	}

	for id, raw := range profiles {
		var existing struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(raw, &existing); err != nil {
			log.Warn("skipping unreadable launcher profile", "id", id, "err", err)
			continue
		}
		if existing.Name == p.Name {
			log.Info("launcher profile already exists, skipping", "name", p.Name)
			return nil
		}
	}

	id := r.newID()
	if _, taken := profiles[id]; taken {
		return fmt.Errorf("profile id %q already exists in launcher profiles", id)
	}
	now := r.now().UTC().Truncate(time.Millisecond)
	entry, err := json.Marshal(Profile{
		Created:       now,
		GameDir:       gameDir,
		Icon:          p.Icon,
		JavaArgs:      p.JvmArgs,
		LastUsed:      now,
		LastVersionID: p.Version,
		Name:          p.Name,
		Type:          "custom",
	})
	if err != nil {
		return err
	}
	profiles[id] = entry

	if doc["profiles"], err = json.Marshal(profiles); err != nil {
		return err
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize profiles: %w", err)
	}

	backup, err := r.backup(content)
	if err != nil {
		return err
	}
	log.Info("backed up launcher profiles", "path", backup)

	if err := writeAtomic(r.path, out); err != nil {
		return fmt.Errorf("failed to write %s: %w", ProfilesFileName, err)
	}
	log.Info("added profile to launcher", "name", p.Name, "id", id)
	return nil
}

// backup writes content to the first free name of .json.bak, .json.bak1, .json.bak2, ...
func (r *Registrar) backup(content []byte) (string, error) {
	path := r.path + ".bak"
	for i := 1; ; i++ {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			break
		}
		path = fmt.Sprintf("%s.bak%d", r.path, i)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		return "", fmt.Errorf("failed to back up %s: %w", ProfilesFileName, err)
	}
	return path, nil
}

func writeAtomic(path string, data []byte) error {
	f, err := safefile.Create(path, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Commit()
}
