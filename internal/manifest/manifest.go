package manifest

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/kballard/go-shellquote"
	"gopkg.in/yaml.v3"

	"github.com/distantorigin/modpack-installer/internal/paths"
	"github.com/distantorigin/modpack-installer/internal/version"
)

// LatestSchemaVersion is the newest manifest schema this installer understands
const LatestSchemaVersion = 2

// ErrNotFound is returned by Load when there is no manifest file
var ErrNotFound = errors.New("manifest file is not found")

// ValidationError reports a manifest that must not be processed
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid manifest: %s %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Side says on which kind of installation an entry applies
type Side string

const (
	SideBoth   Side = "both"
	SideClient Side = "client"
	SideServer Side = "server"
)

// Applies reports whether an entry declared for s belongs on an installation of kind target
func (s Side) Applies(target Side) bool {
	return s == SideBoth || s == target
}

func (s Side) validate(field string) error {
	switch s {
	case SideBoth, SideClient, SideServer:
		return nil
	case "":
		return invalid(field, "must not be empty")
	default:
		return invalid(field, fmt.Sprintf("unknown side %q", s))
	}
}

// Profile describes the launcher profile created for the pack
type Profile struct {
	Name    string `yaml:"name"`
	Icon    string `yaml:"icon"`
	Version string `yaml:"version"`
	JvmArgs string `yaml:"jvmArgs,omitempty"`
}

// ModLoader is the loader installer that gets downloaded into the install root
type ModLoader struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Hash     string `yaml:"hash"`
	AutoOpen bool   `yaml:"autoOpen"`
}

// ModEntry is a mod placed into the mods directory
type ModEntry struct {
	Name   string `yaml:"name"`
	Source `yaml:",inline"`
	Hash   string `yaml:"hash"`
	Side   Side   `yaml:"side"`
}

// ResourceEntry is a file or archive placed below TargetDir
type ResourceEntry struct {
	Name       string `yaml:"name"`
	Source     `yaml:",inline"`
	Hash       string `yaml:"hash"`
	TargetDir  string `yaml:"targetDir"`
	Decompress bool   `yaml:"decompress"`
	Side       Side   `yaml:"side"`
}

// Manifest is the declarative description of the pack. It is read once per
// run and not modified afterwards.
type Manifest struct {
	SchemaVersion int             `yaml:"schemaVersion"`
	PackVersion   version.Version `yaml:"packVersion"`
	Profile       Profile         `yaml:"profile"`
	ModLoader     ModLoader       `yaml:"modLoader"`
	Mods          []ModEntry      `yaml:"mods"`
	Resources     []ResourceEntry `yaml:"resources"`

	modIndex map[Source]int
}

// Load reads, decodes and validates the manifest at path
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read manifest at %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a manifest document
func Parse(data []byte) (*Manifest, error) {
	var required struct {
		SchemaVersion *int    `yaml:"schemaVersion"`
		PackVersion   *string `yaml:"packVersion"`
	}
	if err := yaml.Unmarshal(data, &required); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if required.SchemaVersion == nil {
		return nil, invalid("schemaVersion", "is required")
	}
	if required.PackVersion == nil {
		return nil, invalid("packVersion", "is required")
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	for i := range m.Mods {
		m.Mods[i].Source = m.Mods[i].Source.Canonical()
	}
	for i := range m.Resources {
		m.Resources[i].Source = m.Resources[i].Source.Canonical()
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	m.modIndex = make(map[Source]int, len(m.Mods))
	for i, entry := range m.Mods {
		m.modIndex[entry.Source] = i
	}
	return &m, nil
}

// Validate checks everything that must hold before any I/O happens
func (m *Manifest) Validate() error {
	if m.SchemaVersion > LatestSchemaVersion {
		return invalid("schemaVersion", fmt.Sprintf("%d is not supported (expected version %d or lower)", m.SchemaVersion, LatestSchemaVersion))
	}
	if m.SchemaVersion < 1 {
		return invalid("schemaVersion", "must be at least 1")
	}

	if strings.TrimSpace(m.Profile.Name) == "" {
		return invalid("profile.name", "must not be empty")
	}
	if strings.TrimSpace(m.Profile.Version) == "" {
		return invalid("profile.version", "must not be empty")
	}
	if m.Profile.JvmArgs != "" {
		if _, err := shellquote.Split(m.Profile.JvmArgs); err != nil {
			return invalid("profile.jvmArgs", fmt.Sprintf("cannot be split into arguments: %v", err))
		}
	}

	if strings.TrimSpace(m.ModLoader.Name) == "" {
		return invalid("modLoader.name", "must not be empty")
	}
	if err := validateURL(m.ModLoader.URL); err != nil {
		return invalid("modLoader.url", err.Error())
	}
	if strings.TrimSpace(m.ModLoader.Hash) == "" {
		return invalid("modLoader.hash", "must not be empty")
	}

	for i, entry := range m.Mods {
		field := fmt.Sprintf("mods[%d]", i)
		if err := entry.Source.validate(field); err != nil {
			return err
		}
		if strings.TrimSpace(entry.Hash) == "" {
			return invalid(field+".hash", "must not be empty")
		}
		if err := entry.Side.validate(field + ".side"); err != nil {
			return err
		}
	}

	for i, entry := range m.Resources {
		field := fmt.Sprintf("resources[%d]", i)
		if err := entry.Source.validate(field); err != nil {
			return err
		}
		if strings.TrimSpace(entry.Hash) == "" {
			return invalid(field+".hash", "must not be empty")
		}
		if err := entry.Side.validate(field + ".side"); err != nil {
			return err
		}
		if err := paths.ValidateRelativeDir(entry.TargetDir); err != nil {
			return invalid(field+".targetDir", err.Error())
		}
	}

	return nil
}

// HasMod reports whether the manifest declares a mod with the given source
func (m *Manifest) HasMod(src Source) bool {
	if m.modIndex == nil {
		for _, entry := range m.Mods {
			if entry.Source == src {
				return true
			}
		}
		return false
	}
	_, ok := m.modIndex[src]
	return ok
}

// ModsFor returns the mods that apply to an installation of kind side, in manifest order
func (m *Manifest) ModsFor(side Side) []ModEntry {
	var out []ModEntry
	for _, entry := range m.Mods {
		if entry.Side.Applies(side) {
			out = append(out, entry)
		}
	}
	return out
}

// ResourcesFor returns the resources that apply to an installation of kind side, in manifest order
func (m *Manifest) ResourcesFor(side Side) []ResourceEntry {
	var out []ResourceEntry
	for _, entry := range m.Resources {
		if entry.Side.Applies(side) {
			out = append(out, entry)
		}
	}
	return out
}
