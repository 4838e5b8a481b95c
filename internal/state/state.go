package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dchest/safefile"

	"github.com/distantorigin/modpack-installer/internal/manifest"
	"github.com/distantorigin/modpack-installer/internal/version"
)

// ErrNotFound is returned by Load when there is no state file
var ErrNotFound = errors.New("installer state file is not found")

// Mode is the kind of run that is in progress
type Mode string

const (
	ModeInstall Mode = "install"
	ModeUpdate  Mode = "update"
)

// ResumePoint marks how far an interrupted install got
type ResumePoint string

// ResumeTail means every download of an install is done and only the launcher
// integration steps remain.
const ResumeTail ResumePoint = "tail"

// LoaderRecord is the installed loader installer
type LoaderRecord struct {
	FileName string `json:"fileName"`
	URL      string `json:"url"`
	Hash     string `json:"hash"`
}

// Matches reports whether the record was produced from spec
func (r LoaderRecord) Matches(spec manifest.ModLoader) bool {
	return r.URL == spec.URL && hashEqual(r.Hash, spec.Hash)
}

// ModRecord is an installed mod
type ModRecord struct {
	FileName string `json:"fileName"`
	manifest.Source
	Hash string `json:"hash"`
}

// Equals compares the source and, unless ignoreHash, the hash
func (r ModRecord) Equals(entry manifest.ModEntry, ignoreHash bool) bool {
	return r.Source == entry.Source && (ignoreHash || hashEqual(r.Hash, entry.Hash))
}

// ResourceRecord is an installed resource file or extracted archive
type ResourceRecord struct {
	FileName string `json:"fileName"`
	manifest.Source
	Hash       string `json:"hash"`
	TargetDir  string `json:"targetDir"`
	Decompress bool   `json:"decompress"`
}

// Equals compares the source and the hash
func (r ResourceRecord) Equals(entry manifest.ResourceEntry) bool {
	return r.Source == entry.Source && hashEqual(r.Hash, entry.Hash)
}

type resourceKey struct {
	source    manifest.Source
	targetDir string
}

// State is the durable record of what has been installed. The lookup indices are
// derived data: they are rebuilt on Load and kept in step by every mutator.
type State struct {
	installerVersion version.Version
	packVersion      version.Version
	modLoader        *LoaderRecord
	mods             []ModRecord
	resources        []ResourceRecord
	processMode      Mode
	resumePoint      ResumePoint

	modIndex      map[manifest.Source]int
	resourceIndex map[resourceKey]int
}

// document is the on-disk shape of State
type document struct {
	InstallerVersion version.Version  `json:"installerVersion"`
	PackVersion      *version.Version `json:"packVersion,omitempty"`
	ModLoader        *LoaderRecord    `json:"modLoader"`
	Mods             []ModRecord      `json:"mods"`
	Resources        []ResourceRecord `json:"resources"`
	ProcessMode      Mode             `json:"processMode,omitempty"`
	ResumePoint      ResumePoint      `json:"resumePoint,omitempty"`
}

// New creates an empty state
func New(installerVersion, packVersion version.Version) *State {
	s := &State{
		installerVersion: installerVersion,
		packVersion:      packVersion,
		mods:             []ModRecord{},
		resources:        []ResourceRecord{},
	}
	s.reindex()
	return s
}

// Load reads the state file at path and rebuilds the indices
func Load(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read installer state at %s: %w", path, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse installer state at %s: %w", path, err)
	}

	s := &State{
		installerVersion: doc.InstallerVersion,
		modLoader:        doc.ModLoader,
		mods:             doc.Mods,
		resources:        doc.Resources,
		processMode:      doc.ProcessMode,
		resumePoint:      doc.ResumePoint,
	}
	if doc.PackVersion == nil {
		log.Warn("packVersion is missing in installer state, defaulting to 0.0.0", "path", path)
		s.packVersion = version.Zero
	} else {
		s.packVersion = *doc.PackVersion
	}
	if s.mods == nil {
		s.mods = []ModRecord{}
	}
	if s.resources == nil {
		s.resources = []ResourceRecord{}
	}
	for i := range s.mods {
		s.mods[i].Source = s.mods[i].Source.Canonical()
	}
	for i := range s.resources {
		s.resources[i].Source = s.resources[i].Source.Canonical()
	}
	s.reindex()
	return s, nil
}

// Save writes the state atomically: a crash leaves either the old or the new file
func (s *State) Save(path string) error {
	pv := s.packVersion
	doc := document{
		InstallerVersion: s.installerVersion,
		PackVersion:      &pv,
		ModLoader:        s.modLoader,
		Mods:             s.mods,
		Resources:        s.resources,
		ProcessMode:      s.processMode,
		ResumePoint:      s.resumePoint,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize installer state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	f, err := safefile.Create(path, 0644)
	if err != nil {
		return fmt.Errorf("failed to write installer state to %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to write installer state to %s: %w", path, err)
	}
	if err := f.Commit(); err != nil {
		return fmt.Errorf("failed to write installer state to %s: %w", path, err)
	}
	return nil
}

// Finalize clears the in-progress markers and saves
func (s *State) Finalize(path string) error {
	s.processMode = ""
	s.resumePoint = ""
	return s.Save(path)
}

// reindex rebuilds both indices. Records sharing a key are collapsed into
// the first slot, keeping the content of the last one, as AddMod would.
func (s *State) reindex() {
	s.modIndex = make(map[manifest.Source]int, len(s.mods))
	mods := s.mods[:0]
	for _, m := range s.mods {
		if i, ok := s.modIndex[m.Source]; ok {
			log.Warn("duplicate mod record in installer state, keeping the last one", "source", m.Source, "file", m.FileName)
			mods[i] = m
			continue
		}
		s.modIndex[m.Source] = len(mods)
		mods = append(mods, m)
	}
	s.mods = mods

	s.resourceIndex = make(map[resourceKey]int, len(s.resources))
	resources := s.resources[:0]
	for _, r := range s.resources {
		key := resourceKey{r.Source, r.TargetDir}
		if i, ok := s.resourceIndex[key]; ok {
			log.Warn("duplicate resource record in installer state, keeping the last one", "source", r.Source, "targetDir", r.TargetDir)
			resources[i] = r
			continue
		}
		s.resourceIndex[key] = len(resources)
		resources = append(resources, r)
	}
	s.resources = resources
}

func (s *State) InstallerVersion() version.Version { return s.installerVersion }
func (s *State) PackVersion() version.Version      { return s.packVersion }
func (s *State) ProcessMode() Mode                 { return s.processMode }
func (s *State) ResumePoint() ResumePoint          { return s.resumePoint }

func (s *State) SetInstallerVersion(v version.Version) { s.installerVersion = v }
func (s *State) SetPackVersion(v version.Version)      { s.packVersion = v }
func (s *State) SetProcessMode(m Mode)                 { s.processMode = m }
func (s *State) SetResumePoint(p ResumePoint)          { s.resumePoint = p }

// ModLoader returns the loader record, if any
func (s *State) ModLoader() (LoaderRecord, bool) {
	if s.modLoader == nil {
		return LoaderRecord{}, false
	}
	return *s.modLoader, true
}

func (s *State) SetModLoader(r LoaderRecord) {
	s.modLoader = &r
}

// ModCount is the number of mod records
func (s *State) ModCount() int { return len(s.mods) }

// Mods returns a copy of the mod records in insertion order
func (s *State) Mods() []ModRecord {
	return append([]ModRecord(nil), s.mods...)
}

// Resources returns a copy of the resource records in insertion order
func (s *State) Resources() []ResourceRecord {
	return append([]ResourceRecord(nil), s.resources...)
}

// Mod looks up the record with the same source as entry
func (s *State) Mod(entry manifest.ModEntry) (ModRecord, bool) {
	i, ok := s.modIndex[entry.Source]
	if !ok {
		return ModRecord{}, false
	}
	return s.mods[i], true
}

// AddMod appends r, or replaces the record with the same source in place
func (s *State) AddMod(r ModRecord) {
	if i, ok := s.modIndex[r.Source]; ok {
		s.mods[i] = r
		return
	}
	s.modIndex[r.Source] = len(s.mods)
	s.mods = append(s.mods, r)
}

// RemoveMod deletes the record for src and reports whether one existed
func (s *State) RemoveMod(src manifest.Source) bool {
	i, ok := s.modIndex[src]
	if !ok {
		log.Warn("attempted to remove mod that is not in state", "source", src)
		return false
	}
	s.mods = append(s.mods[:i], s.mods[i+1:]...)
	delete(s.modIndex, src)
	for j := i; j < len(s.mods); j++ {
		s.modIndex[s.mods[j].Source] = j
	}
	return true
}

// Resource looks up the record with the same source and target directory as entry
func (s *State) Resource(entry manifest.ResourceEntry) (ResourceRecord, bool) {
	i, ok := s.resourceIndex[resourceKey{entry.Source, entry.TargetDir}]
	if !ok {
		return ResourceRecord{}, false
	}
	return s.resources[i], true
}

// AddResource appends r, or replaces the record with the same key in place
func (s *State) AddResource(r ResourceRecord) {
	key := resourceKey{r.Source, r.TargetDir}
	if i, ok := s.resourceIndex[key]; ok {
		s.resources[i] = r
		return
	}
	s.resourceIndex[key] = len(s.resources)
	s.resources = append(s.resources, r)
}

func hashEqual(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
