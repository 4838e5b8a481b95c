package version

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// Version is a semantic version (MAJOR.MINOR.PATCH with optional pre-release
// and build suffixes) used for pack and installer versions.
type Version struct {
	Major      int
	Minor      int
	Patch      int
	Prerelease string // includes the leading "-", e.g. "-rc.1"
	Build      string // includes the leading "+", ignored for ordering
}

// Zero is the lowest possible version. Legacy state files without a pack
// version are treated as having this one.
var Zero = Version{}

// String returns the version in semantic format without a "v" prefix
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d%s%s", v.Major, v.Minor, v.Patch, v.Prerelease, v.Build)
}

func (v Version) tag() string {
	return fmt.Sprintf("v%d.%d.%d%s", v.Major, v.Minor, v.Patch, v.Prerelease)
}

// Compare returns -1, 0 or +1 depending on whether v < o, v == o or v > o.
// Build metadata does not take part in the comparison.
func (v Version) Compare(o Version) int {
	return semver.Compare(v.tag(), o.tag())
}

// Less reports whether v sorts strictly before o
func (v Version) Less(o Version) bool {
	return v.Compare(o) < 0
}

// Crossed reports whether moving from stored to next passes threshold,
// i.e. stored < threshold <= next.
func Crossed(stored, threshold, next Version) bool {
	return stored.Less(threshold) && threshold.Compare(next) <= 0
}

// Parse parses a full semantic version such as "1.2.3" or "v1.3.0-rc.1".
// Shorthand forms like "1.2" are rejected.
func Parse(s string) (Version, error) {
	s = strings.TrimSpace(s)
	tag := "v" + strings.TrimPrefix(s, "v")
	if !semver.IsValid(tag) {
		return Version{}, fmt.Errorf("invalid semantic version: %q", s)
	}

	pre := semver.Prerelease(tag)
	build := semver.Build(tag)
	core := strings.TrimSuffix(strings.TrimSuffix(tag, build), pre)

	major, minor, patch, err := ParseTag(core)
	if err != nil {
		return Version{}, err
	}
	return Version{Major: major, Minor: minor, Patch: patch, Prerelease: pre, Build: build}, nil
}

// MustParse is like Parse but panics on error. Meant for package-level tables.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// ParseTag extracts version components from a tag (e.g., "v1.2.3")
func ParseTag(tag string) (major, minor, patch int, err error) {
	tagVersion := strings.TrimPrefix(tag, "v")
	parts := strings.Split(tagVersion, ".")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("invalid tag format: %s (expected vX.Y.Z)", tag)
	}

	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid major version in tag %s: %w", tag, err)
	}
	minor, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid minor version in tag %s: %w", tag, err)
	}
	patch, err = strconv.Atoi(parts[2])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid patch version in tag %s: %w", tag, err)
	}

	return major, minor, patch, nil
}

// MarshalText implements encoding.TextMarshaler for JSON and YAML
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler for JSON and YAML
func (v *Version) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
