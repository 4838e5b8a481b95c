package manifest

import (
	"fmt"
	"net/url"
)

// SourceType tags where a content item comes from
type SourceType string

const (
	SourceCurseForge SourceType = "curseforge"
	SourceDirect     SourceType = "direct"
)

// Source is the stable identity of a content item: either a registry
// project/file pair or a direct URL. It is comparable and used as the join
// key between the manifest and the installer state.
type Source struct {
	Type      SourceType `yaml:"type" json:"type"`
	ProjectID uint32     `yaml:"projectId,omitempty" json:"projectId,omitempty"`
	FileID    uint32     `yaml:"fileId,omitempty" json:"fileId,omitempty"`
	URL       string     `yaml:"url,omitempty" json:"url,omitempty"`
}

// CurseForge returns a registry source
func CurseForge(projectID, fileID uint32) Source {
	return Source{Type: SourceCurseForge, ProjectID: projectID, FileID: fileID}
}

// Direct returns a direct-URL source
func Direct(rawURL string) Source {
	return Source{Type: SourceDirect, URL: rawURL}
}

// Canonical drops the fields that do not belong to the source's type, so two
// references to the same item always compare equal
func (s Source) Canonical() Source {
	switch s.Type {
	case SourceCurseForge:
		return CurseForge(s.ProjectID, s.FileID)
	case SourceDirect:
		return Direct(s.URL)
	default:
		return s
	}
}

func (s Source) String() string {
	switch s.Type {
	case SourceCurseForge:
		return fmt.Sprintf("cf:%d:%d", s.ProjectID, s.FileID)
	case SourceDirect:
		return "direct:" + s.URL
	default:
		return fmt.Sprintf("unknown(%s)", s.Type)
	}
}

func (s Source) validate(field string) error {
	switch s.Type {
	case SourceCurseForge:
		if s.ProjectID == 0 {
			return invalid(field+".projectId", "must be set for curseforge sources")
		}
		if s.FileID == 0 {
			return invalid(field+".fileId", "must be set for curseforge sources")
		}
	case SourceDirect:
		if err := validateURL(s.URL); err != nil {
			return invalid(field+".url", err.Error())
		}
	case "":
		return invalid(field+".type", "must not be empty")
	default:
		return invalid(field+".type", fmt.Sprintf("unknown source type %q", s.Type))
	}
	return nil
}

func validateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("must not be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("is not a valid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must be an http(s) URL")
	}
	if u.Host == "" {
		return fmt.Errorf("must include a host")
	}
	return nil
}
