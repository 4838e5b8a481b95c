package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/distantorigin/modpack-installer/internal/manifest"
)

// DefaultCurseForgeBase is the public site used when no API key is configured
const DefaultCurseForgeBase = "https://www.curseforge.com"

// Resolver turns a source into the URL the fetcher downloads from
type Resolver interface {
	Resolve(ctx context.Context, src manifest.Source) (string, error)
}

// Options configure New
type Options struct {
	// CurseForgeBase overrides the public download host
	CurseForgeBase string
	// APIBase and APIKey enable the authenticated API lookup
	APIBase string
	APIKey  string
}

// Default resolves direct sources to themselves and registry sources either through the
// API client (when a key is configured) or through the public download URL template.
type Default struct {
	base string
	api  *Client
}

// New builds the resolver described by opts
func New(opts Options) *Default {
	base := strings.TrimRight(opts.CurseForgeBase, "/")
	if base == "" {
		base = DefaultCurseForgeBase
	}
	r := &Default{base: base}
	if opts.APIKey != "" {
		r.api = NewClient(opts.APIBase, opts.APIKey, nil)
	}
	return r
}

// TemplateURL is the public download address of a registry file
func TemplateURL(base string, projectID, fileID uint32) string {
	return fmt.Sprintf("%s/api/v1/mods/%d/files/%d/download", strings.TrimRight(base, "/"), projectID, fileID)
}

func (r *Default) Resolve(ctx context.Context, src manifest.Source) (string, error) {
	switch src.Type {
	case manifest.SourceDirect:
		return src.URL, nil
	case manifest.SourceCurseForge:
		if r.api != nil {
			return r.api.DownloadURL(ctx, src.ProjectID, src.FileID)
		}
		return TemplateURL(r.base, src.ProjectID, src.FileID), nil
	default:
		return "", fmt.Errorf("cannot resolve %s: unknown source type", src)
	}
}
