package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DefaultAPIBase is the CurseForge core API
const DefaultAPIBase = "https://api.curseforge.com"

// downloadURLResponse is the envelope of /v1/mods/{modId}/files/{fileId}/download-url
type downloadURLResponse struct {
	Data string `json:"data"`
}

// fileResponse is the envelope of /v1/mods/{modId}/files/{fileId}
type fileResponse struct {
	Data File `json:"data"`
}

// File is the subset of a registry file record the installer uses
type File struct {
	ID          uint32 `json:"id"`
	ModID       uint32 `json:"modId"`
	DisplayName string `json:"displayName"`
	FileName    string `json:"fileName"`
	FileLength  int64  `json:"fileLength"`
	DownloadURL string `json:"downloadUrl"`
}

// Client handles CurseForge API requests
type Client struct {
	base       string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new API client. An empty base selects DefaultAPIBase.
func NewClient(base, apiKey string, httpClient *http.Client) *Client {
	if base == "" {
		base = DefaultAPIBase
	}
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 30 * time.Second,
		}
	}
	return &Client{
		base:       strings.TrimRight(base, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to fetch %s: HTTP %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// GetFile fetches the file record for a project/file pair
func (c *Client) GetFile(ctx context.Context, projectID, fileID uint32) (*File, error) {
	var resp fileResponse
	if err := c.get(ctx, fmt.Sprintf("/v1/mods/%d/files/%d", projectID, fileID), &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// DownloadURL asks the API where a file can be downloaded from
func (c *Client) DownloadURL(ctx context.Context, projectID, fileID uint32) (string, error) {
	var resp downloadURLResponse
	if err := c.get(ctx, fmt.Sprintf("/v1/mods/%d/files/%d/download-url", projectID, fileID), &resp); err != nil {
		return "", err
	}
	if resp.Data == "" {
		// distribution disabled by the author; fall back to the file record
		file, err := c.GetFile(ctx, projectID, fileID)
		if err != nil {
			return "", err
		}
		if file.DownloadURL == "" {
			return "", fmt.Errorf("file %d of project %d has no download url", fileID, projectID)
		}
		return file.DownloadURL, nil
	}
	return resp.Data, nil
}
