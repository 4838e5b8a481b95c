package download

import (
	"context"
	"crypto"
	_ "crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cavaliergopher/grab/v3"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"

	"github.com/distantorigin/modpack-installer/internal/extract"
)

// HashAlgorithm is the digest recorded for every downloaded file. Changing it
// invalidates every hash already stored in manifests and state files.
const HashAlgorithm = crypto.SHA1

// DefaultTimeout bounds connecting and waiting for response headers. The body
// transfer itself is bounded only by the caller's context.
const DefaultTimeout = 10 * time.Second

// snippetLimit caps the response body carried by a FetchError
const snippetLimit = 512

// ProgressFunc is called while a download is running. total is zero or negative
// when the server did not announce a size.
type ProgressFunc func(bytesComplete, total int64)

// FetchError is a failed download: transport error, timeout, non-success status
// or a response whose file name cannot be determined.
type FetchError struct {
	URL     string
	Status  int
	Snippet string
	Err     error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("request to %s failed with status %d %s: %s", e.URL, e.Status, http.StatusText(e.Status), e.Snippet)
	}
	return fmt.Sprintf("failed to download %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IntegrityError is a downloaded file whose hash differs from the expected one
type IntegrityError struct {
	Path     string
	Expected string
	Actual   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("hash mismatch for %s: expected %s, got %s", e.Path, e.Expected, e.Actual)
}

// Outcome is a file that has been fully downloaded into scratch space
type Outcome struct {
	Path     string
	FileName string
	Hash     string
	Size     int64

	dir string
}

// Fetcher downloads files with grab, one request at a time
type Fetcher struct {
	client *grab.Client
	tick   time.Duration
}

// NewFetcher creates a fetcher whose connections and response headers are
// bounded by timeout. A zero timeout selects DefaultTimeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}).DialContext
	transport.TLSHandshakeTimeout = timeout
	transport.ResponseHeaderTimeout = timeout

	client := grab.NewClient()
	client.HTTPClient = &http.Client{Transport: transport}
	return &Fetcher{client: client, tick: 100 * time.Millisecond}
}

// Fetch downloads url into a fresh directory below scratchDir. The file name comes
// from the Content-Disposition header or else the final URL path.
func (f *Fetcher) Fetch(ctx context.Context, url, scratchDir string, progress ProgressFunc) (*Outcome, error) {
	if err := os.MkdirAll(scratchDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	dir, err := os.MkdirTemp(scratchDir, "fetch-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}

	outcome, err := f.fetch(ctx, url, dir, progress)
	if err != nil {
		_ = os.RemoveAll(dir) // Best effort cleanup
		return nil, err
	}
	return outcome, nil
}

func (f *Fetcher) fetch(ctx context.Context, url, dir string, progress ProgressFunc) (*Outcome, error) {
	req, err := grab.NewRequest(dir, url)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	req = req.WithContext(ctx)
	req.NoResume = true // Always overwrite, never resume
	req.IgnoreBadStatusCodes = true

	log.Debug("downloading", "url", url)
	resp := f.client.Do(req)

	// Progress loop
	ticker := time.NewTicker(f.tick)
	defer ticker.Stop()

	var last int64 = -1
	for {
		select {
		case <-ticker.C:
			if progress != nil && resp.BytesComplete() != last {
				last = resp.BytesComplete()
				progress(last, resp.Size())
			}
		case <-resp.Done:
			goto done
		}
	}
done:

	if err := resp.Err(); err != nil {
		if errors.Is(err, grab.ErrNoFilename) {
			return nil, &FetchError{URL: url, Err: fmt.Errorf("could not determine file name from final URL or response headers: %w", err)}
		}
		return nil, &FetchError{URL: url, Err: err}
	}

	if status := resp.HTTPResponse.StatusCode; status < 200 || status > 299 {
		return nil, &FetchError{URL: url, Status: status, Snippet: snippet(resp.Filename)}
	}

	if progress != nil {
		progress(resp.BytesComplete(), resp.Size())
	}

	// grab owns the body stream, so the digest is taken from the finished scratch file
	hash, err := HashFile(resp.Filename)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{
		Path:     resp.Filename,
		FileName: filepath.Base(resp.Filename),
		Hash:     hash,
		Size:     resp.BytesComplete(),
		dir:      dir,
	}
	log.Info("downloaded", "file", outcome.FileName, "size", humanize.Bytes(uint64(outcome.Size)))
	return outcome, nil
}

// snippet returns the start of an error response body for diagnostics
func snippet(path string) string {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return "<empty body>"
	}
	if err != nil {
		return "<failed to read body>"
	}
	defer file.Close()

	buf, err := io.ReadAll(io.LimitReader(file, snippetLimit+1))
	if err != nil {
		return "<failed to read body>"
	}
	switch {
	case len(buf) == 0:
		return "<empty body>"
	case len(buf) > snippetLimit:
		return string(buf[:snippetLimit]) + "..."
	default:
		return string(buf)
	}
}

// HashFile computes the lowercase hex HashAlgorithm digest of the file at path
func HashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s for hashing: %w", path, err)
	}
	defer file.Close()

	hasher := HashAlgorithm.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// HashEqual compares two hex digests case-insensitively
func HashEqual(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// Verify checks the outcome against the expected hash. On mismatch the scratch
// copy is discarded and an *IntegrityError is returned.
func (o *Outcome) Verify(expected string) error {
	if HashEqual(expected, o.Hash) {
		return nil
	}
	o.Discard()
	return &IntegrityError{Path: o.FileName, Expected: expected, Actual: o.Hash}
}

// Discard removes the scratch copy
func (o *Outcome) Discard() {
	if err := os.RemoveAll(o.dir); err != nil {
		log.Warn("failed to remove scratch download", "path", o.dir, "err", err)
	}
}

// Place moves the downloaded file into finalDir and returns its new path. An
// existing file at that path is overwritten.
func (o *Outcome) Place(finalDir string) (string, error) {
	if err := os.MkdirAll(finalDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", finalDir, err)
	}

	dest := filepath.Join(finalDir, o.FileName)
	if _, err := os.Stat(dest); err == nil {
		log.Warn("overwriting existing file", "path", dest)
	}

	if err := os.Rename(o.Path, dest); err != nil {
		// Different volume; fall back to copying
		if err := copyFile(o.Path, dest); err != nil {
			return "", fmt.Errorf("failed to place %s: %w", o.FileName, err)
		}
	}
	o.Discard()
	return dest, nil
}

// Unpack extracts the downloaded archive into finalDir and deletes the scratch copy
func (o *Outcome) Unpack(finalDir string) error {
	if err := extract.Zip(o.Path, finalDir, nil); err != nil {
		return fmt.Errorf("failed to unpack %s: %w", o.FileName, err)
	}
	o.Discard()
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
