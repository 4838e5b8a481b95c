package download

import (
	"bytes"
	"context"
	"crypto"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	testutil "github.com/distantorigin/modpack-installer/testing"
)

func TestFetch_NameFromURL(t *testing.T) {
	server := testutil.NewMockContentServer(t)
	url, hash := server.SetFile("/mods/sodium-0.6.jar", []byte("sodium bytes"))
	scratch := filepath.Join(t.TempDir(), ".temp")

	var mu sync.Mutex
	var lastDone, lastTotal int64
	outcome, err := NewFetcher(0).Fetch(context.Background(), url, scratch, func(done, total int64) {
		mu.Lock()
		defer mu.Unlock()
		lastDone, lastTotal = done, total
	})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if outcome.FileName != "sodium-0.6.jar" {
		t.Errorf("FileName = %q", outcome.FileName)
	}
	if outcome.Hash != hash {
		t.Errorf("Hash = %q, want %q", outcome.Hash, hash)
	}
	if outcome.Size != int64(len("sodium bytes")) {
		t.Errorf("Size = %d", outcome.Size)
	}
	if !strings.HasPrefix(outcome.Path, scratch) {
		t.Errorf("Path %q is not below scratch dir %q", outcome.Path, scratch)
	}
	testutil.AssertFileContent(t, outcome.Path, "sodium bytes")

	mu.Lock()
	defer mu.Unlock()
	if lastDone != outcome.Size || lastTotal != outcome.Size {
		t.Errorf("final progress = %d/%d, want %d/%d", lastDone, lastTotal, outcome.Size, outcome.Size)
	}
}

func TestFetch_NameFromContentDisposition(t *testing.T) {
	server := testutil.NewMockContentServer(t)
	url, _ := server.SetAttachment("/api/v1/mods/1/files/2/download", "jei-19.21.jar", []byte("jei"))

	outcome, err := NewFetcher(0).Fetch(context.Background(), url, t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if outcome.FileName != "jei-19.21.jar" {
		t.Errorf("FileName = %q, want jei-19.21.jar", outcome.FileName)
	}
}

func TestFetch_NameFromRedirectTarget(t *testing.T) {
	server := testutil.NewMockContentServer(t)
	server.SetFile("/files/real name.jar", []byte("payload"))
	url := server.SetRedirect("/download/42", "/files/real%20name.jar")

	outcome, err := NewFetcher(0).Fetch(context.Background(), url, t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if outcome.FileName != "real name.jar" {
		t.Errorf("FileName = %q, want %q", outcome.FileName, "real name.jar")
	}
}

func TestFetch_BadStatus(t *testing.T) {
	server := testutil.NewMockContentServer(t)
	long := bytes.Repeat([]byte("x"), 600)
	server.SetRawResponse("/broken.jar", http.StatusInternalServerError, long, nil)
	server.SetRawResponse("/empty.jar", http.StatusForbidden, nil, nil)

	tests := []struct {
		name        string
		path        string
		wantStatus  int
		wantSnippet string
	}{
		{name: "missing", path: "/missing.jar", wantStatus: http.StatusNotFound, wantSnippet: "404 page not found"},
		{name: "long body is capped", path: "/broken.jar", wantStatus: http.StatusInternalServerError, wantSnippet: strings.Repeat("x", 512) + "..."},
		{name: "empty body", path: "/empty.jar", wantStatus: http.StatusForbidden, wantSnippet: "<empty body>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scratch := t.TempDir()
			_, err := NewFetcher(0).Fetch(context.Background(), server.URL+tt.path, scratch, nil)

			var fetchErr *FetchError
			if !errors.As(err, &fetchErr) {
				t.Fatalf("Fetch() error = %v, want *FetchError", err)
			}
			if fetchErr.Status != tt.wantStatus {
				t.Errorf("Status = %d, want %d", fetchErr.Status, tt.wantStatus)
			}
			if strings.TrimSpace(fetchErr.Snippet) != tt.wantSnippet {
				t.Errorf("Snippet = %q, want %q", fetchErr.Snippet, tt.wantSnippet)
			}

			entries, _ := os.ReadDir(scratch)
			if len(entries) != 0 {
				t.Errorf("scratch dir not cleaned up: %v", entries)
			}
		})
	}
}

func TestFetch_NoFileName(t *testing.T) {
	server := testutil.NewMockContentServer(t)
	server.SetFile("/", []byte("index"))

	_, err := NewFetcher(0).Fetch(context.Background(), server.URL+"/", t.TempDir(), nil)
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Fetch() error = %v, want *FetchError", err)
	}
	if !strings.Contains(err.Error(), "file name") {
		t.Errorf("Fetch() error = %v, want file name message", err)
	}
}

func TestFetch_Cancelled(t *testing.T) {
	server := testutil.NewMockContentServer(t)
	url, _ := server.SetFile("/a.jar", []byte("a"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFetcher(0).Fetch(ctx, url, t.TempDir(), nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Fetch() error = %v, want context.Canceled", err)
	}
}

func TestFetch_HeaderTimeout(t *testing.T) {
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-time.After(5 * time.Second):
		}
		w.Write([]byte("late"))
	}))
	defer slow.Close()
	defer close(release)

	_, err := NewFetcher(100*time.Millisecond).Fetch(context.Background(), slow.URL+"/slow.jar", t.TempDir(), nil)
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Fetch() error = %v, want *FetchError", err)
	}
}

func TestOutcome_Verify(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fetch-1", "a.jar")
	testutil.WriteFile(t, path, "content")
	hash := testutil.SHA1([]byte("content"))

	o := &Outcome{Path: path, FileName: "a.jar", Hash: hash, dir: filepath.Dir(path)}
	if err := o.Verify(strings.ToUpper(hash)); err != nil {
		t.Errorf("Verify() with upper-case hash error = %v", err)
	}

	err := o.Verify("deadbeef")
	var integrityErr *IntegrityError
	if !errors.As(err, &integrityErr) {
		t.Fatalf("Verify() error = %v, want *IntegrityError", err)
	}
	if integrityErr.Actual != hash || integrityErr.Expected != "deadbeef" {
		t.Errorf("IntegrityError = %+v", integrityErr)
	}
	testutil.AssertFileNotExists(t, path)
}

func TestOutcome_PlaceOverwrites(t *testing.T) {
	root := t.TempDir()
	scratch := filepath.Join(root, "scratch", "fetch-1")
	src := filepath.Join(scratch, "mod.jar")
	testutil.WriteFile(t, src, "new")

	final := filepath.Join(root, "mods")
	testutil.WriteFile(t, filepath.Join(final, "mod.jar"), "old")

	o := &Outcome{Path: src, FileName: "mod.jar", dir: scratch}
	dest, err := o.Place(final)
	if err != nil {
		t.Fatalf("Place() error = %v", err)
	}
	if dest != filepath.Join(final, "mod.jar") {
		t.Errorf("Place() = %q", dest)
	}
	testutil.AssertFileContent(t, dest, "new")
	testutil.AssertFileNotExists(t, scratch)
}

func TestOutcome_Unpack(t *testing.T) {
	root := t.TempDir()
	scratch := filepath.Join(root, "scratch", "fetch-1")
	if err := os.MkdirAll(scratch, 0755); err != nil {
		t.Fatal(err)
	}

	archive := testutil.WriteZip(t, filepath.Join(scratch, "pack.zip"), map[string]string{"pack/pack.mcmeta": "{}"})

	o := &Outcome{Path: archive, FileName: "pack.zip", dir: scratch}
	target := filepath.Join(root, "resourcepacks")
	if err := o.Unpack(target); err != nil {
		t.Fatalf("Unpack() error = %v", err)
	}
	testutil.AssertFileContent(t, filepath.Join(target, "pack", "pack.mcmeta"), "{}")
	testutil.AssertFileNotExists(t, archive)
}

func TestHashFile(t *testing.T) {
	// manifests and state files in the wild carry sha1 digests
	if HashAlgorithm != crypto.SHA1 {
		t.Fatalf("HashAlgorithm = %v, want SHA-1", HashAlgorithm)
	}

	path := filepath.Join(t.TempDir(), "f")
	testutil.WriteFile(t, path, "abc")

	got, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile() error = %v", err)
	}
	// sha1("abc")
	if got != "a9993e364706816aba3e25717850c26c9cd0d89d" {
		t.Errorf("HashFile() = %q", got)
	}
}
