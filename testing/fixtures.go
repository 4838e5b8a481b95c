package testing

import (
	"archive/zip"
	"bytes"
	"path/filepath"
	"sort"
	"testing"
)

// ZipBytes builds an in-memory zip archive. Names ending in "/" become directory entries.
func ZipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("failed to add %s to zip: %v", name, err)
		}
		if _, err := w.Write([]byte(files[name])); err != nil {
			t.Fatalf("failed to write %s to zip: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to finish zip: %v", err)
	}
	return buf.Bytes()
}

// WriteZip writes ZipBytes(files) to path and returns path
func WriteZip(t *testing.T, path string, files map[string]string) string {
	t.Helper()
	WriteFile(t, path, string(ZipBytes(t, files)))
	return path
}

// CreateTestManifest writes a manifest document as config.yaml in dir
func CreateTestManifest(t *testing.T, dir string, content string) string {
	t.Helper()
	manifestPath := filepath.Join(dir, "config.yaml")
	WriteFile(t, manifestPath, content)
	return manifestPath
}
