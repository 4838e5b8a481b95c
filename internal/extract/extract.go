package extract

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/distantorigin/modpack-installer/internal/paths"
)

// ProgressFunc is called during extraction with current entry index and total entries.
type ProgressFunc func(current, total int, name string)

// Zip extracts the archive at archivePath into targetDir, creating it when needed.
// Existing files are overwritten. Entries that would land outside targetDir abort
// the extraction.
func Zip(archivePath, targetDir string, progress ProgressFunc) error {
	reader, err := zip.OpenReader(archivePath)
	// insecure names are rejected entry by entry below
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return fmt.Errorf("failed to open archive %s: %w", archivePath, err)
	}
	defer reader.Close()

	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return fmt.Errorf("failed to create target dir: %w", err)
	}

	total := len(reader.File)
	for i, f := range reader.File {
		if progress != nil {
			progress(i+1, total, f.Name)
		}

		absTarget, err := paths.ValidatePath(targetDir, filepath.Join(targetDir, paths.Denormalize(f.Name)))
		if err != nil {
			return fmt.Errorf("refusing to extract %s: %w", f.Name, err)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(absTarget, 0755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", f.Name, err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(absTarget), 0755); err != nil {
			return fmt.Errorf("failed to create parent dir for %s: %w", f.Name, err)
		}

		if err := extractFile(f, absTarget); err != nil {
			return fmt.Errorf("failed to extract %s: %w", f.Name, err)
		}
	}

	log.Debug("extracted archive", "archive", filepath.Base(archivePath), "entries", total, "target", targetDir)
	return nil
}

func extractFile(f *zip.File, targetPath string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0644
	}
	out, err := os.OpenFile(targetPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}
