package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
)

// FileTimeFormat names a run's log file; every run keeps its own file
const FileTimeFormat = "2006-01-02_15-04-05"

// Setup opens a new log file in dir and installs it as the default logger.
// With mirror set, records also go to stderr. The returned file must be closed
// by the caller when the process ends.
func Setup(dir, level string, mirror bool) (*os.File, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("installer-%s.log", time.Now().Format(FileTimeFormat)))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	var w io.Writer = f
	if mirror {
		w = io.MultiWriter(f, os.Stderr)
	}
	log.SetDefault(log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
		Level:           lvl,
	}))
	return f, nil
}

// Discard routes the default logger to nowhere, used before the install root is known
func Discard() {
	log.SetDefault(log.NewWithOptions(io.Discard, log.Options{}))
}
