package install

import (
	"errors"
	"fmt"

	"github.com/distantorigin/modpack-installer/internal/download"
	"github.com/distantorigin/modpack-installer/internal/state"
)

var (
	ErrNoManifest     = errors.New("config file is not found")
	ErrNoState        = errors.New("installer state file is not found")
	ErrNoUpdateNeeded = errors.New("no update is needed")
	ErrModeInProgress = errors.New("another mode is already in progress")
)

// ConflictError is a pre-flight refusal: the requested mode cannot start from
// the current manifest and state.
type ConflictError struct {
	// Mode is the run recorded in progress, for ErrModeInProgress
	Mode state.Mode
	Err  error
}

func (e *ConflictError) Error() string {
	if e.Mode != "" {
		return fmt.Sprintf("%v (%s)", e.Err, e.Mode)
	}
	return e.Err.Error()
}

func (e *ConflictError) Unwrap() error { return e.Err }

func conflict(err error) error {
	return &ConflictError{Err: err}
}

// IntegrityError is a freshly downloaded file whose hash does not match the manifest
type IntegrityError = download.IntegrityError
