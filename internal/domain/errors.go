// Package domain contains domain errors used throughout the application.
package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrMuxSessionNotFound = errors.New("mux session not found")
	ErrSubscriberClosed   = errors.New("subscriber is closed")
	ErrOffsetRegression   = errors.New("ingest offset may only advance")
	ErrStoreClosed        = errors.New("store is closed")
	ErrInvalidQuery       = errors.New("invalid search query")
)

// MuxError carries the stderr of a failed mux command so callers can
// surface the external tool's own diagnostics.
type MuxError struct {
	Op     string // tmux subcommand that failed
	Stderr string
	Err    error
}

func (e *MuxError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("tmux %s: %s", e.Op, e.Stderr)
	}
	return fmt.Sprintf("tmux %s: %v", e.Op, e.Err)
}

func (e *MuxError) Unwrap() error {
	return e.Err
}

// NewMuxError creates a new MuxError.
func NewMuxError(op, stderr string, err error) *MuxError {
	return &MuxError{Op: op, Stderr: stderr, Err: err}
}
