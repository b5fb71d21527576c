package streams

import (
	"errors"
	"fmt"
	"strings"
)

// StreamError represents a domain-specific error
type StreamError struct {
	Code    string
	Message string
	Cause   error
}

func (e *StreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StreamError) Unwrap() error {
	return e.Cause
}

// Error codes
const (
	ErrCodeStreamNotFound    = "STREAM_NOT_FOUND"
	ErrCodeInvalidIdentifier = "INVALID_IDENTIFIER"
	ErrCodeStreamExists      = "STREAM_EXISTS"
	ErrCodeStreamDisabled    = "STREAM_DISABLED"
	ErrCodeInvalidParams     = "INVALID_PARAMS"
	ErrCodeConfigError       = "CONFIG_ERROR"
	ErrCodeProcessingError   = "PROCESSING_ERROR"
)

// NewStreamError creates a new stream error
func NewStreamError(code, message string, cause error) *StreamError {
	return &StreamError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// HasCode reports whether err is a *StreamError with the given code.
func HasCode(err error, code string) bool {
	var streamErr *StreamError
	return errors.As(err, &streamErr) && streamErr.Code == code
}

// InvalidEntry is a streams file entry that could not be loaded.
type InvalidEntry struct {
	Index int
	Raw   string
	Err   error
}

// LoadError lists entries skipped while loading a streams file. The valid
// entries are still loaded.
type LoadError struct {
	Path    string
	Entries []InvalidEntry
}

func (e *LoadError) Error() string {
	parts := make([]string, len(e.Entries))
	for i, entry := range e.Entries {
		parts[i] = fmt.Sprintf("streams[%d]: %v", entry.Index, entry.Err)
	}
	return fmt.Sprintf("%s: %d invalid stream entries: %s", e.Path, len(e.Entries), strings.Join(parts, "; "))
}

// Unwrap exposes the per-entry errors to errors.Is and errors.As.
func (e *LoadError) Unwrap() []error {
	errs := make([]error, len(e.Entries))
	for i, entry := range e.Entries {
		errs[i] = entry.Err
	}
	return errs
}
