package streamid

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidFormat is matched by every parse failure.
	ErrInvalidFormat = errors.New("invalid stream identifier format")

	// ErrImmutable is returned when code tries to clear or overwrite an identifier
	// that already holds a value.
	ErrImmutable = errors.New("identifier value cannot be deleted")
)

// FormatError reports an identifier string that does not match the grammar.
type FormatError struct {
	Raw string
}

// Error keeps the wording used by the observatory tooling, including the trailing period.
func (e *FormatError) Error() string {
	return fmt.Sprintf("Stream identifier %s is not valid.", e.Raw)
}

// Is makes errors.Is(err, ErrInvalidFormat) true for any *FormatError.
func (e *FormatError) Is(target error) bool {
	return target == ErrInvalidFormat
}
