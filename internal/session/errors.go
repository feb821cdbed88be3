package session

import (
	"errors"
	"fmt"
)

var (
	// ErrTaskNotFound indicates the referenced task UUID has no matching record.
	ErrTaskNotFound = errors.New("task not found")

	// ErrSessionNotFound indicates the referenced session UUID has no matching record.
	ErrSessionNotFound = errors.New("session not found")
)

// ValidationError indicates malformed caller input: an unknown role or
// status, an out-of-range confidence, or a missing required field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
