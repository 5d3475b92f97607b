package core

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks a document or input that fails its schema.
	ErrValidation = errors.New("validation failed")
	// ErrUnknownTarget is returned by Act for a target kind the agent does not handle.
	ErrUnknownTarget = errors.New("unknown target")
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a versioned write lost a race.
	ErrConflict = errors.New("version conflict")
	// ErrUnauthorized is returned when no authenticated principal is present.
	ErrUnauthorized = errors.New("Unauthorized")
	// ErrThreadNotFound is returned when a conversation thread does not exist.
	ErrThreadNotFound = errors.New("Thread not found")
)

// ValidationError describes a single schema violation. It matches
// ErrValidation with errors.Is.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
