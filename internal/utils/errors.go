package utils

import (
	"errors"
	"fmt"
)

// ValidationError is a rejected input. Handlers map it to 400.
type ValidationError struct {
	Message string
	// Fields lists the offending inputs when known.
	Fields []string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a ValidationError with message.
func NewValidationError(message string, fields ...string) error {
	return &ValidationError{Message: message, Fields: fields}
}

// NewValidationErrorf creates a ValidationError with a formatted message.
func NewValidationErrorf(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
