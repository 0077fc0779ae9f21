package market

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks malformed caller input. It is the only class of
	// failure that should surface as a client error.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDataUnavailable is returned when a historical series is missing,
	// empty or too short for the requested computation.
	ErrDataUnavailable = errors.New("historical data unavailable")
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// Invalid builds a *ValidationError for field.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a client-class input failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}
