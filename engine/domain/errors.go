package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for record validation and missing inputs.
var (
	ErrMissingCode       = errors.New("missing airport code")
	ErrInvalidCode       = errors.New("invalid airport code")
	ErrMissingField      = errors.New("missing required field")
	ErrInvalidCoordinate = errors.New("coordinate out of range")
	ErrSameEndpoints     = errors.New("origin equals destination")
	ErrNegative          = errors.New("negative value")
	ErrNoRawData         = errors.New("no raw data")
	ErrNoProcessedData   = errors.New("no processed data")
)

// ValidationError wraps a sentinel with the offending field.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}
