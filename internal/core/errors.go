package core

import (
	"errors"
	"fmt"
)

// ErrNonPositiveRate is returned by the conversion helpers for rates that are
// zero, negative or not a number.
var ErrNonPositiveRate = errors.New("exchange rate must be positive")

// ValidationError reports the field a transaction failed on.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// ParseError is returned when an import payload is rejected as a whole.
// Err usually aggregates one cause per offending record.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return "invalid file"
	}
	return fmt.Sprintf("invalid file: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Causes flattens the aggregated record errors, if any.
func (e *ParseError) Causes() []error {
	if e.Err == nil {
		return nil
	}
	var multi interface{ WrappedErrors() []error }
	if errors.As(e.Err, &multi) {
		return multi.WrappedErrors()
	}
	return []error{e.Err}
}

// ConversionError reports a unit conversion attempted with an unusable rate.
type ConversionError struct {
	Rate float64
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("convert with rate %v: %v", e.Rate, ErrNonPositiveRate)
}

func (e *ConversionError) Unwrap() error { return ErrNonPositiveRate }
