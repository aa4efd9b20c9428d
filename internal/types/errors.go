package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for decider operations.
var (
	// ErrNotFound indicates the requested table or rule does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnavailable indicates the database could not serve the request.
	ErrUnavailable = errors.New("database unavailable")
)

// ConfigurationError reports missing or invalid setup: unset credentials,
// bad identifiers in registry path logic, missing registry entries or
// service URLs. Never retried.
type ConfigurationError struct {
	Msg string
	Err error
}

func (e *ConfigurationError) Error() string { return e.Msg }
func (e *ConfigurationError) Unwrap() error { return e.Err }

// DataError reports a backing-store or upstream failure: non-2xx responses,
// invalid JSON, timeouts and lookups that found nothing.
type DataError struct {
	Msg string
	Err error
}

func (e *DataError) Error() string { return e.Msg }
func (e *DataError) Unwrap() error { return e.Err }

// ValidationError reports a schema mismatch, grammar syntax violation or
// malformed table definition.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// ConflictError reports a unique-constraint violation such as a duplicate
// table slug.
type ConflictError struct {
	Msg string
	Err error
}

func (e *ConflictError) Error() string { return e.Msg }
func (e *ConflictError) Unwrap() error { return e.Err }

func NewConfigurationError(format string, args ...any) error {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

func NewDataError(format string, args ...any) error {
	return &DataError{Msg: fmt.Sprintf(format, args...)}
}

// WrapDataError keeps cause reachable through errors.Is/As.
func WrapDataError(cause error, format string, args ...any) error {
	return &DataError{Msg: fmt.Sprintf(format, args...), Err: cause}
}

func NewValidationError(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

func NewConflictError(cause error, format string, args ...any) error {
	return &ConflictError{Msg: fmt.Sprintf(format, args...), Err: cause}
}

// IsConfiguration reports whether err carries a ConfigurationError.
func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// IsData reports whether err carries a DataError.
func IsData(err error) bool {
	var target *DataError
	return errors.As(err, &target)
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsConflict reports whether err carries a ConflictError.
func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}
