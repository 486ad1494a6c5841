// Package errors provides consolidated error definitions for the quantd
// project.
//
// This file provides:
// - Stable API error codes
// - Sentinel errors for all error conditions
// - Error category checking functions
// - ErrorToCode and CodeToError mapping
// - Error wrapping utilities
package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// API error codes - used in JSON error payloads
// ============================================================================

const (
	CodeUnknown            int32 = 1
	CodeInvalidRequest     int32 = 2
	CodeNotFound           int32 = 3
	CodeNoValidRecords     int32 = 4
	CodeNoDataForTicker    int32 = 5
	CodeInvalidWindow      int32 = 6
	CodeEmptyWindow        int32 = 7
	CodeInsufficientPoints int32 = 8
	CodeUnknownHandle      int32 = 9
	CodeInternal           int32 = 10
	CodeNotAuthenticated   int32 = 11
	CodeTimeout            int32 = 12
)

// CodeName returns a human-readable name for an error code.
func CodeName(code int32) string {
	switch code {
	case CodeUnknown:
		return "Unknown"
	case CodeInvalidRequest:
		return "InvalidRequest"
	case CodeNotFound:
		return "NotFound"
	case CodeNoValidRecords:
		return "NoValidRecords"
	case CodeNoDataForTicker:
		return "NoDataForTicker"
	case CodeInvalidWindow:
		return "InvalidWindow"
	case CodeEmptyWindow:
		return "EmptyWindow"
	case CodeInsufficientPoints:
		return "InsufficientPoints"
	case CodeUnknownHandle:
		return "UnknownHandle"
	case CodeInternal:
		return "Internal"
	case CodeNotAuthenticated:
		return "NotAuthenticated"
	case CodeTimeout:
		return "Timeout"
	default:
		return fmt.Sprintf("Code(%d)", code)
	}
}

// ============================================================================
// Sentinel errors for common conditions
// ============================================================================

var (
	// Not found errors
	ErrNotFound        = errors.New("not found")
	ErrSourceNotFound  = errors.New("source not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrTickerNotFound  = errors.New("ticker not found")
	ErrUnknownHandle   = errors.New("unknown series handle")

	// Empty-result errors: the request was structurally valid but
	// produced no usable data. Distinct from NotFound so callers can
	// tell "caller error" from "legitimately empty".
	ErrNoValidRecords  = errors.New("no valid records")
	ErrNoDataForTicker = errors.New("no data for ticker")

	// Window/computation errors
	ErrInvalidWindow      = errors.New("invalid date window")
	ErrEmptyWindow        = errors.New("date window produced empty series")
	ErrInsufficientPoints = errors.New("insufficient points")

	// Validation errors
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrInvalidFrequency = errors.New("invalid resample frequency")
	ErrMissingField     = errors.New("missing required field")
	ErrInvalidQuery     = errors.New("invalid universe query")

	// Auth errors
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrInvalidToken     = errors.New("invalid token")
	ErrSignatureExpired = errors.New("signature expired")
	ErrInvalidSignature = errors.New("invalid signature")

	// Internal errors
	ErrInternal = errors.New("internal error")
	ErrDatabase = errors.New("database error")
	ErrTimeout  = errors.New("timeout")
	ErrStorage  = errors.New("storage error")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// IsNotFound returns true if err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrSourceNotFound) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrTickerNotFound) ||
		errors.Is(err, ErrUnknownHandle)
}

// IsEmptyResult returns true if err marks a valid request with no usable data.
func IsEmptyResult(err error) bool {
	return errors.Is(err, ErrNoValidRecords) ||
		errors.Is(err, ErrNoDataForTicker)
}

// IsWindowError returns true if err relates to the date window or the
// number of usable points inside it.
func IsWindowError(err error) bool {
	return errors.Is(err, ErrInvalidWindow) ||
		errors.Is(err, ErrEmptyWindow) ||
		errors.Is(err, ErrInsufficientPoints)
}

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrInvalidOperation) ||
		errors.Is(err, ErrInvalidFrequency) ||
		errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrInvalidQuery)
}

// IsAuthError returns true if err is an authentication error.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrNotAuthenticated) ||
		errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrSignatureExpired) ||
		errors.Is(err, ErrInvalidSignature)
}

// ============================================================================
// Error to API code mapping
// ============================================================================

// ErrorToCode maps a sentinel error to its stable API code.
func ErrorToCode(err error) int32 {
	if err == nil {
		return CodeUnknown
	}

	switch {
	case Is(err, ErrUnknownHandle):
		return CodeUnknownHandle
	case IsNotFound(err):
		return CodeNotFound
	case Is(err, ErrNoValidRecords):
		return CodeNoValidRecords
	case Is(err, ErrNoDataForTicker):
		return CodeNoDataForTicker
	case Is(err, ErrInvalidWindow):
		return CodeInvalidWindow
	case Is(err, ErrEmptyWindow):
		return CodeEmptyWindow
	case Is(err, ErrInsufficientPoints):
		return CodeInsufficientPoints
	case IsValidation(err):
		return CodeInvalidRequest
	case IsAuthError(err):
		return CodeNotAuthenticated
	case Is(err, ErrTimeout):
		return CodeTimeout
	default:
		return CodeInternal
	}
}

// CodeToError maps a stable API code back to a sentinel error (for clients).
func CodeToError(code int32) error {
	switch code {
	case CodeInvalidRequest:
		return ErrInvalidConfig
	case CodeNotFound:
		return ErrNotFound
	case CodeNoValidRecords:
		return ErrNoValidRecords
	case CodeNoDataForTicker:
		return ErrNoDataForTicker
	case CodeInvalidWindow:
		return ErrInvalidWindow
	case CodeEmptyWindow:
		return ErrEmptyWindow
	case CodeInsufficientPoints:
		return ErrInsufficientPoints
	case CodeUnknownHandle:
		return ErrUnknownHandle
	case CodeNotAuthenticated:
		return ErrNotAuthenticated
	case CodeTimeout:
		return ErrTimeout
	default:
		return ErrInternal
	}
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// ============================================================================
// Error constructors with context
// ============================================================================

// NewNotFound creates a not-found error with context.
func NewNotFound(entityType, identifier string) error {
	return fmt.Errorf("%s '%s': %w", entityType, identifier, ErrNotFound)
}

// NewNoDataForTicker creates a no-data error for a specific ticker.
func NewNoDataForTicker(ticker string) error {
	return fmt.Errorf("ticker '%s': %w", ticker, ErrNoDataForTicker)
}

// NewUnknownHandle creates an unknown-handle error with context.
func NewUnknownHandle(handle string) error {
	return fmt.Errorf("handle '%s': %w", handle, ErrUnknownHandle)
}

// NewValidation creates a field validation error.
func NewValidation(field, reason string) error {
	return fmt.Errorf("field %s %s: %w", field, reason, ErrInvalidConfig)
}

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return fmt.Errorf("field %s: %w", field, ErrMissingField)
}

// ============================================================================
// Validation Errors Collection
// ============================================================================

// ValidationErrors collects multiple validation errors.
type ValidationErrors struct {
	Errors []error
}

// NewValidationErrors creates a new ValidationErrors collector.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{}
}

// Add adds an error to the collection.
func (v *ValidationErrors) Add(err error) {
	if err != nil {
		v.Errors = append(v.Errors, err)
	}
}

// AddField adds a field validation error.
func (v *ValidationErrors) AddField(field, reason string) {
	v.Errors = append(v.Errors, NewValidation(field, reason))
}

// AddMissing adds a missing field error.
func (v *ValidationErrors) AddMissing(field string) {
	v.Errors = append(v.Errors, NewMissingField(field))
}

// HasErrors returns true if there are any errors.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Error implements the error interface.
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	if len(v.Errors) == 1 {
		return v.Errors[0].Error()
	}

	msg := fmt.Sprintf("validation failed with %d errors:", len(v.Errors))
	for _, err := range v.Errors {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Err returns nil if no errors, otherwise returns the ValidationErrors.
func (v *ValidationErrors) Err() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v
}

// Unwrap returns the first error for errors.Is/As support.
func (v *ValidationErrors) Unwrap() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v.Errors[0]
}
