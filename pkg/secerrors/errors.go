package secerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode string

const (
	// Generic errors
	ErrCodeInternal          ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput      ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrCodeForbidden         ErrorCode = "FORBIDDEN"
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Identity errors
	ErrCodeDeviceRevoked   ErrorCode = "DEVICE_REVOKED"
	ErrCodeProfileRequired ErrorCode = "PROFILE_REQUIRED"

	// Link protocol errors
	ErrCodeInvalidOrExpiredPin ErrorCode = "INVALID_OR_EXPIRED_PIN"

	// Admin gate errors
	ErrCodeAdminCapacityExceeded ErrorCode = "ADMIN_CAPACITY_EXCEEDED"
	ErrCodeAlreadyGranted        ErrorCode = "ALREADY_GRANTED"

	// Store errors
	ErrCodeStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
)

// Error represents a structured error with code, message, and optional wrapped cause
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for errors.Is and errors.As
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target carries the same error code. This lets callers
// use errors.Is against the package sentinels even when the error has been
// wrapped with extra context.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// New creates a new Error with the given code and message
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with code and message
func Wrap(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsCode checks if an error has a specific error code
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error
// Returns ErrCodeInternal if the error is not a structured Error
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// Sentinel errors for the control-plane taxonomy. Compare with errors.Is.
var (
	// ErrInvalidOrExpiredPin collapses not-found, expired, and
	// already-redeemed into one answer so callers cannot probe which PINs
	// exist.
	ErrInvalidOrExpiredPin = New(ErrCodeInvalidOrExpiredPin, "invalid or expired PIN")

	// ErrAdminCapacityExceeded is returned when a grant would push the
	// admin table past its configured capacity.
	ErrAdminCapacityExceeded = New(ErrCodeAdminCapacityExceeded, "admin capacity exceeded")

	// ErrAlreadyGranted is returned when the target profile already holds
	// the admin role.
	ErrAlreadyGranted = New(ErrCodeAlreadyGranted, "admin role already granted")

	// ErrDeviceRevoked is the hard stop for privileged operations from a
	// revoked device.
	ErrDeviceRevoked = New(ErrCodeDeviceRevoked, "device is revoked")

	// ErrProfileRequired is returned when an operation needs a device that
	// has already been bound to a profile.
	ErrProfileRequired = New(ErrCodeProfileRequired, "device is not bound to a profile")

	// ErrStoreUnavailable marks transient store failures. Read paths may
	// retry with backoff; write paths must check idempotency first.
	ErrStoreUnavailable = New(ErrCodeStoreUnavailable, "store unavailable")
)

// MapErrorCodeToHTTPStatus maps error codes to HTTP status codes
func MapErrorCodeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ErrCodeInvalidOrExpiredPin:
		return http.StatusUnauthorized
	case ErrCodeForbidden, ErrCodeDeviceRevoked, ErrCodeProfileRequired:
		return http.StatusForbidden
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeAlreadyGranted, ErrCodeAdminCapacityExceeded:
		return http.StatusConflict
	case ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case ErrCodeStoreUnavailable:
		return http.StatusServiceUnavailable
	case ErrCodeInternal:
		fallthrough
	default:
		return http.StatusInternalServerError
	}
}

// HTTPStatusCode returns the appropriate HTTP status code for this error
func (e *Error) HTTPStatusCode() int {
	return MapErrorCodeToHTTPStatus(e.Code)
}
