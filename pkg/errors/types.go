package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a structured error code
type ErrorCode string

const (
	// Configuration errors
	ErrCodeConfigInvalid ErrorCode = "CONFIG_INVALID"

	// Resource errors
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeDatasetNotReady ErrorCode = "DATASET_NOT_READY"
	ErrCodeDatasetBusy     ErrorCode = "DATASET_BUSY"
	ErrCodeNoSource        ErrorCode = "NO_SOURCE"

	// Request errors
	ErrCodeValidation     ErrorCode = "VALIDATION"
	ErrCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
)

// AppError represents a structured application error
type AppError struct {
	Code     ErrorCode              `json:"code"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details,omitempty"`
	Cause    error                  `json:"-"`
	HTTPCode int                    `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// GetHTTPCode returns the HTTP status for the error
func (e *AppError) GetHTTPCode() int {
	if e.HTTPCode != 0 {
		return e.HTTPCode
	}
	return httpCodeFor(e.Code)
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPCode: httpCodeFor(code)}
}

// Wrap wraps an existing error with an AppError
func Wrap(cause error, code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message, Cause: cause, HTTPCode: httpCodeFor(code)}
}

func httpCodeFor(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeDatasetNotReady, ErrCodeDatasetBusy, ErrCodeNoSource:
		return http.StatusConflict
	case ErrCodeValidation, ErrCodeInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// NotFound creates a not found error for a lookup that failed with cause
func NotFound(resource string, cause error) *AppError {
	return Wrap(cause, ErrCodeNotFound, fmt.Sprintf("%s not found", resource)).
		WithDetail("resource", resource)
}

// DatasetNotReady creates an error for a dataset queried in a status other
// than ready
func DatasetNotReady(status string, cause error) *AppError {
	return Wrap(cause, ErrCodeDatasetNotReady, cause.Error()).
		WithDetail("dataset_status", status)
}

// ValidationError creates a validation error
func ValidationError(field string, reason string) *AppError {
	return New(ErrCodeValidation, fmt.Sprintf("validation failed for field '%s': %s", field, reason)).
		WithDetail("field", field).
		WithDetail("reason", reason)
}

// ConfigError creates a configuration error
func ConfigError(key string, reason string) *AppError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("configuration error for '%s': %s", key, reason)).
		WithDetail("key", key).
		WithDetail("reason", reason)
}

// Is reports whether err carries an AppError with the given code
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
