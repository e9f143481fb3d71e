package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode represents a specific error condition
type ErrorCode string

const (
	// Ingestion errors
	ErrCodeMalformedFrame  ErrorCode = "MALFORMED_FRAME"
	ErrCodeSchemaViolation ErrorCode = "SCHEMA_VIOLATION"
	ErrCodeFrameTooLarge   ErrorCode = "FRAME_TOO_LARGE"
	ErrCodeRateLimited     ErrorCode = "RATE_LIMITED"

	// Registry errors
	ErrCodeLockTimeout         ErrorCode = "LOCK_TIMEOUT"
	ErrCodeSessionNotFound     ErrorCode = "SESSION_NOT_FOUND"
	ErrCodeRegistryUnavailable ErrorCode = "REGISTRY_UNAVAILABLE"

	// Filesystem errors
	ErrCodeStreamError     ErrorCode = "STREAM_ERROR"
	ErrCodeFilesystemError ErrorCode = "FILESYSTEM_ERROR"

	// Configuration errors
	ErrCodeConfigNotFound ErrorCode = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  ErrorCode = "CONFIG_INVALID"

	// General errors
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// DevlogsError represents a structured error with context
type DevlogsError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *DevlogsError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *DevlogsError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error
func (e *DevlogsError) WithDetail(key string, value interface{}) *DevlogsError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ToJSON converts the error to JSON
func (e *DevlogsError) ToJSON() string {
	data, _ := json.MarshalIndent(e, "", "  ")
	return string(data)
}

// New creates a new DevlogsError
func New(code ErrorCode, message string) *DevlogsError {
	return &DevlogsError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a DevlogsError
func Wrap(err error, code ErrorCode, message string) *DevlogsError {
	return &DevlogsError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Is checks if an error is a specific DevlogsError code
func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}

	devErr, ok := err.(*DevlogsError)
	if !ok {
		// Try to unwrap
		if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
			return Is(unwrapper.Unwrap(), code)
		}
		return false
	}

	return devErr.Code == code
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	if err == nil {
		return ""
	}

	devErr, ok := err.(*DevlogsError)
	if !ok {
		// Try to unwrap
		if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
			return GetCode(unwrapper.Unwrap())
		}
		return ""
	}

	return devErr.Code
}
