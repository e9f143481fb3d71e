package errors

import (
	"fmt"
)

// LockTimeout creates a lock acquisition timeout error
func LockTimeout(name string, timeout string) *DevlogsError {
	return New(ErrCodeLockTimeout,
		fmt.Sprintf("could not acquire lock '%s' within %s", name, timeout)).
		WithDetail("lock", name).
		WithDetail("timeout", timeout)
}

// MalformedFrame creates a malformed wire frame error
func MalformedFrame(reason string) *DevlogsError {
	return New(ErrCodeMalformedFrame, fmt.Sprintf("malformed frame: %s", reason))
}

// SchemaViolation creates a record schema validation error
func SchemaViolation(recordType string, err error) *DevlogsError {
	return Wrap(err, ErrCodeSchemaViolation,
		fmt.Sprintf("record failed schema validation (type %q)", recordType)).
		WithDetail("recordType", recordType)
}

// FrameTooLarge creates an oversized frame error
func FrameTooLarge(declared, max int) *DevlogsError {
	return New(ErrCodeFrameTooLarge,
		fmt.Sprintf("declared frame length %d exceeds maximum %d", declared, max)).
		WithDetail("declared", declared).
		WithDetail("max", max)
}

// SessionNotFound creates a session lookup failure error
func SessionNotFound(id string) *DevlogsError {
	return New(ErrCodeSessionNotFound, fmt.Sprintf("session '%s' not found", id)).
		WithDetail("sessionId", id)
}

// StreamError wraps a session log write failure
func StreamError(id string, err error) *DevlogsError {
	return Wrap(err, ErrCodeStreamError,
		fmt.Sprintf("write to session '%s' log failed", id)).
		WithDetail("sessionId", id)
}

// ConfigInvalid creates an invalid configuration error
func ConfigInvalid(reason string) *DevlogsError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", reason))
}
