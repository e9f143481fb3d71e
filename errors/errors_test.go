package errors

import (
	"fmt"
	"testing"
)

func TestDevlogsError(t *testing.T) {
	// Test basic error creation
	err := New(ErrCodeSessionNotFound, "session not found")
	if err.Code != ErrCodeSessionNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeSessionNotFound, err.Code)
	}

	// Test error wrapping
	cause := fmt.Errorf("underlying error")
	wrapped := Wrap(cause, ErrCodeStreamError, "write failed")

	if wrapped.Unwrap() != cause {
		t.Error("Unwrap should return the cause")
	}

	// Test Is function
	if !Is(wrapped, ErrCodeStreamError) {
		t.Error("Is should return true for matching code")
	}

	if Is(wrapped, ErrCodeSessionNotFound) {
		t.Error("Is should return false for non-matching code")
	}

	// Test WithDetail
	detailed := err.WithDetail("sessionId", "abc").WithDetail("attempt", 2)
	if detailed.Details["sessionId"] != "abc" {
		t.Error("WithDetail should add details")
	}
}

func TestErrorConstructors(t *testing.T) {
	// Test LockTimeout
	err := LockTimeout("registry", "5s")
	if err.Code != ErrCodeLockTimeout {
		t.Errorf("expected code %s, got %s", ErrCodeLockTimeout, err.Code)
	}
	if err.Details["lock"] != "registry" {
		t.Error("LockTimeout should include lock detail")
	}

	// Test FrameTooLarge
	err = FrameTooLarge(1<<20, 256<<10)
	if err.Code != ErrCodeFrameTooLarge {
		t.Errorf("expected code %s, got %s", ErrCodeFrameTooLarge, err.Code)
	}
	if err.Details["declared"] != 1<<20 {
		t.Error("FrameTooLarge should include declared length detail")
	}

	// Test SessionNotFound
	err = SessionNotFound("123-0-abcd")
	if err.Details["sessionId"] != "123-0-abcd" {
		t.Error("SessionNotFound should include sessionId detail")
	}
}
