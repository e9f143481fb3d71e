package cli

import (
	"fmt"
	"os"

	"github.com/grovetools/devlogs/errors"
)

// ErrorHandler provides user-friendly error messages
type ErrorHandler struct {
	Verbose bool
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(verbose bool) *ErrorHandler {
	return &ErrorHandler{
		Verbose: verbose,
	}
}

// Handle provides user-friendly error messages based on error type
func (h *ErrorHandler) Handle(err error) error {
	if err == nil {
		return nil
	}

	switch errors.GetCode(err) {
	case errors.ErrCodeConfigNotFound:
		fmt.Fprintf(os.Stderr, "❌ Configuration not found. Create a devlogs.yml or rely on defaults.\n")

	case errors.ErrCodeSessionNotFound:
		if devErr, ok := err.(*errors.DevlogsError); ok {
			fmt.Fprintf(os.Stderr, "❌ Session '%v' not found\n", devErr.Details["sessionId"])
			fmt.Fprintf(os.Stderr, "Run 'dvlogs sessions' to see live sessions.\n")
		} else {
			fmt.Fprintf(os.Stderr, "❌ Session not found\n")
		}

	case errors.ErrCodeRegistryUnavailable:
		fmt.Fprintf(os.Stderr, "❌ Cannot access the devlogs storage root\n")
		fmt.Fprintf(os.Stderr, "Check permissions on the configured root directory.\n")

	case errors.ErrCodeLockTimeout:
		fmt.Fprintf(os.Stderr, "❌ Timed out waiting for the registry lock\n")
		fmt.Fprintf(os.Stderr, "Another devlogs process may be stuck; retry in a moment.\n")

	default:
		fmt.Fprintf(os.Stderr, "❌ %s\n", err.Error())
	}

	if h.Verbose {
		if devErr, ok := err.(*errors.DevlogsError); ok {
			fmt.Fprintf(os.Stderr, "\nDetails: %s\n", devErr.ToJSON())
		}
	}
	return err
}
