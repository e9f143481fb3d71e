// Package logwriter emits per-session, append-only log files. Each session
// has exactly one writer and no two writers share a file, so no cross-process
// coordination is needed here.
package logwriter

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/grovetools/devlogs/errors"
	"github.com/grovetools/devlogs/internal/records"
	"github.com/grovetools/devlogs/internal/redact"
)

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Channel tags for event lines.
const (
	ChannelProcessOutput = "PROCESS-OUTPUT"
	ChannelConsole       = "CONSOLE"
	ChannelNetwork       = "NETWORK"
	ChannelScriptError   = "SCRIPT-ERROR"
	ChannelMetric        = "METRIC"
)

// Writer appends redacted, timestamped lines to one session's log file.
// The file is opened lazily on the first write and the header block is
// emitted before any event line.
type Writer struct {
	sessionID  string
	path       string
	projectDir string
	descriptor string

	file       *os.File
	wroteHead  bool
	failed     bool
}

// New creates a Writer for the given session. Nothing touches the filesystem
// until the first write.
func New(path, sessionID, projectDir, descriptor string) *Writer {
	return &Writer{
		sessionID:  sessionID,
		path:       path,
		projectDir: projectDir,
		descriptor: descriptor,
	}
}

// Path returns the log file path this writer appends to.
func (w *Writer) Path() string {
	return w.path
}

// Failed reports whether a previous write errored. A failed writer drops all
// subsequent writes; the owning session is expected to finalize.
func (w *Writer) Failed() bool {
	return w.failed
}

// WriteEvent appends one channel-tagged line. Free text passes through the
// redaction engine; embedded newlines are flattened so one event is always
// exactly one line.
func (w *Writer) WriteEvent(channel, text string) error {
	if w.failed {
		return errors.StreamError(w.sessionID, fmt.Errorf("writer already failed"))
	}
	if err := w.ensureOpen(); err != nil {
		return err
	}

	sanitized := flatten(redact.Redact(text))
	line := fmt.Sprintf("[%s] [%s] %s\n", time.Now().UTC().Format(timestampLayout), channel, sanitized)
	if _, err := w.file.WriteString(line); err != nil {
		w.failed = true
		return errors.StreamError(w.sessionID, err)
	}
	return nil
}

// WriteRecord renders a decoded wire record into its log line. Lifecycle and
// heartbeat records are ignored. Numeric fields (status, duration, metric
// value) bypass redaction; every free-text field goes through it.
func (w *Writer) WriteRecord(rec *records.Record) error {
	switch rec.Type {
	case records.TypeConsole:
		text := fmt.Sprintf("%s: %s", rec.Level, rec.Text)
		if rec.URL != "" {
			text += " (" + rec.URL + ")"
		}
		if rec.StackTrace != "" {
			text += " stack: " + rec.StackTrace
		}
		return w.WriteEvent(ChannelConsole, text)

	case records.TypeNetwork:
		text := fmt.Sprintf("%s %s %d %.1fms", rec.Method, rec.URL, rec.Status, rec.DurationMs)
		if len(rec.Headers) > 0 {
			text += " headers: " + formatHeaders(rec.Headers)
		}
		if rec.RequestBody != "" {
			text += " request: " + rec.RequestBody
		}
		if rec.ResponseBody != "" {
			text += " response: " + rec.ResponseBody
		}
		return w.WriteEvent(ChannelNetwork, text)

	case records.TypeScriptError:
		text := rec.Text
		if rec.StackTrace != "" {
			text += " stack: " + rec.StackTrace
		}
		return w.WriteEvent(ChannelScriptError, text)

	case records.TypeMetric:
		return w.WriteEvent(ChannelMetric, fmt.Sprintf("%s=%g", rec.Name, rec.Value))
	}
	return nil
}

// Close writes a best-effort footer and closes the file. Closing a writer
// that never opened its file is a no-op.
func (w *Writer) Close() error {
	if w.file == nil {
		return nil
	}
	if !w.failed {
		footer := fmt.Sprintf("=== session end %s ===\n", time.Now().UTC().Format(timestampLayout))
		_, _ = w.file.WriteString(footer)
	}
	err := w.file.Close()
	w.file = nil
	if err != nil {
		return errors.StreamError(w.sessionID, err)
	}
	return nil
}

func (w *Writer) ensureOpen() error {
	if w.file != nil {
		return nil
	}
	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		w.failed = true
		return errors.StreamError(w.sessionID, err)
	}
	w.file = file

	if !w.wroteHead {
		var b strings.Builder
		fmt.Fprintf(&b, "=== session %s ===\n", w.sessionID)
		fmt.Fprintf(&b, "=== project %s ===\n", w.projectDir)
		if w.descriptor != "" {
			fmt.Fprintf(&b, "=== descriptor %s ===\n", flatten(redact.Redact(w.descriptor)))
		}
		if _, err := w.file.WriteString(b.String()); err != nil {
			w.failed = true
			return errors.StreamError(w.sessionID, err)
		}
		w.wroteHead = true
	}
	return nil
}

// sensitiveHeaders are masked at the source. The redaction engine would catch
// most of them anyway, but header maps lose their line structure when joined,
// so masking per key is the reliable place.
var sensitiveHeaders = map[string]bool{
	"authorization":       true,
	"proxy-authorization": true,
	"cookie":              true,
	"set-cookie":          true,
	"x-api-key":           true,
	"api-key":             true,
	"x-auth-token":        true,
}

func formatHeaders(headers map[string]string) string {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := headers[k]
		if sensitiveHeaders[strings.ToLower(k)] {
			v = "[REDACTED]"
		}
		parts = append(parts, k+": "+v)
	}
	return strings.Join(parts, "; ")
}

func flatten(text string) string {
	text = strings.ReplaceAll(text, "\r\n", `\n`)
	text = strings.ReplaceAll(text, "\n", `\n`)
	return text
}
