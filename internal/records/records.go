// Package records defines the closed set of wire records a page-connection
// producer may send, and validates raw frames against an embedded JSON schema
// before anything downstream sees them.
package records

import (
	_ "embed"
	"encoding/json"

	"github.com/grovetools/devlogs/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed records.schema.json
var schemaJSON string

var compiledSchema = jsonschema.MustCompileString("records.schema.json", schemaJSON)

// Type identifies a wire record kind. The enum is closed; anything else is a
// schema violation.
type Type string

const (
	TypeStart       Type = "start"
	TypeEnd         Type = "end"
	TypeConsole     Type = "console"
	TypeNetwork     Type = "network"
	TypeScriptError Type = "script-error"
	TypeMetric      Type = "metric"
	TypeHeartbeat   Type = "heartbeat"
)

// Record is the decoded form of one wire frame. Only the fields belonging to
// the record's Type are populated; the schema rejects anything else at the
// stream boundary, so downstream code can switch on Type exhaustively.
type Record struct {
	Type Type `json:"type"`

	// start
	ProjectDir string `json:"projectDir,omitempty"`
	Descriptor string `json:"descriptor,omitempty"`

	// console, script-error
	Level      string `json:"level,omitempty"`
	Text       string `json:"text,omitempty"`
	StackTrace string `json:"stackTrace,omitempty"`

	// console, network
	URL string `json:"url,omitempty"`

	// network
	Method       string            `json:"method,omitempty"`
	Status       int               `json:"status,omitempty"`
	DurationMs   float64           `json:"durationMs,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	RequestBody  string            `json:"requestBody,omitempty"`
	ResponseBody string            `json:"responseBody,omitempty"`

	// metric
	Name  string  `json:"name,omitempty"`
	Value float64 `json:"value,omitempty"`
}

// Parse validates a raw frame against the wire schema and decodes it.
// A frame that is not JSON at all yields MALFORMED_FRAME; well-formed JSON
// that violates the schema yields SCHEMA_VIOLATION. Either way the error
// applies to this single frame only.
func Parse(data []byte) (*Record, error) {
	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMalformedFrame, "frame is not valid JSON")
	}

	if err := compiledSchema.Validate(generic); err != nil {
		recordType := ""
		if m, ok := generic.(map[string]interface{}); ok {
			recordType, _ = m["type"].(string)
		}
		return nil, errors.SchemaViolation(recordType, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMalformedFrame, "frame does not decode into a record")
	}
	return &rec, nil
}

// Channel returns the log channel tag for event-bearing records, or "" for
// lifecycle and keepalive records that never reach a log file.
func (r *Record) Channel() string {
	switch r.Type {
	case TypeConsole:
		return "CONSOLE"
	case TypeNetwork:
		return "NETWORK"
	case TypeScriptError:
		return "SCRIPT-ERROR"
	case TypeMetric:
		return "METRIC"
	default:
		return ""
	}
}

// IsEvent reports whether the record carries loggable payload, as opposed to
// lifecycle (start/end) or keepalive (heartbeat) signaling.
func (r *Record) IsEvent() bool {
	return r.Channel() != ""
}
