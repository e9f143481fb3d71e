package records

import (
	"strings"
	"testing"

	"github.com/grovetools/devlogs/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValidRecords(t *testing.T) {
	tests := []struct {
		name string
		json string
		want Type
	}{
		{"start", `{"type":"start","projectDir":"/home/u/proj","descriptor":"http://localhost:3000"}`, TypeStart},
		{"end", `{"type":"end"}`, TypeEnd},
		{"console", `{"type":"console","level":"error","text":"hi"}`, TypeConsole},
		{"network", `{"type":"network","method":"GET","url":"http://localhost/x","status":200,"durationMs":12.5}`, TypeNetwork},
		{"script-error", `{"type":"script-error","text":"boom","stackTrace":"at main"}`, TypeScriptError},
		{"metric", `{"type":"metric","name":"fps","value":60}`, TypeMetric},
		{"heartbeat", `{"type":"heartbeat"}`, TypeHeartbeat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := Parse([]byte(tt.json))
			require.NoError(t, err)
			assert.Equal(t, tt.want, rec.Type)
		})
	}
}

func TestParseNotJSON(t *testing.T) {
	_, err := Parse([]byte("not json at all"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeMalformedFrame))
}

func TestParseSchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"unknown type", `{"type":"telemetry"}`},
		{"missing type", `{"text":"hi"}`},
		{"start without projectDir", `{"type":"start"}`},
		{"console without text", `{"type":"console","level":"warn"}`},
		{"network bad status", `{"type":"network","method":"GET","url":"x","status":12345}`},
		{"metric without value", `{"type":"metric","name":"fps"}`},
		{"extra field", `{"type":"end","surprise":true}`},
		{"oversized text", `{"type":"console","level":"log","text":"` + strings.Repeat("a", 9000) + `"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.json))
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrCodeSchemaViolation), "got %v", err)
		})
	}
}

func TestChannelMapping(t *testing.T) {
	assert.Equal(t, "CONSOLE", (&Record{Type: TypeConsole}).Channel())
	assert.Equal(t, "NETWORK", (&Record{Type: TypeNetwork}).Channel())
	assert.Equal(t, "SCRIPT-ERROR", (&Record{Type: TypeScriptError}).Channel())
	assert.Equal(t, "METRIC", (&Record{Type: TypeMetric}).Channel())
	assert.Empty(t, (&Record{Type: TypeStart}).Channel())
	assert.Empty(t, (&Record{Type: TypeHeartbeat}).Channel())

	assert.True(t, (&Record{Type: TypeConsole}).IsEvent())
	assert.False(t, (&Record{Type: TypeEnd}).IsEvent())
}
