package logwriter

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grovetools/devlogs/internal/records"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestHeaderBeforeEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s1.log")
	w := New(path, "s1", "/home/u/proj", "http://localhost:3000")

	require.NoError(t, w.WriteEvent(ChannelConsole, "log: hello"))
	require.NoError(t, w.Close())

	lines := readLines(t, path)
	assert.Equal(t, "=== session s1 ===", lines[0])
	assert.Equal(t, "=== project /home/u/proj ===", lines[1])
	assert.Equal(t, "=== descriptor http://localhost:3000 ===", lines[2])
	assert.Contains(t, lines[3], "[CONSOLE] log: hello")
	assert.Contains(t, lines[4], "=== session end")
}

func TestLazyOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s2.log")
	w := New(path, "s2", "/p", "")

	// No file until the first write
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, w.WriteEvent(ChannelProcessOutput, "line"))
	_, err = os.Stat(path)
	assert.NoError(t, err)
	require.NoError(t, w.Close())
}

func TestEventsAreRedacted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s3.log")
	w := New(path, "s3", "/p", "")

	require.NoError(t, w.WriteEvent(ChannelProcessOutput, "API_KEY=sk-1234567890abcdef1234567890abcdef"))
	require.NoError(t, w.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "sk-1234567890")
	assert.Contains(t, string(content), "API_KEY=[REDACTED]")
}

func TestMultilineEventStaysOneLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s4.log")
	w := New(path, "s4", "/p", "")

	require.NoError(t, w.WriteEvent(ChannelScriptError, "boom\nat foo.js:1\nat bar.js:2"))
	require.NoError(t, w.Close())

	lines := readLines(t, path)
	// header (2) + event (1) + footer (1)
	assert.Len(t, lines, 4)
	assert.Contains(t, lines[2], `boom\nat foo.js:1\nat bar.js:2`)
}

func TestWriteRecordNetwork(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s5.log")
	w := New(path, "s5", "/p", "")

	rec := &records.Record{
		Type:       records.TypeNetwork,
		Method:     "GET",
		URL:        "http://localhost:3000/api",
		Status:     200,
		DurationMs: 42.5,
		Headers: map[string]string{
			"Accept":        "application/json",
			"Authorization": "Bearer abc.def.ghi",
		},
	}
	require.NoError(t, w.WriteRecord(rec))
	require.NoError(t, w.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "[NETWORK] GET http://localhost:3000/api 200 42.5ms")
	assert.Contains(t, string(content), "Accept: application/json")
	assert.NotContains(t, string(content), "abc.def.ghi")
}

func TestWriteRecordSkipsLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s6.log")
	w := New(path, "s6", "/p", "")

	require.NoError(t, w.WriteRecord(&records.Record{Type: records.TypeHeartbeat}))
	require.NoError(t, w.WriteRecord(&records.Record{Type: records.TypeEnd}))

	// Nothing loggable, so the file was never created
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	require.NoError(t, w.Close())
}

func TestFailedWriterDropsWrites(t *testing.T) {
	// Point the writer at a path whose parent does not exist
	path := filepath.Join(t.TempDir(), "missing", "s7.log")
	w := New(path, "s7", "/p", "")

	err := w.WriteEvent(ChannelConsole, "x")
	require.Error(t, err)
	assert.True(t, w.Failed())

	// Subsequent writes fail fast without touching the filesystem
	err = w.WriteEvent(ChannelConsole, "y")
	require.Error(t, err)
}

func TestExactEventCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s8.log")
	w := New(path, "s8", "/p", "")

	const n = 25
	for i := 0; i < n; i++ {
		require.NoError(t, w.WriteRecord(&records.Record{
			Type:  records.TypeConsole,
			Level: "log",
			Text:  "message",
		}))
	}
	require.NoError(t, w.Close())

	count := 0
	for _, line := range readLines(t, path) {
		if strings.Contains(line, "[CONSOLE]") {
			count++
		}
	}
	assert.Equal(t, n, count)
}
