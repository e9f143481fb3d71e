package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grovetools/devlogs/internal/logwriter"
	"github.com/grovetools/devlogs/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureOutputSplitsLongLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.log")
	writer := logwriter.New(path, "run-1", "/proj/a", "test command")

	long := strings.Repeat("x", 200)
	input := "before\n" + long + "\nafter\n"
	var mirror bytes.Buffer

	captureOutput(strings.NewReader(input), &mirror, writer, 64, logging.NewLogger("run-test"))
	require.NoError(t, writer.Close())

	// The terminal mirror sees every byte, long line included.
	assert.Equal(t, input, mirror.String())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "before")
	assert.Contains(t, string(data), "after")
	// The long line lands split across events, not truncated.
	assert.Equal(t, 200, strings.Count(string(data), "x"))
}

func TestCaptureOutputWithoutTrailingNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.log")
	writer := logwriter.New(path, "run-2", "/proj/a", "test command")

	var mirror bytes.Buffer
	captureOutput(strings.NewReader("partial final line"), &mirror, writer, 4096, logging.NewLogger("run-test"))
	require.NoError(t, writer.Close())

	assert.Equal(t, "partial final line", mirror.String())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "partial final line")
}
