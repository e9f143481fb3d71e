package server

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/grovetools/devlogs/config"
	"github.com/grovetools/devlogs/internal/registry"
	"github.com/grovetools/devlogs/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *registry.Registry, *httptest.Server) {
	t.Helper()
	cfg := config.Default()
	cfg.Root = t.TempDir()
	cfg.Listen.TCPAddr = ""

	reg, err := registry.New(cfg.Root, logging.NewLogger("server-test"))
	require.NoError(t, err)
	srv := New(cfg, reg, logging.NewLogger("server-test"))

	ts := httptest.NewServer(srv.routes())
	t.Cleanup(ts.Close)
	return srv, reg, ts
}

func wsURL(ts *httptest.Server, suffix string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + suffix
}

func prefixFrame(payload string) []byte {
	buf := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[4:], payload)
	return buf
}

func TestHealthEndpoint(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebsocketRequiresProject(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebsocketBinaryStreamCreatesSession(t *testing.T) {
	_, reg, ts := newTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws?project=/proj/a"), nil)
	require.NoError(t, err)

	// One record split across two binary messages at an arbitrary byte
	// boundary; the other delivered whole.
	frame := prefixFrame(`{"type":"console","level":"info","text":"hello"}`)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, frame[:7]))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, frame[7:]))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, prefixFrame(`{"type":"console","level":"warn","text":"world"}`)))

	var id string
	require.Eventually(t, func() bool {
		table, err := reg.ActiveTable()
		if err != nil || len(table) != 1 {
			return false
		}
		for sid, entry := range table {
			id = sid
			assert.Equal(t, "/proj/a", entry.ProjectDir)
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())

	// Disconnect finalizes: the session archives with both lines intact.
	require.Eventually(t, func() bool {
		_, err := os.Stat(reg.ArchivedLogPath(id))
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	data, err := os.ReadFile(reg.ArchivedLogPath(id))
	require.NoError(t, err)
	assert.Contains(t, string(data), "[CONSOLE] hello")
	assert.Contains(t, string(data), "[CONSOLE] world")
}

func TestWebsocketTextMessagesAreSingleRecords(t *testing.T) {
	_, reg, ts := newTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws?project=/proj/a&descriptor=checkout"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"metric","name":"lcp","value":1200}`)))

	require.Eventually(t, func() bool {
		table, err := reg.ActiveTable()
		if err != nil || len(table) != 1 {
			return false
		}
		for _, entry := range table {
			assert.Equal(t, "checkout", entry.Descriptor)
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAPISessionsAndLogs(t *testing.T) {
	_, reg, ts := newTestServer(t)

	require.NoError(t, reg.MarkActive("sess-1", "/proj/a", "npm run dev"))
	require.NoError(t, os.WriteFile(reg.ActiveLogPath("sess-1"), []byte("line one\nline two\n"), 0644))

	resp, err := http.Get(ts.URL + "/api/sessions?project=/proj/a")
	require.NoError(t, err)
	defer resp.Body.Close()
	var sessions []sessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, "sess-1", sessions[0].ID)

	resp, err = http.Get(ts.URL + "/api/logs?lines=10&project=/proj/a")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "session sess-1")
	assert.Contains(t, string(body), "line two")
}

func TestAPILogsPlaceholder(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/logs")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "No active session logs found")
}
