package reader

import (
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/grovetools/devlogs/internal/registry"
	"github.com/grovetools/devlogs/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReader(t *testing.T) (*Reader, *registry.Registry) {
	t.Helper()
	reg, err := registry.New(t.TempDir(), logging.NewLogger("reader-test"))
	require.NoError(t, err)
	return New(reg, logging.NewLogger("reader-test")), reg
}

func writeSessionLog(t *testing.T, path string, lineCount int, tag string) {
	t.Helper()
	var sb strings.Builder
	for i := 1; i <= lineCount; i++ {
		fmt.Fprintf(&sb, "%s line %d\n", tag, i)
	}
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0644))
}

func TestReadRecentPlaceholderWhenEmpty(t *testing.T) {
	r, _ := newTestReader(t)

	text, err := r.ReadRecent(100, 5, "", true)
	require.NoError(t, err)
	assert.Contains(t, text, "No active session logs found")

	text, err = r.ReadRecent(100, 5, "/proj/a", false)
	require.NoError(t, err)
	assert.Contains(t, text, "No archived session logs found for project /proj/a")
}

func TestReadRecentActiveNewestFirst(t *testing.T) {
	r, reg := newTestReader(t)

	require.NoError(t, reg.MarkActive("old", "/proj/a", ""))
	require.NoError(t, reg.MarkActive("new", "/proj/a", ""))
	writeSessionLog(t, reg.ActiveLogPath("old"), 3, "old")
	time.Sleep(20 * time.Millisecond)
	writeSessionLog(t, reg.ActiveLogPath("new"), 3, "new")

	text, err := r.ReadRecent(100, 5, "/proj/a", true)
	require.NoError(t, err)

	newIdx := strings.Index(text, "----- session new")
	oldIdx := strings.Index(text, "----- session old")
	require.GreaterOrEqual(t, newIdx, 0)
	require.GreaterOrEqual(t, oldIdx, 0)
	assert.Less(t, newIdx, oldIdx, "newest session must come first")

	// Lines inside a block stay in written order.
	assert.Less(t, strings.Index(text, "new line 1"), strings.Index(text, "new line 3"))
}

// The budget is spent on the newest file first: with three files of ten lines
// and a budget of fifteen, the newest contributes all ten, the next one five,
// the oldest nothing.
func TestReadRecentBudgetExhaustsNewestFirst(t *testing.T) {
	r, reg := newTestReader(t)

	for i, id := range []string{"s1", "s2", "s3"} {
		require.NoError(t, reg.MarkActive(id, "/proj/a", ""))
		writeSessionLog(t, reg.ActiveLogPath(id), 10, id)
		mt := time.Now().Add(time.Duration(i-3) * time.Minute)
		require.NoError(t, os.Chtimes(reg.ActiveLogPath(id), mt, mt))
	}

	text, err := r.ReadRecent(15, 5, "/proj/a", true)
	require.NoError(t, err)

	assert.Contains(t, text, "s3 line 1")
	assert.Contains(t, text, "s3 line 10")
	// Only the trailing five lines of the next-newest file fit.
	assert.NotContains(t, text, "s2 line 5\n")
	assert.Contains(t, text, "s2 line 6")
	assert.Contains(t, text, "s2 line 10")
	assert.NotContains(t, text, "s1 line")
}

func TestReadRecentMaxFilesCap(t *testing.T) {
	r, reg := newTestReader(t)

	for i, id := range []string{"s1", "s2", "s3"} {
		require.NoError(t, reg.MarkActive(id, "/proj/a", ""))
		writeSessionLog(t, reg.ActiveLogPath(id), 2, id)
		mt := time.Now().Add(time.Duration(i-3) * time.Minute)
		require.NoError(t, os.Chtimes(reg.ActiveLogPath(id), mt, mt))
	}

	text, err := r.ReadRecent(100, 2, "/proj/a", true)
	require.NoError(t, err)
	assert.Contains(t, text, "session s3")
	assert.Contains(t, text, "session s2")
	assert.NotContains(t, text, "session s1")
}

func TestReadRecentArchivedUsesIndexAttribution(t *testing.T) {
	r, reg := newTestReader(t)

	require.NoError(t, reg.Register("arch-a", "/proj/a", ""))
	require.NoError(t, reg.Register("arch-b", "/proj/b", ""))
	writeSessionLog(t, reg.ArchivedLogPath("arch-a"), 2, "a")
	writeSessionLog(t, reg.ArchivedLogPath("arch-b"), 2, "b")

	text, err := r.ReadRecent(100, 5, "/proj/a", false)
	require.NoError(t, err)
	assert.Contains(t, text, "session arch-a")
	assert.NotContains(t, text, "session arch-b")
}

func TestReadRecentLegacyFallback(t *testing.T) {
	r, reg := newTestReader(t)

	require.NoError(t, os.WriteFile(reg.LegacyLogPath(), []byte("old global line\n"), 0644))

	text, err := r.ReadRecent(100, 5, "", true)
	require.NoError(t, err)
	assert.Contains(t, text, "legacy log")
	assert.Contains(t, text, "old global line")
}

func TestListActiveSessionsNewestFirst(t *testing.T) {
	r, reg := newTestReader(t)

	require.NoError(t, reg.MarkActive("first", "/proj/a", "npm run dev"))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, reg.MarkActive("second", "/proj/b", ""))

	sessions, err := r.ListActiveSessions("")
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "second", sessions[0].ID)
	assert.Equal(t, "first", sessions[1].ID)
	assert.Equal(t, "npm run dev", sessions[1].Descriptor)

	filtered, err := r.ListActiveSessions("/proj/b")
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "second", filtered[0].ID)
}
