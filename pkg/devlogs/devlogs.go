// Package devlogs is the consumer surface for external tool integrations.
// It exposes exactly two operations over a storage root: a bounded aggregate
// read of recent session logs, and a listing of live sessions. Everything
// else (ingestion, redaction, retention) happens inside the daemon.
package devlogs

import (
	"time"

	"github.com/grovetools/devlogs/internal/reader"
	"github.com/grovetools/devlogs/internal/registry"
	"github.com/grovetools/devlogs/logging"
)

// Session describes one live session.
type Session struct {
	ID         string
	ProjectDir string
	StartTime  time.Time
	Descriptor string
}

// Client reads session logs from a storage root. It never writes.
type Client struct {
	reader *reader.Reader
}

// Open creates a Client over a storage root, creating the layout if needed.
func Open(root string) (*Client, error) {
	logger := logging.NewLogger("client")
	reg, err := registry.New(root, logger)
	if err != nil {
		return nil, err
	}
	return &Client{reader: reader.New(reg, logger)}, nil
}

// ReadRecent returns up to lineBudget trailing lines from at most maxFiles
// session files, newest session first. projectDir filters by project when
// non-empty; liveOnly selects active sessions instead of archived ones.
// A query matching nothing returns a placeholder string, not an error.
func (c *Client) ReadRecent(lineBudget, maxFiles int, projectDir string, liveOnly bool) (string, error) {
	return c.reader.ReadRecent(lineBudget, maxFiles, projectDir, liveOnly)
}

// ListActiveSessions returns live sessions, newest first, optionally
// filtered by project directory.
func (c *Client) ListActiveSessions(projectDir string) ([]Session, error) {
	infos, err := c.reader.ListActiveSessions(projectDir)
	if err != nil {
		return nil, err
	}
	sessions := make([]Session, 0, len(infos))
	for _, info := range infos {
		sessions = append(sessions, Session{
			ID:         info.ID,
			ProjectDir: info.ProjectDir,
			StartTime:  info.StartTime,
			Descriptor: info.Descriptor,
		})
	}
	return sessions, nil
}
