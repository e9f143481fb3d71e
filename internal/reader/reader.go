// Package reader serves bounded, most-recent-first aggregate views over
// session log files. It only ever reads: registry state and log files are
// written elsewhere.
package reader

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/grovetools/devlogs/errors"
	"github.com/grovetools/devlogs/internal/registry"
	"github.com/sirupsen/logrus"
)

// DefaultLineBudget bounds output when the caller passes no budget.
const DefaultLineBudget = 200

// DefaultMaxFiles bounds how many session files one query may touch.
const DefaultMaxFiles = 5

// SessionInfo describes one live session for listing surfaces.
type SessionInfo struct {
	ID         string
	ProjectDir string
	StartTime  time.Time
	Descriptor string
}

// Reader aggregates session logs from a registry's storage root.
type Reader struct {
	reg    *registry.Registry
	logger *logrus.Entry
}

// New creates a Reader over a registry.
func New(reg *registry.Registry, logger *logrus.Entry) *Reader {
	return &Reader{reg: reg, logger: logger}
}

type candidate struct {
	id      string
	path    string
	project string
	modTime time.Time
}

// ReadRecent returns up to lineBudget trailing lines drawn from at most
// maxFiles matching session files, newest session first. The budget is spent
// on the newest file before any older one is touched; within each session
// lines stay in their original ascending order. When nothing matches, a
// descriptive placeholder is returned rather than an error, and a legacy
// pre-session global log is consulted before giving up entirely.
func (r *Reader) ReadRecent(lineBudget, maxFiles int, projectDir string, liveOnly bool) (string, error) {
	if lineBudget <= 0 {
		lineBudget = DefaultLineBudget
	}
	if maxFiles <= 0 {
		maxFiles = DefaultMaxFiles
	}

	candidates, err := r.collect(projectDir, liveOnly)
	if err != nil {
		return "", err
	}

	if len(candidates) == 0 {
		if text, ok := r.legacyTail(lineBudget); ok {
			return text, nil
		}
		return r.placeholder(projectDir, liveOnly), nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].modTime.After(candidates[j].modTime)
	})
	if len(candidates) > maxFiles {
		candidates = candidates[:maxFiles]
	}

	var blocks []string
	remaining := lineBudget
	for _, c := range candidates {
		if remaining <= 0 {
			break
		}
		lines, err := tailLines(c.path, remaining)
		if err != nil {
			r.logger.WithError(err).WithField("sessionId", c.id).Warn("Skipping unreadable session log")
			continue
		}
		if len(lines) == 0 {
			continue
		}
		remaining -= len(lines)

		header := fmt.Sprintf("----- session %s", c.id)
		if c.project != "" {
			header += " (" + c.project + ")"
		}
		header += " -----"
		blocks = append(blocks, header+"\n"+strings.Join(lines, "\n"))
	}

	if len(blocks) == 0 {
		return r.placeholder(projectDir, liveOnly), nil
	}
	return strings.Join(blocks, "\n\n") + "\n", nil
}

// ListActiveSessions returns live sessions, newest first, optionally filtered
// by project directory.
func (r *Reader) ListActiveSessions(projectDir string) ([]SessionInfo, error) {
	table, err := r.reg.ActiveTable()
	if err != nil {
		return nil, err
	}

	var sessions []SessionInfo
	for id, entry := range table {
		if projectDir != "" && entry.ProjectDir != projectDir {
			continue
		}
		sessions = append(sessions, SessionInfo{
			ID:         id,
			ProjectDir: entry.ProjectDir,
			StartTime:  entry.StartTime,
			Descriptor: entry.Descriptor,
		})
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartTime.After(sessions[j].StartTime)
	})
	return sessions, nil
}

func (r *Reader) collect(projectDir string, liveOnly bool) ([]candidate, error) {
	if liveOnly {
		table, err := r.reg.ActiveTable()
		if err != nil {
			return nil, err
		}
		var out []candidate
		for id, entry := range table {
			if projectDir != "" && entry.ProjectDir != projectDir {
				continue
			}
			path := r.reg.ActiveLogPath(id)
			info, err := os.Stat(path)
			if err != nil {
				// Active but nothing written yet; nothing to aggregate.
				continue
			}
			out = append(out, candidate{id: id, path: path, project: entry.ProjectDir, modTime: info.ModTime()})
		}
		return out, nil
	}

	// Archived files carry no table entry; the master index is the only
	// place their project attribution survives.
	projects := make(map[string]string)
	entries, err := r.reg.Entries()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		projects[e.SessionID] = e.ProjectDir
	}

	dirEntries, err := os.ReadDir(r.reg.ArchivedDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.ErrCodeFilesystemError, "cannot read archive directory")
	}

	var out []candidate
	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".log") {
			continue
		}
		id := strings.TrimSuffix(de.Name(), ".log")
		project := projects[id]
		if projectDir != "" && project != projectDir {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		out = append(out, candidate{id: id, path: r.reg.ArchivedLogPath(id), project: project, modTime: info.ModTime()})
	}
	return out, nil
}

func (r *Reader) legacyTail(lineBudget int) (string, bool) {
	path := r.reg.LegacyLogPath()
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	lines, err := tailLines(path, lineBudget)
	if err != nil || len(lines) == 0 {
		return "", false
	}
	return "----- legacy log -----\n" + strings.Join(lines, "\n") + "\n", true
}

func (r *Reader) placeholder(projectDir string, liveOnly bool) string {
	scope := "archived"
	if liveOnly {
		scope = "active"
	}
	if projectDir != "" {
		return fmt.Sprintf("No %s session logs found for project %s.", scope, projectDir)
	}
	return fmt.Sprintf("No %s session logs found.", scope)
}

// tailLines returns at most n trailing non-empty-terminated lines of a file
// in their original order.
func tailLines(path string, n int) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return nil, nil
	}
	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}
