// Package registry manages session bookkeeping shared across independent
// producer processes: id issuance, the append-only master index, and the
// active-session table. All mutations of shared files go through the lock
// coordinator; each session's own log file needs no coordination.
package registry

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/grovetools/devlogs/errors"
	"github.com/grovetools/devlogs/internal/lockfile"
	"github.com/sirupsen/logrus"
)

const (
	activeDirName   = "active"
	archivedDirName = "archived"
	locksDirName    = "locks"
	indexFileName   = "index.log"
	tableFileName   = "active.json"
	registryLock    = "registry"

	indexTimeLayout = "2006-01-02T15:04:05.000Z07:00"
)

// Kind distinguishes the two producer flavors.
type Kind string

const (
	KindProcessOutput  Kind = "process-output"
	KindPageConnection Kind = "page-connection"
)

// ActiveEntry is the active-table value for one live session.
type ActiveEntry struct {
	ProjectDir string    `json:"projectDir"`
	StartTime  time.Time `json:"startTime"`
	Descriptor string    `json:"descriptor,omitempty"`
}

// IndexEntry is one immutable line of the master index.
type IndexEntry struct {
	Timestamp  time.Time
	SessionID  string
	ProjectDir string
	Descriptor string
}

var indexLineRegex = regexp.MustCompile(`^\[([^\]]+)\] \[([^\]]+)\] \[([^\]]*)\] ?(.*)$`)

// Registry is a session registry rooted at an explicit storage directory,
// so tests and parallel deployments get fully isolated instances.
type Registry struct {
	root   string
	locks  *lockfile.Coordinator
	logger *logrus.Entry
}

// New creates a Registry at root, creating the directory layout. Total
// unavailability of the root is the one fatal condition in this subsystem.
func New(root string, logger *logrus.Entry) (*Registry, error) {
	for _, dir := range []string{root, filepath.Join(root, activeDirName), filepath.Join(root, archivedDirName), filepath.Join(root, locksDirName)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeRegistryUnavailable,
				"cannot create registry storage root").WithDetail("dir", dir)
		}
	}
	return &Registry{
		root:   root,
		locks:  lockfile.New(filepath.Join(root, locksDirName)),
		logger: logger,
	}, nil
}

// Root returns the registry storage root.
func (r *Registry) Root() string {
	return r.root
}

// Locks exposes the coordinator, letting callers adjust timeouts in tests.
func (r *Registry) Locks() *lockfile.Coordinator {
	return r.locks
}

// ActiveDir returns the directory holding live session log files.
func (r *Registry) ActiveDir() string {
	return filepath.Join(r.root, activeDirName)
}

// ArchivedDir returns the directory holding finalized session log files.
func (r *Registry) ArchivedDir() string {
	return filepath.Join(r.root, archivedDirName)
}

// ActiveLogPath returns the log path for a live session.
func (r *Registry) ActiveLogPath(id string) string {
	return filepath.Join(r.ActiveDir(), id+".log")
}

// ArchivedLogPath returns the log path for an archived session.
func (r *Registry) ArchivedLogPath(id string) string {
	return filepath.Join(r.ArchivedDir(), id+".log")
}

// LegacyLogPath is the pre-session global log some old producers wrote to.
// The reader falls back to it when no session-scoped files exist.
func (r *Registry) LegacyLogPath() string {
	return filepath.Join(r.root, "devlogs.log")
}

// Register appends one line to the master index. The index is append-only
// and permanent: lines are never rewritten or removed. A lock timeout is
// logged and swallowed; that session is then simply invisible to the index,
// an accepted loss mode under contention.
func (r *Registry) Register(id, projectDir, descriptor string) error {
	err := r.locks.WithLock(registryLock, func() error {
		file, err := os.OpenFile(r.indexPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeFilesystemError, "cannot open master index")
		}
		defer file.Close()

		line := fmt.Sprintf("[%s] [%s] [%s] %s\n",
			time.Now().UTC().Format(indexTimeLayout), id, projectDir, descriptor)
		if _, err := file.WriteString(line); err != nil {
			return errors.Wrap(err, errors.ErrCodeFilesystemError, "cannot append to master index")
		}
		return nil
	})
	if errors.Is(err, errors.ErrCodeLockTimeout) {
		r.logger.WithField("sessionId", id).Warn("Lock timeout registering session; index entry skipped")
		return nil
	}
	return err
}

// Entries parses the master index, oldest first. Malformed lines are skipped,
// never aborted on: the ledger must stay readable even if one writer crashed
// mid-line.
func (r *Registry) Entries() ([]IndexEntry, error) {
	file, err := os.Open(r.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.ErrCodeFilesystemError, "cannot open master index")
	}
	defer file.Close()

	var entries []IndexEntry
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		m := indexLineRegex.FindStringSubmatch(line)
		if m == nil {
			r.logger.WithField("line", line).Debug("Skipping malformed master index line")
			continue
		}
		ts, err := time.Parse(indexTimeLayout, m[1])
		if err != nil {
			r.logger.WithField("line", line).Debug("Skipping master index line with bad timestamp")
			continue
		}
		entries = append(entries, IndexEntry{
			Timestamp:  ts,
			SessionID:  m[2],
			ProjectDir: m[3],
			Descriptor: m[4],
		})
	}
	return entries, scanner.Err()
}

// MarkActive records a session in the active table. A lock timeout is logged
// and swallowed: the session keeps running, the sweeper adopts its file later.
func (r *Registry) MarkActive(id, projectDir, descriptor string) error {
	err := r.locks.WithLock(registryLock, func() error {
		table, err := r.readTable()
		if err != nil {
			return err
		}
		table[id] = ActiveEntry{
			ProjectDir: projectDir,
			StartTime:  time.Now().UTC(),
			Descriptor: descriptor,
		}
		return r.writeTable(table)
	})
	if errors.Is(err, errors.ErrCodeLockTimeout) {
		r.logger.WithField("sessionId", id).Warn("Lock timeout marking session active; table update skipped")
		return nil
	}
	return err
}

// RestoreActive installs a table entry verbatim, preserving the caller's
// start time. Used when a session's true start is already known, unlike
// MarkActive which always stamps now.
func (r *Registry) RestoreActive(id string, entry ActiveEntry) error {
	err := r.locks.WithLock(registryLock, func() error {
		table, err := r.readTable()
		if err != nil {
			return err
		}
		table[id] = entry
		return r.writeTable(table)
	})
	if errors.Is(err, errors.ErrCodeLockTimeout) {
		r.logger.WithField("sessionId", id).Warn("Lock timeout restoring session; table update skipped")
		return nil
	}
	return err
}

// MarkCompleted removes a session from the active table and moves its log
// file to the archive directory (archive=true) or deletes it (archive=false).
// The table update and the file move are not transactional: a crash between
// them leaves an orphan file in the active directory, which the sweeper
// repairs on its next pass.
func (r *Registry) MarkCompleted(id string, archive bool) error {
	err := r.locks.WithLock(registryLock, func() error {
		table, err := r.readTable()
		if err != nil {
			return err
		}
		delete(table, id)
		return r.writeTable(table)
	})
	if errors.Is(err, errors.ErrCodeLockTimeout) {
		r.logger.WithField("sessionId", id).Warn("Lock timeout completing session; table entry left for sweeper")
	} else if err != nil {
		return err
	}

	src := r.ActiveLogPath(id)
	if _, statErr := os.Stat(src); os.IsNotExist(statErr) {
		// Session never produced a log line; nothing to move.
		return nil
	}
	if archive {
		if err := os.Rename(src, r.ArchivedLogPath(id)); err != nil {
			return errors.Wrap(err, errors.ErrCodeFilesystemError, "cannot archive session log").
				WithDetail("sessionId", id)
		}
		return nil
	}
	if err := os.Remove(src); err != nil {
		return errors.Wrap(err, errors.ErrCodeFilesystemError, "cannot delete session log").
			WithDetail("sessionId", id)
	}
	return nil
}

// ActiveTable returns a copy of the active-session table. Reads need no lock:
// the table is always replaced by an atomic rename, so a reader sees either
// the old or the new file, never a torn one.
func (r *Registry) ActiveTable() (map[string]ActiveEntry, error) {
	return r.readTable()
}

// ActiveSessions returns the ids of live sessions, optionally filtered by
// project directory. Ordering is left to callers, who have start times.
func (r *Registry) ActiveSessions(projectDir string) ([]string, error) {
	table, err := r.readTable()
	if err != nil {
		return nil, err
	}
	var ids []string
	for id, entry := range table {
		if projectDir != "" && entry.ProjectDir != projectDir {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Orphans returns active-directory files with no active-table entry. These
// have no authoritative start time and are recoverable only by the sweeper.
func (r *Registry) Orphans() ([]string, error) {
	table, err := r.readTable()
	if err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(r.ActiveDir())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFilesystemError, "cannot read active directory")
	}

	var orphans []string
	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".log") {
			continue
		}
		id := strings.TrimSuffix(de.Name(), ".log")
		if _, ok := table[id]; !ok {
			orphans = append(orphans, id)
		}
	}
	return orphans, nil
}

func (r *Registry) indexPath() string {
	return filepath.Join(r.root, indexFileName)
}

func (r *Registry) tablePath() string {
	return filepath.Join(r.root, tableFileName)
}

func (r *Registry) readTable() (map[string]ActiveEntry, error) {
	data, err := os.ReadFile(r.tablePath())
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]ActiveEntry), nil
		}
		return nil, errors.Wrap(err, errors.ErrCodeFilesystemError, "cannot read active table")
	}

	table := make(map[string]ActiveEntry)
	if len(data) == 0 {
		return table, nil
	}
	if err := json.Unmarshal(data, &table); err != nil {
		// A corrupt table should not wedge the whole pipeline. Start fresh;
		// files stranded in the active dir become orphans for the sweeper.
		r.logger.WithError(err).Warn("Active table corrupt; starting with empty table")
		return make(map[string]ActiveEntry), nil
	}
	return table, nil
}

// writeTable replaces the active table via write-to-temp-then-rename so a
// process killed mid-write never leaves a truncated table behind.
func (r *Registry) writeTable(table map[string]ActiveEntry) error {
	data, err := json.MarshalIndent(table, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "cannot marshal active table")
	}
	if err := writeFileAtomic(r.tablePath(), data, 0644); err != nil {
		return errors.Wrap(err, errors.ErrCodeFilesystemError, "cannot write active table")
	}
	return nil
}

func writeFileAtomic(path string, content []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	cleanup = false
	return nil
}
