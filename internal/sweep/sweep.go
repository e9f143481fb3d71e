// Package sweep reclaims sessions whose producers never said goodbye: stale
// active entries, orphaned log files, and archives past their retention
// window.
package sweep

import (
	"fmt"
	"os"
	"time"

	"github.com/grovetools/devlogs/internal/registry"
	"github.com/sirupsen/logrus"
)

const footerTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Stats summarizes one sweeper pass.
type Stats struct {
	StaleFinalized  int
	OrphansAdopted  int
	ArchivesExpired int
	Errors          int
}

// Sweeper applies staleness and retention policy to a registry. Individual
// filesystem failures are logged and counted; a pass always runs to the end.
type Sweeper struct {
	reg       *registry.Registry
	staleness time.Duration
	retention time.Duration
	logger    *logrus.Entry
}

// New creates a Sweeper. A retention of zero means finalized logs are deleted
// rather than archived, and the archive pass has nothing to expire.
func New(reg *registry.Registry, staleness, retention time.Duration, logger *logrus.Entry) *Sweeper {
	return &Sweeper{
		reg:       reg,
		staleness: staleness,
		retention: retention,
		logger:    logger,
	}
}

// archive reports whether finalized logs are kept, per retention policy.
func (s *Sweeper) archive() bool {
	return s.retention > 0
}

// Sweep runs one full pass: stale active sessions, orphaned active files,
// then expired archives.
func (s *Sweeper) Sweep() Stats {
	var stats Stats
	now := time.Now()

	s.sweepStale(now, &stats)
	s.sweepOrphans(now, &stats)
	s.sweepArchives(now, &stats)

	s.logger.WithFields(logrus.Fields{
		"stale":    stats.StaleFinalized,
		"orphans":  stats.OrphansAdopted,
		"expired":  stats.ArchivesExpired,
		"failures": stats.Errors,
	}).Info("Sweep pass complete")
	return stats
}

// sweepStale finalizes active-table sessions whose start time fell outside
// the staleness window, through the same completion path an explicit end
// record takes. A session whose log file was written within the window is
// still live no matter how old its start time; it stays untouched.
func (s *Sweeper) sweepStale(now time.Time, stats *Stats) {
	table, err := s.reg.ActiveTable()
	if err != nil {
		s.logger.WithError(err).Warn("Cannot read active table; skipping stale pass")
		stats.Errors++
		return
	}

	cutoff := now.Add(-s.staleness)
	for id, entry := range table {
		if !entry.StartTime.Before(cutoff) {
			continue
		}
		if info, err := os.Stat(s.reg.ActiveLogPath(id)); err == nil && !info.ModTime().Before(cutoff) {
			// Recent activity; the producer is just long-lived.
			continue
		}
		s.appendReclaimFooter(s.reg.ActiveLogPath(id), now)
		if err := s.reg.MarkCompleted(id, s.archive()); err != nil {
			s.logger.WithError(err).WithField("sessionId", id).Warn("Failed to finalize stale session")
			stats.Errors++
			continue
		}
		s.logger.WithFields(logrus.Fields{
			"sessionId": id,
			"started":   entry.StartTime,
		}).Info("Reclaimed stale session")
		stats.StaleFinalized++
	}
}

// sweepOrphans adopts active-directory files with no table entry. They have
// no recorded start time, so the file's mtime stands in for it.
func (s *Sweeper) sweepOrphans(now time.Time, stats *Stats) {
	orphans, err := s.reg.Orphans()
	if err != nil {
		s.logger.WithError(err).Warn("Cannot scan for orphans; skipping orphan pass")
		stats.Errors++
		return
	}

	cutoff := now.Add(-s.staleness)
	for _, id := range orphans {
		path := s.reg.ActiveLogPath(id)
		info, err := os.Stat(path)
		if err != nil {
			stats.Errors++
			continue
		}
		if !info.ModTime().Before(cutoff) {
			// Recently written; its writer may still be alive.
			continue
		}
		s.appendReclaimFooter(path, now)
		if err := s.reg.MarkCompleted(id, s.archive()); err != nil {
			s.logger.WithError(err).WithField("sessionId", id).Warn("Failed to adopt orphan log")
			stats.Errors++
			continue
		}
		s.logger.WithField("sessionId", id).Info("Adopted orphan session log")
		stats.OrphansAdopted++
	}
}

// sweepArchives deletes archived logs whose mtime fell outside the retention
// window.
func (s *Sweeper) sweepArchives(now time.Time, stats *Stats) {
	if s.retention <= 0 {
		return
	}

	dirEntries, err := os.ReadDir(s.reg.ArchivedDir())
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.WithError(err).Warn("Cannot read archive directory; skipping retention pass")
			stats.Errors++
		}
		return
	}

	cutoff := now.Add(-s.retention)
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		info, err := de.Info()
		if err != nil {
			stats.Errors++
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(s.reg.ArchivedLogPath(trimLogSuffix(de.Name()))); err != nil {
			s.logger.WithError(err).WithField("file", de.Name()).Warn("Failed to delete expired archive")
			stats.Errors++
			continue
		}
		s.logger.WithField("file", de.Name()).Info("Deleted expired archive")
		stats.ArchivesExpired++
	}
}

// appendReclaimFooter marks the log as closed by the sweeper rather than its
// producer. Best-effort; a failure never blocks reclamation.
func (s *Sweeper) appendReclaimFooter(path string, now time.Time) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return
	}
	defer file.Close()
	fmt.Fprintf(file, "=== session end %s (reclaimed) ===\n", now.UTC().Format(footerTimeLayout))
}

func trimLogSuffix(name string) string {
	if len(name) > 4 && name[len(name)-4:] == ".log" {
		return name[:len(name)-4]
	}
	return name
}
