// Package lockfile provides cooperative, timeout-bounded locks over shared
// registry files. Locks are sentinel files created with an exclusive-create,
// so two processes can never both believe they hold the same lock.
package lockfile

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/grovetools/devlogs/errors"
)

const (
	// DefaultTimeout bounds how long Acquire polls before giving up.
	DefaultTimeout = 5 * time.Second
	// DefaultStaleAfter is the sentinel age beyond which the owner is
	// presumed crashed and the sentinel is reclaimed.
	DefaultStaleAfter = 30 * time.Second

	pollInterval = 10 * time.Millisecond
)

// Coordinator manages named sentinel locks under a single directory.
type Coordinator struct {
	dir        string
	timeout    time.Duration
	staleAfter time.Duration
}

// New creates a Coordinator storing sentinels under dir.
func New(dir string) *Coordinator {
	return &Coordinator{
		dir:        dir,
		timeout:    DefaultTimeout,
		staleAfter: DefaultStaleAfter,
	}
}

// WithTimeout overrides the acquisition timeout.
func (c *Coordinator) WithTimeout(d time.Duration) *Coordinator {
	c.timeout = d
	return c
}

// WithStaleAfter overrides the staleness threshold.
func (c *Coordinator) WithStaleAfter(d time.Duration) *Coordinator {
	c.staleAfter = d
	return c
}

// Acquire takes the named lock, polling until the sentinel can be created
// exclusively or the timeout elapses. On timeout a sentinel older than the
// staleness threshold is removed (its owner is presumed dead) and acquisition
// is retried once before failing.
func (c *Coordinator) Acquire(name string) error {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return errors.Wrap(err, errors.ErrCodeFilesystemError, "failed to create lock directory").
			WithDetail("dir", c.dir)
	}

	path := c.sentinelPath(name)
	if c.tryAcquireFor(path, c.timeout) {
		return nil
	}

	// Timed out. If the current holder looks crashed, reclaim and retry once.
	if c.isStale(path) {
		_ = os.Remove(path)
		if c.tryAcquireFor(path, c.timeout) {
			return nil
		}
	}

	return errors.LockTimeout(name, c.timeout.String())
}

// Release deletes the sentinel for the named lock.
func (c *Coordinator) Release(name string) error {
	if err := os.Remove(c.sentinelPath(name)); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, errors.ErrCodeFilesystemError, "failed to release lock").
			WithDetail("lock", name)
	}
	return nil
}

// WithLock runs fn while holding the named lock. The lock is released even
// if fn returns an error.
func (c *Coordinator) WithLock(name string, fn func() error) error {
	if err := c.Acquire(name); err != nil {
		return err
	}
	defer func() {
		_ = c.Release(name)
	}()
	return fn()
}

func (c *Coordinator) tryAcquireFor(path string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
		if err == nil {
			// Record the owner pid for post-mortem debugging of stale locks.
			fmt.Fprintf(file, "%d\n", os.Getpid())
			_ = file.Close()
			return true
		}
		if !os.IsExist(err) {
			return false
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(pollInterval)
	}
}

func (c *Coordinator) isStale(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) > c.staleAfter
}

func (c *Coordinator) sentinelPath(name string) string {
	return filepath.Join(c.dir, name+".lock")
}
