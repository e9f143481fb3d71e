package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watcher watches the active config file for changes and triggers a reload
// callback. Rapid successive writes (editors, atomic saves) are debounced.
type Watcher struct {
	watcher    *fsnotify.Watcher
	configPath string
	debounce   time.Duration
	lastChange time.Time
	mu         sync.Mutex
	logger     *logrus.Entry
	onReload   func(cfg *Config)
}

// NewWatcher creates a Watcher for the given config file path. The onReload
// callback receives the freshly parsed config; it is not called when the
// changed file fails to parse.
func NewWatcher(configPath string, debounce time.Duration, logger *logrus.Entry, onReload func(cfg *Config)) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory, not the file: editors replace files on save and
	// a watch on the old inode would go quiet after the first change.
	if err := watcher.Add(filepath.Dir(configPath)); err != nil {
		watcher.Close()
		return nil, err
	}

	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}

	return &Watcher{
		watcher:    watcher,
		configPath: configPath,
		debounce:   debounce,
		logger:     logger,
		onReload:   onReload,
	}, nil
}

// Start processes filesystem events until the context is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	defer w.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.configPath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.handleChange()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("Config watcher error")
		}
	}
}

func (w *Watcher) handleChange() {
	w.mu.Lock()
	now := time.Now()
	if now.Sub(w.lastChange) < w.debounce {
		w.mu.Unlock()
		return
	}
	w.lastChange = now
	w.mu.Unlock()

	cfg, err := Load(w.configPath)
	if err != nil {
		w.logger.WithError(err).Warn("Config changed but failed to parse; keeping previous settings")
		return
	}

	w.logger.WithField("path", w.configPath).Info("Config reloaded")
	if w.onReload != nil {
		w.onReload(cfg)
	}
}
