package config

import (
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sellerdesk/walink/internal/logging"
)

// Watcher monitors the config file for changes and re-applies the settings
// that are safe to change at runtime (currently the log level).
type Watcher struct {
	watcher      *fsnotify.Watcher
	path         string
	debounce     time.Duration
	onReload     func(*Config)
	stopCh       chan struct{}
	mu           sync.Mutex
	pendingTimer *time.Timer
}

// NewWatcher creates a watcher for the given config path. onReload is called
// with the freshly loaded config after each (debounced) change.
func NewWatcher(path string, onReload func(*Config)) (*Watcher, error) {
	if path == "" {
		return nil, errors.New("no config file to watch")
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory: editors replace the file on save, which would
	// otherwise invalidate a watch on the file itself.
	if err := fsWatcher.Add(filepath.Dir(path)); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	return &Watcher{
		watcher:  fsWatcher,
		path:     path,
		debounce: 500 * time.Millisecond,
		onReload: onReload,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start begins watching for file changes.
// This spawns a goroutine internally.
func (w *Watcher) Start() {
	go w.run()
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	close(w.stopCh)
	w.watcher.Close()
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.trigger()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.L_warn("config: watcher error", "error", err)
		case <-w.stopCh:
			return
		}
	}
}

// trigger schedules a debounced reload so editor save bursts reload once.
func (w *Watcher) trigger() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pendingTimer != nil {
		w.pendingTimer.Stop()
	}
	w.pendingTimer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	cfg, _, err := Load()
	if err != nil {
		logging.L_warn("config: reload failed, keeping previous settings", "error", err)
		return
	}
	logging.L_info("config: reloaded", "path", w.path)
	if w.onReload != nil {
		w.onReload(cfg)
	}
}
