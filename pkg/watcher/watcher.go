package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/0xmhha/usage-ledger/pkg/logger"
)

// fsWatcher implements Watcher on top of fsnotify.
type fsWatcher struct {
	fsw    *fsnotify.Watcher
	logger logger.Logger
	config Config

	events chan Event
	errors chan error

	mu      sync.Mutex
	started bool
	closed  bool
	stop    chan struct{}

	pendingMu sync.Mutex
	pending   map[string]*time.Timer

	failures int
}

// New creates a Watcher.
func New(cfg Config, log logger.Logger) (Watcher, error) {
	if cfg.DebounceInterval <= 0 {
		cfg.DebounceInterval = 200 * time.Millisecond
	}
	if cfg.ErrorThreshold <= 0 {
		cfg.ErrorThreshold = 5
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	return &fsWatcher{
		fsw:     fsw,
		logger:  log,
		config:  cfg,
		events:  make(chan Event, 64),
		errors:  make(chan error, 8),
		stop:    make(chan struct{}),
		pending: make(map[string]*time.Timer),
	}, nil
}

// Start implements Watcher.Start.
func (w *fsWatcher) Start(ctx context.Context, dirs []string) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrWatcherClosed
	}
	if w.started {
		w.mu.Unlock()
		return ErrAlreadyStarted
	}
	w.started = true
	w.mu.Unlock()

	added := 0
	for _, dir := range dirs {
		expanded := expandHome(dir)
		info, err := os.Stat(expanded)
		if err != nil || !info.IsDir() {
			w.logger.Warn("watch directory unavailable, skipping", "dir", expanded)
			continue
		}
		if err := w.addTree(expanded); err != nil {
			return err
		}
		added++
	}
	if added == 0 {
		return ErrNoWatchableDirs
	}

	w.logger.Info("watcher started",
		"dirs", added,
		"debounce", w.config.DebounceInterval)

	go w.loop(ctx)
	return nil
}

// Events implements Watcher.Events.
func (w *fsWatcher) Events() <-chan Event {
	return w.events
}

// Errors implements Watcher.Errors.
func (w *fsWatcher) Errors() <-chan error {
	return w.errors
}

// Close implements Watcher.Close.
func (w *fsWatcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	close(w.stop)

	w.pendingMu.Lock()
	for _, t := range w.pending {
		t.Stop()
	}
	w.pending = nil
	w.pendingMu.Unlock()

	if err := w.fsw.Close(); err != nil {
		return fmt.Errorf("close fsnotify watcher: %w", err)
	}
	return nil
}

// loop drains fsnotify channels until stopped.
func (w *fsWatcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case <-w.stop:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.handleError(err)
		}
	}
}

// handleEvent filters and debounces one raw fsnotify event. Newly
// created directories are added to the watch set so files written
// there later are seen too.
func (w *fsWatcher) handleEvent(ev fsnotify.Event) {
	w.failures = 0

	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				w.logger.Warn("failed to watch new directory",
					"dir", ev.Name, "error", err)
			}
			return
		}
	}

	if !strings.HasSuffix(ev.Name, ".jsonl") {
		return
	}

	var op Op
	switch {
	case ev.Op&fsnotify.Create != 0:
		op = OpCreate
	case ev.Op&fsnotify.Write != 0:
		op = OpWrite
	case ev.Op&fsnotify.Remove != 0:
		op = OpRemove
	case ev.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		return
	}

	w.debounce(Event{Path: ev.Name, Op: op, Timestamp: time.Now()})
}

// debounce delays emission until the path has been quiet for the
// configured interval. A fresh event for the same path resets the
// timer.
func (w *fsWatcher) debounce(ev Event) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	if w.pending == nil {
		return
	}
	if t, ok := w.pending[ev.Path]; ok {
		t.Stop()
	}

	w.pending[ev.Path] = time.AfterFunc(w.config.DebounceInterval, func() {
		w.mu.Lock()
		closed := w.closed
		w.mu.Unlock()
		if !closed {
			select {
			case w.events <- ev:
			default:
				w.logger.Warn("event channel full, dropping", "path", ev.Path)
			}
		}

		w.pendingMu.Lock()
		if w.pending != nil {
			delete(w.pending, ev.Path)
		}
		w.pendingMu.Unlock()
	})
}

// handleError counts consecutive failures and trips the breaker.
func (w *fsWatcher) handleError(err error) {
	w.failures++
	w.logger.Error("fsnotify error", "error", err, "consecutive", w.failures)

	out := err
	if w.failures >= w.config.ErrorThreshold {
		out = ErrTooManyFailures
	}

	select {
	case w.errors <- out:
	default:
	}
}

// addTree registers a directory and every subdirectory below it.
func (w *fsWatcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("walk error", "path", path, "error", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if addErr := w.fsw.Add(path); addErr != nil {
			w.logger.Warn("failed to add watch path", "path", path, "error", addErr)
		}
		return nil
	})
}

// expandHome expands a leading ~ to the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/"))
}
