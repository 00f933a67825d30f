// Package watcher provides debounced filesystem notifications for the
// JSONL source trees. It exists to drive watch-mode ingestion: a burst
// of writes to one file collapses into a single event after the
// debounce interval.
package watcher

import (
	"context"
	"time"
)

// Op describes what happened to a watched path.
type Op string

const (
	OpCreate Op = "create"
	OpWrite  Op = "write"
	OpRemove Op = "remove"
	OpRename Op = "rename"
)

// Event is a debounced change notification for one JSONL file.
type Event struct {
	Path      string
	Op        Op
	Timestamp time.Time
}

// Config holds watcher tuning knobs.
type Config struct {
	// DebounceInterval is how long a path must stay quiet before its
	// pending event fires. Zero means 200ms.
	DebounceInterval time.Duration

	// ErrorThreshold opens the breaker after this many consecutive
	// fsnotify errors. Zero means 5.
	ErrorThreshold int
}

// Watcher monitors directory trees for JSONL changes.
type Watcher interface {
	// Start begins watching the given directories recursively.
	// Directories that do not exist are skipped with a warning.
	Start(ctx context.Context, dirs []string) error

	// Events returns the debounced event stream.
	Events() <-chan Event

	// Errors returns the error stream.
	Errors() <-chan error

	// Close stops watching and releases resources. Safe to call twice.
	Close() error
}
