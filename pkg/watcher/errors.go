package watcher

import "errors"

var (
	// ErrWatcherClosed is returned when operating on a closed watcher.
	ErrWatcherClosed = errors.New("watcher is closed")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("watcher already started")

	// ErrNoWatchableDirs is returned when none of the requested
	// directories exist.
	ErrNoWatchableDirs = errors.New("no watchable directories")

	// ErrTooManyFailures is surfaced on the error channel when the
	// consecutive fsnotify error threshold is crossed.
	ErrTooManyFailures = errors.New("watcher exceeded failure threshold")
)
