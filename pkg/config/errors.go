package config

import "errors"

// Common errors returned by the config package.
var (
	// ErrNoSourceDirs is returned when no source directories are specified.
	ErrNoSourceDirs = errors.New("no source directories specified")

	// ErrInvalidCycleDay is returned when the billing cycle day is outside [1, 31].
	ErrInvalidCycleDay = errors.New("invalid billing cycle day: must be between 1 and 31")

	// ErrInvalidWatchInterval is returned when watch interval is <= 0.
	ErrInvalidWatchInterval = errors.New("invalid watch interval: must be > 0")

	// ErrInvalidDebounceInterval is returned when debounce interval is <= 0.
	ErrInvalidDebounceInterval = errors.New("invalid debounce interval: must be > 0")

	// ErrInvalidBatchSize is returned when ingestion batch size is <= 0.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be > 0")

	// ErrInvalidRecomputeTimeout is returned when recompute timeout is <= 0.
	ErrInvalidRecomputeTimeout = errors.New("invalid recompute timeout: must be > 0")

	// ErrInvalidActiveWindow is returned when the active window is <= 0.
	ErrInvalidActiveWindow = errors.New("invalid active window: must be > 0")

	// ErrInvalidLogLevel is returned when log level is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level: must be debug, info, warn, or error")

	// ErrInvalidLogFormat is returned when log format is not recognized.
	ErrInvalidLogFormat = errors.New("invalid log format: must be text or json")

	// ErrConfigNotFound is returned when config file is not found.
	ErrConfigNotFound = errors.New("config file not found")

	// ErrInvalidYAML is returned when config file has invalid YAML syntax.
	ErrInvalidYAML = errors.New("invalid YAML syntax in config file")
)
