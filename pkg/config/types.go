// Package config provides configuration management for usage-ledger.
//
// Configuration is loaded from multiple sources with the following precedence:
// 1. Environment variables
// 2. Configuration file
// 3. Default values (lowest priority)
//
// Example usage:
//
//	cfg, err := config.NewLoader("").Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Source dirs: %v\n", cfg.SourceDirs)
package config

import (
	"time"
)

// Config represents the complete application configuration.
//
// Invariants:
// - SourceDirs must have at least one directory
// - Billing.CycleDay must be in [1, 31]
// - Ingestion.WatchInterval and BatchSize must be > 0
// - Aggregation.RecomputeTimeout and ActiveWindow must be > 0.
type Config struct {
	// Directories to scan for assistant usage logs (JSONL files)
	SourceDirs []string `yaml:"source_dirs"`

	// Billing period settings
	Billing BillingConfig `yaml:"billing"`

	// Currency conversion settings
	Currency CurrencyConfig `yaml:"currency"`

	// Ingestion settings
	Ingestion IngestionConfig `yaml:"ingestion"`

	// Aggregation settings
	Aggregation AggregationConfig `yaml:"aggregation"`

	// Storage settings
	Storage StorageConfig `yaml:"storage"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging"`
}

// BillingConfig contains billing-period settings.
type BillingConfig struct {
	// Day of month the billing period starts on (1 = calendar months)
	CycleDay int `yaml:"cycle_day"`
}

// CurrencyConfig contains currency display settings.
type CurrencyConfig struct {
	// ISO currency code used for reported costs (default USD)
	Code string `yaml:"code"`
}

// IngestionConfig contains ingestion tuning settings.
type IngestionConfig struct {
	// How often the watch command rescans for changed files
	WatchInterval time.Duration `yaml:"watch_interval"`

	// Debounce window for file-change events
	DebounceInterval time.Duration `yaml:"debounce_interval"`

	// Maximum records per store insert transaction
	BatchSize int `yaml:"batch_size"`
}

// AggregationConfig contains aggregation tuning settings.
type AggregationConfig struct {
	// Hard timeout for a background full recompute
	RecomputeTimeout time.Duration `yaml:"recompute_timeout"`

	// Window used for "currently active" detection
	ActiveWindow time.Duration `yaml:"active_window"`
}

// StorageConfig contains storage-related settings.
type StorageConfig struct {
	// Path to the BoltDB ledger file
	DBPath string `yaml:"db_path"`

	// Directory for corruption-repair backups
	BackupDir string `yaml:"backup_dir"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `yaml:"level"`

	// Log output destination (stdout, stderr, file path)
	Output string `yaml:"output"`

	// Log format (text, json)
	Format string `yaml:"format"`
}

// Validate checks if the configuration satisfies all invariants.
//
// Returns an error if any invariant is violated:
//   - No source directories specified
//   - Billing cycle day outside [1, 31]
//   - Invalid time durations (must be > 0)
//   - Invalid batch size (must be > 0)
//   - Invalid log level or format
//
// Thread-safety: This method is read-only and thread-safe.
func (c *Config) Validate() error {
	if len(c.SourceDirs) == 0 {
		return ErrNoSourceDirs
	}

	if c.Billing.CycleDay < 1 || c.Billing.CycleDay > 31 {
		return ErrInvalidCycleDay
	}

	if c.Ingestion.WatchInterval <= 0 {
		return ErrInvalidWatchInterval
	}
	if c.Ingestion.DebounceInterval <= 0 {
		return ErrInvalidDebounceInterval
	}
	if c.Ingestion.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}

	if c.Aggregation.RecomputeTimeout <= 0 {
		return ErrInvalidRecomputeTimeout
	}
	if c.Aggregation.ActiveWindow <= 0 {
		return ErrInvalidActiveWindow
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Logging.Level] {
		return ErrInvalidLogLevel
	}

	validFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validFormats[c.Logging.Format] {
		return ErrInvalidLogFormat
	}

	return nil
}
