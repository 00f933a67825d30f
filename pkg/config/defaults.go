package config

import (
	"os"
	"path/filepath"
	"time"
)

// Default returns a configuration with sensible default values.
//
// Defaults are tuned for a single-user ledger over local Claude Code
// log directories.
func Default() *Config {
	return &Config{
		SourceDirs: defaultSourceDirs(),
		Billing: BillingConfig{
			CycleDay: 1,
		},
		Currency: CurrencyConfig{
			Code: "USD",
		},
		Ingestion: IngestionConfig{
			WatchInterval:    2 * time.Second,
			DebounceInterval: 200 * time.Millisecond,
			BatchSize:        500,
		},
		Aggregation: AggregationConfig{
			RecomputeTimeout: 2 * time.Minute,
			ActiveWindow:     10 * time.Minute,
		},
		Storage: StorageConfig{
			DBPath:    defaultDBPath(),
			BackupDir: defaultBackupDir(),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stderr",
			Format: "text",
		},
	}
}

// defaultSourceDirs returns the standard Claude Code log locations.
//
// Both the legacy (~/.claude) and XDG (~/.config/claude) layouts are
// included; missing directories are skipped at discovery time.
func defaultSourceDirs() []string {
	return []string{
		"~/.claude/projects",
		"~/.config/claude/projects",
	}
}

// defaultDBPath returns the default ledger database location.
func defaultDBPath() string {
	return filepath.Join(dataDir(), "ledger.db")
}

// defaultBackupDir returns the default repair-backup directory.
func defaultBackupDir() string {
	return filepath.Join(dataDir(), "backups")
}

// defaultConfigPath returns the default config file location.
func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "usage-ledger", "config.yaml")
}

// dataDir returns the base data directory for usage-ledger.
func dataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share", "usage-ledger")
}
