package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader provides methods for loading configuration from various sources.
type Loader interface {
	// Load loads configuration with the following precedence:
	// 1. Environment variables
	// 2. Configuration file
	// 3. Default values
	//
	// Returns the merged configuration or an error if validation fails.
	Load() (*Config, error)

	// LoadFromFile loads configuration from a specific file.
	LoadFromFile(path string) (*Config, error)
}

// loader implements the Loader interface.
type loader struct {
	configPath string
}

// NewLoader creates a new configuration loader.
//
// If configPath is empty, searches for config file in:
// 1. ./config.yaml (current directory)
// 2. ~/.config/usage-ledger/config.yaml.
func NewLoader(configPath string) Loader {
	return &loader{
		configPath: configPath,
	}
}

// Load implements Loader.Load.
func (l *loader) Load() (*Config, error) {
	// Start with default configuration
	cfg := Default()

	// Find config file path
	configPath := l.configPath
	if configPath == "" {
		configPath = l.findConfigFile()
	}

	// Load from file if it exists
	if configPath != "" {
		fileCfg, err := l.LoadFromFile(configPath)
		if err != nil {
			// If file is explicitly specified but can't be loaded, return error
			if l.configPath != "" {
				return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
			}
			// Otherwise, just use defaults
		} else {
			cfg = l.mergeConfigs(cfg, fileCfg)
		}
	}

	// Apply environment variable overrides
	cfg = l.applyEnvVars(cfg)

	// Validate final configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFromFile implements Loader.LoadFromFile.
func (l *loader) LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path) // nolint:gosec
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return &cfg, nil
}

// findConfigFile searches for a config file in standard locations.
//
// Returns empty string if no config file is found.
func (l *loader) findConfigFile() string {
	candidates := []string{
		"./config.yaml",
		defaultConfigPath(),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// mergeConfigs merges file configuration into default configuration.
//
// File values override defaults, but only if they are non-zero.
func (l *loader) mergeConfigs(base, override *Config) *Config {
	result := *base

	if len(override.SourceDirs) > 0 {
		result.SourceDirs = override.SourceDirs
	}

	if override.Billing.CycleDay > 0 {
		result.Billing.CycleDay = override.Billing.CycleDay
	}

	if override.Currency.Code != "" {
		result.Currency.Code = strings.ToUpper(override.Currency.Code)
	}

	if override.Ingestion.WatchInterval > 0 {
		result.Ingestion.WatchInterval = override.Ingestion.WatchInterval
	}
	if override.Ingestion.DebounceInterval > 0 {
		result.Ingestion.DebounceInterval = override.Ingestion.DebounceInterval
	}
	if override.Ingestion.BatchSize > 0 {
		result.Ingestion.BatchSize = override.Ingestion.BatchSize
	}

	if override.Aggregation.RecomputeTimeout > 0 {
		result.Aggregation.RecomputeTimeout = override.Aggregation.RecomputeTimeout
	}
	if override.Aggregation.ActiveWindow > 0 {
		result.Aggregation.ActiveWindow = override.Aggregation.ActiveWindow
	}

	if override.Storage.DBPath != "" {
		result.Storage.DBPath = override.Storage.DBPath
	}
	if override.Storage.BackupDir != "" {
		result.Storage.BackupDir = override.Storage.BackupDir
	}

	if override.Logging.Level != "" {
		result.Logging.Level = override.Logging.Level
	}
	if override.Logging.Output != "" {
		result.Logging.Output = override.Logging.Output
	}
	if override.Logging.Format != "" {
		result.Logging.Format = override.Logging.Format
	}

	return &result
}

// applyEnvVars applies environment variable overrides.
//
// Supported variables:
//   - USAGE_LEDGER_SOURCE_DIRS: colon-separated directory list
//   - USAGE_LEDGER_DB_PATH: ledger database path
//   - USAGE_LEDGER_BILLING_CYCLE_DAY: billing cycle day (1-31)
//   - USAGE_LEDGER_CURRENCY: ISO currency code
//   - USAGE_LEDGER_LOG_LEVEL: log level
//   - USAGE_LEDGER_RECOMPUTE_TIMEOUT: Go duration string
func (l *loader) applyEnvVars(cfg *Config) *Config {
	result := *cfg

	if dirs := os.Getenv("USAGE_LEDGER_SOURCE_DIRS"); dirs != "" {
		result.SourceDirs = strings.Split(dirs, ":")
	}

	if path := os.Getenv("USAGE_LEDGER_DB_PATH"); path != "" {
		result.Storage.DBPath = path
	}

	if day := os.Getenv("USAGE_LEDGER_BILLING_CYCLE_DAY"); day != "" {
		if n, err := strconv.Atoi(day); err == nil {
			result.Billing.CycleDay = n
		}
	}

	if code := os.Getenv("USAGE_LEDGER_CURRENCY"); code != "" {
		result.Currency.Code = strings.ToUpper(code)
	}

	if level := os.Getenv("USAGE_LEDGER_LOG_LEVEL"); level != "" {
		result.Logging.Level = level
	}

	if timeout := os.Getenv("USAGE_LEDGER_RECOMPUTE_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			result.Aggregation.RecomputeTimeout = d
		}
	}

	return &result
}
