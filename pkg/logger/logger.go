// Package logger provides structured logging for usage-ledger.
//
// Components receive a Logger at construction and scope it with
// WithComponent, so every line carries the subsystem it came from:
//
//	log := logger.New(logger.Config{Level: "info", Output: "stderr", Format: "text"})
//	storeLog := logger.WithComponent(log, "store")
//	storeLog.Info("ingestion pass complete", "inserted", 42, "duplicates", 3)
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// componentKey is the field WithComponent attaches subsystem names under.
const componentKey = "component"

// Logger provides structured logging with levels and fields.
type Logger interface {
	// Debug logs a debug message with optional key-value pairs.
	Debug(msg string, keysAndValues ...interface{})

	// Info logs an informational message with optional key-value pairs.
	Info(msg string, keysAndValues ...interface{})

	// Warn logs a warning message with optional key-value pairs.
	Warn(msg string, keysAndValues ...interface{})

	// Error logs an error message with optional key-value pairs.
	Error(msg string, keysAndValues ...interface{})

	// With returns a new logger with additional context fields.
	With(keysAndValues ...interface{}) Logger
}

// Config contains logger configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string

	// Output is the destination (stdout, stderr, or file path).
	Output string

	// Format is the output format (text, json).
	Format string
}

// logger implements the Logger interface over slog.
type logger struct {
	slogger *slog.Logger
}

// New creates a logger from the configuration. An unopenable output
// falls back to stderr; an unknown level or format falls back to info
// and text, so a bad logging section never takes the process down.
func New(cfg Config) Logger {
	sink, err := openSink(cfg.Output)
	if err != nil {
		sink = os.Stderr
	}
	return &logger{slogger: slog.New(newHandler(cfg, sink))}
}

// WithComponent returns l scoped to a named subsystem. Every record
// logged through the result carries a "component" field.
func WithComponent(l Logger, name string) Logger {
	return l.With(componentKey, name)
}

func (l *logger) Debug(msg string, keysAndValues ...interface{}) {
	l.slogger.Debug(msg, keysAndValues...)
}

func (l *logger) Info(msg string, keysAndValues ...interface{}) {
	l.slogger.Info(msg, keysAndValues...)
}

func (l *logger) Warn(msg string, keysAndValues ...interface{}) {
	l.slogger.Warn(msg, keysAndValues...)
}

func (l *logger) Error(msg string, keysAndValues ...interface{}) {
	l.slogger.Error(msg, keysAndValues...)
}

func (l *logger) With(keysAndValues ...interface{}) Logger {
	return &logger{slogger: l.slogger.With(keysAndValues...)}
}

// newHandler builds the slog handler for the configured format and level.
func newHandler(cfg Config, sink io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.NewJSONHandler(sink, opts)
	}
	return slog.NewTextHandler(sink, opts)
}

// parseLevel converts a string log level to slog.Level. Unrecognized
// levels default to info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// openSink resolves an output destination. "stdout" and "stderr" map to
// the process streams; anything else is opened as a file for appending.
func openSink(output string) (io.Writer, error) {
	switch strings.ToLower(output) {
	case "stdout":
		return os.Stdout, nil
	case "stderr", "":
		return os.Stderr, nil
	default:
		// #nosec G304: output path comes from trusted config
		f, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600) // nolint:gosec
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", output, err)
		}
		return f, nil
	}
}

// Default returns an info-level text logger on stderr.
func Default() Logger {
	return New(Config{Level: "info", Output: "stderr", Format: "text"})
}

// Noop returns a logger that discards all log messages.
//
// Useful for testing or when logging should be disabled.
func Noop() Logger {
	return &logger{
		slogger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}
