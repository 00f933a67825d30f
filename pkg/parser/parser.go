package parser

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// MaxFileSize is the maximum allowed JSONL file size (100MB).
	// Files larger than this will be rejected to prevent memory exhaustion.
	MaxFileSize = 100 * 1024 * 1024

	// MaxLineLength is the maximum allowed line length (1MB).
	MaxLineLength = 1024 * 1024

	// assistantMessageType marks the log lines the parser consumes.
	assistantMessageType = "assistant"
)

// Parser provides methods for parsing assistant usage JSONL files.
type Parser interface {
	// ParseFile reads a JSONL file from the given offset and returns
	// the parsed records along with the new file offset.
	//
	// Parameters:
	//   - path: Path to the JSONL file
	//   - offset: Byte offset to start reading from (0 for beginning)
	//
	// Returns:
	//   - FileResult with records, new offset and skip/repair counters
	//   - Error if file cannot be read or is too large
	//
	// Lines that are not assistant usage records are counted as skipped,
	// never surfaced as errors. The returned offset can be used for
	// incremental reading.
	//
	// Thread-safety: This method is safe to call concurrently with different files.
	ParseFile(path string, offset int64) (*FileResult, error)

	// ParseLine parses a single JSONL line into a UsageRecord.
	//
	// Parameters:
	//   - line: A single line of JSONL (without newline character)
	//   - sourceFile: Path of the file the line came from (provenance)
	//
	// Returns:
	//   - Parsed UsageRecord
	//   - ErrNotUsageLine if the line should be skipped
	//
	// Thread-safety: This method is thread-safe.
	ParseLine(line, sourceFile string) (*UsageRecord, error)
}

// jsonlParser implements the Parser interface.
type jsonlParser struct {
	// now supplies wall-clock time for timestamp repair.
	now func() time.Time
}

// New creates a new Parser instance.
func New() Parser {
	return &jsonlParser{now: time.Now}
}

// NewWithClock creates a Parser with an injected clock.
//
// Used by tests that need deterministic timestamp repair.
func NewWithClock(now func() time.Time) Parser {
	return &jsonlParser{now: now}
}

// ParseFile implements Parser.ParseFile.
func (p *jsonlParser) ParseFile(path string, offset int64) (*FileResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("%w: size=%d, max=%d",
			ErrFileTooLarge, info.Size(), MaxFileSize)
	}

	// #nosec G304: path is validated by caller
	f, err := os.Open(path) // nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	// Seek to offset for incremental reading
	if offset > 0 {
		if _, seekErr := f.Seek(offset, io.SeekStart); seekErr != nil {
			return nil, fmt.Errorf("failed to seek to offset %d: %w", offset, seekErr)
		}
	}

	result := &FileResult{
		Records: make([]UsageRecord, 0, 100),
	}

	scanner := bufio.NewScanner(f)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, MaxLineLength)

	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		rec, parseErr := p.ParseLine(line, path)
		if parseErr != nil {
			result.SkippedLines++
			continue
		}

		if rec.TimestampRepaired {
			result.RepairedTimestamps++
		}

		result.Records = append(result.Records, *rec)
	}

	if scanErr := scanner.Err(); scanErr != nil {
		return result, fmt.Errorf("scanner error at line %d: %w", lineNum, scanErr)
	}

	// Get current position as new offset
	newOffset, seekErr := f.Seek(0, io.SeekCurrent)
	if seekErr != nil {
		newOffset = info.Size()
	}
	result.NewOffset = newOffset

	return result, nil
}

// ParseLine implements Parser.ParseLine.
func (p *jsonlParser) ParseLine(line, sourceFile string) (*UsageRecord, error) {
	if strings.TrimSpace(line) == "" {
		return nil, ErrNotUsageLine
	}

	var raw rawLine
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return nil, ErrNotUsageLine
	}

	// Only assistant messages with a usage block are accounted.
	if raw.Type != assistantMessageType {
		return nil, ErrNotUsageLine
	}
	if raw.Message.Usage == nil ||
		raw.Message.Usage.InputTokens == nil ||
		raw.Message.Usage.OutputTokens == nil {
		return nil, ErrNotUsageLine
	}

	ts, repaired := p.normalizeTimestamp(raw.Timestamp)

	rec := &UsageRecord{
		Timestamp:           ts,
		SessionID:           raw.SessionID,
		Model:               raw.Message.Model,
		Project:             deriveProject(raw.CWD, sourceFile),
		InputTokens:         *raw.Message.Usage.InputTokens,
		OutputTokens:        *raw.Message.Usage.OutputTokens,
		CacheCreationTokens: raw.Message.Usage.CacheCreationInputTokens,
		CacheReadTokens:     raw.Message.Usage.CacheReadInputTokens,
		SourceFile:          sourceFile,
		UUID:                raw.UUID,
		MessageID:           raw.Message.ID,
		CurrentDir:          raw.CWD,
		TimestampRepaired:   repaired,
	}

	if raw.RequestID != nil {
		rec.RequestID = *raw.RequestID
	}

	// Some log versions omit the per-line uuid; generate one so the
	// record still carries stable provenance.
	if rec.UUID == "" {
		rec.UUID = uuid.NewString()
	}

	// Session id can be missing on partial lines; derive a stand-in from
	// the file name so the record is still attributable.
	if rec.SessionID == "" {
		rec.SessionID = sessionIDFromPath(sourceFile)
	}

	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return rec, nil
}

// normalizeTimestamp parses a raw timestamp value, substituting the
// current wall-clock time when it is absent, not a string, unparseable,
// or earlier than MinValidYear.
//
// The second return value reports whether a repair happened.
func (p *jsonlParser) normalizeTimestamp(raw json.RawMessage) (time.Time, bool) {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		// Missing, null, or a non-string value (numeric epochs).
		return p.now(), true
	}
	if s == "" {
		return p.now(), true
	}

	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		// Some writers emit fractional seconds without a zone.
		ts, err = time.Parse("2006-01-02T15:04:05.999999999", s)
		if err != nil {
			return p.now(), true
		}
		ts = ts.UTC()
	}

	if ts.Year() < MinValidYear {
		return p.now(), true
	}

	return ts, false
}

// deriveProject derives a project name from the working directory,
// falling back to the log file's parent directory.
func deriveProject(cwd, sourceFile string) string {
	if cwd != "" {
		if base := filepath.Base(cwd); base != "." && base != string(filepath.Separator) {
			return base
		}
	}

	if sourceFile != "" {
		dir := filepath.Base(filepath.Dir(sourceFile))
		if dir != "." && dir != string(filepath.Separator) {
			return decodeProjectDir(dir)
		}
	}

	return "unknown"
}

// decodeProjectDir converts the log layout's encoded project directory
// (path separators replaced with dashes) back to a readable name.
func decodeProjectDir(dir string) string {
	trimmed := strings.TrimLeft(dir, "-")
	if trimmed == "" {
		return dir
	}

	// Keep only the last path component for display.
	if idx := strings.LastIndex(trimmed, "-"); idx >= 0 && idx < len(trimmed)-1 {
		return trimmed[idx+1:]
	}
	return trimmed
}

// sessionIDFromPath derives a session id from the file name
// (session files are named <uuid>.jsonl).
func sessionIDFromPath(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}
