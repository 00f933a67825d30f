// Package parser provides JSONL parsing functionality for coding-assistant
// usage logs. It extracts token usage metrics from JSONL files and validates
// entries for correctness.
//
// The parser is designed to handle malformed lines gracefully: any line that
// is not an assistant message with a usage block is skipped rather than
// treated as an error, since the log format interleaves many unrelated
// record types.
//
// Example usage:
//
//	p := parser.New()
//	result, err := p.ParseFile("/path/to/session.jsonl", 0)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, rec := range result.Records {
//	    fmt.Printf("Tokens: %d\n", rec.TotalTokens())
//	}
package parser

import (
	"encoding/json"
	"fmt"
	"time"
)

// MinValidYear is the earliest year accepted for a record timestamp.
// Anything earlier is treated as corrupt (epoch dates from interrupted
// writes) and repaired with the current wall-clock time.
const MinValidYear = 2020

// ShortSessionIDLength is the display length of a shortened session id.
const ShortSessionIDLength = 8

// UsageRecord represents one accounted unit of assistant usage, built
// from a single log line.
//
// Invariant: Timestamp is a real calendar date in year >= 2020 (repaired
// otherwise, with TimestampRepaired set).
// Invariant: Token counts are non-negative.
// Invariant: TotalTokens() == Input + Output + CacheCreation + CacheRead.
//
// A record is immutable after creation; CostUSD is assigned exactly once
// by the pricing calculator before the record reaches the store.
type UsageRecord struct {
	Timestamp time.Time `json:"timestamp"`

	// SessionID is the raw session identifier from the log.
	SessionID string `json:"session_id"`

	// Model is the versioned model identifier (e.g. claude-sonnet-4).
	Model string `json:"model"`

	// Project is derived from the working directory or the file path.
	Project string `json:"project"`

	InputTokens         int `json:"input_tokens"`
	OutputTokens        int `json:"output_tokens"`
	CacheCreationTokens int `json:"cache_creation_input_tokens"`
	CacheReadTokens     int `json:"cache_read_input_tokens"`

	// CostUSD is computed from token counts and unit prices.
	// It is never trusted from the input line.
	CostUSD float64 `json:"cost_usd"`

	// Provenance.
	SourceFile string `json:"file_path"`
	UUID       string `json:"uuid"`
	MessageID  string `json:"message_id,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
	CurrentDir string `json:"cwd,omitempty"`

	// TimestampRepaired is set when the original timestamp was absent,
	// unparseable, or earlier than MinValidYear and was substituted
	// with the current wall-clock time.
	TimestampRepaired bool `json:"timestamp_repaired,omitempty"`
}

// TotalTokens returns the sum of all token categories.
func (r *UsageRecord) TotalTokens() int {
	return r.InputTokens + r.OutputTokens +
		r.CacheCreationTokens + r.CacheReadTokens
}

// ShortSessionID returns the shortened display form of the session id.
func (r *UsageRecord) ShortSessionID() string {
	if len(r.SessionID) <= ShortSessionIDLength {
		return r.SessionID
	}
	return r.SessionID[:ShortSessionIDLength]
}

// IdentityKey returns the deduplication key for this record.
//
// When both message and request ids are present the key is
// "messageID:requestID". Otherwise the key falls back to
// timestamp, session and input/output token counts, which is stable
// across re-reads of the same line.
func (r *UsageRecord) IdentityKey() string {
	if r.MessageID != "" && r.RequestID != "" {
		return r.MessageID + ":" + r.RequestID
	}
	return fmt.Sprintf("%d|%s|%d|%d",
		r.Timestamp.UnixNano(), r.SessionID, r.InputTokens, r.OutputTokens)
}

// Validate checks if the record satisfies all invariants.
//
// Returns an error if:
//   - Timestamp is zero value or before MinValidYear
//   - SessionID is empty
//   - Any token count is negative
//
// Thread-safety: This method is read-only and thread-safe.
func (r *UsageRecord) Validate() error {
	if r.Timestamp.IsZero() || r.Timestamp.Year() < MinValidYear {
		return ErrInvalidTimestamp
	}

	if r.SessionID == "" {
		return ErrInvalidSessionID
	}

	if r.InputTokens < 0 || r.OutputTokens < 0 ||
		r.CacheCreationTokens < 0 || r.CacheReadTokens < 0 {
		return ErrNegativeTokenCount
	}

	return nil
}

// FileResult contains the outcome of parsing one file.
type FileResult struct {
	// Records are the successfully parsed usage records, in file order.
	Records []UsageRecord

	// NewOffset is the byte position after the last line read.
	NewOffset int64

	// SkippedLines counts lines that were not assistant usage records
	// (including malformed JSON). These are expected, not errors.
	SkippedLines int

	// RepairedTimestamps counts records whose timestamp was substituted
	// with the current wall-clock time.
	RepairedTimestamps int
}

// rawLine mirrors the subset of the log line schema the parser consumes.
type rawLine struct {
	Type string `json:"type"`

	// Timestamp stays raw: some writers emit numeric epochs or other
	// non-string values, which are repaired rather than rejected.
	Timestamp json.RawMessage `json:"timestamp"`

	SessionID string  `json:"sessionId"`
	CWD       string  `json:"cwd"`
	UUID      string  `json:"uuid"`
	RequestID *string `json:"requestId,omitempty"`
	Message   struct {
		ID    string    `json:"id"`
		Model string    `json:"model"`
		Usage *rawUsage `json:"usage,omitempty"`
	} `json:"message"`
}

// rawUsage uses pointers for the two mandatory counters so that their
// absence can be distinguished from an explicit zero.
type rawUsage struct {
	InputTokens              *int `json:"input_tokens"`
	OutputTokens             *int `json:"output_tokens"`
	CacheCreationInputTokens int  `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int  `json:"cache_read_input_tokens"`
}
