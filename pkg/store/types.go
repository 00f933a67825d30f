// Package store provides the durable usage-record ledger backed by BoltDB.
//
// One row is kept per usage record, keyed so that cursor scans return
// records in timestamp order. A unique index over each record's identity
// key is the durable deduplication backstop: re-inserting a batch that
// overlaps previously stored records is a silent no-op for the overlap.
// Secondary index buckets support exact session lookup and group-by
// aggregation over project, model and day without materializing the
// full record set in the caller.
//
// On detecting corruption the store attempts a one-time automatic
// repair: back up the corrupt file, salvage every readable record,
// rebuild an empty store with the correct schema, and reinsert the
// salvaged rows through the normal validated insert path. If repair
// fails the store falls back to an empty, freshly created database
// rather than failing to open.
//
// Example usage:
//
//	s, err := store.Open(store.Config{DBPath: "~/.local/share/usage-ledger/ledger.db"}, logger.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	inserted, err := s.InsertBatch(records)
package store

import (
	"time"

	"github.com/0xmhha/usage-ledger/pkg/parser"
)

// Dimension selects a group-by axis for aggregate queries.
type Dimension string

const (
	// BySession groups by raw session id.
	BySession Dimension = "session"

	// ByProject groups by derived project name.
	ByProject Dimension = "project"

	// ByModel groups by model id.
	ByModel Dimension = "model"

	// ByDay groups by calendar day (YYYY-MM-DD).
	ByDay Dimension = "day"

	// ByMonth groups by calendar month (YYYY-MM).
	ByMonth Dimension = "month"
)

// Filter restricts the records visited by scans and aggregates.
// Zero values mean "no restriction".
type Filter struct {
	Since     time.Time
	Until     time.Time
	SessionID string
	Project   string
	Model     string
}

// matches reports whether a record passes the filter.
func (f Filter) matches(rec *parser.UsageRecord) bool {
	if !f.Since.IsZero() && rec.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !rec.Timestamp.Before(f.Until) {
		return false
	}
	if f.SessionID != "" && rec.SessionID != f.SessionID {
		return false
	}
	if f.Project != "" && rec.Project != f.Project {
		return false
	}
	if f.Model != "" && rec.Model != f.Model {
		return false
	}
	return true
}

// GroupSums holds the aggregate sums for one group.
type GroupSums struct {
	Key string `json:"key"`

	CostUSD             float64 `json:"cost_usd"`
	InputTokens         int     `json:"input_tokens"`
	OutputTokens        int     `json:"output_tokens"`
	CacheCreationTokens int     `json:"cache_creation_tokens"`
	CacheReadTokens     int     `json:"cache_read_tokens"`
	TotalTokens         int     `json:"total_tokens"`
	RecordCount         int     `json:"record_count"`
	SessionCount        int     `json:"session_count"`

	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// Store is the durable usage ledger.
//
// All mutating operations are transactional. Implementations are safe
// for concurrent use; writers are serialized by the underlying database.
type Store interface {
	// InsertBatch inserts records in one transaction, silently skipping
	// records whose identity key is already present.
	//
	// Returns the number of records actually inserted. Safe to call
	// repeatedly with overlapping batches (idempotent).
	InsertBatch(records []parser.UsageRecord) (int, error)

	// LastTimestamp returns the high-water mark: the timestamp of the
	// most recently ingested record. The boolean is false when the
	// store is empty.
	LastTimestamp() (time.Time, bool, error)

	// ScanAll returns every record ordered by timestamp ascending.
	ScanAll() ([]parser.UsageRecord, error)

	// Scan returns records passing the filter, timestamp ascending.
	Scan(filter Filter) ([]parser.UsageRecord, error)

	// RecentRecords returns records with timestamps within the given
	// window before now, timestamp ascending. Used for live-activity
	// detection.
	RecentRecords(now time.Time, within time.Duration) ([]parser.UsageRecord, error)

	// Aggregate computes grouped sums over one dimension, pushed down
	// into the store's scan rather than materializing records.
	Aggregate(by Dimension, filter Filter) ([]GroupSums, error)

	// CountRecords returns the total number of stored records.
	CountRecords() (int, error)

	// ClearAll removes every record, index entry, position and the
	// watermark. Used by the explicit full-reset operation only.
	ClearAll() error

	// GetPosition returns the last processed byte offset for a source
	// file (0 when unknown).
	GetPosition(path string) (int64, error)

	// SetPosition stores the byte offset for a source file.
	SetPosition(path string, offset int64) error

	// ResetPositions forgets all per-file offsets, forcing the next
	// ingestion pass to re-read every file from the beginning.
	ResetPositions() error

	// Close closes the underlying database.
	Close() error
}

// Config contains store configuration.
type Config struct {
	// DBPath is the BoltDB file path.
	DBPath string

	// BackupDir receives pre-repair backups of corrupt databases.
	// Defaults to the database's directory.
	BackupDir string

	// Timeout is the database open timeout (default: 1 second).
	Timeout time.Duration
}
