package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/0xmhha/usage-ledger/pkg/logger"
	"github.com/0xmhha/usage-ledger/pkg/parser"
)

// boltStore implements the Store interface using BoltDB.
type boltStore struct {
	db     *bolt.DB
	logger logger.Logger
	config Config

	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) the ledger database.
//
// Parameters:
//   - cfg: Store configuration
//   - log: Logger instance
//
// The database is integrity-checked on open. A corrupt database triggers
// the one-shot automatic repair path; if repair fails, a fresh empty
// database is created instead of returning an error.
func Open(cfg Config, log logger.Logger) (Store, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Second
	}

	dbPath := expandHome(cfg.DBPath)
	if cfg.BackupDir == "" {
		cfg.BackupDir = filepath.Dir(dbPath)
	} else {
		cfg.BackupDir = expandHome(cfg.BackupDir)
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := openAndVerify(dbPath, cfg.Timeout)
	if err != nil {
		log.Warn("ledger database failed to open cleanly",
			"path", dbPath,
			"error", err)

		db, err = repairDatabase(dbPath, cfg, log)
		if err != nil {
			return nil, fmt.Errorf("failed to open ledger database: %w", err)
		}
	}

	log.Info("ledger store opened", "db_path", dbPath)

	return &boltStore{
		db:     db,
		logger: log,
		config: cfg,
	}, nil
}

// openAndVerify opens the database, initializes the schema and runs a
// full integrity check. Any failure closes the handle and returns an
// error so the caller can decide whether to repair.
func openAndVerify(path string, timeout time.Duration) (*bolt.DB, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("bolt open: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, createErr := tx.CreateBucketIfNotExists(name); createErr != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, createErr)
			}
		}
		return tx.Bucket(bucketMeta).Put(metaSchemaVersion, []byte(schemaVersion))
	}); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := checkIntegrity(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// checkIntegrity runs BoltDB's page-level consistency check.
func checkIntegrity(db *bolt.DB) error {
	return db.View(func(tx *bolt.Tx) error {
		for checkErr := range tx.Check() {
			return fmt.Errorf("%w: %v", ErrCorrupt, checkErr)
		}
		return nil
	})
}

// InsertBatch implements Store.InsertBatch.
func (s *boltStore) InsertBatch(records []parser.UsageRecord) (int, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return 0, ErrStoreClosed
	}
	s.mu.RUnlock()

	if len(records) == 0 {
		return 0, nil
	}

	inserted := 0
	var maxTS time.Time

	err := s.db.Update(func(tx *bolt.Tx) error {
		recs := tx.Bucket(bucketRecords)
		identity := tx.Bucket(bucketIdentity)
		sessions := tx.Bucket(bucketSessions)
		projects := tx.Bucket(bucketProjects)
		models := tx.Bucket(bucketModels)
		days := tx.Bucket(bucketDays)

		for i := range records {
			rec := &records[i]

			idKey := []byte(rec.IdentityKey())
			if identity.Get(idKey) != nil {
				// Duplicate by identity; expected, not an error.
				continue
			}

			recKey := recordKey(rec)
			if recs.Get(recKey) != nil {
				// Composite (timestamp, session, file) collision.
				continue
			}

			data, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("failed to marshal record: %w", err)
			}

			if err := recs.Put(recKey, data); err != nil {
				return fmt.Errorf("failed to store record: %w", err)
			}
			if err := identity.Put(idKey, recKey); err != nil {
				return fmt.Errorf("failed to store identity index: %w", err)
			}
			if err := sessions.Put(indexKey(rec.SessionID, recKey), recKey); err != nil {
				return fmt.Errorf("failed to store session index: %w", err)
			}
			if err := projects.Put(indexKey(rec.Project, recKey), recKey); err != nil {
				return fmt.Errorf("failed to store project index: %w", err)
			}
			if err := models.Put(indexKey(rec.Model, recKey), recKey); err != nil {
				return fmt.Errorf("failed to store model index: %w", err)
			}
			day := rec.Timestamp.Format("2006-01-02")
			if err := days.Put(indexKey(day, recKey), recKey); err != nil {
				return fmt.Errorf("failed to store day index: %w", err)
			}

			inserted++
			if rec.Timestamp.After(maxTS) {
				maxTS = rec.Timestamp
			}
		}

		if inserted > 0 {
			return advanceWatermark(tx, maxTS)
		}
		return nil
	})

	if err != nil {
		return 0, err
	}

	s.logger.Debug("batch inserted",
		"candidates", len(records),
		"inserted", inserted,
		"duplicates", len(records)-inserted)

	return inserted, nil
}

// advanceWatermark moves the stored watermark forward, never backward.
func advanceWatermark(tx *bolt.Tx, ts time.Time) error {
	meta := tx.Bucket(bucketMeta)

	if data := meta.Get(metaWatermark); data != nil {
		current, err := time.Parse(time.RFC3339Nano, string(data))
		if err == nil && !ts.After(current) {
			return nil
		}
	}

	return meta.Put(metaWatermark, []byte(ts.Format(time.RFC3339Nano)))
}

// LastTimestamp implements Store.LastTimestamp.
func (s *boltStore) LastTimestamp() (time.Time, bool, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return time.Time{}, false, ErrStoreClosed
	}
	s.mu.RUnlock()

	var ts time.Time
	var ok bool

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get(metaWatermark)
		if data == nil {
			return nil
		}
		parsed, parseErr := time.Parse(time.RFC3339Nano, string(data))
		if parseErr != nil {
			return fmt.Errorf("failed to parse watermark: %w", parseErr)
		}
		ts = parsed
		ok = true
		return nil
	})

	return ts, ok, err
}

// ScanAll implements Store.ScanAll.
func (s *boltStore) ScanAll() ([]parser.UsageRecord, error) {
	return s.Scan(Filter{})
}

// Scan implements Store.Scan.
func (s *boltStore) Scan(filter Filter) ([]parser.UsageRecord, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrStoreClosed
	}
	s.mu.RUnlock()

	var records []parser.UsageRecord

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketRecords).Cursor()

		var k, v []byte
		if !filter.Since.IsZero() {
			k, v = c.Seek(timePrefix(filter.Since.UnixNano()))
		} else {
			k, v = c.First()
		}

		for ; k != nil; k, v = c.Next() {
			var rec parser.UsageRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("%w: unreadable record at key %q: %v", ErrCorrupt, k, err)
			}
			if !filter.Until.IsZero() && !rec.Timestamp.Before(filter.Until) {
				break
			}
			if !filter.matches(&rec) {
				continue
			}
			records = append(records, rec)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	return records, nil
}

// RecentRecords implements Store.RecentRecords.
func (s *boltStore) RecentRecords(now time.Time, within time.Duration) ([]parser.UsageRecord, error) {
	return s.Scan(Filter{Since: now.Add(-within)})
}

// CountRecords implements Store.CountRecords.
func (s *boltStore) CountRecords() (int, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return 0, ErrStoreClosed
	}
	s.mu.RUnlock()

	count := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(bucketRecords).Stats().KeyN
		return nil
	})

	return count, err
}

// ClearAll implements Store.ClearAll.
func (s *boltStore) ClearAll() error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	s.mu.RUnlock()

	err := s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if err := tx.DeleteBucket(name); err != nil {
				return fmt.Errorf("failed to delete bucket %s: %w", name, err)
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return fmt.Errorf("failed to recreate bucket %s: %w", name, err)
			}
		}
		return tx.Bucket(bucketMeta).Put(metaSchemaVersion, []byte(schemaVersion))
	})

	if err != nil {
		return err
	}

	s.logger.Info("ledger cleared")
	return nil
}

// Close implements Store.Close.
func (s *boltStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	return s.db.Close()
}

// expandHome expands a leading ~ in a path.
func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
