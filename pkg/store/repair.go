package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/0xmhha/usage-ledger/pkg/logger"
	"github.com/0xmhha/usage-ledger/pkg/parser"
)

// repairAttempted guards the automatic repair path: it runs at most once
// per process lifetime to avoid repair loops on persistently bad media.
var repairAttempted atomic.Bool

// repairDatabase handles a database that failed to open or verify.
//
// Steps:
//  1. Back up the corrupt file into the configured backup directory.
//  2. Salvage every record still readable from the old file.
//  3. Rebuild an empty database with the correct schema.
//  4. Reinsert salvaged records through the normal validated insert
//     path, repairing invalid timestamps instead of restoring them.
//
// If any step fails (or a repair already ran this process), the corrupt
// file is discarded and a fresh empty database is returned. Positions
// and the watermark are intentionally not salvaged: with empty
// positions, the next ingestion pass re-reads everything and the
// identity index deduplicates.
func repairDatabase(path string, cfg Config, log logger.Logger) (*bolt.DB, error) {
	if !repairAttempted.CompareAndSwap(false, true) {
		log.Error("repair already attempted this process, starting fresh",
			"path", path)
		return freshDatabase(path, cfg.Timeout)
	}

	log.Warn("attempting one-shot ledger repair", "path", path)

	if err := backupFile(path, cfg.BackupDir); err != nil {
		log.Error("failed to back up corrupt ledger, starting fresh",
			"path", path,
			"error", err)
		return freshDatabase(path, cfg.Timeout)
	}

	salvaged := salvageRecords(path, cfg.Timeout, log)

	db, err := freshDatabase(path, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRepairFailed, err)
	}

	if len(salvaged) > 0 {
		restored, insertErr := reinsertSalvaged(db, salvaged)
		if insertErr != nil {
			log.Error("failed to restore salvaged records",
				"salvaged", len(salvaged),
				"error", insertErr)
		} else {
			log.Info("ledger repaired",
				"salvaged", len(salvaged),
				"restored", restored)
		}
	} else {
		log.Warn("no records could be salvaged from corrupt ledger")
	}

	return db, nil
}

// backupFile copies the corrupt database into the backup directory.
func backupFile(path, backupDir string) error {
	if err := os.MkdirAll(backupDir, 0700); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	name := fmt.Sprintf("ledger-corrupt-%s-%s.db",
		time.Now().Format("20060102-150405"), uuid.NewString()[:8])
	dst := filepath.Join(backupDir, name)

	src, err := os.Open(path) // nolint:gosec
	if err != nil {
		return fmt.Errorf("failed to open corrupt file: %w", err)
	}
	defer func() { _ = src.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0600) // nolint:gosec
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, src); err != nil {
		return fmt.Errorf("failed to copy backup: %w", err)
	}

	return nil
}

// salvageRecords reads whatever records remain readable in the corrupt
// database. BoltDB can panic on badly damaged pages, so the walk runs
// under a recover guard; whatever was collected before the failure is
// still returned.
func salvageRecords(path string, timeout time.Duration, log logger.Logger) (salvaged []parser.UsageRecord) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("salvage aborted by panic", "panic", r)
		}
	}()

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout:  timeout,
		ReadOnly: true,
	})
	if err != nil {
		log.Warn("corrupt ledger not readable, nothing to salvage", "error", err)
		return nil
	}
	defer func() { _ = db.Close() }()

	_ = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var rec parser.UsageRecord
			if unmarshalErr := json.Unmarshal(v, &rec); unmarshalErr != nil {
				// Skip unreadable rows, keep going.
				return nil
			}
			salvaged = append(salvaged, rec)
			return nil
		})
	})

	return salvaged
}

// freshDatabase replaces the file at path with an empty database.
func freshDatabase(path string, timeout time.Duration) (*bolt.DB, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to remove corrupt file: %w", err)
	}
	return openAndVerify(path, timeout)
}

// reinsertSalvaged pushes salvaged records back through the validated
// insert path. Records with invalid timestamps are repaired with the
// current time rather than blindly restored; records failing validation
// for any other reason are dropped.
func reinsertSalvaged(db *bolt.DB, salvaged []parser.UsageRecord) (int, error) {
	now := time.Now()

	clean := make([]parser.UsageRecord, 0, len(salvaged))
	for i := range salvaged {
		rec := salvaged[i]
		if err := rec.Validate(); err != nil {
			if errors.Is(err, parser.ErrInvalidTimestamp) {
				rec.Timestamp = now
				rec.TimestampRepaired = true
				if rec.Validate() != nil {
					continue
				}
			} else {
				continue
			}
		}
		clean = append(clean, rec)
	}

	// Reuse the normal insert path via a throwaway store wrapper.
	tmp := &boltStore{db: db, logger: logger.Noop()}
	return tmp.InsertBatch(clean)
}
