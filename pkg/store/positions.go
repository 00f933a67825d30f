package store

import (
	"fmt"
	"strconv"

	bolt "go.etcd.io/bbolt"
)

// Per-file byte offsets let ingestion passes skip already-processed log
// lines. Offsets are a performance optimization only; the identity index
// remains the authoritative deduplication mechanism, so losing or
// resetting positions is always safe.

// GetPosition implements Store.GetPosition.
func (s *boltStore) GetPosition(path string) (int64, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return 0, ErrStoreClosed
	}
	s.mu.RUnlock()

	var offset int64

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketPositions).Get([]byte(path))
		if data == nil {
			// No position stored, start from beginning.
			return nil
		}

		parsed, parseErr := strconv.ParseInt(string(data), 10, 64)
		if parseErr != nil {
			return fmt.Errorf("failed to parse offset for %s: %w", path, parseErr)
		}
		offset = parsed
		return nil
	})

	if err != nil {
		return 0, err
	}

	return offset, nil
}

// SetPosition implements Store.SetPosition.
func (s *boltStore) SetPosition(path string, offset int64) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	s.mu.RUnlock()

	return s.db.Update(func(tx *bolt.Tx) error {
		data := []byte(strconv.FormatInt(offset, 10))
		if err := tx.Bucket(bucketPositions).Put([]byte(path), data); err != nil {
			return fmt.Errorf("failed to store position: %w", err)
		}
		return nil
	})
}

// ResetPositions implements Store.ResetPositions.
func (s *boltStore) ResetPositions() error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	s.mu.RUnlock()

	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketPositions); err != nil {
			return fmt.Errorf("failed to delete positions bucket: %w", err)
		}
		_, err := tx.CreateBucket(bucketPositions)
		return err
	})

	if err != nil {
		return err
	}

	s.logger.Info("file positions reset")
	return nil
}
