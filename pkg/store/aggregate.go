package store

import (
	"encoding/json"
	"fmt"
	"sort"

	bolt "go.etcd.io/bbolt"

	"github.com/0xmhha/usage-ledger/pkg/parser"
)

// groupAcc accumulates sums for one group during an aggregate scan.
type groupAcc struct {
	sums     GroupSums
	sessions map[string]struct{}
}

// Aggregate implements Store.Aggregate.
//
// The grouping runs inside a single read transaction over the record
// cursor, so the caller never materializes the record set. Groups are
// returned sorted by key ascending.
func (s *boltStore) Aggregate(by Dimension, filter Filter) ([]GroupSums, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrStoreClosed
	}
	s.mu.RUnlock()

	keyFn, err := groupKeyFunc(by)
	if err != nil {
		return nil, err
	}

	groups := make(map[string]*groupAcc)

	err = s.db.View(func(tx *bolt.Tx) error {
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

			key := keyFn(&rec)
			g, ok := groups[key]
			if !ok {
				g = &groupAcc{
					sums:     GroupSums{Key: key},
					sessions: make(map[string]struct{}),
				}
				groups[key] = g
			}

			g.sums.CostUSD += rec.CostUSD
			g.sums.InputTokens += rec.InputTokens
			g.sums.OutputTokens += rec.OutputTokens
			g.sums.CacheCreationTokens += rec.CacheCreationTokens
			g.sums.CacheReadTokens += rec.CacheReadTokens
			g.sums.TotalTokens += rec.TotalTokens()
			g.sums.RecordCount++
			g.sessions[rec.SessionID] = struct{}{}

			if g.sums.FirstSeen.IsZero() || rec.Timestamp.Before(g.sums.FirstSeen) {
				g.sums.FirstSeen = rec.Timestamp
			}
			if rec.Timestamp.After(g.sums.LastSeen) {
				g.sums.LastSeen = rec.Timestamp
			}
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	result := make([]GroupSums, 0, len(groups))
	for _, g := range groups {
		g.sums.SessionCount = len(g.sessions)
		result = append(result, g.sums)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Key < result[j].Key
	})

	return result, nil
}

// groupKeyFunc resolves the group key extractor for a dimension.
func groupKeyFunc(by Dimension) (func(*parser.UsageRecord) string, error) {
	switch by {
	case BySession:
		return func(r *parser.UsageRecord) string { return r.SessionID }, nil
	case ByProject:
		return func(r *parser.UsageRecord) string { return r.Project }, nil
	case ByModel:
		return func(r *parser.UsageRecord) string { return r.Model }, nil
	case ByDay:
		return func(r *parser.UsageRecord) string { return r.Timestamp.Format("2006-01-02") }, nil
	case ByMonth:
		return func(r *parser.UsageRecord) string { return r.Timestamp.Format("2006-01") }, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidDimension, by)
	}
}
