package aggregate

import (
	"time"

	"github.com/0xmhha/usage-ledger/pkg/parser"
)

// liveBucketCount is how many fixed-size buckets the live view covers
// (12 x 5 minutes = one hour of history).
const liveBucketCount = 12

// buildLive computes activity-window statistics over the trailing hour.
//
// Records are assumed sorted by timestamp ascending.
func buildLive(records []parser.UsageRecord, now time.Time, activeWindow time.Duration) LiveMetrics {
	live := LiveMetrics{
		Buckets: make([]ActivityBucket, liveBucketCount),
	}

	windowStart := now.Add(-liveBucketCount * ActivityBucketDuration)
	for i := range live.Buckets {
		live.Buckets[i].Start = windowStart.Add(time.Duration(i) * ActivityBucketDuration)
	}

	activeSince := now.Add(-activeWindow)

	for i := len(records) - 1; i >= 0; i-- {
		rec := &records[i]
		ts := rec.Timestamp

		if ts.After(live.LastRecordAt) {
			live.LastRecordAt = ts
		}
		if ts.Before(windowStart) {
			// Sorted input: everything earlier is out of range too,
			// but LastRecordAt is already settled by the first pass.
			break
		}

		idx := int(ts.Sub(windowStart) / ActivityBucketDuration)
		if idx >= 0 && idx < liveBucketCount {
			live.Buckets[idx].Records++
			live.Buckets[idx].Tokens += rec.TotalTokens()
		}

		if !ts.Before(activeSince) {
			live.IsActive = true
			live.RecordsInWindow++
			live.TokensInWindow += rec.TotalTokens()
		}
	}

	// LastRecordAt may predate the bucket window entirely.
	if live.LastRecordAt.IsZero() && len(records) > 0 {
		live.LastRecordAt = records[len(records)-1].Timestamp
	}

	return live
}
