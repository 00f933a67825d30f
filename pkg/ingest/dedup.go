package ingest

import "github.com/0xmhha/usage-ledger/pkg/parser"

// Deduplicator tracks identity keys seen within a single ingestion
// pass, catching duplicates that span multiple files before they reach
// the store. The store's unique identity index remains the durable
// backstop across passes.
//
// Not safe for concurrent use; each pass creates its own instance.
type Deduplicator struct {
	seen map[string]struct{}
}

// NewDeduplicator creates an empty per-pass deduplicator.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{
		seen: make(map[string]struct{}),
	}
}

// Seen marks the record's identity key as seen and reports whether it
// was already present.
func (d *Deduplicator) Seen(rec *parser.UsageRecord) bool {
	key := rec.IdentityKey()
	if _, ok := d.seen[key]; ok {
		return true
	}
	d.seen[key] = struct{}{}
	return false
}

// Len returns the number of distinct identity keys seen this pass.
func (d *Deduplicator) Len() int {
	return len(d.seen)
}
