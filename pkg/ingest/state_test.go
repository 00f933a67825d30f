package ingest

import (
	"testing"
	"time"

	"github.com/0xmhha/usage-ledger/pkg/parser"
)

func TestState_InitialLoadAcceptsEverything(t *testing.T) {
	t.Parallel()

	st := NewState()
	if !st.IsInitialLoad {
		t.Fatal("NewState().IsInitialLoad = false, want true")
	}

	ancient := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	if !st.candidate(ancient) {
		t.Error("initial load rejected a record")
	}
}

func TestState_WatermarkFilterIsInclusive(t *testing.T) {
	t.Parallel()

	mark := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	st := stateFromWatermark(mark, true)

	if st.IsInitialLoad {
		t.Fatal("state with watermark reported initial load")
	}

	// Records at exactly the watermark pass through; the store's
	// identity index is the authority on duplicates.
	if !st.candidate(mark) {
		t.Error("record at watermark filtered out")
	}
	if !st.candidate(mark.Add(time.Second)) {
		t.Error("record after watermark filtered out")
	}
	if st.candidate(mark.Add(-time.Second)) {
		t.Error("record before watermark passed the filter")
	}
}

func TestDeduplicator(t *testing.T) {
	t.Parallel()

	ts := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	d := NewDeduplicator()

	rec := parser.UsageRecord{MessageID: "m1", RequestID: "r1", Timestamp: ts, SessionID: "s"}
	if d.Seen(&rec) {
		t.Error("first sighting reported as seen")
	}
	if !d.Seen(&rec) {
		t.Error("second sighting not reported as seen")
	}

	other := parser.UsageRecord{MessageID: "m2", RequestID: "r1", Timestamp: ts, SessionID: "s"}
	if d.Seen(&other) {
		t.Error("distinct identity reported as seen")
	}

	if d.Len() != 2 {
		t.Errorf("Len() = %d, want 2", d.Len())
	}
}
