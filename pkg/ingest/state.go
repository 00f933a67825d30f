package ingest

import "time"

// State is the explicit ingestion state owned by the Coordinator.
//
// It replaces what would otherwise be ambient process-wide globals so
// that tests can construct fresh state per case.
type State struct {
	// LastProcessedTimestamp is the high-water mark: the timestamp of
	// the most recently ingested record. Purely a performance
	// optimization; the store's identity index is the authoritative
	// deduplication.
	LastProcessedTimestamp time.Time

	// IsInitialLoad is true until the first pass completes. While set,
	// every discovered record is a candidate regardless of watermark.
	//
	// Once cleared it must never be set back to true except by an
	// explicit full reset: accidentally resetting it reintroduces
	// epoch-date corruption on partially written logs.
	IsInitialLoad bool
}

// NewState returns the state for a fresh ledger.
func NewState() State {
	return State{IsInitialLoad: true}
}

// stateFromWatermark derives state from a stored watermark.
func stateFromWatermark(watermark time.Time, found bool) State {
	if !found {
		return NewState()
	}
	return State{
		LastProcessedTimestamp: watermark,
		IsInitialLoad:          false,
	}
}

// candidate reports whether a record timestamp should be considered by
// the current pass.
//
// The comparison is inclusive: records sharing the watermark timestamp
// are passed through and left to the store's identity index, because
// multiple distinct records can legitimately share a timestamp.
func (s State) candidate(ts time.Time) bool {
	if s.IsInitialLoad {
		return true
	}
	return !ts.Before(s.LastProcessedTimestamp)
}
