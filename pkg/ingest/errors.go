package ingest

import "errors"

// Common errors returned by the ingest package.
var (
	// ErrStoreRequired is returned when a Coordinator is built without a store.
	ErrStoreRequired = errors.New("store is required")

	// ErrPassInFlight is returned when a full reset is requested while
	// an ingestion pass is running.
	ErrPassInFlight = errors.New("ingestion pass in flight")
)
