package store

import "errors"

// Common errors returned by the store package.
var (
	// ErrStoreClosed is returned when using a closed store.
	ErrStoreClosed = errors.New("store is closed")

	// ErrCorrupt is returned when the database fails its integrity check.
	ErrCorrupt = errors.New("store integrity check failed")

	// ErrRepairFailed is returned internally when the one-shot repair
	// could not salvage the database.
	ErrRepairFailed = errors.New("store repair failed")

	// ErrInvalidDimension is returned for unknown aggregate dimensions.
	ErrInvalidDimension = errors.New("invalid aggregate dimension")
)
