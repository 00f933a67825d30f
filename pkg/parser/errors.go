package parser

import "errors"

// Common errors returned by the parser package.
var (
	// ErrNotUsageLine is returned when a line is valid input but not an
	// assistant usage record (wrong type, missing usage block, or
	// malformed JSON). Callers skip these silently.
	ErrNotUsageLine = errors.New("not an assistant usage line")

	// ErrInvalidTimestamp is returned when a record timestamp is zero or
	// earlier than MinValidYear.
	ErrInvalidTimestamp = errors.New("invalid timestamp: must be a real date in year >= 2020")

	// ErrInvalidSessionID is returned when a record has an empty session ID.
	ErrInvalidSessionID = errors.New("invalid session ID: must not be empty")

	// ErrNegativeTokenCount is returned when any token count is negative.
	ErrNegativeTokenCount = errors.New("invalid token count: must be non-negative")

	// ErrFileTooLarge is returned when a file exceeds the maximum size limit.
	ErrFileTooLarge = errors.New("file size exceeds maximum limit")
)
