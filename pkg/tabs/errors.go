package tabs

import "errors"

var (
	// ErrUnknownView is returned for a view name outside the known set.
	ErrUnknownView = errors.New("unknown view")

	// ErrUnknownFormat is returned for an unsupported export format.
	ErrUnknownFormat = errors.New("unknown export format")

	// ErrFacadeClosed is returned when using a closed facade.
	ErrFacadeClosed = errors.New("facade is closed")
)
