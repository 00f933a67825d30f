package worker

import "errors"

var (
	// ErrComputeTimeout is returned when a task exceeds the hard
	// timeout and is abandoned.
	ErrComputeTimeout = errors.New("computation timed out")

	// ErrRunnerClosed is returned when submitting to a closed runner.
	ErrRunnerClosed = errors.New("runner is closed")
)
