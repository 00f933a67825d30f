// Package worker runs metric recomputations off the caller's
// goroutine. Heavy recomputes must never block a UI or request path,
// so each task gets a progress stream, a hard deadline, and
// result-or-error delivery through a Handle.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/0xmhha/usage-ledger/pkg/aggregate"
	"github.com/0xmhha/usage-ledger/pkg/logger"
)

// DefaultTimeout is the hard deadline applied to a task when the
// runner's configured timeout is zero.
const DefaultTimeout = 2 * time.Minute

// Task is one unit of offloaded work. Implementations must honor ctx
// cancellation and may call report at any time; report never blocks.
type Task func(ctx context.Context, report func(aggregate.Progress)) (*aggregate.DerivedMetrics, error)

// Handle tracks one submitted task.
type Handle struct {
	progress chan aggregate.Progress
	done     chan struct{}

	mu       sync.Mutex
	finished bool
	result   *aggregate.DerivedMetrics
	err      error
}

// Progress returns the task's progress stream. The channel is closed
// when the task finishes. Slow consumers lose updates rather than
// stalling the task.
func (h *Handle) Progress() <-chan aggregate.Progress {
	return h.progress
}

// Done returns a channel closed when the task has finished.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the task finishes or ctx is cancelled.
func (h *Handle) Wait(ctx context.Context) (*aggregate.DerivedMetrics, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.done:
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result, h.err
}

// emit forwards one progress update. Updates are dropped when the
// consumer is behind or the handle has already resolved; an abandoned
// task may keep reporting after a timeout.
func (h *Handle) emit(p aggregate.Progress) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.finished {
		return
	}
	select {
	case h.progress <- p:
	default:
	}
}

func (h *Handle) finish(result *aggregate.DerivedMetrics, err error) {
	h.mu.Lock()
	h.result = result
	h.err = err
	h.finished = true
	close(h.progress)
	close(h.done)
	h.mu.Unlock()
}

// Runner executes tasks one at a time with a hard deadline each.
type Runner struct {
	timeout time.Duration
	logger  logger.Logger

	mu     sync.Mutex
	sem    chan struct{}
	closed bool
}

// NewRunner creates a Runner. A non-positive timeout means
// DefaultTimeout.
func NewRunner(timeout time.Duration, log logger.Logger) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{
		timeout: timeout,
		logger:  log,
		sem:     make(chan struct{}, 1),
	}
}

// Submit schedules a task and returns immediately with its Handle.
//
// Tasks run serially. When the deadline passes the handle resolves to
// ErrComputeTimeout even if the task goroutine is still unwinding; the
// abandoned goroutine's eventual result is discarded.
func (r *Runner) Submit(ctx context.Context, task Task) (*Handle, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRunnerClosed
	}
	r.mu.Unlock()

	h := &Handle{
		progress: make(chan aggregate.Progress, 16),
		done:     make(chan struct{}),
	}

	go r.run(ctx, task, h)
	return h, nil
}

// Close rejects further submissions. Running tasks finish normally.
func (r *Runner) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

func (r *Runner) run(ctx context.Context, task Task, h *Handle) {
	select {
	case r.sem <- struct{}{}:
		defer func() { <-r.sem }()
	case <-ctx.Done():
		h.finish(nil, ctx.Err())
		return
	}

	taskCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type outcome struct {
		result *aggregate.DerivedMetrics
		err    error
	}
	out := make(chan outcome, 1)

	start := time.Now()
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				out <- outcome{err: fmt.Errorf("task panicked: %v", rec)}
			}
		}()
		result, err := task(taskCtx, h.emit)
		out <- outcome{result: result, err: err}
	}()

	select {
	case o := <-out:
		if o.err != nil {
			r.logger.Warn("task failed",
				"elapsed", time.Since(start),
				"error", o.err)
		} else {
			r.logger.Debug("task finished", "elapsed", time.Since(start))
		}
		h.finish(o.result, o.err)

	case <-taskCtx.Done():
		err := taskCtx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = ErrComputeTimeout
			r.logger.Error("task exceeded deadline, abandoning",
				"timeout", r.timeout)
		}
		h.finish(nil, err)
	}
}
