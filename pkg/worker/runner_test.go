package worker

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/0xmhha/usage-ledger/pkg/aggregate"
	"github.com/0xmhha/usage-ledger/pkg/logger"
)

func TestSubmit_DeliversResult(t *testing.T) {
	t.Parallel()

	r := NewRunner(time.Second, logger.Noop())
	want := &aggregate.DerivedMetrics{RecordCount: 42}

	h, err := r.Submit(context.Background(), func(_ context.Context, _ func(aggregate.Progress)) (*aggregate.DerivedMetrics, error) {
		return want, nil
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	got, err := h.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if got != want {
		t.Errorf("Wait() = %p, want %p", got, want)
	}
}

func TestSubmit_DeliversError(t *testing.T) {
	t.Parallel()

	r := NewRunner(time.Second, logger.Noop())
	boom := errors.New("boom")

	h, err := r.Submit(context.Background(), func(_ context.Context, _ func(aggregate.Progress)) (*aggregate.DerivedMetrics, error) {
		return nil, boom
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if _, err := h.Wait(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Wait() error = %v, want %v", err, boom)
	}
}

func TestProgress_StreamedAndClosed(t *testing.T) {
	t.Parallel()

	r := NewRunner(time.Second, logger.Noop())

	h, err := r.Submit(context.Background(), func(_ context.Context, report func(aggregate.Progress)) (*aggregate.DerivedMetrics, error) {
		report(aggregate.Progress{Step: "sort", Percent: 5})
		report(aggregate.Progress{Step: "done", Percent: 100})
		return &aggregate.DerivedMetrics{}, nil
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if _, err := h.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	// The buffered stream drains after completion and then closes.
	var steps []string
	for p := range h.Progress() {
		steps = append(steps, p.Step)
	}
	if len(steps) != 2 || steps[0] != "sort" || steps[1] != "done" {
		t.Errorf("steps = %v, want [sort done]", steps)
	}
}

func TestRun_Serialized(t *testing.T) {
	t.Parallel()

	r := NewRunner(time.Second, logger.Noop())

	var running, maxRunning int32
	task := func(_ context.Context, _ func(aggregate.Progress)) (*aggregate.DerivedMetrics, error) {
		n := atomic.AddInt32(&running, 1)
		for {
			prev := atomic.LoadInt32(&maxRunning)
			if n <= prev || atomic.CompareAndSwapInt32(&maxRunning, prev, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return &aggregate.DerivedMetrics{}, nil
	}

	handles := make([]*Handle, 0, 4)
	for i := 0; i < 4; i++ {
		h, err := r.Submit(context.Background(), task)
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		handles = append(handles, h)
	}
	for _, h := range handles {
		if _, err := h.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}

	if got := atomic.LoadInt32(&maxRunning); got != 1 {
		t.Errorf("max concurrent tasks = %d, want 1", got)
	}
}

func TestRun_TimeoutResolvesToComputeTimeout(t *testing.T) {
	t.Parallel()

	r := NewRunner(20*time.Millisecond, logger.Noop())

	h, err := r.Submit(context.Background(), func(ctx context.Context, _ func(aggregate.Progress)) (*aggregate.DerivedMetrics, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if _, err := h.Wait(context.Background()); !errors.Is(err, ErrComputeTimeout) {
		t.Errorf("Wait() error = %v, want ErrComputeTimeout", err)
	}
}

func TestRun_LateReportsAfterTimeoutAreDropped(t *testing.T) {
	t.Parallel()

	r := NewRunner(20*time.Millisecond, logger.Noop())
	proceed := make(chan struct{})
	reported := make(chan struct{})

	h, err := r.Submit(context.Background(), func(ctx context.Context, report func(aggregate.Progress)) (*aggregate.DerivedMetrics, error) {
		<-ctx.Done()
		<-proceed
		// The handle has already resolved; these must be discarded.
		report(aggregate.Progress{Step: "late", Percent: 50})
		report(aggregate.Progress{Step: "late", Percent: 100})
		close(reported)
		return nil, ctx.Err()
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if _, err := h.Wait(context.Background()); !errors.Is(err, ErrComputeTimeout) {
		t.Fatalf("Wait() error = %v, want ErrComputeTimeout", err)
	}

	close(proceed)
	select {
	case <-reported:
	case <-time.After(time.Second):
		t.Fatal("abandoned task did not survive reporting after the deadline")
	}

	// The stream still terminates for consumers.
	for range h.Progress() {
	}
}

func TestRun_PanicBecomesError(t *testing.T) {
	t.Parallel()

	r := NewRunner(time.Second, logger.Noop())

	h, err := r.Submit(context.Background(), func(_ context.Context, _ func(aggregate.Progress)) (*aggregate.DerivedMetrics, error) {
		panic("kaboom")
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	_, err = h.Wait(context.Background())
	if err == nil || !strings.Contains(err.Error(), "kaboom") {
		t.Errorf("Wait() error = %v, want panic message", err)
	}
}

func TestSubmit_AfterClose(t *testing.T) {
	t.Parallel()

	r := NewRunner(time.Second, logger.Noop())
	r.Close()

	if _, err := r.Submit(context.Background(), nil); !errors.Is(err, ErrRunnerClosed) {
		t.Errorf("Submit() error = %v, want ErrRunnerClosed", err)
	}
}

func TestWait_HonorsCallerContext(t *testing.T) {
	t.Parallel()

	r := NewRunner(time.Second, logger.Noop())
	release := make(chan struct{})

	h, err := r.Submit(context.Background(), func(_ context.Context, _ func(aggregate.Progress)) (*aggregate.DerivedMetrics, error) {
		<-release
		return &aggregate.DerivedMetrics{}, nil
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := h.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() error = %v, want context.Canceled", err)
	}

	close(release)
	if _, err := h.Wait(context.Background()); err != nil {
		t.Errorf("second Wait() error = %v", err)
	}
}
