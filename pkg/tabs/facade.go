package tabs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/0xmhha/usage-ledger/pkg/aggregate"
	"github.com/0xmhha/usage-ledger/pkg/ingest"
	"github.com/0xmhha/usage-ledger/pkg/logger"
	"github.com/0xmhha/usage-ledger/pkg/parser"
	"github.com/0xmhha/usage-ledger/pkg/store"
	"github.com/0xmhha/usage-ledger/pkg/worker"
)

// Config wires the facade's collaborators.
type Config struct {
	Store       store.Store
	Coordinator *ingest.Coordinator
	Engine      *aggregate.Engine
	Runner      *worker.Runner

	// Currency, BillingCycleDay and ActiveWindow parameterize every
	// computation triggered through the facade.
	Currency        string
	BillingCycleDay int
	ActiveWindow    time.Duration

	// Clock overrides the wall clock (tests). Nil means time.Now.
	Clock func() time.Time
}

// Facade serves tab views from a cached metrics snapshot.
//
// All methods are safe for concurrent use; a refresh holds the lock so
// concurrent readers of a stale view share one recompute.
type Facade struct {
	config Config
	logger logger.Logger

	mu      sync.Mutex
	metrics *aggregate.DerivedMetrics
	closed  bool

	// snapshotAt is when the shared snapshot was last rebuilt;
	// refreshedAt tracks, per view, the snapshot time that view last
	// validated against its own staleness window.
	snapshotAt  time.Time
	refreshedAt map[ViewName]time.Time
}

// New creates a Facade.
func New(cfg Config, log logger.Logger) (*Facade, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("facade: store is required")
	}
	if cfg.Coordinator == nil {
		return nil, fmt.Errorf("facade: coordinator is required")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("facade: engine is required")
	}
	if cfg.Runner == nil {
		return nil, fmt.Errorf("facade: runner is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Facade{
		config:      cfg,
		logger:      log,
		refreshedAt: make(map[ViewName]time.Time),
	}, nil
}

// GetView returns the named view, refreshing the underlying snapshot
// first when it is older than the view's staleness window.
func (f *Facade) GetView(ctx context.Context, name ViewName) (*View, error) {
	staleness, ok := stalenessByView[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownView, name)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, ErrFacadeClosed
	}

	now := f.config.Clock()
	if f.metrics == nil || now.Sub(f.refreshedAt[name]) > staleness {
		// This view's own window has expired. Adopt the shared snapshot
		// when it is still young enough for this view, otherwise rebuild.
		if f.metrics == nil || now.Sub(f.snapshotAt) > staleness {
			if err := f.refreshLocked(ctx, now); err != nil {
				return nil, err
			}
		}
		f.refreshedAt[name] = f.snapshotAt
	}

	return f.buildView(name, now), nil
}

// ForceRefresh discards the cached snapshot, runs a full recompute and
// returns the named view.
func (f *Facade) ForceRefresh(ctx context.Context, name ViewName) (*View, error) {
	if _, ok := stalenessByView[name]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownView, name)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, ErrFacadeClosed
	}

	f.metrics = nil
	now := f.config.Clock()
	if err := f.refreshLocked(ctx, now); err != nil {
		return nil, err
	}
	f.refreshedAt[name] = f.snapshotAt

	return f.buildView(name, now), nil
}

// ForceRefreshAll resets watermark tracking so the next pass re-reads
// every source file, then rebuilds the snapshot from scratch. Stored
// records survive; the identity index suppresses re-inserts.
func (f *Facade) ForceRefreshAll(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrFacadeClosed
	}

	if err := f.config.Coordinator.ResetWatermark(); err != nil {
		return err
	}

	f.metrics = nil
	f.refreshedAt = make(map[ViewName]time.Time)
	return f.refreshLocked(ctx, f.config.Clock())
}

// Metrics returns the current snapshot without triggering a refresh.
// Nil until the first successful refresh.
func (f *Facade) Metrics() *aggregate.DerivedMetrics {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.metrics
}

// Close rejects further use. The store and runner are owned by the
// caller and stay open.
func (f *Facade) Close() {
	f.mu.Lock()
	f.closed = true
	f.metrics = nil
	f.mu.Unlock()
}

// refreshLocked ingests new data and recomputes the snapshot. Caller
// holds f.mu.
func (f *Facade) refreshLocked(ctx context.Context, now time.Time) error {
	if _, err := f.config.Coordinator.Run(ctx); err != nil {
		return fmt.Errorf("ingestion pass failed: %w", err)
	}

	records, err := f.config.Store.ScanAll()
	if err != nil {
		return fmt.Errorf("failed to scan records: %w", err)
	}

	prev := f.metrics
	opts := aggregate.Options{
		Currency:        f.config.Currency,
		BillingCycleDay: f.config.BillingCycleDay,
		ActiveWindow:    f.config.ActiveWindow,
		Now:             now,
	}

	newRecs := deltaSince(records, prev)

	task := func(taskCtx context.Context, report func(aggregate.Progress)) (*aggregate.DerivedMetrics, error) {
		opts.OnProgress = report
		if prev != nil && newRecs != nil {
			return f.config.Engine.Merge(prev, newRecs, records, opts), nil
		}
		return f.config.Engine.Compute(records, opts), nil
	}

	handle, err := f.config.Runner.Submit(ctx, task)
	if err != nil {
		return err
	}

	metrics, err := handle.Wait(ctx)
	if err != nil {
		return fmt.Errorf("recompute failed: %w", err)
	}

	f.metrics = metrics
	f.snapshotAt = now
	return nil
}

// deltaSince extracts the records newer than the previous snapshot's
// last activity. Returns nil when the delta cannot be identified
// exactly, which forces a full recompute: a wrong delta would corrupt
// the additive sums, a full pass merely costs time.
func deltaSince(records []parser.UsageRecord, prev *aggregate.DerivedMetrics) []parser.UsageRecord {
	if prev == nil {
		return nil
	}

	boundary := prev.Sessions.LastActivity
	delta := make([]parser.UsageRecord, 0)
	for i := range records {
		if records[i].Timestamp.After(boundary) {
			delta = append(delta, records[i])
		}
	}

	// Counts must reconcile, otherwise records arrived at or before the
	// boundary (repaired or out-of-order timestamps).
	if prev.RecordCount+len(delta) != len(records) {
		return nil
	}
	return delta
}

// buildView projects the cached snapshot into one view payload.
func (f *Facade) buildView(name ViewName, now time.Time) *View {
	m := f.metrics
	v := &View{Name: name, GeneratedAt: now}

	switch name {
	case ViewOverview:
		v.Overview = &OverviewData{
			Currency:  m.Currency,
			Financial: m.Financial,
			Tokens:    m.Tokens,
			Sessions:  m.Sessions,
			Models:    m.Models,
		}
	case ViewProjects:
		v.Projects = m.Projects
	case ViewSessions:
		v.Sessions = m.PerSession
	case ViewDaily:
		v.Daily = m.Daily
	case ViewMonthly:
		v.Monthly = m.Periods
	case ViewActive:
		v.Active = &ActiveData{
			Live:    m.Live,
			Timing:  m.Timing,
			Pattern: m.Gaps.Pattern,
		}
	}

	return v
}
