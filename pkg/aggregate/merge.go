package aggregate

import (
	"sort"

	"github.com/0xmhha/usage-ledger/pkg/billing"
	"github.com/0xmhha/usage-ledger/pkg/gaps"
	"github.com/0xmhha/usage-ledger/pkg/parser"
)

// Merge folds newly ingested records into a previous result.
//
// Additive metrics (token sums, total cost, project and model rollups)
// are patched in O(new). Anything sensitive to calendar or billing-cycle
// boundaries, plus session segmentation, gaps and the live view, is
// regrouped from allRecords: period boundaries can re-bucket records
// that were already counted, and patching only the new ones would
// silently corrupt the historical rollups.
//
// Falls back to a full Compute when prev is nil, when the currency or
// exchange rate changed, or when newRecords is empty but the clock
// moved past a staleness-sensitive boundary.
func (e *Engine) Merge(prev *DerivedMetrics, newRecords, allRecords []parser.UsageRecord, opts Options) *DerivedMetrics {
	opts = e.normalize(opts)

	if prev == nil || prev.Currency != opts.Currency {
		return e.Compute(allRecords, opts)
	}
	rate := e.rateFor(opts.Currency)
	if rate != prev.ExchangeRate {
		return e.Compute(allRecords, opts)
	}

	now := opts.Now

	m := &DerivedMetrics{
		ComputedAt:   now,
		Currency:     opts.Currency,
		ExchangeRate: rate,
		RecordCount:  prev.RecordCount + len(newRecords),
		Tokens:       prev.Tokens,
		Financial:    prev.Financial,
		Sessions:     prev.Sessions,
	}

	// Additive deltas.
	var deltaUSD float64
	for i := range newRecords {
		rec := &newRecords[i]
		m.Tokens.InputTokens += rec.InputTokens
		m.Tokens.OutputTokens += rec.OutputTokens
		m.Tokens.CacheCreationTokens += rec.CacheCreationTokens
		m.Tokens.CacheReadTokens += rec.CacheReadTokens
		m.Tokens.TotalTokens += rec.TotalTokens()
		deltaUSD += rec.CostUSD
	}
	m.Financial.TotalCost += deltaUSD * rate

	sorted := make([]parser.UsageRecord, len(allRecords))
	copy(sorted, allRecords)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	// Boundary-dependent metrics: full regroup.
	perSession, windows := buildSessions(sorted)
	m.PerSession = convertSessionCosts(perSession, rate)
	m.Projects = convertProjectCosts(buildProjects(sorted), rate)
	e.fillSessionMetrics(m, sorted, windows)

	m.Daily = convertDailyCosts(buildDaily(sorted), rate)
	m.Periods = convertPeriodCosts(
		billing.AggregateByPeriod(sorted, opts.BillingCycleDay), rate)
	e.fillCurrentBuckets(m, sorted, now, opts.BillingCycleDay, rate)

	m.Gaps = gaps.Analyze(sorted)
	m.Models = convertModelCosts(buildModels(sorted), rate)

	m.Live = buildLive(sorted, now, opts.ActiveWindow)
	m.Timing = TimingMetrics{}
	e.fillTiming(m, windows, now, rate)

	if len(sorted) > 0 {
		m.Tokens.AvgTokensPerRecord = float64(m.Tokens.TotalTokens) / float64(len(sorted))
	}

	m.Financial.PeriodClamped = false
	e.fillDerivedFinancials(m)
	e.clampPeriodCosts(m)

	return m
}
