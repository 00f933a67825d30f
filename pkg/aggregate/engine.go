package aggregate

import (
	"sort"
	"time"

	"github.com/0xmhha/usage-ledger/pkg/billing"
	"github.com/0xmhha/usage-ledger/pkg/gaps"
	"github.com/0xmhha/usage-ledger/pkg/logger"
	"github.com/0xmhha/usage-ledger/pkg/parser"
	"github.com/0xmhha/usage-ledger/pkg/pricing"
)

// Engine computes DerivedMetrics from usage records.
//
// The engine is stateless with respect to the store: it operates on a
// record snapshot and may therefore run concurrently with ingestion,
// at the cost of slight staleness.
type Engine struct {
	currency pricing.CurrencyProvider
	logger   logger.Logger
}

// NewEngine creates an Engine.
//
// A nil currency provider reports everything in USD.
func NewEngine(currency pricing.CurrencyProvider, log logger.Logger) *Engine {
	return &Engine{
		currency: currency,
		logger:   log,
	}
}

// Compute performs a full recompute over every record.
//
// Used on first load and on any forced refresh. Progress notifications
// are emitted through opts.OnProgress when set.
func (e *Engine) Compute(records []parser.UsageRecord, opts Options) *DerivedMetrics {
	opts = e.normalize(opts)
	now := opts.Now

	e.progress(opts, "sort", 5, "ordering records")
	sorted := make([]parser.UsageRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	rate := e.rateFor(opts.Currency)

	m := &DerivedMetrics{
		ComputedAt:   now,
		Currency:     opts.Currency,
		ExchangeRate: rate,
		RecordCount:  len(sorted),
	}

	e.progress(opts, "totals", 20, "summing tokens and cost")
	e.fillTotals(m, sorted, rate)

	e.progress(opts, "sessions", 35, "segmenting sessions")
	perSession, windows := buildSessions(sorted)
	m.PerSession = convertSessionCosts(perSession, rate)
	m.Projects = convertProjectCosts(buildProjects(sorted), rate)
	e.fillSessionMetrics(m, sorted, windows)

	e.progress(opts, "daily", 50, "grouping by day")
	m.Daily = convertDailyCosts(buildDaily(sorted), rate)

	e.progress(opts, "periods", 60, "grouping by billing period")
	m.Periods = convertPeriodCosts(
		billing.AggregateByPeriod(sorted, opts.BillingCycleDay), rate)
	e.fillCurrentBuckets(m, sorted, now, opts.BillingCycleDay, rate)

	e.progress(opts, "gaps", 75, "detecting gaps")
	m.Gaps = gaps.Analyze(sorted)

	e.progress(opts, "models", 85, "grouping by model")
	m.Models = convertModelCosts(buildModels(sorted), rate)

	e.progress(opts, "live", 95, "building activity windows")
	m.Live = buildLive(sorted, now, opts.ActiveWindow)
	e.fillTiming(m, windows, now, rate)

	e.fillDerivedFinancials(m)
	e.clampPeriodCosts(m)

	e.progress(opts, "done", 100, "complete")
	return m
}

// normalize applies option defaults.
func (e *Engine) normalize(opts Options) Options {
	if opts.Currency == "" {
		opts.Currency = "USD"
	}
	if opts.BillingCycleDay < 1 || opts.BillingCycleDay > 31 {
		opts.BillingCycleDay = 1
	}
	if opts.ActiveWindow <= 0 {
		opts.ActiveWindow = DefaultActiveWindow
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	return opts
}

// rateFor resolves the USD conversion multiplier for a currency.
func (e *Engine) rateFor(code string) float64 {
	if e.currency == nil {
		return 1.0
	}
	rate, ok := e.currency.RateFor(code)
	if !ok || rate <= 0 {
		e.logger.Warn("no exchange rate for currency, reporting USD", "currency", code)
		return 1.0
	}
	return rate
}

// progress emits a step notification when an observer is attached.
func (e *Engine) progress(opts Options, step string, percent int, msg string) {
	if opts.OnProgress != nil {
		opts.OnProgress(Progress{Step: step, Percent: percent, Message: msg})
	}
}

// fillTotals sums token counters and total cost.
func (e *Engine) fillTotals(m *DerivedMetrics, sorted []parser.UsageRecord, rate float64) {
	var costUSD float64
	for i := range sorted {
		rec := &sorted[i]
		m.Tokens.InputTokens += rec.InputTokens
		m.Tokens.OutputTokens += rec.OutputTokens
		m.Tokens.CacheCreationTokens += rec.CacheCreationTokens
		m.Tokens.CacheReadTokens += rec.CacheReadTokens
		m.Tokens.TotalTokens += rec.TotalTokens()
		costUSD += rec.CostUSD
	}
	m.Financial.TotalCost = costUSD * rate

	if len(sorted) > 0 {
		m.Tokens.AvgTokensPerRecord = float64(m.Tokens.TotalTokens) / float64(len(sorted))
	}
}

// fillSessionMetrics fills session-level counts from the window list.
func (e *Engine) fillSessionMetrics(m *DerivedMetrics, sorted []parser.UsageRecord, windows []sessionWindow) {
	m.Sessions.Count = len(m.PerSession)
	m.Sessions.WindowCount = len(windows)
	m.Sessions.ProjectCount = len(m.Projects)

	days := make(map[string]struct{})
	for i := range sorted {
		days[sorted[i].Timestamp.Format("2006-01-02")] = struct{}{}
	}
	m.Sessions.ActiveDays = len(days)

	if len(sorted) > 0 {
		m.Sessions.FirstActivity = sorted[0].Timestamp
		m.Sessions.LastActivity = sorted[len(sorted)-1].Timestamp
	}

	if m.Sessions.Count > 0 {
		m.Sessions.AvgRecordsPerSession = float64(len(sorted)) / float64(m.Sessions.Count)
		m.Tokens.AvgTokensPerSession = float64(m.Tokens.TotalTokens) / float64(m.Sessions.Count)

		var totalMinutes float64
		for i := range m.PerSession {
			totalMinutes += m.PerSession[i].DurationMinutes
		}
		m.Sessions.AvgDurationMinutes = totalMinutes / float64(m.Sessions.Count)
	}
}

// fillCurrentBuckets computes today / current calendar month / current
// billing period costs by regrouping the full record set.
func (e *Engine) fillCurrentBuckets(m *DerivedMetrics, sorted []parser.UsageRecord, now time.Time, cycleDay int, rate float64) {
	period := billing.PeriodFor(now, cycleDay)
	month := billing.PeriodFor(now, 1)
	today := now.Format("2006-01-02")

	var periodUSD, monthUSD, todayUSD float64
	for i := range sorted {
		rec := &sorted[i]
		if period.Contains(rec.Timestamp) {
			periodUSD += rec.CostUSD
		}
		if month.Contains(rec.Timestamp) {
			monthUSD += rec.CostUSD
		}
		if rec.Timestamp.Format("2006-01-02") == today {
			todayUSD += rec.CostUSD
		}
	}

	m.Financial.CurrentPeriodCost = periodUSD * rate
	m.Financial.CurrentMonthCost = monthUSD * rate
	m.Financial.TodayCost = todayUSD * rate
}

// fillTiming computes the current-session view from the latest window.
func (e *Engine) fillTiming(m *DerivedMetrics, windows []sessionWindow, now time.Time, rate float64) {
	if len(windows) == 0 {
		return
	}

	latest := &windows[0]
	for i := range windows {
		if windows[i].end.After(latest.end) {
			latest = &windows[i]
		}
	}

	m.Timing.CurrentSessionStart = latest.start
	m.Timing.CurrentSessionCost = latest.cost * rate
	m.Timing.TimeSinceLastActivity = now.Sub(latest.end)

	if m.Live.IsActive {
		m.Timing.CurrentSessionDuration = now.Sub(latest.start)
	} else {
		m.Timing.CurrentSessionDuration = latest.end.Sub(latest.start)
	}

	if hours := m.Timing.CurrentSessionDuration.Hours(); hours > 0 {
		m.Timing.BurnRatePerHour = m.Timing.CurrentSessionCost / hours
	}
}

// fillDerivedFinancials computes averages, unit costs and projections
// from the already-filled totals.
func (e *Engine) fillDerivedFinancials(m *DerivedMetrics) {
	total := m.Financial.TotalCost

	if m.Sessions.Count > 0 {
		m.Financial.AvgCostPerSession = total / float64(m.Sessions.Count)
		m.Financial.CostPerConversation = m.Financial.AvgCostPerSession
	}
	if m.Sessions.ActiveDays > 0 {
		m.Financial.AvgCostPerActiveDay = total / float64(m.Sessions.ActiveDays)
	}
	if m.Tokens.TotalTokens > 0 {
		m.Financial.CostPerToken = total / float64(m.Tokens.TotalTokens)
		m.Financial.CostPerMillionTokens = m.Financial.CostPerToken * 1_000_000
	}

	daily := m.Financial.AvgCostPerActiveDay
	m.Financial.ProjectedMonthlyCost = daily * 30
	m.Financial.ProjectedQuarterlyCost = daily * 90
	m.Financial.ProjectedYearlyCost = daily * 365
}

// clampPeriodCosts enforces the invariant that no current-period figure
// exceeds the all-time total. A violation indicates mixed currencies or
// a stale cache upstream; the figure is clamped and the anomaly logged
// rather than surfacing an impossible number.
func (e *Engine) clampPeriodCosts(m *DerivedMetrics) {
	total := m.Financial.TotalCost

	if m.Financial.CurrentPeriodCost > total {
		e.logger.Warn("current period cost exceeded total, clamping",
			"period_cost", m.Financial.CurrentPeriodCost,
			"total_cost", total)
		m.Financial.CurrentPeriodCost = total
		m.Financial.PeriodClamped = true
	}

	if m.Financial.CurrentMonthCost > total {
		e.logger.Warn("current month cost exceeded total, clamping",
			"month_cost", m.Financial.CurrentMonthCost,
			"total_cost", total)
		m.Financial.CurrentMonthCost = total
		m.Financial.PeriodClamped = true
	}
}

// Cost-conversion helpers. Records store USD; reported figures are in
// the configured currency.

func convertSessionCosts(rows []SessionBreakdown, rate float64) []SessionBreakdown {
	for i := range rows {
		rows[i].Cost *= rate
	}
	return rows
}

func convertProjectCosts(rows []ProjectBreakdown, rate float64) []ProjectBreakdown {
	for i := range rows {
		rows[i].Cost *= rate
	}
	return rows
}

func convertDailyCosts(rows []DailyUsage, rate float64) []DailyUsage {
	for i := range rows {
		rows[i].Cost *= rate
		rows[i].RunningCost *= rate
	}
	return rows
}

func convertPeriodCosts(rows []billing.PeriodUsage, rate float64) []billing.PeriodUsage {
	for i := range rows {
		rows[i].Cost *= rate
	}
	return rows
}

func convertModelCosts(rows []ModelBreakdown, rate float64) []ModelBreakdown {
	for i := range rows {
		rows[i].Cost *= rate
		if rows[i].Cost > 0 {
			rows[i].TokensPerDollar = float64(rows[i].TotalTokens) / rows[i].Cost
		}
	}
	return rows
}
