package aggregate

import (
	"math"
	"testing"
	"time"

	"github.com/0xmhha/usage-ledger/pkg/logger"
	"github.com/0xmhha/usage-ledger/pkg/parser"
	"github.com/0xmhha/usage-ledger/pkg/pricing"
)

var testNow = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

func usage(ts time.Time, session string, cost float64) parser.UsageRecord {
	return parser.UsageRecord{
		Timestamp:    ts,
		SessionID:    session,
		Project:      "webapp",
		Model:        "claude-sonnet-4",
		InputTokens:  100,
		OutputTokens: 50,
		CostUSD:      cost,
	}
}

func testEngine() *Engine {
	return NewEngine(nil, logger.Noop())
}

func closeTo(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestCompute_Empty(t *testing.T) {
	t.Parallel()

	m := testEngine().Compute(nil, Options{Now: testNow})

	if m.RecordCount != 0 {
		t.Errorf("RecordCount = %d, want 0", m.RecordCount)
	}
	if m.Currency != "USD" {
		t.Errorf("Currency = %q, want USD", m.Currency)
	}
	if m.ExchangeRate != 1.0 {
		t.Errorf("ExchangeRate = %f, want 1", m.ExchangeRate)
	}
	if m.Financial.TotalCost != 0 {
		t.Errorf("TotalCost = %f, want 0", m.Financial.TotalCost)
	}
	if m.Sessions.Count != 0 {
		t.Errorf("Sessions.Count = %d, want 0", m.Sessions.Count)
	}
}

func TestCompute_TotalsAndSessions(t *testing.T) {
	t.Parallel()

	records := []parser.UsageRecord{
		usage(testNow.Add(-3*time.Hour), "sess-a", 1.0),
		usage(testNow.Add(-2*time.Hour), "sess-a", 2.0),
		usage(testNow.Add(-90*time.Minute), "sess-b", 5.0),
	}

	m := testEngine().Compute(records, Options{Now: testNow})

	if m.RecordCount != 3 {
		t.Fatalf("RecordCount = %d, want 3", m.RecordCount)
	}
	if m.Tokens.InputTokens != 300 || m.Tokens.OutputTokens != 150 {
		t.Errorf("Tokens = %+v", m.Tokens)
	}
	if m.Tokens.TotalTokens != 450 {
		t.Errorf("TotalTokens = %d, want 450", m.Tokens.TotalTokens)
	}
	if !closeTo(m.Financial.TotalCost, 8.0) {
		t.Errorf("TotalCost = %f, want 8", m.Financial.TotalCost)
	}
	if m.Sessions.Count != 2 {
		t.Errorf("Sessions.Count = %d, want 2", m.Sessions.Count)
	}
	if m.Sessions.ProjectCount != 1 {
		t.Errorf("ProjectCount = %d, want 1", m.Sessions.ProjectCount)
	}
	if m.Sessions.ActiveDays != 1 {
		t.Errorf("ActiveDays = %d, want 1", m.Sessions.ActiveDays)
	}
	if !m.Sessions.FirstActivity.Equal(records[0].Timestamp) {
		t.Errorf("FirstActivity = %v", m.Sessions.FirstActivity)
	}
	if !m.Sessions.LastActivity.Equal(records[2].Timestamp) {
		t.Errorf("LastActivity = %v", m.Sessions.LastActivity)
	}

	// Per-session rows come most expensive first.
	if len(m.PerSession) != 2 || m.PerSession[0].SessionID != "sess-b" {
		t.Errorf("PerSession = %+v", m.PerSession)
	}
	if m.PerSession[1].RecordCount != 2 {
		t.Errorf("sess-a RecordCount = %d, want 2", m.PerSession[1].RecordCount)
	}
	if len(m.Projects) != 1 || m.Projects[0].SessionCount != 2 {
		t.Errorf("Projects = %+v", m.Projects)
	}
}

func TestCompute_SessionWindowResegmentation(t *testing.T) {
	t.Parallel()

	// One raw session spanning well past the five-hour cap.
	records := []parser.UsageRecord{
		usage(testNow.Add(-12*time.Hour), "sess-long", 1.0),
		usage(testNow.Add(-11*time.Hour), "sess-long", 1.0),
		usage(testNow.Add(-2*time.Hour), "sess-long", 1.0),
	}

	m := testEngine().Compute(records, Options{Now: testNow})

	if m.Sessions.Count != 1 {
		t.Errorf("Sessions.Count = %d, want 1", m.Sessions.Count)
	}
	if m.Sessions.WindowCount != 2 {
		t.Errorf("WindowCount = %d, want 2", m.Sessions.WindowCount)
	}
	if len(m.PerSession) != 1 || m.PerSession[0].Windows != 2 {
		t.Errorf("PerSession = %+v", m.PerSession)
	}
}

func TestCompute_DailyRunningTotals(t *testing.T) {
	t.Parallel()

	records := []parser.UsageRecord{
		usage(testNow.AddDate(0, 0, -2), "sess-a", 1.0),
		usage(testNow.AddDate(0, 0, -1), "sess-a", 2.0),
		usage(testNow.AddDate(0, 0, -1).Add(time.Hour), "sess-b", 3.0),
	}

	m := testEngine().Compute(records, Options{Now: testNow})

	if len(m.Daily) != 2 {
		t.Fatalf("len(Daily) = %d, want 2", len(m.Daily))
	}
	// Oldest day first, running totals accumulate.
	if !closeTo(m.Daily[0].Cost, 1.0) || !closeTo(m.Daily[0].RunningCost, 1.0) {
		t.Errorf("Daily[0] = %+v", m.Daily[0])
	}
	if !closeTo(m.Daily[1].Cost, 5.0) || !closeTo(m.Daily[1].RunningCost, 6.0) {
		t.Errorf("Daily[1] = %+v", m.Daily[1])
	}
	if m.Daily[1].SessionCount != 2 {
		t.Errorf("Daily[1].SessionCount = %d, want 2", m.Daily[1].SessionCount)
	}
	if m.Daily[1].RunningTokens != 450 {
		t.Errorf("Daily[1].RunningTokens = %d, want 450", m.Daily[1].RunningTokens)
	}
}

func TestCompute_ModelBreakdown(t *testing.T) {
	t.Parallel()

	recA := usage(testNow.Add(-time.Hour), "sess-a", 6.0)
	recB := usage(testNow.Add(-30*time.Minute), "sess-a", 2.0)
	recB.Model = "claude-haiku-3"

	m := testEngine().Compute([]parser.UsageRecord{recA, recB}, Options{Now: testNow})

	if len(m.Models) != 2 {
		t.Fatalf("len(Models) = %d, want 2", len(m.Models))
	}
	if m.Models[0].Model != "claude-sonnet-4" {
		t.Errorf("Models[0] = %q, want most expensive first", m.Models[0].Model)
	}
	if !closeTo(m.Models[0].CostShare, 0.75) || !closeTo(m.Models[1].CostShare, 0.25) {
		t.Errorf("CostShare = %f / %f, want 0.75 / 0.25",
			m.Models[0].CostShare, m.Models[1].CostShare)
	}
	if !closeTo(m.Models[0].TokensPerDollar, 150.0/6.0) {
		t.Errorf("TokensPerDollar = %f", m.Models[0].TokensPerDollar)
	}
}

func TestCompute_CurrentBuckets(t *testing.T) {
	t.Parallel()

	records := []parser.UsageRecord{
		usage(testNow.Add(-time.Hour), "sess-a", 1.0),            // today
		usage(testNow.AddDate(0, 0, -5), "sess-a", 2.0),          // this month
		usage(testNow.AddDate(0, -1, 0), "sess-b", 4.0),          // last month
	}

	m := testEngine().Compute(records, Options{Now: testNow, BillingCycleDay: 1})

	if !closeTo(m.Financial.TodayCost, 1.0) {
		t.Errorf("TodayCost = %f, want 1", m.Financial.TodayCost)
	}
	if !closeTo(m.Financial.CurrentMonthCost, 3.0) {
		t.Errorf("CurrentMonthCost = %f, want 3", m.Financial.CurrentMonthCost)
	}
	// Cycle day 1 makes the billing period the calendar month.
	if !closeTo(m.Financial.CurrentPeriodCost, 3.0) {
		t.Errorf("CurrentPeriodCost = %f, want 3", m.Financial.CurrentPeriodCost)
	}
	if !closeTo(m.Financial.TotalCost, 7.0) {
		t.Errorf("TotalCost = %f, want 7", m.Financial.TotalCost)
	}
	if m.Financial.PeriodClamped {
		t.Error("PeriodClamped = true for consistent figures")
	}
	if len(m.Periods) != 2 {
		t.Errorf("len(Periods) = %d, want 2", len(m.Periods))
	}
}

func TestCompute_LiveActivity(t *testing.T) {
	t.Parallel()

	records := []parser.UsageRecord{
		usage(testNow.Add(-2*time.Hour), "sess-a", 1.0),
		usage(testNow.Add(-20*time.Minute), "sess-a", 1.0),
		usage(testNow.Add(-2*time.Minute), "sess-a", 1.0),
	}

	m := testEngine().Compute(records, Options{Now: testNow})

	if !m.Live.IsActive {
		t.Error("IsActive = false with a record two minutes ago")
	}
	if m.Live.RecordsInWindow != 1 {
		t.Errorf("RecordsInWindow = %d, want 1", m.Live.RecordsInWindow)
	}
	if m.Live.TokensInWindow != 150 {
		t.Errorf("TokensInWindow = %d, want 150", m.Live.TokensInWindow)
	}
	if !m.Live.LastRecordAt.Equal(records[2].Timestamp) {
		t.Errorf("LastRecordAt = %v", m.Live.LastRecordAt)
	}
	if len(m.Live.Buckets) != liveBucketCount {
		t.Fatalf("len(Buckets) = %d, want %d", len(m.Live.Buckets), liveBucketCount)
	}

	// The trailing hour covers the 20-minute and 2-minute records only.
	var bucketed int
	for _, b := range m.Live.Buckets {
		bucketed += b.Records
	}
	if bucketed != 2 {
		t.Errorf("bucketed records = %d, want 2", bucketed)
	}
}

func TestCompute_LiveInactive(t *testing.T) {
	t.Parallel()

	records := []parser.UsageRecord{
		usage(testNow.Add(-3*time.Hour), "sess-a", 1.0),
	}

	m := testEngine().Compute(records, Options{Now: testNow})

	if m.Live.IsActive {
		t.Error("IsActive = true with no recent records")
	}
	if !m.Live.LastRecordAt.Equal(records[0].Timestamp) {
		t.Errorf("LastRecordAt = %v, want the last record even outside the window",
			m.Live.LastRecordAt)
	}
}

func TestCompute_Timing(t *testing.T) {
	t.Parallel()

	start := testNow.Add(-90 * time.Minute)
	records := []parser.UsageRecord{
		usage(start, "sess-a", 1.0),
		usage(testNow.Add(-5*time.Minute), "sess-a", 2.0),
	}

	m := testEngine().Compute(records, Options{Now: testNow})

	if !m.Timing.CurrentSessionStart.Equal(start) {
		t.Errorf("CurrentSessionStart = %v, want %v", m.Timing.CurrentSessionStart, start)
	}
	// Active session: duration runs to now, not to the last record.
	if m.Timing.CurrentSessionDuration != 90*time.Minute {
		t.Errorf("CurrentSessionDuration = %v, want 90m", m.Timing.CurrentSessionDuration)
	}
	if !closeTo(m.Timing.CurrentSessionCost, 3.0) {
		t.Errorf("CurrentSessionCost = %f, want 3", m.Timing.CurrentSessionCost)
	}
	if !closeTo(m.Timing.BurnRatePerHour, 2.0) {
		t.Errorf("BurnRatePerHour = %f, want 2", m.Timing.BurnRatePerHour)
	}
	if m.Timing.TimeSinceLastActivity != 5*time.Minute {
		t.Errorf("TimeSinceLastActivity = %v, want 5m", m.Timing.TimeSinceLastActivity)
	}
}

func TestCompute_DerivedFinancials(t *testing.T) {
	t.Parallel()

	records := []parser.UsageRecord{
		usage(testNow.AddDate(0, 0, -1), "sess-a", 3.0),
		usage(testNow.Add(-time.Hour), "sess-b", 3.0),
	}

	m := testEngine().Compute(records, Options{Now: testNow})

	if !closeTo(m.Financial.AvgCostPerSession, 3.0) {
		t.Errorf("AvgCostPerSession = %f, want 3", m.Financial.AvgCostPerSession)
	}
	if !closeTo(m.Financial.AvgCostPerActiveDay, 3.0) {
		t.Errorf("AvgCostPerActiveDay = %f, want 3", m.Financial.AvgCostPerActiveDay)
	}
	if !closeTo(m.Financial.CostPerToken, 6.0/300.0) {
		t.Errorf("CostPerToken = %f", m.Financial.CostPerToken)
	}
	if !closeTo(m.Financial.CostPerMillionTokens, 6.0/300.0*1_000_000) {
		t.Errorf("CostPerMillionTokens = %f", m.Financial.CostPerMillionTokens)
	}
	if !closeTo(m.Financial.ProjectedMonthlyCost, 90.0) {
		t.Errorf("ProjectedMonthlyCost = %f, want 90", m.Financial.ProjectedMonthlyCost)
	}
	if !closeTo(m.Financial.ProjectedYearlyCost, 3.0*365) {
		t.Errorf("ProjectedYearlyCost = %f", m.Financial.ProjectedYearlyCost)
	}
}

func TestCompute_CurrencyConversion(t *testing.T) {
	t.Parallel()

	e := NewEngine(pricing.NewStaticCurrency(map[string]float64{"EUR": 0.9}), logger.Noop())

	records := []parser.UsageRecord{
		usage(testNow.Add(-time.Hour), "sess-a", 10.0),
	}

	m := e.Compute(records, Options{Now: testNow, Currency: "EUR"})

	if m.ExchangeRate != 0.9 {
		t.Errorf("ExchangeRate = %f, want 0.9", m.ExchangeRate)
	}
	if !closeTo(m.Financial.TotalCost, 9.0) {
		t.Errorf("TotalCost = %f, want 9", m.Financial.TotalCost)
	}
	if !closeTo(m.PerSession[0].Cost, 9.0) {
		t.Errorf("PerSession Cost = %f, want 9", m.PerSession[0].Cost)
	}
	if !closeTo(m.Daily[0].Cost, 9.0) {
		t.Errorf("Daily Cost = %f, want 9", m.Daily[0].Cost)
	}
	if !closeTo(m.Models[0].TokensPerDollar, 150.0/9.0) {
		t.Errorf("TokensPerDollar = %f, want post-conversion", m.Models[0].TokensPerDollar)
	}
}

func TestCompute_UnknownCurrencyFallsBackToUSD(t *testing.T) {
	t.Parallel()

	e := NewEngine(pricing.NewStaticCurrency(nil), logger.Noop())

	m := e.Compute([]parser.UsageRecord{
		usage(testNow.Add(-time.Hour), "sess-a", 10.0),
	}, Options{Now: testNow, Currency: "JPY"})

	if m.ExchangeRate != 1.0 {
		t.Errorf("ExchangeRate = %f, want 1 fallback", m.ExchangeRate)
	}
	if !closeTo(m.Financial.TotalCost, 10.0) {
		t.Errorf("TotalCost = %f, want 10", m.Financial.TotalCost)
	}
}

func TestCompute_ProgressSteps(t *testing.T) {
	t.Parallel()

	var steps []Progress
	testEngine().Compute(nil, Options{
		Now:        testNow,
		OnProgress: func(p Progress) { steps = append(steps, p) },
	})

	if len(steps) < 2 {
		t.Fatalf("len(steps) = %d, want several", len(steps))
	}
	if steps[0].Step != "sort" {
		t.Errorf("first step = %q, want sort", steps[0].Step)
	}
	last := steps[len(steps)-1]
	if last.Step != "done" || last.Percent != 100 {
		t.Errorf("last step = %+v, want done at 100", last)
	}
	for i := 1; i < len(steps); i++ {
		if steps[i].Percent < steps[i-1].Percent {
			t.Errorf("progress went backwards at %d: %+v", i, steps[i])
		}
	}
}

func TestCompute_UnsortedInput(t *testing.T) {
	t.Parallel()

	records := []parser.UsageRecord{
		usage(testNow.Add(-time.Hour), "sess-a", 2.0),
		usage(testNow.Add(-3*time.Hour), "sess-a", 1.0),
	}

	m := testEngine().Compute(records, Options{Now: testNow})

	if !m.Sessions.FirstActivity.Equal(testNow.Add(-3 * time.Hour)) {
		t.Errorf("FirstActivity = %v, input not sorted internally", m.Sessions.FirstActivity)
	}
	// The caller's slice is left untouched.
	if !records[0].Timestamp.Equal(testNow.Add(-time.Hour)) {
		t.Error("Compute reordered the input slice")
	}
}
