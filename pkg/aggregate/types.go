// Package aggregate derives the full analytics set from stored usage
// records: financial totals, token sums, session and project breakdowns,
// daily and billing-period rollups, gap statistics, model breakdowns,
// projections and live-activity state.
//
// Two computation modes are supported. Compute processes every record
// from scratch; Merge folds newly ingested records into a previous
// result in O(new) for additive metrics. Metrics that depend on
// calendar or billing-cycle boundaries are always regrouped from the
// full record set, never patched incrementally: period boundaries and
// cycle-day changes can re-bucket old records, and patching only the
// new ones silently corrupts historical rollups.
package aggregate

import (
	"time"

	"github.com/0xmhha/usage-ledger/pkg/billing"
	"github.com/0xmhha/usage-ledger/pkg/gaps"
)

// SessionWindowDuration caps a single logical session. Raw session ids
// spanning longer than this are re-segmented into fixed windows.
const SessionWindowDuration = 5 * time.Hour

// ActivityBucketDuration is the fixed size of a live-activity bucket.
const ActivityBucketDuration = 5 * time.Minute

// DefaultActiveWindow defines "currently active": at least one record
// within this window before now.
const DefaultActiveWindow = 10 * time.Minute

// DerivedMetrics is the complete analytics bag, grouped by category.
type DerivedMetrics struct {
	ComputedAt   time.Time `json:"computed_at"`
	Currency     string    `json:"currency"`
	ExchangeRate float64   `json:"exchange_rate"`
	RecordCount  int       `json:"record_count"`

	Financial FinancialMetrics       `json:"financial"`
	Tokens    TokenMetrics           `json:"tokens"`
	Sessions  SessionMetrics         `json:"sessions"`
	Timing    TimingMetrics          `json:"timing"`
	Gaps      gaps.Analysis          `json:"gaps"`
	Live      LiveMetrics            `json:"live"`
	Projects  []ProjectBreakdown     `json:"projects"`
	PerSession []SessionBreakdown    `json:"per_session"`
	Daily     []DailyUsage           `json:"daily"`
	Periods   []billing.PeriodUsage  `json:"periods"`
	Models    []ModelBreakdown       `json:"models"`
}

// FinancialMetrics covers costs in the configured currency.
type FinancialMetrics struct {
	TotalCost         float64 `json:"total_cost"`
	CurrentPeriodCost float64 `json:"current_period_cost"`
	CurrentMonthCost  float64 `json:"current_month_cost"`
	TodayCost         float64 `json:"today_cost"`

	AvgCostPerSession      float64 `json:"avg_cost_per_session"`
	AvgCostPerActiveDay    float64 `json:"avg_cost_per_active_day"`
	CostPerToken           float64 `json:"cost_per_token"`
	CostPerMillionTokens   float64 `json:"cost_per_million_tokens"`
	CostPerConversation    float64 `json:"cost_per_conversation"`

	ProjectedMonthlyCost   float64 `json:"projected_monthly_cost"`
	ProjectedQuarterlyCost float64 `json:"projected_quarterly_cost"`
	ProjectedYearlyCost    float64 `json:"projected_yearly_cost"`

	// PeriodClamped is set when the current-period figure exceeded the
	// all-time total and was clamped down to it.
	PeriodClamped bool `json:"period_clamped,omitempty"`
}

// TokenMetrics covers token sums and averages.
type TokenMetrics struct {
	InputTokens         int `json:"input_tokens"`
	OutputTokens        int `json:"output_tokens"`
	CacheCreationTokens int `json:"cache_creation_tokens"`
	CacheReadTokens     int `json:"cache_read_tokens"`
	TotalTokens         int `json:"total_tokens"`

	AvgTokensPerRecord  float64 `json:"avg_tokens_per_record"`
	AvgTokensPerSession float64 `json:"avg_tokens_per_session"`
}

// SessionMetrics covers session-level counts.
type SessionMetrics struct {
	// Count is the number of distinct raw session ids.
	Count int `json:"count"`

	// WindowCount is the number of sessions after re-segmentation into
	// fixed 5-hour windows.
	WindowCount int `json:"window_count"`

	ProjectCount  int       `json:"project_count"`
	ActiveDays    int       `json:"active_days"`
	FirstActivity time.Time `json:"first_activity"`
	LastActivity  time.Time `json:"last_activity"`

	AvgRecordsPerSession float64 `json:"avg_records_per_session"`
	AvgDurationMinutes   float64 `json:"avg_duration_minutes"`
}

// TimingMetrics covers the current-session view.
type TimingMetrics struct {
	CurrentSessionStart    time.Time     `json:"current_session_start"`
	CurrentSessionDuration time.Duration `json:"current_session_duration"`
	CurrentSessionCost     float64       `json:"current_session_cost"`
	TimeSinceLastActivity  time.Duration `json:"time_since_last_activity"`

	// BurnRatePerHour is the current session's cost per hour.
	BurnRatePerHour float64 `json:"burn_rate_per_hour"`
}

// LiveMetrics covers activity-window statistics.
type LiveMetrics struct {
	// IsActive is true when at least one record falls within the
	// active window before now.
	IsActive bool `json:"is_active"`

	LastRecordAt    time.Time `json:"last_record_at"`
	RecordsInWindow int       `json:"records_in_window"`
	TokensInWindow  int       `json:"tokens_in_window"`

	// Buckets are fixed-size time buckets, oldest first.
	Buckets []ActivityBucket `json:"buckets"`
}

// ActivityBucket is one fixed-size live-activity bucket.
type ActivityBucket struct {
	Start   time.Time `json:"start"`
	Records int       `json:"records"`
	Tokens  int       `json:"tokens"`
}

// ProjectBreakdown is the per-project rollup row.
type ProjectBreakdown struct {
	Project      string    `json:"project"`
	Cost         float64   `json:"cost"`
	TotalTokens  int       `json:"total_tokens"`
	SessionCount int       `json:"session_count"`
	RecordCount  int       `json:"record_count"`
	LastActivity time.Time `json:"last_activity"`
}

// SessionBreakdown is the per-session rollup row.
type SessionBreakdown struct {
	SessionID       string    `json:"session_id"`
	ShortID         string    `json:"short_id"`
	Project         string    `json:"project"`
	Models          []string  `json:"models"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationMinutes float64   `json:"duration_minutes"`
	Cost            float64   `json:"cost"`
	TotalTokens     int       `json:"total_tokens"`
	RecordCount     int       `json:"record_count"`

	// Windows is the number of 5-hour windows this raw session spans.
	Windows int `json:"windows"`
}

// DailyUsage is the per-day rollup row with running totals.
type DailyUsage struct {
	Date         string  `json:"date"`
	Cost         float64 `json:"cost"`
	TotalTokens  int     `json:"total_tokens"`
	RecordCount  int     `json:"record_count"`
	SessionCount int     `json:"session_count"`

	RunningCost   float64 `json:"running_cost"`
	RunningTokens int     `json:"running_tokens"`
}

// ModelBreakdown is the per-model cost/efficiency row.
type ModelBreakdown struct {
	Model       string  `json:"model"`
	Cost        float64 `json:"cost"`
	TotalTokens int     `json:"total_tokens"`
	RecordCount int     `json:"record_count"`

	// CostShare is this model's fraction of total cost, in [0, 1].
	CostShare float64 `json:"cost_share"`

	// TokensPerDollar measures efficiency (0 when cost is 0).
	TokensPerDollar float64 `json:"tokens_per_dollar"`
}

// Progress reports a named computation step to an observer.
type Progress struct {
	Step    string `json:"step"`
	Percent int    `json:"percent"`
	Message string `json:"message"`
}

// Options parameterizes a computation.
type Options struct {
	// Currency is the ISO code costs are reported in. Default USD.
	Currency string

	// BillingCycleDay anchors billing periods. Default 1.
	BillingCycleDay int

	// ActiveWindow overrides DefaultActiveWindow when > 0.
	ActiveWindow time.Duration

	// Now overrides the wall clock (tests). Zero means time.Now().
	Now time.Time

	// OnProgress, when non-nil, receives step notifications.
	OnProgress func(Progress)
}
