// Package tabs is the read-side facade over ingestion and aggregation.
// Each named view (overview, projects, sessions, daily, monthly,
// active) is served from a cached metrics snapshot with its own
// staleness window, so cheap reads never trigger a recompute and the
// expensive views refresh least often.
package tabs

import (
	"time"

	"github.com/0xmhha/usage-ledger/pkg/aggregate"
	"github.com/0xmhha/usage-ledger/pkg/billing"
	"github.com/0xmhha/usage-ledger/pkg/gaps"
)

// ViewName identifies one tab view.
type ViewName string

const (
	ViewOverview ViewName = "overview"
	ViewProjects ViewName = "projects"
	ViewSessions ViewName = "sessions"
	ViewDaily    ViewName = "daily"
	ViewMonthly  ViewName = "monthly"
	ViewActive   ViewName = "active"
)

// stalenessByView is how old a cached snapshot may be and still serve
// each view. The active view tracks live state and refreshes fastest;
// monthly rollups barely move.
var stalenessByView = map[ViewName]time.Duration{
	ViewActive:   5 * time.Second,
	ViewOverview: 30 * time.Second,
	ViewProjects: time.Minute,
	ViewSessions: time.Minute,
	ViewDaily:    time.Minute,
	ViewMonthly:  5 * time.Minute,
}

// ExportFormat selects an ExportView encoding.
type ExportFormat string

const (
	FormatJSON     ExportFormat = "json"
	FormatCSV      ExportFormat = "csv"
	FormatMarkdown ExportFormat = "markdown"
)

// View is the payload for one tab. Exactly one data field is set,
// matching Name.
type View struct {
	Name        ViewName  `json:"name"`
	GeneratedAt time.Time `json:"generated_at"`

	Overview *OverviewData                `json:"overview,omitempty"`
	Projects []aggregate.ProjectBreakdown `json:"projects,omitempty"`
	Sessions []aggregate.SessionBreakdown `json:"sessions,omitempty"`
	Daily    []aggregate.DailyUsage       `json:"daily,omitempty"`
	Monthly  []billing.PeriodUsage        `json:"monthly,omitempty"`
	Active   *ActiveData                  `json:"active,omitempty"`
}

// OverviewData is the summary tab: headline totals plus the model mix.
type OverviewData struct {
	Currency  string                     `json:"currency"`
	Financial aggregate.FinancialMetrics `json:"financial"`
	Tokens    aggregate.TokenMetrics     `json:"tokens"`
	Sessions  aggregate.SessionMetrics   `json:"sessions"`
	Models    []aggregate.ModelBreakdown `json:"models"`
}

// ActiveData is the live tab: current-session state and gap pattern.
type ActiveData struct {
	Live    aggregate.LiveMetrics   `json:"live"`
	Timing  aggregate.TimingMetrics `json:"timing"`
	Pattern gaps.WorkPattern        `json:"pattern"`
}
