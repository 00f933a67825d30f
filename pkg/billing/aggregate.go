package billing

import (
	"sort"

	"github.com/0xmhha/usage-ledger/pkg/parser"
)

// PeriodUsage holds the rolled-up usage for one billing period.
type PeriodUsage struct {
	Period Period `json:"period"`

	Cost         float64 `json:"cost"`
	TotalTokens  int     `json:"total_tokens"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	RecordCount  int     `json:"record_count"`
	SessionCount int     `json:"session_count"`
	ActiveDays   int     `json:"active_days"`
}

// AggregateByPeriod groups records into billing periods and sums cost,
// tokens, sessions and active days per group.
//
// Parameters:
//   - records: Usage records in any order
//   - cycleDay: Billing cycle start day (1 = calendar months)
//
// Returns period rollups sorted most-recent-first.
func AggregateByPeriod(records []parser.UsageRecord, cycleDay int) []PeriodUsage {
	type acc struct {
		usage    PeriodUsage
		sessions map[string]struct{}
		days     map[string]struct{}
	}

	groups := make(map[string]*acc)

	for i := range records {
		rec := &records[i]
		period := PeriodFor(rec.Timestamp, cycleDay)
		key := period.Key()

		g, ok := groups[key]
		if !ok {
			g = &acc{
				usage:    PeriodUsage{Period: period},
				sessions: make(map[string]struct{}),
				days:     make(map[string]struct{}),
			}
			groups[key] = g
		}

		g.usage.Cost += rec.CostUSD
		g.usage.TotalTokens += rec.TotalTokens()
		g.usage.InputTokens += rec.InputTokens
		g.usage.OutputTokens += rec.OutputTokens
		g.usage.RecordCount++
		g.sessions[rec.SessionID] = struct{}{}
		g.days[rec.Timestamp.Format("2006-01-02")] = struct{}{}
	}

	result := make([]PeriodUsage, 0, len(groups))
	for _, g := range groups {
		g.usage.SessionCount = len(g.sessions)
		g.usage.ActiveDays = len(g.days)
		result = append(result, g.usage)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Period.Start.After(result[j].Period.Start)
	})

	return result
}
