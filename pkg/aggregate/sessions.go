package aggregate

import (
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/0xmhha/usage-ledger/pkg/parser"
)

// sessionWindow is one fixed-length segment of a raw session.
type sessionWindow struct {
	sessionID string
	start     time.Time
	end       time.Time
	cost      float64
	tokens    int
	records   int
}

// buildSessions groups sorted records by raw session id and re-segments
// implausibly long sessions into fixed 5-hour windows.
//
// Returns the per-session breakdown rows (most expensive first) and the
// flat window list (chronological).
func buildSessions(records []parser.UsageRecord) ([]SessionBreakdown, []sessionWindow) {
	bySession := make(map[string][]*parser.UsageRecord)
	order := make([]string, 0)

	for i := range records {
		rec := &records[i]
		if _, ok := bySession[rec.SessionID]; !ok {
			order = append(order, rec.SessionID)
		}
		bySession[rec.SessionID] = append(bySession[rec.SessionID], rec)
	}

	breakdowns := make([]SessionBreakdown, 0, len(order))
	var windows []sessionWindow

	for _, id := range order {
		recs := bySession[id]

		row := SessionBreakdown{
			SessionID: id,
			ShortID:   recs[0].ShortSessionID(),
			Project:   recs[0].Project,
			Start:     recs[0].Timestamp,
			End:       recs[len(recs)-1].Timestamp,
		}

		var current *sessionWindow
		for _, rec := range recs {
			row.Cost += rec.CostUSD
			row.TotalTokens += rec.TotalTokens()
			row.RecordCount++

			if current == nil || !rec.Timestamp.Before(current.start.Add(SessionWindowDuration)) {
				windows = append(windows, sessionWindow{
					sessionID: id,
					start:     rec.Timestamp,
					end:       rec.Timestamp,
				})
				current = &windows[len(windows)-1]
				row.Windows++
			}

			current.end = rec.Timestamp
			current.cost += rec.CostUSD
			current.tokens += rec.TotalTokens()
			current.records++
		}

		row.Models = lo.Uniq(lo.Map(recs, func(r *parser.UsageRecord, _ int) string {
			return r.Model
		}))
		row.DurationMinutes = row.End.Sub(row.Start).Minutes()

		breakdowns = append(breakdowns, row)
	}

	sort.Slice(breakdowns, func(i, j int) bool {
		return breakdowns[i].Cost > breakdowns[j].Cost
	})

	return breakdowns, windows
}

// buildProjects groups records into per-project rollup rows, most
// expensive first.
func buildProjects(records []parser.UsageRecord) []ProjectBreakdown {
	type acc struct {
		row      ProjectBreakdown
		sessions map[string]struct{}
	}

	groups := make(map[string]*acc)

	for i := range records {
		rec := &records[i]
		g, ok := groups[rec.Project]
		if !ok {
			g = &acc{
				row:      ProjectBreakdown{Project: rec.Project},
				sessions: make(map[string]struct{}),
			}
			groups[rec.Project] = g
		}
		g.row.Cost += rec.CostUSD
		g.row.TotalTokens += rec.TotalTokens()
		g.row.RecordCount++
		g.sessions[rec.SessionID] = struct{}{}
		if rec.Timestamp.After(g.row.LastActivity) {
			g.row.LastActivity = rec.Timestamp
		}
	}

	rows := make([]ProjectBreakdown, 0, len(groups))
	for _, g := range groups {
		g.row.SessionCount = len(g.sessions)
		rows = append(rows, g.row)
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Cost > rows[j].Cost
	})

	return rows
}

// buildDaily groups records into per-day rows with running totals,
// oldest day first.
func buildDaily(records []parser.UsageRecord) []DailyUsage {
	type acc struct {
		row      DailyUsage
		sessions map[string]struct{}
	}

	groups := make(map[string]*acc)

	for i := range records {
		rec := &records[i]
		date := rec.Timestamp.Format("2006-01-02")
		g, ok := groups[date]
		if !ok {
			g = &acc{
				row:      DailyUsage{Date: date},
				sessions: make(map[string]struct{}),
			}
			groups[date] = g
		}
		g.row.Cost += rec.CostUSD
		g.row.TotalTokens += rec.TotalTokens()
		g.row.RecordCount++
		g.sessions[rec.SessionID] = struct{}{}
	}

	dates := lo.Keys(groups)
	sort.Strings(dates)

	rows := make([]DailyUsage, 0, len(dates))
	var runningCost float64
	var runningTokens int

	for _, date := range dates {
		g := groups[date]
		g.row.SessionCount = len(g.sessions)
		runningCost += g.row.Cost
		runningTokens += g.row.TotalTokens
		g.row.RunningCost = runningCost
		g.row.RunningTokens = runningTokens
		rows = append(rows, g.row)
	}

	return rows
}

// buildModels groups records into per-model cost/efficiency rows, most
// expensive first. Shares are fractions of the summed model cost.
func buildModels(records []parser.UsageRecord) []ModelBreakdown {
	groups := make(map[string]*ModelBreakdown)

	var totalCost float64
	for i := range records {
		rec := &records[i]
		g, ok := groups[rec.Model]
		if !ok {
			g = &ModelBreakdown{Model: rec.Model}
			groups[rec.Model] = g
		}
		g.Cost += rec.CostUSD
		g.TotalTokens += rec.TotalTokens()
		g.RecordCount++
		totalCost += rec.CostUSD
	}

	rows := make([]ModelBreakdown, 0, len(groups))
	for _, g := range groups {
		if totalCost > 0 {
			g.CostShare = g.Cost / totalCost
		}
		if g.Cost > 0 {
			g.TokensPerDollar = float64(g.TotalTokens) / g.Cost
		}
		rows = append(rows, *g)
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Cost > rows[j].Cost
	})

	return rows
}
