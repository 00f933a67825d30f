package tabs

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
)

// ExportView renders the named view in the requested format.
//
// JSON carries the full typed payload; CSV and Markdown use a flat
// tabular projection of the same data.
func (f *Facade) ExportView(ctx context.Context, name ViewName, format ExportFormat) ([]byte, error) {
	view, err := f.GetView(ctx, name)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatJSON:
		return json.MarshalIndent(view, "", "  ")
	case FormatCSV:
		return renderCSV(view)
	case FormatMarkdown:
		return renderMarkdown(view)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// renderCSV writes the tabular projection as RFC 4180 CSV.
func renderCSV(view *View) ([]byte, error) {
	headers, rows := Tabulate(view)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(headers); err != nil {
		return nil, err
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// renderMarkdown writes the tabular projection as a Markdown table.
func renderMarkdown(view *View) ([]byte, error) {
	headers, rows := Tabulate(view)

	var buf bytes.Buffer
	table := tablewriter.NewTable(&buf,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
	)
	table.Header(headers)
	for _, row := range rows {
		table.Append(row)
	}
	if err := table.Render(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Tabulate flattens a view into headers and string rows. Overview and
// active are key/value tables; the list views get one row per entry.
// Shared by the CSV and Markdown exports and the terminal renderer.
func Tabulate(view *View) ([]string, [][]string) {
	switch {
	case view.Overview != nil:
		o := view.Overview
		return []string{"Metric", "Value"}, [][]string{
			{"Currency", o.Currency},
			{"Total Cost", money(o.Financial.TotalCost)},
			{"Current Period Cost", money(o.Financial.CurrentPeriodCost)},
			{"Current Month Cost", money(o.Financial.CurrentMonthCost)},
			{"Today Cost", money(o.Financial.TodayCost)},
			{"Projected Monthly Cost", money(o.Financial.ProjectedMonthlyCost)},
			{"Total Tokens", count(o.Tokens.TotalTokens)},
			{"Input Tokens", count(o.Tokens.InputTokens)},
			{"Output Tokens", count(o.Tokens.OutputTokens)},
			{"Cache Creation Tokens", count(o.Tokens.CacheCreationTokens)},
			{"Cache Read Tokens", count(o.Tokens.CacheReadTokens)},
			{"Sessions", count(o.Sessions.Count)},
			{"Projects", count(o.Sessions.ProjectCount)},
			{"Active Days", count(o.Sessions.ActiveDays)},
			{"First Activity", stamp(o.Sessions.FirstActivity)},
			{"Last Activity", stamp(o.Sessions.LastActivity)},
		}

	case view.Projects != nil:
		headers := []string{"Project", "Cost", "Tokens", "Sessions", "Records", "Last Activity"}
		rows := make([][]string, 0, len(view.Projects))
		for _, p := range view.Projects {
			rows = append(rows, []string{
				p.Project,
				money(p.Cost),
				count(p.TotalTokens),
				count(p.SessionCount),
				count(p.RecordCount),
				stamp(p.LastActivity),
			})
		}
		return headers, rows

	case view.Sessions != nil:
		headers := []string{"Session", "Project", "Start", "Duration (min)", "Cost", "Tokens", "Records", "Windows"}
		rows := make([][]string, 0, len(view.Sessions))
		for _, s := range view.Sessions {
			rows = append(rows, []string{
				s.ShortID,
				s.Project,
				stamp(s.Start),
				strconv.FormatFloat(s.DurationMinutes, 'f', 1, 64),
				money(s.Cost),
				count(s.TotalTokens),
				count(s.RecordCount),
				count(s.Windows),
			})
		}
		return headers, rows

	case view.Daily != nil:
		headers := []string{"Date", "Cost", "Tokens", "Sessions", "Records", "Running Cost"}
		rows := make([][]string, 0, len(view.Daily))
		for _, d := range view.Daily {
			rows = append(rows, []string{
				d.Date,
				money(d.Cost),
				count(d.TotalTokens),
				count(d.SessionCount),
				count(d.RecordCount),
				money(d.RunningCost),
			})
		}
		return headers, rows

	case view.Monthly != nil:
		headers := []string{"Period", "Cost", "Tokens", "Sessions", "Active Days", "Records"}
		rows := make([][]string, 0, len(view.Monthly))
		for _, p := range view.Monthly {
			rows = append(rows, []string{
				p.Period.Label,
				money(p.Cost),
				count(p.TotalTokens),
				count(p.SessionCount),
				count(p.ActiveDays),
				count(p.RecordCount),
			})
		}
		return headers, rows

	case view.Active != nil:
		a := view.Active
		return []string{"Metric", "Value"}, [][]string{
			{"Active", strconv.FormatBool(a.Live.IsActive)},
			{"Last Record", stamp(a.Live.LastRecordAt)},
			{"Records In Window", count(a.Live.RecordsInWindow)},
			{"Tokens In Window", count(a.Live.TokensInWindow)},
			{"Session Start", stamp(a.Timing.CurrentSessionStart)},
			{"Session Duration", a.Timing.CurrentSessionDuration.Round(time.Second).String()},
			{"Session Cost", money(a.Timing.CurrentSessionCost)},
			{"Burn Rate / Hour", money(a.Timing.BurnRatePerHour)},
			{"Work Pattern", string(a.Pattern)},
		}
	}

	return []string{}, nil
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func count(v int) string {
	return strconv.Itoa(v)
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02 15:04:05")
}
