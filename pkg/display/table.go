package display

import (
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/0xmhha/usage-ledger/pkg/gaps"
	"github.com/0xmhha/usage-ledger/pkg/ingest"
	"github.com/0xmhha/usage-ledger/pkg/tabs"
)

// narrowTerminal is the width below which tables drop row separators.
const narrowTerminal = 100

// tableFormatter renders bordered tables.
type tableFormatter struct {
	config Config
}

// FormatView implements Formatter.FormatView.
func (f *tableFormatter) FormatView(w io.Writer, view *tabs.View) error {
	if !f.config.Compact {
		if err := writeHeader(w, viewTitle(string(view.Name)), false); err != nil {
			return err
		}
	}

	headers, rows := tabs.Tabulate(view)
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No data")
		return err
	}

	return f.writeTable(w, headers, rows)
}

// FormatIngestResult implements Formatter.FormatIngestResult.
func (f *tableFormatter) FormatIngestResult(w io.Writer, result *ingest.Result) error {
	if !f.config.Compact {
		if err := writeHeader(w, "Ingestion Summary", false); err != nil {
			return err
		}
	}

	rows := [][]string{
		{"Files Scanned", fmt.Sprintf("%d", result.FilesScanned)},
		{"Parsed Records", fmt.Sprintf("%d", result.ParsedRecords)},
		{"Inserted", fmt.Sprintf("%d", result.Inserted)},
		{"Watermark Skipped", fmt.Sprintf("%d", result.WatermarkSkipped)},
		{"Duplicates", fmt.Sprintf("%d", result.BatchDuplicates+result.StoreDuplicates)},
		{"Skipped Lines", fmt.Sprintf("%d", result.LinesSkipped)},
		{"Repaired Timestamps", fmt.Sprintf("%d", result.RepairedTimestamps)},
		{"Duration", result.Duration.Round(time.Millisecond).String()},
	}
	if !result.Watermark.IsZero() {
		rows = append(rows, []string{"Watermark", result.Watermark.Format("2006-01-02 15:04:05")})
	}

	return f.writeTable(w, []string{"Metric", "Value"}, rows)
}

// FormatGaps implements Formatter.FormatGaps.
func (f *tableFormatter) FormatGaps(w io.Writer, analysis gaps.Analysis) error {
	if !f.config.Compact {
		if err := writeHeader(w, "Usage Gaps", false); err != nil {
			return err
		}
	}

	summary := [][]string{
		{"Work Pattern", string(analysis.Pattern)},
		{"Gap Count", fmt.Sprintf("%d", analysis.Stats.Count)},
		{"Active Minutes", fmt.Sprintf("%.0f", analysis.ActiveMinutes)},
		{"Total Idle Minutes", fmt.Sprintf("%.0f", analysis.Stats.TotalIdleMinutes)},
		{"Avg Gap Minutes", fmt.Sprintf("%.1f", analysis.Stats.AvgMinutes)},
	}
	if err := f.writeTable(w, []string{"Metric", "Value"}, summary); err != nil {
		return err
	}

	if len(analysis.Gaps) == 0 {
		return nil
	}

	rows := make([][]string, 0, len(analysis.Gaps))
	for _, g := range analysis.Gaps {
		rows = append(rows, []string{
			g.Start.Format("2006-01-02 15:04"),
			g.End.Format("2006-01-02 15:04"),
			fmt.Sprintf("%.0f", g.DurationMinutes),
			string(g.Type),
		})
	}

	return f.writeTable(w, []string{"Start", "End", "Minutes", "Type"}, rows)
}

// writeTable renders one table with tablewriter.
func (f *tableFormatter) writeTable(w io.Writer, headers []string, rows [][]string) error {
	separators := tw.On
	if width := terminalWidth(w); width > 0 && width < narrowTerminal {
		separators = tw.Off
	}

	table := tablewriter.NewTable(w,
		tablewriter.WithRenderer(renderer.NewBlueprint(tw.Rendition{
			Settings: tw.Settings{Separators: tw.Separators{BetweenRows: separators}},
		})),
		tablewriter.WithConfig(tablewriter.Config{
			Row: tw.CellConfig{
				Alignment: tw.CellAlignment{Global: tw.AlignRight},
			},
		}),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)

	table.Header(headers)
	for _, row := range rows {
		table.Append(row)
	}
	if err := table.Render(); err != nil {
		return err
	}

	if !f.config.Compact {
		_, err := fmt.Fprintln(w)
		return err
	}
	return nil
}
