package display

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/0xmhha/usage-ledger/pkg/gaps"
	"github.com/0xmhha/usage-ledger/pkg/ingest"
	"github.com/0xmhha/usage-ledger/pkg/tabs"
)

// simpleFormatter renders plain aligned text without borders. Suited
// to piping into other tools.
type simpleFormatter struct {
	config Config
}

func (f *simpleFormatter) FormatView(w io.Writer, view *tabs.View) error {
	headers, rows := tabs.Tabulate(view)
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "no data")
		return err
	}
	return writeAligned(w, headers, rows)
}

func (f *simpleFormatter) FormatIngestResult(w io.Writer, result *ingest.Result) error {
	_, err := fmt.Fprintf(w,
		"files=%d parsed=%d inserted=%d duplicates=%d skipped_lines=%d repaired=%d duration=%s\n",
		result.FilesScanned,
		result.ParsedRecords,
		result.Inserted,
		result.BatchDuplicates+result.StoreDuplicates,
		result.LinesSkipped,
		result.RepairedTimestamps,
		result.Duration.Round(time.Millisecond))
	return err
}

func (f *simpleFormatter) FormatGaps(w io.Writer, analysis gaps.Analysis) error {
	if _, err := fmt.Fprintf(w, "pattern=%s gaps=%d active_minutes=%.0f idle_minutes=%.0f\n",
		analysis.Pattern,
		analysis.Stats.Count,
		analysis.ActiveMinutes,
		analysis.Stats.TotalIdleMinutes); err != nil {
		return err
	}

	for _, g := range analysis.Gaps {
		if _, err := fmt.Fprintf(w, "%s  %s  %6.0fm  %s\n",
			g.Start.Format(time.RFC3339),
			g.End.Format(time.RFC3339),
			g.DurationMinutes,
			g.Type); err != nil {
			return err
		}
	}
	return nil
}

// writeAligned pads every column to its widest cell.
func writeAligned(w io.Writer, headers []string, rows [][]string) error {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	writeRow := func(cells []string) error {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
		}
		_, err := fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
		return err
	}

	if err := writeRow(headers); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writeRow(row); err != nil {
			return err
		}
	}
	return nil
}
