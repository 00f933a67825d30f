package display

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/0xmhha/usage-ledger/pkg/aggregate"
	"github.com/0xmhha/usage-ledger/pkg/gaps"
	"github.com/0xmhha/usage-ledger/pkg/ingest"
	"github.com/0xmhha/usage-ledger/pkg/tabs"
)

func dailyView() *tabs.View {
	return &tabs.View{
		Name: tabs.ViewDaily,
		Daily: []aggregate.DailyUsage{
			{Date: "2025-06-01", Cost: 1.5, TotalTokens: 300, SessionCount: 1, RecordCount: 2, RunningCost: 1.5},
			{Date: "2025-06-02", Cost: 2.5, TotalTokens: 500, SessionCount: 2, RecordCount: 3, RunningCost: 4.0},
		},
	}
}

func TestNew_FormatSelection(t *testing.T) {
	t.Parallel()

	if _, ok := New(Config{Format: FormatJSON}).(*jsonFormatter); !ok {
		t.Error("FormatJSON did not produce a jsonFormatter")
	}
	if _, ok := New(Config{Format: FormatSimple}).(*simpleFormatter); !ok {
		t.Error("FormatSimple did not produce a simpleFormatter")
	}
	if _, ok := New(Config{}).(*tableFormatter); !ok {
		t.Error("empty format did not default to tableFormatter")
	}
}

func TestTableFormatter_View(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := New(Config{Format: FormatTable}).FormatView(&buf, dailyView()); err != nil {
		t.Fatalf("FormatView() error = %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "Daily Usage") {
		t.Error("missing section header")
	}
	for _, want := range []string{"Date", "2025-06-01", "2025-06-02", "1.50", "4.00"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestTableFormatter_CompactSkipsHeader(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	f := New(Config{Format: FormatTable, Compact: true})
	if err := f.FormatView(&buf, dailyView()); err != nil {
		t.Fatalf("FormatView() error = %v", err)
	}
	if strings.Contains(buf.String(), "Daily Usage") {
		t.Error("compact output still has the section header")
	}
}

func TestTableFormatter_EmptyView(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	view := &tabs.View{Name: tabs.ViewProjects, Projects: []aggregate.ProjectBreakdown{}}
	if err := New(Config{Format: FormatTable}).FormatView(&buf, view); err != nil {
		t.Fatalf("FormatView() error = %v", err)
	}
	if !strings.Contains(buf.String(), "No data") {
		t.Errorf("empty view output = %q, want placeholder", buf.String())
	}
}

func TestTableFormatter_IngestResult(t *testing.T) {
	t.Parallel()

	result := &ingest.Result{
		FilesScanned:  3,
		ParsedRecords: 10,
		Inserted:      8,
		StoreDuplicates: 2,
		Watermark:     time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		Duration:      1500 * time.Millisecond,
	}

	var buf bytes.Buffer
	if err := New(Config{Format: FormatTable}).FormatIngestResult(&buf, result); err != nil {
		t.Fatalf("FormatIngestResult() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{"Files Scanned", "Inserted", "2025-06-01 10:00:00", "1.5s"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestJSONFormatter_RoundTrips(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := New(Config{Format: FormatJSON}).FormatView(&buf, dailyView()); err != nil {
		t.Fatalf("FormatView() error = %v", err)
	}

	var decoded tabs.View
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Name != tabs.ViewDaily || len(decoded.Daily) != 2 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestJSONFormatter_CompactIsSingleLine(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	f := New(Config{Format: FormatJSON, Compact: true})
	if err := f.FormatView(&buf, dailyView()); err != nil {
		t.Fatalf("FormatView() error = %v", err)
	}
	if got := strings.Count(strings.TrimSpace(buf.String()), "\n"); got != 0 {
		t.Errorf("compact JSON spans %d extra lines", got+1)
	}
}

func TestSimpleFormatter_View(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := New(Config{Format: FormatSimple}).FormatView(&buf, dailyView()); err != nil {
		t.Fatalf("FormatView() error = %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("len(lines) = %d, want header plus two rows", len(lines))
	}
	if !strings.HasPrefix(lines[0], "Date") {
		t.Errorf("header line = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "2025-06-01") {
		t.Errorf("row line = %q", lines[1])
	}
}

func TestSimpleFormatter_IngestResult(t *testing.T) {
	t.Parallel()

	result := &ingest.Result{FilesScanned: 1, ParsedRecords: 5, Inserted: 5}

	var buf bytes.Buffer
	if err := New(Config{Format: FormatSimple}).FormatIngestResult(&buf, result); err != nil {
		t.Fatalf("FormatIngestResult() error = %v", err)
	}

	out := strings.TrimSpace(buf.String())
	if !strings.Contains(out, "files=1") || !strings.Contains(out, "inserted=5") {
		t.Errorf("output = %q", out)
	}
	if strings.Count(out, "\n") != 0 {
		t.Errorf("summary spans multiple lines: %q", out)
	}
}

func TestFormatGaps(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	analysis := gaps.Analysis{
		Pattern:       gaps.FocusedWorker,
		ActiveMinutes: 90,
		Gaps: []gaps.Gap{
			{Start: start, End: start.Add(45 * time.Minute), DurationMinutes: 45, Type: gaps.ShortBreak},
		},
		Stats: gaps.Stats{
			Count:            1,
			TotalIdleMinutes: 45,
			AvgMinutes:       45,
		},
	}

	var tableBuf bytes.Buffer
	if err := New(Config{Format: FormatTable}).FormatGaps(&tableBuf, analysis); err != nil {
		t.Fatalf("table FormatGaps() error = %v", err)
	}
	for _, want := range []string{"Work Pattern", string(gaps.FocusedWorker), "short-break"} {
		if !strings.Contains(tableBuf.String(), want) {
			t.Errorf("table output missing %q", want)
		}
	}

	var simpleBuf bytes.Buffer
	if err := New(Config{Format: FormatSimple}).FormatGaps(&simpleBuf, analysis); err != nil {
		t.Fatalf("simple FormatGaps() error = %v", err)
	}
	if !strings.Contains(simpleBuf.String(), "pattern=focused") {
		t.Errorf("simple output = %q", simpleBuf.String())
	}
}
