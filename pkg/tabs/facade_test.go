package tabs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/usage-ledger/pkg/aggregate"
	"github.com/0xmhha/usage-ledger/pkg/ingest"
	"github.com/0xmhha/usage-ledger/pkg/logger"
	"github.com/0xmhha/usage-ledger/pkg/store"
	"github.com/0xmhha/usage-ledger/pkg/worker"
)

// fakeClock is an adjustable wall clock for staleness tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func usageLine(ts, session, msgID string) string {
	return fmt.Sprintf(`{"type":"assistant","timestamp":%q,"sessionId":%q,"cwd":"/home/dev/projects/webapp","uuid":"%s-uuid","requestId":"%s-req","message":{"id":%q,"model":"claude-sonnet-4-20250514","usage":{"input_tokens":100,"output_tokens":50,"cache_creation_input_tokens":20,"cache_read_input_tokens":10}}}`,
		ts, session, msgID, msgID, msgID)
}

func writeLog(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))
	return path
}

func appendLog(t *testing.T, path string, lines ...string) {
	t.Helper()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteString(strings.Join(lines, "\n") + "\n")
	require.NoError(t, err)
}

func newTestFacade(t *testing.T, sourceDir string, clock *fakeClock) *Facade {
	t.Helper()

	log := logger.Noop()

	s, err := store.Open(store.Config{
		DBPath: filepath.Join(t.TempDir(), "ledger.db"),
	}, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	coord, err := ingest.New(ingest.Config{
		SourceDirs: []string{sourceDir},
		Store:      s,
	}, log)
	require.NoError(t, err)

	runner := worker.NewRunner(time.Minute, log)
	t.Cleanup(runner.Close)

	f, err := New(Config{
		Store:       s,
		Coordinator: coord,
		Engine:      aggregate.NewEngine(nil, log),
		Runner:      runner,
		Clock:       clock.Now,
	}, log)
	require.NoError(t, err)
	t.Cleanup(f.Close)

	return f
}

func TestGetView_IngestsAndBuildsOverview(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeLog(t, dir, "sess-1.jsonl",
		usageLine("2025-06-01T10:00:00Z", "sess-1", "m1"),
		usageLine("2025-06-01T10:05:00Z", "sess-1", "m2"),
	)

	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	f := newTestFacade(t, dir, clock)

	view, err := f.GetView(context.Background(), ViewOverview)
	require.NoError(t, err)
	require.NotNil(t, view.Overview)

	assert.Equal(t, ViewOverview, view.Name)
	assert.Equal(t, "USD", view.Overview.Currency)
	assert.Equal(t, 1, view.Overview.Sessions.Count)
	assert.Greater(t, view.Overview.Financial.TotalCost, 0.0)
	assert.Equal(t, 360, view.Overview.Tokens.TotalTokens)

	require.NotNil(t, f.Metrics())
	assert.Equal(t, 2, f.Metrics().RecordCount)
}

func TestGetView_UnknownView(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	f := newTestFacade(t, dir, clock)

	_, err := f.GetView(context.Background(), ViewName("bogus"))
	assert.ErrorIs(t, err, ErrUnknownView)
}

func TestGetView_ServesCachedWithinStaleness(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeLog(t, dir, "sess-1.jsonl",
		usageLine("2025-06-01T10:00:00Z", "sess-1", "m1"),
	)

	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	f := newTestFacade(t, dir, clock)

	view, err := f.GetView(context.Background(), ViewOverview)
	require.NoError(t, err)
	require.Equal(t, 180, view.Overview.Tokens.TotalTokens)

	appendLog(t, path, usageLine("2025-06-01T12:00:30Z", "sess-1", "m2"))

	// Ten seconds later the overview is still within its window: the
	// appended record is not visible yet.
	clock.Advance(10 * time.Second)
	view, err = f.GetView(context.Background(), ViewOverview)
	require.NoError(t, err)
	assert.Equal(t, 180, view.Overview.Tokens.TotalTokens)

	// Past the staleness window a refresh picks it up.
	clock.Advance(time.Minute)
	view, err = f.GetView(context.Background(), ViewOverview)
	require.NoError(t, err)
	assert.Equal(t, 360, view.Overview.Tokens.TotalTokens)
}

func TestGetView_PerViewFreshnessClocks(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeLog(t, dir, "sess-1.jsonl",
		usageLine("2025-06-01T10:00:00Z", "sess-1", "m1"),
	)

	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	f := newTestFacade(t, dir, clock)

	view, err := f.GetView(context.Background(), ViewOverview)
	require.NoError(t, err)
	require.Equal(t, 180, view.Overview.Tokens.TotalTokens)

	appendLog(t, path, usageLine("2025-06-01T12:00:30Z", "sess-1", "m2"))

	// Forty seconds on: the overview window (30s) has expired but the
	// monthly window (5m) has not. The monthly view accepts the existing
	// snapshot, so the appended record stays invisible to it.
	clock.Advance(40 * time.Second)
	view, err = f.GetView(context.Background(), ViewMonthly)
	require.NoError(t, err)
	require.Len(t, view.Monthly, 1)
	assert.Equal(t, 180, view.Monthly[0].TotalTokens)

	// The overview, on its own clock, is past due and rebuilds.
	view, err = f.GetView(context.Background(), ViewOverview)
	require.NoError(t, err)
	assert.Equal(t, 360, view.Overview.Tokens.TotalTokens)

	// Monthly is still inside its window; it may now serve the fresher
	// shared snapshot without triggering another rebuild.
	view, err = f.GetView(context.Background(), ViewMonthly)
	require.NoError(t, err)
	assert.Equal(t, 360, view.Monthly[0].TotalTokens)
}

func TestForceRefresh_BypassesStaleness(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeLog(t, dir, "sess-1.jsonl",
		usageLine("2025-06-01T10:00:00Z", "sess-1", "m1"),
	)

	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	f := newTestFacade(t, dir, clock)

	_, err := f.GetView(context.Background(), ViewOverview)
	require.NoError(t, err)

	appendLog(t, path, usageLine("2025-06-01T12:00:00Z", "sess-1", "m2"))

	view, err := f.ForceRefresh(context.Background(), ViewOverview)
	require.NoError(t, err)
	assert.Equal(t, 360, view.Overview.Tokens.TotalTokens)
}

func TestForceRefreshAll_ReReadsWithoutDuplicating(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeLog(t, dir, "sess-1.jsonl",
		usageLine("2025-06-01T10:00:00Z", "sess-1", "m1"),
		usageLine("2025-06-01T10:05:00Z", "sess-1", "m2"),
	)

	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	f := newTestFacade(t, dir, clock)

	_, err := f.GetView(context.Background(), ViewOverview)
	require.NoError(t, err)

	require.NoError(t, f.ForceRefreshAll(context.Background()))

	// Every file was re-read; the identity index kept the count stable.
	assert.Equal(t, 2, f.Metrics().RecordCount)
	assert.Equal(t, 360, f.Metrics().Tokens.TotalTokens)
}

func TestFacade_Closed(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	f := newTestFacade(t, dir, clock)
	f.Close()

	_, err := f.GetView(context.Background(), ViewOverview)
	assert.ErrorIs(t, err, ErrFacadeClosed)

	_, err = f.ForceRefresh(context.Background(), ViewOverview)
	assert.ErrorIs(t, err, ErrFacadeClosed)

	assert.ErrorIs(t, f.ForceRefreshAll(context.Background()), ErrFacadeClosed)
}

func TestExportView_Formats(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeLog(t, dir, "sess-1.jsonl",
		usageLine("2025-06-01T10:00:00Z", "sess-1", "m1"),
		usageLine("2025-06-01T10:05:00Z", "sess-1", "m2"),
	)

	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	f := newTestFacade(t, dir, clock)
	ctx := context.Background()

	out, err := f.ExportView(ctx, ViewDaily, FormatJSON)
	require.NoError(t, err)
	var decoded View
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, ViewDaily, decoded.Name)
	require.Len(t, decoded.Daily, 1)
	assert.Equal(t, "2025-06-01", decoded.Daily[0].Date)

	out, err = f.ExportView(ctx, ViewDaily, FormatCSV)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Date,Cost,Tokens,Sessions,Records,Running Cost", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "2025-06-01,"))

	out, err = f.ExportView(ctx, ViewSessions, FormatMarkdown)
	require.NoError(t, err)
	assert.Contains(t, string(out), "|")
	assert.Contains(t, string(out), "webapp")

	_, err = f.ExportView(ctx, ViewDaily, ExportFormat("xml"))
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestTabulate_Shapes(t *testing.T) {
	t.Parallel()

	overview := &View{Overview: &OverviewData{Currency: "USD"}}
	headers, rows := Tabulate(overview)
	assert.Equal(t, []string{"Metric", "Value"}, headers)
	assert.NotEmpty(t, rows)
	assert.Equal(t, "Currency", rows[0][0])

	daily := &View{Daily: []aggregate.DailyUsage{{Date: "2025-06-01", Cost: 1.5}}}
	headers, rows = Tabulate(daily)
	require.Len(t, rows, 1)
	assert.Len(t, rows[0], len(headers))
	assert.Equal(t, "2025-06-01", rows[0][0])
	assert.Equal(t, "1.50", rows[0][1])
}
