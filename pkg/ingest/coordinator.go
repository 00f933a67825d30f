package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/0xmhha/usage-ledger/pkg/parser"
	"github.com/0xmhha/usage-ledger/pkg/pricing"
	"github.com/0xmhha/usage-ledger/pkg/store"
)

// Config contains coordinator configuration.
type Config struct {
	// SourceDirs are the log roots to scan.
	SourceDirs []string

	// Store receives parsed records and tracks positions/watermark.
	Store store.Store

	// Parser parses JSONL lines. Default: parser.New().
	Parser parser.Parser

	// Calculator prices records before insertion.
	// Default: pricing.NewCalculator(nil) (built-in tiers).
	Calculator *pricing.Calculator

	// Discoverer finds source files. Default: NewDiscoverer(SourceDirs).
	Discoverer Discoverer

	// BatchSize caps records per insert transaction. Default: 500.
	BatchSize int
}

// Result summarizes one ingestion pass.
type Result struct {
	// FilesScanned is the number of files with new bytes this pass.
	FilesScanned int `json:"files_scanned"`

	// LinesSkipped counts non-usage lines (expected, not errors).
	LinesSkipped int `json:"lines_skipped"`

	// ParsedRecords counts records produced by the parser.
	ParsedRecords int `json:"parsed_records"`

	// WatermarkSkipped counts records filtered by the watermark.
	WatermarkSkipped int `json:"watermark_skipped"`

	// BatchDuplicates counts duplicates caught within this pass.
	BatchDuplicates int `json:"batch_duplicates"`

	// StoreDuplicates counts candidates the store already had.
	StoreDuplicates int `json:"store_duplicates"`

	// Inserted is the number of new rows.
	Inserted int `json:"inserted"`

	// RepairedTimestamps counts records whose timestamp was substituted.
	RepairedTimestamps int `json:"repaired_timestamps"`

	// Watermark is the high-water mark after the pass.
	Watermark time.Time `json:"watermark"`

	// Duration is the wall-clock time of the pass.
	Duration time.Duration `json:"duration"`
}

// Coordinator drives incremental ingestion passes.
//
// Single-writer discipline: concurrent Run calls do not overlap. A
// second trigger while a pass is running waits for the in-flight pass
// and returns its result rather than double-processing.
type Coordinator struct {
	config Config
	logger Logger

	mu      sync.Mutex
	state   State
	pending *pendingRun
}

// pendingRun carries the in-flight pass result to concurrent callers.
type pendingRun struct {
	done   chan struct{}
	result *Result
	err    error
}

// New creates a Coordinator.
//
// The initial ingestion state is derived from the store's watermark:
// an empty store means initial load, otherwise incremental.
func New(cfg Config, log Logger) (*Coordinator, error) {
	if cfg.Store == nil {
		return nil, ErrStoreRequired
	}
	if cfg.Parser == nil {
		cfg.Parser = parser.New()
	}
	if cfg.Calculator == nil {
		cfg.Calculator = pricing.NewCalculator(nil)
	}
	if cfg.Discoverer == nil {
		cfg.Discoverer = NewDiscoverer(cfg.SourceDirs, log)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}

	watermark, found, err := cfg.Store.LastTimestamp()
	if err != nil {
		return nil, fmt.Errorf("failed to read watermark: %w", err)
	}

	log.Info("ingestion coordinator created",
		"initial_load", !found,
		"batch_size", cfg.BatchSize)

	return &Coordinator{
		config: cfg,
		logger: log,
		state:  stateFromWatermark(watermark, found),
	}, nil
}

// State returns a copy of the current ingestion state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run executes one ingestion pass.
//
// If a pass is already in flight, Run blocks until it completes and
// returns that pass's result (no-op trigger semantics).
func (c *Coordinator) Run(ctx context.Context) (*Result, error) {
	c.mu.Lock()
	if c.pending != nil {
		p := c.pending
		c.mu.Unlock()

		select {
		case <-p.done:
			return p.result, p.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p := &pendingRun{done: make(chan struct{})}
	c.pending = p
	st := c.state
	c.mu.Unlock()

	result, err := c.runPass(ctx, st)

	c.mu.Lock()
	if err == nil {
		c.state = State{
			LastProcessedTimestamp: result.Watermark,
			IsInitialLoad:          false,
		}
	}
	p.result = result
	p.err = err
	c.pending = nil
	c.mu.Unlock()

	close(p.done)
	return result, err
}

// runPass performs the actual discovery and pipeline work.
func (c *Coordinator) runPass(ctx context.Context, st State) (*Result, error) {
	started := time.Now()
	result := &Result{}

	files, err := c.config.Discoverer.Discover()
	if err != nil {
		return nil, fmt.Errorf("discovery failed: %w", err)
	}

	dedup := NewDeduplicator()

	for _, file := range files {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if err := c.ingestFile(file, st, dedup, result); err != nil {
			// One bad file must not abort the pass.
			c.logger.Error("failed to ingest file",
				"path", file.Path,
				"error", err)
		}
	}

	watermark, found, err := c.config.Store.LastTimestamp()
	if err != nil {
		return nil, fmt.Errorf("failed to read watermark after pass: %w", err)
	}
	if found {
		result.Watermark = watermark
	}

	result.Duration = time.Since(started)

	c.logger.Info("ingestion pass complete",
		"files", result.FilesScanned,
		"parsed", result.ParsedRecords,
		"inserted", result.Inserted,
		"duplicates", result.BatchDuplicates+result.StoreDuplicates,
		"repaired_timestamps", result.RepairedTimestamps,
		"duration", result.Duration)

	return result, nil
}

// ingestFile streams one file's new lines through the pipeline.
func (c *Coordinator) ingestFile(file SourceFile, st State, dedup *Deduplicator, result *Result) error {
	offset, err := c.config.Store.GetPosition(file.Path)
	if err != nil {
		return fmt.Errorf("failed to get position: %w", err)
	}

	// Truncated or rotated files restart from the beginning; the
	// identity index absorbs any re-reads.
	if offset > file.Size {
		c.logger.Warn("file shrank since last pass, re-reading",
			"path", file.Path,
			"old_offset", offset,
			"size", file.Size)
		offset = 0
	}

	if offset == file.Size {
		// No new bytes.
		return nil
	}

	parsed, err := c.config.Parser.ParseFile(file.Path, offset)
	if err != nil {
		return fmt.Errorf("failed to parse: %w", err)
	}

	result.FilesScanned++
	result.LinesSkipped += parsed.SkippedLines
	result.ParsedRecords += len(parsed.Records)
	result.RepairedTimestamps += parsed.RepairedTimestamps

	batch := make([]parser.UsageRecord, 0, c.config.BatchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		inserted, insertErr := c.config.Store.InsertBatch(batch)
		if insertErr != nil {
			return fmt.Errorf("failed to insert batch: %w", insertErr)
		}
		result.Inserted += inserted
		result.StoreDuplicates += len(batch) - inserted
		batch = batch[:0]
		return nil
	}

	for i := range parsed.Records {
		rec := parsed.Records[i]

		if !st.candidate(rec.Timestamp) {
			result.WatermarkSkipped++
			continue
		}

		if dedup.Seen(&rec) {
			result.BatchDuplicates++
			continue
		}

		rec.CostUSD = c.config.Calculator.Cost(rec.Model, pricing.Usage{
			InputTokens:         rec.InputTokens,
			OutputTokens:        rec.OutputTokens,
			CacheCreationTokens: rec.CacheCreationTokens,
			CacheReadTokens:     rec.CacheReadTokens,
		})

		batch = append(batch, rec)
		if len(batch) >= c.config.BatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}

	if err := flush(); err != nil {
		return err
	}

	if err := c.config.Store.SetPosition(file.Path, parsed.NewOffset); err != nil {
		// Not fatal: next pass re-reads and the identity index dedups.
		c.logger.Error("failed to update position",
			"path", file.Path,
			"offset", parsed.NewOffset,
			"error", err)
	}

	return nil
}

// ResetWatermark clears the watermark filter and all per-file byte
// offsets so the next pass re-reads everything. Stored records are kept;
// the identity index suppresses re-inserts.
//
// IsInitialLoad is deliberately left untouched: only Reset may set it.
func (c *Coordinator) ResetWatermark() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.config.Store.ResetPositions(); err != nil {
		return fmt.Errorf("failed to reset positions: %w", err)
	}

	c.state.LastProcessedTimestamp = time.Time{}
	c.logger.Info("watermark tracking reset")
	return nil
}

// Reset performs the explicit full reset: every stored record, position
// and watermark is removed and the coordinator returns to initial-load
// state. This is the only operation allowed to set IsInitialLoad back
// to true.
func (c *Coordinator) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending != nil {
		return ErrPassInFlight
	}

	if err := c.config.Store.ClearAll(); err != nil {
		return fmt.Errorf("failed to clear store: %w", err)
	}

	c.state = NewState()
	c.logger.Warn("full reset performed")
	return nil
}
