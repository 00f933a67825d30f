package main

import (
	"fmt"

	"github.com/0xmhha/usage-ledger/pkg/aggregate"
	"github.com/0xmhha/usage-ledger/pkg/config"
	"github.com/0xmhha/usage-ledger/pkg/display"
	"github.com/0xmhha/usage-ledger/pkg/ingest"
	"github.com/0xmhha/usage-ledger/pkg/logger"
	"github.com/0xmhha/usage-ledger/pkg/pricing"
	"github.com/0xmhha/usage-ledger/pkg/store"
	"github.com/0xmhha/usage-ledger/pkg/tabs"
	"github.com/0xmhha/usage-ledger/pkg/worker"
)

// globalFlags carries flags shared by every command.
type globalFlags struct {
	configPath string
	format     string
	compact    bool
}

// formatter builds the display formatter for the chosen flags.
func (g *globalFlags) formatter() display.Formatter {
	return display.New(display.Config{
		Format:  display.Format(g.format),
		Compact: g.compact,
	})
}

// app holds the wired component graph behind every command.
type app struct {
	cfg    *config.Config
	log    logger.Logger
	store  store.Store
	coord  *ingest.Coordinator
	runner *worker.Runner
	facade *tabs.Facade
}

// newApp loads configuration and wires store, coordinator, engine,
// runner and facade.
func newApp(g *globalFlags) (*app, error) {
	cfg, err := config.NewLoader(g.configPath).Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Output: cfg.Logging.Output,
		Format: cfg.Logging.Format,
	})

	st, err := store.Open(store.Config{
		DBPath:    cfg.Storage.DBPath,
		BackupDir: cfg.Storage.BackupDir,
	}, logger.WithComponent(log, "store"))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	coord, err := ingest.New(ingest.Config{
		SourceDirs: cfg.SourceDirs,
		Store:      st,
		BatchSize:  cfg.Ingestion.BatchSize,
	}, logger.WithComponent(log, "ingest"))
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create coordinator: %w", err)
	}

	engine := aggregate.NewEngine(pricing.NewStaticCurrency(nil), logger.WithComponent(log, "aggregate"))
	runner := worker.NewRunner(cfg.Aggregation.RecomputeTimeout, logger.WithComponent(log, "worker"))

	facade, err := tabs.New(tabs.Config{
		Store:           st,
		Coordinator:     coord,
		Engine:          engine,
		Runner:          runner,
		Currency:        cfg.Currency.Code,
		BillingCycleDay: cfg.Billing.CycleDay,
		ActiveWindow:    cfg.Aggregation.ActiveWindow,
	}, logger.WithComponent(log, "tabs"))
	if err != nil {
		runner.Close()
		st.Close()
		return nil, fmt.Errorf("failed to create facade: %w", err)
	}

	return &app{
		cfg:    cfg,
		log:    log,
		store:  st,
		coord:  coord,
		runner: runner,
		facade: facade,
	}, nil
}

// close releases the component graph in reverse wiring order.
func (a *app) close() {
	a.facade.Close()
	a.runner.Close()
	if err := a.store.Close(); err != nil {
		a.log.Error("failed to close store", "error", err)
	}
}
