package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/0xmhha/usage-ledger/pkg/logger"
	"github.com/0xmhha/usage-ledger/pkg/tabs"
	"github.com/0xmhha/usage-ledger/pkg/watcher"
)

// newWatchCommand runs continuous ingestion: filesystem events and a
// periodic ticker both trigger a pass, and the chosen view is redrawn
// after each one.
func newWatchCommand(g *globalFlags) *cobra.Command {
	var (
		viewName string
		interval time.Duration
		history  bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Continuously ingest and redraw a view",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(g)
			if err != nil {
				return err
			}
			defer a.close()

			if interval <= 0 {
				interval = a.cfg.Ingestion.WatchInterval
			}

			w, err := watcher.New(watcher.Config{
				DebounceInterval: a.cfg.Ingestion.DebounceInterval,
			}, logger.WithComponent(a.log, "watcher"))
			if err != nil {
				return fmt.Errorf("failed to create watcher: %w", err)
			}
			defer w.Close()

			ctx := cmd.Context()
			if err := w.Start(ctx, a.cfg.SourceDirs); err != nil {
				return fmt.Errorf("failed to start watcher: %w", err)
			}

			view := tabs.ViewName(strings.ToLower(viewName))
			formatter := g.formatter()

			redraw := func() {
				v, viewErr := a.facade.GetView(ctx, view)
				if viewErr != nil {
					a.log.Error("refresh failed", "error", viewErr)
					return
				}
				if !history {
					fmt.Fprint(os.Stdout, "\033[2J\033[H")
				}
				if fmtErr := formatter.FormatView(os.Stdout, v); fmtErr != nil {
					a.log.Error("failed to render view", "error", fmtErr)
				}
			}

			// Initial pass before waiting on events.
			redraw()

			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					fmt.Fprintln(os.Stdout)
					return nil

				case <-ticker.C:
					redraw()

				case ev, ok := <-w.Events():
					if !ok {
						return nil
					}
					a.log.Debug("source change", "path", ev.Path, "op", ev.Op)
					redraw()

				case werr, ok := <-w.Errors():
					if !ok {
						return nil
					}
					a.log.Error("watcher error", "error", werr)
				}
			}
		},
	}

	cmd.Flags().StringVar(&viewName, "view", string(tabs.ViewActive), "view to redraw (overview, projects, sessions, daily, monthly, active)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "periodic refresh interval (default from config)")
	cmd.Flags().BoolVar(&history, "history", false, "append output instead of clearing the screen")
	return cmd
}
