package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/0xmhha/usage-ledger/pkg/gaps"
	"github.com/0xmhha/usage-ledger/pkg/store"
	"github.com/0xmhha/usage-ledger/pkg/tabs"
)

// newIngestCommand runs a single ingestion pass and prints its summary.
func newIngestCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Run one ingestion pass over the source directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(g)
			if err != nil {
				return err
			}
			defer a.close()

			result, err := a.coord.Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("ingestion failed: %w", err)
			}

			return g.formatter().FormatIngestResult(os.Stdout, result)
		},
	}
}

// newViewCommand builds a command that prints one facade view.
func newViewCommand(g *globalFlags, use, short string, view tabs.ViewName) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(g)
			if err != nil {
				return err
			}
			defer a.close()

			var v *tabs.View
			if refresh {
				v, err = a.facade.ForceRefresh(cmd.Context(), view)
			} else {
				v, err = a.facade.GetView(cmd.Context(), view)
			}
			if err != nil {
				return err
			}

			return g.formatter().FormatView(os.Stdout, v)
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "discard the cached snapshot and recompute")
	return cmd
}

func newStatsCommand(g *globalFlags) *cobra.Command {
	return newViewCommand(g, "stats", "Show the usage overview", tabs.ViewOverview)
}

func newSessionsCommand(g *globalFlags) *cobra.Command {
	return newViewCommand(g, "sessions", "Show per-session usage", tabs.ViewSessions)
}

func newProjectsCommand(g *globalFlags) *cobra.Command {
	return newViewCommand(g, "projects", "Show per-project usage", tabs.ViewProjects)
}

func newDailyCommand(g *globalFlags) *cobra.Command {
	return newViewCommand(g, "daily", "Show daily usage with running totals", tabs.ViewDaily)
}

func newBillingCommand(g *globalFlags) *cobra.Command {
	return newViewCommand(g, "billing", "Show billing-period rollups", tabs.ViewMonthly)
}

// newGapsCommand analyzes idle intervals between records.
func newGapsCommand(g *globalFlags) *cobra.Command {
	var since string

	cmd := &cobra.Command{
		Use:   "gaps",
		Short: "Show usage gaps and the inferred work pattern",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(g)
			if err != nil {
				return err
			}
			defer a.close()

			if _, err := a.coord.Run(cmd.Context()); err != nil {
				return fmt.Errorf("ingestion failed: %w", err)
			}

			filter := store.Filter{}
			if since != "" {
				from, parseErr := time.ParseInLocation("2006-01-02", since, time.Local)
				if parseErr != nil {
					return fmt.Errorf("invalid --since date, use YYYY-MM-DD: %w", parseErr)
				}
				filter.Since = from
			}

			records, err := a.store.Scan(filter)
			if err != nil {
				return fmt.Errorf("failed to scan records: %w", err)
			}

			return g.formatter().FormatGaps(os.Stdout, gaps.Analyze(records))
		},
	}

	cmd.Flags().StringVar(&since, "since", "", "only consider records from this date (YYYY-MM-DD)")
	return cmd
}

// newResetCommand clears everything: records, positions, watermark.
func newResetCommand(g *globalFlags) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all stored records and start over",
		Long:  "Deletes every stored record, file position and watermark.\nThe next ingestion pass runs as an initial load.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("reset deletes all stored data; re-run with --yes to confirm")
			}

			a, err := newApp(g)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.coord.Reset(); err != nil {
				return err
			}

			fmt.Fprintln(os.Stdout, "store cleared")
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	return cmd
}
