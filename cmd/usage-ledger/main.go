// Package main provides the usage-ledger CLI.
//
// usage-ledger ingests Claude Code JSONL usage logs into an embedded
// store and serves derived analytics: session, project, daily and
// billing-period rollups, gap analysis and live activity.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// version is set during build time.
var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	root := newRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var g globalFlags

	root := &cobra.Command{
		Use:     "usage-ledger",
		Short:   "Claude Code usage ingestion and analytics",
		Long:    "usage-ledger ingests Claude Code JSONL usage logs into a local store\nand reports costs, tokens, sessions, billing periods and usage gaps.",
		Version: version,

		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&g.configPath, "config", "", "path to configuration file")
	root.PersistentFlags().StringVarP(&g.format, "format", "f", "table", "output format (table, json, simple)")
	root.PersistentFlags().BoolVar(&g.compact, "compact", false, "compact output")

	root.AddCommand(
		newIngestCommand(&g),
		newStatsCommand(&g),
		newSessionsCommand(&g),
		newProjectsCommand(&g),
		newDailyCommand(&g),
		newBillingCommand(&g),
		newGapsCommand(&g),
		newWatchCommand(&g),
		newExportCommand(&g),
		newResetCommand(&g),
	)

	return root
}
