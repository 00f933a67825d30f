package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/0xmhha/usage-ledger/pkg/tabs"
)

// newExportCommand renders one view to a file or stdout.
func newExportCommand(g *globalFlags) *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export <view>",
		Short: "Export a view as json, csv or markdown",
		Long: "Exports one view (overview, projects, sessions, daily, monthly, active)\n" +
			"in the requested format.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(g)
			if err != nil {
				return err
			}
			defer a.close()

			data, err := a.facade.ExportView(cmd.Context(),
				tabs.ViewName(strings.ToLower(args[0])),
				tabs.ExportFormat(strings.ToLower(format)))
			if err != nil {
				return err
			}

			if output == "" {
				_, err = os.Stdout.Write(data)
				return err
			}

			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			fmt.Fprintf(os.Stdout, "wrote %s (%d bytes)\n", output, len(data))
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "export-format", "json", "export format (json, csv, markdown)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}
