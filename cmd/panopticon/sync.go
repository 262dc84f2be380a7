package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/panopticon/internal/classify"
	"github.com/jonathan/panopticon/internal/observability"
)

var (
	syncForce   bool
	syncVerbose bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one refresh and classification cycle",
	Long:  `Fetch leads with appointments from the CRM (cache-served when fresh), classify their follow-up health, and print a summary. Use --force to bypass the cached lead list.`,
	RunE:  runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&syncForce, "force", false, "Drop cached lead and delivery lists before syncing")
	syncCmd.Flags().BoolVarP(&syncVerbose, "verbose", "v", false, "Print the classified lead list")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, _ []string) error {
	app, err := buildApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := cmd.Context()
	cycle := app.orchestrator.Cycle
	if syncForce {
		cycle = app.orchestrator.ForceRefresh
	}
	result, err := cycle(ctx)
	if err != nil {
		return fmt.Errorf("refresh cycle failed: %w", err)
	}

	printer := observability.NewPrinter(os.Stdout)
	printer.PrintPartial(result.Partial)
	printer.PrintSummary(classify.CountStatuses(result.Leads))
	if syncVerbose {
		printer.PrintLeads(result.Leads)
	}
	return nil
}
