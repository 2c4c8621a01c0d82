package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var opportunitiesLimit int

var opportunitiesCmd = &cobra.Command{
	Use:   "opportunities",
	Short: "List deployments by estimated curation yield",
	Args:  cobra.NoArgs,
	RunE:  runOpportunities,
}

func init() {
	rootCmd.AddCommand(opportunitiesCmd)
	opportunitiesCmd.Flags().IntVar(&opportunitiesLimit, "limit", 25, "Number of deployments to show (0 = all)")
}

func runOpportunities(cmd *cobra.Command, args []string) error {
	if opportunitiesLimit < 0 {
		return fmt.Errorf("--limit must be non-negative")
	}

	engine, err := newEngine()
	if err != nil {
		return err
	}
	report, err := engine.Catalog(cmd.Context())
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	opps := report.Opportunities
	if opportunitiesLimit > 0 && len(opps) > opportunitiesLimit {
		opps = opps[:opportunitiesLimit]
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		report.Opportunities = opps
		return writeJSON(out, report)
	}
	return renderCatalog(out, report, opps)
}
