package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var allocateCapital float64

var allocateCmd = &cobra.Command{
	Use:   "allocate",
	Short: "Propose a greedy allocation of new signal across the catalog",
	Args:  cobra.NoArgs,
	RunE:  runAllocate,
}

func init() {
	rootCmd.AddCommand(allocateCmd)
	allocateCmd.Flags().Float64Var(&allocateCapital, "capital", 0, "Capital to allocate, in tokens")
	_ = allocateCmd.MarkFlagRequired("capital")
}

func runAllocate(cmd *cobra.Command, args []string) error {
	engine, err := newEngine()
	if err != nil {
		return err
	}
	run, err := engine.Allocate(cmd.Context(), allocateCapital)
	if err != nil {
		return fmt.Errorf("allocation failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return writeJSON(out, run)
	}
	return renderAllocation(out, run)
}
