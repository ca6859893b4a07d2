package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stackform-io/stackform/internal/engine"
	"github.com/stackform-io/stackform/internal/provider"
)

var planOutFile string

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show what an apply would change",
	Long: `Compares the manifest against recorded state and prints the planned
operations grouped into execution waves. Nothing is changed.`,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVarP(&planOutFile, "out", "o", "", "Write the plan as JSON to a file")
}

func runPlan(cmd *cobra.Command, args []string) error {
	graph, err := loadGraph(manifestFile)
	if err != nil {
		return renderValidationFailure(err)
	}

	store, err := newStore()
	if err != nil {
		return err
	}

	st, err := store.Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}

	registry := provider.NewRegistry()
	if err := loadRequiredProviders(registry, graph, st); err != nil {
		return err
	}

	plan, err := engine.NewPlanner(registry).Plan(graph, st)
	if err != nil {
		return err
	}

	renderPlan(plan)

	if planOutFile != "" {
		raw, err := json.MarshalIndent(plan, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode plan: %w", err)
		}
		if err := os.WriteFile(planOutFile, raw, 0o644); err != nil {
			return fmt.Errorf("failed to write plan to %s: %w", planOutFile, err)
		}
		fmt.Printf("\nPlan written to %s\n", planOutFile)
	}
	return nil
}
