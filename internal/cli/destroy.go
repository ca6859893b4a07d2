package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stackform-io/stackform/internal/engine"
	"github.com/stackform-io/stackform/internal/ir"
	"github.com/stackform-io/stackform/internal/provider"
)

var destroyAutoApprove bool

var destroyCmd = &cobra.Command{
	Use:   "destroy",
	Short: "Delete every resource in state",
	Long: `Plans against an empty desired set, deleting everything recorded in
state in reverse dependency order.`,
	RunE: runDestroy,
}

func init() {
	destroyCmd.Flags().BoolVar(&destroyAutoApprove, "auto-approve", false, "Skip interactive approval")
}

func runDestroy(cmd *cobra.Command, args []string) error {
	store, err := newStore()
	if err != nil {
		return err
	}

	if err := store.Lock(); err != nil {
		return err
	}
	defer store.Unlock()

	ctx := cmd.Context()

	st, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}
	if len(st.Records) == 0 {
		fmt.Println("Nothing to destroy. State is empty.")
		return nil
	}

	// An empty desired set plans every record for deletion.
	graph, err := engine.BuildGraph(nil)
	if err != nil {
		return err
	}

	registry := provider.NewRegistry()
	if err := loadRequiredProviders(registry, nil, st); err != nil {
		return err
	}

	plan, err := engine.NewPlanner(registry).Plan(graph, st)
	if err != nil {
		return err
	}

	renderPlan(plan)

	if !destroyAutoApprove {
		if !confirm("\nDestroy all resources above?") {
			fmt.Println("Destroy canceled.")
			return nil
		}
	}

	executor := engine.NewExecutor(registry, store)
	executor.Parallelism = parallelism
	executor.Callback = progressPrinter

	fmt.Println()
	report, err := executor.Apply(ctx, graph, plan, st)
	if err != nil {
		return err
	}

	renderReport(report)
	if report.Outcome == ir.OutcomePartialFailure {
		return fmt.Errorf("%d resources failed", len(report.Failed()))
	}
	return nil
}
