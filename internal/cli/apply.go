package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stackform-io/stackform/internal/engine"
	"github.com/stackform-io/stackform/internal/ir"
	"github.com/stackform-io/stackform/internal/provider"
)

var applyAutoApprove bool

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Reconcile infrastructure to match the manifest",
	Long: `Plans and executes the changes needed to make recorded state match
the manifest. Independent resources are applied concurrently; a failed
resource skips its dependents but leaves unrelated resources untouched.`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().BoolVar(&applyAutoApprove, "auto-approve", false, "Skip interactive approval of the plan")
}

func runApply(cmd *cobra.Command, args []string) error {
	graph, err := loadGraph(manifestFile)
	if err != nil {
		return renderValidationFailure(err)
	}

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

	registry := provider.NewRegistry()
	if err := loadRequiredProviders(registry, graph, st); err != nil {
		return err
	}

	plan, err := engine.NewPlanner(registry).Plan(graph, st)
	if err != nil {
		return err
	}

	renderPlan(plan)
	if plan.Changes() == 0 {
		return nil
	}

	if !applyAutoApprove {
		if !confirm("\nProceed with apply?") {
			fmt.Println("Apply canceled.")
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
