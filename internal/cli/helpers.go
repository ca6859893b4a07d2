package cli

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/stackform-io/stackform/internal/engine"
	"github.com/stackform-io/stackform/internal/ir"
	"github.com/stackform-io/stackform/internal/manifest"
	"github.com/stackform-io/stackform/internal/provider"
	"github.com/stackform-io/stackform/internal/state"
)

const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
)

// newStore builds the state store from the backend flags.
func newStore() (state.Store, error) {
	return state.NewStore(state.Config{
		Type:    backendType,
		Path:    statePath,
		Options: backendConfig,
	})
}

// loadGraph parses the manifest and builds the dependency graph.
func loadGraph(path string) (*engine.Graph, error) {
	m, err := manifest.Load(path)
	if err != nil {
		return nil, err
	}
	return engine.BuildGraph(m.Resources)
}

// loadRequiredProviders loads every provider referenced by the graph or by
// records already in state. State-only providers are needed for deletes.
func loadRequiredProviders(registry *provider.Registry, graph *engine.Graph, st *ir.State) error {
	seen := make(map[string]bool)
	load := func(name string) error {
		if name == "" || seen[name] {
			return nil
		}
		seen[name] = true
		if err := registry.Load(name); err != nil {
			return fmt.Errorf("failed to load provider %s: %w", name, err)
		}
		return nil
	}

	if graph != nil {
		for _, id := range graph.IDs() {
			if err := load(graph.Resource(id).ProviderName()); err != nil {
				return err
			}
		}
	}
	if st != nil {
		for _, rec := range st.Records {
			res := ir.Resource{Type: rec.Type}
			if err := load(res.ProviderName()); err != nil {
				return err
			}
		}
	}
	return nil
}

func actionSymbol(a ir.Action) (symbol, color string) {
	switch a {
	case ir.ActionCreate:
		return "+", colorGreen
	case ir.ActionDelete:
		return "-", colorRed
	case ir.ActionReplace:
		return "-/+", colorYellow
	case ir.ActionUpdate:
		return "~", colorYellow
	default:
		return " ", colorReset
	}
}

// renderPlan prints the plan wave by wave.
func renderPlan(plan *ir.Plan) {
	if plan.Changes() == 0 {
		fmt.Println("No changes. Infrastructure matches the manifest.")
		return
	}

	for i, wave := range plan.Waves {
		fmt.Printf("\nWave %d:\n", i+1)
		for _, op := range wave {
			if op.Action == ir.ActionNoOp {
				continue
			}
			symbol, color := actionSymbol(op.Action)
			typ := opType(op)
			fmt.Printf("%s  %s %s (%s)%s\n", color, symbol, op.ResourceID, typ, colorReset)
			renderDiff(op)
		}
	}

	s := plan.Summary
	fmt.Printf("\nPlan: %d to create, %d to update, %d to replace, %d to delete, %d unchanged.\n",
		s.Create+s.Replace, s.Update, s.Replace, s.Delete, s.NoOp)
}

func opType(op *ir.Operation) string {
	if op.Desired != nil {
		return op.Desired.Type
	}
	if op.Prior != nil {
		return op.Prior.Type
	}
	return "?"
}

func renderDiff(op *ir.Operation) {
	keys := make([]string, 0, len(op.Diff))
	for k := range op.Diff {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		d := op.Diff[k]
		switch d.Action {
		case "create":
			fmt.Printf("%s      + %s = %s%s\n", colorGreen, k, formatValue(d.After), colorReset)
		case "delete":
			fmt.Printf("%s      - %s = %s%s\n", colorRed, k, formatValue(d.Before), colorReset)
		default:
			suffix := ""
			if d.ForcesReplacement {
				suffix = " (forces replacement)"
			}
			fmt.Printf("%s      ~ %s = %s -> %s%s%s\n", colorYellow, k, formatValue(d.Before), formatValue(d.After), suffix, colorReset)
		}
	}
}

func formatValue(v any) string {
	if v == nil {
		return "null"
	}
	if s, ok := v.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprintf("%v", v)
}

// renderReport prints the per-resource apply results and the overall outcome.
func renderReport(report *ir.ApplyReport) {
	ids := make([]string, 0, len(report.Results))
	for id := range report.Results {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	succeeded := 0
	for _, id := range ids {
		res := report.Results[id]
		switch {
		case res.Skipped:
			fmt.Printf("%s  skipped %s (blocked by failed dependency)%s\n", colorYellow, res.ResourceID, colorReset)
		case res.Error != "":
			fmt.Printf("%s  failed  %s: %s%s\n", colorRed, res.ResourceID, res.Error, colorReset)
		default:
			succeeded++
		}
	}

	switch report.Outcome {
	case ir.OutcomeSuccess:
		fmt.Printf("\n%sApply complete. %d resources reconciled.%s\n", colorGreen, succeeded, colorReset)
	case ir.OutcomeCanceled:
		fmt.Printf("\n%sApply canceled. %d resources reconciled before interruption.%s\n", colorYellow, succeeded, colorReset)
	default:
		fmt.Printf("\n%sApply finished with errors: %d failed, %d skipped, %d reconciled.%s\n",
			colorRed, len(report.Failed()), len(report.SkippedResources()), succeeded, colorReset)
	}
}

// confirm prompts for a yes/no answer on stdin.
func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func progressPrinter(event engine.ApplyEvent) {
	switch event.Status {
	case "started":
		fmt.Printf("  %s: %s...\n", event.ResourceID, strings.ToLower(string(event.Action)))
	case "completed":
		fmt.Printf("  %s: done (%s)\n", event.ResourceID, event.Duration.Round(time.Millisecond))
	case "failed":
		fmt.Printf("%s  %s: error: %v%s\n", colorRed, event.ResourceID, event.Err, colorReset)
	}
}
