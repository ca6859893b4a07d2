package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/stackform-io/stackform/internal/ir"
	"github.com/stackform-io/stackform/internal/logging"
	"github.com/stackform-io/stackform/internal/provider"
	sdk "github.com/stackform-io/stackform/pkg/provider"
)

// Planner diffs a desired resource graph against persisted state and lays
// the result out as waves of mutually independent operations.
type Planner struct {
	registry *provider.Registry
}

func NewPlanner(registry *provider.Registry) *Planner {
	return &Planner{registry: registry}
}

// Plan classifies every desired resource as Create/Update/Replace/NoOp,
// plans a Delete for every state record with no desired counterpart, and
// layers the operations into waves. Forward waves follow dependency order;
// delete waves follow reverse dependency order and run last.
func (p *Planner) Plan(graph *Graph, state *ir.State) (*ir.Plan, error) {
	logging.Debug("creating plan", "resources", len(graph.IDs()), "state_records", len(state.Records))

	plan := &ir.Plan{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Summary:   &ir.PlanSummary{},
	}

	ops := make(map[string]*ir.Operation, len(graph.IDs()))
	for _, id := range graph.IDs() {
		op, err := p.planResource(graph.Resource(id), state.Record(id))
		if err != nil {
			return nil, err
		}
		ops[id] = op

		switch op.Action {
		case ir.ActionCreate:
			plan.Summary.Create++
		case ir.ActionUpdate:
			plan.Summary.Update++
		case ir.ActionReplace:
			plan.Summary.Replace++
		case ir.ActionNoOp:
			plan.Summary.NoOp++
		}
	}

	plan.Waves = forwardWaves(graph, ops)

	deleteWaves := p.planDeletes(graph, state, plan.Summary)
	plan.Waves = append(plan.Waves, deleteWaves...)

	return plan, nil
}

// planResource decides the action for one desired resource.
func (p *Planner) planResource(res *ir.Resource, rec *ir.StateRecord) (*ir.Operation, error) {
	op := &ir.Operation{ResourceID: res.ID, Desired: res, Prior: rec}

	if rec == nil {
		op.Action = ir.ActionCreate
		op.Diff = createDiff(res.Attributes)
		return op, nil
	}

	// A record that never reached Ready is retried: resume the create if
	// the provider never assigned an ID, otherwise reconcile in place.
	if rec.Status != ir.StatusReady && rec.ProviderID == "" {
		op.Action = ir.ActionCreate
		op.Diff = createDiff(res.Attributes)
		return op, nil
	}

	diff := attributeDiff(rec.Attributes, res.Attributes)
	if len(diff) == 0 && rec.Status == ir.StatusReady {
		op.Action = ir.ActionNoOp
		return op, nil
	}
	op.Diff = diff

	schema, err := p.schema(res)
	if err != nil {
		return nil, err
	}
	immutable := make(map[string]bool, len(schema.Immutable))
	for _, attr := range schema.Immutable {
		immutable[attr] = true
	}

	op.Action = ir.ActionUpdate
	for attr, d := range diff {
		if immutable[attr] {
			d.ForcesReplacement = true
			op.Action = ir.ActionReplace
		}
	}
	return op, nil
}

// planDeletes plans removals for records absent from the desired set, in
// reverse dependency order: a resource is deleted only after everything
// depending on it.
func (p *Planner) planDeletes(graph *Graph, state *ir.State, summary *ir.PlanSummary) []ir.Wave {
	doomed := make(map[string]*ir.StateRecord)
	for id, rec := range state.Records {
		if graph.Resource(id) == nil {
			doomed[id] = rec
		}
	}
	if len(doomed) == 0 {
		return nil
	}

	// Reverse layering over the recorded dependency edges restricted to
	// the doomed set: level(x) = 1 + max(level(dependents of x)).
	dependents := make(map[string][]string)
	for id, rec := range doomed {
		for _, dep := range rec.Dependencies {
			if _, ok := doomed[dep]; ok {
				dependents[dep] = append(dependents[dep], id)
			}
		}
	}

	level := make(map[string]int)
	var levelOf func(id string, guard int) int
	levelOf = func(id string, guard int) int {
		if l, ok := level[id]; ok {
			return l
		}
		// guard caps recursion; state cycles cannot happen through the
		// validated graph but a corrupt state file must not hang us.
		if guard > len(doomed) {
			return 0
		}
		l := 0
		for _, dep := range dependents[id] {
			if dl := levelOf(dep, guard+1) + 1; dl > l {
				l = dl
			}
		}
		level[id] = l
		return l
	}

	maxLevel := 0
	for id := range doomed {
		if l := levelOf(id, 0); l > maxLevel {
			maxLevel = l
		}
	}

	waves := make([]ir.Wave, maxLevel+1)
	for id, rec := range doomed {
		op := &ir.Operation{
			ResourceID: id,
			Action:     ir.ActionDelete,
			Prior:      rec,
			Diff:       deleteDiff(rec.Attributes),
		}
		waves[level[id]] = append(waves[level[id]], op)
		summary.Delete++
	}
	for _, w := range waves {
		sortWave(w)
	}
	return waves
}

func (p *Planner) schema(res *ir.Resource) (sdk.Schema, error) {
	adapter, err := p.registry.Get(res.ProviderName())
	if err != nil {
		return sdk.Schema{}, fmt.Errorf("resource %s: %w", res.ID, err)
	}
	return adapter.Schema(res.Type), nil
}

// forwardWaves layers desired operations by dependency depth. Ties within
// a wave are ordered by resource ID for reproducible diagnostics.
func forwardWaves(graph *Graph, ops map[string]*ir.Operation) []ir.Wave {
	level := make(map[string]int, len(ops))
	var levelOf func(id string) int
	levelOf = func(id string) int {
		if l, ok := level[id]; ok {
			return l
		}
		l := 0
		for _, dep := range graph.Dependencies(id) {
			if dl := levelOf(dep) + 1; dl > l {
				l = dl
			}
		}
		level[id] = l
		return l
	}

	maxLevel := -1
	for _, id := range graph.IDs() {
		if l := levelOf(id); l > maxLevel {
			maxLevel = l
		}
	}
	if maxLevel < 0 {
		return nil
	}

	waves := make([]ir.Wave, maxLevel+1)
	for _, id := range graph.IDs() {
		waves[level[id]] = append(waves[level[id]], ops[id])
	}
	for _, w := range waves {
		sortWave(w)
	}
	return waves
}

func sortWave(w ir.Wave) {
	sort.Slice(w, func(i, j int) bool { return w[i].ResourceID < w[j].ResourceID })
}

// attributeDiff compares last-applied and desired attributes. References
// are compared in declared (unresolved) form so that planning never needs
// a live provider.
func attributeDiff(prior, desired map[string]any) map[string]*ir.AttributeDiff {
	diff := make(map[string]*ir.AttributeDiff)

	allKeys := make(map[string]bool)
	for k := range prior {
		allKeys[k] = true
	}
	for k := range desired {
		allKeys[k] = true
	}

	for k := range allKeys {
		priorVal, inPrior := prior[k]
		desiredVal, inDesired := desired[k]

		switch {
		case !inPrior:
			diff[k] = &ir.AttributeDiff{After: desiredVal, Action: "create"}
		case !inDesired:
			diff[k] = &ir.AttributeDiff{Before: priorVal, Action: "delete"}
		case fmt.Sprintf("%v", priorVal) != fmt.Sprintf("%v", desiredVal):
			diff[k] = &ir.AttributeDiff{Before: priorVal, After: desiredVal, Action: "update"}
		}
	}

	if len(diff) == 0 {
		return nil
	}
	return diff
}

func createDiff(attrs map[string]any) map[string]*ir.AttributeDiff {
	diff := make(map[string]*ir.AttributeDiff, len(attrs))
	for k, v := range attrs {
		diff[k] = &ir.AttributeDiff{After: v, Action: "create"}
	}
	return diff
}

func deleteDiff(attrs map[string]any) map[string]*ir.AttributeDiff {
	diff := make(map[string]*ir.AttributeDiff, len(attrs))
	for k, v := range attrs {
		diff[k] = &ir.AttributeDiff{Before: v, Action: "delete"}
	}
	return diff
}
