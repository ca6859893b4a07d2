package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stackform-io/stackform/internal/ir"
	"github.com/stackform-io/stackform/internal/logging"
	"github.com/stackform-io/stackform/internal/provider"
	sdk "github.com/stackform-io/stackform/pkg/provider"
)

const defaultParallelism = 10

// StateWriter is the slice of the state store the executor needs. The
// executor is the only writer; the caller holds the apply lock around the
// whole run.
type StateWriter interface {
	Put(ctx context.Context, rec *ir.StateRecord) error
	Remove(ctx context.Context, id string) error
}

// ApplyEvent represents a progress event during apply.
type ApplyEvent struct {
	ResourceID string
	Action     ir.Action
	Status     string // "started", "completed", "failed", "skipped"
	Duration   time.Duration
	Err        error
}

// ApplyCallback is called for each apply event if set.
type ApplyCallback func(event ApplyEvent)

// Executor applies a plan wave by wave. Waves run sequentially; operations
// within a wave run concurrently up to Parallelism.
type Executor struct {
	registry *provider.Registry
	store    StateWriter

	// Parallelism bounds concurrent operations within a wave.
	Parallelism int

	// Callback receives progress events if set.
	Callback ApplyCallback

	// Retry governs transient provider error retries.
	Retry *RetryPolicy
}

func NewExecutor(registry *provider.Registry, store StateWriter) *Executor {
	return &Executor{
		registry:    registry,
		store:       store,
		Parallelism: defaultParallelism,
		Retry:       DefaultRetryPolicy(),
	}
}

// Apply executes the plan against the in-memory state, persisting each
// record immediately after its own operation settles. A failed resource
// poisons its transitive dependents (they are skipped, never executed);
// siblings outside the failed subtree continue. Cancellation stops
// scheduling new operations; in-flight ones finish.
func (e *Executor) Apply(ctx context.Context, graph *Graph, plan *ir.Plan, state *ir.State) (*ir.ApplyReport, error) {
	report := &ir.ApplyReport{
		Outcome: ir.OutcomeSuccess,
		Results: make(map[string]*ir.ResourceResult),
	}

	var mu sync.Mutex // guards state and report
	poisoned := make(map[string]bool)
	blockers := deleteBlockers(plan)
	canceled := false

	for _, wave := range plan.Waves {
		var g errgroup.Group
		g.SetLimit(e.parallelism())

		for _, op := range wave {
			if op.Action == ir.ActionNoOp {
				mu.Lock()
				report.Results[op.ResourceID] = &ir.ResourceResult{
					ResourceID:  op.ResourceID,
					Action:      ir.ActionNoOp,
					FinalStatus: ir.StatusReady,
				}
				mu.Unlock()
				continue
			}

			// A failed or skipped blocker poisons this operation.
			if dep := e.failedBlocker(op, graph, blockers, poisoned, &mu); dep != "" {
				mu.Lock()
				poisoned[op.ResourceID] = true
				report.Results[op.ResourceID] = &ir.ResourceResult{
					ResourceID:  op.ResourceID,
					Action:      op.Action,
					FinalStatus: priorStatus(op),
					Skipped:     true,
					Error:       fmt.Sprintf("skipped: dependency %s failed", dep),
				}
				mu.Unlock()
				e.emit(ApplyEvent{ResourceID: op.ResourceID, Action: op.Action, Status: "skipped"})
				continue
			}

			if ctx.Err() != nil {
				canceled = true
				break
			}

			g.Go(func() error {
				start := time.Now()
				e.emit(ApplyEvent{ResourceID: op.ResourceID, Action: op.Action, Status: "started"})

				result := e.execute(ctx, op, state, graph, &mu)

				mu.Lock()
				report.Results[op.ResourceID] = result
				if result.FinalStatus == ir.StatusFailed {
					poisoned[op.ResourceID] = true
				}
				mu.Unlock()

				status := "completed"
				var opErr error
				if result.Error != "" {
					status = "failed"
					opErr = fmt.Errorf("%s", result.Error)
				}
				e.emit(ApplyEvent{ResourceID: op.ResourceID, Action: op.Action, Status: status, Duration: time.Since(start), Err: opErr})
				return nil
			})
		}

		// The wave always drains before the run moves on or returns, so
		// cancellation lets in-flight operations finish.
		if err := g.Wait(); err != nil {
			return report, err
		}
		if canceled {
			break
		}
	}

	switch {
	case canceled:
		report.Outcome = ir.OutcomeCanceled
	case len(poisoned) > 0:
		report.Outcome = ir.OutcomePartialFailure
	}
	return report, nil
}

func (e *Executor) parallelism() int {
	if e.Parallelism > 0 {
		return e.Parallelism
	}
	return defaultParallelism
}

func (e *Executor) emit(event ApplyEvent) {
	if e.Callback != nil {
		e.Callback(event)
	}
}

// failedBlocker returns the first poisoned blocker of op, or "". Workers
// in the same wave write poisoned concurrently, so the read holds mu.
func (e *Executor) failedBlocker(op *ir.Operation, graph *Graph, blockers map[string][]string, poisoned map[string]bool, mu *sync.Mutex) string {
	var deps []string
	if op.Action == ir.ActionDelete {
		deps = blockers[op.ResourceID]
	} else {
		deps = graph.Dependencies(op.ResourceID)
	}

	mu.Lock()
	defer mu.Unlock()
	for _, dep := range deps {
		if poisoned[dep] {
			return dep
		}
	}
	return ""
}

// deleteBlockers maps each planned Delete to the Deletes that must settle
// first: the recorded dependents of its resource.
func deleteBlockers(plan *ir.Plan) map[string][]string {
	doomed := make(map[string]*ir.Operation)
	for _, op := range plan.Operations() {
		if op.Action == ir.ActionDelete {
			doomed[op.ResourceID] = op
		}
	}

	blockers := make(map[string][]string)
	for id, op := range doomed {
		if op.Prior == nil {
			continue
		}
		for _, dep := range op.Prior.Dependencies {
			if _, ok := doomed[dep]; ok {
				blockers[dep] = append(blockers[dep], id)
			}
		}
	}
	return blockers
}

// execute runs a single operation end to end: provider call, readiness
// wait, state write. It never panics the wave; any error lands in the
// result with status Failed.
func (e *Executor) execute(ctx context.Context, op *ir.Operation, state *ir.State, graph *Graph, mu *sync.Mutex) *ir.ResourceResult {
	result := &ir.ResourceResult{ResourceID: op.ResourceID, Action: op.Action}
	logging.Debug("applying operation", "resource", op.ResourceID, "action", op.Action)

	var err error
	switch op.Action {
	case ir.ActionCreate, ir.ActionUpdate, ir.ActionReplace:
		err = e.applyChange(ctx, op, state, graph, mu)
	case ir.ActionDelete:
		err = e.applyDelete(ctx, op, state, mu)
	}

	if err != nil {
		result.FinalStatus = ir.StatusFailed
		result.Error = err.Error()
		return result
	}

	if op.Action == ir.ActionDelete {
		result.FinalStatus = ir.StatusDestroyed
	} else {
		result.FinalStatus = ir.StatusReady
	}
	return result
}

// applyChange handles Create, Update and Replace. Replace deletes the old
// provider object first, then creates the new one; immutable attribute
// changes never update in place.
func (e *Executor) applyChange(ctx context.Context, op *ir.Operation, state *ir.State, graph *Graph, mu *sync.Mutex) error {
	res := op.Desired
	adapter, err := e.registry.Get(res.ProviderName())
	if err != nil {
		return &ProviderError{ResourceID: res.ID, Op: "resolve", Err: err}
	}

	mu.Lock()
	attrs, err := resolveReferences(res.Attributes, state)
	mu.Unlock()
	if err != nil {
		return &ProviderError{ResourceID: res.ID, Op: "resolve", Err: err}
	}
	resolved, _ := attrs.(map[string]any)

	providerID := ""
	if op.Prior != nil {
		providerID = op.Prior.ProviderID
	}

	var outputs map[string]any
	action := op.Action
	if action == ir.ActionReplace {
		if err := e.deleteWithRetry(ctx, adapter, res.Type, res.ID, providerID); err != nil {
			e.persistFailure(ctx, op, providerID, state, mu)
			return err
		}
		providerID = ""
		action = ir.ActionCreate
	}

	switch action {
	case ir.ActionCreate:
		err = RetryWithBackoff(ctx, e.Retry, func() error {
			var callErr error
			providerID, outputs, callErr = adapter.Create(ctx, res.Type, resolved)
			return callErr
		}, IsTransientError)
		if err != nil {
			err = &ProviderError{ResourceID: res.ID, Op: "create", Err: err}
		}
	case ir.ActionUpdate:
		err = RetryWithBackoff(ctx, e.Retry, func() error {
			var callErr error
			outputs, callErr = adapter.Update(ctx, res.Type, providerID, resolved)
			return callErr
		}, IsTransientError)
		if err != nil {
			err = &ProviderError{ResourceID: res.ID, Op: "update", Err: err}
		}
	}
	if err != nil {
		e.persistFailure(ctx, op, providerID, state, mu)
		return err
	}

	if schema := adapter.Schema(res.Type); schema.Readiness != nil {
		if err := e.waitForReady(ctx, adapter, res, outputs, schema.Readiness); err != nil {
			e.persistFailure(ctx, op, providerID, state, mu)
			return err
		}
	}

	rec := &ir.StateRecord{
		ID:           res.ID,
		Type:         res.Type,
		ProviderID:   providerID,
		Attributes:   res.Attributes,
		Outputs:      outputs,
		Dependencies: graph.Dependencies(res.ID),
		Status:       ir.StatusReady,
	}
	return e.persist(ctx, rec, state, mu)
}

func (e *Executor) applyDelete(ctx context.Context, op *ir.Operation, state *ir.State, mu *sync.Mutex) error {
	rec := op.Prior
	if rec == nil {
		return nil
	}

	providerName := (&ir.Resource{Type: rec.Type}).ProviderName()
	adapter, err := e.registry.Get(providerName)
	if err != nil {
		return &ProviderError{ResourceID: rec.ID, Op: "resolve", Err: err}
	}

	if err := e.deleteWithRetry(ctx, adapter, rec.Type, rec.ID, rec.ProviderID); err != nil {
		e.persistFailure(ctx, op, rec.ProviderID, state, mu)
		return err
	}

	// Store first, memory second, so a failed write never leaves the
	// in-memory state ahead of what is persisted.
	if err := e.store.Remove(ctx, rec.ID); err != nil {
		return fmt.Errorf("failed to remove state for %s: %w", rec.ID, err)
	}
	mu.Lock()
	delete(state.Records, rec.ID)
	mu.Unlock()
	return nil
}

func (e *Executor) deleteWithRetry(ctx context.Context, adapter sdk.Adapter, typ, id, providerID string) error {
	if providerID == "" {
		return nil
	}
	err := RetryWithBackoff(ctx, e.Retry, func() error {
		return adapter.Delete(ctx, typ, providerID)
	}, IsTransientError)
	if err != nil {
		return &ProviderError{ResourceID: id, Op: "delete", Err: err}
	}
	return nil
}

// persist writes a record to the store and the in-memory state. Writes are
// incremental so a crash mid-apply leaves state consistent with whatever
// actually completed.
func (e *Executor) persist(ctx context.Context, rec *ir.StateRecord, state *ir.State, mu *sync.Mutex) error {
	if err := e.store.Put(ctx, rec); err != nil {
		return fmt.Errorf("failed to persist state for %s: %w", rec.ID, err)
	}
	mu.Lock()
	state.Records[rec.ID] = rec
	mu.Unlock()
	return nil
}

// persistFailure records a Failed status for the resource. providerID is
// the caller's current knowledge: empty once the old object is gone, so a
// resumed run plans a fresh create instead of updating a ghost.
func (e *Executor) persistFailure(ctx context.Context, op *ir.Operation, providerID string, state *ir.State, mu *sync.Mutex) {
	rec := &ir.StateRecord{
		ID:         op.ResourceID,
		ProviderID: providerID,
		Status:     ir.StatusFailed,
	}
	if op.Desired != nil {
		rec.Type = op.Desired.Type
		rec.Attributes = op.Desired.Attributes
	}
	if op.Prior != nil {
		rec.Dependencies = op.Prior.Dependencies
		if rec.Type == "" {
			rec.Type = op.Prior.Type
		}
		if rec.Attributes == nil {
			rec.Attributes = op.Prior.Attributes
		}
	}
	if err := e.store.Put(ctx, rec); err != nil {
		logging.Warn("failed to persist failure record", "resource", op.ResourceID, "error", err)
		return
	}
	mu.Lock()
	state.Records[op.ResourceID] = rec
	mu.Unlock()
}

func priorStatus(op *ir.Operation) ir.Status {
	if op.Prior != nil {
		return op.Prior.Status
	}
	return ir.StatusAbsent
}

// resolveReferences substitutes every ref:// placeholder with the target
// resource's output attribute from state. References were turned into
// graph edges at build time, so by the time an operation runs its targets
// are Ready; a miss here is a hard error, not silent interpolation.
func resolveReferences(v any, state *ir.State) (any, error) {
	switch val := v.(type) {
	case string:
		ref, ok := ir.ParseRef(val)
		if !ok {
			return val, nil
		}
		rec := state.Record(ref.TargetID)
		if rec == nil {
			return nil, fmt.Errorf("reference %s: no state for resource %s", val, ref.TargetID)
		}
		if out, ok := rec.Outputs[ref.Attribute]; ok {
			return out, nil
		}
		if in, ok := rec.Attributes[ref.Attribute]; ok {
			return in, nil
		}
		return nil, fmt.Errorf("reference %s: resource %s has no attribute %s", val, ref.TargetID, ref.Attribute)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			rv, err := resolveReferences(v, state)
			if err != nil {
				return nil, err
			}
			out[k] = rv
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			rv, err := resolveReferences(v, state)
			if err != nil {
				return nil, err
			}
			out[fmt.Sprintf("%v", k)] = rv
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, v := range val {
			rv, err := resolveReferences(v, state)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	default:
		return val, nil
	}
}
