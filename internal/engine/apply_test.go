package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackform-io/stackform/internal/ir"
	"github.com/stackform-io/stackform/internal/provider"
	sdk "github.com/stackform-io/stackform/pkg/provider"
)

// fakeAdapter is an in-test provider with scripted failures and readiness.
// Calls are keyed by the resource's "name" attribute, which every test
// resource sets to its own ID.
type fakeAdapter struct {
	mu      sync.Mutex
	serial  int
	schemas map[string]sdk.Schema

	failCreate map[string]bool // name -> permanent create failure
	failDelete map[string]bool // providerID -> permanent delete failure
	transient  map[string]int  // name -> transient failures before success
	readyAfter map[string]int  // name -> polls reporting not-ready first

	createDelay time.Duration // set before Apply, never mutated after

	creates map[string]int
	updates map[string]int
	polls   map[string]int
	deletes []string // providerIDs in deletion order
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		schemas:    make(map[string]sdk.Schema),
		failCreate: make(map[string]bool),
		failDelete: make(map[string]bool),
		transient:  make(map[string]int),
		readyAfter: make(map[string]int),
		creates:    make(map[string]int),
		updates:    make(map[string]int),
		polls:      make(map[string]int),
	}
}

func (f *fakeAdapter) Schema(typ string) sdk.Schema {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.schemas[typ]
}

func (f *fakeAdapter) Create(ctx context.Context, typ string, attrs map[string]any) (string, map[string]any, error) {
	if f.createDelay > 0 {
		time.Sleep(f.createDelay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	name, _ := attrs["name"].(string)
	f.creates[name]++
	if f.transient[name] > 0 {
		f.transient[name]--
		return "", nil, errors.New("connection refused")
	}
	if f.failCreate[name] {
		return "", nil, errors.New("invalid parameter")
	}

	f.serial++
	providerID := fmt.Sprintf("%s-%d", name, f.serial)
	outputs := map[string]any{"id": providerID}
	for k, v := range attrs {
		outputs[k] = v
	}
	return providerID, outputs, nil
}

// totalCreates counts finished Create calls across all resources.
func (f *fakeAdapter) totalCreates() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.creates {
		n += c
	}
	return n
}

func (f *fakeAdapter) Read(ctx context.Context, typ, providerID string) (map[string]any, bool, error) {
	return nil, false, errors.New("not implemented")
}

func (f *fakeAdapter) Update(ctx context.Context, typ, providerID string, attrs map[string]any) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name, _ := attrs["name"].(string)
	f.updates[name]++

	outputs := map[string]any{"id": providerID}
	for k, v := range attrs {
		outputs[k] = v
	}
	return outputs, nil
}

func (f *fakeAdapter) Delete(ctx context.Context, typ, providerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failDelete[providerID] {
		return errors.New("dependency violation")
	}
	f.deletes = append(f.deletes, providerID)
	return nil
}

func (f *fakeAdapter) IsReady(ctx context.Context, typ string, outputs map[string]any) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name, _ := outputs["name"].(string)
	f.polls[name]++
	return f.polls[name] > f.readyAfter[name], nil
}

// memStore records every write so tests can assert incremental persistence.
type memStore struct {
	mu         sync.Mutex
	records    map[string]*ir.StateRecord
	puts       []string
	removed    []string
	failRemove map[string]bool // id -> Remove returns an error
}

func newMemStore() *memStore {
	return &memStore{
		records:    make(map[string]*ir.StateRecord),
		failRemove: make(map[string]bool),
	}
}

func (s *memStore) Put(ctx context.Context, rec *ir.StateRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
	s.puts = append(s.puts, rec.ID)
	return nil
}

func (s *memStore) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRemove[id] {
		return errors.New("permission denied")
	}
	delete(s.records, id)
	s.removed = append(s.removed, id)
	return nil
}

func fastRetry() *RetryPolicy {
	return &RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func testRes(id, typ string, deps ...string) *ir.Resource {
	return &ir.Resource{
		ID:         id,
		Type:       typ,
		DependsOn:  deps,
		Attributes: map[string]any{"name": id},
	}
}

func newTestExecutor(fake *fakeAdapter, store *memStore) (*Executor, *provider.Registry) {
	registry := provider.NewRegistry()
	registry.Register("test", fake)
	executor := NewExecutor(registry, store)
	executor.Retry = fastRetry()
	return executor, registry
}

func TestApply_CreatesInDependencyOrder(t *testing.T) {
	fake := newFakeAdapter()
	store := newMemStore()
	executor, registry := newTestExecutor(fake, store)

	graph, err := BuildGraph([]*ir.Resource{
		testRes("net", "test:Thing"),
		testRes("cluster", "test:Thing", "net"),
		testRes("service", "test:Thing", "cluster"),
	})
	require.NoError(t, err)

	state := ir.NewState()
	plan, err := NewPlanner(registry).Plan(graph, state)
	require.NoError(t, err)
	require.Equal(t, 3, plan.Summary.Create)

	report, err := executor.Apply(context.Background(), graph, plan, state)
	require.NoError(t, err)
	assert.Equal(t, ir.OutcomeSuccess, report.Outcome)

	// Each record was persisted as soon as its operation settled.
	assert.Equal(t, []string{"net", "cluster", "service"}, store.puts)

	rec := state.Record("service")
	require.NotNil(t, rec)
	assert.Equal(t, ir.StatusReady, rec.Status)
	assert.Equal(t, []string{"cluster"}, rec.Dependencies)
	assert.NotEmpty(t, rec.ProviderID)
	assert.Equal(t, rec.ProviderID, rec.Outputs["id"])
}

func TestApply_SecondRunIsIdempotent(t *testing.T) {
	fake := newFakeAdapter()
	store := newMemStore()
	executor, registry := newTestExecutor(fake, store)

	resources := []*ir.Resource{
		testRes("net", "test:Thing"),
		testRes("cluster", "test:Thing", "net"),
	}
	graph, err := BuildGraph(resources)
	require.NoError(t, err)

	state := ir.NewState()
	planner := NewPlanner(registry)

	plan, err := planner.Plan(graph, state)
	require.NoError(t, err)
	_, err = executor.Apply(context.Background(), graph, plan, state)
	require.NoError(t, err)
	assert.Equal(t, 1, fake.creates["net"])

	// Unchanged manifest: everything is a NoOp, no provider calls.
	plan, err = planner.Plan(graph, state)
	require.NoError(t, err)
	assert.Equal(t, 0, plan.Changes())
	assert.Equal(t, 2, plan.Summary.NoOp)

	report, err := executor.Apply(context.Background(), graph, plan, state)
	require.NoError(t, err)
	assert.Equal(t, ir.OutcomeSuccess, report.Outcome)
	assert.Equal(t, 1, fake.creates["net"])
	assert.Equal(t, 1, fake.creates["cluster"])
	assert.Equal(t, 0, fake.updates["net"])
}

func TestApply_FailureSkipsDependentsOnly(t *testing.T) {
	fake := newFakeAdapter()
	fake.failCreate["balancer"] = true
	store := newMemStore()
	executor, registry := newTestExecutor(fake, store)

	graph, err := BuildGraph([]*ir.Resource{
		testRes("net", "test:Thing"),
		testRes("cluster", "test:Thing", "net"),
		testRes("balancer", "test:Thing", "net"),
		testRes("cert", "test:Thing", "net"),
		testRes("listener", "test:Thing", "balancer", "cert"),
		testRes("service", "test:Thing", "cluster", "listener"),
	})
	require.NoError(t, err)

	state := ir.NewState()
	plan, err := NewPlanner(registry).Plan(graph, state)
	require.NoError(t, err)

	report, err := executor.Apply(context.Background(), graph, plan, state)
	require.NoError(t, err)
	assert.Equal(t, ir.OutcomePartialFailure, report.Outcome)

	// The failure poisons its transitive dependents.
	assert.ElementsMatch(t, []string{"balancer"}, report.Failed())
	assert.ElementsMatch(t, []string{"listener", "service"}, report.SkippedResources())

	// Siblings outside the failed subtree still completed.
	assert.Equal(t, ir.StatusReady, state.Record("cluster").Status)
	assert.Equal(t, ir.StatusReady, state.Record("cert").Status)

	// Skipped resources were never attempted.
	assert.Equal(t, 0, fake.creates["listener"])
	assert.Equal(t, 0, fake.creates["service"])

	// The failure itself was recorded for the next run.
	rec := state.Record("balancer")
	require.NotNil(t, rec)
	assert.Equal(t, ir.StatusFailed, rec.Status)
	assert.Empty(t, rec.ProviderID)
}

func TestApply_ConcurrentFailuresInWideWave(t *testing.T) {
	fake := newFakeAdapter()
	store := newMemStore()
	executor, registry := newTestExecutor(fake, store)

	// One root fanning out to a wave far wider than the parallelism bound,
	// every leaf failing: workers poison resources while the scheduler is
	// still walking the same wave.
	resources := []*ir.Resource{testRes("root", "test:Thing")}
	for i := 0; i < 80; i++ {
		id := fmt.Sprintf("leaf-%02d", i)
		fake.failCreate[id] = true
		resources = append(resources, testRes(id, "test:Thing", "root"))
	}
	graph, err := BuildGraph(resources)
	require.NoError(t, err)

	state := ir.NewState()
	plan, err := NewPlanner(registry).Plan(graph, state)
	require.NoError(t, err)

	report, err := executor.Apply(context.Background(), graph, plan, state)
	require.NoError(t, err)
	assert.Equal(t, ir.OutcomePartialFailure, report.Outcome)

	assert.Equal(t, ir.StatusReady, state.Record("root").Status)
	assert.Len(t, report.Failed(), 80)
	assert.Empty(t, report.SkippedResources())
}

func TestApply_WaitsForReadiness(t *testing.T) {
	fake := newFakeAdapter()
	fake.schemas["test:Slow"] = sdk.Schema{
		Readiness: &sdk.Readiness{PollInterval: time.Millisecond, Timeout: time.Second},
	}
	fake.readyAfter["app"] = 2
	store := newMemStore()
	executor, registry := newTestExecutor(fake, store)

	graph, err := BuildGraph([]*ir.Resource{testRes("app", "test:Slow")})
	require.NoError(t, err)

	state := ir.NewState()
	plan, err := NewPlanner(registry).Plan(graph, state)
	require.NoError(t, err)

	report, err := executor.Apply(context.Background(), graph, plan, state)
	require.NoError(t, err)
	assert.Equal(t, ir.OutcomeSuccess, report.Outcome)

	// Two not-ready polls, then ready.
	assert.Equal(t, 3, fake.polls["app"])
	assert.Equal(t, ir.StatusReady, state.Record("app").Status)
}

func TestApply_ReadinessTimeout(t *testing.T) {
	fake := newFakeAdapter()
	fake.schemas["test:Slow"] = sdk.Schema{
		Readiness: &sdk.Readiness{PollInterval: time.Millisecond, Timeout: 20 * time.Millisecond},
	}
	fake.readyAfter["app"] = 1 << 30
	store := newMemStore()
	executor, registry := newTestExecutor(fake, store)

	graph, err := BuildGraph([]*ir.Resource{testRes("app", "test:Slow")})
	require.NoError(t, err)

	state := ir.NewState()
	plan, err := NewPlanner(registry).Plan(graph, state)
	require.NoError(t, err)

	report, err := executor.Apply(context.Background(), graph, plan, state)
	require.NoError(t, err)
	assert.Equal(t, ir.OutcomePartialFailure, report.Outcome)

	result := report.Results["app"]
	require.NotNil(t, result)
	assert.Contains(t, result.Error, "did not become ready")
	assert.Equal(t, ir.StatusFailed, state.Record("app").Status)
}

func TestApply_RetriesTransientErrors(t *testing.T) {
	fake := newFakeAdapter()
	fake.transient["net"] = 2
	store := newMemStore()
	executor, registry := newTestExecutor(fake, store)

	graph, err := BuildGraph([]*ir.Resource{testRes("net", "test:Thing")})
	require.NoError(t, err)

	state := ir.NewState()
	plan, err := NewPlanner(registry).Plan(graph, state)
	require.NoError(t, err)

	report, err := executor.Apply(context.Background(), graph, plan, state)
	require.NoError(t, err)
	assert.Equal(t, ir.OutcomeSuccess, report.Outcome)
	assert.Equal(t, 3, fake.creates["net"])
}

func TestApply_ReplaceDeletesThenCreates(t *testing.T) {
	fake := newFakeAdapter()
	fake.schemas["test:Thing"] = sdk.Schema{Immutable: []string{"size"}}
	store := newMemStore()
	executor, registry := newTestExecutor(fake, store)

	res := testRes("net", "test:Thing")
	res.Attributes["size"] = "small"
	graph, err := BuildGraph([]*ir.Resource{res})
	require.NoError(t, err)

	state := ir.NewState()
	planner := NewPlanner(registry)

	plan, err := planner.Plan(graph, state)
	require.NoError(t, err)
	_, err = executor.Apply(context.Background(), graph, plan, state)
	require.NoError(t, err)
	oldID := state.Record("net").ProviderID

	// Changing an immutable attribute forces a replace.
	res.Attributes["size"] = "large"
	plan, err = planner.Plan(graph, state)
	require.NoError(t, err)
	require.Equal(t, 1, plan.Summary.Replace)
	op := plan.Operations()[0]
	assert.Equal(t, ir.ActionReplace, op.Action)
	assert.True(t, op.Diff["size"].ForcesReplacement)

	report, err := executor.Apply(context.Background(), graph, plan, state)
	require.NoError(t, err)
	assert.Equal(t, ir.OutcomeSuccess, report.Outcome)

	assert.Equal(t, []string{oldID}, fake.deletes)
	newID := state.Record("net").ProviderID
	assert.NotEqual(t, oldID, newID)
	assert.Equal(t, 2, fake.creates["net"])
}

func TestApply_DeletesInReverseDependencyOrder(t *testing.T) {
	fake := newFakeAdapter()
	store := newMemStore()
	executor, registry := newTestExecutor(fake, store)

	resources := []*ir.Resource{
		testRes("net", "test:Thing"),
		testRes("cluster", "test:Thing", "net"),
		testRes("service", "test:Thing", "cluster"),
	}
	graph, err := BuildGraph(resources)
	require.NoError(t, err)

	state := ir.NewState()
	planner := NewPlanner(registry)
	plan, err := planner.Plan(graph, state)
	require.NoError(t, err)
	_, err = executor.Apply(context.Background(), graph, plan, state)
	require.NoError(t, err)

	ids := map[string]string{}
	for id, rec := range state.Records {
		ids[rec.ProviderID] = id
	}

	// Empty manifest: everything is deleted, dependents first.
	emptyGraph, err := BuildGraph(nil)
	require.NoError(t, err)
	plan, err = planner.Plan(emptyGraph, state)
	require.NoError(t, err)
	assert.Equal(t, 3, plan.Summary.Delete)

	fake.deletes = nil
	report, err := executor.Apply(context.Background(), emptyGraph, plan, state)
	require.NoError(t, err)
	assert.Equal(t, ir.OutcomeSuccess, report.Outcome)

	deleted := make([]string, len(fake.deletes))
	for i, pid := range fake.deletes {
		deleted[i] = ids[pid]
	}
	assert.Equal(t, []string{"service", "cluster", "net"}, deleted)

	assert.Empty(t, state.Records)
	assert.ElementsMatch(t, []string{"service", "cluster", "net"}, store.removed)
}

func TestApply_FailedDeleteBlocksDependencyDelete(t *testing.T) {
	fake := newFakeAdapter()
	store := newMemStore()
	executor, registry := newTestExecutor(fake, store)

	resources := []*ir.Resource{
		testRes("net", "test:Thing"),
		testRes("cluster", "test:Thing", "net"),
	}
	graph, err := BuildGraph(resources)
	require.NoError(t, err)

	state := ir.NewState()
	planner := NewPlanner(registry)
	plan, err := planner.Plan(graph, state)
	require.NoError(t, err)
	_, err = executor.Apply(context.Background(), graph, plan, state)
	require.NoError(t, err)

	fake.failDelete[state.Record("cluster").ProviderID] = true

	emptyGraph, err := BuildGraph(nil)
	require.NoError(t, err)
	plan, err = planner.Plan(emptyGraph, state)
	require.NoError(t, err)

	report, err := executor.Apply(context.Background(), emptyGraph, plan, state)
	require.NoError(t, err)
	assert.Equal(t, ir.OutcomePartialFailure, report.Outcome)

	// net must not be deleted while cluster still exists.
	assert.ElementsMatch(t, []string{"cluster"}, report.Failed())
	assert.ElementsMatch(t, []string{"net"}, report.SkippedResources())
	assert.NotNil(t, state.Record("net"))
}

func TestApply_FailedStateRemoveKeepsRecord(t *testing.T) {
	fake := newFakeAdapter()
	store := newMemStore()
	executor, registry := newTestExecutor(fake, store)

	graph, err := BuildGraph([]*ir.Resource{testRes("net", "test:Thing")})
	require.NoError(t, err)

	state := ir.NewState()
	planner := NewPlanner(registry)
	plan, err := planner.Plan(graph, state)
	require.NoError(t, err)
	_, err = executor.Apply(context.Background(), graph, plan, state)
	require.NoError(t, err)

	store.failRemove["net"] = true

	emptyGraph, err := BuildGraph(nil)
	require.NoError(t, err)
	plan, err = planner.Plan(emptyGraph, state)
	require.NoError(t, err)

	report, err := executor.Apply(context.Background(), emptyGraph, plan, state)
	require.NoError(t, err)
	assert.Equal(t, ir.OutcomePartialFailure, report.Outcome)

	result := report.Results["net"]
	require.NotNil(t, result)
	assert.Contains(t, result.Error, "failed to remove state")

	// The record stays in memory when the store write fails, so the two
	// never diverge.
	assert.NotNil(t, state.Record("net"))
	store.mu.Lock()
	_, persisted := store.records["net"]
	store.mu.Unlock()
	assert.True(t, persisted)
}

func TestApply_CancellationStopsScheduling(t *testing.T) {
	fake := newFakeAdapter()
	store := newMemStore()
	executor, registry := newTestExecutor(fake, store)

	graph, err := BuildGraph([]*ir.Resource{
		testRes("net", "test:Thing"),
		testRes("cluster", "test:Thing", "net"),
	})
	require.NoError(t, err)

	state := ir.NewState()
	plan, err := NewPlanner(registry).Plan(graph, state)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := executor.Apply(ctx, graph, plan, state)
	require.NoError(t, err)
	assert.Equal(t, ir.OutcomeCanceled, report.Outcome)
	assert.Equal(t, 0, fake.creates["net"])
}

func TestApply_CancellationWaitsForInFlight(t *testing.T) {
	fake := newFakeAdapter()
	fake.createDelay = 80 * time.Millisecond
	store := newMemStore()
	executor, registry := newTestExecutor(fake, store)
	executor.Parallelism = 1

	graph, err := BuildGraph([]*ir.Resource{
		testRes("app1", "test:Thing"),
		testRes("app2", "test:Thing"),
		testRes("app3", "test:Thing"),
	})
	require.NoError(t, err)

	state := ir.NewState()
	plan, err := NewPlanner(registry).Plan(graph, state)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	timer := time.AfterFunc(25*time.Millisecond, cancel)
	defer timer.Stop()
	defer cancel()

	report, err := executor.Apply(ctx, graph, plan, state)
	require.NoError(t, err)
	assert.Equal(t, ir.OutcomeCanceled, report.Outcome)

	// app1 was in flight at cancellation and app2 entered the worker pool
	// before the scheduler observed it; both ran to completion before Apply
	// returned. app3 was never scheduled.
	atReturn := fake.totalCreates()
	assert.Equal(t, 2, atReturn)
	assert.Equal(t, 0, fake.creates["app3"])
	assert.Len(t, report.Results, 2)

	// Nothing keeps executing after the report is handed back.
	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, atReturn, fake.totalCreates())
}

func TestApply_ResolvesReferences(t *testing.T) {
	fake := newFakeAdapter()
	store := newMemStore()
	executor, registry := newTestExecutor(fake, store)

	cluster := testRes("cluster", "test:Thing")
	service := testRes("service", "test:Thing")
	service.Attributes["clusterId"] = "ref://cluster/id"

	graph, err := BuildGraph([]*ir.Resource{cluster, service})
	require.NoError(t, err)

	state := ir.NewState()
	plan, err := NewPlanner(registry).Plan(graph, state)
	require.NoError(t, err)

	report, err := executor.Apply(context.Background(), graph, plan, state)
	require.NoError(t, err)
	require.Equal(t, ir.OutcomeSuccess, report.Outcome)

	// The placeholder was substituted with the dependency's output before
	// the provider call; the declared form stays in state.
	rec := state.Record("service")
	assert.Equal(t, state.Record("cluster").ProviderID, rec.Outputs["clusterId"])
	assert.Equal(t, "ref://cluster/id", rec.Attributes["clusterId"])
}

func TestApply_EventsEmitted(t *testing.T) {
	fake := newFakeAdapter()
	store := newMemStore()
	executor, registry := newTestExecutor(fake, store)

	var mu sync.Mutex
	var statuses []string
	executor.Callback = func(event ApplyEvent) {
		mu.Lock()
		statuses = append(statuses, event.Status)
		mu.Unlock()
	}

	graph, err := BuildGraph([]*ir.Resource{testRes("net", "test:Thing")})
	require.NoError(t, err)

	state := ir.NewState()
	plan, err := NewPlanner(registry).Plan(graph, state)
	require.NoError(t, err)
	_, err = executor.Apply(context.Background(), graph, plan, state)
	require.NoError(t, err)

	assert.Equal(t, []string{"started", "completed"}, statuses)
}
