package engine

import (
	"fmt"
	"sort"

	"github.com/stackform-io/stackform/internal/ir"
)

// Graph is the dependency DAG over a desired resource set. An edge A -> B
// means B must reach Ready before A's operation may start.
type Graph struct {
	resources  map[string]*ir.Resource
	deps       map[string][]string       // id -> dependency ids
	dependents map[string][]string       // id -> ids depending on it
	refs       map[string][]ir.Reference // id -> typed references found in attributes
	ids        []string                  // all ids, sorted
}

// BuildGraph constructs the dependency graph from explicit DependsOn edges
// and implicit ref:// references in attribute values. It is the hard
// validation gate: duplicate IDs, unknown targets and cycles abort the run
// before any provider call.
func BuildGraph(resources []*ir.Resource) (*Graph, error) {
	g := &Graph{
		resources:  make(map[string]*ir.Resource, len(resources)),
		deps:       make(map[string][]string, len(resources)),
		dependents: make(map[string][]string, len(resources)),
		refs:       make(map[string][]ir.Reference, len(resources)),
	}

	var issues []string
	for _, res := range resources {
		if res.ID == "" {
			issues = append(issues, "resource with empty id")
			continue
		}
		if res.Type == "" {
			issues = append(issues, fmt.Sprintf("resource %s has no type", res.ID))
		}
		if _, dup := g.resources[res.ID]; dup {
			issues = append(issues, fmt.Sprintf("duplicate resource id %s", res.ID))
			continue
		}
		g.resources[res.ID] = res
		g.ids = append(g.ids, res.ID)
	}

	for _, res := range resources {
		edges := make(map[string]bool)

		for _, dep := range res.DependsOn {
			if _, ok := g.resources[dep]; !ok {
				issues = append(issues, fmt.Sprintf("resource %s depends on unknown resource %s", res.ID, dep))
				continue
			}
			edges[dep] = true
		}

		refs := ir.ExtractRefs(res.Attributes)
		for _, ref := range refs {
			if _, ok := g.resources[ref.TargetID]; !ok {
				issues = append(issues, fmt.Sprintf("resource %s references unknown resource %s", res.ID, ref.TargetID))
				continue
			}
			if ref.TargetID != res.ID {
				edges[ref.TargetID] = true
			}
		}
		g.refs[res.ID] = refs

		for dep := range edges {
			g.deps[res.ID] = append(g.deps[res.ID], dep)
		}
		sort.Strings(g.deps[res.ID])
	}

	if len(issues) > 0 {
		return nil, &ir.ValidationError{Issues: issues}
	}

	sort.Strings(g.ids)
	for _, id := range g.ids {
		for _, dep := range g.deps[id] {
			g.dependents[dep] = append(g.dependents[dep], id)
		}
	}
	for _, id := range g.ids {
		sort.Strings(g.dependents[id])
	}

	if err := g.checkCycles(); err != nil {
		return nil, err
	}

	return g, nil
}

// checkCycles runs a depth-first traversal with a recursion stack. Any
// back-edge yields a CycleError carrying the offending path.
func (g *Graph) checkCycles() error {
	const (
		white = 0 // unvisited
		grey  = 1 // on recursion stack
		black = 2 // done
	)
	color := make(map[string]int, len(g.ids))
	var stack []string

	var visit func(id string) *CycleError
	visit = func(id string) *CycleError {
		color[id] = grey
		stack = append(stack, id)

		for _, dep := range g.deps[id] {
			switch color[dep] {
			case grey:
				// Back-edge: slice the stack from the first occurrence
				// of dep and close the loop.
				start := 0
				for i, s := range stack {
					if s == dep {
						start = i
						break
					}
				}
				path := append(append([]string{}, stack[start:]...), dep)
				return &CycleError{Path: path}
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}

		stack = stack[:len(stack)-1]
		color[id] = black
		return nil
	}

	for _, id := range g.ids {
		if color[id] == white {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// IDs returns all resource IDs in sorted order.
func (g *Graph) IDs() []string { return g.ids }

// Resource returns the declared resource for id, or nil.
func (g *Graph) Resource(id string) *ir.Resource { return g.resources[id] }

// Dependencies returns the IDs id directly depends on, sorted.
func (g *Graph) Dependencies(id string) []string { return g.deps[id] }

// Dependents returns the IDs directly depending on id, sorted.
func (g *Graph) Dependents(id string) []string { return g.dependents[id] }

// References returns the typed references extracted from id's attributes.
func (g *Graph) References(id string) []ir.Reference { return g.refs[id] }

// TransitiveDependents returns every ID reachable from id along reverse
// dependency edges.
func (g *Graph) TransitiveDependents(id string) []string {
	seen := make(map[string]bool)
	var walk func(string)
	walk = func(cur string) {
		for _, dep := range g.dependents[cur] {
			if !seen[dep] {
				seen[dep] = true
				walk(dep)
			}
		}
	}
	walk(id)

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
