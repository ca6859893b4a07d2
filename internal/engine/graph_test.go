package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackform-io/stackform/internal/ir"
)

func res(id, typ string, deps ...string) *ir.Resource {
	return &ir.Resource{ID: id, Type: typ, DependsOn: deps}
}

func TestBuildGraph_ExplicitDependencies(t *testing.T) {
	g, err := BuildGraph([]*ir.Resource{
		res("net", "aws:EC2.Vpc"),
		res("cluster", "aws:ECS.Cluster", "net"),
		res("service", "aws:ECS.Service", "cluster"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"cluster", "net", "service"}, g.IDs())
	assert.Equal(t, []string{"net"}, g.Dependencies("cluster"))
	assert.Equal(t, []string{"cluster"}, g.Dependencies("service"))
	assert.Equal(t, []string{"cluster"}, g.Dependents("net"))
	assert.Equal(t, []string{"cluster", "service"}, g.TransitiveDependents("net"))
}

func TestBuildGraph_ReferenceEdges(t *testing.T) {
	lb := &ir.Resource{
		ID:   "balancer",
		Type: "aws:ELB.LoadBalancer",
		Attributes: map[string]any{
			"subnets": []any{"ref://net/subnetIds"},
		},
	}
	record := &ir.Resource{
		ID:   "dns",
		Type: "aws:Route53.Record",
		Attributes: map[string]any{
			"alias": map[string]any{
				"dnsName": "ref://balancer/dnsName",
			},
		},
	}

	g, err := BuildGraph([]*ir.Resource{res("net", "aws:EC2.Vpc"), lb, record})
	require.NoError(t, err)

	// References nested in lists and maps become edges.
	assert.Equal(t, []string{"net"}, g.Dependencies("balancer"))
	assert.Equal(t, []string{"balancer"}, g.Dependencies("dns"))

	refs := g.References("dns")
	require.Len(t, refs, 1)
	assert.Equal(t, "balancer", refs[0].TargetID)
	assert.Equal(t, "dnsName", refs[0].Attribute)
}

func TestBuildGraph_DuplicateEdgesCollapse(t *testing.T) {
	// Explicit dependsOn plus a reference to the same target is one edge.
	svc := &ir.Resource{
		ID:        "service",
		Type:      "aws:ECS.Service",
		DependsOn: []string{"cluster"},
		Attributes: map[string]any{
			"cluster": "ref://cluster/name",
		},
	}

	g, err := BuildGraph([]*ir.Resource{res("cluster", "aws:ECS.Cluster"), svc})
	require.NoError(t, err)
	assert.Equal(t, []string{"cluster"}, g.Dependencies("service"))
}

func TestBuildGraph_ValidationIssues(t *testing.T) {
	_, err := BuildGraph([]*ir.Resource{
		{ID: "", Type: "aws:EC2.Vpc"},
		{ID: "a", Type: ""},
		res("a", "aws:EC2.Vpc"),
		res("b", "aws:EC2.Vpc", "missing"),
		{ID: "c", Type: "aws:EC2.Vpc", Attributes: map[string]any{"x": "ref://ghost/attr"}},
	})
	require.Error(t, err)

	var verr *ir.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Issues, 5)
	assert.Contains(t, verr.Issues, "resource with empty id")
	assert.Contains(t, verr.Issues, "duplicate resource id a")
	assert.Contains(t, verr.Issues, "resource b depends on unknown resource missing")
	assert.Contains(t, verr.Issues, "resource c references unknown resource ghost")
}

func TestBuildGraph_CycleDetection(t *testing.T) {
	_, err := BuildGraph([]*ir.Resource{
		res("a", "null:Resource", "c"),
		res("b", "null:Resource", "a"),
		res("c", "null:Resource", "b"),
	})
	require.Error(t, err)

	var cerr *CycleError
	require.True(t, errors.As(err, &cerr))

	// The path closes the loop: first and last element match.
	require.GreaterOrEqual(t, len(cerr.Path), 4)
	assert.Equal(t, cerr.Path[0], cerr.Path[len(cerr.Path)-1])
	assert.ElementsMatch(t, []string{"a", "b", "c"}, cerr.Path[:len(cerr.Path)-1])
}

func TestBuildGraph_SelfReferenceIsCycle(t *testing.T) {
	_, err := BuildGraph([]*ir.Resource{
		res("a", "null:Resource", "a"),
	})
	var cerr *CycleError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, []string{"a", "a"}, cerr.Path)
}

func TestBuildGraph_Empty(t *testing.T) {
	g, err := BuildGraph(nil)
	require.NoError(t, err)
	assert.Empty(t, g.IDs())
}

func TestExtractRefs_Exhaustive(t *testing.T) {
	attrs := map[string]any{
		"plain": "not-a-ref",
		"top":   "ref://a/out",
		"list":  []any{"ref://b/out", map[string]any{"deep": "ref://c/out"}},
		"malformed": []any{
			"ref://",
			"ref://only-id",
			"ref://id/",
		},
	}

	refs := ir.ExtractRefs(attrs)
	targets := make([]string, 0, len(refs))
	for _, r := range refs {
		targets = append(targets, r.TargetID)
	}
	assert.ElementsMatch(t, []string{"a", "b", "c"}, targets)
}
