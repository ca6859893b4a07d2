// Package provider defines the adapter contract between the reconciliation
// engine and resource back-ends. One adapter serves all resource types of a
// single back-end (e.g. "aws"); the engine never talks to a cloud API
// directly.
package provider

import (
	"context"
	"time"
)

// Readiness describes how to wait for a resource type whose provider-side
// creation completes asynchronously.
type Readiness struct {
	// PollInterval is the initial delay between readiness probes. The
	// engine may grow it with capped exponential backoff.
	PollInterval time.Duration

	// Timeout bounds the whole poll loop. Expiry is a TimeoutError for
	// the resource, never a hang.
	Timeout time.Duration
}

// Schema carries the per-type policy the planner and executor consult.
type Schema struct {
	// Immutable lists attributes that cannot change in place. A delta on
	// any of them forces a Replace (delete then create).
	Immutable []string

	// Readiness is non-nil for types that become usable asynchronously
	// after creation.
	Readiness *Readiness
}

// Adapter is implemented once per back-end. All calls are synchronous;
// long-running operations honor ctx cancellation.
type Adapter interface {
	// Schema returns the policy for a resource type. Unknown types return
	// the zero Schema.
	Schema(typ string) Schema

	// Create provisions a new resource and returns its provider-assigned
	// ID together with the output attributes.
	Create(ctx context.Context, typ string, attrs map[string]any) (providerID string, outputs map[string]any, err error)

	// Read refreshes a resource. exists reports whether the resource is
	// still present on the provider side.
	Read(ctx context.Context, typ, providerID string) (outputs map[string]any, exists bool, err error)

	// Update applies an in-place attribute change.
	Update(ctx context.Context, typ, providerID string, attrs map[string]any) (outputs map[string]any, err error)

	// Delete destroys a resource. Deleting an already-absent resource is
	// not an error.
	Delete(ctx context.Context, typ, providerID string) error

	// IsReady reports whether an asynchronously-created resource has
	// finished becoming usable. Only called for types whose Schema
	// declares Readiness.
	IsReady(ctx context.Context, typ string, outputs map[string]any) (bool, error)
}
