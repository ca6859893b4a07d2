package engine

import (
	"fmt"
	"strings"
	"time"
)

// CycleError reports a dependency cycle in the resource graph. It is fatal
// to the whole run and raised before any provider call.
type CycleError struct {
	Path []string // resource IDs along the cycle, first == last
}

func (e *CycleError) Error() string {
	return "dependency cycle detected: " + strings.Join(e.Path, " -> ")
}

// ProviderError wraps a failed provider call. It is scoped to one resource;
// transitive dependents are skipped, siblings continue.
type ProviderError struct {
	ResourceID string
	Op         string // "create", "update", "delete", "read"
	Err        error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s failed for %s: %v", e.Op, e.ResourceID, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// TimeoutError reports that a resource's readiness predicate was never
// satisfied within budget. Cascades identically to ProviderError.
type TimeoutError struct {
	ResourceID string
	Timeout    time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s did not become ready within %s", e.ResourceID, e.Timeout)
}
