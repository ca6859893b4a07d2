package engine

import (
	"context"
	"errors"
	"time"

	"github.com/stackform-io/stackform/internal/ir"
	"github.com/stackform-io/stackform/internal/logging"
	sdk "github.com/stackform-io/stackform/pkg/provider"
)

// maxPollInterval caps the readiness backoff growth.
const maxPollInterval = 30 * time.Second

// waitForReady polls the provider's readiness predicate until it reports
// true or the type's timeout budget elapses. The interval grows with
// capped exponential backoff. This is an explicit suspend point: both
// cancellation and timeout flow through ctx, never a bare sleep loop.
func (e *Executor) waitForReady(ctx context.Context, adapter sdk.Adapter, res *ir.Resource, outputs map[string]any, r *sdk.Readiness) error {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	interval := r.PollInterval
	if interval <= 0 {
		interval = time.Second
	}

	for attempt := 1; ; attempt++ {
		ready, err := adapter.IsReady(ctx, res.Type, outputs)
		if err != nil {
			return &ProviderError{ResourceID: res.ID, Op: "readiness", Err: err}
		}
		if ready {
			return nil
		}
		logging.Debug("resource not ready yet", "resource", res.ID, "attempt", attempt, "next_poll", interval)

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return &TimeoutError{ResourceID: res.ID, Timeout: r.Timeout}
			}
			return ctx.Err()
		case <-time.After(interval):
		}

		if interval *= 2; interval > maxPollInterval {
			interval = maxPollInterval
		}
	}
}
