package state

import (
	"context"
	"fmt"

	"github.com/stackform-io/stackform/internal/ir"
)

// Store is the persistence contract for deployment state. Writes are
// incremental: each record is persisted immediately after its own
// operation settles, so a crash mid-apply is a partial apply, never a
// corrupt one. State is plain data and never needs a live provider.
type Store interface {
	// Load reads the full state. A missing backend object yields a fresh
	// empty state, not an error.
	Load(ctx context.Context) (*ir.State, error)

	// Put persists a single record.
	Put(ctx context.Context, rec *ir.StateRecord) error

	// Remove deletes a single record.
	Remove(ctx context.Context, id string) error

	// Lock acquires the exclusive apply lock. A held lock yields
	// ConflictError.
	Lock() error

	// Unlock releases the apply lock.
	Unlock() error
}

// Config selects and configures a state backend.
type Config struct {
	Type    string            // "local" or "s3"
	Path    string            // local file path
	Options map[string]string // backend-specific options
}

// NewStore creates a state store from configuration.
func NewStore(cfg Config) (Store, error) {
	switch cfg.Type {
	case "local", "":
		if cfg.Path == "" {
			return nil, fmt.Errorf("local backend requires a state path")
		}
		return NewManager(cfg.Path), nil
	case "s3":
		return newS3Store(cfg.Options)
	default:
		return nil, fmt.Errorf("unknown state backend: %s", cfg.Type)
	}
}
