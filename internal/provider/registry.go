package provider

import (
	"fmt"
	"sync"

	"github.com/stackform-io/stackform/pkg/provider"
	"github.com/stackform-io/stackform/providers/aws"
	"github.com/stackform-io/stackform/providers/null"
)

// Registry manages the lifecycle of provider adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]provider.Adapter
}

func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]provider.Adapter),
	}
}

// Register installs an adapter under a name, replacing any existing one.
// Used by tests to inject fakes.
func (r *Registry) Register(name string, a provider.Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[name] = a
}

// Load initializes and registers a built-in adapter by name.
func (r *Registry) Load(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[name]; exists {
		return nil
	}

	var (
		a   provider.Adapter
		err error
	)
	switch name {
	case "null":
		a = null.New()
	case "aws":
		a, err = aws.New()
	default:
		return fmt.Errorf("unknown provider: %s", name)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize provider %s: %w", name, err)
	}

	r.adapters[name] = a
	return nil
}

// Get returns a registered adapter.
func (r *Registry) Get(name string) (provider.Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("provider not loaded: %s", name)
	}
	return a, nil
}
