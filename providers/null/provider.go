// Package null implements a no-op provider useful for testing manifests
// and the engine itself. Resources exist only in memory.
package null

import (
	"context"
	"fmt"
	"sync"

	"github.com/stackform-io/stackform/pkg/provider"
)

type Provider struct {
	mu      sync.Mutex
	serial  int
	objects map[string]map[string]any
}

func New() *Provider {
	return &Provider{
		objects: make(map[string]map[string]any),
	}
}

// Schema marks "triggers" immutable: changing it forces a replace, which
// is the conventional way to re-run something hung off a null resource.
func (p *Provider) Schema(typ string) provider.Schema {
	return provider.Schema{
		Immutable: []string{"triggers"},
	}
}

func (p *Provider) Create(ctx context.Context, typ string, attrs map[string]any) (string, map[string]any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.serial++
	id := fmt.Sprintf("null-%d", p.serial)

	outputs := map[string]any{"id": id}
	for k, v := range attrs {
		outputs[k] = v
	}
	p.objects[id] = outputs

	return id, outputs, nil
}

func (p *Provider) Read(ctx context.Context, typ, providerID string) (map[string]any, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	outputs, ok := p.objects[providerID]
	return outputs, ok, nil
}

func (p *Provider) Update(ctx context.Context, typ, providerID string, attrs map[string]any) (map[string]any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	outputs, ok := p.objects[providerID]
	if !ok {
		return nil, fmt.Errorf("null resource %s does not exist", providerID)
	}
	for k, v := range attrs {
		outputs[k] = v
	}
	return outputs, nil
}

func (p *Provider) Delete(ctx context.Context, typ, providerID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.objects, providerID)
	return nil
}

func (p *Provider) IsReady(ctx context.Context, typ string, outputs map[string]any) (bool, error) {
	return true, nil
}
