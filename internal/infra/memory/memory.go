// Package memory provides an in-process infrastructure provider. It backs the simulated infrastructure mode used for
// local development and is used throughout the tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cyverse/compute-qms/internal/infra"
	"github.com/cyverse/compute-qms/internal/model"
	"github.com/google/uuid"
)

// Provider keeps resources in memory.
type Provider struct {
	mu        sync.Mutex
	resources map[model.ResourceType]map[string]infra.Resource

	// Volatile marks the provider as a stand-in for real infrastructure. Its resources disappear when the process
	// exits, so its listings aren't used to recompute usage.
	Volatile bool

	// FailCreate, FailDelete and FailList make the corresponding operation fail when set.
	FailCreate error
	FailDelete error
	FailList   error
}

// New returns an empty provider.
func New() *Provider {
	return &Provider{resources: make(map[model.ResourceType]map[string]infra.Resource)}
}

// NewVolatile returns an empty provider that stands in for real infrastructure.
func NewVolatile() *Provider {
	p := New()
	p.Volatile = true
	return p
}

// Authoritative implements infra.Authority.
func (p *Provider) Authoritative(model.ResourceType) bool {
	return !p.Volatile
}

func (p *Provider) kind(kind model.ResourceType) map[string]infra.Resource {
	m, ok := p.resources[kind]
	if !ok {
		m = make(map[string]infra.Resource)
		p.resources[kind] = m
	}
	return m
}

// CreateResource implements infra.Provider.
func (p *Provider) CreateResource(_ context.Context, kind model.ResourceType, spec infra.Spec) (*infra.Resource, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.FailCreate != nil {
		return nil, p.FailCreate
	}

	id := uuid.NewString()
	name := spec.Name
	if name == "" {
		name = fmt.Sprintf("%s-%s", kind, id[:8])
	}

	r := infra.Resource{ID: id, Name: name, Type: kind, Size: spec.Size, State: "running"}
	p.kind(kind)[id] = r
	return &r, nil
}

// DeleteResource implements infra.Provider.
func (p *Provider) DeleteResource(_ context.Context, kind model.ResourceType, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.FailDelete != nil {
		return p.FailDelete
	}

	resources := p.kind(kind)
	if _, ok := resources[id]; !ok {
		return fmt.Errorf("no such %s: %s", kind, id)
	}
	delete(resources, id)
	return nil
}

// ListResources implements infra.Provider.
func (p *Provider) ListResources(_ context.Context, kind model.ResourceType) ([]infra.Resource, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.FailList != nil {
		return nil, p.FailList
	}

	result := make([]infra.Resource, 0)
	for _, r := range p.kind(kind) {
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Add inserts a resource directly, as if it had been created outside of the control plane.
func (p *Provider) Add(r infra.Resource) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.kind(r.Type)[r.ID] = r
}

// Remove deletes a resource directly, as if it had been deleted outside of the control plane.
func (p *Provider) Remove(kind model.ResourceType, id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.kind(kind), id)
}
