// Package infra defines the infrastructure provider capability that the control plane sits in front of. Concrete
// providers live in subpackages.
package infra

import (
	"context"
	"fmt"

	"github.com/cyverse/compute-qms/internal/model"
)

// Spec describes a resource to create.
//
// swagger:model
type Spec struct {
	// The requested resource name
	Name string `json:"name" validate:"omitempty,max=128"`

	// The image to run
	Image string `json:"image,omitempty"`

	// The declared resource size
	Size model.ResourceSize `json:"size"`

	// Extra labels to attach to the resource
	Labels map[string]string `json:"labels,omitempty"`
}

// Resource describes a live infrastructure resource.
//
// swagger:model
type Resource struct {
	// The opaque resource identifier assigned by the infrastructure layer
	ID string `json:"id"`

	// The resource name
	Name string `json:"name"`

	// The resource type
	Type model.ResourceType `json:"type"`

	// The declared resource size, if the infrastructure layer reports it
	Size model.ResourceSize `json:"size"`

	// The infrastructure-specific state of the resource
	State string `json:"state,omitempty"`
}

// Provider creates, deletes and lists infrastructure resources. Errors are opaque to the caller.
type Provider interface {
	CreateResource(ctx context.Context, kind model.ResourceType, spec Spec) (*Resource, error)
	DeleteResource(ctx context.Context, kind model.ResourceType, id string) error
	ListResources(ctx context.Context, kind model.ResourceType) ([]Resource, error)
}

// Authority is an optional Provider capability. A provider whose listing isn't the source of truth for a resource
// type returns false, and usage reconciliation leaves the counters for that type alone. Providers that don't
// implement it are treated as authoritative.
type Authority interface {
	Authoritative(kind model.ResourceType) bool
}

// ErrUnsupportedKind is returned by providers for resource types they don't manage.
type ErrUnsupportedKind struct {
	Kind model.ResourceType
}

func (e *ErrUnsupportedKind) Error() string {
	return fmt.Sprintf("no infrastructure provider is configured for resource type %s", e.Kind)
}

// Registry dispatches each resource type to the provider registered for it.
type Registry struct {
	providers map[model.ResourceType]Provider
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[model.ResourceType]Provider)}
}

// Register assigns a provider to a resource type, replacing any previous assignment.
func (r *Registry) Register(kind model.ResourceType, p Provider) {
	r.providers[kind] = p
}

// Supports returns true if a provider is registered for the resource type.
func (r *Registry) Supports(kind model.ResourceType) bool {
	_, ok := r.providers[kind]
	return ok
}

// Authoritative implements Authority. Resource types without a provider are never authoritative.
func (r *Registry) Authoritative(kind model.ResourceType) bool {
	p, ok := r.providers[kind]
	if !ok {
		return false
	}
	if a, ok := p.(Authority); ok {
		return a.Authoritative(kind)
	}
	return true
}

func (r *Registry) provider(kind model.ResourceType) (Provider, error) {
	p, ok := r.providers[kind]
	if !ok {
		return nil, &ErrUnsupportedKind{Kind: kind}
	}
	return p, nil
}

// CreateResource implements Provider.
func (r *Registry) CreateResource(ctx context.Context, kind model.ResourceType, spec Spec) (*Resource, error) {
	p, err := r.provider(kind)
	if err != nil {
		return nil, err
	}
	return p.CreateResource(ctx, kind, spec)
}

// DeleteResource implements Provider.
func (r *Registry) DeleteResource(ctx context.Context, kind model.ResourceType, id string) error {
	p, err := r.provider(kind)
	if err != nil {
		return err
	}
	return p.DeleteResource(ctx, kind, id)
}

// ListResources implements Provider.
func (r *Registry) ListResources(ctx context.Context, kind model.ResourceType) ([]Resource, error) {
	p, err := r.provider(kind)
	if err != nil {
		return nil, err
	}
	return p.ListResources(ctx, kind)
}
