package infra_test

import (
	"context"
	"testing"

	"github.com/cyverse/compute-qms/internal/infra"
	"github.com/cyverse/compute-qms/internal/infra/memory"
	"github.com/cyverse/compute-qms/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryDispatch(t *testing.T) {
	ctx := context.Background()

	containers := memory.New()
	registry := infra.NewRegistry()
	registry.Register(model.ResourceTypeContainer, containers)

	assert.True(t, registry.Supports(model.ResourceTypeContainer))
	assert.False(t, registry.Supports(model.ResourceTypeVM))

	created, err := registry.CreateResource(ctx, model.ResourceTypeContainer, infra.Spec{Name: "web"})
	require.NoError(t, err)
	assert.Equal(t, "web", created.Name)
	assert.Equal(t, model.ResourceTypeContainer, created.Type)

	listed, err := registry.ListResources(ctx, model.ResourceTypeContainer)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, created.ID, listed[0].ID)

	require.NoError(t, registry.DeleteResource(ctx, model.ResourceTypeContainer, created.ID))
	listed, err = registry.ListResources(ctx, model.ResourceTypeContainer)
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestRegistryUnsupportedKind(t *testing.T) {
	ctx := context.Background()
	registry := infra.NewRegistry()

	_, err := registry.CreateResource(ctx, model.ResourceTypeVM, infra.Spec{})
	var unsupported *infra.ErrUnsupportedKind
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, model.ResourceTypeVM, unsupported.Kind)

	assert.Error(t, registry.DeleteResource(ctx, model.ResourceTypeVM, "x"))
	_, err = registry.ListResources(ctx, model.ResourceTypeVM)
	assert.Error(t, err)
}

func TestRegistryAuthority(t *testing.T) {
	registry := infra.NewRegistry()
	assert.False(t, registry.Authoritative(model.ResourceTypeVM))

	registry.Register(model.ResourceTypeVM, memory.NewVolatile())
	registry.Register(model.ResourceTypeContainer, memory.New())
	assert.True(t, registry.Supports(model.ResourceTypeVM))
	assert.False(t, registry.Authoritative(model.ResourceTypeVM))
	assert.True(t, registry.Authoritative(model.ResourceTypeContainer))
}
