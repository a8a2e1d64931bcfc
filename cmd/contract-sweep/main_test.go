package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cyverse/compute-qms/config"
	"github.com/cyverse/compute-qms/internal/entitlements"
	"github.com/cyverse/compute-qms/internal/ledger"
	"github.com/cyverse/compute-qms/internal/metrics"
	"github.com/cyverse/compute-qms/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogYAML = `
database:
  backend: file
  path: %s
plans:
  default: starter
  catalog:
    - id: starter
      name: Starter
      token_cost: 0
      quotas:
        max_vcpus: 1
        max_memory_mb: 1024
        max_disk_gb: 10
        max_vms: 1
        max_containers: 1
    - id: team
      name: Team
      token_cost: 10
      quotas:
        max_vcpus: 8
        max_memory_mb: 16384
        max_disk_gb: 200
        max_vms: 4
        max_containers: 10
`

func TestSweepUsesTheConfiguredCatalog(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	configPath := filepath.Join(dir, "config.yml")
	dotEnvPath := filepath.Join(dir, "config.env")
	require.NoError(t, os.WriteFile(configPath, []byte(fmt.Sprintf(catalogYAML, filepath.Join(dir, "qms.json"))), 0o600))
	require.NoError(t, os.WriteFile(dotEnvPath, nil, 0o600))

	spec, err := config.LoadConfig("CQMS_SWEEP_TEST_", configPath, dotEnvPath)
	require.NoError(t, err)
	require.Equal(t, "starter", spec.DefaultPlan)
	require.Len(t, spec.Plans, 2)

	// Put alice on the team plan two months ago so that it has lapsed.
	db, err := server.OpenStore(spec)
	require.NoError(t, err)
	catalog, err := server.NewCatalog(spec)
	require.NoError(t, err)
	ent := entitlements.New(db, catalog, nil, nil)
	ent.SetClock(func() time.Time { return time.Now().AddDate(0, -2, 0) })
	tokens := ledger.New(db, ent, catalog, metrics.New(), nil)
	_, err = tokens.AddTokens(ctx, "alice", 10, ledger.Note{Reason: "grant"})
	require.NoError(t, err)
	_, err = tokens.ChangePlan(ctx, "alice", "team", ledger.Note{})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	require.NoError(t, sweep(ctx, spec))

	db, err = server.OpenStore(spec)
	require.NoError(t, err)
	defer db.Close()

	quota, err := entitlements.New(db, catalog, nil, nil).Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "starter", quota.CurrentPlan)
	assert.Equal(t, int64(1), quota.Quotas.MaxVMs)
	assert.Equal(t, int64(1024), quota.Quotas.MaxMemoryMB)
}
