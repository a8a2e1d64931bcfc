package reconcile

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/cyverse/compute-qms/internal/entitlements"
	"github.com/cyverse/compute-qms/internal/events"
	"github.com/cyverse/compute-qms/internal/filestore"
	"github.com/cyverse/compute-qms/internal/infra"
	"github.com/cyverse/compute-qms/internal/infra/memory"
	"github.com/cyverse/compute-qms/internal/metrics"
	"github.com/cyverse/compute-qms/internal/model"
	"github.com/cyverse/compute-qms/internal/ownership"
	"github.com/cyverse/compute-qms/internal/plans"
	"github.com/stretchr/testify/suite"
)

type ReconcileSuite struct {
	suite.Suite

	ctx          context.Context
	db           *filestore.FileStore
	provider     *memory.Provider
	entitlements *entitlements.Store
	ownership    *ownership.Index
	reconciler   *Reconciler
}

func TestReconcileSuite(t *testing.T) {
	suite.Run(t, new(ReconcileSuite))
}

func (s *ReconcileSuite) SetupTest() {
	var err error

	s.ctx = context.Background()
	s.db, err = filestore.Open(filepath.Join(s.T().TempDir(), "qms.json"))
	s.Require().NoError(err)

	catalog, err := plans.NewCatalog(plans.Defaults(), model.PlanFree)
	s.Require().NoError(err)

	recorder := &events.Recorder{}
	s.provider = memory.New()
	registry := infra.NewRegistry()
	registry.Register(model.ResourceTypeVM, s.provider)
	registry.Register(model.ResourceTypeContainer, s.provider)

	s.entitlements = entitlements.New(s.db, catalog, nil, recorder)
	s.ownership = ownership.New(s.db, recorder)
	s.reconciler = New(s.entitlements, s.ownership, registry, metrics.New(), recorder)
}

func (s *ReconcileSuite) TearDownTest() {
	s.Require().NoError(s.db.Close())
}

// own creates a live resource and records its owner without touching the usage counters.
func (s *ReconcileSuite) own(kind model.ResourceType, owner string, size model.ResourceSize) string {
	r, err := s.provider.CreateResource(s.ctx, kind, infra.Spec{Size: size})
	s.Require().NoError(err)
	_, err = s.ownership.AddResourceOwnership(s.ctx, r.ID, kind, owner, size)
	s.Require().NoError(err)
	return r.ID
}

func (s *ReconcileSuite) usage(userID string) model.Usage {
	quota, err := s.entitlements.Get(s.ctx, userID)
	s.Require().NoError(err)
	return quota.Usage
}

func (s *ReconcileSuite) TestRecomputesUsage() {
	s.own(model.ResourceTypeVM, "alice", model.ResourceSize{VCPUs: 2, MemoryMB: 1024, DiskGB: 10})
	s.own(model.ResourceTypeContainer, "alice", model.ResourceSize{})
	s.own(model.ResourceTypeContainer, "alice", model.ResourceSize{})

	// Bob's counters have drifted: he has nothing left.
	_, err := s.entitlements.SetUsage(s.ctx, "bob", model.Usage{CurrentVMs: 1, CurrentVCPUs: 4})
	s.Require().NoError(err)

	report, err := s.reconciler.Reconcile(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, report.Users)
	s.NotEmpty(report.Corrections)

	s.Equal(model.Usage{CurrentVMs: 1, CurrentVCPUs: 2, CurrentMemoryMB: 1024, CurrentDiskGB: 10, CurrentContainers: 2},
		s.usage("alice"))
	s.Equal(model.Usage{}, s.usage("bob"))
}

func (s *ReconcileSuite) TestIdempotent() {
	s.own(model.ResourceTypeVM, "alice", model.ResourceSize{VCPUs: 1, MemoryMB: 512, DiskGB: 5})
	s.own(model.ResourceTypeContainer, "bob", model.ResourceSize{})

	_, err := s.reconciler.Reconcile(s.ctx)
	s.Require().NoError(err)
	first := map[string]model.Usage{"alice": s.usage("alice"), "bob": s.usage("bob")}

	report, err := s.reconciler.Reconcile(s.ctx)
	s.Require().NoError(err)
	s.Empty(report.Corrections)
	s.Equal(first["alice"], s.usage("alice"))
	s.Equal(first["bob"], s.usage("bob"))
}

func (s *ReconcileSuite) TestOutOfBandDeletion() {
	id := s.own(model.ResourceTypeContainer, "alice", model.ResourceSize{})
	s.own(model.ResourceTypeContainer, "alice", model.ResourceSize{})

	_, err := s.reconciler.Reconcile(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(2), s.usage("alice").CurrentContainers)

	s.provider.Remove(model.ResourceTypeContainer, id)

	report, err := s.reconciler.Reconcile(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), s.usage("alice").CurrentContainers)
	s.Require().Len(report.Corrections, 1)
	s.Equal(Correction{UserID: "alice", Dimension: model.DimensionContainers, Old: 2, New: 1}, report.Corrections[0])

	// The stale record is kept unless pruning is enabled.
	_, err = s.ownership.Lookup(s.ctx, model.ResourceTypeContainer, id)
	s.NoError(err)
	s.Equal(0, report.Pruned)
}

func (s *ReconcileSuite) TestPruneOwnership() {
	id := s.own(model.ResourceTypeContainer, "alice", model.ResourceSize{})
	s.provider.Remove(model.ResourceTypeContainer, id)

	s.reconciler.PruneOwnership = true
	report, err := s.reconciler.Reconcile(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, report.Pruned)

	records, err := s.ownership.Records(s.ctx, model.ResourceTypeContainer)
	s.Require().NoError(err)
	s.Empty(records)
}

func (s *ReconcileSuite) TestListingFailureChangesNothing() {
	s.own(model.ResourceTypeVM, "alice", model.ResourceSize{VCPUs: 1})
	_, err := s.entitlements.SetUsage(s.ctx, "alice", model.Usage{CurrentVMs: 5})
	s.Require().NoError(err)

	s.provider.FailList = errors.New("daemon unavailable")
	s.reconciler.PruneOwnership = true

	_, err = s.reconciler.Reconcile(s.ctx)
	s.Require().Error(err)
	s.Equal(int64(5), s.usage("alice").CurrentVMs)

	records, err := s.ownership.Records(s.ctx, model.ResourceTypeVM)
	s.Require().NoError(err)
	s.Len(records, 1)
}

func (s *ReconcileSuite) TestUnsupportedKindsAreLeftAlone() {
	registry := infra.NewRegistry()
	registry.Register(model.ResourceTypeContainer, s.provider)
	reconciler := New(s.entitlements, s.ownership, registry, nil, nil)

	_, err := s.entitlements.SetUsage(s.ctx, "alice", model.Usage{CurrentVMs: 1, CurrentContainers: 4})
	s.Require().NoError(err)

	report, err := reconciler.Reconcile(s.ctx)
	s.Require().NoError(err)
	s.Equal([]model.ResourceType{model.ResourceTypeContainer}, report.ResourceTypes)
	s.Equal(model.Usage{CurrentVMs: 1}, s.usage("alice"))
}

func (s *ReconcileSuite) TestVolatileProvidersAreSkipped() {
	vms := memory.NewVolatile()
	registry := infra.NewRegistry()
	registry.Register(model.ResourceTypeVM, vms)
	registry.Register(model.ResourceTypeContainer, s.provider)
	reconciler := New(s.entitlements, s.ownership, registry, nil, nil)
	reconciler.PruneOwnership = true

	// The VM is owned but missing from the volatile listing, as it would be after a restart.
	_, err := s.ownership.AddResourceOwnership(s.ctx, "vm-1", model.ResourceTypeVM, "alice", model.ResourceSize{VCPUs: 1})
	s.Require().NoError(err)
	_, err = s.entitlements.SetUsage(s.ctx, "alice", model.Usage{CurrentVMs: 1, CurrentVCPUs: 1, CurrentContainers: 2})
	s.Require().NoError(err)

	report, err := reconciler.Reconcile(s.ctx)
	s.Require().NoError(err)
	s.Equal([]model.ResourceType{model.ResourceTypeContainer}, report.ResourceTypes)
	s.Equal([]model.ResourceType{model.ResourceTypeVM}, report.Skipped)
	s.Equal(0, report.Pruned)
	s.Equal(model.Usage{CurrentVMs: 1, CurrentVCPUs: 1}, s.usage("alice"))

	records, err := s.ownership.Records(s.ctx, model.ResourceTypeVM)
	s.Require().NoError(err)
	s.Len(records, 1)
}
