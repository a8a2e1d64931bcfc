package entitlements

import (
	"context"
	"math"
	"path/filepath"
	"sync"
	"testing"

	"github.com/cyverse/compute-qms/internal/events"
	"github.com/cyverse/compute-qms/internal/filestore"
	"github.com/cyverse/compute-qms/internal/model"
	"github.com/cyverse/compute-qms/internal/plans"
	"github.com/cyverse/compute-qms/internal/qmserrors"
	"github.com/cyverse/compute-qms/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

func int64Ptr(v int64) *int64 {
	return &v
}

func boolPtr(v bool) *bool {
	return &v
}

type EntitlementSuite struct {
	suite.Suite

	ctx    context.Context
	db     *filestore.FileStore
	events *events.Recorder
	store  *Store
}

func TestEntitlementSuite(t *testing.T) {
	suite.Run(t, new(EntitlementSuite))
}

func (s *EntitlementSuite) SetupTest() {
	var err error

	s.ctx = context.Background()
	s.db, err = filestore.Open(filepath.Join(s.T().TempDir(), "qms.json"))
	s.Require().NoError(err)

	catalog, err := plans.NewCatalog(plans.Defaults(), model.PlanFree)
	s.Require().NoError(err)

	s.events = &events.Recorder{}
	s.store = New(s.db, catalog, nil, s.events)
}

func (s *EntitlementSuite) TearDownTest() {
	s.Require().NoError(s.db.Close())
}

func (s *EntitlementSuite) TestGetOrCreateProvisionsDefaultPlan() {
	_, err := s.store.Get(s.ctx, "alice")
	s.True(qmserrors.IsNotFound(err))

	quota, err := s.store.GetOrCreate(s.ctx, "alice", "alice@example.org")
	s.Require().NoError(err)
	s.Equal(model.PlanFree, quota.CurrentPlan)
	s.Equal(int64(1), quota.Quotas.MaxVMs)
	s.Equal(int64(3), quota.Quotas.MaxContainers)
	s.Equal(model.Usage{}, quota.Usage)
	s.Equal("alice@example.org", quota.Username)
	s.NotNil(quota.PlanActivatedAt)

	again, err := s.store.GetOrCreate(s.ctx, "alice", "")
	s.Require().NoError(err)
	s.Equal(quota.UserID, again.UserID)

	byName, err := s.store.GetByUsername(s.ctx, "alice@example.org")
	s.Require().NoError(err)
	s.Equal("alice", byName.UserID)

	s.Equal([]string{events.QuotaCreated}, s.events.Types())
}

func (s *EntitlementSuite) TestUpsert() {
	quota, err := s.store.Upsert(s.ctx, "alice", "alice", &model.QuotaOverrides{MaxVMs: int64Ptr(0)}, nil)
	s.Require().NoError(err)
	s.Equal(int64(0), quota.Quotas.MaxVMs)
	s.Equal(int64(3), quota.Quotas.MaxContainers)

	_, err = s.store.SetUsage(s.ctx, "alice", model.Usage{CurrentContainers: 2})
	s.Require().NoError(err)

	quota, err = s.store.Upsert(s.ctx, "alice", "", &model.QuotaOverrides{MaxContainers: int64Ptr(10)}, nil)
	s.Require().NoError(err)
	s.Equal(int64(10), quota.Quotas.MaxContainers)
	s.Equal(int64(2), quota.Usage.CurrentContainers)
	s.Equal("alice", quota.Username)
}

func (s *EntitlementSuite) TestUpsertAdminGetsAdminPlan() {
	quota, err := s.store.Upsert(s.ctx, "root", "root", nil, boolPtr(true))
	s.Require().NoError(err)
	s.True(quota.IsAdmin)
	s.Equal(model.PlanAdmin, quota.CurrentPlan)
}

func (s *EntitlementSuite) TestUpsertRejectsNegativeValues() {
	_, err := s.store.Upsert(s.ctx, "alice", "alice", &model.QuotaOverrides{MaxVCPUs: int64Ptr(-1)}, nil)
	var validation *qmserrors.ValidationError
	s.Require().ErrorAs(err, &validation)

	_, err = s.store.Get(s.ctx, "alice")
	s.True(qmserrors.IsNotFound(err))
}

func (s *EntitlementSuite) TestIncrementAndDecrement() {
	vm := model.UsageDelta{ResourceSize: model.ResourceSize{VCPUs: 2, MemoryMB: 1024, DiskGB: 10}, Count: 1}

	quota, err := s.store.IncrementUsage(s.ctx, "alice", model.ResourceTypeVM, vm)
	s.Require().NoError(err)
	s.Equal(model.Usage{CurrentVMs: 1, CurrentVCPUs: 2, CurrentMemoryMB: 1024, CurrentDiskGB: 10}, quota.Usage)

	// Container sizes are not tracked.
	quota, err = s.store.IncrementUsage(s.ctx, "alice", model.ResourceTypeContainer, vm)
	s.Require().NoError(err)
	s.Equal(int64(1), quota.Usage.CurrentContainers)
	s.Equal(int64(2), quota.Usage.CurrentVCPUs)

	quota, err = s.store.DecrementUsage(s.ctx, "alice", model.ResourceTypeVM, vm)
	s.Require().NoError(err)
	s.Equal(model.Usage{CurrentContainers: 1}, quota.Usage)
}

func (s *EntitlementSuite) TestDecrementClampsAtZero() {
	_, err := s.store.IncrementUsage(s.ctx, "alice", model.ResourceTypeContainer, model.UsageDelta{Count: 1})
	s.Require().NoError(err)

	quota, err := s.store.DecrementUsage(s.ctx, "alice", model.ResourceTypeContainer, model.UsageDelta{Count: 5})
	s.Require().NoError(err)
	s.Equal(int64(0), quota.Usage.CurrentContainers)
}

func (s *EntitlementSuite) TestDecrementUnknownUser() {
	_, err := s.store.DecrementUsage(s.ctx, "ghost", model.ResourceTypeContainer, model.UsageDelta{Count: 1})
	s.True(qmserrors.IsNotFound(err))
}

func (s *EntitlementSuite) TestNegativeDeltaIsRejected() {
	var validation *qmserrors.ValidationError

	_, err := s.store.IncrementUsage(s.ctx, "alice", model.ResourceTypeVM, model.UsageDelta{Count: -1})
	s.ErrorAs(err, &validation)

	_, err = s.store.IncrementUsage(s.ctx, "alice", model.ResourceType("disk"), model.UsageDelta{Count: 1})
	s.ErrorAs(err, &validation)
}

func (s *EntitlementSuite) TestOversizedDeltaIsRejected() {
	var validation *qmserrors.ValidationError

	_, err := s.store.IncrementUsage(s.ctx, "alice", model.ResourceTypeVM, model.UsageDelta{ResourceSize: model.ResourceSize{VCPUs: math.MaxInt64}, Count: 1})
	s.ErrorAs(err, &validation)

	_, err = s.store.IncrementUsage(s.ctx, "alice", model.ResourceTypeVM, model.UsageDelta{ResourceSize: model.ResourceSize{VCPUs: MaxDeltaAmount}, Count: 1})
	s.NoError(err)
}

func TestApplyIncrementSaturates(t *testing.T) {
	quota := &model.UserQuota{Usage: model.Usage{CurrentVMs: 1, CurrentVCPUs: math.MaxInt64 - 1}}
	ApplyIncrement(quota, model.ResourceTypeVM, model.UsageDelta{ResourceSize: model.ResourceSize{VCPUs: 4}, Count: 1})
	assert.Equal(t, int64(math.MaxInt64), quota.Usage.CurrentVCPUs)
	assert.Equal(t, int64(2), quota.Usage.CurrentVMs)
}

func (s *EntitlementSuite) TestConcurrentIncrements() {
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.IncrementUsage(s.ctx, "alice", model.ResourceTypeContainer, model.UsageDelta{Count: 1})
			s.NoError(err)
		}()
	}
	wg.Wait()

	quota, err := s.store.Get(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(int64(20), quota.Usage.CurrentContainers)
}

func (s *EntitlementSuite) TestSuspension() {
	quota, err := s.store.SetSuspended(s.ctx, "alice", true)
	s.Require().NoError(err)
	s.True(quota.Suspended)

	quota, err = s.store.SetSuspended(s.ctx, "alice", false)
	s.Require().NoError(err)
	s.False(quota.Suspended)

	s.Equal([]string{events.QuotaCreated, events.QuotaSuspended, events.QuotaUnsuspended}, s.events.Types())
}

func (s *EntitlementSuite) TestSetUsageReturnsPrevious() {
	_, err := s.store.SetUsage(s.ctx, "alice", model.Usage{CurrentVMs: 1})
	s.Require().NoError(err)

	previous, err := s.store.SetUsage(s.ctx, "alice", model.Usage{CurrentVMs: 0})
	s.Require().NoError(err)
	s.Equal(int64(1), previous.CurrentVMs)
}

func (s *EntitlementSuite) TestDelete() {
	_, err := s.store.GetOrCreate(s.ctx, "alice", "alice")
	s.Require().NoError(err)

	s.Require().NoError(s.store.Delete(s.ctx, "alice"))
	s.True(qmserrors.IsNotFound(s.store.Delete(s.ctx, "alice")))
}

func (s *EntitlementSuite) TestOverages() {
	overages, err := s.store.Overages(s.ctx, "ghost")
	s.Require().NoError(err)
	s.Empty(overages)

	_, err = s.store.SetUsage(s.ctx, "alice", model.Usage{CurrentVMs: 2, CurrentContainers: 1})
	s.Require().NoError(err)

	overages, err = s.store.Overages(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal([]model.Overage{{Dimension: model.DimensionVMs, Quota: 1, Usage: 2}}, overages)
}

func (s *EntitlementSuite) TestList() {
	for _, id := range []string{"carol", "alice", "bob"} {
		_, err := s.store.GetOrCreate(s.ctx, id, id)
		s.Require().NoError(err)
	}

	quotas, total, err := s.store.List(s.ctx, &store.ListingParams{Limit: 2})
	s.Require().NoError(err)
	s.Equal(int64(3), total)
	s.Require().Len(quotas, 2)
	s.Equal("alice", quotas[0].Username)
	s.Equal("bob", quotas[1].Username)
}
