package admission

import (
	"context"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/cyverse/compute-qms/internal/entitlements"
	"github.com/cyverse/compute-qms/internal/filestore"
	"github.com/cyverse/compute-qms/internal/metrics"
	"github.com/cyverse/compute-qms/internal/model"
	"github.com/cyverse/compute-qms/internal/plans"
	"github.com/cyverse/compute-qms/internal/qmserrors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

func TestEvaluateChecksEveryDimension(t *testing.T) {
	quota := &model.UserQuota{
		UserID: "alice",
		Quotas: model.Quotas{MaxVCPUs: 4, MaxMemoryMB: 4096, MaxDiskGB: 50, MaxVMs: 1, MaxContainers: 0},
		Usage:  model.Usage{CurrentVMs: 1},
	}

	// A zero-sized ask is still denied when the count is exhausted.
	decision := Evaluate(quota, model.ResourceTypeVM, VMDelta(0, 0, 0))
	assert.False(t, decision.Allowed)
	assert.Equal(t, model.DimensionVMs, decision.Dimension)
	assert.Equal(t, "VM count quota exceeded: 1 in use, 1 requested, limit 1", decision.Reason)
	assert.Equal(t, quota.Usage, decision.CurrentUsage)
	assert.Equal(t, quota.Quotas, decision.Quotas)

	// A zero ceiling disables the resource class.
	decision = Evaluate(quota, model.ResourceTypeContainer, ContainerDelta())
	assert.False(t, decision.Allowed)
	assert.Equal(t, model.DimensionContainers, decision.Dimension)

	quota.Usage = model.Usage{}
	decision = Evaluate(quota, model.ResourceTypeVM, VMDelta(8, 512, 5))
	assert.False(t, decision.Allowed)
	assert.Equal(t, model.DimensionVCPUs, decision.Dimension)

	decision = Evaluate(quota, model.ResourceTypeVM, VMDelta(4, 4096, 50))
	assert.True(t, decision.Allowed)
	assert.NoError(t, decision.Err())
}

func TestEvaluateLargeAsksDoNotWrap(t *testing.T) {
	quota := &model.UserQuota{
		UserID: "alice",
		Quotas: model.Quotas{MaxVCPUs: 2, MaxMemoryMB: 2048, MaxDiskGB: 20, MaxVMs: 5},
		Usage:  model.Usage{CurrentVMs: 1, CurrentVCPUs: 1, CurrentMemoryMB: 512, CurrentDiskGB: 5},
	}

	decision := Evaluate(quota, model.ResourceTypeVM, VMDelta(math.MaxInt64, 512, 5))
	assert.False(t, decision.Allowed)
	assert.Equal(t, model.DimensionVCPUs, decision.Dimension)

	// Usage already above the ceiling after a downgrade.
	quota.Usage.CurrentVCPUs = 3
	decision = Evaluate(quota, model.ResourceTypeVM, VMDelta(0, 0, 0))
	assert.False(t, decision.Allowed)
	assert.Equal(t, model.DimensionVCPUs, decision.Dimension)
}

func TestDecisionErr(t *testing.T) {
	quota := &model.UserQuota{UserID: "alice", Suspended: true, Quotas: model.Quotas{MaxContainers: 10}}

	var suspended *qmserrors.SuspendedError
	decision := Evaluate(quota, model.ResourceTypeContainer, ContainerDelta())
	assert.Equal(t, ReasonSuspended, decision.Reason)
	assert.ErrorAs(t, decision.Err(), &suspended)
	assert.Equal(t, "alice", suspended.UserID)

	quota.Suspended = false
	quota.Quotas.MaxContainers = 0
	var exceeded *qmserrors.QuotaExceededError
	assert.ErrorAs(t, Evaluate(quota, model.ResourceTypeContainer, ContainerDelta()).Err(), &exceeded)
}

type AdmissionSuite struct {
	suite.Suite

	ctx          context.Context
	db           *filestore.FileStore
	metrics      *metrics.Metrics
	entitlements *entitlements.Store
	controller   *Controller
}

func TestAdmissionSuite(t *testing.T) {
	suite.Run(t, new(AdmissionSuite))
}

func (s *AdmissionSuite) SetupTest() {
	var err error

	s.ctx = context.Background()
	s.db, err = filestore.Open(filepath.Join(s.T().TempDir(), "qms.json"))
	s.Require().NoError(err)

	catalog, err := plans.NewCatalog(plans.Defaults(), model.PlanFree)
	s.Require().NoError(err)

	s.metrics = metrics.New()
	s.entitlements = entitlements.New(s.db, catalog, nil, nil)
	s.controller = New(s.entitlements, s.metrics)
}

func (s *AdmissionSuite) TearDownTest() {
	s.Require().NoError(s.db.Close())
}

func (s *AdmissionSuite) TestBasicAdmissionScenario() {
	decision, err := s.controller.CheckVMQuota(s.ctx, "alice", 1, 512, 5, false)
	s.Require().NoError(err)
	s.True(decision.Allowed)

	_, err = s.entitlements.IncrementUsage(s.ctx, "alice", model.ResourceTypeVM, VMDelta(1, 512, 5))
	s.Require().NoError(err)

	quota, err := s.entitlements.Get(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(int64(1), quota.Usage.CurrentVMs)

	decision, err = s.controller.CheckVMQuota(s.ctx, "alice", 1, 512, 5, false)
	s.Require().NoError(err)
	s.False(decision.Allowed)
	s.Contains(decision.Reason, "VM count")
}

func (s *AdmissionSuite) TestChecksArePure() {
	for i := 0; i < 5; i++ {
		_, err := s.controller.CheckContainerQuota(s.ctx, "alice", false)
		s.Require().NoError(err)
		_, err = s.controller.CheckVMQuota(s.ctx, "alice", 1, 1, 1, false)
		s.Require().NoError(err)
	}

	quota, err := s.entitlements.Get(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(model.Usage{}, quota.Usage)
}

func (s *AdmissionSuite) TestSuspensionOverridesHeadroom() {
	_, err := s.entitlements.SetSuspended(s.ctx, "alice", true)
	s.Require().NoError(err)

	decision, err := s.controller.CheckContainerQuota(s.ctx, "alice", false)
	s.Require().NoError(err)
	s.False(decision.Allowed)
	s.Equal(ReasonSuspended, decision.Reason)

	expected := `
# HELP compute_qms_admission_decisions_total Total admission decisions by resource type and outcome
# TYPE compute_qms_admission_decisions_total counter
compute_qms_admission_decisions_total{outcome="suspended",resource_type="container"} 1
`
	s.NoError(testutil.GatherAndCompare(
		s.metrics.Registry(), strings.NewReader(expected), "compute_qms_admission_decisions_total",
	))
}

func (s *AdmissionSuite) TestAdminBypass() {
	_, err := s.entitlements.SetUsage(s.ctx, "alice", model.Usage{CurrentVMs: 100, CurrentVCPUs: 100})
	s.Require().NoError(err)

	decision, err := s.controller.CheckVMQuota(s.ctx, "alice", 64, 1, 1, true)
	s.Require().NoError(err)
	s.True(decision.Allowed)

	// Records flagged as administrators also skip the arithmetic.
	admin := true
	_, err = s.entitlements.Upsert(s.ctx, "root", "root", &model.QuotaOverrides{MaxVMs: new(int64)}, &admin)
	s.Require().NoError(err)

	decision, err = s.controller.CheckVMQuota(s.ctx, "root", 1, 1, 1, false)
	s.Require().NoError(err)
	s.True(decision.Allowed)
}

func (s *AdmissionSuite) TestNegativeAsksAreRejected() {
	_, err := s.controller.CheckVMQuota(s.ctx, "alice", -1, 0, 0, false)
	var validation *qmserrors.ValidationError
	s.ErrorAs(err, &validation)

	_, err = s.controller.Check(s.ctx, "alice", model.ResourceType("disk"), model.ResourceSize{}, false)
	s.ErrorAs(err, &validation)
}

func (s *AdmissionSuite) TestLargeAsksAreRejected() {
	maxVMs := int64(5)
	_, err := s.entitlements.Upsert(s.ctx, "alice", "alice", &model.QuotaOverrides{MaxVMs: &maxVMs}, nil)
	s.Require().NoError(err)

	_, err = s.controller.Reserve(s.ctx, "alice", "alice", model.ResourceTypeVM, VMDelta(1, 512, 5), false)
	s.Require().NoError(err)

	var validation *qmserrors.ValidationError
	_, err = s.controller.CheckVMQuota(s.ctx, "alice", math.MaxInt64, 512, 5, false)
	s.ErrorAs(err, &validation)

	_, err = s.controller.Reserve(s.ctx, "alice", "alice", model.ResourceTypeVM, VMDelta(math.MaxInt64, 512, 5), false)
	s.ErrorAs(err, &validation)

	quota, err := s.entitlements.Get(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(model.Usage{CurrentVMs: 1, CurrentVCPUs: 1, CurrentMemoryMB: 512, CurrentDiskGB: 5}, quota.Usage)

	decision, err := s.controller.CheckVMQuota(s.ctx, "alice", 2, 512, 5, false)
	s.Require().NoError(err)
	s.False(decision.Allowed)
	s.Equal(model.DimensionVCPUs, decision.Dimension)
}

func (s *AdmissionSuite) TestReserveHoldsTheCeiling() {
	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.controller.Reserve(s.ctx, "alice", "", model.ResourceTypeContainer, ContainerDelta(), false); err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	s.Equal(3, admitted)

	quota, err := s.entitlements.Get(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(int64(3), quota.Usage.CurrentContainers)
	s.LessOrEqual(quota.Usage.CurrentContainers, quota.Quotas.MaxContainers)
}

func (s *AdmissionSuite) TestReserveDenial() {
	_, err := s.entitlements.GetOrCreate(s.ctx, "alice", "alice")
	s.Require().NoError(err)

	_, err = s.controller.Reserve(s.ctx, "alice", "alice", model.ResourceTypeVM, VMDelta(3, 0, 0), false)
	var exceeded *qmserrors.QuotaExceededError
	s.Require().ErrorAs(err, &exceeded)
	s.Equal(model.DimensionVCPUs, exceeded.Dimension)

	quota, err := s.entitlements.Get(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(model.Usage{}, quota.Usage)
}
