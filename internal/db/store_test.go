package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/cyverse/compute-qms/internal/model"
	"github.com/cyverse/compute-qms/internal/store"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type GORMStoreSuite struct {
	suite.Suite

	ctx   context.Context
	store *GORMStore
}

func TestGORMStoreSuite(t *testing.T) {
	suite.Run(t, new(GORMStoreSuite))
}

func (s *GORMStoreSuite) SetupTest() {
	s.ctx = context.Background()

	gormDB, err := gorm.Open(
		sqlite.Open(filepath.Join(s.T().TempDir(), "qms.db")),
		&gorm.Config{Logger: logger.Default.LogMode(logger.Silent)},
	)
	s.Require().NoError(err)

	sqlDB, err := gormDB.DB()
	s.Require().NoError(err)
	sqlDB.SetMaxOpenConns(1)

	s.Require().NoError(AutoMigrate(gormDB))
	s.store = NewGORMStore(gormDB)
}

func (s *GORMStoreSuite) TearDownTest() {
	s.Require().NoError(s.store.Close())
}

func (s *GORMStoreSuite) quota(userID, username string) *model.UserQuota {
	return &model.UserQuota{
		UserID:      userID,
		Username:    username,
		CurrentPlan: model.PlanFree,
		Quotas:      model.Quotas{MaxVMs: 1, MaxContainers: 3},
	}
}

func (s *GORMStoreSuite) TestUserQuotas() {
	_, err := s.store.GetUserQuota(s.ctx, "alice")
	s.ErrorIs(err, store.ErrNotFound)

	s.Require().NoError(s.store.SaveUserQuota(s.ctx, s.quota("alice", "alice@example.org")))

	quota, err := s.store.GetUserQuota(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(int64(3), quota.Quotas.MaxContainers)

	quota.Usage.CurrentContainers = 2
	quota.TokenBalance = 40
	s.Require().NoError(s.store.SaveUserQuota(s.ctx, quota))

	quota, err = s.store.GetUserQuotaByUsername(s.ctx, "alice@example.org")
	s.Require().NoError(err)
	s.Equal(int64(2), quota.Usage.CurrentContainers)
	s.Equal(int64(40), quota.TokenBalance)

	s.Require().NoError(s.store.DeleteUserQuota(s.ctx, "alice"))
	s.ErrorIs(s.store.DeleteUserQuota(s.ctx, "alice"), store.ErrNotFound)
}

func (s *GORMStoreSuite) TestListUserQuotas() {
	for _, id := range []string{"carol", "alice", "bob"} {
		s.Require().NoError(s.store.SaveUserQuota(s.ctx, s.quota(id, id)))
	}

	quotas, total, err := s.store.ListUserQuotas(s.ctx, &store.ListingParams{Limit: 2, Offset: 1})
	s.Require().NoError(err)
	s.Equal(int64(3), total)
	s.Require().Len(quotas, 2)
	s.Equal("bob", quotas[0].UserID)
	s.Equal("carol", quotas[1].UserID)

	quotas, total, err = s.store.ListUserQuotas(s.ctx, &store.ListingParams{Search: "ar", SortDir: "desc"})
	s.Require().NoError(err)
	s.Equal(int64(1), total)
	s.Equal("carol", quotas[0].UserID)
}

func (s *GORMStoreSuite) TestListExpiredPlans() {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	expired := s.quota("alice", "alice")
	expired.PlanExpiresAt = &past
	current := s.quota("bob", "bob")
	current.PlanExpiresAt = &future

	s.Require().NoError(s.store.SaveUserQuota(s.ctx, expired))
	s.Require().NoError(s.store.SaveUserQuota(s.ctx, current))
	s.Require().NoError(s.store.SaveUserQuota(s.ctx, s.quota("carol", "carol")))

	quotas, err := s.store.ListExpiredPlans(s.ctx, now)
	s.Require().NoError(err)
	s.Require().Len(quotas, 1)
	s.Equal("alice", quotas[0].UserID)
}

func (s *GORMStoreSuite) TestTransactionRollback() {
	s.Require().NoError(s.store.SaveUserQuota(s.ctx, s.quota("alice", "alice")))

	boom := errors.New("boom")
	err := s.store.Transaction(s.ctx, func(tx store.Tx) error {
		quota, err := tx.LockUserQuota(s.ctx, "alice")
		if err != nil {
			return err
		}
		quota.Usage.CurrentVMs = 1
		if err := tx.SaveUserQuota(s.ctx, quota); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)

	quota, err := s.store.GetUserQuota(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(int64(0), quota.Usage.CurrentVMs)
}

func (s *GORMStoreSuite) TestOwnership() {
	record := &model.OwnershipRecord{
		ResourceID:   "vm-1",
		ResourceType: model.ResourceTypeVM,
		OwnerUserID:  "alice",
		ResourceSize: model.ResourceSize{VCPUs: 2, MemoryMB: 1024, DiskGB: 10},
	}
	s.Require().NoError(s.store.AddOwnership(s.ctx, record))

	// Recording the same owner again is idempotent.
	again := &model.OwnershipRecord{ResourceID: "vm-1", ResourceType: model.ResourceTypeVM, OwnerUserID: "alice"}
	s.Require().NoError(s.store.AddOwnership(s.ctx, again))
	s.Equal(int64(2), again.VCPUs)

	conflict := &model.OwnershipRecord{ResourceID: "vm-1", ResourceType: model.ResourceTypeVM, OwnerUserID: "bob"}
	s.ErrorIs(s.store.AddOwnership(s.ctx, conflict), store.ErrOwnershipConflict)

	// The same identifier under another resource type is a different resource.
	container := &model.OwnershipRecord{ResourceID: "vm-1", ResourceType: model.ResourceTypeContainer, OwnerUserID: "bob"}
	s.Require().NoError(s.store.AddOwnership(s.ctx, container))

	records, err := s.store.ListOwnership(s.ctx, model.ResourceTypeVM)
	s.Require().NoError(err)
	s.Require().Len(records, 1)
	s.Equal("alice", records[0].OwnerUserID)

	s.Require().NoError(s.store.RemoveOwnership(s.ctx, model.ResourceTypeVM, "vm-1"))
	s.Require().NoError(s.store.RemoveOwnership(s.ctx, model.ResourceTypeVM, "vm-1"))
	_, err = s.store.GetOwnership(s.ctx, model.ResourceTypeVM, "vm-1")
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *GORMStoreSuite) TestTokenTransactions() {
	first := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, amount := range []int64{100, -30} {
		txnType := model.TransactionTypeCredit
		if amount < 0 {
			txnType = model.TransactionTypeDebit
		}
		s.Require().NoError(s.store.AddTokenTransaction(s.ctx, &model.TokenTransaction{
			ID:        []string{"0190a0c0-0000-7000-8000-000000000001", "0190a0c0-0000-7000-8000-000000000002"}[i],
			UserID:    "alice",
			Type:      txnType,
			Amount:    amount,
			Reason:    "test",
			Timestamp: first.Add(time.Duration(i) * time.Minute),
		}))
	}

	txns, err := s.store.ListTokenTransactions(s.ctx, "alice")
	s.Require().NoError(err)
	s.Require().Len(txns, 2)
	s.Equal(int64(100), txns[0].Amount)
	s.Equal(model.TransactionTypeDebit, txns[1].Type)

	txns, err = s.store.ListTokenTransactions(s.ctx, "bob")
	s.Require().NoError(err)
	s.Empty(txns)
}

func (s *GORMStoreSuite) TestContracts() {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, status := range []model.ContractStatus{model.ContractStatusActive, model.ContractStatusPaused} {
		s.Require().NoError(s.store.SaveContract(s.ctx, &model.UserContract{
			ID:             []string{"0190a0c0-0000-7000-8000-00000000000a", "0190a0c0-0000-7000-8000-00000000000b"}[i],
			UserID:         "alice",
			TokensPerMonth: 100,
			DurationMonths: 12,
			StartDate:      start,
			EndDate:        start.AddDate(1, 0, 0),
			NextRefillDate: start.AddDate(0, i, 0),
			Status:         status,
			CreatedBy:      "root",
		}))
	}

	contracts, err := s.store.ListContracts(s.ctx, store.ContractFilter{UserID: "alice"})
	s.Require().NoError(err)
	s.Len(contracts, 2)

	contracts, err = s.store.ListContracts(s.ctx, store.ContractFilter{Status: model.ContractStatusPaused})
	s.Require().NoError(err)
	s.Require().Len(contracts, 1)
	s.Equal("0190a0c0-0000-7000-8000-00000000000b", contracts[0].ID)

	err = s.store.Transaction(s.ctx, func(tx store.Tx) error {
		contract, err := tx.LockContract(s.ctx, "0190a0c0-0000-7000-8000-00000000000a")
		if err != nil {
			return err
		}
		contract.TotalRefills++
		return tx.SaveContract(s.ctx, contract)
	})
	s.Require().NoError(err)

	contract, err := s.store.GetContract(s.ctx, "0190a0c0-0000-7000-8000-00000000000a")
	s.Require().NoError(err)
	s.Equal(1, contract.TotalRefills)

	_, err = s.store.GetContract(s.ctx, "0190a0c0-0000-7000-8000-0000000000ff")
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *GORMStoreSuite) TestTokenRequests() {
	s.Require().NoError(s.store.SaveTokenRequest(s.ctx, &model.TokenRequest{
		ID:     "0190a0c0-0000-7000-8000-000000000100",
		UserID: "alice",
		Amount: 50,
		Reason: "workshop",
		Status: model.RequestStatusPending,
	}))

	pending, err := s.store.ListTokenRequests(s.ctx, model.RequestStatusPending)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)

	request := pending[0]
	reviewer := "root"
	request.Status = model.RequestStatusApproved
	request.ReviewedBy = &reviewer
	s.Require().NoError(s.store.SaveTokenRequest(s.ctx, request))

	pending, err = s.store.ListTokenRequests(s.ctx, model.RequestStatusPending)
	s.Require().NoError(err)
	s.Empty(pending)

	request, err = s.store.GetTokenRequest(s.ctx, "0190a0c0-0000-7000-8000-000000000100")
	s.Require().NoError(err)
	s.Equal(model.RequestStatusApproved, request.Status)
	s.Equal("root", *request.ReviewedBy)
}
