package db

import (
	"context"
	"time"

	"github.com/cyverse/compute-qms/internal/model"
	"github.com/cyverse/compute-qms/internal/store"
	"gorm.io/gorm"
)

// GORMStore implements store.Store on top of a relational database. Row locks taken by LockUserQuota and
// LockContract provide the per-user atomicity that usage and balance updates depend on.
type GORMStore struct {
	db *gorm.DB
}

// NewGORMStore wraps a GORM handle.
func NewGORMStore(db *gorm.DB) *GORMStore {
	return &GORMStore{db: db}
}

// DB returns the underlying GORM handle.
func (s *GORMStore) DB() *gorm.DB {
	return s.db
}

// Transaction runs fn inside a database transaction.
func (s *GORMStore) Transaction(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GORMStore{db: tx})
	})
}

// Close closes the underlying connection pool.
func (s *GORMStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GORMStore) GetUserQuota(ctx context.Context, userID string) (*model.UserQuota, error) {
	return GetUserQuota(ctx, s.db, userID)
}

func (s *GORMStore) LockUserQuota(ctx context.Context, userID string) (*model.UserQuota, error) {
	return LockUserQuota(ctx, s.db, userID)
}

func (s *GORMStore) GetUserQuotaByUsername(ctx context.Context, username string) (*model.UserQuota, error) {
	return GetUserQuotaByUsername(ctx, s.db, username)
}

func (s *GORMStore) SaveUserQuota(ctx context.Context, quota *model.UserQuota) error {
	return SaveUserQuota(ctx, s.db, quota)
}

func (s *GORMStore) ListUserQuotas(ctx context.Context, params *store.ListingParams) ([]*model.UserQuota, int64, error) {
	return ListUserQuotas(ctx, s.db, params)
}

func (s *GORMStore) ListExpiredPlans(ctx context.Context, now time.Time) ([]*model.UserQuota, error) {
	return ListExpiredPlans(ctx, s.db, now)
}

func (s *GORMStore) DeleteUserQuota(ctx context.Context, userID string) error {
	return DeleteUserQuota(ctx, s.db, userID)
}

func (s *GORMStore) AddOwnership(ctx context.Context, record *model.OwnershipRecord) error {
	return AddOwnership(ctx, s.db, record)
}

func (s *GORMStore) GetOwnership(ctx context.Context, resourceType model.ResourceType, resourceID string) (*model.OwnershipRecord, error) {
	return GetOwnership(ctx, s.db, resourceType, resourceID)
}

func (s *GORMStore) ListOwnership(ctx context.Context, resourceType model.ResourceType) ([]*model.OwnershipRecord, error) {
	return ListOwnership(ctx, s.db, resourceType)
}

func (s *GORMStore) RemoveOwnership(ctx context.Context, resourceType model.ResourceType, resourceID string) error {
	return RemoveOwnership(ctx, s.db, resourceType, resourceID)
}

func (s *GORMStore) AddTokenTransaction(ctx context.Context, txn *model.TokenTransaction) error {
	return AddTokenTransaction(ctx, s.db, txn)
}

func (s *GORMStore) ListTokenTransactions(ctx context.Context, userID string) ([]*model.TokenTransaction, error) {
	return ListTokenTransactions(ctx, s.db, userID)
}

func (s *GORMStore) SaveContract(ctx context.Context, contract *model.UserContract) error {
	return SaveContract(ctx, s.db, contract)
}

func (s *GORMStore) GetContract(ctx context.Context, contractID string) (*model.UserContract, error) {
	return GetContract(ctx, s.db, contractID)
}

func (s *GORMStore) LockContract(ctx context.Context, contractID string) (*model.UserContract, error) {
	return LockContract(ctx, s.db, contractID)
}

func (s *GORMStore) ListContracts(ctx context.Context, filter store.ContractFilter) ([]*model.UserContract, error) {
	return ListContracts(ctx, s.db, filter)
}

func (s *GORMStore) SaveTokenRequest(ctx context.Context, request *model.TokenRequest) error {
	return SaveTokenRequest(ctx, s.db, request)
}

func (s *GORMStore) GetTokenRequest(ctx context.Context, requestID string) (*model.TokenRequest, error) {
	return GetTokenRequest(ctx, s.db, requestID)
}

func (s *GORMStore) ListTokenRequests(ctx context.Context, status model.RequestStatus) ([]*model.TokenRequest, error) {
	return ListTokenRequests(ctx, s.db, status)
}
