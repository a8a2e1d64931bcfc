package filestore

import (
	"context"
	"time"

	"github.com/cyverse/compute-qms/internal/model"
	"github.com/cyverse/compute-qms/internal/store"
)

func (s *FileStore) GetUserQuota(ctx context.Context, userID string) (result *model.UserQuota, err error) {
	err = s.run(ctx, func(v *view) error {
		result, err = v.GetUserQuota(ctx, userID)
		return err
	})
	return
}

func (s *FileStore) LockUserQuota(ctx context.Context, userID string) (*model.UserQuota, error) {
	return s.GetUserQuota(ctx, userID)
}

func (s *FileStore) GetUserQuotaByUsername(ctx context.Context, username string) (result *model.UserQuota, err error) {
	err = s.run(ctx, func(v *view) error {
		result, err = v.GetUserQuotaByUsername(ctx, username)
		return err
	})
	return
}

func (s *FileStore) SaveUserQuota(ctx context.Context, quota *model.UserQuota) error {
	return s.run(ctx, func(v *view) error {
		return v.SaveUserQuota(ctx, quota)
	})
}

func (s *FileStore) ListUserQuotas(ctx context.Context, params *store.ListingParams) (result []*model.UserQuota, total int64, err error) {
	err = s.run(ctx, func(v *view) error {
		result, total, err = v.ListUserQuotas(ctx, params)
		return err
	})
	return
}

func (s *FileStore) ListExpiredPlans(ctx context.Context, now time.Time) (result []*model.UserQuota, err error) {
	err = s.run(ctx, func(v *view) error {
		result, err = v.ListExpiredPlans(ctx, now)
		return err
	})
	return
}

func (s *FileStore) DeleteUserQuota(ctx context.Context, userID string) error {
	return s.run(ctx, func(v *view) error {
		return v.DeleteUserQuota(ctx, userID)
	})
}

func (s *FileStore) AddOwnership(ctx context.Context, record *model.OwnershipRecord) error {
	return s.run(ctx, func(v *view) error {
		return v.AddOwnership(ctx, record)
	})
}

func (s *FileStore) GetOwnership(ctx context.Context, resourceType model.ResourceType, resourceID string) (result *model.OwnershipRecord, err error) {
	err = s.run(ctx, func(v *view) error {
		result, err = v.GetOwnership(ctx, resourceType, resourceID)
		return err
	})
	return
}

func (s *FileStore) ListOwnership(ctx context.Context, resourceType model.ResourceType) (result []*model.OwnershipRecord, err error) {
	err = s.run(ctx, func(v *view) error {
		result, err = v.ListOwnership(ctx, resourceType)
		return err
	})
	return
}

func (s *FileStore) RemoveOwnership(ctx context.Context, resourceType model.ResourceType, resourceID string) error {
	return s.run(ctx, func(v *view) error {
		return v.RemoveOwnership(ctx, resourceType, resourceID)
	})
}

func (s *FileStore) AddTokenTransaction(ctx context.Context, txn *model.TokenTransaction) error {
	return s.run(ctx, func(v *view) error {
		return v.AddTokenTransaction(ctx, txn)
	})
}

func (s *FileStore) ListTokenTransactions(ctx context.Context, userID string) (result []*model.TokenTransaction, err error) {
	err = s.run(ctx, func(v *view) error {
		result, err = v.ListTokenTransactions(ctx, userID)
		return err
	})
	return
}

func (s *FileStore) SaveContract(ctx context.Context, contract *model.UserContract) error {
	return s.run(ctx, func(v *view) error {
		return v.SaveContract(ctx, contract)
	})
}

func (s *FileStore) GetContract(ctx context.Context, contractID string) (result *model.UserContract, err error) {
	err = s.run(ctx, func(v *view) error {
		result, err = v.GetContract(ctx, contractID)
		return err
	})
	return
}

func (s *FileStore) LockContract(ctx context.Context, contractID string) (*model.UserContract, error) {
	return s.GetContract(ctx, contractID)
}

func (s *FileStore) ListContracts(ctx context.Context, filter store.ContractFilter) (result []*model.UserContract, err error) {
	err = s.run(ctx, func(v *view) error {
		result, err = v.ListContracts(ctx, filter)
		return err
	})
	return
}

func (s *FileStore) SaveTokenRequest(ctx context.Context, request *model.TokenRequest) error {
	return s.run(ctx, func(v *view) error {
		return v.SaveTokenRequest(ctx, request)
	})
}

func (s *FileStore) GetTokenRequest(ctx context.Context, requestID string) (result *model.TokenRequest, err error) {
	err = s.run(ctx, func(v *view) error {
		result, err = v.GetTokenRequest(ctx, requestID)
		return err
	})
	return
}

func (s *FileStore) ListTokenRequests(ctx context.Context, status model.RequestStatus) (result []*model.TokenRequest, err error) {
	err = s.run(ctx, func(v *view) error {
		result, err = v.ListTokenRequests(ctx, status)
		return err
	})
	return
}
