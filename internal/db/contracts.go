package db

import (
	"context"

	"github.com/cyverse/compute-qms/internal/model"
	"github.com/cyverse/compute-qms/internal/store"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SaveContract inserts or updates a user contract.
func SaveContract(ctx context.Context, db *gorm.DB, contract *model.UserContract) error {
	err := db.WithContext(ctx).Save(contract).Error
	if err != nil {
		return errors.Wrapf(err, "unable to save contract '%s'", contract.ID)
	}
	return nil
}

func getContract(ctx context.Context, db *gorm.DB, contractID string, lock bool) (*model.UserContract, error) {
	query := db.WithContext(ctx)
	if lock {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var contract model.UserContract
	err := query.Where("id = ?", contractID).First(&contract).Error
	if err == gorm.ErrRecordNotFound {
		return nil, store.ErrNotFound
	} else if err != nil {
		return nil, errors.Wrapf(err, "unable to look up contract '%s'", contractID)
	}
	return &contract, nil
}

// GetContract looks up a single contract.
func GetContract(ctx context.Context, db *gorm.DB, contractID string) (*model.UserContract, error) {
	return getContract(ctx, db, contractID, false)
}

// LockContract looks up a single contract and locks its row until the current transaction ends.
func LockContract(ctx context.Context, db *gorm.DB, contractID string) (*model.UserContract, error) {
	return getContract(ctx, db, contractID, true)
}

// ListContracts lists the contracts matching a filter.
func ListContracts(ctx context.Context, db *gorm.DB, filter store.ContractFilter) ([]*model.UserContract, error) {
	query := db.WithContext(ctx)
	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var contracts []*model.UserContract
	err := query.Order("next_refill_date asc, id asc").Find(&contracts).Error
	if err != nil {
		return nil, errors.Wrap(err, "unable to list contracts")
	}
	return contracts, nil
}
