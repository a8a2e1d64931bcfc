package db

import (
	"context"

	"github.com/cyverse/compute-qms/internal/model"
	"github.com/cyverse/compute-qms/internal/store"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// AddTokenTransaction appends an entry to the token ledger.
func AddTokenTransaction(ctx context.Context, db *gorm.DB, txn *model.TokenTransaction) error {
	err := db.WithContext(ctx).Create(txn).Error
	if err != nil {
		return errors.Wrapf(err, "unable to record token transaction for user '%s'", txn.UserID)
	}
	return nil
}

// ListTokenTransactions lists the ledger entries for a user in the order in which they were recorded.
func ListTokenTransactions(ctx context.Context, db *gorm.DB, userID string) ([]*model.TokenTransaction, error) {
	var txns []*model.TokenTransaction
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("occurred_at asc, id asc").
		Find(&txns).Error
	if err != nil {
		return nil, errors.Wrapf(err, "unable to list token transactions for user '%s'", userID)
	}
	return txns, nil
}

// SaveTokenRequest inserts or updates a token request.
func SaveTokenRequest(ctx context.Context, db *gorm.DB, request *model.TokenRequest) error {
	err := db.WithContext(ctx).Save(request).Error
	if err != nil {
		return errors.Wrapf(err, "unable to save token request '%s'", request.ID)
	}
	return nil
}

// GetTokenRequest looks up a single token request.
func GetTokenRequest(ctx context.Context, db *gorm.DB, requestID string) (*model.TokenRequest, error) {
	var request model.TokenRequest
	err := db.WithContext(ctx).Where("id = ?", requestID).First(&request).Error
	if err == gorm.ErrRecordNotFound {
		return nil, store.ErrNotFound
	} else if err != nil {
		return nil, errors.Wrapf(err, "unable to look up token request '%s'", requestID)
	}
	return &request, nil
}

// ListTokenRequests lists the token requests with the given status.
func ListTokenRequests(ctx context.Context, db *gorm.DB, status model.RequestStatus) ([]*model.TokenRequest, error) {
	var requests []*model.TokenRequest
	err := db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at asc, id asc").
		Find(&requests).Error
	if err != nil {
		return nil, errors.Wrapf(err, "unable to list %s token requests", status)
	}
	return requests, nil
}
