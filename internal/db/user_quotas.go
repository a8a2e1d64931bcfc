package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cyverse/compute-qms/internal/model"
	"github.com/cyverse/compute-qms/internal/store"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// sortFields maps the sort fields accepted in listings to their column names.
var sortFields = map[string]string{
	"user_id":       "user_id",
	"username":      "username",
	"current_plan":  "current_plan",
	"token_balance": "token_balance",
	"created_at":    "created_at",
}

// GetUserQuota looks up the quota record for the user with the given identifier.
func GetUserQuota(ctx context.Context, db *gorm.DB, userID string) (*model.UserQuota, error) {
	wrapMsg := fmt.Sprintf("unable to look up the quota for user '%s'", userID)

	var quota model.UserQuota
	err := db.WithContext(ctx).Where("user_id = ?", userID).First(&quota).Error
	if err == gorm.ErrRecordNotFound {
		return nil, store.ErrNotFound
	} else if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	return &quota, nil
}

// LockUserQuota looks up the quota record for a user and locks the row until the current transaction ends.
func LockUserQuota(ctx context.Context, db *gorm.DB, userID string) (*model.UserQuota, error) {
	wrapMsg := fmt.Sprintf("unable to lock the quota for user '%s'", userID)

	var quota model.UserQuota
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&quota).Error
	if err == gorm.ErrRecordNotFound {
		return nil, store.ErrNotFound
	} else if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	return &quota, nil
}

// GetUserQuotaByUsername looks up the quota record for the user with the given username.
func GetUserQuotaByUsername(ctx context.Context, db *gorm.DB, username string) (*model.UserQuota, error) {
	wrapMsg := fmt.Sprintf("unable to look up the quota for username '%s'", username)

	var quota model.UserQuota
	err := db.WithContext(ctx).Where("username = ?", username).Order("created_at asc").First(&quota).Error
	if err == gorm.ErrRecordNotFound {
		return nil, store.ErrNotFound
	} else if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	return &quota, nil
}

// SaveUserQuota inserts a quota record or replaces the existing one.
func SaveUserQuota(ctx context.Context, db *gorm.DB, quota *model.UserQuota) error {
	wrapMsg := fmt.Sprintf("unable to save the quota for user '%s'", quota.UserID)

	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			UpdateAll: true,
		}).
		Create(quota).Error
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	return nil
}

// ListUserQuotas lists quota records for multiple users.
func ListUserQuotas(ctx context.Context, db *gorm.DB, params *store.ListingParams) ([]*model.UserQuota, int64, error) {
	var quotas []*model.UserQuota
	var count int64

	// Determine the offset and limit to use.
	var offset int = 0
	if params != nil && params.Offset >= 0 {
		offset = params.Offset
	}
	var limit int = 50
	if params != nil && params.Limit > 0 {
		limit = params.Limit
	}

	// Determine the sort field and sort order to use.
	sortField := "username"
	if params != nil && sortFields[params.SortField] != "" {
		sortField = sortFields[params.SortField]
	}
	order := "asc"
	if params != nil && strings.ToLower(params.SortDir) == "desc" {
		order = "desc"
	}
	orderBy := fmt.Sprintf("%s %s, user_id asc", sortField, order)

	// Build the base query.
	baseQuery := db.WithContext(ctx).Model(&model.UserQuota{})

	// Add the search clause if we're supposed to.
	if params != nil && params.Search != "" {
		search := strings.ReplaceAll(params.Search, "%", "\\%")
		search = strings.ReplaceAll(search, "_", "\\_")
		baseQuery = baseQuery.Where("username LIKE ?", "%"+search+"%")
	}

	// Count the number of items in the result set.
	err := baseQuery.Count(&count).Error

	// Look up the result set.
	if err == nil {
		err = baseQuery.
			Offset(offset).
			Limit(limit).
			Order(orderBy).
			Find(&quotas).Error
	}

	if err != nil {
		return nil, 0, errors.Wrap(err, "unable to list user quotas")
	}
	return quotas, count, nil
}

// ListExpiredPlans lists the quota records whose plan expired at or before the given time.
func ListExpiredPlans(ctx context.Context, db *gorm.DB, now time.Time) ([]*model.UserQuota, error) {
	var quotas []*model.UserQuota
	err := db.WithContext(ctx).
		Where("plan_expires_at IS NOT NULL").
		Where("plan_expires_at <= ?", now).
		Order("plan_expires_at asc").
		Find(&quotas).Error
	if err != nil {
		return nil, errors.Wrap(err, "unable to list expired plans")
	}
	return quotas, nil
}

// DeleteUserQuota removes the quota record for a user.
func DeleteUserQuota(ctx context.Context, db *gorm.DB, userID string) error {
	wrapMsg := fmt.Sprintf("unable to delete the quota for user '%s'", userID)

	result := db.WithContext(ctx).Where("user_id = ?", userID).Delete(&model.UserQuota{})
	if result.Error != nil {
		return errors.Wrap(result.Error, wrapMsg)
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}
