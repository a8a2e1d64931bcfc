package db

import (
	"context"
	"fmt"

	"github.com/cyverse/compute-qms/internal/model"
	"github.com/cyverse/compute-qms/internal/store"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AddOwnership records the owner of a resource. Recording the same owner twice is a no-op.
func AddOwnership(ctx context.Context, db *gorm.DB, record *model.OwnershipRecord) error {
	wrapMsg := fmt.Sprintf("unable to record ownership of %s %s", record.ResourceType, record.ResourceID)

	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(record)
	if result.Error != nil {
		return errors.Wrap(result.Error, wrapMsg)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	// The record already existed, so verify that the owner matches.
	existing, err := GetOwnership(ctx, db, record.ResourceType, record.ResourceID)
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}
	if existing.OwnerUserID != record.OwnerUserID {
		return store.ErrOwnershipConflict
	}
	*record = *existing

	return nil
}

// GetOwnership looks up the ownership record for a single resource.
func GetOwnership(ctx context.Context, db *gorm.DB, resourceType model.ResourceType, resourceID string) (*model.OwnershipRecord, error) {
	wrapMsg := fmt.Sprintf("unable to look up ownership of %s %s", resourceType, resourceID)

	var record model.OwnershipRecord
	err := db.WithContext(ctx).
		Where("resource_type = ? AND resource_id = ?", resourceType, resourceID).
		First(&record).Error
	if err == gorm.ErrRecordNotFound {
		return nil, store.ErrNotFound
	} else if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	return &record, nil
}

// ListOwnership lists all ownership records for a resource type.
func ListOwnership(ctx context.Context, db *gorm.DB, resourceType model.ResourceType) ([]*model.OwnershipRecord, error) {
	var records []*model.OwnershipRecord
	err := db.WithContext(ctx).
		Where("resource_type = ?", resourceType).
		Order("created_at asc, resource_id asc").
		Find(&records).Error
	if err != nil {
		return nil, errors.Wrapf(err, "unable to list ownership records for resource type %s", resourceType)
	}
	return records, nil
}

// RemoveOwnership deletes the ownership record for a resource if it exists.
func RemoveOwnership(ctx context.Context, db *gorm.DB, resourceType model.ResourceType, resourceID string) error {
	err := db.WithContext(ctx).
		Where("resource_type = ? AND resource_id = ?", resourceType, resourceID).
		Delete(&model.OwnershipRecord{}).Error
	if err != nil {
		return errors.Wrapf(err, "unable to remove ownership of %s %s", resourceType, resourceID)
	}
	return nil
}
