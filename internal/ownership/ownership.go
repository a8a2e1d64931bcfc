// Package ownership maps infrastructure resources to the users who own them and filters resource listings so that
// users only see their own resources. It has no quota logic.
package ownership

import (
	"context"

	"github.com/cyverse/compute-qms/internal/events"
	"github.com/cyverse/compute-qms/internal/infra"
	"github.com/cyverse/compute-qms/internal/model"
	"github.com/cyverse/compute-qms/internal/qmserrors"
	"github.com/cyverse/compute-qms/internal/store"
	"github.com/cyverse/compute-qms/logging"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logging.GetLogger().WithFields(logrus.Fields{"package": "ownership"})

// Unowned is the owner reported for resources that have no ownership record.
const Unowned = "unowned"

// OwnedResource is an infrastructure resource annotated with its owner.
//
// swagger:model
type OwnedResource struct {
	infra.Resource

	// The identifier of the owning user, or "unowned"
	Owner string `json:"owner"`
}

// IsOwned returns true if the resource has an ownership record.
func (r OwnedResource) IsOwned() bool {
	return r.Owner != Unowned
}

// Index is the ownership index.
type Index struct {
	db     store.Store
	events events.Sink
}

// New creates a new ownership index.
func New(db store.Store, sink events.Sink) *Index {
	return &Index{db: db, events: events.OrDefault(sink)}
}

// AddResourceOwnership records that a user owns a resource. Recording the same owner twice is not an error, but a
// resource can't change owners.
func (idx *Index) AddResourceOwnership(
	ctx context.Context, resourceID string, resourceType model.ResourceType, ownerUserID string, size model.ResourceSize,
) (*model.OwnershipRecord, error) {
	switch {
	case resourceID == "":
		return nil, qmserrors.Validation("resource_id", "a resource ID is required")
	case !resourceType.Valid():
		return nil, qmserrors.Validation("resource_type", "unknown resource type: %s", resourceType)
	case ownerUserID == "":
		return nil, qmserrors.Validation("owner_user_id", "an owner is required")
	}

	record := &model.OwnershipRecord{
		ResourceID:   resourceID,
		ResourceType: resourceType,
		OwnerUserID:  ownerUserID,
		ResourceSize: size,
	}
	err := idx.db.AddOwnership(ctx, record)
	if errors.Is(err, store.ErrOwnershipConflict) {
		return nil, qmserrors.Conflict("%s %s is already owned by another user", resourceType, resourceID)
	} else if err != nil {
		return nil, err
	}

	idx.events.Emit(ctx, events.New(events.OwnershipAdded, ownerUserID, map[string]any{
		"resource_id":   resourceID,
		"resource_type": resourceType,
	}))

	return record, nil
}

// Lookup returns the ownership record for a resource.
func (idx *Index) Lookup(ctx context.Context, resourceType model.ResourceType, resourceID string) (*model.OwnershipRecord, error) {
	record, err := idx.db.GetOwnership(ctx, resourceType, resourceID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, qmserrors.NotFound(string(resourceType), resourceID)
	}
	return record, err
}

// Records lists every ownership record for a resource type.
func (idx *Index) Records(ctx context.Context, resourceType model.ResourceType) ([]*model.OwnershipRecord, error) {
	return idx.db.ListOwnership(ctx, resourceType)
}

// RemoveOwnership deletes the ownership record for a resource. Removing a record that doesn't exist is not an error.
func (idx *Index) RemoveOwnership(ctx context.Context, resourceID string, resourceType model.ResourceType) error {
	record, err := idx.db.GetOwnership(ctx, resourceType, resourceID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	} else if err != nil {
		return err
	}

	if err = idx.db.RemoveOwnership(ctx, resourceType, resourceID); err != nil {
		return err
	}

	idx.events.Emit(ctx, events.New(events.OwnershipRemoved, record.OwnerUserID, map[string]any{
		"resource_id":   resourceID,
		"resource_type": resourceType,
	}))

	return nil
}

// AttachOwnershipInfo annotates a live infrastructure listing with the owner of each resource. Resources without an
// ownership record are reported as unowned.
func (idx *Index) AttachOwnershipInfo(
	ctx context.Context, resources []infra.Resource, resourceType model.ResourceType,
) ([]OwnedResource, error) {
	log := log.WithFields(logrus.Fields{"context": "attaching ownership info", "type": resourceType})

	records, err := idx.db.ListOwnership(ctx, resourceType)
	if err != nil {
		return nil, err
	}

	owners := make(map[string]string, len(records))
	for _, r := range records {
		owners[r.ResourceID] = r.OwnerUserID
	}

	result := make([]OwnedResource, len(resources))
	unowned := 0
	for i, r := range resources {
		owner, ok := owners[r.ID]
		if !ok {
			owner = Unowned
			unowned++
		}
		result[i] = OwnedResource{Resource: r, Owner: owner}
	}

	if unowned > 0 {
		log.Debugf("%d of %d resources have no recorded owner", unowned, len(resources))
	}

	return result, nil
}

// FilterResourcesByUser returns every resource for administrators, and only the caller's own resources for
// everyone else. Unowned resources are only visible to administrators.
func FilterResourcesByUser(
	annotated []OwnedResource, resourceType model.ResourceType, callerID string, callerRole model.Role,
) []OwnedResource {
	result := make([]OwnedResource, 0, len(annotated))
	for _, r := range annotated {
		if r.Type != "" && r.Type != resourceType {
			continue
		}
		if callerRole == model.RoleAdmin || (r.IsOwned() && callerID != "" && r.Owner == callerID) {
			result = append(result, r)
		}
	}
	return result
}
