// Package provision creates and deletes infrastructure resources on behalf of users, keeping the usage counters and
// the ownership index in step with the infrastructure.
//
// Creation reserves usage before calling the infrastructure provider so that concurrent requests can't both take the
// last slot. If the provider fails, the reservation is released again. A crash between the two steps leaves the
// counters too high until the next reconciliation run corrects them.
package provision

import (
	"context"

	"github.com/cyverse/compute-qms/internal/admission"
	"github.com/cyverse/compute-qms/internal/entitlements"
	"github.com/cyverse/compute-qms/internal/events"
	"github.com/cyverse/compute-qms/internal/infra"
	"github.com/cyverse/compute-qms/internal/metrics"
	"github.com/cyverse/compute-qms/internal/model"
	"github.com/cyverse/compute-qms/internal/ownership"
	"github.com/cyverse/compute-qms/internal/qmserrors"
	"github.com/cyverse/compute-qms/logging"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logging.GetLogger().WithFields(logrus.Fields{"package": "provision"})

// Provisioner orchestrates resource creation and deletion.
type Provisioner struct {
	admission    *admission.Controller
	entitlements *entitlements.Store
	ownership    *ownership.Index
	provider     infra.Provider
	metrics      *metrics.Metrics
	events       events.Sink
}

// New creates a new provisioner.
func New(
	admission *admission.Controller,
	entitlements *entitlements.Store,
	index *ownership.Index,
	provider infra.Provider,
	m *metrics.Metrics,
	sink events.Sink,
) *Provisioner {
	return &Provisioner{
		admission:    admission,
		entitlements: entitlements,
		ownership:    index,
		provider:     provider,
		metrics:      m,
		events:       events.OrDefault(sink),
	}
}

// delta returns the usage delta for a single resource.
func delta(kind model.ResourceType, size model.ResourceSize) model.UsageDelta {
	if kind == model.ResourceTypeVM {
		return admission.VMDelta(size.VCPUs, size.MemoryMB, size.DiskGB)
	}
	return admission.ContainerDelta()
}

func validateCaller(caller model.Caller) error {
	if caller.UserID == "" {
		return qmserrors.Validation("user_id", "the caller's user ID is required")
	}
	if !caller.Role.Valid() {
		return qmserrors.Validation("role", "unknown role: %s", caller.Role)
	}
	return nil
}

// release gives back a usage reservation after a failed creation.
func (p *Provisioner) release(ctx context.Context, log *logrus.Entry, userID string, kind model.ResourceType, d model.UsageDelta) {
	if _, err := p.entitlements.DecrementUsage(ctx, userID, kind, d); err != nil {
		log.Errorf("unable to release the usage reservation: %s", err)
	}
}

// Create admits, reserves and creates a resource for the caller, then records the caller as its owner. Denials are
// returned as SuspendedError or QuotaExceededError; provider failures as InfrastructureError.
func (p *Provisioner) Create(
	ctx context.Context, caller model.Caller, kind model.ResourceType, spec infra.Spec,
) (*ownership.OwnedResource, error) {
	log := log.WithFields(logrus.Fields{"context": "creating resource", "user": caller.UserID, "type": kind})

	if err := validateCaller(caller); err != nil {
		return nil, err
	}
	if kind == model.ResourceTypeContainer {
		spec.Size.DiskGB = 0
	}
	d := delta(kind, spec.Size)

	// Fail fast without taking the user's lock.
	decision, err := p.admission.Check(ctx, caller.UserID, kind, spec.Size, caller.IsAdmin())
	if err != nil {
		return nil, err
	}
	if err = decision.Err(); err != nil {
		return nil, err
	}

	if _, err = p.admission.Reserve(ctx, caller.UserID, caller.Username, kind, d, caller.IsAdmin()); err != nil {
		return nil, err
	}

	resource, err := p.provider.CreateResource(ctx, kind, spec)
	var unsupported *infra.ErrUnsupportedKind
	if errors.As(err, &unsupported) {
		p.release(context.WithoutCancel(ctx), log, caller.UserID, kind, d)
		return nil, qmserrors.Validation("resource_type", "%s", unsupported.Error())
	} else if err != nil {
		p.metrics.ObserveInfrastructureFailure("create")
		log.Errorf("infrastructure create failed: %s", err)
		p.release(context.WithoutCancel(ctx), log, caller.UserID, kind, d)
		return nil, qmserrors.Infrastructure("create", err)
	}
	if resource.Type == "" {
		resource.Type = kind
	}
	if resource.Size == (model.ResourceSize{}) {
		resource.Size = spec.Size
	}

	if _, err = p.ownership.AddResourceOwnership(ctx, resource.ID, kind, caller.UserID, spec.Size); err != nil {
		log.Errorf("unable to record ownership of %s; removing it: %s", resource.ID, err)
		cleanupCtx := context.WithoutCancel(ctx)
		if deleteErr := p.provider.DeleteResource(cleanupCtx, kind, resource.ID); deleteErr != nil {
			p.metrics.ObserveInfrastructureFailure("delete")
			log.Errorf("unable to remove %s: %s", resource.ID, deleteErr)
		}
		p.release(cleanupCtx, log, caller.UserID, kind, d)
		return nil, err
	}

	p.events.Emit(ctx, events.New(events.ResourceCreated, caller.UserID, map[string]any{
		"resource_id":   resource.ID,
		"resource_type": kind,
		"size":          spec.Size,
	}).WithActor(caller.Username))

	return &ownership.OwnedResource{Resource: *resource, Owner: caller.UserID}, nil
}

// Delete deletes a resource owned by the caller. Administrators may delete any resource, including resources with no
// recorded owner. Other callers get a NotFoundError for resources without an owner and a ForbiddenError for
// resources that belong to someone else.
func (p *Provisioner) Delete(ctx context.Context, caller model.Caller, kind model.ResourceType, resourceID string) error {
	log := log.WithFields(logrus.Fields{"context": "deleting resource", "user": caller.UserID, "id": resourceID})

	if err := validateCaller(caller); err != nil {
		return err
	}
	if !kind.Valid() {
		return qmserrors.Validation("resource_type", "unknown resource type: %s", kind)
	}

	record, err := p.ownership.Lookup(ctx, kind, resourceID)
	switch {
	case qmserrors.IsNotFound(err) && !caller.IsAdmin():
		return err
	case err != nil && !qmserrors.IsNotFound(err):
		return err
	case record != nil && record.OwnerUserID != caller.UserID && !caller.IsAdmin():
		return qmserrors.Forbidden("%s %s belongs to another user", kind, resourceID)
	}

	if err = p.provider.DeleteResource(ctx, kind, resourceID); err != nil {
		p.metrics.ObserveInfrastructureFailure("delete")
		return qmserrors.Infrastructure("delete", err)
	}

	// The resource is gone, so the bookkeeping must complete even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	if record == nil {
		log.Info("deleted a resource with no recorded owner")
		return nil
	}

	if err = p.ownership.RemoveOwnership(ctx, resourceID, kind); err != nil {
		return err
	}

	_, err = p.entitlements.DecrementUsage(ctx, record.OwnerUserID, kind, delta(kind, record.ResourceSize))
	if err != nil && !qmserrors.IsNotFound(err) {
		return err
	}

	p.events.Emit(ctx, events.New(events.ResourceDeleted, record.OwnerUserID, map[string]any{
		"resource_id":   resourceID,
		"resource_type": kind,
	}).WithActor(caller.UserID))

	return nil
}

// List returns the live resources of one type that the caller may see, annotated with their owners.
func (p *Provisioner) List(ctx context.Context, caller model.Caller, kind model.ResourceType) ([]ownership.OwnedResource, error) {
	if !kind.Valid() {
		return nil, qmserrors.Validation("resource_type", "unknown resource type: %s", kind)
	}

	live, err := p.provider.ListResources(ctx, kind)
	if err != nil {
		p.metrics.ObserveInfrastructureFailure("list")
		return nil, qmserrors.Infrastructure("list", err)
	}

	annotated, err := p.ownership.AttachOwnershipInfo(ctx, live, kind)
	if err != nil {
		return nil, err
	}

	return ownership.FilterResourcesByUser(annotated, kind, caller.UserID, caller.Role), nil
}
