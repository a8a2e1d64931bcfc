// Package admission decides whether a user may create a new VM or container.
//
// The Check functions are pure predicates: they never change usage counters. Reserve is the commit step. It
// re-evaluates the same rules while holding the user's lock and records the usage in the same operation, so two
// concurrent reservations can't both take the last slot.
package admission

import (
	"context"
	"fmt"

	"github.com/cyverse/compute-qms/internal/entitlements"
	"github.com/cyverse/compute-qms/internal/metrics"
	"github.com/cyverse/compute-qms/internal/model"
	"github.com/cyverse/compute-qms/internal/qmserrors"
	"github.com/cyverse/compute-qms/internal/store"
	"github.com/cyverse/compute-qms/logging"
	"github.com/sirupsen/logrus"
)

var log = logging.GetLogger().WithFields(logrus.Fields{"package": "admission"})

// ReasonSuspended is the denial reason for suspended accounts.
const ReasonSuspended = "account suspended"

// Decision is the result of an admission check.
//
// swagger:model
type Decision struct {
	// True if the request may proceed
	Allowed bool `json:"allowed"`

	// The reason the request was denied
	Reason string `json:"reason,omitempty"`

	// The first dimension that would have been exceeded
	Dimension model.Dimension `json:"dimension,omitempty"`

	// The user's usage at the time of the check
	CurrentUsage model.Usage `json:"current_usage"`

	// The user's ceilings at the time of the check
	Quotas model.Quotas `json:"quotas"`

	userID    string
	suspended bool
}

// Err converts a denial to the corresponding typed error. It returns nil for an allowed decision.
func (d *Decision) Err() error {
	switch {
	case d.Allowed:
		return nil
	case d.suspended:
		return &qmserrors.SuspendedError{UserID: d.userID}
	default:
		return &qmserrors.QuotaExceededError{
			Reason:       d.Reason,
			Dimension:    d.Dimension,
			CurrentUsage: d.CurrentUsage,
			Quotas:       d.Quotas,
		}
	}
}

// Evaluate applies the admission rules to a quota record. Callers that are administrators skip evaluation entirely;
// records flagged as administrators are still denied while suspended but skip the quota arithmetic.
func Evaluate(quota *model.UserQuota, resourceType model.ResourceType, delta model.UsageDelta) *Decision {
	decision := &Decision{
		userID:       quota.UserID,
		CurrentUsage: quota.Usage,
		Quotas:       quota.Quotas,
	}

	if quota.Suspended {
		decision.Reason = ReasonSuspended
		decision.suspended = true
		return decision
	}

	if quota.IsAdmin {
		decision.Allowed = true
		return decision
	}

	// Every requested dimension must fit. Dimensions are checked in a fixed order so that the reported dimension
	// is deterministic.
	amounts := delta.Amounts(resourceType)
	for _, d := range model.Dimensions {
		requested, ok := amounts[d]
		if !ok {
			continue
		}
		current := quota.Usage.Current(d)
		limit := quota.Quotas.Limit(d)
		if requested > limit-current {
			decision.Dimension = d
			decision.Reason = fmt.Sprintf(
				"%s quota exceeded: %d in use, %d requested, limit %d", d.Description(), current, requested, limit,
			)
			return decision
		}
	}

	decision.Allowed = true
	return decision
}

// Controller is the admission controller.
type Controller struct {
	entitlements *entitlements.Store
	metrics      *metrics.Metrics
}

// New creates a new admission controller.
func New(entitlements *entitlements.Store, m *metrics.Metrics) *Controller {
	return &Controller{entitlements: entitlements, metrics: m}
}

// VMDelta returns the usage delta for a single VM of the given size.
func VMDelta(vcpus, memoryMB, diskGB int64) model.UsageDelta {
	return model.UsageDelta{
		ResourceSize: model.ResourceSize{VCPUs: vcpus, MemoryMB: memoryMB, DiskGB: diskGB},
		Count:        1,
	}
}

// ContainerDelta returns the usage delta for a single container.
func ContainerDelta() model.UsageDelta {
	return model.UsageDelta{Count: 1}
}

func outcome(d *Decision) string {
	if d.Allowed {
		return "allowed"
	}
	if d.suspended {
		return "suspended"
	}
	return "denied"
}

// check runs an admission check without mutating usage.
func (c *Controller) check(
	ctx context.Context, userID string, resourceType model.ResourceType, delta model.UsageDelta, isAdminCaller bool,
) (*Decision, error) {
	log := log.WithFields(logrus.Fields{"context": "admission check", "user": userID, "type": resourceType})

	if err := entitlements.ValidateDelta(resourceType, delta); err != nil {
		return nil, err
	}

	if isAdminCaller {
		c.metrics.ObserveAdmission(string(resourceType), "bypassed")
		return &Decision{Allowed: true}, nil
	}

	quota, err := c.entitlements.GetOrCreate(ctx, userID, "")
	if err != nil {
		return nil, err
	}

	decision := Evaluate(quota, resourceType, delta)
	c.metrics.ObserveAdmission(string(resourceType), outcome(decision))

	if !decision.Allowed {
		log.WithFields(logrus.Fields{"reason": decision.Reason}).Debug("admission denied")
	}

	return decision, nil
}

// CheckVMQuota determines whether the user may create a VM of the given size.
func (c *Controller) CheckVMQuota(
	ctx context.Context, userID string, vcpus, memoryMB, diskGB int64, isAdminCaller bool,
) (*Decision, error) {
	return c.check(ctx, userID, model.ResourceTypeVM, VMDelta(vcpus, memoryMB, diskGB), isAdminCaller)
}

// CheckContainerQuota determines whether the user may create a container.
func (c *Controller) CheckContainerQuota(ctx context.Context, userID string, isAdminCaller bool) (*Decision, error) {
	return c.check(ctx, userID, model.ResourceTypeContainer, ContainerDelta(), isAdminCaller)
}

// Check dispatches to CheckVMQuota or CheckContainerQuota.
func (c *Controller) Check(
	ctx context.Context, userID string, resourceType model.ResourceType, size model.ResourceSize, isAdminCaller bool,
) (*Decision, error) {
	switch resourceType {
	case model.ResourceTypeVM:
		return c.CheckVMQuota(ctx, userID, size.VCPUs, size.MemoryMB, size.DiskGB, isAdminCaller)
	case model.ResourceTypeContainer:
		return c.CheckContainerQuota(ctx, userID, isAdminCaller)
	default:
		return nil, qmserrors.Validation("resource_type", "unknown resource type: %s", resourceType)
	}
}

// Reserve re-checks admission under the user's lock and, if the request is still allowed, records the usage for the
// new resource. Administrator callers always succeed. The caller must release the reservation with
// entitlements.Store.DecrementUsage if the resource can't be created.
func (c *Controller) Reserve(
	ctx context.Context, userID, username string, resourceType model.ResourceType, delta model.UsageDelta,
	isAdminCaller bool,
) (*model.UserQuota, error) {
	if err := entitlements.ValidateDelta(resourceType, delta); err != nil {
		return nil, err
	}

	quota, err := c.entitlements.Update(ctx, userID, func(_ store.Tx, quota *model.UserQuota) error {
		if username != "" && quota.Username == quota.UserID {
			quota.Username = username
		}
		if !isAdminCaller {
			if err := Evaluate(quota, resourceType, delta).Err(); err != nil {
				return err
			}
		}
		entitlements.ApplyIncrement(quota, resourceType, delta)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return quota, nil
}
