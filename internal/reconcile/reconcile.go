// Package reconcile recomputes usage counters from the live infrastructure listing and the ownership index. It is the
// mechanism by which counters that drifted from reality converge again.
package reconcile

import (
	"context"

	"github.com/cyverse/compute-qms/internal/entitlements"
	"github.com/cyverse/compute-qms/internal/events"
	"github.com/cyverse/compute-qms/internal/infra"
	"github.com/cyverse/compute-qms/internal/metrics"
	"github.com/cyverse/compute-qms/internal/model"
	"github.com/cyverse/compute-qms/internal/ownership"
	"github.com/cyverse/compute-qms/internal/qmserrors"
	"github.com/cyverse/compute-qms/internal/store"
	"github.com/cyverse/compute-qms/logging"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logging.GetLogger().WithFields(logrus.Fields{"package": "reconcile"})

// pageSize is the number of quota records fetched at a time.
const pageSize = 100

// dimensions lists the usage dimensions derived from each resource type.
var dimensions = map[model.ResourceType][]model.Dimension{
	model.ResourceTypeVM: {
		model.DimensionVMs, model.DimensionVCPUs, model.DimensionMemoryMB, model.DimensionDiskGB,
	},
	model.ResourceTypeContainer: {model.DimensionContainers},
}

// Correction describes a single counter that reconciliation changed.
//
// swagger:model
type Correction struct {
	UserID    string          `json:"user_id"`
	Dimension model.Dimension `json:"dimension"`
	Old       int64           `json:"old"`
	New       int64           `json:"new"`
}

// Report summarizes a reconciliation run.
//
// swagger:model
type Report struct {
	// The resource types that were reconciled
	ResourceTypes []model.ResourceType `json:"resource_types"`

	// The resource types whose providers don't own the source of truth, so their counters were left alone
	Skipped []model.ResourceType `json:"skipped"`

	// The number of users whose counters were examined
	Users int `json:"users"`

	// The counters that changed
	Corrections []Correction `json:"corrections"`

	// The number of ownership records removed because their resources no longer exist
	Pruned int `json:"pruned"`
}

// Reconciler recomputes usage counters.
type Reconciler struct {
	entitlements *entitlements.Store
	ownership    *ownership.Index
	provider     *infra.Registry
	metrics      *metrics.Metrics
	events       events.Sink

	// PruneOwnership removes ownership records whose resources are missing from the live listing.
	PruneOwnership bool
}

// New creates a new reconciler.
func New(
	entitlements *entitlements.Store, index *ownership.Index, provider *infra.Registry, m *metrics.Metrics,
	sink events.Sink,
) *Reconciler {
	return &Reconciler{
		entitlements: entitlements,
		ownership:    index,
		provider:     provider,
		metrics:      m,
		events:       events.OrDefault(sink),
	}
}

// tally computes the usage for every owner of a live resource of one type. Sizes come from the ownership record when
// it has one, and from the live listing otherwise. Records for resources missing from the listing are returned.
func (r *Reconciler) tally(
	ctx context.Context, kind model.ResourceType, totals map[string]*model.Usage,
) ([]*model.OwnershipRecord, error) {
	live, err := r.provider.ListResources(ctx, kind)
	if err != nil {
		r.metrics.ObserveInfrastructureFailure("list")
		return nil, qmserrors.Infrastructure("list "+string(kind), err)
	}

	liveByID := make(map[string]infra.Resource, len(live))
	for _, res := range live {
		liveByID[res.ID] = res
	}

	records, err := r.ownership.Records(ctx, kind)
	if err != nil {
		return nil, err
	}

	stale := make([]*model.OwnershipRecord, 0)
	for _, record := range records {
		res, ok := liveByID[record.ResourceID]
		if !ok {
			stale = append(stale, record)
			continue
		}

		size := record.ResourceSize
		if size == (model.ResourceSize{}) {
			size = res.Size
		}

		usage, ok := totals[record.OwnerUserID]
		if !ok {
			usage = &model.Usage{}
			totals[record.OwnerUserID] = usage
		}
		delta := model.UsageDelta{ResourceSize: size, Count: 1}
		for d, amount := range delta.Amounts(kind) {
			usage.Set(d, usage.Current(d)+amount)
		}
	}

	return stale, nil
}

// userIDs returns the IDs of every user with a quota record.
func (r *Reconciler) userIDs(ctx context.Context) ([]string, error) {
	result := make([]string, 0)
	for offset := 0; ; offset += pageSize {
		quotas, total, err := r.entitlements.List(ctx, &store.ListingParams{
			Offset:    offset,
			Limit:     pageSize,
			SortField: "user_id",
		})
		if err != nil {
			return nil, err
		}
		for _, q := range quotas {
			result = append(result, q.UserID)
		}
		if len(quotas) == 0 || int64(offset+len(quotas)) >= total {
			return result, nil
		}
	}
}

// apply overwrites the reconciled dimensions of a single user's counters.
func (r *Reconciler) apply(
	ctx context.Context, userID string, computed model.Usage, reconciled []model.Dimension, create bool,
) ([]Correction, error) {
	var corrections []Correction
	fn := func(_ store.Tx, quota *model.UserQuota) error {
		corrections = nil
		for _, d := range reconciled {
			old, updated := quota.Usage.Current(d), computed.Current(d)
			if old != updated {
				quota.Usage.Set(d, updated)
				corrections = append(corrections, Correction{UserID: userID, Dimension: d, Old: old, New: updated})
			}
		}
		return nil
	}

	var err error
	if create {
		_, err = r.entitlements.Update(ctx, userID, fn)
	} else {
		_, err = r.entitlements.UpdateExisting(ctx, userID, fn)
	}
	return corrections, err
}

// Reconcile recomputes the usage counters of every user for every resource type whose provider is authoritative.
// Counters for resource types without a provider, or with a volatile one, are left alone. If any listing fails, nothing is changed. Running Reconcile twice
// with no infrastructure changes in between makes no corrections the second time.
func (r *Reconciler) Reconcile(ctx context.Context) (report *Report, err error) {
	log := log.WithFields(logrus.Fields{"context": "reconciling usage"})
	defer func() { r.metrics.ObserveReconcileRun(err) }()

	report = &Report{ResourceTypes: []model.ResourceType{}, Skipped: []model.ResourceType{}, Corrections: []Correction{}}

	// Build the complete picture before touching any counters.
	totals := make(map[string]*model.Usage)
	reconciled := make([]model.Dimension, 0)
	stale := make([]*model.OwnershipRecord, 0)
	for _, kind := range []model.ResourceType{model.ResourceTypeVM, model.ResourceTypeContainer} {
		if !r.provider.Supports(kind) {
			log.Debugf("no provider for %s resources; skipping", kind)
			continue
		}
		if !r.provider.Authoritative(kind) {
			log.Debugf("the %s provider isn't authoritative; skipping", kind)
			report.Skipped = append(report.Skipped, kind)
			continue
		}
		var missing []*model.OwnershipRecord
		if missing, err = r.tally(ctx, kind, totals); err != nil {
			return nil, err
		}
		stale = append(stale, missing...)
		report.ResourceTypes = append(report.ResourceTypes, kind)
		reconciled = append(reconciled, dimensions[kind]...)
	}
	if len(reconciled) == 0 {
		return report, nil
	}

	if r.PruneOwnership {
		for _, record := range stale {
			if err = r.ownership.RemoveOwnership(ctx, record.ResourceID, record.ResourceType); err != nil {
				return nil, err
			}
			report.Pruned++
		}
	} else if len(stale) > 0 {
		log.Debugf("%d ownership records refer to resources that no longer exist", len(stale))
	}

	users, err := r.userIDs(ctx)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(users))
	for _, u := range users {
		known[u] = true
	}
	for u := range totals {
		if !known[u] {
			users = append(users, u)
		}
	}

	for _, userID := range users {
		if err = ctx.Err(); err != nil {
			return nil, err
		}

		var computed model.Usage
		if t, ok := totals[userID]; ok {
			computed = *t
		}

		var corrections []Correction
		corrections, err = r.apply(ctx, userID, computed, reconciled, !known[userID])
		if err != nil {
			return nil, errors.Wrapf(err, "unable to reconcile usage for %s", userID)
		}
		report.Users++

		for _, c := range corrections {
			log.WithFields(logrus.Fields{
				"user":      c.UserID,
				"dimension": c.Dimension,
				"old":       c.Old,
				"new":       c.New,
			}).Info("corrected usage counter")
			r.metrics.ObserveCorrection(string(c.Dimension))
		}
		if len(corrections) > 0 {
			r.events.Emit(ctx, events.New(events.UsageReconciled, userID, map[string]any{
				"corrections": corrections,
			}))
			report.Corrections = append(report.Corrections, corrections...)
		}
	}

	log.Infof("reconciled %d users, %d corrections, %d ownership records pruned",
		report.Users, len(report.Corrections), report.Pruned)

	return report, nil
}
