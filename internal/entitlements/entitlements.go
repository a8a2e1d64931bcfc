// Package entitlements manages per-user quota records: entitlement ceilings, usage counters, suspension, and the
// token balance and plan fields that the ledger mutates.
//
// Every read-modify-write of a quota record happens while holding a lock keyed by the user ID and inside a store
// transaction that locks the record. Operations on different users never contend.
package entitlements

import (
	"context"
	"math"
	"time"

	"github.com/cyverse/compute-qms/internal/events"
	"github.com/cyverse/compute-qms/internal/keylock"
	"github.com/cyverse/compute-qms/internal/model"
	"github.com/cyverse/compute-qms/internal/plans"
	"github.com/cyverse/compute-qms/internal/qmserrors"
	"github.com/cyverse/compute-qms/internal/store"
	"github.com/cyverse/compute-qms/logging"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logging.GetLogger().WithFields(logrus.Fields{"package": "entitlements"})

// UpdateFunc mutates a quota record inside a transaction. The record is saved if the function returns nil.
type UpdateFunc func(tx store.Tx, quota *model.UserQuota) error

// Store is the entitlement store.
type Store struct {
	db      store.Store
	catalog *plans.Catalog
	locks   *keylock.KeyLock
	events  events.Sink
	now     func() time.Time
}

// New creates a new entitlement store.
func New(db store.Store, catalog *plans.Catalog, locks *keylock.KeyLock, sink events.Sink) *Store {
	if locks == nil {
		locks = keylock.New()
	}
	return &Store{
		db:      db,
		catalog: catalog,
		locks:   locks,
		events:  events.OrDefault(sink),
		now:     time.Now,
	}
}

// SetClock replaces the function used to obtain the current time.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Now returns the current time according to the store's clock.
func (s *Store) Now() time.Time {
	return s.now()
}

// Catalog returns the plan catalog used to provision new records.
func (s *Store) Catalog() *plans.Catalog {
	return s.catalog
}

// provisioning describes how to create a record that doesn't exist yet.
type provisioning struct {
	username string
	isAdmin  bool
}

// newRecord builds the quota record for a user who doesn't have one yet.
func (s *Store) newRecord(userID string, p *provisioning) *model.UserQuota {
	plan := s.catalog.ForNewUser(p.isAdmin)
	activatedAt := s.now()

	username := p.username
	if username == "" {
		username = userID
	}

	return &model.UserQuota{
		UserID:          userID,
		Username:        username,
		Quotas:          plan.Quotas,
		CurrentPlan:     plan.ID,
		PlanActivatedAt: &activatedAt,
		IsAdmin:         p.isAdmin,
	}
}

// update runs fn against the quota record for userID while holding the user's lock. If the record doesn't exist it
// is created when p is non-nil; otherwise a NotFoundError is returned.
func (s *Store) update(ctx context.Context, userID string, p *provisioning, fn UpdateFunc) (*model.UserQuota, error) {
	if userID == "" {
		return nil, qmserrors.Validation("user_id", "a user ID is required")
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	var result *model.UserQuota
	var created bool
	err := s.db.Transaction(ctx, func(tx store.Tx) error {
		quota, err := tx.LockUserQuota(ctx, userID)
		if errors.Is(err, store.ErrNotFound) {
			if p == nil {
				return qmserrors.NotFound("user quota", userID)
			}
			quota = s.newRecord(userID, p)
			created = true
		} else if err != nil {
			return err
		}

		if err = fn(tx, quota); err != nil {
			return err
		}
		if err = tx.SaveUserQuota(ctx, quota); err != nil {
			return err
		}

		result = quota
		return nil
	})
	if err != nil {
		return nil, err
	}

	if created {
		s.events.Emit(ctx, events.New(events.QuotaCreated, userID, map[string]any{"plan": result.CurrentPlan}))
	}

	return result, nil
}

// Update runs fn against the user's quota record, provisioning the record with the default plan first if needed.
func (s *Store) Update(ctx context.Context, userID string, fn UpdateFunc) (*model.UserQuota, error) {
	return s.update(ctx, userID, &provisioning{}, fn)
}

// UpdateExisting is like Update, but returns a NotFoundError instead of provisioning a missing record.
func (s *Store) UpdateExisting(ctx context.Context, userID string, fn UpdateFunc) (*model.UserQuota, error) {
	return s.update(ctx, userID, nil, fn)
}

// Get returns the quota record for a user.
func (s *Store) Get(ctx context.Context, userID string) (*model.UserQuota, error) {
	quota, err := s.db.GetUserQuota(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, qmserrors.NotFound("user quota", userID)
	}
	return quota, err
}

// GetByUsername returns the quota record for a username.
func (s *Store) GetByUsername(ctx context.Context, username string) (*model.UserQuota, error) {
	quota, err := s.db.GetUserQuotaByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return nil, qmserrors.NotFound("user", username)
	}
	return quota, err
}

// GetOrCreate returns the quota record for a user, provisioning it with the default plan if it doesn't exist.
func (s *Store) GetOrCreate(ctx context.Context, userID, username string) (*model.UserQuota, error) {
	quota, err := s.db.GetUserQuota(ctx, userID)
	if err == nil {
		return quota, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return s.update(ctx, userID, &provisioning{username: username}, func(store.Tx, *model.UserQuota) error {
		return nil
	})
}

// List lists quota records.
func (s *Store) List(ctx context.Context, params *store.ListingParams) ([]*model.UserQuota, int64, error) {
	return s.db.ListUserQuotas(ctx, params)
}

// Upsert creates the quota record for a user if it doesn't exist and merges any overrides into its ceilings. A new
// record starts with the default plan, or the admin plan when isAdmin is true. Usage counters are never changed.
func (s *Store) Upsert(
	ctx context.Context, userID, username string, overrides *model.QuotaOverrides, isAdmin *bool,
) (*model.UserQuota, error) {
	if field := overrides.Negative(); field != "" {
		return nil, qmserrors.Validation(field, "quota values may not be negative")
	}

	p := &provisioning{username: username}
	if isAdmin != nil {
		p.isAdmin = *isAdmin
	}

	quota, err := s.update(ctx, userID, p, func(_ store.Tx, quota *model.UserQuota) error {
		if username != "" {
			quota.Username = username
		}
		if isAdmin != nil {
			quota.IsAdmin = *isAdmin
		}
		overrides.ApplyTo(&quota.Quotas)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.Emit(ctx, events.New(events.QuotaUpdated, userID, map[string]any{
		"quotas":   quota.Quotas,
		"is_admin": quota.IsAdmin,
	}))

	return quota, nil
}

// SetSuspended sets or clears the suspension flag. Suspension only affects future admission decisions.
func (s *Store) SetSuspended(ctx context.Context, userID string, suspended bool) (*model.UserQuota, error) {
	var changed bool
	quota, err := s.Update(ctx, userID, func(_ store.Tx, quota *model.UserQuota) error {
		changed = quota.Suspended != suspended
		quota.Suspended = suspended
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		eventType := events.QuotaUnsuspended
		if suspended {
			eventType = events.QuotaSuspended
		}
		s.events.Emit(ctx, events.New(eventType, userID, nil))
	}

	return quota, nil
}

// MaxDeltaAmount is the largest amount a single usage delta may carry in any dimension.
const MaxDeltaAmount int64 = 1 << 40

// ValidateDelta verifies that a usage delta applies to a known resource type and that every amount is between zero
// and MaxDeltaAmount.
func ValidateDelta(resourceType model.ResourceType, delta model.UsageDelta) error {
	if !resourceType.Valid() {
		return qmserrors.Validation("resource_type", "unknown resource type: %s", resourceType)
	}
	checks := []struct {
		field  string
		amount int64
	}{
		{"vcpus", delta.VCPUs},
		{"memory_mb", delta.MemoryMB},
		{"disk_gb", delta.DiskGB},
		{"count", delta.Count},
	}
	for _, c := range checks {
		switch {
		case c.amount < 0:
			return qmserrors.Validation(c.field, "must not be negative")
		case c.amount > MaxDeltaAmount:
			return qmserrors.Validation(c.field, "must not exceed %d", MaxDeltaAmount)
		}
	}
	return nil
}

// ApplyIncrement adds a usage delta to a quota record. Counters saturate at math.MaxInt64.
func ApplyIncrement(quota *model.UserQuota, resourceType model.ResourceType, delta model.UsageDelta) {
	for d, amount := range delta.Amounts(resourceType) {
		current := quota.Usage.Current(d)
		if amount > math.MaxInt64-current {
			quota.Usage.Set(d, math.MaxInt64)
			continue
		}
		quota.Usage.Set(d, current+amount)
	}
}

// IncrementUsage adds a usage delta to the user's counters.
func (s *Store) IncrementUsage(
	ctx context.Context, userID string, resourceType model.ResourceType, delta model.UsageDelta,
) (*model.UserQuota, error) {
	if err := ValidateDelta(resourceType, delta); err != nil {
		return nil, err
	}

	quota, err := s.Update(ctx, userID, func(_ store.Tx, quota *model.UserQuota) error {
		ApplyIncrement(quota, resourceType, delta)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.Emit(ctx, events.New(events.UsageIncremented, userID, map[string]any{
		"resource_type": resourceType,
		"delta":         delta.Amounts(resourceType),
	}))

	return quota, nil
}

// DecrementUsage subtracts a usage delta from the user's counters. Counters never go below zero; a decrement that
// would have made one negative is clamped and logged.
func (s *Store) DecrementUsage(
	ctx context.Context, userID string, resourceType model.ResourceType, delta model.UsageDelta,
) (*model.UserQuota, error) {
	log := log.WithFields(logrus.Fields{"context": "decrementing usage", "user": userID})

	if err := ValidateDelta(resourceType, delta); err != nil {
		return nil, err
	}

	quota, err := s.UpdateExisting(ctx, userID, func(_ store.Tx, quota *model.UserQuota) error {
		for d, amount := range delta.Amounts(resourceType) {
			current := quota.Usage.Current(d)
			updated := current - amount
			if updated < 0 {
				log.WithFields(logrus.Fields{"dimension": d, "current": current, "decrement": amount}).
					Warn("usage decrement would make the counter negative; clamping at zero")
				updated = 0
			}
			quota.Usage.Set(d, updated)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.Emit(ctx, events.New(events.UsageDecremented, userID, map[string]any{
		"resource_type": resourceType,
		"delta":         delta.Amounts(resourceType),
	}))

	return quota, nil
}

// SetUsage overwrites the user's usage counters and returns the previous values.
func (s *Store) SetUsage(ctx context.Context, userID string, usage model.Usage) (model.Usage, error) {
	var previous model.Usage
	_, err := s.Update(ctx, userID, func(_ store.Tx, quota *model.UserQuota) error {
		previous = quota.Usage
		quota.Usage = usage
		return nil
	})
	return previous, err
}

// Delete removes the quota record for a user.
func (s *Store) Delete(ctx context.Context, userID string) error {
	unlock := s.locks.Lock(userID)
	defer unlock()

	err := s.db.DeleteUserQuota(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return qmserrors.NotFound("user quota", userID)
	} else if err != nil {
		return err
	}

	s.events.Emit(ctx, events.New(events.QuotaDeleted, userID, nil))

	return nil
}

// Overages lists the dimensions in which the user's usage is at or above the ceiling. A user without a quota record
// has no overages.
func (s *Store) Overages(ctx context.Context, userID string) ([]model.Overage, error) {
	quota, err := s.db.GetUserQuota(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return []model.Overage{}, nil
	} else if err != nil {
		return nil, err
	}
	return quota.Overages(), nil
}
