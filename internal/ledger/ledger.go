// Package ledger mutates token balances and billing plans. Every balance change is written together with a ledger
// entry recording the balance before and after the change, in the same store transaction.
package ledger

import (
	"context"
	"math"

	"github.com/cyverse/compute-qms/internal/entitlements"
	"github.com/cyverse/compute-qms/internal/events"
	"github.com/cyverse/compute-qms/internal/metrics"
	"github.com/cyverse/compute-qms/internal/model"
	"github.com/cyverse/compute-qms/internal/plans"
	"github.com/cyverse/compute-qms/internal/qmserrors"
	"github.com/cyverse/compute-qms/internal/store"
	"github.com/cyverse/compute-qms/logging"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logging.GetLogger().WithFields(logrus.Fields{"package": "ledger"})

// PlanTermMonths is the number of months a paid plan stays active before it reverts to the default plan.
const PlanTermMonths = 1

// Note describes why a balance changed.
type Note struct {
	// Reason is a free-form explanation recorded in the ledger.
	Reason string

	// PerformedBy identifies the administrator responsible for a manual change.
	PerformedBy string

	// RelatedResourceType and RelatedResourceID optionally link the entry to a resource.
	RelatedResourceType model.ResourceType
	RelatedResourceID   string
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Ledger is the token ledger.
type Ledger struct {
	db           store.Store
	entitlements *entitlements.Store
	catalog      *plans.Catalog
	metrics      *metrics.Metrics
	events       events.Sink
}

// New creates a new ledger.
func New(
	db store.Store, entitlements *entitlements.Store, catalog *plans.Catalog, m *metrics.Metrics, sink events.Sink,
) *Ledger {
	return &Ledger{
		db:           db,
		entitlements: entitlements,
		catalog:      catalog,
		metrics:      m,
		events:       events.OrDefault(sink),
	}
}

// Record applies a signed change to the balance of a quota record and appends the matching ledger entry. It must be
// called inside an entitlements update so that the record is locked and saved in the same transaction. A change
// that would make the balance negative fails with an InsufficientTokensError and changes nothing.
func (l *Ledger) Record(
	ctx context.Context, tx store.Tx, quota *model.UserQuota, txType model.TransactionType, amount int64, note Note,
) (*model.TokenTransaction, error) {
	if !txType.Valid() {
		return nil, qmserrors.Validation("type", "unknown transaction type: %s", txType)
	}

	before := quota.TokenBalance
	if amount > 0 && amount > math.MaxInt64-before {
		return nil, qmserrors.Validation("amount", "a balance of %d can't grow by %d", before, amount)
	}
	after := before + amount
	if after < 0 {
		return nil, qmserrors.InsufficientTokens(-amount, before)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.Wrap(err, "unable to generate a transaction ID")
	}

	txn := &model.TokenTransaction{
		ID:                id.String(),
		UserID:            quota.UserID,
		Type:              txType,
		Amount:            amount,
		BalanceBefore:     before,
		BalanceAfter:      after,
		Reason:            note.Reason,
		RelatedResourceID: optional(note.RelatedResourceID),
		PerformedBy:       optional(note.PerformedBy),
		Timestamp:         l.entitlements.Now().UTC(),
	}
	if note.RelatedResourceType != "" {
		txn.RelatedResourceType = optional(string(note.RelatedResourceType))
	}

	if err = tx.AddTokenTransaction(ctx, txn); err != nil {
		return nil, err
	}
	quota.TokenBalance = after

	return txn, nil
}

// observe reports a committed transaction to the metrics and the audit sink.
func (l *Ledger) observe(ctx context.Context, txn *model.TokenTransaction) {
	if txn == nil {
		return
	}
	l.metrics.ObserveTokens(string(txn.Type), txn.Amount)

	event := events.New(events.TokensChanged, txn.UserID, map[string]any{
		"transaction_id": txn.ID,
		"type":           txn.Type,
		"amount":         txn.Amount,
		"balance_after":  txn.BalanceAfter,
		"reason":         txn.Reason,
	})
	if txn.PerformedBy != nil {
		event = event.WithActor(*txn.PerformedBy)
	}
	l.events.Emit(ctx, event)
}

// AddTokens credits a positive amount to the user's balance and returns the new balance.
func (l *Ledger) AddTokens(ctx context.Context, userID string, amount int64, note Note) (int64, error) {
	if amount <= 0 {
		return 0, qmserrors.Validation("amount", "must be greater than zero")
	}

	txType := model.TransactionTypeCredit
	if note.PerformedBy != "" {
		txType = model.TransactionTypeAdminAdjustment
	}

	var txn *model.TokenTransaction
	quota, err := l.entitlements.Update(ctx, userID, func(tx store.Tx, quota *model.UserQuota) (err error) {
		txn, err = l.Record(ctx, tx, quota, txType, amount, note)
		return err
	})
	if err != nil {
		return 0, err
	}

	l.observe(ctx, txn)
	return quota.TokenBalance, nil
}

// RemoveTokens debits a positive amount from the user's balance and returns the new balance. The debit fails if the
// balance is too small.
func (l *Ledger) RemoveTokens(ctx context.Context, userID string, amount int64, note Note) (int64, error) {
	if amount <= 0 {
		return 0, qmserrors.Validation("amount", "must be greater than zero")
	}

	txType := model.TransactionTypeDebit
	if note.PerformedBy != "" {
		txType = model.TransactionTypeAdminAdjustment
	}

	var txn *model.TokenTransaction
	quota, err := l.entitlements.Update(ctx, userID, func(tx store.Tx, quota *model.UserQuota) (err error) {
		txn, err = l.Record(ctx, tx, quota, txType, -amount, note)
		return err
	})
	if err != nil {
		return 0, err
	}

	l.observe(ctx, txn)
	return quota.TokenBalance, nil
}

// SetTokenBalance sets the user's balance to an absolute value. Setting the balance to its current value records
// nothing.
func (l *Ledger) SetTokenBalance(ctx context.Context, userID string, balance int64, note Note) (int64, error) {
	if balance < 0 {
		return 0, qmserrors.Validation("balance", "must not be negative")
	}

	var txn *model.TokenTransaction
	quota, err := l.entitlements.Update(ctx, userID, func(tx store.Tx, quota *model.UserQuota) (err error) {
		if quota.TokenBalance == balance {
			return nil
		}
		txn, err = l.Record(ctx, tx, quota, model.TransactionTypeAdminAdjustment, balance-quota.TokenBalance, note)
		return err
	})
	if err != nil {
		return 0, err
	}

	l.observe(ctx, txn)
	return quota.TokenBalance, nil
}

// ChangePlan switches the user to a plan, charging the plan's token cost. The user's ceilings are replaced with the
// plan's bundle. Existing usage is left alone even if it exceeds the new ceilings; new resources are simply denied
// until usage drops. Paid plans expire after PlanTermMonths.
func (l *Ledger) ChangePlan(ctx context.Context, userID, planID string, note Note) (*model.UserQuota, error) {
	log := log.WithFields(logrus.Fields{"context": "changing plan", "user": userID, "plan": planID})

	plan, err := l.catalog.Get(planID)
	if err != nil {
		return nil, qmserrors.Validation("plan_id", "unknown plan: %s", planID)
	}

	if note.Reason == "" {
		note.Reason = "plan change to " + plan.ID
	}

	var txn *model.TokenTransaction
	var previous string
	quota, err := l.entitlements.Update(ctx, userID, func(tx store.Tx, quota *model.UserQuota) error {
		if quota.TokenBalance < plan.TokenCost {
			return qmserrors.InsufficientTokens(plan.TokenCost, quota.TokenBalance)
		}

		if plan.TokenCost > 0 {
			var err error
			txn, err = l.Record(ctx, tx, quota, model.TransactionTypePurchase, -plan.TokenCost, note)
			if err != nil {
				return err
			}
		}

		now := l.entitlements.Now().UTC()
		previous = quota.CurrentPlan
		quota.Quotas = plan.Quotas
		quota.CurrentPlan = plan.ID
		quota.PlanActivatedAt = &now
		quota.PlanExpiresAt = nil
		if plan.TokenCost > 0 {
			expires := now.AddDate(0, PlanTermMonths, 0)
			quota.PlanExpiresAt = &expires
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, o := range quota.Overages() {
		log.Infof("usage of %s (%d) is at or above the new ceiling (%d)", o.Dimension, o.Usage, o.Quota)
	}

	l.observe(ctx, txn)
	l.events.Emit(ctx, events.New(events.PlanChanged, userID, map[string]any{
		"from": previous,
		"to":   plan.ID,
		"cost": plan.TokenCost,
	}).WithActor(note.PerformedBy))

	return quota, nil
}

// customCeilings returns the ceilings of a quota record that differ from the bundle of the plan it is on. These are
// the values an administrator set with a quota override.
func (l *Ledger) customCeilings(quota *model.UserQuota) map[string]int64 {
	plan, err := l.catalog.Get(quota.CurrentPlan)
	if err != nil {
		return nil
	}

	var result map[string]int64
	for _, d := range model.Dimensions {
		if value := quota.Quotas.Limit(d); value != plan.Quotas.Limit(d) {
			if result == nil {
				result = make(map[string]int64)
			}
			result[string(d)] = value
		}
	}
	return result
}

// ExpirePlans reverts every user whose plan has expired to the default plan. Usage and balances are untouched. The
// ceilings are replaced with the default plan's bundle, which discards any quota overrides made while the expired
// plan was active; the discarded values are logged and included in the plan-expired event. It returns the number of
// users reverted.
func (l *Ledger) ExpirePlans(ctx context.Context) (int, error) {
	log := log.WithFields(logrus.Fields{"context": "expiring plans"})

	now := l.entitlements.Now()
	expired, err := l.db.ListExpiredPlans(ctx, now)
	if err != nil {
		return 0, err
	}

	defaultPlan := l.catalog.Default()
	count := 0
	for _, candidate := range expired {
		var reverted bool
		var previous string
		var discarded map[string]int64
		_, err = l.entitlements.UpdateExisting(ctx, candidate.UserID, func(_ store.Tx, quota *model.UserQuota) error {
			// Another operation may have renewed the plan since the listing was taken.
			if quota.PlanExpiresAt == nil || quota.PlanExpiresAt.After(now) {
				return nil
			}
			activatedAt := now.UTC()
			previous = quota.CurrentPlan
			discarded = l.customCeilings(quota)
			quota.Quotas = defaultPlan.Quotas
			quota.CurrentPlan = defaultPlan.ID
			quota.PlanActivatedAt = &activatedAt
			quota.PlanExpiresAt = nil
			reverted = true
			return nil
		})
		if qmserrors.IsNotFound(err) {
			continue
		} else if err != nil {
			return count, err
		}

		if reverted {
			count++
			log := log.WithFields(logrus.Fields{"user": candidate.UserID})
			log.Infof("plan %s expired", previous)
			details := map[string]any{
				"from": previous,
				"to":   defaultPlan.ID,
			}
			if len(discarded) > 0 {
				log.Warnf("discarded quota overrides: %v", discarded)
				details["discarded_overrides"] = discarded
			}
			l.events.Emit(ctx, events.New(events.PlanExpired, candidate.UserID, details))
		}
	}

	return count, nil
}

// Transactions lists the ledger entries for a user, oldest first.
func (l *Ledger) Transactions(ctx context.Context, userID string) ([]*model.TokenTransaction, error) {
	return l.db.ListTokenTransactions(ctx, userID)
}

// Balance returns the current token balance for a user. Users without a quota record have a balance of zero.
func (l *Ledger) Balance(ctx context.Context, userID string) (int64, error) {
	quota, err := l.entitlements.Get(ctx, userID)
	if qmserrors.IsNotFound(err) {
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	return quota.TokenBalance, nil
}
