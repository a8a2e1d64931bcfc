// Package contracts manages monthly token refill contracts.
package contracts

import (
	"context"
	"fmt"
	"time"

	"github.com/cyverse/compute-qms/internal/entitlements"
	"github.com/cyverse/compute-qms/internal/events"
	"github.com/cyverse/compute-qms/internal/ledger"
	"github.com/cyverse/compute-qms/internal/metrics"
	"github.com/cyverse/compute-qms/internal/model"
	"github.com/cyverse/compute-qms/internal/qmserrors"
	"github.com/cyverse/compute-qms/internal/store"
	"github.com/cyverse/compute-qms/logging"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logging.GetLogger().WithFields(logrus.Fields{"package": "contracts"})

// MaxDurationMonths is the longest contract that may be created.
const MaxDurationMonths = 120

// transitions lists the status changes an administrator may make. Expiration is only ever applied by the sweep.
var transitions = map[model.ContractStatus][]model.ContractStatus{
	model.ContractStatusActive: {model.ContractStatusPaused, model.ContractStatusCancelled},
	model.ContractStatusPaused: {model.ContractStatusActive, model.ContractStatusCancelled},
}

func transitionAllowed(from, to model.ContractStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// NewContract describes a contract to create.
type NewContract struct {
	UserID         string
	TokensPerMonth int64
	DurationMonths int
	StartDate      *time.Time
	CreatedBy      string
	Notes          string
}

// SweepResult summarizes a single contract sweep.
//
// swagger:model
type SweepResult struct {
	// The number of refills credited
	Refills int `json:"refills"`

	// The number of tokens credited
	TokensCredited int64 `json:"tokens_credited"`

	// The number of contracts that expired
	Expired int `json:"expired"`
}

// Manager is the contract manager.
type Manager struct {
	db           store.Store
	entitlements *entitlements.Store
	ledger       *ledger.Ledger
	metrics      *metrics.Metrics
	events       events.Sink
}

// AddMonths adds n calendar months to t. The day of the month is clamped to the last day of the target month, so a
// contract starting on January 31 refills on the last day of February and then on March 31.
func AddMonths(t time.Time, n int) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	target := first.AddDate(0, n, 0)
	last := target.AddDate(0, 1, -1).Day()
	return target.AddDate(0, 0, min(t.Day(), last)-1)
}

// New creates a new contract manager.
func New(
	db store.Store, entitlements *entitlements.Store, ledger *ledger.Ledger, m *metrics.Metrics, sink events.Sink,
) *Manager {
	return &Manager{
		db:           db,
		entitlements: entitlements,
		ledger:       ledger,
		metrics:      m,
		events:       events.OrDefault(sink),
	}
}

func (m *Manager) now() time.Time {
	return m.entitlements.Now().UTC()
}

// CreateContract creates an active contract. The first refill is due one month after the start date.
func (m *Manager) CreateContract(ctx context.Context, req NewContract) (*model.UserContract, error) {
	switch {
	case req.UserID == "":
		return nil, qmserrors.Validation("user_id", "a user ID is required")
	case req.TokensPerMonth <= 0:
		return nil, qmserrors.Validation("tokens_per_month", "must be greater than zero")
	case req.DurationMonths <= 0 || req.DurationMonths > MaxDurationMonths:
		return nil, qmserrors.Validation("duration_months", "must be between 1 and %d", MaxDurationMonths)
	case req.CreatedBy == "":
		return nil, qmserrors.Validation("created_by", "the creating administrator is required")
	}

	start := m.now()
	if req.StartDate != nil {
		start = req.StartDate.UTC()
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.Wrap(err, "unable to generate a contract ID")
	}

	contract := &model.UserContract{
		ID:             id.String(),
		UserID:         req.UserID,
		TokensPerMonth: req.TokensPerMonth,
		DurationMonths: req.DurationMonths,
		StartDate:      start,
		EndDate:        AddMonths(start, req.DurationMonths),
		NextRefillDate: AddMonths(start, 1),
		Status:         model.ContractStatusActive,
		CreatedBy:      req.CreatedBy,
		Notes:          req.Notes,
	}
	if err = m.db.SaveContract(ctx, contract); err != nil {
		return nil, err
	}

	m.events.Emit(ctx, events.New(events.ContractCreated, contract.UserID, map[string]any{
		"contract_id":      contract.ID,
		"tokens_per_month": contract.TokensPerMonth,
		"duration_months":  contract.DurationMonths,
	}).WithActor(req.CreatedBy))

	return contract, nil
}

// Get returns a single contract.
func (m *Manager) Get(ctx context.Context, contractID string) (*model.UserContract, error) {
	contract, err := m.db.GetContract(ctx, contractID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, qmserrors.NotFound("contract", contractID)
	}
	return contract, err
}

// List lists contracts matching a filter.
func (m *Manager) List(ctx context.Context, filter store.ContractFilter) ([]*model.UserContract, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, qmserrors.Validation("status", "unknown contract status: %s", filter.Status)
	}
	return m.db.ListContracts(ctx, filter)
}

// UpdateContractStatus pauses, resumes or cancels a contract.
func (m *Manager) UpdateContractStatus(
	ctx context.Context, contractID string, status model.ContractStatus, performedBy string,
) (*model.UserContract, error) {
	if !status.Valid() {
		return nil, qmserrors.Validation("status", "unknown contract status: %s", status)
	}
	if status == model.ContractStatusExpired {
		return nil, qmserrors.Validation("status", "contracts can't be expired manually")
	}

	var result *model.UserContract
	var previous model.ContractStatus
	err := m.db.Transaction(ctx, func(tx store.Tx) error {
		contract, err := tx.LockContract(ctx, contractID)
		if errors.Is(err, store.ErrNotFound) {
			return qmserrors.NotFound("contract", contractID)
		} else if err != nil {
			return err
		}

		previous = contract.Status
		if previous == status {
			result = contract
			return nil
		}
		if !transitionAllowed(previous, status) {
			return qmserrors.Conflict("a %s contract can't be changed to %s", previous, status)
		}

		contract.Status = status
		if err = tx.SaveContract(ctx, contract); err != nil {
			return err
		}
		result = contract
		return nil
	})
	if err != nil {
		return nil, err
	}

	if previous != status {
		m.events.Emit(ctx, events.New(events.ContractStatusChanged, result.UserID, map[string]any{
			"contract_id": contractID,
			"from":        previous,
			"to":          status,
		}).WithActor(performedBy))
	}

	return result, nil
}

// RecordRefill credits one month of tokens for a contract that is due for a refill and advances its next refill
// date by one month. The credit and the contract update are written in the same transaction. Contracts that aren't
// due produce a ConflictError.
func (m *Manager) RecordRefill(ctx context.Context, contractID string) (*model.UserContract, error) {
	contract, err := m.Get(ctx, contractID)
	if err != nil {
		return nil, err
	}

	now := m.now()
	var result *model.UserContract
	var txn *model.TokenTransaction
	_, err = m.entitlements.Update(ctx, contract.UserID, func(tx store.Tx, quota *model.UserQuota) error {
		locked, err := tx.LockContract(ctx, contractID)
		if err != nil {
			return err
		}
		if !locked.DueForRefill(now) {
			return qmserrors.Conflict("contract %s is not due for a refill", contractID)
		}

		note := ledger.Note{
			Reason: fmt.Sprintf("contract %s refill %d of %d", locked.ID, locked.TotalRefills+1, locked.DurationMonths),
		}
		txn, err = m.ledger.Record(ctx, tx, quota, model.TransactionTypeCredit, locked.TokensPerMonth, note)
		if err != nil {
			return err
		}

		locked.TotalRefills++
		locked.NextRefillDate = AddMonths(locked.StartDate.UTC(), locked.TotalRefills+1)
		if err = tx.SaveContract(ctx, locked); err != nil {
			return err
		}

		result = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.metrics.ObserveRefill()
	m.metrics.ObserveTokens(string(txn.Type), txn.Amount)
	m.events.Emit(ctx, events.New(events.ContractRefilled, result.UserID, map[string]any{
		"contract_id":      result.ID,
		"amount":           txn.Amount,
		"balance_after":    txn.BalanceAfter,
		"total_refills":    result.TotalRefills,
		"next_refill_date": result.NextRefillDate,
	}))

	return result, nil
}

// GetContractsDueForRefill lists the active contracts that are due for a refill.
func (m *Manager) GetContractsDueForRefill(ctx context.Context) ([]*model.UserContract, error) {
	active, err := m.db.ListContracts(ctx, store.ContractFilter{Status: model.ContractStatusActive})
	if err != nil {
		return nil, err
	}

	now := m.now()
	result := make([]*model.UserContract, 0)
	for _, c := range active {
		if c.DueForRefill(now) {
			result = append(result, c)
		}
	}
	return result, nil
}

// GetExpiredContracts lists the active contracts whose end date has passed.
func (m *Manager) GetExpiredContracts(ctx context.Context) ([]*model.UserContract, error) {
	active, err := m.db.ListContracts(ctx, store.ContractFilter{Status: model.ContractStatusActive})
	if err != nil {
		return nil, err
	}

	now := m.now()
	result := make([]*model.UserContract, 0)
	for _, c := range active {
		if c.Expired(now) {
			result = append(result, c)
		}
	}
	return result, nil
}

// expire marks an active contract as expired.
func (m *Manager) expire(ctx context.Context, contractID string) (bool, error) {
	now := m.now()
	var contract *model.UserContract
	err := m.db.Transaction(ctx, func(tx store.Tx) error {
		var err error
		contract, err = tx.LockContract(ctx, contractID)
		if err != nil {
			return err
		}
		if !contract.Expired(now) {
			contract = nil
			return nil
		}
		contract.Status = model.ContractStatusExpired
		return tx.SaveContract(ctx, contract)
	})
	if err != nil || contract == nil {
		return false, err
	}

	m.events.Emit(ctx, events.New(events.ContractExpired, contract.UserID, map[string]any{
		"contract_id":   contract.ID,
		"total_refills": contract.TotalRefills,
	}))
	return true, nil
}

// Sweep credits every due refill and expires every contract whose end date has passed. A contract that missed
// several periods is refilled once per missed period. Running the sweep again without the clock advancing does
// nothing.
func (m *Manager) Sweep(ctx context.Context) (*SweepResult, error) {
	log := log.WithFields(logrus.Fields{"context": "contract sweep"})

	result := &SweepResult{}

	due, err := m.GetContractsDueForRefill(ctx)
	if err != nil {
		return result, err
	}
	for _, contract := range due {
		now := m.now()
		for contract.DueForRefill(now) {
			if err = ctx.Err(); err != nil {
				return result, err
			}
			id := contract.ID
			contract, err = m.RecordRefill(ctx, id)
			if err != nil {
				return result, errors.Wrapf(err, "unable to refill contract %s", id)
			}
			result.Refills++
			result.TokensCredited += contract.TokensPerMonth
		}
	}

	expired, err := m.GetExpiredContracts(ctx)
	if err != nil {
		return result, err
	}
	for _, contract := range expired {
		ok, err := m.expire(ctx, contract.ID)
		if err != nil {
			return result, errors.Wrapf(err, "unable to expire contract %s", contract.ID)
		}
		if ok {
			result.Expired++
		}
	}

	if result.Refills > 0 || result.Expired > 0 {
		log.Infof("credited %d refills (%d tokens), expired %d contracts",
			result.Refills, result.TokensCredited, result.Expired)
	}

	return result, nil
}
