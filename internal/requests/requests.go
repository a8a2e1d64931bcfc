// Package requests tracks user requests for additional tokens. Reviewing a request never changes a token balance;
// administrators credit tokens through the ledger as a separate step.
package requests

import (
	"context"
	"time"

	"github.com/cyverse/compute-qms/internal/events"
	"github.com/cyverse/compute-qms/internal/model"
	"github.com/cyverse/compute-qms/internal/qmserrors"
	"github.com/cyverse/compute-qms/internal/store"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Manager is the token request manager.
type Manager struct {
	db     store.Store
	events events.Sink
	now    func() time.Time
}

// New creates a new token request manager.
func New(db store.Store, sink events.Sink) *Manager {
	return &Manager{db: db, events: events.OrDefault(sink), now: time.Now}
}

// CreateRequest records a pending request for tokens.
func (m *Manager) CreateRequest(ctx context.Context, userID string, amount int64, reason string) (*model.TokenRequest, error) {
	switch {
	case userID == "":
		return nil, qmserrors.Validation("user_id", "a user ID is required")
	case amount <= 0:
		return nil, qmserrors.Validation("amount", "must be greater than zero")
	case reason == "":
		return nil, qmserrors.Validation("reason", "a reason is required")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.Wrap(err, "unable to generate a request ID")
	}

	request := &model.TokenRequest{
		ID:        id.String(),
		UserID:    userID,
		Amount:    amount,
		Reason:    reason,
		Status:    model.RequestStatusPending,
		CreatedAt: m.now().UTC(),
	}
	if err = m.db.SaveTokenRequest(ctx, request); err != nil {
		return nil, err
	}

	m.events.Emit(ctx, events.New(events.RequestCreated, userID, map[string]any{
		"request_id": request.ID,
		"amount":     amount,
	}))

	return request, nil
}

// Get returns a single request.
func (m *Manager) Get(ctx context.Context, requestID string) (*model.TokenRequest, error) {
	request, err := m.db.GetTokenRequest(ctx, requestID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, qmserrors.NotFound("token request", requestID)
	}
	return request, err
}

// review moves a pending request to its final status.
func (m *Manager) review(
	ctx context.Context, requestID string, status model.RequestStatus, reviewedBy, notes string,
) (*model.TokenRequest, error) {
	if reviewedBy == "" {
		return nil, qmserrors.Validation("reviewed_by", "the reviewing administrator is required")
	}

	var result *model.TokenRequest
	err := m.db.Transaction(ctx, func(tx store.Tx) error {
		request, err := tx.GetTokenRequest(ctx, requestID)
		if errors.Is(err, store.ErrNotFound) {
			return qmserrors.NotFound("token request", requestID)
		} else if err != nil {
			return err
		}

		if request.Status != model.RequestStatusPending {
			return qmserrors.Conflict("token request %s has already been %s", requestID, request.Status)
		}

		reviewedAt := m.now().UTC()
		request.Status = status
		request.ReviewedBy = &reviewedBy
		request.ReviewedAt = &reviewedAt
		request.AdminNotes = notes
		if err = tx.SaveTokenRequest(ctx, request); err != nil {
			return err
		}

		result = request
		return nil
	})
	if err != nil {
		return nil, err
	}

	eventType := events.RequestDenied
	if status == model.RequestStatusApproved {
		eventType = events.RequestApproved
	}
	m.events.Emit(ctx, events.New(eventType, result.UserID, map[string]any{
		"request_id": result.ID,
		"amount":     result.Amount,
	}).WithActor(reviewedBy))

	return result, nil
}

// ApproveRequest approves a pending request.
func (m *Manager) ApproveRequest(ctx context.Context, requestID, reviewedBy, notes string) (*model.TokenRequest, error) {
	return m.review(ctx, requestID, model.RequestStatusApproved, reviewedBy, notes)
}

// DenyRequest denies a pending request.
func (m *Manager) DenyRequest(ctx context.Context, requestID, reviewedBy, notes string) (*model.TokenRequest, error) {
	return m.review(ctx, requestID, model.RequestStatusDenied, reviewedBy, notes)
}

// GetPendingRequests lists the requests waiting for review, oldest first.
func (m *Manager) GetPendingRequests(ctx context.Context) ([]*model.TokenRequest, error) {
	return m.db.ListTokenRequests(ctx, model.RequestStatusPending)
}
