package controllers

import (
	"net/http"

	"github.com/cyverse/compute-qms/internal/httpmodel"
	"github.com/cyverse/compute-qms/internal/ledger"
	"github.com/cyverse/compute-qms/internal/model"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// TokenBalanceResponse is the response body for the endpoints that report a token balance.
type TokenBalanceResponse struct {
	UserID  string `json:"user_id"`
	Balance int64  `json:"balance"`
}

// GetTokenBalance returns a user's token balance.
//
// swagger:route GET /v1/users/{user_id}/tokens tokens getTokenBalance
//
// # Get a User's Token Balance
//
// Returns the current token balance. Users without a quota record have a balance of zero.
//
// responses:
//
//	200: tokenBalanceResponse
//	400: badRequestResponse
//	500: internalServerErrorResponse
func (s Server) GetTokenBalance(ctx echo.Context) error {
	log := log.WithFields(logrus.Fields{"context": "getting token balance"})

	userID, err := extractUserID(ctx)
	if err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}

	log = log.WithFields(logrus.Fields{"user": userID})

	balance, err := s.Ledger.Balance(ctx.Request().Context(), userID)
	if err != nil {
		return errorResponse(ctx, log, err)
	}

	return model.Success(ctx, TokenBalanceResponse{UserID: userID, Balance: balance}, http.StatusOK)
}

// adjustTokens binds a token adjustment and applies it with the given ledger operation.
func (s Server) adjustTokens(
	ctx echo.Context,
	log *logrus.Entry,
	adjust func(l *ledger.Ledger, userID string, amount int64, note ledger.Note) (int64, error),
) error {
	userID, err := extractUserID(ctx)
	if err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}

	var body httpmodel.TokenAdjustment
	if err = ctx.Bind(&body); err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}
	if err = body.Validate(); err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}

	log = log.WithFields(logrus.Fields{"user": userID, "amount": body.Amount})

	note := ledger.Note{
		Reason:              body.Reason,
		PerformedBy:         actor(ctx),
		RelatedResourceType: body.RelatedResourceType,
		RelatedResourceID:   body.RelatedResourceID,
	}
	balance, err := adjust(s.Ledger, userID, body.Amount, note)
	if err != nil {
		return errorResponse(ctx, log, err)
	}

	return model.Success(ctx, TokenBalanceResponse{UserID: userID, Balance: balance}, http.StatusOK)
}

// AddTokens credits tokens to a user.
//
// swagger:route POST /v1/users/{user_id}/tokens/credits tokens addTokens
//
// # Add Tokens
//
// Credits tokens to a user's balance and records the change in the ledger.
//
// responses:
//
//	200: tokenBalanceResponse
//	400: badRequestResponse
//	500: internalServerErrorResponse
func (s Server) AddTokens(ctx echo.Context) error {
	log := log.WithFields(logrus.Fields{"context": "adding tokens"})
	context := ctx.Request().Context()

	return s.adjustTokens(ctx, log, func(l *ledger.Ledger, userID string, amount int64, note ledger.Note) (int64, error) {
		return l.AddTokens(context, userID, amount, note)
	})
}

// RemoveTokens debits tokens from a user.
//
// swagger:route POST /v1/users/{user_id}/tokens/debits tokens removeTokens
//
// # Remove Tokens
//
// Debits tokens from a user's balance. The balance may never become negative.
//
// responses:
//
//	200: tokenBalanceResponse
//	400: badRequestResponse
//	402: insufficientTokensResponse
//	500: internalServerErrorResponse
func (s Server) RemoveTokens(ctx echo.Context) error {
	log := log.WithFields(logrus.Fields{"context": "removing tokens"})
	context := ctx.Request().Context()

	return s.adjustTokens(ctx, log, func(l *ledger.Ledger, userID string, amount int64, note ledger.Note) (int64, error) {
		return l.RemoveTokens(context, userID, amount, note)
	})
}

// SetTokenBalance overwrites a user's token balance.
//
// swagger:route PUT /v1/users/{user_id}/tokens tokens setTokenBalance
//
// # Set a User's Token Balance
//
// Sets the balance to an absolute value. The difference is recorded in the ledger as an administrative adjustment.
//
// responses:
//
//	200: tokenBalanceResponse
//	400: badRequestResponse
//	500: internalServerErrorResponse
func (s Server) SetTokenBalance(ctx echo.Context) error {
	log := log.WithFields(logrus.Fields{"context": "setting token balance"})

	userID, err := extractUserID(ctx)
	if err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}

	var body httpmodel.TokenBalance
	if err = ctx.Bind(&body); err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}
	if err = body.Validate(); err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}

	log = log.WithFields(logrus.Fields{"user": userID, "balance": body.Balance})

	note := ledger.Note{Reason: body.Reason, PerformedBy: actor(ctx)}
	balance, err := s.Ledger.SetTokenBalance(ctx.Request().Context(), userID, body.Balance, note)
	if err != nil {
		return errorResponse(ctx, log, err)
	}

	return model.Success(ctx, TokenBalanceResponse{UserID: userID, Balance: balance}, http.StatusOK)
}

// GetTokenTransactions lists the ledger entries for a user.
//
// swagger:route GET /v1/users/{user_id}/transactions tokens getTokenTransactions
//
// # List Token Transactions
//
// Lists every ledger entry recorded for the user, oldest first.
//
// responses:
//
//	200: transactionListing
//	400: badRequestResponse
//	500: internalServerErrorResponse
func (s Server) GetTokenTransactions(ctx echo.Context) error {
	log := log.WithFields(logrus.Fields{"context": "listing token transactions"})

	userID, err := extractUserID(ctx)
	if err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}

	log = log.WithFields(logrus.Fields{"user": userID})

	txns, err := s.Ledger.Transactions(ctx.Request().Context(), userID)
	if err != nil {
		return errorResponse(ctx, log, err)
	}

	return model.Success(ctx, txns, http.StatusOK)
}

// ChangePlan switches a user to a different plan.
//
// swagger:route PUT /v1/users/{user_id}/plan plans changePlan
//
// # Change a User's Plan
//
// Replaces the user's ceilings with those of the plan and charges the plan's token cost. Usage is never changed, so a
// downgrade can leave the user in overage.
//
// responses:
//
//	200: quotaResponse
//	400: badRequestResponse
//	402: insufficientTokensResponse
//	500: internalServerErrorResponse
func (s Server) ChangePlan(ctx echo.Context) error {
	log := log.WithFields(logrus.Fields{"context": "changing plan"})

	userID, err := extractUserID(ctx)
	if err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}

	var body httpmodel.PlanChange
	if err = ctx.Bind(&body); err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}
	if err = body.Validate(); err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}

	log = log.WithFields(logrus.Fields{"user": userID, "plan": body.PlanID})

	note := ledger.Note{Reason: body.Reason, PerformedBy: actor(ctx)}
	quota, err := s.Ledger.ChangePlan(ctx.Request().Context(), userID, body.PlanID, note)
	if err != nil {
		return errorResponse(ctx, log, err)
	}

	log.Info("changed plan")

	return model.Success(ctx, quota, http.StatusOK)
}
