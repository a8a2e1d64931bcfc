package controllers

import (
	"context"
	"net/http"

	"github.com/cyverse/compute-qms/internal/httpmodel"
	"github.com/cyverse/compute-qms/internal/model"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// CreateTokenRequest records a user's request for more tokens.
//
// swagger:route POST /v1/users/{user_id}/token-requests requests createTokenRequest
//
// # Request Tokens
//
// Records a pending request for tokens. Tokens are only credited after an administrator approves the request and
// adds them separately.
//
// responses:
//
//	201: tokenRequestResponse
//	400: badRequestResponse
//	500: internalServerErrorResponse
func (s Server) CreateTokenRequest(ctx echo.Context) error {
	log := log.WithFields(logrus.Fields{"context": "creating token request"})

	userID, err := extractUserID(ctx)
	if err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}

	var body httpmodel.NewTokenRequest
	if err = ctx.Bind(&body); err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}
	if err = body.Validate(); err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}

	log = log.WithFields(logrus.Fields{"user": userID})

	request, err := s.Requests.CreateRequest(ctx.Request().Context(), userID, body.Amount, body.Reason)
	if err != nil {
		return errorResponse(ctx, log, err)
	}

	return model.Success(ctx, request, http.StatusCreated)
}

// GetPendingRequests lists the token requests awaiting review.
//
// swagger:route GET /v1/token-requests requests getPendingRequests
//
// # List Pending Token Requests
//
// responses:
//
//	200: tokenRequestListing
//	500: internalServerErrorResponse
func (s Server) GetPendingRequests(ctx echo.Context) error {
	log := log.WithFields(logrus.Fields{"context": "listing pending token requests"})

	pending, err := s.Requests.GetPendingRequests(ctx.Request().Context())
	if err != nil {
		return errorResponse(ctx, log, err)
	}

	return model.Success(ctx, pending, http.StatusOK)
}

// GetTokenRequest returns a single token request.
//
// swagger:route GET /v1/token-requests/{request_id} requests getTokenRequest
//
// # Get a Token Request
//
// responses:
//
//	200: tokenRequestResponse
//	400: badRequestResponse
//	404: notFoundResponse
//	500: internalServerErrorResponse
func (s Server) GetTokenRequest(ctx echo.Context) error {
	log := log.WithFields(logrus.Fields{"context": "getting token request"})

	requestID, err := extractUUID(ctx, "request_id", "request ID")
	if err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}

	request, err := s.Requests.Get(ctx.Request().Context(), requestID)
	if err != nil {
		return errorResponse(ctx, log, err)
	}

	return model.Success(ctx, request, http.StatusOK)
}

// reviewRequest binds a review and applies it with the given operation.
func (s Server) reviewRequest(
	ctx echo.Context,
	log *logrus.Entry,
	review func(ctx context.Context, requestID, reviewedBy, notes string) (*model.TokenRequest, error),
) error {
	requestID, err := extractUUID(ctx, "request_id", "request ID")
	if err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}

	var body httpmodel.RequestReview
	if err = ctx.Bind(&body); err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}
	if err = body.Validate(); err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}

	reviewer := actor(ctx)
	if reviewer == "" {
		return model.Error(ctx, "missing required query parameter: caller", http.StatusBadRequest)
	}

	log = log.WithFields(logrus.Fields{"request": requestID, "reviewer": reviewer})

	request, err := review(ctx.Request().Context(), requestID, reviewer, body.Notes)
	if err != nil {
		return errorResponse(ctx, log, err)
	}

	return model.Success(ctx, request, http.StatusOK)
}

// ApproveRequest marks a pending token request as approved.
//
// swagger:route POST /v1/token-requests/{request_id}/approval requests approveRequest
//
// # Approve a Token Request
//
// Approval does not credit any tokens.
//
// responses:
//
//	200: tokenRequestResponse
//	400: badRequestResponse
//	404: notFoundResponse
//	409: conflictResponse
//	500: internalServerErrorResponse
func (s Server) ApproveRequest(ctx echo.Context) error {
	log := log.WithFields(logrus.Fields{"context": "approving token request"})
	return s.reviewRequest(ctx, log, s.Requests.ApproveRequest)
}

// DenyRequest marks a pending token request as denied.
//
// swagger:route POST /v1/token-requests/{request_id}/denial requests denyRequest
//
// # Deny a Token Request
//
// responses:
//
//	200: tokenRequestResponse
//	400: badRequestResponse
//	404: notFoundResponse
//	409: conflictResponse
//	500: internalServerErrorResponse
func (s Server) DenyRequest(ctx echo.Context) error {
	log := log.WithFields(logrus.Fields{"context": "denying token request"})
	return s.reviewRequest(ctx, log, s.Requests.DenyRequest)
}
