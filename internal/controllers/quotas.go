package controllers

import (
	"net/http"

	"github.com/cyverse/compute-qms/internal/httpmodel"
	"github.com/cyverse/compute-qms/internal/model"
	"github.com/cyverse/compute-qms/internal/query"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// quotaSortFields lists the sort fields accepted by the quota listing endpoint. The first one is the default.
var quotaSortFields = []string{"username", "user_id", "current_plan", "token_balance", "created_at"}

// QuotaListing is the response body for the quota listing endpoint.
type QuotaListing struct {
	Quotas []*model.UserQuota `json:"quotas"`
	Total  int64              `json:"total"`
}

// ListQuotas lists the quota records of all users.
//
// swagger:route GET /v1/users quotas listQuotas
//
// # List Quotas
//
// Lists the quota records of every user known to the service.
//
// responses:
//
//	200: quotaListing
//	400: badRequestResponse
//	500: internalServerErrorResponse
func (s Server) ListQuotas(ctx echo.Context) error {
	log := log.WithFields(logrus.Fields{"context": "listing quotas"})

	params, err := query.ListingParams(ctx, quotaSortFields)
	if err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}

	quotas, total, err := s.Entitlements.List(ctx.Request().Context(), params)
	if err != nil {
		return errorResponse(ctx, log, err)
	}

	return model.Success(ctx, QuotaListing{Quotas: quotas, Total: total}, http.StatusOK)
}

// GetUserQuota returns the quota record for a user, provisioning one from the default plan if necessary.
//
// swagger:route GET /v1/users/{user_id}/quota quotas getUserQuota
//
// # Get a User's Quota
//
// Returns the ceilings and current usage of a user. Users who have never been seen before are provisioned with the
// default plan.
//
// responses:
//
//	200: quotaResponse
//	400: badRequestResponse
//	500: internalServerErrorResponse
func (s Server) GetUserQuota(ctx echo.Context) error {
	log := log.WithFields(logrus.Fields{"context": "getting user quota"})

	userID, err := extractUserID(ctx)
	if err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}
	username := s.normalizeUsername(ctx.QueryParam("username"))

	log = log.WithFields(logrus.Fields{"user": userID})

	quota, err := s.Entitlements.GetOrCreate(ctx.Request().Context(), userID, username)
	if err != nil {
		return errorResponse(ctx, log, err)
	}

	return model.Success(ctx, quota, http.StatusOK)
}

// GetUserQuotaByUsername returns the quota record for a username. Records are never provisioned by this endpoint.
//
// swagger:route GET /v1/usernames/{username}/quota quotas getUserQuotaByUsername
//
// # Get a User's Quota by Username
//
// Returns the quota record associated with a username.
//
// responses:
//
//	200: quotaResponse
//	404: notFoundResponse
//	500: internalServerErrorResponse
func (s Server) GetUserQuotaByUsername(ctx echo.Context) error {
	log := log.WithFields(logrus.Fields{"context": "getting user quota by username"})

	username := s.normalizeUsername(ctx.Param("username"))
	if username == "" {
		return model.Error(ctx, "invalid username", http.StatusBadRequest)
	}

	log = log.WithFields(logrus.Fields{"username": username})

	quota, err := s.Entitlements.GetByUsername(ctx.Request().Context(), username)
	if err != nil {
		return errorResponse(ctx, log, err)
	}

	return model.Success(ctx, quota, http.StatusOK)
}

// SetUserQuota creates or updates the quota record for a user.
//
// swagger:route PUT /v1/users/{user_id}/quota quotas setUserQuota
//
// # Set a User's Quota
//
// Creates the quota record for a user if necessary and merges the given ceilings into it. Usage is never changed.
//
// responses:
//
//	200: quotaResponse
//	400: badRequestResponse
//	500: internalServerErrorResponse
func (s Server) SetUserQuota(ctx echo.Context) error {
	log := log.WithFields(logrus.Fields{"context": "setting user quota"})

	userID, err := extractUserID(ctx)
	if err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}

	var body httpmodel.QuotaSettings
	if err = ctx.Bind(&body); err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}
	if err = body.Validate(); err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}

	log = log.WithFields(logrus.Fields{"user": userID})
	log.Debugf("updating quota: %+v", body)

	quota, err := s.Entitlements.Upsert(
		ctx.Request().Context(), userID, s.normalizeUsername(body.Username), body.Quotas, body.IsAdmin,
	)
	if err != nil {
		return errorResponse(ctx, log, err)
	}

	return model.Success(ctx, quota, http.StatusOK)
}

// SetUserSuspended suspends or reinstates a user.
//
// swagger:route PUT /v1/users/{user_id}/suspended quotas setUserSuspended
//
// # Suspend or Reinstate a User
//
// Suspended users are denied all new resources. Existing resources are left alone.
//
// responses:
//
//	200: quotaResponse
//	400: badRequestResponse
//	500: internalServerErrorResponse
func (s Server) SetUserSuspended(ctx echo.Context) error {
	log := log.WithFields(logrus.Fields{"context": "setting suspension"})

	userID, err := extractUserID(ctx)
	if err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}

	var body httpmodel.Suspension
	if err = ctx.Bind(&body); err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}
	if err = body.Validate(); err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}

	log = log.WithFields(logrus.Fields{"user": userID, "suspended": *body.Suspended})

	quota, err := s.Entitlements.SetSuspended(ctx.Request().Context(), userID, *body.Suspended)
	if err != nil {
		return errorResponse(ctx, log, err)
	}

	log.Info("updated the suspension flag")

	return model.Success(ctx, quota, http.StatusOK)
}

// DeleteUserQuota removes the quota record for a user.
//
// swagger:route DELETE /v1/users/{user_id}/quota quotas deleteUserQuota
//
// # Delete a User's Quota
//
// Removes the quota record for a user. A new record is provisioned from the default plan the next time the user is
// seen.
//
// responses:
//
//	200: successMessageResponse
//	404: notFoundResponse
//	500: internalServerErrorResponse
func (s Server) DeleteUserQuota(ctx echo.Context) error {
	log := log.WithFields(logrus.Fields{"context": "deleting user quota"})

	userID, err := extractUserID(ctx)
	if err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}

	log = log.WithFields(logrus.Fields{"user": userID})

	if err = s.Entitlements.Delete(ctx.Request().Context(), userID); err != nil {
		return errorResponse(ctx, log, err)
	}

	return model.SuccessMessage(ctx, "quota deleted", http.StatusOK)
}

// GetUserOverages lists the quota dimensions in which the user's usage is at or above the ceiling.
//
// swagger:route GET /v1/users/{user_id}/overages quotas getUserOverages
//
// # List a User's Overages
//
// Lists the dimensions in which usage has reached the ceiling, usually after a plan downgrade.
//
// responses:
//
//	200: overageListing
//	500: internalServerErrorResponse
func (s Server) GetUserOverages(ctx echo.Context) error {
	log := log.WithFields(logrus.Fields{"context": "getting overages"})

	userID, err := extractUserID(ctx)
	if err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}

	log = log.WithFields(logrus.Fields{"user": userID})

	overages, err := s.Entitlements.Overages(ctx.Request().Context(), userID)
	if err != nil {
		return errorResponse(ctx, log, err)
	}

	return model.Success(ctx, overages, http.StatusOK)
}
