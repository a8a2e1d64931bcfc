package controllers

import (
	"net/http"

	"github.com/cyverse/compute-qms/internal/httpmodel"
	"github.com/cyverse/compute-qms/internal/model"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// CheckVMQuota determines whether a user may create a VM of the requested size. Nothing is reserved.
//
// swagger:route POST /v1/users/{user_id}/admission/vm admission checkVMQuota
//
// # Check VM Admission
//
// Returns the admission decision for a VM of the requested size. A denial is reported in the response body rather
// than through the status code.
//
// responses:
//
//	200: decisionResponse
//	400: badRequestResponse
//	500: internalServerErrorResponse
func (s Server) CheckVMQuota(ctx echo.Context) error {
	log := log.WithFields(logrus.Fields{"context": "checking vm admission"})

	userID, err := extractUserID(ctx)
	if err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}
	isAdmin, err := isAdminCaller(ctx)
	if err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}

	var body httpmodel.VMAdmission
	if err = ctx.Bind(&body); err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}
	if err = body.Validate(); err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}

	log = log.WithFields(logrus.Fields{"user": userID})

	decision, err := s.Admission.CheckVMQuota(
		ctx.Request().Context(), userID, body.VCPUs, body.MemoryMB, body.DiskGB, isAdmin,
	)
	if err != nil {
		return errorResponse(ctx, log, err)
	}

	return model.Success(ctx, decision, http.StatusOK)
}

// CheckContainerQuota determines whether a user may create a container. Nothing is reserved.
//
// swagger:route POST /v1/users/{user_id}/admission/container admission checkContainerQuota
//
// # Check Container Admission
//
// Returns the admission decision for a new container.
//
// responses:
//
//	200: decisionResponse
//	400: badRequestResponse
//	500: internalServerErrorResponse
func (s Server) CheckContainerQuota(ctx echo.Context) error {
	log := log.WithFields(logrus.Fields{"context": "checking container admission"})

	userID, err := extractUserID(ctx)
	if err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}
	isAdmin, err := isAdminCaller(ctx)
	if err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}

	log = log.WithFields(logrus.Fields{"user": userID})

	decision, err := s.Admission.CheckContainerQuota(ctx.Request().Context(), userID, isAdmin)
	if err != nil {
		return errorResponse(ctx, log, err)
	}

	return model.Success(ctx, decision, http.StatusOK)
}
