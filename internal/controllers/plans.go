package controllers

import (
	"fmt"
	"net/http"

	"github.com/cyverse-de/echo-middleware/v2/params"
	"github.com/cyverse/compute-qms/internal/model"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// extractPlanID extracts and validates the plan ID path parameter.
func extractPlanID(ctx echo.Context) (string, error) {
	planID, err := params.ValidatedPathParam(ctx, "plan_id", "required,max=64")
	if err != nil {
		return "", fmt.Errorf("a valid plan ID is required")
	}
	return planID, nil
}

// GetAllPlans is the handler for the GET /v1/plans endpoint.
//
// swagger:route GET /v1/plans plans listPlans
//
// # List Plans
//
// Lists all the plans that are currently available.
//
// responses:
//
//	200: plansResponse
func (s Server) GetAllPlans(ctx echo.Context) error {
	log.WithFields(logrus.Fields{"context": "getting all plans"}).Debug("listing the plan catalog")
	return model.Success(ctx, s.Catalog.List(), http.StatusOK)
}

// GetPlanByID returns the plan with the given identifier.
//
// swagger:route GET /v1/plans/{plan_id} plans getPlanByID
//
// # Get Plan Information
//
// Returns the plan with the given identifier.
//
// responses:
//
//	200: planResponse
//	400: badRequestResponse
//	404: notFoundResponse
func (s Server) GetPlanByID(ctx echo.Context) error {
	log := log.WithFields(logrus.Fields{"context": "getting plan by id"})

	planID, err := extractPlanID(ctx)
	if err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}

	log = log.WithFields(logrus.Fields{"planID": planID})

	plan, err := s.Catalog.Get(planID)
	if err != nil {
		return errorResponse(ctx, log, err)
	}

	return model.Success(ctx, plan, http.StatusOK)
}
