package controllers

import (
	"net/http"

	"github.com/cyverse/compute-qms/internal/model"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// PlanExpiryResult is the response body for the plan expiry endpoint.
type PlanExpiryResult struct {
	Expired int `json:"expired"`
}

// Reconcile recomputes every user's usage counters from the live infrastructure.
//
// swagger:route POST /v1/admin/reconciliation admin reconcile
//
// # Reconcile Usage
//
// Recomputes usage counters from the live infrastructure listing and the ownership index. Counters are left alone if
// any listing fails.
//
// responses:
//
//	200: reconcileReportResponse
//	502: badGatewayResponse
//	500: internalServerErrorResponse
func (s Server) Reconcile(ctx echo.Context) error {
	log := log.WithFields(logrus.Fields{"context": "reconciling usage"})

	report, err := s.Reconciler.Reconcile(ctx.Request().Context())
	if err != nil {
		return errorResponse(ctx, log, err)
	}

	log.Infof("reconciliation corrected %d counters", len(report.Corrections))

	return model.Success(ctx, report, http.StatusOK)
}

// SweepContracts credits every refill that is due and expires finished contracts.
//
// swagger:route POST /v1/admin/contract-sweep admin sweepContracts
//
// # Sweep Contracts
//
// Credits one refill per missed period for every active contract that is due, then marks contracts past their end
// date as expired.
//
// responses:
//
//	200: sweepResultResponse
//	500: internalServerErrorResponse
func (s Server) SweepContracts(ctx echo.Context) error {
	log := log.WithFields(logrus.Fields{"context": "sweeping contracts"})

	result, err := s.Contracts.Sweep(ctx.Request().Context())
	if err != nil {
		return errorResponse(ctx, log, err)
	}

	return model.Success(ctx, result, http.StatusOK)
}

// ExpirePlans reverts users whose paid plan has lapsed to the default plan.
//
// swagger:route POST /v1/admin/plan-expiry admin expirePlans
//
// # Expire Plans
//
// responses:
//
//	200: planExpiryResponse
//	500: internalServerErrorResponse
func (s Server) ExpirePlans(ctx echo.Context) error {
	log := log.WithFields(logrus.Fields{"context": "expiring plans"})

	expired, err := s.Ledger.ExpirePlans(ctx.Request().Context())
	if err != nil {
		return errorResponse(ctx, log, err)
	}

	return model.Success(ctx, PlanExpiryResult{Expired: expired}, http.StatusOK)
}
