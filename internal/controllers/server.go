// Package controllers contains the HTTP and NATS handlers for the compute QMS service.
package controllers

import (
	"net/http"

	"github.com/cyverse/compute-qms/internal/admission"
	"github.com/cyverse/compute-qms/internal/contracts"
	"github.com/cyverse/compute-qms/internal/entitlements"
	"github.com/cyverse/compute-qms/internal/ledger"
	"github.com/cyverse/compute-qms/internal/metrics"
	"github.com/cyverse/compute-qms/internal/model"
	"github.com/cyverse/compute-qms/internal/ownership"
	"github.com/cyverse/compute-qms/internal/plans"
	"github.com/cyverse/compute-qms/internal/provision"
	"github.com/cyverse/compute-qms/internal/qmserrors"
	"github.com/cyverse/compute-qms/internal/reconcile"
	"github.com/cyverse/compute-qms/internal/requests"
	"github.com/cyverse/compute-qms/internal/store"
	"github.com/cyverse/compute-qms/logging"
	"github.com/labstack/echo/v4"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logging.GetLogger().WithFields(logrus.Fields{"package": "controllers"})

// Server holds everything the handlers need. Each component is built once at startup.
type Server struct {
	Router         *echo.Echo
	Service        string
	Title          string
	Version        string
	NATSConn       *nats.EncodedConn
	UsernameSuffix string

	Catalog      *plans.Catalog
	Entitlements *entitlements.Store
	Admission    *admission.Controller
	Ownership    *ownership.Index
	Ledger       *ledger.Ledger
	Contracts    *contracts.Manager
	Requests     *requests.Manager
	Reconciler   *reconcile.Reconciler
	Provisioner  *provision.Provisioner
	Metrics      *metrics.Metrics
}

// RootHandler handles GET requests to the / endpoint.
//
// swagger:route GET / misc getRoot
//
// # General API Information
//
// Lists general information about the service API itself.
//
// responses:
//
//	200: rootResponse
func (s Server) RootHandler(ctx echo.Context) error {
	resp := model.RootResponse{
		Service: s.Service,
		Title:   s.Title,
		Version: s.Version,
	}
	return model.Success(ctx, resp, http.StatusOK)
}

// V1RootHandler handles GET requests to the /v1 endpoint.
//
// swagger:route GET /v1 misc getV1Root
//
// # API Version Information
//
// Lists information related to version 1 of the API.
//
// responses:
//
//	200: apiVersionResponse
func (s Server) V1RootHandler(ctx echo.Context) error {
	return model.Success(ctx, model.APIVersionResponse{Version: "1"}, http.StatusOK)
}

// httpStatusCode maps an error returned by one of the components to an HTTP status code.
func httpStatusCode(err error) int {
	var (
		validation   *qmserrors.ValidationError
		notFound     *qmserrors.NotFoundError
		exceeded     *qmserrors.QuotaExceededError
		suspended    *qmserrors.SuspendedError
		forbidden    *qmserrors.ForbiddenError
		insufficient *qmserrors.InsufficientTokensError
		conflict     *qmserrors.ConflictError
		infraErr     *qmserrors.InfrastructureError
	)

	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &notFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &exceeded), errors.As(err, &suspended), errors.As(err, &forbidden):
		return http.StatusForbidden
	case errors.As(err, &insufficient):
		return http.StatusPaymentRequired
	case errors.As(err, &conflict), errors.Is(err, store.ErrOwnershipConflict):
		return http.StatusConflict
	case errors.As(err, &infraErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorDetails returns the structured details that accompany an error response, if any.
func errorDetails(err error) any {
	var (
		exceeded     *qmserrors.QuotaExceededError
		insufficient *qmserrors.InsufficientTokensError
	)

	switch {
	case errors.As(err, &exceeded):
		return exceeded
	case errors.As(err, &insufficient):
		return insufficient
	default:
		return nil
	}
}

// errorResponse sends the response for an error returned by one of the components.
func errorResponse(ctx echo.Context, log *logrus.Entry, err error) error {
	status := httpStatusCode(err)
	if status >= http.StatusInternalServerError {
		log.Error(err)
	} else {
		log.Debug(err)
	}

	if details := errorDetails(err); details != nil {
		return model.ErrorWithDetails(ctx, err.Error(), details, status)
	}
	return model.Error(ctx, err.Error(), status)
}
