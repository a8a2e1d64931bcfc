package controllers

import (
	"net/http"

	"github.com/cyverse/compute-qms/internal/httpmodel"
	"github.com/cyverse/compute-qms/internal/model"
	"github.com/cyverse/compute-qms/internal/query"
	"github.com/cyverse/compute-qms/internal/store"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// contractStatuses lists the values accepted by the status filter of the contract listing.
var contractStatuses = []string{
	string(model.ContractStatusActive),
	string(model.ContractStatusPaused),
	string(model.ContractStatusCancelled),
	string(model.ContractStatusExpired),
}

// extractContractID extracts and validates the contract ID path parameter.
func extractContractID(ctx echo.Context) (string, error) {
	return extractUUID(ctx, "contract_id", "contract ID")
}

// CreateContract creates a recurring token contract.
//
// swagger:route POST /v1/contracts contracts createContract
//
// # Create a Contract
//
// Creates a contract that credits a fixed number of tokens to a user once per month.
//
// responses:
//
//	201: contractResponse
//	400: badRequestResponse
//	500: internalServerErrorResponse
func (s Server) CreateContract(ctx echo.Context) error {
	log := log.WithFields(logrus.Fields{"context": "creating contract"})

	var body httpmodel.NewContract
	if err := ctx.Bind(&body); err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}
	if err := body.Validate(); err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}

	log = log.WithFields(logrus.Fields{"user": body.UserID})

	contract, err := s.Contracts.CreateContract(ctx.Request().Context(), body.ToContract(actor(ctx)))
	if err != nil {
		return errorResponse(ctx, log, err)
	}

	return model.Success(ctx, contract, http.StatusCreated)
}

// ListContracts lists contracts, optionally filtered by user and status.
//
// swagger:route GET /v1/contracts contracts listContracts
//
// # List Contracts
//
// Lists contracts in order of their next refill date.
//
// responses:
//
//	200: contractListing
//	400: badRequestResponse
//	500: internalServerErrorResponse
func (s Server) ListContracts(ctx echo.Context) error {
	log := log.WithFields(logrus.Fields{"context": "listing contracts"})

	userID, err := query.ValidatedQueryParam(ctx, "user", "omitempty,max=255")
	if err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}
	noStatus := ""
	status, err := query.ValidateEnumQueryParam(ctx, "status", contractStatuses, &noStatus)
	if err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}

	filter := store.ContractFilter{UserID: userID, Status: model.ContractStatus(status)}
	contracts, err := s.Contracts.List(ctx.Request().Context(), filter)
	if err != nil {
		return errorResponse(ctx, log, err)
	}

	return model.Success(ctx, contracts, http.StatusOK)
}

// GetContract returns a single contract.
//
// swagger:route GET /v1/contracts/{contract_id} contracts getContract
//
// # Get a Contract
//
// Returns the contract with the given identifier.
//
// responses:
//
//	200: contractResponse
//	400: badRequestResponse
//	404: notFoundResponse
//	500: internalServerErrorResponse
func (s Server) GetContract(ctx echo.Context) error {
	log := log.WithFields(logrus.Fields{"context": "getting contract"})

	contractID, err := extractContractID(ctx)
	if err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}

	log = log.WithFields(logrus.Fields{"contract": contractID})

	contract, err := s.Contracts.Get(ctx.Request().Context(), contractID)
	if err != nil {
		return errorResponse(ctx, log, err)
	}

	return model.Success(ctx, contract, http.StatusOK)
}

// UpdateContractStatus pauses, resumes or cancels a contract.
//
// swagger:route PUT /v1/contracts/{contract_id}/status contracts updateContractStatus
//
// # Update a Contract's Status
//
// Active contracts may be paused or cancelled, and paused contracts may be resumed or cancelled. Cancelled and
// expired contracts can't be changed.
//
// responses:
//
//	200: contractResponse
//	400: badRequestResponse
//	404: notFoundResponse
//	409: conflictResponse
//	500: internalServerErrorResponse
func (s Server) UpdateContractStatus(ctx echo.Context) error {
	log := log.WithFields(logrus.Fields{"context": "updating contract status"})

	contractID, err := extractContractID(ctx)
	if err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}

	var body httpmodel.ContractStatusUpdate
	if err = ctx.Bind(&body); err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}
	if err = body.Validate(); err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}

	log = log.WithFields(logrus.Fields{"contract": contractID, "status": body.Status})

	contract, err := s.Contracts.UpdateContractStatus(ctx.Request().Context(), contractID, body.Status, actor(ctx))
	if err != nil {
		return errorResponse(ctx, log, err)
	}

	return model.Success(ctx, contract, http.StatusOK)
}

// RecordRefill credits a single refill for a contract that is due.
//
// swagger:route POST /v1/contracts/{contract_id}/refills contracts recordRefill
//
// # Record a Refill
//
// Credits one month of tokens and advances the contract's next refill date.
//
// responses:
//
//	200: contractResponse
//	400: badRequestResponse
//	404: notFoundResponse
//	409: conflictResponse
//	500: internalServerErrorResponse
func (s Server) RecordRefill(ctx echo.Context) error {
	log := log.WithFields(logrus.Fields{"context": "recording refill"})

	contractID, err := extractContractID(ctx)
	if err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}

	log = log.WithFields(logrus.Fields{"contract": contractID})

	contract, err := s.Contracts.RecordRefill(ctx.Request().Context(), contractID)
	if err != nil {
		return errorResponse(ctx, log, err)
	}

	return model.Success(ctx, contract, http.StatusOK)
}

// GetContractsDueForRefill lists the active contracts whose next refill is due.
//
// swagger:route GET /v1/contracts/due contracts getContractsDueForRefill
//
// # List Contracts Due for Refill
//
// responses:
//
//	200: contractListing
//	500: internalServerErrorResponse
func (s Server) GetContractsDueForRefill(ctx echo.Context) error {
	log := log.WithFields(logrus.Fields{"context": "listing contracts due for refill"})

	contracts, err := s.Contracts.GetContractsDueForRefill(ctx.Request().Context())
	if err != nil {
		return errorResponse(ctx, log, err)
	}

	return model.Success(ctx, contracts, http.StatusOK)
}

// GetExpiredContracts lists the active contracts whose end date has passed.
//
// swagger:route GET /v1/contracts/expired contracts getExpiredContracts
//
// # List Expired Contracts
//
// responses:
//
//	200: contractListing
//	500: internalServerErrorResponse
func (s Server) GetExpiredContracts(ctx echo.Context) error {
	log := log.WithFields(logrus.Fields{"context": "listing expired contracts"})

	contracts, err := s.Contracts.GetExpiredContracts(ctx.Request().Context())
	if err != nil {
		return errorResponse(ctx, log, err)
	}

	return model.Success(ctx, contracts, http.StatusOK)
}
