// Package api Compute QMS
//
// Documentation of the Compute QMS API
//
//	Schemes: http
//	BasePath: /
//	Version: V1
//
//	Consumes:
//	- application/json
//
//	Produces:
//	- application/json
//
// swagger:meta
package swagger

import (
	"github.com/cyverse/compute-qms/internal/admission"
	"github.com/cyverse/compute-qms/internal/contracts"
	"github.com/cyverse/compute-qms/internal/controllers"
	"github.com/cyverse/compute-qms/internal/httpmodel"
	"github.com/cyverse/compute-qms/internal/model"
	"github.com/cyverse/compute-qms/internal/ownership"
	"github.com/cyverse/compute-qms/internal/qmserrors"
	"github.com/cyverse/compute-qms/internal/reconcile"
)

// Note: the comments in this package don't conform to the convention of including the name of the entity that the
// comment describes. The reason for this is because the comments appear as-is in the API documentation. Confusing
// documentation is produced when the structure names appear in the API documentation.

// Error
//
// Having the same object definition for multiple HTTP response status codes seems to confuse ReDoc, so we're using
// aliases as a workaround.
//
// swagger:response errorResponse
type ErrorResponse struct {

	// in: body
	Body struct {

		// A brief description of the error
		Error string `json:"error"`

		// The status of the request
		Status string `json:"status"`
	}
}

// Bad Request
//
// swagger:response badRequestResponse
type BadRequestResponse struct {
	ErrorResponse
}

// Not Found
//
// swagger:response notFoundResponse
type NotFoundResponse struct {
	ErrorResponse
}

// Forbidden
//
// swagger:response forbiddenResponse
type ForbiddenResponse struct {
	ErrorResponse
}

// Conflict
//
// swagger:response conflictResponse
type ConflictResponse struct {
	ErrorResponse
}

// Bad Gateway
//
// swagger:response badGatewayResponse
type BadGatewayResponse struct {
	ErrorResponse
}

// Internal Server Error
//
// swagger:response internalServerErrorResponse
type InternalServerErrorResponse struct {
	ErrorResponse
}

// Quota Exceeded
//
// swagger:response quotaExceededResponse
type QuotaExceededResponse struct {

	// in: body
	Body struct {

		// A brief description of the error
		Error string `json:"error"`

		// The status of the request
		Status string `json:"status"`

		// The dimension that would have been exceeded, along with the user's usage and ceilings
		Details qmserrors.QuotaExceededError `json:"details"`
	}
}

// Insufficient Tokens
//
// swagger:response insufficientTokensResponse
type InsufficientTokensResponse struct {

	// in: body
	Body struct {

		// A brief description of the error
		Error string `json:"error"`

		// The status of the request
		Status string `json:"status"`

		// The required and available token amounts
		Details qmserrors.InsufficientTokensError `json:"details"`
	}
}

// Documentation for the successful response body wrapper. The `Error` field could be included here as well, but it's
// being omitted for now simply because it produces less confusing documentation when the erorr and success response
// bodies are treated separately.
//
// swagger:model
type ResponseBodyWrapper struct {

	// The status of the request
	Status string `json:"status"`
}

// Service Information
//
// swagger:response rootResponse
type RootResponseWrapper struct {

	// in:body
	Body struct {
		ResponseBodyWrapper

		// The service information
		Result model.RootResponse `json:"result"`
	}
}

// Service API Version Information
//
// swagger:response apiVersionResponse
type APIVersionResponseWrapper struct {

	// in:body
	Body struct {
		ResponseBodyWrapper

		// The API version information
		Result model.APIVersionResponse `json:"result"`
	}
}

// General Success Message
//
// swagger:response successMessageResponse
type SuccessMessageResponseWrapper struct {

	// in:body
	Body struct {
		ResponseBodyWrapper

		// The success message.
		Result struct {
			Message string `json:"message"`
		} `json:"result"`
	}
}

// Plans

// Plan Listing
//
// swagger:response plansResponse
type PlansResponseWrapper struct {

	// in: body
	Body struct {
		ResponseBodyWrapper

		// The list of plans
		Result []model.Plan `json:"result"`
	}
}

// Plan ID
//
// swagger:parameters getPlanByID
type PlanIDParameter struct {

	// The plan identifier
	//
	// in:path
	// required:true
	PlanID string `json:"plan_id"`
}

// Plan Information
//
// swagger:response planResponse
type PlanResponseWrapper struct {

	// in: body
	Body struct {
		ResponseBodyWrapper

		// The plan information
		Result model.Plan `json:"result"`
	}
}

// Quotas

// User ID
//
// swagger:parameters getUserQuota setUserQuota deleteUserQuota setUserSuspended getUserOverages getTokenBalance
// swagger:parameters getTokenTransactions checkContainerQuota
type UserIDParameter struct {

	// The user identifier
	//
	// in: path
	// required: true
	UserID string `json:"user_id"`
}

// Quota listing parameters.
//
// swagger:parameters listQuotas
type ListQuotasParameters struct {

	// The starting offset for the listing
	//
	// in: query
	Offset int32 `json:"offset"`

	// The maximum number of quota records to include in the listing
	//
	// in: query
	Limit int32 `json:"limit"`

	// The sort field to use for the listing
	//
	// enum: username,user_id,current_plan,token_balance,created_at
	// in: query
	SortField string `json:"sort-field"`

	// The sort direction to use for the listing
	//
	// enum: asc,desc
	// in: query
	SortDir string `json:"sort-dir"`

	// The username substring to search for in the listing
	//
	// in: query
	Search string `json:"search"`
}

// Quota Listing
//
// swagger:response quotaListing
type QuotaListingWrapper struct {

	// in: body
	Body struct {
		ResponseBodyWrapper

		// The quota listing
		Result controllers.QuotaListing `json:"result"`
	}
}

// Quota Details
//
// swagger:response quotaResponse
type QuotaResponseWrapper struct {

	// in: body
	Body struct {
		ResponseBodyWrapper

		// The quota record
		Result model.UserQuota `json:"result"`
	}
}

// Parameters for the endpoint used to look up a quota record by username.
//
// swagger:parameters getUserQuotaByUsername
type GetUserQuotaByUsernameParameters struct {

	// The username
	//
	// in: path
	// required: true
	Username string `json:"username"`
}

// Parameters for the endpoint used to set a user's quota.
//
// swagger:parameters setUserQuota
type SetUserQuotaParameters struct {

	// The quota settings
	//
	// in: body
	Body httpmodel.QuotaSettings
}

// Parameters for the endpoint used to suspend or reinstate a user.
//
// swagger:parameters setUserSuspended
type SetUserSuspendedParameters struct {

	// The suspension flag
	//
	// in: body
	Body httpmodel.Suspension
}

// Overage Listing
//
// swagger:response overageListing
type OverageListingWrapper struct {

	// in: body
	Body struct {
		ResponseBodyWrapper

		// The dimensions in overage
		Result []model.Overage `json:"result"`
	}
}

// Admission

// Parameters for the endpoint used to check VM admission.
//
// swagger:parameters checkVMQuota
type CheckVMQuotaParameters struct {

	// The user identifier
	//
	// in: path
	// required: true
	UserID string `json:"user_id"`

	// Set to `admin` if the request was made by an administrator
	//
	// enum: user,admin
	// in: query
	Role string `json:"role"`

	// The requested VM size
	//
	// in: body
	Body httpmodel.VMAdmission
}

// Admission Decision
//
// swagger:response decisionResponse
type DecisionResponseWrapper struct {

	// in: body
	Body struct {
		ResponseBodyWrapper

		// The admission decision
		Result admission.Decision `json:"result"`
	}
}

// Tokens

// Token Balance
//
// swagger:response tokenBalanceResponse
type TokenBalanceResponseWrapper struct {

	// in: body
	Body struct {
		ResponseBodyWrapper

		// The token balance
		Result controllers.TokenBalanceResponse `json:"result"`
	}
}

// Parameters for the endpoints used to add or remove tokens.
//
// swagger:parameters addTokens removeTokens
type TokenAdjustmentParameters struct {

	// The user identifier
	//
	// in: path
	// required: true
	UserID string `json:"user_id"`

	// The administrator performing the change
	//
	// in: query
	Caller string `json:"caller"`

	// The adjustment
	//
	// in: body
	Body httpmodel.TokenAdjustment
}

// Parameters for the endpoint used to set a token balance.
//
// swagger:parameters setTokenBalance
type SetTokenBalanceParameters struct {

	// The administrator performing the change
	//
	// in: query
	Caller string `json:"caller"`

	// The new balance
	//
	// in: body
	Body httpmodel.TokenBalance
}

// Transaction Listing
//
// swagger:response transactionListing
type TransactionListingWrapper struct {

	// in: body
	Body struct {
		ResponseBodyWrapper

		// The ledger entries
		Result []model.TokenTransaction `json:"result"`
	}
}

// Parameters for the endpoint used to change a user's plan.
//
// swagger:parameters changePlan
type ChangePlanParameters struct {

	// The user identifier
	//
	// in: path
	// required: true
	UserID string `json:"user_id"`

	// The plan change
	//
	// in: body
	Body httpmodel.PlanChange
}

// Contracts

// Contract ID
//
// swagger:parameters getContract updateContractStatus recordRefill
type ContractIDParameter struct {

	// The contract identifier
	//
	// in: path
	// required: true
	ContractID string `json:"contract_id"`
}

// Parameters for the endpoint used to create a contract.
//
// swagger:parameters createContract
type CreateContractParameters struct {

	// The administrator creating the contract
	//
	// in: query
	Caller string `json:"caller"`

	// The contract terms
	//
	// in: body
	Body httpmodel.NewContract
}

// Contract listing parameters.
//
// swagger:parameters listContracts
type ListContractsParameters struct {

	// Only list contracts for this user
	//
	// in: query
	User string `json:"user"`

	// Only list contracts with this status
	//
	// enum: active,paused,cancelled,expired
	// in: query
	Status string `json:"status"`
}

// Parameters for the endpoint used to change a contract's status.
//
// swagger:parameters updateContractStatus
type UpdateContractStatusParameters struct {

	// The new status
	//
	// in: body
	Body httpmodel.ContractStatusUpdate
}

// Contract Details
//
// swagger:response contractResponse
type ContractResponseWrapper struct {

	// in: body
	Body struct {
		ResponseBodyWrapper

		// The contract
		Result model.UserContract `json:"result"`
	}
}

// Contract Listing
//
// swagger:response contractListing
type ContractListingWrapper struct {

	// in: body
	Body struct {
		ResponseBodyWrapper

		// The contracts
		Result []model.UserContract `json:"result"`
	}
}

// Token Requests

// Parameters for the endpoint used to request tokens.
//
// swagger:parameters createTokenRequest
type CreateTokenRequestParameters struct {

	// The user identifier
	//
	// in: path
	// required: true
	UserID string `json:"user_id"`

	// The request
	//
	// in: body
	Body httpmodel.NewTokenRequest
}

// Request ID
//
// swagger:parameters getTokenRequest
type RequestIDParameter struct {

	// The request identifier
	//
	// in: path
	// required: true
	RequestID string `json:"request_id"`
}

// Parameters for the endpoints used to review token requests.
//
// swagger:parameters approveRequest denyRequest
type ReviewRequestParameters struct {

	// The request identifier
	//
	// in: path
	// required: true
	RequestID string `json:"request_id"`

	// The reviewing administrator
	//
	// in: query
	// required: true
	Caller string `json:"caller"`

	// The review notes
	//
	// in: body
	Body httpmodel.RequestReview
}

// Token Request Details
//
// swagger:response tokenRequestResponse
type TokenRequestResponseWrapper struct {

	// in: body
	Body struct {
		ResponseBodyWrapper

		// The token request
		Result model.TokenRequest `json:"result"`
	}
}

// Token Request Listing
//
// swagger:response tokenRequestListing
type TokenRequestListingWrapper struct {

	// in: body
	Body struct {
		ResponseBodyWrapper

		// The token requests
		Result []model.TokenRequest `json:"result"`
	}
}

// Resources

// Caller identity, as supplied by the authenticating proxy.
//
// swagger:parameters listResources createResource deleteResource
type CallerParameters struct {

	// The resource type
	//
	// enum: vm,container
	// in: path
	// required: true
	ResourceType string `json:"resource_type"`

	// The identifier of the calling user
	//
	// in: query
	// required: true
	Caller string `json:"caller"`

	// The username of the calling user
	//
	// in: query
	CallerUsername string `json:"caller-username"`

	// The role of the calling user
	//
	// enum: user,admin
	// in: query
	Role string `json:"role"`
}

// Parameters for the endpoint used to list resources.
//
// swagger:parameters listResources
type ListResourcesParameters struct {

	// If true, only resources with no recorded owner are listed
	//
	// in: query
	// default: false
	Unowned bool `json:"unowned"`
}

// Parameters for the endpoint used to create a resource.
//
// swagger:parameters createResource
type CreateResourceParameters struct {

	// The resource to create
	//
	// in: body
	Body httpmodel.NewResource
}

// Resource ID
//
// swagger:parameters deleteResource getOwnershipRecord addOwnershipRecord removeOwnershipRecord
type ResourceIDParameter struct {

	// The resource identifier assigned by the infrastructure
	//
	// in: path
	// required: true
	ResourceID string `json:"resource_id"`
}

// Resource Details
//
// swagger:response resourceResponse
type ResourceResponseWrapper struct {

	// in: body
	Body struct {
		ResponseBodyWrapper

		// The resource and its owner
		Result ownership.OwnedResource `json:"result"`
	}
}

// Resource Listing
//
// swagger:response resourceListing
type ResourceListingWrapper struct {

	// in: body
	Body struct {
		ResponseBodyWrapper

		// The resources visible to the caller
		Result []ownership.OwnedResource `json:"result"`
	}
}

// Parameters for the endpoint used to record the owner of a resource.
//
// swagger:parameters addOwnershipRecord
type AddOwnershipRecordParameters struct {

	// The owner and declared size
	//
	// in: body
	Body httpmodel.Ownership
}

// Ownership Record
//
// swagger:response ownershipResponse
type OwnershipResponseWrapper struct {

	// in: body
	Body struct {
		ResponseBodyWrapper

		// The ownership record
		Result model.OwnershipRecord `json:"result"`
	}
}

// Ownership Record Listing
//
// swagger:response ownershipListing
type OwnershipListingWrapper struct {

	// in: body
	Body struct {
		ResponseBodyWrapper

		// The ownership records
		Result []model.OwnershipRecord `json:"result"`
	}
}

// Maintenance

// Reconciliation Report
//
// swagger:response reconcileReportResponse
type ReconcileReportResponseWrapper struct {

	// in: body
	Body struct {
		ResponseBodyWrapper

		// The reconciliation report
		Result reconcile.Report `json:"result"`
	}
}

// Contract Sweep Result
//
// swagger:response sweepResultResponse
type SweepResultResponseWrapper struct {

	// in: body
	Body struct {
		ResponseBodyWrapper

		// The sweep summary
		Result contracts.SweepResult `json:"result"`
	}
}

// Plan Expiry Result
//
// swagger:response planExpiryResponse
type PlanExpiryResponseWrapper struct {

	// in: body
	Body struct {
		ResponseBodyWrapper

		// The number of plans that were reverted
		Result controllers.PlanExpiryResult `json:"result"`
	}
}
