package httpmodel

import (
	"github.com/cyverse/compute-qms/internal/model"
)

// TokenAdjustment
//
// swagger:model
type TokenAdjustment struct {

	// The number of tokens to add or remove
	//
	// required: true
	Amount int64 `json:"amount" validate:"gt=0,lte=1000000000000"`

	// The reason for the adjustment
	//
	// required: true
	Reason string `json:"reason" validate:"required,max=1024"`

	// The type of resource the adjustment relates to, if any
	RelatedResourceType model.ResourceType `json:"related_resource_type" validate:"omitempty,oneof=vm container"`

	// The identifier of the resource the adjustment relates to, if any
	RelatedResourceID string `json:"related_resource_id" validate:"omitempty,max=255"`
}

// Validate verifies that the adjustment is positive and explained.
func (t TokenAdjustment) Validate() error {
	return validationError(v.Struct(t))
}

// TokenBalance
//
// swagger:model
type TokenBalance struct {

	// The new token balance
	//
	// required: true
	Balance int64 `json:"balance" validate:"gte=0,lte=1000000000000"`

	// The reason for the change
	Reason string `json:"reason" validate:"max=1024"`
}

// Validate verifies that the balance isn't negative.
func (t TokenBalance) Validate() error {
	return validationError(v.Struct(t))
}

// PlanChange
//
// swagger:model
type PlanChange struct {

	// The identifier of the plan to switch to
	//
	// required: true
	PlanID string `json:"plan_id" validate:"required"`

	// The reason for the change
	Reason string `json:"reason" validate:"max=1024"`
}

// Validate verifies that a plan was named.
func (p PlanChange) Validate() error {
	return validationError(v.Struct(p))
}

// NewTokenRequest
//
// swagger:model
type NewTokenRequest struct {

	// The number of tokens requested
	//
	// required: true
	Amount int64 `json:"amount" validate:"gt=0,lte=1000000000000"`

	// The reason for the request
	//
	// required: true
	Reason string `json:"reason" validate:"required,max=1024"`
}

// Validate verifies that the request is positive and explained.
func (r NewTokenRequest) Validate() error {
	return validationError(v.Struct(r))
}

// RequestReview
//
// swagger:model
type RequestReview struct {

	// Notes recorded with the review
	Notes string `json:"notes" validate:"max=1024"`
}

// Validate verifies the review notes.
func (r RequestReview) Validate() error {
	return validationError(v.Struct(r))
}
