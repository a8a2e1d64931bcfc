package httpmodel

import (
	"time"

	"github.com/cyverse/compute-qms/internal/contracts"
	"github.com/cyverse/compute-qms/internal/model"
	"github.com/cyverse/compute-qms/internal/model/timestamp"
)

// NewContract
//
// swagger:model
type NewContract struct {

	// The identifier of the user who receives the refills
	//
	// required: true
	UserID string `json:"user_id" validate:"required,max=255"`

	// The number of tokens credited each month
	//
	// required: true
	TokensPerMonth int64 `json:"tokens_per_month" validate:"gt=0,lte=1000000000000"`

	// The number of months the contract runs for
	//
	// required: true
	DurationMonths int `json:"duration_months" validate:"gt=0,lte=120"`

	// The date the contract starts. The first refill is due one month later. Defaults to the current time.
	StartDate *timestamp.Timestamp `json:"start_date"`

	// Free-form notes
	Notes string `json:"notes" validate:"max=4096"`
}

// Validate verifies the contract terms.
func (c NewContract) Validate() error {
	return validationError(v.Struct(c))
}

// ToContract converts the request body to the form accepted by the contract manager.
func (c NewContract) ToContract(createdBy string) contracts.NewContract {
	var start *time.Time
	if c.StartDate != nil {
		t := c.StartDate.Time()
		start = &t
	}
	return contracts.NewContract{
		UserID:         c.UserID,
		TokensPerMonth: c.TokensPerMonth,
		DurationMonths: c.DurationMonths,
		StartDate:      start,
		CreatedBy:      createdBy,
		Notes:          c.Notes,
	}
}

// ContractStatusUpdate
//
// swagger:model
type ContractStatusUpdate struct {

	// The new contract status
	//
	// required: true
	// enum: active,paused,cancelled
	Status model.ContractStatus `json:"status" validate:"required,oneof=active paused cancelled"`
}

// Validate verifies that the status is one an administrator may set.
func (u ContractStatusUpdate) Validate() error {
	return validationError(v.Struct(u))
}
