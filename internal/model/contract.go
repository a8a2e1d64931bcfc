package model

import "time"

// ContractStatus is the lifecycle state of a user contract.
type ContractStatus string

const (
	ContractStatusActive    ContractStatus = "active"
	ContractStatusPaused    ContractStatus = "paused"
	ContractStatusCancelled ContractStatus = "cancelled"
	ContractStatusExpired   ContractStatus = "expired"
)

// Valid returns true if the status is known.
func (s ContractStatus) Valid() bool {
	switch s {
	case ContractStatusActive, ContractStatusPaused, ContractStatusCancelled, ContractStatusExpired:
		return true
	default:
		return false
	}
}

// Terminal returns true if no further transitions are possible from the status.
func (s ContractStatus) Terminal() bool {
	return s == ContractStatusCancelled || s == ContractStatusExpired
}

// UserContract is a monthly subscription that refills a user's token balance.
//
// swagger:model
type UserContract struct {
	// The contract identifier
	//
	// readOnly: true
	ID string `gorm:"type:uuid;primaryKey" json:"id"`

	// The user who receives the refills
	UserID string `gorm:"not null;index" json:"user_id"`

	// The number of tokens credited on each refill
	TokensPerMonth int64 `gorm:"not null" json:"tokens_per_month"`

	// The length of the contract in months
	DurationMonths int `gorm:"not null" json:"duration_months"`

	// The date the contract starts
	StartDate time.Time `gorm:"not null" json:"start_date"`

	// The date the contract ends; always StartDate plus DurationMonths
	EndDate time.Time `gorm:"not null" json:"end_date"`

	// The date of the next refill
	NextRefillDate time.Time `gorm:"not null;index" json:"next_refill_date"`

	// The contract status
	Status ContractStatus `gorm:"type:text;not null;index" json:"status"`

	// The number of refills performed so far
	TotalRefills int `gorm:"not null;default:0" json:"total_refills"`

	// The administrator who created the contract
	CreatedBy string `gorm:"not null" json:"created_by"`

	// Free-form notes
	Notes string `gorm:"not null;default:''" json:"notes"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name to use the database.
func (c *UserContract) TableName() string {
	return "user_contracts"
}

// DueForRefill returns true if the contract should be refilled at the given time.
func (c *UserContract) DueForRefill(now time.Time) bool {
	return c.Status == ContractStatusActive &&
		!c.NextRefillDate.After(now) &&
		!c.NextRefillDate.After(c.EndDate) &&
		c.EndDate.After(now)
}

// Expired returns true if an active contract has reached its end date at the given time.
func (c *UserContract) Expired(now time.Time) bool {
	return c.Status == ContractStatusActive && !c.EndDate.After(now)
}
