package model

import "time"

// TransactionType describes the reason for a token balance mutation.
type TransactionType string

const (
	TransactionTypeCredit          TransactionType = "credit"
	TransactionTypeDebit           TransactionType = "debit"
	TransactionTypeRefund          TransactionType = "refund"
	TransactionTypePurchase        TransactionType = "purchase"
	TransactionTypeAdminAdjustment TransactionType = "admin_adjustment"
)

// Valid returns true if the transaction type is known.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeCredit, TransactionTypeDebit, TransactionTypeRefund, TransactionTypePurchase,
		TransactionTypeAdminAdjustment:
		return true
	default:
		return false
	}
}

// TokenTransaction is an append-only ledger entry describing a single token balance mutation.
//
// swagger:model
type TokenTransaction struct {
	// The transaction identifier
	//
	// readOnly: true
	ID string `gorm:"type:uuid;primaryKey" json:"id"`

	// The user whose balance changed
	UserID string `gorm:"not null;index" json:"user_id"`

	// The transaction type
	Type TransactionType `gorm:"type:text;not null" json:"type"`

	// The signed change to the balance; always equal to BalanceAfter - BalanceBefore
	Amount int64 `gorm:"not null" json:"amount"`

	// The balance before the transaction
	BalanceBefore int64 `gorm:"not null" json:"balance_before"`

	// The balance after the transaction
	BalanceAfter int64 `gorm:"not null" json:"balance_after"`

	// The reason for the transaction
	Reason string `gorm:"not null" json:"reason"`

	// The type of the resource associated with the transaction, if any
	RelatedResourceType *string `json:"related_resource_type,omitempty"`

	// The identifier of the resource associated with the transaction, if any
	RelatedResourceID *string `json:"related_resource_id,omitempty"`

	// The administrator who performed the transaction, if it was performed manually
	PerformedBy *string `json:"performed_by,omitempty"`

	// The date and time of the transaction
	Timestamp time.Time `gorm:"column:occurred_at;not null;index" json:"timestamp"`
}

// TableName specifies the table name to use the database.
func (t *TokenTransaction) TableName() string {
	return "token_transactions"
}

// RequestStatus is the review state of a token request.
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusApproved RequestStatus = "approved"
	RequestStatusDenied   RequestStatus = "denied"
)

// TokenRequest is a user-submitted request for additional tokens. Approving a request does not credit any tokens.
//
// swagger:model
type TokenRequest struct {
	// The request identifier
	//
	// readOnly: true
	ID string `gorm:"type:uuid;primaryKey" json:"id"`

	// The requesting user
	UserID string `gorm:"not null;index" json:"user_id"`

	// The number of tokens requested
	Amount int64 `gorm:"not null" json:"amount"`

	// The reason given by the user
	Reason string `gorm:"not null" json:"reason"`

	// The review status
	Status RequestStatus `gorm:"type:text;not null;index" json:"status"`

	// The administrator who reviewed the request
	ReviewedBy *string `json:"reviewed_by,omitempty"`

	// The date and time the request was reviewed
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`

	// Notes recorded by the reviewing administrator
	AdminNotes string `gorm:"not null;default:''" json:"admin_notes"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name to use the database.
func (r *TokenRequest) TableName() string {
	return "token_requests"
}
