// Package store defines the persistence contract shared by the database and embedded file backends. Components
// outside of this package never branch on which backend is in use.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/cyverse/compute-qms/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrOwnershipConflict is returned when an ownership record already exists for a resource with a different owner.
var ErrOwnershipConflict = errors.New("resource is owned by another user")

// ListingParams customizes a paged listing.
type ListingParams struct {
	Offset    int
	Limit     int
	SortField string
	SortDir   string
	Search    string
}

// ContractFilter selects contracts in a listing. Zero-valued fields are ignored.
type ContractFilter struct {
	UserID string
	Status model.ContractStatus
}

// Tx provides every persistence operation. All operations performed through a single Tx value are applied
// atomically when the Tx was obtained from Store.Transaction.
type Tx interface {
	// GetUserQuota returns the quota record for a user, or ErrNotFound.
	GetUserQuota(ctx context.Context, userID string) (*model.UserQuota, error)

	// LockUserQuota is like GetUserQuota, but the record stays locked against concurrent writers until the
	// enclosing transaction ends.
	LockUserQuota(ctx context.Context, userID string) (*model.UserQuota, error)

	// GetUserQuotaByUsername returns the quota record for a username, or ErrNotFound.
	GetUserQuotaByUsername(ctx context.Context, username string) (*model.UserQuota, error)

	// SaveUserQuota inserts or replaces a quota record.
	SaveUserQuota(ctx context.Context, quota *model.UserQuota) error

	// ListUserQuotas lists quota records along with the total number of matching records.
	ListUserQuotas(ctx context.Context, params *ListingParams) ([]*model.UserQuota, int64, error)

	// ListExpiredPlans lists the quota records whose plan expired at or before the given time.
	ListExpiredPlans(ctx context.Context, now time.Time) ([]*model.UserQuota, error)

	// DeleteUserQuota removes a quota record. ErrNotFound is returned if the record does not exist.
	DeleteUserQuota(ctx context.Context, userID string) error

	// AddOwnership records resource ownership. Adding an identical record twice is not an error; adding a record
	// for a resource that belongs to another user returns ErrOwnershipConflict.
	AddOwnership(ctx context.Context, record *model.OwnershipRecord) error

	// GetOwnership returns the ownership record for a resource, or ErrNotFound.
	GetOwnership(ctx context.Context, resourceType model.ResourceType, resourceID string) (*model.OwnershipRecord, error)

	// ListOwnership lists every ownership record for a resource type.
	ListOwnership(ctx context.Context, resourceType model.ResourceType) ([]*model.OwnershipRecord, error)

	// RemoveOwnership deletes an ownership record. Removing a missing record is not an error.
	RemoveOwnership(ctx context.Context, resourceType model.ResourceType, resourceID string) error

	// AddTokenTransaction appends a ledger entry.
	AddTokenTransaction(ctx context.Context, txn *model.TokenTransaction) error

	// ListTokenTransactions lists the ledger entries for a user, oldest first.
	ListTokenTransactions(ctx context.Context, userID string) ([]*model.TokenTransaction, error)

	// SaveContract inserts or replaces a contract.
	SaveContract(ctx context.Context, contract *model.UserContract) error

	// GetContract returns a contract, or ErrNotFound.
	GetContract(ctx context.Context, contractID string) (*model.UserContract, error)

	// LockContract is like GetContract, but the record stays locked until the enclosing transaction ends.
	LockContract(ctx context.Context, contractID string) (*model.UserContract, error)

	// ListContracts lists contracts matching a filter, ordered by next refill date.
	ListContracts(ctx context.Context, filter ContractFilter) ([]*model.UserContract, error)

	// SaveTokenRequest inserts or replaces a token request.
	SaveTokenRequest(ctx context.Context, request *model.TokenRequest) error

	// GetTokenRequest returns a token request, or ErrNotFound.
	GetTokenRequest(ctx context.Context, requestID string) (*model.TokenRequest, error)

	// ListTokenRequests lists token requests with the given status, oldest first.
	ListTokenRequests(ctx context.Context, status model.RequestStatus) ([]*model.TokenRequest, error)
}

// Store is a Tx that can also open transactions. Operations called directly on a Store are each atomic on their own.
type Store interface {
	Tx

	// Transaction runs fn atomically. If fn returns an error, none of its writes are kept.
	Transaction(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any resources held by the store.
	Close() error
}
