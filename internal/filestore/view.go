package filestore

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/cyverse/compute-qms/internal/model"
	"github.com/cyverse/compute-qms/internal/store"
)

// view is a transaction-scoped handle on a loaded document.
type view struct {
	doc   *document
	dirty bool
}

func ownershipKey(resourceType model.ResourceType, resourceID string) string {
	return string(resourceType) + "/" + resourceID
}

func copyQuota(q *model.UserQuota) *model.UserQuota {
	c := *q
	return &c
}

func (v *view) GetUserQuota(_ context.Context, userID string) (*model.UserQuota, error) {
	q, ok := v.doc.Quotas[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyQuota(q), nil
}

// LockUserQuota needs no extra work because the whole document is locked for the duration of the transaction.
func (v *view) LockUserQuota(ctx context.Context, userID string) (*model.UserQuota, error) {
	return v.GetUserQuota(ctx, userID)
}

func (v *view) GetUserQuotaByUsername(_ context.Context, username string) (*model.UserQuota, error) {
	var found *model.UserQuota
	for _, q := range v.doc.Quotas {
		if q.Username != username {
			continue
		}
		if found == nil || q.CreatedAt.Before(found.CreatedAt) {
			found = q
		}
	}
	if found == nil {
		return nil, store.ErrNotFound
	}
	return copyQuota(found), nil
}

func (v *view) SaveUserQuota(_ context.Context, quota *model.UserQuota) error {
	now := time.Now()
	if existing, ok := v.doc.Quotas[quota.UserID]; ok {
		quota.CreatedAt = existing.CreatedAt
	} else if quota.CreatedAt.IsZero() {
		quota.CreatedAt = now
	}
	quota.UpdatedAt = now
	v.doc.Quotas[quota.UserID] = copyQuota(quota)
	v.dirty = true
	return nil
}

// quotaLess returns a comparison function for the given sort field.
func quotaLess(field string) func(a, b *model.UserQuota) bool {
	switch field {
	case "user_id":
		return func(a, b *model.UserQuota) bool { return a.UserID < b.UserID }
	case "current_plan":
		return func(a, b *model.UserQuota) bool { return a.CurrentPlan < b.CurrentPlan }
	case "token_balance":
		return func(a, b *model.UserQuota) bool { return a.TokenBalance < b.TokenBalance }
	case "created_at":
		return func(a, b *model.UserQuota) bool { return a.CreatedAt.Before(b.CreatedAt) }
	default:
		return func(a, b *model.UserQuota) bool { return a.Username < b.Username }
	}
}

func (v *view) ListUserQuotas(_ context.Context, params *store.ListingParams) ([]*model.UserQuota, int64, error) {
	if params == nil {
		params = &store.ListingParams{}
	}

	// Apply the search filter.
	matches := make([]*model.UserQuota, 0, len(v.doc.Quotas))
	for _, q := range v.doc.Quotas {
		if params.Search != "" && !strings.Contains(q.Username, params.Search) {
			continue
		}
		matches = append(matches, copyQuota(q))
	}

	// Sort the results, breaking ties by user ID so that paging is stable.
	less := quotaLess(params.SortField)
	desc := strings.ToLower(params.SortDir) == "desc"
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if less(a, b) {
			return !desc
		}
		if less(b, a) {
			return desc
		}
		return a.UserID < b.UserID
	})

	// Apply the offset and limit.
	total := int64(len(matches))
	offset := params.Offset
	if offset < 0 {
		offset = 0
	}
	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}
	if offset >= len(matches) {
		return []*model.UserQuota{}, total, nil
	}
	end := offset + limit
	if end > len(matches) {
		end = len(matches)
	}

	return matches[offset:end], total, nil
}

func (v *view) ListExpiredPlans(_ context.Context, now time.Time) ([]*model.UserQuota, error) {
	result := make([]*model.UserQuota, 0)
	for _, q := range v.doc.Quotas {
		if q.PlanExpiresAt != nil && !q.PlanExpiresAt.After(now) {
			result = append(result, copyQuota(q))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].PlanExpiresAt.Before(*result[j].PlanExpiresAt)
	})
	return result, nil
}

func (v *view) DeleteUserQuota(_ context.Context, userID string) error {
	if _, ok := v.doc.Quotas[userID]; !ok {
		return store.ErrNotFound
	}
	delete(v.doc.Quotas, userID)
	v.dirty = true
	return nil
}

func (v *view) AddOwnership(_ context.Context, record *model.OwnershipRecord) error {
	key := ownershipKey(record.ResourceType, record.ResourceID)
	if existing, ok := v.doc.Ownership[key]; ok {
		if existing.OwnerUserID != record.OwnerUserID {
			return store.ErrOwnershipConflict
		}
		*record = *existing
		return nil
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	c := *record
	v.doc.Ownership[key] = &c
	v.dirty = true
	return nil
}

func (v *view) GetOwnership(_ context.Context, resourceType model.ResourceType, resourceID string) (*model.OwnershipRecord, error) {
	record, ok := v.doc.Ownership[ownershipKey(resourceType, resourceID)]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *record
	return &c, nil
}

func (v *view) ListOwnership(_ context.Context, resourceType model.ResourceType) ([]*model.OwnershipRecord, error) {
	result := make([]*model.OwnershipRecord, 0)
	for _, record := range v.doc.Ownership {
		if record.ResourceType == resourceType {
			c := *record
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ResourceID < result[j].ResourceID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (v *view) RemoveOwnership(_ context.Context, resourceType model.ResourceType, resourceID string) error {
	key := ownershipKey(resourceType, resourceID)
	if _, ok := v.doc.Ownership[key]; ok {
		delete(v.doc.Ownership, key)
		v.dirty = true
	}
	return nil
}

// AddTokenTransaction appends to the ledger. The ledger is append-only, so entries are kept in insertion order.
func (v *view) AddTokenTransaction(_ context.Context, txn *model.TokenTransaction) error {
	c := *txn
	v.doc.Transactions = append(v.doc.Transactions, &c)
	v.dirty = true
	return nil
}

func (v *view) ListTokenTransactions(_ context.Context, userID string) ([]*model.TokenTransaction, error) {
	result := make([]*model.TokenTransaction, 0)
	for _, txn := range v.doc.Transactions {
		if txn.UserID == userID {
			c := *txn
			result = append(result, &c)
		}
	}
	return result, nil
}

func (v *view) SaveContract(_ context.Context, contract *model.UserContract) error {
	now := time.Now()
	if existing, ok := v.doc.Contracts[contract.ID]; ok {
		contract.CreatedAt = existing.CreatedAt
	} else if contract.CreatedAt.IsZero() {
		contract.CreatedAt = now
	}
	contract.UpdatedAt = now
	c := *contract
	v.doc.Contracts[contract.ID] = &c
	v.dirty = true
	return nil
}

func (v *view) GetContract(_ context.Context, contractID string) (*model.UserContract, error) {
	contract, ok := v.doc.Contracts[contractID]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *contract
	return &c, nil
}

func (v *view) LockContract(ctx context.Context, contractID string) (*model.UserContract, error) {
	return v.GetContract(ctx, contractID)
}

func (v *view) ListContracts(_ context.Context, filter store.ContractFilter) ([]*model.UserContract, error) {
	result := make([]*model.UserContract, 0)
	for _, contract := range v.doc.Contracts {
		if filter.UserID != "" && contract.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && contract.Status != filter.Status {
			continue
		}
		c := *contract
		result = append(result, &c)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].NextRefillDate.Equal(result[j].NextRefillDate) {
			return result[i].ID < result[j].ID
		}
		return result[i].NextRefillDate.Before(result[j].NextRefillDate)
	})
	return result, nil
}

func (v *view) SaveTokenRequest(_ context.Context, request *model.TokenRequest) error {
	if existing, ok := v.doc.Requests[request.ID]; ok {
		request.CreatedAt = existing.CreatedAt
	} else if request.CreatedAt.IsZero() {
		request.CreatedAt = time.Now()
	}
	c := *request
	v.doc.Requests[request.ID] = &c
	v.dirty = true
	return nil
}

func (v *view) GetTokenRequest(_ context.Context, requestID string) (*model.TokenRequest, error) {
	request, ok := v.doc.Requests[requestID]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *request
	return &c, nil
}

func (v *view) ListTokenRequests(_ context.Context, status model.RequestStatus) ([]*model.TokenRequest, error) {
	result := make([]*model.TokenRequest, 0)
	for _, request := range v.doc.Requests {
		if request.Status == status {
			c := *request
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}
