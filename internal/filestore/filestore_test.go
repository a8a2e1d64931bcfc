package filestore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cyverse/compute-qms/internal/model"
	"github.com/cyverse/compute-qms/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) (*FileStore, string) {
	path := filepath.Join(t.TempDir(), "data", "qms.json")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestOpenCreatesDocument(t *testing.T) {
	_, path := openStore(t)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.False(t, info.IsDir())
}

func TestChangesSurviveReopen(t *testing.T) {
	ctx := context.Background()
	s, path := openStore(t)

	require.NoError(t, s.SaveUserQuota(ctx, &model.UserQuota{UserID: "alice", Username: "alice", CurrentPlan: model.PlanFree}))
	require.NoError(t, s.AddOwnership(ctx, &model.OwnershipRecord{
		ResourceID:   "c-1",
		ResourceType: model.ResourceTypeContainer,
		OwnerUserID:  "alice",
	}))
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	quota, err := reopened.GetUserQuota(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.PlanFree, quota.CurrentPlan)

	record, err := reopened.GetOwnership(ctx, model.ResourceTypeContainer, "c-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", record.OwnerUserID)
}

func TestFailedTransactionsAreDiscarded(t *testing.T) {
	ctx := context.Background()
	s, _ := openStore(t)

	require.NoError(t, s.SaveUserQuota(ctx, &model.UserQuota{UserID: "alice", Username: "alice"}))

	boom := errors.New("boom")
	err := s.Transaction(ctx, func(tx store.Tx) error {
		quota, err := tx.LockUserQuota(ctx, "alice")
		if err != nil {
			return err
		}
		quota.TokenBalance = 500
		if err := tx.SaveUserQuota(ctx, quota); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	quota, err := s.GetUserQuota(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), quota.TokenBalance)
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	ctx := context.Background()
	s, _ := openStore(t)

	require.NoError(t, s.SaveUserQuota(ctx, &model.UserQuota{UserID: "alice", Username: "alice"}))

	err := s.Transaction(ctx, func(tx store.Tx) error {
		quota, err := tx.GetUserQuota(ctx, "alice")
		if err != nil {
			return err
		}
		quota.Suspended = true

		again, err := tx.GetUserQuota(ctx, "alice")
		if err != nil {
			return err
		}
		assert.False(t, again.Suspended)
		return nil
	})
	require.NoError(t, err)
}

func TestOwnershipConflict(t *testing.T) {
	ctx := context.Background()
	s, _ := openStore(t)

	record := &model.OwnershipRecord{ResourceID: "vm-1", ResourceType: model.ResourceTypeVM, OwnerUserID: "alice"}
	require.NoError(t, s.AddOwnership(ctx, record))
	require.NoError(t, s.AddOwnership(ctx, record))

	err := s.AddOwnership(ctx, &model.OwnershipRecord{ResourceID: "vm-1", ResourceType: model.ResourceTypeVM, OwnerUserID: "bob"})
	assert.ErrorIs(t, err, store.ErrOwnershipConflict)

	require.NoError(t, s.RemoveOwnership(ctx, model.ResourceTypeVM, "vm-1"))
	_, err = s.GetOwnership(ctx, model.ResourceTypeVM, "vm-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListExpiredPlans(t *testing.T) {
	ctx := context.Background()
	s, _ := openStore(t)

	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	require.NoError(t, s.SaveUserQuota(ctx, &model.UserQuota{UserID: "alice", Username: "alice", PlanExpiresAt: &past}))
	require.NoError(t, s.SaveUserQuota(ctx, &model.UserQuota{UserID: "bob", Username: "bob"}))

	quotas, err := s.ListExpiredPlans(ctx, now)
	require.NoError(t, err)
	require.Len(t, quotas, 1)
	assert.Equal(t, "alice", quotas[0].UserID)
}

func TestCancelledContext(t *testing.T) {
	s, _ := openStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.GetUserQuota(ctx, "alice")
	assert.ErrorIs(t, err, context.Canceled)
}
