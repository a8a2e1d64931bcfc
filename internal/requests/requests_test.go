package requests

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/cyverse/compute-qms/internal/events"
	"github.com/cyverse/compute-qms/internal/filestore"
	"github.com/cyverse/compute-qms/internal/model"
	"github.com/cyverse/compute-qms/internal/qmserrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, *filestore.FileStore, *events.Recorder) {
	db, err := filestore.Open(filepath.Join(t.TempDir(), "qms.json"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	recorder := &events.Recorder{}
	return New(db, recorder), db, recorder
}

func TestCreateRequest(t *testing.T) {
	m, _, recorder := newTestManager(t)
	ctx := context.Background()

	request, err := m.CreateRequest(ctx, "alice", 500, "training workshop")
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusPending, request.Status)
	assert.NotEmpty(t, request.ID)

	pending, err := m.GetPendingRequests(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, request.ID, pending[0].ID)

	assert.Equal(t, []string{events.RequestCreated}, recorder.Types())
}

func TestCreateRequestValidation(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	var validation *qmserrors.ValidationError

	_, err := m.CreateRequest(ctx, "", 1, "x")
	assert.ErrorAs(t, err, &validation)

	_, err = m.CreateRequest(ctx, "alice", 0, "x")
	assert.ErrorAs(t, err, &validation)

	_, err = m.CreateRequest(ctx, "alice", 1, "")
	assert.ErrorAs(t, err, &validation)
}

func TestApproveDoesNotCreditTokens(t *testing.T) {
	m, db, _ := newTestManager(t)
	ctx := context.Background()

	request, err := m.CreateRequest(ctx, "alice", 500, "research")
	require.NoError(t, err)

	approved, err := m.ApproveRequest(ctx, request.ID, "root", "ok")
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusApproved, approved.Status)
	require.NotNil(t, approved.ReviewedBy)
	assert.Equal(t, "root", *approved.ReviewedBy)
	assert.NotNil(t, approved.ReviewedAt)
	assert.Equal(t, "ok", approved.AdminNotes)

	txns, err := db.ListTokenTransactions(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, txns)

	pending, err := m.GetPendingRequests(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestReviewOnlyOnce(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	request, err := m.CreateRequest(ctx, "alice", 500, "research")
	require.NoError(t, err)

	_, err = m.DenyRequest(ctx, request.ID, "root", "no budget")
	require.NoError(t, err)

	var conflict *qmserrors.ConflictError
	_, err = m.ApproveRequest(ctx, request.ID, "root", "")
	assert.ErrorAs(t, err, &conflict)

	stored, err := m.Get(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusDenied, stored.Status)
}

func TestReviewUnknownRequest(t *testing.T) {
	m, _, _ := newTestManager(t)

	_, err := m.ApproveRequest(context.Background(), "missing", "root", "")
	assert.True(t, qmserrors.IsNotFound(err))

	_, err = m.Get(context.Background(), "missing")
	assert.True(t, qmserrors.IsNotFound(err))
}
