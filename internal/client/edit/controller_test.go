package edit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/dpetrovs/finsync/internal/client/graph"
	"github.com/dpetrovs/finsync/internal/client/models"
	"github.com/dpetrovs/finsync/internal/common"
	"github.com/dpetrovs/finsync/internal/logging"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCaller struct {
	lastRequestType string
	lastBody        []byte

	resp json.RawMessage
	err  error
}

func (f *fakeCaller) Call(ctx context.Context, requestType string, payload any) (json.RawMessage, error) {
	f.lastRequestType = requestType
	f.lastBody, _ = json.Marshal(payload)
	return f.resp, f.err
}

func (f *fakeCaller) CallLongPoll(ctx context.Context, requestType string, payload any) (json.RawMessage, error) {
	return f.Call(ctx, requestType, payload)
}

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func setup(t *testing.T) (*graph.Collection[*models.Transaction], *fakeCaller, *Controller[*models.Transaction]) {
	t.Helper()
	col := graph.NewCollection[*models.Transaction](models.KindTransaction)
	rpc := &fakeCaller{}
	ctrl := NewController(col, rpc, testLogger())
	return col, rpc, ctrl
}

func committedTx(id string, updatedAt int64, title string) *models.Transaction {
	return &models.Transaction{
		Meta:   models.Meta{ID: id, UpdatedAt: updatedAt, Active: true},
		Title:  title,
		Amount: decimal.NewFromInt(5),
		Date:   "2026-08-01",
	}
}

func TestCancelRestoresExactly(t *testing.T) {
	col, _, ctrl := setup(t)

	tx := committedTx("1", 100, "lunch")
	col.Upsert(tx)
	before := tx.Clone()

	ctrl.BeginEdit(tx)
	tx.Title = "dinner"
	tx.Amount = decimal.NewFromInt(99)
	tx.Date = "2026-08-15"

	ctrl.Cancel(tx)

	got, ok := col.Get("1")
	require.True(t, ok)
	assert.Equal(t, *before, *got)
	assert.False(t, ctrl.Editing("1"))
}

func TestCancelWithoutEditIsNoop(t *testing.T) {
	col, _, ctrl := setup(t)

	tx := committedTx("1", 100, "lunch")
	col.Upsert(tx)
	tx.Title = "changed"

	ctrl.Cancel(tx)

	got, _ := col.Get("1")
	assert.Equal(t, "changed", got.Title)
}

func TestBeginEditReplacesShadow(t *testing.T) {
	col, _, ctrl := setup(t)

	tx := committedTx("1", 100, "first")
	col.Upsert(tx)

	ctrl.BeginEdit(tx)
	tx.Title = "second"

	// Restarting the edit discards the first snapshot.
	ctrl.BeginEdit(tx)
	tx.Title = "third"

	ctrl.Cancel(tx)

	got, _ := col.Get("1")
	assert.Equal(t, "second", got.Title)
}

func TestCommitPromotesTemporaryID(t *testing.T) {
	col, rpc, ctrl := setup(t)
	rpc.resp = json.RawMessage(`{"id":"987","updated_at":1234}`)

	tx := models.NewTransaction()
	tempID := tx.ID
	tx.Title = "groceries"
	col.Upsert(tx)

	ctrl.BeginEdit(tx)
	require.NoError(t, ctrl.Commit(context.Background(), tx))

	assert.Equal(t, "save_transactions", rpc.lastRequestType)

	_, ok := col.Get(tempID)
	assert.False(t, ok, "temporary id must be gone after promotion")

	got, ok := col.Get("987")
	require.True(t, ok)
	assert.Equal(t, "987", got.ID)
	assert.Equal(t, int64(1234), got.UpdatedAt)
	assert.Equal(t, models.ActionNone, got.Action)
	assert.False(t, got.Local)
	assert.Equal(t, 1, col.Len())
	assert.False(t, ctrl.Editing(tempID))
	assert.False(t, ctrl.Editing("987"))
}

func TestCommitMarksActionAddForLocalEntities(t *testing.T) {
	_, rpc, ctrl := setup(t)
	rpc.resp = json.RawMessage(`{"id":"1","updated_at":1}`)

	tx := models.NewTransaction()
	require.NoError(t, ctrl.Commit(context.Background(), tx))

	var sent models.Transaction
	require.NoError(t, json.Unmarshal(rpc.lastBody, &sent))
	assert.Equal(t, models.ActionAdd, sent.PendingAction())
}

func TestCommitMarksActionEditForExisting(t *testing.T) {
	col, rpc, ctrl := setup(t)
	rpc.resp = json.RawMessage(`{"id":"1","updated_at":200}`)

	tx := committedTx("1", 100, "lunch")
	col.Upsert(tx)

	require.NoError(t, ctrl.Commit(context.Background(), tx))

	var sent models.Transaction
	require.NoError(t, json.Unmarshal(rpc.lastBody, &sent))
	assert.Equal(t, models.ActionEdit, sent.PendingAction())

	got, _ := col.Get("1")
	assert.Equal(t, int64(200), got.UpdatedAt)
}

func TestCommitDeleteRemovesFromCollection(t *testing.T) {
	col, rpc, ctrl := setup(t)
	rpc.resp = json.RawMessage(`{"id":"1","updated_at":300}`)

	tx := committedTx("1", 100, "lunch")
	col.Upsert(tx)
	tx.SetPendingAction(models.ActionDelete)

	require.NoError(t, ctrl.Commit(context.Background(), tx))

	_, ok := col.Get("1")
	assert.False(t, ok)
	assert.False(t, tx.Active)
}

func TestCommitFailureLeavesOptimisticState(t *testing.T) {
	col, rpc, ctrl := setup(t)
	rpc.err = common.ErrConnection

	tx := committedTx("1", 100, "lunch")
	col.Upsert(tx)

	ctrl.BeginEdit(tx)
	tx.Title = "dinner"

	err := ctrl.Commit(context.Background(), tx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrConnection))

	// The optimistic mutation stays visible and the shadow stays open so
	// the caller can still cancel.
	got, _ := col.Get("1")
	assert.Equal(t, "dinner", got.Title)
	assert.True(t, ctrl.Editing("1"))

	ctrl.Cancel(tx)
	got, _ = col.Get("1")
	assert.Equal(t, "lunch", got.Title)
}

func TestCommitUndecodableAckIsServerError(t *testing.T) {
	col, rpc, ctrl := setup(t)
	rpc.resp = json.RawMessage(`"not an ack"`)

	tx := committedTx("1", 100, "lunch")
	col.Upsert(tx)

	err := ctrl.Commit(context.Background(), tx)
	require.Error(t, err)
}
