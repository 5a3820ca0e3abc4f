package services

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dpetrovs/finsync/internal/client/cache"
	"github.com/dpetrovs/finsync/internal/client/repositories/meta"
	clientsync "github.com/dpetrovs/finsync/internal/client/sync"
	"github.com/dpetrovs/finsync/internal/common"
	"github.com/dpetrovs/finsync/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

type fakeCaller struct {
	mu    sync.Mutex
	calls []string

	resp json.RawMessage
	err  error
}

func (f *fakeCaller) Call(ctx context.Context, requestType string, payload any) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, requestType)
	f.mu.Unlock()
	return f.resp, f.err
}

func (f *fakeCaller) CallLongPoll(ctx context.Context, requestType string, payload any) (json.RawMessage, error) {
	// The tests never start the subscriber; a long poll just blocks.
	<-ctx.Done()
	return nil, common.ErrTaskCancelled
}

func (f *fakeCaller) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fixture struct {
	rpc     *fakeCaller
	engine  *Engine
	meta    *meta.Store
	cache   *cache.Store
	session SessionService
}

func newFixture(t *testing.T, dir string) *fixture {
	t.Helper()
	ctx := context.Background()
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

	db, err := InitDatabase(ctx, filepath.Join(dir, "finsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	metaStore := meta.NewStore(meta.NewSQLiteRepository(db), log)
	cacheStore, err := cache.NewStore(filepath.Join(dir, "cache"))
	require.NoError(t, err)

	rpc := &fakeCaller{}
	engine := NewEngine(rpc, metaStore, clientsync.DeviceInfo{ID: "dev-1", Name: "test"}, log)
	session := NewSessionService(engine, rpc, cacheStore, metaStore, log)

	return &fixture{rpc: rpc, engine: engine, meta: metaStore, cache: cacheStore, session: session}
}

func snapshotBody(returnTime int64) json.RawMessage {
	return json.RawMessage(`{
		"return_time": ` + jsonInt(returnTime) + `,
		"transactions": [
			{"id":"t1","updated_at":10,"active":true,"title":"coffee","amount":"3.50","date":"2026-08-01"},
			{"id":"t2","updated_at":20,"active":true,"title":"rent","amount":"900","date":"2026-08-02"}
		],
		"categories": [
			{"id":"c1","updated_at":10,"active":true,"title":"food"}
		]
	}`)
}

func jsonInt(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestFullFetchPopulatesGraphAndWatermark(t *testing.T) {
	f := newFixture(t, t.TempDir())
	ctx := context.Background()
	f.rpc.resp = snapshotBody(1000)

	require.NoError(t, f.session.FullFetch(ctx))

	assert.Equal(t, []string{SyncAllRequestType}, f.rpc.calls)
	assert.Equal(t, 2, f.engine.Graph.Transactions.Len())
	assert.Equal(t, 1, f.engine.Graph.Categories.Len())

	w, err := f.meta.Watermark(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), w)
}

func TestColdStartWithEmptyStateFullFetches(t *testing.T) {
	f := newFixture(t, t.TempDir())
	f.rpc.resp = snapshotBody(1000)

	require.NoError(t, f.session.ColdStart(context.Background()))

	assert.Equal(t, 1, f.rpc.callCount())
	assert.Equal(t, 2, f.engine.Graph.Transactions.Len())
}

func TestColdStartOfflineKeepsCacheBackedState(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	// First session: fetch, snapshot, record a recent network time.
	f := newFixture(t, dir)
	f.rpc.resp = snapshotBody(1000)
	require.NoError(t, f.session.FullFetch(ctx))
	require.NoError(t, f.session.SaveSnapshot(ctx))

	// Second session with the server unreachable and a stale network time:
	// the cold start loads the cache, attempts a fetch, and reports offline.
	g := newFixture(t, dir)
	g.rpc.err = common.ErrConnection

	err := g.session.ColdStart(ctx)
	assert.ErrorIs(t, err, common.ErrConnection)
	assert.Equal(t, 2, g.engine.Graph.Transactions.Len(), "cache-backed state must survive")

	tx, ok := g.engine.Graph.Transactions.Get("t1")
	require.True(t, ok)
	assert.Equal(t, "coffee", tx.Title)
}

func TestColdStartResumesFromWatermarkWithoutFetch(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	f := newFixture(t, dir)
	f.rpc.resp = snapshotBody(1000)
	require.NoError(t, f.session.FullFetch(ctx))
	require.NoError(t, f.session.SaveSnapshot(ctx))
	f.meta.TouchNetworkTime(time.Now())

	g := newFixture(t, dir)
	require.NoError(t, g.session.ColdStart(ctx))

	assert.Zero(t, g.rpc.callCount(), "recent watermark must skip the full fetch")
	assert.Equal(t, 2, g.engine.Graph.Transactions.Len())
}

func TestColdStartStaleNetworkTimeForcesFetch(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	f := newFixture(t, dir)
	f.rpc.resp = snapshotBody(1000)
	require.NoError(t, f.session.FullFetch(ctx))
	require.NoError(t, f.session.SaveSnapshot(ctx))
	f.meta.TouchNetworkTime(time.Now().Add(-8 * 24 * time.Hour))

	g := newFixture(t, dir)
	g.rpc.resp = snapshotBody(2000)
	require.NoError(t, g.session.ColdStart(ctx))

	assert.Equal(t, 1, g.rpc.callCount())
	w, err := g.meta.Watermark(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), w)
}

func TestColdStartEpochMismatchDropsCache(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	f := newFixture(t, dir)
	f.rpc.resp = snapshotBody(1000)
	require.NoError(t, f.session.FullFetch(ctx))
	require.NoError(t, f.session.SaveSnapshot(ctx))
	f.meta.TouchNetworkTime(time.Now())

	// An old session wrote the cache under a different epoch.
	require.NoError(t, f.meta.SetCacheEpoch(ctx, 999))

	g := newFixture(t, dir)
	g.rpc.resp = snapshotBody(2000)
	require.NoError(t, g.session.ColdStart(ctx))

	assert.Equal(t, 1, g.rpc.callCount(), "dropped cache must force a full fetch")
	w, err := g.meta.Watermark(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), w)
}

func TestSaveSnapshotRoundtrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	f := newFixture(t, dir)
	f.rpc.resp = snapshotBody(1000)
	require.NoError(t, f.session.FullFetch(ctx))
	require.NoError(t, f.session.SaveSnapshot(ctx))

	epoch, err := f.meta.CacheEpoch(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(cacheSchemaEpoch), epoch)

	out, err := cache.LoadMany[*jsonTransaction](f.cache, "transactions")
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

// jsonTransaction is a loose decode target for inspecting snapshot files.
type jsonTransaction struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func TestCloseStopsSubscriberAndSnapshots(t *testing.T) {
	f := newFixture(t, t.TempDir())
	ctx := context.Background()
	f.rpc.resp = snapshotBody(1000)

	require.NoError(t, f.session.FullFetch(ctx))
	require.NoError(t, f.session.Subscribe(ctx))
	require.NoError(t, f.session.Close(ctx))

	epoch, err := f.meta.CacheEpoch(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(cacheSchemaEpoch), epoch)
}
