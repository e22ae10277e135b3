package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeart/internal/core/datacontext"
	"codeart/internal/core/entity"
	"codeart/internal/core/events"
	"codeart/internal/core/id"
	"codeart/internal/domain/order"
	"codeart/internal/infrastructure/storage/memory"
	"codeart/pkg/logger"
)

// countingRepo counts storage reads.
type countingRepo struct {
	*memory.OrderRepo
	reads int
}

func (r *countingRepo) GetByID(ctx context.Context, orderID id.ID, level datacontext.QueryLevel) (*order.Order, error) {
	r.reads++
	return r.OrderRepo.GetByID(ctx, orderID, level)
}

type cacheFixture struct {
	mr    *miniredis.Miniredis
	cache *OrderCache
	store *memory.Store
	inner *countingRepo
	repo  *Repository
}

func newCacheFixture(t *testing.T) *cacheFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := memory.NewStore()
	inner := &countingRepo{OrderRepo: memory.NewOrderRepo(store)}
	c := NewOrderCache(client, 0)
	return &cacheFixture{mr: mr, cache: c, store: store, inner: inner, repo: NewRepository(inner, c)}
}

func (f *cacheFixture) seed(t *testing.T) *order.Order {
	t.Helper()
	o := order.New("ACME", "EUR", decimal.RequireFromString("12.50"))
	require.NoError(t, f.inner.PersistAdd(context.Background(), o))
	return o
}

func TestNewClientFailsOnUnreachableServer(t *testing.T) {
	_, err := NewClient(context.Background(), Config{Addr: "127.0.0.1:0"})
	assert.Error(t, err)
}

func TestNewClientPings(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewClient(context.Background(), Config{Addr: mr.Addr()})
	require.NoError(t, err)
	assert.NoError(t, client.Close())
}

func TestReadThrough(t *testing.T) {
	f := newCacheFixture(t)
	o := f.seed(t)
	ctx := context.Background()

	first, err := f.repo.GetByID(ctx, o.ID, datacontext.LevelNone)
	require.NoError(t, err)
	second, err := f.repo.GetByID(ctx, o.ID, datacontext.LevelNone)
	require.NoError(t, err)

	assert.Equal(t, 1, f.inner.reads)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, decimal.RequireFromString("12.50").Equal(second.Total))
	assert.Equal(t, order.StatusDraft, second.Status)
	assert.True(t, f.mr.Exists(cacheKey(o.UniqueKey())))
	assert.Equal(t, DefaultTTL, f.mr.TTL(cacheKey(o.UniqueKey())))
}

func TestLockingLevelsBypassCache(t *testing.T) {
	f := newCacheFixture(t)
	o := f.seed(t)
	ctx := context.Background()

	_, err := f.repo.GetByID(ctx, o.ID, datacontext.LevelNone)
	require.NoError(t, err)
	_, err = f.repo.GetByID(ctx, o.ID, datacontext.LevelSingle)
	require.NoError(t, err)

	assert.Equal(t, 2, f.inner.reads)
}

func TestMissIsNotCached(t *testing.T) {
	f := newCacheFixture(t)

	_, err := f.repo.GetByID(context.Background(), id.New(), datacontext.LevelNone)

	assert.Error(t, err)
	assert.Empty(t, f.mr.Keys())
}

func TestCommittedEventsEvict(t *testing.T) {
	f := newCacheFixture(t)
	o := f.seed(t)
	ctx := context.Background()
	bus := events.NewBus()
	f.cache.Subscribe(bus)

	require.NoError(t, f.cache.Set(ctx, o))
	require.NoError(t, bus.Publish(ctx, events.AddCommitted, o))
	assert.True(t, f.mr.Exists(cacheKey(o.UniqueKey())), "creates do not evict")

	require.NoError(t, bus.Publish(ctx, events.UpdateCommitted, o))
	assert.False(t, f.mr.Exists(cacheKey(o.UniqueKey())))
}

func TestEvictionFailureDoesNotFailCommit(t *testing.T) {
	f := newCacheFixture(t)
	o := f.seed(t)
	f.mr.Close()

	assert.NoError(t, f.cache.Handle(context.Background(), events.DeleteCommitted, o))
}

func TestTransactionReadsBypassCache(t *testing.T) {
	f := newCacheFixture(t)
	o := f.seed(t)
	require.NoError(t, f.cache.Set(context.Background(), o))
	dc := datacontext.New(datacontext.Options{Transactions: f.store, Logger: logger.Nop()})
	ctx := datacontext.WithDataContext(context.Background(), dc)

	dc.BeginTransaction()
	_, err := f.repo.GetByID(ctx, o.ID, datacontext.LevelNone)
	require.NoError(t, err)
	assert.Equal(t, 1, f.inner.reads, "cached entry not served inside a transaction")
	require.NoError(t, dc.Rollback(ctx))
}

func TestFailedCommitLeavesNoUncommittedEntry(t *testing.T) {
	f := newCacheFixture(t)
	o := f.seed(t)
	dc := datacontext.New(datacontext.Options{Transactions: f.store, Logger: logger.Nop()})
	ctx := datacontext.WithDataContext(context.Background(), dc)

	dc.BeginTransaction()
	require.NoError(t, dc.OpenTimelyMode(ctx))

	changed, err := f.inner.GetByID(ctx, o.ID, datacontext.LevelNone)
	require.NoError(t, err)
	require.NoError(t, changed.ChangeTotal(decimal.NewFromInt(999)))
	changed.Hooks().On(entity.UpdatePreCommit, func(context.Context) error {
		return errors.New("rejected")
	})
	require.NoError(t, dc.RegisterUpdated(ctx, changed, f.inner))

	qctx, err := dc.OpenLock(ctx, datacontext.LevelNone)
	require.NoError(t, err)
	seen, err := f.repo.GetByID(qctx, o.ID, datacontext.LevelNone)
	require.NoError(t, err)
	assert.True(t, seen.Total.Equal(decimal.NewFromInt(999)), "own write visible in the transaction")
	assert.False(t, f.mr.Exists(cacheKey(o.UniqueKey())))

	require.Error(t, dc.Commit(ctx))
	assert.False(t, f.mr.Exists(cacheKey(o.UniqueKey())))

	after, err := f.repo.GetByID(context.Background(), o.ID, datacontext.LevelNone)
	require.NoError(t, err)
	assert.True(t, after.Total.Equal(decimal.RequireFromString("12.50")))
	cached, err := f.cache.Get(context.Background(), o.ID)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.True(t, cached.Total.Equal(decimal.RequireFromString("12.50")))
}
