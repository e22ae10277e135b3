package datacontext

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeart/internal/core/apperror"
	"codeart/pkg/logger"
)

func newTestPool(t *testing.T, h *harness, cfg PoolConfig) *Pool {
	t.Helper()
	p := NewPool(cfg, h.options(), logger.Nop())
	t.Cleanup(func() { p.Close(context.Background()) })
	return p
}

func TestDefaultPoolConfig(t *testing.T) {
	cfg := DefaultPoolConfig()
	assert.Equal(t, 300*time.Second, cfg.IdleTimeout)
	assert.Equal(t, 64, cfg.MaxIdle)
	assert.Zero(t, cfg.MaxActive)
}

func TestPoolPinsContextToSession(t *testing.T) {
	h := newHarness(t)
	p := newTestPool(t, h, PoolConfig{MaxIdle: 4})
	ctx := context.Background()

	first, err := p.Acquire(ctx, "s1")
	require.NoError(t, err)
	again, err := p.Acquire(ctx, "s1")
	require.NoError(t, err)
	other, err := p.Acquire(ctx, "s2")
	require.NoError(t, err)

	assert.Same(t, first, again)
	assert.NotSame(t, first, other)
	assert.Equal(t, PoolStats{Active: 2, Created: 2}, p.Stats())

	require.NoError(t, p.Release(ctx, "s1"))
	assert.Equal(t, 2, p.Stats().Active, "still opened once")
	require.NoError(t, p.Release(ctx, "s1"))
	assert.Equal(t, PoolStats{Active: 1, Idle: 1, Created: 2}, p.Stats())
}

func TestPoolReusesReleasedContext(t *testing.T) {
	h := newHarness(t)
	p := newTestPool(t, h, PoolConfig{MaxIdle: 4})
	ctx := context.Background()

	dc, err := p.Acquire(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, p.Release(ctx, "s1"))

	reused, err := p.Acquire(ctx, "s2")
	require.NoError(t, err)
	assert.Same(t, dc, reused)
	assert.Equal(t, 1, p.Stats().Created)
}

func TestPoolReleaseRollsBackOpenTransaction(t *testing.T) {
	h := newHarness(t)
	p := newTestPool(t, h, PoolConfig{MaxIdle: 4})
	ctx := context.Background()

	dc, err := p.Acquire(ctx, "s1")
	require.NoError(t, err)
	dc.BeginTransaction()
	require.NoError(t, dc.OpenTimelyMode(ctx))
	require.NoError(t, dc.RegisterAdded(ctx, newRoot(h.rec, "a"), h.repo))

	require.NoError(t, p.Release(ctx, "s1"))

	assert.Equal(t, 1, h.rec.count("tx.rollback"))
	assert.False(t, dc.IsInTransaction())
}

func TestPoolMaxActive(t *testing.T) {
	h := newHarness(t)
	p := newTestPool(t, h, PoolConfig{MaxIdle: 1, MaxActive: 1})
	ctx := context.Background()

	_, err := p.Acquire(ctx, "s1")
	require.NoError(t, err)

	_, err = p.Acquire(ctx, "s2")
	assert.ErrorIs(t, err, apperror.ErrContextPoolExhausted)

	require.NoError(t, p.Release(ctx, "s1"))
	_, err = p.Acquire(ctx, "s2")
	assert.NoError(t, err)
}

func TestPoolMaxIdleDropsExtraContexts(t *testing.T) {
	h := newHarness(t)
	p := newTestPool(t, h, PoolConfig{MaxIdle: 1})
	ctx := context.Background()

	for _, s := range []string{"s1", "s2", "s3"} {
		_, err := p.Acquire(ctx, s)
		require.NoError(t, err)
	}
	for _, s := range []string{"s1", "s2", "s3"} {
		require.NoError(t, p.Release(ctx, s))
	}

	assert.Equal(t, 1, p.Stats().Idle)
}

func TestPoolEvictsIdleContexts(t *testing.T) {
	h := newHarness(t)
	p := newTestPool(t, h, PoolConfig{MaxIdle: 4, IdleTimeout: time.Minute})
	ctx := context.Background()

	for _, s := range []string{"s1", "s2"} {
		_, err := p.Acquire(ctx, s)
		require.NoError(t, err)
	}
	require.NoError(t, p.Release(ctx, "s1"))
	require.NoError(t, p.Release(ctx, "s2"))

	assert.Zero(t, p.evictIdle(time.Now()))
	assert.Equal(t, 2, p.evictIdle(time.Now().Add(2*time.Minute)))
	assert.Equal(t, PoolStats{Created: 2, Evicted: 2}, p.Stats())
}

func TestPoolReleaseUnknownSession(t *testing.T) {
	h := newHarness(t)
	p := newTestPool(t, h, PoolConfig{})
	assert.NoError(t, p.Release(context.Background(), "missing"))
}

func TestPoolCloseRollsBackPinnedContexts(t *testing.T) {
	h := newHarness(t)
	p := NewPool(PoolConfig{MaxIdle: 4, IdleTimeout: time.Minute}, h.options(), logger.Nop())
	ctx := context.Background()

	dc, err := p.Acquire(ctx, "s1")
	require.NoError(t, err)
	dc.BeginTransaction()

	p.Close(ctx)

	assert.False(t, dc.IsInTransaction())
	_, err = p.Acquire(ctx, "s2")
	assert.ErrorIs(t, err, apperror.ErrNoDataContext)
}

func TestPoolConcurrentSessions(t *testing.T) {
	h := newHarness(t)
	p := newTestPool(t, h, PoolConfig{MaxIdle: 8})
	ctx := context.Background()

	var wg sync.WaitGroup
	seen := sync.Map{}
	for i := range 16 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sessionID := string(rune('a' + i))
			dc, err := p.Acquire(ctx, sessionID)
			if !assert.NoError(t, err) {
				return
			}
			if prev, loaded := seen.LoadOrStore(dc, sessionID); loaded {
				assert.Failf(t, "context shared", "sessions %v and %s", prev, sessionID)
			}
			seen.Delete(dc)
			assert.NoError(t, p.Release(ctx, sessionID))
		}(i)
	}
	wg.Wait()

	assert.Zero(t, p.Stats().Active)
}

func TestSessionBindsContext(t *testing.T) {
	h := newHarness(t)
	p := newTestPool(t, h, PoolConfig{MaxIdle: 4})
	ctx := context.Background()

	_, err := FromContext(ctx)
	assert.ErrorIs(t, err, apperror.ErrNoDataContext)

	var outer, inner *DataContext
	err = Session(ctx, p, "s1", func(ctx context.Context) error {
		outer = MustFromContext(ctx)
		return Session(ctx, p, "s1", func(ctx context.Context) error {
			inner = MustFromContext(ctx)
			return nil
		})
	})

	require.NoError(t, err)
	assert.Same(t, outer, inner)
	assert.Equal(t, PoolStats{Idle: 1, Created: 1}, p.Stats())
}

func TestTransactionHelper(t *testing.T) {
	h := newHarness(t)
	p := newTestPool(t, h, PoolConfig{MaxIdle: 4})
	ctx := context.Background()

	err := Session(ctx, p, "s1", func(ctx context.Context) error {
		return Transaction(ctx, func(ctx context.Context) error {
			dc := MustFromContext(ctx)
			return dc.RegisterAdded(ctx, newRoot(h.rec, "a"), h.repo)
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, h.rec.count("persist.add:a"))

	boom := errors.New("boom")
	compensated := false
	err = Session(ctx, p, "s1", func(ctx context.Context) error {
		return Transaction(ctx, func(ctx context.Context) error {
			dc := MustFromContext(ctx)
			dc.RegisterRollback(func(context.Context) error { compensated = true; return nil })
			if err := dc.RegisterAdded(ctx, newRoot(h.rec, "b"), h.repo); err != nil {
				return err
			}
			return boom
		})
	})
	assert.ErrorIs(t, err, boom)
	assert.True(t, compensated)
	assert.Zero(t, h.rec.count("persist.add:b"))
}

func TestMustFromContextPanics(t *testing.T) {
	assert.Panics(t, func() { MustFromContext(context.Background()) })
}
