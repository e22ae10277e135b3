package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeart/internal/core/id"
	"codeart/internal/core/tx"
)

func TestTransactionAppliesOnCommit(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	key := id.New()

	m := s.NewManager()
	txCtx, err := m.Begin(ctx)
	require.NoError(t, err)

	s.Put(txCtx, "t", key, "v1")

	row, ok := s.Get(txCtx, "t", key)
	assert.True(t, ok, "own writes are visible")
	assert.Equal(t, "v1", row)

	_, ok = s.Get(ctx, "t", key)
	assert.False(t, ok, "not visible outside before commit")

	require.NoError(t, m.Commit(txCtx))
	require.NoError(t, m.Close(ctx))

	row, ok = s.Get(ctx, "t", key)
	assert.True(t, ok)
	assert.Equal(t, "v1", row)
	assert.Equal(t, 1, s.Commits())
}

func TestCloseWithoutCommitDiscards(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	key := id.New()

	m := s.NewManager()
	txCtx, err := m.Begin(ctx)
	require.NoError(t, err)
	s.Put(txCtx, "t", key, "v1")
	require.NoError(t, m.Close(ctx))

	_, ok := s.Get(ctx, "t", key)
	assert.False(t, ok)
	assert.Zero(t, s.Commits())
	assert.ErrorIs(t, m.Commit(txCtx), ErrTxState)
}

func TestJournaledDeleteHidesRow(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	a, b := id.New(), id.New()
	s.Put(ctx, "t", a, "a")
	s.Put(ctx, "t", b, "b")

	err := s.RunInTransaction(ctx, func(ctx context.Context) error {
		s.Delete(ctx, "t", a)
		_, ok := s.Get(ctx, "t", a)
		assert.False(t, ok)
		assert.ElementsMatch(t, []any{"b"}, s.Scan(ctx, "t"))
		return nil
	})
	require.NoError(t, err)

	assert.ElementsMatch(t, []any{"b"}, s.Scan(ctx, "t"))
}

func TestRunInTransactionRollsBackOnError(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	key := id.New()
	boom := errors.New("boom")

	err := tx.Run(ctx, s, func(ctx context.Context) error {
		s.Put(ctx, "t", key, "v")
		return boom
	})

	assert.ErrorIs(t, err, boom)
	_, ok := s.Get(ctx, "t", key)
	assert.False(t, ok)
}

func TestNestedRunReusesTransaction(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	err := s.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.RunInTransaction(ctx, func(ctx context.Context) error {
			s.Put(ctx, "t", id.New(), "v")
			return nil
		})
	})

	require.NoError(t, err)
	assert.Equal(t, 1, s.Commits())
}

func TestBeginTwiceFails(t *testing.T) {
	m := NewStore().NewManager()
	_, err := m.Begin(context.Background())
	require.NoError(t, err)
	_, err = m.Begin(context.Background())
	assert.ErrorIs(t, err, ErrTxState)
}

func TestGuardRunsAgainstCommittedRowAtCommit(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	key := id.New()
	s.Put(ctx, "t", key, "v0")
	stale := errors.New("stale")
	expect := func(want string) Guard {
		return func(row any, exists bool) error {
			if !exists || row != want {
				return stale
			}
			return nil
		}
	}

	first, second := s.NewManager(), s.NewManager()
	ctx1, err := first.Begin(ctx)
	require.NoError(t, err)
	ctx2, err := second.Begin(ctx)
	require.NoError(t, err)

	require.NoError(t, s.PutIf(ctx1, "t", key, "v1", expect("v0")))
	require.NoError(t, s.PutIf(ctx2, "t", key, "v2", expect("v0")))
	require.NoError(t, s.PutIf(ctx2, "t", id.New(), "other", nil))

	require.NoError(t, first.Commit(ctx1))
	assert.ErrorIs(t, second.Commit(ctx2), stale)
	require.NoError(t, second.Close(ctx))

	row, _ := s.Get(ctx, "t", key)
	assert.Equal(t, "v1", row)
	assert.Len(t, s.Scan(ctx, "t"), 1, "nothing of the failed commit is applied")
	assert.Equal(t, 2, s.Commits())
}

func TestGuardSeesEarlierWritesOfSameTransaction(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	key := id.New()
	s.Put(ctx, "t", key, "v0")
	expect := func(want string) Guard {
		return func(row any, exists bool) error {
			if !exists || row != want {
				return errors.New("stale")
			}
			return nil
		}
	}

	err := s.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.PutIf(ctx, "t", key, "v1", expect("v0")); err != nil {
			return err
		}
		return s.PutIf(ctx, "t", key, "v2", expect("v1"))
	})
	require.NoError(t, err)

	row, _ := s.Get(ctx, "t", key)
	assert.Equal(t, "v2", row)
}

func TestGuardOutsideTransactionRunsAtOnce(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	key := id.New()
	refused := errors.New("refused")

	err := s.DeleteIf(ctx, "t", key, func(_ any, exists bool) error {
		if !exists {
			return refused
		}
		return nil
	})

	assert.ErrorIs(t, err, refused)
	assert.Zero(t, s.Commits())
}
