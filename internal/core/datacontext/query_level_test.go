package datacontext

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeart/internal/core/lock"
)

func TestQueryLevelPolicy(t *testing.T) {
	tests := []struct {
		level  QueryLevel
		policy LevelPolicy
	}{
		{LevelNone, LevelPolicy{}},
		{LevelReadOnly, LevelPolicy{LockMode: lock.Shared}},
		{LevelSingle, LevelPolicy{ForcesTimely: true, LockMode: lock.Exclusive}},
		{LevelHoldSingle, LevelPolicy{ForcesTimely: true, LockMode: lock.Exclusive}},
		{LevelShare, LevelPolicy{ForcesTimely: true, LockMode: lock.Exclusive}},
		{LevelMirroring, LevelPolicy{Mirrors: true}},
		{QueryLevel(42), LevelPolicy{}},
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			assert.Equal(t, tt.policy, tt.level.Policy())
		})
	}
}

func TestParseQueryLevel(t *testing.T) {
	for _, level := range []QueryLevel{LevelNone, LevelReadOnly, LevelSingle, LevelHoldSingle, LevelShare, LevelMirroring} {
		parsed, err := ParseQueryLevel(level.String())
		require.NoError(t, err)
		assert.Equal(t, level, parsed)
	}

	parsed, err := ParseQueryLevel(" HoldSingle ")
	require.NoError(t, err)
	assert.Equal(t, LevelHoldSingle, parsed)

	parsed, err = ParseQueryLevel("")
	require.NoError(t, err)
	assert.Equal(t, LevelNone, parsed)

	_, err = ParseQueryLevel("exclusive")
	assert.Error(t, err)
}

func TestRollbackCollection(t *testing.T) {
	var rc RollbackCollection
	var order []string
	boom1, boom2 := errors.New("one"), errors.New("two")

	rc.Register(func(context.Context) error { order = append(order, "a"); return boom1 })
	rc.Register(func(context.Context) error { order = append(order, "b"); return nil })
	rc.Register(func(context.Context) error { order = append(order, "c"); return boom2 })
	assert.Equal(t, 3, rc.Len())

	err := rc.Execute(context.Background())

	assert.ErrorIs(t, err, boom1)
	assert.ErrorIs(t, err, boom2)
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Zero(t, rc.Len())
	assert.NoError(t, rc.Execute(context.Background()))
}

func TestRollbackCollectionClear(t *testing.T) {
	var rc RollbackCollection
	ran := false
	rc.Register(func(context.Context) error { ran = true; return nil })
	rc.Clear()

	require.NoError(t, rc.Execute(context.Background()))
	assert.False(t, ran)
}

func TestActionPoolReuse(t *testing.T) {
	rec := &recorder{}
	repo := &fakeRepo{rec: rec}
	root := newRoot(rec, "a")

	before := ActionStats()
	a := actions.borrow(root, repo, ActionCreate)
	assert.Same(t, root, a.Target)
	assert.False(t, a.Expired())

	actions.give(a)
	assert.Nil(t, a.Target, "returned records drop their references")
	assert.Nil(t, a.Repository)
	assert.True(t, a.Expired())

	b := actions.borrow(root, repo, ActionDelete)
	assert.Equal(t, ActionDelete, b.Kind)
	assert.False(t, b.Expired())
	actions.give(b)

	after := ActionStats()
	assert.Equal(t, before.Borrowed+2, after.Borrowed)
	assert.GreaterOrEqual(t, after.Reused, before.Reused+1)
}

func TestActionKindString(t *testing.T) {
	assert.Equal(t, "create", ActionCreate.String())
	assert.Equal(t, "update", ActionUpdate.String())
	assert.Equal(t, "delete", ActionDelete.String())
	assert.Equal(t, "unknown", ActionKind(0).String())
}

func TestPagePageCount(t *testing.T) {
	assert.Equal(t, 3, Page[*testRoot]{PageSize: 10, DataCount: 21}.PageCount())
	assert.Equal(t, 0, Page[*testRoot]{PageSize: 0, DataCount: 21}.PageCount())
}

func TestRegisterQueriedPageMirrorsObjects(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.dc.BeginTransaction()

	page, err := RegisterQueriedPage(ctx, h.dc, LevelMirroring, func(ctx context.Context) (Page[*testRoot], error) {
		return Page[*testRoot]{
			Objects:   []*testRoot{newRoot(h.rec, "a"), nil, newRoot(h.rec, "b")},
			PageIndex: 0,
			PageSize:  3,
			DataCount: 2,
		}, nil
	})

	require.NoError(t, err)
	assert.Len(t, page.Objects, 3)
	assert.Equal(t, []string{"test:a", "test:b"}, h.dc.Mirrors())
	require.NoError(t, h.dc.Rollback(ctx))
}
