package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeart/internal/core/entity"
)

func TestBusDispatchesByKind(t *testing.T) {
	bus := NewBus()
	root := entity.NewBaseAggregate()
	var got []string

	bus.SubscribeMany(func(ctx context.Context, kind Kind, target entity.AggregateRoot) error {
		got = append(got, "all:"+string(kind))
		return nil
	}, CommittedKinds...)
	bus.Subscribe(AddCommitted, func(ctx context.Context, kind Kind, target entity.AggregateRoot) error {
		got = append(got, "add:"+target.UniqueKey())
		return nil
	})

	require.NoError(t, bus.Publish(context.Background(), AddCommitted, &root))
	require.NoError(t, bus.Publish(context.Background(), AddPreCommit, &root))
	require.NoError(t, bus.Publish(context.Background(), DeleteCommitted, &root))

	assert.Equal(t, []string{
		"all:add.committed",
		"add:" + root.UniqueKey(),
		"all:delete.committed",
	}, got)
}

func TestBusStopsAtFirstError(t *testing.T) {
	bus := NewBus()
	root := entity.NewBaseAggregate()
	boom := errors.New("boom")
	calls := 0

	bus.Subscribe(UpdatePreCommit, func(context.Context, Kind, entity.AggregateRoot) error {
		calls++
		return boom
	})
	bus.Subscribe(UpdatePreCommit, func(context.Context, Kind, entity.AggregateRoot) error {
		calls++
		return nil
	})

	err := bus.Publish(context.Background(), UpdatePreCommit, &root)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestActionOf(t *testing.T) {
	assert.Equal(t, "create", ActionOf(AddPreCommit))
	assert.Equal(t, "create", ActionOf(AddCommitted))
	assert.Equal(t, "update", ActionOf(UpdateCommitted))
	assert.Equal(t, "delete", ActionOf(DeletePreCommit))
	assert.Equal(t, "unknown", ActionOf(Kind("post")))
}
