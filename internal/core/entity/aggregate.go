// Package entity provides the aggregate root capability consumed by the data context.
package entity

import (
	"context"
	"fmt"
	"strings"

	"codeart/internal/core/id"
	"codeart/internal/core/validation"
)

// AggregateRoot is the unit of consistency the data context schedules
// persistence for. Domain types embed BaseAggregate and supply Validate.
type AggregateRoot interface {
	// UniqueKey identifies the aggregate across types, e.g. "order:<uuid>".
	// It is also the lock key.
	UniqueKey() string

	// IsEmpty reports an aggregate without identity; it cannot be persisted.
	IsEmpty() bool

	// SaveState snapshots tracking state; LoadState restores the last snapshot
	// right before a delayed action executes.
	SaveState()
	LoadState()

	MarkClean()
	MarkDirty()
	IsDirty() bool

	// Validate checks invariants without storage access.
	Validate(ctx context.Context) *validation.Result

	OnAddPreCommit(ctx context.Context) error
	OnAddCommitted(ctx context.Context) error
	OnUpdatePreCommit(ctx context.Context) error
	OnUpdateCommitted(ctx context.Context) error
	OnDeletePreCommit(ctx context.Context) error
	OnDeleteCommitted(ctx context.Context) error
}

// Key builds a UniqueKey from a type name and an id.
func Key(typeName string, aggregateID id.ID) string {
	return typeName + ":" + aggregateID.String()
}

// ParseKey splits a Key back into type name and id.
func ParseKey(key string) (string, id.ID, error) {
	typeName, raw, ok := strings.Cut(key, ":")
	if !ok || typeName == "" {
		return "", id.Nil(), fmt.Errorf("malformed aggregate key %q", key)
	}
	aggregateID, err := id.Parse(raw)
	if err != nil {
		return "", id.Nil(), fmt.Errorf("malformed aggregate key %q: %w", key, err)
	}
	return typeName, aggregateID, nil
}

// trackingState is what SaveState/LoadState move around. Version is not
// part of it: repositories own the version once an action executed.
type trackingState struct {
	dirty bool
}

// BaseAggregate contains identity, optimistic version and change tracking.
type BaseAggregate struct {
	// ID is the primary key (UUIDv7)
	ID id.ID `db:"id" json:"id"`

	// Version for optimistic locking (incremented on each update)
	Version int `db:"version" json:"version"`

	dirty    bool
	snapshot *trackingState
	hooks    *Hooks
}

// NewBaseAggregate creates a new dirty BaseAggregate with generated ID.
func NewBaseAggregate() BaseAggregate {
	return BaseAggregate{
		ID:      id.New(),
		Version: 1,
		dirty:   true,
	}
}

// UniqueKey returns the bare id. Domain types override it with Key.
func (b *BaseAggregate) UniqueKey() string {
	return b.ID.String()
}

// IsEmpty reports a zero id.
func (b *BaseAggregate) IsEmpty() bool {
	return id.IsNil(b.ID)
}

// SetVersion updates the version number (used by repository after sync).
func (b *BaseAggregate) SetVersion(v int) {
	b.Version = v
}

func (b *BaseAggregate) SaveState() {
	b.snapshot = &trackingState{dirty: b.dirty}
}

func (b *BaseAggregate) LoadState() {
	if b.snapshot == nil {
		return
	}
	b.dirty = b.snapshot.dirty
}

func (b *BaseAggregate) MarkClean()    { b.dirty = false }
func (b *BaseAggregate) MarkDirty()    { b.dirty = true }
func (b *BaseAggregate) IsDirty() bool { return b.dirty }

// Hooks returns the per-instance hook registry, creating it on first use.
func (b *BaseAggregate) Hooks() *Hooks {
	if b.hooks == nil {
		b.hooks = NewHooks()
	}
	return b.hooks
}

// Validate is satisfied by default.
func (b *BaseAggregate) Validate(ctx context.Context) *validation.Result {
	return nil
}

func (b *BaseAggregate) OnAddPreCommit(ctx context.Context) error {
	return b.hooks.Run(ctx, AddPreCommit)
}

func (b *BaseAggregate) OnAddCommitted(ctx context.Context) error {
	return b.hooks.Run(ctx, AddCommitted)
}

func (b *BaseAggregate) OnUpdatePreCommit(ctx context.Context) error {
	return b.hooks.Run(ctx, UpdatePreCommit)
}

func (b *BaseAggregate) OnUpdateCommitted(ctx context.Context) error {
	return b.hooks.Run(ctx, UpdateCommitted)
}

func (b *BaseAggregate) OnDeletePreCommit(ctx context.Context) error {
	return b.hooks.Run(ctx, DeletePreCommit)
}

func (b *BaseAggregate) OnDeleteCommitted(ctx context.Context) error {
	return b.hooks.Run(ctx, DeleteCommitted)
}
