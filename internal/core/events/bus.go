// Package events notifies cross-cutting observers (audit, cache, outbox)
// about aggregate lifecycle phases reported by the data context.
package events

import (
	"context"
	"fmt"
	"sync"

	"codeart/internal/core/entity"
)

// Kind is the lifecycle phase an event reports.
type Kind = entity.Phase

const (
	AddPreCommit    = entity.AddPreCommit
	AddCommitted    = entity.AddCommitted
	UpdatePreCommit = entity.UpdatePreCommit
	UpdateCommitted = entity.UpdateCommitted
	DeletePreCommit = entity.DeletePreCommit
	DeleteCommitted = entity.DeleteCommitted
)

// PreCommitKinds are published while the transaction is still open.
var PreCommitKinds = []Kind{AddPreCommit, UpdatePreCommit, DeletePreCommit}

// CommittedKinds are published after the transaction became durable.
var CommittedKinds = []Kind{AddCommitted, UpdateCommitted, DeleteCommitted}

// ActionOf returns "create", "update" or "delete" for kind.
func ActionOf(kind Kind) string {
	switch kind {
	case AddPreCommit, AddCommitted:
		return "create"
	case UpdatePreCommit, UpdateCommitted:
		return "update"
	case DeletePreCommit, DeleteCommitted:
		return "delete"
	}
	return "unknown"
}

// Publisher is fired right after every lifecycle hook.
type Publisher interface {
	Publish(ctx context.Context, kind Kind, target entity.AggregateRoot) error
}

// Handler reacts to one event.
type Handler func(ctx context.Context, kind Kind, target entity.AggregateRoot) error

// Bus is a synchronous in-process Publisher.
// Handlers run in subscription order on the publishing goroutine, so
// pre-commit handlers see the open transaction through ctx.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Kind][]Handler
}

var _ Publisher = (*Bus)(nil)

// NewBus creates a bus without subscribers.
func NewBus() *Bus {
	return &Bus{handlers: make(map[Kind][]Handler)}
}

// Subscribe registers h for kind.
func (b *Bus) Subscribe(kind Kind, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], h)
}

// SubscribeMany registers h for every kind.
func (b *Bus) SubscribeMany(h Handler, kinds ...Kind) {
	for _, kind := range kinds {
		b.Subscribe(kind, h)
	}
}

// Publish runs the handlers for kind and stops at the first error.
func (b *Bus) Publish(ctx context.Context, kind Kind, target entity.AggregateRoot) error {
	b.mu.RLock()
	handlers := b.handlers[kind]
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, kind, target); err != nil {
			return fmt.Errorf("%s handler for %s: %w", kind, target.UniqueKey(), err)
		}
	}
	return nil
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Kind, entity.AggregateRoot) error { return nil }
