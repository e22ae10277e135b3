// Package datacontext implements the unit of work: a per-session context that
// schedules aggregate persistence, drives the transaction state machine,
// applies query-level locking and runs compensations on rollback.
package datacontext

import (
	"context"
	"sync"

	"codeart/internal/core/entity"
)

// ActionKind is the persistence operation a ScheduledAction performs.
type ActionKind uint8

const (
	ActionCreate ActionKind = iota + 1
	ActionUpdate
	ActionDelete
)

func (k ActionKind) String() string {
	switch k {
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// phases returns the lifecycle phases reported around the action.
func (k ActionKind) phases() (preCommit, committed entity.Phase) {
	switch k {
	case ActionCreate:
		return entity.AddPreCommit, entity.AddCommitted
	case ActionUpdate:
		return entity.UpdatePreCommit, entity.UpdateCommitted
	default:
		return entity.DeletePreCommit, entity.DeleteCommitted
	}
}

// Persister is the repository side of a scheduled action.
// Each method is invoked at most once per action, after validation.
type Persister interface {
	PersistAdd(ctx context.Context, root entity.AggregateRoot) error
	PersistUpdate(ctx context.Context, root entity.AggregateRoot) error
	PersistDelete(ctx context.Context, root entity.AggregateRoot) error
}

// ScheduledAction is one pending persistence operation.
type ScheduledAction struct {
	Target     entity.AggregateRoot
	Repository Persister
	Kind       ActionKind

	expired bool
}

// Expired reports whether the action already ran (or was returned to the pool).
func (a *ScheduledAction) Expired() bool {
	return a.expired
}

// defaultMaxFreeActions bounds the free list so a burst does not pin memory forever.
const defaultMaxFreeActions = 1024

// actionPool is a free list of ScheduledAction records shared by all contexts.
type actionPool struct {
	mu      sync.Mutex
	free    []*ScheduledAction
	maxFree int

	borrowed uint64
	reused   uint64
}

// ActionPoolStats describes free-list usage.
type ActionPoolStats struct {
	Borrowed uint64 `json:"borrowed"`
	Reused   uint64 `json:"reused"`
	Free     int    `json:"free"`
}

var actions = &actionPool{maxFree: defaultMaxFreeActions}

// borrow takes a record from the free list (or allocates) and resets every field.
func (p *actionPool) borrow(target entity.AggregateRoot, repo Persister, kind ActionKind) *ScheduledAction {
	p.mu.Lock()
	var a *ScheduledAction
	if n := len(p.free); n > 0 {
		a = p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
		p.reused++
	}
	p.borrowed++
	p.mu.Unlock()

	if a == nil {
		a = &ScheduledAction{}
	}
	a.Target = target
	a.Repository = repo
	a.Kind = kind
	a.expired = false
	return a
}

// give drops the references and puts the record back.
// A returned record stays expired, so a stale holder cannot execute it.
func (p *actionPool) give(a *ScheduledAction) {
	a.Target = nil
	a.Repository = nil
	a.expired = true

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) < p.maxFree {
		p.free = append(p.free, a)
	}
}

func (p *actionPool) stats() ActionPoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return ActionPoolStats{Borrowed: p.borrowed, Reused: p.reused, Free: len(p.free)}
}

// ActionStats returns counters of the shared action free list.
func ActionStats() ActionPoolStats {
	return actions.stats()
}
