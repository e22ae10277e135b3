// Package domain provides the generic aggregate service and repository contracts.
package domain

import (
	"context"

	"codeart/internal/core/datacontext"
	"codeart/internal/core/entity"
	"codeart/internal/core/id"
	"codeart/internal/domain/filter"
)

// --- Filter & Pagination ---

// ListFilter contains common filtering options for list operations.
type ListFilter struct {
	// IDs filters by specific IDs
	IDs []id.ID

	// Filters are ANDed together
	Filters []filter.Item

	// OrderBy specifies sorting (e.g., "customer", "-total")
	OrderBy string

	PageIndex int
	PageSize  int
}

// DefaultListFilter returns sensible defaults.
func DefaultListFilter() ListFilter {
	return ListFilter{PageSize: 50}
}

// Offset is the row offset of the requested page.
func (f ListFilter) Offset() int {
	return f.PageIndex * f.PageSize
}

// --- Repository Interfaces ---

// Repository persists one aggregate type. Reads receive the query level so
// they can ask storage for row locks; the data context takes the logical locks.
type Repository[T entity.AggregateRoot] interface {
	datacontext.Persister

	// GetByID retrieves an aggregate or returns apperror NotFound.
	GetByID(ctx context.Context, id id.ID, level datacontext.QueryLevel) (T, error)

	// List retrieves one page of aggregates.
	List(ctx context.Context, filter ListFilter, level datacontext.QueryLevel) (datacontext.Page[T], error)
}

// --- Hooks ---

// HookEvent is a service-level lifecycle point. Storage-level hooks live
// on the aggregate (entity.Hooks) and fire from the data context.
type HookEvent string

const (
	BeforeCreate HookEvent = "before_create"
	BeforeUpdate HookEvent = "before_update"
	BeforeDelete HookEvent = "before_delete"
)

// Hook is a function that runs at specific lifecycle points.
type Hook[T any] func(ctx context.Context, entity T) error

// HookRegistry stores service hooks for an entity type.
type HookRegistry[T any] struct {
	hooks map[HookEvent][]Hook[T]
}

// NewHookRegistry creates an empty hook registry.
func NewHookRegistry[T any]() *HookRegistry[T] {
	return &HookRegistry[T]{
		hooks: make(map[HookEvent][]Hook[T]),
	}
}

// On registers a hook for the specified event.
func (r *HookRegistry[T]) On(event HookEvent, hook Hook[T]) {
	r.hooks[event] = append(r.hooks[event], hook)
}

// Run executes all hooks for the specified event, stopping at the first error.
func (r *HookRegistry[T]) Run(ctx context.Context, event HookEvent, entity T) error {
	for _, hook := range r.hooks[event] {
		if err := hook(ctx, entity); err != nil {
			return err
		}
	}
	return nil
}

func (r *HookRegistry[T]) OnBeforeCreate(hook Hook[T]) { r.On(BeforeCreate, hook) }
func (r *HookRegistry[T]) OnBeforeUpdate(hook Hook[T]) { r.On(BeforeUpdate, hook) }
func (r *HookRegistry[T]) OnBeforeDelete(hook Hook[T]) { r.On(BeforeDelete, hook) }
