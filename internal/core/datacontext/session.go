package datacontext

import (
	"context"
	"errors"

	"codeart/internal/core/apperror"
)

type dataContextKey struct{}

// WithDataContext binds dc to the call chain.
func WithDataContext(ctx context.Context, dc *DataContext) context.Context {
	return context.WithValue(ctx, dataContextKey{}, dc)
}

// FromContext returns the bound data context.
func FromContext(ctx context.Context) (*DataContext, error) {
	if dc, ok := ctx.Value(dataContextKey{}).(*DataContext); ok && dc != nil {
		return dc, nil
	}
	return nil, apperror.NewNoDataContext()
}

// MustFromContext returns the bound data context.
// Panics if none is bound (programming error).
func MustFromContext(ctx context.Context) *DataContext {
	dc, err := FromContext(ctx)
	if err != nil {
		panic("datacontext: no data context in context")
	}
	return dc
}

// Session pins a context from pool to sessionID for the duration of fn.
// Nested Session calls for the same session share one context.
func Session(ctx context.Context, pool *Pool, sessionID string, fn func(ctx context.Context) error) (err error) {
	dc, err := pool.Acquire(ctx, sessionID)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := pool.Release(ctx, sessionID); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}()

	return fn(WithDataContext(ctx, dc))
}

// Transaction runs fn between BeginTransaction and Commit on the bound
// context. If fn fails the context is rolled back.
func Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	dc, err := FromContext(ctx)
	if err != nil {
		return err
	}

	dc.BeginTransaction()
	if err := fn(ctx); err != nil {
		if !dc.IsInTransaction() {
			return err
		}
		if rbErr := dc.Rollback(ctx); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return dc.Commit(ctx)
}
