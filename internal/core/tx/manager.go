// Package tx provides transaction management abstractions.
// This package defines interfaces that decouple the unit of work from specific
// storage implementations; the concrete managers live in infrastructure/storage.
package tx

import (
	"context"
	"errors"
	"fmt"
)

// Manager drives exactly one underlying transaction.
//
// Begin opens the transaction and returns a context that carries it; every
// storage call that must take part in the transaction uses that context.
// Commit makes the work durable. Close releases the transaction and rolls it
// back when Commit has not succeeded. Close is safe to call more than once.
type Manager interface {
	Begin(ctx context.Context) (context.Context, error)
	Commit(ctx context.Context) error
	Close(ctx context.Context) error
}

// Factory creates a fresh Manager per transaction.
type Factory interface {
	NewManager() Manager
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func() Manager

// NewManager implements Factory.
func (f FactoryFunc) NewManager() Manager { return f() }

// Runner executes a callback within a transaction.
// It is used by infrastructure code that runs outside of a data context
// (outbox relay, maintenance jobs).
type Runner interface {
	// RunInTransaction executes fn within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	// Nested calls reuse the existing transaction from context.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Run opens a private transaction from f, runs fn inside it and commits.
// The manager is always closed, so a failed fn leaves nothing applied.
func Run(ctx context.Context, f Factory, fn func(ctx context.Context) error) (err error) {
	m := f.NewManager()
	defer func() {
		if cerr := m.Close(ctx); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close transaction: %w", cerr))
		}
	}()

	txCtx, err := m.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(txCtx); err != nil {
		return err
	}
	return m.Commit(txCtx)
}
