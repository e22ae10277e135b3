package datacontext

import (
	"context"
	"errors"
)

// Compensation undoes a non-transactional side effect (cache write, external call).
type Compensation func(ctx context.Context) error

// RollbackCollection keeps compensations in registration order.
type RollbackCollection struct {
	items []Compensation
}

// Register appends c.
func (r *RollbackCollection) Register(c Compensation) {
	r.items = append(r.items, c)
}

// Len returns the number of pending compensations.
func (r *RollbackCollection) Len() int {
	return len(r.items)
}

// Execute runs every compensation in order, even after a failure, and
// empties the collection. Failures are joined.
func (r *RollbackCollection) Execute(ctx context.Context) error {
	items := r.items
	r.items = nil

	var errs []error
	for _, c := range items {
		if err := c(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Clear drops all compensations without running them.
func (r *RollbackCollection) Clear() {
	clear(r.items)
	r.items = r.items[:0]
}
