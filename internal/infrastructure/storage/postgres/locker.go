package postgres

import (
	"context"
	"fmt"

	"codeart/internal/core/lock"
)

// AdvisoryLocker serves data context locks with transaction-scoped
// advisory locks when the context carries a transaction, so sessions in
// other processes contend too. Without a transaction it falls back to
// the in-process table, which is also what Unlock releases; advisory
// locks end with their transaction.
type AdvisoryLocker struct {
	local *lock.Memory
}

var _ lock.Locker = (*AdvisoryLocker)(nil)

// NewAdvisoryLocker creates a locker. local may be nil.
func NewAdvisoryLocker(local *lock.Memory) *AdvisoryLocker {
	if local == nil {
		local = lock.NewMemory()
	}
	return &AdvisoryLocker{local: local}
}

// advisorySQL returns the statement taking one advisory lock of mode.
func advisorySQL(mode lock.Mode) string {
	if mode == lock.Shared {
		return "SELECT pg_advisory_xact_lock_shared(hashtext($1))"
	}
	return "SELECT pg_advisory_xact_lock(hashtext($1))"
}

// Lock takes keys in canonical order so two owners never wait on each other in a cycle.
func (l *AdvisoryLocker) Lock(ctx context.Context, owner string, mode lock.Mode, keys ...string) error {
	if mode == lock.None || len(keys) == 0 {
		return nil
	}

	t := GetTx(ctx)
	if t == nil {
		return l.local.Lock(ctx, owner, mode, keys...)
	}

	stmt := advisorySQL(mode)
	for _, key := range lock.Canonical(keys) {
		if _, err := t.Exec(ctx, stmt, key); err != nil {
			return fmt.Errorf("advisory lock %s: %w", key, err)
		}
	}
	return nil
}

func (l *AdvisoryLocker) Unlock(ctx context.Context, owner string) error {
	return l.local.Unlock(ctx, owner)
}
