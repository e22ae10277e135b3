package datacontext

import (
	"context"

	"codeart/internal/core/apperror"
	"codeart/internal/core/entity"
	"codeart/internal/core/lock"
)

// AddMirror remembers a queried aggregate so it is locked before the commit
// flush. Duplicates (by UniqueKey) are ignored. Once the mirror pass already
// ran, a new mirror is locked on its own right away.
func (dc *DataContext) AddMirror(ctx context.Context, root entity.AggregateRoot) error {
	if dc.committing {
		return apperror.NewMirrorWhileCommitting(root.UniqueKey())
	}

	key := root.UniqueKey()
	if _, ok := dc.mirrorKeys[key]; ok {
		return nil
	}

	if dc.mirrorsLocked {
		if err := dc.locker.Lock(dc.storageCtx(ctx), dc.id, lock.Exclusive, key); err != nil {
			return err
		}
	}
	dc.mirrorKeys[key] = struct{}{}
	dc.mirrors = append(dc.mirrors, root)
	return nil
}

// Mirrors returns the keys of the mirrored aggregates in the order they were queried.
func (dc *DataContext) Mirrors() []string {
	keys := make([]string, len(dc.mirrors))
	for i, m := range dc.mirrors {
		keys[i] = m.UniqueKey()
	}
	return keys
}

// LockMirrors takes one exclusive lock over the whole mirror set, in
// canonical order, at most once until the context is cleared.
func (dc *DataContext) LockMirrors(ctx context.Context) error {
	if dc.mirrorsLocked {
		return nil
	}
	if !dc.IsInTransaction() {
		return apperror.NewNotInTransaction("lock mirrors")
	}

	if len(dc.mirrors) > 0 {
		if err := dc.locker.Lock(dc.storageCtx(ctx), dc.id, lock.Exclusive, lock.Canonical(dc.Mirrors())...); err != nil {
			return err
		}
	}
	dc.mirrorsLocked = true
	return nil
}

// AcquireLocks takes the lock the query level asks for on keys, held until
// the context is cleared. Outside of a transaction nothing would release
// them later, so the lock is granted and dropped at once: the read still
// waits for any conflicting holder to finish.
func (dc *DataContext) AcquireLocks(ctx context.Context, level QueryLevel, keys ...string) error {
	mode := level.Policy().LockMode
	if mode == lock.None || len(keys) == 0 {
		return nil
	}
	if err := dc.locker.Lock(dc.storageCtx(ctx), dc.id, mode, keys...); err != nil {
		return err
	}
	if !dc.IsInTransaction() {
		return dc.locker.Unlock(ctx, dc.id)
	}
	return nil
}
