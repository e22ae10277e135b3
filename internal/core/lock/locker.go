// Package lock provides the aggregate lock manager used by query levels and mirrors.
package lock

import (
	"context"
	"slices"
)

// Mode is the strength of a lock request.
type Mode uint8

const (
	// None requests nothing.
	None Mode = iota
	// Shared coexists with other shared holders and waits for an exclusive one.
	Shared
	// Exclusive waits for every other holder.
	Exclusive
)

func (m Mode) String() string {
	switch m {
	case Shared:
		return "shared"
	case Exclusive:
		return "exclusive"
	default:
		return "none"
	}
}

// Locker grants locks on aggregate keys to an owner (a data context id).
//
// Lock acquires all keys or none: it blocks until the whole set can be
// granted or ctx is done. Owners that already hold a key may lock it again,
// and a shared holder may ask for Exclusive on the same key. Two shared
// holders upgrading the same key would wait on each other forever; the later
// request fails instead (LOCK_UPGRADE_DEADLOCK in Memory, a deadlock error
// from the database for advisory locks). Unlock releases every key held by owner.
type Locker interface {
	Lock(ctx context.Context, owner string, mode Mode, keys ...string) error
	Unlock(ctx context.Context, owner string) error
}

// Canonical returns keys sorted and deduplicated.
// Every Locker acquires in this order so two owners never wait on each other in a cycle.
func Canonical(keys []string) []string {
	out := slices.Clone(keys)
	slices.Sort(out)
	return slices.Compact(out)
}
