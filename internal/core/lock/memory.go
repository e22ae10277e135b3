package lock

import (
	"context"
	"sync"

	"codeart/internal/core/apperror"
)

var _ Locker = (*Memory)(nil)

// Memory is an in-process Locker.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*entry
	owned   map[string]map[string]struct{} // owner -> keys
	upgrade map[string]string              // key -> shared holder waiting for exclusive
	changed chan struct{}                  // closed and replaced on every release
}

type entry struct {
	exclusive string
	shared    map[string]struct{}
}

// NewMemory creates an empty lock table.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]*entry),
		owned:   make(map[string]map[string]struct{}),
		upgrade: make(map[string]string),
		changed: make(chan struct{}),
	}
}

// Lock grants every key in one step or waits until that is possible.
//
// A shared holder asking for Exclusive waits for the other shared holders to
// leave. If one of them is already waiting to upgrade the same key, neither
// could ever proceed, so the second upgrade fails with LOCK_UPGRADE_DEADLOCK.
func (m *Memory) Lock(ctx context.Context, owner string, mode Mode, keys ...string) error {
	if mode == None || len(keys) == 0 {
		return nil
	}
	keys = Canonical(keys)

	var upgrading []string
	defer func() {
		if len(upgrading) == 0 {
			return
		}
		m.mu.Lock()
		for _, key := range upgrading {
			if m.upgrade[key] == owner {
				delete(m.upgrade, key)
			}
		}
		m.mu.Unlock()
	}()

	for {
		m.mu.Lock()
		if m.grantableLocked(owner, mode, keys) {
			m.grantLocked(owner, mode, keys)
			m.mu.Unlock()
			return nil
		}
		if mode == Exclusive && upgrading == nil {
			var err error
			if upgrading, err = m.claimUpgradesLocked(owner, keys); err != nil {
				m.mu.Unlock()
				return err
			}
		}
		wait := m.changed
		m.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// claimUpgradesLocked marks owner as upgrading every key it holds shared.
func (m *Memory) claimUpgradesLocked(owner string, keys []string) ([]string, error) {
	claimed := []string{}
	for _, key := range keys {
		e := m.entries[key]
		if e == nil {
			continue
		}
		if _, shared := e.shared[owner]; !shared {
			continue
		}
		if other, ok := m.upgrade[key]; ok && other != owner {
			return nil, apperror.NewLockUpgradeDeadlock(key)
		}
		claimed = append(claimed, key)
	}
	for _, key := range claimed {
		m.upgrade[key] = owner
	}
	return claimed, nil
}

// Unlock releases everything owner holds.
func (m *Memory) Unlock(ctx context.Context, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys, ok := m.owned[owner]
	if !ok {
		return nil
	}
	for key := range keys {
		e := m.entries[key]
		if e == nil {
			continue
		}
		if e.exclusive == owner {
			e.exclusive = ""
		}
		delete(e.shared, owner)
		if e.exclusive == "" && len(e.shared) == 0 {
			delete(m.entries, key)
		}
	}
	delete(m.owned, owner)

	close(m.changed)
	m.changed = make(chan struct{})
	return nil
}

// Held returns the keys owner currently holds, sorted.
func (m *Memory) Held(owner string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.owned[owner]))
	for key := range m.owned[owner] {
		keys = append(keys, key)
	}
	return Canonical(keys)
}

func (m *Memory) grantableLocked(owner string, mode Mode, keys []string) bool {
	for _, key := range keys {
		e := m.entries[key]
		if e == nil {
			continue
		}
		if e.exclusive != "" && e.exclusive != owner {
			return false
		}
		if mode == Exclusive {
			for holder := range e.shared {
				if holder != owner {
					return false
				}
			}
		}
	}
	return true
}

func (m *Memory) grantLocked(owner string, mode Mode, keys []string) {
	held := m.owned[owner]
	if held == nil {
		held = make(map[string]struct{}, len(keys))
		m.owned[owner] = held
	}
	for _, key := range keys {
		e := m.entries[key]
		if e == nil {
			e = &entry{shared: make(map[string]struct{})}
			m.entries[key] = e
		}
		if mode == Exclusive {
			e.exclusive = owner
		} else if e.exclusive != owner {
			e.shared[owner] = struct{}{}
		}
		held[key] = struct{}{}
	}
}
