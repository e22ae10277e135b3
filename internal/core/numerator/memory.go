package numerator

import (
	"context"
	"sync"
)

// MemorySequence keeps sequences in process memory.
type MemorySequence struct {
	mu     sync.Mutex
	values map[string]int64
}

var _ Sequence = (*MemorySequence)(nil)

func NewMemorySequence() *MemorySequence {
	return &MemorySequence{values: make(map[string]int64)}
}

func (m *MemorySequence) Advance(ctx context.Context, key string, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] += delta
	return m.values[key], nil
}

func (m *MemorySequence) Set(ctx context.Context, key string, value int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// Value returns the last value handed out at key.
func (m *MemorySequence) Value(key string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key]
}
