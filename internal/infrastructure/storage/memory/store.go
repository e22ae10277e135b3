// Package memory is an in-process storage backend. Writes made inside a
// transaction go to a journal that is applied atomically on commit.
package memory

import (
	"context"
	"errors"
	"sync"

	"codeart/internal/core/id"
	"codeart/internal/core/tx"
)

// Store holds committed rows per table.
type Store struct {
	mu      sync.RWMutex
	tables  map[string]map[id.ID]any
	commits int
}

var (
	_ tx.Factory = (*Store)(nil)
	_ tx.Runner  = (*Store)(nil)
)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{tables: make(map[string]map[id.ID]any)}
}

// NewManager implements tx.Factory.
func (s *Store) NewManager() tx.Manager {
	return &TxManager{store: s}
}

// RunInTransaction runs fn in a private transaction, or in the one already in ctx.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if journalFrom(ctx) != nil {
		return fn(ctx)
	}
	return tx.Run(ctx, s, fn)
}

// Commits returns how many transactions were applied.
func (s *Store) Commits() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.commits
}

// Get returns the row visible to ctx: the transaction's own writes first.
func (s *Store) Get(ctx context.Context, table string, key id.ID) (any, bool) {
	if j := journalFrom(ctx); j != nil {
		if e, ok := j.lookup(table, key); ok {
			return e.row, !e.deleted
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.tables[table][key]
	return row, ok
}

// Scan returns every row of table visible to ctx, in no particular order.
func (s *Store) Scan(ctx context.Context, table string) []any {
	s.mu.RLock()
	merged := make(map[id.ID]any, len(s.tables[table]))
	for k, row := range s.tables[table] {
		merged[k] = row
	}
	s.mu.RUnlock()

	if j := journalFrom(ctx); j != nil {
		for _, e := range j.entries {
			if e.table != table {
				continue
			}
			if e.deleted {
				delete(merged, e.key)
			} else {
				merged[e.key] = e.row
			}
		}
	}

	rows := make([]any, 0, len(merged))
	for _, row := range merged {
		rows = append(rows, row)
	}
	return rows
}

// Guard checks the row a write is about to replace. It runs when the write is
// applied, against the committed row overlaid with the earlier writes of the
// same transaction. A non-nil error aborts the whole apply.
type Guard func(row any, exists bool) error

// Put writes a row. Outside a transaction the write is applied at once.
func (s *Store) Put(ctx context.Context, table string, key id.ID, row any) {
	_ = s.write(ctx, entry{table: table, key: key, row: row})
}

// PutIf writes a row that guard accepts. Inside a transaction the guard runs
// at commit; outside one it runs now.
func (s *Store) PutIf(ctx context.Context, table string, key id.ID, row any, guard Guard) error {
	return s.write(ctx, entry{table: table, key: key, row: row, guard: guard})
}

// Delete removes a row. Outside a transaction the delete is applied at once.
func (s *Store) Delete(ctx context.Context, table string, key id.ID) {
	_ = s.write(ctx, entry{table: table, key: key, deleted: true})
}

// DeleteIf removes a row that guard accepts, with PutIf timing.
func (s *Store) DeleteIf(ctx context.Context, table string, key id.ID, guard Guard) error {
	return s.write(ctx, entry{table: table, key: key, deleted: true, guard: guard})
}

func (s *Store) write(ctx context.Context, e entry) error {
	if j := journalFrom(ctx); j != nil {
		j.append(e)
		return nil
	}
	return s.apply([]entry{e})
}

// apply checks every guard and then writes all entries, or writes nothing.
func (s *Store) apply(entries []entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := make(map[rowRef]entry, len(entries))
	for _, e := range entries {
		ref := rowRef{table: e.table, key: e.key}
		if e.guard != nil {
			row, exists := s.tables[e.table][e.key]
			if prev, ok := staged[ref]; ok {
				row, exists = prev.row, !prev.deleted
			}
			if err := e.guard(row, exists); err != nil {
				return err
			}
		}
		staged[ref] = e
	}

	for _, e := range entries {
		rows, ok := s.tables[e.table]
		if !ok {
			rows = make(map[id.ID]any)
			s.tables[e.table] = rows
		}
		if e.deleted {
			delete(rows, e.key)
		} else {
			rows[e.key] = e.row
		}
	}
	s.commits++
	return nil
}

// --- Transactions ---

type entry struct {
	table   string
	key     id.ID
	row     any
	deleted bool
	guard   Guard
}

type rowRef struct {
	table string
	key   id.ID
}

type journal struct {
	mu      sync.Mutex
	entries []entry
}

func (j *journal) append(e entry) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
}

// lookup returns the last journaled write of key.
func (j *journal) lookup(table string, key id.ID) (entry, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for i := len(j.entries) - 1; i >= 0; i-- {
		if e := j.entries[i]; e.table == table && e.key == key {
			return e, true
		}
	}
	return entry{}, false
}

type journalKey struct{}

func journalFrom(ctx context.Context) *journal {
	j, _ := ctx.Value(journalKey{}).(*journal)
	return j
}

// ErrTxState is returned for Begin/Commit calls out of order.
var ErrTxState = errors.New("memory: invalid transaction state")

// TxManager implements tx.Manager over a journal.
type TxManager struct {
	store     *Store
	journal   *journal
	committed bool
	closed    bool
}

var _ tx.Manager = (*TxManager)(nil)

func (m *TxManager) Begin(ctx context.Context) (context.Context, error) {
	if m.journal != nil || m.closed {
		return nil, ErrTxState
	}
	m.journal = &journal{}
	return context.WithValue(ctx, journalKey{}, m.journal), nil
}

// Commit applies the journal in one step. A failing guard leaves the store
// untouched and the transaction uncommitted.
func (m *TxManager) Commit(ctx context.Context) error {
	if m.journal == nil || m.committed || m.closed {
		return ErrTxState
	}
	m.journal.mu.Lock()
	entries := m.journal.entries
	m.journal.mu.Unlock()

	if err := m.store.apply(entries); err != nil {
		return err
	}
	m.committed = true
	return nil
}

// Close discards the journal unless it was committed.
func (m *TxManager) Close(ctx context.Context) error {
	m.closed = true
	m.journal = nil
	return nil
}
