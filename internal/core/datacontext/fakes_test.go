package datacontext

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"codeart/internal/core/entity"
	"codeart/internal/core/events"
	"codeart/internal/core/lock"
	"codeart/internal/core/tx"
	"codeart/internal/core/validation"
	"codeart/pkg/logger"
)

// recorder collects an ordered trace of everything the fakes observe.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// with returns the recorded events starting with any of the prefixes.
func (r *recorder) with(prefixes ...string) []string {
	var out []string
	for _, e := range r.all() {
		for _, p := range prefixes {
			if strings.HasPrefix(e, p) {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

func (r *recorder) count(event string) int {
	n := 0
	for _, e := range r.all() {
		if e == event {
			n++
		}
	}
	return n
}

// testRoot is an aggregate whose hooks write to the recorder.
type testRoot struct {
	entity.BaseAggregate
	name   string
	result *validation.Result
}

var allPhases = []entity.Phase{
	entity.AddPreCommit, entity.AddCommitted,
	entity.UpdatePreCommit, entity.UpdateCommitted,
	entity.DeletePreCommit, entity.DeleteCommitted,
}

func newRoot(rec *recorder, name string) *testRoot {
	r := &testRoot{BaseAggregate: entity.NewBaseAggregate(), name: name}
	for _, phase := range allPhases {
		r.Hooks().On(phase, func(ctx context.Context) error {
			rec.add("hook:%s:%s", phase, name)
			return nil
		})
	}
	return r
}

func (r *testRoot) UniqueKey() string { return "test:" + r.name }

func (r *testRoot) Validate(ctx context.Context) *validation.Result { return r.result }

// txMarker is stored in the context returned by fakeManager.Begin.
type txMarker struct{}

func inTx(ctx context.Context) bool {
	return ctx.Value(txMarker{}) != nil
}

type fakeManager struct {
	rec       *recorder
	commitErr error
	committed bool
	closed    bool
}

func (m *fakeManager) Begin(ctx context.Context) (context.Context, error) {
	m.rec.add("tx.begin")
	return context.WithValue(ctx, txMarker{}, m), nil
}

func (m *fakeManager) Commit(ctx context.Context) error {
	if m.commitErr != nil {
		return m.commitErr
	}
	m.rec.add("tx.commit")
	m.committed = true
	return nil
}

func (m *fakeManager) Close(ctx context.Context) error {
	if m.closed {
		return nil
	}
	m.closed = true
	if !m.committed {
		m.rec.add("tx.rollback")
	}
	return nil
}

type fakeFactory struct {
	rec       *recorder
	commitErr error
	managers  []*fakeManager
}

func (f *fakeFactory) NewManager() tx.Manager {
	m := &fakeManager{rec: f.rec, commitErr: f.commitErr}
	f.managers = append(f.managers, m)
	return m
}

type fakeRepo struct {
	rec       *recorder
	err       error
	outsideTx int
}

func (r *fakeRepo) persist(ctx context.Context, op string, root entity.AggregateRoot) error {
	if !inTx(ctx) {
		r.outsideTx++
	}
	if r.err != nil {
		return r.err
	}
	r.rec.add("persist.%s:%s", op, strings.TrimPrefix(root.UniqueKey(), "test:"))
	return nil
}

func (r *fakeRepo) PersistAdd(ctx context.Context, root entity.AggregateRoot) error {
	return r.persist(ctx, "add", root)
}

func (r *fakeRepo) PersistUpdate(ctx context.Context, root entity.AggregateRoot) error {
	return r.persist(ctx, "update", root)
}

func (r *fakeRepo) PersistDelete(ctx context.Context, root entity.AggregateRoot) error {
	return r.persist(ctx, "delete", root)
}

// recordingLocker records every lock pass and delegates to lock.Memory.
type recordingLocker struct {
	rec   *recorder
	mem   *lock.Memory
	mu    sync.Mutex
	locks int
}

func (l *recordingLocker) Lock(ctx context.Context, owner string, mode lock.Mode, keys ...string) error {
	l.mu.Lock()
	l.locks++
	l.mu.Unlock()
	l.rec.add("lock:%s:%s", mode, strings.Join(keys, ","))
	return l.mem.Lock(ctx, owner, mode, keys...)
}

func (l *recordingLocker) Unlock(ctx context.Context, owner string) error {
	return l.mem.Unlock(ctx, owner)
}

type harness struct {
	rec     *recorder
	factory *fakeFactory
	locker  *recordingLocker
	bus     *events.Bus
	repo    *fakeRepo
	dc      *DataContext
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	rec := &recorder{}
	h := &harness{
		rec:     rec,
		factory: &fakeFactory{rec: rec},
		locker:  &recordingLocker{rec: rec, mem: lock.NewMemory()},
		bus:     events.NewBus(),
		repo:    &fakeRepo{rec: rec},
	}
	h.bus.SubscribeMany(func(ctx context.Context, kind events.Kind, target entity.AggregateRoot) error {
		rec.add("event:%s:%s", kind, strings.TrimPrefix(target.UniqueKey(), "test:"))
		return nil
	}, append(events.PreCommitKinds, events.CommittedKinds...)...)

	h.dc = New(h.options())
	return h
}

func (h *harness) options() Options {
	return Options{
		Transactions: h.factory,
		Locker:       h.locker,
		Publisher:    h.bus,
		Logger:       logger.Nop(),
	}
}
