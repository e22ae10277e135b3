package datacontext

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"

	"codeart/internal/core/apperror"
	"codeart/internal/core/entity"
	"codeart/internal/core/events"
	"codeart/internal/core/lock"
	"codeart/internal/core/tx"
	"codeart/pkg/logger"
)

// Status is the transaction mode of a data context.
type Status uint8

const (
	// StatusNone: no transaction; every write runs in its own private transaction.
	StatusNone Status = iota
	// StatusDelay: writes are queued and flushed together at commit.
	StatusDelay
	// StatusTimely: a transaction is open and writes execute immediately inside it.
	StatusTimely
)

func (s Status) String() string {
	switch s {
	case StatusDelay:
		return "delay"
	case StatusTimely:
		return "timely"
	default:
		return "none"
	}
}

// Options are the collaborators of a data context.
type Options struct {
	// Transactions opens the underlying storage transactions. Required.
	Transactions tx.Factory
	// Locker serves query-level locks and mirror locks. Defaults to a private lock.Memory.
	Locker lock.Locker
	// Publisher is notified after every lifecycle hook. Defaults to events.Nop.
	Publisher events.Publisher
	// Logger defaults to logger.Default().
	Logger *logger.Logger
}

func (o Options) withDefaults() Options {
	if o.Locker == nil {
		o.Locker = lock.NewMemory()
	}
	if o.Publisher == nil {
		o.Publisher = events.Nop{}
	}
	if o.Logger == nil {
		o.Logger = logger.Default()
	}
	return o
}

// DataContext is the unit of work of one session. It is not safe for
// concurrent use; the Pool pins each instance to a single session.
type DataContext struct {
	id           string
	transactions tx.Factory
	locker       lock.Locker
	publisher    events.Publisher
	log          *logger.Logger

	openCount  int
	status     Status
	depth      int
	committing bool

	actions []*ScheduledAction

	mirrors       []entity.AggregateRoot
	mirrorKeys    map[string]struct{}
	mirrorsLocked bool

	rollbacks RollbackCollection

	manager tx.Manager
	txCtx   context.Context
}

// New creates a data context. Options.Transactions must be set.
func New(opts Options) *DataContext {
	if opts.Transactions == nil {
		panic("datacontext: Options.Transactions is required")
	}
	opts = opts.withDefaults()

	dcID := uuid.NewString()
	return &DataContext{
		id:           dcID,
		transactions: opts.Transactions,
		locker:       opts.Locker,
		publisher:    opts.Publisher,
		log:          opts.Logger.WithComponent("data-context").With("data_context_id", dcID),
		mirrorKeys:   make(map[string]struct{}),
	}
}

// ID is the lock owner identity of this context.
func (dc *DataContext) ID() string { return dc.id }

// Status returns the current transaction mode.
func (dc *DataContext) Status() Status { return dc.status }

// Depth returns the Begin/Commit nesting depth.
func (dc *DataContext) Depth() int { return dc.depth }

// IsInTransaction reports whether BeginTransaction is in effect.
func (dc *DataContext) IsInTransaction() bool { return dc.status != StatusNone }

// IsCommitting reports whether the outermost commit is running.
func (dc *DataContext) IsCommitting() bool { return dc.committing }

// IsDirty reports queued actions that have not been executed yet.
func (dc *DataContext) IsDirty() bool {
	for _, a := range dc.actions {
		if !a.expired {
			return true
		}
	}
	return false
}

// --- Transaction state machine ---

// BeginTransaction opens a (possibly nested) transaction scope.
// Only the outermost scope decides the mode; it starts in Delay.
func (dc *DataContext) BeginTransaction() {
	if dc.IsInTransaction() {
		dc.depth++
		return
	}
	dc.releaseActions()
	dc.status = StatusDelay
	dc.depth = 1
}

// OpenTimelyMode promotes Delay to Timely: the storage transaction is opened
// now and everything queued so far is flushed into it. During a commit the
// flush is left to the commit itself.
func (dc *DataContext) OpenTimelyMode(ctx context.Context) error {
	if dc.status == StatusTimely {
		return nil
	}
	if !dc.IsInTransaction() {
		return apperror.NewNotInTransaction("open timely mode")
	}

	dc.status = StatusTimely
	if err := dc.openManager(ctx); err != nil {
		dc.status = StatusDelay
		return err
	}
	if dc.committing {
		return nil
	}
	return dc.flush(dc.txCtx)
}

// Commit closes one scope. Only the outermost Commit does real work: lock
// mirrors, execute queued actions, pre-commit pass, storage commit,
// committed pass. State is cleared afterwards whatever the outcome.
func (dc *DataContext) Commit(ctx context.Context) (err error) {
	if !dc.IsInTransaction() {
		return apperror.NewNotInTransaction("commit")
	}
	dc.depth--
	if dc.depth > 0 {
		return nil
	}
	if dc.committing {
		return apperror.NewRepeatedCommit()
	}
	dc.committing = true

	start := time.Now()
	queued := len(dc.actions)
	defer func() {
		if rerr := dc.reset(ctx); rerr != nil {
			err = errors.Join(err, rerr)
		}
		commitsTotal.WithLabelValues(resultLabel(err)).Inc()
		commitDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			dc.log.WithContext(ctx).Warnw("commit failed", "actions", queued, "error", err)
		} else {
			dc.log.WithContext(ctx).Debugw("committed", "actions", queued, "duration", time.Since(start))
		}
	}()

	if dc.status == StatusDelay {
		dc.status = StatusTimely
		if err := dc.openManager(ctx); err != nil {
			return err
		}
	}

	txCtx := dc.txCtx
	if err := dc.flush(txCtx); err != nil {
		return err
	}
	if err := dc.raisePreCommitQueue(txCtx); err != nil {
		return err
	}
	if err := dc.manager.Commit(txCtx); err != nil {
		return err
	}
	return dc.raiseCommittedQueue(ctx)
}

// Rollback runs every registered compensation in order and clears the context,
// even when a compensation fails. The storage transaction, if any, is rolled back.
// A running Commit owns the context until it returns, so Rollback is refused there.
func (dc *DataContext) Rollback(ctx context.Context) (err error) {
	if !dc.IsInTransaction() {
		return apperror.NewNotInTransaction("rollback")
	}
	if dc.committing {
		return apperror.NewRollbackWhileCommitting()
	}

	compensations := dc.rollbacks.Len()
	defer func() {
		if rerr := dc.reset(ctx); rerr != nil {
			err = errors.Join(err, rerr)
		}
		rollbacksTotal.WithLabelValues(resultLabel(err)).Inc()
		dc.log.WithContext(ctx).Debugw("rolled back", "compensations", compensations, "error", err)
	}()

	return dc.rollbacks.Execute(ctx)
}

// RegisterRollback adds a compensation run by Rollback.
func (dc *DataContext) RegisterRollback(c Compensation) {
	dc.rollbacks.Register(c)
}

// Close rolls back an open transaction or just clears the context.
func (dc *DataContext) Close(ctx context.Context) error {
	if dc.committing {
		return apperror.NewRollbackWhileCommitting()
	}
	if dc.IsInTransaction() {
		return dc.Rollback(ctx)
	}
	return dc.reset(ctx)
}

// --- Writes ---

// RegisterAdded schedules persisting a new aggregate.
func (dc *DataContext) RegisterAdded(ctx context.Context, root entity.AggregateRoot, repo Persister) error {
	return dc.register(ctx, root, repo, ActionCreate)
}

// RegisterUpdated schedules persisting a changed aggregate.
func (dc *DataContext) RegisterUpdated(ctx context.Context, root entity.AggregateRoot, repo Persister) error {
	return dc.register(ctx, root, repo, ActionUpdate)
}

// RegisterDeleted schedules deleting an aggregate.
func (dc *DataContext) RegisterDeleted(ctx context.Context, root entity.AggregateRoot, repo Persister) error {
	return dc.register(ctx, root, repo, ActionDelete)
}

// register hands the action to processAction and then gives the domain the
// same post-call state whether the write ran now or was deferred.
func (dc *DataContext) register(ctx context.Context, root entity.AggregateRoot, repo Persister, kind ActionKind) error {
	if isNilRoot(root) {
		return apperror.NewEmptyActionTarget(fmt.Sprintf("%T", root))
	}
	if err := dc.processAction(ctx, actions.borrow(root, repo, kind)); err != nil {
		return err
	}

	root.SaveState()
	if kind == ActionDelete {
		root.MarkDirty()
	} else {
		root.MarkClean()
	}
	return nil
}

func (dc *DataContext) processAction(ctx context.Context, a *ScheduledAction) error {
	switch dc.status {
	case StatusDelay:
		dc.actions = append(dc.actions, a)
		return nil

	case StatusTimely:
		if err := dc.ExecuteAction(dc.txCtx, a); err != nil {
			actions.give(a)
			return err
		}
		// Kept in the queue, already expired, so both commit hook passes cover it.
		dc.actions = append(dc.actions, a)
		return nil

	default:
		defer actions.give(a)
		err := tx.Run(ctx, dc.transactions, func(txCtx context.Context) error {
			if err := dc.ExecuteAction(txCtx, a); err != nil {
				return err
			}
			return dc.raise(txCtx, a, true)
		})
		if err != nil {
			return err
		}
		return dc.raise(ctx, a, false)
	}
}

// ValidateAction rejects empty targets and, except for deletes, unsatisfied
// validation results.
func (dc *DataContext) ValidateAction(ctx context.Context, a *ScheduledAction) error {
	if isNilRoot(a.Target) || a.Target.IsEmpty() {
		return apperror.NewEmptyActionTarget(fmt.Sprintf("%T", a.Target))
	}
	if a.Kind == ActionDelete {
		return nil
	}
	if res := a.Target.Validate(ctx); !res.IsSatisfied() {
		return apperror.NewValidationFailed(res.String(), res).
			WithDetail("key", a.Target.UniqueKey())
	}
	return nil
}

// ExecuteAction persists the action once; an expired action is a no-op.
func (dc *DataContext) ExecuteAction(ctx context.Context, a *ScheduledAction) error {
	if a.expired {
		return nil
	}

	a.Target.LoadState()
	if err := dc.ValidateAction(ctx, a); err != nil {
		return err
	}

	switch a.Kind {
	case ActionCreate:
		if err := a.Repository.PersistAdd(ctx, a.Target); err != nil {
			return err
		}
		a.Target.MarkClean()
	case ActionUpdate:
		if err := a.Repository.PersistUpdate(ctx, a.Target); err != nil {
			return err
		}
		a.Target.MarkClean()
	case ActionDelete:
		if err := a.Repository.PersistDelete(ctx, a.Target); err != nil {
			return err
		}
		a.Target.MarkDirty()
	default:
		return fmt.Errorf("unknown action kind %d", a.Kind)
	}

	a.expired = true
	actionsExecutedTotal.WithLabelValues(a.Kind.String()).Inc()
	return nil
}

// --- Commit internals ---

func (dc *DataContext) openManager(ctx context.Context) error {
	m := dc.transactions.NewManager()
	txCtx, err := m.Begin(ctx)
	if err != nil {
		if cerr := m.Close(ctx); cerr != nil {
			dc.log.WithContext(ctx).Warnw("close failed transaction", "error", cerr)
		}
		return fmt.Errorf("begin transaction: %w", err)
	}
	dc.manager = m
	dc.txCtx = txCtx
	return nil
}

// flush locks mirrors and then executes the queue in registration order.
// Index iteration picks up actions registered while flushing.
func (dc *DataContext) flush(ctx context.Context) error {
	if err := dc.LockMirrors(ctx); err != nil {
		return err
	}
	for i := 0; i < len(dc.actions); i++ {
		if err := dc.ExecuteAction(ctx, dc.actions[i]); err != nil {
			return err
		}
	}
	return nil
}

func (dc *DataContext) raisePreCommitQueue(ctx context.Context) error {
	for i := 0; i < len(dc.actions); i++ {
		if err := dc.raise(ctx, dc.actions[i], true); err != nil {
			return err
		}
	}
	return nil
}

func (dc *DataContext) raiseCommittedQueue(ctx context.Context) error {
	for i := 0; i < len(dc.actions); i++ {
		if err := dc.raise(ctx, dc.actions[i], false); err != nil {
			return err
		}
	}
	return nil
}

// raise fires the aggregate hook for the phase and then publishes the event.
func (dc *DataContext) raise(ctx context.Context, a *ScheduledAction, preCommit bool) error {
	pre, committed := a.Kind.phases()
	phase := committed
	if preCommit {
		phase = pre
	}

	var err error
	switch phase {
	case entity.AddPreCommit:
		err = a.Target.OnAddPreCommit(ctx)
	case entity.AddCommitted:
		err = a.Target.OnAddCommitted(ctx)
	case entity.UpdatePreCommit:
		err = a.Target.OnUpdatePreCommit(ctx)
	case entity.UpdateCommitted:
		err = a.Target.OnUpdateCommitted(ctx)
	case entity.DeletePreCommit:
		err = a.Target.OnDeletePreCommit(ctx)
	case entity.DeleteCommitted:
		err = a.Target.OnDeleteCommitted(ctx)
	}
	if err != nil {
		return err
	}
	return dc.publisher.Publish(ctx, phase, a.Target)
}

// storageCtx is the context storage calls must use: the open transaction if any.
func (dc *DataContext) storageCtx(ctx context.Context) context.Context {
	if dc.txCtx != nil {
		return dc.txCtx
	}
	return ctx
}

func (dc *DataContext) releaseActions() {
	for i, a := range dc.actions {
		actions.give(a)
		dc.actions[i] = nil
	}
	dc.actions = dc.actions[:0]
}

// reset returns the context to its pristine state: actions back to the pool,
// compensations dropped, transaction closed (rolled back unless committed),
// mirrors forgotten and locks released.
func (dc *DataContext) reset(ctx context.Context) error {
	var errs []error

	dc.releaseActions()
	dc.rollbacks.Clear()

	if dc.manager != nil {
		if err := dc.manager.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close transaction: %w", err))
		}
		dc.manager = nil
		dc.txCtx = nil
	}
	dc.status = StatusNone
	dc.depth = 0
	dc.committing = false

	clear(dc.mirrors)
	dc.mirrors = dc.mirrors[:0]
	clear(dc.mirrorKeys)
	dc.mirrorsLocked = false

	if err := dc.locker.Unlock(ctx, dc.id); err != nil {
		errs = append(errs, fmt.Errorf("release locks: %w", err))
	}
	return errors.Join(errs...)
}

func isNilRoot(root entity.AggregateRoot) bool {
	if root == nil {
		return true
	}
	v := reflect.ValueOf(root)
	return v.Kind() == reflect.Pointer && v.IsNil()
}
