package domain

import (
	"context"

	"codeart/internal/core/apperror"
	"codeart/internal/core/datacontext"
	"codeart/internal/core/entity"
	"codeart/internal/core/id"
	"codeart/internal/core/lock"
)

// AggregateService provides the common write/read path of one aggregate
// type through the data context bound to ctx. Whether a write runs now, in
// the open transaction, or at commit is decided by the data context.
type AggregateService[T entity.AggregateRoot] struct {
	repo  Repository[T]
	hooks *HookRegistry[T]

	// entityName is the UniqueKey prefix and the name used in errors
	entityName string
}

// AggregateServiceConfig configures the aggregate service.
type AggregateServiceConfig[T entity.AggregateRoot] struct {
	Repo       Repository[T]
	EntityName string
}

// NewAggregateService creates a new aggregate service.
func NewAggregateService[T entity.AggregateRoot](cfg AggregateServiceConfig[T]) *AggregateService[T] {
	return &AggregateService[T]{
		repo:       cfg.Repo,
		hooks:      NewHookRegistry[T](),
		entityName: cfg.EntityName,
	}
}

// Hooks returns the hook registry for external registration.
func (s *AggregateService[T]) Hooks() *HookRegistry[T] {
	return s.hooks
}

// KeyOf returns the UniqueKey an aggregate with aggregateID has.
func (s *AggregateService[T]) KeyOf(aggregateID id.ID) string {
	return entity.Key(s.entityName, aggregateID)
}

// Create schedules persisting a new aggregate.
func (s *AggregateService[T]) Create(ctx context.Context, e T) error {
	dc, err := datacontext.FromContext(ctx)
	if err != nil {
		return err
	}
	if err := s.hooks.Run(ctx, BeforeCreate, e); err != nil {
		return err
	}
	return dc.RegisterAdded(ctx, e, s.repo)
}

// Update schedules persisting a changed aggregate.
func (s *AggregateService[T]) Update(ctx context.Context, e T) error {
	dc, err := datacontext.FromContext(ctx)
	if err != nil {
		return err
	}
	if err := s.hooks.Run(ctx, BeforeUpdate, e); err != nil {
		return err
	}
	return dc.RegisterUpdated(ctx, e, s.repo)
}

// Delete loads the aggregate and schedules its removal. Inside a
// transaction the aggregate is read exclusively.
func (s *AggregateService[T]) Delete(ctx context.Context, aggregateID id.ID) error {
	dc, err := datacontext.FromContext(ctx)
	if err != nil {
		return err
	}

	level := datacontext.LevelNone
	if dc.IsInTransaction() {
		level = datacontext.LevelSingle
	}
	e, err := s.Get(ctx, aggregateID, level)
	if err != nil {
		return err
	}
	if err := s.hooks.Run(ctx, BeforeDelete, e); err != nil {
		return err
	}
	return dc.RegisterDeleted(ctx, e, s.repo)
}

// Get reads one aggregate under level. The logical lock is taken before
// the read so the row cannot change between lock and load.
func (s *AggregateService[T]) Get(ctx context.Context, aggregateID id.ID, level datacontext.QueryLevel) (T, error) {
	dc, err := datacontext.FromContext(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	e, err := datacontext.RegisterQueried(ctx, dc, level, func(qctx context.Context) (T, error) {
		if err := dc.AcquireLocks(qctx, level, s.KeyOf(aggregateID)); err != nil {
			var zero T
			return zero, err
		}
		return s.repo.GetByID(qctx, aggregateID, level)
	})
	if err != nil {
		return e, s.normalizeGetErr(err, aggregateID)
	}
	return e, nil
}

// List reads one page under level and locks every returned aggregate. At a
// locking level the page rows are read again once the locks are held, so a
// commit that landed between the page read and the lock is visible.
func (s *AggregateService[T]) List(ctx context.Context, f ListFilter, level datacontext.QueryLevel) (datacontext.Page[T], error) {
	dc, err := datacontext.FromContext(ctx)
	if err != nil {
		return datacontext.Page[T]{}, err
	}

	return datacontext.RegisterQueriedPage(ctx, dc, level, func(qctx context.Context) (datacontext.Page[T], error) {
		page, err := s.repo.List(qctx, f, level)
		if err != nil {
			return page, err
		}
		keys := make([]string, 0, len(page.Objects))
		for _, e := range page.Objects {
			keys = append(keys, e.UniqueKey())
		}
		if err := dc.AcquireLocks(qctx, level, keys...); err != nil {
			return datacontext.Page[T]{}, err
		}
		if level.Policy().LockMode == lock.None || len(keys) == 0 {
			return page, nil
		}
		return s.reload(qctx, page, keys, level)
	})
}

// reload replaces the page rows with their current state, keeping the page
// order. Rows deleted in the meantime are dropped.
func (s *AggregateService[T]) reload(ctx context.Context, page datacontext.Page[T], keys []string, level datacontext.QueryLevel) (datacontext.Page[T], error) {
	ids := make([]id.ID, 0, len(keys))
	for _, key := range keys {
		_, aggregateID, err := entity.ParseKey(key)
		if err != nil {
			return datacontext.Page[T]{}, err
		}
		ids = append(ids, aggregateID)
	}

	fresh, err := s.repo.List(ctx, ListFilter{IDs: ids}, level)
	if err != nil {
		return datacontext.Page[T]{}, err
	}
	byKey := make(map[string]T, len(fresh.Objects))
	for _, e := range fresh.Objects {
		byKey[e.UniqueKey()] = e
	}

	objects := make([]T, 0, len(keys))
	for _, key := range keys {
		if e, ok := byKey[key]; ok {
			objects = append(objects, e)
		}
	}
	page.DataCount -= int64(len(keys) - len(objects))
	page.Objects = objects
	return page, nil
}

func (s *AggregateService[T]) normalizeGetErr(err error, aggregateID id.ID) error {
	// Preserve existing AppError, but ensure not-found names the entity.
	if apperror.IsNotFound(err) {
		return apperror.NewNotFound(s.entityName, aggregateID.String())
	}
	return err
}
