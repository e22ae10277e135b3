package datacontext

import (
	"context"

	"codeart/internal/core/entity"
)

// Page is one page of query results.
type Page[T any] struct {
	Objects   []T   `json:"objects"`
	PageIndex int   `json:"pageIndex"`
	PageSize  int   `json:"pageSize"`
	DataCount int64 `json:"dataCount"`
}

// PageCount returns the number of pages for DataCount.
func (p Page[T]) PageCount() int {
	if p.PageSize <= 0 {
		return 0
	}
	return int((p.DataCount + int64(p.PageSize) - 1) / int64(p.PageSize))
}

// OpenLock applies the level's mode policy and returns the context the
// query must run on. Exclusive levels promote the context to timely mode,
// which needs an open transaction.
func (dc *DataContext) OpenLock(ctx context.Context, level QueryLevel) (context.Context, error) {
	if level.Policy().ForcesTimely {
		if err := dc.OpenTimelyMode(ctx); err != nil {
			return nil, err
		}
	}
	return dc.storageCtx(ctx), nil
}

// RegisterQueried runs a single-aggregate query under the level's policy.
// fn receives the context the query must use.
func RegisterQueried[T entity.AggregateRoot](ctx context.Context, dc *DataContext, level QueryLevel, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	qctx, err := dc.OpenLock(ctx, level)
	if err != nil {
		return zero, err
	}
	root, err := fn(qctx)
	if err != nil {
		return zero, err
	}
	if err := tryAddMirrors(ctx, dc, level, root); err != nil {
		return zero, err
	}
	return root, nil
}

// RegisterQueriedList runs a multi-aggregate query under the level's policy.
func RegisterQueriedList[T entity.AggregateRoot](ctx context.Context, dc *DataContext, level QueryLevel, fn func(ctx context.Context) ([]T, error)) ([]T, error) {
	qctx, err := dc.OpenLock(ctx, level)
	if err != nil {
		return nil, err
	}
	roots, err := fn(qctx)
	if err != nil {
		return nil, err
	}
	if err := tryAddMirrors(ctx, dc, level, roots...); err != nil {
		return nil, err
	}
	return roots, nil
}

// RegisterQueriedPage runs a paged query under the level's policy.
func RegisterQueriedPage[T entity.AggregateRoot](ctx context.Context, dc *DataContext, level QueryLevel, fn func(ctx context.Context) (Page[T], error)) (Page[T], error) {
	qctx, err := dc.OpenLock(ctx, level)
	if err != nil {
		return Page[T]{}, err
	}
	page, err := fn(qctx)
	if err != nil {
		return Page[T]{}, err
	}
	if err := tryAddMirrors(ctx, dc, level, page.Objects...); err != nil {
		return Page[T]{}, err
	}
	return page, nil
}

// tryAddMirrors records roots as mirrors when the level asks for it.
func tryAddMirrors[T entity.AggregateRoot](ctx context.Context, dc *DataContext, level QueryLevel, roots ...T) error {
	if !level.Policy().Mirrors {
		return nil
	}
	for _, root := range roots {
		if isNilRoot(root) {
			continue
		}
		if err := dc.AddMirror(ctx, root); err != nil {
			return err
		}
	}
	return nil
}
