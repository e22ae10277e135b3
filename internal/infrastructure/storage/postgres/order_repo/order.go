// Package order_repo provides the PostgreSQL order repository.
package order_repo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgconn"

	"codeart/internal/core/apperror"
	"codeart/internal/core/datacontext"
	"codeart/internal/core/entity"
	"codeart/internal/core/id"
	"codeart/internal/core/lock"
	"codeart/internal/domain"
	"codeart/internal/domain/filter"
	"codeart/internal/domain/order"
	"codeart/internal/infrastructure/storage/postgres"
)

const tableName = "orders"

// uniqueViolation is the SQLSTATE for a duplicate key.
const uniqueViolation = "23505"

var selectCols = postgres.Columns[order.Order]()

// OrderRepo persists orders with squirrel-built SQL and scany scanning.
type OrderRepo struct {
	txm *postgres.TxManager
}

var _ order.Repository = (*OrderRepo)(nil)

// NewOrderRepo creates a repository on txm's pool.
func NewOrderRepo(txm *postgres.TxManager) *OrderRepo {
	return &OrderRepo{txm: txm}
}

// Builder returns a new squirrel builder with PostgreSQL placeholder format.
func (r *OrderRepo) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func asOrder(root entity.AggregateRoot) (*order.Order, error) {
	o, ok := root.(*order.Order)
	if !ok {
		return nil, fmt.Errorf("order repository cannot persist %T", root)
	}
	return o, nil
}

// rowLockSuffix returns the row lock a read under level asks for. Row
// locks only make sense inside a transaction.
func rowLockSuffix(ctx context.Context, level datacontext.QueryLevel) string {
	if postgres.GetTx(ctx) == nil {
		return ""
	}
	switch level.Policy().LockMode {
	case lock.Exclusive:
		return "FOR UPDATE"
	case lock.Shared:
		return "FOR SHARE"
	}
	return ""
}

func (r *OrderRepo) PersistAdd(ctx context.Context, root entity.AggregateRoot) error {
	o, err := asOrder(root)
	if err != nil {
		return err
	}

	sql, args, err := r.insertQuery(o).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperror.NewConflict("order already exists").WithDetail("id", o.ID.String())
		}
		return fmt.Errorf("insert %s: %w", tableName, err)
	}
	return nil
}

func (r *OrderRepo) insertQuery(o *order.Order) squirrel.InsertBuilder {
	return r.Builder().
		Insert(tableName).
		SetMap(postgres.PickColumns(postgres.ColumnMap(o), selectCols))
}

// PersistUpdate writes with optimistic locking: the row must still carry
// the aggregate's version, which is bumped on success.
func (r *OrderRepo) PersistUpdate(ctx context.Context, root entity.AggregateRoot) error {
	o, err := asOrder(root)
	if err != nil {
		return err
	}

	sql, args, err := r.updateQuery(o).ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	var version int
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&version); err != nil {
		if pgxscan.NotFound(err) {
			return apperror.NewConcurrentModification(order.EntityName, o.ID.String())
		}
		return fmt.Errorf("update %s: %w", tableName, err)
	}
	o.SetVersion(version)
	return nil
}

func (r *OrderRepo) updateQuery(o *order.Order) squirrel.UpdateBuilder {
	return r.Builder().
		Update(tableName).
		SetMap(postgres.PickColumns(postgres.ColumnMap(o), selectCols, "id", "version")).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": o.ID}).
		Where(squirrel.Eq{"version": o.Version}).
		Suffix("RETURNING version")
}

func (r *OrderRepo) PersistDelete(ctx context.Context, root entity.AggregateRoot) error {
	o, err := asOrder(root)
	if err != nil {
		return err
	}

	sql, args, err := r.Builder().
		Delete(tableName).
		Where(squirrel.Eq{"id": o.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("delete %s: %w", tableName, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound(order.EntityName, o.ID.String())
	}
	return nil
}

func (r *OrderRepo) getQuery(ctx context.Context, orderID id.ID, level datacontext.QueryLevel) squirrel.SelectBuilder {
	q := r.Builder().
		Select(selectCols...).
		From(tableName).
		Where(squirrel.Eq{"id": orderID}).
		Limit(1)
	if suffix := rowLockSuffix(ctx, level); suffix != "" {
		q = q.Suffix(suffix)
	}
	return q
}

// GetByID retrieves an order, row-locked as level asks.
func (r *OrderRepo) GetByID(ctx context.Context, orderID id.ID, level datacontext.QueryLevel) (*order.Order, error) {
	sql, args, err := r.getQuery(ctx, orderID, level).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	o := &order.Order{}
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), o, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(order.EntityName, orderID.String())
		}
		return nil, fmt.Errorf("get by id: %w", err)
	}
	return o, nil
}

// List retrieves one page. The count runs without the row lock.
func (r *OrderRepo) List(ctx context.Context, f domain.ListFilter, level datacontext.QueryLevel) (datacontext.Page[*order.Order], error) {
	page := datacontext.Page[*order.Order]{PageIndex: f.PageIndex, PageSize: f.PageSize}

	where, err := whereClause(f)
	if err != nil {
		return page, err
	}
	querier := r.txm.GetQuerier(ctx)

	countSQL, countArgs, err := r.Builder().Select("COUNT(*)").From(tableName).Where(where).ToSql()
	if err != nil {
		return page, fmt.Errorf("build count: %w", err)
	}
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&page.DataCount); err != nil {
		return page, fmt.Errorf("count %s: %w", tableName, err)
	}

	sql, args, err := r.listQuery(ctx, f, where, level).ToSql()
	if err != nil {
		return page, fmt.Errorf("build list: %w", err)
	}
	if err := pgxscan.Select(ctx, querier, &page.Objects, sql, args...); err != nil {
		return page, fmt.Errorf("list %s: %w", tableName, err)
	}
	return page, nil
}

func (r *OrderRepo) listQuery(ctx context.Context, f domain.ListFilter, where squirrel.And, level datacontext.QueryLevel) squirrel.SelectBuilder {
	q := r.Builder().
		Select(selectCols...).
		From(tableName).
		Where(where).
		OrderBy(orderByClause(f.OrderBy)...)
	if f.PageSize > 0 {
		q = q.Limit(uint64(f.PageSize)).Offset(uint64(f.Offset()))
	}
	if suffix := rowLockSuffix(ctx, level); suffix != "" {
		q = q.Suffix(suffix)
	}
	return q
}

// whereClause translates the filter into squirrel predicates.
func whereClause(f domain.ListFilter) (squirrel.And, error) {
	where := squirrel.And{}
	if len(f.IDs) > 0 {
		where = append(where, squirrel.Eq{"id": f.IDs})
	}
	for _, it := range f.Filters {
		if err := it.Validate(order.FilterableFields); err != nil {
			return nil, apperror.NewValidation(err.Error())
		}
		switch it.Operator {
		case filter.Equal:
			where = append(where, squirrel.Eq{it.Field: it.Value})
		case filter.NotEqual:
			where = append(where, squirrel.NotEq{it.Field: it.Value})
		case filter.LessOrEqual:
			where = append(where, squirrel.LtOrEq{it.Field: it.Value})
		case filter.GreaterOrEqual:
			where = append(where, squirrel.GtOrEq{it.Field: it.Value})
		case filter.InList:
			where = append(where, squirrel.Eq{it.Field: it.Value})
		case filter.Contains:
			where = append(where, squirrel.ILike{it.Field: "%" + fmt.Sprint(it.Value) + "%"})
		}
	}
	return where, nil
}

// orderByClause maps "field" / "-field" onto a stable ORDER BY.
func orderByClause(orderBy string) []string {
	field := strings.TrimPrefix(orderBy, "-")
	if field == "" || !order.FilterableFields[field] {
		return []string{"id"}
	}
	dir := "ASC"
	if strings.HasPrefix(orderBy, "-") {
		dir = "DESC"
	}
	return []string{field + " " + dir, "id"}
}

// copyRows lays orders out as COPY rows in selectCols order.
func copyRows(orders []*order.Order) [][]any {
	rows := make([][]any, 0, len(orders))
	for _, o := range orders {
		rows = append(rows, postgres.ColumnValues(o, selectCols))
	}
	return rows
}

// BulkInsert loads orders with COPY, bypassing the data context.
// Must run inside a transaction.
func (r *OrderRepo) BulkInsert(ctx context.Context, orders []*order.Order) (int64, error) {
	n, err := postgres.NewBatchInserter(r.txm).CopyFromSlice(ctx, tableName, selectCols, copyRows(orders))
	if err != nil {
		return 0, fmt.Errorf("copy %s: %w", tableName, err)
	}
	return n, nil
}
