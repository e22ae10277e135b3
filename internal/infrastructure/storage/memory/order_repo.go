package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"codeart/internal/core/apperror"
	"codeart/internal/core/datacontext"
	"codeart/internal/core/entity"
	"codeart/internal/core/id"
	"codeart/internal/domain"
	"codeart/internal/domain/filter"
	"codeart/internal/domain/order"
)

const ordersTable = "orders"

// orderRow is the stored form of an order; rows are values so the store
// never aliases a live aggregate.
type orderRow struct {
	ID       id.ID
	Version  int
	Customer string
	Total    decimal.Decimal
	Currency string
	Status   order.Status
	Note     string
	HasNote  bool
	Number   string
}

func rowFromOrder(o *order.Order) orderRow {
	row := orderRow{
		ID:       o.ID,
		Version:  o.Version,
		Customer: o.Customer,
		Total:    o.Total,
		Currency: o.Currency,
		Status:   o.Status,
		Number:   o.Number,
	}
	if o.Note != nil {
		row.Note, row.HasNote = *o.Note, true
	}
	return row
}

func (r orderRow) toOrder() *order.Order {
	o := &order.Order{
		Customer: r.Customer,
		Total:    r.Total,
		Currency: r.Currency,
		Status:   r.Status,
		Number:   r.Number,
	}
	o.ID = r.ID
	o.Version = r.Version
	if r.HasNote {
		note := r.Note
		o.Note = &note
	}
	return o
}

// OrderRepo stores orders in a Store.
type OrderRepo struct {
	store *Store
}

var _ order.Repository = (*OrderRepo)(nil)

// NewOrderRepo creates an order repository over store.
func NewOrderRepo(store *Store) *OrderRepo {
	return &OrderRepo{store: store}
}

func asOrder(root entity.AggregateRoot) (*order.Order, error) {
	o, ok := root.(*order.Order)
	if !ok {
		return nil, fmt.Errorf("order repository cannot persist %T", root)
	}
	return o, nil
}

func (r *OrderRepo) load(ctx context.Context, key id.ID) (orderRow, bool) {
	row, ok := r.store.Get(ctx, ordersTable, key)
	if !ok {
		return orderRow{}, false
	}
	return row.(orderRow), true
}

func (r *OrderRepo) PersistAdd(ctx context.Context, root entity.AggregateRoot) error {
	o, err := asOrder(root)
	if err != nil {
		return err
	}
	if _, exists := r.load(ctx, o.ID); exists {
		return apperror.NewConflict("order already exists").WithDetail("id", o.ID.String())
	}
	return r.store.PutIf(ctx, ordersTable, o.ID, rowFromOrder(o), mustNotExist(o.ID))
}

// PersistUpdate expects the stored version to equal the aggregate's and bumps both.
// The version is checked again when the write is applied, so a concurrent
// commit in between still fails this one.
func (r *OrderRepo) PersistUpdate(ctx context.Context, root entity.AggregateRoot) error {
	o, err := asOrder(root)
	if err != nil {
		return err
	}
	stored, exists := r.load(ctx, o.ID)
	if !exists {
		return apperror.NewNotFound(order.EntityName, o.ID.String())
	}
	if stored.Version != o.Version {
		return apperror.NewConcurrentModification(order.EntityName, o.ID.String())
	}

	row := rowFromOrder(o)
	row.Version++
	if err := r.store.PutIf(ctx, ordersTable, o.ID, row, expectVersion(o.ID, o.Version)); err != nil {
		return err
	}
	o.SetVersion(row.Version)
	return nil
}

func (r *OrderRepo) PersistDelete(ctx context.Context, root entity.AggregateRoot) error {
	o, err := asOrder(root)
	if err != nil {
		return err
	}
	if _, exists := r.load(ctx, o.ID); !exists {
		return apperror.NewNotFound(order.EntityName, o.ID.String())
	}
	return r.store.DeleteIf(ctx, ordersTable, o.ID, mustExist(o.ID))
}

func expectVersion(orderID id.ID, version int) Guard {
	return func(row any, exists bool) error {
		if !exists {
			return apperror.NewNotFound(order.EntityName, orderID.String())
		}
		if row.(orderRow).Version != version {
			return apperror.NewConcurrentModification(order.EntityName, orderID.String())
		}
		return nil
	}
}

func mustNotExist(orderID id.ID) Guard {
	return func(_ any, exists bool) error {
		if exists {
			return apperror.NewConflict("order already exists").WithDetail("id", orderID.String())
		}
		return nil
	}
}

func mustExist(orderID id.ID) Guard {
	return func(_ any, exists bool) error {
		if !exists {
			return apperror.NewNotFound(order.EntityName, orderID.String())
		}
		return nil
	}
}

// GetByID ignores level: the data context already holds the logical lock.
func (r *OrderRepo) GetByID(ctx context.Context, orderID id.ID, level datacontext.QueryLevel) (*order.Order, error) {
	row, ok := r.load(ctx, orderID)
	if !ok {
		return nil, apperror.NewNotFound(order.EntityName, orderID.String())
	}
	return row.toOrder(), nil
}

func (r *OrderRepo) List(ctx context.Context, f domain.ListFilter, level datacontext.QueryLevel) (datacontext.Page[*order.Order], error) {
	for _, it := range f.Filters {
		if err := it.Validate(order.FilterableFields); err != nil {
			return datacontext.Page[*order.Order]{}, apperror.NewValidation(err.Error())
		}
	}

	var matched []*order.Order
	for _, raw := range r.store.Scan(ctx, ordersTable) {
		o := raw.(orderRow).toOrder()
		if len(f.IDs) > 0 && !slices.Contains(f.IDs, o.ID) {
			continue
		}
		if !filter.MatchAll(f.Filters, o.Fields()) {
			continue
		}
		matched = append(matched, o)
	}

	sortOrders(matched, f.OrderBy)

	page := datacontext.Page[*order.Order]{
		PageIndex: f.PageIndex,
		PageSize:  f.PageSize,
		DataCount: int64(len(matched)),
	}
	if f.PageSize <= 0 {
		page.Objects = matched
		return page, nil
	}
	start := min(f.Offset(), len(matched))
	end := min(start+f.PageSize, len(matched))
	page.Objects = matched[start:end]
	return page, nil
}

// sortOrders sorts by "field" or "-field"; ties and the default use id order,
// which for UUIDv7 is creation order.
func sortOrders(orders []*order.Order, orderBy string) {
	desc := strings.HasPrefix(orderBy, "-")
	field := strings.TrimPrefix(orderBy, "-")

	slices.SortStableFunc(orders, func(a, b *order.Order) int {
		c := 0
		switch field {
		case "customer":
			c = strings.Compare(a.Customer, b.Customer)
		case "total":
			c = a.Total.Cmp(b.Total)
		case "currency":
			c = strings.Compare(a.Currency, b.Currency)
		case "status":
			c = strings.Compare(string(a.Status), string(b.Status))
		}
		if c == 0 {
			c = id.Compare(a.ID, b.ID)
		}
		if desc {
			return -c
		}
		return c
	})
}
