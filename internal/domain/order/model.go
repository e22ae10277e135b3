// Package order provides the Order aggregate: a customer order with a money
// total that moves from draft to confirmed or cancelled.
package order

import (
	"context"

	"github.com/shopspring/decimal"

	"codeart/internal/core/apperror"
	"codeart/internal/core/entity"
	"codeart/internal/core/validation"
)

// EntityName prefixes every order UniqueKey.
const EntityName = "order"

// Status is the order lifecycle state.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// Order is a customer order.
type Order struct {
	entity.BaseAggregate

	// Customer is the buyer's display name
	Customer string `db:"customer" json:"customer"`

	// Total is the order amount in Currency
	Total decimal.Decimal `db:"total" json:"total"`

	// Currency is the ISO 4217 alphabetic code
	Currency string `db:"currency" json:"currency"`

	Status Status `db:"status" json:"status"`

	Note *string `db:"note" json:"note,omitempty"`

	// Number is assigned on create, e.g. ORD-2026-00042
	Number string `db:"number" json:"number"`
}

// New creates a draft order.
func New(customer, currency string, total decimal.Decimal) *Order {
	return &Order{
		BaseAggregate: entity.NewBaseAggregate(),
		Customer:      customer,
		Total:         total,
		Currency:      currency,
		Status:        StatusDraft,
	}
}

func (o *Order) UniqueKey() string {
	return entity.Key(EntityName, o.ID)
}

// rules are checked by Validate. Total is exposed to CEL as a double.
var rules = validation.RuleSet{
	validation.MustCELRule("customer", "required", `size(self.customer) > 0`, "customer is required"),
	validation.MustCELRule("total", "non_negative", `self.total >= 0.0`, "total must not be negative"),
	validation.MustCELRule("currency", "iso4217", `self.currency.matches('^[A-Z]{3}$')`, "currency must be a 3-letter ISO 4217 code"),
	validation.MustCELRule("status", "known", `self.status in ['draft', 'confirmed', 'cancelled']`, "unknown order status"),
}

func (o *Order) Validate(ctx context.Context) *validation.Result {
	return rules.Check(ctx, map[string]any{
		"customer": o.Customer,
		"total":    o.Total.InexactFloat64(),
		"currency": o.Currency,
		"status":   string(o.Status),
	})
}

// Fields is the flat view list filters match against.
func (o *Order) Fields() map[string]any {
	return map[string]any{
		"id":       o.ID.String(),
		"number":   o.Number,
		"customer": o.Customer,
		"total":    o.Total,
		"currency": o.Currency,
		"status":   string(o.Status),
		"version":  o.Version,
	}
}

// FilterableFields lists the fields list filters may reference.
var FilterableFields = map[string]bool{
	"number":   true,
	"customer": true,
	"total":    true,
	"currency": true,
	"status":   true,
}

// Confirm moves a draft order to confirmed.
func (o *Order) Confirm() error {
	if o.Status != StatusDraft {
		return apperror.NewValidation("only draft orders can be confirmed").
			WithDetail("status", o.Status)
	}
	o.Status = StatusConfirmed
	o.MarkDirty()
	return nil
}

// Cancel cancels a draft or confirmed order.
func (o *Order) Cancel() error {
	if o.Status == StatusCancelled {
		return apperror.NewValidation("order is already cancelled")
	}
	o.Status = StatusCancelled
	o.MarkDirty()
	return nil
}

// ChangeTotal replaces the total of a draft order.
func (o *Order) ChangeTotal(total decimal.Decimal) error {
	if o.Status != StatusDraft {
		return apperror.NewValidation("only draft orders can be changed").
			WithDetail("status", o.Status)
	}
	o.Total = total
	o.MarkDirty()
	return nil
}
