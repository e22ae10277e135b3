package dto

import (
	"github.com/shopspring/decimal"

	"codeart/internal/domain/order"
)

// OrderResponse is the API view of an order.
type OrderResponse struct {
	ID       string          `json:"id"`
	Number   string          `json:"number"`
	Version  int             `json:"version"`
	Customer string          `json:"customer"`
	Total    decimal.Decimal `json:"total"`
	Currency string          `json:"currency"`
	Status   string          `json:"status"`
	Note     *string         `json:"note,omitempty"`
}

// FromOrder creates OrderResponse from an order.
func FromOrder(o *order.Order) OrderResponse {
	return OrderResponse{
		ID:       o.ID.String(),
		Number:   o.Number,
		Version:  o.Version,
		Customer: o.Customer,
		Total:    o.Total,
		Currency: o.Currency,
		Status:   string(o.Status),
		Note:     o.Note,
	}
}

// FromOrders maps a slice of orders.
func FromOrders(orders []*order.Order) []OrderResponse {
	out := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, FromOrder(o))
	}
	return out
}

// CreateOrderRequest for creating orders.
type CreateOrderRequest struct {
	Customer string          `json:"customer" binding:"required"`
	Total    decimal.Decimal `json:"total"`
	Currency string          `json:"currency" binding:"required,len=3"`
	Note     *string         `json:"note"`
}

// ToOrder builds a draft order.
func (r CreateOrderRequest) ToOrder() *order.Order {
	o := order.New(r.Customer, r.Currency, r.Total)
	o.Note = r.Note
	return o
}

// CreateOrdersRequest creates several orders in one transaction.
type CreateOrdersRequest struct {
	Orders []CreateOrderRequest `json:"orders" binding:"required,min=1,max=100,dive"`
}

// UpdateOrderRequest for editing a draft order. Version must match the
// stored version.
type UpdateOrderRequest struct {
	Customer *string          `json:"customer"`
	Total    *decimal.Decimal `json:"total"`
	Note     *string          `json:"note"`
	Version  int              `json:"version" binding:"required,min=1"`
}

// ApplyTo copies the set fields onto o.
func (r UpdateOrderRequest) ApplyTo(o *order.Order) {
	if r.Customer != nil {
		o.Customer = *r.Customer
	}
	if r.Total != nil {
		o.Total = *r.Total
	}
	if r.Note != nil {
		o.Note = r.Note
	}
}
