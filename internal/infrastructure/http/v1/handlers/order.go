package handlers

import (
	"context"
	"encoding/json"

	"github.com/gin-gonic/gin"

	"codeart/internal/core/apperror"
	"codeart/internal/core/datacontext"
	"codeart/internal/core/id"
	"codeart/internal/domain"
	"codeart/internal/domain/filter"
	"codeart/internal/domain/order"
	"codeart/internal/infrastructure/http/v1/dto"
)

// OrderHandler serves /orders through the session's data context.
type OrderHandler struct {
	*BaseHandler
	service *order.Service
}

// NewOrderHandler creates a new order handler.
func NewOrderHandler(base *BaseHandler, service *order.Service) *OrderHandler {
	return &OrderHandler{BaseHandler: base, service: service}
}

// RegisterRoutes mounts the order endpoints on rg.
func (h *OrderHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.POST("/batch", h.CreateBatch)
	rg.GET("/:id", h.Get)
	rg.PUT("/:id", h.Update)
	rg.DELETE("/:id", h.Delete)
	rg.POST("/:id/confirm", h.Confirm)
	rg.POST("/:id/cancel", h.Cancel)
}

// List handles GET /orders.
// Query: page, pageSize, orderBy ("total", "-total"), status, customer,
// filter (JSON array of filter items), level.
func (h *OrderHandler) List(c *gin.Context) {
	var page dto.PaginationRequest
	if !h.BindQuery(c, &page) {
		return
	}
	page.Defaults()
	level, ok := h.ParseLevel(c)
	if !ok {
		return
	}

	f := domain.DefaultListFilter()
	f.PageIndex = page.Page - 1
	f.PageSize = page.PageSize
	f.OrderBy = c.Query("orderBy")
	if status := c.Query("status"); status != "" {
		f.Filters = append(f.Filters, filter.Item{Field: "status", Operator: filter.Equal, Value: status})
	}
	if customer := c.Query("customer"); customer != "" {
		f.Filters = append(f.Filters, filter.Item{Field: "customer", Operator: filter.Contains, Value: customer})
	}
	if raw := c.Query("filter"); raw != "" {
		var items []filter.Item
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			h.Error(c, apperror.NewValidation("invalid filter format (json expected)"))
			return
		}
		f.Filters = append(f.Filters, items...)
	}

	var result datacontext.Page[*order.Order]
	err := readAt(c.Request.Context(), level, func(ctx context.Context) (err error) {
		result, err = h.service.List(ctx, f, level)
		return err
	})
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.GenericListResponse[dto.OrderResponse]{
		Data:       dto.FromOrders(result.Objects),
		Pagination: dto.NewPaginationResponse(page.Page, page.PageSize, int(result.DataCount)),
	})
}

// Get handles GET /orders/:id?level=.
func (h *OrderHandler) Get(c *gin.Context) {
	orderID, ok := h.ParseID(c)
	if !ok {
		return
	}
	level, ok := h.ParseLevel(c)
	if !ok {
		return
	}

	var o *order.Order
	err := readAt(c.Request.Context(), level, func(ctx context.Context) (err error) {
		o, err = h.service.Get(ctx, orderID, level)
		return err
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromOrder(o))
}

// readAt runs a read in its own transaction when level needs one, so
// locking and mirroring levels are usable from a single request.
func readAt(ctx context.Context, level datacontext.QueryLevel, read func(ctx context.Context) error) error {
	policy := level.Policy()
	if !policy.ForcesTimely && !policy.Mirrors {
		return read(ctx)
	}
	return datacontext.Transaction(ctx, read)
}

// Create handles POST /orders. Outside a transaction the order is written
// at once in a private storage transaction.
func (h *OrderHandler) Create(c *gin.Context) {
	var req dto.CreateOrderRequest
	if !h.BindJSON(c, &req) {
		return
	}

	o := req.ToOrder()
	if err := h.service.Create(c.Request.Context(), o); err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromOrder(o))
}

// CreateBatch handles POST /orders/batch: all orders or none.
func (h *OrderHandler) CreateBatch(c *gin.Context) {
	var req dto.CreateOrdersRequest
	if !h.BindJSON(c, &req) {
		return
	}

	orders := make([]*order.Order, 0, len(req.Orders))
	for _, r := range req.Orders {
		orders = append(orders, r.ToOrder())
	}
	if err := h.service.CreateBatch(c.Request.Context(), orders); err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromOrders(orders))
}

// Update handles PUT /orders/:id.
func (h *OrderHandler) Update(c *gin.Context) {
	orderID, ok := h.ParseID(c)
	if !ok {
		return
	}
	var req dto.UpdateOrderRequest
	if !h.BindJSON(c, &req) {
		return
	}

	o, err := h.service.Edit(c.Request.Context(), orderID, req.Version, req.ApplyTo)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromOrder(o))
}

// Delete handles DELETE /orders/:id.
func (h *OrderHandler) Delete(c *gin.Context) {
	orderID, ok := h.ParseID(c)
	if !ok {
		return
	}
	err := datacontext.Transaction(c.Request.Context(), func(ctx context.Context) error {
		return h.service.Delete(ctx, orderID)
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// Confirm handles POST /orders/:id/confirm.
func (h *OrderHandler) Confirm(c *gin.Context) {
	h.transition(c, h.service.Confirm)
}

// Cancel handles POST /orders/:id/cancel.
func (h *OrderHandler) Cancel(c *gin.Context) {
	h.transition(c, h.service.Cancel)
}

func (h *OrderHandler) transition(c *gin.Context, apply func(ctx context.Context, orderID id.ID) (*order.Order, error)) {
	orderID, ok := h.ParseID(c)
	if !ok {
		return
	}
	o, err := apply(c.Request.Context(), orderID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromOrder(o))
}
