package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"codeart/internal/core/datacontext"
	"codeart/internal/core/entity"
	"codeart/internal/core/events"
	"codeart/internal/core/id"
	"codeart/internal/domain"
	"codeart/internal/domain/order"
	"codeart/pkg/logger"
)

const keyPrefix = "codeart:"

// DefaultTTL bounds how long a cached order may be served.
const DefaultTTL = 5 * time.Minute

// OrderCache stores orders as JSON under their UniqueKey.
type OrderCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewOrderCache creates a cache on client. ttl <= 0 means DefaultTTL.
func NewOrderCache(client *redis.Client, ttl time.Duration) *OrderCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &OrderCache{client: client, ttl: ttl}
}

func cacheKey(uniqueKey string) string {
	return keyPrefix + uniqueKey
}

// Get returns the cached order, or nil on a miss.
func (c *OrderCache) Get(ctx context.Context, orderID id.ID) (*order.Order, error) {
	raw, err := c.client.Get(ctx, cacheKey(entity.Key(order.EntityName, orderID))).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}

	o := &order.Order{}
	if err := json.Unmarshal(raw, o); err != nil {
		return nil, fmt.Errorf("cache decode: %w", err)
	}
	return o, nil
}

// Set stores o for the cache TTL.
func (c *OrderCache) Set(ctx context.Context, o *order.Order) error {
	raw, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	if err := c.client.Set(ctx, cacheKey(o.UniqueKey()), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Invalidate drops the entry for uniqueKey.
func (c *OrderCache) Invalidate(ctx context.Context, uniqueKey string) error {
	if err := c.client.Del(ctx, cacheKey(uniqueKey)).Err(); err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}

// Subscribe evicts entries once updates and deletes are committed.
func (c *OrderCache) Subscribe(bus *events.Bus) {
	bus.SubscribeMany(c.Handle, events.UpdateCommitted, events.DeleteCommitted)
}

// Handle is an events.Handler. Eviction failures are logged, not
// returned: the change is already durable.
func (c *OrderCache) Handle(ctx context.Context, kind events.Kind, target entity.AggregateRoot) error {
	if err := c.Invalidate(ctx, target.UniqueKey()); err != nil {
		logger.Warn(ctx, "order cache eviction failed", "key", target.UniqueKey(), "error", err)
	}
	return nil
}

// Repository is a read-through order.Repository. Only LevelNone reads made
// outside a transaction touch the cache; every other read must see storage.
type Repository struct {
	order.Repository
	cache *OrderCache
}

var _ order.Repository = (*Repository)(nil)

// NewRepository wraps next with cache.
func NewRepository(next order.Repository, cache *OrderCache) *Repository {
	return &Repository{Repository: next, cache: cache}
}

func (r *Repository) GetByID(ctx context.Context, orderID id.ID, level datacontext.QueryLevel) (*order.Order, error) {
	// Inside a transaction the row may carry uncommitted writes, and a
	// cached entry may predate the transaction's own writes.
	if level != datacontext.LevelNone || inTransaction(ctx) {
		return r.Repository.GetByID(ctx, orderID, level)
	}

	if cached, err := r.cache.Get(ctx, orderID); err != nil {
		logger.Warn(ctx, "order cache read failed", "id", orderID, "error", err)
	} else if cached != nil {
		return cached, nil
	}

	o, err := r.Repository.GetByID(ctx, orderID, level)
	if err != nil {
		return nil, err
	}
	if err := r.cache.Set(ctx, o); err != nil {
		logger.Warn(ctx, "order cache write failed", "key", o.UniqueKey(), "error", err)
	}
	return o, nil
}

func inTransaction(ctx context.Context) bool {
	dc, err := datacontext.FromContext(ctx)
	return err == nil && dc.IsInTransaction()
}

// List always reads storage; pages are not cached.
func (r *Repository) List(ctx context.Context, f domain.ListFilter, level datacontext.QueryLevel) (datacontext.Page[*order.Order], error) {
	return r.Repository.List(ctx, f, level)
}
