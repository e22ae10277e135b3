package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"codeart/internal/config"
	"codeart/internal/core/events"
	"codeart/internal/core/lock"
	"codeart/internal/core/numerator"
	"codeart/internal/core/tx"
	"codeart/internal/domain/order"
	"codeart/internal/infrastructure/cache"
	"codeart/internal/infrastructure/http/v1/handlers"
	"codeart/internal/infrastructure/storage/memory"
	"codeart/internal/infrastructure/storage/postgres"
	"codeart/internal/infrastructure/storage/postgres/order_repo"
	"codeart/pkg/logger"
)

// backend is the storage side of the process: transactions, locks and
// the order repository, plus everything subscribed to the event bus.
type backend struct {
	transactions tx.Factory
	locker       lock.Locker
	orders       order.Repository
	numbers      numerator.Generator
	bus          *events.Bus
	checks       map[string]handlers.Check
	stats        map[string]func() any
	closers      []func()
}

func (b *backend) info() map[string]any {
	out := make(map[string]any, len(b.stats))
	for name, fn := range b.stats {
		out[name] = fn()
	}
	return out
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackend(ctx context.Context, cfg *config.Config, log *logger.Logger) (*backend, error) {
	b := &backend{
		bus:    events.NewBus(),
		checks: make(map[string]handlers.Check),
		stats:  make(map[string]func() any),
	}

	switch cfg.Database.Driver {
	case "postgres":
		if err := b.openPostgres(ctx, cfg); err != nil {
			b.Close()
			return nil, err
		}
		log.Infow("postgres backend ready", "max_conns", cfg.Database.MaxConns)
	default:
		store := memory.NewStore()
		b.transactions = store
		b.locker = lock.NewMemory()
		b.orders = memory.NewOrderRepo(store)
		b.stats["memory"] = func() any { return map[string]int{"commits": store.Commits()} }
		log.Info("in-memory backend ready")
	}

	if cfg.Redis.Addr != "" {
		if err := b.openCache(ctx, cfg); err != nil {
			b.Close()
			return nil, err
		}
		log.Infow("order cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.TTL)
	}

	return b, nil
}

func (b *backend) openPostgres(ctx context.Context, cfg *config.Config) error {
	poolCfg := postgres.DefaultPoolConfig(cfg.Database.URL)
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.MinConns = cfg.Database.MinConns

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	b.closers = append(b.closers, pool.Close)

	txm := postgres.NewTxManager(pool)
	if err := postgres.Migrate(ctx, txm); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	auditLog, err := postgres.NewAuditLog(txm)
	if err != nil {
		return fmt.Errorf("audit log: %w", err)
	}
	auditLog.Subscribe(b.bus)
	postgres.NewOutboxPublisher(txm).Subscribe(b.bus)

	b.transactions = txm
	b.locker = postgres.NewAdvisoryLocker(lock.NewMemory())
	b.orders = order_repo.NewOrderRepo(txm)
	b.numbers = numerator.New(postgres.NewSequence(txm))
	b.checks["database"] = func(ctx context.Context) error { return pool.Ping(ctx) }
	b.stats["database"] = func() any { return pool.Stats() }
	return nil
}

func (b *backend) openCache(ctx context.Context, cfg *config.Config) error {
	client, err := cache.NewClient(ctx, cache.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		TTL:      cfg.Redis.TTL,
	})
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	b.closers = append(b.closers, func() { _ = client.Close() })

	orderCache := cache.NewOrderCache(client, cfg.Redis.TTL)
	orderCache.Subscribe(b.bus)
	b.orders = cache.NewRepository(b.orders, orderCache)
	b.checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	b.stats["redis"] = func() any { return poolStats(client) }
	return nil
}

func poolStats(client *redis.Client) map[string]uint32 {
	s := client.PoolStats()
	return map[string]uint32{
		"hits":       s.Hits,
		"misses":     s.Misses,
		"timeouts":   s.Timeouts,
		"totalConns": s.TotalConns,
		"idleConns":  s.IdleConns,
	}
}
