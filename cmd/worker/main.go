// Package main is the entry point for the codeart outbox worker.
// It relays order events written by the API server to a handler.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"codeart/internal/config"
	"codeart/internal/infrastructure/storage/postgres"
	"codeart/pkg/logger"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to config file")
	batchSize := pflag.Int("batch-size", 100, "outbox messages claimed per poll")
	pollInterval := pflag.Duration("poll-interval", 500*time.Millisecond, "delay between outbox polls")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LoggerConfig())
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if cfg.Database.Driver != "postgres" {
		log.Fatalw("worker requires the postgres driver", "driver", cfg.Database.Driver)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("starting codeart outbox worker")

	poolCfg := postgres.DefaultPoolConfig(cfg.Database.URL)
	poolCfg.AppName = "codeart-worker"
	poolCfg.MaxConns = cfg.Database.MaxConns
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txManager := postgres.NewTxManager(pool)
	if err := postgres.Migrate(ctx, txManager); err != nil {
		log.Fatalw("failed to migrate", "error", err)
	}

	worker := NewOutboxWorker(pool, txManager, *batchSize, *pollInterval, log)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	wg.Wait()
	log.Info("worker stopped")
}

// OutboxWorker polls the outbox and dead-letters exhausted messages.
type OutboxWorker struct {
	pool         *postgres.Pool
	relay        *postgres.OutboxRelay
	pollInterval time.Duration
	log          *logger.Logger
}

func NewOutboxWorker(pool *postgres.Pool, txManager *postgres.TxManager, batchSize int, pollInterval time.Duration, log *logger.Logger) *OutboxWorker {
	w := &OutboxWorker{
		pool:         pool,
		pollInterval: pollInterval,
		log:          log.WithComponent("outbox"),
	}
	w.relay = postgres.NewOutboxRelay(txManager, batchSize, postgres.OutboxHandlerFunc(w.deliver))
	return w
}

// deliver is the sink for relayed events. Events are logged; a broker
// publisher plugs in here.
func (w *OutboxWorker) deliver(ctx context.Context, msg *postgres.OutboxMessage) error {
	w.log.Infow("order event",
		"event_type", msg.EventType,
		"aggregate_id", msg.AggregateID,
		"retry", msg.RetryCount,
		"payload", string(msg.Payload),
	)
	return nil
}

func (w *OutboxWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	cleanupTicker := time.NewTicker(1 * time.Hour)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		case <-cleanupTicker.C:
			w.cleanup(ctx)
		}
	}
}

// poll drains the outbox until a batch comes back short.
func (w *OutboxWorker) poll(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := w.relay.ProcessBatch(ctx)
		if err != nil {
			w.log.Errorw("outbox batch failed", "error", err)
			return
		}
		if n > 0 {
			w.log.Debugw("processed outbox batch", "count", n)
		}
		if n < w.relay.BatchSize() {
			return
		}
	}
}

func (w *OutboxWorker) cleanup(ctx context.Context) {
	moved, err := w.relay.MoveToDLQ(ctx)
	if err != nil {
		w.log.Errorw("failed to move outbox messages to DLQ", "error", err)
	} else if moved > 0 {
		w.log.Warnw("moved failed outbox messages to DLQ", "count", moved)
	}
	w.pool.LogStats(ctx)
}
