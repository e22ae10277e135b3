// Package main provides a CLI tool for seeding the database with demo orders.
package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"codeart/internal/config"
	"codeart/internal/core/numerator"
	"codeart/internal/domain/order"
	"codeart/internal/infrastructure/storage/postgres"
	"codeart/internal/infrastructure/storage/postgres/order_repo"
	"codeart/pkg/logger"
)

type seedOptions struct {
	configPath string
	count      int
	customers  int
	currency   string
	seed       uint64
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &seedOptions{}
	cmd := &cobra.Command{
		Use:           "seed",
		Short:         "Load demo orders into the postgres database",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to config file")
	flags.IntVarP(&opts.count, "count", "n", 1000, "number of orders to insert")
	flags.IntVar(&opts.customers, "customers", 50, "number of distinct customers")
	flags.StringVar(&opts.currency, "currency", "USD", "currency of the seeded orders")
	flags.Uint64Var(&opts.seed, "seed", 1, "random seed")
	return cmd
}

func run(ctx context.Context, opts *seedOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.count <= 0 || opts.customers <= 0 {
		return fmt.Errorf("count and customers must be positive")
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Database.Driver != "postgres" {
		return fmt.Errorf("seed requires the postgres driver, got %q", cfg.Database.Driver)
	}

	log, err := logger.New(cfg.LoggerConfig())
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer log.Sync()

	poolCfg := postgres.DefaultPoolConfig(cfg.Database.URL)
	poolCfg.AppName = "codeart-seed"
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	txManager := postgres.NewTxManager(pool)
	if err := postgres.Migrate(ctx, txManager); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Info("connected to database")

	orders := generateOrders(rand.New(rand.NewPCG(opts.seed, opts.seed)), opts.count, opts.customers, opts.currency)
	repo := order_repo.NewOrderRepo(txManager)

	// One cached range covers the whole batch; it is reserved inside the
	// transaction so a failed seed leaves the sequence untouched.
	numbers := numerator.New(postgres.NewSequence(txManager))
	numberOpts := &numerator.Options{Strategy: numerator.StrategyCached, RangeSize: int64(len(orders))}

	var inserted int64
	err = txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		for _, o := range orders {
			number, err := numbers.GetNextNumber(ctx, numerator.DefaultConfig(order.NumberPrefix), numberOpts, time.Now())
			if err != nil {
				return err
			}
			o.Number = number
		}
		n, err := repo.BulkInsert(ctx, orders)
		inserted = n
		return err
	})
	if err != nil {
		return fmt.Errorf("insert orders: %w", err)
	}

	log.Infow("seeded orders", "count", inserted, "customers", opts.customers)
	return nil
}

// generateOrders builds count orders spread over customers. Roughly a
// third are confirmed and a tenth cancelled.
func generateOrders(rnd *rand.Rand, count, customers int, currency string) []*order.Order {
	orders := make([]*order.Order, 0, count)
	for range count {
		customer := fmt.Sprintf("customer-%03d", rnd.IntN(customers)+1)
		total := decimal.New(rnd.Int64N(100_000)+100, -2)
		o := order.New(customer, currency, total)

		switch p := rnd.IntN(10); {
		case p == 0:
			o.Status = order.StatusCancelled
		case p <= 3:
			o.Status = order.StatusConfirmed
		}
		orders = append(orders, o)
	}
	return orders
}
