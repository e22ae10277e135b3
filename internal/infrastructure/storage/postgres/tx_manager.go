package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"codeart/internal/core/tx"
	"codeart/pkg/logger"
)

var tracer = otel.Tracer("codeart/tx")

// Compile-time checks.
var (
	_ tx.Factory = (*TxManager)(nil)
	_ tx.Runner  = (*TxManager)(nil)
	_ tx.Manager = (*txScope)(nil)
)

// TxOptions configures transaction behavior.
type TxOptions struct {
	// IsolationLevel: pgx.Serializable, pgx.RepeatableRead, pgx.ReadCommitted
	IsolationLevel pgx.TxIsoLevel

	// AccessMode: pgx.ReadWrite, pgx.ReadOnly
	AccessMode pgx.TxAccessMode

	// StatementTimeout protects against long-running queries (default 30s)
	StatementTimeout time.Duration

	// UseSavepoint creates savepoint for nested RunInTransaction calls
	UseSavepoint bool
}

// DefaultTxOptions returns production-safe defaults.
func DefaultTxOptions() TxOptions {
	return TxOptions{
		IsolationLevel:   pgx.ReadCommitted,
		AccessMode:       pgx.ReadWrite,
		StatementTimeout: 30 * time.Second,
		UseSavepoint:     false,
	}
}

// SerializableTxOptions for critical operations requiring serializable isolation.
func SerializableTxOptions() TxOptions {
	opts := DefaultTxOptions()
	opts.IsolationLevel = pgx.Serializable
	return opts
}

// TxManager opens transactions on a pool. Data contexts use it as a
// tx.Factory; infrastructure code outside of a data context uses
// RunInTransaction.
type TxManager struct {
	pool *pgxpool.Pool
	opts TxOptions
}

// NewTxManager creates a new transaction manager.
func NewTxManager(pool *Pool) *TxManager {
	return NewTxManagerFromRawPool(pool.Pool)
}

// NewTxManagerFromRawPool creates a new transaction manager from raw pgxpool.Pool.
func NewTxManagerFromRawPool(pool *pgxpool.Pool) *TxManager {
	return &TxManager{pool: pool, opts: DefaultTxOptions()}
}

// WithOptions returns a manager opening transactions with opts.
func (m *TxManager) WithOptions(opts TxOptions) *TxManager {
	return &TxManager{pool: m.pool, opts: opts}
}

// NewManager implements tx.Factory: one scope per data context transaction.
func (m *TxManager) NewManager() tx.Manager {
	return &txScope{pool: m.pool, opts: m.opts}
}

// txKey is the context key for active transaction.
type txKey struct{}

// Tx wraps pgx.Tx.
type Tx struct {
	pgx.Tx
}

// WithTx returns ctx carrying t. Storage calls made with it join t.
func WithTx(ctx context.Context, t pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, &Tx{Tx: t})
}

// GetTx returns the current transaction from context, or nil if none.
func GetTx(ctx context.Context) *Tx {
	if t, ok := ctx.Value(txKey{}).(*Tx); ok {
		return t
	}
	return nil
}

// GetTx returns the current transaction from context, or nil if none.
func (m *TxManager) GetTx(ctx context.Context) *Tx {
	return GetTx(ctx)
}

// Querier is satisfied by both pgx.Tx and pgxpool.Pool.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// GetQuerier returns the transaction in ctx, otherwise the pool.
// This allows repos to work both inside and outside transactions.
func (m *TxManager) GetQuerier(ctx context.Context) Querier {
	if t := GetTx(ctx); t != nil {
		return t.Tx
	}
	return m.pool
}

// RunInTransaction executes fn within a transaction.
// If a transaction already exists in ctx, it will be reused (nested transaction).
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.RunInTransactionWithOptions(ctx, m.opts, fn)
}

// RunInTransactionWithOptions executes fn with custom transaction options.
func (m *TxManager) RunInTransactionWithOptions(ctx context.Context, opts TxOptions, fn func(ctx context.Context) error) error {
	if existing := GetTx(ctx); existing != nil {
		return m.handleNestedTransaction(ctx, existing, opts, fn)
	}
	return tx.Run(ctx, tx.FactoryFunc(func() tx.Manager {
		return &txScope{pool: m.pool, opts: opts}
	}), fn)
}

// ReadOnly executes fn in a read-only transaction.
func (m *TxManager) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	opts := m.opts
	opts.AccessMode = pgx.ReadOnly
	return m.RunInTransactionWithOptions(ctx, opts, fn)
}

// handleNestedTransaction reuses the outer transaction, optionally behind a savepoint.
func (m *TxManager) handleNestedTransaction(ctx context.Context, existing *Tx, opts TxOptions, fn func(ctx context.Context) error) error {
	if !opts.UseSavepoint {
		return fn(ctx)
	}

	savepointName := fmt.Sprintf("sp_%d", time.Now().UnixNano())
	if _, err := existing.Exec(ctx, "SAVEPOINT "+savepointName); err != nil {
		return fmt.Errorf("create savepoint: %w", err)
	}

	if err := fn(ctx); err != nil {
		if _, rbErr := existing.Exec(ctx, "ROLLBACK TO SAVEPOINT "+savepointName); rbErr != nil {
			logger.Error(ctx, "rollback to savepoint failed", "savepoint", savepointName, "error", rbErr)
		}
		return err
	}

	if _, err := existing.Exec(ctx, "RELEASE SAVEPOINT "+savepointName); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

// txScope drives exactly one pgx transaction.
type txScope struct {
	pool *pgxpool.Pool
	opts TxOptions

	tx        pgx.Tx
	span      trace.Span
	committed bool
}

// Begin opens the transaction and returns a context carrying it.
func (s *txScope) Begin(ctx context.Context) (context.Context, error) {
	if s.tx != nil {
		return nil, errors.New("transaction already begun")
	}

	ctx, s.span = tracer.Start(ctx, "transaction",
		trace.WithAttributes(
			attribute.String("tx.isolation", string(s.opts.IsolationLevel)),
			attribute.String("tx.access_mode", string(s.opts.AccessMode)),
		))

	pgxTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   s.opts.IsolationLevel,
		AccessMode: s.opts.AccessMode,
	})
	if err != nil {
		s.endSpan(err)
		return nil, fmt.Errorf("begin transaction: %w", err)
	}

	// Set statement timeout for protection against runaway queries
	if s.opts.StatementTimeout > 0 {
		_, err = pgxTx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = '%dms'", s.opts.StatementTimeout.Milliseconds()))
		if err != nil {
			_ = pgxTx.Rollback(context.Background())
			s.endSpan(err)
			return nil, fmt.Errorf("set statement_timeout: %w", err)
		}
	}

	s.tx = pgxTx
	return WithTx(ctx, pgxTx), nil
}

func (s *txScope) Commit(ctx context.Context) error {
	if s.tx == nil {
		return errors.New("commit without begin")
	}
	if err := s.tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	s.committed = true
	return nil
}

// Close rolls back unless Commit succeeded. Safe to call more than once.
func (s *txScope) Close(ctx context.Context) error {
	if s.tx == nil {
		return nil
	}
	var err error
	if !s.committed {
		// Background context so the rollback completes even if ctx was cancelled.
		if rbErr := s.tx.Rollback(context.Background()); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			err = fmt.Errorf("rollback transaction: %w", rbErr)
		}
	}
	s.tx = nil
	s.endSpan(err)
	return err
}

func (s *txScope) endSpan(err error) {
	if s.span == nil {
		return
	}
	s.span.SetAttributes(attribute.Bool("tx.committed", s.committed))
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	}
	s.span.End()
	s.span = nil
}
