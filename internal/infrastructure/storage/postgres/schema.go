package postgres

import (
	"context"
	"fmt"
)

// schema is applied by Migrate. Statements are idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS orders (
		id         UUID PRIMARY KEY,
		version    INT NOT NULL DEFAULT 1,
		customer   TEXT NOT NULL,
		total      NUMERIC(18, 2) NOT NULL,
		currency   CHAR(3) NOT NULL,
		status     TEXT NOT NULL,
		note       TEXT,
		number     TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS orders_status_idx ON orders (status)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS orders_number_idx ON orders (number) WHERE number <> ''`,

	`CREATE TABLE IF NOT EXISTS sys_sequences (
		key         TEXT PRIMARY KEY,
		current_val BIGINT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS sys_audit (
		id                 UUID PRIMARY KEY,
		entity_type        TEXT NOT NULL,
		entity_id          UUID NOT NULL,
		action             TEXT NOT NULL,
		session_id         TEXT NOT NULL DEFAULT '',
		subject            TEXT NOT NULL DEFAULT '',
		changes            JSONB,
		changes_compressed BYTEA,
		compression_algo   TEXT NOT NULL DEFAULT 'none',
		created_at         TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS sys_audit_entity_idx ON sys_audit (entity_type, entity_id, created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS sys_outbox (
		id             UUID PRIMARY KEY,
		aggregate_type TEXT NOT NULL,
		aggregate_id   UUID NOT NULL,
		event_type     TEXT NOT NULL,
		payload        JSONB NOT NULL,
		status         TEXT NOT NULL,
		retry_count    INT NOT NULL DEFAULT 0,
		last_error     TEXT,
		next_retry_at  TIMESTAMPTZ,
		created_at     TIMESTAMPTZ NOT NULL,
		published_at   TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS sys_outbox_pending_idx ON sys_outbox (status, created_at)`,

	`CREATE TABLE IF NOT EXISTS sys_outbox_dlq (
		LIKE sys_outbox,
		failed_at      TIMESTAMPTZ NOT NULL,
		failure_reason TEXT
	)`,
}

// Migrate creates the tables this service needs in one transaction.
func Migrate(ctx context.Context, m *TxManager) error {
	return m.RunInTransaction(ctx, func(ctx context.Context) error {
		q := m.GetQuerier(ctx)
		for i, stmt := range schema {
			if _, err := q.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("migrate step %d: %w", i, err)
			}
		}
		return nil
	})
}
