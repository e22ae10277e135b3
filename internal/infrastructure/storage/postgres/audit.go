package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/klauspost/compress/zstd"

	appctx "codeart/internal/core/context"
	"codeart/internal/core/entity"
	"codeart/internal/core/events"
	"codeart/internal/core/id"
)

// CompressionAlgo specifies the compression algorithm used.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// AuditEntry represents a single audit log entry.
type AuditEntry struct {
	ID                id.ID           `db:"id"`
	EntityType        string          `db:"entity_type"`
	EntityID          id.ID           `db:"entity_id"`
	Action            string          `db:"action"`
	SessionID         string          `db:"session_id"`
	Subject           string          `db:"subject"`
	Changes           json.RawMessage `db:"changes"`
	ChangesCompressed []byte          `db:"changes_compressed"`
	CompressionAlgo   CompressionAlgo `db:"compression_algo"`
	CreatedAt         time.Time       `db:"created_at"`
}

// AuditLog records aggregate changes in sys_audit. Subscribed to the
// pre-commit events, it writes inside the same transaction as the change.
type AuditLog struct {
	txManager         *TxManager
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int // bytes
}

// NewAuditLog creates a new audit log.
func NewAuditLog(txManager *TxManager) (*AuditLog, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &AuditLog{
		txManager:         txManager,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: 10 * 1024,
	}, nil
}

// Subscribe registers the log on bus for every pre-commit event.
func (s *AuditLog) Subscribe(bus *events.Bus) {
	bus.SubscribeMany(s.Handle, events.PreCommitKinds...)
}

// Handle is an events.Handler.
func (s *AuditLog) Handle(ctx context.Context, kind events.Kind, target entity.AggregateRoot) error {
	entityType, entityID, err := entity.ParseKey(target.UniqueKey())
	if err != nil {
		return err
	}

	var changes json.RawMessage
	if kind != events.DeletePreCommit {
		if changes, err = json.Marshal(target); err != nil {
			return fmt.Errorf("marshal changes: %w", err)
		}
	}

	return s.Log(ctx, AuditEntry{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     events.ActionOf(kind),
		Changes:    changes,
	})
}

// prepare fills defaults and compresses large changes.
func (s *AuditLog) prepare(ctx context.Context, entry AuditEntry) AuditEntry {
	if session := appctx.GetSession(ctx); session != nil {
		if entry.SessionID == "" {
			entry.SessionID = session.SessionID
		}
		if entry.Subject == "" {
			entry.Subject = session.Subject
		}
	}
	if id.IsNil(entry.ID) {
		entry.ID = id.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	entry.CompressionAlgo = CompressionNone
	if len(entry.Changes) > s.compressThreshold {
		entry.ChangesCompressed = s.encoder.EncodeAll(entry.Changes, nil)
		entry.Changes = nil
		entry.CompressionAlgo = CompressionZstd
	}
	return entry
}

// decompress restores Changes of a compressed entry in place.
func (s *AuditLog) decompress(e *AuditEntry) error {
	if e.CompressionAlgo != CompressionZstd || len(e.ChangesCompressed) == 0 {
		return nil
	}
	decompressed, err := s.decoder.DecodeAll(e.ChangesCompressed, nil)
	if err != nil {
		return fmt.Errorf("decompress changes: %w", err)
	}
	e.Changes = decompressed
	e.ChangesCompressed = nil
	return nil
}

// Log records an audit entry on the querier of ctx.
func (s *AuditLog) Log(ctx context.Context, entry AuditEntry) error {
	entry = s.prepare(ctx, entry)

	sql := `
		INSERT INTO sys_audit (
			id, entity_type, entity_id, action, session_id, subject,
			changes, changes_compressed, compression_algo, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.txManager.GetQuerier(ctx).Exec(ctx, sql,
		entry.ID, entry.EntityType, entry.EntityID, entry.Action,
		entry.SessionID, entry.Subject,
		entry.Changes, entry.ChangesCompressed, entry.CompressionAlgo,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// History retrieves the newest audit entries of an aggregate.
func (s *AuditLog) History(ctx context.Context, entityType string, entityID id.ID, limit int) ([]AuditEntry, error) {
	sql := `
		SELECT id, entity_type, entity_id, action, session_id, subject,
			   changes, changes_compressed, compression_algo, created_at
		FROM sys_audit
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`

	var entries []AuditEntry
	if err := pgxscan.Select(ctx, s.txManager.GetQuerier(ctx), &entries, sql, entityType, entityID, limit); err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	for i := range entries {
		if err := s.decompress(&entries[i]); err != nil {
			return nil, err
		}
	}
	return entries, nil
}
