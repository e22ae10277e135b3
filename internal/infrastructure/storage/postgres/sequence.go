package postgres

import (
	"context"
	"fmt"

	"codeart/internal/core/numerator"
)

// Sequence stores numerator sequences in sys_sequences. Inside a
// transaction the update joins it, so a rollback returns the number.
type Sequence struct {
	txManager *TxManager
}

var _ numerator.Sequence = (*Sequence)(nil)

func NewSequence(txManager *TxManager) *Sequence {
	return &Sequence{txManager: txManager}
}

func (s *Sequence) Advance(ctx context.Context, key string, delta int64) (int64, error) {
	var value int64
	err := s.txManager.GetQuerier(ctx).QueryRow(ctx, `
		INSERT INTO sys_sequences (key, current_val)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET current_val = sys_sequences.current_val + $2
		RETURNING current_val
	`, key, delta).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("advance sequence %s: %w", key, err)
	}
	return value, nil
}

func (s *Sequence) Set(ctx context.Context, key string, value int64) error {
	_, err := s.txManager.GetQuerier(ctx).Exec(ctx, `
		INSERT INTO sys_sequences (key, current_val)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET current_val = $2
	`, key, value)
	if err != nil {
		return fmt.Errorf("set sequence %s: %w", key, err)
	}
	return nil
}
