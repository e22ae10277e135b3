package tx

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ctxKey struct{}

type recordingManager struct {
	calls     []string
	commitErr error
	closeErr  error
}

func (m *recordingManager) Begin(ctx context.Context) (context.Context, error) {
	m.calls = append(m.calls, "begin")
	return context.WithValue(ctx, ctxKey{}, "tx"), nil
}

func (m *recordingManager) Commit(ctx context.Context) error {
	m.calls = append(m.calls, "commit")
	return m.commitErr
}

func (m *recordingManager) Close(ctx context.Context) error {
	m.calls = append(m.calls, "close")
	return m.closeErr
}

func TestRunCommitsAndCloses(t *testing.T) {
	m := &recordingManager{}
	var seen any

	err := Run(context.Background(), FactoryFunc(func() Manager { return m }), func(ctx context.Context) error {
		seen = ctx.Value(ctxKey{})
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, "tx", seen, "fn must run on the transaction context")
	assert.Equal(t, []string{"begin", "commit", "close"}, m.calls)
}

func TestRunSkipsCommitOnError(t *testing.T) {
	m := &recordingManager{}
	boom := errors.New("boom")

	err := Run(context.Background(), FactoryFunc(func() Manager { return m }), func(ctx context.Context) error {
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"begin", "close"}, m.calls)
}

func TestRunJoinsCloseError(t *testing.T) {
	closeErr := errors.New("close failed")
	m := &recordingManager{closeErr: closeErr}

	err := Run(context.Background(), FactoryFunc(func() Manager { return m }), func(ctx context.Context) error {
		return nil
	})

	assert.ErrorIs(t, err, closeErr)
}
