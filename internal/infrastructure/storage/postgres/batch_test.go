package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelCopyFromSource(t *testing.T) {
	rows := make(chan []any, 2)
	rows <- []any{1, "a"}
	rows <- []any{2, "b"}
	close(rows)

	src := &channelCopyFromSource{rows: rows}
	var got [][]any
	for src.Next() {
		v, err := src.Values()
		require.NoError(t, err)
		got = append(got, v)
	}

	assert.Equal(t, [][]any{{1, "a"}, {2, "b"}}, got)
	assert.NoError(t, src.Err())
}
