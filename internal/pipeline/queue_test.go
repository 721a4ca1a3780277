package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	archerrors "github.com/raoulx24/share-archiver/internal/errors"
	"github.com/raoulx24/share-archiver/internal/source"
)

func TestQueue_FIFOAndClose(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(3)

	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, q.Push(ctx, source.File(nil, name, 0, time.Time{}, source.Bytes(nil))))
	}
	assert.Equal(t, 3, q.Len())
	assert.Equal(t, 3, q.Cap())
	q.Close()

	var got []string
	for {
		e, ok, err := q.Pop(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, e.Name)
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestQueue_PushBlocksWhenFull(t *testing.T) {
	q := NewQueue(1)
	require.NoError(t, q.Push(context.Background(), source.Dir([]string{"a"})))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Push(ctx, source.Dir([]string{"b"}))

	assert.True(t, errors.Is(err, archerrors.ErrCanceled))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, 1, q.Len())
}

func TestQueue_PopCanceledWhileEmpty(t *testing.T) {
	q := NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok, err := q.Pop(ctx)
	assert.False(t, ok)
	assert.True(t, errors.Is(err, archerrors.ErrCanceled))
}
