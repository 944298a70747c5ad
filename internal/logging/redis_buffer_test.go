package logging

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBuffer(t *testing.T, maxSize int64) *RedisBuffer {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cfg := DefaultRedisBufferConfig()
	cfg.MaxSize = maxSize
	return NewRedisBuffer(client, cfg)
}

func TestRedisBufferEnqueueTrims(t *testing.T) {
	ctx := context.Background()
	rb := newTestBuffer(t, 3)

	for i := 0; i < 5; i++ {
		require.NoError(t, rb.Enqueue(ctx, &ChatRecord{RequestID: fmt.Sprintf("req-%d", i), Status: StatusCompleted}))
	}

	size, err := rb.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), size)

	records, err := rb.Peek(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "req-2", records[0].RequestID, "oldest entries are dropped")
	assert.Equal(t, "req-4", records[2].RequestID)
}

func TestRedisBufferDequeue(t *testing.T) {
	ctx := context.Background()
	rb := newTestBuffer(t, 0)

	for i := 0; i < 4; i++ {
		require.NoError(t, rb.Enqueue(ctx, &ChatRecord{RequestID: fmt.Sprintf("req-%d", i)}))
	}

	batch, err := rb.Dequeue(ctx, 3)
	require.NoError(t, err)
	require.Len(t, batch, 3)
	assert.Equal(t, "req-0", batch[0].RequestID)

	rest, err := rb.Dequeue(ctx, 0)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "req-3", rest[0].RequestID)

	empty, err := rb.Dequeue(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRedisBufferClear(t *testing.T) {
	ctx := context.Background()
	rb := newTestBuffer(t, 10)

	require.NoError(t, rb.Enqueue(ctx, &ChatRecord{RequestID: "x"}))
	require.NoError(t, rb.Clear(ctx))

	size, err := rb.Size(ctx)
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestRedisBufferIsSink(t *testing.T) {
	var _ Sink = newTestBuffer(t, 1)
}
