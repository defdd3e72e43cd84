package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

func TestQueueBackpressureDrops(t *testing.T) {
	q := NewQueue(2)
	require.NoError(t, q.TryPublish(schema.RawEvent{TsMs: 1}))
	require.NoError(t, q.TryPublish(schema.RawEvent{TsMs: 2}))
	require.ErrorIs(t, q.TryPublish(schema.RawEvent{TsMs: 3}), ErrQueueFull)
	require.Equal(t, uint64(1), q.Dropped())
}

func TestQueueDrainsInOrder(t *testing.T) {
	q := NewQueue(8)
	for i := int64(1); i <= 5; i++ {
		require.NoError(t, q.TryPublish(schema.RawEvent{TsMs: i}))
	}
	q.Close()
	require.ErrorIs(t, q.TryPublish(schema.RawEvent{TsMs: 6}), ErrQueueClosed)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	var got []int64
	q.Run(ctx, func(ev schema.RawEvent) {
		got = append(got, ev.TsMs)
	})
	require.Equal(t, []int64{1, 2, 3, 4, 5}, got)
}
