// Package bus decouples feed goroutines from the single-threaded gate:
// producers publish raw events without blocking, one consumer drains.
package bus

import (
	"context"
	"sync/atomic"

	"main/internal/schema"

	"github.com/yanun0323/errors"
)

var (
	ErrQueueFull   = errors.New("event queue full")
	ErrQueueClosed = errors.New("event queue closed")
)

// Queue is a bounded, non-blocking raw event queue.
type Queue struct {
	ch      chan schema.RawEvent
	closed  uint32
	dropped uint64
}

// NewQueue allocates a queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan schema.RawEvent, capacity)}
}

// TryPublish enqueues an event without blocking. A full queue drops the
// event; stale market data is worthless by the time the queue drains.
func (q *Queue) TryPublish(ev schema.RawEvent) error {
	if atomic.LoadUint32(&q.closed) != 0 {
		return ErrQueueClosed
	}
	select {
	case q.ch <- ev:
		return nil
	default:
		atomic.AddUint64(&q.dropped, 1)
		return ErrQueueFull
	}
}

// Dropped returns the number of events lost to backpressure.
func (q *Queue) Dropped() uint64 {
	return atomic.LoadUint64(&q.dropped)
}

// Close stops the queue from accepting new events.
func (q *Queue) Close() {
	if atomic.CompareAndSwapUint32(&q.closed, 0, 1) {
		close(q.ch)
	}
}

// Run consumes events until the context is done or the queue is closed.
func (q *Queue) Run(ctx context.Context, handler func(schema.RawEvent)) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-q.ch:
			if !ok {
				return
			}
			handler(ev)
		}
	}
}
