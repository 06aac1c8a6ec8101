// Package queue holds the bounded in-memory backlog of route pairs waiting
// to be resolved into the route cache.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/photodispatch/internal/domain/model"
	"github.com/okian/photodispatch/pkg/metrics"
)

const (
	defaultQueueCapacity = 10000
	defaultBufferSize    = 10000
)

// Pair is the payload flowing through the queue.
type Pair = model.RoutePair

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a pair. It returns false when the queue is full or closed.
	Enqueue(ctx context.Context, p Pair) bool

	// Dequeue returns a channel that yields pairs until the queue is closed.
	Dequeue(ctx context.Context) <-chan Pair

	// Len returns the current backlog.
	Len(ctx context.Context) int

	// Close stops accepting pairs and closes the dequeue channel once drained.
	Close() error

	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	pairs      chan Pair
	capacity   int
	bufferSize int
	mu         sync.RWMutex
	closed     bool
}

// NewInMemoryQueue creates a new in-memory queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity:   defaultQueueCapacity,
		bufferSize: defaultBufferSize,
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.bufferSize < q.capacity {
		q.bufferSize = q.capacity
	}
	q.pairs = make(chan Pair, q.bufferSize)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0.0)
	return q
}

// Enqueue adds a pair to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, p Pair) bool { //nolint:gocritic // hugeParam: Pair is passed by value for channel semantics
	start := time.Now()
	defer func() {
		metrics.RecordQueueProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return false
	}
	if len(q.pairs) >= q.capacity {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "capacity_exceeded")
		return false
	}

	select {
	case q.pairs <- p:
		metrics.RecordQueueEnqueue()
		q.observe()
		return true
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return false
	default:
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return false
	}
}

// EnqueueAll enqueues pairs in order, waiting for room between attempts
// until ctx is done. It returns how many were accepted.
func (q *InMemoryQueue) EnqueueAll(ctx context.Context, pairs []Pair, retry time.Duration) (int, error) {
	for i, p := range pairs {
		for !q.Enqueue(ctx, p) {
			if q.IsClosed() {
				return i, ErrClosed
			}
			select {
			case <-ctx.Done():
				return i, fmt.Errorf("%w: %w", ErrFull, ctx.Err())
			case <-time.After(retry):
			}
		}
	}
	return len(pairs), nil
}

// Dequeue returns a channel that will receive pairs as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Pair {
	out := make(chan Pair)
	go func() {
		defer close(out)
		for p := range q.pairs {
			select {
			case out <- p:
				metrics.RecordQueueDequeue()
				q.observe()
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued pairs.
func (q *InMemoryQueue) Len(_ context.Context) int {
	return q.observe()
}

func (q *InMemoryQueue) observe() int {
	size := len(q.pairs)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
	return size
}

// Close gracefully shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.pairs)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
