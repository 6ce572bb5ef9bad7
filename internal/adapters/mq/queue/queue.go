// Package queue defines the contract for buffering cache-invalidation
// events between the intake endpoint and the workers that apply them.
package queue

import (
	"context"
	"sync"

	"github.com/formaly/tiergate/internal/domain/model"
	"github.com/formaly/tiergate/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultCapacity = 10000
)

// Event is the payload type flowing through the queue.
type Event = model.InvalidationEvent

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds an event. Returns false when the queue is full or
	// closed; the caller is expected to surface backpressure.
	Enqueue(ctx context.Context, e Event) bool

	// Dequeue returns a channel receiving events as they become
	// available. The channel closes when the queue closes.
	Dequeue(ctx context.Context) <-chan Event

	// Len returns the current number of buffered events.
	Len(ctx context.Context) int

	// Close stops intake and lets consumers drain.
	Close() error
}

// InMemoryQueue implements Queue with a buffered channel.
type InMemoryQueue struct {
	events   chan Event
	capacity int

	mu     sync.RWMutex
	closed bool
}

// Option applies a configuration option to the InMemoryQueue.
type Option func(*InMemoryQueue)

// WithCapacity bounds the number of buffered invalidation events.
func WithCapacity(n int) Option {
	return func(q *InMemoryQueue) {
		if n > 0 {
			q.capacity = n
		}
	}
}

// NewInMemoryQueue creates a bounded in-memory queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.events = make(chan Event, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// Enqueue adds an event without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, e Event) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return false
	}

	select {
	case q.events <- e:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.events))
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

// Dequeue returns a channel receiving events until the queue closes or ctx
// is done.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		for e := range q.events {
			select {
			case out <- e:
				metrics.RecordQueueDequeue()
				metrics.UpdateQueueSize(len(q.events))
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of buffered events.
func (q *InMemoryQueue) Len(ctx context.Context) int {
	return len(q.events)
}

// Close stops intake. Safe to call more than once.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.events)
	q.closed = true
	return nil
}
