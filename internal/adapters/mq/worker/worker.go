// Package worker applies queued cache-invalidation events.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/formaly/tiergate/internal/domain/model"
	"github.com/formaly/tiergate/pkg/logger"
	"github.com/formaly/tiergate/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 2 // multiplier for runtime.NumCPU()
	workerShutdownTimeout   = 5 * time.Second
)

// Event is what workers read off the queue.
type Event = model.InvalidationEvent

// Invalidator drops decision-cache entries. Implemented by the decision
// cache adapter.
type Invalidator interface {
	Invalidate(ctx context.Context, subjectKey, fieldID string)
}

// Queue defines how workers receive events.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Event
}

// Worker drains invalidation events until stopped.
type Worker struct {
	queue       Queue
	invalidator Invalidator
	name        string

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// Option applies a configuration option to a Worker.
type Option func(*Worker)

// WithName sets the worker's name for logging.
func WithName(name string) Option {
	return func(w *Worker) {
		if name != "" {
			w.name = name
			w.logger = logger.Get().Named(name)
		}
	}
}

// NewWorker creates a worker with configuration options.
func NewWorker(queue Queue, invalidator Invalidator, opts ...Option) *Worker {
	w := &Worker{
		queue:       queue,
		invalidator: invalidator,
		name:        "invalidation-worker",
		shutdown:    make(chan struct{}),
		done:        make(chan struct{}),
		logger:      logger.Get().Named("invalidation-worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run starts the worker loop.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	events := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			w.apply(ctx, e)
		}
	}
}

// Shutdown stops the worker, waiting for the loop to exit.
func (w *Worker) Shutdown(ctx context.Context) error {
	close(w.shutdown)
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// apply invalidates cache entries for one event.
func (w *Worker) apply(ctx context.Context, e Event) {
	start := time.Now()

	w.invalidator.Invalidate(ctx, e.SubjectID, e.FieldID)

	metrics.RecordInvalidationApplied()
	metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	w.logger.Debug(ctx, "invalidation applied",
		logger.String("eventID", e.EventID),
		logger.String("subjectID", e.SubjectID),
		logger.String("fieldID", e.FieldID),
	)
}

// Pool manages a set of invalidation workers.
type Pool struct {
	workers []*Worker

	shutdown chan struct{}
	logger   logger.Logger
}

// NewPool creates a worker pool. A non-positive count defaults to a small
// multiple of the CPU count.
func NewPool(workerCount int, queue Queue, invalidator Invalidator) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	p := &Pool{
		workers:  make([]*Worker, workerCount),
		shutdown: make(chan struct{}),
		logger:   logger.Get().Named("invalidation-pool"),
	}
	for i := range p.workers {
		p.workers[i] = NewWorker(queue, invalidator, WithName("invalidation-worker-"+strconv.Itoa(i)))
	}

	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Start launches every worker in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Stop signals all workers and waits briefly for each to exit.
func (p *Pool) Stop() {
	close(p.shutdown)
	for _, w := range p.workers {
		select {
		case <-w.shutdown:
		default:
			close(w.shutdown)
		}
	}
	for _, w := range p.workers {
		select {
		case <-w.done:
		case <-time.After(workerShutdownTimeout):
		}
	}
}
