// Package dedupe tracks invalidation event ids so retried subscription
// webhooks are applied at most once.
package dedupe

import (
	"context"
	"sync"
)

// Default deduper configuration constants.
const (
	defaultMaxSize = 50000
)

// Deduper records seen event ids.
type Deduper interface {
	// SeenAndRecord atomically checks whether id was seen and records it
	// if not. Returns true when id was already seen.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord removes an id, allowing a retry. Used when an event was
	// marked seen but could not be enqueued (backpressure).
	Unrecord(ctx context.Context, id string)

	// Size returns the number of ids currently tracked.
	Size() int64
}

// inMemoryDeduper keeps seen ids in a map plus a FIFO ring of the insertion
// order. When the bound is reached the oldest id is forgotten, which trades
// perfect idempotency on very old retries for constant memory.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]struct{}
	ring    []string
	head    int
	maxSize int
}

// Option applies a configuration option to the in-memory deduper.
type Option func(*inMemoryDeduper)

// WithMaxSize bounds the number of ids kept in memory.
func WithMaxSize(n int) Option {
	return func(d *inMemoryDeduper) {
		if n > 0 {
			d.maxSize = n
		}
	}
}

// NewInMemoryDeduper creates a bounded in-memory deduper.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]struct{}, d.maxSize)
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(ctx context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return true
	}

	if len(d.seen) >= d.maxSize {
		d.evictOldestLocked()
	}
	d.seen[id] = struct{}{}
	d.ring = append(d.ring, id)
	return false
}

func (d *inMemoryDeduper) Unrecord(ctx context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	// The ring keeps the stale slot; eviction skips ids no longer in the
	// map, so correctness only depends on the map.
	delete(d.seen, id)
}

func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.seen))
}

// evictOldestLocked forgets the oldest still-tracked id. Must be called
// with d.mu held.
func (d *inMemoryDeduper) evictOldestLocked() {
	for d.head < len(d.ring) {
		id := d.ring[d.head]
		d.head++
		if _, ok := d.seen[id]; ok {
			delete(d.seen, id)
			break
		}
	}
	// Compact once the consumed prefix dominates the ring.
	if d.head > d.maxSize {
		d.ring = append([]string(nil), d.ring[d.head:]...)
		d.head = 0
	}
}
