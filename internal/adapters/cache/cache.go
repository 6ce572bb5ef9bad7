// Package cache provides the bounded, time-expiring decision cache used to
// keep hot-path access checks off the derivation path.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/formaly/tiergate/internal/domain/access"
	"github.com/formaly/tiergate/pkg/metrics"
)

// Default cache configuration constants.
const (
	defaultTTL        = 5 * time.Minute
	defaultMaxEntries = 1000
)

type cacheKey struct {
	subject string
	field   string
}

type entry struct {
	decision  access.Decision
	writtenAt time.Time
}

// DecisionCache implements access.DecisionCache with a mutex-guarded map.
// Expiry is lazy: Get treats entries older than the TTL as absent, and a
// sweep removing every stale entry runs whenever an insert would push the
// map past its capacity bound. There is no background goroutine.
type DecisionCache struct {
	mu         sync.Mutex
	entries    map[cacheKey]entry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// New creates a decision cache with configuration options.
func New(opts ...Option) *DecisionCache {
	c := &DecisionCache{
		entries:    make(map[cacheKey]entry),
		ttl:        defaultTTL,
		maxEntries: defaultMaxEntries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached decision for (subjectKey, fieldID) if present and
// fresh.
func (c *DecisionCache) Get(ctx context.Context, subjectKey, fieldID string) (access.Decision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[cacheKey{subject: subjectKey, field: fieldID}]
	if !ok {
		metrics.RecordCacheMiss()
		return access.Decision{}, false
	}
	if c.now().Sub(e.writtenAt) > c.ttl {
		// Stale entries count as absent; they are reaped by the next sweep.
		delete(c.entries, cacheKey{subject: subjectKey, field: fieldID})
		metrics.RecordCacheExpired()
		metrics.RecordCacheMiss()
		return access.Decision{}, false
	}
	metrics.RecordCacheHit()
	return e.decision, true
}

// Put stores a decision. When the insert would exceed the capacity bound, a
// sweep first removes all expired entries. Eviction is expiry-based only;
// a fully fresh cache is allowed to grow past the bound until entries age.
func (c *DecisionCache) Put(ctx context.Context, subjectKey, fieldID string, d access.Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey{subject: subjectKey, field: fieldID}
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.sweepLocked()
	}
	c.entries[key] = entry{decision: d, writtenAt: c.now()}
	metrics.UpdateCacheSize(len(c.entries))
}

// Invalidate drops entries according to the wildcard semantics of
// access.DecisionCache.
func (c *DecisionCache) Invalidate(ctx context.Context, subjectKey, fieldID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case subjectKey == "" && fieldID == "":
		c.entries = make(map[cacheKey]entry)
	case fieldID == "":
		for k := range c.entries {
			if k.subject == subjectKey {
				delete(c.entries, k)
			}
		}
	case subjectKey == "":
		for k := range c.entries {
			if k.field == fieldID {
				delete(c.entries, k)
			}
		}
	default:
		delete(c.entries, cacheKey{subject: subjectKey, field: fieldID})
	}
	metrics.RecordCacheInvalidation()
	metrics.UpdateCacheSize(len(c.entries))
}

// Len returns the current number of cached entries, stale ones included.
func (c *DecisionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// sweepLocked removes every expired entry. Must be called with c.mu held.
func (c *DecisionCache) sweepLocked() {
	now := c.now()
	for k, e := range c.entries {
		if now.Sub(e.writtenAt) > c.ttl {
			delete(c.entries, k)
			metrics.RecordCacheExpired()
		}
	}
	metrics.RecordCacheSweep()
}
