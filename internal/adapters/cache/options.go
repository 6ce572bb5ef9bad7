package cache

import "time"

// Option applies a configuration option to the DecisionCache.
type Option func(*DecisionCache)

// WithTTL sets how long an entry stays fresh. Non-positive values are
// ignored.
func WithTTL(ttl time.Duration) Option {
	return func(c *DecisionCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithMaxEntries sets the capacity bound that triggers a sweep of expired
// entries on insert.
func WithMaxEntries(n int) Option {
	return func(c *DecisionCache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// WithClock injects a time source so tests can age entries without
// touching wall-clock time.
func WithClock(now func() time.Time) Option {
	return func(c *DecisionCache) {
		if now != nil {
			c.now = now
		}
	}
}
