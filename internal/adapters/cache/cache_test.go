package cache_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/formaly/tiergate/internal/adapters/cache"
	"github.com/formaly/tiergate/internal/domain/access"
	"github.com/formaly/tiergate/internal/domain/tier"
	. "github.com/smartystreets/goconvey/convey"
)

// fakeClock lets tests move time forward without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestDecisionCache(t *testing.T) {
	ctx := context.Background()
	allowed := access.Decision{Allowed: true}
	denied := access.Decision{Allowed: false, Reason: access.ReasonInsufficientTier, RequiredTier: tier.Premium}

	Convey("Given a decision cache with a fake clock", t, func() {
		clock := newFakeClock()
		c := cache.New(
			cache.WithTTL(5*time.Minute),
			cache.WithMaxEntries(4),
			cache.WithClock(clock.Now),
		)

		Convey("When storing and reading a decision", func() {
			c.Put(ctx, "user-1", "field-a", denied)

			d, ok := c.Get(ctx, "user-1", "field-a")

			Convey("Then the stored decision should come back", func() {
				So(ok, ShouldBeTrue)
				So(d.Allowed, ShouldBeFalse)
				So(d.Reason, ShouldEqual, access.ReasonInsufficientTier)
				So(d.RequiredTier, ShouldEqual, tier.Premium)
			})

			Convey("And a different key should miss", func() {
				_, ok := c.Get(ctx, "user-1", "field-b")
				So(ok, ShouldBeFalse)

				_, ok = c.Get(ctx, "user-2", "field-a")
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When an entry ages past the TTL", func() {
			c.Put(ctx, "user-1", "field-a", allowed)
			clock.Advance(5*time.Minute + time.Second)

			_, ok := c.Get(ctx, "user-1", "field-a")

			Convey("Then the read should miss and drop the entry", func() {
				So(ok, ShouldBeFalse)
				So(c.Len(), ShouldEqual, 0)
			})
		})

		Convey("When an entry is exactly at the TTL boundary", func() {
			c.Put(ctx, "user-1", "field-a", allowed)
			clock.Advance(5 * time.Minute)

			_, ok := c.Get(ctx, "user-1", "field-a")

			Convey("Then it should still be fresh", func() {
				So(ok, ShouldBeTrue)
			})
		})

		Convey("When inserting past the capacity bound with stale entries", func() {
			for i := 0; i < 4; i++ {
				c.Put(ctx, fmt.Sprintf("user-%d", i), "field-a", allowed)
			}
			clock.Advance(6 * time.Minute)
			c.Put(ctx, "user-new", "field-a", allowed)

			Convey("Then the sweep should leave only the new entry", func() {
				So(c.Len(), ShouldEqual, 1)
				_, ok := c.Get(ctx, "user-new", "field-a")
				So(ok, ShouldBeTrue)
			})
		})

		Convey("When inserting past the bound while everything is fresh", func() {
			for i := 0; i < 4; i++ {
				c.Put(ctx, fmt.Sprintf("user-%d", i), "field-a", allowed)
			}
			c.Put(ctx, "user-new", "field-a", allowed)

			Convey("Then nothing fresh should be evicted", func() {
				So(c.Len(), ShouldEqual, 5)
				for i := 0; i < 4; i++ {
					_, ok := c.Get(ctx, fmt.Sprintf("user-%d", i), "field-a")
					So(ok, ShouldBeTrue)
				}
			})
		})

		Convey("When overwriting an existing key at capacity", func() {
			for i := 0; i < 4; i++ {
				c.Put(ctx, fmt.Sprintf("user-%d", i), "field-a", allowed)
			}
			c.Put(ctx, "user-0", "field-a", denied)

			Convey("Then the overwrite should not trigger a sweep", func() {
				So(c.Len(), ShouldEqual, 4)
				d, ok := c.Get(ctx, "user-0", "field-a")
				So(ok, ShouldBeTrue)
				So(d.Allowed, ShouldBeFalse)
			})
		})
	})

	Convey("Given a populated decision cache", t, func() {
		clock := newFakeClock()
		c := cache.New(cache.WithClock(clock.Now))

		c.Put(ctx, "user-1", "field-a", allowed)
		c.Put(ctx, "user-1", "field-b", allowed)
		c.Put(ctx, "user-2", "field-a", allowed)
		c.Put(ctx, "user-2", "field-b", allowed)

		Convey("When invalidating a single pair", func() {
			c.Invalidate(ctx, "user-1", "field-a")

			Convey("Then only that pair should be gone", func() {
				So(c.Len(), ShouldEqual, 3)
				_, ok := c.Get(ctx, "user-1", "field-a")
				So(ok, ShouldBeFalse)
				_, ok = c.Get(ctx, "user-1", "field-b")
				So(ok, ShouldBeTrue)
			})
		})

		Convey("When invalidating a whole subject", func() {
			c.Invalidate(ctx, "user-1", "")

			Convey("Then the other subject should be untouched", func() {
				So(c.Len(), ShouldEqual, 2)
				_, ok := c.Get(ctx, "user-1", "field-b")
				So(ok, ShouldBeFalse)
				_, ok = c.Get(ctx, "user-2", "field-b")
				So(ok, ShouldBeTrue)
			})
		})

		Convey("When invalidating a field across subjects", func() {
			c.Invalidate(ctx, "", "field-a")

			Convey("Then that field should be gone for everyone", func() {
				So(c.Len(), ShouldEqual, 2)
				_, ok := c.Get(ctx, "user-1", "field-a")
				So(ok, ShouldBeFalse)
				_, ok = c.Get(ctx, "user-2", "field-a")
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When invalidating everything", func() {
			c.Invalidate(ctx, "", "")

			Convey("Then the cache should be empty", func() {
				So(c.Len(), ShouldEqual, 0)
			})
		})
	})

	Convey("Given concurrent readers and writers", t, func() {
		c := cache.New(cache.WithMaxEntries(64))

		Convey("When hammering the cache from many goroutines", func() {
			var wg sync.WaitGroup
			for g := 0; g < 8; g++ {
				wg.Add(1)
				go func(g int) {
					defer wg.Done()
					for i := 0; i < 200; i++ {
						key := fmt.Sprintf("user-%d", i%16)
						c.Put(ctx, key, "field-a", allowed)
						c.Get(ctx, key, "field-a")
						if i%50 == 0 {
							c.Invalidate(ctx, key, "")
						}
					}
				}(g)
			}
			wg.Wait()

			Convey("Then the cache should stay consistent", func() {
				So(c.Len(), ShouldBeLessThanOrEqualTo, 64)
			})
		})
	})
}
