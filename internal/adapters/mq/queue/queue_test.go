package queue_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/formaly/tiergate/internal/adapters/mq/queue"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryQueue(t *testing.T) {
	ctx := context.Background()

	Convey("Given an in-memory invalidation queue", t, func() {
		Convey("When enqueueing within capacity", func() {
			q := queue.NewInMemoryQueue(queue.WithCapacity(4))
			defer q.Close()

			ok := q.Enqueue(ctx, queue.Event{EventID: "inv-1", SubjectID: "u1"})

			Convey("Then the enqueue should succeed and be countable", func() {
				So(ok, ShouldBeTrue)
				So(q.Len(ctx), ShouldEqual, 1)
			})
		})

		Convey("When the queue is full", func() {
			q := queue.NewInMemoryQueue(queue.WithCapacity(2))
			defer q.Close()

			So(q.Enqueue(ctx, queue.Event{EventID: "inv-1"}), ShouldBeTrue)
			So(q.Enqueue(ctx, queue.Event{EventID: "inv-2"}), ShouldBeTrue)
			ok := q.Enqueue(ctx, queue.Event{EventID: "inv-3"})

			Convey("Then the overflow enqueue should report backpressure", func() {
				So(ok, ShouldBeFalse)
				So(q.Len(ctx), ShouldEqual, 2)
			})
		})

		Convey("When dequeuing buffered events", func() {
			q := queue.NewInMemoryQueue(queue.WithCapacity(8))

			for i := 0; i < 3; i++ {
				So(q.Enqueue(ctx, queue.Event{EventID: fmt.Sprintf("inv-%d", i), SubjectID: "u1"}), ShouldBeTrue)
			}
			q.Close()

			Convey("Then events should arrive in order and the channel should close", func() {
				var got []string
				for e := range q.Dequeue(ctx) {
					got = append(got, e.EventID)
				}
				So(got, ShouldResemble, []string{"inv-0", "inv-1", "inv-2"})
			})
		})

		Convey("When the queue is closed", func() {
			q := queue.NewInMemoryQueue(queue.WithCapacity(2))
			So(q.Close(), ShouldBeNil)

			Convey("Then further enqueues should be refused", func() {
				So(q.Enqueue(ctx, queue.Event{EventID: "late"}), ShouldBeFalse)
			})

			Convey("Then closing again should be safe", func() {
				So(q.Close(), ShouldBeNil)
			})
		})

		Convey("When the consumer context is cancelled", func() {
			q := queue.NewInMemoryQueue(queue.WithCapacity(2))

			consumerCtx, cancel := context.WithCancel(context.Background())
			out := q.Dequeue(consumerCtx)

			So(q.Enqueue(ctx, queue.Event{EventID: "inv-1"}), ShouldBeTrue)
			cancel()
			q.Close()

			Convey("Then the output channel should close", func() {
				closed := make(chan struct{})
				go func() {
					for range out {
						// drain anything in flight
					}
					close(closed)
				}()

				select {
				case <-closed:
					So(true, ShouldBeTrue)
				case <-time.After(time.Second):
					So("timeout waiting for channel close", ShouldBeEmpty)
				}
			})
		})
	})
}
