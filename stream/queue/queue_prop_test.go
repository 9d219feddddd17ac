package queue_test

import (
	"io"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/lanepoint/kioskstream/logger"
	"github.com/lanepoint/kioskstream/stream/queue"
)

func TestQueueBoundProperty(t *testing.T) {
	log := logger.MockLogger(io.Discard)

	properties := gopter.NewProperties(nil)

	properties.Property("queue length never exceeds capacity", prop.ForAll(
		func(capacity int, count int) bool {
			q := queue.New(log, capacity, nil)
			for i := 0; i < count; i++ {
				q.Enqueue(testMessage(i))
				if q.Len() > capacity {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 20),
		gen.IntRange(0, 100),
	))

	properties.Property("a full queue holds the most recent entries", prop.ForAll(
		func(capacity int, count int) bool {
			q := queue.New(log, capacity, nil)
			for i := 0; i < count; i++ {
				q.Enqueue(testMessage(i))
			}

			drained := q.Drain()
			if count <= capacity {
				return len(drained) == count
			}

			// The oldest (count - capacity) entries were evicted
			for i, entry := range drained {
				want := int64(1724400000 + count - capacity + i)
				if entry.Message.Timestamp != want {
					return false
				}
			}
			return len(drained) == capacity
		},
		gen.IntRange(1, 20),
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
