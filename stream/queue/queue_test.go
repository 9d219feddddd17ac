package queue_test

import (
	"encoding/json"
	"fmt"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lanepoint/kioskstream/logger"
	"github.com/lanepoint/kioskstream/stream/message"
	"github.com/lanepoint/kioskstream/stream/queue"
)

func TestQueue(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Offline Queue Suite")
}

func testMessage(n int) message.Message {
	return message.Message{
		Type:      message.InventoryUpdate,
		Data:      json.RawMessage(fmt.Sprintf(`{"seq":%d}`, n)),
		Timestamp: int64(1724400000 + n),
	}
}

// brokenStore fails every operation, simulating unhappy local storage
type brokenStore struct{}

func (b *brokenStore) Load() ([]queue.Entry, error) { return nil, fmt.Errorf("disk is sad") }

func (b *brokenStore) Save([]queue.Entry) error { return fmt.Errorf("disk is sad") }

var _ = Describe("OfflineQueue", func() {
	log := logger.MockLogger(GinkgoWriter)

	Context("Ordering", func() {
		When("Messages are enqueued and drained", func() {
			It("returns them in arrival order", func() {
				q := queue.New(log, 10, nil)
				for i := 0; i < 5; i++ {
					q.Enqueue(testMessage(i))
				}

				drained := q.Drain()
				Expect(drained).To(HaveLen(5))
				for i, entry := range drained {
					Expect(entry.Message.Timestamp).To(Equal(int64(1724400000+i)), "drain order should match enqueue order")
				}
			})

			It("leaves the queue empty afterwards", func() {
				q := queue.New(log, 10, nil)
				q.Enqueue(testMessage(0))

				q.Drain()
				Expect(q.Len()).To(Equal(0))
				Expect(q.Drain()).To(BeNil(), "draining an empty queue returns nothing")
			})
		})
	})

	Context("Capacity", func() {
		When("Enqueuing beyond capacity", func() {
			It("evicts the oldest entry", func() {
				// capacity 3, enqueue A,B,C,D: queue should hold B,C,D
				q := queue.New(log, 3, nil)
				for i := 0; i < 4; i++ {
					q.Enqueue(testMessage(i))
				}

				Expect(q.Len()).To(Equal(3))

				drained := q.Drain()
				Expect(drained[0].Message.Timestamp).To(Equal(int64(1724400001)))
				Expect(drained[1].Message.Timestamp).To(Equal(int64(1724400002)))
				Expect(drained[2].Message.Timestamp).To(Equal(int64(1724400003)))
			})
		})
	})

	Context("Persistence", func() {
		When("A queue with a file store is mutated", func() {
			It("recovers its entries after a restart", func() {
				dir := GinkgoT().TempDir()

				store, err := queue.NewFileStore(dir)
				Expect(err).ToNot(HaveOccurred())

				q := queue.New(log, 10, store)
				q.Enqueue(testMessage(0))
				q.Enqueue(testMessage(1))

				// A fresh queue over the same store stands in for a restarted
				// process
				store2, err := queue.NewFileStore(dir)
				Expect(err).ToNot(HaveOccurred())

				recovered := queue.New(log, 10, store2)
				Expect(recovered.Len()).To(Equal(2))

				drained := recovered.Drain()
				Expect(drained[0].Message.Timestamp).To(Equal(int64(1724400000)))
				Expect(drained[1].Message.Timestamp).To(Equal(int64(1724400001)))
			})

			It("persists the empty state after a drain", func() {
				dir := GinkgoT().TempDir()

				store, _ := queue.NewFileStore(dir)
				q := queue.New(log, 10, store)
				q.Enqueue(testMessage(0))
				q.Drain()

				store2, _ := queue.NewFileStore(dir)
				recovered := queue.New(log, 10, store2)
				Expect(recovered.Len()).To(Equal(0), "a drained queue should not resurrect its messages")
			})
		})

		When("The store is broken", func() {
			It("keeps operating in memory", func() {
				q := queue.New(log, 10, &brokenStore{})
				q.Enqueue(testMessage(0))
				q.Enqueue(testMessage(1))

				Expect(q.Len()).To(Equal(2))
				Expect(q.Drain()).To(HaveLen(2))
			})
		})
	})
})
