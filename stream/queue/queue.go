/*
The queue package holds validated messages that arrive while the kiosk is
judged offline, so nothing the backend pushed is lost before the consumer can
see it. The queue is bounded (oldest entry evicted first), preserves arrival
order, and snapshots itself through its Store after every mutation so an
abrupt restart picks up where it left off.
*/
package queue

import (
	"sync"
	"time"

	"github.com/lanepoint/kioskstream/logger"
	"github.com/lanepoint/kioskstream/stream/message"
)

type Entry struct {
	Message  message.Message `json:"message"`
	QueuedAt time.Time       `json:"queuedAt"`
}

// Store is the durable local persistence surface behind the queue. It is read
// once at startup and written on every mutation.
type Store interface {
	Load() ([]Entry, error)
	Save(entries []Entry) error
}

type OfflineQueue struct {
	logger   *logger.Logger
	capacity int
	store    Store

	// Guards entries; the ingestion path appends while the drain path empties
	lock    sync.Mutex
	entries []Entry
}

// New builds a queue with the given capacity, recovering any undrained
// entries from a prior run. A failure to load is logged and the queue starts
// empty; the kiosk should keep selling even if local storage is unhappy.
func New(logger *logger.Logger, capacity int, store Store) *OfflineQueue {
	q := &OfflineQueue{
		logger:   logger,
		capacity: capacity,
		store:    store,
	}

	if store != nil {
		if entries, err := store.Load(); err != nil {
			q.logger.Error(&PersistenceError{Operation: "load", InnerErr: err})
		} else if len(entries) > 0 {
			q.logger.Infof("Recovered %d undrained messages from a previous run", len(entries))
			q.entries = entries
		}
	}

	return q
}

// Enqueue appends a message, evicting the oldest entry if the queue is full
func (q *OfflineQueue) Enqueue(msg message.Message) {
	q.lock.Lock()
	defer q.lock.Unlock()

	if len(q.entries) >= q.capacity {
		q.logger.Infof("Offline queue is full (capacity %d), evicting the oldest message", q.capacity)
		q.entries = q.entries[1:]
	}

	q.entries = append(q.entries, Entry{
		Message:  msg,
		QueuedAt: time.Now(),
	})

	q.persist()
}

// Drain empties the queue and returns its entries in the order they arrived
func (q *OfflineQueue) Drain() []Entry {
	q.lock.Lock()
	defer q.lock.Unlock()

	if len(q.entries) == 0 {
		return nil
	}

	drained := q.entries
	q.entries = nil

	q.persist()
	return drained
}

func (q *OfflineQueue) Len() int {
	q.lock.Lock()
	defer q.lock.Unlock()

	return len(q.entries)
}

// Snapshot returns a copy of the current entries without draining them
func (q *OfflineQueue) Snapshot() []Entry {
	q.lock.Lock()
	defer q.lock.Unlock()

	snapshot := make([]Entry, len(q.entries))
	copy(snapshot, q.entries)
	return snapshot
}

// persist writes the current entries through the store. Failures are logged
// and otherwise ignored; the queue keeps operating in memory. Callers must
// hold the lock.
func (q *OfflineQueue) persist() {
	if q.store == nil {
		return
	}

	if err := q.store.Save(q.entries); err != nil {
		q.logger.Error(&PersistenceError{Operation: "save", InnerErr: err})
	}
}
