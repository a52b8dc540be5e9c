package supervisor

import (
	"errors"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"go.uber.org/zap"
)

// ErrQueueFull is returned when the update queue is at capacity. The caller
// drops the request; the next triggering event or reconciliation pass is the
// recovery path.
var ErrQueueFull = errors.New("update queue is full")

// Item is one member waiting for a role update decision.
type Item struct {
	MemberID   snowflake.ID
	Username   string
	Trigger    string
	EnqueuedAt time.Time
}

// Queue is a bounded in-process FIFO of members awaiting updates. Enqueueing
// into a full queue is rejected rather than blocking; this is the explicit
// backpressure point of the event path.
type Queue struct {
	mu       sync.Mutex
	items    []Item
	capacity int
	logger   *zap.Logger
}

// NewQueue creates a queue holding at most capacity items.
func NewQueue(capacity int, logger *zap.Logger) *Queue {
	return &Queue{
		capacity: capacity,
		logger:   logger.Named("queue"),
	}
}

// Enqueue appends an item, rejecting with ErrQueueFull at capacity.
func (q *Queue) Enqueue(item Item) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) >= q.capacity {
		q.logger.Warn("Update queue full, dropping request",
			zap.Uint64("memberID", uint64(item.MemberID)),
			zap.String("trigger", item.Trigger))

		return ErrQueueFull
	}

	q.items = append(q.items, item)

	return nil
}

// SetCapacity adjusts the bound for subsequent enqueues. Items already
// queued above a smaller bound are kept and drained normally.
func (q *Queue) SetCapacity(capacity int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.capacity = capacity
}

// Dequeue removes and returns the oldest item.
func (q *Queue) Dequeue() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Item{}, false
	}

	item := q.items[0]
	q.items = q.items[1:]

	return item, true
}

// Len returns the number of waiting items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}
