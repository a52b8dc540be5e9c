package supervisor

import (
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// RecentLog is a fixed-capacity ring of recently processed members. Once the
// ring is full the oldest entry is overwritten, so the cooldown is bounded in
// memory no matter how many members churn through the queue.
type RecentLog struct {
	mu      sync.Mutex
	entries []recentEntry
	next    int
}

type recentEntry struct {
	id snowflake.ID
	at time.Time
}

// NewRecentLog creates a log remembering the last capacity processed members.
func NewRecentLog(capacity int) *RecentLog {
	return &RecentLog{
		entries: make([]recentEntry, 0, capacity),
	}
}

// Touch records that the member was processed at the given time.
func (r *RecentLog) Touch(id snowflake.ID, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.entries) < cap(r.entries) {
		r.entries = append(r.entries, recentEntry{id: id, at: at})
		return
	}

	r.entries[r.next] = recentEntry{id: id, at: at}
	r.next = (r.next + 1) % cap(r.entries)
}

// Within reports whether the member was processed inside the cooldown window
// ending at now. Evicted entries count as never processed.
func (r *RecentLog) Within(id snowflake.ID, window time.Duration, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.entries) - 1; i >= 0; i-- {
		entry := r.entries[(r.next+i)%len(r.entries)]
		if entry.id != id {
			continue
		}

		return now.Sub(entry.at) < window
	}

	return false
}
