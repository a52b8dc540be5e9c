package supervisor

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"go.uber.org/zap"

	"github.com/towertools/tiersync/internal/tier"
)

// Debouncer coalesces bursts of role change notifications for the same member
// into a single evaluation. Each notification cancels the member's pending
// timer and schedules a fresh one, so the evaluation runs one debounce delay
// after the burst goes quiet.
//
// Each pending entry keeps the role snapshot from before the first
// notification of the burst and the snapshot after the most recent one. The
// evaluation compares those two, so intermediate flapping inside a burst is
// invisible.
type Debouncer struct {
	mu      sync.Mutex
	pending map[snowflake.ID]*pendingUpdate

	delay       atomic.Int64 // nanoseconds
	verifiedID  snowflake.ID
	catalog     *tier.Catalog
	onQualified func(Item)
	logger      *zap.Logger
}

type pendingUpdate struct {
	username    string
	initial     []snowflake.ID
	latest      []snowflake.ID
	windowStart time.Time
	timer       *time.Timer
	generation  uint64
}

// NewDebouncer creates a debouncer that calls onQualified for every burst
// whose before/after snapshots warrant a queued update.
func NewDebouncer(
	delay time.Duration,
	verifiedID snowflake.ID,
	catalog *tier.Catalog,
	onQualified func(Item),
	logger *zap.Logger,
) *Debouncer {
	d := &Debouncer{
		pending:     make(map[snowflake.ID]*pendingUpdate),
		verifiedID:  verifiedID,
		catalog:     catalog,
		onQualified: onQualified,
		logger:      logger.Named("debounce"),
	}
	d.delay.Store(int64(delay))

	return d
}

// SetDelay changes the debounce delay for bursts observed after the call.
func (d *Debouncer) SetDelay(delay time.Duration) {
	d.delay.Store(int64(delay))
}

// Observe records one role change notification. The before snapshot is only
// used when it opens a new burst; within a burst the initial snapshot is kept
// and only the latest one advances.
func (d *Debouncer) Observe(memberID snowflake.ID, username string, before, after []snowflake.ID) {
	delay := time.Duration(d.delay.Load())
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.pending[memberID]
	if !ok {
		p = &pendingUpdate{
			username:    username,
			initial:     slices.Clone(before),
			windowStart: now,
		}
		d.pending[memberID] = p
	} else {
		p.timer.Stop()

		// The window start only advances once the previous window has
		// aged past a full delay. Keeping it anchored bounds how long
		// a steady trickle of notifications can postpone evaluation.
		if now.Sub(p.windowStart) > delay {
			p.windowStart = now
		}
	}

	p.username = username
	p.latest = slices.Clone(after)
	p.generation++

	gen := p.generation
	remaining := max(p.windowStart.Add(delay).Sub(now), 0)
	p.timer = time.AfterFunc(remaining, func() {
		d.fire(memberID, gen)
	})
}

// Flush cancels all pending timers without evaluating them.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for id, p := range d.pending {
		p.timer.Stop()
		delete(d.pending, id)
	}
}

// Pending returns the number of members with an open debounce window.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.pending)
}

func (d *Debouncer) fire(memberID snowflake.ID, generation uint64) {
	d.mu.Lock()

	p, ok := d.pending[memberID]
	if !ok || p.generation != generation {
		// A newer notification replaced this timer between its expiry
		// and the lock acquisition.
		d.mu.Unlock()
		return
	}

	delete(d.pending, memberID)
	d.mu.Unlock()

	if !d.qualifies(p.initial, p.latest) {
		d.logger.Debug("Debounced burst needs no update",
			zap.Uint64("memberID", uint64(memberID)),
			zap.String("username", p.username))

		return
	}

	d.onQualified(Item{
		MemberID:   memberID,
		Username:   p.username,
		Trigger:    "role change",
		EnqueuedAt: time.Now(),
	})
}

// qualifies decides whether the net change across a burst warrants an update:
// the verified role flipped, or a verified member's managed roles differ
// between the first and last snapshot.
func (d *Debouncer) qualifies(initial, latest []snowflake.ID) bool {
	hadVerified := slices.Contains(initial, d.verifiedID)
	hasVerified := slices.Contains(latest, d.verifiedID)

	if hadVerified != hasVerified {
		return true
	}

	if !hasVerified {
		return false
	}

	return !slices.Equal(d.managedOf(initial), d.managedOf(latest))
}

func (d *Debouncer) managedOf(roleIDs []snowflake.ID) []snowflake.ID {
	var managed []snowflake.ID

	for _, id := range roleIDs {
		if d.catalog.IsManaged(id) {
			managed = append(managed, id)
		}
	}

	slices.Sort(managed)

	return managed
}
