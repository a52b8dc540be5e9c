package roles

import (
	"sync"

	"github.com/disgoorg/snowflake/v2"
)

// Guard tracks member ids the bot is currently mutating so the gateway
// notifications caused by those writes can be told apart from real ones.
// Injected into both the mutator and the event listener.
type Guard struct {
	mu  sync.Mutex
	ids map[snowflake.ID]struct{}
}

// NewGuard creates an empty guard set.
func NewGuard() *Guard {
	return &Guard{ids: make(map[snowflake.ID]struct{})}
}

// Add marks a member as being mutated by the bot.
func (g *Guard) Add(id snowflake.ID) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.ids[id] = struct{}{}
}

// Remove clears the mark once the bot's writes have completed.
func (g *Guard) Remove(id snowflake.ID) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.ids, id)
}

// Contains reports whether a member is currently being mutated.
func (g *Guard) Contains(id snowflake.ID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	_, ok := g.ids[id]

	return ok
}
