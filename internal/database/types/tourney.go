package types

import (
	"time"

	"github.com/uptrace/bun"
)

// TourneyResult is an immutable tournament result row written by the external
// ingestion pipeline. One row per player per event.
type TourneyResult struct {
	bun.BaseModel `bun:"table:tourney_results"`

	ID       int64     `bun:"id,pk,autoincrement"`
	GameID   string    `bun:"game_id,notnull"`
	League   string    `bun:"league,notnull"`
	Date     time.Time `bun:"date,notnull"`
	Wave     int       `bun:"wave,notnull"`
	Position int       `bun:"position,notnull"`
}

// Suppression marks a game id as excluded from role assignment by moderation.
type Suppression struct {
	bun.BaseModel `bun:"table:suppressions"`

	GameID    string    `bun:"game_id,pk"`
	Active    bool      `bun:"active,notnull"`
	Reason    string    `bun:"reason"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}
