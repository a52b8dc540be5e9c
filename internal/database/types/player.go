package types

import (
	"time"

	"github.com/uptrace/bun"
)

// Player is an internal player identity maintained by the identity resolution
// pipeline. A player may have many in-game ids and at most one linked Discord
// account.
type Player struct {
	bun.BaseModel `bun:"table:players"`

	ID        int64     `bun:"id,pk,autoincrement"`
	Name      string    `bun:"name,notnull"`
	DiscordID uint64    `bun:"discord_id,nullzero"`
	Approved  bool      `bun:"approved,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`

	GameIDs []*PlayerGameID `bun:"rel:has-many,join:id=player_id"`
}

// PlayerGameID links an in-game id to a player. Game ids are globally unique.
type PlayerGameID struct {
	bun.BaseModel `bun:"table:player_game_ids"`

	GameID   string `bun:"game_id,pk"`
	PlayerID int64  `bun:"player_id,notnull"`
	Primary  bool   `bun:"is_primary,notnull"`
}
