package tier

import (
	"sort"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/towertools/tiersync/internal/setup/config"
)

// Kind distinguishes how a league qualifies its players.
type Kind int

const (
	// KindPosition leagues qualify by tournament placement; lower is better.
	KindPosition Kind = iota
	// KindWave leagues qualify by the highest wave reached; higher is better.
	KindWave
)

// Role is a managed Discord role with its cached display name.
type Role struct {
	ID   snowflake.ID
	Name string
}

// Tier maps a threshold to the role it awards.
type Tier struct {
	Threshold int
	Role      Role
}

// League is one bracket of the hierarchy with its ordered tier table.
type League struct {
	Name string
	Kind Kind
	// TopRole is awarded for winning the most recent event. Position leagues only.
	TopRole Role
	// Tiers sorted by ascending threshold.
	Tiers []Tier
}

// HighestTier returns the tier with the largest threshold.
func (l League) HighestTier() (Tier, bool) {
	if len(l.Tiers) == 0 {
		return Tier{}, false
	}

	return l.Tiers[len(l.Tiers)-1], true
}

// Row is one tournament result fact for a player.
type Row struct {
	GameID   string
	Date     time.Time
	Wave     int
	Position int
}

// Catalog is the static league hierarchy, ordered from most to least
// prestigious. It owns the full set of managed role ids.
type Catalog struct {
	leagues []League
	managed map[snowflake.ID]string // role id -> league that owns it
}

// NewCatalog builds a catalog from leagues given in hierarchy order.
// Tier tables are normalized to ascending threshold order.
func NewCatalog(leagues []League) *Catalog {
	managed := make(map[snowflake.ID]string)

	for i := range leagues {
		sort.Slice(leagues[i].Tiers, func(a, b int) bool {
			return leagues[i].Tiers[a].Threshold < leagues[i].Tiers[b].Threshold
		})

		for _, t := range leagues[i].Tiers {
			managed[t.Role.ID] = leagues[i].Name
		}

		if leagues[i].TopRole.ID != 0 {
			managed[leagues[i].TopRole.ID] = leagues[i].Name
		}
	}

	return &Catalog{
		leagues: leagues,
		managed: managed,
	}
}

// FromConfig builds the catalog from the configured role tables.
func FromConfig(cfg *config.CatalogConfig) *Catalog {
	leagues := make([]League, 0, len(cfg.Waves)+1)

	position := League{
		Name: cfg.Position.Name,
		Kind: KindPosition,
		TopRole: Role{
			ID:   snowflake.ID(cfg.Position.TopRole),
			Name: cfg.Position.TopRoleName,
		},
		Tiers: tiersFromConfig(cfg.Position.Tiers),
	}
	leagues = append(leagues, position)

	for _, w := range cfg.Waves {
		leagues = append(leagues, League{
			Name:  w.Name,
			Kind:  KindWave,
			Tiers: tiersFromConfig(w.Tiers),
		})
	}

	return NewCatalog(leagues)
}

func tiersFromConfig(tiers []config.TierConfig) []Tier {
	out := make([]Tier, 0, len(tiers))
	for _, t := range tiers {
		out = append(out, Tier{
			Threshold: t.Threshold,
			Role: Role{
				ID:   snowflake.ID(t.Role),
				Name: t.Name,
			},
		})
	}

	return out
}

// Leagues returns the hierarchy in order, highest first.
func (c *Catalog) Leagues() []League {
	return c.leagues
}

// IsManaged reports whether a role id belongs to this catalog.
func (c *Catalog) IsManaged(id snowflake.ID) bool {
	_, ok := c.managed[id]
	return ok
}

// LeagueFor returns the league owning a managed role id.
func (c *Catalog) LeagueFor(id snowflake.ID) (string, bool) {
	league, ok := c.managed[id]
	return league, ok
}

// ManagedRoles returns every role id this catalog owns.
func (c *Catalog) ManagedRoles() []snowflake.ID {
	ids := make([]snowflake.ID, 0, len(c.managed))
	for id := range c.managed {
		ids = append(ids, id)
	}

	return ids
}
