package tier

// Resolution is the single role a player should hold and the league whose
// table awarded it.
type Resolution struct {
	Role      Role
	League    string
	Threshold int
}

// Resolve walks the league hierarchy and returns the one role the player
// should hold, or ok=false when no league qualifies them for anything.
//
// Leagues are visited highest first and only those the player has rows in are
// evaluated; the first league that yields a role wins. Position leagues award
// the top role for winning the most recent event, otherwise the smallest
// satisfying position threshold; a participant who misses every threshold is
// still credited with the highest wave tier of the league below. Wave leagues
// award the largest satisfied wave threshold and, failing that, cascade the
// same max wave down the remaining wave tables until one matches or the
// hierarchy is exhausted.
func (c *Catalog) Resolve(rows map[string][]Row) (Resolution, bool) {
	for i, league := range c.leagues {
		playerRows := rows[league.Name]
		if len(playerRows) == 0 {
			continue
		}

		switch league.Kind {
		case KindPosition:
			return c.resolvePosition(i, playerRows)
		case KindWave:
			if res, ok := c.resolveWave(i, playerRows); ok {
				return res, true
			}
			// Cascade exhausted every lower table; other leagues the player
			// participated in may still qualify them.
		}
	}

	return Resolution{}, false
}

// resolvePosition evaluates the position league at index i. It always yields a
// result for a participant: either a position tier or the cross-league
// fallback to the next wave league's top tier.
func (c *Catalog) resolvePosition(i int, playerRows []Row) (Resolution, bool) {
	league := c.leagues[i]

	// Winner of the most recent event bypasses the tier table entirely
	if latest := mostRecent(playerRows); latest.Position == 1 && league.TopRole.ID != 0 {
		return Resolution{Role: league.TopRole, League: league.Name, Threshold: 1}, true
	}

	best := bestPosition(playerRows)

	for _, t := range league.Tiers {
		if best <= t.Threshold {
			return Resolution{Role: t.Role, League: league.Name, Threshold: t.Threshold}, true
		}
	}

	// Participation without a qualifying placement still earns the top tier of
	// the league below, independent of the player's own wave data there.
	for j := i + 1; j < len(c.leagues); j++ {
		if c.leagues[j].Kind != KindWave {
			continue
		}

		if top, ok := c.leagues[j].HighestTier(); ok {
			return Resolution{
				Role:      top.Role,
				League:    c.leagues[j].Name,
				Threshold: top.Threshold,
			}, true
		}
	}

	return Resolution{}, false
}

// resolveWave evaluates the wave league at index i, cascading the player's max
// wave from that league down the remaining wave tables. The loop is bounded by
// the hierarchy length; there is no recursion.
func (c *Catalog) resolveWave(i int, playerRows []Row) (Resolution, bool) {
	maxWave := 0
	for _, r := range playerRows {
		if r.Wave > maxWave {
			maxWave = r.Wave
		}
	}

	for j := i; j < len(c.leagues); j++ {
		candidate := c.leagues[j]
		if candidate.Kind != KindWave {
			continue
		}

		// Largest satisfied threshold wins within a league
		for k := len(candidate.Tiers) - 1; k >= 0; k-- {
			if maxWave >= candidate.Tiers[k].Threshold {
				return Resolution{
					Role:      candidate.Tiers[k].Role,
					League:    candidate.Name,
					Threshold: candidate.Tiers[k].Threshold,
				}, true
			}
		}
	}

	return Resolution{}, false
}

func mostRecent(rows []Row) Row {
	latest := rows[0]
	for _, r := range rows[1:] {
		if r.Date.After(latest.Date) {
			latest = r
		}
	}

	return latest
}

func bestPosition(rows []Row) int {
	best := rows[0].Position
	for _, r := range rows[1:] {
		if r.Position < best {
			best = r.Position
		}
	}

	return best
}
