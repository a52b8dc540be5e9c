package reconcile

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// LeagueCounts accumulates per-league outcomes of one reconciliation pass.
type LeagueCounts struct {
	Changed   int `json:"changed"`
	Unchanged int `json:"unchanged"`
}

// Summary reports the outcome of one reconciliation pass over all approved
// players. Skipped counts players without a linked platform account; NotInGuild
// counts linked players whose account is no longer a guild member. RolesRemoved
// counts stale role removals keyed by the league that owned the role.
type Summary struct {
	StartedAt    time.Time                `json:"startedAt"`
	FinishedAt   time.Time                `json:"finishedAt"`
	DryRun       bool                     `json:"dryRun"`
	Players      int                      `json:"players"`
	Skipped      int                      `json:"skipped"`
	NotInGuild   int                      `json:"notInGuild"`
	Unranked     int                      `json:"unranked"`
	RolesRemoved map[string]int           `json:"rolesRemoved"`
	Leagues      map[string]*LeagueCounts `json:"leagues"`
	Errors       int                      `json:"errors"`
}

// NewSummary creates an empty summary starting now.
func NewSummary(dryRun bool) *Summary {
	return &Summary{
		StartedAt:    time.Now(),
		DryRun:       dryRun,
		RolesRemoved: make(map[string]int),
		Leagues:      make(map[string]*LeagueCounts),
	}
}

func (s *Summary) league(name string) *LeagueCounts {
	counts, ok := s.Leagues[name]
	if !ok {
		counts = &LeagueCounts{}
		s.Leagues[name] = counts
	}

	return counts
}

// Changed returns the total number of members whose roles changed.
func (s *Summary) Changed() int {
	var total int
	for _, counts := range s.Leagues {
		total += counts.Changed
	}

	return total
}

// RemovedTotal returns the number of stale roles removed across all leagues.
func (s *Summary) RemovedTotal() int {
	var total int
	for _, count := range s.RolesRemoved {
		total += count
	}

	return total
}

// Report renders the summary as a compact single-line report for logs and
// the status channel.
func (s *Summary) Report() string {
	var b strings.Builder

	if s.DryRun {
		b.WriteString("[dry run] ")
	}

	fmt.Fprintf(&b, "reconciled %d players in %s: %d changed, %d skipped, %d not in guild, %d errors",
		s.Players, s.FinishedAt.Sub(s.StartedAt).Round(time.Second),
		s.Changed(), s.Skipped, s.NotInGuild, s.Errors)

	names := make([]string, 0, len(s.Leagues))
	for name := range s.Leagues {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		counts := s.Leagues[name]
		fmt.Fprintf(&b, " | %s: %d/%d", name, counts.Changed, counts.Changed+counts.Unchanged)
	}

	if total := s.RemovedTotal(); total > 0 {
		removed := make([]string, 0, len(s.RolesRemoved))
		for name := range s.RolesRemoved {
			removed = append(removed, name)
		}

		sort.Strings(removed)

		parts := make([]string, 0, len(removed))
		for _, name := range removed {
			parts = append(parts, fmt.Sprintf("%s %d", name, s.RolesRemoved[name]))
		}

		fmt.Fprintf(&b, " | removed %d stale roles (%s)", total, strings.Join(parts, ", "))
	}

	return b.String()
}
