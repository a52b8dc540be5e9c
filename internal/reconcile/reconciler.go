package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/towertools/tiersync/internal/database/types"
	"github.com/towertools/tiersync/internal/roles"
	"github.com/towertools/tiersync/internal/tier"
)

// PlayerLister provides the approved players to reconcile.
type PlayerLister interface {
	GetApproved(ctx context.Context, limit int, discordIDs []uint64) ([]*types.Player, error)
}

// LeagueResults provides bulk result tables per league, already filtered for
// moderation suppressions.
type LeagueResults interface {
	ResultsForLeague(ctx context.Context, league string, limit int) ([]*types.TourneyResult, error)
}

// Options scope a reconciliation pass.
type Options struct {
	DryRun     bool
	Limit      int
	DiscordIDs []uint64
}

// Reconciler sweeps every approved player, resolves their tier and corrects
// their platform roles. It runs on a coarse schedule independent of the event
// path and repairs anything the event path missed.
type Reconciler struct {
	svc        roles.RoleService
	mutator    *roles.Mutator
	players    PlayerLister
	results    LeagueResults
	catalog    *tier.Catalog
	verifiedID snowflake.ID
	limit      int
	logger     *zap.Logger
}

// New creates a reconciler. limit caps how many rows are loaded per league
// table in one pass.
func New(
	svc roles.RoleService,
	mutator *roles.Mutator,
	players PlayerLister,
	results LeagueResults,
	catalog *tier.Catalog,
	verifiedID snowflake.ID,
	limit int,
	logger *zap.Logger,
) *Reconciler {
	return &Reconciler{
		svc:        svc,
		mutator:    mutator,
		players:    players,
		results:    results,
		catalog:    catalog,
		verifiedID: verifiedID,
		limit:      limit,
		logger:     logger.Named("reconcile"),
	}
}

// Run executes one reconciliation pass and returns its summary.
func (r *Reconciler) Run(ctx context.Context, opts Options) (*Summary, error) {
	summary := NewSummary(opts.DryRun)

	tables, err := r.loadTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load league tables: %w", err)
	}

	members, err := r.svc.Members(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list guild members: %w", err)
	}

	memberByID := make(map[snowflake.ID]roles.Member, len(members))
	for _, m := range members {
		memberByID[m.ID] = m
	}

	players, err := r.players.GetApproved(ctx, opts.Limit, opts.DiscordIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list approved players: %w", err)
	}

	for _, player := range players {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		summary.Players++
		r.reconcilePlayer(ctx, player, tables, memberByID, opts, summary)
	}

	summary.FinishedAt = time.Now()

	r.logger.Info("Reconciliation pass finished", zap.String("report", summary.Report()))

	return summary, nil
}

// reconcilePlayer resolves and applies one player's tier role. Errors are
// counted and logged; the pass continues with the remaining players.
func (r *Reconciler) reconcilePlayer(
	ctx context.Context,
	player *types.Player,
	tables map[string]map[string][]tier.Row,
	memberByID map[snowflake.ID]roles.Member,
	opts Options,
	summary *Summary,
) {
	if player.DiscordID == 0 {
		summary.Skipped++
		return
	}

	member, ok := memberByID[snowflake.ID(player.DiscordID)]
	if !ok {
		summary.NotInGuild++
		return
	}

	// Linked players carry the verified role regardless of tier standing.
	// The refreshed snapshot carries the grant into the tier mutation below.
	if !opts.DryRun {
		updated, err := r.mutator.EnsureRole(ctx, member, r.verifiedID)
		if err != nil {
			r.logger.Warn("Failed to ensure verified role",
				zap.Uint64("memberID", uint64(member.ID)),
				zap.Error(err))
		}

		member = updated
	}

	rows := r.rowsForPlayer(player, tables)

	res, ranked := r.catalog.Resolve(rows)

	var target snowflake.ID
	if ranked {
		target = res.Role.ID
	}

	result, err := r.mutator.Apply(ctx, member, target, opts.DryRun)
	if err != nil {
		summary.Errors++
		r.logger.Warn("Failed to reconcile member",
			zap.Uint64("memberID", uint64(member.ID)),
			zap.String("username", member.Username),
			zap.Error(err))

		return
	}

	for _, id := range result.Removed {
		if league, ok := r.catalog.LeagueFor(id); ok {
			summary.RolesRemoved[league]++
		}
	}

	if !ranked {
		summary.Unranked++
		return
	}

	counts := summary.league(res.League)
	if result.Changed {
		counts.Changed++
	} else {
		counts.Unchanged++
	}
}

// loadTables fetches every league's result table concurrently and groups the
// rows by game id. Row order within a game id follows the table order, most
// recent first.
func (r *Reconciler) loadTables(ctx context.Context) (map[string]map[string][]tier.Row, error) {
	var (
		p      = pool.New().WithContext(ctx)
		mu     sync.Mutex
		tables = make(map[string]map[string][]tier.Row)
	)

	for _, league := range r.catalog.Leagues() {
		p.Go(func(ctx context.Context) error {
			results, err := r.results.ResultsForLeague(ctx, league.Name, r.limit)
			if err != nil {
				return fmt.Errorf("league %s: %w", league.Name, err)
			}

			byGame := make(map[string][]tier.Row)
			for _, res := range results {
				byGame[res.GameID] = append(byGame[res.GameID], tier.Row{
					GameID:   res.GameID,
					Date:     res.Date,
					Wave:     res.Wave,
					Position: res.Position,
				})
			}

			mu.Lock()
			tables[league.Name] = byGame
			mu.Unlock()

			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return nil, err
	}

	return tables, nil
}

// rowsForPlayer collects the player's rows from the preloaded tables across
// all linked game ids, keyed by league.
func (r *Reconciler) rowsForPlayer(
	player *types.Player, tables map[string]map[string][]tier.Row,
) map[string][]tier.Row {
	rows := make(map[string][]tier.Row)

	for league, byGame := range tables {
		for _, gid := range player.GameIDs {
			if playerRows, ok := byGame[gid.GameID]; ok {
				rows[league] = append(rows[league], playerRows...)
			}
		}
	}

	return rows
}
