package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"go.uber.org/zap"

	"github.com/towertools/tiersync/internal/database/models"
	"github.com/towertools/tiersync/internal/database/types"
	"github.com/towertools/tiersync/internal/roles"
	"github.com/towertools/tiersync/internal/tier"
)

// IdentityResolver looks up the player linked to a platform account.
type IdentityResolver interface {
	GetByDiscordID(ctx context.Context, discordID uint64) (*types.Player, error)
}

// TierDataSource provides a player's tournament rows for one league. Result
// queries already exclude moderation-suppressed game ids; IsSuppressed lets
// the worker tell a suppressed player apart from one who is merely unranked.
type TierDataSource interface {
	ResultsForGameIDs(ctx context.Context, league string, gameIDs []string) ([]*types.TourneyResult, error)
	IsSuppressed(ctx context.Context, gameID string) (bool, error)
}

// WorkerSettings are the runtime-tunable knobs of the worker loop.
type WorkerSettings struct {
	PollInterval time.Duration
	Cooldown     time.Duration
	DryRun       bool
}

// Worker drains the update queue serially. It is deliberately single-instance
// so that only one mutation decision is in flight at a time; two stale
// decisions can never race to set contradictory roles.
type Worker struct {
	queue      *Queue
	recent     *RecentLog
	ready      *Readiness
	svc        roles.RoleService
	mutator    *roles.Mutator
	identity   IdentityResolver
	results    TierDataSource
	catalog    *tier.Catalog
	verifiedID snowflake.ID
	settings   atomic.Pointer[WorkerSettings]
	done       chan struct{}
	logger     *zap.Logger
}

// NewWorker creates the queue worker.
func NewWorker(
	queue *Queue,
	recent *RecentLog,
	ready *Readiness,
	svc roles.RoleService,
	mutator *roles.Mutator,
	identity IdentityResolver,
	results TierDataSource,
	catalog *tier.Catalog,
	verifiedID snowflake.ID,
	settings WorkerSettings,
	logger *zap.Logger,
) *Worker {
	w := &Worker{
		queue:      queue,
		recent:     recent,
		ready:      ready,
		svc:        svc,
		mutator:    mutator,
		identity:   identity,
		results:    results,
		catalog:    catalog,
		verifiedID: verifiedID,
		done:       make(chan struct{}),
		logger:     logger.Named("worker"),
	}
	w.settings.Store(&settings)

	return w
}

// UpdateSettings swaps the poll interval and cooldown for subsequent cycles.
func (w *Worker) UpdateSettings(settings WorkerSettings) {
	w.settings.Store(&settings)
}

// Run polls the queue until the context is cancelled. An in-flight item is
// finished before the loop exits; Wait blocks until that happens.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	w.logger.Info("Update worker started")

	// Items already being processed run to completion even once shutdown is
	// requested. Every platform call carries its own timeout, so a detached
	// context cannot hang the loop.
	procCtx := context.WithoutCancel(ctx)

	for {
		interval := w.settings.Load().PollInterval

		select {
		case <-ctx.Done():
			w.logger.Info("Update worker stopped")
			return
		case <-time.After(interval):
		}

		for {
			item, ok := w.queue.Dequeue()
			if !ok {
				break
			}

			w.process(procCtx, item)

			if ctx.Err() != nil {
				w.logger.Info("Update worker stopped")
				return
			}
		}
	}
}

// Wait blocks until Run has returned.
func (w *Worker) Wait() {
	<-w.done
}

// ProcessOne dequeues and processes a single item. It exists for on-demand
// draining; Run is the normal entry point.
func (w *Worker) ProcessOne(ctx context.Context) bool {
	item, ok := w.queue.Dequeue()
	if !ok {
		return false
	}

	w.process(ctx, item)

	return true
}

// process applies one queued update. Errors are logged and the item dropped;
// the next triggering event or reconciliation pass is the recovery path.
func (w *Worker) process(ctx context.Context, item Item) {
	log := w.logger.With(
		zap.Uint64("memberID", uint64(item.MemberID)),
		zap.String("username", item.Username),
		zap.String("trigger", item.Trigger))

	settings := w.settings.Load()

	now := time.Now()
	if w.recent.Within(item.MemberID, settings.Cooldown, now) {
		log.Debug("Member within cooldown window, skipping")
		return
	}

	if !w.ready.Check(ctx) {
		// The item is dropped, not requeued. The next reconciliation
		// pass corrects anything missed while sources were down.
		return
	}

	player, err := w.identity.GetByDiscordID(ctx, uint64(item.MemberID))
	if err != nil {
		if errors.Is(err, models.ErrPlayerNotFound) {
			log.Debug("No approved player linked to member, skipping")
			return
		}

		log.Error("Failed to look up player", zap.Error(err))

		return
	}

	member, err := w.svc.Member(ctx, item.MemberID)
	if err != nil {
		log.Error("Failed to fetch member", zap.Error(err))
		return
	}

	// Linked players hold the verified role regardless of tier standing.
	// The refreshed snapshot carries the grant into the tier mutation below.
	if !settings.DryRun {
		member, err = w.mutator.EnsureRole(ctx, member, w.verifiedID)
		if err != nil {
			log.Warn("Failed to ensure verified role", zap.Error(err))
		}
	}

	rows, err := w.loadRows(ctx, player)
	if err != nil {
		log.Error("Failed to load tournament rows", zap.Error(err))
		return
	}

	var target snowflake.ID
	if res, ok := w.catalog.Resolve(rows); ok {
		target = res.Role.ID
	} else if w.suppressed(ctx, player) {
		// Roles still come off below; the log records the real reason.
		log.Info("Member excluded by moderation, clearing tier roles")
	}

	result, err := w.mutator.Apply(ctx, member, target, settings.DryRun)
	if err != nil {
		log.Error("Failed to apply role update", zap.Error(err))
		return
	}

	w.recent.Touch(item.MemberID, time.Now())

	if result.Changed {
		log.Info("Updated member tier roles",
			zap.Uint64("added", uint64(result.Added)),
			zap.Int("removed", len(result.Removed)))
	} else {
		log.Debug("Member tier roles already correct")
	}
}

// suppressed reports whether every game id linked to the player is excluded
// by moderation. Lookup errors count as not suppressed.
func (w *Worker) suppressed(ctx context.Context, player *types.Player) bool {
	if len(player.GameIDs) == 0 {
		return false
	}

	for _, gid := range player.GameIDs {
		hit, err := w.results.IsSuppressed(ctx, gid.GameID)
		if err != nil || !hit {
			return false
		}
	}

	return true
}

// loadRows gathers the player's rows for every league the catalog knows,
// most recent first, keyed by league name.
func (w *Worker) loadRows(ctx context.Context, player *types.Player) (map[string][]tier.Row, error) {
	gameIDs := make([]string, 0, len(player.GameIDs))
	for _, gid := range player.GameIDs {
		gameIDs = append(gameIDs, gid.GameID)
	}

	if len(gameIDs) == 0 {
		return nil, nil
	}

	rows := make(map[string][]tier.Row)

	for _, league := range w.catalog.Leagues() {
		results, err := w.results.ResultsForGameIDs(ctx, league.Name, gameIDs)
		if err != nil {
			return nil, err
		}

		for _, r := range results {
			rows[league.Name] = append(rows[league.Name], tier.Row{
				GameID:   r.GameID,
				Date:     r.Date,
				Wave:     r.Wave,
				Position: r.Position,
			})
		}
	}

	return rows, nil
}
