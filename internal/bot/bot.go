package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/cache"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"github.com/disgoorg/snowflake/v2"
	"github.com/redis/rueidis"
	"go.uber.org/zap"

	"github.com/towertools/tiersync/internal/database"
	"github.com/towertools/tiersync/internal/database/types"
	"github.com/towertools/tiersync/internal/reconcile"
	"github.com/towertools/tiersync/internal/roles"
	"github.com/towertools/tiersync/internal/setup/config"
	"github.com/towertools/tiersync/internal/status"
	"github.com/towertools/tiersync/internal/supervisor"
	"github.com/towertools/tiersync/internal/tier"
)

// Bot wires the gateway event path and the scheduled reconciler together
// around one Discord client.
type Bot struct {
	client     bot.Client
	db         database.Client
	catalog    *tier.Catalog
	queue      *supervisor.Queue
	debouncer  *supervisor.Debouncer
	worker     *supervisor.Worker
	reconciler *reconcile.Reconciler
	monitor    *status.Monitor
	reporter   *status.Reporter
	sync       config.SyncConfig
	logChannel snowflake.ID
	cancel     context.CancelFunc
	logger     *zap.Logger
}

// New assembles the bot and its Discord client. The gateway is not opened
// until Start.
func New(
	cfg *config.Config,
	db database.Client,
	statusClient rueidis.Client,
	summaryClient rueidis.Client,
	logger *zap.Logger,
) (*Bot, error) {
	guildID := snowflake.ID(cfg.Discord.GuildID)
	verifiedID := snowflake.ID(cfg.Discord.VerifiedRoleID)

	catalog := tier.FromConfig(&cfg.Discord.Catalog)
	logger.Info("Loaded tier catalog",
		zap.Int("leagues", len(catalog.Leagues())),
		zap.Int("managedRoles", len(catalog.ManagedRoles())))

	guard := roles.NewGuard()
	queue := supervisor.NewQueue(cfg.Sync.QueueCapacity, logger)
	recent := supervisor.NewRecentLog(100)

	b := &Bot{
		db:         db,
		catalog:    catalog,
		queue:      queue,
		sync:       cfg.Sync,
		logChannel: snowflake.ID(cfg.Discord.LogChannelID),
		logger:     logger.Named("bot"),
	}

	b.debouncer = supervisor.NewDebouncer(
		time.Duration(cfg.Sync.DebounceDelayMS)*time.Millisecond,
		verifiedID,
		catalog,
		b.enqueue,
		logger,
	)

	ready := supervisor.NewReadiness(func(ctx context.Context) error {
		return db.DB().PingContext(ctx)
	}, logger)

	listener := supervisor.NewListener(
		guildID, queue, b.debouncer, guard, db.Model().Player(), ready, logger,
	)

	client, err := disgo.New(cfg.Discord.Token,
		bot.WithGatewayConfigOpts(
			gateway.WithIntents(
				gateway.IntentGuilds,
				gateway.IntentGuildMembers,
			),
		),
		// Member caching is required for before/after role snapshots on
		// member update events.
		bot.WithCacheConfigOpts(
			cache.WithCaches(cache.FlagMembers),
		),
		bot.WithEventListeners(listener.Adapter(), &events.ListenerAdapter{
			OnGuildReady: func(e *events.GuildReady) {
				logger.Info("Guild ready", zap.Uint64("guildID", uint64(e.GuildID)))
			},
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord client: %w", err)
	}

	b.client = client

	svc := roles.NewDiscordService(client.Rest(), guildID)
	mutator := roles.NewMutator(svc, guard, catalog, logger)

	b.worker = supervisor.NewWorker(
		queue, recent, ready, svc, mutator,
		db.Model().Player(), db.Model().Tourney(), catalog, verifiedID,
		supervisor.WorkerSettings{
			PollInterval: time.Duration(cfg.Sync.PollIntervalMS) * time.Millisecond,
			Cooldown:     time.Duration(cfg.Sync.CooldownSeconds) * time.Second,
		},
		logger,
	)

	b.reconciler = reconcile.New(
		svc, mutator, db.Model().Player(), db.Model().Tourney(),
		catalog, verifiedID, cfg.Sync.ResultsLimit, logger,
	)

	b.monitor = status.NewMonitor(summaryClient, logger)
	b.reporter = status.NewReporter(statusClient, "bot", queue.Len, logger)

	return b, nil
}

// Start loads runtime settings, opens the gateway connection and launches the
// worker loop and the scheduled reconciler.
func (b *Bot) Start(ctx context.Context) error {
	settings, err := b.loadSettings(ctx)
	if err != nil {
		return err
	}

	if err := b.client.OpenGateway(ctx); err != nil {
		return fmt.Errorf("failed to open gateway: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel

	go b.worker.Run(runCtx)
	go b.runScheduledReconciler(runCtx, settings.BatchInterval(), settings.DryRun)

	b.reporter.Start(runCtx)

	b.logger.Info("Bot started",
		zap.Duration("batchInterval", settings.BatchInterval()),
		zap.Bool("dryRun", settings.DryRun))

	return nil
}

// Close gracefully shuts down the gateway connection and the background
// loops. An in-flight role mutation is allowed to finish before the client
// closes. Pending debounce windows are discarded; the next reconciliation
// pass covers them.
func (b *Bot) Close(ctx context.Context) {
	b.logger.Info("Closing bot")

	if b.cancel != nil {
		b.cancel()
		b.worker.Wait()
	}

	b.reporter.Stop()
	b.debouncer.Flush()
	b.client.Close(ctx)
}

// loadSettings reads the runtime-tunable settings row, seeding it from the
// static config on first run, and applies it to the event path.
func (b *Bot) loadSettings(ctx context.Context) (*types.BotSetting, error) {
	defaults := &types.BotSetting{
		ID:                   types.BotSettingID,
		CooldownSeconds:      b.sync.CooldownSeconds,
		DebounceDelayMS:      b.sync.DebounceDelayMS,
		QueueCapacity:        b.sync.QueueCapacity,
		PollIntervalMS:       b.sync.PollIntervalMS,
		BatchIntervalMinutes: b.sync.BatchIntervalMinutes,
		ResultsLimit:         b.sync.ResultsLimit,
	}

	settings, err := b.db.Model().Setting().Get(ctx, defaults)
	if err != nil {
		return nil, fmt.Errorf("failed to load bot settings: %w", err)
	}

	b.debouncer.SetDelay(settings.DebounceDelay())
	b.queue.SetCapacity(settings.QueueCapacity)
	b.worker.UpdateSettings(supervisor.WorkerSettings{
		PollInterval: settings.PollInterval(),
		Cooldown:     settings.CooldownWindow(),
		DryRun:       settings.DryRun,
	})

	return settings, nil
}

// runScheduledReconciler runs a full reconciliation pass on a fixed interval
// as the correction mechanism for anything the event path missed.
func (b *Bot) runScheduledReconciler(ctx context.Context, interval time.Duration, dryRun bool) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		b.reporter.UpdateTask("reconciling")

		summary, err := b.reconciler.Run(ctx, reconcile.Options{DryRun: dryRun})
		if err != nil {
			b.logger.Error("Scheduled reconciliation failed", zap.Error(err))
			b.reporter.SetHealthy(false)
			b.reporter.UpdateTask("")

			continue
		}

		b.reporter.SetHealthy(true)

		if err := b.monitor.SaveSummary(ctx, summary); err != nil {
			b.logger.Error("Failed to save reconciliation summary", zap.Error(err))
		}

		b.postSummary(summary)
		b.reporter.UpdateTask("")
	}
}

// postSummary sends the pass report to the configured log channel, if any.
func (b *Bot) postSummary(summary *reconcile.Summary) {
	if b.logChannel == 0 {
		return
	}

	_, err := b.client.Rest().CreateMessage(b.logChannel,
		discord.NewMessageCreateBuilder().SetContent(summary.Report()).Build())
	if err != nil {
		b.logger.Warn("Failed to post reconciliation summary", zap.Error(err))
	}
}

// enqueue is the debouncer's sink; full-queue rejections are logged and
// dropped.
func (b *Bot) enqueue(item supervisor.Item) {
	if err := b.queue.Enqueue(item); err != nil {
		b.logger.Warn("Failed to queue debounced update",
			zap.Uint64("memberID", uint64(item.MemberID)),
			zap.Error(err))
	}
}
