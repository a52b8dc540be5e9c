package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/towertools/tiersync/internal/reconcile"
	"github.com/towertools/tiersync/internal/roles"
	"github.com/towertools/tiersync/internal/setup"
	"github.com/towertools/tiersync/internal/status"
	"github.com/towertools/tiersync/internal/tier"
)

const (
	// ReconcileLogDir specifies where reconcile run logs are stored.
	ReconcileLogDir = "logs/reconcile_logs"
)

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	app := &cli.Command{
		Name:  "reconcile",
		Usage: "Run a tier role reconciliation pass over all approved players",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Compute and report changes without applying them",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"l"},
				Usage:   "Maximum number of players to reconcile (0 = all)",
			},
			&cli.StringSliceFlag{
				Name:  "discord-id",
				Usage: "Restrict the pass to specific Discord account ids",
			},
		},
		Action: runReconcile,
	}

	return app.Run(context.Background(), os.Args)
}

func runReconcile(ctx context.Context, c *cli.Command) error {
	discordIDs, err := parseDiscordIDs(c.StringSlice("discord-id"))
	if err != nil {
		return err
	}

	app, err := setup.InitializeApp(ctx, ReconcileLogDir)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup(ctx)

	cfg := app.Config
	catalog := tier.FromConfig(&cfg.Discord.Catalog)
	guard := roles.NewGuard()

	svc := roles.NewDiscordService(
		rest.New(rest.NewClient(cfg.Discord.Token)),
		snowflake.ID(cfg.Discord.GuildID),
	)
	mutator := roles.NewMutator(svc, guard, catalog, app.Logger)

	reconciler := reconcile.New(
		svc, mutator, app.DB.Model().Player(), app.DB.Model().Tourney(),
		catalog, snowflake.ID(cfg.Discord.VerifiedRoleID), cfg.Sync.ResultsLimit,
		app.Logger,
	)

	summary, err := reconciler.Run(ctx, reconcile.Options{
		DryRun:     c.Bool("dry-run"),
		Limit:      int(c.Int("limit")),
		DiscordIDs: discordIDs,
	})
	if err != nil {
		return fmt.Errorf("reconciliation failed: %w", err)
	}

	monitor := status.NewMonitor(app.SummaryClient, app.Logger)
	if err := monitor.SaveSummary(ctx, summary); err != nil {
		app.Logger.Warn("Failed to save reconciliation summary", zap.Error(err))
	}

	fmt.Println(summary.Report())

	return nil
}

func parseDiscordIDs(raw []string) ([]uint64, error) {
	ids := make([]uint64, 0, len(raw))

	for _, s := range raw {
		id, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid discord id %q: %w", s, err)
		}

		ids = append(ids, id)
	}

	return ids, nil
}
