package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/towertools/tiersync/internal/bot"
	"github.com/towertools/tiersync/internal/setup"
)

const (
	// BotLogDir specifies where bot log files are stored.
	BotLogDir = "logs/bot_logs"
)

func main() {
	ctx := context.Background()

	// Initialize application with required dependencies
	app, err := setup.InitializeApp(ctx, BotLogDir)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer app.Cleanup(ctx)

	discordBot, err := bot.New(app.Config, app.DB, app.StatusClient, app.SummaryClient, app.Logger)
	if err != nil {
		log.Printf("Failed to create bot: %v", err)
		return
	}

	if err := discordBot.Start(ctx); err != nil {
		log.Printf("Failed to start bot: %v", err)
		return
	}

	log.Println("Bot has been started. Waiting for interrupt signal to gracefully shutdown...")

	// Wait for interrupt signal to gracefully shutdown the bot
	// This ensures any in-flight role mutation finishes before closing
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	discordBot.Close(ctx)
}
