// mirrorbot mirrors the association's API endpoints into Discord channels
// as live, self-updating messages.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alpinn/mirrorbot/internal/apiclient"
	"github.com/alpinn/mirrorbot/internal/bot"
	"github.com/alpinn/mirrorbot/internal/config"
	"github.com/alpinn/mirrorbot/internal/cooldown"
	"github.com/alpinn/mirrorbot/internal/differ"
	"github.com/alpinn/mirrorbot/internal/logger"
	"github.com/alpinn/mirrorbot/internal/scheduler"
	"github.com/alpinn/mirrorbot/internal/store"
	"github.com/alpinn/mirrorbot/internal/syncer"
)

// restartExitCode tells the supervisor to relaunch the process.
const restartExitCode = 42

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "Path to the configuration file (JSON or YAML)")
	flag.Parse()

	cfg, err := config.LoadGlobalConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	appLogger, err := logger.New(cfg.LogConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		return 1
	}

	if cfg.BotConfig.Token == "" {
		appLogger.Error().Msg("No Discord token configured (set DISCORD_TOKEN or bot_config.token)")
		return 1
	}

	stateStore, err := store.NewSQLiteStore(cfg.StoreConfig.SQLiteDBPath, appLogger)
	if err != nil {
		appLogger.Error().Err(err).Msg("Failed to open state store")
		return 1
	}
	defer stateStore.Close()

	gate := cooldown.NewGate(time.Duration(cfg.CooldownConfig.IntervalSecs)*time.Second, appLogger)
	client := apiclient.NewClient(cfg.APIConfig, appLogger)
	contentDiffer := differ.NewDiffer(appLogger)

	discordBot, err := bot.NewBot(cfg.BotConfig, stateStore, client, appLogger)
	if err != nil {
		appLogger.Error().Err(err).Msg("Failed to create Discord bot")
		return 1
	}

	synchronizer := syncer.NewSynchronizer(stateStore, discordBot.Surface(), appLogger)
	jobScheduler := scheduler.NewScheduler(stateStore, gate, client, contentDiffer, synchronizer, cfg.SchedulerConfig, appLogger)
	discordBot.AttachEngine(jobScheduler, synchronizer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	botDone := make(chan error, 1)
	go func() {
		botDone <- discordBot.Start(ctx)
	}()

	jobScheduler.Start(ctx)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-signals:
		appLogger.Info().Str("signal", sig.String()).Msg("Shutting down")
	case <-discordBot.Reboot():
		appLogger.Info().Msg("Reboot requested, shutting down for restart")
	}

	cancel()
	jobScheduler.Stop()
	if err := <-botDone; err != nil {
		appLogger.Warn().Err(err).Msg("Bot shutdown reported an error")
	}

	if discordBot.RebootRequested() {
		return restartExitCode
	}
	return 0
}
