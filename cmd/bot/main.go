package main

import (
	"context"
	"log"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/you-win/sometimes-youwin-bot/internal/adapter/discord"
	"github.com/you-win/sometimes-youwin-bot/internal/adapter/twitch"
	"github.com/you-win/sometimes-youwin-bot/internal/antispam"
	"github.com/you-win/sometimes-youwin-bot/internal/botconfig"
	"github.com/you-win/sometimes-youwin-bot/internal/bus"
	"github.com/you-win/sometimes-youwin-bot/internal/command"
	"github.com/you-win/sometimes-youwin-bot/internal/platform/config"
	"github.com/you-win/sometimes-youwin-bot/internal/platform/logging"
	"github.com/you-win/sometimes-youwin-bot/internal/platform/version"
	"github.com/you-win/sometimes-youwin-bot/internal/scripting"
	"github.com/you-win/sometimes-youwin-bot/internal/server"
	"github.com/you-win/sometimes-youwin-bot/internal/supervisor"
)

// antispamSweepInterval bounds antispam table growth; the engine never evicts
// on its own.
const antispamSweepInterval = time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("starting bot",
		"version", version.Version,
		"commit", version.Commit,
		"env", cfg.AppEnv,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()
	store := botconfig.NewStore()
	central := bus.New[bus.CentralEvent]()
	dispatcher := command.NewDispatcher(cfg.CommandPrefix, scripting.New())

	discordSpam := antispam.New(clock)
	twitchSpam := antispam.New(clock)
	go sweepAntispam(ctx, clock, discordSpam, twitchSpam)

	discordAdapter := discord.New(discord.Options{
		Token:       cfg.DiscordToken,
		BotID:       cfg.DiscordBotID,
		AdminID:     cfg.DiscordAdminID,
		GuildID:     cfg.DiscordGuildID,
		DataChannel: cfg.DiscordDataChannel,
		Prefix:      cfg.CommandPrefix,
	}, store, dispatcher, discordSpam)

	twitchAdapter := twitch.New(twitch.Options{
		RefreshToken: cfg.TwitchRefreshToken,
		ClientID:     cfg.TwitchClientID,
		ClientSecret: cfg.TwitchClientSecret,
		BotName:      cfg.TwitchBotName,
		ChannelName:  cfg.TwitchChannelName,
		Prefix:       cfg.CommandPrefix,
	}, store, dispatcher, twitchSpam, clock)

	httpServer := server.New(cfg.Port, cfg.ServerAPIKey, store, dispatcher)

	sup := supervisor.New(store, central, clock)
	sup.Register(discordAdapter)
	sup.Register(twitchAdapter, supervisor.AfterReady(discordAdapter.Name()))
	sup.Register(httpServer)
	sup.SetNotificationSink(discordAdapter)

	sup.Run(ctx)
	slog.Info("bot stopped")
}

// sweepAntispam periodically clears the per-adapter antispam tables so
// one-time chatters do not accumulate forever.
func sweepAntispam(ctx context.Context, clock clockwork.Clock, engines ...*antispam.Engine) {
	ticker := clock.NewTicker(antispamSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			for _, e := range engines {
				e.Reset()
			}
		}
	}
}
