// Package config loads process-level credentials and settings from the
// environment. Runtime bot behaviour (tick rates, ad-hoc commands, reaction
// roles) lives in internal/botconfig instead and is hot-reloadable.
package config

import (
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv string `env:"APP_ENV" default:"development"`
	Port   string `env:"PORT" default:"8946"`

	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	CommandPrefix string `env:"COMMAND_PREFIX" default:"bot?"`

	DiscordToken       string `env:"DISCORD_TOKEN"`
	DiscordBotID       string `env:"DISCORD_BOT_ID"`
	DiscordAdminID     string `env:"DISCORD_ADMIN_ID"`
	DiscordGuildID     string `env:"DISCORD_GUILD_ID"`
	DiscordDataChannel string `env:"DISCORD_DATA_CHANNEL_ID"`

	TwitchRefreshToken string `env:"TWITCH_REFRESH_TOKEN"`
	TwitchClientID     string `env:"TWITCH_CLIENT_ID"`
	TwitchClientSecret string `env:"TWITCH_CLIENT_SECRET"`
	TwitchBotName      string `env:"TWITCH_BOT_NAME"`
	TwitchChannelName  string `env:"TWITCH_CHANNEL_NAME"`

	// ServerAPIKey is the pre-shared key HTTP callers must present in the
	// A-Cool-Key header.
	ServerAPIKey string `env:"SERVER_API_KEY"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := map[string]string{
		"DISCORD_TOKEN":           cfg.DiscordToken,
		"DISCORD_BOT_ID":          cfg.DiscordBotID,
		"DISCORD_GUILD_ID":        cfg.DiscordGuildID,
		"DISCORD_DATA_CHANNEL_ID": cfg.DiscordDataChannel,
		"TWITCH_REFRESH_TOKEN":    cfg.TwitchRefreshToken,
		"TWITCH_CLIENT_ID":        cfg.TwitchClientID,
		"TWITCH_CLIENT_SECRET":    cfg.TwitchClientSecret,
		"TWITCH_BOT_NAME":         cfg.TwitchBotName,
		"TWITCH_CHANNEL_NAME":     cfg.TwitchChannelName,
		"SERVER_API_KEY":          cfg.ServerAPIKey,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	if cfg.CommandPrefix == "" {
		return fmt.Errorf("COMMAND_PREFIX must not be empty")
	}

	return nil
}
