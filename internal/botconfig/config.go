// Package botconfig holds the bot's runtime configuration: a versioned
// snapshot replaced wholesale whenever a valid config document arrives on the
// designated data channel. Process credentials live in platform/config.
package botconfig

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults applied to every field so a partial or empty document still parses.
const (
	DefaultTickSeconds      = 0.5
	DefaultCheckLiveTicks   = 240
	DefaultMaxMessageWidth  = 36
	DefaultMinNotifySeconds = 21600
)

// Config is one immutable snapshot of the bot's runtime settings.
type Config struct {
	// TickSeconds is the duration to wait between bot ticks, in seconds.
	TickSeconds float64 `toml:"tick_duration"`
	// CheckLiveTicks is how many ticks elapse before the Twitch stream
	// status is polled.
	CheckLiveTicks uint64 `toml:"check_live_ticks"`
	// ReactionRoles maps a role name to the reaction emoji that grants it.
	ReactionRoles map[string]string `toml:"reaction_roles"`
	// MaxMessageWidth is the wrap column for framed multi-line replies.
	MaxMessageWidth int `toml:"max_message_width"`
	// TimeoutRoleID is the role applied when silencing a chatter. Zero
	// means no role is configured.
	TimeoutRoleID uint64 `toml:"timeout_role_id"`
	// StreamNotificationChannel receives stream-live notifications.
	StreamNotificationChannel uint64 `toml:"stream_notification_channel"`
	// MinStreamNotificationSecs is the minimum spacing between stream
	// notifications.
	MinStreamNotificationSecs uint64 `toml:"min_stream_notification_secs"`
	// StreamNotificationFormat is a text/template body with .Channel,
	// .Title and .URL fields.
	StreamNotificationFormat string `toml:"stream_notification_format"`
	// DebugChannel receives debug messages. Zero disables it.
	DebugChannel uint64 `toml:"debug_channel"`
	// RolesChannel is where reaction-role messages live.
	RolesChannel uint64 `toml:"roles_channel"`
	// AdHoc maps operator-defined command names to canned replies. Looked
	// up only after built-in parsing fails.
	AdHoc map[string]string `toml:"ad_hoc"`
}

// Default returns a Config with every field set to its default value.
func Default() Config {
	return Config{
		TickSeconds:               DefaultTickSeconds,
		CheckLiveTicks:            DefaultCheckLiveTicks,
		ReactionRoles:             map[string]string{},
		MaxMessageWidth:           DefaultMaxMessageWidth,
		MinStreamNotificationSecs: DefaultMinNotifySeconds,
		AdHoc:                     map[string]string{},
	}
}

// ParseDocument strips the fenced-code wrapper from a raw chat document and
// decodes it as TOML on top of defaults. Unknown keys are rejected so a typo
// does not silently vanish.
func ParseDocument(raw string) (Config, error) {
	content := strings.TrimSpace(raw)
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimPrefix(content, "toml")
	content = strings.TrimPrefix(content, "TOML")
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	content = strings.TrimSpace(content)

	cfg := Default()
	meta, err := toml.Decode(content, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("failed to decode config document: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("config document has unknown keys: %v", undecoded)
	}

	if cfg.TickSeconds <= 0 {
		cfg.TickSeconds = DefaultTickSeconds
	}
	if cfg.CheckLiveTicks == 0 {
		cfg.CheckLiveTicks = DefaultCheckLiveTicks
	}
	if cfg.MaxMessageWidth <= 0 {
		cfg.MaxMessageWidth = DefaultMaxMessageWidth
	}
	if cfg.ReactionRoles == nil {
		cfg.ReactionRoles = map[string]string{}
	}
	if cfg.AdHoc == nil {
		cfg.AdHoc = map[string]string{}
	}

	return cfg, nil
}

// TickInterval returns the tick duration as a time.Duration.
func (c Config) TickInterval() time.Duration {
	return time.Duration(c.TickSeconds * float64(time.Second))
}

// MinNotifyInterval returns the minimum spacing between stream notifications.
func (c Config) MinNotifyInterval() time.Duration {
	return time.Duration(c.MinStreamNotificationSecs) * time.Second
}

// AdHocReply looks up the canned reply for an operator-defined command.
func (c Config) AdHocReply(name string) (string, bool) {
	reply, ok := c.AdHoc[name]
	return reply, ok
}

// AdHocNames returns the configured ad-hoc command names in sorted order.
func (c Config) AdHocNames() []string {
	names := make([]string, 0, len(c.AdHoc))
	for name := range c.AdHoc {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
