// Package discord bridges the Discord gateway to the supervisor. Besides
// relaying chat commands it owns two special channels: the data channel whose
// message history is the bot's runtime configuration, and the notification
// channel used for stream announcements.
package discord

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/you-win/sometimes-youwin-bot/internal/antispam"
	"github.com/you-win/sometimes-youwin-bot/internal/botconfig"
	"github.com/you-win/sometimes-youwin-bot/internal/bus"
	"github.com/you-win/sometimes-youwin-bot/internal/command"
	"github.com/you-win/sometimes-youwin-bot/internal/metrics"
	"github.com/you-win/sometimes-youwin-bot/internal/platform/logging"
)

const adapterName = "discord"

// configHistoryLimit bounds how many data-channel messages are read on
// startup and reload.
const configHistoryLimit = 50

// Options carries the process-level credentials the adapter needs.
type Options struct {
	Token       string
	BotID       string
	AdminID     string
	GuildID     string
	DataChannel string
	Prefix      string
}

// Adapter is the Discord platform adapter. It implements supervisor.Adapter
// and supervisor.NotificationSink.
type Adapter struct {
	opts       Options
	store      *botconfig.Store
	dispatcher *command.Dispatcher
	spam       *antispam.Engine

	mu      sync.RWMutex
	session *discordgo.Session
	events  chan<- bus.AdapterEvent

	// roleByEmoji caches the reaction-role mapping with role names already
	// resolved to guild role IDs. Rebuilt on every config change.
	roleMu      sync.RWMutex
	roleByEmoji map[string]string
}

// New creates the adapter. The antispam engine is owned by this adapter,
// never shared with other platforms.
func New(opts Options, store *botconfig.Store, dispatcher *command.Dispatcher, spam *antispam.Engine) *Adapter {
	return &Adapter{
		opts:        opts,
		store:       store,
		dispatcher:  dispatcher,
		spam:        spam,
		roleByEmoji: map[string]string{},
	}
}

func (a *Adapter) Name() string { return adapterName }

// Run connects to the gateway and serves until ctx is cancelled or the
// supervisor broadcasts Shutdown.
func (a *Adapter) Run(ctx context.Context, events chan<- bus.AdapterEvent, central *bus.Subscription[bus.CentralEvent]) error {
	session, err := discordgo.New("Bot " + a.opts.Token)
	if err != nil {
		return fmt.Errorf("failed to create discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsMessageContent

	a.mu.Lock()
	a.session = session
	a.events = events
	a.mu.Unlock()

	session.AddHandler(a.onReady)
	session.AddHandler(a.onMessageCreate)
	session.AddHandler(a.onReactionAdd)
	session.AddHandler(a.onReactionRemove)

	if err := session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	defer session.Close()

	return a.centralLoop(ctx, central)
}

// centralLoop consumes supervisor broadcasts until shutdown. A lag signal
// means config updates may have been missed, so the store is re-read.
func (a *Adapter) centralLoop(ctx context.Context, central *bus.Subscription[bus.CentralEvent]) error {
	log := logging.WithAdapter(adapterName)

	for {
		ev, err := central.Recv(ctx)
		if err != nil {
			var lag *bus.LagError
			switch {
			case errors.As(err, &lag):
				log.Warn("lagged on central bus, refreshing config", "missed", lag.Missed)
				a.refreshRoleCache()
				continue
			case errors.Is(err, bus.ErrClosed):
				return nil
			default:
				return err
			}
		}

		switch ev.Type {
		case bus.CentralShutdown:
			log.Info("shutdown received")
			return nil
		case bus.CentralConfigChanged:
			a.refreshRoleCache()
		case bus.CentralNotify:
			a.announce(ev)
		}
	}
}

func (a *Adapter) emit(ev bus.AdapterEvent) {
	a.mu.RLock()
	events := a.events
	a.mu.RUnlock()
	if events == nil {
		return
	}
	ev.Source = adapterName
	events <- ev
}

// send posts text to a channel, logging instead of propagating transport
// failures.
func (a *Adapter) send(channelID, text string) {
	a.mu.RLock()
	session := a.session
	a.mu.RUnlock()
	if session == nil || channelID == "" || channelID == "0" {
		return
	}
	if _, err := session.ChannelMessageSend(channelID, text); err != nil {
		logging.WithAdapter(adapterName).Warn("send failed", "channel", channelID, "error", err)
	}
}

// reply answers a message in its channel, referencing the original so the
// author gets pinged.
func (a *Adapter) reply(m *discordgo.MessageCreate, text string) {
	a.mu.RLock()
	session := a.session
	a.mu.RUnlock()
	if session == nil {
		return
	}
	if _, err := session.ChannelMessageSendReply(m.ChannelID, text, m.Reference()); err != nil {
		logging.WithAdapter(adapterName).Warn("reply failed", "channel", m.ChannelID, "error", err)
		metrics.CommandErrorsTotal.WithLabelValues(string(command.PlatformDiscord)).Inc()
	}
}

// chatterID converts a Discord snowflake into the numeric antispam identity.
func chatterID(id string) (antispam.Chatter, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return antispam.Chatter{}, fmt.Errorf("malformed snowflake %q: %w", id, err)
	}
	return antispam.DiscordChatter(n), nil
}
