package discord

import (
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/you-win/sometimes-youwin-bot/internal/bus"
	"github.com/you-win/sometimes-youwin-bot/internal/command"
	"github.com/you-win/sometimes-youwin-bot/internal/metrics"
	"github.com/you-win/sometimes-youwin-bot/internal/platform/logging"
)

const (
	spamWarningReply = "Slow down."
	notAdminReply    = "That command is reserved for the operator."
)

// onReady replays the data channel history as config documents, then reports
// Ready so the supervisor can start dependent adapters.
func (a *Adapter) onReady(_ *discordgo.Session, _ *discordgo.Ready) {
	log := logging.WithAdapter(adapterName)
	log.Info("gateway session ready")

	a.replayConfigHistory()
	a.refreshRoleCache()
	a.emit(bus.AdapterEvent{Type: bus.AdapterReady})
}

// replayConfigHistory emits every fenced document in the data channel oldest
// first, so the most recent document is the one that ends up applied.
func (a *Adapter) replayConfigHistory() {
	a.mu.RLock()
	session := a.session
	a.mu.RUnlock()
	if session == nil {
		return
	}

	log := logging.WithAdapter(adapterName)
	messages, err := session.ChannelMessages(a.opts.DataChannel, configHistoryLimit, "", "", "")
	if err != nil {
		log.Error("failed to read config channel history", "error", err)
		a.emit(bus.AdapterEvent{Type: bus.AdapterError, Text: "config channel history unavailable"})
		return
	}

	// ChannelMessages returns newest first.
	count := 0
	for i := len(messages) - 1; i >= 0; i-- {
		if !looksLikeConfigDocument(messages[i].Content) {
			continue
		}
		a.emit(bus.AdapterEvent{Type: bus.AdapterConfigDocument, Text: messages[i].Content})
		count++
	}
	log.Info("replayed config documents", "count", count)
}

func looksLikeConfigDocument(content string) bool {
	return strings.HasPrefix(strings.TrimSpace(content), "```")
}

func (a *Adapter) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == a.opts.BotID || m.Author.Bot {
		return
	}

	// New documents in the data channel take effect immediately.
	if m.ChannelID == a.opts.DataChannel {
		if looksLikeConfigDocument(m.Content) {
			a.emit(bus.AdapterEvent{Type: bus.AdapterConfigDocument, Text: m.Content})
		}
		return
	}

	if !strings.HasPrefix(m.Content, a.opts.Prefix) {
		return
	}

	log := logging.WithAdapter(adapterName)

	chatter, err := chatterID(m.Author.ID)
	if err != nil {
		log.Warn("dropping message", "error", err)
		return
	}

	if a.spam.RecordAndCheck(chatter) {
		metrics.SpamDetectedTotal.WithLabelValues(string(command.PlatformDiscord)).Inc()
		spamLog := logging.WithChatter(m.Author.Username)
		switch {
		case a.spam.ShouldSilentDelete(chatter):
			if err := s.ChannelMessageDelete(m.ChannelID, m.ID); err != nil {
				spamLog.Warn("silent delete failed", "error", err)
			}
		case a.spam.ShouldPenalize(chatter):
			spamLog.Info("spam threshold crossed, applying timeout role")
			a.applyTimeoutRole(s, m.Author.ID)
			a.reply(m, spamWarningReply)
		}
		return
	}

	sender := command.Sender{
		Platform:    command.PlatformDiscord,
		DisplayName: displayName(m),
		Multiline:   true,
		Scripting:   true,
	}

	out := a.dispatcher.Dispatch(m.Content, sender, a.store.Snapshot())

	if out.Kind == command.KindAdmin {
		a.handleAdmin(m, out)
		return
	}

	if text := out.ReplyOrDefault(""); text != "" {
		a.reply(m, text)
	}
}

// handleAdmin gates admin subcommands on the configured operator identity.
func (a *Adapter) handleAdmin(m *discordgo.MessageCreate, out command.Output) {
	if m.Author.ID != a.opts.AdminID {
		a.reply(m, notAdminReply)
		return
	}

	switch out.Admin {
	case command.AdminReloadConfig:
		logging.WithAdapter(adapterName).Info("operator requested config reload")
		a.replayConfigHistory()
	}
}

// applyTimeoutRole attaches the configured timeout role to a spamming member.
// Role zero means timeouts are not configured.
func (a *Adapter) applyTimeoutRole(s *discordgo.Session, userID string) {
	cfg := a.store.Snapshot()
	if cfg.TimeoutRoleID == 0 {
		return
	}

	roleID := strconv.FormatUint(cfg.TimeoutRoleID, 10)
	if err := s.GuildMemberRoleAdd(a.opts.GuildID, userID, roleID); err != nil {
		logging.WithAdapter(adapterName).Warn("failed to apply timeout role", "user", userID, "error", err)
		return
	}
	metrics.SpamPenaltiesTotal.WithLabelValues(string(command.PlatformDiscord)).Inc()
}

func displayName(m *discordgo.MessageCreate) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}

// refreshRoleCache resolves the configured role-name to emoji mapping against
// the guild's current roles, producing an emoji to role-ID lookup table.
func (a *Adapter) refreshRoleCache() {
	a.mu.RLock()
	session := a.session
	a.mu.RUnlock()
	if session == nil {
		return
	}

	cfg := a.store.Snapshot()
	if len(cfg.ReactionRoles) == 0 {
		a.roleMu.Lock()
		a.roleByEmoji = map[string]string{}
		a.roleMu.Unlock()
		return
	}

	log := logging.WithAdapter(adapterName)
	roles, err := session.GuildRoles(a.opts.GuildID)
	if err != nil {
		log.Warn("failed to list guild roles", "error", err)
		return
	}

	idByName := make(map[string]string, len(roles))
	for _, role := range roles {
		idByName[role.Name] = role.ID
	}

	byEmoji := make(map[string]string, len(cfg.ReactionRoles))
	for roleName, emoji := range cfg.ReactionRoles {
		id, ok := idByName[roleName]
		if !ok {
			log.Warn("reaction role not found in guild", "role", roleName)
			continue
		}
		byEmoji[emoji] = id
	}

	a.roleMu.Lock()
	a.roleByEmoji = byEmoji
	a.roleMu.Unlock()
	log.Debug("reaction role cache refreshed", "entries", len(byEmoji))
}

func (a *Adapter) roleForEmoji(emoji string) (string, bool) {
	a.roleMu.RLock()
	defer a.roleMu.RUnlock()
	id, ok := a.roleByEmoji[emoji]
	return id, ok
}

func (a *Adapter) onReactionAdd(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if r.UserID == a.opts.BotID {
		return
	}
	cfg := a.store.Snapshot()
	if cfg.RolesChannel == 0 || r.ChannelID != strconv.FormatUint(cfg.RolesChannel, 10) {
		return
	}
	roleID, ok := a.roleForEmoji(r.Emoji.Name)
	if !ok {
		return
	}
	if err := s.GuildMemberRoleAdd(a.opts.GuildID, r.UserID, roleID); err != nil {
		logging.WithAdapter(adapterName).Warn("failed to grant reaction role", "user", r.UserID, "error", err)
	}
}

func (a *Adapter) onReactionRemove(s *discordgo.Session, r *discordgo.MessageReactionRemove) {
	if r.UserID == a.opts.BotID {
		return
	}
	cfg := a.store.Snapshot()
	if cfg.RolesChannel == 0 || r.ChannelID != strconv.FormatUint(cfg.RolesChannel, 10) {
		return
	}
	roleID, ok := a.roleForEmoji(r.Emoji.Name)
	if !ok {
		return
	}
	if err := s.GuildMemberRoleRemove(a.opts.GuildID, r.UserID, roleID); err != nil {
		logging.WithAdapter(adapterName).Warn("failed to remove reaction role", "user", r.UserID, "error", err)
	}
}
