package discord

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/you-win/sometimes-youwin-bot/internal/bus"
	"github.com/you-win/sometimes-youwin-bot/internal/platform/logging"
)

// notificationHistoryLimit bounds the lookback when deciding whether a
// stream announcement was posted recently.
const notificationHistoryLimit = 20

// announce renders a stream notification through the operator-configured
// template and posts it to the notification channel.
func (a *Adapter) announce(ev bus.CentralEvent) {
	cfg := a.store.Snapshot()
	if cfg.StreamNotificationChannel == 0 {
		logging.WithAdapter(adapterName).Warn("no notification channel configured, dropping announcement",
			"correlation_id", ev.CorrelationID)
		return
	}

	text := renderNotification(cfg.StreamNotificationFormat, ev.Notification)
	a.send(strconv.FormatUint(cfg.StreamNotificationChannel, 10), text)
	logging.WithAdapter(adapterName).Info("stream announcement posted",
		"correlation_id", ev.CorrelationID, "channel", ev.Notification.Channel)
}

// renderNotification applies the configured template. A template that fails
// to parse or execute degrades to a fixed literal carrying the raw fields, so
// an operator typo never swallows an announcement.
func renderNotification(format string, n bus.Notification) string {
	fallback := fmt.Sprintf("%s is live: %s %s (template failed)", n.Channel, n.Title, n.URL)
	if format == "" {
		return fmt.Sprintf("%s is live: %s %s", n.Channel, n.Title, n.URL)
	}

	tmpl, err := template.New("notification").Parse(format)
	if err != nil {
		return fallback
	}

	var b strings.Builder
	if err := tmpl.Execute(&b, n); err != nil {
		return fallback
	}
	return b.String()
}

// LastNotification reports when the bot last posted in the notification
// channel. The supervisor uses this to space out announcements.
func (a *Adapter) LastNotification(_ context.Context) (time.Time, error) {
	a.mu.RLock()
	session := a.session
	a.mu.RUnlock()
	if session == nil {
		return time.Time{}, fmt.Errorf("discord session not connected")
	}

	cfg := a.store.Snapshot()
	if cfg.StreamNotificationChannel == 0 {
		// No channel configured means nothing was ever posted.
		return time.Time{}, nil
	}

	channelID := strconv.FormatUint(cfg.StreamNotificationChannel, 10)
	messages, err := session.ChannelMessages(channelID, notificationHistoryLimit, "", "", "")
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read notification channel: %w", err)
	}

	for _, m := range messages {
		if m.Author != nil && m.Author.ID == a.opts.BotID {
			return m.Timestamp, nil
		}
	}
	return time.Time{}, nil
}
