package discord

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you-win/sometimes-youwin-bot/internal/antispam"
	"github.com/you-win/sometimes-youwin-bot/internal/bus"
)

func TestRenderNotification(t *testing.T) {
	n := bus.Notification{Channel: "youwin", Title: "working on the bot", URL: "https://twitch.tv/youwin"}

	tests := []struct {
		name   string
		format string
		want   string
	}{
		{
			name:   "configured template",
			format: "{{.Channel}} went live! {{.Title}} {{.URL}}",
			want:   "youwin went live! working on the bot https://twitch.tv/youwin",
		},
		{
			name:   "empty format uses plain default",
			format: "",
			want:   "youwin is live: working on the bot https://twitch.tv/youwin",
		},
		{
			name:   "unparseable template falls back with marker",
			format: "{{.Channel",
			want:   "youwin is live: working on the bot https://twitch.tv/youwin (template failed)",
		},
		{
			name:   "unknown field falls back with marker",
			format: "{{.Nope}} is live",
			want:   "youwin is live: working on the bot https://twitch.tv/youwin (template failed)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, renderNotification(tt.format, n))
		})
	}
}

func TestLooksLikeConfigDocument(t *testing.T) {
	assert.True(t, looksLikeConfigDocument("```toml\ntick_duration = 1.0\n```"))
	assert.True(t, looksLikeConfigDocument("  \n```\nfoo = 1\n```"))
	assert.False(t, looksLikeConfigDocument("just chatting about ``` fences"))
	assert.False(t, looksLikeConfigDocument(""))
}

func TestChatterID(t *testing.T) {
	c, err := chatterID("123456789012345678")
	require.NoError(t, err)
	assert.Equal(t, antispam.DiscordChatter(123456789012345678), c)

	_, err = chatterID("not-a-snowflake")
	assert.Error(t, err)
}

func TestDisplayName(t *testing.T) {
	base := func() *discordgo.MessageCreate {
		return &discordgo.MessageCreate{Message: &discordgo.Message{
			Author: &discordgo.User{Username: "login", GlobalName: "global"},
			Member: &discordgo.Member{Nick: "nick"},
		}}
	}

	m := base()
	assert.Equal(t, "nick", displayName(m), "guild nickname wins")

	m = base()
	m.Member.Nick = ""
	assert.Equal(t, "global", displayName(m))

	m = base()
	m.Member = nil
	m.Author.GlobalName = ""
	assert.Equal(t, "login", displayName(m))
}
