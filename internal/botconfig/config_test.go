package botconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDocument_EmptyDocumentYieldsDefaults(t *testing.T) {
	cfg, err := ParseDocument("")
	require.NoError(t, err)

	assert.InDelta(t, DefaultTickSeconds, cfg.TickSeconds, 1e-9)
	assert.Equal(t, uint64(DefaultCheckLiveTicks), cfg.CheckLiveTicks)
	assert.Equal(t, DefaultMaxMessageWidth, cfg.MaxMessageWidth)
	assert.Equal(t, uint64(DefaultMinNotifySeconds), cfg.MinStreamNotificationSecs)
	assert.Empty(t, cfg.AdHoc)
	assert.Empty(t, cfg.ReactionRoles)
}

func TestParseDocument_StripsCodeFence(t *testing.T) {
	doc := "```toml\n" +
		"tick_duration = 1.5\n" +
		"check_live_ticks = 10\n" +
		"```"

	cfg, err := ParseDocument(doc)
	require.NoError(t, err)

	assert.InDelta(t, 1.5, cfg.TickSeconds, 1e-9)
	assert.Equal(t, uint64(10), cfg.CheckLiveTicks)
}

func TestParseDocument_PartialDocumentKeepsDefaults(t *testing.T) {
	cfg, err := ParseDocument(`stream_notification_channel = 42`)
	require.NoError(t, err)

	assert.Equal(t, uint64(42), cfg.StreamNotificationChannel)
	assert.InDelta(t, DefaultTickSeconds, cfg.TickSeconds, 1e-9)
	assert.Equal(t, DefaultMaxMessageWidth, cfg.MaxMessageWidth)
}

func TestParseDocument_TablesDecoded(t *testing.T) {
	doc := "```TOML\n" +
		"[ad_hoc]\n" +
		"socials = \"find me on the fediverse\"\n" +
		"[reaction_roles]\n" +
		"\"cool role\" = \"🔥\"\n" +
		"```"

	cfg, err := ParseDocument(doc)
	require.NoError(t, err)

	reply, ok := cfg.AdHocReply("socials")
	assert.True(t, ok)
	assert.Equal(t, "find me on the fediverse", reply)
	assert.Equal(t, "🔥", cfg.ReactionRoles["cool role"])
}

func TestParseDocument_MalformedReturnsError(t *testing.T) {
	_, err := ParseDocument("tick_duration = not-a-number")
	require.Error(t, err)
}

func TestParseDocument_UnknownKeyRejected(t *testing.T) {
	_, err := ParseDocument(`tick_durration = 5.0`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown keys")
}

func TestParseDocument_NonPositiveValuesFallBackToDefaults(t *testing.T) {
	cfg, err := ParseDocument("tick_duration = -1.0\nmax_message_width = 0")
	require.NoError(t, err)

	assert.InDelta(t, DefaultTickSeconds, cfg.TickSeconds, 1e-9)
	assert.Equal(t, DefaultMaxMessageWidth, cfg.MaxMessageWidth)
}

func TestAdHocNames_Sorted(t *testing.T) {
	cfg := Default()
	cfg.AdHoc = map[string]string{"zeta": "z", "alpha": "a", "mid": "m"}

	assert.Equal(t, []string{"alpha", "mid", "zeta"}, cfg.AdHocNames())
}

func TestStore_SnapshotAndReplace(t *testing.T) {
	store := NewStore()

	initial := store.Snapshot()
	assert.InDelta(t, DefaultTickSeconds, initial.TickSeconds, 1e-9)

	next := Default()
	next.TickSeconds = 2.0
	next.AdHoc = map[string]string{"hello": "world"}
	store.Replace(next)

	got := store.Snapshot()
	assert.InDelta(t, 2.0, got.TickSeconds, 1e-9)
	reply, ok := got.AdHocReply("hello")
	assert.True(t, ok)
	assert.Equal(t, "world", reply)

	// Replace is wholesale, not a merge.
	store.Replace(Default())
	_, ok = store.Snapshot().AdHocReply("hello")
	assert.False(t, ok)
}
