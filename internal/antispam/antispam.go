// Package antispam tracks per-chatter message cadence and strikes. The
// thresholds are engine constants rather than configuration: this is a
// structural safety net, not a tunable moderation policy.
package antispam

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	// minNonSpamInterval is the shortest gap between two messages that is
	// not counted as spam.
	minNonSpamInterval = 750 * time.Millisecond
	// maxStrikes is the strike count above which a chatter should be
	// penalized at the platform level.
	maxStrikes = 3
	// silentDeleteStrikes is the strike count above which a chatter's
	// messages should be deleted without comment.
	silentDeleteStrikes = 4
)

// Chatter is a platform-tagged sender identity. It is only ever used for
// equality and map lookup, never for ownership.
type Chatter struct {
	discordID   int64
	twitchLogin string
}

// DiscordChatter identifies a chatter by Discord user ID.
func DiscordChatter(id int64) Chatter {
	return Chatter{discordID: id}
}

// TwitchChatter identifies a chatter by Twitch login name.
func TwitchChatter(login string) Chatter {
	return Chatter{twitchLogin: login}
}

func (c Chatter) String() string {
	if c.twitchLogin != "" {
		return "twitch:" + c.twitchLogin
	}
	return fmt.Sprintf("discord:%d", c.discordID)
}

type history struct {
	lastSeen time.Time
	strikes  int
}

// Engine tracks message cadence per chatter. One engine is owned by exactly
// one adapter instance; the internal lock exists because inbound message
// handlers may run concurrently within that adapter.
type Engine struct {
	clock clockwork.Clock

	mu       sync.Mutex
	chatters map[Chatter]*history
}

// New creates an Engine using the given clock.
func New(clock clockwork.Clock) *Engine {
	return &Engine{
		clock:    clock,
		chatters: make(map[Chatter]*history),
	}
}

// RecordAndCheck records a message from the chatter and reports whether it is
// spam. The first message from a chatter is never spam. A message arriving
// before the minimum interval has elapsed adds a strike; one arriving after it
// resets strikes to zero. The timestamp is updated unconditionally.
func (e *Engine) RecordAndCheck(chatter Chatter) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()

	h, ok := e.chatters[chatter]
	if !ok {
		e.chatters[chatter] = &history{lastSeen: now}
		return false
	}

	spam := now.Sub(h.lastSeen) < minNonSpamInterval
	if spam {
		h.strikes++
	} else {
		h.strikes = 0
	}
	h.lastSeen = now

	return spam
}

// ShouldPenalize reports whether the chatter has exceeded the strike
// threshold and should additionally be silenced at the platform level.
func (e *Engine) ShouldPenalize(chatter Chatter) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	h, ok := e.chatters[chatter]
	return ok && h.strikes > maxStrikes
}

// ShouldSilentDelete reports whether the chatter's messages should be removed
// without any visible reply.
func (e *Engine) ShouldSilentDelete(chatter Chatter) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	h, ok := e.chatters[chatter]
	return ok && h.strikes > silentDeleteStrikes
}

// Reset clears all history. The engine performs no implicit eviction, so
// callers must invoke this periodically to bound memory.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.chatters = make(map[Chatter]*history)
}
