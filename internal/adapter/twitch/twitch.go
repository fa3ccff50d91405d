// Package twitch connects the bot to Twitch chat over IRC and watches the
// broadcaster's live status through the Helix API. Credentials are refresh
// tokens: the access token is minted on startup and re-minted on expiry, and
// a refresh that the API refuses outright is escalated as fatal.
package twitch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/adeithe/go-twitch/irc"
	"github.com/jonboulle/clockwork"
	"github.com/nicklaw5/helix/v2"
	"golang.org/x/time/rate"

	"github.com/you-win/sometimes-youwin-bot/internal/antispam"
	"github.com/you-win/sometimes-youwin-bot/internal/botconfig"
	"github.com/you-win/sometimes-youwin-bot/internal/bus"
	"github.com/you-win/sometimes-youwin-bot/internal/command"
	"github.com/you-win/sometimes-youwin-bot/internal/metrics"
	"github.com/you-win/sometimes-youwin-bot/internal/platform/logging"
	"github.com/you-win/sometimes-youwin-bot/internal/platform/retry"
)

const adapterName = "twitch"

// Twitch allows regular accounts 20 messages per 30 seconds; sends beyond
// that are dropped rather than queued.
const (
	sendRatePerSecond = 20.0 / 30.0
	sendBurst         = 20
)

const spamWarningReply = "Slow down."

// Options carries the process-level credentials the adapter needs.
type Options struct {
	RefreshToken string
	ClientID     string
	ClientSecret string
	BotName      string
	ChannelName  string
	Prefix       string
}

// Adapter is the Twitch platform adapter.
type Adapter struct {
	opts       Options
	store      *botconfig.Store
	dispatcher *command.Dispatcher
	spam       *antispam.Engine
	clock      clockwork.Clock
	limiter    *rate.Limiter
	poller     *livePoller

	mu     sync.RWMutex
	helix  *helix.Client
	conn   *irc.Conn
	events chan<- bus.AdapterEvent
}

// New creates the adapter. The antispam engine is owned by this adapter.
func New(opts Options, store *botconfig.Store, dispatcher *command.Dispatcher, spam *antispam.Engine, clock clockwork.Clock) *Adapter {
	return &Adapter{
		opts:       opts,
		store:      store,
		dispatcher: dispatcher,
		spam:       spam,
		clock:      clock,
		limiter:    rate.NewLimiter(rate.Limit(sendRatePerSecond), sendBurst),
		poller:     newLivePoller(),
	}
}

func (a *Adapter) Name() string { return adapterName }

// Run mints an access token, joins the channel and serves until shutdown.
func (a *Adapter) Run(ctx context.Context, events chan<- bus.AdapterEvent, central *bus.Subscription[bus.CentralEvent]) error {
	a.mu.Lock()
	a.events = events
	a.mu.Unlock()

	client, err := helix.NewClient(&helix.Options{
		ClientID:     a.opts.ClientID,
		ClientSecret: a.opts.ClientSecret,
	})
	if err != nil {
		return fmt.Errorf("failed to create helix client: %w", err)
	}
	a.mu.Lock()
	a.helix = client
	a.mu.Unlock()

	token, err := a.refreshToken()
	if err != nil {
		return err
	}

	conn := &irc.Conn{}
	if err := conn.SetLogin(a.opts.BotName, "oauth:"+token); err != nil {
		return fmt.Errorf("failed to set irc login: %w", err)
	}
	conn.OnMessage(a.onMessage)

	if err := conn.Connect(); err != nil {
		return fmt.Errorf("failed to connect to twitch irc: %w", err)
	}
	defer conn.Close()

	if err := conn.Join(a.opts.ChannelName); err != nil {
		return fmt.Errorf("failed to join channel %s: %w", a.opts.ChannelName, err)
	}

	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()

	a.emit(bus.AdapterEvent{Type: bus.AdapterReady})
	return a.tickLoop(ctx, central)
}

// tickLoop multiplexes the periodic live check with supervisor broadcasts.
// A config change restarts the ticker so a new tick interval takes effect.
func (a *Adapter) tickLoop(ctx context.Context, central *bus.Subscription[bus.CentralEvent]) error {
	log := logging.WithAdapter(adapterName)

	centralCh := make(chan bus.CentralEvent)
	recvErr := make(chan error, 1)
	go func() {
		for {
			ev, err := central.Recv(ctx)
			if err != nil {
				var lag *bus.LagError
				if errors.As(err, &lag) {
					log.Warn("lagged on central bus", "missed", lag.Missed)
					continue
				}
				recvErr <- err
				return
			}
			select {
			case centralCh <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	interval := a.store.Snapshot().TickInterval()
	ticker := a.clock.NewTicker(interval)
	// The ticker variable is rebound on config changes, so the deferred
	// stop must resolve it at exit time, not here.
	defer func() { ticker.Stop() }()

	var ticks uint64
	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-recvErr:
			if errors.Is(err, bus.ErrClosed) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err

		case ev := <-centralCh:
			switch ev.Type {
			case bus.CentralShutdown:
				log.Info("shutdown received")
				return nil
			case bus.CentralConfigChanged:
				if next := a.store.Snapshot().TickInterval(); next != interval {
					interval = next
					ticker.Stop()
					ticker = a.clock.NewTicker(interval)
					log.Info("tick interval updated", "interval", interval)
				}
			}

		case <-ticker.Chan():
			ticks++
			if ticks%a.store.Snapshot().CheckLiveTicks == 0 {
				if err := a.checkLive(); err != nil {
					return err
				}
			}
		}
	}
}

func (a *Adapter) onMessage(cm irc.ChatMessage) {
	if strings.EqualFold(cm.Sender.Username, a.opts.BotName) {
		return
	}
	if !strings.HasPrefix(cm.Text, a.opts.Prefix) {
		return
	}

	login := strings.ToLower(cm.Sender.Username)
	chatter := antispam.TwitchChatter(login)
	if a.spam.RecordAndCheck(chatter) {
		metrics.SpamDetectedTotal.WithLabelValues(string(command.PlatformTwitch)).Inc()
		if a.spam.ShouldPenalize(chatter) && !a.spam.ShouldSilentDelete(chatter) {
			metrics.SpamPenaltiesTotal.WithLabelValues(string(command.PlatformTwitch)).Inc()
			logging.WithChatter(login).Info("spam threshold crossed, warning chatter")
			a.say(spamWarningReply)
		}
		return
	}

	sender := command.Sender{
		Platform:    command.PlatformTwitch,
		DisplayName: cm.Sender.DisplayName,
	}

	out := a.dispatcher.Dispatch(cm.Text, sender, a.store.Snapshot())
	if out.Kind == command.KindAdmin {
		// Admin actions are Discord-only.
		return
	}
	if text := out.ReplyOrDefault(""); text != "" {
		a.say(text)
	}
}

// say sends one chat line, flattening newlines since IRC has no multi-line
// messages. Sends beyond the rate limit are dropped.
func (a *Adapter) say(text string) {
	a.mu.RLock()
	conn := a.conn
	a.mu.RUnlock()
	if conn == nil || !conn.IsConnected() {
		return
	}

	if !a.limiter.Allow() {
		logging.WithAdapter(adapterName).Warn("send rate limit hit, dropping message")
		return
	}

	text = strings.ReplaceAll(text, "\n", " ")
	if err := conn.Say(a.opts.ChannelName, text); err != nil {
		logging.WithAdapter(adapterName).Warn("say failed", "error", err)
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

// tokenRejectedError marks a refresh the auth server refused outright. The
// refresh token itself is dead, which no retry fixes.
type tokenRejectedError struct {
	status  int
	message string
}

func (e *tokenRejectedError) Error() string {
	return fmt.Sprintf("refresh token rejected: %d %s", e.status, e.message)
}

var refreshPolicy = retry.Policy{
	MaxAttempts:      3,
	InitialBackoff:   time.Second,
	RateLimitBackoff: 10 * time.Second,
	OnRetry: func(attempt int, err error, backoff time.Duration) {
		logging.WithAdapter(adapterName).Warn("token refresh retry",
			"attempt", attempt, "backoff", backoff, "error", err)
	},
}

func classifyRefresh(err error) retry.Action {
	var rejected *tokenRejectedError
	if errors.As(err, &rejected) {
		return retry.Stop
	}
	var limited *rateLimitedError
	if errors.As(err, &limited) {
		return retry.After
	}
	return retry.Retry
}

// rateLimitedError marks a 429 from the auth server.
type rateLimitedError struct{}

func (e *rateLimitedError) Error() string { return "rate limited" }

// refreshToken exchanges the long-lived refresh token for an access token and
// installs it on the Helix client. Transient failures are retried; an
// outright rejection is escalated as fatal.
func (a *Adapter) refreshToken() (string, error) {
	a.mu.RLock()
	client := a.helix
	a.mu.RUnlock()

	token, err := retry.Do(context.Background(), refreshPolicy, classifyRefresh, func() (string, error) {
		resp, err := client.RefreshUserAccessToken(a.opts.RefreshToken)
		if err != nil {
			return "", fmt.Errorf("token refresh request failed: %w", err)
		}
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest:
			return "", &tokenRejectedError{status: resp.StatusCode, message: resp.ErrorMessage}
		case resp.StatusCode == http.StatusTooManyRequests:
			return "", &rateLimitedError{}
		case resp.StatusCode != http.StatusOK:
			return "", fmt.Errorf("token refresh failed: %d %s", resp.StatusCode, resp.ErrorMessage)
		}

		client.SetUserAccessToken(resp.Data.AccessToken)
		logging.WithAdapter(adapterName).Info("access token refreshed",
			"expires_in", time.Duration(resp.Data.ExpiresIn)*time.Second)
		return resp.Data.AccessToken, nil
	})
	if err != nil {
		var permanent *retry.PermanentError
		if errors.As(err, &permanent) {
			a.emit(bus.AdapterEvent{Type: bus.AdapterFatalTokenExpiry})
		}
		return "", err
	}
	return token, nil
}
