package twitch

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/nicklaw5/helix/v2"

	"github.com/you-win/sometimes-youwin-bot/internal/bus"
	"github.com/you-win/sometimes-youwin-bot/internal/platform/logging"
)

// livePoller wraps the Helix stream lookup in a circuit breaker so a
// misbehaving API does not get hammered on every check interval.
type livePoller struct {
	cb circuitbreaker.CircuitBreaker[any]
}

func newLivePoller() *livePoller {
	cb := circuitbreaker.NewBuilder[any]().
		WithFailureThreshold(3).
		WithDelay(2 * time.Minute).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			logging.WithAdapter(adapterName).Warn("live check circuit state changed",
				"from", e.OldState.String(),
				"to", e.NewState.String(),
			)
		}).
		Build()
	return &livePoller{cb: cb}
}

// checkLive polls the broadcaster's stream status and proposes a notification
// while the stream is live. The supervisor decides whether the proposal
// actually goes out. An expired access token is refreshed in place; a dead
// refresh token aborts the run so the supervisor can restart the adapter.
func (a *Adapter) checkLive() error {
	if !a.poller.cb.TryAcquirePermit() {
		logging.WithAdapter(adapterName).Debug("live check skipped, circuit open")
		return nil
	}

	stream, err := a.fetchStream()
	if err != nil {
		a.poller.cb.RecordError(err)
		var expired *tokenExpiredError
		if errors.As(err, &expired) {
			if _, refreshErr := a.refreshToken(); refreshErr != nil {
				return refreshErr
			}
			return nil
		}
		logging.WithAdapter(adapterName).Warn("live check failed", "error", err)
		return nil
	}
	a.poller.cb.RecordSuccess()

	if stream == nil {
		return nil
	}

	a.emit(bus.AdapterEvent{
		Type: bus.AdapterNotify,
		Notification: bus.Notification{
			Channel: a.opts.ChannelName,
			Title:   stream.Title,
			URL:     "https://twitch.tv/" + a.opts.ChannelName,
		},
	})
	return nil
}

// tokenExpiredError marks a 401 from Helix, recoverable by a token refresh.
type tokenExpiredError struct {
	message string
}

func (e *tokenExpiredError) Error() string {
	return fmt.Sprintf("access token expired: %s", e.message)
}

// fetchStream returns the live stream for the configured channel, or nil when
// offline.
func (a *Adapter) fetchStream() (*helix.Stream, error) {
	a.mu.RLock()
	client := a.helix
	a.mu.RUnlock()

	resp, err := client.GetStreams(&helix.StreamsParams{
		UserLogins: []string{a.opts.ChannelName},
	})
	if err != nil {
		return nil, fmt.Errorf("stream lookup failed: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, &tokenExpiredError{message: resp.ErrorMessage}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stream lookup failed: %d %s", resp.StatusCode, resp.ErrorMessage)
	}

	if len(resp.Data.Streams) == 0 {
		return nil, nil
	}
	return &resp.Data.Streams[0], nil
}
