package supervisor

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you-win/sometimes-youwin-bot/internal/botconfig"
	"github.com/you-win/sometimes-youwin-bot/internal/bus"
	"github.com/you-win/sometimes-youwin-bot/internal/platform/correlation"
)

type fakeAdapter struct {
	name    string
	runs    atomic.Int32
	started chan struct{}
	err     error
	block   bool
}

func newFakeAdapter(name string) *fakeAdapter {
	return &fakeAdapter{name: name, started: make(chan struct{}, 16), block: true}
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Run(ctx context.Context, _ chan<- bus.AdapterEvent, _ *bus.Subscription[bus.CentralEvent]) error {
	f.runs.Add(1)
	f.started <- struct{}{}
	if !f.block {
		return f.err
	}
	<-ctx.Done()
	return nil
}

func waitStarted(t *testing.T, a *fakeAdapter) {
	t.Helper()
	select {
	case <-a.started:
	case <-time.After(time.Second):
		t.Fatalf("adapter %s never started", a.name)
	}
}

type fakeSink struct {
	last time.Time
	err  error
}

func (f *fakeSink) LastNotification(context.Context) (time.Time, error) {
	return f.last, f.err
}

func newSupervisor(clock clockwork.Clock) (*Supervisor, *botconfig.Store, *bus.Bus[bus.CentralEvent]) {
	store := botconfig.NewStore()
	central := bus.New[bus.CentralEvent]()
	return New(store, central, clock), store, central
}

func TestRun_StartsUnconditionalAdaptersImmediately(t *testing.T) {
	s, _, _ := newSupervisor(clockwork.NewFakeClock())
	a := newFakeAdapter("discord")
	s.Register(a)

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)

	waitStarted(t, a)
	cancel()
}

func TestRun_GatedAdapterWaitsForReady(t *testing.T) {
	s, _, _ := newSupervisor(clockwork.NewFakeClock())
	a := newFakeAdapter("discord")
	b := newFakeAdapter("twitch")
	s.Register(a)
	s.Register(b, AfterReady("discord"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	waitStarted(t, a)

	// Twitch must not start before Discord reports Ready.
	select {
	case <-b.started:
		t.Fatal("gated adapter started before its precondition")
	case <-time.After(50 * time.Millisecond):
	}

	s.events <- bus.AdapterEvent{Source: "discord", Type: bus.AdapterReady}
	waitStarted(t, b)
}

func TestRun_RestartsDeadAdapterAfterBackoff(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s, _, _ := newSupervisor(clock)
	a := newFakeAdapter("twitch")
	a.block = false
	a.err = errors.New("connection reset")
	s.Register(a)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	waitStarted(t, a)

	// The runner is now parked on the backoff timer.
	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))

	clock.Advance(restartBackoff)
	waitStarted(t, a)
	assert.GreaterOrEqual(t, a.runs.Load(), int32(2))
}

func TestApplyConfig_ValidDocumentReplacesStoreAndBroadcasts(t *testing.T) {
	s, store, central := newSupervisor(clockwork.NewFakeClock())
	sub := central.Subscribe("test")

	s.applyConfig(context.Background(), bus.AdapterEvent{
		Source: "discord",
		Type:   bus.AdapterConfigDocument,
		Text:   "```toml\nmax_message_width = 50\n```",
	})

	assert.Equal(t, 50, store.Snapshot().MaxMessageWidth)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, err := sub.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, bus.CentralConfigChanged, ev.Type)
}

func TestApplyConfig_BadDocumentKeepsLastKnownGood(t *testing.T) {
	s, store, central := newSupervisor(clockwork.NewFakeClock())
	sub := central.Subscribe("test")

	s.applyConfig(context.Background(), bus.AdapterEvent{Source: "discord", Type: bus.AdapterConfigDocument, Text: "```toml\nmax_message_width = 50\n```"})
	s.applyConfig(context.Background(), bus.AdapterEvent{Source: "discord", Type: bus.AdapterConfigDocument, Text: "```toml\nthis is not = = toml\n```"})

	assert.Equal(t, 50, store.Snapshot().MaxMessageWidth, "bad document must not clobber good config")

	// Only the good document produced a broadcast.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, err := sub.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, bus.CentralConfigChanged, ev.Type)

	shortCtx, shortCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer shortCancel()
	_, err = sub.Recv(shortCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHandleNotify_BroadcastsWhenStale(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s, store, central := newSupervisor(clock)
	store.Replace(botconfig.Default())
	s.SetNotificationSink(&fakeSink{last: clock.Now().Add(-24 * time.Hour)})
	sub := central.Subscribe("test")

	s.handleNotify(context.Background(), bus.AdapterEvent{
		Source:       "twitch",
		Type:         bus.AdapterNotify,
		Notification: bus.Notification{Channel: "youwin", Title: "speedrun", URL: "https://twitch.tv/youwin"},
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, err := sub.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, bus.CentralNotify, ev.Type)
	assert.Equal(t, "youwin", ev.Notification.Channel)
	assert.NotEmpty(t, ev.CorrelationID)
}

func TestHandleNotify_LogsUnderBroadcastCorrelationID(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	var buf bytes.Buffer
	slog.SetDefault(slog.New(correlation.NewHandler(slog.NewTextHandler(&buf, nil))))

	clock := clockwork.NewFakeClock()
	s, store, central := newSupervisor(clock)
	store.Replace(botconfig.Default())
	s.SetNotificationSink(&fakeSink{last: clock.Now().Add(-24 * time.Hour)})
	sub := central.Subscribe("test")

	s.handleNotify(context.Background(), bus.AdapterEvent{Source: "twitch", Type: bus.AdapterNotify})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, err := sub.Recv(ctx)
	require.NoError(t, err)

	// The ID on the broadcast event and the ID in the logs must be the
	// same one, injected through the context-aware handler.
	assert.Contains(t, buf.String(), "correlation_id="+ev.CorrelationID)
}

func TestHandleNotify_SuppressedWhenRecent(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s, store, central := newSupervisor(clock)
	store.Replace(botconfig.Default())
	s.SetNotificationSink(&fakeSink{last: clock.Now().Add(-time.Minute)})
	sub := central.Subscribe("test")

	s.handleNotify(context.Background(), bus.AdapterEvent{Source: "twitch", Type: bus.AdapterNotify})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := sub.Recv(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHandleNotify_DroppedWhenSinkFails(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s, _, central := newSupervisor(clock)
	s.SetNotificationSink(&fakeSink{err: errors.New("history unavailable")})
	sub := central.Subscribe("test")

	s.handleNotify(context.Background(), bus.AdapterEvent{Source: "twitch", Type: bus.AdapterNotify})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := sub.Recv(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "failed recency query must drop, not send")
}

func TestHandleNotify_DroppedWithoutSink(t *testing.T) {
	s, _, central := newSupervisor(clockwork.NewFakeClock())
	sub := central.Subscribe("test")

	s.handleNotify(context.Background(), bus.AdapterEvent{Source: "twitch", Type: bus.AdapterNotify})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := sub.Recv(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRun_ShutdownBroadcastsAndClosesBus(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s, _, central := newSupervisor(clock)
	a := newFakeAdapter("discord")
	s.Register(a)
	sub := central.Subscribe("test")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	waitStarted(t, a)
	cancel()

	recvCtx, recvCancel := context.WithTimeout(context.Background(), time.Second)
	defer recvCancel()
	ev, err := sub.Recv(recvCtx)
	require.NoError(t, err)
	assert.Equal(t, bus.CentralShutdown, ev.Type)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("supervisor did not return after shutdown")
	}

	// The bus is closed once shutdown completes.
	_, err = sub.Recv(context.Background())
	assert.ErrorIs(t, err, bus.ErrClosed)
}
