// Package supervisor runs the platform adapters and owns the control plane
// between them: it fans in adapter events, applies config documents to the
// shared store, gates cross-platform notifications, and restarts adapters
// that die. Adapters never talk to each other directly.
package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/you-win/sometimes-youwin-bot/internal/botconfig"
	"github.com/you-win/sometimes-youwin-bot/internal/bus"
	"github.com/you-win/sometimes-youwin-bot/internal/metrics"
	"github.com/you-win/sometimes-youwin-bot/internal/platform/correlation"
	"github.com/you-win/sometimes-youwin-bot/internal/platform/logging"
)

const (
	// restartBackoff is the fixed delay before a dead adapter is started
	// again. Deliberately not exponential: these are long-lived
	// connections to services that recover on their own schedule, and a
	// human is usually watching the logs.
	restartBackoff = 5 * time.Second

	// shutdownGrace bounds how long Shutdown waits for adapters to drain.
	shutdownGrace = 10 * time.Second

	eventBuffer = 64
)

// Adapter is one platform connection managed by the supervisor. Run blocks
// until the adapter stops, reporting its lifecycle on events and consuming
// supervisor broadcasts from central. A nil error means a clean exit.
type Adapter interface {
	Name() string
	Run(ctx context.Context, events chan<- bus.AdapterEvent, central *bus.Subscription[bus.CentralEvent]) error
}

// NotificationSink answers when the bot last posted a stream notification.
// Implemented by the Discord adapter.
type NotificationSink interface {
	LastNotification(ctx context.Context) (time.Time, error)
}

type entry struct {
	adapter Adapter

	// after names the adapter that must report Ready before this one
	// starts. Empty means start immediately.
	after   string
	started bool
}

// Option configures one registered adapter.
type Option func(*entry)

// AfterReady delays the adapter's first start until the named adapter has
// reported Ready.
func AfterReady(name string) Option {
	return func(e *entry) { e.after = name }
}

// Supervisor coordinates adapters around the shared config store and the
// central broadcast bus.
type Supervisor struct {
	store   *botconfig.Store
	central *bus.Bus[bus.CentralEvent]
	clock   clockwork.Clock

	events  chan bus.AdapterEvent
	entries []*entry
	sink    NotificationSink

	wg sync.WaitGroup
}

// New creates a Supervisor publishing on central and applying config
// documents to store.
func New(store *botconfig.Store, central *bus.Bus[bus.CentralEvent], clock clockwork.Clock) *Supervisor {
	return &Supervisor{
		store:   store,
		central: central,
		clock:   clock,
		events:  make(chan bus.AdapterEvent, eventBuffer),
	}
}

// Register adds an adapter. Must be called before Run.
func (s *Supervisor) Register(adapter Adapter, opts ...Option) {
	e := &entry{adapter: adapter}
	for _, opt := range opts {
		opt(e)
	}
	s.entries = append(s.entries, e)
}

// SetNotificationSink installs the platform queried for notification
// recency. Without a sink every notification is dropped.
func (s *Supervisor) SetNotificationSink(sink NotificationSink) {
	s.sink = sink
}

// Run starts all adapters whose preconditions hold and processes adapter
// events until ctx is cancelled. It then broadcasts Shutdown, stops the
// adapters and waits out a bounded grace period before returning.
func (s *Supervisor) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, e := range s.entries {
		if e.after == "" {
			s.start(runCtx, e)
		}
	}

	for {
		select {
		case <-ctx.Done():
			s.shutdown(cancel)
			return
		case ev := <-s.events:
			s.handle(runCtx, ev)
		}
	}
}

func (s *Supervisor) start(ctx context.Context, e *entry) {
	if e.started {
		return
	}
	e.started = true

	log := logging.WithAdapter(e.adapter.Name())
	log.Info("starting adapter")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			sub := s.central.Subscribe(e.adapter.Name())
			err := e.adapter.Run(ctx, s.events, sub)
			sub.Unsubscribe()

			if ctx.Err() != nil {
				return
			}

			if err != nil {
				log.Error("adapter exited", "error", err)
			} else {
				log.Warn("adapter exited cleanly, restarting")
			}
			metrics.AdapterRestartsTotal.WithLabelValues(e.adapter.Name()).Inc()

			timer := s.clock.NewTimer(restartBackoff)
			select {
			case <-timer.Chan():
			case <-ctx.Done():
				timer.Stop()
				return
			}
		}
	}()
}

func (s *Supervisor) handle(ctx context.Context, ev bus.AdapterEvent) {
	log := logging.WithAdapter(ev.Source)

	switch ev.Type {
	case bus.AdapterReady:
		log.Info("adapter ready")
		for _, e := range s.entries {
			if e.after == ev.Source {
				s.start(ctx, e)
			}
		}

	case bus.AdapterDebug:
		log.Debug("adapter debug", "text", ev.Text)

	case bus.AdapterError:
		log.Warn("adapter error", "text", ev.Text)

	case bus.AdapterConfigDocument:
		s.applyConfig(ctx, ev)

	case bus.AdapterFatalTokenExpiry:
		// The run loop restarts the adapter; a restart re-runs the
		// token refresh, which is the only recovery there is.
		log.Error("adapter credentials expired")

	case bus.AdapterNotify:
		s.handleNotify(ctx, ev)

	default:
		log.Warn("unknown adapter event", "type", int(ev.Type))
	}
}

// applyConfig parses one raw config document. A good document replaces the
// whole snapshot and is announced on the central bus; a bad one leaves the
// last known good config in place.
func (s *Supervisor) applyConfig(ctx context.Context, ev bus.AdapterEvent) {
	ctx = correlation.WithID(ctx, correlation.NewID())
	log := logging.WithAdapter(ev.Source)

	cfg, err := botconfig.ParseDocument(ev.Text)
	if err != nil {
		log.WarnContext(ctx, "rejecting config document", "error", err)
		metrics.ConfigReloadsTotal.WithLabelValues("rejected").Inc()
		return
	}

	s.store.Replace(cfg)
	metrics.ConfigReloadsTotal.WithLabelValues("applied").Inc()
	s.broadcast(bus.CentralEvent{Type: bus.CentralConfigChanged})
	log.InfoContext(ctx, "config replaced")
}

// handleNotify decides whether a proposed stream announcement goes out. The
// sink is asked when the last announcement happened; if that query fails the
// notification is dropped rather than risking a duplicate ping.
func (s *Supervisor) handleNotify(ctx context.Context, ev bus.AdapterEvent) {
	id := correlation.NewID()
	ctx = correlation.WithID(ctx, id)
	log := logging.WithAdapter(ev.Source).With("channel", ev.Notification.Channel)

	if s.sink == nil {
		log.WarnContext(ctx, "dropping notification, no sink configured")
		metrics.NotificationsTotal.WithLabelValues("dropped").Inc()
		return
	}

	last, err := s.sink.LastNotification(ctx)
	if err != nil {
		log.WarnContext(ctx, "dropping notification, recency query failed", "error", err)
		metrics.NotificationsTotal.WithLabelValues("dropped").Inc()
		return
	}

	min := s.store.Snapshot().MinNotifyInterval()
	if age := s.clock.Now().Sub(last); age < min {
		log.InfoContext(ctx, "suppressing notification, too recent", "age", age, "min", min)
		metrics.NotificationsTotal.WithLabelValues("suppressed").Inc()
		return
	}

	s.broadcast(bus.CentralEvent{
		Type:          bus.CentralNotify,
		Notification:  ev.Notification,
		CorrelationID: id,
	})
	metrics.NotificationsTotal.WithLabelValues("sent").Inc()
	log.InfoContext(ctx, "notification broadcast")
}

func (s *Supervisor) broadcast(ev bus.CentralEvent) {
	if err := s.central.Publish(ev); err != nil {
		slog.Warn("central bus publish failed", "error", err, "type", ev.Type.String())
		return
	}
	metrics.BusEventsTotal.WithLabelValues(ev.Type.String()).Inc()
}

func (s *Supervisor) shutdown(cancel context.CancelFunc) {
	slog.Info("supervisor shutting down")
	s.broadcast(bus.CentralEvent{Type: bus.CentralShutdown})
	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	timer := s.clock.NewTimer(shutdownGrace)
	defer timer.Stop()

	select {
	case <-done:
		slog.Info("all adapters stopped")
	case <-timer.Chan():
		slog.Warn("shutdown grace period elapsed, abandoning adapters")
	}
	s.central.Close()
}
