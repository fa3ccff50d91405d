// Package bus implements the in-process broadcast channel connecting the
// supervisor and its platform adapters. Every subscriber observes every
// published event. The buffer is a bounded ring: a subscriber that falls
// behind loses the oldest events and learns how many it missed, it never
// blocks the publisher and never gets a silent gap.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/you-win/sometimes-youwin-bot/internal/metrics"
)

// DefaultCapacity is the ring size used by New.
const DefaultCapacity = 10

// ErrClosed is returned by Publish and Recv once the bus has been closed and
// all buffered events have been consumed.
var ErrClosed = errors.New("bus closed")

// LagError reports that a slow subscriber missed events. The subscription
// stays usable; the next Recv resumes at the oldest retained event.
type LagError struct {
	Missed uint64
}

func (e *LagError) Error() string {
	return fmt.Sprintf("subscriber lagged, missed %d events", e.Missed)
}

// Bus is a broadcast channel of T. Safe for concurrent use.
type Bus[T any] struct {
	mu     sync.Mutex
	ring   []T
	next   uint64 // sequence number of the next published event
	closed bool

	subs map[*Subscription[T]]struct{}
}

// New creates a Bus retaining the last DefaultCapacity events per subscriber.
func New[T any]() *Bus[T] {
	return NewWithCapacity[T](DefaultCapacity)
}

// NewWithCapacity creates a Bus with the given ring size.
func NewWithCapacity[T any](capacity int) *Bus[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Bus[T]{
		ring: make([]T, capacity),
		subs: make(map[*Subscription[T]]struct{}),
	}
}

// Publish delivers event to every current subscriber. It never blocks on slow
// subscribers; they observe the loss through a LagError on their next Recv.
func (b *Bus[T]) Publish(event T) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	b.ring[b.next%uint64(len(b.ring))] = event
	b.next++

	for sub := range b.subs {
		sub.wake()
	}
	return nil
}

// Subscribe registers a new subscriber. It only sees events published after
// this call.
func (b *Bus[T]) Subscribe(name string) *Subscription[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription[T]{
		bus:    b,
		name:   name,
		cursor: b.next,
		notify: make(chan struct{}, 1),
	}
	if b.closed {
		// Late subscriber on a closed bus gets ErrClosed immediately.
		sub.wake()
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Close marks the bus closed. In-flight subscribers drain what the ring still
// holds for them, then receive ErrClosed. Publish fails immediately.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		sub.wake()
	}
}

// Subscription is one subscriber's view of the bus. Not safe for concurrent
// Recv calls; each consumer owns exactly one subscription.
type Subscription[T any] struct {
	bus      *Bus[T]
	name     string
	cursor   uint64
	notify   chan struct{}
	detached bool
}

func (s *Subscription[T]) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Recv returns the next event in publish order. It blocks until an event is
// available, the bus closes, or ctx is done. When the subscriber has fallen
// more than the ring capacity behind, Recv skips to the oldest retained event
// and returns a LagError carrying the number of missed events; the following
// Recv proceeds normally.
func (s *Subscription[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	for {
		event, ok, err := s.tryRecv()
		if err != nil {
			return zero, err
		}
		if ok {
			return event, nil
		}

		select {
		case <-s.notify:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

func (s *Subscription[T]) tryRecv() (T, bool, error) {
	var zero T
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	if s.detached {
		return zero, false, ErrClosed
	}

	capacity := uint64(len(s.bus.ring))
	if s.bus.next > s.cursor+capacity {
		missed := s.bus.next - capacity - s.cursor
		s.cursor = s.bus.next - capacity
		metrics.BusLagTotal.WithLabelValues(s.name).Add(float64(missed))
		return zero, false, &LagError{Missed: missed}
	}

	if s.cursor < s.bus.next {
		event := s.bus.ring[s.cursor%capacity]
		s.cursor++
		return event, true, nil
	}

	if s.bus.closed {
		return zero, false, ErrClosed
	}
	return zero, false, nil
}

// Unsubscribe detaches the subscription. Further Recv calls return ErrClosed.
func (s *Subscription[T]) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	delete(s.bus.subs, s)
	s.cursor = s.bus.next
	s.detached = true
}
