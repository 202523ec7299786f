// Package bus implements the in-process kernel event bus: a typed,
// lossy, multi-subscriber broadcast of KernelEvents.
//
// Each subscriber gets its own bounded ring buffer. Publish never blocks:
// a slow subscriber drops its oldest buffered event rather than stalling
// the publisher, and is told how many events it lost so it knows it lost
// history instead of silently skipping ahead.
package bus

import (
	"sync"

	"github.com/scrappyAI/toka/pkg/metrics"
	"github.com/scrappyAI/toka/pkg/types"
)

// DefaultRingCapacity is the default number of events buffered per
// subscriber before the oldest is dropped.
const DefaultRingCapacity = 1024

// Bus fans out KernelEvents to every live subscriber. Publish never blocks
// and never fails because of a slow subscriber.
type Bus struct {
	mu       sync.Mutex
	subs     map[*Subscription]struct{}
	capacity int
}

// New creates a Bus whose subscribers use the default ring capacity.
func New() *Bus {
	return NewWithCapacity(DefaultRingCapacity)
}

// NewWithCapacity creates a Bus whose subscribers use the given ring
// capacity.
func NewWithCapacity(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	return &Bus{subs: make(map[*Subscription]struct{}), capacity: capacity}
}

// Subscription is a single subscriber's view of the bus: a bounded ring of
// pending events plus a running count of events dropped because the ring
// was full when they arrived.
type Subscription struct {
	mu      sync.Mutex
	ring    []types.KernelEvent
	head    int // index of the oldest buffered event
	size    int // number of buffered events
	cap     int
	lag     uint64 // events dropped since the last Next call observed them
	notify  chan struct{}
	closed  bool
}

// Subscribe registers a new subscription with the bus's default capacity.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{
		ring:   make([]types.KernelEvent, b.capacity),
		cap:    b.capacity,
		notify: make(chan struct{}, 1),
	}
	b.subs[sub] = struct{}{}
	metrics.BusSubscribersTotal.Set(float64(len(b.subs)))
	return sub
}

// Unsubscribe removes sub from the bus. Further Next calls on sub return
// only whatever remains buffered, then ok=false.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	delete(b.subs, sub)
	metrics.BusSubscribersTotal.Set(float64(len(b.subs)))
	b.mu.Unlock()

	sub.mu.Lock()
	sub.closed = true
	sub.mu.Unlock()
}

// SubscriberCount reports the number of live subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Publish fans event out to every live subscriber. It never blocks: a
// subscriber whose ring is full drops its own oldest buffered event and
// records the loss, other subscribers and the publisher are unaffected.
// Within a single call, subscribers observe events in the order Publish
// was called.
func (b *Bus) Publish(event types.KernelEvent) {
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.push(event)
	}
}

func (s *Subscription) push(event types.KernelEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	if s.size == s.cap {
		// Ring full: drop the oldest buffered event to make room, and
		// record the loss so the next Next() call can report it.
		s.head = (s.head + 1) % s.cap
		s.size--
		s.lag++
		metrics.BusSubscriberLagTotal.Inc()
	}

	tail := (s.head + s.size) % s.cap
	s.ring[tail] = event
	s.size++

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Next blocks until an event is available (or the subscription is closed
// with nothing left buffered), then returns it. lag reports how many
// events were dropped immediately before this one due to a full ring; a
// non-zero lag means the caller has fallen behind and resumed at the
// oldest event still held in its ring, never silently reordered.
func (s *Subscription) Next() (event types.KernelEvent, lag uint64, ok bool) {
	for {
		s.mu.Lock()
		if s.size > 0 {
			event = s.ring[s.head]
			lag = s.lag
			s.lag = 0
			s.head = (s.head + 1) % s.cap
			s.size--
			s.mu.Unlock()
			return event, lag, true
		}
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return types.KernelEvent{}, 0, false
		}
		<-s.notify
	}
}

// TryNext is the non-blocking counterpart to Next: ok is false if nothing
// is currently buffered.
func (s *Subscription) TryNext() (event types.KernelEvent, lag uint64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.size == 0 {
		return types.KernelEvent{}, 0, false
	}
	event = s.ring[s.head]
	lag = s.lag
	s.lag = 0
	s.head = (s.head + 1) % s.cap
	s.size--
	return event, lag, true
}
