package eventstore

import (
	"sync"

	"github.com/scrappyAI/toka/pkg/causal"
)

// DefaultBroadcastCapacity is the default ring size for header broadcast
// subscriptions.
const DefaultBroadcastCapacity = 1024

// broadcaster fans committed headers out to subscribers using the same
// drop-oldest-with-lag-indicator ring discipline as pkg/bus: a store
// subscriber that falls behind should never block a commit.
type broadcaster struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
	cap  int
}

func newBroadcaster(capacity int) *broadcaster {
	if capacity <= 0 {
		capacity = DefaultBroadcastCapacity
	}
	return &broadcaster{subs: make(map[*Subscription]struct{}), cap: capacity}
}

func (b *broadcaster) subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &Subscription{
		ring:   make([]causal.EventHeader, b.cap),
		cap:    b.cap,
		notify: make(chan struct{}, 1),
	}
	b.subs[sub] = struct{}{}
	return sub
}

func (b *broadcaster) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()

	sub.mu.Lock()
	sub.closed = true
	sub.mu.Unlock()
}

func (b *broadcaster) publish(header causal.EventHeader) {
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.push(header)
	}
}

// Subscription is a live view of headers committed to a Store from the
// point Subscribe was called onward.
type Subscription struct {
	mu     sync.Mutex
	ring   []causal.EventHeader
	head   int
	size   int
	cap    int
	lag    uint64
	notify chan struct{}
	closed bool
}

func (s *Subscription) push(header causal.EventHeader) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if s.size == s.cap {
		s.head = (s.head + 1) % s.cap
		s.size--
		s.lag++
	}
	tail := (s.head + s.size) % s.cap
	s.ring[tail] = header
	s.size++

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Next blocks until a header is available or the subscription closes with
// nothing left buffered.
func (s *Subscription) Next() (header causal.EventHeader, lag uint64, ok bool) {
	for {
		s.mu.Lock()
		if s.size > 0 {
			header = s.ring[s.head]
			lag = s.lag
			s.lag = 0
			s.head = (s.head + 1) % s.cap
			s.size--
			s.mu.Unlock()
			return header, lag, true
		}
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return causal.EventHeader{}, 0, false
		}
		<-s.notify
	}
}

// TryNext is the non-blocking counterpart to Next.
func (s *Subscription) TryNext() (header causal.EventHeader, lag uint64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.size == 0 {
		return causal.EventHeader{}, 0, false
	}
	header = s.ring[s.head]
	lag = s.lag
	s.lag = 0
	s.head = (s.head + 1) % s.cap
	s.size--
	return header, lag, true
}
