package eventstore

import (
	"sync"

	"github.com/scrappyAI/toka/pkg/causal"
	"github.com/scrappyAI/toka/pkg/metrics"
)

// Volatile is an in-memory Store. It never persists anything across
// process restarts; it exists for tests and for embedders that run a
// single-node kernel with no durability requirement.
type Volatile struct {
	mu       sync.RWMutex
	headers  map[causal.EventId]causal.EventHeader
	payloads map[causal.Digest][]byte
	bc       *broadcaster
}

// NewVolatile creates an empty in-memory Store.
func NewVolatile() *Volatile {
	return &Volatile{
		headers:  make(map[causal.EventId]causal.EventHeader),
		payloads: make(map[causal.Digest][]byte),
		bc:       newBroadcaster(DefaultBroadcastCapacity),
	}
}

func (v *Volatile) Commit(header causal.EventHeader, payload []byte) (causal.Digest, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.EventCommitDuration)

	v.mu.Lock()
	if _, exists := v.payloads[header.Digest]; !exists {
		stored := make([]byte, len(payload))
		copy(stored, payload)
		v.payloads[header.Digest] = stored
	}
	v.headers[header.ID] = header
	v.mu.Unlock()

	v.bc.publish(header)
	metrics.EventsCommittedTotal.Inc()
	return header.Digest, nil
}

func (v *Volatile) Header(id causal.EventId) (causal.EventHeader, bool, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	h, ok := v.headers[id]
	return h, ok, nil
}

func (v *Volatile) Payload(digest causal.Digest) ([]byte, bool, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	p, ok := v.payloads[digest]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(p))
	copy(out, p)
	return out, true, nil
}

func (v *Volatile) Subscribe() *Subscription {
	return v.bc.subscribe()
}

func (v *Volatile) Close() error { return nil }

var _ Store = (*Volatile)(nil)
