// Package eventstore implements the causal event store: an append-only,
// content-addressed log of EventHeaders and deduplicated payload blobs,
// with live subscription.
//
// A small Store interface is backed by two implementations: an in-memory
// one for tests and a bbolt-backed one for durable deployments.
package eventstore

import (
	"github.com/scrappyAI/toka/pkg/causal"
)

// Store is the event store contract shared by the volatile (in-memory)
// and durable (bbolt) back-ends.
type Store interface {
	// Commit stores payload under its digest if not already present,
	// stores header (overwriting is safe: header fields are derived from
	// payload+parents and never change for a given id), and broadcasts
	// header to all live subscribers. Returns the digest payload was (or
	// already was) stored under.
	Commit(header causal.EventHeader, payload []byte) (causal.Digest, error)

	// Header looks up a previously committed header by id.
	Header(id causal.EventId) (causal.EventHeader, bool, error)

	// Payload looks up a previously committed payload by digest. A
	// missing payload is reported via ok=false; a digest/checksum
	// mismatch or decode failure is a StorageFailure-class error, never
	// silently folded into ok=false.
	Payload(digest causal.Digest) ([]byte, bool, error)

	// Subscribe returns a Subscription that observes every header
	// committed from this call onward.
	Subscribe() *Subscription

	// Close releases any underlying resources (durable back-end only;
	// a no-op for the volatile back-end).
	Close() error
}
