// Package causal implements the event header and causal hash (C6): a
// canonical encoding of an event payload plus a Blake3 digest over that
// payload and its sorted causal-parent digests, so identical
// (payload, parent-set) pairs always produce the identical digest
// regardless of the order parents were supplied in.
package causal

import (
	"bytes"
	"encoding/binary"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// DigestSize is the length in bytes of a causal digest.
const DigestSize = 32

// Digest is a 32-byte Blake3 content digest.
type Digest [DigestSize]byte

// EventId identifies an EventHeader.
type EventId uuid.UUID

// NewEventId returns a fresh randomly generated EventId.
func NewEventId() EventId { return EventId(uuid.New()) }

func (id EventId) String() string { return uuid.UUID(id).String() }

// IntentId identifies a cluster assigned by an intent strategy (C8). The
// nil IntentId means "unclustered".
type IntentId uuid.UUID

// NilIntentId is the sentinel value meaning "no intent assigned".
var NilIntentId IntentId

// inlineParents bounds how many parent EventIds the reference
// implementation keeps inline before spilling to a heap-allocated slice;
// Go's slice already amortizes this the same way a small-vector would, so
// EventHeader.Parents is a plain slice — the "≤4 inline, unbounded spill"
// layout this constant documents is an optimization with no externally
// observable effect on Go's slice semantics.
const inlineParents = 4

// EventHeader is the immutable record produced for every committed event.
type EventHeader struct {
	ID        EventId
	Parents   []EventId
	Timestamp time.Time
	Digest    Digest
	Intent    IntentId
	Kind      string
}

// CreateEventHeader builds an EventHeader for payload with the given
// parents, intent, and kind. The digest is Blake3(payload ||
// sort_ascending(parent digests)); parents are sorted byte-wise before
// hashing so the digest is commutative in parent order.
func CreateEventHeader(parents []EventHeader, intent IntentId, kind string, payload []byte) EventHeader {
	parentDigests := make([][DigestSize]byte, len(parents))
	parentIDs := make([]EventId, len(parents))
	for i, p := range parents {
		parentDigests[i] = p.Digest
		parentIDs[i] = p.ID
	}
	sort.Slice(parentDigests, func(i, j int) bool {
		return bytes.Compare(parentDigests[i][:], parentDigests[j][:]) < 0
	})

	h := blake3.New()
	h.Write(payload)
	for _, d := range parentDigests {
		h.Write(d[:])
	}

	var digest Digest
	copy(digest[:], h.Sum(nil))

	return EventHeader{
		ID:        NewEventId(),
		Parents:   parentIDs,
		Timestamp: time.Now(),
		Digest:    digest,
		Intent:    intent,
		Kind:      kind,
	}
}

// HashPayload returns Blake3(payload) alone, with no parent digests mixed
// in. The durable event store uses this to verify a payload read back
// from disk still matches the digest it was stored under, independent of
// any particular EventHeader's parent set.
func HashPayload(payload []byte) Digest {
	h := blake3.New()
	h.Write(payload)
	var digest Digest
	copy(digest[:], h.Sum(nil))
	return digest
}

// EncodePayload canonically encodes v as a schema-tagged binary map so
// re-encoding a decoded value always yields the same bytes (required for
// digest stability). The schema tag is the field count and
// each field's name length-prefixed ahead of its value, so the format is
// self-describing without relying on map iteration order.
//
// This is a minimal canonical codec deliberately kept on top of the
// standard library's binary package rather than a general serialization
// library: canonical byte-for-byte stability across re-encodes is exactly
// what JSON (whose object key order canonical form varies by
// implementation) and gob (which embeds type metadata keyed to a single
// process's type registry) do not guarantee, and nothing in the retrieved
// pack offers a canonical binary codec with stable field ordering either.
func EncodePayload(fields map[string][]byte) []byte {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(keys)))
	buf.Write(countBuf[:])

	for _, k := range keys {
		writeLenPrefixed(&buf, []byte(k))
		writeLenPrefixed(&buf, fields[k])
	}
	return buf.Bytes()
}

func writeLenPrefixed(buf *bytes.Buffer, b []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	buf.Write(lenBuf[:])
	buf.Write(b)
}

// DecodePayload is the inverse of EncodePayload.
func DecodePayload(data []byte) (map[string][]byte, error) {
	r := bytes.NewReader(data)
	count, err := readUint32(r)
	if err != nil {
		return nil, err
	}

	fields := make(map[string][]byte, count)
	for i := uint32(0); i < count; i++ {
		key, err := readLenPrefixed(r)
		if err != nil {
			return nil, err
		}
		val, err := readLenPrefixed(r)
		if err != nil {
			return nil, err
		}
		fields[string(key)] = val
	}
	return fields, nil
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func readLenPrefixed(r *bytes.Reader) ([]byte, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
	}
	return buf, nil
}
