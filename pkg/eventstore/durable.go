package eventstore

import (
	"encoding/binary"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/scrappyAI/toka/pkg/causal"
	"github.com/scrappyAI/toka/pkg/metrics"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketHeaders  = []byte("headers")
	bucketPayloads = []byte("payloads")
)

// CorruptionError reports that data read back from the durable store
// failed its integrity check. It is always returned as an error, never
// silently folded into a missing-value ok=false.
type CorruptionError struct {
	Reason string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("eventstore: corrupted data: %s", e.Reason)
}

// Durable is a bbolt-backed Store with two buckets: headers keyed by
// EventId and payloads keyed by digest.
type Durable struct {
	db *bolt.DB
	bc *broadcaster
}

// NewDurable opens (creating if absent) a bbolt database under dataDir.
func NewDurable(dataDir string) (*Durable, error) {
	dbPath := filepath.Join(dataDir, "toka-events.db")
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("eventstore: open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketHeaders); err != nil {
			return fmt.Errorf("create headers bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists(bucketPayloads); err != nil {
			return fmt.Errorf("create payloads bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		metrics.RegisterComponent("eventstore", false, err.Error())
		return nil, err
	}

	metrics.RegisterComponent("eventstore", true, "opened "+dbPath)
	return &Durable{db: db, bc: newBroadcaster(DefaultBroadcastCapacity)}, nil
}

func (d *Durable) Commit(header causal.EventHeader, payload []byte) (causal.Digest, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.EventCommitDuration)

	err := d.db.Update(func(tx *bolt.Tx) error {
		payloads := tx.Bucket(bucketPayloads)
		key := header.Digest[:]
		if payloads.Get(key) == nil {
			if err := payloads.Put(key, encodeChecked(payload)); err != nil {
				return fmt.Errorf("put payload: %w", err)
			}
		}

		headers := tx.Bucket(bucketHeaders)
		idKey, err := uuid.UUID(header.ID).MarshalBinary()
		if err != nil {
			return fmt.Errorf("marshal event id: %w", err)
		}
		if err := headers.Put(idKey, causal.EncodeHeader(header)); err != nil {
			return fmt.Errorf("put header: %w", err)
		}
		return nil
	})
	if err != nil {
		metrics.UpdateComponent("eventstore", false, err.Error())
		return causal.Digest{}, err
	}

	metrics.UpdateComponent("eventstore", true, "")
	d.bc.publish(header)
	metrics.EventsCommittedTotal.Inc()
	return header.Digest, nil
}

func (d *Durable) Header(id causal.EventId) (causal.EventHeader, bool, error) {
	idKey, err := uuid.UUID(id).MarshalBinary()
	if err != nil {
		return causal.EventHeader{}, false, fmt.Errorf("marshal event id: %w", err)
	}

	var header causal.EventHeader
	found := false
	err = d.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketHeaders).Get(idKey)
		if raw == nil {
			return nil
		}
		found = true
		decoded, decErr := causal.DecodeHeader(raw)
		if decErr != nil {
			corrupt := &CorruptionError{Reason: fmt.Sprintf("header %s: %v", id, decErr)}
			metrics.UpdateComponent("eventstore", false, corrupt.Error())
			return corrupt
		}
		header = decoded
		return nil
	})
	if err != nil {
		return causal.EventHeader{}, false, err
	}
	return header, found, nil
}

func (d *Durable) Payload(digest causal.Digest) ([]byte, bool, error) {
	var payload []byte
	found := false
	err := d.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketPayloads).Get(digest[:])
		if raw == nil {
			return nil
		}
		found = true
		decoded, decErr := decodeChecked(raw)
		if decErr != nil {
			metrics.UpdateComponent("eventstore", false, decErr.Error())
			return decErr
		}
		payload = decoded
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return payload, found, nil
}

func (d *Durable) Subscribe() *Subscription {
	return d.bc.subscribe()
}

func (d *Durable) Close() error {
	return d.db.Close()
}

var _ Store = (*Durable)(nil)

// encodeChecked prefixes payload with a content hash of itself so a
// bit-flip introduced between write and read is detectable, independent
// of any EventHeader's parent set (header.Digest mixes parents in and so
// cannot be recomputed from the payload bytes alone at read time).
func encodeChecked(payload []byte) []byte {
	checksum := causal.HashPayload(payload)
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(payload)))
	out := make([]byte, 0, len(checksum)+8+len(payload))
	out = append(out, checksum[:]...)
	out = append(out, lenBuf[:]...)
	out = append(out, payload...)
	return out
}

func decodeChecked(raw []byte) ([]byte, error) {
	if len(raw) < causal.DigestSize+8 {
		return nil, &CorruptionError{Reason: "payload record too short"}
	}
	want := raw[:causal.DigestSize]
	length := binary.BigEndian.Uint64(raw[causal.DigestSize : causal.DigestSize+8])
	body := raw[causal.DigestSize+8:]
	if uint64(len(body)) != length {
		return nil, &CorruptionError{Reason: "payload length mismatch"}
	}

	got := causal.HashPayload(body)
	if !bytesEqual(got[:], want) {
		return nil, &CorruptionError{Reason: "payload checksum mismatch"}
	}

	out := make([]byte, len(body))
	copy(out, body)
	return out, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
