package causal

import (
	"encoding/binary"
	"fmt"
	"time"
)

// EncodeHeader serializes h with the same canonical codec used for
// payloads, so durable stores can keep headers and payloads in sibling
// namespaces addressed by the same encoding discipline.
func EncodeHeader(h EventHeader) []byte {
	parents := make([]byte, 0, len(h.Parents)*16)
	for _, p := range h.Parents {
		parents = append(parents, p[:]...)
	}

	fields := map[string][]byte{
		"id":        h.ID[:],
		"parents":   parents,
		"timestamp": encodeTime(h.Timestamp),
		"digest":    h.Digest[:],
		"intent":    h.Intent[:],
		"kind":      []byte(h.Kind),
	}
	return EncodePayload(fields)
}

// DecodeHeader is the inverse of EncodeHeader.
func DecodeHeader(data []byte) (EventHeader, error) {
	fields, err := DecodePayload(data)
	if err != nil {
		return EventHeader{}, fmt.Errorf("causal: decode header: %w", err)
	}

	var h EventHeader
	if id, ok := fields["id"]; ok && len(id) == 16 {
		copy(h.ID[:], id)
	}
	if digest, ok := fields["digest"]; ok && len(digest) == DigestSize {
		copy(h.Digest[:], digest)
	}
	if intent, ok := fields["intent"]; ok && len(intent) == 16 {
		copy(h.Intent[:], intent)
	}
	h.Kind = string(fields["kind"])
	h.Timestamp = decodeTime(fields["timestamp"])

	if parents, ok := fields["parents"]; ok {
		for i := 0; i+16 <= len(parents); i += 16 {
			var p EventId
			copy(p[:], parents[i:i+16])
			h.Parents = append(h.Parents, p)
		}
	}
	return h, nil
}

func encodeTime(t time.Time) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(t.UnixNano()))
	return buf[:]
}

func decodeTime(b []byte) time.Time {
	if len(b) != 8 {
		return time.Time{}
	}
	return time.Unix(0, int64(binary.BigEndian.Uint64(b))).UTC()
}
