// Package cluster implements the Raft-replicated state machine and node:
// a thin raft.FSM that turns committed log entries back into kernel
// submissions and event-store commits, plus a Node wrapping
// hashicorp/raft for bootstrap/join/membership/leader-hint.
package cluster

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/raft"

	"github.com/scrappyAI/toka/pkg/causal"
	"github.com/scrappyAI/toka/pkg/eventstore"
	"github.com/scrappyAI/toka/pkg/kernel"
	"github.com/scrappyAI/toka/pkg/metrics"
	"github.com/scrappyAI/toka/pkg/types"
)

// CommandKind tags the proposal kinds the state machine understands.
type CommandKind string

const (
	CommandCommitEvent     CommandKind = "commit_event"
	CommandProcessMessage  CommandKind = "process_message"
)

// Command is the envelope carried by every Raft log entry.
type Command struct {
	Kind CommandKind     `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// CommitEventPayload proposes appending an already-hashed header and its
// payload to the event store.
type CommitEventPayload struct {
	EncodedHeader []byte `json:"encoded_header"`
	Payload       []byte `json:"payload"`
}

// ProcessMessagePayload proposes re-entering the kernel for message,
// tagged with request_id so a retried Raft proposal replays idempotently.
type ProcessMessagePayload struct {
	Message   types.Message `json:"message"`
	RequestID string        `json:"request_id"`
}

// ApplyResult is what Apply returns via future.Response(); it folds the
// kernel's usual (KernelEvent, error) pair plus an optional digest so
// CommitEvent proposals have something to hand back too.
type ApplyResult struct {
	Event  types.KernelEvent
	Digest causal.Digest
	Err    error
}

// applyResultWire is ApplyResult's JSON form: Err becomes a plain string
// since error is not itself marshalable, and snapshot/restore only needs
// the message for idempotent-replay purposes, not a reconstructible type.
type applyResultWire struct {
	Event  types.KernelEvent `json:"event"`
	Digest causal.Digest     `json:"digest"`
	ErrMsg string            `json:"err_msg,omitempty"`
}

func (r ApplyResult) MarshalJSON() ([]byte, error) {
	wire := applyResultWire{Event: r.Event, Digest: r.Digest}
	if r.Err != nil {
		wire.ErrMsg = r.Err.Error()
	}
	return json.Marshal(wire)
}

func (r *ApplyResult) UnmarshalJSON(data []byte) error {
	var wire applyResultWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	r.Event = wire.Event
	r.Digest = wire.Digest
	if wire.ErrMsg != "" {
		r.Err = fmt.Errorf("%s", wire.ErrMsg)
	} else {
		r.Err = nil
	}
	return nil
}

// DefaultIdempotencyTableSize bounds the request_id → result table so a
// long-running leader can't grow it without limit; chosen generously
// above the Raft AppendEntries batch cap.
const DefaultIdempotencyTableSize = 4096

// FSM applies committed Raft log entries to the event store and kernel.
// It deliberately does not snapshot world state: world state persistence
// is an embedder concern, reconstructed by replaying the event store. The
// only state FSM itself owns and must carry across snapshot/restore is
// the idempotency table.
type FSM struct {
	mu         sync.RWMutex
	store      eventstore.Store
	kernel     *kernel.Kernel
	idempotent *lru.Cache[string, ApplyResult]
}

// NewFSM builds an FSM over store and kernelInstance with an idempotency
// table of the given size (DefaultIdempotencyTableSize if zero).
func NewFSM(store eventstore.Store, kernelInstance *kernel.Kernel, idempotencyTableSize int) (*FSM, error) {
	if idempotencyTableSize <= 0 {
		idempotencyTableSize = DefaultIdempotencyTableSize
	}
	cache, err := lru.New[string, ApplyResult](idempotencyTableSize)
	if err != nil {
		return nil, fmt.Errorf("cluster: create idempotency table: %w", err)
	}
	return &FSM{store: store, kernel: kernelInstance, idempotent: cache}, nil
}

// Apply applies a single committed Raft log entry.
func (f *FSM) Apply(log *raft.Log) interface{} {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RaftCommitDuration)

	var cmd Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return ApplyResult{Err: fmt.Errorf("cluster: unmarshal command: %w", err)}
	}

	switch cmd.Kind {
	case CommandCommitEvent:
		return f.applyCommitEvent(cmd.Data)
	case CommandProcessMessage:
		return f.applyProcessMessage(cmd.Data)
	default:
		return ApplyResult{Err: fmt.Errorf("cluster: unknown command kind %q", cmd.Kind)}
	}
}

func (f *FSM) applyCommitEvent(data json.RawMessage) ApplyResult {
	var payload CommitEventPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return ApplyResult{Err: fmt.Errorf("cluster: unmarshal commit_event: %w", err)}
	}

	header, err := causal.DecodeHeader(payload.EncodedHeader)
	if err != nil {
		return ApplyResult{Err: fmt.Errorf("cluster: decode header: %w", err)}
	}

	digest, err := f.store.Commit(header, payload.Payload)
	if err != nil {
		return ApplyResult{Err: fmt.Errorf("cluster: commit event: %w", err)}
	}
	return ApplyResult{Digest: digest}
}

func (f *FSM) applyProcessMessage(data json.RawMessage) ApplyResult {
	var payload ProcessMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return ApplyResult{Err: fmt.Errorf("cluster: unmarshal process_message: %w", err)}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if payload.RequestID != "" {
		if cached, ok := f.idempotent.Get(payload.RequestID); ok {
			metrics.IdempotencyReplaysTotal.Inc()
			return cached
		}
	}

	event, err := f.kernel.Submit(payload.Message)
	result := ApplyResult{Event: event, Err: err}

	if payload.RequestID != "" {
		f.idempotent.Add(payload.RequestID, result)
	}
	return result
}

// idempotencySnapshot is the on-wire form of the idempotency table: a
// plain slice of entries, since lru.Cache itself is not serializable.
type idempotencySnapshot struct {
	RequestID string      `json:"request_id"`
	Result    ApplyResult `json:"result"`
}

// Snapshot captures the idempotency table. World state itself is not
// captured here (see FSM doc comment).
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	entries := make([]idempotencySnapshot, 0, f.idempotent.Len())
	for _, key := range f.idempotent.Keys() {
		if result, ok := f.idempotent.Peek(key); ok {
			entries = append(entries, idempotencySnapshot{RequestID: key, Result: result})
		}
	}
	return &fsmSnapshot{entries: entries}, nil
}

// Restore replaces the idempotency table with the contents of a
// previously persisted snapshot.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var entries []idempotencySnapshot
	if err := json.NewDecoder(rc).Decode(&entries); err != nil {
		return fmt.Errorf("cluster: decode snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.idempotent.Purge()
	for _, e := range entries {
		f.idempotent.Add(e.RequestID, e.Result)
	}
	return nil
}

type fsmSnapshot struct {
	entries []idempotencySnapshot
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s.entries); err != nil {
			return err
		}
		return sink.Close()
	}()
	if err != nil {
		sink.Cancel()
	}
	return err
}

func (s *fsmSnapshot) Release() {}

var _ raft.FSM = (*FSM)(nil)
