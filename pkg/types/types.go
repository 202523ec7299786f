package types

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// EntityId is an opaque 128-bit identifier for any principal or resource
// known to the kernel. It carries no structure beyond equality and hashing.
type EntityId uuid.UUID

// NewEntityId returns a fresh randomly generated EntityId.
func NewEntityId() EntityId {
	return EntityId(uuid.New())
}

// EntityIdFromUint64 builds a deterministic EntityId from a single scalar,
// useful for tests and for embedders that already have a small-integer
// principal space.
func EntityIdFromUint64(n uint64) EntityId {
	var id EntityId
	for i := 0; i < 8; i++ {
		id[15-i] = byte(n >> (8 * i))
	}
	return id
}

func (e EntityId) String() string {
	return uuid.UUID(e).String()
}

func (e EntityId) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.String())
}

func (e *EntityId) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return fmt.Errorf("types: invalid EntityId %q: %w", s, err)
	}
	*e = EntityId(id)
	return nil
}

// Message is an authenticated envelope carrying an Operation. Capability is
// the opaque wire-format token string; the kernel never interprets it
// directly, only through pkg/token.
type Message struct {
	Origin     EntityId  `json:"origin"`
	Capability string    `json:"capability"`
	Op         Operation `json:"op"`
}

// OperationKind tags the variant carried by an Operation, mirroring the
// Command{Op string; Data json.RawMessage} pattern the kernel's opcode
// dispatch loop relies on.
type OperationKind string

const (
	OpCreateEntity     OperationKind = "create_entity"
	OpDeleteEntity     OperationKind = "delete_entity"
	OpGrantCapability  OperationKind = "grant_capability"
	OpRevokeCapability OperationKind = "revoke_capability"
	OpSubmitBatch      OperationKind = "submit_batch"
	OpEmitEvent        OperationKind = "emit_event"
	OpRegisterHandler  OperationKind = "register_handler"
)

// Operation is a tagged union of the mutation a Message requests. Only the
// Kind-specific fields relevant to that Kind are populated; JSON framing
// keeps the wire format self-describing.
type Operation struct {
	Kind OperationKind `json:"kind"`

	// CreateEntity / DeleteEntity
	Entity EntityId `json:"entity,omitempty"`

	// GrantCapability / RevokeCapability
	Grantee     EntityId `json:"grantee,omitempty"`
	Permissions []string `json:"permissions,omitempty"`

	// SubmitBatch
	Batch []Message `json:"batch,omitempty"`

	// EmitEvent
	Topic string `json:"topic,omitempty"`
	Data  []byte `json:"data,omitempty"`

	// RegisterHandler
	HandlerTag string `json:"handler_tag,omitempty"`
}

// KernelEventKind tags the variant carried by a KernelEvent, paralleling
// OperationKind.
type KernelEventKind string

const (
	EventEntityCreated     KernelEventKind = "entity_created"
	EventEntityDeleted     KernelEventKind = "entity_deleted"
	EventCapabilityGranted KernelEventKind = "capability_granted"
	EventCapabilityRevoked KernelEventKind = "capability_revoked"
	EventEmitted           KernelEventKind = "event_emitted"
	EventHandlerRegistered KernelEventKind = "handler_registered"
	EventBatchSubmitted    KernelEventKind = "batch_submitted"
)

// KernelEvent is the effect record the kernel emits after a successful
// submission. It carries only the fields needed to reconstruct the
// world-state effect, not the original Operation verbatim.
type KernelEvent struct {
	Kind        KernelEventKind `json:"kind"`
	Origin      EntityId        `json:"origin"`
	Entity      EntityId        `json:"entity,omitempty"`
	Grantee     EntityId        `json:"grantee,omitempty"`
	Permissions []string        `json:"permissions,omitempty"`
	Topic       string          `json:"topic,omitempty"`
	Data        []byte          `json:"data,omitempty"`
	HandlerTag  string          `json:"handler_tag,omitempty"`
	Results     []KernelEvent   `json:"results,omitempty"` // SubmitBatch results, in order
}

// WorldState is the only contract the kernel requires of embedder-supplied
// state: it must be safely mutable while a submission is in flight. The
// kernel serializes access with its own write guard (see pkg/kernel), so
// implementations need no internal locking for calls arriving through the
// kernel. Embedders exposing direct reader access outside the kernel are
// responsible for their own synchronization of that path.
type WorldState interface {
	// CreateEntity registers a new entity. Returns an error if it already exists.
	CreateEntity(id EntityId) error
	// DeleteEntity removes an entity. Returns an error if it does not exist.
	DeleteEntity(id EntityId) error
	// HasEntity reports whether an entity is currently known.
	HasEntity(id EntityId) bool
	// Grant records a capability grant for bookkeeping. The kernel itself
	// does not consult this for authorization; it only matches
	// Message.Origin against validated token claims.
	Grant(grantee EntityId, permissions []string) error
	// Revoke removes a previously recorded grant.
	Revoke(grantee EntityId) error
}
