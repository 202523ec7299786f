// Package kernel implements the capability-gated kernel: the single
// pipeline every Message passes through — authenticate, authorize,
// dispatch (external handlers first, then built-in opcodes), mutate
// world state, publish, and return the resulting KernelEvent.
//
// A single lock guards the dispatch-mutate-publish sequence so submissions
// are always processed as if one at a time, with one authoritative path
// for every world-state mutation.
package kernel

import (
	"errors"
	"fmt"
	"sync"

	"github.com/scrappyAI/toka/pkg/bus"
	"github.com/scrappyAI/toka/pkg/metrics"
	"github.com/scrappyAI/toka/pkg/registry"
	"github.com/scrappyAI/toka/pkg/token"
	"github.com/scrappyAI/toka/pkg/types"
)

// Validator authenticates a capability token string into its claims.
// *token.MultiValidator (rotating secret pool) satisfies it directly; the
// package-level token.Validate function, which also takes the secret, is
// adapted to it by NewSingleSecretValidator.
type Validator interface {
	Validate(tokenString string) (token.Claims, error)
}

// singleSecretValidator adapts the package-level token.Validate function
// (which also takes the secret) to the Validator interface.
type singleSecretValidator struct {
	secret []byte
}

func (v singleSecretValidator) Validate(tokenString string) (token.Claims, error) {
	return token.Validate(tokenString, v.secret)
}

// NewSingleSecretValidator builds a Validator backed by one static HS256
// secret, for embedders that do not need key rotation.
func NewSingleSecretValidator(secret []byte) Validator {
	return singleSecretValidator{secret: secret}
}

// Kernel is the capability-gated submission pipeline.
type Kernel struct {
	// mu serializes world-state mutation and event publication: the only
	// ordering guarantee the kernel makes is that submissions are
	// processed as if one at a time.
	mu sync.Mutex

	validator Validator
	registry  *registry.Registry
	bus       *bus.Bus
	state     types.WorldState
}

// New creates a Kernel over the given validator, handler registry, event
// bus, and world state. All four are required; nil arguments are a
// programmer error.
func New(validator Validator, reg *registry.Registry, b *bus.Bus, state types.WorldState) *Kernel {
	metrics.RegisterComponent("kernel", true, "initialized")
	return &Kernel{validator: validator, registry: reg, bus: b, state: state}
}

// Submit runs msg through the full pipeline and returns the resulting
// KernelEvent, or one of CapabilityDenied, InvalidOperation, HandlerFailed.
func (k *Kernel) Submit(msg types.Message) (types.KernelEvent, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SubmitDuration)

	claims, err := k.validator.Validate(msg.Capability)
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues("capability_denied").Inc()
		return types.KernelEvent{}, &CapabilityDenied{Reason: err.Error()}
	}

	if claims.Subject != msg.Origin.String() && !claims.HasPermission("*") {
		metrics.SubmissionsTotal.WithLabelValues("capability_denied").Inc()
		return types.KernelEvent{}, &CapabilityDenied{Reason: "claim subject does not match message origin"}
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	event, err := k.submitLocked(msg)
	metrics.SubmissionsTotal.WithLabelValues(outcomeLabel(err)).Inc()
	return event, err
}

func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var invalid *InvalidOperation
	if errors.As(err, &invalid) {
		return "invalid_operation"
	}
	var failed *HandlerFailed
	if errors.As(err, &failed) {
		return "handler_failed"
	}
	var denied *CapabilityDenied
	if errors.As(err, &denied) {
		return "capability_denied"
	}
	return "error"
}

// submitLocked performs dispatch, mutation, and publish. The caller must
// hold k.mu for the duration (re-entered directly, without re-locking, for
// SubmitBatch's inner messages).
func (k *Kernel) submitLocked(msg types.Message) (types.KernelEvent, error) {
	op := msg.Op

	event, handled, err := k.registry.Dispatch(&op, k.state)
	if err != nil {
		// Handler errors and recovered handler panics (which the registry
		// reports as ErrPoisoned) both surface as HandlerFailed.
		return types.KernelEvent{}, &HandlerFailed{Reason: err.Error()}
	}

	if !handled {
		event, err = k.dispatchBuiltin(msg.Origin, op)
		if err != nil {
			return types.KernelEvent{}, err
		}
	}

	k.bus.Publish(event)
	return event, nil
}

func (k *Kernel) dispatchBuiltin(origin types.EntityId, op types.Operation) (types.KernelEvent, error) {
	switch op.Kind {
	case types.OpCreateEntity:
		if err := k.state.CreateEntity(op.Entity); err != nil {
			return types.KernelEvent{}, &InvalidOperation{Reason: err.Error()}
		}
		return types.KernelEvent{Kind: types.EventEntityCreated, Origin: origin, Entity: op.Entity}, nil

	case types.OpDeleteEntity:
		if err := k.state.DeleteEntity(op.Entity); err != nil {
			return types.KernelEvent{}, &InvalidOperation{Reason: err.Error()}
		}
		return types.KernelEvent{Kind: types.EventEntityDeleted, Origin: origin, Entity: op.Entity}, nil

	case types.OpGrantCapability:
		if err := k.state.Grant(op.Grantee, op.Permissions); err != nil {
			return types.KernelEvent{}, &InvalidOperation{Reason: err.Error()}
		}
		return types.KernelEvent{Kind: types.EventCapabilityGranted, Origin: origin, Grantee: op.Grantee, Permissions: op.Permissions}, nil

	case types.OpRevokeCapability:
		if err := k.state.Revoke(op.Grantee); err != nil {
			return types.KernelEvent{}, &InvalidOperation{Reason: err.Error()}
		}
		return types.KernelEvent{Kind: types.EventCapabilityRevoked, Origin: origin, Grantee: op.Grantee}, nil

	case types.OpEmitEvent:
		return types.KernelEvent{Kind: types.EventEmitted, Origin: origin, Topic: op.Topic, Data: op.Data}, nil

	case types.OpRegisterHandler:
		// The kernel does not itself wire Go functions from wire data; a
		// real handler is attached out-of-band via registry.Register.
		// This opcode only produces an audit-log-style acknowledgement
		// event for embedders that route handler registration through
		// Submit for ordering alongside other operations.
		return types.KernelEvent{Kind: types.EventHandlerRegistered, Origin: origin, HandlerTag: op.HandlerTag}, nil

	case types.OpSubmitBatch:
		return k.dispatchBatch(origin, op)

	default:
		return types.KernelEvent{}, &InvalidOperation{Reason: fmt.Sprintf("unknown operation kind %q", op.Kind)}
	}
}

// dispatchBatch re-enters the pipeline for each inner message, in order.
// Not atomic: a failure partway through leaves earlier successes applied
// and stops, returning that message's error to the caller.
func (k *Kernel) dispatchBatch(origin types.EntityId, op types.Operation) (types.KernelEvent, error) {
	results := make([]types.KernelEvent, 0, len(op.Batch))
	for _, inner := range op.Batch {
		claims, err := k.validator.Validate(inner.Capability)
		if err != nil {
			return types.KernelEvent{}, &CapabilityDenied{Reason: err.Error()}
		}
		if claims.Subject != inner.Origin.String() && !claims.HasPermission("*") {
			return types.KernelEvent{}, &CapabilityDenied{Reason: "claim subject does not match message origin"}
		}

		event, err := k.submitLocked(inner)
		if err != nil {
			return types.KernelEvent{}, err
		}
		results = append(results, event)
	}
	return types.KernelEvent{Kind: types.EventBatchSubmitted, Origin: origin, Results: results}, nil
}
