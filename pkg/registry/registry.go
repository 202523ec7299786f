// Package registry implements the opcode registry: a process-wide,
// bounded, poison-safe map from an operation tag to a handler that may
// claim it, so embedders can add domain-specific opcodes without
// recompiling the kernel.
package registry

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/scrappyAI/toka/pkg/metrics"
	"github.com/scrappyAI/toka/pkg/types"
)

// MaxHandlers bounds the registry at this many distinct tags.
const MaxHandlers = 1000

// Handler claims zero or more Operation tags. It returns (event, true) if
// it handled the operation, or (zero, false) to mean "not mine" so the
// kernel's built-in dispatch (or the next handler) gets a turn. A non-nil
// error aborts dispatch entirely with HandlerFailed.
type Handler func(op *types.Operation, state types.WorldState) (types.KernelEvent, bool, error)

// ErrPoisoned is returned in place of a panic if the registry's internal
// lock is ever found poisoned by a prior panicking handler — Go mutexes
// cannot actually become poisoned (unlike, say, a Rust RwLock), but the
// registry recovers from panics inside Dispatch itself and reports them
// this way so a single bad handler can never destabilize the kernel.
type ErrPoisoned struct{ Reason string }

func (e *ErrPoisoned) Error() string { return "registry: invalid operation: " + e.Reason }

// entry pairs a tag with its handler; Dispatch copies the map into a slice
// of these so handlers run without the registry lock held.
type entry struct {
	tag     string
	handler Handler
}

// Registry is the global opcode dispatch table.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Handler
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[string]Handler)}
}

// Register adds handler under tag. If the registry is already at
// MaxHandlers capacity and tag is new, one existing entry is evicted first
// — the reference implementation evicts whichever key Go map iteration
// yields first, which is intentionally unspecified; embedders MUST NOT
// depend on any particular eviction order.
func (r *Registry) Register(tag string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[tag]; !exists && len(r.entries) >= MaxHandlers {
		for evictTag := range r.entries {
			delete(r.entries, evictTag)
			break
		}
	}
	r.entries[tag] = handler
	metrics.RegisteredHandlersTotal.Set(float64(len(r.entries)))
}

// Unregister removes tag, reporting whether it was present.
func (r *Registry) Unregister(tag string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[tag]; !ok {
		return false
	}
	delete(r.entries, tag)
	metrics.RegisteredHandlersTotal.Set(float64(len(r.entries)))
	return true
}

// Size reports the current number of registered tags.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Clear removes every registered handler. Destructive; intended for
// shutdown and tests.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]Handler)
}

// Dispatch iterates all registered handlers and returns the result of the
// first one that claims op (handled=true). Handlers that return
// handled=false are skipped; dispatch stops at the first match. A
// handler panic is recovered and converted to ErrPoisoned rather than
// propagated, so a single bad handler can never crash the process
// through the registry.
func (r *Registry) Dispatch(op *types.Operation, state types.WorldState) (event types.KernelEvent, handled bool, err error) {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDurationVec(metrics.HandlerDispatchDuration, strconv.FormatBool(handled))
	}()

	r.mu.RLock()
	handlers := make([]entry, 0, len(r.entries))
	for tag, h := range r.entries {
		handlers = append(handlers, entry{tag: tag, handler: h})
	}
	r.mu.RUnlock()

	for _, e := range handlers {
		ev, ok, herr := callHandler(e.handler, op, state)
		if herr != nil {
			return types.KernelEvent{}, false, fmt.Errorf("registry: handler %q: %w", e.tag, herr)
		}
		if ok {
			return ev, true, nil
		}
	}
	return types.KernelEvent{}, false, nil
}

func callHandler(h Handler, op *types.Operation, state types.WorldState) (event types.KernelEvent, handled bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ErrPoisoned{Reason: fmt.Sprintf("handler panicked: %v", r)}
		}
	}()
	return h(op, state)
}
