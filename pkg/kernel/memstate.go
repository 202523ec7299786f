package kernel

import (
	"fmt"
	"sync"

	"github.com/scrappyAI/toka/pkg/metrics"
	"github.com/scrappyAI/toka/pkg/types"
)

// MemoryWorldState is a minimal in-memory types.WorldState, suitable as the
// default state for tests and for embedders with no durable world-state
// requirement of their own.
type MemoryWorldState struct {
	mu          sync.Mutex
	entities    map[types.EntityId]struct{}
	capability  map[types.EntityId][]string
}

// NewMemoryWorldState creates an empty MemoryWorldState.
func NewMemoryWorldState() *MemoryWorldState {
	return &MemoryWorldState{
		entities:   make(map[types.EntityId]struct{}),
		capability: make(map[types.EntityId][]string),
	}
}

func (s *MemoryWorldState) CreateEntity(id types.EntityId) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entities[id]; exists {
		return fmt.Errorf("kernel: entity %s already exists", id)
	}
	s.entities[id] = struct{}{}
	metrics.EntitiesTotal.Set(float64(len(s.entities)))
	return nil
}

func (s *MemoryWorldState) DeleteEntity(id types.EntityId) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entities[id]; !exists {
		return fmt.Errorf("kernel: entity %s does not exist", id)
	}
	delete(s.entities, id)
	delete(s.capability, id)
	metrics.EntitiesTotal.Set(float64(len(s.entities)))
	return nil
}

func (s *MemoryWorldState) HasEntity(id types.EntityId) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.entities[id]
	return exists
}

func (s *MemoryWorldState) Grant(grantee types.EntityId, permissions []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.capability[grantee] = append(append([]string(nil), s.capability[grantee]...), permissions...)
	return nil
}

func (s *MemoryWorldState) Revoke(grantee types.EntityId) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.capability, grantee)
	return nil
}

// Permissions returns a snapshot of grantee's recorded permissions, for
// tests and introspection; the kernel itself never calls this.
func (s *MemoryWorldState) Permissions(grantee types.EntityId) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.capability[grantee]...)
}

var _ types.WorldState = (*MemoryWorldState)(nil)
