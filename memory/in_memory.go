package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/agentdeck/core"
)

// InMemoryStore is a process-local MemoryStore guarded by an RWMutex.
// Layout: agentID -> memories in insertion order.
type InMemoryStore struct {
	mu       sync.RWMutex
	memories map[string][]core.Memory
}

// NewInMemoryStore creates a new in-memory memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{memories: make(map[string][]core.Memory)}
}

// AddMemory stores m, assigning an id and timestamp when missing.
func (s *InMemoryStore) AddMemory(_ context.Context, m *core.Memory) error {
	if m.ID == "" {
		m.ID = core.NewID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.memories[m.AgentID] = append(s.memories[m.AgentID], *m)

	return nil
}

// ListMemories returns the agent's memories, newest first.
func (s *InMemoryStore) ListMemories(_ context.Context, agentID string) ([]*core.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.memories[agentID]

	out := make([]*core.Memory, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		m := stored[i]
		out = append(out, &m)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	return out, nil
}

// DeleteMemories drops every memory of the agent.
func (s *InMemoryStore) DeleteMemories(_ context.Context, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.memories, agentID)

	return nil
}

var _ core.MemoryStore = (*InMemoryStore)(nil)
