package session

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/agentdeck/core"
)

// InMemoryStore is a volatile SessionStore keyed by agent id. Sessions are
// cloned on the way in and out so callers cannot mutate stored state.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*core.Session
}

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*core.Session)}
}

// GetSession returns the agent's session or (nil, nil).
func (s *InMemoryStore) GetSession(_ context.Context, agentID string) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sess, ok := s.sessions[agentID]; ok {
		return sess.Clone(), nil
	}

	return nil, nil
}

// PutSession inserts or replaces the agent's session.
func (s *InMemoryStore) PutSession(_ context.Context, sess *core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := sess.Clone()
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now().UTC()
	}
	s.sessions[sess.AgentID] = cp

	return nil
}

// DeleteSession removes the agent's session if present.
func (s *InMemoryStore) DeleteSession(_ context.Context, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, agentID)

	return nil
}

var _ core.SessionStore = (*InMemoryStore)(nil)
