package core

import (
	"context"
	"time"
)

// Memory is a standing fact or instruction an agent keeps across conversations.
type Memory struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id"`
	Summary   string    `json:"summary"`
	CreatedAt time.Time `json:"created_at"`
}

// MemoryStore persists agent memories. ListMemories returns newest first.
type MemoryStore interface {
	AddMemory(ctx context.Context, m *Memory) error
	ListMemories(ctx context.Context, agentID string) ([]*Memory, error)
	DeleteMemories(ctx context.Context, agentID string) error
}
