package core

import (
	"context"
	"time"
)

// AgentStore persists agents. GetAgent and GetAgentByName return
// ErrUnknownAgent for missing agents; CreateAgent returns ErrAgentExists for a
// duplicate name. DeleteAgent cascades everything owned by the agent.
type AgentStore interface {
	CreateAgent(ctx context.Context, a *Agent) error
	GetAgent(ctx context.Context, id string) (*Agent, error)
	GetAgentByName(ctx context.Context, name string) (*Agent, error)
	ListAgents(ctx context.Context) ([]*Agent, error)
	UpdateAgent(ctx context.Context, a *Agent) error
	DeleteAgent(ctx context.Context, id string) error
	SetBootstrapped(ctx context.Context, id string, done bool) error
	SetHeartbeatInterval(ctx context.Context, id string, interval *time.Duration) error
	SetDefaultAgent(ctx context.Context, id string) error
}

// MessageStore persists the append-only conversation.
//
// RecentMessages returns at most limit messages of the given kind, oldest
// first. ListMessages returns every message of the agent, oldest first.
type MessageStore interface {
	AppendMessage(ctx context.Context, m *Message) error
	RecentMessages(ctx context.Context, agentID string, kind MessageKind, limit int) ([]*Message, error)
	ListMessages(ctx context.Context, agentID string) ([]*Message, error)
	CountMessages(ctx context.Context, agentID string, role Role) (int, error)
	DeleteMessages(ctx context.Context, agentID string) error
}

// SessionStore persists backend sessions keyed by agent id. GetSession
// returns (nil, nil) when no session exists.
type SessionStore interface {
	GetSession(ctx context.Context, agentID string) (*Session, error)
	PutSession(ctx context.Context, s *Session) error
	DeleteSession(ctx context.Context, agentID string) error
}

// ScheduleStore persists recurring reminders.
type ScheduleStore interface {
	CreateSchedule(ctx context.Context, s *Schedule) error
	DueSchedules(ctx context.Context, now time.Time) ([]*Schedule, error)
	MarkScheduleRun(ctx context.Context, id string, ranAt, next time.Time) error
	DeactivateSchedule(ctx context.Context, id, agentID string) error
	ListSchedules(ctx context.Context, agentID string) ([]*Schedule, error)
}

// CredentialStore keeps per-agent secrets used by tools.
type CredentialStore interface {
	PutCredential(ctx context.Context, agentID, key, value string) error
	GetCredential(ctx context.Context, agentID, key string) (string, bool, error)
}

// ConfigStore is a small key/value store for process-wide settings.
type ConfigStore interface {
	GetConfig(ctx context.Context, key string) (string, bool, error)
	SetConfig(ctx context.Context, key, value string) error
	DeleteConfig(ctx context.Context, key string) error
}
