// Package store provides the persistence layer: a composite Store covering
// agents, messages, backend sessions, memories, schedules, credentials and
// settings, with a SQLite implementation for production and an in-memory one
// for tests.
package store

import (
	"context"

	"github.com/hupe1980/agentdeck/core"
)

// Store is the full persistence surface used by the application.
type Store interface {
	core.AgentStore
	core.MessageStore
	core.SessionStore
	core.MemoryStore
	core.ScheduleStore
	core.CredentialStore
	core.ConfigStore

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close releases underlying resources.
	Close() error
}

var (
	_ Store = (*SQLite)(nil)
	_ Store = (*InMemory)(nil)
)
