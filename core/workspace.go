package core

import (
	"errors"
	"time"
)

// ErrPathEscape is returned when a workspace path resolves outside the agent's directory.
var ErrPathEscape = errors.New("path escapes workspace")

// Workspace stores the per-agent files (persona, checklists, daily logs) that
// feed prompt composition. Files are addressed by agent name and a relative
// slash-separated path. Read reports ok=false for a missing file.
type Workspace interface {
	Init(agentName string) error
	Read(agentName, path string) (content string, ok bool, err error)
	Write(agentName, path, content string) error
	Delete(agentName, path string) error
	Rename(oldName, newName string) error
	Remove(agentName string) error
	List(agentName string) ([]string, error)
	DailyLogs(agentName string, now time.Time) (string, error)
	MemoryLogs(agentName string) ([]string, error)
}
