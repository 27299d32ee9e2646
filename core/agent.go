package core

import (
	"strings"
	"time"
)

// Effort selects how much reasoning budget the backend may spend on a turn.
type Effort string

const (
	// EffortLow disables extended reasoning.
	EffortLow Effort = "low"
	// EffortMedium allows a moderate reasoning budget.
	EffortMedium Effort = "medium"
	// EffortHigh allows the largest reasoning budget.
	EffortHigh Effort = "high"
)

// ParseEffort returns the Effort named by s, falling back to EffortHigh.
func ParseEffort(s string) Effort {
	switch Effort(strings.ToLower(strings.TrimSpace(s))) {
	case EffortLow:
		return EffortLow
	case EffortMedium:
		return EffortMedium
	default:
		return EffortHigh
	}
}

// DefaultModel is the backend model alias assigned to new agents.
const DefaultModel = "opus"

// Agent is a configured persona with its own history, workspace and settings.
//
// Agents are created with Bootstrapped=false; the first conversations run the
// identity ritual described by the workspace's BOOTSTRAP.md until the agent
// completes it.
type Agent struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	Model             string         `json:"model"`
	Effort            Effort         `json:"effort"`
	Bootstrapped      bool           `json:"bootstrapped"`
	HeartbeatInterval *time.Duration `json:"-"`
	ShowHeartbeat     bool           `json:"show_heartbeat"`
	IsDefault         bool           `json:"is_default"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// HeartbeatIntervalMs returns the heartbeat interval in milliseconds or nil.
func (a *Agent) HeartbeatIntervalMs() *int64 {
	if a.HeartbeatInterval == nil {
		return nil
	}
	ms := a.HeartbeatInterval.Milliseconds()
	return &ms
}

// Clone returns a copy that shares no pointers with a.
func (a *Agent) Clone() *Agent {
	cp := *a
	if a.HeartbeatInterval != nil {
		d := *a.HeartbeatInterval
		cp.HeartbeatInterval = &d
	}
	return &cp
}
