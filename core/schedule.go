package core

import "time"

// Schedule is a recurring reminder that enqueues a synthetic turn whenever
// NextRunAt has passed.
type Schedule struct {
	ID          string        `json:"id"`
	AgentID     string        `json:"agent_id"`
	Description string        `json:"description"`
	Interval    time.Duration `json:"-"`
	NextRunAt   time.Time     `json:"next_run_at"`
	LastRunAt   *time.Time    `json:"last_run_at,omitempty"`
	Active      bool          `json:"active"`
	CreatedAt   time.Time     `json:"created_at"`
}
