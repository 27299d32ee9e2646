package core

import "time"

// Session binds an agent to a continuation handle of the resumable backend.
//
// PromptHash is the hash of the exact instruction text that established the
// handle. A session whose hash differs from the current prompt is never
// resumed.
type Session struct {
	AgentID            string    `json:"agent_id"`
	ContinuationHandle string    `json:"continuation_handle"`
	PromptHash         string    `json:"prompt_hash"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Clone returns a copy of the session.
func (s *Session) Clone() *Session {
	cp := *s
	return &cp
}
