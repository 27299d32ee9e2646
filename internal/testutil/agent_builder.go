package testutil

import (
	"time"

	"github.com/hupe1980/agentdeck/core"
)

// AgentBuilder helps construct agents with fluent chaining for tests.
// Defaults: bootstrapped, model "opus", effort high.
//
//	a := NewAgentBuilder("nova").Bootstrapped(false).Heartbeat(time.Minute).Build()
type AgentBuilder struct {
	agent core.Agent
}

// NewAgentBuilder creates a builder for an agent named name.
func NewAgentBuilder(name string) *AgentBuilder {
	now := time.Now().UTC()
	return &AgentBuilder{agent: core.Agent{
		ID:           core.NewID(),
		Name:         name,
		Model:        core.DefaultModel,
		Effort:       core.EffortHigh,
		Bootstrapped: true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}}
}

// ID overrides the generated id (chainable).
func (b *AgentBuilder) ID(id string) *AgentBuilder { b.agent.ID = id; return b }

// Bootstrapped sets the bootstrap flag (chainable).
func (b *AgentBuilder) Bootstrapped(done bool) *AgentBuilder { b.agent.Bootstrapped = done; return b }

// Model sets the backend model alias (chainable).
func (b *AgentBuilder) Model(m string) *AgentBuilder { b.agent.Model = m; return b }

// Effort sets the reasoning effort (chainable).
func (b *AgentBuilder) Effort(e core.Effort) *AgentBuilder { b.agent.Effort = e; return b }

// Heartbeat sets the heartbeat interval (chainable).
func (b *AgentBuilder) Heartbeat(d time.Duration) *AgentBuilder {
	b.agent.HeartbeatInterval = &d
	return b
}

// ShowHeartbeat sets whether heartbeat messages are listed (chainable).
func (b *AgentBuilder) ShowHeartbeat(show bool) *AgentBuilder { b.agent.ShowHeartbeat = show; return b }

// Default marks the agent as the default one (chainable).
func (b *AgentBuilder) Default() *AgentBuilder { b.agent.IsDefault = true; return b }

// Build returns a copy of the agent.
func (b *AgentBuilder) Build() *core.Agent { return b.agent.Clone() }

// MessageBuilder helps construct stored messages.
//
//	m := NewMessageBuilder(agentID).Assistant("done").ToolCall("remember", in, out).Build()
type MessageBuilder struct {
	msg core.Message
}

// NewMessageBuilder creates a user chat message builder for agentID.
func NewMessageBuilder(agentID string) *MessageBuilder {
	return &MessageBuilder{msg: *core.NewMessage(agentID, core.RoleUser, "")}
}

// User sets role user and the content (chainable).
func (b *MessageBuilder) User(content string) *MessageBuilder {
	b.msg.Role, b.msg.Content = core.RoleUser, content
	return b
}

// Assistant sets role assistant and the content (chainable).
func (b *MessageBuilder) Assistant(content string) *MessageBuilder {
	b.msg.Role, b.msg.Content = core.RoleAssistant, content
	return b
}

// Heartbeat marks the message heartbeat-kind (chainable).
func (b *MessageBuilder) Heartbeat() *MessageBuilder { b.msg.Kind = core.KindHeartbeat; return b }

// At sets the creation time (chainable).
func (b *MessageBuilder) At(t time.Time) *MessageBuilder { b.msg.CreatedAt = t; return b }

// ToolCall appends a recorded tool call (chainable).
func (b *MessageBuilder) ToolCall(name string, input map[string]any, output any) *MessageBuilder {
	b.msg.ToolCalls = append(b.msg.ToolCalls, core.ToolCall{Name: name, Input: input, Output: core.NormalizeJSON(output)})
	return b
}

// Build returns a copy of the message.
func (b *MessageBuilder) Build() *core.Message {
	m := b.msg
	m.ToolCalls = append([]core.ToolCall(nil), b.msg.ToolCalls...)
	return &m
}
