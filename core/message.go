package core

import (
	"encoding/json"
	"time"
)

// Role identifies the author of a persisted message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageKind separates ordinary chat history from side-channel messages.
type MessageKind string

const (
	// KindChat messages form the conversation history.
	KindChat MessageKind = "chat"
	// KindHeartbeat messages are heartbeat alerts; they never enter the
	// context window of later turns.
	KindHeartbeat MessageKind = "heartbeat"
)

// ToolCall records one tool invocation made during a turn. It only exists
// embedded in the assistant Message that produced it.
type ToolCall struct {
	Name   string         `json:"name"`
	Input  map[string]any `json:"input"`
	Output any            `json:"output"`
}

// Message is an append-only conversation entry.
type Message struct {
	ID        string      `json:"id"`
	AgentID   string      `json:"agent_id"`
	Role      Role        `json:"role"`
	Content   string      `json:"content"`
	ToolCalls []ToolCall  `json:"tool_calls,omitempty"`
	Kind      MessageKind `json:"kind"`
	CreatedAt time.Time   `json:"created_at"`
}

// NewMessage returns a chat-kind message with a fresh id.
func NewMessage(agentID string, role Role, content string) *Message {
	return &Message{
		ID:        NewID(),
		AgentID:   agentID,
		Role:      role,
		Content:   content,
		Kind:      KindChat,
		CreatedAt: time.Now().UTC(),
	}
}

// NormalizeJSON converts v into its generic JSON shape (maps, slices, float64,
// string, bool, nil) so values survive a store round trip unchanged.
// Values that cannot be marshalled are rendered with their error text.
func NormalizeJSON(v any) any {
	if v == nil {
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return map[string]any{"error": err.Error()}
	}

	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return string(data)
	}

	return out
}

// MarshalToolCalls serialises tool calls for storage; an empty slice yields nil.
func MarshalToolCalls(calls []ToolCall) ([]byte, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	return json.Marshal(calls)
}

// UnmarshalToolCalls parses a stored tool call array; empty input yields nil.
func UnmarshalToolCalls(data []byte) ([]ToolCall, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var calls []ToolCall
	if err := json.Unmarshal(data, &calls); err != nil {
		return nil, err
	}
	return calls, nil
}
