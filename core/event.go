package core

import (
	"time"

	"github.com/google/uuid"
)

// EventType enumerates the notifications delivered to live observers of an agent.
type EventType string

const (
	EventConnected        EventType = "connected"
	EventTyping           EventType = "typing"
	EventAckMessage       EventType = "ack_message"
	EventIntermediate     EventType = "intermediate"
	EventToolCall         EventType = "tool_call"
	EventToolResult       EventType = "tool_result"
	EventAssistantMessage EventType = "assistant_message"
	EventUserMessage      EventType = "user_message"
	EventHeartbeatAlert   EventType = "heartbeat_alert"
	EventBootstrapDone    EventType = "bootstrap_complete"
	EventError            EventType = "error"
)

// Event is an ephemeral, typed payload fanned out to the observers attached
// to an agent. Events are never stored; observers that were not attached
// when an event was published never see it.
type Event struct {
	Type    EventType `json:"type"`
	AgentID string    `json:"agent_id"`
	Data    any       `json:"data"`
	Time    time.Time `json:"time"`
}

// ConnectedData is the payload of EventConnected.
type ConnectedData struct {
	AgentID string `json:"agent_id"`
}

// TypingData is the payload of EventTyping.
type TypingData struct {
	Active bool `json:"active"`
}

// TextData carries free text (EventAckMessage, EventIntermediate).
type TextData struct {
	Content string `json:"content"`
}

// ToolCallData is the payload of EventToolCall.
type ToolCallData struct {
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// ToolResultData is the payload of EventToolResult.
type ToolResultData struct {
	Name   string `json:"name"`
	Output any    `json:"output"`
}

// MessageData carries a persisted assistant message (EventAssistantMessage,
// EventHeartbeatAlert).
type MessageData struct {
	ID        string     `json:"id"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls"`
}

// UserMessageData is the payload of EventUserMessage. ClientID echoes the
// optional id the sending client attached for optimistic reconciliation.
type UserMessageData struct {
	ID       string `json:"id"`
	Content  string `json:"content"`
	ClientID string `json:"client_id,omitempty"`
}

// ErrorData is the payload of EventError.
type ErrorData struct {
	Error string `json:"error"`
}

// NewEvent creates an event for agentID stamped with the current UTC time.
func NewEvent(agentID string, typ EventType, data any) Event {
	if data == nil {
		data = struct{}{}
	}
	return Event{Type: typ, AgentID: agentID, Data: data, Time: time.Now().UTC()}
}

// NewID returns a new random identifier.
func NewID() string { return uuid.NewString() }

// Publisher accepts events for fan-out. Implementations must not block.
type Publisher interface {
	Publish(ev Event)
}
