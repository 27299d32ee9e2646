package testutil

import (
	"github.com/hupe1980/agentdeck/core"
)

// ContentBuilder provides a fluent helper for constructing conversation contents.
// Example:
//
//	c := NewContentBuilder().Assistant().Text("let me check").Call("c1", "remember", `{"summary":"x"}`).Build()
type ContentBuilder struct {
	role  core.Role
	parts []core.Part
}

// NewContentBuilder creates a builder with role user.
func NewContentBuilder() *ContentBuilder { return &ContentBuilder{role: core.RoleUser} }

// Assistant switches the role to assistant (chainable).
func (b *ContentBuilder) Assistant() *ContentBuilder { b.role = core.RoleAssistant; return b }

// Text appends a text part (chainable).
func (b *ContentBuilder) Text(t string) *ContentBuilder {
	b.parts = append(b.parts, core.TextPart{Text: t})
	return b
}

// Call appends a function call part (chainable).
func (b *ContentBuilder) Call(id, name, args string) *ContentBuilder {
	b.parts = append(b.parts, core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: id, Name: name, Arguments: args}})
	return b
}

// Result appends a successful function response part (chainable).
func (b *ContentBuilder) Result(id, name string, resp any) *ContentBuilder {
	b.parts = append(b.parts, core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{ID: id, Name: name, Response: resp}})
	return b
}

// Failure appends an error-flagged function response part (chainable).
func (b *ContentBuilder) Failure(id, name, msg string) *ContentBuilder {
	b.parts = append(b.parts, core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{
		ID:       id,
		Name:     name,
		Response: map[string]any{"error": msg},
		Error:    msg,
	}})
	return b
}

// Build returns the content.
func (b *ContentBuilder) Build() core.Content {
	parts := make([]core.Part, len(b.parts))
	copy(parts, b.parts)
	return core.Content{Role: b.role, Parts: parts}
}

// UserText is shorthand for a single-part user content.
func UserText(t string) core.Content { return core.NewTextContent(core.RoleUser, t) }

// AssistantText is shorthand for a single-part assistant content.
func AssistantText(t string) core.Content { return core.NewTextContent(core.RoleAssistant, t) }
