package model

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/agentdeck/core"
)

// Finish reasons that signal the backend wants tools executed before it can
// answer. Anthropic reports "tool_use"; OpenAI compatible providers report
// "tool_calls".
const (
	FinishToolUse   = "tool_use"
	FinishToolCalls = "tool_calls"
	FinishStop      = "end_turn"
)

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// NewToolDefinition returns a function tool definition.
func NewToolDefinition(name, description string, params map[string]any) ToolDefinition {
	return ToolDefinition{
		Type:     "function",
		Function: FunctionDefinition{Name: name, Description: description, Parameters: params},
	}
}

// Request captures the normalized model input.
type Request struct {
	Instructions string           `json:"instructions"`
	Contents     []core.Content   `json:"contents"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
	// Model overrides the adapter's configured model when set. Adapters
	// resolve short aliases ("opus", "sonnet", "haiku") themselves.
	Model     string `json:"model,omitempty"`
	MaxTokens int64  `json:"max_tokens,omitempty"`
	Stream    bool   `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a model.
type Response struct {
	ID           string       `json:"id"`
	Partial      bool         `json:"partial"`
	Content      core.Content `json:"content"`
	FinishReason string       `json:"finish_reason"`
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// HasToolUse reports whether the response asks for tool execution.
func HasToolUse(resp Response) bool {
	if resp.FinishReason == FinishToolUse || resp.FinishReason == FinishToolCalls {
		return len(resp.Content.FunctionCalls()) > 0
	}
	return false
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "claude-cli", ...
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required to drive generation.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// ErrEmptyResponse is returned by Collect when a model closes its channels
// without producing a final response.
var ErrEmptyResponse = errors.New("model returned no final response")

// Collect drains a Generate call and returns its final (non-partial)
// response. Provider errors are passed through core.ClassifyBackendError so
// context overflow is recognisable by callers.
func Collect(ctx context.Context, m Model, req Request) (Response, error) {
	respCh, errCh := m.Generate(ctx, req)

	var (
		final Response
		got   bool
	)

	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if !resp.Partial {
				final, got = resp, true
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return Response{}, core.ClassifyBackendError(err)
			}
		}
	}

	if !got {
		return Response{}, fmt.Errorf("%s: %w", m.Info().Provider, ErrEmptyResponse)
	}

	return final, nil
}
