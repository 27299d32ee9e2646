package model

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/agentdeck/core"
)

// MockModel is a scripted in‑memory Model useful for tests & examples. Each
// Generate call consumes the next scripted step; when the script is empty it
// echoes the last user text.
type MockModel struct {
	mu       sync.Mutex
	info     Info
	steps    []mockStep
	requests []Request
}

type mockStep struct {
	resp  Response
	err   error
	delay time.Duration
}

// NewMockModel constructs a MockModel with tool support enabled.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{info: Info{Name: name, Provider: provider, SupportsTools: true}}
}

// AddText scripts a final text answer.
func (m *MockModel) AddText(text string) *MockModel {
	return m.add(mockStep{resp: TextResponse(text)})
}

// AddToolCalls scripts a tool-use response with optional leading prose.
func (m *MockModel) AddToolCalls(text string, calls ...core.FunctionCall) *MockModel {
	return m.add(mockStep{resp: ToolUseResponse(text, calls...)})
}

// AddError scripts a failing call.
func (m *MockModel) AddError(err error) *MockModel { return m.add(mockStep{err: err}) }

// AddDelayedText scripts a text answer delivered after d.
func (m *MockModel) AddDelayedText(d time.Duration, text string) *MockModel {
	return m.add(mockStep{resp: TextResponse(text), delay: d})
}

func (m *MockModel) add(s mockStep) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, s)
	return m
}

// Requests returns a snapshot of all received requests.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Generate implements Model.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 1)
	errCh := make(chan error, 1)

	m.mu.Lock()
	m.requests = append(m.requests, req)
	var step mockStep
	if len(m.steps) > 0 {
		step = m.steps[0]
		m.steps = m.steps[1:]
	} else {
		var input string
		if len(req.Contents) > 0 {
			input = req.Contents[len(req.Contents)-1].Text()
		}
		step = mockStep{resp: TextResponse(fmt.Sprintf("Mock response to: %s", input))}
	}
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)

		if step.delay > 0 {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case <-time.After(step.delay):
			}
		}
		if step.err != nil {
			errCh <- step.err
			return
		}
		respCh <- step.resp
	}()

	return respCh, errCh
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }

// TextResponse builds a final assistant text response.
func TextResponse(text string) Response {
	return Response{
		Content:      core.NewTextContent(core.RoleAssistant, text),
		FinishReason: FinishStop,
	}
}

// ToolUseResponse builds an assistant response requesting the given calls.
func ToolUseResponse(text string, calls ...core.FunctionCall) Response {
	parts := make([]core.Part, 0, len(calls)+1)
	if text != "" {
		parts = append(parts, core.TextPart{Text: text})
	}
	for _, c := range calls {
		parts = append(parts, core.FunctionCallPart{FunctionCall: c})
	}
	return Response{
		Content:      core.Content{Role: core.RoleAssistant, Parts: parts},
		FinishReason: FinishToolUse,
	}
}
