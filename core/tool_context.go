package core

import (
	"context"

	"github.com/hupe1980/agentdeck/logging"
)

// ToolContext is the scoped surface handed to a tool invocation. It carries
// the owning agent, the correlating function call id and the turn's context,
// whose cancellation tools must respect.
type ToolContext struct {
	ctx            context.Context
	agentID        string
	agentName      string
	functionCallID string
	logger         logging.Logger
}

// NewToolContext binds a tool invocation to the running turn.
func NewToolContext(ctx context.Context, agentID, agentName, functionCallID string, logger logging.Logger) *ToolContext {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &ToolContext{
		ctx:            ctx,
		agentID:        agentID,
		agentName:      agentName,
		functionCallID: functionCallID,
		logger:         logger,
	}
}

// Context returns the context associated with the tool invocation.
func (tc *ToolContext) Context() context.Context { return tc.ctx }

// AgentID returns the id of the agent running the tool.
func (tc *ToolContext) AgentID() string { return tc.agentID }

// AgentName returns the name of the agent running the tool.
func (tc *ToolContext) AgentName() string { return tc.agentName }

// FunctionCallID returns the function call ID associated with the tool invocation.
func (tc *ToolContext) FunctionCallID() string { return tc.functionCallID }

// Logger returns the logger associated with the tool invocation.
func (tc *ToolContext) Logger() logging.Logger { return tc.logger }
