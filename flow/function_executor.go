package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/logging"
	"github.com/hupe1980/agentdeck/tool"
)

// Executor runs a named tool with raw JSON arguments. *tool.Registry implements it.
type Executor interface {
	Execute(toolCtx *core.ToolContext, name, rawArgs string) (any, error)
}

// FunctionExecutor executes the function calls of one backend response.
// Calls run sequentially in request order. Every call publishes a tool_call
// event before and a tool_result event after it runs, is recorded on the
// turn and yields exactly one function response. A failing or panicking
// tool never aborts the turn; its error is folded into the conversation.
type FunctionExecutor struct {
	tools     Executor
	publisher core.Publisher
	logger    logging.Logger
}

// NewFunctionExecutor creates a FunctionExecutor.
func NewFunctionExecutor(tools Executor, publisher core.Publisher, logger logging.Logger) *FunctionExecutor {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &FunctionExecutor{tools: tools, publisher: publisher, logger: logger}
}

// Execute runs calls and returns the user content carrying their responses.
// It stops early only when ctx is done.
func (e *FunctionExecutor) Execute(ctx context.Context, turn *Turn, calls []core.FunctionCall) (core.Content, error) {
	parts := make([]core.Part, 0, len(calls))

	for _, fc := range calls {
		if ctx.Err() != nil {
			return core.Content{}, context.Cause(ctx)
		}

		input := decodeInput(fc.Arguments)

		e.publisher.Publish(core.NewEvent(turn.AgentID, core.EventToolCall, core.ToolCallData{Name: fc.Name, Input: input}))

		toolCtx := core.NewToolContext(ctx, turn.AgentID, turn.AgentName, fc.ID, e.logger)

		start := time.Now()
		result, err := e.safeExecute(toolCtx, fc)

		e.logger.Info(
			"agent.function.executed",
			"agent_id", turn.AgentID,
			"function", fc.Name,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err != nil,
		)

		resp := core.FunctionResponse{ID: fc.ID, Name: fc.Name}

		var output any
		if err != nil {
			msg := errorMessage(err)
			output = map[string]any{"error": msg}
			resp.Error = msg
		} else {
			output = core.NormalizeJSON(result)
		}
		resp.Response = output

		e.publisher.Publish(core.NewEvent(turn.AgentID, core.EventToolResult, core.ToolResultData{Name: fc.Name, Output: output}))

		turn.ToolCalls = append(turn.ToolCalls, core.ToolCall{Name: fc.Name, Input: input, Output: output})
		parts = append(parts, core.FunctionResponsePart{FunctionResponse: resp})
	}

	return core.Content{Role: core.RoleUser, Parts: parts}, nil
}

func (e *FunctionExecutor) safeExecute(toolCtx *core.ToolContext, fc core.FunctionCall) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("agent.function.panic", "function", fc.Name, "recover", r, "stack", string(debug.Stack()))
			result, err = nil, tool.NewToolError(fc.Name, fmt.Sprintf("panic: %v", r), tool.CodePanic)
		}
	}()

	return e.tools.Execute(toolCtx, fc.Name, fc.Arguments)
}

func decodeInput(args string) map[string]any {
	input := map[string]any{}
	if args != "" {
		_ = json.Unmarshal([]byte(args), &input)
	}
	return input
}

// errorMessage prefers the bare message of a ToolError.
func errorMessage(err error) string {
	var toolErr *tool.ToolError
	if errors.As(err, &toolErr) {
		return toolErr.Message
	}
	return err.Error()
}
