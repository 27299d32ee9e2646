// Package flow runs the tool execution loop of a turn.
//
// A Loop submits the conversation to the backend, executes the tool calls
// the backend asks for one after another, feeds their results back and
// repeats until the backend answers without tool use. Finalize then turns
// the final text, the intermediate prose and the recorded tool calls into
// the reply that is stored and shown.
package flow

import (
	"context"
	"regexp"
	"strings"

	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/internal/util"
	"github.com/hupe1980/agentdeck/logging"
	"github.com/hupe1980/agentdeck/model"
)

// Submitter sends the conversation to the backend.
type Submitter interface {
	Submit(ctx context.Context, contents []core.Content) (model.Response, error)
}

// SubmitFunc adapts a function to Submitter.
type SubmitFunc func(ctx context.Context, contents []core.Content) (model.Response, error)

// Submit calls f.
func (f SubmitFunc) Submit(ctx context.Context, contents []core.Content) (model.Response, error) {
	return f(ctx, contents)
}

// Turn is the mutable state of one turn.
type Turn struct {
	AgentID   string
	AgentName string
	// Contents is the conversation being extended.
	Contents      []core.Content
	Intermediates []string
	ToolCalls     []core.ToolCall
}

// Result is the finalized outcome of a turn.
type Result struct {
	Content   string
	ToolCalls []core.ToolCall
}

// Options configures a Loop.
type Options struct {
	Logger logging.Logger
}

// Loop drives a turn to completion.
type Loop struct {
	backend   Submitter
	executor  *FunctionExecutor
	publisher core.Publisher
	logger    logging.Logger
}

// NewLoop creates a Loop that runs tools through tools and reports progress to publisher.
func NewLoop(backend Submitter, tools Executor, publisher core.Publisher, optFns ...func(o *Options)) *Loop {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Loop{
		backend:   backend,
		executor:  NewFunctionExecutor(tools, publisher, opts.Logger),
		publisher: publisher,
		logger:    opts.Logger,
	}
}

// Run loops until the backend stops asking for tools. There is no round limit;
// the turn ends when the backend answers or ctx is cancelled.
func (l *Loop) Run(ctx context.Context, turn *Turn) (Result, error) {
	for round := 1; ; round++ {
		resp, err := l.backend.Submit(ctx, turn.Contents)
		if err != nil {
			return Result{}, err
		}

		if !model.HasToolUse(resp) {
			return Result{
				Content:   Finalize(resp.Content.Text(), turn.Intermediates, turn.ToolCalls),
				ToolCalls: turn.ToolCalls,
			}, nil
		}

		if prose := StripToolBlocks(resp.Content.Text()); prose != "" {
			turn.Intermediates = append(turn.Intermediates, prose)
			l.publisher.Publish(core.NewEvent(turn.AgentID, core.EventIntermediate, core.TextData{Content: prose}))
		}

		assistant := resp.Content
		assistant.Role = core.RoleAssistant
		turn.Contents = append(turn.Contents, assistant)

		calls := resp.Content.FunctionCalls()

		l.logger.Debug("flow.round", "agent_id", turn.AgentID, "round", round, "tool_calls", len(calls))

		results, err := l.executor.Execute(ctx, turn, calls)
		if err != nil {
			return Result{}, err
		}

		turn.Contents = append(turn.Contents, results)
	}
}

var toolBlock = regexp.MustCompile("(?s)```json\\s*\\{.*?\\}\\s*```")

// StripToolBlocks removes fenced tool_use JSON blocks from backend prose.
func StripToolBlocks(text string) string {
	text = toolBlock.ReplaceAllString(strings.TrimSpace(text), "")
	return strings.TrimSpace(util.CollapseBlankLines(text))
}
