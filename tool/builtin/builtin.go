// Package builtin provides the tools every agent is offered: workspace
// access, memories, schedules, credentials, web access, delegation to other
// agents and one-shot subagents.
package builtin

import (
	"context"
	"net/http"
	"time"

	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/model"
	"github.com/hupe1980/agentdeck/tool"
)

// BootstrapTools are the only tools offered while an agent runs its bootstrap ritual.
var BootstrapTools = []string{"read_workspace", "write_workspace", "complete_bootstrap"}

// BootstrapCompleter finishes an agent's bootstrap ritual.
type BootstrapCompleter interface {
	CompleteBootstrap(ctx context.Context, agentID string) error
}

// Asker runs a turn on another agent and returns its reply.
type Asker interface {
	Ask(ctx context.Context, agentID, content string) (string, error)
}

// Deps holds what the built-in tools act on. Tools whose dependency is nil
// are not created.
type Deps struct {
	Agents      core.AgentStore
	Workspace   core.Workspace
	Memories    core.MemoryStore
	Schedules   core.ScheduleStore
	Credentials core.CredentialStore
	Bootstrap   BootstrapCompleter
	Asker       Asker
	// Subagent returns a session-less model for the given alias.
	Subagent   func(name string) model.Model
	HTTPClient *http.Client
	Now        func() time.Time
}

// New returns the built-in tools backed by deps.
func New(deps Deps) []tool.Tool {
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	var tools []tool.Tool

	tools = append(tools, newHTTPRequest(deps.HTTPClient), newReadURL(deps.HTTPClient))

	if deps.Workspace != nil {
		tools = append(tools, newReadWorkspace(deps.Workspace), newWriteWorkspace(deps.Workspace))
	}
	if deps.Bootstrap != nil {
		tools = append(tools, newCompleteBootstrap(deps.Bootstrap))
	}
	if deps.Memories != nil {
		tools = append(tools, newRemember(deps.Memories, deps.Now))
	}
	if deps.Schedules != nil {
		tools = append(tools,
			newScheduleTask(deps.Schedules, deps.Now),
			newCancelSchedule(deps.Schedules),
			newListSchedules(deps.Schedules),
		)
	}
	if deps.Credentials != nil {
		tools = append(tools, newStoreCredential(deps.Credentials), newGetCredential(deps.Credentials))
	}
	if deps.Agents != nil && deps.Asker != nil {
		tools = append(tools, newDelegate(deps.Agents, deps.Asker))
	}
	if deps.Agents != nil && deps.Subagent != nil {
		tools = append(tools, newSpawnSubagent(deps.Agents, deps.Subagent))
	}

	return tools
}

// Register adds the built-in tools to reg.
func Register(reg *tool.Registry, deps Deps) error {
	for _, t := range New(deps) {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

func object(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func str(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}
