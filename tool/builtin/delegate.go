package builtin

import (
	"errors"
	"fmt"

	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/model"
	"github.com/hupe1980/agentdeck/tool"
)

type delegateArgs struct {
	AgentName string `json:"agent_name" description:"name of the agent to delegate to"`
	Message   string `json:"message" description:"message to send to the other agent"`
}

func newDelegate(agents core.AgentStore, asker Asker) tool.Tool {
	return tool.NewFunctionToolFromStruct(
		"delegate",
		"send a message to another agent by name and get their response. use this for cross-agent collaboration, asking another agent to handle something in their domain.",
		delegateArgs{},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			name := tool.StringArg(args, "agent_name")

			target, err := agents.GetAgentByName(tc.Context(), name)
			if errors.Is(err, core.ErrUnknownAgent) {
				return map[string]any{"error": fmt.Sprintf("agent %q not found", name)}, nil
			}
			if err != nil {
				return nil, err
			}

			if target.ID == tc.AgentID() {
				return map[string]any{"error": "cannot delegate to yourself"}, nil
			}

			tc.Logger().Info("tool.delegate", "from", tc.AgentID(), "to", target.ID)

			reply, err := asker.Ask(tc.Context(), target.ID, tool.StringArg(args, "message"))
			if err != nil {
				return nil, err
			}

			return map[string]any{"agent": target.Name, "response": reply}, nil
		},
	)
}

type spawnArgs struct {
	Task    string `json:"task" description:"detailed description of what the subagent should do"`
	Context string `json:"context,omitempty" description:"optional additional context to include"`
}

func newSpawnSubagent(agents core.AgentStore, subagent func(name string) model.Model) tool.Tool {
	return tool.NewFunctionToolFromStruct(
		"spawn_subagent",
		"spawn an ephemeral subprocess to handle a complex task. the subagent has full machine access (bash, file read/write, etc) but no agentdeck tools or memory. use this to offload heavy work like writing code, analyzing files, running commands, etc.",
		spawnArgs{},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			prompt := tool.StringArg(args, "task")
			if extra := tool.StringArg(args, "context"); extra != "" {
				prompt = fmt.Sprintf("context: %s\n\ntask: %s", extra, prompt)
			}

			name := core.DefaultModel
			if a, err := agents.GetAgent(tc.Context(), tc.AgentID()); err == nil && a.Model != "" {
				name = a.Model
			}

			resp, err := model.Collect(tc.Context(), subagent(name), model.Request{
				Contents: []core.Content{core.NewTextContent(core.RoleUser, prompt)},
			})
			if err != nil {
				return map[string]any{"error": err.Error()}, nil
			}

			return map[string]any{"result": resp.Content.Text()}, nil
		},
	)
}
