package builtin

import (
	"time"

	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/tool"
)

type rememberArgs struct {
	Summary string `json:"summary" description:"what to remember"`
}

func newRemember(memories core.MemoryStore, now func() time.Time) tool.Tool {
	return tool.NewFunctionToolFromStruct(
		"remember",
		"store a memory or standing instruction that persists across conversations. use this for user preferences, recurring instructions, important context, etc.",
		rememberArgs{},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			summary := tool.StringArg(args, "summary")

			m := &core.Memory{
				ID:        core.NewID(),
				AgentID:   tc.AgentID(),
				Summary:   summary,
				CreatedAt: now().UTC(),
			}
			if err := memories.AddMemory(tc.Context(), m); err != nil {
				return nil, err
			}

			return map[string]any{"remembered": true, "summary": summary}, nil
		},
	)
}
