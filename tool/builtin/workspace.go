package builtin

import (
	"errors"
	"strings"

	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/tool"
)

var errDotDot = errors.New("path cannot contain ..")

type workspaceArgs struct {
	Path    string `json:"path" description:"relative path within your workspace"`
	Content string `json:"content" description:"file content to write"`
}

func newReadWorkspace(ws core.Workspace) tool.Tool {
	return tool.NewFunctionTool(
		"read_workspace",
		`read a file from your workspace. use relative paths like "SOUL.md" or "memory/2026-02-07.md".`,
		object(map[string]any{"path": str("relative path within your workspace")}, "path"),
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			p := tool.StringArg(args, "path")
			if strings.Contains(p, "..") {
				return nil, errDotDot
			}

			content, ok, err := ws.Read(tc.AgentName(), p)
			if err != nil {
				return nil, err
			}

			var value any
			if ok {
				value = content
			}

			return map[string]any{"path": p, "content": value}, nil
		},
	)
}

func newWriteWorkspace(ws core.Workspace) tool.Tool {
	return tool.NewFunctionToolFromStruct(
		"write_workspace",
		"write or overwrite a file in your workspace. use this to update your soul, identity, memory, heartbeat, or any other workspace files.",
		workspaceArgs{},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			p := tool.StringArg(args, "path")
			if strings.Contains(p, "..") {
				return nil, errDotDot
			}

			if err := ws.Write(tc.AgentName(), p, tool.StringArg(args, "content")); err != nil {
				return nil, err
			}

			return map[string]any{"written": true, "path": p}, nil
		},
	)
}

func newCompleteBootstrap(b BootstrapCompleter) tool.Tool {
	return tool.NewFunctionTool(
		"complete_bootstrap",
		"signal that your identity ritual is complete. call this after writing your workspace files during bootstrap.",
		object(map[string]any{}),
		func(tc *core.ToolContext, _ map[string]any) (any, error) {
			if err := b.CompleteBootstrap(tc.Context(), tc.AgentID()); err != nil {
				return nil, err
			}
			return map[string]any{"bootstrapped": true}, nil
		},
	)
}
