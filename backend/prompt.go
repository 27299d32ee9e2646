package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/internal/util"
	"github.com/hupe1980/agentdeck/model"
	"github.com/hupe1980/agentdeck/workspace"
)

var bootstrapPrompt = util.MustParse("bootstrap", `you are a new agent called {{.Name}}. you have not been set up yet.

you know nothing about the user. do not infer, guess, or use any name, username, file path, hostname, or environment variable to identify them. if you see a username in a path or system info, ignore it completely. you must ask the user who they are.

{{.Bootstrap}}

available tools:
{{join "\n" .Tools}}

your workspace is at {{.WorkspacePath}}. use write_workspace to create your files. do NOT use bash, read, glob, grep, or any other built-in tools during bootstrap.`)

var normalPrompt = util.MustParse("normal", `{{if .Soul}}{{.Soul}}{{else}}you are {{.Name}}, an ai agent.{{end}}

{{with .Identity}}{{.}}

{{end}}{{with .User}}user context:
{{.}}

{{end}}{{with .Memories}}your memories:
{{.}}

{{end}}{{with .DailyLogs}}recent context:
{{.}}

{{end}}adapt your tone and style naturally to match whoever you are talking to. be personable. you are not a task executor. you are a conversational agent who can also get things done when asked.

you have full machine access through the built-in tools of your environment: bash, file read/write/edit, glob and grep. use them freely to accomplish tasks.

available agentdeck tools:
{{join "\n" .Tools}}

use spawn_subagent to offload complex or time-consuming work (writing code, running multi-step commands, analysis) to an ephemeral subprocess. the subagent has full machine access but no agentdeck tools or memory.

use delegate to collaborate with other agents. send a message to another agent by name and get their response. useful when a task falls in another agent's domain.

use the remember tool for critical standing instructions or preferences you must never lose.

your workspace is at {{.WorkspacePath}}. you can read and write your own files using read_workspace and write_workspace. your soul, identity, memory, and heartbeat files are yours to evolve.

when using tools, just use them naturally as part of the conversation. no need to announce plans or ask permission. when interacting with external platforms, read their documentation first to understand the api.

if the user asks you to do something repeatedly or on a schedule, use the schedule_task tool to set it up. you will receive scheduled reminders as messages and should act on them autonomously.

when you receive a [scheduled reminder], just do the thing. no need to announce that it was a reminder. act naturally.

CRITICAL: users cannot see tool results. they only see your final text response. when you use tools, you MUST include every key detail from the results (urls, links, confirmation codes, usernames, error messages, anything actionable). if you don't include it in your response, the user will never see it. never summarize away actionable information.

you know nothing about the user until they tell you. do not infer, guess, or use any username, file path, hostname, or environment variable to identify them. if you see a username in a path or system info, ignore it completely. never address the user by name until they introduce themselves.`)

// ComposerOptions configures a Composer.
type ComposerOptions struct {
	// HistoryLimit caps the chat messages sent as conversation context.
	HistoryLimit int
	// WorkspaceRoot is the directory shown to agents as the parent of their workspace.
	WorkspaceRoot string
	Now           func() time.Time
}

// Composer builds system prompts and conversation history for an agent.
type Composer struct {
	workspace core.Workspace
	memories  core.MemoryStore
	messages  core.MessageStore
	opts      ComposerOptions
}

// NewComposer creates a Composer.
func NewComposer(ws core.Workspace, memories core.MemoryStore, messages core.MessageStore, optFns ...func(o *ComposerOptions)) *Composer {
	opts := ComposerOptions{
		HistoryLimit:  30,
		WorkspaceRoot: "data/agents",
		Now:           time.Now,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Composer{workspace: ws, memories: memories, messages: messages, opts: opts}
}

// IsBootstrapping reports whether the agent still runs its bootstrap ritual.
func (c *Composer) IsBootstrapping(a *core.Agent) bool {
	if a.Bootstrapped {
		return false
	}
	_, ok, err := c.workspace.Read(a.Name, workspace.BootstrapFile)
	return err == nil && ok
}

// System returns the system prompt for a. An agent that is not bootstrapped
// and still has BOOTSTRAP.md gets the bootstrap prompt; every other agent
// gets its persona prompt. tools is the catalog listed in the prompt.
func (c *Composer) System(ctx context.Context, a *core.Agent, tools []model.ToolDefinition) (string, error) {
	catalog := make([]string, 0, len(tools))
	for _, t := range tools {
		catalog = append(catalog, fmt.Sprintf("- %s: %s", t.Function.Name, t.Function.Description))
	}

	wsPath := strings.TrimSuffix(c.opts.WorkspaceRoot, "/") + "/" + workspace.SanitizeName(a.Name) + "/"

	if !a.Bootstrapped {
		text, ok, err := c.workspace.Read(a.Name, workspace.BootstrapFile)
		if err != nil {
			return "", err
		}
		if ok {
			return execute(bootstrapPrompt, map[string]any{
				"Name":          a.Name,
				"Bootstrap":     text,
				"Tools":         catalog,
				"WorkspacePath": wsPath,
			})
		}
	}

	data := map[string]any{
		"Name":          a.Name,
		"Tools":         catalog,
		"WorkspacePath": wsPath,
	}

	files := map[string]string{
		"Soul":     workspace.SoulFile,
		"Identity": workspace.IdentityFile,
		"User":     workspace.UserFile,
		"Memories": workspace.MemoryFile,
	}
	for key, name := range files {
		text, _, err := c.workspace.Read(a.Name, name)
		if err != nil {
			return "", err
		}
		data[key] = text
	}

	if data["Memories"] == "" {
		mems, err := c.memories.ListMemories(ctx, a.ID)
		if err != nil {
			return "", err
		}
		lines := make([]string, 0, len(mems))
		for _, m := range mems {
			lines = append(lines, "- "+m.Summary)
		}
		data["Memories"] = strings.Join(lines, "\n")
	}

	logs, err := c.workspace.DailyLogs(a.Name, c.opts.Now())
	if err != nil {
		return "", err
	}
	data["DailyLogs"] = logs

	return execute(normalPrompt, data)
}

// History returns the recent chat messages of the agent as conversation
// contents, oldest first. Assistant messages that used tools carry a
// breadcrumb per call so the backend remembers what it did.
func (c *Composer) History(ctx context.Context, agentID string) ([]core.Content, error) {
	msgs, err := c.messages.RecentMessages(ctx, agentID, core.KindChat, c.opts.HistoryLimit)
	if err != nil {
		return nil, err
	}

	contents := make([]core.Content, 0, len(msgs))
	for _, m := range msgs {
		text := m.Content
		if m.Role == core.RoleAssistant && len(m.ToolCalls) > 0 {
			text += "\n\n" + Breadcrumbs(m.ToolCalls)
		}
		contents = append(contents, core.NewTextContent(m.Role, text))
	}

	return contents, nil
}

const breadcrumbLimit = 500

// Breadcrumbs renders one `[used name: output]` line per call.
func Breadcrumbs(calls []core.ToolCall) string {
	lines := make([]string, 0, len(calls))
	for _, tc := range calls {
		out := util.Truncate(outputString(tc.Output), breadcrumbLimit)
		lines = append(lines, fmt.Sprintf("[used %s: %s]", tc.Name, out))
	}
	return strings.Join(lines, "\n")
}

func outputString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func execute(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", t.Name(), err)
	}
	return buf.String(), nil
}
