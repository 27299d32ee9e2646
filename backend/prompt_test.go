package backend

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/internal/testutil"
	"github.com/hupe1980/agentdeck/model"
	"github.com/hupe1980/agentdeck/store"
	"github.com/hupe1980/agentdeck/workspace"
)

func newTestComposer(t *testing.T) (*Composer, *store.InMemory, *workspace.InMemory) {
	t.Helper()
	st := store.NewInMemory()
	ws := workspace.NewInMemory()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	c := NewComposer(ws, st, st, func(o *ComposerOptions) {
		o.Now = func() time.Time { return now }
	})
	return c, st, ws
}

func TestComposer_BootstrapPrompt(t *testing.T) {
	c, _, ws := newTestComposer(t)
	a := testutil.NewAgentBuilder("Nova Prime").Bootstrapped(false).Build()
	require.NoError(t, ws.Init(a.Name))

	tools := []model.ToolDefinition{
		model.NewToolDefinition("write_workspace", "write a file", nil),
	}

	assert.True(t, c.IsBootstrapping(a))

	prompt, err := c.System(context.Background(), a, tools)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(prompt, "you are a new agent called Nova Prime."))
	assert.Contains(t, prompt, "# bootstrap")
	assert.Contains(t, prompt, "available tools:\n- write_workspace: write a file\n")
	assert.Contains(t, prompt, "your workspace is at data/agents/nova_prime/.")
}

func TestComposer_NormalPromptWithoutBootstrapFile(t *testing.T) {
	c, _, _ := newTestComposer(t)
	a := testutil.NewAgentBuilder("nova").Bootstrapped(false).Build()

	assert.False(t, c.IsBootstrapping(a))

	prompt, err := c.System(context.Background(), a, nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(prompt, "you are nova, an ai agent.\n\nadapt your tone"))
	assert.NotContains(t, prompt, "user context:")
	assert.NotContains(t, prompt, "your memories:")
}

func TestComposer_NormalPromptSections(t *testing.T) {
	ctx := context.Background()
	c, st, ws := newTestComposer(t)
	a := testutil.NewAgentBuilder("nova").Build()
	require.NoError(t, st.CreateAgent(ctx, a))

	require.NoError(t, ws.Write(a.Name, workspace.SoulFile, "i am curious"))
	require.NoError(t, ws.Write(a.Name, workspace.IdentityFile, "name: nova"))
	require.NoError(t, ws.Write(a.Name, workspace.UserFile, "likes tea"))
	require.NoError(t, ws.Write(a.Name, workspace.DailyLogPath(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)), "talked about tea"))
	require.NoError(t, st.AddMemory(ctx, &core.Memory{AgentID: a.ID, Summary: "prefers green tea"}))

	tools := []model.ToolDefinition{model.NewToolDefinition("remember", "store a memory", nil)}

	prompt, err := c.System(ctx, a, tools)
	require.NoError(t, err)

	idx := func(s string) int {
		i := strings.Index(prompt, s)
		require.GreaterOrEqual(t, i, 0, s)
		return i
	}

	order := []int{
		idx("i am curious\n\nname: nova"),
		idx("user context:\nlikes tea"),
		idx("your memories:\n- prefers green tea"),
		idx("recent context:\n## 2026-03-10\ntalked about tea"),
		idx("adapt your tone"),
		idx("available agentdeck tools:\n- remember: store a memory"),
	}
	assert.IsIncreasing(t, order)

	require.NoError(t, ws.Write(a.Name, workspace.MemoryFile, "from the file"))
	prompt, err = c.System(ctx, a, tools)
	require.NoError(t, err)
	assert.Contains(t, prompt, "your memories:\nfrom the file")
	assert.NotContains(t, prompt, "prefers green tea")
}

func TestComposer_HistorySkipsHeartbeatsAndAddsBreadcrumbs(t *testing.T) {
	ctx := context.Background()
	c, st, _ := newTestComposer(t)
	a := testutil.NewAgentBuilder("nova").Build()
	require.NoError(t, st.CreateAgent(ctx, a))

	base := time.Now().UTC()
	msgs := []*core.Message{
		testutil.NewMessageBuilder(a.ID).User("remember tea").At(base).Build(),
		testutil.NewMessageBuilder(a.ID).Assistant("noted").At(base.Add(time.Second)).
			ToolCall("remember", map[string]any{"summary": "tea"}, map[string]any{"ok": true}).Build(),
		testutil.NewMessageBuilder(a.ID).Assistant("all quiet").Heartbeat().At(base.Add(2 * time.Second)).Build(),
	}
	for _, m := range msgs {
		require.NoError(t, st.AppendMessage(ctx, m))
	}

	history, err := c.History(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, core.RoleUser, history[0].Role)
	assert.Equal(t, "noted\n\n[used remember: {\"ok\":true}]", history[1].Text())
}

func TestBreadcrumbs_Truncates(t *testing.T) {
	long := strings.Repeat("x", 600)
	out := Breadcrumbs([]core.ToolCall{{Name: "read_url", Output: long}})
	assert.Equal(t, "[used read_url: "+strings.Repeat("x", 500)+"...]", out)
}
