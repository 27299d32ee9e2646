package agentdeck

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentdeck/agent"
	"github.com/hupe1980/agentdeck/backend"
	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/model"
)

func newDeck(t *testing.T, llm *model.MockModel) *Deck {
	t.Helper()

	d, err := New(func(o *Options) {
		o.EnvAPIKey = "sk-ant-api03-test"
		o.CredentialsPath = t.TempDir() + "/.credentials.json"
		o.StatelessModel = func(string) model.Model { return llm }
		o.AckProvider = backend.AckOpenAI
		o.ScheduleTick = time.Hour
	})
	require.NoError(t, err)
	t.Cleanup(d.Stop)

	return d
}

func TestNew_Defaults(t *testing.T) {
	d := newDeck(t, model.NewMockModel("claude", "anthropic"))

	assert.NotNil(t, d.Store)
	assert.NotNil(t, d.Workspace)
	assert.NotNil(t, d.Handler().Routes())

	names := d.Tools.Names()
	for _, want := range []string{
		"read_workspace", "write_workspace", "complete_bootstrap", "remember",
		"schedule_task", "cancel_schedule", "list_schedules",
		"store_credential", "get_credential", "http_request", "read_url",
		"delegate", "spawn_subagent",
	} {
		assert.Contains(t, names, want)
	}
}

func TestDeck_Send(t *testing.T) {
	llm := model.NewMockModel("claude", "anthropic").AddText("hi! who am i?")
	d := newDeck(t, llm)

	ctx := context.Background()
	a, err := d.Agents.Create(ctx, agent.CreateInput{Name: "nova"})
	require.NoError(t, err)

	sub := d.Bus.Subscribe(a.ID)
	defer sub.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	reply, err := d.Send(ctx, "nova", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hi! who am i?", reply.Content)

	reqs := llm.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Instructions, "you have not been set up yet")

	messages, err := d.Store.ListMessages(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, messages, 2)

	select {
	case ev := <-sub.C():
		assert.Equal(t, core.EventUserMessage, ev.Type)
	case <-ctx.Done():
		t.Fatal("no event delivered")
	}

	_, err = d.Send(ctx, "ghost", "hello")
	assert.ErrorIs(t, err, core.ErrUnknownAgent)
}

func TestDeck_CompleteBootstrapAndDelete(t *testing.T) {
	d := newDeck(t, model.NewMockModel("claude", "anthropic"))

	ctx := context.Background()
	require.NoError(t, d.Start(ctx))

	a, err := d.Agents.Create(ctx, agent.CreateInput{Name: "nova", HeartbeatInterval: ptr(10 * time.Minute)})
	require.NoError(t, err)
	assert.True(t, d.Heartbeat.Armed(a.ID))

	require.NoError(t, d.CompleteBootstrap(ctx, a.ID))
	got, err := d.Store.GetAgent(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.Bootstrapped)

	require.NoError(t, d.Agents.Delete(ctx, a.ID))
	assert.False(t, d.Heartbeat.Armed(a.ID))
}

func ptr[T any](v T) *T { return &v }
