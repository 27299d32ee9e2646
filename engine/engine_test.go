package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentdeck/backend"
	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/internal/testutil"
	"github.com/hupe1980/agentdeck/model"
	"github.com/hupe1980/agentdeck/store"
	"github.com/hupe1980/agentdeck/tool"
	"github.com/hupe1980/agentdeck/workspace"
)

type backendFunc func(ctx context.Context, call backend.Call) (model.Response, error)

func (f backendFunc) Send(ctx context.Context, call backend.Call) (model.Response, error) {
	return f(ctx, call)
}

type ackFunc func(ctx context.Context, agentName, content string) (string, error)

func (f ackFunc) Acknowledge(ctx context.Context, agentName, content string) (string, error) {
	return f(ctx, agentName, content)
}

type storeCompleter struct {
	agents core.AgentStore
	calls  int
}

func (c *storeCompleter) CompleteBootstrap(ctx context.Context, agentID string) error {
	c.calls++
	return c.agents.SetBootstrapped(ctx, agentID, true)
}

// gatedAgents holds GetAgent until release is closed.
type gatedAgents struct {
	core.AgentStore
	entered chan struct{}
	release chan struct{}
}

func (g *gatedAgents) GetAgent(ctx context.Context, id string) (*core.Agent, error) {
	close(g.entered)
	select {
	case <-g.release:
	case <-ctx.Done():
	}
	return g.AgentStore.GetAgent(ctx, id)
}

type fixture struct {
	store     *store.InMemory
	agents    core.AgentStore
	ws        *workspace.InMemory
	rec       *testutil.Recorder
	completer *storeCompleter

	mu    sync.Mutex
	calls []backend.Call
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := store.NewInMemory()
	return &fixture{
		store:     s,
		ws:        workspace.NewInMemory(),
		rec:       testutil.NewRecorder(),
		completer: &storeCompleter{agents: s},
	}
}

func (f *fixture) addAgent(t *testing.T, a *core.Agent) *core.Agent {
	t.Helper()
	require.NoError(t, f.store.CreateAgent(context.Background(), a))
	return a
}

func (f *fixture) recordCalls(next backendFunc) backendFunc {
	return func(ctx context.Context, call backend.Call) (model.Response, error) {
		f.mu.Lock()
		f.calls = append(f.calls, call)
		f.mu.Unlock()
		return next(ctx, call)
	}
}

func (f *fixture) backendCalls() []backend.Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]backend.Call(nil), f.calls...)
}

func (f *fixture) engine(b backendFunc, ack Acknowledger, optFns ...func(o *Options)) *Engine {
	noop := func(_ *core.ToolContext, _ map[string]any) (any, error) { return "ok", nil }
	params := map[string]any{"type": "object"}

	tools := tool.NewRegistry(
		tool.NewFunctionTool("read_workspace", "read", params, noop),
		tool.NewFunctionTool("write_workspace", "write", params, noop),
		tool.NewFunctionTool("complete_bootstrap", "complete", params, noop),
		tool.NewFunctionTool("remember", "remember", params, noop),
	)

	agents := f.agents
	if agents == nil {
		agents = f.store
	}

	return New(Dependencies{
		Agents:       agents,
		Messages:     f.store,
		Backend:      f.recordCalls(b),
		Prompts:      backend.NewComposer(f.ws, f.store, f.store),
		Acknowledger: ack,
		Tools:        tools,
		Publisher:    f.rec,
		Bootstrap:    f.completer,
	}, optFns...)
}

func reply(text string) backendFunc {
	return func(context.Context, backend.Call) (model.Response, error) {
		return model.TextResponse(text), nil
	}
}

func wait(t *testing.T, p *Pending) (Reply, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.Wait(ctx)
}

func toolNames(defs []model.ToolDefinition) []string {
	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, d.Function.Name)
	}
	return names
}

func TestEngine_ChatTurn(t *testing.T) {
	f := newFixture(t)
	a := f.addAgent(t, testutil.NewAgentBuilder("nova").Build())

	eng := f.engine(reply("hello there"), nil)

	r, err := wait(t, eng.Enqueue(context.Background(), a.ID, "hi", WithClientID("c-1")))
	require.NoError(t, err)
	assert.Equal(t, "hello there", r.Content)
	assert.NotEmpty(t, r.ID)
	assert.False(t, r.Suppressed)
	assert.False(t, eng.IsProcessing(a.ID))

	assert.Equal(t, []core.EventType{
		core.EventUserMessage,
		core.EventTyping,
		core.EventTyping,
		core.EventAssistantMessage,
	}, f.rec.Types())

	events := f.rec.Events()
	user := events[0].Data.(core.UserMessageData)
	assert.Equal(t, "hi", user.Content)
	assert.Equal(t, "c-1", user.ClientID)
	assert.Equal(t, core.TypingData{Active: true}, events[1].Data)
	assert.Equal(t, core.TypingData{Active: false}, events[2].Data)
	assert.Equal(t, core.MessageData{ID: r.ID, Content: "hello there"}, events[3].Data)

	msgs, err := f.store.ListMessages(context.Background(), a.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, user.ID, msgs[0].ID)
	assert.Equal(t, core.RoleAssistant, msgs[1].Role)

	calls := f.backendCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, a.ID, calls[0].AgentID)
	assert.Equal(t, a.ID, calls[0].Owner)
	assert.Equal(t, core.EffortHigh, calls[0].Effort)
	assert.Equal(t, core.DefaultModel, calls[0].Model)
	assert.False(t, calls[0].NoBuiltinTools)
	assert.Equal(t, []string{"complete_bootstrap", "read_workspace", "remember", "write_workspace"}, toolNames(calls[0].Tools))
	require.Len(t, calls[0].Contents, 1)
	assert.Equal(t, "hi", calls[0].Contents[0].Text())

	assert.Eventually(t, func() bool { return eng.State().Lanes() == 0 }, time.Second, time.Millisecond)
}

func TestEngine_UnknownAgent(t *testing.T) {
	f := newFixture(t)
	eng := f.engine(reply("x"), nil)

	_, err := wait(t, eng.Enqueue(context.Background(), "missing", "hi"))
	assert.ErrorIs(t, err, core.ErrUnknownAgent)
	assert.Empty(t, f.rec.Events())
	assert.Empty(t, f.backendCalls())
}

func TestEngine_SerialisesTurnsPerAgent(t *testing.T) {
	f := newFixture(t)
	a := f.addAgent(t, testutil.NewAgentBuilder("nova").Build())
	b := f.addAgent(t, testutil.NewAgentBuilder("orion").Build())

	release := make(chan struct{})
	var mu sync.Mutex
	var order []string

	eng := f.engine(func(ctx context.Context, call backend.Call) (model.Response, error) {
		text := call.Contents[len(call.Contents)-1].Text()
		if text == "first" {
			<-release
		}
		mu.Lock()
		order = append(order, text)
		mu.Unlock()
		if text == "first" {
			return model.Response{}, errors.New("boom")
		}
		return model.TextResponse("re: " + text), nil
	}, nil)

	p1 := eng.Enqueue(context.Background(), a.ID, "first")
	p2 := eng.Enqueue(context.Background(), a.ID, "second")

	// another agent's lane is independent
	r, err := wait(t, eng.Enqueue(context.Background(), b.ID, "other"))
	require.NoError(t, err)
	assert.Equal(t, "re: other", r.Content)

	select {
	case <-p2.Done():
		t.Fatal("second turn ran before the first settled")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)

	_, err = wait(t, p1)
	require.EqualError(t, err, "boom")

	r, err = wait(t, p2)
	require.NoError(t, err)
	assert.Equal(t, "re: second", r.Content)

	mu.Lock()
	assert.Equal(t, []string{"other", "first", "second"}, order)
	mu.Unlock()
}

func TestEngine_FailurePublishesError(t *testing.T) {
	f := newFixture(t)
	a := f.addAgent(t, testutil.NewAgentBuilder("nova").Build())

	eng := f.engine(func(context.Context, backend.Call) (model.Response, error) {
		return model.Response{}, &core.AuthenticationError{Reason: "no credentials found"}
	}, nil)

	_, err := wait(t, eng.Enqueue(context.Background(), a.ID, "hi"))

	var authErr *core.AuthenticationError
	require.ErrorAs(t, err, &authErr)

	types := f.rec.Types()
	require.Len(t, types, 4)
	assert.Equal(t, core.EventTyping, types[2])
	assert.Equal(t, core.TypingData{Active: false}, f.rec.Events()[2].Data)
	assert.Equal(t, core.EventError, types[3])
	assert.Equal(t, core.ErrorData{Error: err.Error()}, f.rec.Events()[3].Data)

	n, err := f.store.CountMessages(context.Background(), a.ID, core.RoleAssistant)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.False(t, eng.IsProcessing(a.ID))
}

func TestEngine_AckWinsRace(t *testing.T) {
	f := newFixture(t)
	a := f.addAgent(t, testutil.NewAgentBuilder("nova").Build())

	release := make(chan struct{})
	eng := f.engine(func(ctx context.Context, _ backend.Call) (model.Response, error) {
		<-release
		return model.TextResponse("the full answer"), nil
	}, ackFunc(func(_ context.Context, name, content string) (string, error) {
		assert.Equal(t, "nova", name)
		assert.Equal(t, "dig into this", content)
		return " on it ", nil
	}), func(o *Options) { o.AckDelay = 5 * time.Millisecond })

	var onAck string
	p := eng.Enqueue(context.Background(), a.ID, "dig into this", WithOnAck(func(ack string) { onAck = ack }))

	select {
	case ack := <-p.Ack():
		assert.Equal(t, "on it", ack)
	case <-time.After(5 * time.Second):
		t.Fatal("no acknowledgment")
	}
	assert.True(t, eng.IsProcessing(a.ID))

	close(release)

	r, err := wait(t, p)
	require.NoError(t, err)
	assert.Equal(t, "the full answer", r.Content)
	assert.Equal(t, "on it", onAck)

	_, open := <-p.Ack()
	assert.False(t, open)

	assert.Equal(t, []core.EventType{
		core.EventUserMessage,
		core.EventTyping,
		core.EventTyping,
		core.EventAckMessage,
		core.EventTyping,
		core.EventTyping,
		core.EventAssistantMessage,
	}, f.rec.Types())

	msgs, err := f.store.ListMessages(context.Background(), a.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "on it", msgs[1].Content)
	assert.Equal(t, core.RoleAssistant, msgs[1].Role)
}

func TestEngine_LoopWinsRace(t *testing.T) {
	f := newFixture(t)
	a := f.addAgent(t, testutil.NewAgentBuilder("nova").Build())

	eng := f.engine(reply("quick"), ackFunc(func(context.Context, string, string) (string, error) {
		return "on it", nil
	}), func(o *Options) { o.AckDelay = time.Hour })

	p := eng.Enqueue(context.Background(), a.ID, "hi")
	_, err := wait(t, p)
	require.NoError(t, err)

	_, open := <-p.Ack()
	assert.False(t, open)
	assert.Empty(t, f.rec.OfType(core.EventAckMessage))
}

func TestEngine_AckFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	a := f.addAgent(t, testutil.NewAgentBuilder("nova").Build())

	release := make(chan struct{})
	acked := make(chan struct{})
	eng := f.engine(func(ctx context.Context, _ backend.Call) (model.Response, error) {
		<-release
		return model.TextResponse("answer"), nil
	}, ackFunc(func(context.Context, string, string) (string, error) {
		defer close(acked)
		return "", errors.New("rate limited")
	}), func(o *Options) { o.AckDelay = time.Millisecond })

	p := eng.Enqueue(context.Background(), a.ID, "hi")
	<-acked
	close(release)

	r, err := wait(t, p)
	require.NoError(t, err)
	assert.Equal(t, "answer", r.Content)
	assert.Empty(t, f.rec.OfType(core.EventAckMessage))
}

func TestEngine_NoAckForScheduledOrBootstrapTurns(t *testing.T) {
	tests := []struct {
		name    string
		agent   *core.Agent
		content string
		opts    []EnqueueOption
	}{
		{name: "scheduled option", agent: testutil.NewAgentBuilder("nova").Build(), content: "water plants", opts: []EnqueueOption{Scheduled()}},
		{name: "scheduled prefix", agent: testutil.NewAgentBuilder("nova").Build(), content: ScheduledPrefix + " water plants"},
		{name: "bootstrapping", agent: testutil.NewAgentBuilder("nova").Bootstrapped(false).Build(), content: "hi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			a := f.addAgent(t, tt.agent)

			acks := 0
			eng := f.engine(func(context.Context, backend.Call) (model.Response, error) {
				time.Sleep(10 * time.Millisecond)
				return model.TextResponse("done"), nil
			}, ackFunc(func(context.Context, string, string) (string, error) {
				acks++
				return "on it", nil
			}), func(o *Options) { o.AckDelay = time.Millisecond })

			_, err := wait(t, eng.Enqueue(context.Background(), a.ID, tt.content, tt.opts...))
			require.NoError(t, err)
			assert.Zero(t, acks)
			assert.Empty(t, f.rec.OfType(core.EventAckMessage))
		})
	}
}

func TestEngine_HeartbeatSuppressed(t *testing.T) {
	f := newFixture(t)
	a := f.addAgent(t, testutil.NewAgentBuilder("nova").Effort(core.EffortMedium).Build())

	eng := f.engine(reply("  all quiet.\n\nHEARTBEAT_OK  "), nil)

	r, err := wait(t, eng.Enqueue(context.Background(), a.ID, "[heartbeat] check", Heartbeat()))
	require.NoError(t, err)
	assert.True(t, r.Suppressed)
	assert.Empty(t, r.ID)

	assert.Empty(t, f.rec.Events())

	msgs, err := f.store.ListMessages(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	calls := f.backendCalls()
	require.Len(t, calls, 1)
	assert.Empty(t, calls[0].AgentID)
	assert.Equal(t, core.EffortLow, calls[0].Effort)
	require.Len(t, calls[0].Contents, 1)
	assert.Equal(t, "[heartbeat] check", calls[0].Contents[0].Text())
}

func TestEngine_HeartbeatAlert(t *testing.T) {
	f := newFixture(t)
	a := f.addAgent(t, testutil.NewAgentBuilder("nova").Build())

	eng := f.engine(reply("your flight leaves in two hours"), nil)

	r, err := wait(t, eng.Enqueue(context.Background(), a.ID, "[heartbeat] check", Heartbeat()))
	require.NoError(t, err)
	assert.False(t, r.Suppressed)

	assert.Equal(t, []core.EventType{core.EventHeartbeatAlert}, f.rec.Types())

	msgs, err := f.store.RecentMessages(context.Background(), a.ID, core.KindHeartbeat, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, r.ID, msgs[0].ID)

	chat, err := f.store.RecentMessages(context.Background(), a.ID, core.KindChat, 10)
	require.NoError(t, err)
	assert.Empty(t, chat)
}

func TestEngine_BootstrapTurn(t *testing.T) {
	f := newFixture(t)
	a := f.addAgent(t, testutil.NewAgentBuilder("nova").Bootstrapped(false).Build())
	require.NoError(t, f.ws.Init(a.Name))

	for _, text := range []string{"hey", "i'm sam", "call yourself nova"} {
		require.NoError(t, f.store.AppendMessage(context.Background(), core.NewMessage(a.ID, core.RoleUser, text)))
	}

	eng := f.engine(reply("nice to meet you"), nil)

	_, err := wait(t, eng.Enqueue(context.Background(), a.ID, "you're a helpful assistant"))
	require.NoError(t, err)

	calls := f.backendCalls()
	require.Len(t, calls, 1)
	assert.True(t, calls[0].NoBuiltinTools)
	assert.Empty(t, calls[0].AgentID)
	assert.Equal(t, core.EffortLow, calls[0].Effort)
	assert.Equal(t, []string{"read_workspace", "write_workspace", "complete_bootstrap"}, toolNames(calls[0].Tools))
	assert.Contains(t, calls[0].System, "you have not been set up yet")

	assert.Equal(t, 1, f.completer.calls)

	got, err := f.store.GetAgent(context.Background(), a.ID)
	require.NoError(t, err)
	assert.True(t, got.Bootstrapped)
}

func TestEngine_BootstrapBelowThreshold(t *testing.T) {
	f := newFixture(t)
	a := f.addAgent(t, testutil.NewAgentBuilder("nova").Bootstrapped(false).Build())

	eng := f.engine(reply("hello"), nil)

	_, err := wait(t, eng.Enqueue(context.Background(), a.ID, "hey"))
	require.NoError(t, err)
	assert.Zero(t, f.completer.calls)
}

func TestEngine_BootstrapToolsAreScoped(t *testing.T) {
	f := newFixture(t)
	a := f.addAgent(t, testutil.NewAgentBuilder("nova").Bootstrapped(false).Build())

	round := 0
	eng := f.engine(func(context.Context, backend.Call) (model.Response, error) {
		round++
		if round == 1 {
			return model.ToolUseResponse("", core.FunctionCall{ID: "1", Name: "remember", Arguments: "{}"}), nil
		}
		return model.TextResponse("ok"), nil
	}, nil)

	r, err := wait(t, eng.Enqueue(context.Background(), a.ID, "hey"))
	require.NoError(t, err)
	require.Len(t, r.ToolCalls, 1)
	assert.Equal(t, map[string]any{"error": "unknown tool: remember"}, r.ToolCalls[0].Output)
}

func TestEngine_AbortInFlightTurn(t *testing.T) {
	f := newFixture(t)
	a := f.addAgent(t, testutil.NewAgentBuilder("nova").Build())

	started := make(chan struct{}, 1)
	eng := f.engine(func(ctx context.Context, call backend.Call) (model.Response, error) {
		if strings.HasPrefix(call.Contents[len(call.Contents)-1].Text(), "slow") {
			started <- struct{}{}
			<-ctx.Done()
			return model.Response{}, errors.New("backend interrupted")
		}
		return model.TextResponse("fast reply"), nil
	}, nil)

	p1 := eng.Enqueue(context.Background(), a.ID, "slow task")
	p2 := eng.Enqueue(context.Background(), a.ID, "next")

	<-started
	assert.True(t, eng.Abort(a.ID))

	_, err := wait(t, p1)
	assert.ErrorIs(t, err, core.ErrAborted)

	r, err := wait(t, p2)
	require.NoError(t, err)
	assert.Equal(t, "fast reply", r.Content)

	assert.False(t, eng.Abort(a.ID))
}

func TestEngine_AbortWhileLoadingAgent(t *testing.T) {
	f := newFixture(t)
	a := f.addAgent(t, testutil.NewAgentBuilder("nova").Build())

	gate := &gatedAgents{AgentStore: f.store, entered: make(chan struct{}), release: make(chan struct{})}
	defer close(gate.release)
	f.agents = gate

	eng := f.engine(reply("too late"), nil)

	p := eng.Enqueue(context.Background(), a.ID, "hi")
	<-gate.entered

	assert.True(t, eng.Abort(a.ID))

	_, err := wait(t, p)
	assert.ErrorIs(t, err, core.ErrAborted)
	assert.Empty(t, f.backendCalls())

	msgs, err := f.store.ListMessages(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestEngine_ForgetClosesLane(t *testing.T) {
	f := newFixture(t)
	a := f.addAgent(t, testutil.NewAgentBuilder("nova").Build())

	var mu sync.Mutex
	running, peak := 0, 0

	started := make(chan struct{}, 1)
	eng := f.engine(func(ctx context.Context, call backend.Call) (model.Response, error) {
		mu.Lock()
		running++
		peak = max(peak, running)
		mu.Unlock()
		defer func() {
			mu.Lock()
			running--
			mu.Unlock()
		}()

		started <- struct{}{}
		<-ctx.Done()
		return model.Response{}, ctx.Err()
	}, nil)

	p1 := eng.Enqueue(context.Background(), a.ID, "first")
	p2 := eng.Enqueue(context.Background(), a.ID, "second")
	<-started

	eng.Forget(a.ID)
	eng.Abort(a.ID)
	p3 := eng.Enqueue(context.Background(), a.ID, "third")

	_, err := wait(t, p1)
	assert.ErrorIs(t, err, core.ErrAborted)

	_, err = wait(t, p2)
	assert.ErrorIs(t, err, core.ErrUnknownAgent)

	_, err = wait(t, p3)
	assert.ErrorIs(t, err, core.ErrUnknownAgent)

	assert.Len(t, f.backendCalls(), 1)
	mu.Lock()
	assert.Equal(t, 1, peak)
	mu.Unlock()

	require.Eventually(t, func() bool { return eng.State().Lanes() == 0 }, time.Second, time.Millisecond)
	assert.False(t, eng.Abort(a.ID))

	msgs, err := f.store.ListMessages(context.Background(), a.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "first", msgs[0].Content)
}

func TestEngine_StopCancelsTurns(t *testing.T) {
	f := newFixture(t)
	a := f.addAgent(t, testutil.NewAgentBuilder("nova").Build())

	started := make(chan struct{})
	eng := f.engine(func(ctx context.Context, _ backend.Call) (model.Response, error) {
		close(started)
		<-ctx.Done()
		return model.Response{}, ctx.Err()
	}, nil)

	p := eng.Enqueue(context.Background(), a.ID, "hi")
	<-started
	eng.Stop()

	_, err := wait(t, p)
	assert.ErrorIs(t, err, ErrStopped)
}

func TestEngine_Ask(t *testing.T) {
	f := newFixture(t)
	a := f.addAgent(t, testutil.NewAgentBuilder("nova").Build())

	eng := f.engine(reply("42"), nil)

	text, err := eng.Ask(context.Background(), a.ID, "meaning?")
	require.NoError(t, err)
	assert.Equal(t, "42", text)
}

func TestEngine_Callbacks(t *testing.T) {
	f := newFixture(t)
	a := f.addAgent(t, testutil.NewAgentBuilder("nova").Build())

	eng := f.engine(reply("fine"), nil)

	var seen []CallbackType
	record := func(_ context.Context, cbCtx *CallbackContext) error {
		seen = append(seen, cbCtx.CallbackType)
		return nil
	}
	eng.Callbacks().RegisterCallback(NewFunctionCallback(CallbackBeforeTurn, record))
	eng.Callbacks().RegisterCallback(NewFunctionCallback(CallbackAfterTurn, record))

	_, err := wait(t, eng.Enqueue(context.Background(), a.ID, "hi"))
	require.NoError(t, err)
	assert.Equal(t, []CallbackType{CallbackBeforeTurn, CallbackAfterTurn}, seen)

	veto := errors.New("quiet hours")
	eng.Callbacks().RegisterCallback(NewFunctionCallback(CallbackBeforeTurn, func(context.Context, *CallbackContext) error {
		return veto
	}))

	_, err = wait(t, eng.Enqueue(context.Background(), a.ID, "hi again"))
	assert.ErrorIs(t, err, veto)

	n, err := f.store.CountMessages(context.Background(), a.ID, core.RoleUser)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestIsHeartbeatOK(t *testing.T) {
	assert.True(t, IsHeartbeatOK("HEARTBEAT_OK"))
	assert.True(t, IsHeartbeatOK("nothing to do\n\n  HEARTBEAT_OK"))
	assert.False(t, IsHeartbeatOK("reminder: call mom"))
	assert.False(t, IsHeartbeatOK(strings.Repeat("a ", 200)+"HEARTBEAT_OK"))
}
