package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentdeck/agent"
	"github.com/hupe1980/agentdeck/auth"
	"github.com/hupe1980/agentdeck/backend"
	"github.com/hupe1980/agentdeck/bus"
	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/engine"
	"github.com/hupe1980/agentdeck/internal/testutil"
	"github.com/hupe1980/agentdeck/model"
	"github.com/hupe1980/agentdeck/store"
	"github.com/hupe1980/agentdeck/workspace"
)

type backendFunc func(ctx context.Context, call backend.Call) (model.Response, error)

func (f backendFunc) Send(ctx context.Context, call backend.Call) (model.Response, error) {
	return f(ctx, call)
}

type fixture struct {
	store  *store.InMemory
	ws     *workspace.InMemory
	bus    *bus.Bus
	engine *engine.Engine
	agents *agent.Service
	srv    *httptest.Server
}

func newFixture(t *testing.T, b backendFunc, optFns ...func(o *Options)) *fixture {
	t.Helper()

	s := store.NewInMemory()
	ws := workspace.NewInMemory()
	events := bus.New()

	f := &fixture{store: s, ws: ws, bus: events}

	f.agents = agent.NewService(s, ws, func(o *agent.Options) {
		o.Subscribers = events
		o.Publisher = events
	})

	f.engine = engine.New(engine.Dependencies{
		Agents:    s,
		Messages:  s,
		Backend:   b,
		Prompts:   backend.NewComposer(ws, s, s),
		Publisher: events,
		Bootstrap: f.agents,
	})
	t.Cleanup(f.engine.Stop)

	resolver := auth.NewResolver(s, func(o *auth.Options) {
		o.CredentialsPath = filepath.Join(t.TempDir(), ".credentials.json")
	})

	h := NewHandler(Dependencies{
		Store:     s,
		Workspace: ws,
		Turns:     f.engine,
		Agents:    f.agents,
		Auth:      resolver,
		Streams:   events,
	}, optFns...)

	f.srv = httptest.NewServer(h.Routes())
	t.Cleanup(f.srv.Close)

	return f
}

func reply(text string) backendFunc {
	return func(context.Context, backend.Call) (model.Response, error) {
		return model.TextResponse(text), nil
	}
}

func (f *fixture) do(t *testing.T, method, path string, body any, header ...string) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, f.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)

	return resp, out
}

func (f *fixture) list(t *testing.T, path string) []map[string]any {
	t.Helper()

	resp, err := http.Get(f.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))

	return out
}

func (f *fixture) create(t *testing.T, name string) string {
	t.Helper()
	resp, body := f.do(t, http.MethodPost, "/api/agents", map[string]any{"name": name})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return body["id"].(string)
}

func TestAgents_CRUD(t *testing.T) {
	f := newFixture(t, reply("ok"))

	resp, body := f.do(t, http.MethodPost, "/api/agents", map[string]any{
		"name":               "nova",
		"is_default":         true,
		"heartbeat_interval": 600000,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := body["id"].(string)
	assert.Equal(t, "nova", body["name"])
	assert.Equal(t, false, body["bootstrapped"])
	assert.Equal(t, true, body["is_default"])
	assert.EqualValues(t, 600000, body["heartbeat_interval"])

	resp, _ = f.do(t, http.MethodPost, "/api/agents", map[string]any{"name": "nova"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/api/agents", map[string]any{"name": "  "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = f.do(t, http.MethodPatch, "/api/agents/"+id, map[string]any{
		"name":               "vega",
		"heartbeat_interval": nil,
		"show_heartbeat":     true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "vega", body["name"])
	assert.Nil(t, body["heartbeat_interval"])
	assert.Equal(t, true, body["show_heartbeat"])

	resp, _ = f.do(t, http.MethodPatch, "/api/agents/"+id, map[string]any{"heartbeat_interval": "soon"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	assert.Len(t, f.list(t, "/api/agents"), 1)

	resp, body = f.do(t, http.MethodDelete, "/api/agents/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["deleted"])

	resp, body = f.do(t, http.MethodGet, "/api/agents/"+id, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "agent not found", body["error"])
}

func TestChat_QueuedAndPersisted(t *testing.T) {
	f := newFixture(t, reply("hello"))
	id := f.create(t, "nova")

	resp, body := f.do(t, http.MethodPost, "/api/agents/"+id+"/chat", map[string]any{"content": "hi", "client_id": "c-1"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "queued", body["status"])
	assert.Equal(t, "c-1", body["client_id"])

	assert.Eventually(t, func() bool {
		return len(f.list(t, "/api/agents/"+id+"/messages")) == 2
	}, 2*time.Second, 10*time.Millisecond)

	resp, _ = f.do(t, http.MethodPost, "/api/agents/"+id+"/chat", map[string]any{"content": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/api/agents/missing/chat", map[string]any{"content": "hi"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMessages_HeartbeatFilter(t *testing.T) {
	f := newFixture(t, reply("ok"))
	id := f.create(t, "nova")

	ctx := context.Background()
	require.NoError(t, f.store.AppendMessage(ctx, testutil.NewMessageBuilder(id).User("hi").Build()))
	require.NoError(t, f.store.AppendMessage(ctx, testutil.NewMessageBuilder(id).Assistant("inbox has 3 unread").Heartbeat().Build()))

	assert.Len(t, f.list(t, "/api/agents/"+id+"/messages"), 1)
	assert.Len(t, f.list(t, "/api/agents/"+id+"/messages?all=1"), 2)

	resp, body := f.do(t, http.MethodDelete, "/api/agents/"+id+"/messages", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["cleared"])
	assert.Empty(t, f.list(t, "/api/agents/"+id+"/messages?all=1"))
}

func TestMemoriesAndSchedules(t *testing.T) {
	f := newFixture(t, reply("ok"))
	id := f.create(t, "nova")

	ctx := context.Background()
	require.NoError(t, f.store.AddMemory(ctx, &core.Memory{ID: core.NewID(), AgentID: id, Summary: "likes tea", CreatedAt: time.Now()}))
	require.NoError(t, f.store.CreateSchedule(ctx, &core.Schedule{
		ID: core.NewID(), AgentID: id, Description: "water plants",
		Interval: time.Hour, NextRunAt: time.Now().Add(time.Hour), Active: true, CreatedAt: time.Now(),
	}))

	memories := f.list(t, "/api/agents/"+id+"/memories")
	require.Len(t, memories, 1)
	assert.Equal(t, "likes tea", memories[0]["summary"])

	schedules := f.list(t, "/api/agents/"+id+"/schedules")
	require.Len(t, schedules, 1)
	assert.EqualValues(t, time.Hour.Milliseconds(), schedules[0]["interval_ms"])

	resp, _ := f.do(t, http.MethodDelete, "/api/agents/"+id+"/memories", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, f.list(t, "/api/agents/"+id+"/memories"))
}

func TestWorkspace(t *testing.T) {
	f := newFixture(t, reply("ok"))
	id := f.create(t, "nova")

	resp, body := f.do(t, http.MethodPut, "/api/agents/"+id+"/workspace/SOUL.md", map[string]any{"content": "calm"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["written"])

	resp, body = f.do(t, http.MethodGet, "/api/agents/"+id+"/workspace/SOUL.md", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "calm", body["content"])

	resp, _ = f.do(t, http.MethodGet, "/api/agents/"+id+"/workspace/NOPE.md", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/api/agents/"+id+"/workspace/a..b", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPut, "/api/agents/"+id+"/workspace/SOUL.md", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp2, err := http.Get(f.srv.URL + "/api/agents/" + id + "/workspace")
	require.NoError(t, err)
	defer resp2.Body.Close()
	var files []string
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&files))
	assert.Contains(t, files, "SOUL.md")
	assert.NotContains(t, files, workspace.BootstrapFile)

	logs, err := http.Get(f.srv.URL + "/api/agents/" + id + "/logs")
	require.NoError(t, err)
	defer logs.Body.Close()
	assert.Equal(t, http.StatusOK, logs.StatusCode)
}

func TestAuthRoutes(t *testing.T) {
	f := newFixture(t, reply("ok"))

	resp, body := f.do(t, http.MethodGet, "/api/auth/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["authenticated"])

	resp, _ = f.do(t, http.MethodPost, "/api/auth/api-key", map[string]any{"key": "sk-ant-oat-wrong"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = f.do(t, http.MethodPost, "/api/auth/api-key", map[string]any{"key": "sk-ant-api03-abc"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["saved"])

	_, body = f.do(t, http.MethodGet, "/api/auth/status", nil)
	assert.Equal(t, true, body["authenticated"])
	assert.Equal(t, string(auth.ModeAPIKey), body["mode"])

	resp, _ = f.do(t, http.MethodDelete, "/api/auth/api-key", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = f.do(t, http.MethodPost, "/api/auth/setup-token", map[string]any{"token": "sk-ant-oat01-xyz"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["saved"])

	_, body = f.do(t, http.MethodGet, "/api/auth/status", nil)
	assert.Equal(t, string(auth.ModeOAuth), body["mode"])
}

func TestAbort(t *testing.T) {
	started := make(chan struct{})
	f := newFixture(t, func(ctx context.Context, _ backend.Call) (model.Response, error) {
		close(started)
		<-ctx.Done()
		return model.Response{}, context.Cause(ctx)
	})
	id := f.create(t, "nova")

	resp, _ := f.do(t, http.MethodPost, "/api/agents/"+id+"/chat", map[string]any{"content": "long task"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("turn did not start")
	}

	resp, body := f.do(t, http.MethodPost, "/api/agents/"+id+"/abort", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["aborted"])

	assert.Eventually(t, func() bool { return !f.engine.IsProcessing(id) }, 2*time.Second, 10*time.Millisecond)
}

func readEvent(t *testing.T, ctx context.Context, c *websocket.Conn) core.EventType {
	t.Helper()
	_, data, err := c.Read(ctx)
	require.NoError(t, err)

	var ev struct {
		Type core.EventType `json:"type"`
	}
	require.NoError(t, json.Unmarshal(data, &ev))

	return ev.Type
}

func TestStream(t *testing.T) {
	f := newFixture(t, reply("hello"))
	id := f.create(t, "nova")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/api/agents/" + id + "/stream"
	c, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer c.CloseNow()

	assert.Equal(t, core.EventConnected, readEvent(t, ctx, c))

	resp, _ := f.do(t, http.MethodPost, "/api/agents/"+id+"/chat", map[string]any{"content": "hi"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var got []core.EventType
	for {
		typ := readEvent(t, ctx, c)
		got = append(got, typ)
		if typ == core.EventAssistantMessage {
			break
		}
	}

	assert.Equal(t, []core.EventType{
		core.EventUserMessage,
		core.EventTyping,
		core.EventTyping,
		core.EventAssistantMessage,
	}, got)

	// Deleting the agent closes the stream.
	resp, _ = f.do(t, http.MethodDelete, "/api/agents/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, _, err = c.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
}

func TestStream_UnknownAgent(t *testing.T) {
	f := newFixture(t, reply("ok"))

	resp, err := http.Get(f.srv.URL + "/api/agents/missing/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRelay(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		f := newFixture(t, reply("ok"))
		resp, body := f.do(t, http.MethodPost, "/relay/chat", map[string]any{"agent_name": "nova", "content": "hi"})
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Equal(t, "relay not configured", body["error"])
	})

	withSecret := func(o *Options) { o.RelaySecret = "s3cret" }
	bearer := []string{"Authorization", "Bearer s3cret"}

	t.Run("unauthorized", func(t *testing.T) {
		f := newFixture(t, reply("ok"), withSecret)
		resp, _ := f.do(t, http.MethodPost, "/relay/chat", map[string]any{"agent_name": "nova", "content": "hi"}, "Authorization", "Bearer nope")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("wait for reply", func(t *testing.T) {
		f := newFixture(t, reply("pong"), withSecret)
		f.create(t, "nova")

		resp, body := f.do(t, http.MethodPost, "/relay/chat", map[string]any{"agent_name": "nova", "content": "ping", "wait": true}, bearer...)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "pong", body["content"])

		resp, _ = f.do(t, http.MethodGet, "/relay/messages/nova", nil, bearer...)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		resp, _ = f.do(t, http.MethodGet, "/relay/messages/ghost", nil, bearer...)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("rejection is an error body", func(t *testing.T) {
		f := newFixture(t, func(context.Context, backend.Call) (model.Response, error) {
			return model.Response{}, errors.New("backend exploded")
		}, withSecret)
		f.create(t, "nova")

		resp, body := f.do(t, http.MethodPost, "/relay/chat?wait=true", map[string]any{"agent_name": "nova", "content": "ping"}, bearer...)
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
		assert.Contains(t, body["error"], "backend exploded")
	})

	t.Run("queued", func(t *testing.T) {
		f := newFixture(t, reply("ok"), withSecret)
		f.create(t, "nova")

		resp, body := f.do(t, http.MethodPost, "/relay/chat", map[string]any{"agent_name": "nova", "content": "hi"}, bearer...)
		// bridges check for a plain 200
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "queued", body["status"])
	})
}

func TestHealth(t *testing.T) {
	f := newFixture(t, reply("ok"))

	resp, body := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://app.example"})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/agents", nil)
	req.Header.Set("Origin", "https://app.example")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/agents", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	assert.Equal(t, []string{"app.example"}, originPatterns([]string{"https://app.example"}))
	assert.Equal(t, []string{"*"}, originPatterns([]string{"https://a.example", "*"}))
}
