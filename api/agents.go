package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hupe1980/agentdeck/agent"
	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/engine"
	"github.com/hupe1980/agentdeck/workspace"
)

func (h *Handler) registerAgentRoutes(r chi.Router) {
	r.Get("/agents", h.ListAgents)
	r.Post("/agents", h.CreateAgent)

	r.Route("/agents/{id}", func(r chi.Router) {
		r.Get("/", h.GetAgent)
		r.Patch("/", h.UpdateAgent)
		r.Delete("/", h.DeleteAgent)

		r.Get("/memories", h.ListMemories)
		r.Delete("/memories", h.ClearMemories)
		r.Get("/messages", h.ListMessages)
		r.Delete("/messages", h.ClearMessages)

		r.Post("/chat", h.Chat)
		r.Post("/abort", h.Abort)
		r.Get("/stream", h.Stream)

		r.Get("/schedules", h.ListSchedules)
		r.Get("/logs", h.ListLogs)
		r.Get("/workspace", h.ListWorkspace)
		r.Get("/workspace/*", h.ReadWorkspace)
		r.Put("/workspace/*", h.WriteWorkspace)
	})
}

// agentResponse exposes the heartbeat interval in milliseconds.
type agentResponse struct {
	*core.Agent
	HeartbeatInterval *int64 `json:"heartbeat_interval"`
}

func toAgentResponse(a *core.Agent) agentResponse {
	return agentResponse{Agent: a, HeartbeatInterval: a.HeartbeatIntervalMs()}
}

type scheduleResponse struct {
	*core.Schedule
	IntervalMs int64 `json:"interval_ms"`
}

// agent loads the agent named by the {id} path parameter, writing 404 when missing.
func (h *Handler) agent(w http.ResponseWriter, r *http.Request) (*core.Agent, bool) {
	a, err := h.deps.Store.GetAgent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return nil, false
	}
	return a, true
}

// ListAgents returns every agent.
func (h *Handler) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.deps.Store.ListAgents(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	out := make([]agentResponse, 0, len(agents))
	for _, a := range agents {
		out = append(out, toAgentResponse(a))
	}

	JSON(w, http.StatusOK, out)
}

type createAgentRequest struct {
	Name              string `json:"name"`
	Model             string `json:"model"`
	Effort            string `json:"effort"`
	IsDefault         bool   `json:"is_default"`
	ShowHeartbeat     bool   `json:"show_heartbeat"`
	HeartbeatInterval *int64 `json:"heartbeat_interval"`
}

// CreateAgent creates an agent that still has to bootstrap.
func (h *Handler) CreateAgent(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if !decode(w, r, &req) {
		return
	}

	if strings.TrimSpace(req.Name) == "" {
		Error(w, http.StatusBadRequest, "name required")
		return
	}

	in := agent.CreateInput{
		Name:          req.Name,
		Model:         req.Model,
		Effort:        req.Effort,
		IsDefault:     req.IsDefault,
		ShowHeartbeat: req.ShowHeartbeat,
	}
	if req.HeartbeatInterval != nil && *req.HeartbeatInterval > 0 {
		d := time.Duration(*req.HeartbeatInterval) * time.Millisecond
		in.HeartbeatInterval = &d
	}

	a, err := h.deps.Agents.Create(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	JSON(w, http.StatusCreated, toAgentResponse(a))
}

// GetAgent returns one agent.
func (h *Handler) GetAgent(w http.ResponseWriter, r *http.Request) {
	a, ok := h.agent(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, toAgentResponse(a))
}

type updateAgentRequest struct {
	Name          *string `json:"name"`
	Model         *string `json:"model"`
	Effort        *string `json:"effort"`
	IsDefault     *bool   `json:"is_default"`
	ShowHeartbeat *bool   `json:"show_heartbeat"`
	// HeartbeatInterval is kept raw so an explicit null can clear it.
	HeartbeatInterval json.RawMessage `json:"heartbeat_interval"`
}

func (req updateAgentRequest) input() (agent.UpdateInput, bool) {
	in := agent.UpdateInput{
		Name:          req.Name,
		Model:         req.Model,
		Effort:        req.Effort,
		IsDefault:     req.IsDefault,
		ShowHeartbeat: req.ShowHeartbeat,
	}

	raw := bytes.TrimSpace(req.HeartbeatInterval)
	if len(raw) == 0 {
		return in, true
	}
	if bytes.Equal(raw, []byte("null")) {
		in.ClearHeartbeat = true
		return in, true
	}

	var ms int64
	if err := json.Unmarshal(raw, &ms); err != nil || ms < 0 {
		return in, false
	}
	if ms == 0 {
		in.ClearHeartbeat = true
		return in, true
	}

	d := time.Duration(ms) * time.Millisecond
	in.HeartbeatInterval = &d

	return in, true
}

// UpdateAgent applies a partial update.
func (h *Handler) UpdateAgent(w http.ResponseWriter, r *http.Request) {
	var req updateAgentRequest
	if !decode(w, r, &req) {
		return
	}

	in, ok := req.input()
	if !ok {
		Error(w, http.StatusBadRequest, "heartbeat_interval must be a non-negative number of milliseconds or null")
		return
	}

	a, err := h.deps.Agents.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	JSON(w, http.StatusOK, toAgentResponse(a))
}

// DeleteAgent removes an agent and everything it owns.
func (h *Handler) DeleteAgent(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Agents.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// ListMemories returns the agent's memories, newest first.
func (h *Handler) ListMemories(w http.ResponseWriter, r *http.Request) {
	memories, err := h.deps.Store.ListMemories(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if memories == nil {
		memories = []*core.Memory{}
	}
	JSON(w, http.StatusOK, memories)
}

// ClearMemories deletes the agent's memories.
func (h *Handler) ClearMemories(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Store.DeleteMemories(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"cleared": true})
}

// ListMessages returns the conversation. Heartbeat alerts are included when
// the agent shows them or the request asks for ?all=1.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	a, ok := h.agent(w, r)
	if !ok {
		return
	}

	messages, err := h.deps.Store.ListMessages(r.Context(), a.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	all := a.ShowHeartbeat || r.URL.Query().Get("all") == "1"
	JSON(w, http.StatusOK, filterMessages(messages, all))
}

func filterMessages(messages []*core.Message, all bool) []*core.Message {
	out := make([]*core.Message, 0, len(messages))
	for _, m := range messages {
		if all || m.Kind != core.KindHeartbeat {
			out = append(out, m)
		}
	}
	return out
}

// ClearMessages deletes the conversation.
func (h *Handler) ClearMessages(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Store.DeleteMessages(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"cleared": true})
}

type chatRequest struct {
	Content  string `json:"content"`
	ClientID string `json:"client_id"`
}

// Chat queues a user message. The reply arrives on the stream.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	a, ok := h.agent(w, r)
	if !ok {
		return
	}

	var req chatRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		Error(w, http.StatusBadRequest, "content required")
		return
	}

	// Turn failures are published as error events by the engine.
	h.deps.Turns.Enqueue(r.Context(), a.ID, req.Content, engine.WithClientID(req.ClientID))

	resp := map[string]string{"status": "queued"}
	if req.ClientID != "" {
		resp["client_id"] = req.ClientID
	}
	JSON(w, http.StatusAccepted, resp)
}

// Abort cancels the agent's running turn.
func (h *Handler) Abort(w http.ResponseWriter, r *http.Request) {
	a, ok := h.agent(w, r)
	if !ok {
		return
	}

	aborted := h.deps.Turns.Abort(a.ID)
	h.opts.Logger.Info("turn.abort.requested", "agent_id", a.ID, "aborted", aborted)

	JSON(w, http.StatusOK, map[string]bool{"aborted": aborted})
}

// ListSchedules returns the agent's reminders.
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.deps.Store.ListSchedules(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	out := make([]scheduleResponse, 0, len(schedules))
	for _, s := range schedules {
		out = append(out, scheduleResponse{Schedule: s, IntervalMs: s.Interval.Milliseconds()})
	}

	JSON(w, http.StatusOK, out)
}

// ListLogs returns the names of the agent's daily memory logs.
func (h *Handler) ListLogs(w http.ResponseWriter, r *http.Request) {
	a, ok := h.agent(w, r)
	if !ok {
		return
	}

	logs, err := h.deps.Workspace.MemoryLogs(a.Name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if logs == nil {
		logs = []string{}
	}

	JSON(w, http.StatusOK, logs)
}

// ListWorkspace returns the agent's workspace files. BOOTSTRAP.md stays
// hidden while the ritual is pending.
func (h *Handler) ListWorkspace(w http.ResponseWriter, r *http.Request) {
	a, ok := h.agent(w, r)
	if !ok {
		return
	}

	files, err := h.deps.Workspace.List(a.Name)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	out := make([]string, 0, len(files))
	for _, f := range files {
		if !a.Bootstrapped && f == workspace.BootstrapFile {
			continue
		}
		out = append(out, f)
	}

	JSON(w, http.StatusOK, out)
}

func workspacePath(w http.ResponseWriter, r *http.Request) (string, bool) {
	p := chi.URLParam(r, "*")
	if p == "" || strings.Contains(p, "..") {
		Error(w, http.StatusBadRequest, "invalid path")
		return "", false
	}
	return p, true
}

// ReadWorkspace returns one workspace file.
func (h *Handler) ReadWorkspace(w http.ResponseWriter, r *http.Request) {
	a, ok := h.agent(w, r)
	if !ok {
		return
	}
	p, ok := workspacePath(w, r)
	if !ok {
		return
	}

	content, found, err := h.deps.Workspace.Read(a.Name, p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !found {
		Error(w, http.StatusNotFound, "file not found")
		return
	}

	JSON(w, http.StatusOK, map[string]string{"path": p, "content": content})
}

type writeWorkspaceRequest struct {
	Content *string `json:"content"`
}

// WriteWorkspace replaces one workspace file.
func (h *Handler) WriteWorkspace(w http.ResponseWriter, r *http.Request) {
	a, ok := h.agent(w, r)
	if !ok {
		return
	}
	p, ok := workspacePath(w, r)
	if !ok {
		return
	}

	var req writeWorkspaceRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Content == nil {
		Error(w, http.StatusBadRequest, "content required")
		return
	}

	if err := h.deps.Workspace.Write(a.Name, p, *req.Content); err != nil {
		h.fail(w, r, err)
		return
	}

	JSON(w, http.StatusOK, map[string]any{"written": true, "path": p})
}
