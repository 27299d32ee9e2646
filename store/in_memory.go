package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/memory"
	"github.com/hupe1980/agentdeck/session"
)

// InMemory is a volatile Store. Backend sessions come from the embedded
// session store and memories are forwarded to a memory.InMemoryStore;
// everything else lives in maps guarded by one RWMutex. Values are copied on
// the way in and out.
type InMemory struct {
	*session.InMemoryStore

	memories *memory.InMemoryStore

	mu          sync.RWMutex
	agents      map[string]*core.Agent
	messages    map[string][]*core.Message
	schedules   map[string]*core.Schedule
	credentials map[string]map[string]string
	config      map[string]string
}

// NewInMemory returns an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{
		InMemoryStore: session.NewInMemoryStore(),
		memories:      memory.NewInMemoryStore(),
		agents:        make(map[string]*core.Agent),
		messages:      make(map[string][]*core.Message),
		schedules:     make(map[string]*core.Schedule),
		credentials:   make(map[string]map[string]string),
		config:        make(map[string]string),
	}
}

// Ping always succeeds.
func (s *InMemory) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *InMemory) Close() error { return nil }

// --- agents ---

func (s *InMemory) nameTakenLocked(name, exceptID string) bool {
	for id, a := range s.agents {
		if id != exceptID && strings.EqualFold(a.Name, name) {
			return true
		}
	}
	return false
}

// CreateAgent stores a new agent.
func (s *InMemory) CreateAgent(_ context.Context, a *core.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nameTakenLocked(a.Name, "") {
		return core.ErrAgentExists
	}

	s.agents[a.ID] = a.Clone()

	return nil
}

// GetAgent returns the agent or ErrUnknownAgent.
func (s *InMemory) GetAgent(_ context.Context, id string) (*core.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.agents[id]
	if !ok {
		return nil, core.ErrUnknownAgent
	}

	return a.Clone(), nil
}

// GetAgentByName looks an agent up case-insensitively.
func (s *InMemory) GetAgentByName(_ context.Context, name string) (*core.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.agents {
		if strings.EqualFold(a.Name, name) {
			return a.Clone(), nil
		}
	}

	return nil, core.ErrUnknownAgent
}

// ListAgents returns all agents, oldest first.
func (s *InMemory) ListAgents(context.Context) ([]*core.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*core.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, a.Clone())
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Name < out[j].Name
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	return out, nil
}

// UpdateAgent replaces the stored agent.
func (s *InMemory) UpdateAgent(_ context.Context, a *core.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.agents[a.ID]; !ok {
		return core.ErrUnknownAgent
	}
	if s.nameTakenLocked(a.Name, a.ID) {
		return core.ErrAgentExists
	}

	cp := a.Clone()
	cp.UpdatedAt = time.Now().UTC()
	s.agents[a.ID] = cp

	return nil
}

// DeleteAgent removes the agent and everything it owns.
func (s *InMemory) DeleteAgent(ctx context.Context, id string) error {
	s.mu.Lock()

	if _, ok := s.agents[id]; !ok {
		s.mu.Unlock()
		return core.ErrUnknownAgent
	}

	delete(s.agents, id)
	delete(s.messages, id)
	delete(s.credentials, id)
	for sid, sch := range s.schedules {
		if sch.AgentID == id {
			delete(s.schedules, sid)
		}
	}

	s.mu.Unlock()

	if err := s.DeleteSession(ctx, id); err != nil {
		return err
	}

	return s.memories.DeleteMemories(ctx, id)
}

func (s *InMemory) mutateAgent(id string, fn func(a *core.Agent)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.agents[id]
	if !ok {
		return core.ErrUnknownAgent
	}

	fn(a)
	a.UpdatedAt = time.Now().UTC()

	return nil
}

// SetBootstrapped sets the bootstrap flag.
func (s *InMemory) SetBootstrapped(_ context.Context, id string, done bool) error {
	return s.mutateAgent(id, func(a *core.Agent) { a.Bootstrapped = done })
}

// SetHeartbeatInterval sets or clears the heartbeat interval.
func (s *InMemory) SetHeartbeatInterval(_ context.Context, id string, interval *time.Duration) error {
	return s.mutateAgent(id, func(a *core.Agent) {
		if interval == nil {
			a.HeartbeatInterval = nil
			return
		}
		d := *interval
		a.HeartbeatInterval = &d
	})
}

// SetDefaultAgent marks id as the only default agent.
func (s *InMemory) SetDefaultAgent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.agents[id]; !ok {
		return core.ErrUnknownAgent
	}

	for aid, a := range s.agents {
		a.IsDefault = aid == id
	}

	return nil
}

// --- messages ---

func cloneMessage(m *core.Message) *core.Message {
	cp := *m
	if m.ToolCalls != nil {
		cp.ToolCalls = append([]core.ToolCall(nil), m.ToolCalls...)
	}
	return &cp
}

// AppendMessage appends to the agent's conversation.
func (s *InMemory) AppendMessage(_ context.Context, m *core.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.agents[m.AgentID]; !ok {
		return core.ErrUnknownAgent
	}

	cp := cloneMessage(m)
	if cp.Kind == "" {
		cp.Kind = core.KindChat
	}
	s.messages[m.AgentID] = append(s.messages[m.AgentID], cp)

	return nil
}

// RecentMessages returns the last limit messages of kind, oldest first.
func (s *InMemory) RecentMessages(_ context.Context, agentID string, kind core.MessageKind, limit int) ([]*core.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*core.Message
	for _, m := range s.messages[agentID] {
		if m.Kind == kind {
			matched = append(matched, m)
		}
	}

	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}

	out := make([]*core.Message, len(matched))
	for i, m := range matched {
		out[i] = cloneMessage(m)
	}

	return out, nil
}

// ListMessages returns every message of the agent, oldest first.
func (s *InMemory) ListMessages(_ context.Context, agentID string) ([]*core.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*core.Message, 0, len(s.messages[agentID]))
	for _, m := range s.messages[agentID] {
		out = append(out, cloneMessage(m))
	}

	return out, nil
}

// CountMessages counts the agent's messages with the given role.
func (s *InMemory) CountMessages(_ context.Context, agentID string, role core.Role) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, m := range s.messages[agentID] {
		if m.Role == role {
			n++
		}
	}

	return n, nil
}

// DeleteMessages clears the agent's conversation.
func (s *InMemory) DeleteMessages(_ context.Context, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.messages, agentID)

	return nil
}

// --- memories ---

// AddMemory stores a memory for an existing agent.
func (s *InMemory) AddMemory(ctx context.Context, m *core.Memory) error {
	if _, err := s.GetAgent(ctx, m.AgentID); err != nil {
		return err
	}
	return s.memories.AddMemory(ctx, m)
}

// ListMemories returns the agent's memories, newest first.
func (s *InMemory) ListMemories(ctx context.Context, agentID string) ([]*core.Memory, error) {
	return s.memories.ListMemories(ctx, agentID)
}

// DeleteMemories drops the agent's memories.
func (s *InMemory) DeleteMemories(ctx context.Context, agentID string) error {
	return s.memories.DeleteMemories(ctx, agentID)
}

// --- schedules ---

func cloneSchedule(sch *core.Schedule) *core.Schedule {
	cp := *sch
	if sch.LastRunAt != nil {
		t := *sch.LastRunAt
		cp.LastRunAt = &t
	}
	return &cp
}

// CreateSchedule stores a new schedule.
func (s *InMemory) CreateSchedule(_ context.Context, sch *core.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.agents[sch.AgentID]; !ok {
		return core.ErrUnknownAgent
	}

	s.schedules[sch.ID] = cloneSchedule(sch)

	return nil
}

// DueSchedules returns active schedules whose next run is at or before now.
func (s *InMemory) DueSchedules(_ context.Context, now time.Time) ([]*core.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []*core.Schedule
	for _, sch := range s.schedules {
		if sch.Active && !sch.NextRunAt.After(now) {
			due = append(due, cloneSchedule(sch))
		}
	}

	sort.Slice(due, func(i, j int) bool { return due[i].NextRunAt.Before(due[j].NextRunAt) })

	return due, nil
}

// MarkScheduleRun records a run and advances the next run time.
func (s *InMemory) MarkScheduleRun(_ context.Context, id string, ranAt, next time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sch, ok := s.schedules[id]; ok {
		sch.LastRunAt = &ranAt
		sch.NextRunAt = next
	}

	return nil
}

// DeactivateSchedule stops a schedule owned by agentID.
func (s *InMemory) DeactivateSchedule(_ context.Context, id, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sch, ok := s.schedules[id]; ok && sch.AgentID == agentID {
		sch.Active = false
	}

	return nil
}

// ListSchedules returns the agent's schedules, oldest first.
func (s *InMemory) ListSchedules(_ context.Context, agentID string) ([]*core.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*core.Schedule{}
	for _, sch := range s.schedules {
		if sch.AgentID == agentID {
			out = append(out, cloneSchedule(sch))
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	return out, nil
}

// --- credentials & config ---

// PutCredential stores a secret for the agent.
func (s *InMemory) PutCredential(_ context.Context, agentID, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.agents[agentID]; !ok {
		return core.ErrUnknownAgent
	}
	if _, ok := s.credentials[agentID]; !ok {
		s.credentials[agentID] = make(map[string]string)
	}
	s.credentials[agentID][key] = value

	return nil
}

// GetCredential returns a stored secret.
func (s *InMemory) GetCredential(_ context.Context, agentID, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.credentials[agentID][key]

	return v, ok, nil
}

// GetConfig returns a setting.
func (s *InMemory) GetConfig(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.config[key]

	return v, ok, nil
}

// SetConfig stores a setting.
func (s *InMemory) SetConfig(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.config[key] = value

	return nil
}

// DeleteConfig removes a setting.
func (s *InMemory) DeleteConfig(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.config, key)

	return nil
}
