package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/logging"
	"github.com/hupe1980/agentdeck/workspace"
)

// ErrNameRequired is returned when an agent would have an empty name.
var ErrNameRequired = errors.New("name required")

// Heartbeats arms and disarms heartbeat timers. *heartbeat.Trigger implements it.
type Heartbeats interface {
	Add(a *core.Agent)
	Configure(ctx context.Context, agentID string, interval *time.Duration) error
	Remove(agentID string)
}

// Lanes drops the turn queue of an agent. *engine.Engine implements it.
type Lanes interface {
	Forget(agentID string)
}

// Subscribers closes the event subscriptions of an agent. *bus.Bus implements it.
type Subscribers interface {
	Drop(agentID string)
}

// Options configures a Service. Every runtime collaborator is optional.
type Options struct {
	Heartbeats  Heartbeats
	Lanes       Lanes
	Subscribers Subscribers
	Publisher   core.Publisher
	Logger      logging.Logger
}

// Service creates, updates and deletes agents.
type Service struct {
	agents    core.AgentStore
	workspace core.Workspace
	opts      Options
}

// NewService creates a Service.
func NewService(agents core.AgentStore, ws core.Workspace, optFns ...func(o *Options)) *Service {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Service{agents: agents, workspace: ws, opts: opts}
}

// CreateInput describes a new agent.
type CreateInput struct {
	Name              string
	Model             string
	Effort            string
	IsDefault         bool
	ShowHeartbeat     bool
	HeartbeatInterval *time.Duration
}

// Create stores a new agent that still has to run its bootstrap ritual and
// seeds its workspace. It fails with core.ErrAgentExists for a taken name.
func (s *Service) Create(ctx context.Context, in CreateInput) (*core.Agent, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ErrNameRequired
	}

	now := time.Now().UTC()
	a := &core.Agent{
		ID:            core.NewID(),
		Name:          name,
		Model:         in.Model,
		Effort:        core.ParseEffort(in.Effort),
		ShowHeartbeat: in.ShowHeartbeat,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if a.Model == "" {
		a.Model = core.DefaultModel
	}
	if in.HeartbeatInterval != nil {
		d := *in.HeartbeatInterval
		a.HeartbeatInterval = &d
	}

	if err := s.agents.CreateAgent(ctx, a); err != nil {
		return nil, err
	}

	if err := s.workspace.Init(a.Name); err != nil {
		return nil, fmt.Errorf("init workspace: %w", err)
	}

	if in.IsDefault {
		if err := s.agents.SetDefaultAgent(ctx, a.ID); err != nil {
			return nil, err
		}
		a.IsDefault = true
	}

	if s.opts.Heartbeats != nil {
		s.opts.Heartbeats.Add(a)
	}

	s.opts.Logger.Info("agent.created", "agent_id", a.ID, "name", a.Name)

	return a, nil
}

// UpdateInput holds the fields to change; nil fields are left alone.
// ClearHeartbeat disables the heartbeat and wins over HeartbeatInterval.
type UpdateInput struct {
	Name              *string
	Model             *string
	Effort            *string
	IsDefault         *bool
	ShowHeartbeat     *bool
	HeartbeatInterval *time.Duration
	ClearHeartbeat    bool
}

// Update applies in to the agent. A rename moves the workspace directory.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*core.Agent, error) {
	a, err := s.agents.GetAgent(ctx, id)
	if err != nil {
		return nil, err
	}

	oldName := a.Name

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, ErrNameRequired
		}
		a.Name = name
	}
	if in.Model != nil && *in.Model != "" {
		a.Model = *in.Model
	}
	if in.Effort != nil && *in.Effort != "" {
		a.Effort = core.ParseEffort(*in.Effort)
	}
	if in.ShowHeartbeat != nil {
		a.ShowHeartbeat = *in.ShowHeartbeat
	}
	if in.IsDefault != nil && !*in.IsDefault {
		a.IsDefault = false
	}

	if err := s.agents.UpdateAgent(ctx, a); err != nil {
		return nil, err
	}

	if a.Name != oldName {
		if err := s.workspace.Rename(oldName, a.Name); err != nil {
			return nil, fmt.Errorf("rename workspace: %w", err)
		}
	}

	if in.IsDefault != nil && *in.IsDefault {
		if err := s.agents.SetDefaultAgent(ctx, a.ID); err != nil {
			return nil, err
		}
	}

	if in.ClearHeartbeat || in.HeartbeatInterval != nil {
		interval := in.HeartbeatInterval
		if in.ClearHeartbeat {
			interval = nil
		}
		if err := s.configureHeartbeat(ctx, a.ID, interval); err != nil {
			return nil, err
		}
	}

	s.opts.Logger.Info("agent.updated", "agent_id", a.ID, "name", a.Name)

	return s.agents.GetAgent(ctx, a.ID)
}

func (s *Service) configureHeartbeat(ctx context.Context, id string, interval *time.Duration) error {
	if s.opts.Heartbeats != nil {
		return s.opts.Heartbeats.Configure(ctx, id, interval)
	}
	return s.agents.SetHeartbeatInterval(ctx, id, interval)
}

// Delete disarms the agent's heartbeat, removes every record it owns, then
// closes its turn lane and subscribers and removes its workspace.
func (s *Service) Delete(ctx context.Context, id string) error {
	a, err := s.agents.GetAgent(ctx, id)
	if err != nil {
		return err
	}

	if s.opts.Heartbeats != nil {
		s.opts.Heartbeats.Remove(id)
	}

	// The record goes first so turns still queued behind the lane find no agent.
	if err := s.agents.DeleteAgent(ctx, id); err != nil {
		return err
	}

	if s.opts.Lanes != nil {
		s.opts.Lanes.Forget(id)
	}
	if s.opts.Subscribers != nil {
		s.opts.Subscribers.Drop(id)
	}

	if err := s.workspace.Remove(a.Name); err != nil {
		s.opts.Logger.Warn("agent.workspace.remove_failed", "agent_id", id, "error", err)
	}

	s.opts.Logger.Info("agent.deleted", "agent_id", id, "name", a.Name)

	return nil
}

// CompleteBootstrap marks the ritual as done, deletes BOOTSTRAP.md and
// publishes bootstrap_complete. Completing twice is a no-op.
func (s *Service) CompleteBootstrap(ctx context.Context, id string) error {
	a, err := s.agents.GetAgent(ctx, id)
	if err != nil {
		return err
	}

	if a.Bootstrapped {
		return nil
	}

	if err := s.agents.SetBootstrapped(ctx, id, true); err != nil {
		return err
	}

	if err := s.workspace.Delete(a.Name, workspace.BootstrapFile); err != nil {
		s.opts.Logger.Warn("agent.bootstrap.cleanup_failed", "agent_id", id, "error", err)
	}

	if s.opts.Publisher != nil {
		s.opts.Publisher.Publish(core.NewEvent(id, core.EventBootstrapDone, nil))
	}

	s.opts.Logger.Info("agent.bootstrap.completed", "agent_id", id, "name", a.Name)

	return nil
}
