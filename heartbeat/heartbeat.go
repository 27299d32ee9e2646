// Package heartbeat periodically wakes agents to review their HEARTBEAT.md
// checklist.
//
// Every agent with a configured interval gets one timer goroutine: after an
// initial delay it fires, then fires again every interval. A firing enqueues
// a heartbeat turn on the agent's lane unless the previous heartbeat of that
// agent is still in flight.
package heartbeat

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/engine"
	"github.com/hupe1980/agentdeck/logging"
	"github.com/hupe1980/agentdeck/workspace"
)

// MinInterval is the shortest effective heartbeat interval.
const MinInterval = 5 * time.Minute

// DefaultChecklist is used when the agent has no HEARTBEAT.md.
const DefaultChecklist = "check if anything needs follow-up from recent conversations."

const promptPrefix = "[heartbeat] review your heartbeat checklist and act on anything that needs attention. if nothing needs action, respond with exactly HEARTBEAT_OK."

// Prompt returns the heartbeat turn content for checklist.
func Prompt(checklist string) string {
	return promptPrefix + "\n\n" + checklist
}

// Enqueuer runs turns. *engine.Engine implements it.
type Enqueuer interface {
	Enqueue(ctx context.Context, agentID, content string, optFns ...engine.EnqueueOption) *engine.Pending
}

// Options configures a Trigger.
type Options struct {
	MinInterval time.Duration
	// Stagger separates the first firings of the agents armed by Start.
	Stagger time.Duration
	// Jitter bounds the random initial delay of agents armed later.
	Jitter time.Duration
	Logger logging.Logger
}

type entry struct {
	cancel context.CancelFunc
}

// Trigger owns the heartbeat timers.
type Trigger struct {
	agents    core.AgentStore
	workspace core.Workspace
	enqueuer  Enqueuer
	opts      Options

	mu       sync.Mutex
	ctx      context.Context
	entries  map[string]*entry
	inflight map[string]bool
	wg       sync.WaitGroup
}

// New creates a Trigger. Nothing fires before Start.
func New(agents core.AgentStore, ws core.Workspace, enqueuer Enqueuer, optFns ...func(o *Options)) *Trigger {
	opts := Options{
		MinInterval: MinInterval,
		Stagger:     30 * time.Second,
		Jitter:      30 * time.Second,
		Logger:      logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Trigger{
		agents:    agents,
		workspace: ws,
		enqueuer:  enqueuer,
		opts:      opts,
		ctx:       context.Background(),
		entries:   make(map[string]*entry),
		inflight:  make(map[string]bool),
	}
}

// Start arms every agent that has an interval, staggering their first firings.
func (t *Trigger) Start(ctx context.Context) error {
	t.mu.Lock()
	t.ctx = ctx
	t.mu.Unlock()

	agents, err := t.agents.ListAgents(ctx)
	if err != nil {
		return fmt.Errorf("list agents: %w", err)
	}

	armed := 0
	for _, a := range agents {
		if a.HeartbeatInterval == nil {
			continue
		}
		t.arm(a.ID, *a.HeartbeatInterval, time.Duration(armed)*t.opts.Stagger)
		armed++
	}

	if armed > 0 {
		t.opts.Logger.Info("heartbeat.started", "agents", armed)
	}

	return nil
}

// Add arms a, after a random delay, if it has an interval.
func (t *Trigger) Add(a *core.Agent) {
	if a.HeartbeatInterval == nil {
		return
	}
	t.arm(a.ID, *a.HeartbeatInterval, t.jitter())
}

// Configure persists the agent's interval and re-arms it, or disarms it when
// interval is nil.
func (t *Trigger) Configure(ctx context.Context, agentID string, interval *time.Duration) error {
	if err := t.agents.SetHeartbeatInterval(ctx, agentID, interval); err != nil {
		return err
	}

	if interval == nil {
		t.Remove(agentID)
		return nil
	}

	t.arm(agentID, *interval, t.jitter())

	return nil
}

// Remove disarms the agent.
func (t *Trigger) Remove(agentID string) {
	t.mu.Lock()
	e, ok := t.entries[agentID]
	delete(t.entries, agentID)
	t.mu.Unlock()

	if ok {
		e.cancel()
	}
}

// Armed reports whether agentID has a running timer.
func (t *Trigger) Armed(agentID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[agentID]
	return ok
}

// Stop disarms every agent and waits for the timer goroutines to exit.
// Heartbeat turns already enqueued keep running on their lanes.
func (t *Trigger) Stop() {
	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[string]*entry)
	t.mu.Unlock()

	for _, e := range entries {
		e.cancel()
	}

	t.wg.Wait()
}

// Interval returns the effective interval for configured.
func (t *Trigger) Interval(configured time.Duration) time.Duration {
	return max(configured, t.opts.MinInterval)
}

func (t *Trigger) jitter() time.Duration {
	if t.opts.Jitter <= 0 {
		return 0
	}
	return rand.N(t.opts.Jitter)
}

// arm atomically replaces the agent's timer.
func (t *Trigger) arm(agentID string, configured, delay time.Duration) {
	interval := t.Interval(configured)

	t.mu.Lock()
	if old, ok := t.entries[agentID]; ok {
		old.cancel()
	}

	ctx, cancel := context.WithCancel(t.ctx)
	e := &entry{cancel: cancel}
	t.entries[agentID] = e
	t.wg.Add(1)
	t.mu.Unlock()

	t.opts.Logger.Debug("heartbeat.armed", "agent_id", agentID, "interval", interval, "delay", delay)

	go t.loop(ctx, e, agentID, interval, delay)
}

func (t *Trigger) loop(ctx context.Context, e *entry, agentID string, interval, delay time.Duration) {
	defer t.wg.Done()

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		t.fire(ctx, e, agentID)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// fire starts a heartbeat unless one is already in flight for the agent.
func (t *Trigger) fire(ctx context.Context, e *entry, agentID string) {
	t.mu.Lock()
	if t.inflight[agentID] {
		t.mu.Unlock()
		t.opts.Logger.Debug("heartbeat.skipped", "agent_id", agentID, "reason", "in flight")
		return
	}
	t.inflight[agentID] = true
	t.mu.Unlock()

	go func() {
		defer func() {
			t.mu.Lock()
			delete(t.inflight, agentID)
			t.mu.Unlock()
		}()

		t.run(ctx, e, agentID)
	}()
}

func (t *Trigger) run(ctx context.Context, e *entry, agentID string) {
	logger := logging.With(t.opts.Logger, "agent_id", agentID)

	a, err := t.agents.GetAgent(ctx, agentID)
	if err != nil || a.HeartbeatInterval == nil {
		logger.Debug("heartbeat.removed", "reason", "agent or interval gone")
		t.removeEntry(agentID, e)
		return
	}

	// The timer stays armed until the ritual is over.
	if !a.Bootstrapped {
		return
	}

	checklist, ok, err := t.workspace.Read(a.Name, workspace.HeartbeatFile)
	if err != nil {
		logger.Warn("heartbeat.checklist.failed", "error", err)
	}
	if !ok || checklist == "" {
		checklist = DefaultChecklist
	}

	logger.Info("heartbeat.fire", "agent", a.Name)

	// The in-flight guard lasts until the turn settles, even when the timer
	// that fired it is re-armed or disarmed meanwhile.
	reply, err := t.enqueuer.Enqueue(ctx, a.ID, Prompt(checklist), engine.Heartbeat()).Wait(context.WithoutCancel(ctx))
	if err != nil {
		logger.Warn("heartbeat.failed", "agent", a.Name, "error", err)
		return
	}

	logger.Info("heartbeat.complete", "agent", a.Name, "suppressed", reply.Suppressed)
}

// removeEntry disarms agentID unless it was re-armed with another entry.
func (t *Trigger) removeEntry(agentID string, e *entry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.entries[agentID] == e {
		e.cancel()
		delete(t.entries, agentID)
	}
}
