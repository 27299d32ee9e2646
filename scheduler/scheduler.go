// Package scheduler turns due schedules into scheduled reminder turns.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/engine"
	"github.com/hupe1980/agentdeck/logging"
)

// Enqueuer runs turns. *engine.Engine implements it.
type Enqueuer interface {
	Enqueue(ctx context.Context, agentID, content string, optFns ...engine.EnqueueOption) *engine.Pending
}

// Options configures a Ticker.
type Options struct {
	Tick   time.Duration
	Now    func() time.Time
	Logger logging.Logger
}

// Ticker polls the schedule store.
type Ticker struct {
	schedules core.ScheduleStore
	enqueuer  Enqueuer
	opts      Options

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Ticker.
func New(schedules core.ScheduleStore, enqueuer Enqueuer, optFns ...func(o *Options)) *Ticker {
	opts := Options{
		Tick:   30 * time.Second,
		Now:    time.Now,
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Ticker{schedules: schedules, enqueuer: enqueuer, opts: opts}
}

// Reminder returns the turn content for a schedule description.
func Reminder(description string) string {
	return engine.ScheduledPrefix + " " + description
}

// Start ticks once immediately and then every Options.Tick until Stop or ctx is done.
func (t *Ticker) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	t.mu.Lock()
	if t.cancel != nil {
		t.cancel()
	}
	t.cancel = cancel
	t.mu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()

		ticker := time.NewTicker(t.opts.Tick)
		defer ticker.Stop()

		for {
			t.Tick(ctx)

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop ends the polling loop. Reminders already enqueued keep running.
func (t *Ticker) Stop() {
	t.mu.Lock()
	cancel := t.cancel
	t.cancel = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	t.wg.Wait()
}

// Tick advances every due schedule and enqueues its reminder. It returns the
// number of reminders enqueued.
func (t *Ticker) Tick(ctx context.Context) int {
	now := t.opts.Now()

	due, err := t.schedules.DueSchedules(ctx, now)
	if err != nil {
		t.opts.Logger.Error("scheduler.due.failed", "error", err)
		return 0
	}

	n := 0
	for _, s := range due {
		// Advance first so a slow turn cannot fire the same run twice.
		if err := t.schedules.MarkScheduleRun(ctx, s.ID, now, now.Add(s.Interval)); err != nil {
			t.opts.Logger.Error("scheduler.mark.failed", "schedule_id", s.ID, "error", err)
			continue
		}

		p := t.enqueuer.Enqueue(ctx, s.AgentID, Reminder(s.Description), engine.Scheduled())
		n++

		t.opts.Logger.Info("scheduler.fire", "schedule_id", s.ID, "agent_id", s.AgentID)

		go func(s *core.Schedule) {
			if _, err := p.Wait(context.WithoutCancel(ctx)); err != nil {
				t.opts.Logger.Warn("scheduler.turn.failed", "schedule_id", s.ID, "agent_id", s.AgentID, "error", err)
			}
		}(s)
	}

	return n
}
