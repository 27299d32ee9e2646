package engine

import (
	"context"
	"os"
	"sync"

	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/model/cli"
)

// lane is the per-agent orchestration state.
type lane struct {
	// tail is closed when the most recently enqueued turn has settled.
	tail       chan struct{}
	processing bool
	cancel     context.CancelCauseFunc
	proc       *os.Process

	// closed lanes belong to a forgotten agent; their queued turns fail fast.
	closed bool
}

// State is the orchestrator's per-agent bookkeeping: the continuation chain
// that serialises turns, the processing flag, the cancel func of the
// in-flight turn and the backend process that turn runs.
//
// Lanes are created lazily and dropped once their last turn has settled.
type State struct {
	mu    sync.Mutex
	lanes map[string]*lane
}

var _ cli.ProcessTracker = (*State)(nil)

// NewState creates an empty State.
func NewState() *State {
	return &State{lanes: make(map[string]*lane)}
}

// chain appends a turn to agentID's lane. The turn may start once prev is
// closed and must close next when it has settled.
func (s *State) chain(agentID string) (prev <-chan struct{}, next chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lanes[agentID]
	if !ok {
		l = &lane{}
		s.lanes[agentID] = l
	}

	next = make(chan struct{})

	if l.tail == nil {
		done := make(chan struct{})
		close(done)
		prev = done
	} else {
		prev = l.tail
	}

	l.tail = next

	return prev, next
}

// release drops the lane when the settled turn was its last one.
func (s *State) release(agentID string, settled chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lanes[agentID]
	if !ok || l.tail != settled {
		return
	}

	if l.closed || (!l.processing && l.cancel == nil && l.proc == nil) {
		delete(s.lanes, agentID)
	}
}

// closed reports whether agentID's lane was forgotten.
func (s *State) closed(agentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lanes[agentID]
	return ok && l.closed
}

func (s *State) begin(agentID string, cancel context.CancelCauseFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.lanes[agentID]; ok {
		l.cancel = cancel
	}
}

func (s *State) end(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.lanes[agentID]; ok {
		l.cancel = nil
		l.processing = false
	}
}

func (s *State) setProcessing(agentID string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.lanes[agentID]; ok {
		l.processing = active
	}
}

// IsProcessing reports whether a chat turn of agentID is between its user
// message and its reply.
func (s *State) IsProcessing(agentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lanes[agentID]
	return ok && l.processing
}

// Track registers p as the backend process of agentID's in-flight turn.
// There is a single slot per agent; a newer process replaces the older one.
func (s *State) Track(agentID string, p *os.Process) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.lanes[agentID]; ok {
		l.proc = p
	}
}

// Untrack clears the slot if it still holds p.
func (s *State) Untrack(agentID string, p *os.Process) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.lanes[agentID]; ok && l.proc == p {
		l.proc = nil
	}
}

// Abort cancels agentID's in-flight turn with cause core.ErrAborted and kills
// its backend process. It reports whether anything was running.
func (s *State) Abort(agentID string) bool {
	s.mu.Lock()
	l, ok := s.lanes[agentID]
	if !ok {
		s.mu.Unlock()
		return false
	}

	cancel, proc := l.cancel, l.proc
	l.proc = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel(core.ErrAborted)
	}
	if proc != nil {
		_ = proc.Kill()
	}

	return cancel != nil || proc != nil
}

// Forget aborts whatever runs for agentID and closes its lane. Turns still
// queued on the lane fail with core.ErrUnknownAgent; the lane is dropped once
// the last of them has settled, so the chain keeps serialising until then.
func (s *State) Forget(agentID string) {
	s.mu.Lock()
	if l, ok := s.lanes[agentID]; ok {
		l.closed = true
	}
	s.mu.Unlock()

	s.Abort(agentID)
}

// Lanes reports how many agents currently hold orchestration state.
func (s *State) Lanes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lanes)
}
