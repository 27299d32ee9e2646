// Package bus fans events out to the observers of an agent.
//
// Publish never blocks: every subscription owns an unbounded FIFO that a
// pump goroutine drains into the subscriber's channel, so a slow observer
// only delays itself. Events are delivered in emission order and there is
// no replay for late subscribers.
package bus

import (
	"sync"

	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/logging"
)

// Options configures a Bus.
type Options struct {
	Logger logging.Logger
}

// Bus is a per-agent multicast of core events. The zero value is not usable; call New.
type Bus struct {
	mu     sync.Mutex
	subs   map[string]map[*Subscription]struct{}
	logger logging.Logger
}

var _ core.Publisher = (*Bus)(nil)

// New creates an empty Bus.
func New(optFns ...func(o *Options)) *Bus {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Bus{
		subs:   make(map[string]map[*Subscription]struct{}),
		logger: opts.Logger,
	}
}

// Subscribe attaches an observer to agentID's events.
func (b *Bus) Subscribe(agentID string) *Subscription {
	s := &Subscription{
		bus:     b,
		agentID: agentID,
		out:     make(chan core.Event),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	b.mu.Lock()
	set, ok := b.subs[agentID]
	if !ok {
		set = make(map[*Subscription]struct{})
		b.subs[agentID] = set
	}
	set[s] = struct{}{}
	n := len(set)
	b.mu.Unlock()

	go s.pump()

	b.logger.Debug("bus.subscribe", "agent_id", agentID, "subscribers", n)

	return s
}

// Publish delivers ev to every current observer of ev.AgentID.
func (b *Bus) Publish(ev core.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Enqueueing under the bus lock keeps one global emission order per agent.
	for s := range b.subs[ev.AgentID] {
		s.enqueue(ev)
	}
}

// Subscribers reports how many observers are attached to agentID.
func (b *Bus) Subscribers(agentID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[agentID])
}

// Drop closes every subscription of agentID.
func (b *Bus) Drop(agentID string) {
	b.mu.Lock()
	set := b.subs[agentID]
	delete(b.subs, agentID)
	b.mu.Unlock()

	for s := range set {
		s.stop()
	}

	if len(set) > 0 {
		b.logger.Debug("bus.drop", "agent_id", agentID, "subscribers", len(set))
	}
}

func (b *Bus) detach(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set := b.subs[s.agentID]
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(b.subs, s.agentID)
	}
}

// Subscription is one observer's attachment to the bus.
type Subscription struct {
	bus     *Bus
	agentID string

	mu    sync.Mutex
	queue []core.Event

	out  chan core.Event
	wake chan struct{}
	done chan struct{}
	once sync.Once
}

// AgentID returns the observed agent.
func (s *Subscription) AgentID() string { return s.agentID }

// C yields the events. It is closed after Close or Drop.
func (s *Subscription) C() <-chan core.Event { return s.out }

// Close detaches the subscription. Queued but undelivered events are discarded.
func (s *Subscription) Close() {
	s.bus.detach(s)
	s.stop()
}

func (s *Subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *Subscription) enqueue(ev core.Event) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) next() (core.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return core.Event{}, false
	}

	ev := s.queue[0]
	s.queue[0] = core.Event{}
	s.queue = s.queue[1:]

	return ev, true
}

func (s *Subscription) pump() {
	defer close(s.out)

	for {
		ev, ok := s.next()
		if !ok {
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}

		select {
		case s.out <- ev:
		case <-s.done:
			return
		}
	}
}
