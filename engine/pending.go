package engine

import (
	"context"
	"strings"

	"github.com/hupe1980/agentdeck/core"
)

// TurnKind classifies a turn.
type TurnKind string

const (
	KindChat      TurnKind = "chat"
	KindScheduled TurnKind = "scheduled"
	KindHeartbeat TurnKind = "heartbeat"
)

type enqueueOptions struct {
	heartbeat bool
	scheduled bool
	onAck     func(string)
	clientID  string
}

func (o enqueueOptions) kind(content string) TurnKind {
	switch {
	case o.heartbeat:
		return KindHeartbeat
	case o.scheduled || strings.HasPrefix(content, ScheduledPrefix):
		return KindScheduled
	default:
		return KindChat
	}
}

// wantsAck reports whether the turn races an acknowledgment.
func (t *turn) wantsAck() bool {
	return t.kind == KindChat && !t.bootstrap
}

// EnqueueOption configures a single turn.
type EnqueueOption func(o *enqueueOptions)

// Heartbeat marks the turn as a heartbeat: no user message, no history, no session.
func Heartbeat() EnqueueOption {
	return func(o *enqueueOptions) { o.heartbeat = true }
}

// Scheduled marks the turn as a scheduled reminder, which is never acknowledged.
func Scheduled() EnqueueOption {
	return func(o *enqueueOptions) { o.scheduled = true }
}

// WithOnAck registers fn to receive the acknowledgment, if one is delivered.
func WithOnAck(fn func(ack string)) EnqueueOption {
	return func(o *enqueueOptions) { o.onAck = fn }
}

// WithClientID echoes id on the turn's user_message event.
func WithClientID(id string) EnqueueOption {
	return func(o *enqueueOptions) { o.clientID = id }
}

// Reply is the outcome of a settled turn. ID is empty for suppressed heartbeats.
type Reply struct {
	ID         string          `json:"id,omitempty"`
	Content    string          `json:"content"`
	ToolCalls  []core.ToolCall `json:"tool_calls"`
	Suppressed bool            `json:"suppressed,omitempty"`
}

// Pending is the two-stage result of an enqueued turn: an optional early
// acknowledgment and the final reply or error.
type Pending struct {
	ack  chan string
	done chan struct{}

	reply Reply
	err   error
}

func newPending() *Pending {
	return &Pending{
		ack:  make(chan string, 1),
		done: make(chan struct{}),
	}
}

// Ack yields at most one acknowledgment and is closed once the turn settles.
func (p *Pending) Ack() <-chan string { return p.ack }

// Done is closed once the turn settles.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the turn settles or ctx is done.
func (p *Pending) Wait(ctx context.Context) (Reply, error) {
	select {
	case <-p.done:
		return p.reply, p.err
	case <-ctx.Done():
		return Reply{}, context.Cause(ctx)
	}
}

func (p *Pending) deliverAck(text string) {
	select {
	case p.ack <- text:
	default:
	}
}

func (p *Pending) settle(reply Reply, err error) {
	p.reply, p.err = reply, err
	close(p.ack)
	close(p.done)
}
