package engine

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hupe1980/agentdeck/backend"
	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/flow"
	"github.com/hupe1980/agentdeck/internal/util"
	"github.com/hupe1980/agentdeck/logging"
	"github.com/hupe1980/agentdeck/model"
	"github.com/hupe1980/agentdeck/tool"
	"github.com/hupe1980/agentdeck/tool/builtin"
)

const (
	// ScheduledPrefix marks content produced by the schedule ticker.
	ScheduledPrefix = "[scheduled reminder]"

	// HeartbeatOK is the token a heartbeat reply carries when nothing needs attention.
	HeartbeatOK = "HEARTBEAT_OK"

	heartbeatOKLimit = 300
)

// Backend submits a turn's conversation. *backend.Manager implements it.
type Backend interface {
	Send(ctx context.Context, call backend.Call) (model.Response, error)
}

// Prompter composes system prompts and history. *backend.Composer implements it.
type Prompter interface {
	System(ctx context.Context, a *core.Agent, tools []model.ToolDefinition) (string, error)
	History(ctx context.Context, agentID string) ([]core.Content, error)
}

// Acknowledger produces the quick acknowledgment of a slow turn.
// *backend.Acknowledger implements it.
type Acknowledger interface {
	Acknowledge(ctx context.Context, agentName, content string) (string, error)
}

// Dependencies are the collaborators of an Engine. Acknowledger and
// Bootstrap are optional.
type Dependencies struct {
	Agents       core.AgentStore
	Messages     core.MessageStore
	Backend      Backend
	Prompts      Prompter
	Acknowledger Acknowledger
	Tools        *tool.Registry
	Publisher    core.Publisher
	Bootstrap    builtin.BootstrapCompleter
}

// Options configures an Engine.
type Options struct {
	// State is shared with the CLI runner so aborts can kill backend processes.
	State *State
	// AckDelay is how long a turn may run before an acknowledgment is shown.
	AckDelay time.Duration
	// BootstrapTools are the only tools offered to agents that are not bootstrapped.
	BootstrapTools []string
	// BootstrapThreshold is the number of user messages after which a
	// bootstrap turn completes the ritual on the agent's behalf.
	BootstrapThreshold int
	Callbacks          *CallbackManager
	Logger             logging.Logger
}

// Engine runs turns on per-agent lanes.
type Engine struct {
	deps  Dependencies
	opts  Options
	state *State

	ctx    context.Context
	cancel context.CancelCauseFunc
}

// ErrStopped is the cause of turns cancelled by Stop.
var ErrStopped = errors.New("engine stopped")

// New creates an Engine.
func New(deps Dependencies, optFns ...func(o *Options)) *Engine {
	opts := Options{
		AckDelay:           8 * time.Second,
		BootstrapTools:     builtin.BootstrapTools,
		BootstrapThreshold: 4,
		Logger:             logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.State == nil {
		opts.State = NewState()
	}
	if opts.Callbacks == nil {
		opts.Callbacks = NewCallbackManager()
	}
	if deps.Tools == nil {
		deps.Tools = tool.NewRegistry()
	}

	ctx, cancel := context.WithCancelCause(context.Background())

	return &Engine{
		deps:   deps,
		opts:   opts,
		state:  opts.State,
		ctx:    ctx,
		cancel: cancel,
	}
}

// State returns the orchestrator state.
func (e *Engine) State() *State { return e.state }

// Callbacks returns the lifecycle callback manager.
func (e *Engine) Callbacks() *CallbackManager { return e.opts.Callbacks }

// Stop cancels every in-flight and queued turn.
func (e *Engine) Stop() {
	e.cancel(ErrStopped)
}

// Abort cancels agentID's in-flight turn. See State.Abort.
func (e *Engine) Abort(agentID string) bool {
	aborted := e.state.Abort(agentID)
	if aborted {
		e.opts.Logger.Info("turn.abort", "agent_id", agentID)
	}
	return aborted
}

// Forget closes agentID's lane. See State.Forget.
func (e *Engine) Forget(agentID string) {
	e.state.Forget(agentID)
}

// IsProcessing reports whether agentID has a chat turn in progress.
func (e *Engine) IsProcessing(agentID string) bool {
	return e.state.IsProcessing(agentID)
}

// Enqueue appends a turn with content to agentID's lane and returns its
// pending result. The turn keeps the values of ctx but not its
// cancellation; use Abort or Stop to cancel it.
func (e *Engine) Enqueue(ctx context.Context, agentID, content string, optFns ...EnqueueOption) *Pending {
	var o enqueueOptions
	for _, fn := range optFns {
		fn(&o)
	}

	p := newPending()
	prev, next := e.state.chain(agentID)

	go func() {
		defer e.state.release(agentID, next)
		defer close(next)

		<-prev

		reply, err := e.run(context.WithoutCancel(ctx), agentID, content, o, p)
		p.settle(reply, err)
	}()

	return p
}

// Ask runs a turn on agentID and waits for its reply text.
func (e *Engine) Ask(ctx context.Context, agentID, content string) (string, error) {
	reply, err := e.Enqueue(ctx, agentID, content).Wait(ctx)
	if err != nil {
		return "", err
	}
	return reply.Content, nil
}

// turn is the per-turn context passed through the algorithm.
type turn struct {
	agent     *core.Agent
	content   string
	kind      TurnKind
	bootstrap bool
	opts      enqueueOptions
	pending   *Pending
	logger    logging.Logger
}

func (e *Engine) run(parent context.Context, agentID, content string, o enqueueOptions, p *Pending) (Reply, error) {
	ctx, cancel := context.WithCancelCause(parent)
	defer cancel(nil)

	stop := context.AfterFunc(e.ctx, func() { cancel(context.Cause(e.ctx)) })
	defer stop()

	// Abort must reach the turn from the moment it owns the lane.
	e.state.begin(agentID, cancel)
	defer e.state.end(agentID)

	if e.state.closed(agentID) {
		return Reply{}, core.ErrUnknownAgent
	}

	a, err := e.deps.Agents.GetAgent(ctx, agentID)
	if ctx.Err() != nil {
		return Reply{}, context.Cause(ctx)
	}
	if err != nil {
		return Reply{}, err
	}

	t := &turn{
		agent:     a,
		content:   content,
		kind:      o.kind(content),
		bootstrap: !a.Bootstrapped,
		opts:      o,
		pending:   p,
	}
	t.logger = logging.With(e.opts.Logger, "agent_id", a.ID, "kind", t.kind)

	cbCtx := &CallbackContext{AgentID: a.ID, Kind: t.kind, Content: content}
	if err := e.opts.Callbacks.ExecuteCallbacks(ctx, CallbackBeforeTurn, cbCtx); err != nil {
		return Reply{}, err
	}

	start := time.Now()
	t.logger.Debug("turn.start", "bootstrap", t.bootstrap)

	if t.kind != KindHeartbeat {
		msg := core.NewMessage(a.ID, core.RoleUser, content)
		if err := e.deps.Messages.AppendMessage(ctx, msg); err != nil {
			return Reply{}, err
		}

		e.publish(a.ID, core.EventUserMessage, core.UserMessageData{ID: msg.ID, Content: content, ClientID: o.clientID})

		e.state.setProcessing(a.ID, true)
		e.publish(a.ID, core.EventTyping, core.TypingData{Active: true})
	}

	reply, err := e.execute(ctx, t)
	if err != nil {
		if ctx.Err() != nil {
			// Report why the turn was cancelled rather than how the backend noticed.
			err = context.Cause(ctx)
		}

		e.state.setProcessing(a.ID, false)

		if t.kind != KindHeartbeat {
			e.publish(a.ID, core.EventTyping, core.TypingData{Active: false})
			e.publish(a.ID, core.EventError, core.ErrorData{Error: err.Error()})
		}

		t.logger.Warn("turn.failed", "duration_ms", time.Since(start).Milliseconds(), "error", err)

		cbCtx.Err = err
		if cbErr := e.opts.Callbacks.ExecuteCallbacks(ctx, CallbackOnError, cbCtx); cbErr != nil {
			t.logger.Warn("turn.callback.failed", "callback", CallbackOnError, "error", cbErr)
		}

		return Reply{}, err
	}

	t.logger.Info("turn.complete",
		"duration_ms", time.Since(start).Milliseconds(),
		"tool_calls", len(reply.ToolCalls),
		"suppressed", reply.Suppressed,
	)

	cbCtx.Reply = &reply
	if cbErr := e.opts.Callbacks.ExecuteCallbacks(ctx, CallbackAfterTurn, cbCtx); cbErr != nil {
		t.logger.Warn("turn.callback.failed", "callback", CallbackAfterTurn, "error", cbErr)
	}

	return reply, nil
}

func (e *Engine) execute(ctx context.Context, t *turn) (Reply, error) {
	a := t.agent

	defs := e.deps.Tools.Definitions()
	var tools flow.Executor = e.deps.Tools

	if t.bootstrap {
		defs = e.deps.Tools.Definitions(e.opts.BootstrapTools...)
		tools = e.deps.Tools.Subset(e.opts.BootstrapTools...)
	}

	system, err := e.deps.Prompts.System(ctx, a, defs)
	if err != nil {
		return Reply{}, err
	}

	var contents []core.Content
	if t.kind == KindHeartbeat {
		contents = []core.Content{core.NewTextContent(core.RoleUser, t.content)}
	} else {
		contents, err = e.deps.Prompts.History(ctx, a.ID)
		if err != nil {
			return Reply{}, err
		}
	}

	call := backend.Call{
		Owner:          a.ID,
		AgentID:        a.ID,
		System:         system,
		Tools:          defs,
		Model:          a.Model,
		Effort:         a.Effort,
		NoBuiltinTools: t.bootstrap,
	}
	if call.Model == "" {
		call.Model = core.DefaultModel
	}
	if call.Effort == "" {
		call.Effort = core.EffortHigh
	}
	if t.bootstrap || t.kind == KindHeartbeat {
		call.AgentID = ""
		call.Effort = core.EffortLow
	}

	submit := flow.SubmitFunc(func(ctx context.Context, contents []core.Content) (model.Response, error) {
		c := call
		c.Contents = contents
		return e.deps.Backend.Send(ctx, c)
	})

	loop := flow.NewLoop(submit, tools, e.deps.Publisher, func(o *flow.Options) {
		o.Logger = t.logger
	})

	ft := &flow.Turn{AgentID: a.ID, AgentName: a.Name, Contents: contents}

	var result flow.Result
	if t.wantsAck() && e.deps.Acknowledger != nil {
		result, err = e.race(ctx, t, loop, ft)
	} else {
		result, err = loop.Run(ctx, ft)
	}
	if err != nil {
		return Reply{}, err
	}

	if t.kind == KindHeartbeat {
		return e.finishHeartbeat(ctx, t, result)
	}

	return e.finishChat(ctx, t, result)
}

type loopOutcome struct {
	result flow.Result
	err    error
}

// race runs the loop against the acknowledgment timer.
func (e *Engine) race(ctx context.Context, t *turn, loop *flow.Loop, ft *flow.Turn) (flow.Result, error) {
	loopCh := make(chan loopOutcome, 1)
	go func() {
		res, err := loop.Run(ctx, ft)
		loopCh <- loopOutcome{result: res, err: err}
	}()

	ackCtx, ackCancel := context.WithCancel(ctx)
	defer ackCancel()

	ackCh := make(chan string, 1)
	go func() {
		text, err := e.deps.Acknowledger.Acknowledge(ackCtx, t.agent.Name, t.content)
		if err != nil {
			t.logger.Debug("turn.ack.failed", "error", err)
			text = ""
		}
		ackCh <- strings.TrimSpace(text)
	}()

	timer := time.NewTimer(e.opts.AckDelay)
	defer timer.Stop()

	select {
	case out := <-loopCh:
		return out.result, out.err
	case <-timer.C:
	}

	if text := <-ackCh; text != "" && ctx.Err() == nil {
		e.deliverAck(ctx, t, text)
	}

	out := <-loopCh
	return out.result, out.err
}

func (e *Engine) deliverAck(ctx context.Context, t *turn, text string) {
	a := t.agent

	msg := core.NewMessage(a.ID, core.RoleAssistant, text)
	if err := e.deps.Messages.AppendMessage(ctx, msg); err != nil {
		t.logger.Debug("turn.ack.failed", "error", err)
		return
	}

	e.publish(a.ID, core.EventTyping, core.TypingData{Active: false})
	e.publish(a.ID, core.EventAckMessage, core.TextData{Content: text})

	if t.opts.onAck != nil {
		t.opts.onAck(text)
	}
	t.pending.deliverAck(text)

	cbCtx := &CallbackContext{AgentID: a.ID, Kind: t.kind, Content: t.content, Ack: text}
	if err := e.opts.Callbacks.ExecuteCallbacks(ctx, CallbackOnAck, cbCtx); err != nil {
		t.logger.Warn("turn.callback.failed", "callback", CallbackOnAck, "error", err)
	}

	e.publish(a.ID, core.EventTyping, core.TypingData{Active: true})
}

func (e *Engine) finishHeartbeat(ctx context.Context, t *turn, result flow.Result) (Reply, error) {
	a := t.agent

	if IsHeartbeatOK(result.Content) {
		return Reply{Content: result.Content, Suppressed: true}, nil
	}

	msg := core.NewMessage(a.ID, core.RoleAssistant, result.Content)
	msg.Kind = core.KindHeartbeat
	msg.ToolCalls = result.ToolCalls

	if err := e.deps.Messages.AppendMessage(ctx, msg); err != nil {
		return Reply{}, err
	}

	e.publish(a.ID, core.EventHeartbeatAlert, messageData(msg))

	return replyOf(msg), nil
}

func (e *Engine) finishChat(ctx context.Context, t *turn, result flow.Result) (Reply, error) {
	a := t.agent

	msg := core.NewMessage(a.ID, core.RoleAssistant, result.Content)
	msg.ToolCalls = result.ToolCalls

	if err := e.deps.Messages.AppendMessage(ctx, msg); err != nil {
		return Reply{}, err
	}

	if t.bootstrap {
		e.maybeCompleteBootstrap(ctx, t)
	}

	e.state.setProcessing(a.ID, false)
	e.publish(a.ID, core.EventTyping, core.TypingData{Active: false})
	e.publish(a.ID, core.EventAssistantMessage, messageData(msg))

	return replyOf(msg), nil
}

// maybeCompleteBootstrap finishes the ritual for agents that talked long
// enough without calling complete_bootstrap themselves.
func (e *Engine) maybeCompleteBootstrap(ctx context.Context, t *turn) {
	if e.deps.Bootstrap == nil {
		return
	}

	current, err := e.deps.Agents.GetAgent(ctx, t.agent.ID)
	if err != nil || current.Bootstrapped {
		return
	}

	n, err := e.deps.Messages.CountMessages(ctx, t.agent.ID, core.RoleUser)
	if err != nil {
		t.logger.Warn("turn.bootstrap.count_failed", "error", err)
		return
	}

	if n < e.opts.BootstrapThreshold {
		return
	}

	if err := e.deps.Bootstrap.CompleteBootstrap(ctx, t.agent.ID); err != nil {
		t.logger.Warn("turn.bootstrap.failed", "error", err)
		return
	}

	t.logger.Info("turn.bootstrap.completed", "user_messages", n)
}

func (e *Engine) publish(agentID string, typ core.EventType, data any) {
	if e.deps.Publisher == nil {
		return
	}
	e.deps.Publisher.Publish(core.NewEvent(agentID, typ, data))
}

// IsHeartbeatOK reports whether a heartbeat reply says nothing needs attention.
func IsHeartbeatOK(text string) bool {
	stripped := util.CollapseWhitespace(text)
	return strings.Contains(stripped, HeartbeatOK) && utf8.RuneCountInString(stripped) <= heartbeatOKLimit
}

func messageData(m *core.Message) core.MessageData {
	return core.MessageData{ID: m.ID, Content: m.Content, ToolCalls: nilIfEmpty(m.ToolCalls)}
}

func replyOf(m *core.Message) Reply {
	return Reply{ID: m.ID, Content: m.Content, ToolCalls: nilIfEmpty(m.ToolCalls)}
}

func nilIfEmpty(calls []core.ToolCall) []core.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	return calls
}
