// Package backend submits turns to the reasoning backend.
//
// The Manager picks a strategy per call from the authentication state. With an
// API key it talks to the Messages API statelessly, sending native tool
// definitions. With CLI OAuth credentials it drives the resumable CLI and
// keeps one continuation handle per agent, bound to the hash of the
// instruction text that created it.
package backend

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/agentdeck/auth"
	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/logging"
	"github.com/hupe1980/agentdeck/model"
	"github.com/hupe1980/agentdeck/model/anthropic"
	"github.com/hupe1980/agentdeck/model/cli"
)

// ErrNoUserContent is returned for a call whose contents hold no user turn.
var ErrNoUserContent = errors.New("call has no user content")

// Authenticator reports the credential state.
type Authenticator interface {
	Status(ctx context.Context) (auth.Status, error)
	APIKey(ctx context.Context) (string, error)
}

// Resumable is a backend that can bind a conversation to a continuation handle.
type Resumable interface {
	Fresh(ctx context.Context, inv cli.Invocation) (model.Response, error)
	Resume(ctx context.Context, inv cli.Invocation) (model.Response, error)
}

// Call is one submission to the backend.
type Call struct {
	// Owner is the agent the backend process is tracked under.
	Owner string
	// AgentID enables session persistence. Leave empty for calls that must
	// not touch the agent's session.
	AgentID        string
	System         string
	Contents       []core.Content
	Tools          []model.ToolDefinition
	Model          string
	Effort         core.Effort
	NoBuiltinTools bool
}

// Options configures the Manager.
type Options struct {
	// StatelessModel builds the API key backend. Defaults to the Anthropic adapter.
	StatelessModel func(apiKey string) model.Model
	MaxTokens      int64
	NewSessionID   func() string
	Logger         logging.Logger
}

// Manager routes calls to the stateless or resumable strategy.
type Manager struct {
	auth      Authenticator
	sessions  core.SessionStore
	resumable Resumable
	opts      Options
}

// NewManager creates a Manager.
func NewManager(authenticator Authenticator, sessions core.SessionStore, resumable Resumable, optFns ...func(o *Options)) *Manager {
	opts := Options{
		StatelessModel: func(apiKey string) model.Model {
			return anthropic.NewModel(func(o *anthropic.Options) { o.APIKey = apiKey })
		},
		MaxTokens:    4096,
		NewSessionID: uuid.NewString,
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Manager{
		auth:      authenticator,
		sessions:  sessions,
		resumable: resumable,
		opts:      opts,
	}
}

// Send submits call and returns the backend's response.
func (m *Manager) Send(ctx context.Context, call Call) (model.Response, error) {
	if lastUserIndex(call.Contents) < 0 {
		return model.Response{}, ErrNoUserContent
	}

	status, err := m.auth.Status(ctx)
	if err != nil {
		return model.Response{}, err
	}

	if err := status.Err(); err != nil {
		return model.Response{}, err
	}

	start := time.Now()

	var resp model.Response

	switch status.Mode {
	case auth.ModeAPIKey:
		resp, err = m.sendStateless(ctx, call)
	default:
		resp, err = m.sendResumable(ctx, call)
	}

	logging.LogBackendCall(m.opts.Logger, string(status.Mode), call.Model, time.Since(start), err)

	return resp, err
}

func (m *Manager) sendStateless(ctx context.Context, call Call) (model.Response, error) {
	key, err := m.auth.APIKey(ctx)
	if err != nil {
		return model.Response{}, err
	}

	llm := m.opts.StatelessModel(key)

	req := model.Request{
		Instructions: call.System,
		Contents:     call.Contents,
		Tools:        call.Tools,
		Model:        call.Model,
		MaxTokens:    m.opts.MaxTokens,
	}

	resp, err := model.Collect(ctx, llm, req)
	if err == nil || !core.IsContextOverflow(err) || ctx.Err() != nil {
		return resp, err
	}

	m.opts.Logger.Warn("backend.stateless.overflow", "agent_id", call.Owner, "error", err.Error())

	// Tool results cannot stand without their tool_use turn, so the retry
	// carries the last user content as plain text.
	last := call.Contents[lastUserIndex(call.Contents)]
	req.Contents = []core.Content{core.NewTextContent(core.RoleUser, PromptText(last))}

	return model.Collect(ctx, llm, req)
}

func (m *Manager) sendResumable(ctx context.Context, call Call) (model.Response, error) {
	system := FullInstructions(call.System, call.Tools)
	hash := hashText(system)

	inv := cli.Invocation{
		Owner:          call.Owner,
		AgentID:        call.AgentID,
		System:         system,
		Prompt:         PromptText(call.Contents[lastUserIndex(call.Contents)]),
		Model:          call.Model,
		Effort:         call.Effort,
		NoBuiltinTools: call.NoBuiltinTools,
		ParseTools:     len(call.Tools) > 0,
	}

	if call.AgentID == "" {
		return m.fresh(ctx, inv, call.Contents, hash)
	}

	sess, err := m.sessions.GetSession(ctx, call.AgentID)
	if err != nil {
		return model.Response{}, err
	}

	if sess == nil || sess.PromptHash != hash {
		if sess != nil {
			m.opts.Logger.Debug("backend.session.stale", "agent_id", call.AgentID)
		}
		return m.fresh(ctx, inv, call.Contents, hash)
	}

	inv.SessionID = sess.ContinuationHandle

	resp, err := m.resumable.Resume(ctx, inv)
	if err == nil {
		return resp, nil
	}

	if ctx.Err() != nil {
		return model.Response{}, err
	}

	m.opts.Logger.Warn("backend.resume.failed", "agent_id", call.AgentID, "error", err.Error())

	if delErr := m.sessions.DeleteSession(ctx, call.AgentID); delErr != nil {
		m.opts.Logger.Error("backend.session.delete.failed", "agent_id", call.AgentID, "error", delErr.Error())
	}

	contents := call.Contents
	if core.IsContextOverflow(err) {
		contents = contents[len(contents)-1:]
	}

	return m.fresh(ctx, inv, contents, hash)
}

// fresh starts a new continuation handle carrying contents as a transcript.
// On success the handle is stored when the call is session-bound. An
// overflow with a non-empty transcript is retried once with the bare prompt
// under a handle that is not stored.
func (m *Manager) fresh(ctx context.Context, inv cli.Invocation, contents []core.Content, hash string) (model.Response, error) {
	prompt := inv.Prompt
	transcript := ContextText(contents[:len(contents)-1])

	inv.SessionID = m.opts.NewSessionID()
	if transcript != "" {
		inv.Prompt = "previous conversation:\n" + transcript + "\n\n" + prompt
	}

	resp, err := m.resumable.Fresh(ctx, inv)
	if err == nil {
		if inv.AgentID != "" {
			sess := &core.Session{
				AgentID:            inv.AgentID,
				ContinuationHandle: inv.SessionID,
				PromptHash:         hash,
			}
			if putErr := m.sessions.PutSession(ctx, sess); putErr != nil {
				m.opts.Logger.Error("backend.session.save.failed", "agent_id", inv.AgentID, "error", putErr.Error())
			}
		}
		return resp, nil
	}

	if transcript == "" || !core.IsContextOverflow(err) || ctx.Err() != nil {
		return model.Response{}, err
	}

	m.opts.Logger.Warn("backend.fresh.overflow", "agent_id", inv.Owner, "error", err.Error())

	inv.SessionID = m.opts.NewSessionID()
	inv.Prompt = prompt

	return m.resumable.Fresh(ctx, inv)
}
