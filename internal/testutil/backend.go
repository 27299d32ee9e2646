package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/agentdeck/auth"
	"github.com/hupe1980/agentdeck/model"
	"github.com/hupe1980/agentdeck/model/cli"
)

// StaticAuth reports a fixed authentication state.
type StaticAuth struct {
	State auth.Status
	Key   string
	Err   error
}

// APIKeyAuth is authenticated in api_key mode with key.
func APIKeyAuth(key string) *StaticAuth {
	return &StaticAuth{State: auth.Status{Authenticated: true, Mode: auth.ModeAPIKey}, Key: key}
}

// OAuthAuth is authenticated in oauth mode.
func OAuthAuth() *StaticAuth {
	return &StaticAuth{State: auth.Status{Authenticated: true, Mode: auth.ModeOAuth}}
}

// Status implements backend.Authenticator.
func (a *StaticAuth) Status(context.Context) (auth.Status, error) { return a.State, a.Err }

// APIKey implements backend.Authenticator.
func (a *StaticAuth) APIKey(context.Context) (string, error) { return a.Key, a.Err }

// ResumableCall records one invocation seen by ScriptedResumable.
type ResumableCall struct {
	Resume bool
	Inv    cli.Invocation
}

type resumableStep struct {
	resp  model.Response
	err   error
	block bool
}

// ScriptedResumable is a resumable backend double. Each Fresh or Resume call
// consumes the next scripted step; an empty script answers with the text
// "ok: <prompt>".
type ScriptedResumable struct {
	mu    sync.Mutex
	steps []resumableStep
	calls []ResumableCall
}

// NewScriptedResumable creates an empty script.
func NewScriptedResumable() *ScriptedResumable { return &ScriptedResumable{} }

// Reply scripts a successful response.
func (s *ScriptedResumable) Reply(resp model.Response) *ScriptedResumable {
	return s.add(resumableStep{resp: resp})
}

// ReplyText scripts a successful text response.
func (s *ScriptedResumable) ReplyText(text string) *ScriptedResumable {
	return s.add(resumableStep{resp: model.TextResponse(text)})
}

// Fail scripts a failing call.
func (s *ScriptedResumable) Fail(err error) *ScriptedResumable {
	return s.add(resumableStep{err: err})
}

// Block scripts a call that waits for its context and returns the cause.
func (s *ScriptedResumable) Block() *ScriptedResumable {
	return s.add(resumableStep{block: true})
}

func (s *ScriptedResumable) add(st resumableStep) *ScriptedResumable {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, st)
	return s
}

// Calls returns a snapshot of the recorded invocations.
func (s *ScriptedResumable) Calls() []ResumableCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ResumableCall, len(s.calls))
	copy(out, s.calls)
	return out
}

// Fresh implements backend.Resumable.
func (s *ScriptedResumable) Fresh(ctx context.Context, inv cli.Invocation) (model.Response, error) {
	return s.next(ctx, ResumableCall{Inv: inv})
}

// Resume implements backend.Resumable.
func (s *ScriptedResumable) Resume(ctx context.Context, inv cli.Invocation) (model.Response, error) {
	return s.next(ctx, ResumableCall{Resume: true, Inv: inv})
}

func (s *ScriptedResumable) next(ctx context.Context, call ResumableCall) (model.Response, error) {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	step := resumableStep{resp: model.TextResponse(fmt.Sprintf("ok: %s", call.Inv.Prompt))}
	if len(s.steps) > 0 {
		step = s.steps[0]
		s.steps = s.steps[1:]
	}
	s.mu.Unlock()

	if step.block {
		<-ctx.Done()
		return model.Response{}, context.Cause(ctx)
	}

	return step.resp, step.err
}
