// Package cli drives the `claude` command line client as a resumable backend.
//
// Every call runs one short-lived process in a scratch directory. Fresh calls
// bind a new session id; Resume continues a previously bound one. The process
// answers with a JSON result document on stdout which is turned into a
// model.Response, extracting fenced tool_use blocks when asked to.
package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/logging"
	"github.com/hupe1980/agentdeck/model"
)

// ProcessTracker registers the running process of an agent so it can be
// killed on abort.
type ProcessTracker interface {
	Track(agentID string, p *os.Process)
	Untrack(agentID string, p *os.Process)
}

// Invocation describes a single CLI call.
type Invocation struct {
	// Owner is the agent the process is tracked under.
	Owner string
	// AgentID keys the persisted session. Empty means the call is not bound
	// to a session.
	AgentID        string
	SessionID      string
	System         string
	Prompt         string
	Model          string
	Effort         core.Effort
	NoBuiltinTools bool
	// ParseTools enables extraction of fenced tool_use blocks.
	ParseTools bool
}

// Options configures the Runner.
type Options struct {
	Binary  string
	Timeout time.Duration
	// TempDir is the parent of the per-call scratch directories; empty uses os.TempDir.
	TempDir string
	Env     []string
	Tracker ProcessTracker
	Logger  logging.Logger
}

// Runner executes CLI invocations.
type Runner struct {
	opts Options
}

// NewRunner creates a Runner.
func NewRunner(optFns ...func(o *Options)) *Runner {
	opts := Options{
		Binary:  "claude",
		Timeout: 5 * time.Minute,
		Logger:  logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Runner{opts: opts}
}

var thinkingTokens = map[core.Effort]string{
	core.EffortLow:    "0",
	core.EffortMedium: "16000",
	core.EffortHigh:   "31999",
}

func thinkingEnv(effort core.Effort) string {
	tokens, ok := thinkingTokens[effort]
	if !ok {
		tokens = thinkingTokens[core.EffortHigh]
	}
	return "MAX_THINKING_TOKENS=" + tokens
}

func baseArgs() []string {
	return []string{"-p", "--output-format", "json", "--dangerously-skip-permissions", "--setting-sources", ""}
}

// FreshArgs returns the argument list that starts a new session.
func FreshArgs(inv Invocation) []string {
	args := append(baseArgs(), "--model", inv.Model, "--session-id", inv.SessionID)
	if inv.NoBuiltinTools {
		args = append(args, "--tools", "")
	}
	if inv.System != "" {
		args = append(args, "--system-prompt", inv.System)
	}
	return args
}

// ResumeArgs returns the argument list that continues an existing session.
func ResumeArgs(inv Invocation) []string {
	return append(baseArgs(), "--resume", inv.SessionID)
}

// Fresh starts a new session with the full system prompt.
func (r *Runner) Fresh(ctx context.Context, inv Invocation) (model.Response, error) {
	out, err := r.run(ctx, inv.Owner, FreshArgs(inv), inv.Prompt, thinkingEnv(inv.Effort))
	if err != nil {
		return model.Response{}, err
	}
	return ParseOutput(out, inv.ParseTools)
}

// Resume continues the session named by inv.SessionID. The system prompt is
// already part of the session and is not sent again.
func (r *Runner) Resume(ctx context.Context, inv Invocation) (model.Response, error) {
	out, err := r.run(ctx, inv.Owner, ResumeArgs(inv), inv.Prompt, thinkingEnv(inv.Effort))
	if err != nil {
		return model.Response{}, err
	}
	return ParseOutput(out, inv.ParseTools)
}

func (r *Runner) run(ctx context.Context, owner string, args []string, input string, env ...string) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	dir, err := os.MkdirTemp(r.opts.TempDir, "agentdeck-")
	if err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(runCtx, r.opts.Binary, args...)
	cmd.Dir = dir
	cmd.Env = append(append(os.Environ(), r.opts.Env...), env...)
	cmd.Stdin = strings.NewReader(input)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	start := time.Now()

	if err := cmd.Start(); err != nil {
		return "", &core.BackendProcessError{ExitCode: -1, Err: err}
	}

	if r.opts.Tracker != nil && owner != "" {
		r.opts.Tracker.Track(owner, cmd.Process)
		defer r.opts.Tracker.Untrack(owner, cmd.Process)
	}

	waitErr := cmd.Wait()

	r.opts.Logger.Debug("cli.process.exited",
		"owner", owner,
		"duration", time.Since(start),
		"stdout_bytes", stdout.Len(),
		"error", waitErr,
	)

	if ctx.Err() != nil {
		return "", context.Cause(ctx)
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return "", &core.BackendProcessError{
			ExitCode: -1,
			Stderr:   strings.TrimSpace(stderr.String()),
			Err:      fmt.Errorf("timed out after %s", r.opts.Timeout),
		}
	}

	if out := strings.TrimSpace(stdout.String()); out != "" {
		return out, nil
	}

	if waitErr != nil {
		exitCode := -1

		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}

		return "", core.ClassifyBackendError(&core.BackendProcessError{
			ExitCode: exitCode,
			Stderr:   strings.TrimSpace(stderr.String()),
			Err:      waitErr,
		})
	}

	return "", nil
}

// Model returns an ephemeral model.Model running the given model alias
// without a session. It serves short one-shot prompts such as acknowledgments.
func (r *Runner) Model(name string) model.Model {
	return &ephemeral{runner: r, name: name}
}

type ephemeral struct {
	runner *Runner
	name   string
}

func (e *ephemeral) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 1)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		name := e.name
		if req.Model != "" {
			name = req.Model
		}

		args := append(baseArgs(), "--model", name)
		if req.Instructions != "" {
			args = append(args, "--system-prompt", req.Instructions)
		}

		var prompt string
		if n := len(req.Contents); n > 0 {
			prompt = req.Contents[n-1].Text()
		}

		raw, err := e.runner.run(ctx, "", args, prompt, thinkingEnv(core.EffortLow))
		if err != nil {
			errCh <- err
			return
		}

		resp, err := ParseOutput(raw, false)
		if err != nil {
			errCh <- err
			return
		}

		out <- resp
	}()

	return out, errCh
}

func (e *ephemeral) Info() model.Info {
	return model.Info{Name: e.name, Provider: "claude-cli"}
}
