package cli

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCLI writes an executable shell script that records its arguments,
// environment and stdin next to itself before running body.
func fakeCLI(t *testing.T, body string) (bin, dir string) {
	t.Helper()

	dir = t.TempDir()
	bin = filepath.Join(dir, "claude")

	script := "#!/bin/sh\n" +
		"printf '%s\\n' \"$@\" > \"" + dir + "/args\"\n" +
		"echo \"$MAX_THINKING_TOKENS\" > \"" + dir + "/thinking\"\n" +
		"cat > \"" + dir + "/stdin\"\n" +
		body + "\n"

	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))

	return bin, dir
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.TrimSpace(string(data))
}

type recordingTracker struct {
	mu      sync.Mutex
	tracked []string
	active  int
}

func (r *recordingTracker) Track(agentID string, _ *os.Process) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tracked = append(r.tracked, agentID)
	r.active++
}

func (r *recordingTracker) Untrack(string, *os.Process) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active--
}

func TestRunner_FreshPassesFlagsAndPrompt(t *testing.T) {
	bin, dir := fakeCLI(t, `echo '{"type":"result","result":"hello there"}'`)
	tracker := &recordingTracker{}

	r := NewRunner(func(o *Options) {
		o.Binary = bin
		o.Tracker = tracker
	})

	resp, err := r.Fresh(context.Background(), Invocation{
		Owner:          "agent-1",
		AgentID:        "agent-1",
		SessionID:      "sess-1",
		System:         "be brief",
		Prompt:         "hi",
		Model:          "opus",
		Effort:         core.EffortLow,
		NoBuiltinTools: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello there", resp.Content.Text())
	assert.Equal(t, model.FinishStop, resp.FinishReason)

	args := readFile(t, filepath.Join(dir, "args"))
	assert.Contains(t, args, "--session-id\nsess-1")
	assert.Contains(t, args, "--model\nopus")
	assert.Contains(t, args, "--system-prompt\nbe brief")
	assert.Contains(t, args, "--tools")
	assert.Equal(t, "0", readFile(t, filepath.Join(dir, "thinking")))
	assert.Equal(t, "hi", readFile(t, filepath.Join(dir, "stdin")))

	assert.Equal(t, []string{"agent-1"}, tracker.tracked)
	assert.Zero(t, tracker.active)
}

func TestRunner_ResumeOmitsSystemPrompt(t *testing.T) {
	bin, dir := fakeCLI(t, `echo '{"type":"result","result":"ok"}'`)
	r := NewRunner(func(o *Options) { o.Binary = bin })

	_, err := r.Resume(context.Background(), Invocation{SessionID: "sess-9", System: "ignored", Prompt: "again", Effort: core.EffortMedium})
	require.NoError(t, err)

	args := readFile(t, filepath.Join(dir, "args"))
	assert.Contains(t, args, "--resume\nsess-9")
	assert.NotContains(t, args, "--system-prompt")
	assert.Equal(t, "16000", readFile(t, filepath.Join(dir, "thinking")))
}

func TestRunner_NonZeroExitWithoutOutput(t *testing.T) {
	bin, _ := fakeCLI(t, `echo "prompt is too long" >&2; exit 3`)
	r := NewRunner(func(o *Options) { o.Binary = bin })

	_, err := r.Fresh(context.Background(), Invocation{SessionID: "s", Model: "opus"})
	require.Error(t, err)
	assert.True(t, core.IsContextOverflow(err))

	var procErr *core.BackendProcessError
	require.ErrorAs(t, err, &procErr)
	assert.Equal(t, 3, procErr.ExitCode)
}

func TestRunner_Timeout(t *testing.T) {
	bin, _ := fakeCLI(t, `exec sleep 5`)
	r := NewRunner(func(o *Options) {
		o.Binary = bin
		o.Timeout = 100 * time.Millisecond
	})

	_, err := r.Fresh(context.Background(), Invocation{SessionID: "s", Model: "opus"})

	var procErr *core.BackendProcessError
	require.ErrorAs(t, err, &procErr)
	assert.Contains(t, procErr.Error(), "timed out")
}

func TestRunner_CancelReturnsCause(t *testing.T) {
	bin, _ := fakeCLI(t, `exec sleep 5`)
	r := NewRunner(func(o *Options) { o.Binary = bin })

	ctx, cancel := context.WithCancelCause(context.Background())
	time.AfterFunc(50*time.Millisecond, func() { cancel(core.ErrAborted) })

	_, err := r.Fresh(ctx, Invocation{SessionID: "s", Model: "opus"})
	assert.ErrorIs(t, err, core.ErrAborted)
}

func TestRunner_EphemeralModel(t *testing.T) {
	bin, dir := fakeCLI(t, `echo '{"type":"result","result":"  on it  "}'`)
	r := NewRunner(func(o *Options) { o.Binary = bin })

	resp, err := model.Collect(context.Background(), r.Model("haiku"), model.Request{
		Contents: []core.Content{core.NewTextContent(core.RoleUser, "ack this")},
	})
	require.NoError(t, err)
	assert.Equal(t, "  on it  ", resp.Content.Text())

	args := readFile(t, filepath.Join(dir, "args"))
	assert.Contains(t, args, "--model\nhaiku")
	assert.NotContains(t, args, "--session-id")
}

func TestParseOutput(t *testing.T) {
	t.Run("last json line wins", func(t *testing.T) {
		resp, err := ParseOutput("warming up\n{\"type\":\"result\",\"result\":\"fine\"}", false)
		require.NoError(t, err)
		assert.Equal(t, "fine", resp.Content.Text())
	})

	t.Run("empty", func(t *testing.T) {
		_, err := ParseOutput("   ", false)
		var procErr *core.BackendProcessError
		assert.ErrorAs(t, err, &procErr)
		assert.ErrorIs(t, err, ErrEmptyOutput)
	})

	t.Run("error result keeps text", func(t *testing.T) {
		resp, err := ParseOutput(`{"type":"result","is_error":true,"result":"rate limited"}`, false)
		require.NoError(t, err)
		assert.Equal(t, "rate limited", resp.Content.Text())
	})

	t.Run("error result overflow", func(t *testing.T) {
		_, err := ParseOutput(`{"type":"result","is_error":true,"result":"Prompt is too long"}`, false)
		assert.True(t, core.IsContextOverflow(err))
	})

	t.Run("result without text", func(t *testing.T) {
		resp, err := ParseOutput(`{"type":"result"}`, false)
		require.NoError(t, err)
		assert.Equal(t, "", resp.Content.Text())
	})

	t.Run("plain text passes through", func(t *testing.T) {
		resp, err := ParseOutput("not json at all", false)
		require.NoError(t, err)
		assert.Equal(t, "not json at all", resp.Content.Text())
	})
}

func TestParseOutput_ExtractsToolCalls(t *testing.T) {
	text := "let me check.\n```json\n{\"tool_use\": {\"name\": \"read_url\", \"input\": {\"url\": \"https://x.test/{a}\"}}}\n```\n" +
		"and\n```json\n{\"tool_use\": {\"name\": \"remember\"}}\n```"

	raw := `{"type":"result","result":` + quote(text) + `}`

	resp, err := ParseOutput(raw, true)
	require.NoError(t, err)
	assert.Equal(t, model.FinishToolUse, resp.FinishReason)
	assert.True(t, model.HasToolUse(resp))

	calls := resp.Content.FunctionCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "read_url", calls[0].Name)
	assert.JSONEq(t, `{"url":"https://x.test/{a}"}`, calls[0].Arguments)
	assert.True(t, strings.HasPrefix(calls[0].ID, "toolu_cli_"))
	assert.NotEqual(t, calls[0].ID, calls[1].ID)
	assert.Equal(t, "{}", calls[1].Arguments)

	noTools, err := ParseOutput(raw, false)
	require.NoError(t, err)
	assert.Empty(t, noTools.Content.FunctionCalls())
}

func TestExtractObjects(t *testing.T) {
	objs := extractObjects(`noise {"a":"}"} {broken {"b":{"c":1}}`)
	assert.Equal(t, []string{`{"a":"}"}`, `{"b":{"c":1}}`}, objs)
}

func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
