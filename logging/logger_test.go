package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LogLevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LogLevelWarn, ParseLevel("warning"))
	assert.Equal(t, LogLevelError, ParseLevel(" error "))
	assert.Equal(t, LogLevelInfo, ParseLevel("chatty"))
	assert.Equal(t, "WARN", LogLevelWarn.String())
}

func TestNew_JSONWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	l, _ := New(Config{Level: LogLevelInfo, Format: "json", Output: &buf})

	With(l, "component", "engine").Info("turn.complete", "agent_id", "a1")
	l.Debug("hidden")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "turn.complete", entry["msg"])
	assert.Equal(t, "engine", entry["component"])
	assert.Equal(t, "a1", entry["agent_id"])
}

func TestNew_TintWritesConsoleLine(t *testing.T) {
	var buf bytes.Buffer
	l, _ := New(Config{Level: LogLevelDebug, Format: "tint", Output: &buf})

	l.Error("backend.call.failed", "error", errors.New("boom"))

	assert.Contains(t, buf.String(), "backend.call.failed")
	assert.Contains(t, buf.String(), "boom")
}

type recordingLogger struct {
	NoOpLogger
	msgs []string
	args [][]any
}

func (r *recordingLogger) Warn(msg string, args ...any) {
	r.msgs = append(r.msgs, msg)
	r.args = append(r.args, args)
}

func TestWith_WrapsForeignLogger(t *testing.T) {
	rec := &recordingLogger{}

	With(rec, "agent_id", "a1").Warn("tool.call.failed", "tool", "x")

	require.Len(t, rec.msgs, 1)
	assert.Equal(t, []any{"agent_id", "a1", "tool", "x"}, rec.args[0])
}

func TestLogToolCall(t *testing.T) {
	rec := &recordingLogger{}
	LogToolCall(rec, "read_url", 5*time.Millisecond, errors.New("rate limited"))
	require.Len(t, rec.msgs, 1)
	assert.Equal(t, "tool.call.failed", rec.msgs[0])
}
