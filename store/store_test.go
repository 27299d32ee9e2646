package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/hupe1980/agentdeck/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStores(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]Store{
		"sqlite":    sqlite,
		"in_memory": NewInMemory(),
	}
}

func newAgent(name string) *core.Agent {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &core.Agent{
		ID:        core.NewID(),
		Name:      name,
		Model:     core.DefaultModel,
		Effort:    core.EffortHigh,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestStore_Agents(t *testing.T) {
	ctx := context.Background()

	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Ping(ctx))

			ada := newAgent("Ada")
			require.NoError(t, s.CreateAgent(ctx, ada))
			assert.ErrorIs(t, s.CreateAgent(ctx, newAgent("ada")), core.ErrAgentExists)

			got, err := s.GetAgentByName(ctx, "ADA")
			require.NoError(t, err)
			assert.Equal(t, ada.ID, got.ID)
			assert.False(t, got.Bootstrapped)
			assert.Nil(t, got.HeartbeatInterval)

			_, err = s.GetAgent(ctx, "missing")
			assert.ErrorIs(t, err, core.ErrUnknownAgent)

			interval := 10 * time.Minute
			require.NoError(t, s.SetHeartbeatInterval(ctx, ada.ID, &interval))
			require.NoError(t, s.SetBootstrapped(ctx, ada.ID, true))

			got, err = s.GetAgent(ctx, ada.ID)
			require.NoError(t, err)
			require.NotNil(t, got.HeartbeatInterval)
			assert.Equal(t, interval, *got.HeartbeatInterval)
			assert.True(t, got.Bootstrapped)

			require.NoError(t, s.SetHeartbeatInterval(ctx, ada.ID, nil))

			grace := newAgent("Grace")
			require.NoError(t, s.CreateAgent(ctx, grace))
			require.NoError(t, s.SetDefaultAgent(ctx, ada.ID))
			require.NoError(t, s.SetDefaultAgent(ctx, grace.ID))
			assert.ErrorIs(t, s.SetDefaultAgent(ctx, "missing"), core.ErrUnknownAgent)

			agents, err := s.ListAgents(ctx)
			require.NoError(t, err)
			require.Len(t, agents, 2)
			defaults := 0
			for _, a := range agents {
				if a.IsDefault {
					defaults++
					assert.Equal(t, grace.ID, a.ID)
				}
				if a.ID == ada.ID {
					assert.Nil(t, a.HeartbeatInterval)
				}
			}
			assert.Equal(t, 1, defaults)

			grace.Name = "Ada"
			assert.ErrorIs(t, s.UpdateAgent(ctx, grace), core.ErrAgentExists)

			grace.Name = "Hopper"
			grace.ShowHeartbeat = true
			grace.Effort = core.EffortLow
			require.NoError(t, s.UpdateAgent(ctx, grace))
			got, err = s.GetAgent(ctx, grace.ID)
			require.NoError(t, err)
			assert.Equal(t, "Hopper", got.Name)
			assert.True(t, got.ShowHeartbeat)
			assert.Equal(t, core.EffortLow, got.Effort)

			assert.ErrorIs(t, s.UpdateAgent(ctx, newAgent("ghost")), core.ErrUnknownAgent)
		})
	}
}

func TestStore_MessagesRoundTripToolCalls(t *testing.T) {
	ctx := context.Background()

	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			a := newAgent("Ada")
			require.NoError(t, s.CreateAgent(ctx, a))

			for i := 0; i < 5; i++ {
				require.NoError(t, s.AppendMessage(ctx, core.NewMessage(a.ID, core.RoleUser, string(rune('a'+i)))))
			}

			reply := core.NewMessage(a.ID, core.RoleAssistant, "done")
			reply.ToolCalls = []core.ToolCall{{
				Name:   "http_request",
				Input:  map[string]any{"url": "https://x.test", "method": "GET"},
				Output: map[string]any{"status": float64(200), "body": []any{"x"}},
			}}
			require.NoError(t, s.AppendMessage(ctx, reply))

			alert := core.NewMessage(a.ID, core.RoleAssistant, "disk almost full")
			alert.Kind = core.KindHeartbeat
			require.NoError(t, s.AppendMessage(ctx, alert))

			recent, err := s.RecentMessages(ctx, a.ID, core.KindChat, 3)
			require.NoError(t, err)
			require.Len(t, recent, 3)
			assert.Equal(t, "d", recent[0].Content)
			assert.Equal(t, "done", recent[2].Content)
			assert.Equal(t, reply.ToolCalls, recent[2].ToolCalls)

			heartbeats, err := s.RecentMessages(ctx, a.ID, core.KindHeartbeat, 10)
			require.NoError(t, err)
			require.Len(t, heartbeats, 1)
			assert.Equal(t, core.KindHeartbeat, heartbeats[0].Kind)

			all, err := s.ListMessages(ctx, a.ID)
			require.NoError(t, err)
			assert.Len(t, all, 7)
			assert.Nil(t, all[0].ToolCalls)

			n, err := s.CountMessages(ctx, a.ID, core.RoleUser)
			require.NoError(t, err)
			assert.Equal(t, 5, n)

			assert.ErrorIs(t, s.AppendMessage(ctx, core.NewMessage("missing", core.RoleUser, "x")), core.ErrUnknownAgent)

			require.NoError(t, s.DeleteMessages(ctx, a.ID))
			all, err = s.ListMessages(ctx, a.ID)
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}
}

func TestStore_SessionsMemoriesCredentialsConfig(t *testing.T) {
	ctx := context.Background()

	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			a := newAgent("Ada")
			require.NoError(t, s.CreateAgent(ctx, a))

			sess, err := s.GetSession(ctx, a.ID)
			require.NoError(t, err)
			assert.Nil(t, sess)

			require.NoError(t, s.PutSession(ctx, &core.Session{AgentID: a.ID, ContinuationHandle: "h1", PromptHash: "p1"}))
			require.NoError(t, s.PutSession(ctx, &core.Session{AgentID: a.ID, ContinuationHandle: "h2", PromptHash: "p2"}))
			sess, err = s.GetSession(ctx, a.ID)
			require.NoError(t, err)
			require.NotNil(t, sess)
			assert.Equal(t, "h2", sess.ContinuationHandle)
			assert.Equal(t, "p2", sess.PromptHash)

			require.NoError(t, s.AddMemory(ctx, &core.Memory{AgentID: a.ID, Summary: "first", CreatedAt: time.Now().Add(-time.Hour)}))
			require.NoError(t, s.AddMemory(ctx, &core.Memory{AgentID: a.ID, Summary: "second"}))
			memories, err := s.ListMemories(ctx, a.ID)
			require.NoError(t, err)
			require.Len(t, memories, 2)
			assert.Equal(t, "second", memories[0].Summary)

			require.NoError(t, s.PutCredential(ctx, a.ID, "token", "s3cret"))
			require.NoError(t, s.PutCredential(ctx, a.ID, "token", "rotated"))
			v, ok, err := s.GetCredential(ctx, a.ID, "token")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "rotated", v)

			_, ok, err = s.GetCredential(ctx, a.ID, "missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.SetConfig(ctx, "api_key", "sk-ant-api-1"))
			v, ok, err = s.GetConfig(ctx, "api_key")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "sk-ant-api-1", v)
			require.NoError(t, s.DeleteConfig(ctx, "api_key"))
			_, ok, err = s.GetConfig(ctx, "api_key")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStore_Schedules(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			a := newAgent("Ada")
			require.NoError(t, s.CreateAgent(ctx, a))

			due := &core.Schedule{ID: core.NewID(), AgentID: a.ID, Description: "check feed", Interval: time.Minute, NextRunAt: now.Add(-time.Second), Active: true, CreatedAt: now}
			later := &core.Schedule{ID: core.NewID(), AgentID: a.ID, Description: "later", Interval: time.Hour, NextRunAt: now.Add(time.Hour), Active: true, CreatedAt: now.Add(time.Millisecond)}
			require.NoError(t, s.CreateSchedule(ctx, due))
			require.NoError(t, s.CreateSchedule(ctx, later))

			list, err := s.DueSchedules(ctx, now)
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, "check feed", list[0].Description)
			assert.Equal(t, time.Minute, list[0].Interval)

			require.NoError(t, s.MarkScheduleRun(ctx, due.ID, now, now.Add(time.Minute)))
			list, err = s.DueSchedules(ctx, now)
			require.NoError(t, err)
			assert.Empty(t, list)

			require.NoError(t, s.DeactivateSchedule(ctx, later.ID, "someone-else"))
			require.NoError(t, s.DeactivateSchedule(ctx, due.ID, a.ID))

			all, err := s.ListSchedules(ctx, a.ID)
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.False(t, all[0].Active)
			require.NotNil(t, all[0].LastRunAt)
			assert.True(t, all[1].Active)
		})
	}
}

func TestStore_DeleteAgentCascades(t *testing.T) {
	ctx := context.Background()

	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			a := newAgent("Ada")
			require.NoError(t, s.CreateAgent(ctx, a))
			require.NoError(t, s.AppendMessage(ctx, core.NewMessage(a.ID, core.RoleUser, "hi")))
			require.NoError(t, s.PutSession(ctx, &core.Session{AgentID: a.ID, ContinuationHandle: "h", PromptHash: "p"}))
			require.NoError(t, s.AddMemory(ctx, &core.Memory{AgentID: a.ID, Summary: "m"}))
			require.NoError(t, s.PutCredential(ctx, a.ID, "k", "v"))
			require.NoError(t, s.CreateSchedule(ctx, &core.Schedule{ID: core.NewID(), AgentID: a.ID, Description: "d", Interval: time.Minute, NextRunAt: time.Now(), Active: true, CreatedAt: time.Now()}))

			require.NoError(t, s.DeleteAgent(ctx, a.ID))
			assert.ErrorIs(t, s.DeleteAgent(ctx, a.ID), core.ErrUnknownAgent)

			msgs, err := s.ListMessages(ctx, a.ID)
			require.NoError(t, err)
			assert.Empty(t, msgs)

			sess, err := s.GetSession(ctx, a.ID)
			require.NoError(t, err)
			assert.Nil(t, sess)

			memories, err := s.ListMemories(ctx, a.ID)
			require.NoError(t, err)
			assert.Empty(t, memories)

			_, ok, err := s.GetCredential(ctx, a.ID, "k")
			require.NoError(t, err)
			assert.False(t, ok)

			due, err := s.DueSchedules(ctx, time.Now().Add(time.Hour))
			require.NoError(t, err)
			assert.Empty(t, due)
		})
	}
}
