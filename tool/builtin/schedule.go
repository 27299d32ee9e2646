package builtin

import (
	"time"

	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/tool"
)

// MinScheduleInterval is the shortest interval schedule_task accepts.
const MinScheduleInterval = time.Minute

func newScheduleTask(schedules core.ScheduleStore, now func() time.Time) tool.Tool {
	return tool.NewFunctionTool(
		"schedule_task",
		"schedule a recurring task. a reminder with your description will be sent to you at the specified interval, triggering you to act. use this for periodic actions like posting, checking feeds, monitoring, etc.",
		object(map[string]any{
			"description":      str("what to do each time this fires. be specific, this is the prompt you will receive"),
			"interval_minutes": map[string]any{"type": "number", "description": "how often to run in minutes (minimum 1)"},
		}, "description", "interval_minutes"),
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			minutes, _ := args["interval_minutes"].(float64)
			interval := time.Duration(minutes * float64(time.Minute))
			if interval < MinScheduleInterval {
				interval = MinScheduleInterval
			}

			start := now().UTC()
			sch := &core.Schedule{
				ID:          core.NewID(),
				AgentID:     tc.AgentID(),
				Description: tool.StringArg(args, "description"),
				Interval:    interval,
				NextRunAt:   start.Add(interval),
				Active:      true,
				CreatedAt:   start,
			}
			if err := schedules.CreateSchedule(tc.Context(), sch); err != nil {
				return nil, err
			}

			return map[string]any{
				"scheduled":        true,
				"id":               sch.ID,
				"description":      sch.Description,
				"interval_minutes": interval.Minutes(),
				"next_run_at":      sch.NextRunAt.Format(time.RFC3339),
			}, nil
		},
	)
}

type cancelScheduleArgs struct {
	ScheduleID string `json:"schedule_id" description:"id of the schedule to cancel"`
}

func newCancelSchedule(schedules core.ScheduleStore) tool.Tool {
	return tool.NewFunctionToolFromStruct(
		"cancel_schedule",
		"cancel a scheduled recurring task by its id.",
		cancelScheduleArgs{},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			id := tool.StringArg(args, "schedule_id")
			if err := schedules.DeactivateSchedule(tc.Context(), id, tc.AgentID()); err != nil {
				return nil, err
			}
			return map[string]any{"cancelled": true, "id": id}, nil
		},
	)
}

func newListSchedules(schedules core.ScheduleStore) tool.Tool {
	return tool.NewFunctionTool(
		"list_schedules",
		"list all active scheduled tasks.",
		object(map[string]any{}),
		func(tc *core.ToolContext, _ map[string]any) (any, error) {
			list, err := schedules.ListSchedules(tc.Context(), tc.AgentID())
			if err != nil {
				return nil, err
			}

			out := make([]map[string]any, 0, len(list))
			for _, s := range list {
				if !s.Active {
					continue
				}
				out = append(out, map[string]any{
					"id":               s.ID,
					"description":      s.Description,
					"interval_minutes": s.Interval.Minutes(),
					"next_run_at":      s.NextRunAt.UTC().Format(time.RFC3339),
					"active":           s.Active,
				})
			}

			return out, nil
		},
	)
}
