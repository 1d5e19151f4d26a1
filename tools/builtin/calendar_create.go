package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Menzorg/rugpt/calendar"
)

// CalendarCreateTool lets an agent schedule reminders for its own role.
// The caller identity comes from the invocation context; the tool
// refuses to run without one.
type CalendarCreateTool struct {
	Service *calendar.Service
}

func NewCalendarCreateTool(svc *calendar.Service) *CalendarCreateTool {
	return &CalendarCreateTool{Service: svc}
}

func (t *CalendarCreateTool) Name() string { return "calendar_create" }

func (t *CalendarCreateTool) Description() string {
	return "Create a calendar event or reminder. Use a one-time event with an ISO 8601 date, or a recurring event with a 5-field cron expression."
}

func (t *CalendarCreateTool) ParameterSchema() string {
	s := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title": map[string]any{
				"type":        "string",
				"description": "Short event title.",
			},
			"description": map[string]any{
				"type":        "string",
				"description": "Optional longer description.",
			},
			"date": map[string]any{
				"type":        "string",
				"description": "When to fire a one-time event, ISO 8601 (e.g. 2026-09-01T10:00:00Z).",
			},
			"cron": map[string]any{
				"type":        "string",
				"description": "5-field cron expression for a recurring event. Mutually exclusive with date.",
			},
		},
		"required": []string{"title"},
	}
	b, _ := json.MarshalIndent(s, "", "  ")
	return string(b)
}

func (t *CalendarCreateTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	inv, ok := InvocationFrom(ctx)
	if !ok {
		return "", fmt.Errorf("calendar_create requires an invocation context")
	}

	title := paramString(params, "title")
	if title == "" {
		return "", fmt.Errorf("missing required param: title")
	}
	description := paramString(params, "description")
	dateStr := paramString(params, "date")
	cronExpr := paramString(params, "cron")

	var (
		ev  *calendar.Event
		err error
	)
	switch {
	case cronExpr != "":
		ev, err = t.Service.CreateEvent(ctx, calendar.CreateParams{
			RoleID:          inv.RoleID,
			OrgID:           inv.OrgID,
			Title:           title,
			Description:     description,
			Kind:            calendar.Recurring,
			CronExpression:  cronExpr,
			SourceChatID:    inv.ChatID,
			SourceMessageID: inv.MessageID,
			CreatedByUserID: inv.UserID,
		})
	case dateStr != "":
		ev, err = t.Service.CreateFromToolCall(ctx, inv.RoleID, inv.OrgID, inv.UserID, title, description, dateStr)
	default:
		return "", fmt.Errorf("either date or cron is required")
	}
	if err != nil {
		return "", err
	}

	out := map[string]any{
		"event_id": ev.ID.String(),
		"kind":     string(ev.Kind),
		"title":    ev.Title,
	}
	if ev.NextTriggerAt != nil {
		out["next_trigger_at"] = ev.NextTriggerAt.UTC().Format(time.RFC3339)
	}
	b, _ := json.MarshalIndent(out, "", "  ")
	return string(b), nil
}
