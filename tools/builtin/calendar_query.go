package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Menzorg/rugpt/calendar"
)

type CalendarQueryTool struct {
	Service *calendar.Service
}

func NewCalendarQueryTool(svc *calendar.Service) *CalendarQueryTool {
	return &CalendarQueryTool{Service: svc}
}

func (t *CalendarQueryTool) Name() string { return "calendar_query" }

func (t *CalendarQueryTool) Description() string {
	return "List upcoming calendar events. Scope is the calling role by default; pass scope=org to see all events of the organization."
}

func (t *CalendarQueryTool) ParameterSchema() string {
	s := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"scope": map[string]any{
				"type":        "string",
				"description": "role|org (default: role).",
			},
			"limit": map[string]any{
				"type":        "integer",
				"description": "Max events to return (default: 20).",
			},
		},
	}
	b, _ := json.MarshalIndent(s, "", "  ")
	return string(b)
}

type calendarQueryItem struct {
	EventID       string `json:"event_id"`
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	Kind          string `json:"kind"`
	Cron          string `json:"cron,omitempty"`
	NextTriggerAt string `json:"next_trigger_at,omitempty"`
}

func (t *CalendarQueryTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	inv, ok := InvocationFrom(ctx)
	if !ok {
		return "", fmt.Errorf("calendar_query requires an invocation context")
	}

	limit := parseIntDefault(params["limit"], 20)
	if limit <= 0 {
		limit = 20
	}

	var (
		events []*calendar.Event
		err    error
	)
	switch strings.ToLower(paramString(params, "scope")) {
	case "", "role":
		events, err = t.Service.ListByRole(ctx, inv.RoleID, true)
	case "org":
		events, err = t.Service.ListByOrg(ctx, inv.OrgID, true)
	default:
		return "", fmt.Errorf("scope must be role or org")
	}
	if err != nil {
		return "", err
	}
	if len(events) > limit {
		events = events[:limit]
	}

	items := make([]calendarQueryItem, 0, len(events))
	for _, ev := range events {
		item := calendarQueryItem{
			EventID:     ev.ID.String(),
			Title:       ev.Title,
			Description: ev.Description,
			Kind:        string(ev.Kind),
			Cron:        ev.CronExpression,
		}
		if ev.NextTriggerAt != nil {
			item.NextTriggerAt = ev.NextTriggerAt.UTC().Format(time.RFC3339)
		}
		items = append(items, item)
	}

	b, _ := json.MarshalIndent(map[string]any{
		"count":  len(items),
		"events": items,
	}, "", "  ")
	return string(b), nil
}
