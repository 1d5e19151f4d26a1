package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Five-field POSIX cron: minute, hour, day-of-month, month,
// day-of-week. Evaluated in UTC for determinism.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateCron reports whether expr is a well-formed five-field cron
// expression.
func ValidateCron(expr string) error {
	_, err := cronParser.Parse(expr)
	return err
}

// NextCronTime returns the earliest instant matching expr strictly
// after the given time, in UTC.
func NextCronTime(expr string, after time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return sched.Next(after.UTC()), nil
}

// Service owns calendar event lifecycle and trigger bookkeeping.
type Service struct {
	store Store
	log   *slog.Logger
	now   func() time.Time
}

func NewService(store Store, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, log: log, now: time.Now}
}

type CreateParams struct {
	RoleID      uuid.UUID
	OrgID       uuid.UUID
	Title       string
	Description string
	Kind        EventKind

	ScheduledAt    *time.Time
	CronExpression string

	SourceChatID    *uuid.UUID
	SourceMessageID *uuid.UUID
	CreatedByUserID *uuid.UUID
	Metadata        map[string]string
}

// CreateEvent validates and persists a new event with its first
// NextTriggerAt precomputed.
func (s *Service) CreateEvent(ctx context.Context, p CreateParams) (*Event, error) {
	switch p.Kind {
	case OneTime:
		if p.ScheduledAt == nil {
			return nil, fmt.Errorf("scheduled_at is required for one_time events")
		}
	case Recurring:
		if p.CronExpression == "" {
			return nil, fmt.Errorf("cron_expression is required for recurring events")
		}
		if err := ValidateCron(p.CronExpression); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown event kind %q", p.Kind)
	}

	var next time.Time
	if p.Kind == OneTime {
		next = p.ScheduledAt.UTC()
	} else {
		n, err := NextCronTime(p.CronExpression, s.now())
		if err != nil {
			return nil, err
		}
		next = n
	}

	now := s.now().UTC()
	ev := &Event{
		ID:              uuid.New(),
		RoleID:          p.RoleID,
		OrgID:           p.OrgID,
		Title:           p.Title,
		Description:     p.Description,
		Kind:            p.Kind,
		ScheduledAt:     p.ScheduledAt,
		CronExpression:  p.CronExpression,
		NextTriggerAt:   &next,
		SourceChatID:    p.SourceChatID,
		SourceMessageID: p.SourceMessageID,
		CreatedByUserID: p.CreatedByUserID,
		Metadata:        p.Metadata,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.Create(ctx, ev); err != nil {
		return nil, err
	}
	s.log.Info("event_created",
		"event_id", ev.ID.String(),
		"kind", string(ev.Kind),
		"title", ev.Title,
		"next_trigger_at", next.Format(time.RFC3339),
	)
	return ev, nil
}

// CreateFromToolCall creates a one_time event from an agent tool call.
// An unparseable date is kept in metadata rather than dropped.
func (s *Service) CreateFromToolCall(ctx context.Context, roleID, orgID uuid.UUID, userID *uuid.UUID, title, description, dateStr string) (*Event, error) {
	meta := map[string]string{"original_date_str": dateStr}
	at, err := time.Parse(time.RFC3339, dateStr)
	if err != nil {
		// Second chance without timezone, common in model output.
		at, err = time.Parse("2006-01-02T15:04:05", dateStr)
	}
	if err != nil {
		s.log.Warn("event_date_unparseable", "date", dateStr)
		return nil, fmt.Errorf("unparseable date %q", dateStr)
	}
	return s.CreateEvent(ctx, CreateParams{
		RoleID:          roleID,
		OrgID:           orgID,
		Title:           title,
		Description:     description,
		Kind:            OneTime,
		ScheduledAt:     &at,
		CreatedByUserID: userID,
		Metadata:        meta,
	})
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Event, error) {
	return s.store.Get(ctx, id)
}

// UpdateParams carries the mutable fields of an event. Nil pointers
// leave the current value untouched.
type UpdateParams struct {
	Title          *string
	Description    *string
	ScheduledAt    *time.Time
	CronExpression *string
}

// UpdateEvent applies p to an existing event. A schedule change
// recomputes NextTriggerAt against the event's kind.
func (s *Service) UpdateEvent(ctx context.Context, id uuid.UUID, p UpdateParams) (*Event, error) {
	ev, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Title != nil {
		ev.Title = *p.Title
	}
	if p.Description != nil {
		ev.Description = *p.Description
	}
	if p.ScheduledAt != nil {
		if ev.Kind != OneTime {
			return nil, fmt.Errorf("scheduled_at only applies to one_time events")
		}
		at := p.ScheduledAt.UTC()
		ev.ScheduledAt = &at
		ev.NextTriggerAt = &at
	}
	if p.CronExpression != nil {
		if ev.Kind != Recurring {
			return nil, fmt.Errorf("cron_expression only applies to recurring events")
		}
		if err := ValidateCron(*p.CronExpression); err != nil {
			return nil, err
		}
		ev.CronExpression = *p.CronExpression
		next, err := NextCronTime(ev.CronExpression, s.now())
		if err != nil {
			return nil, err
		}
		ev.NextTriggerAt = &next
	}
	ev.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, ev); err != nil {
		return nil, err
	}
	s.log.Info("event_updated", "event_id", ev.ID.String())
	return ev, nil
}

func (s *Service) ListByOrg(ctx context.Context, orgID uuid.UUID, activeOnly bool) ([]*Event, error) {
	return s.store.ListByOrg(ctx, orgID, activeOnly)
}

func (s *Service) ListByRole(ctx context.Context, roleID uuid.UUID, activeOnly bool) ([]*Event, error) {
	return s.store.ListByRole(ctx, roleID, activeOnly)
}

func (s *Service) DueEvents(ctx context.Context, now time.Time) ([]*Event, error) {
	return s.store.ListDue(ctx, now)
}

func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.store.Deactivate(ctx, id)
}

// MarkTriggered records one firing of ev: increments TriggerCount and
// sets LastTriggeredAt; one_time events are deactivated, recurring
// events get a fresh NextTriggerAt strictly after now. The persisted
// update is atomic per event; a concurrent claimer surfaces as
// ErrAlreadyTriggered.
func (s *Service) MarkTriggered(ctx context.Context, ev *Event, now time.Time) error {
	now = now.UTC()
	updated := *ev
	updated.TriggerCount = ev.TriggerCount + 1
	updated.LastTriggeredAt = &now
	updated.UpdatedAt = now

	if ev.Kind == Recurring && ev.CronExpression != "" {
		next, err := NextCronTime(ev.CronExpression, now)
		if err != nil {
			return err
		}
		updated.NextTriggerAt = &next
	} else {
		updated.IsActive = false
		updated.NextTriggerAt = nil
	}

	if err := s.store.PersistTriggerUpdate(ctx, &updated); err != nil {
		return err
	}
	*ev = updated

	if ev.Kind == Recurring {
		s.log.Info("event_triggered",
			"event_id", ev.ID.String(),
			"title", ev.Title,
			"trigger_count", ev.TriggerCount,
			"next_trigger_at", ev.NextTriggerAt.Format(time.RFC3339),
		)
	} else {
		s.log.Info("event_triggered_final",
			"event_id", ev.ID.String(),
			"title", ev.Title,
		)
	}
	return nil
}
