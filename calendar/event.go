package calendar

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("calendar event not found")
	// ErrAlreadyTriggered reports that a concurrent poller claimed the
	// event first; the trigger update was not applied.
	ErrAlreadyTriggered = errors.New("calendar event already triggered")
)

type EventKind string

const (
	OneTime   EventKind = "one_time"
	Recurring EventKind = "recurring"
)

// Event is a scheduled trigger tied to a role.
//
// one_time events fire once at ScheduledAt and are then deactivated.
// recurring events fire on CronExpression; NextTriggerAt is always
// precomputed and drives due-detection.
type Event struct {
	ID     uuid.UUID
	RoleID uuid.UUID
	OrgID  uuid.UUID

	Title       string
	Description string
	Kind        EventKind

	ScheduledAt     *time.Time
	CronExpression  string
	NextTriggerAt   *time.Time
	LastTriggeredAt *time.Time
	TriggerCount    int

	SourceChatID    *uuid.UUID
	SourceMessageID *uuid.UUID
	CreatedByUserID *uuid.UUID
	Metadata        map[string]string

	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Store interface {
	Create(ctx context.Context, ev *Event) error
	Get(ctx context.Context, id uuid.UUID) (*Event, error)
	ListByOrg(ctx context.Context, orgID uuid.UUID, activeOnly bool) ([]*Event, error)
	ListByRole(ctx context.Context, roleID uuid.UUID, activeOnly bool) ([]*Event, error)
	// ListDue returns active events with NextTriggerAt <= now.
	ListDue(ctx context.Context, now time.Time) ([]*Event, error)
	// PersistTriggerUpdate applies the trigger bookkeeping of ev
	// atomically. ev.TriggerCount carries the new count; the update
	// must fail with ErrAlreadyTriggered when another writer got
	// there first.
	PersistTriggerUpdate(ctx context.Context, ev *Event) error
	Update(ctx context.Context, ev *Event) error
	Deactivate(ctx context.Context, id uuid.UUID) (bool, error)
}
