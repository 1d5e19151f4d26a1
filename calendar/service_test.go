package calendar

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

type memStore struct {
	events map[uuid.UUID]*Event
	// persistErr, when set, is returned by PersistTriggerUpdate once.
	persistErr error
}

func newMemStore() *memStore {
	return &memStore{events: make(map[uuid.UUID]*Event)}
}

func (m *memStore) Create(_ context.Context, ev *Event) error {
	cp := *ev
	m.events[ev.ID] = &cp
	return nil
}

func (m *memStore) Get(_ context.Context, id uuid.UUID) (*Event, error) {
	ev, ok := m.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *ev
	return &cp, nil
}

func (m *memStore) ListByOrg(_ context.Context, orgID uuid.UUID, activeOnly bool) ([]*Event, error) {
	var out []*Event
	for _, ev := range m.events {
		if ev.OrgID == orgID && (!activeOnly || ev.IsActive) {
			cp := *ev
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) ListByRole(_ context.Context, roleID uuid.UUID, activeOnly bool) ([]*Event, error) {
	var out []*Event
	for _, ev := range m.events {
		if ev.RoleID == roleID && (!activeOnly || ev.IsActive) {
			cp := *ev
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) ListDue(_ context.Context, now time.Time) ([]*Event, error) {
	var out []*Event
	for _, ev := range m.events {
		if ev.IsActive && ev.NextTriggerAt != nil && !ev.NextTriggerAt.After(now) {
			cp := *ev
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) PersistTriggerUpdate(_ context.Context, ev *Event) error {
	if m.persistErr != nil {
		err := m.persistErr
		m.persistErr = nil
		return err
	}
	stored, ok := m.events[ev.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.TriggerCount != ev.TriggerCount-1 || !stored.IsActive {
		return ErrAlreadyTriggered
	}
	cp := *ev
	m.events[ev.ID] = &cp
	return nil
}

func (m *memStore) Update(_ context.Context, ev *Event) error {
	cp := *ev
	m.events[ev.ID] = &cp
	return nil
}

func (m *memStore) Deactivate(_ context.Context, id uuid.UUID) (bool, error) {
	ev, ok := m.events[id]
	if !ok {
		return false, nil
	}
	ev.IsActive = false
	return true, nil
}

func mustUTC(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatal(err)
	}
	return ts.UTC()
}

func TestNextCronTime_MondayAfterTuesday(t *testing.T) {
	// 2025-03-04 is a Tuesday. "0 10 * * 1" must yield next Monday
	// 10:00, not anything in the same week before it.
	after := mustUTC(t, "2025-03-04T10:00:00Z")
	next, err := NextCronTime("0 10 * * 1", after)
	if err != nil {
		t.Fatal(err)
	}
	want := mustUTC(t, "2025-03-10T10:00:00Z")
	if !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}
}

func TestNextCronTime_StrictlyAfter(t *testing.T) {
	after := mustUTC(t, "2025-03-10T10:00:00Z") // exactly Monday 10:00
	next, err := NextCronTime("0 10 * * 1", after)
	if err != nil {
		t.Fatal(err)
	}
	if !next.After(after) {
		t.Fatalf("next trigger %v must be strictly after %v", next, after)
	}
}

func TestCreateEvent_Validation(t *testing.T) {
	svc := NewService(newMemStore(), nil)
	ctx := context.Background()

	if _, err := svc.CreateEvent(ctx, CreateParams{Kind: OneTime, Title: "x"}); err == nil {
		t.Fatalf("one_time without scheduled_at must fail")
	}
	if _, err := svc.CreateEvent(ctx, CreateParams{Kind: Recurring, Title: "x"}); err == nil {
		t.Fatalf("recurring without cron must fail")
	}
	if _, err := svc.CreateEvent(ctx, CreateParams{Kind: Recurring, Title: "x", CronExpression: "not a cron"}); err == nil {
		t.Fatalf("invalid cron must fail")
	}
}

func TestUpdateEvent(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, nil)
	ctx := context.Background()

	at := mustUTC(t, "2025-03-04T09:00:00Z")
	ev, err := svc.CreateEvent(ctx, CreateParams{
		Kind: OneTime, Title: "deadline", ScheduledAt: &at,
		RoleID: uuid.New(), OrgID: uuid.New(),
	})
	if err != nil {
		t.Fatal(err)
	}

	title := "deadline moved"
	later := mustUTC(t, "2025-03-05T10:00:00Z")
	got, err := svc.UpdateEvent(ctx, ev.ID, UpdateParams{Title: &title, ScheduledAt: &later})
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "deadline moved" {
		t.Fatalf("title = %q", got.Title)
	}
	if got.NextTriggerAt == nil || !got.NextTriggerAt.Equal(later) {
		t.Fatalf("next trigger = %v, want %v", got.NextTriggerAt, later)
	}

	cron := "0 9 * * 1"
	if _, err := svc.UpdateEvent(ctx, ev.ID, UpdateParams{CronExpression: &cron}); err == nil {
		t.Fatalf("cron update on one_time event must fail")
	}
	if _, err := svc.UpdateEvent(ctx, uuid.New(), UpdateParams{Title: &title}); err == nil {
		t.Fatalf("update of missing event must fail")
	}
}

func TestMarkTriggered_OneTimeDeactivates(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, nil)
	ctx := context.Background()

	at := mustUTC(t, "2025-03-04T09:00:00Z")
	ev, err := svc.CreateEvent(ctx, CreateParams{
		Kind: OneTime, Title: "deadline", ScheduledAt: &at,
		RoleID: uuid.New(), OrgID: uuid.New(),
	})
	if err != nil {
		t.Fatal(err)
	}

	now := mustUTC(t, "2025-03-04T09:00:30Z")
	if err := svc.MarkTriggered(ctx, ev, now); err != nil {
		t.Fatal(err)
	}
	if ev.IsActive {
		t.Fatalf("one_time event must be inactive after trigger")
	}
	if ev.NextTriggerAt != nil {
		t.Fatalf("one_time event must have nil next trigger after firing")
	}
	if ev.TriggerCount != 1 {
		t.Fatalf("trigger_count = %d, want 1", ev.TriggerCount)
	}

	// Never due again.
	due, err := svc.DueEvents(ctx, now.Add(24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 0 {
		t.Fatalf("fired one_time event must not reappear in due list")
	}
}

func TestMarkTriggered_RecurringRecomputes(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, nil)
	ctx := context.Background()

	ev, err := svc.CreateEvent(ctx, CreateParams{
		Kind: Recurring, Title: "weekly sync", CronExpression: "0 10 * * 1",
		RoleID: uuid.New(), OrgID: uuid.New(),
	})
	if err != nil {
		t.Fatal(err)
	}

	now := mustUTC(t, "2025-03-10T10:00:05Z")
	if err := svc.MarkTriggered(ctx, ev, now); err != nil {
		t.Fatal(err)
	}
	if !ev.IsActive {
		t.Fatalf("recurring event must stay active")
	}
	if ev.NextTriggerAt == nil || !ev.NextTriggerAt.After(now) {
		t.Fatalf("next trigger %v must be strictly after now %v", ev.NextTriggerAt, now)
	}
	want := mustUTC(t, "2025-03-17T10:00:00Z")
	if !ev.NextTriggerAt.Equal(want) {
		t.Fatalf("next trigger = %v, want %v", ev.NextTriggerAt, want)
	}
	if ev.LastTriggeredAt == nil || !ev.NextTriggerAt.After(*ev.LastTriggeredAt) {
		t.Fatalf("next trigger must be after last triggered")
	}
}

func TestMarkTriggered_ConcurrentClaim(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, nil)
	ctx := context.Background()

	at := mustUTC(t, "2025-03-04T09:00:00Z")
	ev, err := svc.CreateEvent(ctx, CreateParams{
		Kind: OneTime, Title: "once", ScheduledAt: &at,
		RoleID: uuid.New(), OrgID: uuid.New(),
	})
	if err != nil {
		t.Fatal(err)
	}

	// Two pollers read the same snapshot.
	first := *ev
	second := *ev

	now := at.Add(time.Minute)
	if err := svc.MarkTriggered(ctx, &first, now); err != nil {
		t.Fatal(err)
	}
	if err := svc.MarkTriggered(ctx, &second, now); err != ErrAlreadyTriggered {
		t.Fatalf("second claim: got %v, want ErrAlreadyTriggered", err)
	}
}

func TestCreateFromToolCall(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, nil)
	ctx := context.Background()

	ev, err := svc.CreateFromToolCall(ctx, uuid.New(), uuid.New(), nil, "board meeting", "", "2025-06-01T15:00:00")
	if err != nil {
		t.Fatal(err)
	}
	if ev.Kind != OneTime || ev.ScheduledAt == nil {
		t.Fatalf("expected scheduled one_time event, got %#v", ev)
	}
	if ev.Metadata["original_date_str"] != "2025-06-01T15:00:00" {
		t.Fatalf("original date string must be kept in metadata")
	}

	if _, err := svc.CreateFromToolCall(ctx, uuid.New(), uuid.New(), nil, "vague", "", "next Tuesday"); err == nil {
		t.Fatalf("unparseable date must fail")
	}
}
