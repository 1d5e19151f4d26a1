package builtin

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Menzorg/rugpt/calendar"
)

type memEventStore struct {
	mu     sync.Mutex
	events map[uuid.UUID]*calendar.Event
}

func newMemEventStore() *memEventStore {
	return &memEventStore{events: make(map[uuid.UUID]*calendar.Event)}
}

func (s *memEventStore) Create(_ context.Context, ev *calendar.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *ev
	s.events[ev.ID] = &cp
	return nil
}

func (s *memEventStore) Get(_ context.Context, id uuid.UUID) (*calendar.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok {
		return nil, calendar.ErrNotFound
	}
	cp := *ev
	return &cp, nil
}

func (s *memEventStore) ListByOrg(_ context.Context, orgID uuid.UUID, activeOnly bool) ([]*calendar.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*calendar.Event
	for _, ev := range s.events {
		if ev.OrgID != orgID || (activeOnly && !ev.IsActive) {
			continue
		}
		cp := *ev
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memEventStore) ListByRole(_ context.Context, roleID uuid.UUID, activeOnly bool) ([]*calendar.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*calendar.Event
	for _, ev := range s.events {
		if ev.RoleID != roleID || (activeOnly && !ev.IsActive) {
			continue
		}
		cp := *ev
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memEventStore) ListDue(_ context.Context, now time.Time) ([]*calendar.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*calendar.Event
	for _, ev := range s.events {
		if !ev.IsActive || ev.NextTriggerAt == nil || ev.NextTriggerAt.After(now) {
			continue
		}
		cp := *ev
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memEventStore) PersistTriggerUpdate(_ context.Context, ev *calendar.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.events[ev.ID]
	if !ok {
		return calendar.ErrNotFound
	}
	if !stored.IsActive || stored.TriggerCount != ev.TriggerCount-1 {
		return calendar.ErrAlreadyTriggered
	}
	cp := *ev
	s.events[ev.ID] = &cp
	return nil
}

func (s *memEventStore) Update(_ context.Context, ev *calendar.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[ev.ID]; !ok {
		return calendar.ErrNotFound
	}
	cp := *ev
	s.events[ev.ID] = &cp
	return nil
}

func (s *memEventStore) Deactivate(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok || !ev.IsActive {
		return false, nil
	}
	ev.IsActive = false
	return true, nil
}

func testInvocationCtx(roleID, orgID uuid.UUID) context.Context {
	return WithInvocation(context.Background(), Invocation{RoleID: roleID, OrgID: orgID})
}

func TestCalendarCreateOneTime(t *testing.T) {
	store := newMemEventStore()
	svc := calendar.NewService(store, nil)
	tool := NewCalendarCreateTool(svc)

	roleID, orgID := uuid.New(), uuid.New()
	out, err := tool.Execute(testInvocationCtx(roleID, orgID), map[string]any{
		"title": "Board meeting",
		"date":  "2026-09-15T10:00:00Z",
	})
	if err != nil {
		t.Fatal(err)
	}

	var decoded struct {
		EventID       string `json:"event_id"`
		Kind          string `json:"kind"`
		NextTriggerAt string `json:"next_trigger_at"`
	}
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Kind != "one_time" || decoded.NextTriggerAt != "2026-09-15T10:00:00Z" {
		t.Fatalf("unexpected output: %s", out)
	}

	id, _ := uuid.Parse(decoded.EventID)
	ev, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if ev.RoleID != roleID || ev.OrgID != orgID {
		t.Fatalf("event not bound to the invoking role: %#v", ev)
	}
}

func TestCalendarCreateRecurring(t *testing.T) {
	svc := calendar.NewService(newMemEventStore(), nil)
	tool := NewCalendarCreateTool(svc)

	out, err := tool.Execute(testInvocationCtx(uuid.New(), uuid.New()), map[string]any{
		"title": "Weekly sync",
		"cron":  "0 10 * * 1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"kind": "recurring"`) {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestCalendarCreateRejectsBadInput(t *testing.T) {
	svc := calendar.NewService(newMemEventStore(), nil)
	tool := NewCalendarCreateTool(svc)
	ctx := testInvocationCtx(uuid.New(), uuid.New())

	cases := []map[string]any{
		{"date": "2026-09-15T10:00:00Z"},
		{"title": "x"},
		{"title": "x", "date": "next tuesday"},
		{"title": "x", "cron": "not a cron"},
	}
	for i, params := range cases {
		if _, err := tool.Execute(ctx, params); err == nil {
			t.Fatalf("case %d: expected error for %v", i, params)
		}
	}

	// Missing invocation context is a hard error too.
	if _, err := tool.Execute(context.Background(), map[string]any{"title": "x", "cron": "0 10 * * 1"}); err == nil {
		t.Fatal("expected error without invocation context")
	}
}

func TestCalendarQueryScopes(t *testing.T) {
	store := newMemEventStore()
	svc := calendar.NewService(store, nil)
	createTool := NewCalendarCreateTool(svc)
	queryTool := NewCalendarQueryTool(svc)

	orgID := uuid.New()
	roleA, roleB := uuid.New(), uuid.New()

	if _, err := createTool.Execute(testInvocationCtx(roleA, orgID), map[string]any{"title": "A event", "cron": "0 9 * * *"}); err != nil {
		t.Fatal(err)
	}
	if _, err := createTool.Execute(testInvocationCtx(roleB, orgID), map[string]any{"title": "B event", "cron": "0 9 * * *"}); err != nil {
		t.Fatal(err)
	}

	out, err := queryTool.Execute(testInvocationCtx(roleA, orgID), map[string]any{})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"count": 1`) || !strings.Contains(out, "A event") {
		t.Fatalf("role scope wrong: %s", out)
	}

	out, err = queryTool.Execute(testInvocationCtx(roleA, orgID), map[string]any{"scope": "org"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"count": 2`) {
		t.Fatalf("org scope wrong: %s", out)
	}

	if _, err := queryTool.Execute(testInvocationCtx(roleA, orgID), map[string]any{"scope": "galaxy"}); err == nil {
		t.Fatal("expected error for unknown scope")
	}
}
