package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Menzorg/rugpt/calendar"
	"github.com/Menzorg/rugpt/notify"
	"github.com/Menzorg/rugpt/roles"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMigrationsApply(t *testing.T) {
	s := openTestStore(t)
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count == 0 {
		t.Fatal("no migrations recorded")
	}
	// Re-running migrate is a no-op.
	if err := s.migrate(); err != nil {
		t.Fatal(err)
	}
}

func testEvent(userID *uuid.UUID) *calendar.Event {
	now := time.Now().UTC().Truncate(time.Millisecond)
	next := now.Add(time.Hour)
	return &calendar.Event{
		ID:              uuid.New(),
		RoleID:          uuid.New(),
		OrgID:           uuid.New(),
		Title:           "Standup",
		Description:     "daily sync",
		Kind:            calendar.Recurring,
		CronExpression:  "0 10 * * *",
		NextTriggerAt:   &next,
		CreatedByUserID: userID,
		Metadata:        map[string]string{"origin": "test"},
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestEventRoundTrip(t *testing.T) {
	s := openTestStore(t)
	es := s.Events()
	ctx := context.Background()

	userID := uuid.New()
	ev := testEvent(&userID)
	if err := es.Create(ctx, ev); err != nil {
		t.Fatal(err)
	}

	got, err := es.Get(ctx, ev.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != ev.Title || got.Kind != ev.Kind || got.CronExpression != ev.CronExpression {
		t.Fatalf("got %#v", got)
	}
	if got.NextTriggerAt == nil || !got.NextTriggerAt.Equal(*ev.NextTriggerAt) {
		t.Fatalf("next trigger = %v, want %v", got.NextTriggerAt, ev.NextTriggerAt)
	}
	if got.CreatedByUserID == nil || *got.CreatedByUserID != userID {
		t.Fatalf("created by = %v", got.CreatedByUserID)
	}
	if got.Metadata["origin"] != "test" {
		t.Fatalf("metadata = %v", got.Metadata)
	}

	if _, err := es.Get(ctx, uuid.New()); !errors.Is(err, calendar.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListDueBoundary(t *testing.T) {
	s := openTestStore(t)
	es := s.Events()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	past := testEvent(nil)
	pastAt := now.Add(-time.Minute)
	past.NextTriggerAt = &pastAt
	future := testEvent(nil)
	futureAt := now.Add(time.Minute)
	future.NextTriggerAt = &futureAt
	inactive := testEvent(nil)
	inactive.NextTriggerAt = &pastAt
	inactive.IsActive = false

	for _, ev := range []*calendar.Event{past, future, inactive} {
		if err := es.Create(ctx, ev); err != nil {
			t.Fatal(err)
		}
	}

	due, err := es.ListDue(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 1 || due[0].ID != past.ID {
		t.Fatalf("due = %v", due)
	}
}

func TestListDueMixedSubsecondPrecision(t *testing.T) {
	s := openTestStore(t)
	es := s.Events()
	ctx := context.Background()

	// A whole-second trigger must compare as due against a now that
	// carries nanoseconds within the same second.
	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	ev := testEvent(nil)
	ev.NextTriggerAt = &at
	if err := es.Create(ctx, ev); err != nil {
		t.Fatal(err)
	}

	due, err := es.ListDue(ctx, at.Add(123456*time.Nanosecond))
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 1 || due[0].ID != ev.ID {
		t.Fatalf("event not detected in its own second: %v", due)
	}

	// And a fractional trigger is not due before its instant.
	frac := testEvent(nil)
	fracAt := at.Add(500 * time.Millisecond)
	frac.NextTriggerAt = &fracAt
	if err := es.Create(ctx, frac); err != nil {
		t.Fatal(err)
	}
	due, err = es.ListDue(ctx, at)
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 1 || due[0].ID != ev.ID {
		t.Fatalf("fractional trigger listed early: %v", due)
	}
}

func TestPersistTriggerUpdateGuards(t *testing.T) {
	s := openTestStore(t)
	es := s.Events()
	ctx := context.Background()

	ev := testEvent(nil)
	if err := es.Create(ctx, ev); err != nil {
		t.Fatal(err)
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	next := now.Add(24 * time.Hour)
	updated := *ev
	updated.TriggerCount = 1
	updated.LastTriggeredAt = &now
	updated.NextTriggerAt = &next
	updated.UpdatedAt = now

	if err := es.PersistTriggerUpdate(ctx, &updated); err != nil {
		t.Fatal(err)
	}

	// A second writer holding the stale snapshot loses.
	stale := *ev
	stale.TriggerCount = 1
	stale.LastTriggeredAt = &now
	stale.UpdatedAt = now
	if err := es.PersistTriggerUpdate(ctx, &stale); !errors.Is(err, calendar.ErrAlreadyTriggered) {
		t.Fatalf("expected ErrAlreadyTriggered, got %v", err)
	}

	missing := *ev
	missing.ID = uuid.New()
	missing.TriggerCount = 1
	if err := es.PersistTriggerUpdate(ctx, &missing); !errors.Is(err, calendar.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeactivateEvent(t *testing.T) {
	s := openTestStore(t)
	es := s.Events()
	ctx := context.Background()

	ev := testEvent(nil)
	if err := es.Create(ctx, ev); err != nil {
		t.Fatal(err)
	}

	ok, err := es.Deactivate(ctx, ev.ID)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	// Second deactivate reports false.
	ok, err = es.Deactivate(ctx, ev.ID)
	if err != nil || ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}

	due, err := es.ListDue(ctx, time.Now().UTC().Add(48*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 0 {
		t.Fatal("deactivated event still listed as due")
	}
}

func TestChannelUpsertAndOrdering(t *testing.T) {
	s := openTestStore(t)
	cs := s.Channels()
	ctx := context.Background()
	userID := uuid.New()
	now := time.Now().UTC()

	for _, c := range []struct {
		kind     notify.ChannelKind
		priority int
	}{
		{notify.ChannelEmail, 1},
		{notify.ChannelTelegram, 10},
	} {
		err := cs.Upsert(ctx, &notify.Channel{
			ID: uuid.New(), UserID: userID, Kind: c.kind,
			Config: map[string]string{"k": "v"}, Priority: c.priority,
			IsEnabled: true, CreatedAt: now, UpdatedAt: now,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	chans, err := cs.ListEnabledByUser(ctx, userID)
	if err != nil {
		t.Fatal(err)
	}
	if len(chans) != 2 || chans[0].Kind != notify.ChannelTelegram {
		t.Fatalf("channels = %v", chans)
	}

	// Upsert on the same (user, kind) replaces, not duplicates.
	err = cs.Upsert(ctx, &notify.Channel{
		ID: uuid.New(), UserID: userID, Kind: notify.ChannelTelegram,
		Config: map[string]string{"chat_id": "7"}, Priority: 10,
		IsEnabled: true, CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatal(err)
	}
	chans, err = cs.ListEnabledByUser(ctx, userID)
	if err != nil {
		t.Fatal(err)
	}
	if len(chans) != 2 || chans[0].Config["chat_id"] != "7" {
		t.Fatalf("channels after upsert = %v", chans)
	}

	if err := cs.SetVerified(ctx, userID, notify.ChannelTelegram, true); err != nil {
		t.Fatal(err)
	}
	if err := cs.SetEnabled(ctx, userID, notify.ChannelEmail, false); err != nil {
		t.Fatal(err)
	}
	chans, err = cs.ListEnabledByUser(ctx, userID)
	if err != nil {
		t.Fatal(err)
	}
	if len(chans) != 1 || !chans[0].IsVerified {
		t.Fatalf("channels after flags = %v", chans)
	}

	if err := cs.SetVerified(ctx, uuid.New(), notify.ChannelEmail, true); !errors.Is(err, notify.ErrChannelNotFound) {
		t.Fatalf("expected ErrChannelNotFound, got %v", err)
	}

	if err := cs.Delete(ctx, userID, notify.ChannelEmail); err != nil {
		t.Fatal(err)
	}
	if err := cs.Delete(ctx, userID, notify.ChannelEmail); !errors.Is(err, notify.ErrChannelNotFound) {
		t.Fatalf("second delete: expected ErrChannelNotFound, got %v", err)
	}
	all, err := cs.ListByUser(ctx, userID)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("channels after delete = %v", all)
	}
}

func TestLogStatusTransition(t *testing.T) {
	s := openTestStore(t)
	ls := s.Logs()
	ctx := context.Background()
	userID := uuid.New()
	eventID := uuid.New()

	entry := &notify.LogEntry{
		ID:        uuid.New(),
		UserID:    userID,
		Kind:      notify.ChannelTelegram,
		EventID:   &eventID,
		Content:   "reminder text",
		Status:    notify.StatusPending,
		Attempts:  1,
		CreatedAt: time.Now().UTC(),
	}
	if err := ls.Append(ctx, entry); err != nil {
		t.Fatal(err)
	}
	if err := ls.UpdateStatus(ctx, entry.ID, notify.StatusFailed, "bot blocked"); err != nil {
		t.Fatal(err)
	}
	// pending -> sent|failed happens once; further transitions fail.
	if err := ls.UpdateStatus(ctx, entry.ID, notify.StatusSent, ""); err == nil {
		t.Fatal("expected error on double transition")
	}

	recent, err := ls.RecentByUser(ctx, userID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 {
		t.Fatalf("recent = %v", recent)
	}
	got := recent[0]
	if got.Status != notify.StatusFailed || got.ErrorMessage != "bot blocked" {
		t.Fatalf("entry = %#v", got)
	}
	if got.EventID == nil || *got.EventID != eventID {
		t.Fatalf("event id = %v", got.EventID)
	}
}

func TestRoleRoundTrip(t *testing.T) {
	s := openTestStore(t)
	rs := s.Roles()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	cfg, _ := json.Marshal(map[string]any{"steps": []map[string]string{{"instruction": "analyze"}}})
	role := &roles.Role{
		ID:             uuid.New(),
		OrgID:          uuid.New(),
		Name:           "Lawyer",
		Code:           "lawyer",
		AgentKind:      roles.AgentChain,
		ModelName:      "llama3",
		ToolNames:      []string{"web_search", "calendar_create"},
		FallbackPrompt: "You are a corporate lawyer.",
		AgentConfig:    cfg,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := rs.Upsert(ctx, role); err != nil {
		t.Fatal(err)
	}

	got, err := rs.Get(ctx, role.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Code != "lawyer" || got.AgentKind != roles.AgentChain || len(got.ToolNames) != 2 {
		t.Fatalf("role = %#v", got)
	}
	if string(got.AgentConfig) != string(cfg) {
		t.Fatalf("agent config = %s", got.AgentConfig)
	}

	byCode, err := rs.GetByCode(ctx, role.OrgID, "lawyer")
	if err != nil {
		t.Fatal(err)
	}
	if byCode.ID != role.ID {
		t.Fatalf("by code = %v", byCode.ID)
	}

	// Upsert by (org, code) updates in place.
	role.ModelName = "llama3.1"
	if err := rs.Upsert(ctx, role); err != nil {
		t.Fatal(err)
	}
	all, err := rs.ListByOrg(ctx, role.OrgID)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].ModelName != "llama3.1" {
		t.Fatalf("roles = %v", all)
	}

	if _, err := rs.GetByCode(ctx, role.OrgID, "nobody"); !errors.Is(err, roles.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
