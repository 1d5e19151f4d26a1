package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Menzorg/rugpt/agent"
	"github.com/Menzorg/rugpt/calendar"
	"github.com/Menzorg/rugpt/internal/metrics"
	"github.com/Menzorg/rugpt/llm"
	"github.com/Menzorg/rugpt/notify"
	"github.com/Menzorg/rugpt/roles"
	"github.com/Menzorg/rugpt/tools/builtin"
)

type State string

const (
	StateStopped  State = "stopped"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

// Executor is the slice of the agent executor the scheduler needs.
type Executor interface {
	Execute(ctx context.Context, role *roles.Role, messages []llm.Message, opts agent.Options) (*agent.Result, error)
}

type Option func(*Scheduler)

func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithConcurrency(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Scheduler) {
		if log != nil {
			s.log = log
		}
	}
}

// Scheduler runs one background loop that polls for due calendar
// events and turns each into a notification. Exactly one instance may
// run against a store; two instances would double-trigger events.
type Scheduler struct {
	events   *calendar.Service
	roles    roles.Store
	executor Executor
	notifier *notify.Service

	interval    time.Duration
	concurrency int
	log         *slog.Logger
	now         func() time.Time

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
}

func New(events *calendar.Service, roleStore roles.Store, executor Executor, notifier *notify.Service, opts ...Option) *Scheduler {
	s := &Scheduler{
		events:      events,
		roles:       roleStore,
		executor:    executor,
		notifier:    notifier,
		interval:    time.Minute,
		concurrency: 2,
		log:         slog.Default(),
		now:         time.Now,
		state:       StateStopped,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start spawns the polling loop. Starting an already running
// scheduler is an error.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateStopped {
		return fmt.Errorf("scheduler is %s, not stopped", s.state)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.state = StateRunning

	go s.run(loopCtx)
	s.log.Info("scheduler_started", "interval", s.interval.String(), "concurrency", s.concurrency)
	return nil
}

// Stop signals cancellation and waits for the loop to exit. The
// passed context bounds how long Stop itself waits.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return nil
	}
	s.state = StateStopping
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()
	s.log.Info("scheduler_stopped")
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cycle(ctx)
		}
	}
}

// cycle processes every currently due event. Per-event failures are
// logged and never halt the cycle.
func (s *Scheduler) cycle(ctx context.Context) {
	started := s.now()
	now := started.UTC()

	due, err := s.events.DueEvents(ctx, now)
	if err != nil {
		s.log.Error("scheduler_list_due_error", "error", err.Error())
		return
	}
	if len(due) == 0 {
		metrics.RecordSchedulerCycle(s.now().Sub(started).Seconds())
		return
	}
	s.log.Info("scheduler_cycle", "due_events", len(due))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, ev := range due {
		ev := ev
		g.Go(func() error {
			if err := s.processEvent(gctx, ev, now); err != nil {
				s.log.Error("scheduler_event_error", "event_id", ev.ID.String(), "error", err.Error())
			}
			return nil
		})
	}
	_ = g.Wait()
	metrics.RecordSchedulerCycle(s.now().Sub(started).Seconds())
}

// processEvent marks the event triggered before anything else. A
// crash after marking loses at most one notification; it never
// duplicates one.
func (s *Scheduler) processEvent(ctx context.Context, ev *calendar.Event, now time.Time) error {
	if err := s.events.MarkTriggered(ctx, ev, now); err != nil {
		if errors.Is(err, calendar.ErrAlreadyTriggered) {
			s.log.Debug("event_already_claimed", "event_id", ev.ID.String())
			return nil
		}
		return fmt.Errorf("mark triggered: %w", err)
	}
	metrics.RecordEventTriggered(string(ev.Kind))

	content := s.composeNotification(ctx, ev)

	if ev.CreatedByUserID == nil {
		s.log.Warn("event_has_no_recipient", "event_id", ev.ID.String())
		return nil
	}
	eventID := ev.ID
	roleID := ev.RoleID
	delivered, err := s.notifier.SendNotification(ctx, *ev.CreatedByUserID, content, notify.Ref{
		EventID: &eventID,
		RoleID:  &roleID,
	})
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	if !delivered {
		s.log.Warn("event_notification_undelivered", "event_id", ev.ID.String())
	}
	return nil
}

// composeNotification asks the event's role to write the message and
// falls back to a plain template when generation fails, so a broken
// model never silences a reminder.
func (s *Scheduler) composeNotification(ctx context.Context, ev *calendar.Event) string {
	fallback := fmt.Sprintf("Reminder: %s", ev.Title)
	if ev.Description != "" {
		fallback += "\n" + ev.Description
	}

	role, err := s.roles.Get(ctx, ev.RoleID)
	if err != nil {
		s.log.Warn("event_role_unavailable", "event_id", ev.ID.String(), "role_id", ev.RoleID.String(), "error", err.Error())
		return fallback
	}
	if !role.IsActive {
		s.log.Warn("event_role_inactive", "event_id", ev.ID.String(), "role_id", ev.RoleID.String())
		return fallback
	}

	prompt := fmt.Sprintf(
		"Calendar event fired: %q.", ev.Title)
	if ev.Description != "" {
		prompt += fmt.Sprintf(" Details: %s.", ev.Description)
	}
	prompt += " Compose a short notification message for the user about this event."

	execCtx := builtin.WithInvocation(ctx, builtin.Invocation{
		RoleID: role.ID,
		OrgID:  role.OrgID,
		UserID: ev.CreatedByUserID,
	})
	res, err := s.executor.Execute(execCtx, role, []llm.Message{{Role: "user", Content: prompt}}, agent.Options{})
	if err != nil {
		s.log.Warn("event_compose_config_error", "event_id", ev.ID.String(), "error", err.Error())
		return fallback
	}
	if res.FinishReason != agent.FinishStop || res.Content == "" {
		s.log.Warn("event_compose_failed", "event_id", ev.ID.String(), "finish_reason", string(res.FinishReason), "error", res.Error)
		return fallback
	}
	return res.Content
}
