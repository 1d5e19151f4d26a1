package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Menzorg/rugpt/internal/metrics"
)

// Ref ties a delivery back to what produced it.
type Ref struct {
	EventID *uuid.UUID
	RoleID  *uuid.UUID
}

// Service sends a payload to a user over their channels in priority
// order, stopping at the first success and logging every attempt.
type Service struct {
	channels ChannelStore
	logs     LogStore
	senders  map[ChannelKind]Sender
	log      *slog.Logger
	now      func() time.Time
}

func NewService(channels ChannelStore, logs LogStore, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		channels: channels,
		logs:     logs,
		senders:  make(map[ChannelKind]Sender),
		log:      log,
		now:      time.Now,
	}
}

func (s *Service) RegisterSender(sender Sender) {
	s.senders[sender.Kind()] = sender
}

// SendNotification tries the user's channels from highest priority
// down. Unverified channels are skipped. The returned boolean reports
// whether any channel accepted the payload; a user without a live
// channel is a false, not an error.
func (s *Service) SendNotification(ctx context.Context, userID uuid.UUID, content string, ref Ref) (bool, error) {
	chans, err := s.channels.ListEnabledByUser(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("list channels: %w", err)
	}
	// The store already orders by priority; keep it stable regardless.
	sort.SliceStable(chans, func(i, j int) bool { return chans[i].Priority > chans[j].Priority })

	for _, ch := range chans {
		if !ch.IsVerified {
			s.log.Debug("channel_skipped_unverified", "user_id", userID.String(), "kind", string(ch.Kind))
			continue
		}

		entry := &LogEntry{
			ID:        uuid.New(),
			UserID:    userID,
			Kind:      ch.Kind,
			EventID:   ref.EventID,
			RoleID:    ref.RoleID,
			Content:   content,
			Status:    StatusPending,
			Attempts:  1,
			CreatedAt: s.now().UTC(),
		}
		if err := s.logs.Append(ctx, entry); err != nil {
			return false, fmt.Errorf("append delivery log: %w", err)
		}

		sender, ok := s.senders[ch.Kind]
		if !ok {
			s.markFailed(ctx, entry, fmt.Sprintf("no sender registered for kind %q", ch.Kind))
			continue
		}

		if err := sender.Send(ctx, ch.Config, content); err != nil {
			s.markFailed(ctx, entry, err.Error())
			continue
		}

		if err := s.logs.UpdateStatus(ctx, entry.ID, StatusSent, ""); err != nil {
			s.log.Error("delivery_log_update_error", "entry_id", entry.ID.String(), "error", err.Error())
		}
		metrics.RecordNotification(string(ch.Kind), string(StatusSent))
		s.log.Info("notification_sent",
			"user_id", userID.String(),
			"kind", string(ch.Kind),
			"priority", ch.Priority,
		)
		return true, nil
	}

	s.log.Warn("notification_undeliverable", "user_id", userID.String(), "channels", len(chans))
	return false, nil
}

func (s *Service) markFailed(ctx context.Context, entry *LogEntry, reason string) {
	if err := s.logs.UpdateStatus(ctx, entry.ID, StatusFailed, reason); err != nil {
		s.log.Error("delivery_log_update_error", "entry_id", entry.ID.String(), "error", err.Error())
	}
	metrics.RecordNotification(string(entry.Kind), string(StatusFailed))
	s.log.Warn("notification_channel_failed",
		"user_id", entry.UserID.String(),
		"kind", string(entry.Kind),
		"error", reason,
	)
}

// SendToMultipleUsers delivers the same payload to each user
// independently. One user's failure never affects another's delivery.
func (s *Service) SendToMultipleUsers(ctx context.Context, userIDs []uuid.UUID, content string, ref Ref) map[uuid.UUID]bool {
	out := make(map[uuid.UUID]bool, len(userIDs))
	for _, id := range userIDs {
		delivered, err := s.SendNotification(ctx, id, content, ref)
		if err != nil {
			s.log.Error("notification_error", "user_id", id.String(), "error", err.Error())
			delivered = false
		}
		out[id] = delivered
	}
	return out
}

// RegisterChannel upserts a channel for (userID, kind). A re-register
// resets verification, the new config has not been confirmed yet.
func (s *Service) RegisterChannel(ctx context.Context, userID uuid.UUID, kind ChannelKind, config map[string]string, priority int) (*Channel, error) {
	now := s.now().UTC()
	ch := &Channel{
		ID:         uuid.New(),
		UserID:     userID,
		Kind:       kind,
		Config:     config,
		Priority:   priority,
		IsEnabled:  true,
		IsVerified: false,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.channels.Upsert(ctx, ch); err != nil {
		return nil, err
	}
	s.log.Info("channel_registered", "user_id", userID.String(), "kind", string(kind), "priority", priority)
	return ch, nil
}

func (s *Service) VerifyChannel(ctx context.Context, userID uuid.UUID, kind ChannelKind) error {
	return s.channels.SetVerified(ctx, userID, kind, true)
}

// RemoveChannel deletes the user's channel of the given kind.
func (s *Service) RemoveChannel(ctx context.Context, userID uuid.UUID, kind ChannelKind) error {
	if err := s.channels.Delete(ctx, userID, kind); err != nil {
		return err
	}
	s.log.Info("channel_removed", "user_id", userID.String(), "kind", string(kind))
	return nil
}

// DisableChannel turns a channel off without deleting it, so the
// delivery history keeps its context.
func (s *Service) DisableChannel(ctx context.Context, userID uuid.UUID, kind ChannelKind) error {
	return s.channels.SetEnabled(ctx, userID, kind, false)
}

func (s *Service) UserChannels(ctx context.Context, userID uuid.UUID) ([]*Channel, error) {
	return s.channels.ListByUser(ctx, userID)
}

func (s *Service) RecentLog(ctx context.Context, userID uuid.UUID, limit int) ([]*LogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.logs.RecentByUser(ctx, userID, limit)
}
