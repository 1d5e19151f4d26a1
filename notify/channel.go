package notify

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrChannelNotFound = errors.New("notification channel not found")

type ChannelKind string

const (
	ChannelTelegram ChannelKind = "telegram"
	ChannelEmail    ChannelKind = "email"
)

func ParseChannelKind(s string) (ChannelKind, bool) {
	switch ChannelKind(strings.TrimSpace(strings.ToLower(s))) {
	case ChannelTelegram:
		return ChannelTelegram, true
	case ChannelEmail:
		return ChannelEmail, true
	default:
		return "", false
	}
}

// Channel is one delivery route for a user. A user has at most one
// channel per kind; priority orders fallback, higher tried first.
type Channel struct {
	ID     uuid.UUID
	UserID uuid.UUID
	Kind   ChannelKind

	// Config is sender-specific, e.g. chat_id for telegram or
	// address for email.
	Config map[string]string

	Priority   int
	IsEnabled  bool
	IsVerified bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// LogEntry records one delivery attempt. Entries are append-only
// except for the pending to sent or failed transition.
type LogEntry struct {
	ID      uuid.UUID
	UserID  uuid.UUID
	Kind    ChannelKind
	EventID *uuid.UUID
	RoleID  *uuid.UUID

	Content      string
	Status       Status
	Attempts     int
	ErrorMessage string

	CreatedAt time.Time
	UpdatedAt time.Time
}

type ChannelStore interface {
	// Upsert inserts or replaces the channel keyed by (UserID, Kind).
	Upsert(ctx context.Context, ch *Channel) error
	// ListEnabledByUser returns enabled channels sorted by priority
	// descending.
	ListEnabledByUser(ctx context.Context, userID uuid.UUID) ([]*Channel, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Channel, error)
	SetVerified(ctx context.Context, userID uuid.UUID, kind ChannelKind, verified bool) error
	SetEnabled(ctx context.Context, userID uuid.UUID, kind ChannelKind, enabled bool) error
	Delete(ctx context.Context, userID uuid.UUID, kind ChannelKind) error
}

type LogStore interface {
	Append(ctx context.Context, entry *LogEntry) error
	// UpdateStatus moves a pending entry to sent or failed.
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, errorMessage string) error
	RecentByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*LogEntry, error)
}
