package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/Menzorg/rugpt/notify"
)

// ChannelStore implements notify.ChannelStore on the shared database.
type ChannelStore struct {
	s *Store
}

func (s *Store) Channels() *ChannelStore {
	return &ChannelStore{s: s}
}

func (cs *ChannelStore) Upsert(ctx context.Context, ch *notify.Channel) error {
	config, err := json.Marshal(ch.Config)
	if err != nil {
		return fmt.Errorf("encoding channel config: %w", err)
	}
	_, err = cs.s.db.ExecContext(ctx, `INSERT INTO notification_channels
		(id, user_id, kind, config, priority, is_enabled, is_verified, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, kind) DO UPDATE SET
			config = excluded.config,
			priority = excluded.priority,
			is_enabled = excluded.is_enabled,
			is_verified = excluded.is_verified,
			updated_at = excluded.updated_at`,
		ch.ID.String(), ch.UserID.String(), string(ch.Kind), string(config),
		ch.Priority, boolToInt(ch.IsEnabled), boolToInt(ch.IsVerified),
		formatTime(ch.CreatedAt), formatTime(ch.UpdatedAt),
	)
	return err
}

func (cs *ChannelStore) ListEnabledByUser(ctx context.Context, userID uuid.UUID) ([]*notify.Channel, error) {
	return cs.queryChannels(ctx, `SELECT id, user_id, kind, config, priority, is_enabled, is_verified, created_at, updated_at
		FROM notification_channels WHERE user_id = ? AND is_enabled = 1
		ORDER BY priority DESC`, userID.String())
}

func (cs *ChannelStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]*notify.Channel, error) {
	return cs.queryChannels(ctx, `SELECT id, user_id, kind, config, priority, is_enabled, is_verified, created_at, updated_at
		FROM notification_channels WHERE user_id = ?
		ORDER BY priority DESC`, userID.String())
}

func (cs *ChannelStore) SetVerified(ctx context.Context, userID uuid.UUID, kind notify.ChannelKind, verified bool) error {
	return cs.setFlag(ctx, "is_verified", verified, userID, kind)
}

func (cs *ChannelStore) SetEnabled(ctx context.Context, userID uuid.UUID, kind notify.ChannelKind, enabled bool) error {
	return cs.setFlag(ctx, "is_enabled", enabled, userID, kind)
}

func (cs *ChannelStore) Delete(ctx context.Context, userID uuid.UUID, kind notify.ChannelKind) error {
	res, err := cs.s.db.ExecContext(ctx,
		`DELETE FROM notification_channels WHERE user_id = ? AND kind = ?`,
		userID.String(), string(kind))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notify.ErrChannelNotFound
	}
	return nil
}

func (cs *ChannelStore) setFlag(ctx context.Context, column string, value bool, userID uuid.UUID, kind notify.ChannelKind) error {
	res, err := cs.s.db.ExecContext(ctx,
		`UPDATE notification_channels SET `+column+` = ? WHERE user_id = ? AND kind = ?`,
		boolToInt(value), userID.String(), string(kind))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notify.ErrChannelNotFound
	}
	return nil
}

func (cs *ChannelStore) queryChannels(ctx context.Context, query string, args ...any) ([]*notify.Channel, error) {
	rows, err := cs.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*notify.Channel
	for rows.Next() {
		var ch notify.Channel
		var idStr, userStr, kindStr, configJSON, createdStr, updatedStr string
		var isEnabled, isVerified int
		if err := rows.Scan(&idStr, &userStr, &kindStr, &configJSON, &ch.Priority,
			&isEnabled, &isVerified, &createdStr, &updatedStr); err != nil {
			return nil, err
		}
		if ch.ID, err = uuid.Parse(idStr); err != nil {
			return nil, err
		}
		if ch.UserID, err = uuid.Parse(userStr); err != nil {
			return nil, err
		}
		ch.Kind = notify.ChannelKind(kindStr)
		if configJSON != "" {
			if err := json.Unmarshal([]byte(configJSON), &ch.Config); err != nil {
				return nil, fmt.Errorf("decoding channel config: %w", err)
			}
		}
		ch.IsEnabled = isEnabled != 0
		ch.IsVerified = isVerified != 0
		if ch.CreatedAt, err = parseTime(createdStr); err != nil {
			return nil, err
		}
		if ch.UpdatedAt, err = parseTime(updatedStr); err != nil {
			return nil, err
		}
		out = append(out, &ch)
	}
	return out, rows.Err()
}
