package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Menzorg/rugpt/calendar"
)

// EventStore implements calendar.Store on the shared database.
type EventStore struct {
	s *Store
}

func (s *Store) Events() *EventStore {
	return &EventStore{s: s}
}

const eventColumns = `id, role_id, org_id, title, description, kind,
	scheduled_at, cron_expression, next_trigger_at, last_triggered_at, trigger_count,
	source_chat_id, source_message_id, created_by_user_id, metadata,
	is_active, created_at, updated_at`

func (es *EventStore) Create(ctx context.Context, ev *calendar.Event) error {
	meta, err := json.Marshal(ev.Metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}
	_, err = es.s.db.ExecContext(ctx, `INSERT INTO calendar_events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID.String(), ev.RoleID.String(), ev.OrgID.String(),
		ev.Title, ev.Description, string(ev.Kind),
		formatTimePtr(ev.ScheduledAt), ev.CronExpression,
		formatTimePtr(ev.NextTriggerAt), formatTimePtr(ev.LastTriggeredAt), ev.TriggerCount,
		uuidPtrString(ev.SourceChatID), uuidPtrString(ev.SourceMessageID), uuidPtrString(ev.CreatedByUserID),
		string(meta), boolToInt(ev.IsActive), formatTime(ev.CreatedAt), formatTime(ev.UpdatedAt),
	)
	return err
}

func (es *EventStore) Get(ctx context.Context, id uuid.UUID) (*calendar.Event, error) {
	row := es.s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM calendar_events WHERE id = ?`, id.String())
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, calendar.ErrNotFound
	}
	return ev, err
}

func (es *EventStore) ListByOrg(ctx context.Context, orgID uuid.UUID, activeOnly bool) ([]*calendar.Event, error) {
	q := `SELECT ` + eventColumns + ` FROM calendar_events WHERE org_id = ?`
	if activeOnly {
		q += ` AND is_active = 1`
	}
	q += ` ORDER BY created_at`
	return es.queryEvents(ctx, q, orgID.String())
}

func (es *EventStore) ListByRole(ctx context.Context, roleID uuid.UUID, activeOnly bool) ([]*calendar.Event, error) {
	q := `SELECT ` + eventColumns + ` FROM calendar_events WHERE role_id = ?`
	if activeOnly {
		q += ` AND is_active = 1`
	}
	q += ` ORDER BY created_at`
	return es.queryEvents(ctx, q, roleID.String())
}

func (es *EventStore) ListDue(ctx context.Context, now time.Time) ([]*calendar.Event, error) {
	return es.queryEvents(ctx, `SELECT `+eventColumns+` FROM calendar_events
		WHERE is_active = 1 AND next_trigger_at IS NOT NULL AND next_trigger_at <= ?
		ORDER BY next_trigger_at`, formatTime(now))
}

// PersistTriggerUpdate applies trigger bookkeeping with a guarded
// update: the row must still be active with the previous count, so a
// second claimer loses and gets ErrAlreadyTriggered.
func (es *EventStore) PersistTriggerUpdate(ctx context.Context, ev *calendar.Event) error {
	res, err := es.s.db.ExecContext(ctx, `UPDATE calendar_events
		SET next_trigger_at = ?, last_triggered_at = ?, trigger_count = ?, is_active = ?, updated_at = ?
		WHERE id = ? AND is_active = 1 AND trigger_count = ?`,
		formatTimePtr(ev.NextTriggerAt), formatTimePtr(ev.LastTriggeredAt),
		ev.TriggerCount, boolToInt(ev.IsActive), formatTime(ev.UpdatedAt),
		ev.ID.String(), ev.TriggerCount-1,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists int
		if err := es.s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM calendar_events WHERE id = ?`, ev.ID.String()).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return calendar.ErrNotFound
		}
		return calendar.ErrAlreadyTriggered
	}
	return nil
}

func (es *EventStore) Update(ctx context.Context, ev *calendar.Event) error {
	meta, err := json.Marshal(ev.Metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}
	res, err := es.s.db.ExecContext(ctx, `UPDATE calendar_events
		SET title = ?, description = ?, kind = ?, scheduled_at = ?, cron_expression = ?,
		    next_trigger_at = ?, last_triggered_at = ?, trigger_count = ?,
		    metadata = ?, is_active = ?, updated_at = ?
		WHERE id = ?`,
		ev.Title, ev.Description, string(ev.Kind),
		formatTimePtr(ev.ScheduledAt), ev.CronExpression,
		formatTimePtr(ev.NextTriggerAt), formatTimePtr(ev.LastTriggeredAt), ev.TriggerCount,
		string(meta), boolToInt(ev.IsActive), formatTime(ev.UpdatedAt),
		ev.ID.String(),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return calendar.ErrNotFound
	}
	return nil
}

func (es *EventStore) Deactivate(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := es.s.db.ExecContext(ctx, `UPDATE calendar_events
		SET is_active = 0, updated_at = ? WHERE id = ? AND is_active = 1`,
		formatTime(time.Now()), id.String())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (es *EventStore) queryEvents(ctx context.Context, query string, args ...any) ([]*calendar.Event, error) {
	rows, err := es.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*calendar.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*calendar.Event, error) {
	var ev calendar.Event
	var idStr, roleStr, orgStr, kindStr string
	var scheduledAt, nextTriggerAt, lastTriggered sql.NullString
	var sourceChatID, sourceMessageID, createdBy sql.NullString
	var metaJSON, createdAtStr, updatedAtStr string
	var isActive int
	err := row.Scan(&idStr, &roleStr, &orgStr, &ev.Title, &ev.Description, &kindStr,
		&scheduledAt, &ev.CronExpression, &nextTriggerAt, &lastTriggered, &ev.TriggerCount,
		&sourceChatID, &sourceMessageID, &createdBy, &metaJSON,
		&isActive, &createdAtStr, &updatedAtStr)
	if err != nil {
		return nil, err
	}

	if ev.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("parsing event id: %w", err)
	}
	if ev.RoleID, err = uuid.Parse(roleStr); err != nil {
		return nil, fmt.Errorf("parsing role id: %w", err)
	}
	if ev.OrgID, err = uuid.Parse(orgStr); err != nil {
		return nil, fmt.Errorf("parsing org id: %w", err)
	}
	ev.Kind = calendar.EventKind(kindStr)
	ev.IsActive = isActive != 0

	if ev.ScheduledAt, err = parseTimePtr(scheduledAt); err != nil {
		return nil, err
	}
	if ev.NextTriggerAt, err = parseTimePtr(nextTriggerAt); err != nil {
		return nil, err
	}
	if ev.LastTriggeredAt, err = parseTimePtr(lastTriggered); err != nil {
		return nil, err
	}
	if ev.SourceChatID, err = parseUUIDPtr(sourceChatID); err != nil {
		return nil, err
	}
	if ev.SourceMessageID, err = parseUUIDPtr(sourceMessageID); err != nil {
		return nil, err
	}
	if ev.CreatedByUserID, err = parseUUIDPtr(createdBy); err != nil {
		return nil, err
	}
	if metaJSON != "" && metaJSON != "{}" {
		if err := json.Unmarshal([]byte(metaJSON), &ev.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata: %w", err)
		}
	}
	if ev.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return nil, err
	}
	if ev.UpdatedAt, err = parseTime(updatedAtStr); err != nil {
		return nil, err
	}
	return &ev, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func uuidPtrString(id *uuid.UUID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}

func parseUUIDPtr(ns sql.NullString) (*uuid.UUID, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	id, err := uuid.Parse(ns.String)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
