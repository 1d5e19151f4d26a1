package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Menzorg/rugpt/notify"
)

// LogStore implements notify.LogStore on the shared database.
type LogStore struct {
	s *Store
}

func (s *Store) Logs() *LogStore {
	return &LogStore{s: s}
}

func (ls *LogStore) Append(ctx context.Context, entry *notify.LogEntry) error {
	_, err := ls.s.db.ExecContext(ctx, `INSERT INTO notification_log
		(id, user_id, kind, event_id, role_id, content, status, attempts, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID.String(), entry.UserID.String(), string(entry.Kind),
		uuidPtrString(entry.EventID), uuidPtrString(entry.RoleID),
		entry.Content, string(entry.Status), entry.Attempts, entry.ErrorMessage,
		formatTime(entry.CreatedAt), formatTime(entry.CreatedAt),
	)
	return err
}

func (ls *LogStore) UpdateStatus(ctx context.Context, id uuid.UUID, status notify.Status, errorMessage string) error {
	res, err := ls.s.db.ExecContext(ctx, `UPDATE notification_log
		SET status = ?, error_message = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(status), errorMessage, formatTime(time.Now()),
		id.String(), string(notify.StatusPending))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("no pending log entry %s", id)
	}
	return nil
}

func (ls *LogStore) RecentByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*notify.LogEntry, error) {
	rows, err := ls.s.db.QueryContext(ctx, `SELECT
		id, user_id, kind, event_id, role_id, content, status, attempts, error_message, created_at, updated_at
		FROM notification_log WHERE user_id = ?
		ORDER BY created_at DESC LIMIT ?`, userID.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*notify.LogEntry
	for rows.Next() {
		entry, err := scanLogEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func scanLogEntry(row rowScanner) (*notify.LogEntry, error) {
	var entry notify.LogEntry
	var idStr, userStr, kindStr, statusStr, createdStr, updatedStr string
	var eventID, roleID sql.NullString
	err := row.Scan(&idStr, &userStr, &kindStr, &eventID, &roleID,
		&entry.Content, &statusStr, &entry.Attempts, &entry.ErrorMessage,
		&createdStr, &updatedStr)
	if err != nil {
		return nil, err
	}
	if entry.ID, err = uuid.Parse(idStr); err != nil {
		return nil, err
	}
	if entry.UserID, err = uuid.Parse(userStr); err != nil {
		return nil, err
	}
	entry.Kind = notify.ChannelKind(kindStr)
	entry.Status = notify.Status(statusStr)
	if entry.EventID, err = parseUUIDPtr(eventID); err != nil {
		return nil, err
	}
	if entry.RoleID, err = parseUUIDPtr(roleID); err != nil {
		return nil, err
	}
	if entry.CreatedAt, err = parseTime(createdStr); err != nil {
		return nil, err
	}
	if entry.UpdatedAt, err = parseTime(updatedStr); err != nil {
		return nil, err
	}
	return &entry, nil
}
