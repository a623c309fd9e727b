package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/postadepo/server/internal/models"
)

// AppendLog records a system event for the admin dashboard. Failures are
// returned but callers generally just log them; an audit write must never
// fail a user request.
func (s *Store) AppendLog(ctx context.Context, level, event, message, userID string) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO system_logs (id, level, event, message, user_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), level, event, message, userID, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to append log: %w", err)
	}
	return nil
}

// ListLogs returns the most recent system logs, newest first.
func (s *Store) ListLogs(ctx context.Context, limit int) ([]models.SystemLog, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, level, event, message, user_id, created_at
		FROM system_logs ORDER BY created_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs: %w", err)
	}
	defer rows.Close()

	var logs []models.SystemLog
	for rows.Next() {
		var l models.SystemLog
		var createdAt int64
		if err := rows.Scan(&l.ID, &l.Level, &l.Event, &l.Message, &l.UserID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan log: %w", err)
		}
		l.CreatedAt = time.Unix(createdAt, 0).UTC()
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
