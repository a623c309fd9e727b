package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/postadepo/server/internal/models"
)

// InsertMail stores a mail record and its attachments in one transaction.
func (s *Store) InsertMail(ctx context.Context, m *models.Mail) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO mails
		(id, user_id, account_id, external_id, folder, sender, recipient, subject,
		 content, content_type, preview, date, read, important, size, thread_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.UserID, nullIfEmpty(m.AccountID), m.ExternalID, m.Folder, m.Sender,
		m.Recipient, m.Subject, m.Content, m.ContentType, m.Preview, m.Date.Unix(),
		boolToInt(m.Read), boolToInt(m.Important), m.Size, m.ThreadID)
	if err != nil {
		return fmt.Errorf("failed to insert mail: %w", err)
	}

	for _, att := range m.Attachments {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO attachments (id, mail_id, name, mime_type, size, content)
			VALUES (?, ?, ?, ?, ?, ?)
		`, att.ID, m.ID, att.Name, att.MimeType, att.Size, att.Content)
		if err != nil {
			return fmt.Errorf("failed to insert attachment: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// MailExists reports whether a message with the given provider id was
// already synced for the account. This is the idempotency check that makes
// re-running a sync safe.
func (s *Store) MailExists(ctx context.Context, accountID, externalID string) (bool, error) {
	var one int
	err := s.DB.QueryRowContext(ctx, `
		SELECT 1 FROM mails WHERE account_id = ? AND external_id = ?
	`, accountID, externalID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check mail existence: %w", err)
	}
	return true, nil
}

// ListMail returns a user's mail for a folder, newest first. Folder "all"
// spans every folder. Attachment metadata is included; attachment payloads
// are not.
func (s *Store) ListMail(ctx context.Context, userID, folder string) ([]models.Mail, error) {
	query := mailSelect + `WHERE user_id = ?`
	args := []any{userID}
	if folder != models.FolderAll {
		query += ` AND folder = ?`
		args = append(args, folder)
	}
	query += ` ORDER BY date DESC`

	return s.queryMail(ctx, query, args...)
}

// ListThread returns a user's mail sharing a thread id, oldest first.
func (s *Store) ListThread(ctx context.Context, userID, threadID string) ([]models.Mail, error) {
	return s.queryMail(ctx, mailSelect+`WHERE user_id = ? AND thread_id = ? ORDER BY date`, userID, threadID)
}

// GetMail returns a single mail owned by userID, or ErrNotFound.
func (s *Store) GetMail(ctx context.Context, id, userID string) (*models.Mail, error) {
	mails, err := s.queryMail(ctx, mailSelect+`WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return nil, err
	}
	if len(mails) == 0 {
		return nil, ErrNotFound
	}
	return &mails[0], nil
}

// MarkRead sets the read flag on a mail owned by userID.
func (s *Store) MarkRead(ctx context.Context, id, userID string) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE mails SET read = 1 WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to mark read: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ToggleImportant flips the important flag and returns the new value.
func (s *Store) ToggleImportant(ctx context.Context, id, userID string) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE mails SET important = 1 - important WHERE id = ? AND user_id = ?
	`, id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to toggle important: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, ErrNotFound
	}

	var important int
	err = s.DB.QueryRowContext(ctx, `SELECT important FROM mails WHERE id = ?`, id).Scan(&important)
	if err != nil {
		return false, fmt.Errorf("failed to read important flag: %w", err)
	}
	return important != 0, nil
}

// DeleteMail removes a single mail owned by userID. Attachments cascade.
func (s *Store) DeleteMail(ctx context.Context, id, userID string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM mails WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete mail: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// FolderCounts returns per-folder mail counts for the sidebar, with "all"
// as the total.
func (s *Store) FolderCounts(ctx context.Context, userID string) (map[string]int, error) {
	counts := map[string]int{
		models.FolderInbox:   0,
		models.FolderSent:    0,
		models.FolderSpam:    0,
		models.FolderDeleted: 0,
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT folder, COUNT(*) FROM mails WHERE user_id = ? GROUP BY folder
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count folders: %w", err)
	}
	defer rows.Close()

	total := 0
	for rows.Next() {
		var folder string
		var n int
		if err := rows.Scan(&folder, &n); err != nil {
			return nil, fmt.Errorf("failed to scan folder count: %w", err)
		}
		counts[folder] = n
		total += n
	}
	counts[models.FolderAll] = total
	return counts, rows.Err()
}

// StorageInfo returns the user's mail count and total stored size.
func (s *Store) StorageInfo(ctx context.Context, userID string) (totalMails int, totalSize int64, err error) {
	err = s.DB.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(size), 0) FROM mails WHERE user_id = ?
	`, userID).Scan(&totalMails, &totalSize)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to compute storage info: %w", err)
	}
	return totalMails, totalSize, nil
}

const mailSelect = `
	SELECT id, user_id, COALESCE(account_id, ''), external_id, folder, sender, recipient,
	       subject, content, content_type, preview, date, read, important, size, thread_id
	FROM mails
`

func (s *Store) queryMail(ctx context.Context, query string, args ...any) ([]models.Mail, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query mail: %w", err)
	}
	defer rows.Close()

	var mails []models.Mail
	for rows.Next() {
		var m models.Mail
		var date int64
		var read, important int
		if err := rows.Scan(&m.ID, &m.UserID, &m.AccountID, &m.ExternalID, &m.Folder,
			&m.Sender, &m.Recipient, &m.Subject, &m.Content, &m.ContentType, &m.Preview,
			&date, &read, &important, &m.Size, &m.ThreadID); err != nil {
			return nil, fmt.Errorf("failed to scan mail: %w", err)
		}
		m.Date = time.Unix(date, 0).UTC()
		m.Read = read != 0
		m.Important = important != 0
		mails = append(mails, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range mails {
		atts, err := s.listAttachmentMeta(ctx, mails[i].ID)
		if err != nil {
			return nil, err
		}
		mails[i].Attachments = atts
	}
	return mails, nil
}

func (s *Store) listAttachmentMeta(ctx context.Context, mailID string) ([]models.Attachment, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, mail_id, name, mime_type, size FROM attachments WHERE mail_id = ?
	`, mailID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attachments: %w", err)
	}
	defer rows.Close()

	var atts []models.Attachment
	for rows.Next() {
		var a models.Attachment
		if err := rows.Scan(&a.ID, &a.MailID, &a.Name, &a.MimeType, &a.Size); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		atts = append(atts, a)
	}
	return atts, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
