package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/postadepo/server/internal/models"
)

// UpsertAccount inserts a connected account or, when the user already has a
// row for the same external address, refreshes its tokens in place. The
// original connected_at and sync cursor survive a re-authorization, so an
// account that re-connects resumes syncing where it left off. Returns the
// stored row.
func (s *Store) UpsertAccount(ctx context.Context, a *models.ConnectedAccount) (*models.ConnectedAccount, error) {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO connected_accounts
		(id, user_id, external_type, external_email, display_name, access_token,
		 refresh_token, token_expiry, status, connected_at, last_sync_at, sync_cursor)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, external_email) DO UPDATE SET
			display_name  = excluded.display_name,
			access_token  = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_expiry  = excluded.token_expiry,
			status        = excluded.status
	`, a.ID, a.UserID, a.ExternalType, a.ExternalEmail, a.DisplayName, a.AccessToken,
		a.RefreshToken, a.TokenExpiry.Unix(), string(a.Status), a.ConnectedAt.Unix(),
		a.LastSyncAt.Unix(), a.SyncCursor)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert account: %w", err)
	}

	return s.GetAccountByEmail(ctx, a.UserID, a.ExternalEmail)
}

// GetAccount returns the account with the given id, or ErrNotFound.
func (s *Store) GetAccount(ctx context.Context, id string) (*models.ConnectedAccount, error) {
	return s.scanAccount(s.DB.QueryRowContext(ctx, accountSelect+`WHERE id = ?`, id))
}

// GetAccountForUser returns the account only when it belongs to userID.
func (s *Store) GetAccountForUser(ctx context.Context, id, userID string) (*models.ConnectedAccount, error) {
	return s.scanAccount(s.DB.QueryRowContext(ctx, accountSelect+`WHERE id = ? AND user_id = ?`, id, userID))
}

// GetAccountByEmail returns the user's account for an external address.
func (s *Store) GetAccountByEmail(ctx context.Context, userID, externalEmail string) (*models.ConnectedAccount, error) {
	return s.scanAccount(s.DB.QueryRowContext(ctx, accountSelect+`WHERE user_id = ? AND external_email = ?`, userID, externalEmail))
}

// ListAccounts returns all of a user's connected accounts.
func (s *Store) ListAccounts(ctx context.Context, userID string) ([]models.ConnectedAccount, error) {
	rows, err := s.DB.QueryContext(ctx, accountSelect+`WHERE user_id = ? ORDER BY connected_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.ConnectedAccount
	for rows.Next() {
		a, err := scanAccountRow(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// DeleteAccount disconnects an account owned by userID. Its synced mail
// cascades away with it.
func (s *Store) DeleteAccount(ctx context.Context, id, userID string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM connected_accounts WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateAccountTokens stores a refreshed token set on the account row.
func (s *Store) UpdateAccountTokens(ctx context.Context, id, accessToken, refreshToken string, expiry time.Time) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE connected_accounts
		SET access_token = ?, refresh_token = ?, token_expiry = ?
		WHERE id = ?
	`, accessToken, refreshToken, expiry.Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update tokens: %w", err)
	}
	return nil
}

// UpdateAccountStatus moves the account through its sync state machine.
func (s *Store) UpdateAccountStatus(ctx context.Context, id string, status models.AccountStatus) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE connected_accounts SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	return nil
}

// SaveSyncCursor advances the sync position after a batch commits. Only
// touches the single account row, so concurrent syncs of different accounts
// never contend.
func (s *Store) SaveSyncCursor(ctx context.Context, id, cursor string, syncedAt time.Time) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE connected_accounts
		SET sync_cursor = ?, last_sync_at = ?, status = ?
		WHERE id = ?
	`, cursor, syncedAt.Unix(), string(models.AccountConnected), id)
	if err != nil {
		return fmt.Errorf("failed to save sync cursor: %w", err)
	}
	return nil
}

const accountSelect = `
	SELECT id, user_id, external_type, external_email, display_name, access_token,
	       refresh_token, token_expiry, status, connected_at, last_sync_at, sync_cursor
	FROM connected_accounts
`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanAccount(row *sql.Row) (*models.ConnectedAccount, error) {
	a, err := scanAccountRow(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return a, err
}

func scanAccountRow(row rowScanner) (*models.ConnectedAccount, error) {
	var a models.ConnectedAccount
	var status string
	var tokenExpiry, connectedAt, lastSyncAt int64
	err := row.Scan(&a.ID, &a.UserID, &a.ExternalType, &a.ExternalEmail, &a.DisplayName,
		&a.AccessToken, &a.RefreshToken, &tokenExpiry, &status, &connectedAt, &lastSyncAt, &a.SyncCursor)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	a.Status = models.AccountStatus(status)
	a.TokenExpiry = time.Unix(tokenExpiry, 0).UTC()
	a.ConnectedAt = time.Unix(connectedAt, 0).UTC()
	a.LastSyncAt = time.Unix(lastSyncAt, 0).UTC()
	return &a, nil
}
