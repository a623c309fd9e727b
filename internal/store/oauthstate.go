package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/postadepo/server/internal/models"
)

// InsertState persists a freshly issued OAuth state token.
func (s *Store) InsertState(ctx context.Context, st *models.OAuthState) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO oauth_states (state, user_id, created_at, expires_at)
		VALUES (?, ?, ?, ?)
	`, st.State, st.UserID, st.CreatedAt.Unix(), st.ExpiresAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert oauth state: %w", err)
	}
	return nil
}

// GetState returns a state row without consuming it, for callers that only
// need to know whether the token is still live.
func (s *Store) GetState(ctx context.Context, state string) (*models.OAuthState, error) {
	var st models.OAuthState
	var createdAt, expiresAt int64
	err := s.DB.QueryRowContext(ctx, `
		SELECT state, user_id, created_at, expires_at FROM oauth_states WHERE state = ?
	`, state).Scan(&st.State, &st.UserID, &createdAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get oauth state: %w", err)
	}
	st.CreatedAt = time.Unix(createdAt, 0).UTC()
	st.ExpiresAt = time.Unix(expiresAt, 0).UTC()
	return &st, nil
}

// TakeState atomically removes the state row and returns it. The single
// DELETE ... RETURNING is the replay guard: of two concurrent callbacks
// carrying the same state, exactly one gets the row and the other sees
// ErrNotFound. Expiry is checked by the caller on the returned record.
func (s *Store) TakeState(ctx context.Context, state string) (*models.OAuthState, error) {
	var st models.OAuthState
	var createdAt, expiresAt int64
	err := s.DB.QueryRowContext(ctx, `
		DELETE FROM oauth_states WHERE state = ?
		RETURNING state, user_id, created_at, expires_at
	`, state).Scan(&st.State, &st.UserID, &createdAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to take oauth state: %w", err)
	}
	st.CreatedAt = time.Unix(createdAt, 0).UTC()
	st.ExpiresAt = time.Unix(expiresAt, 0).UTC()
	return &st, nil
}

// PurgeExpiredStates removes states past their TTL. Called opportunistically
// when new states are issued; leftover rows are harmless since TakeState
// re-checks expiry.
func (s *Store) PurgeExpiredStates(ctx context.Context, now time.Time) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM oauth_states WHERE expires_at < ?`, now.Unix())
	if err != nil {
		return fmt.Errorf("failed to purge oauth states: %w", err)
	}
	return nil
}
