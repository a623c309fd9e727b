package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/postadepo/server/internal/models"
	"github.com/postadepo/server/internal/store"
)

// StateTracker issues and consumes the one-time `state` tokens that bind an
// authorization redirect to the user who initiated it.
type StateTracker struct {
	store *store.Store
	ttl   time.Duration
	now   func() time.Time
}

func NewStateTracker(s *store.Store, ttl time.Duration) *StateTracker {
	return &StateTracker{store: s, ttl: ttl, now: time.Now}
}

// Issue mints an unguessable state token bound to userID and persists it
// with an expiry.
func (t *StateTracker) Issue(ctx context.Context, userID string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	state := base64.RawURLEncoding.EncodeToString(buf)

	now := t.now().UTC()
	err := t.store.InsertState(ctx, &models.OAuthState{
		State:     state,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(t.ttl),
	})
	if err != nil {
		return "", err
	}

	// Housekeeping; stale rows are rejected on consume either way.
	_ = t.store.PurgeExpiredStates(ctx, now)

	return state, nil
}

// Peek reports whether a state token is still live without consuming it.
// The provider callback uses it to reject dead links up front while leaving
// the token intact for the connect step, which consumes it.
func (t *StateTracker) Peek(ctx context.Context, state string) error {
	st, err := t.store.GetState(ctx, state)
	if errors.Is(err, store.ErrNotFound) {
		return ErrStateNotFound
	}
	if err != nil {
		return err
	}
	if t.now().After(st.ExpiresAt) {
		return ErrStateExpired
	}
	return nil
}

// Consume validates and invalidates a state token in one step, returning
// the user id it was issued for. The token is removed even when validation
// fails afterwards: a state that reached Consume can never be replayed.
// When expectedUserID is non-empty it must match the bound user.
func (t *StateTracker) Consume(ctx context.Context, state, expectedUserID string) (string, error) {
	st, err := t.store.TakeState(ctx, state)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrStateNotFound
	}
	if err != nil {
		return "", err
	}

	if t.now().After(st.ExpiresAt) {
		return "", ErrStateExpired
	}
	if expectedUserID != "" && st.UserID != expectedUserID {
		return "", ErrStateUserMismatch
	}
	return st.UserID, nil
}
