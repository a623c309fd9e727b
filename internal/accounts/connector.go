package accounts

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/postadepo/server/internal/events"
	"github.com/postadepo/server/internal/models"
	"github.com/postadepo/server/internal/oauth"
	"github.com/postadepo/server/internal/store"
)

var (
	// ErrInvalidState covers every state-tracker failure: the connect link
	// is spent or stale and the user must start over.
	ErrInvalidState = errors.New("connection link expired or invalid, please try again")

	// ErrProfileFetchFailed means tokens were obtained but the provider
	// profile could not be read, so the account identity is unknown.
	ErrProfileFetchFailed = errors.New("failed to fetch account profile")

	// ErrDuplicateAccount is returned for an explicit add of an address the
	// user already connected.
	ErrDuplicateAccount = errors.New("this account is already connected")
)

// Profile is the provider identity resolved after a successful exchange.
type Profile struct {
	Email       string
	DisplayName string
}

// ProfileFetcher resolves the mailbox identity behind an access token.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, accessToken string) (*Profile, error)
}

// Connector runs the connect flow: consume state, exchange the code, fetch
// the profile, and write exactly one credential row. Any failure leaves the
// store untouched apart from the consumed state, which is single-use.
type Connector struct {
	store     *store.Store
	states    *oauth.StateTracker
	exchanger oauth.Exchanger
	profiles  ProfileFetcher
	events    *events.Publisher
	now       func() time.Time
}

func NewConnector(s *store.Store, states *oauth.StateTracker, exchanger oauth.Exchanger, profiles ProfileFetcher, publisher *events.Publisher) *Connector {
	return &Connector{
		store:     s,
		states:    states,
		exchanger: exchanger,
		profiles:  profiles,
		events:    publisher,
		now:       time.Now,
	}
}

// Connect completes an authorization callback for userID. Reconnecting an
// address the user already has refreshes its tokens in place; rejectExisting
// makes that case fail instead, for callers acting on an explicit
// "add new account" intent.
func (c *Connector) Connect(ctx context.Context, userID, code, state string, rejectExisting bool) (*models.ConnectedAccount, error) {
	if _, err := c.states.Consume(ctx, state, userID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	tokens, err := c.exchanger.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}

	profile, err := c.profiles.FetchProfile(ctx, tokens.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfileFetchFailed, err)
	}

	_, err = c.store.GetAccountByEmail(ctx, userID, profile.Email)
	switch {
	case err == nil:
		if rejectExisting {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAccount, profile.Email)
		}
	case errors.Is(err, store.ErrNotFound):
		// First connection of this address.
	default:
		return nil, err
	}

	now := c.now().UTC()
	account, err := c.store.UpsertAccount(ctx, &models.ConnectedAccount{
		ID:            uuid.NewString(),
		UserID:        userID,
		ExternalType:  "outlook",
		ExternalEmail: profile.Email,
		DisplayName:   profile.DisplayName,
		AccessToken:   tokens.AccessToken,
		RefreshToken:  tokens.RefreshToken,
		TokenExpiry:   tokens.Expiry,
		Status:        models.AccountConnected,
		ConnectedAt:   now,
	})
	if err != nil {
		return nil, err
	}

	if err := c.events.AccountConnected(userID, account.ID, account.ExternalEmail); err != nil {
		log.Printf("connector: failed to publish event: %v", err)
	}
	_ = c.store.AppendLog(ctx, "info", "account.connected",
		fmt.Sprintf("connected %s account %s", account.ExternalType, account.ExternalEmail), userID)

	return account, nil
}
