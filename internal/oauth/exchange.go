package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/postadepo/server/internal/config"
)

// TokenSet is the result of a successful code exchange or refresh.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Exchanger is what the connector and sync engine need from the token
// endpoint. *Client is the production implementation.
type Exchanger interface {
	Exchange(ctx context.Context, code string) (*TokenSet, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenSet, error)
}

// Client talks to the Microsoft identity platform's token endpoint. The
// capability flag is decided once at construction: a client built from an
// incomplete configuration reports itself unavailable and refuses calls,
// so call sites never need to re-check individual settings.
type Client struct {
	oauth     oauth2.Config
	available bool
	timeout   time.Duration
}

// NewClient builds a client from the server configuration. The redirect URI
// embedded in authorization URLs and the one sent to the token endpoint are
// the same oauth2.Config field, which is what keeps them byte-identical.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		oauth: oauth2.Config{
			ClientID:     cfg.MSClientID,
			ClientSecret: cfg.MSClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.OAuthScopes,
			Endpoint:     microsoftEndpoint(cfg.MSTenant),
		},
		available: cfg.OutlookConfigured(),
		timeout:   cfg.ProviderTimeout,
	}
}

func microsoftEndpoint(tenant string) oauth2.Endpoint {
	if tenant == "" {
		tenant = "common"
	}
	base := "https://login.microsoftonline.com/" + tenant
	return oauth2.Endpoint{
		AuthURL:  base + "/oauth2/v2.0/authorize",
		TokenURL: base + "/oauth2/v2.0/token",
	}
}

// Available reports whether the provider integration is configured.
func (c *Client) Available() bool {
	return c.available
}

// RedirectURI returns the exact redirect target used for both the
// authorization URL and the token exchange.
func (c *Client) RedirectURI() string {
	return c.oauth.RedirectURL
}

// AuthCodeURL builds the provider authorization URL carrying the state.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for tokens.
func (c *Client) Exchange(ctx context.Context, code string) (*TokenSet, error) {
	if !c.available {
		return nil, ErrNotConfigured
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, classifyExchangeError(err)
	}
	return fromOAuth2Token(tok), nil
}

// Refresh obtains a fresh access token from a stored refresh token. Same
// error taxonomy as Exchange; a rejected refresh token means the user must
// reconnect the account.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	if !c.available {
		return nil, ErrNotConfigured
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	src := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, classifyExchangeError(err)
	}
	ts := fromOAuth2Token(tok)
	if ts.RefreshToken == "" {
		// Microsoft does not always rotate the refresh token.
		ts.RefreshToken = refreshToken
	}
	return ts, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: c.timeout})
	return context.WithTimeout(ctx, c.timeout)
}

func fromOAuth2Token(tok *oauth2.Token) *TokenSet {
	return &TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
}

// classifyExchangeError maps transport and provider failures onto the
// package error taxonomy. A structured rejection from the token endpoint is
// terminal (the code is spent); anything else is a transient provider
// problem.
func classifyExchangeError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		desc := retrieveErr.ErrorDescription
		if strings.Contains(desc, "redirect_uri") || strings.Contains(desc, "AADSTS50011") {
			return fmt.Errorf("%w: %s", ErrRedirectURIMismatch, retrieveErr.ErrorCode)
		}
		if retrieveErr.Response != nil && retrieveErr.Response.StatusCode >= 500 {
			return fmt.Errorf("%w: status %d", ErrProviderUnavailable, retrieveErr.Response.StatusCode)
		}
		return fmt.Errorf("%w: %s", ErrInvalidGrant, retrieveErr.ErrorCode)
	}
	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}
