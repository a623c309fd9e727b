package oauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/postadepo/server/internal/config"
)

// newFakeTokenEndpoint returns a client pointed at an in-process token
// endpoint driven by handler, plus the request capture slot.
func newFakeTokenEndpoint(t *testing.T, handler http.HandlerFunc) (*Client, *url.Values) {
	t.Helper()
	var lastForm url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		lastForm = r.PostForm
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c := &Client{
		oauth: oauth2.Config{
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			RedirectURL:  "http://localhost:8080/api/auth/callback",
			Scopes:       []string{"openid", "Mail.Read"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  srv.URL + "/authorize",
				TokenURL: srv.URL + "/token",
			},
		},
		available: true,
		timeout:   5 * time.Second,
	}
	return c, &lastForm
}

func tokenJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestExchangeSuccess(t *testing.T) {
	c, form := newFakeTokenEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		tokenJSON(w, http.StatusOK, `{
			"access_token": "at-1",
			"refresh_token": "rt-1",
			"token_type": "Bearer",
			"expires_in": 3600
		}`)
	})

	ts, err := c.Exchange(context.Background(), "auth-code")
	require.NoError(t, err)
	require.Equal(t, "at-1", ts.AccessToken)
	require.Equal(t, "rt-1", ts.RefreshToken)
	require.False(t, ts.Expiry.IsZero())

	require.Equal(t, "auth-code", form.Get("code"))
	require.Equal(t, c.RedirectURI(), form.Get("redirect_uri"))
}

func TestExchangeInvalidGrant(t *testing.T) {
	c, _ := newFakeTokenEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		tokenJSON(w, http.StatusBadRequest, `{
			"error": "invalid_grant",
			"error_description": "AADSTS70008: The provided authorization code is expired."
		}`)
	})

	_, err := c.Exchange(context.Background(), "spent-code")
	require.ErrorIs(t, err, ErrInvalidGrant)
}

func TestExchangeRedirectMismatch(t *testing.T) {
	c, _ := newFakeTokenEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		tokenJSON(w, http.StatusBadRequest, `{
			"error": "invalid_request",
			"error_description": "AADSTS50011: The redirect_uri does not match."
		}`)
	})

	_, err := c.Exchange(context.Background(), "auth-code")
	require.ErrorIs(t, err, ErrRedirectURIMismatch)
}

func TestExchangeProviderDown(t *testing.T) {
	c, _ := newFakeTokenEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		tokenJSON(w, http.StatusInternalServerError, `{"error": "server_error"}`)
	})

	_, err := c.Exchange(context.Background(), "auth-code")
	require.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestExchangeUnconfigured(t *testing.T) {
	c := NewClient(&config.Config{})
	require.False(t, c.Available())

	_, err := c.Exchange(context.Background(), "auth-code")
	require.ErrorIs(t, err, ErrNotConfigured)
	_, err = c.Refresh(context.Background(), "refresh-token")
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestRefreshKeepsOldTokenWhenNotRotated(t *testing.T) {
	c, form := newFakeTokenEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		tokenJSON(w, http.StatusOK, `{
			"access_token": "at-2",
			"token_type": "Bearer",
			"expires_in": 3600
		}`)
	})

	ts, err := c.Refresh(context.Background(), "rt-old")
	require.NoError(t, err)
	require.Equal(t, "at-2", ts.AccessToken)
	require.Equal(t, "rt-old", ts.RefreshToken)
	require.Equal(t, "rt-old", form.Get("refresh_token"))
}

// The redirect URI in the authorization URL and the one sent to the token
// endpoint come from the same field; this guards against them drifting.
func TestAuthCodeURLMatchesExchangeRedirect(t *testing.T) {
	c, form := newFakeTokenEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		tokenJSON(w, http.StatusOK, `{"access_token": "at", "token_type": "Bearer"}`)
	})

	authURL, err := url.Parse(c.AuthCodeURL("state-123"))
	require.NoError(t, err)
	require.Equal(t, "state-123", authURL.Query().Get("state"))
	require.Equal(t, c.RedirectURI(), authURL.Query().Get("redirect_uri"))

	_, err = c.Exchange(context.Background(), "auth-code")
	require.NoError(t, err)
	require.Equal(t, authURL.Query().Get("redirect_uri"), form.Get("redirect_uri"))
}
