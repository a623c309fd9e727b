package api

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/postadepo/server/internal/auth"
	"github.com/postadepo/server/internal/models"
	"github.com/postadepo/server/internal/oauth"
)

func (s *Server) handleOutlookStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"available":  s.oauth.Available(),
		"configured": s.cfg.OutlookConfigured(),
	})
}

// handleAuthURL mints a state bound to the caller and returns the provider
// authorization URL. The redirect_uri echoed here is the same configuration
// value the token exchange will send.
func (s *Server) handleAuthURL(c *gin.Context) {
	if !s.oauth.Available() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "outlook integration is not configured"})
		return
	}

	user := auth.CurrentUser(c)
	state, err := s.states.Issue(c.Request.Context(), user.ID)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"auth_url":     s.oauth.AuthCodeURL(state),
		"state":        state,
		"redirect_uri": s.oauth.RedirectURI(),
	})
}

// handleOAuthCallback receives the provider redirect. It does not complete
// the connection itself: it checks the parameters and the state token, then
// bounces the browser to the frontend, which calls connect-account with the
// user's session. The state is only peeked at here so connect-account can
// still consume it. Missing parameters are a validation error naming the
// field; an unknown or expired state is rejected before the redirect.
func (s *Server) handleOAuthCallback(c *gin.Context) {
	if providerErr := c.Query("error"); providerErr != "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "authorization was cancelled or denied, please try connecting again",
		})
		return
	}

	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		missing := "code"
		if code != "" {
			missing = "state"
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": "missing required query parameter: " + missing,
			"field": missing,
		})
		return
	}

	switch err := s.states.Peek(c.Request.Context(), state); {
	case err == nil:
	case errors.Is(err, oauth.ErrStateNotFound), errors.Is(err, oauth.ErrStateExpired):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "connection request expired or is invalid, please try connecting again",
		})
		return
	default:
		fail(c, err)
		return
	}

	redirect := s.cfg.FrontendURL + "/auth/callback?code=" + url.QueryEscape(code) +
		"&state=" + url.QueryEscape(state)
	c.Redirect(http.StatusFound, redirect)
}

func (s *Server) handleConnectAccount(c *gin.Context) {
	if !s.oauth.Available() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "outlook integration is not configured"})
		return
	}

	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		missing := "code"
		if code != "" {
			missing = "state"
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": "missing required query parameter: " + missing,
			"field": missing,
		})
		return
	}

	user := auth.CurrentUser(c)
	rejectExisting := c.Query("intent") == "add"

	account, err := s.connector.Connect(c.Request.Context(), user.ID, code, state, rejectExisting)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"account": publicAccount(account)})
}

func (s *Server) handleListAccounts(c *gin.Context) {
	user := auth.CurrentUser(c)
	accts, err := s.store.ListAccounts(c.Request.Context(), user.ID)
	if err != nil {
		fail(c, err)
		return
	}

	out := make([]gin.H, 0, len(accts))
	for i := range accts {
		out = append(out, publicAccount(&accts[i]))
	}
	c.JSON(http.StatusOK, gin.H{"accounts": out})
}

func (s *Server) handleDeleteAccount(c *gin.Context) {
	user := auth.CurrentUser(c)
	if err := s.store.DeleteAccount(c.Request.Context(), c.Param("id"), user.ID); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "account disconnected"})
}

func (s *Server) handleAccountSync(c *gin.Context) {
	accountID := c.Query("account_id")
	if accountID == "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": "missing required query parameter: account_id",
			"field": "account_id",
		})
		return
	}

	user := auth.CurrentUser(c)
	account, err := s.store.GetAccountForUser(c.Request.Context(), accountID, user.ID)
	if err != nil {
		fail(c, err)
		return
	}

	if !s.oauth.Available() || !s.engine.Supports(account.ExternalType) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "provider integration is not available"})
		return
	}

	// The max parameter is caller-supplied; keep it within one batch so it
	// cannot drive an oversized page request at the provider.
	maxMessages, _ := strconv.Atoi(c.DefaultQuery("max", "0"))
	if maxMessages <= 0 || maxMessages > s.cfg.SyncBatchSize {
		maxMessages = s.cfg.SyncBatchSize
	}
	summary, err := s.engine.Sync(c.Request.Context(), account.ID, maxMessages)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// publicAccount strips credentials from an account for API responses.
func publicAccount(a *models.ConnectedAccount) gin.H {
	return gin.H{
		"id":           a.ID,
		"type":         a.ExternalType,
		"email":        a.ExternalEmail,
		"display_name": a.DisplayName,
		"status":       a.Status,
		"connected_at": a.ConnectedAt,
		"last_sync_at": a.LastSyncAt,
	}
}
