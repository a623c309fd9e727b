package api

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/postadepo/server/internal/accounts"
	"github.com/postadepo/server/internal/auth"
	"github.com/postadepo/server/internal/oauth"
	"github.com/postadepo/server/internal/store"
	"github.com/postadepo/server/internal/sync"
)

// fail maps a core error kind to its HTTP status and writes a flat,
// single-level error payload. Nested error objects break naive clients, so
// the message is always one string.
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := err.Error()

	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, auth.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, auth.ErrNotApproved):
		status = http.StatusForbidden
	case errors.Is(err, auth.ErrEmailTaken),
		errors.Is(err, accounts.ErrInvalidState),
		errors.Is(err, accounts.ErrDuplicateAccount),
		errors.Is(err, oauth.ErrInvalidGrant),
		errors.Is(err, oauth.ErrRedirectURIMismatch):
		status = http.StatusBadRequest
	case errors.Is(err, sync.ErrReauthorizationRequired):
		status = http.StatusUnauthorized
	case errors.Is(err, accounts.ErrProfileFetchFailed),
		errors.Is(err, oauth.ErrProviderUnavailable),
		errors.Is(err, oauth.ErrNotConfigured),
		errors.Is(err, sync.ErrProviderUnsupported):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		log.Printf("api: internal error: %v", err)
		message = "internal server error"
	}

	c.JSON(status, gin.H{"error": message})
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "PostaDepo API is running", "status": "healthy"})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now().UTC()})
}
