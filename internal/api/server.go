package api

import (
	"github.com/gin-gonic/gin"

	"github.com/postadepo/server/internal/accounts"
	"github.com/postadepo/server/internal/auth"
	"github.com/postadepo/server/internal/config"
	"github.com/postadepo/server/internal/oauth"
	"github.com/postadepo/server/internal/store"
	"github.com/postadepo/server/internal/sync"
)

// Server wires the core services to the REST surface. It owns no logic of
// its own: handlers validate input, call one service, and map error kinds
// to status codes.
type Server struct {
	cfg       *config.Config
	store     *store.Store
	auth      *auth.Service
	jwt       *auth.JWT
	states    *oauth.StateTracker
	oauth     *oauth.Client
	connector *accounts.Connector
	engine    *sync.Engine
}

func NewServer(
	cfg *config.Config,
	s *store.Store,
	authSvc *auth.Service,
	jwt *auth.JWT,
	states *oauth.StateTracker,
	oauthClient *oauth.Client,
	connector *accounts.Connector,
	engine *sync.Engine,
) *Server {
	return &Server{
		cfg:       cfg,
		store:     s,
		auth:      authSvc,
		jwt:       jwt,
		states:    states,
		oauth:     oauthClient,
		connector: connector,
		engine:    engine,
	}
}

// Register mounts all routes under /api.
func (s *Server) Register(r *gin.Engine) {
	api := r.Group("/api")

	api.GET("/", s.handleRoot)
	api.GET("/health", s.handleHealth)

	api.POST("/auth/register", s.handleRegister)
	api.POST("/auth/login", s.handleLogin)
	api.GET("/auth/callback", s.handleOAuthCallback)
	api.POST("/auth/callback", s.handleOAuthCallback)

	authed := api.Group("/")
	authed.Use(s.jwt.Middleware())

	authed.GET("/outlook/status", s.handleOutlookStatus)
	authed.GET("/outlook/auth-url", s.handleAuthURL)
	authed.POST("/outlook/connect-account", s.handleConnectAccount)
	authed.GET("/outlook/accounts", s.handleListAccounts)
	authed.DELETE("/outlook/accounts/:id", s.handleDeleteAccount)
	authed.POST("/outlook/sync", s.handleAccountSync)

	authed.GET("/emails", s.handleListEmails)
	authed.GET("/emails/thread/:threadID", s.handleThread)
	authed.PUT("/emails/:id/read", s.handleMarkRead)
	authed.PUT("/emails/:id/important", s.handleToggleImportant)
	authed.DELETE("/emails/:id", s.handleDeleteEmail)
	authed.POST("/sync-emails", s.handleDemoSync)
	authed.POST("/import-emails", s.handleImportEmails)
	authed.POST("/export-emails", s.handleExportEmails)
	authed.GET("/storage-info", s.handleStorageInfo)

	admin := authed.Group("/admin")
	admin.Use(auth.RequireAdmin())
	admin.GET("/users", s.handleAdminUsers)
	admin.GET("/pending-users", s.handleAdminPendingUsers)
	admin.POST("/approve-user/:id", s.handleAdminApprove)
	admin.POST("/reject-user/:id", s.handleAdminReject)
	admin.POST("/bulk-approve-users", s.handleAdminBulkApprove)
	admin.POST("/bulk-reject-users", s.handleAdminBulkReject)
	admin.GET("/system-logs", s.handleAdminLogs)
	admin.GET("/system-logs/export", s.handleAdminLogsExport)
}
