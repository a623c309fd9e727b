package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/postadepo/server/internal/auth"
	"github.com/postadepo/server/internal/store"
)

func (s *Server) handleAdminUsers(c *gin.Context) {
	users, err := s.store.ListUsers(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func (s *Server) handleAdminPendingUsers(c *gin.Context) {
	users, err := s.store.ListPendingUsers(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "count": len(users)})
}

func (s *Server) handleAdminApprove(c *gin.Context) {
	id := c.Param("id")
	if err := s.store.ApproveUser(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}

	admin := auth.CurrentUser(c)
	_ = s.store.AppendLog(c.Request.Context(), "info", "admin.user_approved",
		fmt.Sprintf("user %s approved by %s", id, admin.Email), id)

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "user approved"})
}

// handleAdminReject deletes the account outright; the schema cascades to
// connected accounts and stored mail.
func (s *Server) handleAdminReject(c *gin.Context) {
	id := c.Param("id")
	if err := s.store.DeleteUser(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}

	admin := auth.CurrentUser(c)
	_ = s.store.AppendLog(c.Request.Context(), "info", "admin.user_rejected",
		fmt.Sprintf("user %s rejected by %s", id, admin.Email), "")

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "user rejected"})
}

type bulkUsersRequest struct {
	UserIDs []string `json:"user_ids" binding:"required,min=1"`
}

func (s *Server) handleAdminBulkApprove(c *gin.Context) {
	var req bulkUsersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	approved := 0
	for _, id := range req.UserIDs {
		if err := s.store.ApproveUser(c.Request.Context(), id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			fail(c, err)
			return
		}
		approved++
	}

	admin := auth.CurrentUser(c)
	_ = s.store.AppendLog(c.Request.Context(), "info", "admin.bulk_approve",
		fmt.Sprintf("%d users approved by %s", approved, admin.Email), "")

	c.JSON(http.StatusOK, gin.H{"success": true, "approved_count": approved})
}

func (s *Server) handleAdminBulkReject(c *gin.Context) {
	var req bulkUsersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	rejected := 0
	for _, id := range req.UserIDs {
		if err := s.store.DeleteUser(c.Request.Context(), id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			fail(c, err)
			return
		}
		rejected++
	}

	admin := auth.CurrentUser(c)
	_ = s.store.AppendLog(c.Request.Context(), "info", "admin.bulk_reject",
		fmt.Sprintf("%d users rejected by %s", rejected, admin.Email), "")

	c.JSON(http.StatusOK, gin.H{"success": true, "rejected_count": rejected})
}

func (s *Server) handleAdminLogs(c *gin.Context) {
	logs, err := s.store.ListLogs(c.Request.Context(), 0)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs, "count": len(logs)})
}

func (s *Server) handleAdminLogsExport(c *gin.Context) {
	logs, err := s.store.ListLogs(c.Request.Context(), 0)
	if err != nil {
		fail(c, err)
		return
	}

	filename := fmt.Sprintf("system-logs-%s.json", time.Now().UTC().Format("20060102-150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.JSON(http.StatusOK, gin.H{
		"exported_at": time.Now().UTC(),
		"count":       len(logs),
		"logs":        logs,
	})
}
