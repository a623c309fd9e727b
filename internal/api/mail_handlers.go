package api

import (
	"archive/zip"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/postadepo/server/internal/auth"
	"github.com/postadepo/server/internal/demo"
	"github.com/postadepo/server/internal/models"
)

func (s *Server) handleListEmails(c *gin.Context) {
	user := auth.CurrentUser(c)
	folder := c.DefaultQuery("folder", models.FolderInbox)

	mails, err := s.store.ListMail(c.Request.Context(), user.ID, folder)
	if err != nil {
		fail(c, err)
		return
	}
	counts, err := s.store.FolderCounts(c.Request.Context(), user.ID)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"emails": mails, "folderCounts": counts})
}

func (s *Server) handleThread(c *gin.Context) {
	user := auth.CurrentUser(c)
	mails, err := s.store.ListThread(c.Request.Context(), user.ID, c.Param("threadID"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"emails": mails})
}

func (s *Server) handleMarkRead(c *gin.Context) {
	user := auth.CurrentUser(c)
	if err := s.store.MarkRead(c.Request.Context(), c.Param("id"), user.ID); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleToggleImportant(c *gin.Context) {
	user := auth.CurrentUser(c)
	important, err := s.store.ToggleImportant(c.Request.Context(), c.Param("id"), user.ID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "important": important})
}

func (s *Server) handleDeleteEmail(c *gin.Context) {
	user := auth.CurrentUser(c)
	if err := s.store.DeleteMail(c.Request.Context(), c.Param("id"), user.ID); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// handleDemoSync generates a small batch of incoming demo mail. Real
// accounts sync through /outlook/sync instead.
func (s *Server) handleDemoSync(c *gin.Context) {
	user := auth.CurrentUser(c)
	n, err := demo.SyncBatch(c.Request.Context(), s.store, user.ID, user.Email)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "new_emails": n})
}

// handleImportEmails accepts a mailbox archive upload. Parsing PST/OST
// archives is out of scope here, so the upload is validated and acknowledged
// without ingesting messages.
func (s *Server) handleImportEmails(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": "missing required form field: file",
			"field": "file",
		})
		return
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	switch ext {
	case ".pst", ".ost", ".eml":
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported file type, expected .pst, .ost or .eml"})
		return
	}

	user := auth.CurrentUser(c)
	_ = s.store.AppendLog(c.Request.Context(), "info", "mail.import",
		fmt.Sprintf("import requested: %s (%d bytes)", file.Filename, file.Size), user.ID)

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"message":        "file received, import scheduled",
		"imported_count": 0,
		"filename":       file.Filename,
	})
}

type exportRequest struct {
	Format string `json:"format" binding:"required,oneof=json zip eml"`
	Folder string `json:"folder"`
}

// handleExportEmails streams the user's mailbox in the requested format.
func (s *Server) handleExportEmails(c *gin.Context) {
	var req exportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	if req.Folder == "" {
		req.Folder = models.FolderAll
	}

	user := auth.CurrentUser(c)
	mails, err := s.store.ListMail(c.Request.Context(), user.ID, req.Folder)
	if err != nil {
		fail(c, err)
		return
	}

	switch req.Format {
	case "json":
		c.Header("Content-Disposition", `attachment; filename="postadepo-export.json"`)
		c.JSON(http.StatusOK, gin.H{"emails": mails, "count": len(mails)})

	case "zip":
		c.Header("Content-Disposition", `attachment; filename="postadepo-export.zip"`)
		c.Header("Content-Type", "application/zip")
		zw := zip.NewWriter(c.Writer)
		for i := range mails {
			f, err := zw.Create(fmt.Sprintf("%04d-%s.eml", i+1, mails[i].ID))
			if err != nil {
				break
			}
			writeEML(f, &mails[i])
		}
		if err := zw.Close(); err != nil {
			_ = c.Error(err)
		}

	case "eml":
		c.Header("Content-Disposition", `attachment; filename="postadepo-export.eml"`)
		c.Header("Content-Type", "message/rfc822")
		for i := range mails {
			writeEML(c.Writer, &mails[i])
			fmt.Fprint(c.Writer, "\r\n")
		}
	}
}

func writeEML(w io.Writer, m *models.Mail) {
	fmt.Fprintf(w, "From: %s\r\n", m.Sender)
	fmt.Fprintf(w, "To: %s\r\n", m.Recipient)
	fmt.Fprintf(w, "Subject: %s\r\n", m.Subject)
	fmt.Fprintf(w, "Date: %s\r\n", m.Date.Format("Mon, 02 Jan 2006 15:04:05 -0700"))
	// Stored content types are the bare "text"/"html" markers, not MIME types.
	contentType := "text/plain; charset=utf-8"
	if m.ContentType == "html" {
		contentType = "text/html; charset=utf-8"
	}
	fmt.Fprintf(w, "Content-Type: %s\r\n\r\n", contentType)
	fmt.Fprint(w, m.Content)
	fmt.Fprint(w, "\r\n")
}

func (s *Server) handleStorageInfo(c *gin.Context) {
	user := auth.CurrentUser(c)
	total, size, err := s.store.StorageInfo(c.Request.Context(), user.ID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"totalEmails": total, "totalSize": size})
}
