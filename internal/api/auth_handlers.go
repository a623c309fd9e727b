package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/postadepo/server/internal/demo"
	"github.com/postadepo/server/internal/models"
)

type registerRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := s.auth.Register(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		fail(c, err)
		return
	}

	_ = s.store.AppendLog(c.Request.Context(), "info", "user.registered",
		"registration pending approval: "+user.Email, user.ID)

	c.JSON(http.StatusCreated, gin.H{
		"message": "user created, awaiting admin approval",
		"user_id": user.ID,
	})
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()

	// The built-in demo account provisions itself with a generated mailbox
	// on first login.
	if req.Email == demo.Email && req.Password == demo.Password {
		user, created, err := s.auth.EnsureUser(ctx, "Demo Kullanıcı", demo.Email, demo.Password, models.UserTypeEmail)
		if err != nil {
			fail(c, err)
			return
		}
		if created {
			if err := demo.Seed(ctx, s.store, user.ID); err != nil {
				fail(c, err)
				return
			}
		}
		s.issueSession(c, user)
		return
	}

	user, err := s.auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		fail(c, err)
		return
	}
	s.issueSession(c, user)
}

func (s *Server) issueSession(c *gin.Context, user *models.User) {
	token, err := s.jwt.Issue(user)
	if err != nil {
		fail(c, errors.New("failed to generate token"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user": gin.H{
			"id":        user.ID,
			"name":      user.Name,
			"email":     user.Email,
			"user_type": user.UserType,
		},
	})
}
