package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/postadepo/server/internal/models"
	"github.com/postadepo/server/internal/store"
)

const tokenLifetime = 24 * time.Hour

// ContextUserKey is the gin context key holding the authenticated *models.User.
const ContextUserKey = "current_user"

// JWT issues and verifies the session tokens handed to the frontend.
type JWT struct {
	secret []byte
	store  *store.Store
}

func NewJWT(secret string, s *store.Store) *JWT {
	return &JWT{secret: []byte(secret), store: s}
}

// Issue creates a signed session token for the user.
func (j *JWT) Issue(user *models.User) (string, error) {
	now := time.Now()
	tok, err := jwt.NewBuilder().
		Subject(user.ID).
		Claim("email", user.Email).
		Claim("name", user.Name).
		IssuedAt(now).
		Expiration(now.Add(tokenLifetime)).
		Build()
	if err != nil {
		return "", fmt.Errorf("failed to build token: %w", err)
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, j.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return string(signed), nil
}

// UserFromRequest validates the bearer token and loads the user it names.
// jwt.ParseRequest handles the "Bearer " prefix and expiry validation.
func (j *JWT) UserFromRequest(r *http.Request) (*models.User, error) {
	tok, err := jwt.ParseRequest(r,
		jwt.WithKey(jwa.HS256, j.secret),
		jwt.WithValidate(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWT: %w", err)
	}

	userID := tok.Subject()
	if userID == "" {
		return nil, fmt.Errorf("token missing user ID (subject)")
	}

	user, err := j.store.GetUser(r.Context(), userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("user no longer exists")
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Middleware authenticates the request and stashes the user in the context.
func (j *JWT) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := j.UserFromRequest(c.Request)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			c.Abort()
			return
		}
		c.Set(ContextUserKey, user)
		c.Next()
	}
}

// RequireAdmin allows only admin users past. Must run after Middleware.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil || user.UserType != models.UserTypeAdmin {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentUser returns the authenticated user set by Middleware, or nil.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(ContextUserKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}
