package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/postadepo/server/internal/models"
	"github.com/postadepo/server/internal/store"
)

var (
	// ErrInvalidCredentials is returned for a wrong email or password. The
	// two cases are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrNotApproved is returned when the user exists but has not been
	// whitelisted by an admin yet.
	ErrNotApproved = errors.New("account pending admin approval")

	// ErrEmailTaken is returned when registering an address that already
	// has an account.
	ErrEmailTaken = errors.New("email address already registered")
)

// Service handles registration and password login.
type Service struct {
	store *store.Store
}

func NewService(s *store.Store) *Service {
	return &Service{store: s}
}

// Register creates a new unapproved user. The user cannot log in until an
// admin approves them.
func (s *Service) Register(ctx context.Context, name, email, password string) (*models.User, error) {
	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Approved:     false,
		UserType:     models.UserTypeEmail,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login validates credentials and the approval flag.
func (s *Service) Login(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	if !user.Approved {
		return nil, ErrNotApproved
	}
	return user, nil
}

// EnsureUser fetches or creates an approved user, used for accounts that
// authenticate through an external provider and for the built-in demo user.
func (s *Service) EnsureUser(ctx context.Context, name, email, password string, userType models.UserType) (*models.User, bool, error) {
	existing, err := s.store.GetUserByEmail(ctx, email)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, false, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Approved:     true,
		UserType:     userType,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, false, err
	}
	return user, true, nil
}
