package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/postadepo/server/internal/models"
)

// CreateUser inserts a new user. The caller supplies the password hash; the
// unique email constraint surfaces duplicate registrations.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, approved, user_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, u.ID, u.Name, u.Email, u.PasswordHash, boolToInt(u.Approved), string(u.UserType), u.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// GetUserByEmail returns the user with the given email, or ErrNotFound.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.scanUser(s.DB.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, approved, user_type, created_at
		FROM users WHERE email = ?
	`, email))
}

// GetUser returns the user with the given id, or ErrNotFound.
func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.scanUser(s.DB.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, approved, user_type, created_at
		FROM users WHERE id = ?
	`, id))
}

// ListUsers returns all users, newest first.
func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	return s.queryUsers(ctx, `
		SELECT id, name, email, password_hash, approved, user_type, created_at
		FROM users ORDER BY created_at DESC
	`)
}

// ListPendingUsers returns users awaiting admin approval.
func (s *Store) ListPendingUsers(ctx context.Context) ([]models.User, error) {
	return s.queryUsers(ctx, `
		SELECT id, name, email, password_hash, approved, user_type, created_at
		FROM users WHERE approved = 0 ORDER BY created_at DESC
	`)
}

// ApproveUser marks a user as approved.
func (s *Store) ApproveUser(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE users SET approved = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to approve user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteUser removes a user. Connected accounts, mail, attachments and
// pending OAuth states cascade via foreign keys.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) queryUsers(ctx context.Context, query string, args ...any) ([]models.User, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		var approved int
		var userType string
		var createdAt int64
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &approved, &userType, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		u.Approved = approved != 0
		u.UserType = models.UserType(userType)
		u.CreatedAt = time.Unix(createdAt, 0).UTC()
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	var approved int
	var userType string
	var createdAt int64
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &approved, &userType, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	u.Approved = approved != 0
	u.UserType = models.UserType(userType)
	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &u, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
