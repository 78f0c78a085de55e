package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/salescope/salescope/internal/model"
)

// ErrUserNotFound is returned when no matching platform user exists.
var ErrUserNotFound = errors.New("user not found")

// ErrDuplicateUser is returned when a username or email is already taken.
var ErrDuplicateUser = errors.New("username or email already exists")

const userColumns = "id, username, email, full_name, role, password_hash, last_login, created_at"

func scanUser(row *sql.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FullName, &u.Role, &u.PasswordHash, &u.LastLogin, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

// FindUserByUsername returns an active user by username.
func (s *Store) FindUserByUsername(ctx context.Context, username string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM platform_users WHERE username = $1 AND is_active = true`, username)
	return scanUser(row)
}

// FindUserByID returns a user by id.
func (s *Store) FindUserByID(ctx context.Context, id int64) (*model.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM platform_users WHERE id = $1`, id)
	return scanUser(row)
}

// InsertUser creates a platform user and returns it with the assigned id.
// Username and email must be unused.
func (s *Store) InsertUser(ctx context.Context, username, email, passwordHash, fullName string, role model.Role) (*model.User, error) {
	var taken int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM platform_users WHERE username = $1 OR email = $2`, username, email).Scan(&taken)
	if err != nil {
		return nil, fmt.Errorf("check existing user: %w", err)
	}
	if taken > 0 {
		return nil, ErrDuplicateUser
	}
	var id int64
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO platform_users (username, email, password_hash, full_name, role) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		username, email, passwordHash, fullName, role).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return s.FindUserByID(ctx, id)
}

// UpdatePassword replaces a user's password hash.
func (s *Store) UpdatePassword(ctx context.Context, userID int64, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE platform_users SET password_hash = $1 WHERE id = $2`, passwordHash, userID)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// TouchLastLogin records a successful login.
func (s *Store) TouchLastLogin(ctx context.Context, userID int64) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE platform_users SET last_login = NOW() WHERE id = $1`, userID); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}
