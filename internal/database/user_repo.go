package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mkosawa/mailforward/pkg/models"
)

// ErrNotFound is returned when a record is not found
var ErrNotFound = errors.New("record not found")

// CreateUser creates a new user account
func (db *DB) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (email, server, smtp_server, username_enc, password_enc, needs_credential_reset, is_admin, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		user.Email,
		user.Server,
		user.SMTPServer,
		user.UsernameEnc,
		user.PasswordEnc,
		user.NeedsCredentialReset,
		user.IsAdmin,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

// GetUserByID returns a user by ID
func (db *DB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	query := `SELECT * FROM users WHERE id = ?`
	err := db.GetContext(ctx, &user, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// GetUserByEmail returns a user by primary email
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	query := `SELECT * FROM users WHERE email = ?`
	err := db.GetContext(ctx, &user, query, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// GetEligibleUsers returns non-admin users whose credentials are not flagged
// for reset, in creation order. Destination and policy checks happen per user
// in the run itself so skips can be reported.
func (db *DB) GetEligibleUsers(ctx context.Context) ([]*models.User, error) {
	var users []*models.User
	query := `SELECT * FROM users WHERE needs_credential_reset = false AND is_admin = false ORDER BY id`
	err := db.SelectContext(ctx, &users, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get eligible users: %w", err)
	}
	return users, nil
}

// SetNeedsCredentialReset flags a user as requiring a credential reset.
// Flagged users are excluded from runs until the flag is cleared.
func (db *DB) SetNeedsCredentialReset(ctx context.Context, id int64, value bool) error {
	query := `UPDATE users SET needs_credential_reset = ?, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, value, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set credential reset flag: %w", err)
	}
	return nil
}

// UpdateUserCredentials replaces the stored ciphertexts and clears the reset flag
func (db *DB) UpdateUserCredentials(ctx context.Context, id int64, usernameEnc, passwordEnc string) error {
	query := `UPDATE users SET username_enc = ?, password_enc = ?, needs_credential_reset = false, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, usernameEnc, passwordEnc, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update credentials: %w", err)
	}
	return nil
}
