package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mkosawa/mailforward/pkg/models"
)

// GetDestination returns the forward destination for a user
func (db *DB) GetDestination(ctx context.Context, userID int64) (*models.ForwardDestination, error) {
	var dest models.ForwardDestination
	query := `SELECT * FROM forward_destinations WHERE user_id = ?`
	err := db.GetContext(ctx, &dest, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get destination: %w", err)
	}
	return &dest, nil
}

// UpsertDestination sets a user's forward address and verification state.
// Changing the address always restarts verification from the given state.
func (db *DB) UpsertDestination(ctx context.Context, userID int64, email string, state models.DestinationState) error {
	query := `
		INSERT INTO forward_destinations (user_id, email, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET email = excluded.email, state = excluded.state, updated_at = excluded.updated_at
	`
	now := time.Now()
	_, err := db.ExecContext(ctx, query, userID, email, state, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert destination: %w", err)
	}
	return nil
}

// SetDestinationState updates only the verification state
func (db *DB) SetDestinationState(ctx context.Context, userID int64, state models.DestinationState) error {
	query := `UPDATE forward_destinations SET state = ?, updated_at = ? WHERE user_id = ?`
	res, err := db.ExecContext(ctx, query, state, time.Now(), userID)
	if err != nil {
		return fmt.Errorf("failed to set destination state: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetPolicy returns the forward policy for a user
func (db *DB) GetPolicy(ctx context.Context, userID int64) (*models.ForwardPolicy, error) {
	var policy models.ForwardPolicy
	query := `SELECT * FROM forward_policies WHERE user_id = ?`
	err := db.GetContext(ctx, &policy, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get policy: %w", err)
	}
	return &policy, nil
}

// UpsertPolicy sets a user's forward mode and keep-unread flag
func (db *DB) UpsertPolicy(ctx context.Context, userID int64, mode models.ForwardMode, keepUnread bool) error {
	if !mode.Valid() {
		return fmt.Errorf("unknown forward mode %q", mode)
	}
	query := `
		INSERT INTO forward_policies (user_id, target_mode, keep_unread, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET target_mode = excluded.target_mode, keep_unread = excluded.keep_unread, updated_at = excluded.updated_at
	`
	now := time.Now()
	_, err := db.ExecContext(ctx, query, userID, mode, keepUnread, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert policy: %w", err)
	}
	return nil
}

// StopPolicy forces a user's forward mode to stopped. Used by the runner for
// permanent auto-disable after an unrecoverable failure.
func (db *DB) StopPolicy(ctx context.Context, userID int64) error {
	query := `UPDATE forward_policies SET target_mode = ?, updated_at = ? WHERE user_id = ?`
	_, err := db.ExecContext(ctx, query, models.ModeStopped, time.Now(), userID)
	if err != nil {
		return fmt.Errorf("failed to stop policy: %w", err)
	}
	return nil
}
