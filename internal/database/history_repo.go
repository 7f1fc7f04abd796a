package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mkosawa/mailforward/pkg/models"
)

// RecordHistory appends a run-outcome entry for a user
func (db *DB) RecordHistory(ctx context.Context, entry *models.ForwardHistory) error {
	query := `
		INSERT INTO forward_history (user_id, status, new_mail_count, message, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		entry.UserID,
		entry.Status,
		entry.NewMailCount,
		entry.Message,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to record history: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	entry.ID = id
	entry.CreatedAt = now
	return nil
}

// Watermark returns the creation time of the latest successful run for a
// user, or nil when the user has never had one. A nil watermark means the
// next run processes all currently unread mail.
func (db *DB) Watermark(ctx context.Context, userID int64) (*time.Time, error) {
	var createdAt time.Time
	query := `
		SELECT created_at FROM forward_history
		WHERE user_id = ? AND status = ?
		ORDER BY created_at DESC LIMIT 1
	`
	err := db.GetContext(ctx, &createdAt, query, userID, models.StatusSuccess)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get watermark: %w", err)
	}
	return &createdAt, nil
}

// PruneHistory deletes all but the keep most recently created entries for a
// user. The newest success entry is by definition among the kept rows, so the
// watermark read in the same cycle is never removed.
func (db *DB) PruneHistory(ctx context.Context, userID int64, keep int) error {
	query := `
		DELETE FROM forward_history
		WHERE user_id = ? AND id NOT IN (
			SELECT id FROM forward_history
			WHERE user_id = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		)
	`
	_, err := db.ExecContext(ctx, query, userID, userID, keep)
	if err != nil {
		return fmt.Errorf("failed to prune history: %w", err)
	}
	return nil
}

// ListHistory returns a user's newest history entries, newest first
func (db *DB) ListHistory(ctx context.Context, userID int64, limit int) ([]*models.ForwardHistory, error) {
	var entries []*models.ForwardHistory
	query := `
		SELECT * FROM forward_history
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`
	err := db.SelectContext(ctx, &entries, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	return entries, nil
}

// CountHistory returns the number of history entries for a user
func (db *DB) CountHistory(ctx context.Context, userID int64) (int, error) {
	var count int
	err := db.GetContext(ctx, &count, `SELECT COUNT(*) FROM forward_history WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to count history: %w", err)
	}
	return count, nil
}
