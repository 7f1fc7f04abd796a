package database

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrBusy is returned when a run is already in progress
var ErrBusy = errors.New("task is already running")

// AcquireRun atomically flips the single-row run flag from idle to running.
// The compare-and-set keeps two processes sharing the database from racing a
// separate read-then-write. Returns ErrBusy when another run holds the flag.
func (db *DB) AcquireRun(ctx context.Context) error {
	query := `UPDATE task_run_state SET is_running = true, updated_at = ? WHERE id = 1 AND is_running = false`
	result, err := db.ExecContext(ctx, query, time.Now())
	if err != nil {
		return fmt.Errorf("failed to acquire run state: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrBusy
	}
	return nil
}

// ReleaseRun clears the run flag unconditionally
func (db *DB) ReleaseRun(ctx context.Context) error {
	query := `UPDATE task_run_state SET is_running = false, updated_at = ? WHERE id = 1`
	_, err := db.ExecContext(ctx, query, time.Now())
	if err != nil {
		return fmt.Errorf("failed to release run state: %w", err)
	}
	return nil
}

// IsRunning reports whether a run currently holds the flag
func (db *DB) IsRunning(ctx context.Context) (bool, error) {
	var running bool
	err := db.GetContext(ctx, &running, `SELECT is_running FROM task_run_state WHERE id = 1`)
	if err != nil {
		return false, fmt.Errorf("failed to read run state: %w", err)
	}
	return running, nil
}
