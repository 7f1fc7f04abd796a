package models

import (
	"fmt"
	"time"
)

// RunStatus is the outcome of a single forwarding run for one user
type RunStatus string

const (
	StatusPending     RunStatus = "pending"
	StatusSuccess     RunStatus = "success"
	StatusAuthFailure RunStatus = "auth_failure"
	StatusFailure     RunStatus = "failure"
)

// DisplayString returns the human-readable label for a run status
func (s RunStatus) DisplayString() string {
	switch s {
	case StatusPending:
		return "not yet run"
	case StatusSuccess:
		return "completed"
	case StatusAuthFailure:
		return "authentication failed"
	case StatusFailure:
		return "forwarding failed"
	default:
		return string(s)
	}
}

// ForwardHistory is one run-attempt record for one user
type ForwardHistory struct {
	ID           int64     `db:"id"`
	UserID       int64     `db:"user_id"`
	Status       RunStatus `db:"status"`
	NewMailCount int       `db:"new_mail_count"`
	Message      string    `db:"message"` // optional diagnostic detail
	CreatedAt    time.Time `db:"created_at"`
}

// DisplayString renders the entry the way the dashboard shows it:
// success rows report the count, other rows report the status.
func (h *ForwardHistory) DisplayString() string {
	if h.Status != StatusSuccess {
		return h.Status.DisplayString()
	}
	if h.NewMailCount == 0 {
		return "no new mail"
	}
	return fmt.Sprintf("%d new message(s)", h.NewMailCount)
}
