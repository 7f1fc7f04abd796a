package models

import "time"

// DestinationState is the verification state of a forward destination
type DestinationState string

const (
	DestinationUnverified       DestinationState = "unverified"
	DestinationVerificationSent DestinationState = "verification_sent"
	DestinationVerified         DestinationState = "verified"
)

// DisplayString returns the human-readable label for a destination state
func (s DestinationState) DisplayString() string {
	switch s {
	case DestinationUnverified:
		return "not verified"
	case DestinationVerificationSent:
		return "verification mail sent"
	case DestinationVerified:
		return "verified"
	default:
		return string(s)
	}
}

// ForwardDestination is the verified external address mail is forwarded to.
// One-to-one with User.
type ForwardDestination struct {
	UserID    int64            `db:"user_id"`
	Email     string           `db:"email"`
	State     DestinationState `db:"state"`
	CreatedAt time.Time        `db:"created_at"`
	UpdatedAt time.Time        `db:"updated_at"`
}

// ForwardMode selects what to do with unread mail on each run
type ForwardMode string

const (
	ModeStopped ForwardMode = "stopped"
	ModeCount   ForwardMode = "count"
	ModeSubject ForwardMode = "subject"
	ModeFull    ForwardMode = "full"
)

// DisplayString returns the human-readable label for a forward mode
func (m ForwardMode) DisplayString() string {
	switch m {
	case ModeStopped:
		return "forwarding stopped"
	case ModeCount:
		return "unread count"
	case ModeSubject:
		return "sender and subject"
	case ModeFull:
		return "full message"
	default:
		return string(m)
	}
}

// Valid reports whether m is one of the known forward modes
func (m ForwardMode) Valid() bool {
	switch m {
	case ModeStopped, ModeCount, ModeSubject, ModeFull:
		return true
	}
	return false
}

// ForwardPolicy holds a user's forwarding settings. One-to-one with User.
type ForwardPolicy struct {
	UserID     int64       `db:"user_id"`
	TargetMode ForwardMode `db:"target_mode"`
	KeepUnread bool        `db:"keep_unread"`
	CreatedAt  time.Time   `db:"created_at"`
	UpdatedAt  time.Time   `db:"updated_at"`
}
