package mailbox

import (
	"errors"
	"fmt"
)

// ErrorKind classifies mailbox failures so the runner can branch without
// inspecting error strings
type ErrorKind int

const (
	// KindTransient covers network and remote hiccups worth retrying
	KindTransient ErrorKind = iota
	// KindAuth means the stored credentials were rejected; retrying is pointless
	KindAuth
	// KindUnavailable means the account authenticated but no inbox is resolvable
	KindUnavailable
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuth:
		return "authentication"
	case KindUnavailable:
		return "mailbox unavailable"
	default:
		return "transient"
	}
}

// Error is a classified mailbox failure
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the classification of err, defaulting to KindTransient for
// unclassified errors so unknown remote failures stay retryable
func KindOf(err error) ErrorKind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return KindTransient
}

// IsAuth reports whether err is an authentication failure
func IsAuth(err error) bool {
	return err != nil && KindOf(err) == KindAuth
}

// IsUnavailable reports whether err means the account has no usable inbox
func IsUnavailable(err error) bool {
	return err != nil && KindOf(err) == KindUnavailable
}
