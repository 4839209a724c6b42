// Package apperrors defines the error taxonomy shared by all services.
// Every failed conditional update surfaces as a distinct kind so callers
// can tell a lost race from a missing document.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for transport mapping and retry decisions.
type Kind int

const (
	KindInternal Kind = iota
	// KindValidation marks malformed or out-of-range input. Never retried.
	KindValidation
	// KindAuth marks a bad or expired token or device key.
	KindAuth
	KindNotFound
	KindForbidden
	// KindInvalidStateTransition marks a lifecycle transition attempted
	// out of a terminal state, or a lost transition race.
	KindInvalidStateTransition
	// KindNoActiveSession means no in_progress session is eligible for
	// the device. Weight data is rejected, never dropped into a default
	// bucket.
	KindNoActiveSession
	// KindSessionClosed means the session was finalized between
	// resolution and the conditional append.
	KindSessionClosed
	// KindSessionFinalized marks an attach attempt against a completed
	// or aborted session.
	KindSessionFinalized
	// KindUnavailable marks an exhausted transient store or network
	// failure. Safe to retry idempotent operations.
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindInvalidStateTransition:
		return "invalid_state_transition"
	case KindNoActiveSession:
		return "no_active_session"
	case KindSessionClosed:
		return "session_closed_during_ingestion"
	case KindSessionFinalized:
		return "session_already_finalized"
	case KindUnavailable:
		return "unavailable"
	}
	return "internal"
}

// Error carries a kind, a caller-facing message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// MessageOf returns the caller-facing message, falling back to Error().
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
