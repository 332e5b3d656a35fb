package service

import (
	"errors"
	"fmt"
)

// Kind classifies a coordinator failure.  Callers switch on the kind to
// pick a transport status; the message is meant for humans.
type Kind string

const (
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindValidation Kind = "validation"
	KindInternal   Kind = "internal"
)

// Error is the typed error returned by every coordinator operation.
// Err carries the underlying store failure for internal errors and is
// never shown to callers.
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

// Is lets the bare kind sentinels (ErrNotFound, ErrConflict, ...) match
// any error of the same kind, while message-specific sentinels such as
// ErrTableAtCapacity only match themselves.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Message == "" {
		return t.Kind == e.Kind
	}
	return t == e
}

// Kind sentinels for errors.Is checks.
var (
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrConflict   = &Error{Kind: KindConflict}
	ErrValidation = &Error{Kind: KindValidation}
	ErrInternal   = &Error{Kind: KindInternal}
)

var (
	ErrTableNotFound       = notFound("table not found")
	ErrSessionNotFound     = notFound("session not found")
	ErrParticipantNotFound = notFound("participant not found")

	ErrTableAtCapacity      = conflict("table at capacity")
	ErrAlreadyInSession     = conflict("user already in session")
	ErrNameTaken            = conflict("name taken")
	ErrPendingOrders        = conflict("cannot leave with pending orders")
	ErrDifferentSessions    = conflict("participants not in the same session")
	ErrOrderNotTransferable = conflict("order not found or not transferable")
	ErrSameParticipant      = conflict("cannot transfer an order to its current owner")
)

func notFound(msg string) *Error { return &Error{Kind: KindNotFound, Message: msg} }
func conflict(msg string) *Error { return &Error{Kind: KindConflict, Message: msg} }

func validation(msg string) *Error { return &Error{Kind: KindValidation, Message: msg} }

func internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// KindOf returns the kind of err, treating anything that is not an
// *Error as internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the caller-facing message for err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "internal error"
}
