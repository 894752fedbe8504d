// Package apperr defines the error taxonomy shared by all services.
// Every failure path returns a distinguishable kind; transport layers
// map kinds to status codes in exactly one place.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers.
type Kind int

const (
	// KindInternal covers infrastructure failures (connection loss,
	// unexpected persistence errors). Not retryable by the core.
	KindInternal Kind = iota
	// KindValidation is malformed input, fixable by the caller.
	KindValidation
	// KindNotFound means a referenced entity does not exist.
	KindNotFound
	// KindAccessDenied means the caller is authenticated but not
	// authorized for this entity.
	KindAccessDenied
	// KindConflict covers already_marked and duplicate-write races.
	KindConflict
	// KindExpired means a session is past its window or deactivated.
	KindExpired
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindAccessDenied:
		return "access_denied"
	case KindConflict:
		return "conflict"
	case KindExpired:
		return "expired"
	default:
		return "internal"
	}
}

// Error carries a kind, a caller-facing message and an optional cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a new error of the given kind.
func E(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the kind from err, defaulting to KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the caller-facing message for err. Internal errors get
// a generic message so infrastructure details never leak to clients.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Msg
	}
	return "internal server error"
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
