// Package errs defines the error kinds raised by the tracker core. The HTTP
// layer maps kinds to status codes; everything else matches on them with
// errors.As / the predicate helpers.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a core error.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindUnauthorized
	KindForbidden
	KindConflict
	KindValidation
	KindPrecondition
	KindDependencyMissing
	KindRemoteFailure
	KindTimeout
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation"
	case KindPrecondition:
		return "precondition"
	case KindDependencyMissing:
		return "dependency missing"
	case KindRemoteFailure:
		return "remote failure"
	case KindTimeout:
		return "timeout"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Error is a classified tracker error. Status carries the upstream HTTP
// status for remote failures, zero otherwise.
type Error struct {
	Kind    Kind
	Message string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches two classified errors by kind so errors.Is works against the
// kind sentinels below.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind && other.Message == ""
}

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports an absent entity, or an entity absent to this principal.
func NotFound(format string, args ...any) *Error {
	return newf(KindNotFound, format, args...)
}

// Unauthorized reports a principal lacking access entirely.
func Unauthorized(format string, args ...any) *Error {
	return newf(KindUnauthorized, format, args...)
}

// Forbidden reports an explicit owners filter outside the principal's reach.
func Forbidden(format string, args ...any) *Error {
	return newf(KindForbidden, format, args...)
}

// Conflict reports a unique-name collision.
func Conflict(format string, args ...any) *Error {
	return newf(KindConflict, format, args...)
}

// Validation reports a malformed request.
func Validation(format string, args ...any) *Error {
	return newf(KindValidation, format, args...)
}

// Precondition reports an operation applied to a task missing required state.
func Precondition(format string, args ...any) *Error {
	return newf(KindPrecondition, format, args...)
}

// DependencyMissing reports a child entity that could not be loaded by id.
func DependencyMissing(format string, args ...any) *Error {
	return newf(KindDependencyMissing, format, args...)
}

// RemoteFailure reports a non-2xx response from a peer tracker.
func RemoteFailure(status int, format string, args ...any) *Error {
	e := newf(KindRemoteFailure, format, args...)
	e.Status = status
	return e
}

// Timeout reports a deadline exceeded.
func Timeout(format string, args ...any) *Error {
	return newf(KindTimeout, format, args...)
}

// Transient wraps a retriable store or HTTP error.
func Transient(err error) *Error {
	return &Error{Kind: KindTransient, Err: err}
}

// Wrap attaches a cause to a classified error message.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	e := newf(kind, format, args...)
	e.Err = err
	return e
}

// KindOf returns the kind of err, or KindUnknown for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsConflict reports whether err is a conflict error.
func IsConflict(err error) bool { return KindOf(err) == KindConflict }

// IsTimeout reports whether err is a timeout error.
func IsTimeout(err error) bool { return KindOf(err) == KindTimeout }

// IsRemoteNotFound reports whether err is a remote failure carrying a 404,
// which the save existence probe treats as "create instead of update".
func IsRemoteNotFound(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindRemoteFailure && e.Status == 404
	}
	return false
}
