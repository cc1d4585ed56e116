// Package fault defines the failure categories shared by the guard, the rate
// limiter, the audit log and the route layer.
//
// A *Error carries two things: the Kind that decides the response class, and
// an internal Detail/Err pair that is only ever logged. Nothing from Detail or
// Err reaches the client; user-facing text comes from Message.
package fault

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind is a failure category.
type Kind int

const (
	KindInternal Kind = iota
	KindUnauthenticated
	KindForbidden
	KindRateLimited
	KindValidation
	KindConflict
	KindNotFound
)

var kindNames = map[Kind]string{
	KindInternal:        "internal",
	KindUnauthenticated: "unauthenticated",
	KindForbidden:       "forbidden",
	KindRateLimited:     "rate_limited",
	KindValidation:      "validation",
	KindConflict:        "conflict",
	KindNotFound:        "not_found",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "internal"
}

// Sentinels usable with errors.Is against any *Error of the same kind.
var (
	ErrInternal        = &Error{Kind: KindInternal}
	ErrUnauthenticated = &Error{Kind: KindUnauthenticated}
	ErrForbidden       = &Error{Kind: KindForbidden}
	ErrRateLimited     = &Error{Kind: KindRateLimited}
	ErrValidation      = &Error{Kind: KindValidation}
	ErrConflict        = &Error{Kind: KindConflict}
	ErrNotFound        = &Error{Kind: KindNotFound}
)

// Error is a categorized failure.
type Error struct {
	Kind Kind
	// Detail is for logs only.
	Detail string
	// RetryAfter is set for KindRateLimited.
	RetryAfter time.Duration
	// Field names the offending input for KindValidation.
	Field string
	Err   error
}

func (e *Error) Error() string {
	switch {
	case e.Detail != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	case e.Detail != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports kind equality so that errors.Is(err, fault.ErrForbidden) works
// for any forbidden failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Detail == "" && t.Err == nil
}

func Internal(detail string, err error) *Error {
	return &Error{Kind: KindInternal, Detail: detail, Err: err}
}

func Unauthenticated(detail string, err error) *Error {
	return &Error{Kind: KindUnauthenticated, Detail: detail, Err: err}
}

func Forbidden(detail string, err error) *Error {
	return &Error{Kind: KindForbidden, Detail: detail, Err: err}
}

func Conflict(detail string, err error) *Error {
	return &Error{Kind: KindConflict, Detail: detail, Err: err}
}

func NotFound(detail string) *Error {
	return &Error{Kind: KindNotFound, Detail: detail}
}

// Validation reports a bad input field.
func Validation(field, detail string) *Error {
	return &Error{Kind: KindValidation, Field: field, Detail: detail}
}

// RateLimited reports an exhausted window. retryAfter is rounded up to whole
// seconds by RetryAfterSeconds.
func RateLimited(detail string, retryAfter time.Duration) *Error {
	return &Error{Kind: KindRateLimited, Detail: detail, RetryAfter: retryAfter}
}

// KindOf returns the category of err. Errors that are not *Error are internal.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindInternal
}

// As returns the *Error in err's chain, wrapping foreign errors as internal.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return Internal("", err)
}

// RetryAfterSeconds returns the whole-second retry hint carried by err, or 0.
func RetryAfterSeconds(err error) int {
	var fe *Error
	if !errors.As(err, &fe) || fe.Kind != KindRateLimited {
		return 0
	}
	secs := int((fe.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Status maps a kind to its HTTP status code.
func Status(k Kind) int {
	switch k {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
