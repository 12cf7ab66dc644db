// Package errs holds the error taxonomy shared by the gallery components.
// Components return *Error values; the HTTP layer turns them into a status
// code and a short message.
package errs

import (
	"errors"
	"net/http"
)

type Kind uint8

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindUnauthenticated
	KindForbidden
	KindConflict
	KindTransformFailed
	KindStorageFailed
)

var kindNames = map[Kind]string{
	KindInternal:        "internal error",
	KindValidation:      "validation failed",
	KindNotFound:        "not found",
	KindUnauthenticated: "authentication required",
	KindForbidden:       "forbidden",
	KindConflict:        "conflict",
	KindTransformFailed: "transform failed",
	KindStorageFailed:   "storage failed",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Sentinels, usable with errors.Is against any *Error of the same kind.
var (
	ErrInternal        = &Error{Kind: KindInternal}
	ErrValidation      = &Error{Kind: KindValidation}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrUnauthenticated = &Error{Kind: KindUnauthenticated}
	ErrForbidden       = &Error{Kind: KindForbidden}
	ErrConflict        = &Error{Kind: KindConflict}
	ErrTransformFailed = &Error{Kind: KindTransformFailed}
	ErrStorageFailed   = &Error{Kind: KindStorageFailed}
)

type Error struct {
	Kind Kind
	Msg  string // user-visible
	Err  error  // cause, never shown to users
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, KindInternal otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Status(err error) int {
	switch KindOf(err) {
	case KindValidation, KindConflict:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the short message that is safe to show to a user.
func Message(err error) string {
	var e *Error
	if !errors.As(err, &e) || e.Kind == KindInternal {
		return KindInternal.String()
	}
	if e.Msg == "" {
		return e.Kind.String()
	}
	return e.Msg
}
