// Package apperr defines the error taxonomy shared by the match engine, the
// chat engine and their HTTP and websocket surfaces. Every error that should be
// visible to a caller carries a Kind; anything else is treated as internal.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for propagation to callers.
type Kind uint8

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindConflict
	KindState
	KindRateLimited
)

var kindNames = map[Kind]string{
	KindInternal:       "internal_error",
	KindValidation:     "validation_error",
	KindAuthentication: "authentication_error",
	KindAuthorization:  "authorization_error",
	KindNotFound:       "not_found",
	KindConflict:       "conflict",
	KindState:          "invalid_state",
	KindRateLimited:    "rate_limited",
}

// String returns the wire code for k.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Status maps k to its HTTP status code.
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindState:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified error. Details are extra fields merged into the HTTP
// error body (e.g. the current status of a conflicting match). Details never
// replace the error and msg fields.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// With returns e with the detail key set. It mutates and returns e so
// constructors can be chained.
func (e *Error) With(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error {
	return newf(KindValidation, format, args...)
}

func Authentication(format string, args ...any) *Error {
	return newf(KindAuthentication, format, args...)
}

func Authorization(format string, args ...any) *Error {
	return newf(KindAuthorization, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return newf(KindNotFound, format, args...)
}

func Conflict(format string, args ...any) *Error {
	return newf(KindConflict, format, args...)
}

// State reports an operation that is not allowed from the record's current state.
func State(format string, args ...any) *Error {
	return newf(KindState, format, args...)
}

func RateLimited(format string, args ...any) *Error {
	return newf(KindRateLimited, format, args...)
}

// Internal wraps an infrastructure failure. The message shown to callers is
// generic; err is kept for logs.
func Internal(err error, format string, args ...any) *Error {
	e := newf(KindInternal, format, args...)
	e.Err = err
	return e
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
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

// HTTPStatus maps err to an HTTP status code.
func HTTPStatus(err error) int {
	return KindOf(err).Status()
}

// Body builds the structured error body returned to HTTP callers.
func Body(err error) map[string]any {
	var e *Error
	if !errors.As(err, &e) || e.Kind == KindInternal {
		return map[string]any{"error": KindInternal.String(), "msg": "Server error"}
	}
	body := map[string]any{"error": e.Kind.String(), "msg": e.Message}
	for k, v := range e.Details {
		if _, reserved := body[k]; reserved {
			continue
		}
		body[k] = v
	}
	return body
}
