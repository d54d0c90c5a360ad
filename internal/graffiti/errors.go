package graffiti

import (
	"errors"
	"fmt"
)

// Kind categorizes store errors.
type Kind string

const (
	// KindNotFound indicates no object is visible at the location.
	KindNotFound Kind = "NotFound"

	// KindForbidden indicates the session may not perform the operation.
	KindForbidden Kind = "Forbidden"

	// KindUnauthorized indicates the session's credentials were rejected.
	KindUnauthorized Kind = "Unauthorized"

	// KindPatch indicates an operation sequence could not be applied.
	KindPatch Kind = "PatchError"

	// KindPatchTestFailed indicates a test operation evaluated to false.
	KindPatchTestFailed Kind = "PatchTestFailed"

	// KindInvalidSchema indicates the schema itself is malformed.
	KindInvalidSchema Kind = "InvalidSchema"

	// KindSchemaMismatch indicates a document does not satisfy a schema.
	KindSchemaMismatch Kind = "SchemaMismatch"

	// KindUsage indicates a caller bug: bad skip/limit, malformed call.
	KindUsage Kind = "UsageError"

	// KindProtocol indicates a pod answered outside the wire contract.
	KindProtocol Kind = "ProtocolError"

	// KindConnectivity indicates the transport failed.
	KindConnectivity Kind = "ConnectivityError"

	// KindFailure is any other failure reported by a pod.
	KindFailure Kind = "Failure"
)

// Sentinels for errors.Is. A *Error matches the sentinel of its Kind.
var (
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrForbidden       = &Error{Kind: KindForbidden}
	ErrUnauthorized    = &Error{Kind: KindUnauthorized}
	ErrPatch           = &Error{Kind: KindPatch}
	ErrPatchTestFailed = &Error{Kind: KindPatchTestFailed}
	ErrInvalidSchema   = &Error{Kind: KindInvalidSchema}
	ErrSchemaMismatch  = &Error{Kind: KindSchemaMismatch}
	ErrUsage           = &Error{Kind: KindUsage}
	ErrProtocol        = &Error{Kind: KindProtocol}
	ErrConnectivity    = &Error{Kind: KindConnectivity}
	ErrFailure         = &Error{Kind: KindFailure}
)

// Error is the error type returned by every backing store.
type Error struct {
	Kind    Kind
	Message string

	// Source is the pod (or "local") the error came from, when known.
	Source string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var msg string
	if e.Message == "" && KindOf(e.Err) == e.Kind {
		// The cause already names the kind.
		msg = e.Err.Error()
	} else {
		msg = string(e.Kind)
		if e.Message != "" {
			msg += ": " + e.Message
		}
		if e.Err != nil {
			msg += ": " + e.Err.Error()
		}
	}
	if e.Source != "" {
		msg += " (source=" + e.Source + ")"
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinels by Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Source == "" && t.Kind == e.Kind
}

// NewError creates an *Error of the given kind.
func NewError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates an *Error of the given kind around err.
func WrapError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// WithSource tags err with source. An *Error is copied; an error that
// wraps one keeps its chain and is wrapped in a tagged *Error of the same
// Kind; anything else is wrapped as KindFailure.
func WithSource(err error, source string) error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		c := *e
		c.Source = source
		return &c
	}
	var e *Error
	if errors.As(err, &e) {
		return &Error{Kind: e.Kind, Source: source, Err: err}
	}
	return &Error{Kind: KindFailure, Source: source, Err: err}
}

// KindOf returns the Kind of err, or "" when err is not an *Error.
// Uses errors.As to handle wrapped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
