// Package apperr defines the closed set of failure kinds returned by the
// ride, ledger and payment operations.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindNotFound            Kind = "NOT_FOUND"
	KindUnauthorized        Kind = "UNAUTHORIZED"
	KindConflict            Kind = "CONFLICT"
	KindInvalidInput        Kind = "INVALID_INPUT"
	KindInsufficientBalance Kind = "INSUFFICIENT_BALANCE"
	KindInternal            Kind = "INTERNAL"
)

// Sentinels for errors.Is checks. Any *Error matches the sentinel of its kind.
var (
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrUnauthorized        = &Error{Kind: KindUnauthorized}
	ErrConflict            = &Error{Kind: KindConflict}
	ErrInvalidInput        = &Error{Kind: KindInvalidInput}
	ErrInsufficientBalance = &Error{Kind: KindInsufficientBalance}
)

// Error is a typed business failure.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(op, format string, args ...any) *Error {
	return New(KindNotFound, op, format, args...)
}

func Unauthorized(op, format string, args ...any) *Error {
	return New(KindUnauthorized, op, format, args...)
}

func Conflict(op, format string, args ...any) *Error {
	return New(KindConflict, op, format, args...)
}

func InvalidInput(op, format string, args ...any) *Error {
	return New(KindInvalidInput, op, format, args...)
}

func InsufficientBalance(op, format string, args ...any) *Error {
	return New(KindInsufficientBalance, op, format, args...)
}

// Internal wraps an infrastructure failure.
func Internal(op string, err error) *Error {
	return &Error{Kind: KindInternal, Op: op, Msg: "internal error", Err: err}
}

// KindOf reports the kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
