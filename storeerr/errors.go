// Package storeerr defines the closed set of error kinds the storage core
// returns at its boundary (spec.md §7). Lower layers annotate an error with
// (account, document, collection, cause) as they propagate it; only an
// outermost protocol adapter - out of scope here - converts these into wire
// codes.
package storeerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is the closed set of error kinds the core boundary returns.
type Kind uint8

const (
	_ Kind = iota
	AssertionFailed
	ValueTooLarge
	NotFound
	BackendUnavailable
	BackendError
	SchemaMismatch
	QuotaExceeded
	LeaseBusy
	AutoAddDisabled
	EventTooLarge
	NoDefaultCalendar
)

func (k Kind) String() string {
	switch k {
	case AssertionFailed:
		return "AssertionFailed"
	case ValueTooLarge:
		return "ValueTooLarge"
	case NotFound:
		return "NotFound"
	case BackendUnavailable:
		return "BackendUnavailable"
	case BackendError:
		return "BackendError"
	case SchemaMismatch:
		return "SchemaMismatch"
	case QuotaExceeded:
		return "QuotaExceeded"
	case LeaseBusy:
		return "LeaseBusy"
	case AutoAddDisabled:
		return "AutoAddDisabled"
	case EventTooLarge:
		return "EventTooLarge"
	case NoDefaultCalendar:
		return "NoDefaultCalendar"
	default:
		return "Unknown"
	}
}

// Error carries the error Kind plus (account, document, collection, cause)
// propagation context, as spec.md §7 requires.
type Error struct {
	Kind       Kind
	Account    uint32
	Collection string
	Document   uint32
	Reason     string
	cause      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: account=%d", e.Kind, e.Account)
	if e.Collection != "" {
		msg += fmt.Sprintf(" collection=%s", e.Collection)
	}
	if e.Document != 0 {
		msg += fmt.Sprintf(" document=%d", e.Document)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error of the given kind with a human-readable reason.
func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// Wrap builds an Error of the given kind around a causing error, attaching
// a stack trace via pkg/errors' WithStack.
func Wrap(kind Kind, cause error, reason string) *Error {
	return &Error{Kind: kind, Reason: reason, cause: errors.WithStack(cause)}
}

// WithContext returns a copy of e annotated with propagation context.
func (e *Error) WithContext(account uint32, collection string, document uint32) *Error {
	cp := *e
	cp.Account = account
	cp.Collection = collection
	cp.Document = document
	return &cp
}

// Is reports whether err (or any error it wraps) is a storeerr.Error of kind.
func Is(err error, kind Kind) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}

// Retryable reports whether a caller may retry the failing operation
// without operator intervention, per spec.md §7.
func Retryable(err error) bool {
	var se *Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Kind {
	case AssertionFailed, BackendUnavailable:
		return true
	default:
		return false
	}
}
