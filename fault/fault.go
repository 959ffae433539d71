// Package fault provides the structured error kinds shared across the
// orderflow services.
package fault

import (
	"errors"
	"fmt"
)

// Kind categorises an operation failure.
type Kind string

const (
	// KindValidation indicates bad caller input: an empty required field or a
	// non-positive amount.
	KindValidation Kind = "validation"
	// KindInvalidTransition indicates a status edge that is not permitted.
	KindInvalidTransition Kind = "invalid_transition"
	// KindUnauthorized indicates the actor's role does not match the operation.
	KindUnauthorized Kind = "unauthorized"
	// KindNotFound indicates a referenced order, bid, or user is missing.
	KindNotFound Kind = "not_found"
	// KindReconciliation indicates a multi-step operation left the system in a
	// partially completed state that needs repair.
	KindReconciliation Kind = "reconciliation"
)

// Error carries the failure kind alongside the operation that produced it.
type Error struct {
	Kind  Kind
	Op    string
	Msg   string
	cause error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.cause)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	case e.cause != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.cause)
	default:
		return fmt.Sprintf("%s: %s", e.Op, string(e.Kind))
	}
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error of the given kind.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap attaches a cause to a new Error of the given kind.
func Wrap(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, cause: cause}
}

// Validation builds a KindValidation error.
func Validation(op, msg string) *Error { return New(KindValidation, op, msg) }

// InvalidTransition builds a KindInvalidTransition error.
func InvalidTransition(op, msg string) *Error { return New(KindInvalidTransition, op, msg) }

// Unauthorized builds a KindUnauthorized error.
func Unauthorized(op, msg string) *Error { return New(KindUnauthorized, op, msg) }

// NotFound builds a KindNotFound error.
func NotFound(op, msg string) *Error { return New(KindNotFound, op, msg) }

// Reconciliation builds a KindReconciliation error.
func Reconciliation(op, msg string) *Error { return New(KindReconciliation, op, msg) }

// IsKind reports whether err or any error in its chain is a fault Error of
// the given kind.
func IsKind(err error, kind Kind) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind == kind
	}
	return false
}

// KindOf returns the kind of the first fault Error in the chain, or an empty
// kind when err is not a fault.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}
