// Package terr defines the single error kind the store reports through.
//
// Every failure path in tychostore produces a *terr.Error carrying one of
// the Kind constants below plus an optional wrapped cause, so callers can
// branch with errors.Is/errors.As instead of parsing message prefixes.
package terr

import "fmt"

// Kind classifies why an operation failed.
type Kind string

const (
	// RegistrationRequired: unregistered type under strict mode, or a
	// write was attempted without the id mapping a type requires.
	RegistrationRequired Kind = "RegistrationRequired"
	// NotFound: read_object(filter) matched zero rows.
	NotFound Kind = "NotFound"
	// TooMany: read_object(filter) matched more than one row.
	TooMany Kind = "TooMany"
	// SerializationFailed: the pluggable Serializer returned an error.
	SerializationFailed Kind = "SerializationFailed"
	// EngineError: the underlying SQL engine returned an error.
	EngineError Kind = "EngineError"
	// Cancelled: cancellation was observed before or during dispatch.
	Cancelled Kind = "Cancelled"
	// InvalidOperation: e.g. nested transaction, bad arguments, index
	// name collision with a different path.
	InvalidOperation Kind = "InvalidOperation"
)

// Error is the store's sole error type.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error chaining cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Kind == kind
	}
	return false
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
