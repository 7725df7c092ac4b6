// Package errs holds the error kinds shared by the attendance core.
// Callers match kinds with errors.Is; the HTTP layer maps them to status codes.
package errs

import "errors"

// Kinds.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrConflict     = errors.New("conflict")
	ErrInvalid      = errors.New("invalid input")
)

// Error is a domain error tagged with one of the kinds above.
type Error struct {
	Kind error
	Msg  string
}

// New declares a domain error of the given kind.
func New(kind error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func (e *Error) Error() string { return e.Msg }

// Unwrap exposes the kind so errors.Is(err, ErrNotFound) works on wrapped domain errors.
func (e *Error) Unwrap() error { return e.Kind }

// KindOf returns the kind carried by err, or nil for untyped errors.
func KindOf(err error) error {
	for _, k := range []error{ErrNotFound, ErrInvalidState, ErrConflict, ErrInvalid} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
