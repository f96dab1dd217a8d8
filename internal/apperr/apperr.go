// Package apperr defines the error taxonomy shared by services and delivery layers.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can react without string matching.
type Kind string

const (
	NotFound          Kind = "NOT_FOUND"
	InvalidInput      Kind = "INVALID_INPUT"
	DuplicateItem     Kind = "DUPLICATE_ITEM"
	InsufficientStock Kind = "INSUFFICIENT_STOCK"
	InvalidTransition Kind = "INVALID_TRANSITION"
	Conflict          Kind = "CONFLICT"
	Internal          Kind = "INTERNAL"

	// Raised by the HTTP layer only.
	Validation   Kind = "VALIDATION_ERROR"
	Unauthorized Kind = "UNAUTHORIZED"
	Forbidden    Kind = "FORBIDDEN"
)

// Error is a classified application error. ItemID is set when the failure
// concerns a specific book (duplicate line, missing book, short stock).
type Error struct {
	Kind    Kind
	Message string
	ItemID  int64
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so errors.Is(err, &Error{Kind: NotFound}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.ItemID == 0 || t.ItemID == e.ItemID)
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// ForItem builds an error that carries the offending book id.
func ForItem(kind Kind, itemID int64, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), ItemID: itemID}
}

// Wrap classifies err as Internal unless it already carries a kind.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: Internal, Message: msg, Err: err}
}

// KindOf returns the kind of err, or Internal for unclassified errors.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Internal
}

// ItemIDOf returns the book id attached to err, if any.
func ItemIDOf(err error) (int64, bool) {
	var ae *Error
	if errors.As(err, &ae) && ae.ItemID != 0 {
		return ae.ItemID, true
	}
	return 0, false
}

// MessageOf returns a message safe to show to clients.
func MessageOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) && ae.Kind != Internal {
		return ae.Message
	}
	return "internal server error"
}
