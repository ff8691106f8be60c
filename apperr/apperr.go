// Package apperr defines the error taxonomy shared by the lobby and match
// layers. Errors carry a Kind that the transport reports back to the
// requester in its acknowledgement.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failed request.
type Kind string

const (
	NotFound           Kind = "NotFound"
	AlreadyExists      Kind = "AlreadyExists"
	UsernameTaken      Kind = "UsernameTaken"
	GameAlreadyStarted Kind = "GameAlreadyStarted"
	RoomFull           Kind = "RoomFull"
	NotOwner           Kind = "NotOwner"
	NotMember          Kind = "NotMember"
	OwnerNotReady      Kind = "OwnerNotReady"
	InsufficientReady  Kind = "InsufficientReady"
	StartInProgress    Kind = "StartInProgress"
	FactoryError       Kind = "FactoryError"
	InvalidRequest     Kind = "InvalidRequest"
	MatchOver          Kind = "MatchOver"
	Internal           Kind = "Internal"
)

// Error is a request-scoped failure.
type Error struct {
	Kind    Kind
	Message string // shown to the requester
	Err     error  // underlying cause, not shown
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf is New with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a new error of the given kind.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

// KindOf returns the kind of err, or Internal for foreign errors.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return Internal
}

// MessageOf returns the requester-facing message of err.
func MessageOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal server error"
}
