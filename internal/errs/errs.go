// internal/errs/errs.go
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure the caller can recover from.
type Kind string

const (
	InvalidPayload    Kind = "InvalidPayload"
	NotFound          Kind = "NotFound"
	Unauthorized      Kind = "Unauthorized"
	InvalidState      Kind = "InvalidState"
	RuleViolation     Kind = "RuleViolation"
	ResourceExhausted Kind = "ResourceExhausted"
	InsufficientCards Kind = "InsufficientCards"
	Internal          Kind = "Internal"
)

// Error implements error so a Kind can be used as an errors.Is target.
func (k Kind) Error() string {
	return string(k)
}

// Error is a structured action failure. Reason is a short machine-readable
// code sent to clients in the acknowledgement.
type Error struct {
	Kind   Kind
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

// Is matches either the same Kind or an *Error with the same Kind and Reason.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case Kind:
		return e.Kind == t
	case *Error:
		return e.Kind == t.Kind && e.Reason == t.Reason
	}
	return false
}

// New builds an *Error.
func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// Reason returns the client-facing reason for err. Anything that is not an
// *Error is reported as internal_error.
func Reason(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return "internal_error"
}

// KindOf returns the Kind of err, Internal if it carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Common reasons shared across packages.
var (
	ErrRoomNotFound     = New(NotFound, "room_not_found")
	ErrNotMember        = New(Unauthorized, "not_a_member")
	ErrNotYourTurn      = New(Unauthorized, "not_your_turn")
	ErrNotPlaying       = New(InvalidState, "game_not_in_progress")
	ErrCardNotInHand    = New(RuleViolation, "card_not_in_hand")
	ErrNoCardsAvailable = New(ResourceExhausted, "no_cards_available")
)
