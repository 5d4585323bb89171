package game

import (
	"errors"
	"fmt"
)

// Code classifies a rules failure. Codes are stable strings so transports
// can forward them to clients untouched.
type Code string

const (
	CodeInvalidState        Code = "INVALID_STATE"
	CodeAlreadyJoined       Code = "ALREADY_JOINED"
	CodeNotMember           Code = "NOT_MEMBER"
	CodeCreatorCannotLeave  Code = "CREATOR_CANNOT_LEAVE"
	CodeInsufficientPlayers Code = "INSUFFICIENT_PLAYERS"
	CodeCapacityExceeded    Code = "CAPACITY_EXCEEDED"
	CodeNoTopicAvailable    Code = "NO_TOPIC_AVAILABLE"
	CodeNoCardsRemaining    Code = "NO_CARDS_REMAINING"
	CodeNotFound            Code = "NOT_FOUND"
	CodeNotAuthorized       Code = "NOT_AUTHORIZED"
	CodeInvalidConfig       Code = "INVALID_CONFIG"
	CodeGameInProgress      Code = "GAME_IN_PROGRESS"
	// CodeInternal covers storage and provider failures.
	CodeInternal Code = "INTERNAL"
)

// Error is a recoverable rules failure returned to callers.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error carrying the same code, so callers can compare
// against the sentinels below with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Errorf builds an Error with a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error around a cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

var (
	ErrInvalidState        = &Error{Code: CodeInvalidState, Message: "operation not allowed in current state"}
	ErrAlreadyJoined       = &Error{Code: CodeAlreadyJoined, Message: "player already joined"}
	ErrNotMember           = &Error{Code: CodeNotMember, Message: "player is not a member of the game"}
	ErrCreatorCannotLeave  = &Error{Code: CodeCreatorCannotLeave, Message: "creator cannot leave the game"}
	ErrInsufficientPlayers = &Error{Code: CodeInsufficientPlayers, Message: "not enough players"}
	ErrCapacityExceeded    = &Error{Code: CodeCapacityExceeded, Message: "number range too small for all cards"}
	ErrNoTopicAvailable    = &Error{Code: CodeNoTopicAvailable, Message: "no topic available"}
	ErrNoCardsRemaining    = &Error{Code: CodeNoCardsRemaining, Message: "player has no cards remaining"}
	ErrNotFound            = &Error{Code: CodeNotFound, Message: "not found"}
	ErrNotAuthorized       = &Error{Code: CodeNotAuthorized, Message: "only the creator may do this"}
	ErrInvalidConfig       = &Error{Code: CodeInvalidConfig, Message: "invalid game configuration"}
	ErrGameInProgress      = &Error{Code: CodeGameInProgress, Message: "channel already has an active game"}
)

// CodeOf extracts the code from err, or CodeInternal for foreign errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
