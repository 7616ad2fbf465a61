package types

import "errors"

// ErrorKind classifies every failure a client can observe.
type ErrorKind int

const (
	// KindPersistence is the default for anything unclassified: store down,
	// constraint violation, blob write failure.
	KindPersistence ErrorKind = iota
	KindDenied
	KindNotFound
	KindValidation
	KindRateLimited
	KindUnauthenticated
)

func (k ErrorKind) String() string {
	switch k {
	case KindDenied:
		return "authorization_denied"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation_error"
	case KindRateLimited:
		return "rate_limited"
	case KindUnauthenticated:
		return "unauthenticated"
	default:
		return "persistence_failure"
	}
}

// ChatError carries a human readable message the front end renders directly.
// ARCHITECTURAL DISCOVERY: each cause gets its own sentinel so callers can use
// errors.Is while the client still receives a distinct sentence per cause
type ChatError struct {
	Kind    ErrorKind
	Message string
}

func (e *ChatError) Error() string { return e.Message }

func newError(kind ErrorKind, msg string) *ChatError {
	return &ChatError{Kind: kind, Message: msg}
}

// Denied, NotFound and Invalid build package-level sentinels.
func Denied(msg string) *ChatError   { return newError(KindDenied, msg) }
func NotFound(msg string) *ChatError { return newError(KindNotFound, msg) }
func Invalid(msg string) *ChatError  { return newError(KindValidation, msg) }

// PersistenceMessage is the only text a client sees for store failures.
const PersistenceMessage = "Something went wrong while saving your change. Please try again."

// KindOf unwraps err to its ChatError kind. Unknown errors are persistence failures.
func KindOf(err error) ErrorKind {
	var ce *ChatError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindPersistence
}

// UserMessage returns the sentence a client should see for err.
func UserMessage(err error) string {
	var ce *ChatError
	if errors.As(err, &ce) {
		return ce.Message
	}
	return PersistenceMessage
}

// Shared validation sentinels.
var (
	ErrMalformedFrame    = Invalid("The message could not be read. Please refresh and try again.")
	ErrUnknownType       = Invalid("This action is not supported.")
	ErrEmptyText         = Invalid("Message text cannot be empty.")
	ErrTextTooLong       = Invalid("Message text is too long.")
	ErrInvalidScope      = Invalid("Unknown conversation type.")
	ErrInvalidMessageID  = Invalid("Invalid message id.")
	ErrMissingGroup      = Invalid("A group must be specified.")
	ErrMissingRecipient  = Invalid("A recipient must be specified.")
	ErrMissingReaction   = Invalid("A reaction must be specified.")
	ErrMissingToken      = Invalid("Please sign in again.")
	ErrMissingFile       = Invalid("No file was attached.")
	ErrInvalidFileTarget = Invalid("Files can only be sent to the global room, a group or a user.")
)
