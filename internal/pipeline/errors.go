package pipeline

import (
	"errors"
	"fmt"
)

// Per-message errors terminate at the originating connection; none of them
// are broadcast and none of them tear down a session loop.
var (
	ErrMalformedInput = errors.New("malformed input")
	ErrRoomNotFound   = errors.New("room not found")
)

// ValidationError marks a well-formed frame that is semantically invalid.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// PersistenceError wraps a failed store call. The message is not retried;
// the client may resubmit.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string { return "persist message: " + e.Err.Error() }
func (e *PersistenceError) Unwrap() error { return e.Err }

// Reason codes carried on error envelopes.
const (
	CodeMalformedInput   = "malformed_input"
	CodeValidationError  = "validation_error"
	CodeRoomNotFound     = "room_not_found"
	CodePersistenceError = "persistence_error"
	CodeInternalError    = "internal_error"
)

// ReasonCode maps a pipeline error to its stable client-visible code.
func ReasonCode(err error) string {
	var ve *ValidationError
	var pe *PersistenceError
	switch {
	case errors.Is(err, ErrMalformedInput):
		return CodeMalformedInput
	case errors.Is(err, ErrRoomNotFound):
		return CodeRoomNotFound
	case errors.As(err, &ve):
		return CodeValidationError
	case errors.As(err, &pe):
		return CodePersistenceError
	default:
		return CodeInternalError
	}
}
