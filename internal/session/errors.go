package session

import (
	"errors"
	"fmt"
)

var (
	ErrNoRemoteParticipant = errors.New("no remote participant in the room")
	ErrNotJoined           = errors.New("not joined to a room")
	ErrSignalingClosed     = errors.New("signaling connection closed")
	ErrLeft                = errors.New("session already left")
	ErrUnexpectedEvent     = errors.New("unexpected relay event")
)

type CallError struct {
	Op      string
	Err     error
	Details string
}

func (e *CallError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *CallError {
	return &CallError{Op: op, Err: err}
}

func WrapError(op string, err error, details string) *CallError {
	return &CallError{Op: op, Err: err, Details: details}
}
