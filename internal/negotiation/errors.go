package negotiation

import (
	"errors"
	"fmt"
)

var (
	ErrRoundInProgress = errors.New("negotiation round already in progress")
	ErrNoPendingOffer  = errors.New("no local offer awaiting an answer")
	ErrGlare           = errors.New("remote offer collided with a local offer")
	ErrClosed          = errors.New("peer session closed")

	ErrCantCreateOffer          = errors.New("failed to create offer")
	ErrCantCreateAnswer         = errors.New("failed to create answer")
	ErrCantSetLocalDescription  = errors.New("failed to set local description")
	ErrCantSetRemoteDescription = errors.New("failed to set remote description")
	ErrCantAddCandidate         = errors.New("failed to add ICE candidate")
	ErrCantAttachTrack          = errors.New("failed to attach track")
)

// Error records which engine operation failed and the state it was attempted from.
type Error struct {
	Op    string
	State State
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (in %s): %v", e.Op, e.State, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op string, state State, err error) *Error {
	return &Error{Op: op, State: state, Err: err}
}

// wrap joins a sentinel with the underlying pion error so both match errors.Is.
func wrap(sentinel, cause error) error {
	return fmt.Errorf("%w: %w", sentinel, cause)
}
