package negotiation

// State is the negotiation round a PeerSession is in.
type State int

const (
	StateIdle State = iota
	StateOfferCreated
	StateOfferReceived
	StateAnswerCreated
	StateStable
	StateRenegotiating
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOfferCreated:
		return "offer-created"
	case StateOfferReceived:
		return "offer-received"
	case StateAnswerCreated:
		return "answer-created"
	case StateStable:
		return "stable"
	case StateRenegotiating:
		return "renegotiating"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// awaitingAnswer reports whether a local offer is outstanding.
func (s State) awaitingAnswer() bool {
	return s == StateOfferCreated || s == StateRenegotiating
}

// beforeOffer is the state a round started from.
func (s State) beforeOffer() State {
	if s == StateRenegotiating {
		return StateStable
	}
	return StateIdle
}
