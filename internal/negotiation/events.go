package negotiation

import (
	"github.com/pion/webrtc/v4"
)

// EventKind names what an engine observer is told about.
type EventKind int

const (
	EventRemoteStream EventKind = iota
	EventRenegotiationNeeded
	EventLocalCandidate
	EventConnectionState
	EventStateChanged
)

func (k EventKind) String() string {
	switch k {
	case EventRemoteStream:
		return "remote-stream-available"
	case EventRenegotiationNeeded:
		return "renegotiation-needed"
	case EventLocalCandidate:
		return "local-candidate"
	case EventConnectionState:
		return "connection-state"
	case EventStateChanged:
		return "state-changed"
	default:
		return "unknown"
	}
}

// RemoteTrack is the part of *webrtc.TrackRemote the engine looks at.
type RemoteTrack interface {
	ID() string
	StreamID() string
	Kind() webrtc.RTPCodecType
}

// RemoteStream identifies the first inbound stream of the session.
type RemoteStream struct {
	ID    string
	Track RemoteTrack
}

// Event is delivered to subscribers. Only the fields matching Kind are set.
type Event struct {
	Kind       EventKind
	Stream     *RemoteStream
	Offer      webrtc.SessionDescription
	Candidate  webrtc.ICECandidateInit
	Connection webrtc.PeerConnectionState
	State      State
}

const subscriberBuffer = 256

type subscriber struct {
	ch chan Event
}
