package signaling

import (
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// Message is the envelope exchanged with the relay: {"type": ..., "payload": {...}}.
type Message struct {
	Type    string  `json:"type" msgpack:"type"`
	Payload Payload `json:"payload" msgpack:"payload"`
}

// Payload carries the union of fields used by every event. Unused fields are omitted.
type Payload struct {
	RoomID    string       `json:"roomId,omitempty" msgpack:"roomId,omitempty"`
	UserID    string       `json:"userId,omitempty" msgpack:"userId,omitempty"`
	SocketID  string       `json:"socketId,omitempty" msgpack:"socketId,omitempty"`
	To        string       `json:"to,omitempty" msgpack:"to,omitempty"`
	From      string       `json:"from,omitempty" msgpack:"from,omitempty"`
	Offer     *Description `json:"offer,omitempty" msgpack:"offer,omitempty"`
	Answer    *Description `json:"answer,omitempty" msgpack:"answer,omitempty"`
	Candidate *Candidate   `json:"candidate,omitempty" msgpack:"candidate,omitempty"`
	Error     string       `json:"error,omitempty" msgpack:"error,omitempty"`
}

// Event names. Outbound events are sent by a participant, inbound ones by the relay.
const (
	EventJoinRoom          = "join-room"
	EventCreateOffer       = "create-offer"
	EventAnswer            = "answer"
	EventNegotiationNeeded = "negotiation-needed"
	EventNegoDone          = "nego-done"

	EventJoinedRoom        = "joined-room"
	EventUserJoined        = "user-joined"
	EventIncomingOffer     = "incoming-offer"
	EventAcceptedAnswer    = "accepted-answer"
	EventNegotiationAccept = "negotiation-accept"
	EventNegoFinal         = "nego-final"
	EventUserLeft          = "user-left"
	EventError             = "error"

	// EventICECandidate travels in both directions, with "to" outbound and "from" inbound.
	EventICECandidate = "ice-candidate"
)

// Relayed maps each outbound peer-to-peer event to the name the receiving side sees.
var Relayed = map[string]string{
	EventCreateOffer:       EventIncomingOffer,
	EventAnswer:            EventAcceptedAnswer,
	EventNegotiationNeeded: EventNegotiationAccept,
	EventNegoDone:          EventNegoFinal,
	EventICECandidate:      EventICECandidate,
}

var (
	ErrMissingField     = errors.New("missing field")
	ErrInvalidSDPType   = errors.New("invalid session description type")
	ErrMissingSDP       = errors.New("missing session description sdp")
	ErrEmptyCandidate   = errors.New("empty ice candidate")
	ErrUnknownEvent     = errors.New("unknown event")
	ErrClientClosed     = errors.New("signaling client closed")
	ErrUnsupportedFrame = errors.New("unsupported websocket frame")
)

// Description is a JSON-friendly SDP offer or answer.
type Description struct {
	Type string `json:"type" msgpack:"type"`
	SDP  string `json:"sdp" msgpack:"sdp"`
}

func DescriptionFromPion(d webrtc.SessionDescription) *Description {
	return &Description{Type: d.Type.String(), SDP: d.SDP}
}

// ToPion converts the description, requiring the given SDP type.
func (d *Description) ToPion(want webrtc.SDPType) (webrtc.SessionDescription, error) {
	if d == nil || d.SDP == "" {
		return webrtc.SessionDescription{}, ErrMissingSDP
	}
	if webrtc.NewSDPType(d.Type) != want {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: %q", ErrInvalidSDPType, d.Type)
	}
	return webrtc.SessionDescription{Type: want, SDP: d.SDP}, nil
}

// Candidate mirrors RTCIceCandidateInit.
type Candidate struct {
	Candidate        string  `json:"candidate" msgpack:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty" msgpack:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty" msgpack:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty" msgpack:"usernameFragment,omitempty"`
}

func CandidateFromPion(c webrtc.ICECandidateInit) *Candidate {
	return &Candidate{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

func (c *Candidate) ToPion() (webrtc.ICECandidateInit, error) {
	if c == nil || c.Candidate == "" {
		return webrtc.ICECandidateInit{}, ErrEmptyCandidate
	}
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}, nil
}

func NewJoinRoom(roomID, userID string) *Message {
	return &Message{Type: EventJoinRoom, Payload: Payload{RoomID: roomID, UserID: userID}}
}

func NewCreateOffer(to string, offer webrtc.SessionDescription) *Message {
	return &Message{Type: EventCreateOffer, Payload: Payload{To: to, Offer: DescriptionFromPion(offer)}}
}

func NewAnswer(to string, answer webrtc.SessionDescription) *Message {
	return &Message{Type: EventAnswer, Payload: Payload{To: to, Answer: DescriptionFromPion(answer)}}
}

func NewNegotiationNeeded(to string, offer webrtc.SessionDescription) *Message {
	return &Message{Type: EventNegotiationNeeded, Payload: Payload{To: to, Offer: DescriptionFromPion(offer)}}
}

func NewNegoDone(to string, answer webrtc.SessionDescription) *Message {
	return &Message{Type: EventNegoDone, Payload: Payload{To: to, Answer: DescriptionFromPion(answer)}}
}

func NewICECandidate(to string, c webrtc.ICECandidateInit) *Message {
	return &Message{Type: EventICECandidate, Payload: Payload{To: to, Candidate: CandidateFromPion(c)}}
}

func NewError(msg string) *Message {
	return &Message{Type: EventError, Payload: Payload{Error: msg}}
}

// Validate checks that the fields an event depends on are present.
func (m *Message) Validate() error {
	p := m.Payload
	missing := func(field string) error {
		return fmt.Errorf("%s: %w %q", m.Type, ErrMissingField, field)
	}

	switch m.Type {
	case EventJoinRoom:
		if p.RoomID == "" {
			return missing("roomId")
		}
	case EventCreateOffer, EventNegotiationNeeded:
		if p.To == "" {
			return missing("to")
		}
		if p.Offer == nil {
			return missing("offer")
		}
	case EventAnswer, EventNegoDone:
		if p.To == "" {
			return missing("to")
		}
		if p.Answer == nil {
			return missing("answer")
		}
	case EventIncomingOffer, EventNegotiationAccept:
		if p.From == "" {
			return missing("from")
		}
		if p.Offer == nil {
			return missing("offer")
		}
	case EventAcceptedAnswer, EventNegoFinal:
		// Answers are sender-relative; the relay may omit from.
		if p.Answer == nil {
			return missing("answer")
		}
	case EventICECandidate:
		if p.To == "" && p.From == "" {
			return missing("to")
		}
		if p.Candidate == nil {
			return missing("candidate")
		}
	case EventUserJoined:
		if p.SocketID == "" {
			return missing("socketId")
		}
	case EventJoinedRoom, EventUserLeft, EventError:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, m.Type)
	}
	return nil
}
