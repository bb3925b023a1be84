package signaling

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

func TestMessage_WireShape(t *testing.T) {
	req := require.New(t)

	msg := NewCreateOffer("sock-b", webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"})
	data, err := JSON.Marshal(msg)
	req.NoError(err)
	req.JSONEq(`{"type":"create-offer","payload":{"to":"sock-b","offer":{"type":"offer","sdp":"v=0"}}}`, string(data))

	var join map[string]any
	data, err = json.Marshal(NewJoinRoom("1234", "alice"))
	req.NoError(err)
	req.NoError(json.Unmarshal(data, &join))
	req.Equal("join-room", join["type"])
	req.Equal(map[string]any{"roomId": "1234", "userId": "alice"}, join["payload"])
}

func TestMessage_Validate(t *testing.T) {
	offer := &Description{Type: "offer", SDP: "v=0"}
	answer := &Description{Type: "answer", SDP: "v=0"}

	cases := []struct {
		name string
		msg  Message
		err  error
	}{
		{"join ok", Message{Type: EventJoinRoom, Payload: Payload{RoomID: "1234"}}, nil},
		{"join without room", Message{Type: EventJoinRoom}, ErrMissingField},
		{"incoming offer ok", Message{Type: EventIncomingOffer, Payload: Payload{From: "a", Offer: offer}}, nil},
		{"incoming offer without from", Message{Type: EventIncomingOffer, Payload: Payload{Offer: offer}}, ErrMissingField},
		{"nego final ok", Message{Type: EventNegoFinal, Payload: Payload{From: "a", Answer: answer}}, nil},
		{"nego final without from", Message{Type: EventNegoFinal, Payload: Payload{Answer: answer}}, nil},
		{"accepted answer without from", Message{Type: EventAcceptedAnswer, Payload: Payload{Answer: answer}}, nil},
		{"accepted answer without sdp", Message{Type: EventAcceptedAnswer}, ErrMissingField},
		{"answer without sdp", Message{Type: EventAnswer, Payload: Payload{To: "a"}}, ErrMissingField},
		{"candidate without body", Message{Type: EventICECandidate, Payload: Payload{To: "a"}}, ErrMissingField},
		{"user left", Message{Type: EventUserLeft}, nil},
		{"unknown", Message{Type: "dance"}, ErrUnknownEvent},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.msg.Validate()
			if tc.err == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.err)
		})
	}
}

func TestDescription_ToPion(t *testing.T) {
	req := require.New(t)

	d := &Description{Type: "answer", SDP: "v=0"}
	got, err := d.ToPion(webrtc.SDPTypeAnswer)
	req.NoError(err)
	req.Equal(webrtc.SDPTypeAnswer, got.Type)

	_, err = d.ToPion(webrtc.SDPTypeOffer)
	req.ErrorIs(err, ErrInvalidSDPType)

	var missing *Description
	_, err = missing.ToPion(webrtc.SDPTypeOffer)
	req.ErrorIs(err, ErrMissingSDP)
}

func TestCandidate_RoundTripThroughPion(t *testing.T) {
	req := require.New(t)

	mid := "0"
	idx := uint16(0)
	init := webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 1 127.0.0.1 5000 typ host", SDPMid: &mid, SDPMLineIndex: &idx}

	got, err := CandidateFromPion(init).ToPion()
	req.NoError(err)
	req.Equal(init, got)

	_, err = (&Candidate{}).ToPion()
	req.ErrorIs(err, ErrEmptyCandidate)
}

func TestCodecs(t *testing.T) {
	msg := NewNegoDone("sock-a", webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"})

	for _, codec := range []Codec{JSON, Msgpack} {
		t.Run(codec.Name(), func(t *testing.T) {
			req := require.New(t)

			data, err := codec.Marshal(msg)
			req.NoError(err)

			got, used, err := Decode(codec.FrameType(), data)
			req.NoError(err)
			req.Equal(codec.Name(), used.Name())
			req.Equal(msg, got)
		})
	}

	_, _, err := Decode(websocket.PingMessage, nil)
	require.True(t, errors.Is(err, ErrUnsupportedFrame))

	c, err := CodecByName("msgpack")
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, c.FrameType())

	_, err = CodecByName("xml")
	require.Error(t, err)
}
