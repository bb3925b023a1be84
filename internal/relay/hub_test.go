package relay

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BioHazard786/Warpcall/internal/signaling"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startRelay(t *testing.T) (*Hub, string) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(quietLogger())
	go hub.Run(ctx)

	srv := httptest.NewServer(NewRouter(hub, false))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})

	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string, codec signaling.Codec) *signaling.Client {
	t.Helper()

	c := signaling.NewClient(url, signaling.ClientOptions{Codec: codec, Logger: quietLogger()})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	t.Cleanup(c.Close)
	return c
}

func expect(t *testing.T, c *signaling.Client, event string) *signaling.Message {
	t.Helper()

	timeout := time.After(5 * time.Second)
	for {
		select {
		case msg, ok := <-c.Incoming():
			require.True(t, ok, "connection closed while waiting for %s", event)
			if msg.Type == event {
				return msg
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", event)
		}
	}
}

func join(t *testing.T, c *signaling.Client, room, user string) string {
	t.Helper()
	require.NoError(t, c.SendMessage(signaling.NewJoinRoom(room, user)))
	joined := expect(t, c, signaling.EventJoinedRoom)
	require.Equal(t, room, joined.Payload.RoomID)
	require.NotEmpty(t, joined.Payload.SocketID)
	return joined.Payload.SocketID
}

func TestHub_JoinAndCapacity(t *testing.T) {
	req := require.New(t)
	hub, url := startRelay(t)

	alice := dial(t, url, signaling.JSON)
	bob := dial(t, url, signaling.JSON)
	carol := dial(t, url, signaling.JSON)

	join(t, alice, "1234", "alice")
	bobID := join(t, bob, "1234", "bob")

	joined := expect(t, alice, signaling.EventUserJoined)
	req.Equal("bob", joined.Payload.UserID)
	req.Equal(bobID, joined.Payload.SocketID)

	req.NoError(carol.SendMessage(signaling.NewJoinRoom("1234", "carol")))
	errMsg := expect(t, carol, signaling.EventError)
	req.Equal("room is full", errMsg.Payload.Error)

	req.Eventually(func() bool { return hub.Rooms() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_RelaysNegotiationEvents(t *testing.T) {
	req := require.New(t)
	_, url := startRelay(t)

	alice := dial(t, url, signaling.JSON)
	bob := dial(t, url, signaling.Msgpack)

	aliceID := join(t, alice, "1234", "alice")
	bobID := join(t, bob, "1234", "bob")
	expect(t, alice, signaling.EventUserJoined)

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"}

	cases := []struct {
		send    *signaling.Message
		from    *signaling.Client
		to      *signaling.Client
		fromID  string
		inbound string
	}{
		{signaling.NewCreateOffer(bobID, offer), alice, bob, aliceID, signaling.EventIncomingOffer},
		{signaling.NewAnswer(aliceID, answer), bob, alice, bobID, signaling.EventAcceptedAnswer},
		{signaling.NewNegotiationNeeded(aliceID, offer), bob, alice, bobID, signaling.EventNegotiationAccept},
		{signaling.NewNegoDone(bobID, answer), alice, bob, aliceID, signaling.EventNegoFinal},
		{signaling.NewICECandidate(bobID, webrtc.ICECandidateInit{Candidate: "candidate:1"}), alice, bob, aliceID, signaling.EventICECandidate},
	}

	for _, tc := range cases {
		req.NoError(tc.from.SendMessage(tc.send))
		got := expect(t, tc.to, tc.inbound)
		req.Equal(tc.fromID, got.Payload.From, tc.inbound)
		req.Empty(got.Payload.To, tc.inbound)
		req.Equal(tc.send.Payload.Offer, got.Payload.Offer, tc.inbound)
		req.Equal(tc.send.Payload.Answer, got.Payload.Answer, tc.inbound)
		req.Equal(tc.send.Payload.Candidate, got.Payload.Candidate, tc.inbound)
	}
}

func TestHub_Errors(t *testing.T) {
	_, url := startRelay(t)

	t.Run("relay before join", func(t *testing.T) {
		c := dial(t, url, signaling.JSON)
		require.NoError(t, c.SendMessage(signaling.NewCreateOffer("nobody", webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"})))
		require.Equal(t, "you must join a room first", expect(t, c, signaling.EventError).Payload.Error)
	})

	t.Run("unknown addressee", func(t *testing.T) {
		c := dial(t, url, signaling.JSON)
		join(t, c, "lonely", "dave")
		require.NoError(t, c.SendMessage(signaling.NewAnswer("ghost", webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"})))
		require.Equal(t, "peer not found", expect(t, c, signaling.EventError).Payload.Error)
	})

	t.Run("malformed payload", func(t *testing.T) {
		c := dial(t, url, signaling.JSON)
		require.NoError(t, c.SendMessage(&signaling.Message{Type: signaling.EventJoinRoom}))
		require.Contains(t, expect(t, c, signaling.EventError).Payload.Error, "roomId")
	})
}

func TestHub_UserLeft(t *testing.T) {
	req := require.New(t)
	hub, url := startRelay(t)

	alice := dial(t, url, signaling.JSON)
	bob := dial(t, url, signaling.JSON)

	join(t, alice, "1234", "alice")
	bobID := join(t, bob, "1234", "bob")
	expect(t, alice, signaling.EventUserJoined)

	bob.Close()

	left := expect(t, alice, signaling.EventUserLeft)
	req.Equal(bobID, left.Payload.SocketID)

	alice.Close()
	req.Eventually(func() bool { return hub.Rooms() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestRouter_Health(t *testing.T) {
	req := require.New(t)
	hub := NewHub(quietLogger())

	rec := httptest.NewRecorder()
	NewRouter(hub, false).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	req.Equal(http.StatusOK, rec.Code)

	var body map[string]any
	req.NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	req.Equal("ok", body["status"])
	req.EqualValues(0, body["rooms"])
}
