package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/BioHazard786/Warpcall/internal/media"
	"github.com/BioHazard786/Warpcall/internal/negotiation"
	"github.com/BioHazard786/Warpcall/internal/signaling"
	"github.com/pion/webrtc/v4"
)

// Signaler is the duplex channel to the relay.
type Signaler interface {
	SendMessage(msg *signaling.Message) error
	Incoming() <-chan *signaling.Message
}

// MediaSource owns the local stream. *media.Acquirer implements it.
type MediaSource interface {
	Acquire(ctx context.Context) (*media.Stream, error)
	Retry(ctx context.Context) (*media.Stream, error)
	Release()
	MarkAttached(stream *media.Stream) bool
	Detach()
	State() media.State
}

// Participant is the other member of the room.
type Participant struct {
	SocketID string
	UserID   string
}

type Options struct {
	RoomID string
	UserID string
	// AutoSendStreams attaches local media right after answering the first offer.
	AutoSendStreams bool
	Logger          *slog.Logger
}

// Controller runs one room visit: it routes relay messages into the engine and
// forwards what the engine produces back to the remote participant.
type Controller struct {
	opts      Options
	sig       Signaler
	media     MediaSource
	newEngine negotiation.Factory
	router    *signaling.Handler
	log       *slog.Logger

	// opMu serialises anything that drives the engine.
	opMu sync.Mutex

	mu           sync.Mutex
	engine       *negotiation.Engine
	events       <-chan negotiation.Event
	unsubscribe  func()
	socketID     string
	joined       bool
	remote       *Participant
	remoteStream *negotiation.RemoteStream
	connection   webrtc.PeerConnectionState
	lastErr      string
	left         bool

	updates chan Snapshot
}

func New(opts Options, sig Signaler, src MediaSource, newEngine negotiation.Factory) (*Controller, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Controller{
		opts:      opts,
		sig:       sig,
		media:     src,
		newEngine: newEngine,
		router:    signaling.NewHandler(logger),
		log:       logger.With("component", "session", "room", opts.RoomID),
		updates:   make(chan Snapshot, 1),
	}

	engine, err := newEngine()
	if err != nil {
		return nil, NewError("create peer session", err)
	}
	c.install(engine)
	c.routes()
	return c, nil
}

func (c *Controller) install(engine *negotiation.Engine) {
	events, unsubscribe := engine.Subscribe()
	c.mu.Lock()
	c.engine = engine
	c.events = events
	c.unsubscribe = unsubscribe
	c.connection = webrtc.PeerConnectionStateNew
	c.mu.Unlock()
}

func (c *Controller) routes() {
	c.router.Handle(signaling.EventJoinedRoom, c.onJoinedRoom)
	c.router.Handle(signaling.EventUserJoined, c.onUserJoined)
	c.router.Handle(signaling.EventIncomingOffer, c.onOffer)
	c.router.Handle(signaling.EventNegotiationAccept, c.onOffer)
	c.router.Handle(signaling.EventAcceptedAnswer, c.onAnswer)
	c.router.Handle(signaling.EventNegoFinal, c.onAnswer)
	c.router.Handle(signaling.EventICECandidate, c.onCandidate)
	c.router.Handle(signaling.EventUserLeft, c.onUserLeft)
	c.router.Handle(signaling.EventError, c.onRelayError)
	c.router.Fallback(c.onUnexpected)
}

// Join asks the relay to put this participant in the configured room.
func (c *Controller) Join(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.sig.SendMessage(signaling.NewJoinRoom(c.opts.RoomID, c.opts.UserID)); err != nil {
		return NewError("join room", err)
	}
	c.log.Info("joining room", "user", c.opts.UserID)
	return nil
}

// AcquireMedia starts local capture. Failures are kept in the snapshot as well.
func (c *Controller) AcquireMedia(ctx context.Context) error {
	defer c.publish()
	if _, err := c.media.Acquire(ctx); err != nil {
		return NewError("acquire media", err)
	}
	return nil
}

// Run consumes relay messages and engine events in delivery order until ctx ends
// or the signaling channel closes. Handler failures are logged, never returned.
func (c *Controller) Run(ctx context.Context) error {
	in := c.sig.Incoming()
	for {
		events := c.currentEvents()

		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-in:
			if !ok {
				c.recordErr(ErrSignalingClosed)
				return ErrSignalingClosed
			}
			if err := c.router.Dispatch(msg); err != nil {
				c.log.Error("signaling message failed", "type", msg.Type, "error", err)
				c.recordErr(err)
			}

		case ev, ok := <-events:
			if ok {
				c.handleEvent(ev)
			}
		}
	}
}

func (c *Controller) currentEvents() <-chan negotiation.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events
}

func (c *Controller) currentEngine() (*negotiation.Engine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.left {
		return nil, ErrLeft
	}
	if c.engine == nil {
		return nil, negotiation.ErrClosed
	}
	return c.engine, nil
}

func (c *Controller) remoteID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.remote == nil {
		return ""
	}
	return c.remote.SocketID
}

// StartCall attaches local media and sends an offer to the remote participant.
func (c *Controller) StartCall(ctx context.Context) error {
	c.mu.Lock()
	joined, remote, left := c.joined, c.remote, c.left
	c.mu.Unlock()

	switch {
	case left:
		return NewError("start call", ErrLeft)
	case !joined:
		return NewError("start call", ErrNotJoined)
	case remote == nil:
		return NewError("start call", ErrNoRemoteParticipant)
	}

	if err := c.AcquireMedia(ctx); err != nil {
		return err
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()
	defer c.publish()

	engine, err := c.currentEngine()
	if err != nil {
		return NewError("start call", err)
	}

	if _, err := c.sendStreams(engine); err != nil {
		return NewError("attach stream", err)
	}

	offer, err := engine.CreateOffer()
	if err != nil {
		return NewError("create offer", err)
	}

	if err := c.sig.SendMessage(signaling.NewCreateOffer(remote.SocketID, offer)); err != nil {
		return NewError("send offer", err)
	}
	c.log.Info("call started", "to", remote.SocketID)
	return nil
}

// SendStreams attaches the current local stream if it has not been sent yet.
func (c *Controller) SendStreams() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	defer c.publish()

	engine, err := c.currentEngine()
	if err != nil {
		return NewError("send streams", err)
	}
	if _, err := c.sendStreams(engine); err != nil {
		return NewError("send streams", err)
	}
	return nil
}

// sendStreams must be called with opMu held. It reports whether tracks were attached.
func (c *Controller) sendStreams(engine *negotiation.Engine) (bool, error) {
	stream := c.media.State().Stream
	if stream == nil {
		return false, nil
	}
	if !c.media.MarkAttached(stream) {
		return false, nil
	}

	added, err := engine.AttachStream(stream)
	if err != nil {
		c.media.Detach()
		return false, err
	}
	c.log.Debug("local stream sent", "stream", stream.ID(), "tracks", added)
	return true, nil
}

// RetryMedia re-acquires local media independently of the negotiation state.
// A stream that was already being sent is replaced on the connection.
func (c *Controller) RetryMedia(ctx context.Context) error {
	wasSent := c.media.State().Attached

	if _, err := c.media.Retry(ctx); err != nil {
		c.publish()
		return NewError("retry media", err)
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()
	defer c.publish()

	if !wasSent {
		return nil
	}

	engine, err := c.currentEngine()
	if err != nil {
		return NewError("retry media", err)
	}
	if _, err := c.sendStreams(engine); err != nil {
		return NewError("retry media", err)
	}
	return nil
}

// Leave tears the room visit down: events stop, media is released and the peer session closed.
func (c *Controller) Leave() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.left {
		c.mu.Unlock()
		return nil
	}
	c.left = true
	engine, unsubscribe := c.engine, c.unsubscribe
	c.engine, c.events, c.unsubscribe = nil, nil, nil
	c.remote, c.remoteStream = nil, nil
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	c.media.Release()

	var err error
	if engine != nil {
		err = engine.Close()
	}
	c.publish()
	c.log.Info("left room")
	return err
}

func (c *Controller) onJoinedRoom(msg *signaling.Message) error {
	c.mu.Lock()
	c.joined = true
	c.socketID = msg.Payload.SocketID
	c.mu.Unlock()

	c.log.Info("joined room", "socket", msg.Payload.SocketID)
	c.publish()
	return nil
}

func (c *Controller) onUserJoined(msg *signaling.Message) error {
	p := msg.Payload

	c.mu.Lock()
	if c.remote != nil && c.remote.SocketID != p.SocketID {
		current := c.remote.SocketID
		c.mu.Unlock()
		c.log.Warn("ignoring second participant", "socket", p.SocketID, "current", current)
		return nil
	}
	c.remote = &Participant{SocketID: p.SocketID, UserID: p.UserID}
	c.mu.Unlock()

	c.log.Info("participant joined", "user", p.UserID, "socket", p.SocketID)
	c.publish()
	return nil
}

// onOffer answers both the first offer and renegotiation offers.
func (c *Controller) onOffer(msg *signaling.Message) error {
	offer, err := msg.Payload.Offer.ToPion(webrtc.SDPTypeOffer)
	if err != nil {
		return err
	}
	from := msg.Payload.From
	initial := msg.Type == signaling.EventIncomingOffer

	c.opMu.Lock()
	defer c.opMu.Unlock()
	defer c.publish()

	c.mu.Lock()
	if c.remote == nil {
		c.remote = &Participant{SocketID: from}
	}
	c.mu.Unlock()

	engine, err := c.currentEngine()
	if err != nil {
		return err
	}

	answer, err := engine.AcceptOffer(offer)
	if err != nil {
		return err
	}

	reply := signaling.NewNegoDone(from, answer)
	if initial {
		reply = signaling.NewAnswer(from, answer)
	}
	if err := c.sig.SendMessage(reply); err != nil {
		return NewError("send "+reply.Type, err)
	}

	if initial && c.opts.AutoSendStreams {
		if _, err := c.sendStreams(engine); err != nil {
			c.log.Warn("could not send local stream", "error", err)
		}
	}
	return nil
}

func (c *Controller) onAnswer(msg *signaling.Message) error {
	answer, err := msg.Payload.Answer.ToPion(webrtc.SDPTypeAnswer)
	if err != nil {
		return err
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()
	defer c.publish()

	engine, err := c.currentEngine()
	if err != nil {
		return err
	}
	return engine.SetFinalAnswer(answer)
}

func (c *Controller) onCandidate(msg *signaling.Message) error {
	candidate, err := msg.Payload.Candidate.ToPion()
	if err != nil {
		return err
	}

	engine, err := c.currentEngine()
	if err != nil {
		return err
	}
	return engine.AddICECandidate(candidate)
}

// onUserLeft forgets the remote participant and replaces the peer session so a
// new participant can call in.
func (c *Controller) onUserLeft(msg *signaling.Message) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	defer c.publish()

	c.mu.Lock()
	if c.left || c.remote == nil || (msg.Payload.SocketID != "" && msg.Payload.SocketID != c.remote.SocketID) {
		c.mu.Unlock()
		return nil
	}
	gone := c.remote.SocketID
	old, unsubscribe := c.engine, c.unsubscribe
	c.remote, c.remoteStream = nil, nil
	c.engine, c.events, c.unsubscribe = nil, nil, nil
	c.mu.Unlock()

	c.log.Info("participant left", "socket", gone)

	if unsubscribe != nil {
		unsubscribe()
	}
	if old != nil {
		if err := old.Close(); err != nil {
			c.log.Warn("closing peer session", "error", err)
		}
	}
	c.media.Detach()

	engine, err := c.newEngine()
	if err != nil {
		return NewError("create peer session", err)
	}
	c.install(engine)
	return nil
}

func (c *Controller) onRelayError(msg *signaling.Message) error {
	c.log.Warn("relay reported an error", "error", msg.Payload.Error)
	c.mu.Lock()
	c.lastErr = msg.Payload.Error
	c.mu.Unlock()
	c.publish()
	return nil
}

// onUnexpected catches well-formed events a client never receives, such as echoed outbound ones.
func (c *Controller) onUnexpected(msg *signaling.Message) error {
	c.log.Warn("unexpected relay event", "type", msg.Type)
	return fmt.Errorf("%w: %s", ErrUnexpectedEvent, msg.Type)
}

func (c *Controller) handleEvent(ev negotiation.Event) {
	switch ev.Kind {
	case negotiation.EventRenegotiationNeeded:
		to := c.remoteID()
		if to == "" {
			c.log.Warn("renegotiation offer has no recipient")
			return
		}
		if err := c.sig.SendMessage(signaling.NewNegotiationNeeded(to, ev.Offer)); err != nil {
			c.log.Error("failed to send renegotiation offer", "error", err)
			c.recordErr(err)
		}

	case negotiation.EventLocalCandidate:
		to := c.remoteID()
		if to == "" {
			return
		}
		if err := c.sig.SendMessage(signaling.NewICECandidate(to, ev.Candidate)); err != nil {
			c.log.Warn("failed to send ice candidate", "error", err)
		}

	case negotiation.EventRemoteStream:
		c.mu.Lock()
		c.remoteStream = ev.Stream
		c.mu.Unlock()
		c.log.Info("remote stream available", "stream", ev.Stream.ID)

	case negotiation.EventConnectionState:
		c.mu.Lock()
		c.connection = ev.Connection
		c.mu.Unlock()
	}
	c.publish()
}

func (c *Controller) recordErr(err error) {
	c.mu.Lock()
	c.lastErr = err.Error()
	c.mu.Unlock()
	c.publish()
}
