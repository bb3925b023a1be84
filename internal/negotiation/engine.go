package negotiation

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/BioHazard786/Warpcall/internal/media"
	"github.com/pion/interceptor"
	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"
)

// Config describes the peer connection an Engine owns.
type Config struct {
	ICEServers         []webrtc.ICEServer
	ICETransportPolicy webrtc.ICETransportPolicy
	LoggerFactory      logging.LoggerFactory
	Logger             *slog.Logger
}

// Stats are counters for the remote media received so far.
type Stats struct {
	RemoteTracks  int
	PacketsIn     uint64
	BytesIn       uint64
	LocalSenders  int
	PendingRemote int
}

// Engine owns one PeerSession and drives its offer/answer state machine.
// Operations are serialized; pion callbacks are handled off pion's own goroutine.
type Engine struct {
	pc  *webrtc.PeerConnection
	log *slog.Logger

	mu                sync.Mutex
	state             State
	pendingCandidates []webrtc.ICECandidateInit
	senders           map[webrtc.RTPCodecType]*webrtc.RTPSender
	attached          map[string]struct{}
	remoteStreamID    string
	remoteTracks      int

	subMu   sync.Mutex
	subs    map[int]*subscriber
	nextSub int
	sealed  bool

	// settled counts returns to stable, so a negotiation signal raised before the
	// last round closed can be told apart from one raised after it.
	settled atomic.Uint64

	packetsIn atomic.Uint64
	bytesIn   atomic.Uint64
}

// New creates the PeerSession and wires its callbacks.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	settings := webrtc.SettingEngine{}
	if cfg.LoggerFactory != nil {
		settings.LoggerFactory = cfg.LoggerFactory
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(settings),
	)

	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers:         cfg.ICEServers,
		ICETransportPolicy: cfg.ICETransportPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	e := &Engine{
		pc:       pc,
		log:      logger.With("component", "negotiation"),
		state:    StateIdle,
		senders:  make(map[webrtc.RTPCodecType]*webrtc.RTPSender),
		attached: make(map[string]struct{}),
		subs:     make(map[int]*subscriber),
	}
	e.wire()
	return e, nil
}

func (e *Engine) wire() {
	e.pc.OnNegotiationNeeded(func() {
		gen := e.settled.Load()
		go e.handleNegotiationNeeded(gen)
	})

	e.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		e.publish(Event{Kind: EventLocalCandidate, Candidate: c.ToJSON()})
	})

	e.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		e.handleRemoteTrack(track)
		go e.consume(track)
	})

	e.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		e.log.Info("connection state changed", "state", s.String())
		e.publish(Event{Kind: EventConnectionState, Connection: s})
	})

	e.pc.OnSignalingStateChange(func(s webrtc.SignalingState) {
		e.log.Debug("signaling state changed", "state", s.String())
	})
}

// State returns the current negotiation state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) ConnectionState() webrtc.PeerConnectionState {
	return e.pc.ConnectionState()
}

func (e *Engine) SignalingState() webrtc.SignalingState {
	return e.pc.SignalingState()
}

func (e *Engine) LocalDescription() *webrtc.SessionDescription {
	return e.pc.LocalDescription()
}

func (e *Engine) RemoteDescription() *webrtc.SessionDescription {
	return e.pc.RemoteDescription()
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		RemoteTracks:  e.remoteTracks,
		PacketsIn:     e.packetsIn.Load(),
		BytesIn:       e.bytesIn.Load(),
		LocalSenders:  len(e.senders),
		PendingRemote: len(e.pendingCandidates),
	}
}

// SendingTrack returns the id of the local track the kind's sender carries, or "".
func (e *Engine) SendingTrack(kind webrtc.RTPCodecType) string {
	e.mu.Lock()
	sender, ok := e.senders[kind]
	e.mu.Unlock()
	if !ok || sender.Track() == nil {
		return ""
	}
	return sender.Track().ID()
}

// setState must be called with mu held.
func (e *Engine) setState(s State) {
	if e.state == s {
		return
	}
	e.log.Debug("negotiation state", "from", e.state.String(), "to", s.String())
	e.state = s
	e.publish(Event{Kind: EventStateChanged, State: s})
}

// CreateOffer starts a round: Idle becomes OfferCreated, Stable becomes Renegotiating.
func (e *Engine) CreateOffer() (webrtc.SessionDescription, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateIdle:
		return e.createOfferLocked(StateOfferCreated)
	case StateStable:
		return e.createOfferLocked(StateRenegotiating)
	case StateClosed:
		return webrtc.SessionDescription{}, newError("create offer", e.state, ErrClosed)
	default:
		return webrtc.SessionDescription{}, newError("create offer", e.state, ErrRoundInProgress)
	}
}

func (e *Engine) createOfferLocked(next State) (webrtc.SessionDescription, error) {
	if err := e.ensureReceivers(); err != nil {
		return webrtc.SessionDescription{}, newError("create offer", e.state, err)
	}

	offer, err := e.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, newError("create offer", e.state, wrap(ErrCantCreateOffer, err))
	}

	if err := e.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, newError("create offer", e.state, wrap(ErrCantSetLocalDescription, err))
	}

	e.setState(next)
	return *e.pc.LocalDescription(), nil
}

// ensureReceivers makes sure the offer has an audio and a video section even without local tracks.
func (e *Engine) ensureReceivers() error {
	have := map[webrtc.RTPCodecType]bool{}
	for _, t := range e.pc.GetTransceivers() {
		have[t.Kind()] = true
	}

	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if have[kind] {
			continue
		}
		_, err := e.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		})
		if err != nil {
			return fmt.Errorf("add %s transceiver: %w", kind, err)
		}
	}
	return nil
}

// AcceptOffer applies a remote offer and returns the local answer. The engine ends Stable.
func (e *Engine) AcceptOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	prev := e.state
	switch {
	case prev == StateClosed:
		return webrtc.SessionDescription{}, newError("accept offer", prev, ErrClosed)
	case prev.awaitingAnswer():
		return webrtc.SessionDescription{}, newError("accept offer", prev, ErrGlare)
	}

	if err := e.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, newError("accept offer", prev, wrap(ErrCantSetRemoteDescription, err))
	}
	e.setState(StateOfferReceived)
	e.flushCandidates()

	answer, err := e.pc.CreateAnswer(nil)
	if err != nil {
		e.rollback(prev)
		return webrtc.SessionDescription{}, newError("accept offer", prev, wrap(ErrCantCreateAnswer, err))
	}

	e.settled.Add(1)
	if err := e.pc.SetLocalDescription(answer); err != nil {
		e.rollback(prev)
		return webrtc.SessionDescription{}, newError("accept offer", prev, wrap(ErrCantSetLocalDescription, err))
	}

	e.setState(StateAnswerCreated)
	e.setState(StateStable)
	return *e.pc.LocalDescription(), nil
}

// rollback returns the connection to its previous stable description after a failed round.
func (e *Engine) rollback(prev State) {
	e.settled.Add(1)
	if err := e.pc.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback}); err != nil {
		e.log.Warn("rollback failed", "error", err)
	}
	e.setState(prev)
}

// SetFinalAnswer completes the outstanding local offer.
func (e *Engine) SetFinalAnswer(answer webrtc.SessionDescription) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateClosed {
		return newError("set final answer", e.state, ErrClosed)
	}
	if !e.state.awaitingAnswer() {
		return newError("set final answer", e.state, ErrNoPendingOffer)
	}

	prev := e.state
	e.settled.Add(1)
	if err := e.pc.SetRemoteDescription(answer); err != nil {
		// Drop the local offer so either side can start a fresh round.
		e.rollback(prev.beforeOffer())
		return newError("set final answer", prev, wrap(ErrCantSetRemoteDescription, err))
	}

	e.setState(StateStable)
	e.flushCandidates()
	return nil
}

// AddICECandidate applies a remote candidate, holding it until a remote description exists.
func (e *Engine) AddICECandidate(c webrtc.ICECandidateInit) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateClosed {
		return newError("add candidate", e.state, ErrClosed)
	}

	if e.pc.RemoteDescription() == nil {
		e.pendingCandidates = append(e.pendingCandidates, c)
		return nil
	}

	if err := e.pc.AddICECandidate(c); err != nil {
		return newError("add candidate", e.state, wrap(ErrCantAddCandidate, err))
	}
	return nil
}

// flushCandidates must be called with mu held once a remote description is set.
func (e *Engine) flushCandidates() {
	pending := e.pendingCandidates
	e.pendingCandidates = nil

	for _, c := range pending {
		if err := e.pc.AddICECandidate(c); err != nil {
			e.log.Warn("buffered candidate rejected", "error", err)
		}
	}
}

// AttachStream sends every track of stream. Tracks already attached are skipped, and a
// new track of a kind that already has a sender replaces the old one in place.
// It returns the number of tracks newly sent.
func (e *Engine) AttachStream(stream *media.Stream) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateClosed {
		return 0, newError("attach stream", e.state, ErrClosed)
	}
	if stream == nil {
		return 0, nil
	}

	added := 0
	for _, t := range stream.Tracks() {
		if _, ok := e.attached[t.ID()]; ok {
			continue
		}

		if sender, ok := e.senders[t.Kind()]; ok {
			if err := sender.ReplaceTrack(t.Local()); err != nil {
				return added, newError("attach stream", e.state, wrap(ErrCantAttachTrack, err))
			}
		} else {
			sender, err := e.pc.AddTrack(t.Local())
			if err != nil {
				return added, newError("attach stream", e.state, wrap(ErrCantAttachTrack, err))
			}
			e.senders[t.Kind()] = sender
			go drainRTCP(sender)
		}

		e.attached[t.ID()] = struct{}{}
		added++
	}

	e.log.Debug("stream attached", "stream", stream.ID(), "tracks", added)
	return added, nil
}

// drainRTCP reads incoming RTCP so interceptors keep running.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func (e *Engine) handleNegotiationNeeded(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if gen != e.settled.Load() {
		// raised before the last round settled; pion checks again on return to stable.
		e.log.Debug("stale negotiation signal ignored")
		return
	}

	switch e.state {
	case StateStable:
		offer, err := e.createOfferLocked(StateRenegotiating)
		if err != nil {
			e.log.Error("renegotiation offer failed", "error", err)
			return
		}
		e.log.Info("renegotiation offer created")
		e.publish(Event{Kind: EventRenegotiationNeeded, Offer: offer})
	case StateIdle:
		e.log.Debug("negotiation needed before first round, folded into initial offer")
	case StateClosed:
	default:
		// pion raises the signal again once the open round returns to stable.
		e.log.Debug("negotiation needed during open round", "state", e.state.String())
	}
}

func (e *Engine) handleRemoteTrack(track RemoteTrack) {
	e.mu.Lock()
	e.remoteTracks++
	first := e.remoteStreamID == ""
	if first {
		e.remoteStreamID = track.StreamID()
	}
	e.mu.Unlock()

	if !first {
		e.log.Info("remote track added", "stream", track.StreamID(), "kind", track.Kind().String())
		return
	}

	e.log.Info("remote stream available", "stream", track.StreamID(), "kind", track.Kind().String())
	e.publish(Event{Kind: EventRemoteStream, Stream: &RemoteStream{ID: track.StreamID(), Track: track}})
}

// consume reads remote RTP so the stream keeps flowing and counts what arrives.
func (e *Engine) consume(track *webrtc.TrackRemote) {
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		e.packetsIn.Add(1)
		e.bytesIn.Add(uint64(pkt.MarshalSize()))
	}
}

// Subscribe registers an observer. The returned function unsubscribes and closes the channel.
func (e *Engine) Subscribe() (<-chan Event, func()) {
	e.subMu.Lock()
	defer e.subMu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if e.sealed {
		close(ch)
		return ch, func() {}
	}

	id := e.nextSub
	e.nextSub++
	e.subs[id] = &subscriber{ch: ch}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.subMu.Lock()
			defer e.subMu.Unlock()
			if sub, ok := e.subs[id]; ok {
				delete(e.subs, id)
				close(sub.ch)
			}
		})
	}
}

func (e *Engine) publish(ev Event) {
	e.subMu.Lock()
	defer e.subMu.Unlock()

	for _, sub := range e.subs {
		select {
		case sub.ch <- ev:
		default:
			e.log.Warn("observer too slow, dropping event", "event", ev.Kind.String())
		}
	}
}

// Close tears the PeerSession down and closes every subscription.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.state == StateClosed {
		e.mu.Unlock()
		return nil
	}
	e.setState(StateClosed)
	e.mu.Unlock()

	err := e.pc.Close()

	e.subMu.Lock()
	e.sealed = true
	for id, sub := range e.subs {
		delete(e.subs, id)
		close(sub.ch)
	}
	e.subMu.Unlock()

	if err != nil && !errors.Is(err, webrtc.ErrConnectionClosed) {
		return fmt.Errorf("close peer connection: %w", err)
	}
	return nil
}
