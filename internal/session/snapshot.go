package session

import (
	"github.com/BioHazard786/Warpcall/internal/media"
	"github.com/BioHazard786/Warpcall/internal/negotiation"
	"github.com/pion/webrtc/v4"
)

// Snapshot is what a call view renders.
type Snapshot struct {
	RoomID   string
	UserID   string
	SocketID string
	Joined   bool
	Left     bool

	Remote       *Participant
	RemoteStream *negotiation.RemoteStream

	Negotiation negotiation.State
	Connection  webrtc.PeerConnectionState
	Stats       negotiation.Stats

	Media     media.State
	LastError string
}

// StreamsSent reports whether local tracks are attached to the peer session.
func (s Snapshot) StreamsSent() bool {
	return s.Media.Attached
}

// CanStartCall mirrors the precondition StartCall enforces.
func (s Snapshot) CanStartCall() bool {
	return s.Joined && !s.Left && s.Remote != nil
}

// CanRetryMedia is true when the last media failure is one the user can retry.
func (s Snapshot) CanRetryMedia() bool {
	return s.Media.LastErr != nil && s.Media.LastErr.Retryable() && !s.Media.Acquiring
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	snap := Snapshot{
		RoomID:       c.opts.RoomID,
		UserID:       c.opts.UserID,
		SocketID:     c.socketID,
		Joined:       c.joined,
		Left:         c.left,
		RemoteStream: c.remoteStream,
		Connection:   c.connection,
		LastError:    c.lastErr,
		Negotiation:  negotiation.StateClosed,
	}
	if c.remote != nil {
		remote := *c.remote
		snap.Remote = &remote
	}
	engine := c.engine
	c.mu.Unlock()

	if engine != nil {
		snap.Negotiation = engine.State()
		snap.Stats = engine.Stats()
	}
	snap.Media = c.media.State()
	return snap
}

// Updates delivers the latest snapshot after every change. Only the most recent
// one is kept for a slow reader.
func (c *Controller) Updates() <-chan Snapshot {
	return c.updates
}

func (c *Controller) publish() {
	snap := c.Snapshot()
	select {
	case <-c.updates:
	default:
	}
	select {
	case c.updates <- snap:
	default:
	}
}
