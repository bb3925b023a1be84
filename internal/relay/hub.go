package relay

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/BioHazard786/Warpcall/internal/signaling"
)

// inbound pairs a decoded message with the client that sent it.
type inbound struct {
	client *Client
	msg    *signaling.Message
}

// Hub manages all active rooms and clients.
// Rooms and client room membership are only touched by the Run goroutine.
type Hub struct {
	rooms map[string]*Room

	register   chan *Client
	unregister chan *Client
	broadcast  chan inbound
	done       chan struct{}

	roomCount   atomic.Int64
	clientCount atomic.Int64

	log *slog.Logger
}

// NewHub creates a new Hub instance.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		rooms:      make(map[string]*Room),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan inbound),
		done:       make(chan struct{}),
		log:        logger.With("component", "relay"),
	}
}

// Rooms reports the number of open rooms.
func (h *Hub) Rooms() int {
	return int(h.roomCount.Load())
}

// Clients reports the number of connected sockets.
func (h *Hub) Clients() int {
	return int(h.clientCount.Load())
}

func (h *Hub) registerClient(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
		close(c.Send)
	}
}

func (h *Hub) dispatch(in inbound) bool {
	select {
	case h.broadcast <- in:
		return true
	case <-h.done:
		return false
	}
}

// Run is the hub's processing loop. It returns when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.clientCount.Add(1)
			client.log.Debug("client registered", "remote", client.conn.RemoteAddr())

		case client := <-h.unregister:
			h.clientCount.Add(-1)
			h.leave(client)
			close(client.Send)

		case in := <-h.broadcast:
			h.handle(in.client, in.msg)
		}
	}
}

func (h *Hub) handle(c *Client, msg *signaling.Message) {
	c.log.Debug("message received", "type", msg.Type)

	if err := msg.Validate(); err != nil {
		c.trySend(signaling.NewError(err.Error()))
		return
	}

	switch msg.Type {
	case signaling.EventJoinRoom:
		h.join(c, msg.Payload.RoomID, msg.Payload.UserID)

	case signaling.EventCreateOffer,
		signaling.EventAnswer,
		signaling.EventNegotiationNeeded,
		signaling.EventNegoDone,
		signaling.EventICECandidate:
		h.relay(c, msg)

	default:
		c.log.Warn("unsupported event", "type", msg.Type)
		c.trySend(signaling.NewError("unsupported event " + msg.Type))
	}
}

func (h *Hub) join(c *Client, roomID, userID string) {
	if c.RoomID != "" {
		c.trySend(signaling.NewError("already in a room"))
		return
	}

	room, ok := h.rooms[roomID]
	if !ok {
		room = &Room{ID: roomID}
		h.rooms[roomID] = room
		h.roomCount.Add(1)
		h.log.Info("room created", "room", roomID)
	}

	if room.Full() {
		h.log.Info("room join failed: room is full", "room", roomID, "socket", c.ID)
		c.trySend(signaling.NewError("room is full"))
		return
	}

	room.Add(c)
	c.RoomID = roomID
	c.UserID = userID

	c.trySend(&signaling.Message{
		Type:    signaling.EventJoinedRoom,
		Payload: signaling.Payload{RoomID: roomID, UserID: userID, SocketID: c.ID},
	})

	for _, other := range room.Others(c) {
		other.trySend(&signaling.Message{
			Type:    signaling.EventUserJoined,
			Payload: signaling.Payload{RoomID: roomID, UserID: userID, SocketID: c.ID},
		})
	}

	h.log.Info("client joined room", "room", roomID, "socket", c.ID, "members", len(room.Members))
}

// relay forwards a peer-to-peer event to its addressee under its inbound name.
func (h *Hub) relay(c *Client, msg *signaling.Message) {
	if c.RoomID == "" {
		c.trySend(signaling.NewError("you must join a room first"))
		return
	}

	room, ok := h.rooms[c.RoomID]
	if !ok {
		c.trySend(signaling.NewError("room not found"))
		return
	}

	target := room.Member(msg.Payload.To)
	if target == nil || target == c {
		c.trySend(signaling.NewError("peer not found"))
		return
	}

	payload := msg.Payload
	payload.To = ""
	payload.From = c.ID

	target.trySend(&signaling.Message{Type: signaling.Relayed[msg.Type], Payload: payload})
	c.log.Debug("relayed", "type", msg.Type, "to", target.ID)
}

func (h *Hub) leave(c *Client) {
	if c.RoomID == "" {
		return
	}

	room, ok := h.rooms[c.RoomID]
	c.RoomID = ""
	if !ok || !room.Remove(c) {
		return
	}

	if room.Empty() {
		delete(h.rooms, room.ID)
		h.roomCount.Add(-1)
		h.log.Info("room deleted", "room", room.ID)
		return
	}

	for _, other := range room.Members {
		other.trySend(&signaling.Message{
			Type:    signaling.EventUserLeft,
			Payload: signaling.Payload{RoomID: room.ID, UserID: c.UserID, SocketID: c.ID},
		})
	}
	h.log.Info("client left room", "room", room.ID, "socket", c.ID)
}
