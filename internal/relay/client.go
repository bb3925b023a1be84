package relay

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/BioHazard786/Warpcall/internal/signaling"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. SDP with many candidates stays well below this.
	maxMessageSize = 64 * 1024

	sendBuffer = 256
)

// Client is a wrapper for a single websocket connection (a participant).
type Client struct {
	// ID is the opaque socket id other participants address messages to.
	ID string

	hub  *Hub
	conn *websocket.Conn

	// RoomID and UserID are owned by the hub goroutine.
	RoomID string
	UserID string

	// Send is a buffered channel for all outbound messages, drained by WritePump.
	Send chan *signaling.Message

	// codec follows the frame type the participant last wrote.
	codec atomic.Value

	log *slog.Logger
}

func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	id := uuid.NewString()
	c := &Client{
		ID:   id,
		hub:  hub,
		conn: conn,
		Send: make(chan *signaling.Message, sendBuffer),
		log:  hub.log.With("socket", id),
	}
	c.codec.Store(signaling.JSON)
	return c
}

func (c *Client) currentCodec() signaling.Codec {
	return c.codec.Load().(signaling.Codec)
}

// ReadPump pumps messages from the websocket connection to the hub.
// At most one ReadPump runs per connection.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregisterClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		frameType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.Warn("read failed", "error", err)
			}
			return
		}

		msg, codec, err := signaling.Decode(frameType, data)
		if err != nil {
			c.log.Warn("undecodable frame", "error", err)
			c.trySend(signaling.NewError("malformed message"))
			continue
		}
		c.codec.Store(codec)

		if !c.hub.dispatch(inbound{client: c, msg: msg}) {
			return
		}
	}
}

// WritePump pumps messages from the hub to the websocket connection.
// At most one WritePump runs per connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			codec := c.currentCodec()
			data, err := codec.Marshal(message)
			if err != nil {
				c.log.Error("encode failed", "type", message.Type, "error", err)
				continue
			}
			if err := c.conn.WriteMessage(codec.FrameType(), data); err != nil {
				c.log.Warn("write failed", "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// trySend queues msg without blocking the caller. Slow participants lose messages.
func (c *Client) trySend(msg *signaling.Message) {
	select {
	case c.Send <- msg:
	default:
		c.log.Warn("send buffer full, dropping message", "type", msg.Type)
	}
}
