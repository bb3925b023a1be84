package signaling

import (
	"fmt"
	"log/slog"
	"sync"
)

// HandlerFunc processes one inbound message.
type HandlerFunc func(msg *Message) error

// Handler routes incoming signaling messages to per-event handlers, preserving delivery order.
type Handler struct {
	mu       sync.RWMutex
	routes   map[string]HandlerFunc
	fallback HandlerFunc
	log      *slog.Logger
}

// NewHandler creates a new message handler.
func NewHandler(logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		routes: make(map[string]HandlerFunc),
		log:    logger.With("component", "signaling"),
	}
}

// Handle registers fn for event, replacing any previous registration.
func (h *Handler) Handle(event string, fn HandlerFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.routes[event] = fn
}

// Fallback receives valid messages with no registered route.
func (h *Handler) Fallback(fn HandlerFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fallback = fn
}

// Dispatch validates msg and runs its handler.
func (h *Handler) Dispatch(msg *Message) error {
	if msg == nil {
		return nil
	}
	if err := msg.Validate(); err != nil {
		return err
	}

	h.mu.RLock()
	fn, ok := h.routes[msg.Type]
	fallback := h.fallback
	h.mu.RUnlock()

	if !ok {
		if fallback != nil {
			return fallback(msg)
		}
		h.log.Debug("unhandled message", "type", msg.Type)
		return nil
	}

	if err := fn(msg); err != nil {
		return fmt.Errorf("handle %s: %w", msg.Type, err)
	}
	return nil
}
