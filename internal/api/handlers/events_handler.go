package handlers

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/support-copilot/backend/pkg/logger"
)

// Event is one item on the live event stream: escalations as they are
// handed off and webhook updates as they arrive.
type Event struct {
	Type      string      `json:"type"`
	Timestamp int64       `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// Hub fans events out to connected websocket clients. A slow client gets
// dropped rather than blocking the broadcast.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan Event
}

func NewHub() *Hub {
	return &Hub{
		clients: map[*websocket.Conn]chan Event{},
	}
}

// Broadcast queues an event for every connected client. Non-blocking.
func (h *Hub) Broadcast(eventType string, payload interface{}) {
	evt := Event{
		Type:      eventType,
		Timestamp: time.Now().Unix(),
		Payload:   payload,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.clients {
		select {
		case ch <- evt:
		default:
			// Client is not keeping up; disconnect it.
			close(ch)
			delete(h.clients, conn)
			logger.Warn("Dropping slow event stream client")
		}
	}
}

func (h *Hub) register(conn *websocket.Conn) chan Event {
	ch := make(chan Event, 32)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *Hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

// ClientCount reports connected stream clients, for readiness reporting.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Upgrade gates the websocket route: non-upgrade requests get a 426.
func (h *Hub) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// HandleConnection serves one event stream subscriber until it disconnects.
func (h *Hub) HandleConnection(c *websocket.Conn) {
	logger.Info("Event stream client connected")
	ch := h.register(c)

	defer func() {
		h.unregister(c)
		c.Close()
		logger.Info("Event stream client disconnected")
	}()

	// Reads are discarded; the stream is one-way. The read loop exists to
	// notice the peer closing.
	go func() {
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				h.unregister(c)
				return
			}
		}
	}()

	for evt := range ch {
		if err := c.WriteJSON(evt); err != nil {
			logger.Debug("Event stream write failed", zap.Error(err))
			return
		}
	}
}
