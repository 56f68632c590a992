package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const writeWait = 5 * time.Second

// Hub manages WebSocket clients.
type Hub struct {
	clients    map[*websocket.Conn]bool
	mu         sync.Mutex
	broadcast  chan Message
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	stopOnce   sync.Once

	// swatchLimiter thins the swatch stream for browsers. Swatch frames are complete
	// snapshots, so dropping one loses nothing the next frame does not carry.
	swatchLimiter *rate.Limiter
	log           logrus.FieldLogger
}

// NewHub creates a new Hub that forwards at most swatchRate swatch frames per second.
func NewHub(swatchRate float64, swatchBurst int, log logrus.FieldLogger) *Hub {
	return &Hub{
		clients:       make(map[*websocket.Conn]bool),
		broadcast:     make(chan Message, 16),
		register:      make(chan *websocket.Conn),
		unregister:    make(chan *websocket.Conn),
		done:          make(chan struct{}),
		swatchLimiter: rate.NewLimiter(rate.Limit(swatchRate), swatchBurst),
		log:           log,
	}
}

// Run starts the hub's event loop. It returns after Stop.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.log.Info("WebSocket client connected.")
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
				h.log.Info("WebSocket client disconnected.")
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				_ = client.SetWriteDeadline(time.Now().Add(writeWait))
				if err := client.WriteJSON(message); err != nil {
					h.log.Warnf("broadcast error: %v", err)
					client.Close()
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Stop ends Run and closes every client. It is safe to call more than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Register adds a client. It reports false once the hub has stopped.
func (h *Hub) Register(client *websocket.Conn) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes and closes a client.
func (h *Hub) Unregister(client *websocket.Conn) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast sends a message to all connected clients.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	case <-h.done:
	}
}

// BroadcastSwatches forwards a swatch message unless the rate limit is exhausted.
// It reports whether the message was forwarded.
func (h *Hub) BroadcastSwatches(msg Message) bool {
	if !h.swatchLimiter.Allow() {
		return false
	}
	h.Broadcast(msg)
	return true
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
