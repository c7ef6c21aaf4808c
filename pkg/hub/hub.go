package hub

import (
	"sync"

	"github.com/spatialvcs/go-spatialvcs/internal/log"
)

// Hub maintains the set of dashboards watching one scan channel and
// broadcasts state updates to them.
type Hub struct {
	// Scan channel this hub serves, for logging.
	scanID string

	// Registered dashboard clients.
	clients map[*Client]bool

	// Inbound payloads to broadcast.
	broadcast chan []byte

	// Register requests from clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Guards clients. Run mutates the map, ClientCount reads it
	// from other goroutines.
	mu sync.RWMutex
}

// New creates a hub for one scan channel. Call Run in a goroutine
// before registering clients.
func New(scanID string) *Hub {
	return &Hub{
		scanID:     scanID,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			log.Debug("dashboard connected", "scan_id", h.scanID, "dashboards", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			log.Debug("dashboard disconnected", "scan_id", h.scanID, "dashboards", count)

		case payload := <-h.broadcast:
			// The slow-drop path mutates the client map, so the
			// broadcast branch needs the write lock: ClientCount
			// reads the map from other goroutines.
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- payload:
				default:
					// Client's buffer is full, it cannot keep up.
					close(client.send)
					delete(h.clients, client)
					log.Warn("dropped slow dashboard", "scan_id", h.scanID)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues a pre-encoded payload for all connected dashboards.
func (h *Hub) Broadcast(payload []byte) {
	select {
	case h.broadcast <- payload:
	default:
		log.Warn("broadcast channel full, dropping update", "scan_id", h.scanID)
	}
}

// BroadcastJSON encodes and broadcasts a payload.
func (h *Hub) BroadcastJSON(v interface{}) error {
	payload, err := Encode(v)
	if err != nil {
		return err
	}
	h.Broadcast(payload)
	return nil
}

// ClientCount returns the number of connected dashboards.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
