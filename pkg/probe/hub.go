// Package probe provides the websocket hub for probe connections. A
// probe streams detection frames for one scan channel; the hub parses
// them, hands them to the registered callbacks, and acknowledges each
// frame with its objects-found count.
package probe

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/spatialvcs/go-spatialvcs/internal/log"
	"github.com/spatialvcs/go-spatialvcs/pkg/protocol"
)

// Connection represents a connected probe.
type Connection struct {
	ID        string
	Conn      *websocket.Conn
	Connected time.Time
	LastSeen  time.Time

	mu sync.Mutex
}

// Send sends a message to the probe.
func (p *Connection) Send(msg *protocol.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	return p.Conn.WriteMessage(websocket.TextMessage, data)
}

// Hub manages websocket connections from probes.
type Hub struct {
	mu     sync.RWMutex
	probes map[string]*Connection

	// Callbacks. OnDetection returns the objects-found count to
	// report in the frame ack.
	onDetection  func(probeID string, data *protocol.DetectionData) int
	onStopScan   func(probeID string, data *protocol.StopScanData)
	onDisconnect func(probeID string)

	// Stats
	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
	framesReceived   atomic.Uint64
}

// NewHub creates a new probe hub.
func NewHub() *Hub {
	return &Hub{
		probes: make(map[string]*Connection),
	}
}

// OnDetection sets the callback for incoming detection frames.
func (h *Hub) OnDetection(callback func(probeID string, data *protocol.DetectionData) int) {
	h.mu.Lock()
	h.onDetection = callback
	h.mu.Unlock()
}

// OnStopScan sets the callback for scan stop requests.
func (h *Hub) OnStopScan(callback func(probeID string, data *protocol.StopScanData)) {
	h.mu.Lock()
	h.onStopScan = callback
	h.mu.Unlock()
}

// OnDisconnect sets the callback for probe disconnects.
func (h *Hub) OnDisconnect(callback func(probeID string)) {
	h.mu.Lock()
	h.onDisconnect = callback
	h.mu.Unlock()
}

// RegisterRoutes registers the probe websocket routes on a Fiber app.
func (h *Hub) RegisterRoutes(app *fiber.App) {
	app.Use("/ws/probe", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/probe", websocket.New(h.handleProbe))
	app.Get("/ws/probe/:id", websocket.New(h.handleProbe))
}

// handleProbe handles a probe websocket connection.
func (h *Hub) handleProbe(c *websocket.Conn) {
	probeID := c.Params("id")
	if probeID == "" {
		probeID = uuid.New().String()
	}

	probe := &Connection{
		ID:        probeID,
		Conn:      c,
		Connected: time.Now(),
		LastSeen:  time.Now(),
	}

	h.mu.Lock()
	h.probes[probeID] = probe
	probeCount := len(h.probes)
	h.mu.Unlock()

	log.Info("probe connected", "probe_id", probeID, "probes", probeCount)

	defer func() {
		h.mu.Lock()
		delete(h.probes, probeID)
		probeCount := len(h.probes)
		disconnectCb := h.onDisconnect
		h.mu.Unlock()

		log.Info("probe disconnected", "probe_id", probeID, "probes", probeCount)
		if disconnectCb != nil {
			disconnectCb(probeID)
		}
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			log.Debug("probe read error", "probe_id", probeID, "error", err)
			return
		}

		probe.mu.Lock()
		probe.LastSeen = time.Now()
		probe.mu.Unlock()

		h.messagesReceived.Add(1)
		h.handleMessage(probeID, data)
	}
}

// handleMessage processes an incoming message from a probe.
func (h *Hub) handleMessage(probeID string, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		log.Warn("probe parse error", "probe_id", probeID, "error", err)
		h.sendError(probeID, "malformed message")
		return
	}

	h.mu.RLock()
	detectionCb := h.onDetection
	stopCb := h.onStopScan
	h.mu.RUnlock()

	switch msg.Type {
	case protocol.TypeDetection:
		h.framesReceived.Add(1)
		detection, err := msg.GetDetectionData()
		if err != nil {
			log.Warn("invalid detection payload", "probe_id", probeID, "error", err)
			h.sendError(probeID, "invalid detection payload")
			return
		}

		objectsFound := 0
		if detectionCb != nil {
			objectsFound = detectionCb(probeID, detection)
		}
		h.sendAck(probeID, detection.FrameNumber, objectsFound)

	case protocol.TypeStopScan:
		if stopCb != nil {
			stop, err := msg.GetStopScanData()
			if err == nil {
				stopCb(probeID, stop)
			}
		}

	case protocol.TypePing:
		h.sendPong(probeID, msg.Timestamp)

	default:
		log.Debug("unhandled probe message", "probe_id", probeID, "type", msg.Type)
	}
}

// sendAck acknowledges a detection frame.
func (h *Hub) sendAck(probeID string, frame, objectsFound int) {
	msg, err := protocol.NewAckMessage(frame, objectsFound)
	if err != nil {
		return
	}
	if err := h.sendToProbe(probeID, msg); err != nil {
		log.Debug("ack send failed", "probe_id", probeID, "error", err)
	}
}

// sendError reports a protocol error back to the probe.
func (h *Hub) sendError(probeID, detail string) {
	msg, err := protocol.NewErrorMessage(detail)
	if err != nil {
		return
	}
	if err := h.sendToProbe(probeID, msg); err != nil {
		log.Debug("error send failed", "probe_id", probeID, "error", err)
	}
}

// sendPong answers a probe ping.
func (h *Hub) sendPong(probeID string, pingTS int64) {
	msg, err := protocol.NewPongMessage(probeID, pingTS, time.Now().UnixMilli())
	if err != nil {
		return
	}
	if err := h.sendToProbe(probeID, msg); err != nil {
		log.Debug("pong send failed", "probe_id", probeID, "error", err)
	}
}

// sendToProbe sends a message to a specific probe.
func (h *Hub) sendToProbe(probeID string, msg *protocol.Message) error {
	h.mu.RLock()
	probe, ok := h.probes[probeID]
	h.mu.RUnlock()

	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "probe not connected")
	}

	h.messagesSent.Add(1)
	return probe.Send(msg)
}

// ProbeCount returns the number of connected probes.
func (h *Hub) ProbeCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.probes)
}

// Stats contains hub statistics.
type Stats struct {
	ProbeCount       int    `json:"probe_count"`
	MessagesReceived uint64 `json:"messages_received"`
	MessagesSent     uint64 `json:"messages_sent"`
	FramesReceived   uint64 `json:"frames_received"`
}

// GetStats returns hub statistics.
func (h *Hub) GetStats() Stats {
	return Stats{
		ProbeCount:       h.ProbeCount(),
		MessagesReceived: h.messagesReceived.Load(),
		MessagesSent:     h.messagesSent.Load(),
		FramesReceived:   h.framesReceived.Load(),
	}
}

// Info contains info about a connected probe.
type Info struct {
	ID        string    `json:"id"`
	Connected time.Time `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
}

// ProbeInfos returns info about all connected probes.
func (h *Hub) ProbeInfos() []Info {
	h.mu.RLock()
	defer h.mu.RUnlock()

	infos := make([]Info, 0, len(h.probes))
	for _, p := range h.probes {
		p.mu.Lock()
		infos = append(infos, Info{
			ID:        p.ID,
			Connected: p.Connected,
			LastSeen:  p.LastSeen,
		})
		p.mu.Unlock()
	}
	return infos
}
