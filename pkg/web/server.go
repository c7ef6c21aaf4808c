// Package web serves the SpatialVCS HTTP API and dashboard websocket feeds.
package web

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/spatialvcs/go-spatialvcs/internal/log"
	"github.com/spatialvcs/go-spatialvcs/pkg/hub"
	"github.com/spatialvcs/go-spatialvcs/pkg/probe"
	"github.com/spatialvcs/go-spatialvcs/pkg/protocol"
	"github.com/spatialvcs/go-spatialvcs/pkg/scanstore"
	"github.com/spatialvcs/go-spatialvcs/pkg/tracking"
)

// detectionUpdate is the state pushed to dashboards on every probe frame.
type detectionUpdate struct {
	Type      string                         `json:"type"`
	Timestamp int64                          `json:"ts"`
	ScanID    string                         `json:"scan_id"`
	Objects   []tracking.Detection           `json:"objects"`
	Log       string                         `json:"log,omitempty"`
	Diff      *tracking.Result               `json:"diff,omitempty"`
	Trails    map[string][]protocol.Position `json:"trails,omitempty"`
}

// Server ties the probe hub, the tracking engine, the scan store and the
// dashboard hubs together behind one Fiber app.
type Server struct {
	app  *fiber.App
	port string

	store      *scanstore.Store
	engine     *tracking.Engine
	probes     *probe.Hub
	dashboards *hub.Registry
}

// NewServer creates a SpatialVCS server on the given port. With debug
// set, every HTTP request is logged.
func NewServer(port string, store *scanstore.Store, debug bool) *Server {
	s := &Server{
		port:       port,
		store:      store,
		engine:     tracking.NewEngine(store),
		probes:     probe.NewHub(),
		dashboards: hub.NewRegistry(),
	}

	app := fiber.New(fiber.Config{
		AppName:               "spatialvcs",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(cors.New())
	if debug {
		app.Use(logger.New())
	}

	s.probes.OnDetection(s.onDetection)
	s.probes.OnStopScan(s.onStopScan)
	s.probes.OnDisconnect(s.onProbeDisconnect)
	s.probes.RegisterRoutes(app)

	app.Get("/", s.handleRoot)

	spatial := app.Group("/spatial")
	spatial.Get("/scans", s.handleListScans)
	spatial.Get("/memory/:scan_id", s.handleScanMemory)
	spatial.Get("/reference/:scan_id", s.handleScanReference)
	spatial.Post("/livediff/start", s.handleLiveDiffStart)
	spatial.Post("/livediff/stop", s.handleLiveDiffStop)
	spatial.Get("/livediff", s.handleLiveDiffStatus)

	app.Use("/ws/dashboard", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/dashboard/:id", websocket.New(s.handleDashboardWS))

	s.app = app
	return s
}

// App exposes the Fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Engine exposes the tracking engine.
func (s *Server) Engine() *tracking.Engine {
	return s.engine
}

// Start starts the server and blocks.
func (s *Server) Start() error {
	log.Info("server listening", "port", s.port)
	return s.app.Listen(":" + s.port)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// onDetection runs for every probe frame: persist, track, fan out.
// Returns the frame's detection count for the ack. Flicker-held
// buffer entries stay out of this number.
func (s *Server) onDetection(probeID string, data *protocol.DetectionData) int {
	now := time.Now()
	nowMs := now.UnixMilli()

	scanID := data.ScanID
	if scanID == "" {
		scanID = probeID
	}
	source := data.Source
	if source == "" {
		source = probeID
	}

	if _, err := s.store.EnsureScan(scanID, source, nowMs); err != nil {
		log.Error("ensure scan failed", "scan_id", scanID, "error", err)
	}

	update := s.engine.Ingest(data, now)

	if err := s.store.RecordFrame(scanID, update.Snapshot, nowMs); err != nil {
		log.Error("record frame failed", "scan_id", scanID, "error", err)
	}

	out := detectionUpdate{
		Type:      string(protocol.TypeDetection),
		Timestamp: nowMs,
		ScanID:    scanID,
		Objects:   update.Snapshot,
		Log:       data.Log,
		Diff:      update.Diff,
	}
	if update.Diff != nil {
		out.Trails = s.engine.Trajectories(now)
	}
	if err := s.dashboards.Get(scanID).BroadcastJSON(out); err != nil {
		log.Error("broadcast failed", "scan_id", scanID, "error", err)
	}

	if len(data.StateVector) > 0 {
		return len(data.StateVector)
	}
	return len(data.Objects)
}

// onStopScan finalizes the scan and tells the dashboards.
func (s *Server) onStopScan(probeID string, data *protocol.StopScanData) {
	scanID := data.ScanID
	if scanID == "" {
		scanID = probeID
	}

	nowMs := time.Now().UnixMilli()
	if err := s.store.CompleteScan(scanID, nowMs); err != nil {
		log.Warn("complete scan failed", "scan_id", scanID, "error", err)
	}
	log.Info("scan completed", "scan_id", scanID)

	msg := fiber.Map{
		"type":    string(protocol.TypeScanCompleted),
		"ts":      nowMs,
		"scan_id": scanID,
	}
	if err := s.dashboards.Get(scanID).BroadcastJSON(msg); err != nil {
		log.Error("broadcast failed", "scan_id", scanID, "error", err)
	}
}

// onProbeDisconnect notifies dashboards on the probe's channel.
func (s *Server) onProbeDisconnect(probeID string) {
	msg := fiber.Map{
		"type":   string(protocol.TypeProbeDisconnected),
		"ts":     time.Now().UnixMilli(),
		"source": probeID,
	}
	if err := s.dashboards.Get(probeID).BroadcastJSON(msg); err != nil {
		log.Error("broadcast failed", "scan_id", probeID, "error", err)
	}
}

// handleDashboardWS attaches a dashboard to its scan channel hub.
func (s *Server) handleDashboardWS(c *websocket.Conn) {
	scanID := c.Params("id")

	// Send the current tracked state so late joiners are not blank
	// until the next frame arrives.
	snapshot := detectionUpdate{
		Type:      string(protocol.TypeDetection),
		Timestamp: time.Now().UnixMilli(),
		ScanID:    scanID,
		Objects:   s.engine.Snapshot(),
	}
	if err := c.WriteJSON(snapshot); err != nil {
		c.Close()
		return
	}

	client := hub.NewClient(s.dashboards.Get(scanID), c)
	client.Run()
}
