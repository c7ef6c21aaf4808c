package probe

import (
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"

	"github.com/spatialvcs/go-spatialvcs/pkg/protocol"
)

func TestNewHub(t *testing.T) {
	hub := NewHub()

	if hub == nil {
		t.Fatal("NewHub returned nil")
	}

	if hub.ProbeCount() != 0 {
		t.Error("ProbeCount should be 0 initially")
	}
}

func TestGetStats(t *testing.T) {
	hub := NewHub()

	stats := hub.GetStats()

	if stats.ProbeCount != 0 {
		t.Error("ProbeCount should be 0")
	}
	if stats.MessagesReceived != 0 {
		t.Error("MessagesReceived should be 0")
	}
	if stats.MessagesSent != 0 {
		t.Error("MessagesSent should be 0")
	}
}

func TestCallbackSetters(t *testing.T) {
	hub := NewHub()

	// Set all callbacks - should not panic
	hub.OnDetection(func(probeID string, data *protocol.DetectionData) int { return 0 })
	hub.OnStopScan(func(probeID string, data *protocol.StopScanData) {})
	hub.OnDisconnect(func(probeID string) {})
}

func TestProbeInfosEmpty(t *testing.T) {
	hub := NewHub()

	infos := hub.ProbeInfos()
	if len(infos) != 0 {
		t.Error("ProbeInfos should return empty slice initially")
	}
}

func TestRegisterRoutes(t *testing.T) {
	hub := NewHub()
	app := fiber.New()

	// Should not panic
	hub.RegisterRoutes(app)
}

func TestWebSocketConnection(t *testing.T) {
	hub := NewHub()
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	hub.RegisterRoutes(app)

	go app.Listen(":18090")
	defer app.Shutdown()
	time.Sleep(100 * time.Millisecond)

	ws, _, err := websocket.DefaultDialer.Dial("ws://localhost:18090/ws/probe/test-probe", nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	defer ws.Close()

	time.Sleep(50 * time.Millisecond)

	if hub.ProbeCount() != 1 {
		t.Errorf("ProbeCount = %d, want 1", hub.ProbeCount())
	}

	infos := hub.ProbeInfos()
	if len(infos) != 1 || infos[0].ID != "test-probe" {
		t.Errorf("ProbeInfos = %+v, want the connected probe", infos)
	}

	ws.Close()
	time.Sleep(100 * time.Millisecond)

	if hub.ProbeCount() != 0 {
		t.Errorf("ProbeCount = %d, want 0 after disconnect", hub.ProbeCount())
	}
}

func TestDetectionCallbackAndAck(t *testing.T) {
	hub := NewHub()
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	hub.RegisterRoutes(app)

	var detectionReceived atomic.Bool
	var receivedProbeID string

	hub.OnDetection(func(probeID string, data *protocol.DetectionData) int {
		receivedProbeID = probeID
		detectionReceived.Store(true)
		return len(data.Objects)
	})

	go app.Listen(":18091")
	defer app.Shutdown()
	time.Sleep(100 * time.Millisecond)

	ws, _, err := websocket.DefaultDialer.Dial("ws://localhost:18091/ws/probe/detect-test", nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	defer ws.Close()

	msg, _ := protocol.NewDetectionMessage(protocol.DetectionData{
		ScanID:      "scan_1",
		FrameNumber: 7,
		Objects: []protocol.RawDetection{
			{Label: "cup", Position: &protocol.Position{Z: 1}},
			{Label: "keys", Position: &protocol.Position{Z: 0.5}},
		},
	})
	data, _ := msg.Bytes()
	ws.WriteMessage(websocket.TextMessage, data)

	// The frame is acknowledged with the tracked object count.
	_, respData, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}

	var resp protocol.Message
	json.Unmarshal(respData, &resp)
	if resp.Type != protocol.TypeAck {
		t.Fatalf("Type = %s, want ack", resp.Type)
	}

	ack, err := resp.GetAckData()
	if err != nil {
		t.Fatalf("GetAckData error: %v", err)
	}
	if ack.Frame != 7 || ack.ObjectsFound != 2 {
		t.Errorf("ack = %+v, want frame 7 with 2 objects", ack)
	}

	if !detectionReceived.Load() {
		t.Error("Detection callback should have been called")
	}
	if receivedProbeID != "detect-test" {
		t.Errorf("Probe ID = %s, want detect-test", receivedProbeID)
	}

	stats := hub.GetStats()
	if stats.FramesReceived < 1 {
		t.Error("FramesReceived should be at least 1")
	}
}

func TestStopScanCallback(t *testing.T) {
	hub := NewHub()
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	hub.RegisterRoutes(app)

	stopped := make(chan string, 1)
	hub.OnStopScan(func(probeID string, data *protocol.StopScanData) {
		stopped <- data.ScanID
	})

	go app.Listen(":18092")
	defer app.Shutdown()
	time.Sleep(100 * time.Millisecond)

	ws, _, err := websocket.DefaultDialer.Dial("ws://localhost:18092/ws/probe/stop-test", nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	defer ws.Close()

	msg, _ := protocol.NewStopScanMessage("scan_9")
	data, _ := msg.Bytes()
	ws.WriteMessage(websocket.TextMessage, data)

	select {
	case scanID := <-stopped:
		if scanID != "scan_9" {
			t.Errorf("stop scan id = %s, want scan_9", scanID)
		}
	case <-time.After(time.Second):
		t.Fatal("StopScan callback not called")
	}
}

func TestDisconnectCallback(t *testing.T) {
	hub := NewHub()
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	hub.RegisterRoutes(app)

	disconnected := make(chan string, 1)
	hub.OnDisconnect(func(probeID string) {
		disconnected <- probeID
	})

	go app.Listen(":18093")
	defer app.Shutdown()
	time.Sleep(100 * time.Millisecond)

	ws, _, err := websocket.DefaultDialer.Dial("ws://localhost:18093/ws/probe/gone-test", nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	ws.Close()

	select {
	case probeID := <-disconnected:
		if probeID != "gone-test" {
			t.Errorf("disconnected probe = %s, want gone-test", probeID)
		}
	case <-time.After(time.Second):
		t.Fatal("Disconnect callback not called")
	}
}

func TestPingPong(t *testing.T) {
	hub := NewHub()
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	hub.RegisterRoutes(app)

	go app.Listen(":18094")
	defer app.Shutdown()
	time.Sleep(100 * time.Millisecond)

	ws, _, err := websocket.DefaultDialer.Dial("ws://localhost:18094/ws/probe/ping-test", nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	defer ws.Close()

	msg, _ := protocol.NewPingMessage("ping-test")
	data, _ := msg.Bytes()
	ws.WriteMessage(websocket.TextMessage, data)

	_, respData, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}

	var resp protocol.Message
	json.Unmarshal(respData, &resp)

	if resp.Type != protocol.TypePong {
		t.Errorf("Type = %s, want pong", resp.Type)
	}
}

func TestMalformedMessageGetsError(t *testing.T) {
	hub := NewHub()
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	hub.RegisterRoutes(app)

	go app.Listen(":18095")
	defer app.Shutdown()
	time.Sleep(100 * time.Millisecond)

	ws, _, err := websocket.DefaultDialer.Dial("ws://localhost:18095/ws/probe/bad-test", nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	defer ws.Close()

	ws.WriteMessage(websocket.TextMessage, []byte("not json"))

	_, respData, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}

	var resp protocol.Message
	json.Unmarshal(respData, &resp)

	if resp.Type != protocol.TypeError {
		t.Errorf("Type = %s, want error", resp.Type)
	}
}
