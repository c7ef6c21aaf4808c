// probe-sim: synthetic probe for exercising a spatialvcs server without
// real detection hardware. It streams detection frames for a small scene
// over the probe websocket, drifting one object so live-diff mode has
// something to report.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/spatialvcs/go-spatialvcs/internal/config"
	"github.com/spatialvcs/go-spatialvcs/internal/log"
	"github.com/spatialvcs/go-spatialvcs/pkg/protocol"
)

var (
	server = flag.String("server", "", "server base URL (defaults to SERVER_URL)")
	scanID = flag.String("scan", "", "scan channel id (random when empty)")
	rate   = flag.Float64("rate", 2, "frames per second")
	frames = flag.Int("frames", 0, "number of frames to send, 0 means until interrupted")
	drift  = flag.Float64("drift", 0.02, "per-frame cup drift in meters")
)

// scene is the static part of the simulated room.
var scene = []protocol.RawDetection{
	{Label: "chair", Details: "office chair", Confidence: 0.88, Position: &protocol.Position{X: -0.8, Y: 0, Z: 2.1}, BBox: []float64{40, 120, 260, 460}},
	{Label: "plant", Details: "potted plant", Confidence: 0.81, Position: &protocol.Position{X: 0.9, Y: -0.1, Z: 1.7}, BBox: []float64{500, 90, 610, 330}},
	{Label: "keys", Confidence: 0.72, Position: &protocol.Position{X: 0.2, Y: -0.4, Z: 0.9}, BBox: []float64{300, 400, 340, 430}},
}

func wsURL(base, scan string) string {
	u := strings.TrimSuffix(base, "/")
	u = strings.Replace(u, "http://", "ws://", 1)
	u = strings.Replace(u, "https://", "wss://", 1)
	return u + "/ws/probe/" + scan
}

func main() {
	flag.Parse()
	log.Init(config.LogLevel())

	base := config.ServerURL(*server)
	scan := *scanID
	if scan == "" {
		scan = "scan_" + uuid.New().String()[:8]
	}

	url := wsURL(base, scan)
	log.Info("probe-sim connecting", "url", url, "scan_id", scan)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		log.Fatal("connect failed", "url", url, "error", err)
	}
	defer conn.Close()

	// Drain acks so the read side notices disconnects.
	acks := make(chan protocol.AckData, 16)
	go func() {
		defer close(acks)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg protocol.Message
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			if msg.Type == protocol.TypeAck {
				if ack, err := msg.GetAckData(); err == nil {
					acks <- *ack
				}
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(time.Duration(float64(time.Second) / *rate))
	defer ticker.Stop()

	frame := 0
	cupX := 0.1
	for {
		select {
		case <-quit:
			sendStop(conn, scan)
			return
		case ack, ok := <-acks:
			if !ok {
				log.Warn("server closed connection")
				return
			}
			log.Debug("frame acked", "frame", ack.Frame, "objects_found", ack.ObjectsFound)
		case <-ticker.C:
			frame++
			cupX += *drift

			objects := append([]protocol.RawDetection{}, scene...)
			objects = append(objects, protocol.RawDetection{
				Label:      "cup",
				Details:    "white mug",
				Confidence: 0.9 + 0.05*math.Sin(float64(frame)/3),
				Position:   &protocol.Position{X: cupX, Y: -0.3, Z: 1.1},
				BBox:       []float64{380, 350, 430, 410},
			})

			msg, err := protocol.NewDetectionMessage(protocol.DetectionData{
				ScanID:      scan,
				Source:      "probe-sim",
				FrameNumber: frame,
				Objects:     objects,
				Log:         fmt.Sprintf("frame %d: %d objects", frame, len(objects)),
			})
			if err != nil {
				log.Error("build message failed", "error", err)
				continue
			}
			data, _ := msg.Bytes()
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error("send failed", "error", err)
				return
			}

			if *frames > 0 && frame >= *frames {
				sendStop(conn, scan)
				return
			}
		}
	}
}

// sendStop finalizes the scan before disconnecting.
func sendStop(conn *websocket.Conn, scan string) {
	msg, err := protocol.NewStopScanMessage(scan)
	if err != nil {
		return
	}
	data, _ := msg.Bytes()
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Warn("stop_scan send failed", "error", err)
		return
	}
	log.Info("scan stopped", "scan_id", scan)
	time.Sleep(200 * time.Millisecond)
}
