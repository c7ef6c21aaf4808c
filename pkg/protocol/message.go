// Package protocol defines the WebSocket message types for probe-server
// communication. This package is shared between the probe clients and the
// spatialvcs server.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Probe → Server messages
	TypeDetection MessageType = "detection" // Per-frame detection results
	TypeStopScan  MessageType = "stop_scan" // End of a scan session

	// Server → Probe messages
	TypeAck   MessageType = "ack"   // Frame acknowledgement
	TypeError MessageType = "error" // Malformed input or processing error

	// Server → Dashboard messages
	TypeScanCompleted     MessageType = "scan_completed"     // Scan finished
	TypeProbeDisconnected MessageType = "probe_disconnected" // Probe left

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &msg, nil
}

// =============================================================================
// Probe → Server Message Types
// =============================================================================

// Position is a point in the probe's 3D coordinate frame (meters).
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// RawDetection is one per-frame object observation as produced by the
// upstream detector. The shape is deliberately loose: the position may
// arrive as a nested struct or as flat x/y/z fields, and the tracker id
// is only intermittently present.
type RawDetection struct {
	Label      string    `json:"label,omitempty"`
	FineLabel  string    `json:"fine_label,omitempty"` // fine-grained class, preferred for identity
	Details    string    `json:"details,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	TrackID    *int      `json:"track_id,omitempty"`
	Position   *Position `json:"position,omitempty"`

	// Flat position fields, used when Position is absent
	X float64 `json:"x,omitempty"`
	Y float64 `json:"y,omitempty"`
	Z float64 `json:"z,omitempty"`

	// Bounding box as [left, top, right, bottom] in pixels
	BBox []float64 `json:"bbox,omitempty"`
}

// Pose contains the probe's device orientation (gyroscope degrees)
type Pose struct {
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
	Gamma float64 `json:"gamma"`
}

// DetectionData is the payload of a detection message. When StateVector is
// present and non-empty it is the authoritative, already-keyed source for
// the frame; Objects remains available for per-object count statistics.
type DetectionData struct {
	ScanID      string                  `json:"scan_id,omitempty"`
	Source      string                  `json:"source,omitempty"`
	FrameNumber int                     `json:"frame_number,omitempty"`
	Objects     []RawDetection          `json:"objects"`
	StateVector map[string]RawDetection `json:"state_vector,omitempty"`
	Pose        *Pose                   `json:"pose,omitempty"`
	Log         string                  `json:"log,omitempty"`
}

// StopScanData marks the end of a scan session
type StopScanData struct {
	ScanID string `json:"scan_id"`
}

// =============================================================================
// Server → Probe Message Types
// =============================================================================

// AckData acknowledges a processed detection frame
type AckData struct {
	Frame        int `json:"frame"`
	ObjectsFound int `json:"objects_found"`
}

// ErrorData reports a per-message processing error
type ErrorData struct {
	Message string `json:"message"`
}

// =============================================================================
// Server → Dashboard Message Types
// =============================================================================

// ScanCompletedData notifies dashboards that a scan finished
type ScanCompletedData struct {
	ScanID string `json:"scan_id"`
	Log    string `json:"log,omitempty"`
}

// ProbeDisconnectedData notifies dashboards that a probe dropped
type ProbeDisconnectedData struct {
	Source string `json:"source"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
