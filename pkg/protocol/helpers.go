package protocol

import "time"

// NewDetectionMessage creates a detection message for one processed frame
func NewDetectionMessage(data DetectionData) (*Message, error) {
	return NewMessage(TypeDetection, data)
}

// GetDetectionData extracts detection data from a message
func (m *Message) GetDetectionData() (*DetectionData, error) {
	var data DetectionData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// NewStopScanMessage creates a stop_scan message
func NewStopScanMessage(scanID string) (*Message, error) {
	return NewMessage(TypeStopScan, StopScanData{ScanID: scanID})
}

// GetStopScanData extracts stop_scan data from a message
func (m *Message) GetStopScanData() (*StopScanData, error) {
	var data StopScanData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// NewAckMessage creates a frame acknowledgement
func NewAckMessage(frame, objectsFound int) (*Message, error) {
	return NewMessage(TypeAck, AckData{Frame: frame, ObjectsFound: objectsFound})
}

// GetAckData extracts ack data from a message
func (m *Message) GetAckData() (*AckData, error) {
	var data AckData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// NewErrorMessage creates an error message
func NewErrorMessage(message string) (*Message, error) {
	return NewMessage(TypeError, ErrorData{Message: message})
}

// GetErrorData extracts error data from a message
func (m *Message) GetErrorData() (*ErrorData, error) {
	var data ErrorData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// NewScanCompletedMessage creates a scan_completed notification
func NewScanCompletedMessage(scanID, log string) (*Message, error) {
	return NewMessage(TypeScanCompleted, ScanCompletedData{ScanID: scanID, Log: log})
}

// GetScanCompletedData extracts scan_completed data from a message
func (m *Message) GetScanCompletedData() (*ScanCompletedData, error) {
	var data ScanCompletedData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// NewProbeDisconnectedMessage creates a probe_disconnected notification
func NewProbeDisconnectedMessage(source string) (*Message, error) {
	return NewMessage(TypeProbeDisconnected, ProbeDisconnectedData{Source: source})
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{ID: id, Timestamp: time.Now().UnixMilli()})
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// NewPongMessage creates a pong response
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
