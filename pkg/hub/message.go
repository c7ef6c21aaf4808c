// Package hub provides a thread-safe websocket broadcast hub
// using the idiomatic Go channel-based fan-out pattern. One hub
// exists per scan channel; dashboards watching that scan subscribe
// to it and receive every state update as JSON text frames.
package hub

import "encoding/json"

// Encode marshals a broadcast payload. Split out so callers can encode
// once and fan the same bytes to several hubs.
func Encode(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}
