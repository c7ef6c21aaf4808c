// Package tracking implements the spatial detection persistence and
// live-diff engine: it fuses a noisy per-frame detection stream into a
// stable set of tracked objects and continuously compares that set against
// a previously captured reference scan.
package tracking

import (
	"github.com/spatialvcs/go-spatialvcs/pkg/protocol"
)

// UnknownLabel is the fallback class name for detections with no label.
const UnknownLabel = "unknown"

// Detection is the canonical, normalized form of one observed object.
// It is immutable per update: the persistence buffer replaces the whole
// value on each observation, never merges fields.
type Detection struct {
	Key        string            `json:"key"`
	Label      string            `json:"label"`
	Canonical  string            `json:"canonical_label"`
	Details    string            `json:"details,omitempty"`
	Confidence float64           `json:"confidence"`
	TrackID    int               `json:"track_id"` // -1 when the tracker id is absent
	Position   protocol.Position `json:"position"`
}

// CanonicalLabel returns the identity-matching class for a raw detection:
// the fine-grained label when present, else the plain label, else "unknown".
// This is the field diffing matches on, decoupled from the display label.
func CanonicalLabel(raw protocol.RawDetection) string {
	if raw.FineLabel != "" {
		return raw.FineLabel
	}
	if raw.Label != "" {
		return raw.Label
	}
	return UnknownLabel
}

// Normalize converts a raw detection into its canonical form under the
// given stable key. It never fails: missing numeric fields default to zero
// and missing labels default to "unknown".
func Normalize(key string, raw protocol.RawDetection) Detection {
	label := raw.Label
	if label == "" {
		label = UnknownLabel
	}

	trackID := -1
	if raw.TrackID != nil && *raw.TrackID >= 0 {
		trackID = *raw.TrackID
	}

	return Detection{
		Key:        key,
		Label:      label,
		Canonical:  CanonicalLabel(raw),
		Details:    raw.Details,
		Confidence: raw.Confidence,
		TrackID:    trackID,
		Position:   rawPosition(raw),
	}
}

// rawPosition reads the nested position struct if present, else synthesizes
// one from the flat x/y/z fields, else returns the zero position.
func rawPosition(raw protocol.RawDetection) protocol.Position {
	if raw.Position != nil {
		return *raw.Position
	}
	return protocol.Position{X: raw.X, Y: raw.Y, Z: raw.Z}
}
