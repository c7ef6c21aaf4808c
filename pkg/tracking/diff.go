package tracking

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/spatialvcs/go-spatialvcs/pkg/protocol"
)

// EventType classifies one detected change against the reference.
type EventType string

const (
	// EventAdded marks an object present live but absent from the reference.
	EventAdded EventType = "ADDED"
	// EventMove marks an object whose displacement exceeds the threshold.
	EventMove EventType = "MOVE"
	// EventMissing marks a reference object with no live counterpart.
	EventMissing EventType = "MISSING"
)

// Event is one classified change.
type Event struct {
	Type     EventType `json:"type"`
	Label    string    `json:"label"`
	Distance *float64  `json:"distance"` // meters for MOVE, null otherwise
}

// RefObject is a reference snapshot entry for one canonical label.
type RefObject struct {
	Position protocol.Position `json:"position"`
	Display  string            `json:"display,omitempty"`
}

// Reference maps canonical label to the object's reference state. Built
// once when live-diff mode starts and treated as immutable afterwards.
type Reference map[string]RefObject

// Result is the output of one diff pass.
type Result struct {
	Summary string  `json:"summary"`
	Events  []Event `json:"events"`
}

// Distance is the 3D Euclidean distance between two positions in meters.
func Distance(a, b protocol.Position) float64 {
	return r3.Norm(r3.Sub(
		r3.Vec{X: a.X, Y: a.Y, Z: a.Z},
		r3.Vec{X: b.X, Y: b.Y, Z: b.Z},
	))
}

// Diff compares the live snapshot against the reference. For each live
// detection whose canonical label exists in the reference, a MOVE event is
// emitted only when displacement strictly exceeds thresholdMeters; at or
// below the threshold the object is silently confirmed unchanged. Live
// labels absent from the reference emit ADDED; reference labels never
// matched emit MISSING. Runs on every incoming message while live-diff
// mode is active, so it stays O(live+reference).
func Diff(live []Detection, ref Reference, thresholdMeters float64) Result {
	events := make([]Event, 0, len(live))
	matched := make(map[string]bool, len(ref))

	var moved, added int
	for _, det := range live {
		refObj, ok := ref[det.Canonical]
		if !ok {
			added++
			events = append(events, Event{Type: EventAdded, Label: det.Canonical})
			continue
		}
		matched[det.Canonical] = true

		d := Distance(det.Position, refObj.Position)
		if d > thresholdMeters {
			moved++
			dist := d
			events = append(events, Event{Type: EventMove, Label: det.Canonical, Distance: &dist})
		}
	}

	missingLabels := make([]string, 0, len(ref))
	for label := range ref {
		if !matched[label] {
			missingLabels = append(missingLabels, label)
		}
	}
	sort.Strings(missingLabels)
	for _, label := range missingLabels {
		events = append(events, Event{Type: EventMissing, Label: label})
	}

	return Result{
		Summary: summarize(moved, added, len(missingLabels)),
		Events:  events,
	}
}

func summarize(moved, added, missing int) string {
	if moved == 0 && added == 0 && missing == 0 {
		return "no changes detected"
	}

	parts := make([]string, 0, 3)
	if moved > 0 {
		parts = append(parts, fmt.Sprintf("%d moved", moved))
	}
	if added > 0 {
		parts = append(parts, fmt.Sprintf("%d added", added))
	}
	if missing > 0 {
		parts = append(parts, fmt.Sprintf("%d missing", missing))
	}
	return strings.Join(parts, ", ")
}
