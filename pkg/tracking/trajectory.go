package tracking

import (
	"github.com/spatialvcs/go-spatialvcs/pkg/protocol"
)

const (
	// MaxTrailLength caps the number of stored positions per label.
	MaxTrailLength = 50

	// TrailActiveWindowMs is how recently a label must have been observed
	// for its trail to count as active for display.
	TrailActiveWindowMs = 5000
)

type trail struct {
	positions  []protocol.Position
	lastSeenMs int64
}

// TrajectoryTracker keeps a bounded position history per canonical label
// for motion-trail rendering. Staleness hides a trail but does not delete
// it, so a briefly-reappearing object resumes its trail rather than
// restarting it. Not safe for concurrent use; the Engine serializes access.
type TrajectoryTracker struct {
	trails map[string]*trail
}

// NewTrajectoryTracker creates an empty trajectory tracker.
func NewTrajectoryTracker() *TrajectoryTracker {
	return &TrajectoryTracker{trails: make(map[string]*trail)}
}

// Record appends a position to the label's trail, evicting the oldest
// entry once the trail is full, and stamps the label as seen now.
func (t *TrajectoryTracker) Record(label string, pos protocol.Position, nowMs int64) {
	tr, ok := t.trails[label]
	if !ok {
		tr = &trail{positions: make([]protocol.Position, 0, MaxTrailLength)}
		t.trails[label] = tr
	}

	if len(tr.positions) >= MaxTrailLength {
		copy(tr.positions, tr.positions[1:])
		tr.positions = tr.positions[:MaxTrailLength-1]
	}
	tr.positions = append(tr.positions, pos)
	tr.lastSeenMs = nowMs
}

// Active reports whether the label's trail should be displayed.
func (t *TrajectoryTracker) Active(label string, nowMs int64) bool {
	tr, ok := t.trails[label]
	return ok && nowMs-tr.lastSeenMs <= TrailActiveWindowMs
}

// Trail returns a copy of the label's stored positions, oldest first,
// regardless of activity.
func (t *TrajectoryTracker) Trail(label string) []protocol.Position {
	tr, ok := t.trails[label]
	if !ok {
		return nil
	}
	out := make([]protocol.Position, len(tr.positions))
	copy(out, tr.positions)
	return out
}

// ActiveTrails returns copies of all trails seen within the activity
// window, keyed by canonical label.
func (t *TrajectoryTracker) ActiveTrails(nowMs int64) map[string][]protocol.Position {
	out := make(map[string][]protocol.Position)
	for label, tr := range t.trails {
		if nowMs-tr.lastSeenMs > TrailActiveWindowMs {
			continue
		}
		positions := make([]protocol.Position, len(tr.positions))
		copy(positions, tr.positions)
		out[label] = positions
	}
	return out
}

// Reset discards all trails.
func (t *TrajectoryTracker) Reset() {
	t.trails = make(map[string]*trail)
}
