package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spatialvcs/go-spatialvcs/pkg/protocol"
)

// DefaultThresholdMeters is the displacement gate used when the caller
// does not supply one.
const DefaultThresholdMeters = 0.5

// Mode is the engine's operating mode.
type Mode string

const (
	// ModeIdle means incoming detections only update the live buffer.
	ModeIdle Mode = "idle"
	// ModeActive means every incoming message is also diffed against the
	// loaded reference snapshot.
	ModeActive Mode = "active"
)

var (
	// ErrNoScanSelected is returned when live-diff is started without a
	// reference scan identifier.
	ErrNoScanSelected = errors.New("tracking: no reference scan selected")

	// ErrStaleReference is returned when a reference fetch resolves after
	// the mode changed; the late result is discarded.
	ErrStaleReference = errors.New("tracking: reference load superseded")
)

// ReferenceLoader fetches a past scan's detections and builds the
// reference snapshot. Implemented by the scan store on the server and by
// the REST client in dashboard processes.
type ReferenceLoader interface {
	LoadReference(ctx context.Context, scanID string) (Reference, error)
}

// Update is what one ingested message produced: the rendered live view
// plus, while live-diff mode is active, the recomputed diff.
type Update struct {
	Snapshot []Detection
	Diff     *Result
}

// Engine owns the persistence buffer, the trajectory tracker, the
// reference snapshot and the mode state machine. All state is guarded by
// one mutex: ingestion, diffing and trajectory updates happen atomically
// per message, and messages are applied in arrival order as long as each
// connection feeds the engine from a single reader goroutine.
type Engine struct {
	loader ReferenceLoader

	mu         sync.Mutex
	buffer     *Buffer
	trails     *TrajectoryTracker
	mode       Mode
	generation uint64 // bumped on every mode transition
	reference  Reference
	refScanID  string
	threshold  float64
	last       Result
	haveResult bool
}

// NewEngine creates an idle engine. The loader may be nil if live-diff
// mode is never used.
func NewEngine(loader ReferenceLoader) *Engine {
	return &Engine{
		loader: loader,
		buffer: NewBuffer(),
		trails: NewTrajectoryTracker(),
		mode:   ModeIdle,
	}
}

// Ingest applies one detection message at the given time and returns the
// resulting live view. Malformed payloads never reach this point (they are
// dropped at parse time); a nil message still triggers the eviction sweep
// but produces no other change.
func (e *Engine) Ingest(data *protocol.DetectionData, now time.Time) Update {
	nowMs := now.UnixMilli()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.buffer.Ingest(data, nowMs)
	snapshot := e.buffer.Snapshot()

	if e.mode != ModeActive {
		return Update{Snapshot: snapshot}
	}

	for _, det := range snapshot {
		e.trails.Record(det.Canonical, det.Position, nowMs)
	}

	result := Diff(snapshot, e.reference, e.threshold)
	e.last = result
	e.haveResult = true

	return Update{Snapshot: snapshot, Diff: &result}
}

// StartDiff transitions IDLE→ACTIVE against the given reference scan. The
// reference fetch blocks the caller but never the detection path: the
// engine keeps ingesting in IDLE until the fetch resolves. If the fetch
// fails, or the mode changed while it was outstanding, the engine is left
// untouched and the error is surfaced.
func (e *Engine) StartDiff(ctx context.Context, scanID string, thresholdMeters float64) error {
	if scanID == "" {
		return ErrNoScanSelected
	}
	if e.loader == nil {
		return errors.New("tracking: no reference loader configured")
	}

	e.mu.Lock()
	gen := e.generation
	e.mu.Unlock()

	ref, err := e.loader.LoadReference(ctx, scanID)
	if err != nil {
		return fmt.Errorf("load reference scan %q: %w", scanID, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Mode may have been toggled while the fetch was outstanding.
	if e.generation != gen {
		return ErrStaleReference
	}

	e.generation++
	e.mode = ModeActive
	e.reference = ref
	e.refScanID = scanID
	e.threshold = thresholdMeters
	e.trails.Reset() // history clears on ACTIVE entry, not on exit
	e.last = Result{}
	e.haveResult = false
	return nil
}

// StopDiff transitions back to IDLE, discarding the last result and the
// reference snapshot. Always available. Trail history survives until the
// next ACTIVE entry.
func (e *Engine) StopDiff() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.generation++
	e.mode = ModeIdle
	e.reference = nil
	e.refScanID = ""
	e.last = Result{}
	e.haveResult = false
}

// Mode returns the current operating mode.
func (e *Engine) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// ReferenceScan returns the scan id the active reference was built from,
// or "" when idle.
func (e *Engine) ReferenceScan() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.refScanID
}

// Snapshot returns a copy of the current live view.
func (e *Engine) Snapshot() []Detection {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buffer.Snapshot()
}

// LastResult returns the most recent diff result, if one was computed
// since live-diff mode was entered.
func (e *Engine) LastResult() (Result, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last, e.haveResult
}

// Trajectories returns the active motion trails keyed by canonical label.
func (e *Engine) Trajectories(now time.Time) map[string][]protocol.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.trails.ActiveTrails(now.UnixMilli())
}
