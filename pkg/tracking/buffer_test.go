package tracking

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/spatialvcs/go-spatialvcs/pkg/protocol"
)

func detectionMsg(objects ...protocol.RawDetection) *protocol.DetectionData {
	return &protocol.DetectionData{ScanID: "test", Objects: objects}
}

func snapshotKeys(b *Buffer) []string {
	snap := b.Snapshot()
	keys := make([]string, len(snap))
	for i, det := range snap {
		keys[i] = det.Key
	}
	return keys
}

func TestBufferIngestObjects(t *testing.T) {
	b := NewBuffer()
	track := 1
	b.Ingest(detectionMsg(
		protocol.RawDetection{Label: "cup", TrackID: &track, Position: &protocol.Position{Z: 1}},
		protocol.RawDetection{Label: "keys", BBox: []float64{0, 0, 96, 96}},
	), 1000)

	if b.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", b.Len())
	}

	want := []string{"cup_1", "keys_cell_0_0_0"}
	if diff := cmp.Diff(want, snapshotKeys(b)); diff != "" {
		t.Errorf("snapshot keys mismatch (-want +got):\n%s", diff)
	}
}

func TestBufferStateVectorPreferred(t *testing.T) {
	b := NewBuffer()
	b.Ingest(&protocol.DetectionData{
		Objects: []protocol.RawDetection{
			{Label: "ignored", BBox: []float64{0, 0, 10, 10}},
		},
		StateVector: map[string]protocol.RawDetection{
			"chair_7": {Label: "chair", Position: &protocol.Position{X: 1}},
			"cup_2":   {Label: "cup", Position: &protocol.Position{Z: 2}},
		},
	}, 1000)

	// State vector keys only, in sorted order for determinism.
	want := []string{"chair_7", "cup_2"}
	if diff := cmp.Diff(want, snapshotKeys(b)); diff != "" {
		t.Errorf("snapshot keys mismatch (-want +got):\n%s", diff)
	}
}

func TestBufferEviction(t *testing.T) {
	b := NewBuffer()
	b.Ingest(detectionMsg(protocol.RawDetection{Label: "cup", BBox: []float64{0, 0, 10, 10}}), 1000)

	// Within the window: a frame missing the cup does not evict it.
	b.Ingest(detectionMsg(), 2000)
	if b.Len() != 1 {
		t.Fatalf("Len() after 1000ms absence = %d, want 1 (flicker tolerated)", b.Len())
	}

	// Exactly at the window boundary: age 1800 is not "more than" 1800.
	b.Ingest(detectionMsg(), 2800)
	if b.Len() != 1 {
		t.Fatalf("Len() at exactly 1800ms = %d, want 1", b.Len())
	}

	// Past the window: evicted on the next ingest.
	b.Ingest(detectionMsg(), 2801)
	if b.Len() != 0 {
		t.Fatalf("Len() past staleness window = %d, want 0", b.Len())
	}
}

func TestBufferNeverHoldsExpiredEntries(t *testing.T) {
	b := NewBuffer()
	labels := []string{"cup", "keys", "chair", "plant"}

	now := int64(0)
	for i := 0; i < 200; i++ {
		now += 300
		label := labels[i%len(labels)]
		b.Ingest(detectionMsg(protocol.RawDetection{
			Label: label,
			BBox:  []float64{float64(i % 3 * 100), 0, float64(i%3*100 + 50), 50},
		}), now)

		for _, entry := range b.entries {
			if age := now - entry.lastSeenMs; age > DefaultStaleAfterMs {
				t.Fatalf("entry %q has age %dms > %dms at ingest time", entry.detection.Key, age, int64(DefaultStaleAfterMs))
			}
		}
	}
}

func TestBufferIdempotentReingest(t *testing.T) {
	msg := detectionMsg(
		protocol.RawDetection{Label: "cup", Position: &protocol.Position{Z: 0.24}, BBox: []float64{96, 192, 192, 288}},
		protocol.RawDetection{Label: "keys", BBox: []float64{0, 0, 96, 96}},
	)

	once := NewBuffer()
	once.Ingest(msg, 1000)

	twice := NewBuffer()
	twice.Ingest(msg, 1000)
	twice.Ingest(msg, 1001)

	if diff := cmp.Diff(once.Snapshot(), twice.Snapshot()); diff != "" {
		t.Errorf("re-ingest changed snapshot (-once +twice):\n%s", diff)
	}
}

func TestBufferSameCellDeduplicates(t *testing.T) {
	// No track id, bbox centered on cx=1 cy=2, z=0.24 (zb=0),
	// ingested twice: one entry, not two.
	b := NewBuffer()
	raw := protocol.RawDetection{
		Label:    "cup",
		Position: &protocol.Position{Z: 0.24},
		BBox:     []float64{96, 192, 192, 288},
	}
	b.Ingest(detectionMsg(raw), 1000)
	b.Ingest(detectionMsg(raw), 1100)

	if b.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", b.Len())
	}
}

func TestBufferUpdateInPlaceKeepsOrder(t *testing.T) {
	b := NewBuffer()
	t1, t2 := 1, 2
	b.Ingest(detectionMsg(
		protocol.RawDetection{Label: "cup", TrackID: &t1},
		protocol.RawDetection{Label: "keys", TrackID: &t2},
	), 1000)

	// Touch cup again; it keeps its original slot and gets the new value.
	b.Ingest(detectionMsg(
		protocol.RawDetection{Label: "cup", TrackID: &t1, Confidence: 0.99, Position: &protocol.Position{X: 5}},
	), 1500)

	snap := b.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot length = %d, want 2", len(snap))
	}
	if snap[0].Key != "cup_1" || snap[1].Key != "keys_2" {
		t.Errorf("order = [%s, %s], want [cup_1, keys_2]", snap[0].Key, snap[1].Key)
	}
	if snap[0].Confidence != 0.99 || snap[0].Position.X != 5 {
		t.Errorf("cup entry not replaced in place: %+v", snap[0])
	}
}

func TestBufferNilMessage(t *testing.T) {
	b := NewBuffer()
	b.Ingest(detectionMsg(protocol.RawDetection{Label: "cup", BBox: []float64{0, 0, 10, 10}}), 1000)

	// A dropped/malformed message never reaches Ingest, but a nil payload
	// must leave prior state intact apart from the eviction sweep.
	b.Ingest(nil, 1200)
	if b.Len() != 1 {
		t.Errorf("Len() = %d, want 1 after nil ingest", b.Len())
	}

	b.Ingest(nil, 5000)
	if b.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after staleness sweep", b.Len())
	}
}

func TestBufferSnapshotIsCopy(t *testing.T) {
	b := NewBuffer()
	b.Ingest(detectionMsg(protocol.RawDetection{Label: "cup", BBox: []float64{0, 0, 10, 10}}), 1000)

	snap := b.Snapshot()
	snap[0].Label = "mutated"

	if got := b.Snapshot()[0].Label; got != "cup" {
		t.Errorf("buffer state mutated through snapshot: label = %q", got)
	}
}
