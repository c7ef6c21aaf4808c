package tracking

import (
	"sort"

	"github.com/spatialvcs/go-spatialvcs/pkg/protocol"
)

// DefaultStaleAfterMs is how long a key may go unobserved before its entry
// is evicted. The detector can miss a genuinely present object for a
// handful of consecutive frames; evicting only after ~1.8s of continuous
// absence smooths that flicker without letting removed objects linger.
// Tunable, not derived.
const DefaultStaleAfterMs = 1800

type bufferEntry struct {
	detection  Detection
	lastSeenMs int64
}

// Buffer is the flicker-tolerant persistence layer: a time-windowed map
// from stable key to the most recent normalized detection. It is not safe
// for concurrent use; the owning Engine serializes access.
type Buffer struct {
	staleAfterMs int64
	resolver     KeyResolver

	entries map[string]*bufferEntry
	order   []string // keys in first-insertion order
}

// NewBuffer creates a persistence buffer with the default staleness window.
func NewBuffer() *Buffer {
	return &Buffer{
		staleAfterMs: DefaultStaleAfterMs,
		resolver:     NewKeyResolver(),
		entries:      make(map[string]*bufferEntry),
	}
}

// Ingest applies one detection message to the buffer at the given time.
// If the message carries a non-empty state vector, that already-keyed map
// is the authoritative source for the frame; otherwise each raw object is
// normalized and keyed locally. A nil message is a no-op. The staleness
// sweep runs on every ingest regardless of the message contents.
func (b *Buffer) Ingest(data *protocol.DetectionData, nowMs int64) {
	b.evict(nowMs)

	if data == nil {
		return
	}

	if len(data.StateVector) > 0 {
		// Map iteration order is random; sort so re-ingesting the same
		// frame yields the same buffer order.
		keys := make([]string, 0, len(data.StateVector))
		for key := range data.StateVector {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			b.upsert(key, Normalize(key, data.StateVector[key]), nowMs)
		}
		return
	}

	for _, raw := range data.Objects {
		key := b.resolver.Resolve(raw)
		b.upsert(key, Normalize(key, raw), nowMs)
	}
}

// upsert replaces the whole entry for key, preserving its position in the
// insertion order when it already exists.
func (b *Buffer) upsert(key string, det Detection, nowMs int64) {
	if entry, ok := b.entries[key]; ok {
		entry.detection = det
		entry.lastSeenMs = nowMs
		return
	}
	b.entries[key] = &bufferEntry{detection: det, lastSeenMs: nowMs}
	b.order = append(b.order, key)
}

// evict removes entries unobserved for longer than the staleness window.
func (b *Buffer) evict(nowMs int64) {
	if len(b.entries) == 0 {
		return
	}

	kept := b.order[:0]
	for _, key := range b.order {
		entry := b.entries[key]
		if nowMs-entry.lastSeenMs > b.staleAfterMs {
			delete(b.entries, key)
			continue
		}
		kept = append(kept, key)
	}
	b.order = kept
}

// Snapshot returns a copy of the current live view in insertion/update
// order. The caller may mutate the returned slice freely.
func (b *Buffer) Snapshot() []Detection {
	out := make([]Detection, 0, len(b.order))
	for _, key := range b.order {
		out = append(out, b.entries[key].detection)
	}
	return out
}

// Len returns the number of live entries.
func (b *Buffer) Len() int {
	return len(b.entries)
}
