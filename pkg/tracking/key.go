package tracking

import (
	"fmt"
	"math"

	"github.com/spatialvcs/go-spatialvcs/pkg/protocol"
)

// Spatial fallback key constants. Fixed rather than adaptive: the grid is
// coarse on purpose so that one physical object cannot spawn a cluster of
// keys while the upstream tracker's identity assignment drops in and out.
const (
	// DefaultCellSize is the bounding-box grid cell size in pixels.
	DefaultCellSize = 96.0

	// DefaultDepthStep is the depth quantization step in meters.
	DefaultDepthStep = 0.5
)

// KeyResolver assigns a persistent identity key to raw detections.
// The zero value is not usable; use NewKeyResolver.
type KeyResolver struct {
	CellSize  float64
	DepthStep float64
}

// NewKeyResolver returns a resolver with the default grid constants.
func NewKeyResolver() KeyResolver {
	return KeyResolver{CellSize: DefaultCellSize, DepthStep: DefaultDepthStep}
}

// Resolve derives the stable key for a raw detection. Precedence:
//
//  1. "{label}_{trackId}" when the detector-assigned track id is >= 0.
//  2. "{canonicalLabel}_cell_{cx}_{cy}_{zb}" otherwise, where cx/cy are the
//     bounding-box center bucketed into grid cells and zb is the quantized
//     depth coordinate.
//
// Two detections of the same class landing in the same spatial+depth cell
// in one frame collapse to one key; that deduplication is intended.
func (r KeyResolver) Resolve(raw protocol.RawDetection) string {
	if raw.TrackID != nil && *raw.TrackID >= 0 {
		label := raw.Label
		if label == "" {
			label = UnknownLabel
		}
		return fmt.Sprintf("%s_%d", label, *raw.TrackID)
	}

	var cx, cy float64
	if len(raw.BBox) >= 4 {
		cx = (raw.BBox[0] + raw.BBox[2]) / 2
		cy = (raw.BBox[1] + raw.BBox[3]) / 2
	}

	z := rawPosition(raw).Z
	zb := int(math.Round(z / r.DepthStep))

	return fmt.Sprintf("%s_cell_%d_%d_%d",
		CanonicalLabel(raw),
		int(math.Floor(cx/r.CellSize)),
		int(math.Floor(cy/r.CellSize)),
		zb)
}

// ResolveKey derives the stable key using the default grid constants.
func ResolveKey(raw protocol.RawDetection) string {
	return NewKeyResolver().Resolve(raw)
}
