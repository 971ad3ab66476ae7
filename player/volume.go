package player

import "math"

// VolumeLevels is the discrete level set the volume slider exposes, in
// ascending order.
var VolumeLevels = []float64{0.2, 0.4, 0.6, 0.7, 0.8, 1.0}

// SnapVolume picks the nearest level by absolute difference. Ties go to the
// lower level because the list is walked in ascending order with a strict
// comparison.
func SnapVolume(level float64) float64 {
	best := VolumeLevels[0]
	for _, v := range VolumeLevels[1:] {
		if math.Abs(v-level) < math.Abs(best-level) {
			best = v
		}
	}
	return best
}
