package canopy

import "math"

// Missing values travel through the profile and voxel math as NaN rather
// than as sentinel numbers or error returns. A zero-shot bin, a Pgap of
// zero under a logarithm, or a regression with too few points all produce
// Missing(), and downstream arithmetic propagates it the way IEEE 754
// does. Sentinels like -9999 appear only at serialization boundaries.

// Missing returns the in-memory marker for an undefined value.
func Missing() float64 {
	return math.NaN()
}

// IsMissing reports whether v is the undefined marker.
func IsMissing(v float64) bool {
	return math.IsNaN(v)
}
