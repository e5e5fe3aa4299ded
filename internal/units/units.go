// Package units provides shared angle conversions between degrees and radians
package units

import "math"

// DegToRad converts an angle in degrees to radians.
// CLI flags and config files take angles in degrees; the processing code
// works in radians throughout.
func DegToRad(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// RadToDeg converts an angle in radians to degrees.
func RadToDeg(rad float64) float64 {
	return rad * 180.0 / math.Pi
}

// NormalizeAzimuth wraps an azimuth angle in radians into [0, 2*pi).
func NormalizeAzimuth(rad float64) float64 {
	a := math.Mod(rad, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a
}
