// Package canopy defines the shared data model for terrestrial laser
// scanning canopy analysis: laser pulses and their returns, scanner poses,
// and the missing-value convention used by every derived product.
package canopy

// Point is a world-frame position in meters.
type Point struct {
	X float64
	Y float64
	Z float64
}

// Return is a single recorded target along a pulse.
//
// Index and Count describe the return's position within its pulse as
// recorded by the instrument. Count is kept even when other returns of
// the same pulse are filtered out, so weighting schemes that divide by
// the return count stay stable under filtering.
type Return struct {
	Index       int     // 1-based position within the pulse
	Count       int     // total returns recorded for the pulse
	Range       float64 // meters from scanner to target
	Reflectance float64 // dB
	Point       Point   // world-frame position, valid once a pose is applied
	Height      float64 // meters above ground, valid once height-corrected
}

// Pulse is one emitted laser shot and its recorded returns.
//
// Zenith and Azimuth are world-frame beam angles in radians: zenith is
// measured from the upward vertical, azimuth clockwise from +Y toward +X,
// wrapped to [0, 2pi). A pulse with no returns is still meaningful: it
// records that the beam escaped unobstructed, which the gap-probability
// math needs as much as it needs interceptions.
type Pulse struct {
	ShotID  uint64
	Zenith  float64
	Azimuth float64
	Returns []Return
}

// TerminatingRange returns the range at which the pulse was first
// intercepted, or false for a pulse with no returns.
func (p *Pulse) TerminatingRange() (float64, bool) {
	if len(p.Returns) == 0 {
		return 0, false
	}
	r := p.Returns[0].Range
	for _, t := range p.Returns[1:] {
		if t.Range < r {
			r = t.Range
		}
	}
	return r, true
}
