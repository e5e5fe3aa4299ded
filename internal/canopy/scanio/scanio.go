// Package scanio loads decoded terrestrial laser scans: pulse streams,
// scanner pose matrices, and the RiSCAN-style project layout the batch
// drivers walk. Decoding proprietary instrument formats happens outside
// this module; scanio consumes the decoded exports.
package scanio

import (
	"io"

	"github.com/banshee-data/canopy.report/internal/canopy"
)

// DefaultReflectanceDB is the reflectance floor applied to returns
// before binning. Returns at or below it are treated as noise.
const DefaultReflectanceDB = -20.0

// PulseSource yields decoded pulses one at a time. Next returns io.EOF
// after the last pulse.
type PulseSource interface {
	Next() (canopy.Pulse, error)
}

// SliceSource replays an in-memory pulse slice. Library callers and
// tests use it to feed accumulators without files.
type SliceSource struct {
	pulses []canopy.Pulse
	next   int
}

// NewSliceSource returns a source over pulses. The slice is not copied.
func NewSliceSource(pulses []canopy.Pulse) *SliceSource {
	return &SliceSource{pulses: pulses}
}

// Next implements PulseSource.
func (s *SliceSource) Next() (canopy.Pulse, error) {
	if s.next >= len(s.pulses) {
		return canopy.Pulse{}, io.EOF
	}
	p := s.pulses[s.next]
	s.next++
	return p, nil
}

// ReadAll drains a source into a slice.
func ReadAll(src PulseSource) ([]canopy.Pulse, error) {
	var out []canopy.Pulse
	for {
		p, err := src.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, p)
	}
}

// Transformed applies a scanner-to-world pose to every pulse of an
// underlying source: beam angles are rotated into the world frame and
// return positions placed along the world-frame beam from the scanner
// origin.
type Transformed struct {
	src    PulseSource
	pose   canopy.Pose
	origin canopy.Point
}

// NewTransformed wraps src with pose.
func NewTransformed(src PulseSource, pose canopy.Pose) *Transformed {
	return &Transformed{src: src, pose: pose, origin: pose.Origin()}
}

// Next implements PulseSource.
func (t *Transformed) Next() (canopy.Pulse, error) {
	p, err := t.src.Next()
	if err != nil {
		return canopy.Pulse{}, err
	}
	dx, dy, dz := canopy.DirectionFromZenithAzimuth(p.Zenith, p.Azimuth)
	wx, wy, wz := t.pose.Rotate(dx, dy, dz)
	p.Zenith, p.Azimuth = canopy.ZenithAzimuthFromDirection(wx, wy, wz)
	for i := range p.Returns {
		r := &p.Returns[i]
		r.Point = canopy.Point{
			X: t.origin.X + r.Range*wx,
			Y: t.origin.Y + r.Range*wy,
			Z: t.origin.Z + r.Range*wz,
		}
	}
	return p, nil
}

// ReflectanceFilter drops returns whose reflectance does not exceed a
// floor. Return counts are left untouched so count-based weighting is
// stable under filtering; a pulse whose returns are all dropped becomes
// a gap pulse.
type ReflectanceFilter struct {
	src   PulseSource
	minDB float64
}

// NewReflectanceFilter wraps src with a reflectance floor in dB.
func NewReflectanceFilter(src PulseSource, minDB float64) *ReflectanceFilter {
	return &ReflectanceFilter{src: src, minDB: minDB}
}

// Next implements PulseSource.
func (f *ReflectanceFilter) Next() (canopy.Pulse, error) {
	p, err := f.src.Next()
	if err != nil {
		return canopy.Pulse{}, err
	}
	kept := p.Returns[:0]
	for _, r := range p.Returns {
		if r.Reflectance > f.minDB {
			kept = append(kept, r)
		}
	}
	p.Returns = kept
	return p, nil
}
