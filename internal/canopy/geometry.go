package canopy

import (
	"math"

	"github.com/banshee-data/canopy.report/internal/units"
)

// Pose is a 4x4 row-major rigid transform from the scanner frame to the
// world frame: m00,m01,m02,m03, m10,...
type Pose [16]float64

// IdentityPose returns the identity transform.
func IdentityPose() Pose {
	return Pose{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Apply transforms a scanner-frame point into the world frame.
func (t Pose) Apply(x, y, z float64) (wx, wy, wz float64) {
	wx = t[0]*x + t[1]*y + t[2]*z + t[3]
	wy = t[4]*x + t[5]*y + t[6]*z + t[7]
	wz = t[8]*x + t[9]*y + t[10]*z + t[11]
	return
}

// Rotate applies only the rotation part of the pose. Use for direction
// vectors, which must not pick up the translation.
func (t Pose) Rotate(x, y, z float64) (wx, wy, wz float64) {
	wx = t[0]*x + t[1]*y + t[2]*z
	wy = t[4]*x + t[5]*y + t[6]*z
	wz = t[8]*x + t[9]*y + t[10]*z
	return
}

// Origin returns the scanner position in the world frame, i.e. the
// translation column of the pose.
func (t Pose) Origin() Point {
	return Point{X: t[3], Y: t[7], Z: t[11]}
}

// DirectionFromZenithAzimuth converts beam angles in radians into a unit
// direction vector. Zenith is measured from the upward vertical, azimuth
// clockwise from +Y toward +X.
func DirectionFromZenithAzimuth(zenith, azimuth float64) (dx, dy, dz float64) {
	sinZ := math.Sin(zenith)
	dx = sinZ * math.Sin(azimuth)
	dy = sinZ * math.Cos(azimuth)
	dz = math.Cos(zenith)
	return
}

// ZenithAzimuthFromDirection recovers beam angles in radians from a unit
// direction vector, azimuth wrapped to [0, 2pi). Inverse of
// DirectionFromZenithAzimuth for unit inputs.
func ZenithAzimuthFromDirection(dx, dy, dz float64) (zenith, azimuth float64) {
	if dz > 1 {
		dz = 1
	} else if dz < -1 {
		dz = -1
	}
	zenith = math.Acos(dz)
	azimuth = units.NormalizeAzimuth(math.Atan2(dx, dy))
	return
}
