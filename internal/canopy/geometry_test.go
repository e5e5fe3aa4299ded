package canopy

import (
	"math"
	"testing"
)

func TestDirectionFromZenithAzimuth(t *testing.T) {
	tests := []struct {
		name       string
		zenith     float64
		azimuth    float64
		dx, dy, dz float64
	}{
		{"straight up", 0, 0, 0, 0, 1},
		{"horizontal north", math.Pi / 2, 0, 0, 1, 0},
		{"horizontal east", math.Pi / 2, math.Pi / 2, 1, 0, 0},
		{"horizontal south", math.Pi / 2, math.Pi, 0, -1, 0},
		{"straight down", math.Pi, 0, 0, 0, -1},
		{"45 up toward north", math.Pi / 4, 0, 0, math.Sqrt2 / 2, math.Sqrt2 / 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dx, dy, dz := DirectionFromZenithAzimuth(tt.zenith, tt.azimuth)
			if math.Abs(dx-tt.dx) > 1e-12 || math.Abs(dy-tt.dy) > 1e-12 || math.Abs(dz-tt.dz) > 1e-12 {
				t.Errorf("direction = (%f, %f, %f), want (%f, %f, %f)", dx, dy, dz, tt.dx, tt.dy, tt.dz)
			}
			norm := math.Sqrt(dx*dx + dy*dy + dz*dz)
			if math.Abs(norm-1) > 1e-12 {
				t.Errorf("direction norm = %f, want 1", norm)
			}
		})
	}
}

func TestZenithAzimuthRoundTrip(t *testing.T) {
	zeniths := []float64{0.01, 0.6, 1.0, 1.2, math.Pi / 2, 2.0}
	azimuths := []float64{0, 0.5, math.Pi / 2, math.Pi, 4.7, 6.2}

	for _, z := range zeniths {
		for _, a := range azimuths {
			dx, dy, dz := DirectionFromZenithAzimuth(z, a)
			gz, ga := ZenithAzimuthFromDirection(dx, dy, dz)
			if math.Abs(gz-z) > 1e-9 {
				t.Errorf("zenith round trip: got %f, want %f", gz, z)
			}
			if math.Abs(ga-a) > 1e-9 {
				t.Errorf("azimuth round trip: got %f, want %f (zenith %f)", ga, a, z)
			}
		}
	}
}

func TestZenithAzimuthFromDirectionClampsDz(t *testing.T) {
	// A dz fractionally above 1 from accumulated rounding must not
	// produce NaN out of Acos.
	z, _ := ZenithAzimuthFromDirection(0, 0, 1.0000000001)
	if IsMissing(z) || z != 0 {
		t.Errorf("zenith for dz slightly above 1 = %f, want 0", z)
	}
}

func TestPoseApply(t *testing.T) {
	// Translation by (10, 20, 30) with a 90 degree rotation about Z that
	// maps +X to +Y.
	p := Pose{
		0, -1, 0, 10,
		1, 0, 0, 20,
		0, 0, 1, 30,
		0, 0, 0, 1,
	}

	wx, wy, wz := p.Apply(1, 0, 0)
	if math.Abs(wx-10) > 1e-12 || math.Abs(wy-21) > 1e-12 || math.Abs(wz-30) > 1e-12 {
		t.Errorf("Apply(1,0,0) = (%f, %f, %f), want (10, 21, 30)", wx, wy, wz)
	}

	// Rotate must ignore translation.
	rx, ry, rz := p.Rotate(1, 0, 0)
	if math.Abs(rx) > 1e-12 || math.Abs(ry-1) > 1e-12 || math.Abs(rz) > 1e-12 {
		t.Errorf("Rotate(1,0,0) = (%f, %f, %f), want (0, 1, 0)", rx, ry, rz)
	}
}

func TestPoseOrigin(t *testing.T) {
	p := IdentityPose()
	p[3], p[7], p[11] = 5.5, -2.25, 1.75

	got := p.Origin()
	want := Point{X: 5.5, Y: -2.25, Z: 1.75}
	if got != want {
		t.Errorf("Origin() = %+v, want %+v", got, want)
	}
}

func TestIdentityPoseIsNoOp(t *testing.T) {
	p := IdentityPose()
	wx, wy, wz := p.Apply(1.5, -2.5, 3.5)
	if wx != 1.5 || wy != -2.5 || wz != 3.5 {
		t.Errorf("identity Apply = (%f, %f, %f)", wx, wy, wz)
	}
}

func TestTerminatingRange(t *testing.T) {
	empty := Pulse{Zenith: 1}
	if _, ok := empty.TerminatingRange(); ok {
		t.Error("empty pulse reported a terminating range")
	}

	p := Pulse{Returns: []Return{
		{Index: 1, Count: 3, Range: 12.5},
		{Index: 2, Count: 3, Range: 14.0},
		{Index: 3, Count: 3, Range: 19.25},
	}}
	r, ok := p.TerminatingRange()
	if !ok || r != 12.5 {
		t.Errorf("TerminatingRange() = %f, %v, want 12.5, true", r, ok)
	}
}

func TestMissingMarker(t *testing.T) {
	if !IsMissing(Missing()) {
		t.Error("Missing() not recognized by IsMissing")
	}
	if IsMissing(0) || IsMissing(-9999) {
		t.Error("real values flagged as missing")
	}
}
