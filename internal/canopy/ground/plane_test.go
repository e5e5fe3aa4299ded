package ground

import (
	"errors"
	"math"
	"testing"

	"github.com/banshee-data/canopy.report/internal/canopy"
)

// planeSamples builds a grid of samples on z = a + b*x + c*y.
func planeSamples(a, b, c float64, n int, spacing float64) []Sample {
	out := make([]Sample, 0, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			x := float64(i) * spacing
			y := float64(j) * spacing
			out = append(out, Sample{X: x, Y: y, Z: a + b*x + c*y})
		}
	}
	return out
}

// A noise-free horizontal point set must come back with the exact input
// elevation and no slope.
func TestFitPlaneFlat(t *testing.T) {
	samples := planeSamples(5.25, 0, 0, 5, 10)

	p, err := FitPlane(samples, DefaultFitParams())
	if err != nil {
		t.Fatalf("FitPlane: %v", err)
	}
	if math.Abs(p.Intercept-5.25) > 1e-9 {
		t.Errorf("intercept = %v, want 5.25", p.Intercept)
	}
	if math.Abs(p.SlopeX) > 1e-10 || math.Abs(p.SlopeY) > 1e-10 {
		t.Errorf("slopes = %v, %v, want 0, 0", p.SlopeX, p.SlopeY)
	}
	if p.Slope() > 1e-8 {
		t.Errorf("Slope() = %v deg, want about 0", p.Slope())
	}
}

func TestFitPlaneRecoversTilt(t *testing.T) {
	samples := planeSamples(2.0, 0.1, -0.05, 6, 8)

	p, err := FitPlane(samples, DefaultFitParams())
	if err != nil {
		t.Fatalf("FitPlane: %v", err)
	}
	if math.Abs(p.Intercept-2.0) > 1e-8 || math.Abs(p.SlopeX-0.1) > 1e-9 || math.Abs(p.SlopeY+0.05) > 1e-9 {
		t.Errorf("fit = %+v, want a=2 b=0.1 c=-0.05", p)
	}
}

// One stray low return must not drag the surface down.
func TestFitPlaneRejectsOutlier(t *testing.T) {
	samples := planeSamples(3.0, 0.02, 0.01, 7, 8)
	samples = append(samples, Sample{X: 24, Y: 24, Z: 3.0 + 0.02*24 + 0.01*24 - 5})

	p, err := FitPlane(samples, DefaultFitParams())
	if err != nil {
		t.Fatalf("FitPlane: %v", err)
	}

	probe := canopy.Point{X: 24, Y: 24, Z: 3.0 + 0.02*24 + 0.01*24}
	if h := math.Abs(p.HeightAbove(probe)); h > 0.05 {
		t.Errorf("fitted surface off by %v m at the outlier cell, want < 0.05", h)
	}
}

// Inverse-range weights shift the fit toward near samples when the far
// ones disagree.
func TestFitPlaneHonorsSampleWeights(t *testing.T) {
	samples := []Sample{
		{X: 0, Y: 0, Z: 1.0, Weight: 100},
		{X: 10, Y: 0, Z: 1.0, Weight: 100},
		{X: 0, Y: 10, Z: 1.0, Weight: 100},
		{X: 10, Y: 10, Z: 1.0, Weight: 100},
		{X: 5, Y: 5, Z: 3.0, Weight: 1e-6},
	}

	p, err := FitPlane(samples, DefaultFitParams())
	if err != nil {
		t.Fatalf("FitPlane: %v", err)
	}
	if math.Abs(p.Intercept-1.0) > 1e-3 {
		t.Errorf("intercept = %v, want about 1.0 with the heavy corner weights", p.Intercept)
	}
}

func TestFitPlaneInsufficientData(t *testing.T) {
	samples := []Sample{{X: 0, Y: 0, Z: 1}, {X: 1, Y: 1, Z: 2}}
	_, err := FitPlane(samples, DefaultFitParams())

	var ide *canopy.InsufficientDataError
	if !errors.As(err, &ide) {
		t.Fatalf("expected InsufficientDataError, got %v", err)
	}
	if ide.Got != 2 || ide.Want != 3 {
		t.Errorf("error counts = %d/%d, want 2/3", ide.Got, ide.Want)
	}
}

func TestFitPlaneDegenerateInputs(t *testing.T) {
	tests := []struct {
		name    string
		samples []Sample
	}{
		{"colinear", []Sample{
			{X: 0, Y: 0, Z: 1}, {X: 1, Y: 1, Z: 2}, {X: 2, Y: 2, Z: 3}, {X: 3, Y: 3, Z: 4},
		}},
		{"coincident", []Sample{
			{X: 2, Y: 3, Z: 1}, {X: 2, Y: 3, Z: 1.1}, {X: 2, Y: 3, Z: 0.9},
		}},
		{"axis aligned line", []Sample{
			{X: 0, Y: 5, Z: 1}, {X: 1, Y: 5, Z: 1}, {X: 2, Y: 5, Z: 1}, {X: 9, Y: 5, Z: 1},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FitPlane(tt.samples, DefaultFitParams())
			var dpe *canopy.DegeneratePlaneError
			if !errors.As(err, &dpe) {
				t.Fatalf("expected DegeneratePlaneError, got %v", err)
			}
		})
	}
}

func TestSlopeAspect(t *testing.T) {
	p := &Plane{Intercept: 1, SlopeX: 0.1, SlopeY: 0}
	if got := p.Slope(); math.Abs(got-5.7105931) > 1e-5 {
		t.Errorf("Slope() = %v, want atan(0.1) in degrees", got)
	}
	if got := p.Aspect(); math.Abs(got-90) > 1e-9 {
		t.Errorf("Aspect() = %v, want 90 (ascent due east)", got)
	}

	north := &Plane{SlopeX: 0, SlopeY: 0.2}
	if got := north.Aspect(); math.Abs(got) > 1e-9 {
		t.Errorf("Aspect() = %v, want 0 (ascent due north)", got)
	}
}

func TestHeightAbove(t *testing.T) {
	p := &Plane{Intercept: 2, SlopeX: 0.5, SlopeY: -0.25}
	pt := canopy.Point{X: 4, Y: 8, Z: 10}
	// Ground under the point: 2 + 2 - 2 = 2.
	if got := p.HeightAbove(pt); got != 8 {
		t.Errorf("HeightAbove = %v, want 8", got)
	}
}
