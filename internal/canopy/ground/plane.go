// Package ground derives a ground reference for a scan: a minimum-z
// candidate grid, a robust plane fit through the candidates, and
// elevation sources (fitted plane, DTM raster, flat offset) used to
// height-correct returns and classify ground voxels.
package ground

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/canopy.report/internal/canopy"
	"github.com/banshee-data/canopy.report/internal/units"
)

// Plane is a fitted ground surface z = a + b*x + c*y.
type Plane struct {
	Intercept float64 // a, meters
	SlopeX    float64 // b, rise per meter east
	SlopeY    float64 // c, rise per meter north
}

// Elevation returns the plane height at a horizontal position. Satisfies
// ElevationSource.
func (p *Plane) Elevation(x, y float64) float64 {
	return p.Intercept + p.SlopeX*x + p.SlopeY*y
}

// HeightAbove returns how far a point sits above the plane.
func (p *Plane) HeightAbove(pt canopy.Point) float64 {
	return pt.Z - p.Elevation(pt.X, pt.Y)
}

// Slope returns the steepest ground slope in degrees.
func (p *Plane) Slope() float64 {
	return units.RadToDeg(math.Atan(math.Hypot(p.SlopeX, p.SlopeY)))
}

// Aspect returns the compass direction of steepest ascent in degrees,
// clockwise from +Y.
func (p *Plane) Aspect() float64 {
	return units.RadToDeg(math.Atan2(p.SlopeX, p.SlopeY))
}

// Sample is one ground candidate point. A non-positive Weight is
// treated as 1.
type Sample struct {
	X, Y, Z float64
	Weight  float64
}

// FitParams tunes the robust plane fit.
type FitParams struct {
	HuberK  float64 // residual threshold in scale units, e.g. 1.345
	MaxIter int     // reweighting iteration cap
	Tol     float64 // coefficient change below which iteration stops
}

// DefaultFitParams returns the standard Huber tuning: 95 percent
// efficiency on clean Gaussian residuals.
func DefaultFitParams() FitParams {
	return FitParams{HuberK: 1.345, MaxIter: 50, Tol: 1e-8}
}

const minPlaneSamples = 3

// FitPlane fits a plane through ground candidates by iteratively
// reweighted least squares under Huber's loss. The residual scale is
// re-estimated each iteration from the median absolute deviation, so a
// single stray low return cannot drag the surface down. Caller-supplied
// sample weights (typically inverse range) multiply the robustness
// weights.
//
// Fewer than three samples is an InsufficientDataError; colinear or
// coincident samples a DegeneratePlaneError.
func FitPlane(samples []Sample, p FitParams) (*Plane, error) {
	if len(samples) < minPlaneSamples {
		return nil, &canopy.InsufficientDataError{Op: "ground.FitPlane", Got: len(samples), Want: minPlaneSamples}
	}
	if p.MaxIter <= 0 {
		p = DefaultFitParams()
	}

	n := len(samples)
	base := make([]float64, n)
	for i, s := range samples {
		if s.Weight > 0 {
			base[i] = s.Weight
		} else {
			base[i] = 1
		}
	}

	// Rank check on the unweighted design matrix. Weights cannot repair
	// degenerate geometry, only mask it.
	design := mat.NewDense(n, 3, nil)
	for i, s := range samples {
		design.Set(i, 0, 1)
		design.Set(i, 1, s.X)
		design.Set(i, 2, s.Y)
	}
	var svd mat.SVD
	if !svd.Factorize(design, mat.SVDThin) {
		return nil, &canopy.DegeneratePlaneError{Op: "ground.FitPlane", Detail: "svd did not converge"}
	}
	sv := svd.Values(nil)
	if sv[0] == 0 || sv[2] <= sv[0]*1e-10 {
		return nil, &canopy.DegeneratePlaneError{Op: "ground.FitPlane", Detail: "colinear or coincident samples"}
	}

	w := make([]float64, n)
	copy(w, base)
	beta, err := solveWeighted(samples, w)
	if err != nil {
		return nil, &canopy.DegeneratePlaneError{Op: "ground.FitPlane", Detail: err.Error()}
	}

	resid := make([]float64, n)
	for iter := 0; iter < p.MaxIter; iter++ {
		for i, s := range samples {
			resid[i] = s.Z - (beta[0] + beta[1]*s.X + beta[2]*s.Y)
		}
		scale := 1.4826 * medianAbsDeviation(resid)
		if scale <= 1e-12 {
			break
		}
		for i := range w {
			u := math.Abs(resid[i]) / scale
			hw := 1.0
			if u > p.HuberK {
				hw = p.HuberK / u
			}
			w[i] = base[i] * hw
		}

		next, err := solveWeighted(samples, w)
		if err != nil {
			return nil, &canopy.DegeneratePlaneError{Op: "ground.FitPlane", Detail: err.Error()}
		}
		delta := 0.0
		for i := range beta {
			if d := math.Abs(next[i] - beta[i]); d > delta {
				delta = d
			}
		}
		beta = next
		if delta < p.Tol {
			break
		}
	}

	return &Plane{Intercept: beta[0], SlopeX: beta[1], SlopeY: beta[2]}, nil
}

// solveWeighted solves the weighted least squares system for plane
// coefficients by scaling rows with sqrt(w) and QR-factorizing.
func solveWeighted(samples []Sample, w []float64) ([3]float64, error) {
	n := len(samples)
	a := mat.NewDense(n, 3, nil)
	b := mat.NewVecDense(n, nil)
	for i, s := range samples {
		sw := math.Sqrt(w[i])
		a.Set(i, 0, sw)
		a.Set(i, 1, sw*s.X)
		a.Set(i, 2, sw*s.Y)
		b.SetVec(i, sw*s.Z)
	}

	var qr mat.QR
	qr.Factorize(a)
	x := mat.NewDense(3, 1, nil)
	if err := qr.SolveTo(x, false, b); err != nil {
		return [3]float64{}, err
	}
	return [3]float64{x.At(0, 0), x.At(1, 0), x.At(2, 0)}, nil
}

// medianAbsDeviation returns the median absolute deviation around the
// median residual.
func medianAbsDeviation(resid []float64) float64 {
	dev := make([]float64, len(resid))
	med := median(resid)
	for i, r := range resid {
		dev[i] = math.Abs(r - med)
	}
	return median(dev)
}

func median(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	s := make([]float64, len(vs))
	copy(s, vs)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return 0.5 * (s[mid-1] + s[mid])
}
