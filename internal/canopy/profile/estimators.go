package profile

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/canopy.report/internal/canopy"
	"github.com/banshee-data/canopy.report/internal/units"
)

// HingeZenith is the zenith angle at which the extinction coefficient of
// a spherical leaf angle distribution is invariant to leaf inclination,
// arctan(pi/2), about 57.5 degrees. Jupp et al. (2009).
var HingeZenith = math.Atan(math.Pi / 2)

// Estimator tags the PAI estimation methods. The estimators share input
// and output shapes but need different extras (Linear a mean-leaf-angle
// flag, Weighted a total-PAI scale), so dispatch happens over this tag
// rather than through an interface.
type Estimator int

const (
	EstimatorHinge Estimator = iota
	EstimatorLinear
	EstimatorWeighted
)

var estimatorNames = map[Estimator]string{
	EstimatorHinge:    "hinge",
	EstimatorLinear:   "linear",
	EstimatorWeighted: "weighted",
}

func (e Estimator) String() string {
	if s, ok := estimatorNames[e]; ok {
		return s
	}
	return fmt.Sprintf("Estimator(%d)", int(e))
}

// ParseEstimator maps the config spelling of an estimator to its tag,
// ignoring case.
func ParseEstimator(s string) (Estimator, error) {
	for e, name := range estimatorNames {
		if strings.EqualFold(s, name) {
			return e, nil
		}
	}
	return 0, fmt.Errorf("unknown estimator %q (want hinge, linear or weighted)", s)
}

// EstimateOptions carries the per-estimator extras for Estimate.
type EstimateOptions struct {
	WithMLA  bool    // Linear: also derive the mean leaf angle profile
	TotalPAI float64 // Weighted: scale; pass canopy.Missing() to derive from Hinge
}

// Result is a PAI profile produced by one estimator. MLA is nil unless
// the Linear estimator ran with WithMLA.
type Result struct {
	Estimator Estimator
	Heights   []float64 // bin centers, meters, ascending
	PAI       []float64
	MLA       []float64 // degrees
}

// Estimate dispatches over the estimator tag.
func Estimate(e Estimator, pg *PgapProfile, opts EstimateOptions) (Result, error) {
	switch e {
	case EstimatorHinge:
		return Result{Estimator: e, Heights: pg.Heights, PAI: HingeProfile(pg)}, nil
	case EstimatorLinear:
		pai, mla := LinearProfile(pg, opts.WithMLA)
		return Result{Estimator: e, Heights: pg.Heights, PAI: pai, MLA: mla}, nil
	case EstimatorWeighted:
		return Result{Estimator: e, Heights: pg.Heights, PAI: SolidAngleProfile(pg, opts.TotalPAI)}, nil
	default:
		return Result{}, fmt.Errorf("estimate: unknown estimator %d", int(e))
	}
}

// nearestZenith returns the index of the ring center closest to target,
// or -1 for an empty profile.
func nearestZenith(centers []float64, target float64) int {
	best, bestDist := -1, math.Inf(1)
	for i, c := range centers {
		if d := math.Abs(c - target); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// HingeProfile estimates cumulative PAI per height bin from the single
// zenith ring closest to the hinge angle: PAI = -1.1 ln Pgap. Heights
// where Pgap is zero or undefined come back missing. Rings away from the
// hinge have no influence on the result.
func HingeProfile(pg *PgapProfile) []float64 {
	out := make([]float64, len(pg.Heights))
	zi := nearestZenith(pg.ZenithCenters, HingeZenith)
	if zi < 0 {
		for i := range out {
			out[i] = canopy.Missing()
		}
		return out
	}
	for hi := range out {
		p := pg.At(zi, hi)
		if canopy.IsMissing(p) || p <= 0 {
			out[hi] = canopy.Missing()
			continue
		}
		out[hi] = -1.1 * math.Log(p)
	}
	return out
}

// LinearProfile fits, per height bin, y = PAIv*x + PAIh across zenith
// rings, where y = -ln Pgap and x = |2 tan(theta) / pi| at ring centers.
// Rings with missing or zero Pgap are left out; a Pgap of exactly 1 is a
// valid observation of zero attenuation. Fewer than two usable rings
// yields a missing value for that height.
//
// Negative components are resolved in a fixed order: a negative PAIv is
// reset to zero with PAIh = mean(y); otherwise a negative PAIh is reset
// to zero with PAIv = mean(y/x). PAI is PAIv + PAIh. With withMLA, the
// mean leaf angle profile degrees(atan2(PAIv, PAIh)) is also returned.
func LinearProfile(pg *PgapProfile, withMLA bool) (pai, mla []float64) {
	nh := len(pg.Heights)
	pai = make([]float64, nh)
	if withMLA {
		mla = make([]float64, nh)
	}

	xs := make([]float64, 0, len(pg.ZenithCenters))
	ys := make([]float64, 0, len(pg.ZenithCenters))
	for hi := 0; hi < nh; hi++ {
		xs, ys = xs[:0], ys[:0]
		for zi, theta := range pg.ZenithCenters {
			p := pg.At(zi, hi)
			if canopy.IsMissing(p) || p <= 0 {
				continue
			}
			xs = append(xs, math.Abs(2*math.Tan(theta)/math.Pi))
			ys = append(ys, -math.Log(p))
		}
		if len(xs) < 2 {
			pai[hi] = canopy.Missing()
			if withMLA {
				mla[hi] = canopy.Missing()
			}
			continue
		}

		paih, paiv := stat.LinearRegression(xs, ys, nil, false)
		if paiv < 0 {
			paiv = 0
			paih = stat.Mean(ys, nil)
		} else if paih < 0 {
			paih = 0
			ratios := make([]float64, len(ys))
			for i := range ys {
				ratios[i] = ys[i] / xs[i]
			}
			paiv = stat.Mean(ratios, nil)
		}

		pai[hi] = paiv + paih
		if withMLA {
			mla[hi] = units.RadToDeg(math.Atan2(paiv, paih))
		}
	}
	return pai, mla
}

// SolidAngleProfile estimates PAI per height bin by solid-angle weighted
// averaging across zenith rings, after Jupp et al. (2009). Ring weights
// w = 2 pi sin(theta) dtheta are normalized over the rings whose Pgap
// through the full column is below 1; rings at or above 1 are excluded
// from the sum entirely, not zero-weighted, which shifts their share of
// the normalization onto the remaining rings. The ratio profile is
// scaled by totalPAI; pass canopy.Missing() to scale by the maximum of
// the Hinge profile. When no ring observed any interception the whole
// profile is missing.
func SolidAngleProfile(pg *PgapProfile, totalPAI float64) []float64 {
	nz := len(pg.ZenithCenters)
	nh := len(pg.Heights)
	out := make([]float64, nh)
	if nh == 0 {
		return out
	}

	weights := make([]float64, nz)
	wsum := 0.0
	for zi, theta := range pg.ZenithCenters {
		p0 := pg.At(zi, 0)
		if canopy.IsMissing(p0) || p0 >= 1 {
			continue
		}
		weights[zi] = 2 * math.Pi * math.Sin(theta) * pg.ZenithRes
		wsum += weights[zi]
	}
	if wsum == 0 {
		for i := range out {
			out[i] = canopy.Missing()
		}
		return out
	}

	if canopy.IsMissing(totalPAI) {
		totalPAI = maxDefined(HingeProfile(pg))
	}

	for hi := 0; hi < nh; hi++ {
		ratio := 0.0
		for zi := 0; zi < nz; zi++ {
			if weights[zi] == 0 {
				continue
			}
			ratio += (weights[zi] / wsum) * math.Log(pg.At(zi, hi)) / math.Log(pg.At(zi, 0))
		}
		out[hi] = totalPAI * ratio
	}
	return out
}

// maxDefined returns the largest non-missing value, or missing when
// there is none.
func maxDefined(vs []float64) float64 {
	max := canopy.Missing()
	for _, v := range vs {
		if canopy.IsMissing(v) {
			continue
		}
		if canopy.IsMissing(max) || v > max {
			max = v
		}
	}
	return max
}
