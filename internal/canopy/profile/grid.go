// Package profile builds vertical canopy structure profiles from laser
// pulses: angular target/shot accumulation, gap probability by zenith
// ring and height bin, plant area index under three estimators, and
// plant area volume density.
package profile

import (
	"fmt"
	"math"
	"strings"

	"github.com/banshee-data/canopy.report/internal/canopy"
	"github.com/banshee-data/canopy.report/internal/units"
)

// Weighting selects how a pulse's returns contribute target weight
// during accumulation.
type Weighting int

const (
	// WeightingWeighted spreads unit weight over the pulse's recorded
	// return count: w = 1/count. The recorded count is used even when
	// some returns were filtered out upstream.
	WeightingWeighted Weighting = iota
	// WeightingAll gives every return full weight.
	WeightingAll
	// WeightingFirst counts only first returns, at full weight.
	WeightingFirst
	// WeightingFirstLast gives half weight to first and last returns.
	WeightingFirstLast
)

var weightingNames = map[Weighting]string{
	WeightingWeighted:  "WEIGHTED",
	WeightingAll:       "ALL",
	WeightingFirst:     "FIRST",
	WeightingFirstLast: "FIRSTLAST",
}

func (w Weighting) String() string {
	if s, ok := weightingNames[w]; ok {
		return s
	}
	return fmt.Sprintf("Weighting(%d)", int(w))
}

// ParseWeighting maps the config spelling of a weighting scheme to its
// tag, ignoring case.
func ParseWeighting(s string) (Weighting, error) {
	for w, name := range weightingNames {
		if strings.EqualFold(s, name) {
			return w, nil
		}
	}
	return 0, fmt.Errorf("unknown weighting %q (want WEIGHTED, ALL, FIRST or FIRSTLAST)", s)
}

// Params configures the angular and height binning of a profile grid.
// Angles are degrees, as they appear in config files and flags; the grid
// converts to radians internally.
type Params struct {
	MinZenithDeg  float64 // lower zenith edge, degrees from vertical
	MaxZenithDeg  float64
	ZenithResDeg  float64 // zenith ring width, degrees
	AzimuthResDeg float64 // azimuth bin width, degrees; bins start at north
	MinHeight     float64 // lower height edge, meters above ground
	MaxHeight     float64
	HeightRes     float64 // height bin width, meters
	Weighting     Weighting
}

// DefaultParams is the binning used by the standard profile runs: five
// degree zenith rings between 35 and 70 degrees, quadrant azimuth bins,
// and half meter height bins up to 50 m.
func DefaultParams() Params {
	return Params{
		MinZenithDeg:  35,
		MaxZenithDeg:  70,
		ZenithResDeg:  5,
		AzimuthResDeg: 90,
		MinHeight:     0,
		MaxHeight:     50,
		HeightRes:     0.5,
		Weighting:     WeightingWeighted,
	}
}

// Grid accumulates target weight per (zenith, azimuth, height) bin and
// shot counts per (zenith, azimuth) bin for one scan position.
//
// A Grid is not safe for concurrent use. Partition the pulse stream,
// give each worker its own Grid, and combine the partials with Merge;
// accumulation is purely additive so the merge order does not matter.
type Grid struct {
	params Params

	minZenith  float64 // radians
	zenithRes  float64 // radians
	azimuthRes float64 // radians

	nZenith  int
	nAzimuth int
	nHeight  int

	targets []float64 // len = nZenith*nAzimuth*nHeight
	shots   []int64   // len = nZenith*nAzimuth

	// Telemetry for run summaries.
	PulsesSeen   int64 // pulses offered, including discarded ones
	PulsesBinned int64 // pulses that landed in a zenith/azimuth bin
}

// binCount converts an axis extent into a bin count. The epsilon keeps
// extents that are exact multiples of the resolution from losing their
// last bin to floating point rounding.
func binCount(min, max, res float64) int {
	return int(math.Floor((max-min)/res + 1e-9))
}

// NewGrid validates p and allocates an empty accumulation grid.
func NewGrid(p Params) (*Grid, error) {
	if p.MaxZenithDeg <= p.MinZenithDeg || p.ZenithResDeg <= 0 {
		return nil, &canopy.InvalidBinRangeError{Axis: "zenith", Min: p.MinZenithDeg, Max: p.MaxZenithDeg, Res: p.ZenithResDeg}
	}
	if p.MaxHeight <= p.MinHeight || p.HeightRes <= 0 {
		return nil, &canopy.InvalidBinRangeError{Axis: "height", Min: p.MinHeight, Max: p.MaxHeight, Res: p.HeightRes}
	}
	if p.AzimuthResDeg <= 0 || p.AzimuthResDeg > 360 {
		return nil, &canopy.InvalidBinRangeError{Axis: "azimuth", Min: 0, Max: 360, Res: p.AzimuthResDeg}
	}

	g := &Grid{
		params:     p,
		minZenith:  units.DegToRad(p.MinZenithDeg),
		zenithRes:  units.DegToRad(p.ZenithResDeg),
		azimuthRes: units.DegToRad(p.AzimuthResDeg),
		nZenith:    binCount(p.MinZenithDeg, p.MaxZenithDeg, p.ZenithResDeg),
		nAzimuth:   binCount(0, 360, p.AzimuthResDeg),
		nHeight:    binCount(p.MinHeight, p.MaxHeight, p.HeightRes),
	}
	g.targets = make([]float64, g.nZenith*g.nAzimuth*g.nHeight)
	g.shots = make([]int64, g.nZenith*g.nAzimuth)
	return g, nil
}

// Params returns the binning configuration the grid was built with.
func (g *Grid) Params() Params { return g.params }

// Idx flattens (zenith, azimuth, height) bin indices into targets.
func (g *Grid) Idx(zi, ai, hi int) int { return (zi*g.nAzimuth+ai)*g.nHeight + hi }

// ShotIdx flattens (zenith, azimuth) bin indices into shots.
func (g *Grid) ShotIdx(zi, ai int) int { return zi*g.nAzimuth + ai }

// NZenith returns the number of zenith rings.
func (g *Grid) NZenith() int { return g.nZenith }

// NAzimuth returns the number of azimuth bins.
func (g *Grid) NAzimuth() int { return g.nAzimuth }

// NHeight returns the number of height bins.
func (g *Grid) NHeight() int { return g.nHeight }

// ZenithCenter returns the center of zenith ring zi in radians.
func (g *Grid) ZenithCenter(zi int) float64 {
	return g.minZenith + (float64(zi)+0.5)*g.zenithRes
}

// ZenithCenters returns all zenith ring centers in radians, ascending.
func (g *Grid) ZenithCenters() []float64 {
	out := make([]float64, g.nZenith)
	for zi := range out {
		out[zi] = g.ZenithCenter(zi)
	}
	return out
}

// HeightCenter returns the center of height bin hi in meters.
func (g *Grid) HeightCenter(hi int) float64 {
	return g.params.MinHeight + (float64(hi)+0.5)*g.params.HeightRes
}

// Heights returns all height bin centers in meters, ascending.
func (g *Grid) Heights() []float64 {
	out := make([]float64, g.nHeight)
	for hi := range out {
		out[hi] = g.HeightCenter(hi)
	}
	return out
}

// TargetWeight returns the accumulated target weight in one bin.
func (g *Grid) TargetWeight(zi, ai, hi int) float64 { return g.targets[g.Idx(zi, ai, hi)] }

// ShotCount returns the accumulated shot count in one angular bin.
func (g *Grid) ShotCount(zi, ai int) int64 { return g.shots[g.ShotIdx(zi, ai)] }

// AddPulse bins one pulse. A pulse whose zenith or azimuth falls outside
// the configured bins is discarded entirely. An in-range pulse counts as
// one shot in its angular bin no matter how many of its returns qualify:
// a beam that escaped unobstructed carries gap information. Returns with
// out-of-range heights are silently excluded.
func (g *Grid) AddPulse(p canopy.Pulse) {
	g.PulsesSeen++

	zi := int(math.Floor((p.Zenith - g.minZenith) / g.zenithRes))
	if zi < 0 || zi >= g.nZenith {
		return
	}
	ai := int(math.Floor(units.NormalizeAzimuth(p.Azimuth) / g.azimuthRes))
	if ai < 0 || ai >= g.nAzimuth {
		return
	}

	g.shots[g.ShotIdx(zi, ai)]++
	g.PulsesBinned++

	for _, r := range p.Returns {
		w, ok := returnWeight(g.params.Weighting, r)
		if !ok {
			continue
		}
		hi := int(math.Floor((r.Height - g.params.MinHeight) / g.params.HeightRes))
		if hi < 0 || hi >= g.nHeight {
			continue
		}
		g.targets[g.Idx(zi, ai, hi)] += w
	}
}

// returnWeight applies one weighting scheme to one return. The boolean
// is false for returns the scheme excludes.
func returnWeight(w Weighting, r canopy.Return) (float64, bool) {
	switch w {
	case WeightingWeighted:
		if r.Count <= 0 {
			return 0, false
		}
		return 1 / float64(r.Count), true
	case WeightingAll:
		return 1, true
	case WeightingFirst:
		if r.Index == 1 {
			return 1, true
		}
		return 0, false
	case WeightingFirstLast:
		if r.Index == 1 || r.Index == r.Count {
			return 0.5, true
		}
		return 0, false
	default:
		return 0, false
	}
}

// Merge adds other's accumulators into g. Both grids must share the same
// binning parameters.
func (g *Grid) Merge(other *Grid) error {
	if g.params != other.params {
		return fmt.Errorf("merge: binning parameters differ: %+v vs %+v", g.params, other.params)
	}
	for i, v := range other.targets {
		g.targets[i] += v
	}
	for i, v := range other.shots {
		g.shots[i] += v
	}
	g.PulsesSeen += other.PulsesSeen
	g.PulsesBinned += other.PulsesBinned
	return nil
}
