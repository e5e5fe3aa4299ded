package profile

import (
	"github.com/banshee-data/canopy.report/internal/canopy"
	"github.com/banshee-data/canopy.report/internal/units"
)

// PgapProfile is the gap probability by zenith ring and height bin over
// one azimuth sector. Values are averages across the sector's azimuth
// bins; bins that recorded no shots contribute nothing to the average.
// A value is missing where no azimuth bin in the sector had shots.
//
// Cover accumulates from the top height bin downward, so Values[zi][0]
// is the gap probability through the entire canopy column and the
// profile typically decreases toward the ground. No clamping is applied:
// noisy shot counts can push individual values outside [0, 1].
type PgapProfile struct {
	ZenithCenters []float64 // radians, ascending
	ZenithRes     float64   // radians
	Heights       []float64 // bin centers, meters, ascending
	HeightRes     float64
	Values        []float64 // len = len(ZenithCenters)*len(Heights)
}

// Idx flattens (zenith, height) bin indices into Values.
func (p *PgapProfile) Idx(zi, hi int) int { return zi*len(p.Heights) + hi }

// At returns the gap probability for one zenith ring and height bin.
func (p *PgapProfile) At(zi, hi int) float64 { return p.Values[p.Idx(zi, hi)] }

// Pgap derives the gap probability profile for the azimuth sector
// [minAzDeg, maxAzDeg), selecting azimuth bins by their centers. Within
// each selected bin, cover at a height is the cumulative target weight
// from the canopy top down to that height divided by the bin's shot
// count, and Pgap = 1 - cover. Bins with zero shots yield undefined
// cover and are excluded from the azimuthal average.
func (g *Grid) Pgap(minAzDeg, maxAzDeg float64) *PgapProfile {
	minAz := units.DegToRad(minAzDeg)
	maxAz := units.DegToRad(maxAzDeg)

	sel := make([]int, 0, g.nAzimuth)
	for ai := 0; ai < g.nAzimuth; ai++ {
		c := (float64(ai) + 0.5) * g.azimuthRes
		if c >= minAz && c < maxAz {
			sel = append(sel, ai)
		}
	}

	out := &PgapProfile{
		ZenithCenters: g.ZenithCenters(),
		ZenithRes:     g.zenithRes,
		Heights:       g.Heights(),
		HeightRes:     g.params.HeightRes,
		Values:        make([]float64, g.nZenith*g.nHeight),
	}

	sum := make([]float64, g.nHeight)
	for zi := 0; zi < g.nZenith; zi++ {
		for i := range sum {
			sum[i] = 0
		}
		defined := 0
		for _, ai := range sel {
			shots := g.shots[g.ShotIdx(zi, ai)]
			if shots == 0 {
				continue
			}
			defined++
			cum := 0.0
			for hi := g.nHeight - 1; hi >= 0; hi-- {
				cum += g.targets[g.Idx(zi, ai, hi)]
				sum[hi] += 1 - cum/float64(shots)
			}
		}
		for hi := 0; hi < g.nHeight; hi++ {
			if defined == 0 {
				out.Values[out.Idx(zi, hi)] = canopy.Missing()
			} else {
				out.Values[out.Idx(zi, hi)] = sum[hi] / float64(defined)
			}
		}
	}
	return out
}
