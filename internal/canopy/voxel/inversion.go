package voxel

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/canopy.report/internal/canopy"
)

// InversionParams controls the multi-scan linear model solve.
type InversionParams struct {
	MinObservations int  // fewest scans with a usable gap value per voxel
	Weighted        bool // weight each scan by its observation count
}

// DefaultInversionParams mirrors the usual field campaign settings.
func DefaultInversionParams() InversionParams {
	return InversionParams{MinObservations: 3}
}

// InversionResult holds the per-voxel outputs of the linear model on the
// shared lattice of the input grids. PAIv and PAIh are the vertically
// and horizontally projected plant area components, NScans the number of
// scans that observed each voxel at all, and Cover the vertical
// projective cover accumulated downward from the top of the grid.
type InversionResult struct {
	Bounds     Bounds
	VoxelSize  float64
	NX, NY, NZ int

	PAIv   []float64
	PAIh   []float64
	NScans []int32
	Cover  []float64
}

// Idx flattens voxel coordinates the same way Grid.Idx does.
func (r *InversionResult) Idx(ix, iy, iz int) int {
	return (iz*r.NY+iy)*r.NX + ix
}

// Invert solves the per-voxel linear model across scans. Each scan
// contributes one observation per voxel it saw: the gap fraction derived
// from its hit and miss counts against the mean ray zenith of those
// counts. Voxels with fewer usable observations than
// p.MinObservations come out missing; a degenerate solve (for example
// every scan at the same zenith) propagates NaN unclamped.
func Invert(grids []*Grid, p InversionParams) (*InversionResult, error) {
	if len(grids) == 0 {
		return nil, &canopy.InsufficientDataError{Op: "voxel.Invert", Got: 0, Want: 1}
	}
	base := grids[0]
	for i, g := range grids[1:] {
		if !base.SameLattice(g) {
			return nil, fmt.Errorf("voxel: grid %d is on a different lattice", i+1)
		}
	}
	minN := p.MinObservations
	if minN <= 0 {
		minN = DefaultInversionParams().MinObservations
	}

	nv := base.NX * base.NY * base.NZ
	res := &InversionResult{
		Bounds:    base.Bounds,
		VoxelSize: base.VoxelSize,
		NX:        base.NX,
		NY:        base.NY,
		NZ:        base.NZ,
		PAIv:      make([]float64, nv),
		PAIh:      make([]float64, nv),
		NScans:    make([]int32, nv),
		Cover:     make([]float64, nv),
	}

	xs := make([]float64, 0, len(grids))
	ys := make([]float64, 0, len(grids))
	ws := make([]float64, 0, len(grids))
	for i := 0; i < nv; i++ {
		xs, ys, ws = xs[:0], ys[:0], ws[:0]
		var seen int32
		for _, g := range grids {
			nb := g.Hits[i] + g.Misses[i]
			if nb == 0 {
				continue
			}
			seen++
			pgap := float64(g.Misses[i]) / float64(nb)
			if pgap <= 0 {
				continue
			}
			theta := g.ZenithSum[i] / float64(nb)
			xs = append(xs, math.Abs(2*math.Tan(theta)/math.Pi))
			ys = append(ys, -math.Log(pgap))
			ws = append(ws, float64(nb))
		}
		res.NScans[i] = seen
		if len(xs) < minN {
			res.PAIv[i] = canopy.Missing()
			res.PAIh[i] = canopy.Missing()
			continue
		}
		var weights []float64
		if p.Weighted {
			weights = ws
		}
		paih, paiv := stat.LinearRegression(xs, ys, weights, false)
		res.PAIv[i] = paiv
		res.PAIh[i] = paih
	}

	// Vertical cover per column, accumulating PAIv downward from the
	// top of the grid. Missing voxels contribute nothing.
	for iy := 0; iy < base.NY; iy++ {
		for ix := 0; ix < base.NX; ix++ {
			sum := 0.0
			for iz := base.NZ - 1; iz >= 0; iz-- {
				j := res.Idx(ix, iy, iz)
				if v := res.PAIv[j]; !canopy.IsMissing(v) {
					sum += v
				}
				res.Cover[j] = 1 - math.Exp(-sum)
			}
		}
	}
	return res, nil
}
