// Package voxel implements per-scan ray traversal over a fixed lattice
// and the cross-scan inversion that turns per-voxel gap observations
// into vertical and horizontal plant area components.
package voxel

import (
	"fmt"
	"math"

	"github.com/banshee-data/canopy.report/internal/canopy"
	"github.com/banshee-data/canopy.report/internal/canopy/ground"
)

// Class labels a finalized voxel.
type Class uint8

const (
	ClassGround     Class = 1 // voxel center no more than half a voxel above the ground surface
	ClassUnobserved Class = 2 // no ray reached it
	ClassHidden     Class = 3 // only occluded rays
	ClassEmpty      Class = 4 // rays passed through, none intercepted
	ClassObserved   Class = 5 // at least one interception
)

// Bounds is the axis-aligned extent of a voxel lattice, meters.
type Bounds struct {
	XMin, YMin, ZMin float64
	XMax, YMax, ZMax float64
}

// ComputeBounds derives the lattice shared by a set of scan positions.
// The horizontal extent snaps outward to buffer multiples around the
// positions so that lattices from overlapping plot setups line up; the
// floor sits one buffer below the lowest scanner and the ceiling hmax
// above the highest.
func ComputeBounds(positions []canopy.Point, buffer, hmax float64) Bounds {
	if len(positions) == 0 {
		return Bounds{}
	}
	minX, minY, minZ := positions[0].X, positions[0].Y, positions[0].Z
	maxX, maxY, maxZ := minX, minY, minZ
	for _, p := range positions[1:] {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
		minZ, maxZ = math.Min(minZ, p.Z), math.Max(maxZ, p.Z)
	}
	return Bounds{
		XMin: math.Floor((minX-buffer)/buffer) * buffer,
		YMin: math.Floor((minY-buffer)/buffer) * buffer,
		ZMin: minZ - buffer,
		XMax: math.Floor((maxX+1.5*buffer)/buffer) * buffer,
		YMax: math.Floor((maxY+1.5*buffer)/buffer) * buffer,
		ZMax: maxZ + hmax,
	}
}

// Grid accumulates ray observations for one scan over a voxel lattice.
// Like the profile accumulator it is not safe for concurrent use; give
// each worker its own Grid and combine with Merge.
type Grid struct {
	Bounds     Bounds
	VoxelSize  float64
	NX, NY, NZ int

	// Per-voxel accumulators, indexed by Idx.
	Hits       []int64   // rays terminating in the voxel
	Misses     []int64   // rays passing through unobstructed
	Occluded   []int64   // rays already intercepted before the voxel
	PathLength []float64 // meters of beam travel, hit and miss rays
	ZenithSum  []float64 // sum of ray zeniths over hit and miss rays

	// Derived by Finalize.
	Pgap  []float64
	Class []Class

	Rays int64 // rays offered to AddPulse
}

// NewGrid allocates an empty lattice over b. Dimension counts are
// floor(extent/voxelSize), matching how run configs round.
func NewGrid(b Bounds, voxelSize float64) (*Grid, error) {
	if voxelSize <= 0 {
		return nil, &canopy.InvalidBinRangeError{Axis: "voxel", Min: 0, Max: 0, Res: voxelSize}
	}
	nx := int((b.XMax - b.XMin) / voxelSize)
	ny := int((b.YMax - b.YMin) / voxelSize)
	nz := int((b.ZMax - b.ZMin) / voxelSize)
	if nx < 1 {
		return nil, &canopy.InvalidBinRangeError{Axis: "x", Min: b.XMin, Max: b.XMax, Res: voxelSize}
	}
	if ny < 1 {
		return nil, &canopy.InvalidBinRangeError{Axis: "y", Min: b.YMin, Max: b.YMax, Res: voxelSize}
	}
	if nz < 1 {
		return nil, &canopy.InvalidBinRangeError{Axis: "z", Min: b.ZMin, Max: b.ZMax, Res: voxelSize}
	}

	n := nx * ny * nz
	return &Grid{
		Bounds:     b,
		VoxelSize:  voxelSize,
		NX:         nx,
		NY:         ny,
		NZ:         nz,
		Hits:       make([]int64, n),
		Misses:     make([]int64, n),
		Occluded:   make([]int64, n),
		PathLength: make([]float64, n),
		ZenithSum:  make([]float64, n),
	}, nil
}

// Idx flattens voxel coordinates, z-major so a z slice is contiguous.
func (g *Grid) Idx(ix, iy, iz int) int { return (iz*g.NY+iy)*g.NX + ix }

// Center returns the world position of a voxel center.
func (g *Grid) Center(ix, iy, iz int) canopy.Point {
	return canopy.Point{
		X: g.Bounds.XMin + (float64(ix)+0.5)*g.VoxelSize,
		Y: g.Bounds.YMin + (float64(iy)+0.5)*g.VoxelSize,
		Z: g.Bounds.ZMin + (float64(iz)+0.5)*g.VoxelSize,
	}
}

// SameLattice reports whether two grids share geometry.
func (g *Grid) SameLattice(other *Grid) bool {
	return g.Bounds == other.Bounds && g.VoxelSize == other.VoxelSize &&
		g.NX == other.NX && g.NY == other.NY && g.NZ == other.NZ
}

// Merge adds other's accumulators into g. Both grids must share the
// same lattice. Derived fields are not merged; run Finalize again after
// merging.
func (g *Grid) Merge(other *Grid) error {
	if !g.SameLattice(other) {
		return fmt.Errorf("merge: lattice geometry differs")
	}
	for i := range g.Hits {
		g.Hits[i] += other.Hits[i]
		g.Misses[i] += other.Misses[i]
		g.Occluded[i] += other.Occluded[i]
		g.PathLength[i] += other.PathLength[i]
		g.ZenithSum[i] += other.ZenithSum[i]
	}
	g.Rays += other.Rays
	return nil
}

// Finalize derives per-voxel Pgap and classification from the
// accumulated counts. Pgap is misses over non-occluded observations,
// missing where the voxel was never observed. elev, when non-nil,
// overrides the class of voxels whose center sits at or below the
// ground surface plus half a voxel, so the whole subsurface column
// reads as ground.
func (g *Grid) Finalize(elev ground.ElevationSource) {
	n := len(g.Hits)
	g.Pgap = make([]float64, n)
	g.Class = make([]Class, n)

	for i := 0; i < n; i++ {
		nbeams := g.Hits[i] + g.Misses[i]
		if nbeams > 0 {
			g.Pgap[i] = float64(g.Misses[i]) / float64(nbeams)
		} else {
			g.Pgap[i] = canopy.Missing()
		}

		switch {
		case g.Hits[i] > 0:
			g.Class[i] = ClassObserved
		case g.Misses[i] > 0:
			g.Class[i] = ClassEmpty
		case g.Occluded[i] > 0:
			g.Class[i] = ClassHidden
		default:
			g.Class[i] = ClassUnobserved
		}
	}

	if elev == nil {
		return
	}
	for iz := 0; iz < g.NZ; iz++ {
		for iy := 0; iy < g.NY; iy++ {
			for ix := 0; ix < g.NX; ix++ {
				c := g.Center(ix, iy, iz)
				e := elev.Elevation(c.X, c.Y)
				if canopy.IsMissing(e) {
					continue
				}
				if c.Z-e < g.VoxelSize/2 {
					g.Class[g.Idx(ix, iy, iz)] = ClassGround
				}
			}
		}
	}
}
