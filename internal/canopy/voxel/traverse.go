package voxel

import (
	"math"

	"github.com/banshee-data/canopy.report/internal/canopy"
)

// Walk visits every voxel the ray origin + t*dir crosses for t in
// [0, tMax], in strictly increasing distance order, each exactly once.
// visit receives the voxel coordinates and the parametric entry and exit
// distances of the crossing; returning false stops the traversal.
//
// The stepping is the grid-aligned incremental scheme of Amanatides and
// Woo: per-axis step signs and parametric increments, always advancing
// the axis whose next boundary is nearest. Classification of a voxel
// against a terminating range depends on visiting order, so the ordering
// guarantee here is load-bearing, not cosmetic.
func (g *Grid) Walk(origin canopy.Point, dx, dy, dz, tMax float64, visit func(ix, iy, iz int, tIn, tOut float64) bool) {
	// Clip the ray against the lattice slab on each axis.
	t0, t1 := 0.0, tMax
	o := [3]float64{origin.X, origin.Y, origin.Z}
	d := [3]float64{dx, dy, dz}
	lo := [3]float64{g.Bounds.XMin, g.Bounds.YMin, g.Bounds.ZMin}
	hi := [3]float64{
		g.Bounds.XMin + float64(g.NX)*g.VoxelSize,
		g.Bounds.YMin + float64(g.NY)*g.VoxelSize,
		g.Bounds.ZMin + float64(g.NZ)*g.VoxelSize,
	}
	for a := 0; a < 3; a++ {
		if d[a] == 0 {
			if o[a] < lo[a] || o[a] >= hi[a] {
				return
			}
			continue
		}
		ta := (lo[a] - o[a]) / d[a]
		tb := (hi[a] - o[a]) / d[a]
		if ta > tb {
			ta, tb = tb, ta
		}
		if ta > t0 {
			t0 = ta
		}
		if tb < t1 {
			t1 = tb
		}
	}
	if t0 >= t1 {
		return
	}

	n := [3]int{g.NX, g.NY, g.NZ}
	var idx, step [3]int
	var tNext, tDelta [3]float64
	for a := 0; a < 3; a++ {
		p := o[a] + d[a]*t0
		i := int(math.Floor((p - lo[a]) / g.VoxelSize))
		if i < 0 {
			i = 0
		}
		if i >= n[a] {
			i = n[a] - 1
		}
		idx[a] = i

		switch {
		case d[a] > 0:
			step[a] = 1
			tDelta[a] = g.VoxelSize / d[a]
			tNext[a] = (lo[a] + float64(i+1)*g.VoxelSize - o[a]) / d[a]
		case d[a] < 0:
			step[a] = -1
			tDelta[a] = g.VoxelSize / -d[a]
			tNext[a] = (lo[a] + float64(i)*g.VoxelSize - o[a]) / d[a]
		default:
			step[a] = 0
			tDelta[a] = math.Inf(1)
			tNext[a] = math.Inf(1)
		}
	}

	t := t0
	for {
		// Axis whose boundary the ray crosses next.
		a := 0
		if tNext[1] < tNext[a] {
			a = 1
		}
		if tNext[2] < tNext[a] {
			a = 2
		}

		tOut := tNext[a]
		if tOut > t1 {
			tOut = t1
		}
		if !visit(idx[0], idx[1], idx[2], t, tOut) {
			return
		}
		if tNext[a] >= t1 {
			return
		}

		t = tNext[a]
		tNext[a] += tDelta[a]
		idx[a] += step[a]
		if idx[a] < 0 || idx[a] >= n[a] {
			return
		}
	}
}

// AddPulse traverses one pulse's ray from the scan origin and classifies
// every crossed voxel against the pulse's terminating range: voxels the
// beam crossed before the interception are misses with their full
// crossing length, the voxel holding the interception is a hit with the
// partial length up to it, and voxels beyond it are occluded with no
// path contribution. A pulse with no returns marks every crossed voxel
// as a miss. Hit and miss voxels also accumulate the ray zenith, which
// the inversion later averages into its abscissa.
func (g *Grid) AddPulse(origin canopy.Point, p canopy.Pulse) {
	tHit := math.Inf(1)
	if r, ok := p.TerminatingRange(); ok {
		tHit = r
	}
	dx, dy, dz := canopy.DirectionFromZenithAzimuth(p.Zenith, p.Azimuth)
	g.addRay(origin, dx, dy, dz, p.Zenith, tHit)
}

func (g *Grid) addRay(origin canopy.Point, dx, dy, dz, zenith, tHit float64) {
	g.Rays++
	g.Walk(origin, dx, dy, dz, math.Inf(1), func(ix, iy, iz int, tIn, tOut float64) bool {
		i := g.Idx(ix, iy, iz)
		switch {
		case tOut <= tHit:
			g.Misses[i]++
			g.PathLength[i] += tOut - tIn
			g.ZenithSum[i] += zenith
		case tIn <= tHit:
			g.Hits[i]++
			g.PathLength[i] += tHit - tIn
			g.ZenithSum[i] += zenith
		default:
			g.Occluded[i]++
		}
		return true
	})
}
