package voxel

import (
	"math"
	"testing"

	"github.com/banshee-data/canopy.report/internal/canopy"
)

type crossing struct {
	ix, iy, iz int
	tIn, tOut  float64
}

func collectWalk(g *Grid, o canopy.Point, dx, dy, dz, tMax float64) []crossing {
	var out []crossing
	g.Walk(o, dx, dy, dz, tMax, func(ix, iy, iz int, tIn, tOut float64) bool {
		out = append(out, crossing{ix, iy, iz, tIn, tOut})
		return true
	})
	return out
}

// column6 is a single row of six unit voxels along the x axis.
func column6(t *testing.T) *Grid {
	t.Helper()
	g, err := NewGrid(Bounds{XMin: 0, YMin: 0, ZMin: 0, XMax: 6, YMax: 1, ZMax: 1}, 1)
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	return g
}

// horizontalPulse aims along +x from outside the column grids used here.
func horizontalPulse(ranges ...float64) canopy.Pulse {
	p := canopy.Pulse{Zenith: math.Pi / 2, Azimuth: math.Pi / 2}
	for i, r := range ranges {
		p.Returns = append(p.Returns, canopy.Return{Index: i + 1, Count: len(ranges), Range: r})
	}
	return p
}

func TestWalkAxisAligned(t *testing.T) {
	g, err := NewGrid(Bounds{XMin: 0, YMin: 0, ZMin: 0, XMax: 4, YMax: 1, ZMax: 1}, 1)
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	got := collectWalk(g, canopy.Point{X: -1, Y: 0.5, Z: 0.5}, 1, 0, 0, math.Inf(1))
	want := []crossing{
		{0, 0, 0, 1, 2},
		{1, 0, 0, 2, 3},
		{2, 0, 0, 3, 4},
		{3, 0, 0, 4, 5},
	}
	if len(got) != len(want) {
		t.Fatalf("visited %d voxels, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("crossing %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestWalkStopsAtLimit(t *testing.T) {
	g, err := NewGrid(Bounds{XMin: 0, YMin: 0, ZMin: 0, XMax: 4, YMax: 1, ZMax: 1}, 1)
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	got := collectWalk(g, canopy.Point{X: -1, Y: 0.5, Z: 0.5}, 1, 0, 0, 2.5)
	if len(got) != 2 {
		t.Fatalf("visited %d voxels, want 2: %+v", len(got), got)
	}
	if got[1].tOut != 2.5 {
		t.Fatalf("final crossing ends at %v, want 2.5", got[1].tOut)
	}
}

func TestWalkMissesLattice(t *testing.T) {
	g := column6(t)
	// Parallel to the column but outside it on y.
	if got := collectWalk(g, canopy.Point{X: -1, Y: 5, Z: 0.5}, 1, 0, 0, math.Inf(1)); len(got) != 0 {
		t.Fatalf("offset ray visited %d voxels, want 0", len(got))
	}
	// Pointing away from the lattice.
	if got := collectWalk(g, canopy.Point{X: -1, Y: 0.5, Z: 0.5}, -1, 0, 0, math.Inf(1)); len(got) != 0 {
		t.Fatalf("outbound ray visited %d voxels, want 0", len(got))
	}
}

func TestWalkVisitCanStopEarly(t *testing.T) {
	g := column6(t)
	n := 0
	g.Walk(canopy.Point{X: -1, Y: 0.5, Z: 0.5}, 1, 0, 0, math.Inf(1), func(ix, iy, iz int, tIn, tOut float64) bool {
		n++
		return false
	})
	if n != 1 {
		t.Fatalf("visit ran %d times after returning false, want 1", n)
	}
}

// clipToBounds is an independent slab intersection used as the oracle
// for path length totals.
func clipToBounds(o canopy.Point, dx, dy, dz float64, b Bounds) (float64, float64) {
	t0, t1 := 0.0, math.Inf(1)
	axis := func(oc, dc, lo, hi float64) {
		ta := (lo - oc) / dc
		tb := (hi - oc) / dc
		if ta > tb {
			ta, tb = tb, ta
		}
		t0 = math.Max(t0, ta)
		t1 = math.Min(t1, tb)
	}
	axis(o.X, dx, b.XMin, b.XMax)
	axis(o.Y, dy, b.YMin, b.YMax)
	axis(o.Z, dz, b.ZMin, b.ZMax)
	return t0, t1
}

func TestWalkDiagonalCoversEntrySegment(t *testing.T) {
	b := Bounds{XMin: 0, YMin: 0, ZMin: 0, XMax: 8, YMax: 8, ZMax: 8}
	g, err := NewGrid(b, 1)
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	o := canopy.Point{X: -0.7, Y: -0.3, Z: -0.9}
	norm := math.Sqrt(1 + 0.8*0.8 + 1.1*1.1)
	dx, dy, dz := 1/norm, 0.8/norm, 1.1/norm

	got := collectWalk(g, o, dx, dy, dz, math.Inf(1))
	if len(got) == 0 {
		t.Fatal("diagonal ray visited no voxels")
	}

	seen := make(map[[3]int]bool)
	total := 0.0
	prevOut := math.Inf(-1)
	for i, c := range got {
		if c.tOut < c.tIn {
			t.Fatalf("crossing %d runs backwards: %+v", i, c)
		}
		if i > 0 && math.Abs(c.tIn-prevOut) > 1e-9 {
			t.Fatalf("crossing %d starts at %v, previous ended at %v", i, c.tIn, prevOut)
		}
		key := [3]int{c.ix, c.iy, c.iz}
		if seen[key] {
			t.Fatalf("voxel %v visited twice", key)
		}
		seen[key] = true

		// The segment midpoint must lie inside the reported voxel.
		mid := c.tIn + (c.tOut-c.tIn)/2
		px := o.X + dx*mid
		py := o.Y + dy*mid
		pz := o.Z + dz*mid
		if int(math.Floor(px)) != c.ix || int(math.Floor(py)) != c.iy || int(math.Floor(pz)) != c.iz {
			t.Fatalf("crossing %d midpoint (%v, %v, %v) outside voxel (%d, %d, %d)",
				i, px, py, pz, c.ix, c.iy, c.iz)
		}

		total += c.tOut - c.tIn
		prevOut = c.tOut
	}

	entry, exit := clipToBounds(o, dx, dy, dz, b)
	if math.Abs(total-(exit-entry)) > 1e-9 {
		t.Fatalf("crossing lengths sum to %v, slab oracle gives %v", total, exit-entry)
	}
}

func TestAddPulseRegimes(t *testing.T) {
	g := column6(t)
	origin := canopy.Point{X: -1, Y: 0.5, Z: 0.5}
	// The nearest return terminates the beam; the farther one is ignored.
	g.AddPulse(origin, horizontalPulse(5.5, 3.4))

	wantMiss := []int64{1, 1, 0, 0, 0, 0}
	wantHit := []int64{0, 0, 1, 0, 0, 0}
	wantOcc := []int64{0, 0, 0, 1, 1, 1}
	for i := 0; i < 6; i++ {
		if g.Misses[i] != wantMiss[i] || g.Hits[i] != wantHit[i] || g.Occluded[i] != wantOcc[i] {
			t.Fatalf("voxel %d counts miss/hit/occ = %d/%d/%d, want %d/%d/%d",
				i, g.Misses[i], g.Hits[i], g.Occluded[i], wantMiss[i], wantHit[i], wantOcc[i])
		}
	}

	// Full crossings for the two misses, the partial distance to the
	// interception for the hit, nothing beyond it.
	if math.Abs(g.PathLength[0]-1) > 1e-12 || math.Abs(g.PathLength[1]-1) > 1e-12 {
		t.Fatalf("miss paths = %v, %v, want 1, 1", g.PathLength[0], g.PathLength[1])
	}
	if math.Abs(g.PathLength[2]-0.4) > 1e-12 {
		t.Fatalf("hit path = %v, want 0.4", g.PathLength[2])
	}
	for i := 3; i < 6; i++ {
		if g.PathLength[i] != 0 {
			t.Fatalf("occluded voxel %d accumulated path %v", i, g.PathLength[i])
		}
	}

	// Zenith accumulates on hits and misses only.
	for i := 0; i < 3; i++ {
		if math.Abs(g.ZenithSum[i]-math.Pi/2) > 1e-12 {
			t.Fatalf("zenith sum[%d] = %v, want pi/2", i, g.ZenithSum[i])
		}
	}
	for i := 3; i < 6; i++ {
		if g.ZenithSum[i] != 0 {
			t.Fatalf("occluded zenith sum[%d] = %v, want 0", i, g.ZenithSum[i])
		}
	}
	if g.Rays != 1 {
		t.Fatalf("rays = %d, want 1", g.Rays)
	}
}

func TestAddPulsePathTotalMatchesBeamTravel(t *testing.T) {
	// Total path over all voxels is the in-lattice beam travel:
	// min(interception, exit) minus entry.
	g := column6(t)
	origin := canopy.Point{X: -1, Y: 0.5, Z: 0.5}
	g.AddPulse(origin, horizontalPulse(3.4))

	total := 0.0
	for _, p := range g.PathLength {
		total += p
	}
	if math.Abs(total-2.4) > 1e-12 {
		t.Fatalf("total path = %v, want 2.4", total)
	}
}

func TestAddPulseNoReturnAllMiss(t *testing.T) {
	g := column6(t)
	g.AddPulse(canopy.Point{X: -1, Y: 0.5, Z: 0.5}, horizontalPulse())

	for i := 0; i < 6; i++ {
		if g.Misses[i] != 1 || g.Hits[i] != 0 || g.Occluded[i] != 0 {
			t.Fatalf("voxel %d counts = %d/%d/%d, want pure miss",
				i, g.Misses[i], g.Hits[i], g.Occluded[i])
		}
		if math.Abs(g.PathLength[i]-1) > 1e-12 {
			t.Fatalf("voxel %d path = %v, want 1", i, g.PathLength[i])
		}
	}
}

func TestAddPulseReturnBeyondLatticeAllMiss(t *testing.T) {
	g := column6(t)
	g.AddPulse(canopy.Point{X: -1, Y: 0.5, Z: 0.5}, horizontalPulse(20))

	for i := 0; i < 6; i++ {
		if g.Misses[i] != 1 || g.Hits[i] != 0 || g.Occluded[i] != 0 {
			t.Fatalf("voxel %d counts = %d/%d/%d, want pure miss",
				i, g.Misses[i], g.Hits[i], g.Occluded[i])
		}
	}
}

func TestAddPulseHitBeforeLattice(t *testing.T) {
	g := column6(t)
	g.AddPulse(canopy.Point{X: -1, Y: 0.5, Z: 0.5}, horizontalPulse(0.5))

	for i := 0; i < 6; i++ {
		if g.Occluded[i] != 1 || g.Hits[i] != 0 || g.Misses[i] != 0 {
			t.Fatalf("voxel %d counts = %d/%d/%d, want pure occluded",
				i, g.Misses[i], g.Hits[i], g.Occluded[i])
		}
		if g.PathLength[i] != 0 || g.ZenithSum[i] != 0 {
			t.Fatalf("voxel %d accumulated path %v zenith %v behind an interception",
				i, g.PathLength[i], g.ZenithSum[i])
		}
	}
	if g.Rays != 1 {
		t.Fatalf("rays = %d, want 1", g.Rays)
	}
}
