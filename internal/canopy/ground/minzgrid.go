package ground

import "github.com/banshee-data/canopy.report/internal/canopy"

// minZPoint is the lowest return seen so far in one cell.
type minZPoint struct {
	x, y, z float64
	rng     float64 // scanner range, kept for inverse-range weighting
}

// MinZGrid keeps the lowest return per horizontal cell in a square
// footprint centered on the scan position. The survivors are the ground
// candidates fed to FitPlane: taking the per-cell minimum spreads the
// candidates across the footprint and strips out canopy returns, while
// the robust fit absorbs the occasional stray low point.
type MinZGrid struct {
	originX, originY float64 // footprint center, usually the scanner
	cell             float64 // cell width, meters
	half             float64 // half the footprint extent
	n                int     // cells per side

	points []minZPoint
	filled []bool
}

// NewMinZGrid allocates a grid spanning extent meters on each side,
// centered at (originX, originY), with square cells of the given width.
// The standard profile runs use a 60 m extent with 10 m cells.
func NewMinZGrid(extent, cellWidth, originX, originY float64) *MinZGrid {
	n := binCountSide(extent, cellWidth)
	return &MinZGrid{
		originX: originX,
		originY: originY,
		cell:    cellWidth,
		half:    extent / 2,
		n:       n,
		points:  make([]minZPoint, n*n),
		filled:  make([]bool, n*n),
	}
}

func binCountSide(extent, cell float64) int {
	n := int(extent/cell + 1e-9)
	if n < 1 {
		n = 1
	}
	return n
}

// Idx flattens cell coordinates.
func (g *MinZGrid) Idx(ix, iy int) int { return iy*g.n + ix }

// N returns the cells per side.
func (g *MinZGrid) N() int { return g.n }

// Add offers a world-frame return with its scanner range. It survives
// only if it is the lowest point seen in its cell; points outside the
// footprint are ignored.
func (g *MinZGrid) Add(p canopy.Point, rng float64) {
	fx := (p.X - (g.originX - g.half)) / g.cell
	fy := (p.Y - (g.originY - g.half)) / g.cell
	if fx < 0 || fy < 0 {
		return
	}
	ix, iy := int(fx), int(fy)
	if ix >= g.n || iy >= g.n {
		return
	}

	i := g.Idx(ix, iy)
	if g.filled[i] && g.points[i].z <= p.Z {
		return
	}
	g.points[i] = minZPoint{x: p.X, y: p.Y, z: p.Z, rng: rng}
	g.filled[i] = true
}

// FilledCells returns how many cells hold a candidate.
func (g *MinZGrid) FilledCells() int {
	c := 0
	for _, f := range g.filled {
		if f {
			c++
		}
	}
	return c
}

// Samples returns one inverse-range weighted fit sample per filled cell.
func (g *MinZGrid) Samples() []Sample {
	out := make([]Sample, 0, g.FilledCells())
	for i, f := range g.filled {
		if !f {
			continue
		}
		p := g.points[i]
		w := 1.0
		if p.rng > 0 {
			w = 1 / p.rng
		}
		out = append(out, Sample{X: p.x, Y: p.y, Z: p.z, Weight: w})
	}
	return out
}
