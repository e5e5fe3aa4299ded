package ground

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/banshee-data/canopy.report/internal/canopy"
)

// ElevationSource yields ground elevation at a horizontal position, or a
// missing value where the source has no data. Plane, Raster and
// FlatElevation implement it.
type ElevationSource interface {
	Elevation(x, y float64) float64
}

// FlatElevation is a constant ground elevation. It covers the case where
// the scanner height above ground is known and no surface is fitted: the
// ground sits at scanner z minus that height everywhere.
type FlatElevation float64

// Elevation returns the constant.
func (f FlatElevation) Elevation(x, y float64) float64 { return float64(f) }

// CorrectHeights sets Height on each return of p from the elevation
// under its world position. Returns over nodata ground get a missing
// height, which the binner then discards.
func CorrectHeights(p *canopy.Pulse, src ElevationSource) {
	for i := range p.Returns {
		r := &p.Returns[i]
		r.Height = r.Point.Z - src.Elevation(r.Point.X, r.Point.Y)
	}
}

// Raster is a single-band north-up elevation grid, as loaded from an
// ESRI ASCII grid DTM export. Values run row-major from the north row
// down, matching the file layout.
type Raster struct {
	NCols, NRows int
	XLL, YLL     float64 // world position of the lower-left cell corner
	CellSize     float64
	NoData       float64
	Values       []float64 // len = NCols*NRows
}

// Idx flattens (col, rowFromTop) into Values.
func (r *Raster) Idx(col, row int) int { return row*r.NCols + col }

// Elevation returns the value of the cell containing (x, y). Positions
// outside the raster or over nodata cells are missing.
func (r *Raster) Elevation(x, y float64) float64 {
	col := int((x - r.XLL) / r.CellSize)
	rowUp := int((y - r.YLL) / r.CellSize)
	if x < r.XLL || y < r.YLL || col >= r.NCols || rowUp >= r.NRows {
		return canopy.Missing()
	}
	v := r.Values[r.Idx(col, r.NRows-1-rowUp)]
	if v == r.NoData {
		return canopy.Missing()
	}
	return v
}

// LoadRaster reads an ESRI ASCII grid file.
func LoadRaster(path string) (*Raster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load raster: %w", err)
	}
	defer f.Close()
	r, err := ParseASCIIGrid(f)
	if err != nil {
		return nil, fmt.Errorf("load raster %s: %w", path, err)
	}
	return r, nil
}

// ParseASCIIGrid parses the ESRI ASCII grid format: a header of
// "key value" lines (ncols, nrows, xllcorner, yllcorner, cellsize and
// optionally nodata_value) followed by whitespace-separated cell values,
// north row first.
func ParseASCIIGrid(rd io.Reader) (*Raster, error) {
	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 1024*1024), 1024*1024)

	r := &Raster{NoData: -9999}
	seen := map[string]bool{}
	var values []float64

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)

		if len(values) == 0 && len(fields) == 2 {
			key := strings.ToLower(fields[0])
			switch key {
			case "ncols", "nrows":
				n, err := strconv.Atoi(fields[1])
				if err != nil || n <= 0 {
					return nil, fmt.Errorf("bad %s %q", key, fields[1])
				}
				if key == "ncols" {
					r.NCols = n
				} else {
					r.NRows = n
				}
				seen[key] = true
				continue
			case "xllcorner", "yllcorner", "cellsize", "nodata_value":
				v, err := strconv.ParseFloat(fields[1], 64)
				if err != nil {
					return nil, fmt.Errorf("bad %s %q", key, fields[1])
				}
				switch key {
				case "xllcorner":
					r.XLL = v
				case "yllcorner":
					r.YLL = v
				case "cellsize":
					r.CellSize = v
				case "nodata_value":
					r.NoData = v
				}
				seen[key] = true
				continue
			}
		}

		for _, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("bad cell value %q", f)
			}
			values = append(values, v)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	for _, key := range []string{"ncols", "nrows", "xllcorner", "yllcorner", "cellsize"} {
		if !seen[key] {
			return nil, fmt.Errorf("missing header %s", key)
		}
	}
	if r.CellSize <= 0 {
		return nil, fmt.Errorf("non-positive cellsize %g", r.CellSize)
	}
	if len(values) != r.NCols*r.NRows {
		return nil, fmt.Errorf("have %d cell values, want %d", len(values), r.NCols*r.NRows)
	}
	r.Values = values
	return r, nil
}
