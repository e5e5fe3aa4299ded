package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/banshee-data/canopy.report/internal/canopy"
	"github.com/banshee-data/canopy.report/internal/canopy/voxel"
)

// Voxel model export file names.
const (
	CoverColumnsFileName = "cover_columns.csv"
	LayerSummaryFileName = "layer_summary.csv"
)

// CoverColumn is one lattice column of the voxel model: its horizontal
// center, the summed vertical PAI over the column's defined voxels and
// the projective cover at ground level.
type CoverColumn struct {
	X, Y      float64
	PAIvTotal float64 // missing when the model never resolved the column
	Cover     float64
}

// CoverColumns flattens the model products to one entry per column, in
// row-major order over (y, x).
func CoverColumns(res *voxel.InversionResult) []CoverColumn {
	out := make([]CoverColumn, 0, res.NX*res.NY)
	for iy := 0; iy < res.NY; iy++ {
		for ix := 0; ix < res.NX; ix++ {
			x := res.Bounds.XMin + (float64(ix)+0.5)*res.VoxelSize
			y := res.Bounds.YMin + (float64(iy)+0.5)*res.VoxelSize

			total := canopy.Missing()
			for iz := 0; iz < res.NZ; iz++ {
				v := res.PAIv[res.Idx(ix, iy, iz)]
				if canopy.IsMissing(v) {
					continue
				}
				if canopy.IsMissing(total) {
					total = 0
				}
				total += v
			}
			// Cover accumulates downward, so the bottom layer holds
			// the whole column's cover.
			out = append(out, CoverColumn{
				X: x, Y: y,
				PAIvTotal: total,
				Cover:     res.Cover[res.Idx(ix, iy, 0)],
			})
		}
	}
	return out
}

// WriteCoverColumns writes one CSV row per lattice column. Columns the
// model never resolved get an empty paiv_total.
func WriteCoverColumns(w io.Writer, res *voxel.InversionResult) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{"x", "y", "paiv_total", "cover"})
	for _, c := range CoverColumns(res) {
		cw.Write([]string{
			fmtFloat(c.X), fmtFloat(c.Y), fmtFloat(c.PAIvTotal), fmtFloat(c.Cover),
		})
	}
	cw.Flush()
	return cw.Error()
}

// LayerStat summarizes one vertical layer of the voxel model. The means
// run over the layer's defined voxels and come back missing when none
// resolved; MeanNScans runs over every voxel in the layer.
type LayerStat struct {
	Z          float64 // layer center elevation
	MeanPAIv   float64
	MeanPAIh   float64
	MeanCover  float64
	Defined    int
	MeanNScans float64
}

// LayerStats summarizes the model products layer by layer, bottom up.
func LayerStats(res *voxel.InversionResult) []LayerStat {
	out := make([]LayerStat, 0, res.NZ)
	nLayer := res.NX * res.NY
	for iz := 0; iz < res.NZ; iz++ {
		var sumV, sumH, sumC float64
		var defined int
		var scans int64
		for iy := 0; iy < res.NY; iy++ {
			for ix := 0; ix < res.NX; ix++ {
				j := res.Idx(ix, iy, iz)
				scans += int64(res.NScans[j])
				v := res.PAIv[j]
				if canopy.IsMissing(v) {
					continue
				}
				defined++
				sumV += v
				sumH += res.PAIh[j]
				sumC += res.Cover[j]
			}
		}

		st := LayerStat{
			Z:          res.Bounds.ZMin + (float64(iz)+0.5)*res.VoxelSize,
			MeanPAIv:   canopy.Missing(),
			MeanPAIh:   canopy.Missing(),
			MeanCover:  canopy.Missing(),
			Defined:    defined,
			MeanNScans: float64(scans) / float64(nLayer),
		}
		if defined > 0 {
			st.MeanPAIv = sumV / float64(defined)
			st.MeanPAIh = sumH / float64(defined)
			st.MeanCover = sumC / float64(defined)
		}
		out = append(out, st)
	}
	return out
}

// WriteLayerSummary writes one CSV row per vertical layer. Layers with
// no resolved voxel get empty means.
func WriteLayerSummary(w io.Writer, res *voxel.InversionResult) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{"z", "mean_paiv", "mean_paih", "mean_cover", "defined_voxels", "mean_nscans"})
	for _, st := range LayerStats(res) {
		cw.Write([]string{
			fmtFloat(st.Z),
			fmtFloat(st.MeanPAIv), fmtFloat(st.MeanPAIh), fmtFloat(st.MeanCover),
			fmtInt(int64(st.Defined)),
			fmtFloat(st.MeanNScans),
		})
	}
	cw.Flush()
	return cw.Error()
}

// WriteInversionFiles writes both voxel model exports under dir,
// creating it when absent, and returns the paths written.
func WriteInversionFiles(dir string, res *voxel.InversionResult) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	var paths []string
	for _, out := range []struct {
		name  string
		write func(io.Writer, *voxel.InversionResult) error
	}{
		{CoverColumnsFileName, WriteCoverColumns},
		{LayerSummaryFileName, WriteLayerSummary},
	} {
		path := filepath.Join(dir, out.name)
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", out.name, err)
		}
		if err := out.write(f, res); err != nil {
			f.Close()
			return nil, fmt.Errorf("write %s: %w", out.name, err)
		}
		if err := f.Close(); err != nil {
			return nil, fmt.Errorf("close %s: %w", out.name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
