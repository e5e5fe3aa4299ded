package report

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/banshee-data/canopy.report/internal/canopy"
	"github.com/banshee-data/canopy.report/internal/canopy/voxel"
)

// testInversionResult builds a 2x2x2 lattice with two resolved voxels
// per layer and its cover accumulated downward by hand.
func testInversionResult() *voxel.InversionResult {
	res := &voxel.InversionResult{
		Bounds:    voxel.Bounds{XMin: 0, YMin: 0, ZMin: 0, XMax: 2, YMax: 2, ZMax: 2},
		VoxelSize: 1,
		NX:        2, NY: 2, NZ: 2,
		PAIv:   make([]float64, 8),
		PAIh:   make([]float64, 8),
		NScans: make([]int32, 8),
		Cover:  make([]float64, 8),
	}
	for i := range res.PAIv {
		res.PAIv[i] = canopy.Missing()
		res.PAIh[i] = canopy.Missing()
	}

	set := func(ix, iy, iz int, paiv, paih float64, n int32) {
		j := res.Idx(ix, iy, iz)
		res.PAIv[j] = paiv
		res.PAIh[j] = paih
		res.NScans[j] = n
	}
	set(0, 0, 0, 0.5, 0.05, 3)
	set(0, 0, 1, 0.3, 0.03, 3)
	set(0, 1, 1, 0.2, 0.02, 4)
	set(1, 1, 0, 0.1, 0.01, 3)

	for iy := 0; iy < 2; iy++ {
		for ix := 0; ix < 2; ix++ {
			sum := 0.0
			for iz := 1; iz >= 0; iz-- {
				j := res.Idx(ix, iy, iz)
				if v := res.PAIv[j]; !canopy.IsMissing(v) {
					sum += v
				}
				res.Cover[j] = 1 - math.Exp(-sum)
			}
		}
	}
	return res
}

func TestWriteCoverColumns(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCoverColumns(&buf, testInversionResult()); err != nil {
		t.Fatalf("WriteCoverColumns: %v", err)
	}

	records := readCSV(t, buf.String())
	if len(records) != 5 {
		t.Fatalf("got %d records, want header + 4 columns", len(records))
	}
	if records[0][2] != "paiv_total" {
		t.Errorf("header = %v", records[0])
	}

	// Rows run y-major: (0,0), (1,0), (0,1), (1,1).
	want := []struct {
		x, y  string
		total string
		cover string
	}{
		{"0.500000", "0.500000", "0.800000", fmt.Sprintf("%.6f", 1-math.Exp(-0.8))},
		{"1.500000", "0.500000", "", "0.000000"},
		{"0.500000", "1.500000", "0.200000", fmt.Sprintf("%.6f", 1-math.Exp(-0.2))},
		{"1.500000", "1.500000", "0.100000", fmt.Sprintf("%.6f", 1-math.Exp(-0.1))},
	}
	for i, w := range want {
		row := records[i+1]
		if row[0] != w.x || row[1] != w.y {
			t.Errorf("row %d center = (%s, %s), want (%s, %s)", i, row[0], row[1], w.x, w.y)
		}
		if row[2] != w.total {
			t.Errorf("row %d paiv_total = %q, want %q", i, row[2], w.total)
		}
		if row[3] != w.cover {
			t.Errorf("row %d cover = %q, want %q", i, row[3], w.cover)
		}
	}
}

func TestWriteLayerSummary(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteLayerSummary(&buf, testInversionResult()); err != nil {
		t.Fatalf("WriteLayerSummary: %v", err)
	}

	records := readCSV(t, buf.String())
	if len(records) != 3 {
		t.Fatalf("got %d records, want header + 2 layers", len(records))
	}

	// Layer 0: voxels (0,0) and (1,1) resolved, mean paiv (0.5+0.1)/2.
	layer0 := records[1]
	if layer0[0] != "0.500000" {
		t.Errorf("layer 0 z = %q", layer0[0])
	}
	if layer0[1] != "0.300000" {
		t.Errorf("layer 0 mean_paiv = %q, want 0.300000", layer0[1])
	}
	if layer0[4] != "2" {
		t.Errorf("layer 0 defined_voxels = %q, want 2", layer0[4])
	}

	// Layer 1: voxels (0,0) and (0,1), mean paiv (0.3+0.2)/2.
	layer1 := records[2]
	if layer1[0] != "1.500000" {
		t.Errorf("layer 1 z = %q", layer1[0])
	}
	if layer1[1] != "0.250000" {
		t.Errorf("layer 1 mean_paiv = %q, want 0.250000", layer1[1])
	}
}

func TestWriteLayerSummaryAllMissing(t *testing.T) {
	res := &voxel.InversionResult{
		Bounds:    voxel.Bounds{XMax: 1, YMax: 1, ZMax: 1},
		VoxelSize: 1,
		NX:        1, NY: 1, NZ: 1,
		PAIv:   []float64{canopy.Missing()},
		PAIh:   []float64{canopy.Missing()},
		NScans: []int32{1},
		Cover:  []float64{0},
	}
	var buf bytes.Buffer
	if err := WriteLayerSummary(&buf, res); err != nil {
		t.Fatalf("WriteLayerSummary: %v", err)
	}
	records := readCSV(t, buf.String())
	row := records[1]
	if row[1] != "" || row[2] != "" || row[3] != "" {
		t.Errorf("unresolved layer means = %v, want empty", row[1:4])
	}
	if row[4] != "0" {
		t.Errorf("defined_voxels = %q, want 0", row[4])
	}
}

func TestWriteInversionFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "model_output")
	paths, err := WriteInversionFiles(dir, testInversionResult())
	if err != nil {
		t.Fatalf("WriteInversionFiles: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("got %d paths, want 2", len(paths))
	}
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			t.Fatalf("stat %s: %v", p, err)
		}
		if info.Size() == 0 {
			t.Errorf("%s is empty", p)
		}
	}
}
