package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/banshee-data/canopy.report/internal/canopy/voxel"
)

// DefaultNoData is the sentinel written into rasterized exports for
// voxels the model never resolved.
const DefaultNoData = -9999.0

// RunConfig is the JSON document written next to a voxel run's outputs.
// It records the shared lattice and maps each scan name to the database
// snapshot holding its grid, so the multi-scan model can be re-run
// later from the document alone.
type RunConfig struct {
	Bounds     [6]float64        `json:"bounds"` // xmin, ymin, zmin, xmax, ymax, zmax
	Resolution float64           `json:"resolution"`
	NX         int               `json:"nx"`
	NY         int               `json:"ny"`
	NZ         int               `json:"nz"`
	NoData     float64           `json:"nodata"`
	DTM        string            `json:"dtm,omitempty"`
	RunID      string            `json:"run_id,omitempty"`
	Positions  map[string]string `json:"positions"` // scan name -> snapshot id
}

// NewRunConfig derives the run document for a lattice. Dimension counts
// floor the extent the same way voxel.NewGrid does, so the document and
// the stored grids agree.
func NewRunConfig(b voxel.Bounds, resolution float64, dtm string) *RunConfig {
	return &RunConfig{
		Bounds:     [6]float64{b.XMin, b.YMin, b.ZMin, b.XMax, b.YMax, b.ZMax},
		Resolution: resolution,
		NX:         int((b.XMax - b.XMin) / resolution),
		NY:         int((b.YMax - b.YMin) / resolution),
		NZ:         int((b.ZMax - b.ZMin) / resolution),
		NoData:     DefaultNoData,
		DTM:        dtm,
		Positions:  make(map[string]string),
	}
}

// VoxelBounds returns the lattice extent as voxel bounds.
func (c *RunConfig) VoxelBounds() voxel.Bounds {
	return voxel.Bounds{
		XMin: c.Bounds[0], YMin: c.Bounds[1], ZMin: c.Bounds[2],
		XMax: c.Bounds[3], YMax: c.Bounds[4], ZMax: c.Bounds[5],
	}
}

// WriteFile writes the document as indented JSON.
func (c *RunConfig) WriteFile(path string) error {
	data, err := json.MarshalIndent(c, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal run config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write run config: %w", err)
	}
	return nil
}

// LoadRunConfig reads and validates a run document.
func LoadRunConfig(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read run config: %w", err)
	}
	var c RunConfig
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse run config: %w", err)
	}
	if c.Resolution <= 0 {
		return nil, fmt.Errorf("run config %s: resolution must be positive, got %f", path, c.Resolution)
	}
	if c.NX < 1 || c.NY < 1 || c.NZ < 1 {
		return nil, fmt.Errorf("run config %s: empty lattice %dx%dx%d", path, c.NX, c.NY, c.NZ)
	}
	if c.Positions == nil {
		c.Positions = make(map[string]string)
	}
	return &c, nil
}
