// Package config loads the batch tuning file shared by the profile and
// voxel drivers and reads and writes the run configuration JSON that
// ties a voxel run's outputs together.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/banshee-data/canopy.report/internal/canopy/profile"
)

// DefaultConfigPath is the path to the canonical batch defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/batch.defaults.json"

// TuningConfig represents the root configuration for batch tuning
// parameters. All fields are pointers so a partial JSON file overrides
// only what it names; the Get* methods supply defaults for the rest.
type TuningConfig struct {
	// Profile binning params
	HeightRes     *float64 `json:"height_res,omitempty"`      // meters
	MinHeight     *float64 `json:"min_height,omitempty"`      // meters above ground
	MaxHeight     *float64 `json:"max_height,omitempty"`      // meters above ground
	ZenithResDeg  *float64 `json:"zenith_res_deg,omitempty"`  // degrees
	MinZenithDeg  *float64 `json:"min_zenith_deg,omitempty"`  // degrees
	MaxZenithDeg  *float64 `json:"max_zenith_deg,omitempty"`  // degrees
	AzimuthResDeg *float64 `json:"azimuth_res_deg,omitempty"` // degrees
	Weighting     *string  `json:"weighting,omitempty"`       // WEIGHTED, ALL, FIRST or FIRSTLAST

	// Pulse filtering params
	MinReflectanceDB *float64 `json:"min_reflectance_db,omitempty"`

	// PAVD params
	PAVDDerivative *string `json:"pavd_derivative,omitempty"` // central or forward

	// Ground fit params
	GroundExtent   *float64 `json:"ground_extent,omitempty"`    // footprint side, meters
	GroundCellSize *float64 `json:"ground_cell_size,omitempty"` // cell width, meters

	// Voxel params
	VoxelSize            *float64 `json:"voxel_size,omitempty"`             // meters
	BoundsBuffer         *float64 `json:"bounds_buffer,omitempty"`          // meters
	MaxCanopyHeight      *float64 `json:"max_canopy_height,omitempty"`      // meters
	MinVoxelObservations *int     `json:"min_voxel_observations,omitempty"` // scans per voxel
	WeightedModel        *bool    `json:"weighted_model,omitempty"`

	// Batch params
	Workers *int `json:"workers,omitempty"` // 0 means one per CPU
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Refuse configs over 1MB.
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical batch defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from internal/canopy/*
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.HeightRes != nil && *c.HeightRes <= 0 {
		return fmt.Errorf("height_res must be positive, got %f", *c.HeightRes)
	}
	if c.ZenithResDeg != nil && *c.ZenithResDeg <= 0 {
		return fmt.Errorf("zenith_res_deg must be positive, got %f", *c.ZenithResDeg)
	}
	if c.AzimuthResDeg != nil && (*c.AzimuthResDeg <= 0 || *c.AzimuthResDeg > 360) {
		return fmt.Errorf("azimuth_res_deg must be in (0, 360], got %f", *c.AzimuthResDeg)
	}
	if c.MinZenithDeg != nil && c.MaxZenithDeg != nil && *c.MaxZenithDeg <= *c.MinZenithDeg {
		return fmt.Errorf("max_zenith_deg %f must exceed min_zenith_deg %f", *c.MaxZenithDeg, *c.MinZenithDeg)
	}
	if c.MinHeight != nil && c.MaxHeight != nil && *c.MaxHeight <= *c.MinHeight {
		return fmt.Errorf("max_height %f must exceed min_height %f", *c.MaxHeight, *c.MinHeight)
	}

	// Validate Weighting parses if set
	if c.Weighting != nil && *c.Weighting != "" {
		if _, err := profile.ParseWeighting(*c.Weighting); err != nil {
			return fmt.Errorf("invalid weighting '%s': %w", *c.Weighting, err)
		}
	}

	// Validate PAVDDerivative if set
	if c.PAVDDerivative != nil && *c.PAVDDerivative != "" {
		switch *c.PAVDDerivative {
		case "central", "forward":
		default:
			return fmt.Errorf("pavd_derivative must be central or forward, got %q", *c.PAVDDerivative)
		}
	}

	if c.GroundExtent != nil && *c.GroundExtent <= 0 {
		return fmt.Errorf("ground_extent must be positive, got %f", *c.GroundExtent)
	}
	if c.GroundCellSize != nil && *c.GroundCellSize <= 0 {
		return fmt.Errorf("ground_cell_size must be positive, got %f", *c.GroundCellSize)
	}
	if c.VoxelSize != nil && *c.VoxelSize <= 0 {
		return fmt.Errorf("voxel_size must be positive, got %f", *c.VoxelSize)
	}
	if c.MinVoxelObservations != nil && *c.MinVoxelObservations < 1 {
		return fmt.Errorf("min_voxel_observations must be at least 1, got %d", *c.MinVoxelObservations)
	}
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}

	return nil
}

// GetHeightRes returns the height_res value or the default.
func (c *TuningConfig) GetHeightRes() float64 {
	if c.HeightRes == nil {
		return 0.5 // default
	}
	return *c.HeightRes
}

// GetMinHeight returns the min_height value or the default.
func (c *TuningConfig) GetMinHeight() float64 {
	if c.MinHeight == nil {
		return 0
	}
	return *c.MinHeight
}

// GetMaxHeight returns the max_height value or the default.
func (c *TuningConfig) GetMaxHeight() float64 {
	if c.MaxHeight == nil {
		return 50
	}
	return *c.MaxHeight
}

// GetZenithResDeg returns the zenith_res_deg value or the default.
func (c *TuningConfig) GetZenithResDeg() float64 {
	if c.ZenithResDeg == nil {
		return 5
	}
	return *c.ZenithResDeg
}

// GetMinZenithDeg returns the min_zenith_deg value or the default.
func (c *TuningConfig) GetMinZenithDeg() float64 {
	if c.MinZenithDeg == nil {
		return 35
	}
	return *c.MinZenithDeg
}

// GetMaxZenithDeg returns the max_zenith_deg value or the default.
func (c *TuningConfig) GetMaxZenithDeg() float64 {
	if c.MaxZenithDeg == nil {
		return 70
	}
	return *c.MaxZenithDeg
}

// GetAzimuthResDeg returns the azimuth_res_deg value or the default.
func (c *TuningConfig) GetAzimuthResDeg() float64 {
	if c.AzimuthResDeg == nil {
		return 90
	}
	return *c.AzimuthResDeg
}

// GetWeighting parses and returns the return weighting scheme,
// defaulting to WEIGHTED.
func (c *TuningConfig) GetWeighting() profile.Weighting {
	if c.Weighting == nil || *c.Weighting == "" {
		return profile.WeightingWeighted // default
	}
	w, err := profile.ParseWeighting(*c.Weighting)
	if err != nil {
		return profile.WeightingWeighted // default on parse error
	}
	return w
}

// GetPAVDDerivative returns the finite-difference policy for PAVD,
// defaulting to central differences.
func (c *TuningConfig) GetPAVDDerivative() profile.Derivative {
	if c.PAVDDerivative != nil && *c.PAVDDerivative == "forward" {
		return profile.DerivativeForward
	}
	return profile.DerivativeCentral
}

// GetMinReflectanceDB returns the min_reflectance_db value or the default.
func (c *TuningConfig) GetMinReflectanceDB() float64 {
	if c.MinReflectanceDB == nil {
		return -20
	}
	return *c.MinReflectanceDB
}

// GetGroundExtent returns the ground_extent value or the default.
func (c *TuningConfig) GetGroundExtent() float64 {
	if c.GroundExtent == nil {
		return 60
	}
	return *c.GroundExtent
}

// GetGroundCellSize returns the ground_cell_size value or the default.
func (c *TuningConfig) GetGroundCellSize() float64 {
	if c.GroundCellSize == nil {
		return 10
	}
	return *c.GroundCellSize
}

// GetVoxelSize returns the voxel_size value or the default.
func (c *TuningConfig) GetVoxelSize() float64 {
	if c.VoxelSize == nil {
		return 1.0
	}
	return *c.VoxelSize
}

// GetBoundsBuffer returns the bounds_buffer value or the default.
func (c *TuningConfig) GetBoundsBuffer() float64 {
	if c.BoundsBuffer == nil {
		return 5
	}
	return *c.BoundsBuffer
}

// GetMaxCanopyHeight returns the max_canopy_height value or the default.
func (c *TuningConfig) GetMaxCanopyHeight() float64 {
	if c.MaxCanopyHeight == nil {
		return 50
	}
	return *c.MaxCanopyHeight
}

// GetMinVoxelObservations returns the min_voxel_observations value or the default.
func (c *TuningConfig) GetMinVoxelObservations() int {
	if c.MinVoxelObservations == nil {
		return 3
	}
	return *c.MinVoxelObservations
}

// GetWeightedModel returns the weighted_model value or the default.
func (c *TuningConfig) GetWeightedModel() bool {
	if c.WeightedModel == nil {
		return false // default: unweighted solve
	}
	return *c.WeightedModel
}

// GetWorkers returns the workers value, one per CPU when unset or zero.
func (c *TuningConfig) GetWorkers() int {
	if c.Workers == nil || *c.Workers <= 0 {
		return runtime.NumCPU()
	}
	return *c.Workers
}

// ProfileParams assembles the profile binning configuration.
func (c *TuningConfig) ProfileParams() profile.Params {
	return profile.Params{
		MinZenithDeg:  c.GetMinZenithDeg(),
		MaxZenithDeg:  c.GetMaxZenithDeg(),
		ZenithResDeg:  c.GetZenithResDeg(),
		AzimuthResDeg: c.GetAzimuthResDeg(),
		MinHeight:     c.GetMinHeight(),
		MaxHeight:     c.GetMaxHeight(),
		HeightRes:     c.GetHeightRes(),
		Weighting:     c.GetWeighting(),
	}
}
