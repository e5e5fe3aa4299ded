// Command voxelize builds per-scan voxel grids of directional gap
// probability over a shared lattice covering every scan position in a
// RiSCAN-style project, persisting each grid as a snapshot in the
// results database and writing a run config JSON that references them.
// With -run-model it then solves the multi-scan linear model for PAI
// and cover and exports the model products as CSV.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/banshee-data/canopy.report/internal/canopy"
	"github.com/banshee-data/canopy.report/internal/canopy/ground"
	"github.com/banshee-data/canopy.report/internal/canopy/report"
	"github.com/banshee-data/canopy.report/internal/canopy/results"
	"github.com/banshee-data/canopy.report/internal/canopy/scanio"
	"github.com/banshee-data/canopy.report/internal/canopy/voxel"
	"github.com/banshee-data/canopy.report/internal/config"
)

var (
	projectDir = flag.String("project", "", "RiSCAN project directory to process (required)")
	outputDir  = flag.String("output", "voxel_output", "Directory for the run config and model exports")
	configFile = flag.String("config", "", "Tuning config JSON; built-in defaults apply when empty")
	dbFile     = flag.String("db", "canopy_results.db", "Results database path for grid snapshots")
	voxelSize  = flag.Float64("voxelsize", 0, "Voxel edge length in meters (0 = config value)")
	dtmFile    = flag.String("dtm", "", "ASCII grid DTM for ground classification (optional)")
	runModel   = flag.Bool("run-model", false, "Solve the multi-scan linear model after voxelization")
	minN       = flag.Int("min-n", 0, "Fewest scan observations per voxel for the model (0 = config value)")
	weighted   = flag.Bool("weighted", false, "Weight the model by per-scan observation counts")
	workers    = flag.Int("workers", 0, "Concurrent scan workers (0 = config value, then CPU count)")
)

// scanJob pairs a discovered scan position with its decoded pose.
type scanJob struct {
	pos  scanio.ScanPosition
	pose canopy.Pose
}

// dimsJSON describes a lattice for the dims column beside each stored
// blob, in the run config's shape.
func dimsJSON(b voxel.Bounds, size float64, nx, ny, nz int) string {
	return results.Dims{
		Bounds:     [6]float64{b.XMin, b.YMin, b.ZMin, b.XMax, b.YMax, b.ZMax},
		Resolution: size,
		NX:         nx, NY: ny, NZ: nz,
	}.JSON()
}

// voxelizeScan traces every pulse of one scan through a fresh grid on
// the shared lattice and finalizes gap fractions and classes.
func voxelizeScan(job scanJob, b voxel.Bounds, size float64, elev ground.ElevationSource) (*voxel.Grid, error) {
	g, err := voxel.NewGrid(b, size)
	if err != nil {
		return nil, err
	}
	origin := job.pose.Origin()

	f, err := scanio.Open(job.pos.PulseFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src := scanio.NewTransformed(f, job.pose)
	for {
		p, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("trace: %w", err)
		}
		g.AddPulse(origin, p)
	}
	g.Finalize(elev)
	return g, nil
}

func main() {
	flag.Parse()

	if *projectDir == "" {
		log.Fatal("A -project directory is required")
	}
	if *dbFile == "" {
		log.Fatal("A -db path is required: voxel snapshots live in the results database")
	}

	cfg := config.EmptyTuningConfig()
	if *configFile != "" {
		var err error
		cfg, err = config.LoadTuningConfig(*configFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	size := *voxelSize
	if size <= 0 {
		size = cfg.GetVoxelSize()
	}
	minObs := *minN
	if minObs <= 0 {
		minObs = cfg.GetMinVoxelObservations()
	}
	useWeights := cfg.GetWeightedModel()
	if *weighted {
		useWeights = true
	}

	var elev ground.ElevationSource
	if *dtmFile != "" {
		raster, err := ground.LoadRaster(*dtmFile)
		if err != nil {
			log.Fatalf("Failed to load DTM: %v", err)
		}
		elev = raster
	}

	positions, err := scanio.FindScanPositions(*projectDir)
	if err != nil {
		log.Fatalf("Failed to scan project: %v", err)
	}

	// Poses are needed up front: the lattice spans every scan origin.
	var jobs []scanJob
	var origins []canopy.Point
	for _, pos := range positions {
		pose, err := scanio.ReadTransformFile(pos.TransformFile)
		if err != nil {
			log.Printf("WARNING: skipping %s: %v", pos.Name, err)
			continue
		}
		jobs = append(jobs, scanJob{pos: pos, pose: pose})
		origins = append(origins, pose.Origin())
	}
	if len(jobs) == 0 {
		log.Fatalf("No usable scan positions under %s", *projectDir)
	}

	bounds := voxel.ComputeBounds(origins, cfg.GetBoundsBuffer(), cfg.GetMaxCanopyHeight())
	log.Printf("Lattice bounds: x [%.1f, %.1f], y [%.1f, %.1f], z [%.1f, %.1f] at %.2f m",
		bounds.XMin, bounds.XMax, bounds.YMin, bounds.YMax, bounds.ZMin, bounds.ZMax, size)

	store, err := results.Open(*dbFile)
	if err != nil {
		log.Fatalf("Failed to open results database: %v", err)
	}
	defer store.Close()

	runParams, err := json.Marshal(map[string]interface{}{
		"voxel_size":       size,
		"bounds_buffer":    cfg.GetBoundsBuffer(),
		"max_height":       cfg.GetMaxCanopyHeight(),
		"min_observations": minObs,
		"weighted":         useWeights,
		"dtm":              *dtmFile,
	})
	if err != nil {
		log.Fatalf("Failed to encode run params: %v", err)
	}
	run := &results.Run{Kind: results.RunKindVoxel, Project: *projectDir, Params: runParams}
	if err := store.InsertRun(run); err != nil {
		log.Fatalf("Failed to record run: %v", err)
	}
	log.Printf("Recording run %s in %s", run.RunID, *dbFile)

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}
	runCfg := config.NewRunConfig(bounds, size, *dtmFile)
	runCfg.RunID = run.RunID

	nWorkers := *workers
	if nWorkers <= 0 {
		nWorkers = cfg.GetWorkers()
	}
	log.Printf("Voxelizing %d scan positions with %d workers", len(jobs), nWorkers)

	var (
		wg     sync.WaitGroup
		sem    = make(chan struct{}, nWorkers)
		mu     sync.Mutex
		failed int
	)
	for _, job := range jobs {
		wg.Add(1)
		sem <- struct{}{}
		go func(job scanJob) {
			defer wg.Done()
			defer func() { <-sem }()

			g, err := voxelizeScan(job, bounds, size, elev)
			if err != nil {
				log.Printf("WARNING: %s failed: %v", job.pos.Name, err)
				mu.Lock()
				failed++
				mu.Unlock()
				return
			}

			blob, err := voxel.EncodeGrid(g)
			if err != nil {
				log.Printf("WARNING: %s: encode grid: %v", job.pos.Name, err)
				mu.Lock()
				failed++
				mu.Unlock()
				return
			}
			snap := &results.VoxelSnapshot{
				RunID:        run.RunID,
				ScanPosition: job.pos.Name,
				ScanName:     job.pos.ScanName,
				DimsJSON:     dimsJSON(g.Bounds, g.VoxelSize, g.NX, g.NY, g.NZ),
				GridBlob:     blob,
			}
			if err := store.InsertVoxelSnapshot(snap); err != nil {
				log.Printf("WARNING: %s: store snapshot: %v", job.pos.Name, err)
				mu.Lock()
				failed++
				mu.Unlock()
				return
			}

			mu.Lock()
			runCfg.Positions[job.pos.ScanName] = snap.SnapshotID
			mu.Unlock()
			log.Printf("%s: %d rays traced, snapshot %s (%d bytes)",
				job.pos.Name, g.Rays, snap.SnapshotID, len(blob))
		}(job)
	}
	wg.Wait()

	successful := len(runCfg.Positions)
	log.Printf("Voxelization complete: %d successful, %d failed", successful, failed)
	if successful == 0 {
		log.Fatal("No scans voxelized successfully")
	}

	stem := strings.TrimSuffix(filepath.Base(*projectDir), filepath.Ext(*projectDir))
	cfgPath := filepath.Join(*outputDir, stem+"_config.json")
	if err := runCfg.WriteFile(cfgPath); err != nil {
		log.Fatalf("Failed to write run config: %v", err)
	}
	log.Printf("Saved run config to %s", cfgPath)

	if !*runModel {
		return
	}

	// Barrier: the model needs every stored grid on the shared lattice.
	log.Printf("Running linear model for PAI and cover profiles...")
	snaps, err := store.VoxelSnapshotsForRun(run.RunID)
	if err != nil {
		log.Fatalf("Failed to load snapshots: %v", err)
	}
	grids := make([]*voxel.Grid, 0, len(snaps))
	for _, snap := range snaps {
		g, err := voxel.DecodeGrid(snap.GridBlob)
		if err != nil {
			log.Fatalf("Failed to decode snapshot %s: %v", snap.SnapshotID, err)
		}
		grids = append(grids, g)
	}

	res, err := voxel.Invert(grids, voxel.InversionParams{
		MinObservations: minObs,
		Weighted:        useWeights,
	})
	if err != nil {
		log.Fatalf("Model solve failed: %v", err)
	}

	paiv, err := voxel.EncodeFloats(res.PAIv)
	if err != nil {
		log.Fatalf("Failed to encode model output: %v", err)
	}
	paih, err := voxel.EncodeFloats(res.PAIh)
	if err != nil {
		log.Fatalf("Failed to encode model output: %v", err)
	}
	nscans, err := voxel.EncodeCounts(res.NScans)
	if err != nil {
		log.Fatalf("Failed to encode model output: %v", err)
	}
	cover, err := voxel.EncodeFloats(res.Cover)
	if err != nil {
		log.Fatalf("Failed to encode model output: %v", err)
	}
	out := &results.InversionOutput{
		RunID:      run.RunID,
		DimsJSON:   dimsJSON(res.Bounds, res.VoxelSize, res.NX, res.NY, res.NZ),
		PAIvBlob:   paiv,
		PAIhBlob:   paih,
		NScansBlob: nscans,
		CoverBlob:  cover,
	}
	if err := store.InsertInversionOutput(out); err != nil {
		log.Fatalf("Failed to store model output: %v", err)
	}

	modelDir := filepath.Join(*outputDir, "model_output")
	files, err := report.WriteInversionFiles(modelDir, res)
	if err != nil {
		log.Fatalf("Failed to export model output: %v", err)
	}
	log.Printf("Saved model outputs: %s (%d scans over %dx%dx%d voxels)",
		strings.Join(files, ", "), len(grids), res.NX, res.NY, res.NZ)
}
