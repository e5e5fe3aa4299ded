// Command profiles computes vertical plant profiles for every scan
// position in a RiSCAN-style project directory: gap probability by
// zenith ring, PAI by the hinge, linear and solid-angle estimators,
// mean leaf angle, and PAVD. Each scan gets a profile CSV and optional
// PNG plots; the batch gets a summary CSV and, when a database path is
// set, a recorded run with all rows queryable afterwards.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"

	"github.com/banshee-data/canopy.report/internal/canopy"
	"github.com/banshee-data/canopy.report/internal/canopy/ground"
	"github.com/banshee-data/canopy.report/internal/canopy/profile"
	"github.com/banshee-data/canopy.report/internal/canopy/report"
	"github.com/banshee-data/canopy.report/internal/canopy/results"
	"github.com/banshee-data/canopy.report/internal/canopy/scanio"
	"github.com/banshee-data/canopy.report/internal/config"
)

var (
	projectDir = flag.String("project", "", "RiSCAN project directory to process (required)")
	outputDir  = flag.String("output", "pavd_output", "Directory for CSV and plot outputs")
	configFile = flag.String("config", "", "Tuning config JSON; built-in defaults apply when empty")
	dbFile     = flag.String("db", "canopy_results.db", "Results database path (empty string disables persistence)")
	method     = flag.String("method", "", "Pgap weighting override: WEIGHTED, FIRST or ALL")
	workers    = flag.Int("workers", 0, "Concurrent scan workers (0 = config value, then CPU count)")
	plots      = flag.Bool("plots", true, "Write PNG profile plots per scan")
)

// scanOutput is everything one scan position contributes to the batch.
type scanOutput struct {
	rows    []results.ProfileRow
	summary *results.ScanSummary
}

// eachPulse streams a pulse file through the pose transform and hands
// every pulse to fn.
func eachPulse(path string, pose canopy.Pose, fn func(canopy.Pulse)) error {
	f, err := scanio.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	src := scanio.NewTransformed(f, pose)
	for {
		p, err := src.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		fn(p)
	}
}

// profileTotal integrates a cumulative PAI profile the way the summary
// reports it: sum of the bins times the bin width. Any missing bin makes
// the total missing.
func profileTotal(pai []float64, hres float64) float64 {
	var sum float64
	for _, v := range pai {
		if canopy.IsMissing(v) {
			return canopy.Missing()
		}
		sum += v
	}
	return sum * hres
}

// processScan runs the full single-scan pipeline: fit a ground plane
// from the lowest returns around the sensor, bin the height-corrected
// pulses, and derive the PAI, MLA and PAVD profiles.
func processScan(pos scanio.ScanPosition, params profile.Params, cfg *config.TuningConfig) (*scanOutput, error) {
	pose, err := scanio.ReadTransformFile(pos.TransformFile)
	if err != nil {
		return nil, fmt.Errorf("transform: %w", err)
	}
	sensor := pose.Origin()

	// First pass: lowest return per cell around the sensor, then the
	// Huber plane fit. Reflectance filtering stays off here so weak
	// ground returns still anchor the fit.
	minz := ground.NewMinZGrid(cfg.GetGroundExtent(), cfg.GetGroundCellSize(), sensor.X, sensor.Y)
	err = eachPulse(pos.PulseFile, pose, func(p canopy.Pulse) {
		for _, r := range p.Returns {
			minz.Add(r.Point, r.Range)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("ground sampling: %w", err)
	}
	plane, err := ground.FitPlane(minz.Samples(), ground.DefaultFitParams())
	if err != nil {
		return nil, fmt.Errorf("ground fit: %w", err)
	}

	// Second pass: height-correct against the plane and accumulate the
	// zenith/azimuth/height grid, dropping low-reflectance returns.
	grid, err := profile.NewGrid(params)
	if err != nil {
		return nil, err
	}
	f, err := scanio.Open(pos.PulseFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	src := scanio.NewReflectanceFilter(scanio.NewTransformed(f, pose), cfg.GetMinReflectanceDB())
	for {
		p, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("pulse binning: %w", err)
		}
		ground.CorrectHeights(&p, plane)
		grid.AddPulse(p)
	}

	pg := grid.Pgap(0, 360)
	hinge := profile.HingeProfile(pg)
	weighted := profile.SolidAngleProfile(pg, canopy.Missing())
	linear, mla := profile.LinearProfile(pg, true)

	hres := params.HeightRes
	deriv := cfg.GetPAVDDerivative()
	hingePAVD := profile.PAVD(hinge, hres, deriv)
	linearPAVD := profile.PAVD(linear, hres, deriv)
	weightedPAVD := profile.PAVD(weighted, hres, deriv)

	rows := make([]results.ProfileRow, len(pg.Heights))
	for i, h := range pg.Heights {
		rows[i] = results.ProfileRow{
			Height:       h,
			HingePAI:     hinge[i],
			LinearPAI:    linear[i],
			WeightedPAI:  weighted[i],
			HingePAVD:    hingePAVD[i],
			LinearPAVD:   linearPAVD[i],
			WeightedPAVD: weightedPAVD[i],
			LinearMLA:    mla[i],
		}
	}

	return &scanOutput{
		rows: rows,
		summary: &results.ScanSummary{
			ScanPosition:     pos.Name,
			ScanName:         pos.ScanName,
			SensorX:          sensor.X,
			SensorY:          sensor.Y,
			SensorZ:          sensor.Z,
			GroundIntercept:  plane.Intercept,
			GroundSlopeX:     plane.SlopeX,
			GroundSlopeY:     plane.SlopeY,
			PulsesSeen:       grid.PulsesSeen,
			PulsesBinned:     grid.PulsesBinned,
			TotalPAIHinge:    profileTotal(hinge, hres),
			TotalPAILinear:   profileTotal(linear, hres),
			TotalPAIWeighted: profileTotal(weighted, hres),
		},
	}, nil
}

func main() {
	flag.Parse()

	if *projectDir == "" {
		log.Fatal("A -project directory is required")
	}

	cfg := config.EmptyTuningConfig()
	if *configFile != "" {
		var err error
		cfg, err = config.LoadTuningConfig(*configFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	params := cfg.ProfileParams()
	if *method != "" {
		w, err := profile.ParseWeighting(*method)
		if err != nil {
			log.Fatalf("Invalid -method: %v", err)
		}
		params.Weighting = w
	}

	positions, err := scanio.FindScanPositions(*projectDir)
	if err != nil {
		log.Fatalf("Failed to scan project: %v", err)
	}
	if len(positions) == 0 {
		log.Fatalf("No usable scan positions under %s", *projectDir)
	}

	nWorkers := *workers
	if nWorkers <= 0 {
		nWorkers = cfg.GetWorkers()
	}
	log.Printf("Processing %d scan positions with %d workers (weighting %s)",
		len(positions), nWorkers, params.Weighting)

	var store *results.Store
	var runID string
	if *dbFile != "" {
		store, err = results.Open(*dbFile)
		if err != nil {
			log.Fatalf("Failed to open results database: %v", err)
		}
		defer store.Close()

		runParams, err := json.Marshal(map[string]interface{}{
			"profile":            params,
			"weighting":          params.Weighting.String(),
			"min_reflectance_db": cfg.GetMinReflectanceDB(),
			"pavd_derivative":    cfg.GetPAVDDerivative().String(),
			"ground_extent":      cfg.GetGroundExtent(),
			"ground_cell_size":   cfg.GetGroundCellSize(),
		})
		if err != nil {
			log.Fatalf("Failed to encode run params: %v", err)
		}
		run := &results.Run{Kind: results.RunKindProfile, Project: *projectDir, Params: runParams}
		if err := store.InsertRun(run); err != nil {
			log.Fatalf("Failed to record run: %v", err)
		}
		runID = run.RunID
		log.Printf("Recording run %s in %s", runID, *dbFile)
	}

	var (
		wg        sync.WaitGroup
		sem       = make(chan struct{}, nWorkers)
		mu        sync.Mutex
		summaries []*results.ScanSummary
		failed    int
	)
	for _, pos := range positions {
		wg.Add(1)
		sem <- struct{}{}
		go func(pos scanio.ScanPosition) {
			defer wg.Done()
			defer func() { <-sem }()

			out, err := processScan(pos, params, cfg)
			if err != nil {
				log.Printf("WARNING: %s failed: %v", pos.Name, err)
				mu.Lock()
				failed++
				mu.Unlock()
				return
			}

			if _, err := report.WriteScanProfileFile(*outputDir, pos.Name, pos.ScanName, out.rows); err != nil {
				log.Printf("WARNING: %s: profile CSV: %v", pos.Name, err)
			}
			if *plots {
				if _, err := report.PlotScanProfiles(*outputDir, pos.Name, pos.ScanName, out.rows); err != nil {
					log.Printf("WARNING: %s: plots: %v", pos.Name, err)
				}
			}
			if store != nil {
				if err := store.InsertScanProfile(runID, pos.Name, pos.ScanName, out.rows); err != nil {
					log.Printf("WARNING: %s: store profile: %v", pos.Name, err)
				}
				if err := store.InsertScanSummary(runID, out.summary); err != nil {
					log.Printf("WARNING: %s: store summary: %v", pos.Name, err)
				}
			}

			mu.Lock()
			summaries = append(summaries, out.summary)
			mu.Unlock()
			log.Printf("%s: %d of %d pulses binned, total PAI (hinge) %.2f",
				pos.Name, out.summary.PulsesBinned, out.summary.PulsesSeen, out.summary.TotalPAIHinge)
		}(pos)
	}
	wg.Wait()

	log.Printf("Processing complete: %d successful, %d failed", len(summaries), failed)
	if len(summaries) == 0 {
		log.Fatal("No scans processed successfully")
	}

	// Workers finish in arbitrary order; the summary reads in scan order.
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].ScanPosition < summaries[j].ScanPosition
	})
	path, err := report.WriteSummaryFile(*outputDir, summaries)
	if err != nil {
		log.Fatalf("Failed to write summary: %v", err)
	}
	log.Printf("Summary: %s", path)
}
