// Command canopy-server is a read-only browse surface over a results
// database: run listings, chart pages for stored profiles and voxel
// model products, CSV downloads, and the debug surface with a live SQL
// console and database backup. It ingests nothing; the batch commands
// write the database it serves.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"html"
	"log"
	"net/http"
	"net/url"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/canopy.report/internal/canopy"
	"github.com/banshee-data/canopy.report/internal/canopy/report"
	"github.com/banshee-data/canopy.report/internal/canopy/results"
	"github.com/banshee-data/canopy.report/internal/canopy/voxel"
	"github.com/banshee-data/canopy.report/internal/httputil"
	"github.com/banshee-data/canopy.report/internal/version"
)

var (
	listen = flag.String("listen", ":8080", "HTTP listen address")
	dbFile = flag.String("db", "canopy_results.db", "Results database path")
)

// Chart pages pull the ECharts runtime from the public asset bundle so
// the server ships no static files.
const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// viridisColors drives the visual map on spatial charts.
var viridisColors = []string{
	"#440154", "#482777", "#3e4989", "#31688e", "#26828e",
	"#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725",
}

type server struct {
	store *results.Store
}

func (s *server) routes(mux *http.ServeMux) {
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/run", s.handleRun)
	mux.HandleFunc("/chart/profiles", s.handleProfilesChart)
	mux.HandleFunc("/chart/cover", s.handleCoverChart)
	mux.HandleFunc("/chart/layers", s.handleLayersChart)
	mux.HandleFunc("/api/runs", s.handleAPIRuns)
	mux.HandleFunc("/csv/profiles", s.handleCSVProfiles)
	mux.HandleFunc("/csv/summary", s.handleCSVSummary)
	mux.HandleFunc("/health", s.handleHealth)
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "service": "canopy-results", "version": "%s", "timestamp": "%s"}`,
		version.Version, time.Now().UTC().Format(time.RFC3339))
}

func (s *server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	runs, err := s.store.ListRuns("", 50)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list runs: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>Canopy Results</title></head>
<body>
	<h1>Canopy Results</h1>
	<p>Database: %s</p>
`, html.EscapeString(s.store.Path()))

	if len(runs) == 0 {
		fmt.Fprint(w, "\t<p>No runs recorded yet.</p>\n")
	} else {
		fmt.Fprint(w, "\t<table border=\"1\" cellpadding=\"4\">\n")
		fmt.Fprint(w, "\t<tr><th>Run</th><th>Kind</th><th>Project</th><th>Created</th></tr>\n")
		for _, run := range runs {
			created := time.Unix(0, run.CreatedAt).UTC().Format(time.RFC3339)
			fmt.Fprintf(w, "\t<tr><td><a href=\"/run?id=%s\">%s</a></td><td>%s</td><td>%s</td><td>%s</td></tr>\n",
				url.QueryEscape(run.RunID), html.EscapeString(run.RunID),
				html.EscapeString(run.Kind), html.EscapeString(run.Project), created)
		}
		fmt.Fprint(w, "\t</table>\n")
	}

	fmt.Fprint(w, `	<ul>
		<li><a href="/api/runs">Runs as JSON</a></li>
		<li><a href="/health">Health check</a></li>
		<li><a href="/debug/">Debug (SQL console, backup)</a></li>
	</ul>
</body>
</html>`)
}

func (s *server) handleRun(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("id")
	if runID == "" {
		httputil.BadRequest(w, "missing id parameter")
		return
	}
	run, err := s.store.GetRun(runID)
	if err != nil {
		httputil.NotFound(w, fmt.Sprintf("run: %v", err))
		return
	}

	qID := url.QueryEscape(run.RunID)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>Run %s</title></head>
<body>
	<h1>Run %s</h1>
	<p>Kind: %s<br>Project: %s<br>Created: %s</p>
	<pre>%s</pre>
`, html.EscapeString(run.RunID), html.EscapeString(run.RunID),
		html.EscapeString(run.Kind), html.EscapeString(run.Project),
		time.Unix(0, run.CreatedAt).UTC().Format(time.RFC3339),
		html.EscapeString(string(run.Params)))

	switch run.Kind {
	case results.RunKindProfile:
		scans, err := s.store.ProfileScans(run.RunID)
		if err != nil {
			log.Printf("WARNING: profile scans for %s: %v", run.RunID, err)
		}
		fmt.Fprint(w, "\t<h2>Scan positions</h2>\n\t<ul>\n")
		for _, scan := range scans {
			qScan := url.QueryEscape(scan)
			fmt.Fprintf(w, "\t\t<li>%s: <a href=\"/chart/profiles?run=%s&scan=%s\">charts</a> | <a href=\"/csv/profiles?run=%s&scan=%s\">CSV</a></li>\n",
				html.EscapeString(scan), qID, qScan, qID, qScan)
		}
		fmt.Fprintf(w, "\t</ul>\n\t<p><a href=\"/csv/summary?run=%s\">Batch summary CSV</a></p>\n", qID)

	case results.RunKindVoxel:
		snaps, err := s.store.VoxelSnapshotsForRun(run.RunID)
		if err != nil {
			log.Printf("WARNING: snapshots for %s: %v", run.RunID, err)
		}
		fmt.Fprint(w, "\t<h2>Voxel snapshots</h2>\n\t<ul>\n")
		for _, snap := range snaps {
			fmt.Fprintf(w, "\t\t<li>%s (%s): %d byte grid, dims %s</li>\n",
				html.EscapeString(snap.ScanPosition), html.EscapeString(snap.ScanName),
				len(snap.GridBlob), html.EscapeString(snap.DimsJSON))
		}
		fmt.Fprintf(w, "\t</ul>\n\t<p><a href=\"/chart/cover?run=%s\">Cover map</a> | <a href=\"/chart/layers?run=%s\">Layer profile</a></p>\n", qID, qID)
	}

	fmt.Fprint(w, "\t<p><a href=\"/\">Back to runs</a></p>\n</body>\n</html>")
}

// lineData converts one profile column to chart points, leaving gaps
// where the value is undefined.
func lineData(rows []results.ProfileRow, value func(results.ProfileRow) float64) []opts.LineData {
	out := make([]opts.LineData, len(rows))
	for i, row := range rows {
		v := value(row)
		if canopy.IsMissing(v) {
			out[i] = opts.LineData{Value: nil}
			continue
		}
		out[i] = opts.LineData{Value: v}
	}
	return out
}

func (s *server) handleProfilesChart(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("run")
	scanPos := r.URL.Query().Get("scan")
	if runID == "" || scanPos == "" {
		httputil.BadRequest(w, "run and scan parameters are required")
		return
	}
	rows, err := s.store.ScanProfile(runID, scanPos)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load profile: %v", err))
		return
	}
	if len(rows) == 0 {
		httputil.NotFound(w, "no profile rows for scan")
		return
	}

	heights := make([]string, len(rows))
	for i, row := range rows {
		heights[i] = strconv.FormatFloat(row.Height, 'f', -1, 64)
	}

	pai := charts.NewLine()
	pai.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Canopy Profiles", Theme: "dark", Width: "1200px", Height: "500px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Cumulative PAI", Subtitle: fmt.Sprintf("run=%s scan=%s", runID, scanPos)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Height (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "PAI (m²/m²)", NameLocation: "middle", NameGap: 30}),
	)
	pai.SetXAxis(heights).
		AddSeries("hinge", lineData(rows, func(r results.ProfileRow) float64 { return r.HingePAI })).
		AddSeries("linear", lineData(rows, func(r results.ProfileRow) float64 { return r.LinearPAI })).
		AddSeries("weighted", lineData(rows, func(r results.ProfileRow) float64 { return r.WeightedPAI }))

	pavd := charts.NewLine()
	pavd.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "1200px", Height: "500px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "PAVD", Subtitle: fmt.Sprintf("run=%s scan=%s", runID, scanPos)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Height (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "PAVD (m²/m³)", NameLocation: "middle", NameGap: 30}),
	)
	pavd.SetXAxis(heights).
		AddSeries("hinge", lineData(rows, func(r results.ProfileRow) float64 { return r.HingePAVD })).
		AddSeries("linear", lineData(rows, func(r results.ProfileRow) float64 { return r.LinearPAVD })).
		AddSeries("weighted", lineData(rows, func(r results.ProfileRow) float64 { return r.WeightedPAVD }))

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(pai, pavd)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// loadInversion rebuilds the model products for a run from the stored
// blobs and dims document.
func (s *server) loadInversion(runID string) (*voxel.InversionResult, error) {
	out, err := s.store.InversionOutput(runID)
	if err != nil {
		return nil, err
	}
	d, err := results.ParseDims(out.DimsJSON)
	if err != nil {
		return nil, err
	}
	paiv, err := voxel.DecodeFloats(out.PAIvBlob)
	if err != nil {
		return nil, fmt.Errorf("paiv: %w", err)
	}
	paih, err := voxel.DecodeFloats(out.PAIhBlob)
	if err != nil {
		return nil, fmt.Errorf("paih: %w", err)
	}
	nscans, err := voxel.DecodeCounts(out.NScansBlob)
	if err != nil {
		return nil, fmt.Errorf("nscans: %w", err)
	}
	cover, err := voxel.DecodeFloats(out.CoverBlob)
	if err != nil {
		return nil, fmt.Errorf("cover: %w", err)
	}
	return &voxel.InversionResult{
		Bounds: voxel.Bounds{
			XMin: d.Bounds[0], YMin: d.Bounds[1], ZMin: d.Bounds[2],
			XMax: d.Bounds[3], YMax: d.Bounds[4], ZMax: d.Bounds[5],
		},
		VoxelSize: d.Resolution,
		NX:        d.NX, NY: d.NY, NZ: d.NZ,
		PAIv: paiv, PAIh: paih, NScans: nscans, Cover: cover,
	}, nil
}

func (s *server) handleCoverChart(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("run")
	if runID == "" {
		httputil.BadRequest(w, "missing run parameter")
		return
	}
	res, err := s.loadInversion(runID)
	if err != nil {
		httputil.NotFound(w, fmt.Sprintf("model output: %v", err))
		return
	}

	cols := report.CoverColumns(res)
	pts := make([]opts.ScatterData, 0, len(cols))
	maxCover := 0.0
	for _, c := range cols {
		if canopy.IsMissing(c.Cover) {
			continue
		}
		if c.Cover > maxCover {
			maxCover = c.Cover
		}
		pts = append(pts, opts.ScatterData{Value: []interface{}{c.X, c.Y, c.Cover}})
	}
	if maxCover == 0 {
		maxCover = 1.0
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Canopy Cover", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Column Cover", Subtitle: fmt.Sprintf("run=%s columns=%d", runID, len(pts))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: res.Bounds.XMin, Max: res.Bounds.XMax, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: res.Bounds.YMin, Max: res.Bounds.YMax, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxCover),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridisColors},
		}),
	)
	scatter.AddSeries("cover", pts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render cover chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *server) handleLayersChart(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("run")
	if runID == "" {
		httputil.BadRequest(w, "missing run parameter")
		return
	}
	res, err := s.loadInversion(runID)
	if err != nil {
		httputil.NotFound(w, fmt.Sprintf("model output: %v", err))
		return
	}

	stats := report.LayerStats(res)
	zs := make([]string, len(stats))
	paiv := make([]opts.LineData, len(stats))
	paih := make([]opts.LineData, len(stats))
	cover := make([]opts.LineData, len(stats))
	for i, st := range stats {
		zs[i] = strconv.FormatFloat(st.Z, 'f', -1, 64)
		paiv[i] = opts.LineData{Value: nil}
		paih[i] = opts.LineData{Value: nil}
		cover[i] = opts.LineData{Value: nil}
		if !canopy.IsMissing(st.MeanPAIv) {
			paiv[i] = opts.LineData{Value: st.MeanPAIv}
			paih[i] = opts.LineData{Value: st.MeanPAIh}
			cover[i] = opts.LineData{Value: st.MeanCover}
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Canopy Layers", Theme: "dark", Width: "1200px", Height: "600px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Voxel Layer Means", Subtitle: fmt.Sprintf("run=%s layers=%d", runID, len(stats))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Elevation (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Layer mean", NameLocation: "middle", NameGap: 30}),
	)
	line.SetXAxis(zs).
		AddSeries("mean_paiv", paiv).
		AddSeries("mean_paih", paih).
		AddSeries("mean_cover", cover)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render layers chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *server) handleAPIRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	kind := r.URL.Query().Get("kind")
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 1000 {
			limit = parsed
		}
	}
	runs, err := s.store.ListRuns(kind, limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list runs: %v", err))
		return
	}
	httputil.WriteJSONOK(w, runs)
}

func (s *server) handleCSVProfiles(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("run")
	scanPos := r.URL.Query().Get("scan")
	if runID == "" || scanPos == "" {
		httputil.BadRequest(w, "run and scan parameters are required")
		return
	}
	rows, err := s.store.ScanProfile(runID, scanPos)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load profile: %v", err))
		return
	}
	if len(rows) == 0 {
		httputil.NotFound(w, "no profile rows for scan")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", scanPos+"_profiles.csv"))
	pw := report.NewProfileWriter(w)
	pw.WriteHeader()
	for _, row := range rows {
		pw.WriteRow(row)
	}
	if err := pw.Flush(); err != nil {
		log.Printf("WARNING: profile csv for %s/%s: %v", runID, scanPos, err)
	}
}

func (s *server) handleCSVSummary(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("run")
	if runID == "" {
		httputil.BadRequest(w, "missing run parameter")
		return
	}
	sums, err := s.store.ScanSummaries(runID)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load summaries: %v", err))
		return
	}
	if len(sums) == 0 {
		httputil.NotFound(w, "no summaries for run")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.SummaryFileName))
	sw := report.NewSummaryWriter(w)
	sw.WriteHeader()
	for _, sum := range sums {
		sw.WriteRow(sum)
	}
	if err := sw.Flush(); err != nil {
		log.Printf("WARNING: summary csv for %s: %v", runID, err)
	}
}

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("HTTP listen address is required")
	}

	store, err := results.Open(*dbFile)
	if err != nil {
		log.Fatalf("Failed to open results database: %v", err)
	}
	defer store.Close()

	srv := &server{store: store}
	mux := http.NewServeMux()
	srv.routes(mux)
	store.AttachAdminRoutes(mux)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpServer := &http.Server{
		Addr:    *listen,
		Handler: mux,
	}

	go func() {
		log.Printf("canopy-server %s serving results from %s on %s", version.String(), *dbFile, *listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := httpServer.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	log.Printf("Graceful shutdown complete")
}
