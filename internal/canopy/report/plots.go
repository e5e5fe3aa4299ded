package report

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/canopy.report/internal/canopy"
	"github.com/banshee-data/canopy.report/internal/canopy/results"
)

// profileSeries is one method's curve on a profile plot.
type profileSeries struct {
	label  string
	values func(results.ProfileRow) float64
}

var paiSeries = []profileSeries{
	{"hinge", func(r results.ProfileRow) float64 { return r.HingePAI }},
	{"linear", func(r results.ProfileRow) float64 { return r.LinearPAI }},
	{"weighted", func(r results.ProfileRow) float64 { return r.WeightedPAI }},
}

var pavdSeries = []profileSeries{
	{"hinge", func(r results.ProfileRow) float64 { return r.HingePAVD }},
	{"linear", func(r results.ProfileRow) float64 { return r.LinearPAVD }},
	{"weighted", func(r results.ProfileRow) float64 { return r.WeightedPAVD }},
}

// PlotScanProfiles renders a scan's cumulative PAI and PAVD curves as
// PNG files under outputDir, one line per estimator with height on the
// vertical axis. Bins with undefined values are skipped rather than
// drawn at zero. Returns the paths written.
func PlotScanProfiles(outputDir, scanPos, scanName string, rows []results.ProfileRow) ([]string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	paiFile := filepath.Join(outputDir, fmt.Sprintf("%s_%s_pai.png", scanPos, scanName))
	if err := plotProfile(paiFile,
		fmt.Sprintf("%s - Cumulative PAI", scanPos),
		"PAI (m²/m²)", rows, paiSeries); err != nil {
		return nil, fmt.Errorf("save pai plot: %w", err)
	}

	pavdFile := filepath.Join(outputDir, fmt.Sprintf("%s_%s_pavd.png", scanPos, scanName))
	if err := plotProfile(pavdFile,
		fmt.Sprintf("%s - PAVD", scanPos),
		"PAVD (m²/m³)", rows, pavdSeries); err != nil {
		return nil, fmt.Errorf("save pavd plot: %w", err)
	}

	return []string{paiFile, pavdFile}, nil
}

func plotProfile(file, title, xLabel string, rows []results.ProfileRow, series []profileSeries) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = "Height (m)"

	colors := generateColors(len(series))
	for i, s := range series {
		pts := make(plotter.XYs, 0, len(rows))
		for _, r := range rows {
			v := s.values(r)
			if canopy.IsMissing(v) {
				continue
			}
			pts = append(pts, plotter.XY{X: v, Y: r.Height})
		}
		if len(pts) == 0 {
			continue
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = colors[i]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(s.label, line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	return p.Save(6*vg.Inch, 8*vg.Inch, file)
}

// generateColors creates a palette of distinct colors for profile lines
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}

	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64

	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}

	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	if t < 1.0/6.0 {
		return p + (q-p)*6*t
	}
	if t < 1.0/2.0 {
		return q
	}
	if t < 2.0/3.0 {
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
