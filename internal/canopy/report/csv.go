package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/banshee-data/canopy.report/internal/canopy/results"
)

// profileHeader is the per-scan profile CSV column order.
var profileHeader = []string{
	"height",
	"hinge_pai", "linear_pai", "weighted_pai",
	"hinge_pavd", "linear_pavd", "weighted_pavd",
	"linear_mla",
}

// summaryHeader is the batch summary CSV column order.
var summaryHeader = []string{
	"scan_pos", "scan_name",
	"sensor_x", "sensor_y", "sensor_z",
	"ground_intercept", "ground_slope_x", "ground_slope_y",
	"total_pai_hinge", "total_pai_linear", "total_pai_weighted",
	"pulses_seen", "pulses_binned",
}

// ProfileWriter writes one scan's height-binned products as CSV.
type ProfileWriter struct {
	w *csv.Writer
}

// NewProfileWriter creates a ProfileWriter emitting to w.
func NewProfileWriter(w io.Writer) *ProfileWriter {
	return &ProfileWriter{w: csv.NewWriter(w)}
}

// WriteHeader writes the column header row.
func (pw *ProfileWriter) WriteHeader() {
	pw.w.Write(profileHeader)
}

// WriteRow writes one height bin.
func (pw *ProfileWriter) WriteRow(r results.ProfileRow) {
	pw.w.Write([]string{
		fmtFloat(r.Height),
		fmtFloat(r.HingePAI), fmtFloat(r.LinearPAI), fmtFloat(r.WeightedPAI),
		fmtFloat(r.HingePAVD), fmtFloat(r.LinearPAVD), fmtFloat(r.WeightedPAVD),
		fmtFloat(r.LinearMLA),
	})
}

// Flush flushes buffered rows and reports any write error.
func (pw *ProfileWriter) Flush() error {
	pw.w.Flush()
	return pw.w.Error()
}

// SummaryWriter writes the batch summary CSV, one row per scan.
type SummaryWriter struct {
	w *csv.Writer
}

// NewSummaryWriter creates a SummaryWriter emitting to w.
func NewSummaryWriter(w io.Writer) *SummaryWriter {
	return &SummaryWriter{w: csv.NewWriter(w)}
}

// WriteHeader writes the column header row.
func (sw *SummaryWriter) WriteHeader() {
	sw.w.Write(summaryHeader)
}

// WriteRow writes one scan's summary.
func (sw *SummaryWriter) WriteRow(s *results.ScanSummary) {
	sw.w.Write([]string{
		s.ScanPosition, s.ScanName,
		fmtFloat(s.SensorX), fmtFloat(s.SensorY), fmtFloat(s.SensorZ),
		fmtFloat(s.GroundIntercept), fmtFloat(s.GroundSlopeX), fmtFloat(s.GroundSlopeY),
		fmtFloat(s.TotalPAIHinge), fmtFloat(s.TotalPAILinear), fmtFloat(s.TotalPAIWeighted),
		fmtInt(s.PulsesSeen), fmtInt(s.PulsesBinned),
	})
}

// Flush flushes buffered rows and reports any write error.
func (sw *SummaryWriter) Flush() error {
	sw.w.Flush()
	return sw.w.Error()
}

// ProfileFileName is the per-scan profile CSV naming convention.
func ProfileFileName(scanPos, scanName string) string {
	return fmt.Sprintf("%s_%s_profiles.csv", scanPos, scanName)
}

// SummaryFileName is the batch summary CSV name.
const SummaryFileName = "pavd_summary.csv"

// WriteScanProfileFile writes one scan's profile rows under dir,
// creating it when absent, and returns the file path.
func WriteScanProfileFile(dir, scanPos, scanName string, rows []results.ProfileRow) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}
	path := filepath.Join(dir, ProfileFileName(scanPos, scanName))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create profile csv: %w", err)
	}
	defer f.Close()

	pw := NewProfileWriter(f)
	pw.WriteHeader()
	for _, r := range rows {
		pw.WriteRow(r)
	}
	if err := pw.Flush(); err != nil {
		return "", fmt.Errorf("write profile csv: %w", err)
	}
	return path, nil
}

// WriteSummaryFile writes the batch summary for all scans under dir,
// creating it when absent, and returns the file path.
func WriteSummaryFile(dir string, sums []*results.ScanSummary) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}
	path := filepath.Join(dir, SummaryFileName)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create summary csv: %w", err)
	}
	defer f.Close()

	sw := NewSummaryWriter(f)
	sw.WriteHeader()
	for _, s := range sums {
		sw.WriteRow(s)
	}
	if err := sw.Flush(); err != nil {
		return "", fmt.Errorf("write summary csv: %w", err)
	}
	return path, nil
}
