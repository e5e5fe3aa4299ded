package report

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/canopy.report/internal/canopy"
	"github.com/banshee-data/canopy.report/internal/canopy/results"
)

func readCSV(t *testing.T, data string) [][]string {
	t.Helper()
	records, err := csv.NewReader(strings.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	return records
}

func TestProfileWriterRows(t *testing.T) {
	var buf bytes.Buffer
	pw := NewProfileWriter(&buf)
	pw.WriteHeader()
	pw.WriteRow(results.ProfileRow{
		Height:   0.25,
		HingePAI: 1.5, LinearPAI: 1.4, WeightedPAI: 1.45,
		HingePAVD: 0.3, LinearPAVD: 0.28, WeightedPAVD: 0.29,
		LinearMLA: 42.5,
	})
	pw.WriteRow(results.ProfileRow{
		Height:   0.75,
		HingePAI: 1.2, LinearPAI: canopy.Missing(), WeightedPAI: 1.15,
		HingePAVD: 0.6, LinearPAVD: canopy.Missing(), WeightedPAVD: 0.58,
		LinearMLA: canopy.Missing(),
	})
	if err := pw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	records := readCSV(t, buf.String())
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	if records[0][0] != "height" || records[0][7] != "linear_mla" {
		t.Errorf("unexpected header %v", records[0])
	}
	if records[1][1] != "1.500000" {
		t.Errorf("hinge_pai = %q, want 1.500000", records[1][1])
	}
	// Undefined estimates must come out empty, not zero.
	if records[2][2] != "" {
		t.Errorf("missing linear_pai = %q, want empty", records[2][2])
	}
	if records[2][7] != "" {
		t.Errorf("missing linear_mla = %q, want empty", records[2][7])
	}
	if records[2][3] != "1.150000" {
		t.Errorf("weighted_pai = %q, want 1.150000", records[2][3])
	}
}

func TestSummaryWriterRows(t *testing.T) {
	var buf bytes.Buffer
	sw := NewSummaryWriter(&buf)
	sw.WriteHeader()
	sw.WriteRow(&results.ScanSummary{
		ScanPosition: "ScanPos001",
		ScanName:     "plot-west",
		SensorX:      1.25, SensorY: -2.5, SensorZ: 1.6,
		GroundIntercept: 0.8, GroundSlopeX: 0.01, GroundSlopeY: -0.02,
		PulsesSeen: 1000, PulsesBinned: 900,
		TotalPAIHinge: 3.1, TotalPAILinear: canopy.Missing(), TotalPAIWeighted: 3.0,
	})
	if err := sw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	records := readCSV(t, buf.String())
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0][0] != "scan_pos" {
		t.Errorf("header starts with %q, want scan_pos", records[0][0])
	}
	row := records[1]
	if row[0] != "ScanPos001" || row[1] != "plot-west" {
		t.Errorf("identity columns = %v", row[:2])
	}
	if row[8] != "3.100000" {
		t.Errorf("total_pai_hinge = %q", row[8])
	}
	if row[9] != "" {
		t.Errorf("missing total_pai_linear = %q, want empty", row[9])
	}
	if row[11] != "1000" || row[12] != "900" {
		t.Errorf("pulse counts = %v", row[11:])
	}
}

func TestWriteScanProfileFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	rows := []results.ProfileRow{
		{Height: 0.25, HingePAI: 0.1, LinearPAI: 0.1, WeightedPAI: 0.1,
			HingePAVD: 0.2, LinearPAVD: 0.2, WeightedPAVD: 0.2, LinearMLA: 40},
		{Height: 0.75, HingePAI: 0.2, LinearPAI: 0.2, WeightedPAI: 0.2,
			HingePAVD: 0.2, LinearPAVD: 0.2, WeightedPAVD: 0.2, LinearMLA: 41},
	}
	path, err := WriteScanProfileFile(dir, "ScanPos002", "plot-east", rows)
	if err != nil {
		t.Fatalf("WriteScanProfileFile: %v", err)
	}
	if filepath.Base(path) != "ScanPos002_plot-east_profiles.csv" {
		t.Errorf("file name = %s", filepath.Base(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	records := readCSV(t, string(data))
	if len(records) != 3 {
		t.Errorf("got %d records, want header + 2 rows", len(records))
	}
}

func TestWriteSummaryFile(t *testing.T) {
	dir := t.TempDir()
	sums := []*results.ScanSummary{
		{ScanPosition: "ScanPos001", ScanName: "a", SensorZ: 1.5},
		{ScanPosition: "ScanPos002", ScanName: "b", SensorZ: 1.5},
	}
	path, err := WriteSummaryFile(dir, sums)
	if err != nil {
		t.Fatalf("WriteSummaryFile: %v", err)
	}
	if filepath.Base(path) != SummaryFileName {
		t.Errorf("file name = %s, want %s", filepath.Base(path), SummaryFileName)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if got := len(readCSV(t, string(data))); got != 3 {
		t.Errorf("got %d records, want header + 2 rows", got)
	}
}
