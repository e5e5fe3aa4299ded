package scanio

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/banshee-data/canopy.report/internal/monitoring"
)

// ScanPosition is one scan's file set inside a project directory.
type ScanPosition struct {
	Name          string // scan position directory name, e.g. ScanPos001
	ScanName      string // pulse file stem, labels per-scan outputs
	PulseFile     string
	TransformFile string
}

// FindScanPositions discovers scans in a RiSCAN-style project layout:
//
//	<project>/SCANS/ScanPos*/SINGLESCANS/<scan>.csv
//
// with the pose matrix at <project>/DAT/<pos>.DAT or
// <project>/SCANS/matrix/<pos>.DAT. When a position has several pulse
// exports the newest wins. Positions missing either file are skipped
// with a warning so one bad position cannot abort a batch; a project
// without a SCANS directory is an error.
func FindScanPositions(projectDir string) ([]ScanPosition, error) {
	scansDir := filepath.Join(projectDir, "SCANS")
	entries, err := os.ReadDir(scansDir)
	if err != nil {
		return nil, fmt.Errorf("scan positions: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), "ScanPos") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var out []ScanPosition
	for _, name := range names {
		pulse, scanName := newestPulseFile(filepath.Join(scansDir, name, "SINGLESCANS"))
		if pulse == "" {
			monitoring.Warnf("skipping %s: no pulse csv under SINGLESCANS", name)
			continue
		}
		transform := findTransformFile(projectDir, name)
		if transform == "" {
			monitoring.Warnf("skipping %s: no transform matrix found", name)
			continue
		}
		out = append(out, ScanPosition{
			Name:          name,
			ScanName:      scanName,
			PulseFile:     pulse,
			TransformFile: transform,
		})
	}
	return out, nil
}

// newestPulseFile returns the most recently modified .csv under dir and
// its stem, or empty strings when there is none.
func newestPulseFile(dir string) (path, stem string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", ""
	}
	var newest time.Time
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if path == "" || info.ModTime().After(newest) {
			newest = info.ModTime()
			path = filepath.Join(dir, e.Name())
			stem = strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		}
	}
	return path, stem
}

// findTransformFile probes the known matrix locations for a position.
func findTransformFile(projectDir, posName string) string {
	candidates := []string{
		filepath.Join(projectDir, "DAT", posName+".DAT"),
		filepath.Join(projectDir, "SCANS", "matrix", posName+".DAT"),
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c
		}
	}
	return ""
}
