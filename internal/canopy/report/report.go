// Package report writes the human-facing products of a batch run:
// per-scan profile CSVs, the batch summary CSV, PNG profile plots and
// the voxel model exports. Undefined values come out as empty CSV
// fields so downstream tooling reads them as missing rather than zero.
package report

import (
	"fmt"

	"github.com/banshee-data/canopy.report/internal/canopy"
)

// fmtFloat renders v for CSV output, empty when missing.
func fmtFloat(v float64) string {
	if canopy.IsMissing(v) {
		return ""
	}
	return fmt.Sprintf("%.6f", v)
}

func fmtInt(v int64) string {
	return fmt.Sprintf("%d", v)
}
