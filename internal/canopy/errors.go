package canopy

import "fmt"

// InsufficientDataError reports that an operation had too few samples to
// produce a result, e.g. a plane fit with fewer than three points.
// Callers in batch pipelines treat it as a per-scan failure: log, skip
// the scan, continue with the rest.
type InsufficientDataError struct {
	Op   string // operation that failed
	Got  int    // samples available
	Want int    // minimum required
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: insufficient data: got %d samples, need at least %d", e.Op, e.Got, e.Want)
}

// DegeneratePlaneError reports rank-deficient input to a plane fit, for
// example colinear or coincident sample points.
type DegeneratePlaneError struct {
	Op     string
	Detail string
}

func (e *DegeneratePlaneError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: degenerate plane geometry", e.Op)
	}
	return fmt.Sprintf("%s: degenerate plane geometry: %s", e.Op, e.Detail)
}

// InvalidBinRangeError reports a bin axis configured with min >= max or a
// non-positive resolution. These are structural configuration mistakes:
// they abort the current scan rather than degrade to missing values.
type InvalidBinRangeError struct {
	Axis string
	Min  float64
	Max  float64
	Res  float64
}

func (e *InvalidBinRangeError) Error() string {
	return fmt.Sprintf("invalid %s bin range: min=%g max=%g res=%g", e.Axis, e.Min, e.Max, e.Res)
}
