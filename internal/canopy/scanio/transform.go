package scanio

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/banshee-data/canopy.report/internal/canopy"
)

// ReadTransformFile loads a scanner-to-world pose from a whitespace
// separated text file: sixteen values forming a 4x4 matrix in row-major
// order with the translation in the fourth column, as registration
// software exports scan position matrices. The scanner position is the
// translation column of the result.
func ReadTransformFile(path string) (canopy.Pose, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return canopy.Pose{}, fmt.Errorf("read transform: %w", err)
	}
	fields := strings.Fields(string(data))
	if len(fields) != 16 {
		return canopy.Pose{}, fmt.Errorf("transform %s: have %d values, want 16", path, len(fields))
	}
	var pose canopy.Pose
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return canopy.Pose{}, fmt.Errorf("transform %s: bad value %q", path, f)
		}
		pose[i] = v
	}
	return pose, nil
}
