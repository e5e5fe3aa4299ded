package results

import (
	"database/sql"
	"fmt"
)

// ProfileRow is one height bin of a scan's vertical profile products.
// Undefined estimates are missing values.
type ProfileRow struct {
	Height       float64 `json:"height"`
	HingePAI     float64 `json:"hinge_pai"`
	LinearPAI    float64 `json:"linear_pai"`
	WeightedPAI  float64 `json:"weighted_pai"`
	HingePAVD    float64 `json:"hinge_pavd"`
	LinearPAVD   float64 `json:"linear_pavd"`
	WeightedPAVD float64 `json:"weighted_pavd"`
	LinearMLA    float64 `json:"linear_mla"`
}

// InsertScanProfile stores all height bins of one scan in a single
// transaction, replacing nothing: a scan position appears once per run.
func (s *Store) InsertScanProfile(runID, scanPos, scanName string, rows []ProfileRow) error {
	return retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin profile insert: %w", err)
		}
		defer tx.Rollback()

		stmt, err := tx.Prepare(`
			INSERT INTO scan_profiles (
				run_id, scan_position, scan_name, height,
				hinge_pai, linear_pai, weighted_pai,
				hinge_pavd, linear_pavd, weighted_pavd, linear_mla
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare profile insert: %w", err)
		}
		defer stmt.Close()

		for _, r := range rows {
			_, err := stmt.Exec(
				runID, scanPos, scanName, r.Height,
				nullIfMissing(r.HingePAI), nullIfMissing(r.LinearPAI), nullIfMissing(r.WeightedPAI),
				nullIfMissing(r.HingePAVD), nullIfMissing(r.LinearPAVD), nullIfMissing(r.WeightedPAVD),
				nullIfMissing(r.LinearMLA),
			)
			if err != nil {
				return fmt.Errorf("insert profile row: %w", err)
			}
		}
		return tx.Commit()
	})
}

// ScanProfile returns a scan's profile rows ordered by height.
func (s *Store) ScanProfile(runID, scanPos string) ([]ProfileRow, error) {
	rows, err := s.db.Query(`
		SELECT height, hinge_pai, linear_pai, weighted_pai,
		       hinge_pavd, linear_pavd, weighted_pavd, linear_mla
		FROM scan_profiles
		WHERE run_id = ? AND scan_position = ?
		ORDER BY height`, runID, scanPos)
	if err != nil {
		return nil, fmt.Errorf("query scan profile: %w", err)
	}
	defer rows.Close()

	var out []ProfileRow
	for rows.Next() {
		var r ProfileRow
		var hp, lp, wp, hd, ld, wd, mla sql.NullFloat64
		if err := rows.Scan(&r.Height, &hp, &lp, &wp, &hd, &ld, &wd, &mla); err != nil {
			return nil, fmt.Errorf("scan profile row: %w", err)
		}
		r.HingePAI, r.LinearPAI, r.WeightedPAI = orMissing(hp), orMissing(lp), orMissing(wp)
		r.HingePAVD, r.LinearPAVD, r.WeightedPAVD = orMissing(hd), orMissing(ld), orMissing(wd)
		r.LinearMLA = orMissing(mla)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ProfileScans returns the scan positions stored for a run, sorted.
func (s *Store) ProfileScans(runID string) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT DISTINCT scan_position FROM scan_profiles
		WHERE run_id = ? ORDER BY scan_position`, runID)
	if err != nil {
		return nil, fmt.Errorf("query profile scans: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var pos string
		if err := rows.Scan(&pos); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		out = append(out, pos)
	}
	return out, rows.Err()
}

// ScanSummary is the per-scan batch summary row: where the scanner
// stood, the fitted ground plane, pulse telemetry and column totals.
type ScanSummary struct {
	ScanPosition     string  `json:"scan_position"`
	ScanName         string  `json:"scan_name"`
	SensorX          float64 `json:"sensor_x"`
	SensorY          float64 `json:"sensor_y"`
	SensorZ          float64 `json:"sensor_z"`
	GroundIntercept  float64 `json:"ground_intercept"`
	GroundSlopeX     float64 `json:"ground_slope_x"`
	GroundSlopeY     float64 `json:"ground_slope_y"`
	PulsesSeen       int64   `json:"pulses_seen"`
	PulsesBinned     int64   `json:"pulses_binned"`
	TotalPAIHinge    float64 `json:"total_pai_hinge"`
	TotalPAILinear   float64 `json:"total_pai_linear"`
	TotalPAIWeighted float64 `json:"total_pai_weighted"`
}

// InsertScanSummary stores one scan's summary row.
func (s *Store) InsertScanSummary(runID string, sum *ScanSummary) error {
	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO scan_summary (
				run_id, scan_position, scan_name,
				sensor_x, sensor_y, sensor_z,
				ground_intercept, ground_slope_x, ground_slope_y,
				pulses_seen, pulses_binned,
				total_pai_hinge, total_pai_linear, total_pai_weighted
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, sum.ScanPosition, sum.ScanName,
			sum.SensorX, sum.SensorY, sum.SensorZ,
			nullIfMissing(sum.GroundIntercept), nullIfMissing(sum.GroundSlopeX), nullIfMissing(sum.GroundSlopeY),
			sum.PulsesSeen, sum.PulsesBinned,
			nullIfMissing(sum.TotalPAIHinge), nullIfMissing(sum.TotalPAILinear), nullIfMissing(sum.TotalPAIWeighted),
		)
		if err != nil {
			return fmt.Errorf("insert scan summary: %w", err)
		}
		return nil
	})
}

// ScanSummaries returns a run's summary rows ordered by scan position.
func (s *Store) ScanSummaries(runID string) ([]*ScanSummary, error) {
	rows, err := s.db.Query(`
		SELECT scan_position, scan_name,
		       sensor_x, sensor_y, sensor_z,
		       ground_intercept, ground_slope_x, ground_slope_y,
		       pulses_seen, pulses_binned,
		       total_pai_hinge, total_pai_linear, total_pai_weighted
		FROM scan_summary
		WHERE run_id = ?
		ORDER BY scan_position`, runID)
	if err != nil {
		return nil, fmt.Errorf("query scan summaries: %w", err)
	}
	defer rows.Close()

	var out []*ScanSummary
	for rows.Next() {
		var sum ScanSummary
		var gi, gx, gy, th, tl, tw sql.NullFloat64
		if err := rows.Scan(
			&sum.ScanPosition, &sum.ScanName,
			&sum.SensorX, &sum.SensorY, &sum.SensorZ,
			&gi, &gx, &gy,
			&sum.PulsesSeen, &sum.PulsesBinned,
			&th, &tl, &tw,
		); err != nil {
			return nil, fmt.Errorf("scan summary row: %w", err)
		}
		sum.GroundIntercept, sum.GroundSlopeX, sum.GroundSlopeY = orMissing(gi), orMissing(gx), orMissing(gy)
		sum.TotalPAIHinge, sum.TotalPAILinear, sum.TotalPAIWeighted = orMissing(th), orMissing(tl), orMissing(tw)
		out = append(out, &sum)
	}
	return out, rows.Err()
}
