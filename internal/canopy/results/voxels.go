package results

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Dims is the lattice geometry recorded beside each stored voxel blob,
// in the same shape the run config JSON uses: bounds as
// [xmin, ymin, zmin, xmax, ymax, zmax].
type Dims struct {
	Bounds     [6]float64 `json:"bounds"`
	Resolution float64    `json:"resolution"`
	NX         int        `json:"nx"`
	NY         int        `json:"ny"`
	NZ         int        `json:"nz"`
}

// JSON renders the dims document for the dims_json column.
func (d Dims) JSON() string {
	b, _ := json.Marshal(d)
	return string(b)
}

// ParseDims decodes a dims_json column value.
func ParseDims(s string) (Dims, error) {
	var d Dims
	if err := json.Unmarshal([]byte(s), &d); err != nil {
		return Dims{}, fmt.Errorf("parse dims: %w", err)
	}
	if d.NX < 1 || d.NY < 1 || d.NZ < 1 {
		return Dims{}, fmt.Errorf("parse dims: empty lattice %dx%dx%d", d.NX, d.NY, d.NZ)
	}
	return d, nil
}

// VoxelSnapshot is one scan's serialized voxel grid within a run.
// GridBlob is a gob-encoded, gzip-compressed voxel.Grid; DimsJSON
// carries the lattice geometry so browsers need not decode the blob.
type VoxelSnapshot struct {
	SnapshotID   string `json:"snapshot_id"`
	RunID        string `json:"run_id"`
	ScanPosition string `json:"scan_position"`
	ScanName     string `json:"scan_name"`
	DimsJSON     string `json:"dims_json"`
	GridBlob     []byte `json:"-"`
	CreatedAt    int64  `json:"created_at"`
}

// InsertVoxelSnapshot persists a snapshot. An empty SnapshotID gets a
// UUID, a zero CreatedAt the current time.
func (s *Store) InsertVoxelSnapshot(snap *VoxelSnapshot) error {
	if snap.SnapshotID == "" {
		snap.SnapshotID = uuid.New().String()
	}
	if snap.CreatedAt == 0 {
		snap.CreatedAt = time.Now().UnixNano()
	}

	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO voxel_snapshots (
				snapshot_id, run_id, scan_position, scan_name,
				dims_json, grid_blob, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			snap.SnapshotID, snap.RunID, snap.ScanPosition, snap.ScanName,
			snap.DimsJSON, snap.GridBlob, snap.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert voxel snapshot: %w", err)
		}
		return nil
	})
}

// VoxelSnapshot returns one snapshot, blob included.
func (s *Store) VoxelSnapshot(snapshotID string) (*VoxelSnapshot, error) {
	row := s.db.QueryRow(`
		SELECT snapshot_id, run_id, scan_position, scan_name,
		       dims_json, grid_blob, created_at
		FROM voxel_snapshots WHERE snapshot_id = ?`, snapshotID)

	var snap VoxelSnapshot
	err := row.Scan(
		&snap.SnapshotID, &snap.RunID, &snap.ScanPosition, &snap.ScanName,
		&snap.DimsJSON, &snap.GridBlob, &snap.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("voxel snapshot %s not found", snapshotID)
		}
		return nil, fmt.Errorf("scan voxel snapshot: %w", err)
	}
	return &snap, nil
}

// VoxelSnapshotsForRun returns all snapshots of a run ordered by scan
// position, blobs included. The inversion barrier loads a run through
// this.
func (s *Store) VoxelSnapshotsForRun(runID string) ([]*VoxelSnapshot, error) {
	rows, err := s.db.Query(`
		SELECT snapshot_id, run_id, scan_position, scan_name,
		       dims_json, grid_blob, created_at
		FROM voxel_snapshots
		WHERE run_id = ?
		ORDER BY scan_position`, runID)
	if err != nil {
		return nil, fmt.Errorf("query voxel snapshots: %w", err)
	}
	defer rows.Close()

	var out []*VoxelSnapshot
	for rows.Next() {
		var snap VoxelSnapshot
		if err := rows.Scan(
			&snap.SnapshotID, &snap.RunID, &snap.ScanPosition, &snap.ScanName,
			&snap.DimsJSON, &snap.GridBlob, &snap.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan voxel snapshot: %w", err)
		}
		out = append(out, &snap)
	}
	return out, rows.Err()
}

// InversionOutput holds the serialized multi-scan model products for a
// run: per-voxel PAI components, scan counts and the cover profile,
// each gob encoded and gzip compressed.
type InversionOutput struct {
	RunID      string `json:"run_id"`
	DimsJSON   string `json:"dims_json"`
	PAIvBlob   []byte `json:"-"`
	PAIhBlob   []byte `json:"-"`
	NScansBlob []byte `json:"-"`
	CoverBlob  []byte `json:"-"`
	CreatedAt  int64  `json:"created_at"`
}

// InsertInversionOutput stores a run's model products, replacing any
// previous solve for the same run.
func (s *Store) InsertInversionOutput(out *InversionOutput) error {
	if out.CreatedAt == 0 {
		out.CreatedAt = time.Now().UnixNano()
	}
	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT OR REPLACE INTO inversion_outputs (
				run_id, dims_json, paiv_blob, paih_blob,
				nscans_blob, cover_blob, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			out.RunID, out.DimsJSON, out.PAIvBlob, out.PAIhBlob,
			out.NScansBlob, out.CoverBlob, out.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert inversion output: %w", err)
		}
		return nil
	})
}

// InversionOutput returns a run's model products.
func (s *Store) InversionOutput(runID string) (*InversionOutput, error) {
	row := s.db.QueryRow(`
		SELECT run_id, dims_json, paiv_blob, paih_blob,
		       nscans_blob, cover_blob, created_at
		FROM inversion_outputs WHERE run_id = ?`, runID)

	var out InversionOutput
	err := row.Scan(
		&out.RunID, &out.DimsJSON, &out.PAIvBlob, &out.PAIhBlob,
		&out.NScansBlob, &out.CoverBlob, &out.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("inversion output for run %s not found", runID)
		}
		return nil, fmt.Errorf("scan inversion output: %w", err)
	}
	return &out, nil
}
