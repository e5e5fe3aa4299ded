package results

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run kinds.
const (
	RunKindProfile = "profile"
	RunKindVoxel   = "voxel"
)

// Run is one batch invocation over a scan project.
type Run struct {
	RunID     string          `json:"run_id"`
	Kind      string          `json:"kind"`
	Project   string          `json:"project"`
	Params    json.RawMessage `json:"params,omitempty"`
	CreatedAt int64           `json:"created_at"` // unix nanos
}

// InsertRun persists a run. An empty RunID gets a UUID, a zero
// CreatedAt the current time.
func (s *Store) InsertRun(r *Run) error {
	if r.RunID == "" {
		r.RunID = uuid.New().String()
	}
	if r.CreatedAt == 0 {
		r.CreatedAt = time.Now().UnixNano()
	}
	params := "{}"
	if len(r.Params) > 0 {
		params = string(r.Params)
	}

	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO runs (run_id, kind, project, params_json, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			r.RunID, r.Kind, r.Project, params, r.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		return nil
	})
}

// GetRun returns one run by id.
func (s *Store) GetRun(runID string) (*Run, error) {
	row := s.db.QueryRow(`
		SELECT run_id, kind, project, params_json, created_at
		FROM runs WHERE run_id = ?`, runID)

	var r Run
	var params string
	if err := row.Scan(&r.RunID, &r.Kind, &r.Project, &params, &r.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("run %s not found", runID)
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	r.Params = json.RawMessage(params)
	return &r, nil
}

// ListRuns returns runs newest first, optionally filtered by kind.
// A non-positive limit means no limit.
func (s *Store) ListRuns(kind string, limit int) ([]*Run, error) {
	query := `
		SELECT run_id, kind, project, params_json, created_at
		FROM runs`
	var args []interface{}
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var r Run
		var params string
		if err := rows.Scan(&r.RunID, &r.Kind, &r.Project, &params, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Params = json.RawMessage(params)
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}
