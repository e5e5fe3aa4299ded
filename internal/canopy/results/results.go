// Package results persists canopy products in SQLite: batch runs,
// per-scan vertical profiles and summaries, voxel grid snapshots, and
// multi-scan inversion outputs. Missing values are NULL columns in the
// database and NaN in Go; the store converts at the boundary.
package results

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/canopy.report/internal/canopy"
)

// Store provides access to a results database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens the results database at path, creating it when absent, and
// applies pending schema migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open results db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("results db %q: %w", pragma, err)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying connection for admin surfaces.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// retryOnBusy retries fn while SQLite reports the database busy or
// locked, which happens when profile workers and the inversion barrier
// write concurrently. Non-busy errors return immediately.
func retryOnBusy(fn func() error) error {
	const attempts = 5
	delay := 10 * time.Millisecond
	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil || !isBusy(err) {
			return err
		}
		time.Sleep(delay)
		delay *= 2
	}
	return err
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY")
}

// nullIfMissing maps a missing value to NULL for binding.
func nullIfMissing(v float64) interface{} {
	if canopy.IsMissing(v) {
		return nil
	}
	return v
}

// orMissing maps a NULL column back to a missing value.
func orMissing(v sql.NullFloat64) float64 {
	if !v.Valid {
		return canopy.Missing()
	}
	return v.Float64
}
