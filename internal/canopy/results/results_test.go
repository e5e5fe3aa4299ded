package results

import (
	"encoding/json"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/canopy.report/internal/canopy"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "results.db")
	s, err := Open(path)
	require.NoError(t, err, "open results store")
	t.Cleanup(func() { s.Close() })
	return s
}

func seedRun(t *testing.T, s *Store, kind string) *Run {
	t.Helper()
	r := &Run{Kind: kind, Project: "testdata/project"}
	require.NoError(t, s.InsertRun(r))
	return r
}

func TestOpenAppliesMigrations(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	for _, table := range []string{
		"runs", "scan_profiles", "scan_summary",
		"voxel_snapshots", "inversion_outputs",
	} {
		var name string
		err := s.DB().QueryRow(
			`SELECT name FROM sqlite_master WHERE type='table' AND name=?`,
			table,
		).Scan(&name)
		assert.NoError(t, err, "table %s should exist", table)
	}

	// Reopening an up-to-date database must not fail.
	again, err := Open(s.Path())
	require.NoError(t, err)
	assert.NoError(t, again.Close())
}

func TestRunRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	t.Run("insert assigns defaults", func(t *testing.T) {
		r := &Run{Kind: RunKindProfile, Project: "plots/site-a"}
		require.NoError(t, s.InsertRun(r))
		assert.NotEmpty(t, r.RunID)
		assert.NotZero(t, r.CreatedAt)
	})

	t.Run("get returns stored run", func(t *testing.T) {
		r := &Run{
			RunID:   "run-fixed",
			Kind:    RunKindVoxel,
			Project: "plots/site-b",
			Params:  json.RawMessage(`{"resolution":0.5}`),
		}
		require.NoError(t, s.InsertRun(r))

		got, err := s.GetRun("run-fixed")
		require.NoError(t, err)
		assert.Equal(t, RunKindVoxel, got.Kind)
		assert.Equal(t, "plots/site-b", got.Project)
		assert.JSONEq(t, `{"resolution":0.5}`, string(got.Params))
		assert.Equal(t, r.CreatedAt, got.CreatedAt)
	})

	t.Run("get missing run", func(t *testing.T) {
		_, err := s.GetRun("no-such-run")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("list filters by kind", func(t *testing.T) {
		all, err := s.ListRuns("", 0)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(all), 2)

		voxel, err := s.ListRuns(RunKindVoxel, 0)
		require.NoError(t, err)
		for _, r := range voxel {
			assert.Equal(t, RunKindVoxel, r.Kind)
		}

		limited, err := s.ListRuns("", 1)
		require.NoError(t, err)
		assert.Len(t, limited, 1)
	})
}

func TestScanProfileRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	run := seedRun(t, s, RunKindProfile)

	rows := []ProfileRow{
		{
			Height:   0.5,
			HingePAI: 0.12, LinearPAI: 0.10, WeightedPAI: 0.11,
			HingePAVD: 0.24, LinearPAVD: 0.20, WeightedPAVD: 0.22,
			LinearMLA: 41.0,
		},
		{
			// Bin with no pulses: every product undefined.
			Height:   1.0,
			HingePAI: canopy.Missing(), LinearPAI: canopy.Missing(), WeightedPAI: canopy.Missing(),
			HingePAVD: canopy.Missing(), LinearPAVD: canopy.Missing(), WeightedPAVD: canopy.Missing(),
			LinearMLA: canopy.Missing(),
		},
	}
	// Insert out of height order to check the read-back ordering.
	require.NoError(t, s.InsertScanProfile(run.RunID, "ScanPos002", "plot-east", []ProfileRow{rows[1], rows[0]}))
	require.NoError(t, s.InsertScanProfile(run.RunID, "ScanPos001", "plot-west", rows))

	t.Run("rows come back ordered by height", func(t *testing.T) {
		got, err := s.ScanProfile(run.RunID, "ScanPos002")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, 0.5, got[0].Height)
		assert.Equal(t, 1.0, got[1].Height)
	})

	t.Run("values survive the null boundary", func(t *testing.T) {
		got, err := s.ScanProfile(run.RunID, "ScanPos001")
		require.NoError(t, err)
		require.Len(t, got, 2)

		assert.InDelta(t, 0.12, got[0].HingePAI, 1e-12)
		assert.InDelta(t, 41.0, got[0].LinearMLA, 1e-12)

		assert.True(t, canopy.IsMissing(got[1].HingePAI))
		assert.True(t, canopy.IsMissing(got[1].WeightedPAVD))
		assert.True(t, canopy.IsMissing(got[1].LinearMLA))
	})

	t.Run("profile scans are distinct and sorted", func(t *testing.T) {
		scans, err := s.ProfileScans(run.RunID)
		require.NoError(t, err)
		assert.Equal(t, []string{"ScanPos001", "ScanPos002"}, scans)
	})

	t.Run("unknown run has no rows", func(t *testing.T) {
		got, err := s.ScanProfile("no-such-run", "ScanPos001")
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestScanSummaryRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	run := seedRun(t, s, RunKindProfile)

	require.NoError(t, s.InsertScanSummary(run.RunID, &ScanSummary{
		ScanPosition: "ScanPos002",
		ScanName:     "plot-east",
		SensorX:      12.5, SensorY: -3.0, SensorZ: 1.6,
		GroundIntercept: 0.8, GroundSlopeX: 0.01, GroundSlopeY: -0.02,
		PulsesSeen: 200000, PulsesBinned: 180500,
		TotalPAIHinge: 3.1, TotalPAILinear: 2.9, TotalPAIWeighted: 3.0,
	}))
	// A scan whose ground fit and totals never resolved.
	require.NoError(t, s.InsertScanSummary(run.RunID, &ScanSummary{
		ScanPosition: "ScanPos001",
		ScanName:     "plot-west",
		SensorX:      0, SensorY: 0, SensorZ: 1.5,
		GroundIntercept: canopy.Missing(), GroundSlopeX: canopy.Missing(), GroundSlopeY: canopy.Missing(),
		PulsesSeen: 150, PulsesBinned: 0,
		TotalPAIHinge: canopy.Missing(), TotalPAILinear: canopy.Missing(), TotalPAIWeighted: canopy.Missing(),
	}))

	got, err := s.ScanSummaries(run.RunID)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "ScanPos001", got[0].ScanPosition)
	assert.True(t, canopy.IsMissing(got[0].GroundIntercept))
	assert.True(t, canopy.IsMissing(got[0].TotalPAIWeighted))
	assert.Equal(t, int64(150), got[0].PulsesSeen)

	assert.Equal(t, "ScanPos002", got[1].ScanPosition)
	assert.InDelta(t, 12.5, got[1].SensorX, 1e-12)
	assert.InDelta(t, 0.8, got[1].GroundIntercept, 1e-12)
	assert.InDelta(t, 3.1, got[1].TotalPAIHinge, 1e-12)
	assert.Equal(t, int64(180500), got[1].PulsesBinned)
}

func TestVoxelSnapshotRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	run := seedRun(t, s, RunKindVoxel)

	blob := []byte{0x1f, 0x8b, 0x08, 0x00, 0xde, 0xad, 0xbe, 0xef}
	snap := &VoxelSnapshot{
		RunID:        run.RunID,
		ScanPosition: "ScanPos003",
		ScanName:     "plot-north",
		DimsJSON:     `{"nx":10,"ny":10,"nz":40}`,
		GridBlob:     blob,
	}
	require.NoError(t, s.InsertVoxelSnapshot(snap))
	assert.NotEmpty(t, snap.SnapshotID)
	assert.NotZero(t, snap.CreatedAt)

	require.NoError(t, s.InsertVoxelSnapshot(&VoxelSnapshot{
		RunID:        run.RunID,
		ScanPosition: "ScanPos001",
		ScanName:     "plot-south",
		DimsJSON:     `{"nx":10,"ny":10,"nz":40}`,
		GridBlob:     []byte{0x01},
	}))

	t.Run("get by id returns the blob", func(t *testing.T) {
		got, err := s.VoxelSnapshot(snap.SnapshotID)
		require.NoError(t, err)
		assert.Equal(t, run.RunID, got.RunID)
		assert.Equal(t, "ScanPos003", got.ScanPosition)
		assert.Equal(t, blob, got.GridBlob)
	})

	t.Run("run listing orders by scan position", func(t *testing.T) {
		snaps, err := s.VoxelSnapshotsForRun(run.RunID)
		require.NoError(t, err)
		require.Len(t, snaps, 2)
		assert.Equal(t, "ScanPos001", snaps[0].ScanPosition)
		assert.Equal(t, "ScanPos003", snaps[1].ScanPosition)
	})

	t.Run("missing snapshot", func(t *testing.T) {
		_, err := s.VoxelSnapshot("no-such-snapshot")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})
}

func TestInversionOutputReplaces(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	run := seedRun(t, s, RunKindVoxel)

	first := &InversionOutput{
		RunID:      run.RunID,
		DimsJSON:   `{"nx":4,"ny":4,"nz":8}`,
		PAIvBlob:   []byte{0x01},
		PAIhBlob:   []byte{0x02},
		NScansBlob: []byte{0x03},
		CoverBlob:  []byte{0x04},
	}
	require.NoError(t, s.InsertInversionOutput(first))

	got, err := s.InversionOutput(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01}, got.PAIvBlob)

	// A re-solve overwrites the previous products.
	second := &InversionOutput{
		RunID:      run.RunID,
		DimsJSON:   `{"nx":4,"ny":4,"nz":8}`,
		PAIvBlob:   []byte{0x11},
		PAIhBlob:   []byte{0x12},
		NScansBlob: []byte{0x13},
		CoverBlob:  []byte{0x14},
	}
	require.NoError(t, s.InsertInversionOutput(second))

	got, err = s.InversionOutput(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x11}, got.PAIvBlob)
	assert.Equal(t, []byte{0x14}, got.CoverBlob)

	t.Run("missing output", func(t *testing.T) {
		_, err := s.InversionOutput("no-such-run")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})
}

func TestDeleteRunCascades(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	run := seedRun(t, s, RunKindVoxel)

	require.NoError(t, s.InsertScanProfile(run.RunID, "ScanPos001", "plot", []ProfileRow{
		{Height: 0.5, HingePAI: 0.1, LinearPAI: 0.1, WeightedPAI: 0.1,
			HingePAVD: 0.2, LinearPAVD: 0.2, WeightedPAVD: 0.2, LinearMLA: 40},
	}))
	require.NoError(t, s.InsertVoxelSnapshot(&VoxelSnapshot{
		RunID: run.RunID, ScanPosition: "ScanPos001",
		DimsJSON: `{}`, GridBlob: []byte{0x01},
	}))

	_, err := s.DB().Exec(`DELETE FROM runs WHERE run_id = ?`, run.RunID)
	require.NoError(t, err)

	got, err := s.ScanProfile(run.RunID, "ScanPos001")
	require.NoError(t, err)
	assert.Empty(t, got)

	snaps, err := s.VoxelSnapshotsForRun(run.RunID)
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestNullHelpers(t *testing.T) {
	t.Parallel()
	assert.Nil(t, nullIfMissing(math.NaN()))
	assert.Equal(t, 1.5, nullIfMissing(1.5))
}
