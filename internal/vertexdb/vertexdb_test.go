package vertexdb

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/vertexfit/internal/track"
	"github.com/banshee-data/vertexfit/internal/vertex"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleVertex() *vertex.Vertex {
	cov := mat.NewSymDense(3, nil)
	cov.SetSym(0, 0, 0.01)
	cov.SetSym(1, 1, 0.02)
	cov.SetSym(2, 2, 0.03)
	cov.SetSym(0, 1, 0.001)

	refitCov := mat.NewSymDense(track.NumParams, nil)
	for i := 0; i < track.NumParams; i++ {
		refitCov.SetSym(i, i, 1e-4)
	}

	return &vertex.Vertex{
		Position:   [3]float64{1.5, -2.5, 3.5},
		Covariance: cov,
		Chi2:       0.42,
		NDF:        1,
		Tracks: []vertex.TrackAtVertex{
			{
				Chi2: 0.2,
				Parameters: track.Parameters{
					Vec: [track.NumParams]float64{0, 0, 0.3, 1.2, 0.8},
					Cov: refitCov,
				},
			},
			{
				Chi2: 0.22,
				Parameters: track.Parameters{
					Vec: [track.NumParams]float64{0, 0, 2.0, 1.8, -0.5},
					Cov: refitCov,
				},
			},
		},
	}
}

func TestMigrations(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(1), version)

	// Up again is a no-op.
	require.NoError(t, db.MigrateUp())

	require.NoError(t, db.MigrateDown())
	version, dirty, err = db.MigrateVersion()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(0), version)
}

func TestRecordAndGetFit(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)

	v := sampleVertex()
	require.NoError(t, db.RecordFit("fit_abc", v, true))

	rec, err := db.GetFit("fit_abc")
	require.NoError(t, err)
	assert.Equal(t, "fit_abc", rec.FitID)
	assert.Equal(t, v.Position[0], rec.X)
	assert.Equal(t, v.Position[1], rec.Y)
	assert.Equal(t, v.Position[2], rec.Z)
	assert.Equal(t, v.Chi2, rec.Chi2)
	assert.Equal(t, v.NDF, rec.NDF)
	assert.Equal(t, 2, rec.NumTracks)
	assert.True(t, rec.Constrained)
	assert.Equal(t, [6]float64{0.01, 0.001, 0, 0.02, 0, 0.03}, rec.Covariance)

	wantTracks := []FitTrack{
		{TrackIndex: 0, Chi2: 0.2, Phi: 0.3, Theta: 1.2, QOverP: 0.8},
		{TrackIndex: 1, Chi2: 0.22, Phi: 2.0, Theta: 1.8, QOverP: -0.5},
	}
	if diff := cmp.Diff(wantTracks, rec.Tracks); diff != "" {
		t.Errorf("fit tracks mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordFitRejectsNilVertex(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	assert.Error(t, db.RecordFit("fit_nil", nil, false))
}

func TestRecordFitDuplicateID(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)

	v := sampleVertex()
	require.NoError(t, db.RecordFit("fit_dup", v, false))
	assert.Error(t, db.RecordFit("fit_dup", v, false))
}

func TestListFits(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)

	v := sampleVertex()
	for _, id := range []string{"fit_1", "fit_2", "fit_3"} {
		require.NoError(t, db.RecordFit(id, v, false))
	}

	fits, err := db.ListFits(10)
	require.NoError(t, err)
	assert.Len(t, fits, 3)

	fits, err = db.ListFits(2)
	require.NoError(t, err)
	assert.Len(t, fits, 2)

	// Non-positive limits fall back to the default page size.
	fits, err = db.ListFits(0)
	require.NoError(t, err)
	assert.Len(t, fits, 3)
}

func TestGetFitMissing(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)

	_, err := db.GetFit("fit_missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
