// Package vertexdb persists vertex fit results to sqlite. The schema is
// managed by embedded golang-migrate migrations so binaries are
// self-contained.
package vertexdb

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/vertexfit/internal/vertex"
)

// DB wraps the sql handle for fit persistence.
type DB struct {
	*sql.DB
}

// NewDB opens (creating if needed) the sqlite database at path and brings
// the schema up to the latest migration.
func NewDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db := &DB{sqlDB}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// FitSummary is one row of the fits table.
type FitSummary struct {
	FitID       string  `json:"fit_id"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Z           float64 `json:"z"`
	Chi2        float64 `json:"chi2"`
	NDF         int     `json:"ndf"`
	NumTracks   int     `json:"n_tracks"`
	Constrained bool    `json:"constrained"`
	Timestamp   string  `json:"timestamp"`
}

// FitTrack is one refit track row belonging to a fit.
type FitTrack struct {
	TrackIndex int     `json:"track_index"`
	Chi2       float64 `json:"chi2"`
	Phi        float64 `json:"phi"`
	Theta      float64 `json:"theta"`
	QOverP     float64 `json:"q_over_p"`
}

// FitRecord is a full fit with its per-track rows and position covariance.
type FitRecord struct {
	FitSummary
	Covariance [6]float64 `json:"covariance"` // xx, xy, xz, yy, yz, zz
	Tracks     []FitTrack `json:"tracks"`
}

// RecordFit stores a fitted vertex and its refit tracks under the given
// identifier. The insert is transactional: either the fit row and all
// track rows land, or none do.
func (db *DB) RecordFit(fitID string, v *vertex.Vertex, constrained bool) error {
	if v == nil {
		return fmt.Errorf("nil vertex")
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	cov := [6]float64{}
	if v.Covariance != nil {
		cov = [6]float64{
			v.Covariance.At(0, 0), v.Covariance.At(0, 1), v.Covariance.At(0, 2),
			v.Covariance.At(1, 1), v.Covariance.At(1, 2), v.Covariance.At(2, 2),
		}
	}

	_, err = tx.Exec(
		`INSERT INTO fits (
			fit_id, x, y, z,
			cov_xx, cov_xy, cov_xz, cov_yy, cov_yz, cov_zz,
			chi2, ndf, n_tracks, constrained
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		fitID, v.Position[0], v.Position[1], v.Position[2],
		cov[0], cov[1], cov[2], cov[3], cov[4], cov[5],
		v.Chi2, v.NDF, len(v.Tracks), constrained,
	)
	if err != nil {
		return fmt.Errorf("insert fit: %w", err)
	}

	for i, tav := range v.Tracks {
		_, err = tx.Exec(
			`INSERT INTO fit_tracks (fit_id, track_index, chi2, phi, theta, q_over_p)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			fitID, i, tav.Chi2,
			tav.Parameters.Phi(), tav.Parameters.Theta(), tav.Parameters.QOverP(),
		)
		if err != nil {
			return fmt.Errorf("insert fit track %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// ListFits returns the most recent fits, newest first.
func (db *DB) ListFits(limit int) ([]FitSummary, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(
		`SELECT fit_id, x, y, z, chi2, ndf, n_tracks, constrained, timestamp
		 FROM fits ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list fits: %w", err)
	}
	defer rows.Close()

	var fits []FitSummary
	for rows.Next() {
		var f FitSummary
		if err := rows.Scan(&f.FitID, &f.X, &f.Y, &f.Z, &f.Chi2, &f.NDF, &f.NumTracks, &f.Constrained, &f.Timestamp); err != nil {
			return nil, fmt.Errorf("scan fit row: %w", err)
		}
		fits = append(fits, f)
	}
	return fits, rows.Err()
}

// GetFit returns a full fit record, or sql.ErrNoRows if absent.
func (db *DB) GetFit(fitID string) (*FitRecord, error) {
	var rec FitRecord
	err := db.QueryRow(
		`SELECT fit_id, x, y, z, cov_xx, cov_xy, cov_xz, cov_yy, cov_yz, cov_zz,
		        chi2, ndf, n_tracks, constrained, timestamp
		 FROM fits WHERE fit_id = ?`, fitID).Scan(
		&rec.FitID, &rec.X, &rec.Y, &rec.Z,
		&rec.Covariance[0], &rec.Covariance[1], &rec.Covariance[2],
		&rec.Covariance[3], &rec.Covariance[4], &rec.Covariance[5],
		&rec.Chi2, &rec.NDF, &rec.NumTracks, &rec.Constrained, &rec.Timestamp,
	)
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(
		`SELECT track_index, chi2, phi, theta, q_over_p
		 FROM fit_tracks WHERE fit_id = ? ORDER BY track_index`, fitID)
	if err != nil {
		return nil, fmt.Errorf("query fit tracks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t FitTrack
		if err := rows.Scan(&t.TrackIndex, &t.Chi2, &t.Phi, &t.Theta, &t.QOverP); err != nil {
			return nil, fmt.Errorf("scan fit track: %w", err)
		}
		rec.Tracks = append(rec.Tracks, t)
	}
	return &rec, rows.Err()
}
