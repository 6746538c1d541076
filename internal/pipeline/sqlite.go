package pipeline

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/edgewatch/edgewatch/internal/classifier"
)

// SQLiteSink mirrors the final flagged-pair set and run metadata into a
// local SQLite database, for operators who want queryable history across
// runs in addition to the CSV artifact.
type SQLiteSink struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id           TEXT PRIMARY KEY,
	started_at       TIMESTAMP NOT NULL,
	finished_at      TIMESTAMP NOT NULL,
	threshold_db     REAL NOT NULL,
	min_samples      INTEGER NOT NULL,
	min_distance_km  REAL NOT NULL,
	pairs            INTEGER NOT NULL,
	flagged          INTEGER NOT NULL,
	hotspots_skipped INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS flagged_pairs (
	run_id          TEXT NOT NULL REFERENCES runs(run_id),
	beaconer_pubkey TEXT NOT NULL,
	witness_pubkey  TEXT NOT NULL,
	delta_db        REAL NOT NULL,
	mean_rssi_dbm   REAL NOT NULL,
	samples         INTEGER NOT NULL,
	distance_km     REAL NOT NULL,
	PRIMARY KEY (run_id, beaconer_pubkey, witness_pubkey)
);`

// NewSQLiteSink opens (creating if needed) the results database.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening results database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing results schema: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

// RunRecord is the run-level metadata stored beside the flagged pairs.
type RunRecord struct {
	RunID         string
	StartedAt     time.Time
	FinishedAt    time.Time
	ThresholdDB   float64
	MinSamples    int
	MinDistanceKM float64
}

// SaveRun stores one completed run and its flagged pairs in a single
// transaction.
func (s *SQLiteSink) SaveRun(run RunRecord, stats *Stats, results []classifier.Result) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO runs (run_id, started_at, finished_at, threshold_db, min_samples,
			min_distance_km, pairs, flagged, hotspots_skipped)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.StartedAt, run.FinishedAt, run.ThresholdDB, run.MinSamples,
		run.MinDistanceKM, stats.Pairs, stats.Flagged, stats.HotspotsSkipped,
	)
	if err != nil {
		return fmt.Errorf("inserting run record: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO flagged_pairs (run_id, beaconer_pubkey, witness_pubkey, delta_db,
			mean_rssi_dbm, samples, distance_km)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range results {
		if _, err := stmt.Exec(run.RunID, r.BeaconerPubkey, r.WitnessPubkey,
			r.DeltaDB, r.MeanRSSI, r.SampleCount, r.DistanceKM); err != nil {
			return fmt.Errorf("inserting flagged pair %s->%s: %w", r.BeaconerPubkey, r.WitnessPubkey, err)
		}
	}

	return tx.Commit()
}
