// Package navdb persists navigation runs to sqlite: the estimate trail,
// every issued command, and the anomalies the pipeline counted. Schema
// changes ship as embedded migrations and run at open time.
package navdb

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/duckietown/duckietown-intnav/internal/nav"
	"github.com/duckietown/duckietown-intnav/internal/nav/pipeline"
)

// DB wraps the sqlite handle together with the current run id. It
// implements pipeline.Recorder.
type DB struct {
	*sql.DB
	runID string
}

// Open opens (or creates) the database at path, applies pragmas suited to
// a single-writer recorder, and runs all pending migrations.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// One writer goroutine; modernc sqlite handles are not safe for
	// concurrent writes on a shared connection pool.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	d := &DB{DB: db}
	if err := d.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

// BeginRun opens a new uuid-keyed run and makes it the recording target.
func (d *DB) BeginRun(startedAt time.Time) (string, error) {
	id := uuid.NewString()
	_, err := d.Exec(`INSERT INTO runs (run_id, started_at) VALUES (?, ?)`, id, startedAt.UTC())
	if err != nil {
		return "", fmt.Errorf("begin run: %w", err)
	}
	d.runID = id
	return id, nil
}

// RunID returns the active run id, empty before BeginRun.
func (d *DB) RunID() string { return d.runID }

// EndRun stamps the active run as finished.
func (d *DB) EndRun(endedAt time.Time) error {
	if d.runID == "" {
		return fmt.Errorf("no active run")
	}
	_, err := d.Exec(`UPDATE runs SET ended_at = ? WHERE run_id = ?`, endedAt.UTC(), d.runID)
	if err != nil {
		return fmt.Errorf("end run: %w", err)
	}
	return nil
}

// RecordEstimate appends one state estimate to the active run.
func (d *DB) RecordEstimate(est nav.StateEstimate) error {
	if d.runID == "" {
		return fmt.Errorf("no active run")
	}
	_, err := d.Exec(
		`INSERT INTO estimates (run_id, stamp, x, y, heading, linear, angular, pos_var)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.runID, est.Stamp.UTC(),
		est.Pose.X, est.Pose.Y, est.Pose.Heading,
		est.Twist.Linear, est.Twist.Angular,
		est.PositionUncertainty(),
	)
	if err != nil {
		return fmt.Errorf("record estimate: %w", err)
	}
	return nil
}

// RecordCommand appends one issued command to the active run.
func (d *DB) RecordCommand(cmd pipeline.Command) error {
	if d.runID == "" {
		return fmt.Errorf("no active run")
	}
	_, err := d.Exec(
		`INSERT INTO commands (run_id, stamp, linear, angular, wheel_left, wheel_right, status, episode)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.runID, cmd.Stamp.UTC(),
		cmd.Twist.Linear, cmd.Twist.Angular,
		cmd.WheelLeft, cmd.WheelRight,
		string(cmd.Status), cmd.Episode,
	)
	if err != nil {
		return fmt.Errorf("record command: %w", err)
	}
	return nil
}

// RecordAnomaly appends one anomaly to the active run.
func (d *DB) RecordAnomaly(kind, detail string, stamp time.Time) error {
	if d.runID == "" {
		return fmt.Errorf("no active run")
	}
	_, err := d.Exec(
		`INSERT INTO anomalies (run_id, stamp, kind, detail) VALUES (?, ?, ?, ?)`,
		d.runID, stamp.UTC(), kind, detail,
	)
	if err != nil {
		return fmt.Errorf("record anomaly: %w", err)
	}
	return nil
}

// TrailPoint is one persisted estimate row.
type TrailPoint struct {
	Stamp   time.Time
	X       float64
	Y       float64
	Heading float64
	Linear  float64
	Angular float64
	PosVar  float64
}

// Trail returns the most recent estimates of a run, oldest first, capped
// at limit rows. A non-positive limit returns the whole run.
func (d *DB) Trail(runID string, limit int) ([]TrailPoint, error) {
	query := `SELECT stamp, x, y, heading, linear, angular, pos_var
		FROM estimates WHERE run_id = ? ORDER BY stamp DESC`
	args := []interface{}{runID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := d.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("trail query: %w", err)
	}
	defer rows.Close()

	var out []TrailPoint
	for rows.Next() {
		var p TrailPoint
		if err := rows.Scan(&p.Stamp, &p.X, &p.Y, &p.Heading, &p.Linear, &p.Angular, &p.PosVar); err != nil {
			return nil, fmt.Errorf("trail scan: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("trail rows: %w", err)
	}
	// Reverse into chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// RunSummary describes one recorded run.
type RunSummary struct {
	RunID     string
	StartedAt time.Time
	EndedAt   sql.NullTime
	Estimates int64
	Commands  int64
	Anomalies int64
}

// Runs lists recorded runs, newest first.
func (d *DB) Runs() ([]RunSummary, error) {
	rows, err := d.Query(`
		SELECT r.run_id, r.started_at, r.ended_at,
			(SELECT COUNT(*) FROM estimates e WHERE e.run_id = r.run_id),
			(SELECT COUNT(*) FROM commands c WHERE c.run_id = r.run_id),
			(SELECT COUNT(*) FROM anomalies a WHERE a.run_id = r.run_id)
		FROM runs r ORDER BY r.started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("runs query: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var s RunSummary
		if err := rows.Scan(&s.RunID, &s.StartedAt, &s.EndedAt, &s.Estimates, &s.Commands, &s.Anomalies); err != nil {
			return nil, fmt.Errorf("runs scan: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// PruneRuns deletes everything but the newest keep runs.
func (d *DB) PruneRuns(keep int) error {
	if keep < 0 {
		keep = 0
	}
	tx, err := d.Begin()
	if err != nil {
		return fmt.Errorf("prune begin: %w", err)
	}
	defer tx.Rollback()

	const old = `SELECT run_id FROM runs ORDER BY started_at DESC LIMIT -1 OFFSET ?`
	for _, table := range []string{"estimates", "commands", "anomalies"} {
		if _, err := tx.Exec(
			fmt.Sprintf(`DELETE FROM %s WHERE run_id IN (%s)`, table, old), keep); err != nil {
			return fmt.Errorf("prune %s: %w", table, err)
		}
	}
	if _, err := tx.Exec(fmt.Sprintf(`DELETE FROM runs WHERE run_id IN (%s)`, old), keep); err != nil {
		return fmt.Errorf("prune runs: %w", err)
	}
	return tx.Commit()
}
