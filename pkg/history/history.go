// Package history records per-run and per-device update outcomes in a local
// SQLite database so past runs can be inspected after log rotation.
package history

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	pkgerrors "github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// Recorder receives run lifecycle events. Implementations must tolerate
// being called for runs they did not create (id 0 is a valid no-op handle).
type Recorder interface {
	BeginRun(ctx context.Context, dryRun bool) (int64, error)
	RecordDevice(ctx context.Context, runID int64, ev DeviceEvent) error
	FinishRun(ctx context.Context, runID int64, totals RunTotals) error
}

// DeviceEvent is one device's outcome within a run.
type DeviceEvent struct {
	Device   string
	Outcome  string
	Reason   string
	Duration time.Duration
}

// RunTotals summarizes a finished run. Counts reflect the cumulative
// progress sets, matching the run summary the updater logs.
type RunTotals struct {
	Total   int
	Done    int
	Failed  int
	Skipped int
}

// RunRecord is one row of the runs table, for the history listing.
type RunRecord struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt time.Time
	DryRun     bool
	RunTotals
}

// Store is a Recorder backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the history database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, pkgerrors.Wrapf(err, "history: create dir %s", dir)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "history: open database")
	}
	if err := configure(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := prepareSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database location.
func (s *Store) Path() string { return s.path }

// BeginRun inserts a new run row and returns its id.
func (s *Store) BeginRun(ctx context.Context, dryRun bool) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (started_at, dry_run) VALUES (?, ?)`,
		time.Now().Unix(), boolInt(dryRun))
	if err != nil {
		return 0, pkgerrors.Wrap(err, "history: insert run")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, pkgerrors.Wrap(err, "history: run id")
	}
	return id, nil
}

// RecordDevice appends one device outcome to the run.
func (s *Store) RecordDevice(ctx context.Context, runID int64, ev DeviceEvent) error {
	if runID == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO device_events (run_id, device, outcome, reason, duration_ms, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		runID, ev.Device, ev.Outcome, ev.Reason, ev.Duration.Milliseconds(), time.Now().Unix())
	if err != nil {
		return pkgerrors.Wrap(err, "history: insert device event")
	}
	return nil
}

// FinishRun stamps the run row with its end time and totals.
func (s *Store) FinishRun(ctx context.Context, runID int64, totals RunTotals) error {
	if runID == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, total = ?, done = ?, failed = ?, skipped = ? WHERE id = ?`,
		time.Now().Unix(), totals.Total, totals.Done, totals.Failed, totals.Skipped, runID)
	if err != nil {
		return pkgerrors.Wrap(err, "history: finish run")
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, COALESCE(finished_at, 0), dry_run, total, done, failed, skipped
		 FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "history: query runs")
	}
	defer rows.Close()
	var out []RunRecord
	for rows.Next() {
		var rec RunRecord
		var started, finished, dryRun int64
		if err := rows.Scan(&rec.ID, &started, &finished, &dryRun,
			&rec.Total, &rec.Done, &rec.Failed, &rec.Skipped); err != nil {
			return nil, pkgerrors.Wrap(err, "history: scan run")
		}
		rec.StartedAt = time.Unix(started, 0)
		if finished > 0 {
			rec.FinishedAt = time.Unix(finished, 0)
		}
		rec.DryRun = dryRun != 0
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, pkgerrors.Wrap(err, "history: iterate runs")
	}
	return out, nil
}

// DeviceEvents returns the device outcomes of a run in insertion order.
func (s *Store) DeviceEvents(ctx context.Context, runID int64) ([]DeviceEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT device, outcome, reason, duration_ms FROM device_events WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "history: query device events")
	}
	defer rows.Close()
	var out []DeviceEvent
	for rows.Next() {
		var ev DeviceEvent
		var durationMS int64
		if err := rows.Scan(&ev.Device, &ev.Outcome, &ev.Reason, &durationMS); err != nil {
			return nil, pkgerrors.Wrap(err, "history: scan device event")
		}
		ev.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, pkgerrors.Wrap(err, "history: iterate device events")
	}
	return out, nil
}

func configure(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=10000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return pkgerrors.Wrapf(err, "history: execute %s", pragma)
		}
	}
	// Single writer; keep old connections from holding locks.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return nil
}

func prepareSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			started_at INTEGER NOT NULL,
			finished_at INTEGER,
			dry_run INTEGER NOT NULL DEFAULT 0,
			total INTEGER NOT NULL DEFAULT 0,
			done INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0,
			skipped INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS device_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id INTEGER NOT NULL,
			device TEXT NOT NULL,
			outcome TEXT NOT NULL,
			reason TEXT,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			recorded_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_device_events_run ON device_events(run_id);`,
		`CREATE INDEX IF NOT EXISTS idx_device_events_device ON device_events(device);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return pkgerrors.Wrap(err, "history: init schema")
		}
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
