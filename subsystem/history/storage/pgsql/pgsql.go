// Package pgsql implements a PostgreSQL history storage backend.
package pgsql

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/mobiq/stepflow/subsystem/history/storage"
)

// Schema contains the PostgreSQL schema for the history storage.
//
//go:embed schema.sql
var Schema string

// PgSQLStorage implements a storage.AllStorage using PostgreSQL.
type PgSQLStorage struct {
	db *sql.DB
}

type config struct {
	driver string
	dsn    string
	db     *sql.DB
}

// Option allows configuring a PgSQLStorage.
type Option func(*config)

// WithDSN sets the storage PostgreSQL data source name.
func WithDSN(dsn string) Option {
	return func(c *config) {
		c.dsn = dsn
	}
}

// WithDriver sets a custom PostgreSQL driver for the storage.
//
// Default driver is "pgx".
// Value is ignored if WithDB is used.
func WithDriver(driver string) Option {
	return func(c *config) {
		c.driver = driver
	}
}

// WithDB sets a custom PostgreSQL *sql.DB to the storage.
//
// If set, driver passed via WithDriver is ignored.
func WithDB(db *sql.DB) Option {
	return func(c *config) {
		c.db = db
	}
}

// New creates and returns a new PgSQLStorage.
func New(opts ...Option) (*PgSQLStorage, error) {
	cfg := &config{driver: "pgx"}
	for _, opt := range opts {
		opt(cfg)
	}
	var err error
	if cfg.db == nil {
		cfg.db, err = sql.Open(cfg.driver, cfg.dsn)
		if err != nil {
			return nil, err
		}
	}
	if err = cfg.db.Ping(); err != nil {
		return nil, err
	}
	return &PgSQLStorage{db: cfg.db}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// RecordWorkflowRun appends a run-level history record to PostgreSQL.
func (s *PgSQLStorage) RecordWorkflowRun(ctx context.Context, run *storage.WorkflowRun) error {
	if err := run.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(
		ctx, `
INSERT INTO workflow_runs
	(workflow_id, timestamp)
VALUES
	($1, $2);`,
		run.WorkflowID,
		run.Timestamp.UTC(),
	)
	return err
}

// RecordDeviceRun appends a device-level history record to PostgreSQL.
func (s *PgSQLStorage) RecordDeviceRun(ctx context.Context, run *storage.DeviceRun) error {
	if err := run.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(
		ctx, `
INSERT INTO device_runs
	(device_id, workflow_id, workflow_name, timestamp)
VALUES
	($1, $2, $3, $4);`,
		run.DeviceID,
		run.WorkflowID,
		run.WorkflowName,
		run.Timestamp.UTC(),
	)
	return err
}

// AppendActivity appends a device activity entry to PostgreSQL.
func (s *PgSQLStorage) AppendActivity(ctx context.Context, activity *storage.Activity) error {
	if err := activity.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(
		ctx, `
INSERT INTO device_activity
	(device_id, type, label, status, reference_id, timestamp, details)
VALUES
	($1, $2, $3, $4, $5, $6, $7);`,
		activity.DeviceID,
		activity.Type,
		activity.Label,
		string(activity.Status),
		nullString(activity.ReferenceID),
		activity.Timestamp.UTC(),
		nullString(activity.Details),
	)
	return err
}

// RetrieveWorkflowRuns returns run records for a workflow from
// PostgreSQL, most recent first.
func (s *PgSQLStorage) RetrieveWorkflowRuns(ctx context.Context, workflowID string, opt *storage.SearchOptions) ([]storage.WorkflowRun, error) {
	if workflowID == "" {
		return nil, storage.ErrNoWorkflowID
	}
	rows, err := s.db.QueryContext(
		ctx, `
SELECT workflow_id, timestamp
FROM workflow_runs
WHERE workflow_id = $1
ORDER BY timestamp DESC, id DESC
LIMIT $2;`,
		workflowID,
		opt.Limited(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var runs []storage.WorkflowRun
	for rows.Next() {
		var run storage.WorkflowRun
		if err = rows.Scan(&run.WorkflowID, &run.Timestamp); err != nil {
			return runs, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// RetrieveDeviceRuns returns run records for a device from PostgreSQL,
// most recent first.
func (s *PgSQLStorage) RetrieveDeviceRuns(ctx context.Context, deviceID string, opt *storage.SearchOptions) ([]storage.DeviceRun, error) {
	if deviceID == "" {
		return nil, storage.ErrNoDeviceID
	}
	rows, err := s.db.QueryContext(
		ctx, `
SELECT device_id, workflow_id, workflow_name, timestamp
FROM device_runs
WHERE device_id = $1
ORDER BY timestamp DESC, id DESC
LIMIT $2;`,
		deviceID,
		opt.Limited(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var runs []storage.DeviceRun
	for rows.Next() {
		var run storage.DeviceRun
		if err = rows.Scan(&run.DeviceID, &run.WorkflowID, &run.WorkflowName, &run.Timestamp); err != nil {
			return runs, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// RetrieveActivity returns activity entries for a device from
// PostgreSQL, most recent first.
func (s *PgSQLStorage) RetrieveActivity(ctx context.Context, deviceID string, opt *storage.SearchOptions) ([]storage.Activity, error) {
	if deviceID == "" {
		return nil, storage.ErrNoDeviceID
	}
	rows, err := s.db.QueryContext(
		ctx, `
SELECT device_id, type, label, status, reference_id, timestamp, details
FROM device_activity
WHERE device_id = $1
ORDER BY timestamp DESC, id DESC
LIMIT $2;`,
		deviceID,
		opt.Limited(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []storage.Activity
	for rows.Next() {
		var entry storage.Activity
		var status string
		var refID, details sql.NullString
		if err = rows.Scan(&entry.DeviceID, &entry.Type, &entry.Label, &status, &refID, &entry.Timestamp, &details); err != nil {
			return entries, err
		}
		entry.Status = storage.Status(status)
		entry.ReferenceID = refID.String
		entry.Details = details.String
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// DeleteRecordsBefore removes history and activity records older than
// cutoff from PostgreSQL.
func (s *PgSQLStorage) DeleteRecordsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	var total int64
	for _, table := range []string{"workflow_runs", "device_runs", "device_activity"} {
		result, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE timestamp < $1;`, cutoff.UTC())
		if err != nil {
			return int(total), fmt.Errorf("deleting from %s: %w", table, err)
		}
		count, err := result.RowsAffected()
		if err != nil {
			return int(total), fmt.Errorf("rows affected for %s: %w", table, err)
		}
		total += count
	}
	return int(total), nil
}
