// Package mysql implements a MySQL history storage backend.
package mysql

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/mobiq/stepflow/subsystem/history/storage"
)

// Schema contains the MySQL schema for the history storage.
//
//go:embed schema.sql
var Schema string

const timestampFormat = "2006-01-02 15:04:05"

// MySQLStorage implements a storage.AllStorage using MySQL.
type MySQLStorage struct {
	db *sql.DB
}

type config struct {
	driver string
	dsn    string
	db     *sql.DB
}

// Option allows configuring a MySQLStorage.
type Option func(*config)

// WithDSN sets the storage MySQL data source name.
func WithDSN(dsn string) Option {
	return func(c *config) {
		c.dsn = dsn
	}
}

// WithDriver sets a custom MySQL driver for the storage.
//
// Default driver is "mysql".
// Value is ignored if WithDB is used.
func WithDriver(driver string) Option {
	return func(c *config) {
		c.driver = driver
	}
}

// WithDB sets a custom MySQL *sql.DB to the storage.
//
// If set, driver passed via WithDriver is ignored.
func WithDB(db *sql.DB) Option {
	return func(c *config) {
		c.db = db
	}
}

// New creates and returns a new MySQLStorage.
func New(opts ...Option) (*MySQLStorage, error) {
	cfg := &config{driver: "mysql"}
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
	return &MySQLStorage{db: cfg.db}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// RecordWorkflowRun appends a run-level history record to MySQL.
func (s *MySQLStorage) RecordWorkflowRun(ctx context.Context, run *storage.WorkflowRun) error {
	if err := run.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(
		ctx, `
INSERT INTO workflow_runs
	(workflow_id, timestamp)
VALUES
	(?, ?);`,
		run.WorkflowID,
		run.Timestamp.UTC().Format(timestampFormat),
	)
	return err
}

// RecordDeviceRun appends a device-level history record to MySQL.
func (s *MySQLStorage) RecordDeviceRun(ctx context.Context, run *storage.DeviceRun) error {
	if err := run.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(
		ctx, `
INSERT INTO device_runs
	(device_id, workflow_id, workflow_name, timestamp)
VALUES
	(?, ?, ?, ?);`,
		run.DeviceID,
		run.WorkflowID,
		run.WorkflowName,
		run.Timestamp.UTC().Format(timestampFormat),
	)
	return err
}

// AppendActivity appends a device activity entry to MySQL.
func (s *MySQLStorage) AppendActivity(ctx context.Context, activity *storage.Activity) error {
	if err := activity.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(
		ctx, `
INSERT INTO device_activity
	(device_id, type, label, status, reference_id, timestamp, details)
VALUES
	(?, ?, ?, ?, ?, ?, ?);`,
		activity.DeviceID,
		activity.Type,
		activity.Label,
		string(activity.Status),
		nullString(activity.ReferenceID),
		activity.Timestamp.UTC().Format(timestampFormat),
		nullString(activity.Details),
	)
	return err
}

// RetrieveWorkflowRuns returns run records for a workflow from MySQL,
// most recent first.
func (s *MySQLStorage) RetrieveWorkflowRuns(ctx context.Context, workflowID string, opt *storage.SearchOptions) ([]storage.WorkflowRun, error) {
	if workflowID == "" {
		return nil, storage.ErrNoWorkflowID
	}
	rows, err := s.db.QueryContext(
		ctx, `
SELECT workflow_id, timestamp
FROM workflow_runs
WHERE workflow_id = ?
ORDER BY timestamp DESC, id DESC
LIMIT ?;`,
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
		var ts string
		if err = rows.Scan(&run.WorkflowID, &ts); err != nil {
			return runs, err
		}
		if run.Timestamp, err = time.Parse(timestampFormat, ts); err != nil {
			return runs, fmt.Errorf("parse timestamp: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// RetrieveDeviceRuns returns run records for a device from MySQL,
// most recent first.
func (s *MySQLStorage) RetrieveDeviceRuns(ctx context.Context, deviceID string, opt *storage.SearchOptions) ([]storage.DeviceRun, error) {
	if deviceID == "" {
		return nil, storage.ErrNoDeviceID
	}
	rows, err := s.db.QueryContext(
		ctx, `
SELECT device_id, workflow_id, workflow_name, timestamp
FROM device_runs
WHERE device_id = ?
ORDER BY timestamp DESC, id DESC
LIMIT ?;`,
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
		var ts string
		if err = rows.Scan(&run.DeviceID, &run.WorkflowID, &run.WorkflowName, &ts); err != nil {
			return runs, err
		}
		if run.Timestamp, err = time.Parse(timestampFormat, ts); err != nil {
			return runs, fmt.Errorf("parse timestamp: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// RetrieveActivity returns activity entries for a device from MySQL,
// most recent first.
func (s *MySQLStorage) RetrieveActivity(ctx context.Context, deviceID string, opt *storage.SearchOptions) ([]storage.Activity, error) {
	if deviceID == "" {
		return nil, storage.ErrNoDeviceID
	}
	rows, err := s.db.QueryContext(
		ctx, `
SELECT device_id, type, label, status, reference_id, timestamp, details
FROM device_activity
WHERE device_id = ?
ORDER BY timestamp DESC, id DESC
LIMIT ?;`,
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
		var status, ts string
		var refID, details sql.NullString
		if err = rows.Scan(&entry.DeviceID, &entry.Type, &entry.Label, &status, &refID, &ts, &details); err != nil {
			return entries, err
		}
		entry.Status = storage.Status(status)
		entry.ReferenceID = refID.String
		entry.Details = details.String
		if entry.Timestamp, err = time.Parse(timestampFormat, ts); err != nil {
			return entries, fmt.Errorf("parse timestamp: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// DeleteRecordsBefore removes history and activity records older than
// cutoff from MySQL.
func (s *MySQLStorage) DeleteRecordsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	ts := cutoff.UTC().Format(timestampFormat)
	var total int64
	for _, table := range []string{"workflow_runs", "device_runs", "device_activity"} {
		result, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE timestamp < ?;`, ts)
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
