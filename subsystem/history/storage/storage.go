// Package storage defines types and interfaces to support workflow run history.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ActivityTypeWorkflow is the activity entry type for workflow runs.
const ActivityTypeWorkflow = "workflow"

// DefaultLimit caps retrieval queries that do not set their own limit.
const DefaultLimit = 50

var (
	ErrEmptyRecord   = errors.New("empty record")
	ErrNoDeviceID    = errors.New("no device ID")
	ErrNoWorkflowID  = errors.New("no workflow ID")
	ErrInvalidStatus = errors.New("invalid status")
)

// Status is the success or failure disposition of an activity entry.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusSuccess || s == StatusFailure
}

// WorkflowRun records one completed run of a workflow.
type WorkflowRun struct {
	WorkflowID string    `json:"workflow_id"`
	Timestamp  time.Time `json:"timestamp"`
}

func (r *WorkflowRun) Validate() error {
	if r == nil {
		return ErrEmptyRecord
	}
	if r.WorkflowID == "" {
		return ErrNoWorkflowID
	}
	return nil
}

// DeviceRun records that a device successfully completed a workflow run.
type DeviceRun struct {
	DeviceID     string    `json:"device_id"`
	WorkflowID   string    `json:"workflow_id"`
	WorkflowName string    `json:"workflow_name"`
	Timestamp    time.Time `json:"timestamp"`
}

func (r *DeviceRun) Validate() error {
	if r == nil {
		return ErrEmptyRecord
	}
	if r.DeviceID == "" {
		return ErrNoDeviceID
	}
	if r.WorkflowID == "" {
		return ErrNoWorkflowID
	}
	return nil
}

// Activity is a per-device activity log entry.
// ReferenceID links the entry back to its subject. For workflow run
// entries it is the workflow ID.
type Activity struct {
	DeviceID    string    `json:"device_id"`
	Type        string    `json:"type"`
	Label       string    `json:"label"`
	Status      Status    `json:"status"`
	ReferenceID string    `json:"reference_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Details     string    `json:"details,omitempty"`
}

func (a *Activity) Validate() error {
	if a == nil {
		return ErrEmptyRecord
	}
	if a.DeviceID == "" {
		return ErrNoDeviceID
	}
	if !a.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, a.Status)
	}
	return nil
}

// SearchOptions is a basic query for history records.
type SearchOptions struct {
	Limit int // maximum records returned; DefaultLimit if not positive
}

// Limited returns the effective record limit for opt. Accepts nil.
func (opt *SearchOptions) Limited() int {
	if opt == nil || opt.Limit < 1 {
		return DefaultLimit
	}
	return opt.Limit
}

type Storage interface {
	// RecordWorkflowRun appends a run-level history record.
	RecordWorkflowRun(ctx context.Context, run *WorkflowRun) error

	// RecordDeviceRun appends a device-level history record.
	RecordDeviceRun(ctx context.Context, run *DeviceRun) error

	// AppendActivity appends a device activity log entry.
	AppendActivity(ctx context.Context, activity *Activity) error
}

type ReadStorage interface {
	// RetrieveWorkflowRuns returns run records for a workflow, most recent first.
	RetrieveWorkflowRuns(ctx context.Context, workflowID string, opt *SearchOptions) ([]WorkflowRun, error)

	// RetrieveDeviceRuns returns run records for a device, most recent first.
	RetrieveDeviceRuns(ctx context.Context, deviceID string, opt *SearchOptions) ([]DeviceRun, error)

	// RetrieveActivity returns activity entries for a device, most recent first.
	RetrieveActivity(ctx context.Context, deviceID string, opt *SearchOptions) ([]Activity, error)
}

type PruneStorage interface {
	// DeleteRecordsBefore removes history and activity records older
	// than cutoff and returns how many were removed.
	DeleteRecordsBefore(ctx context.Context, cutoff time.Time) (int, error)
}

type AllStorage interface {
	Storage
	ReadStorage
	PruneStorage
}
