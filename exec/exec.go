// Package exec dispatches workflow actions to a step executor backend.
package exec

import (
	"context"
	"errors"
)

var (
	// ErrUnsupportedOperation occurs when an operation is not in the
	// backend's catalog.
	ErrUnsupportedOperation = errors.New("unsupported operation")

	ErrEmptyRequest     = errors.New("empty request")
	ErrMissingDeviceID  = errors.New("missing device id")
	ErrMissingOperation = errors.New("missing operation")
)

// Request is a single operation dispatch for one device.
type Request struct {
	DeviceID  string            `json:"device_id"`
	Operation string            `json:"operation_id"`
	Params    map[string]string `json:"parameters,omitempty"`

	// run metadata, for backend-side logging and correlation
	WorkflowID   string `json:"workflow_id,omitempty"`
	WorkflowName string `json:"workflow_name,omitempty"`
	RunIndex     int    `json:"run_index,omitempty"`
}

// Validate checks for missing values.
func (r *Request) Validate() error {
	if r == nil {
		return ErrEmptyRequest
	}
	if r.DeviceID == "" {
		return ErrMissingDeviceID
	}
	if r.Operation == "" {
		return ErrMissingOperation
	}
	return nil
}

// Response is the backend's report for a single dispatch.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Runners execute a single operation on a single device.
type Runner interface {
	// Run performs the operation described by req.
	// A non-nil error means the dispatch itself failed; an unsuccessful
	// Response means the backend (or device) reported failure.
	Run(ctx context.Context, req *Request) (*Response, error)

	// Supports reports whether operation can be dispatched.
	Supports(operation string) bool
}

// Outcome is the per-device result of one dispatched step.
type Outcome struct {
	Success   bool
	Cancelled bool
	Message   string
}

// Failed reports whether the outcome is a genuine failure.
// Cancelled outcomes are not failures.
func (o Outcome) Failed() bool {
	return !o.Success && !o.Cancelled
}
