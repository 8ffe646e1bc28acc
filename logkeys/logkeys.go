// Package logkeys defines some static logging keys for consistent structured logging output.
// Mostly exists as a mental aid when drafting log messages.
package logkeys

const (
	Message = "msg"
	Error   = "err"

	// a device identifier targeted by a workflow
	DeviceID = "id"

	// in cases where we might need to log multiple device IDs but only
	// want to log the first (to avoid massive lists in logs).
	FirstDeviceID = "id_first"

	WorkflowID   = "workflow_id"
	WorkflowName = "workflow_name"
	StepName     = "step_name"

	// one-based ordinal of a run within a repeating workflow
	RunIndex = "run_index"

	// a step executor backend operation name
	Operation = "operation"

	// a context-dependent numerical count/length of something
	GenericCount = "count"
)
