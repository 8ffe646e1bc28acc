package workflow

import (
	"errors"
	"time"
)

// MinWait and MaxWait bound the duration of a wait step.
// Out-of-range waits are clamped into this range, not rejected.
const (
	MinWait = time.Second
	MaxWait = 600 * time.Second
)

var (
	// ErrEmptyStep is returned when validating a nil step.
	ErrEmptyStep = errors.New("empty step")

	// ErrMissingOperation occurs when an action step has no backend operation.
	ErrMissingOperation = errors.New("missing step operation")

	// ErrUnknownStepKind occurs when unmarshaling a step kind
	// this package does not know about.
	ErrUnknownStepKind = errors.New("unknown step kind")
)

// Step is a single unit of work within a workflow.
type Step interface {
	// StepName returns the name of the step for logs and history.
	StepName() string

	// Validate checks the step for missing values.
	Validate() error
}

// Action is a step bound to an operation on the step executor backend.
type Action struct {
	Name      string
	Operation string

	// Params are operation parameters sent to the backend. Values may
	// reference template variables that are resolved per device before
	// dispatch. See ParamResolver.
	Params map[string]string
}

// StepName returns the step name, falling back to the operation.
func (s *Action) StepName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Operation
}

// Validate checks for missing values.
func (s *Action) Validate() error {
	if s == nil {
		return ErrEmptyStep
	}
	if s.Operation == "" {
		return ErrMissingOperation
	}
	return nil
}

// Wait is a step that pauses a run before the following step.
type Wait struct {
	Name     string
	Duration time.Duration
}

// StepName returns the step name, falling back to "wait".
func (s *Wait) StepName() string {
	if s.Name != "" {
		return s.Name
	}
	return "wait"
}

// Validate checks for missing values.
// The duration is not validated as it is clamped at run time.
func (s *Wait) Validate() error {
	if s == nil {
		return ErrEmptyStep
	}
	return nil
}

// Bounded returns the wait duration clamped to [MinWait, MaxWait].
func (s *Wait) Bounded() time.Duration {
	if s.Duration < MinWait {
		return MinWait
	}
	if s.Duration > MaxWait {
		return MaxWait
	}
	return s.Duration
}
