package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyWorkflow is returned when validating a nil workflow.
	ErrEmptyWorkflow = errors.New("empty workflow")

	ErrMissingID   = errors.New("missing workflow id")
	ErrMissingName = errors.New("missing workflow name")
	ErrNoSteps     = errors.New("workflow has no steps")
)

// Workflow is a named ordered sequence of steps driven across devices.
type Workflow struct {
	ID    string
	Name  string
	Steps []Step
}

// Validate checks for missing values and validates each step.
func (w *Workflow) Validate() error {
	if w == nil {
		return ErrEmptyWorkflow
	}
	if w.ID == "" {
		return ErrMissingID
	}
	if w.Name == "" {
		return ErrMissingName
	}
	if len(w.Steps) < 1 {
		return ErrNoSteps
	}
	for i, step := range w.Steps {
		if step == nil {
			return fmt.Errorf("step %d: %w", i, ErrEmptyStep)
		}
		if err := step.Validate(); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
	}
	return nil
}

// Operations returns the distinct backend operations of the action steps.
// Order of first use is preserved.
func (w *Workflow) Operations() []string {
	if w == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var ops []string
	for _, step := range w.Steps {
		action, ok := step.(*Action)
		if !ok {
			continue
		}
		if _, ok := seen[action.Operation]; ok {
			continue
		}
		seen[action.Operation] = struct{}{}
		ops = append(ops, action.Operation)
	}
	return ops
}
