package workflow

import (
	"encoding/json"
	"fmt"
	"time"
)

// wire discriminators for the step union
const (
	stepKindAction = "action"
	stepKindWait   = "wait"
)

// stepEnvelope is the wire form of a step.
// Wait durations travel as whole seconds.
type stepEnvelope struct {
	Kind      string            `json:"kind"`
	Name      string            `json:"name,omitempty"`
	Operation string            `json:"operation,omitempty"`
	Params    map[string]string `json:"params,omitempty"`
	Seconds   int               `json:"seconds,omitempty"`
}

type workflowJSON struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Steps []stepEnvelope `json:"steps"`
}

// MarshalJSON marshals the workflow and its step union to JSON.
func (w *Workflow) MarshalJSON() ([]byte, error) {
	wj := workflowJSON{ID: w.ID, Name: w.Name}
	for i, step := range w.Steps {
		switch s := step.(type) {
		case *Action:
			wj.Steps = append(wj.Steps, stepEnvelope{
				Kind:      stepKindAction,
				Name:      s.Name,
				Operation: s.Operation,
				Params:    s.Params,
			})
		case *Wait:
			wj.Steps = append(wj.Steps, stepEnvelope{
				Kind:    stepKindWait,
				Name:    s.Name,
				Seconds: int(s.Duration / time.Second),
			})
		default:
			return nil, fmt.Errorf("step %d: %w: %T", i, ErrUnknownStepKind, step)
		}
	}
	return json.Marshal(&wj)
}

// UnmarshalJSON unmarshals the workflow and its step union from JSON.
func (w *Workflow) UnmarshalJSON(b []byte) error {
	var wj workflowJSON
	if err := json.Unmarshal(b, &wj); err != nil {
		return err
	}
	w.ID = wj.ID
	w.Name = wj.Name
	w.Steps = nil
	for i, env := range wj.Steps {
		switch env.Kind {
		case stepKindAction:
			w.Steps = append(w.Steps, &Action{
				Name:      env.Name,
				Operation: env.Operation,
				Params:    env.Params,
			})
		case stepKindWait:
			w.Steps = append(w.Steps, &Wait{
				Name:     env.Name,
				Duration: time.Duration(env.Seconds) * time.Second,
			})
		default:
			return fmt.Errorf("step %d: %w: %q", i, ErrUnknownStepKind, env.Kind)
		}
	}
	return nil
}
