package exec

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mobiq/stepflow/logkeys"
	"github.com/mobiq/stepflow/workflow"

	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

// RunInfo identifies the run a dispatch belongs to.
type RunInfo struct {
	WorkflowID   string
	WorkflowName string
	RunIndex     int
}

// StepDispatch describes one action step dispatched across a device set.
type StepDispatch struct {
	RunInfo
	Action    *workflow.Action
	DeviceIDs []string

	// Resolver resolves action parameter templates per device.
	// Parameters are passed through untouched when nil.
	Resolver workflow.ParamResolver
}

// Executor fans workflow actions out to devices through a Runner.
type Executor struct {
	runner Runner
	logger log.Logger
}

type Option func(*Executor)

// WithLogger sets the executor logger.
func WithLogger(logger log.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// NewExecutor creates a new executor dispatching through runner.
func NewExecutor(runner Runner, opts ...Option) *Executor {
	e := &Executor{
		runner: runner,
		logger: log.NopLogger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecuteStep runs the action on every device in the dispatch.
// Devices are dispatched concurrently and all outcomes are collected
// before returning: a failure on one device never short-circuits the
// others. The returned map has an outcome for every device ID.
func (e *Executor) ExecuteStep(ctx context.Context, step *StepDispatch) map[string]Outcome {
	outcomes := make(map[string]Outcome, len(step.DeviceIDs))

	if e.runner == nil || !e.runner.Supports(step.Action.Operation) {
		// fail every device without touching the network
		msg := fmt.Sprintf("%v: %s", ErrUnsupportedOperation, step.Action.Operation)
		for _, id := range step.DeviceIDs {
			outcomes[id] = Outcome{Message: msg}
		}
		return outcomes
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, id := range step.DeviceIDs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			outcome := e.runOne(ctx, step, id)
			mu.Lock()
			outcomes[id] = outcome
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	failed := 0
	for _, outcome := range outcomes {
		if outcome.Failed() {
			failed++
		}
	}
	logs := []interface{}{
		logkeys.Message, "dispatched step",
		logkeys.WorkflowName, step.WorkflowName,
		logkeys.StepName, step.Action.StepName(),
		logkeys.Operation, step.Action.Operation,
		logkeys.GenericCount, len(step.DeviceIDs),
		"failed", failed,
	}
	if len(step.DeviceIDs) > 0 {
		logs = append(logs, logkeys.FirstDeviceID, step.DeviceIDs[0])
	}
	ctxlog.Logger(ctx, e.logger).Debug(logs...)

	return outcomes
}

// runOne resolves parameters for and dispatches the action to a single device.
func (e *Executor) runOne(ctx context.Context, step *StepDispatch, id string) Outcome {
	params := step.Action.Params
	if step.Resolver != nil {
		var err error
		params, err = step.Resolver.Resolve(id, step.Action.Params)
		if err != nil {
			return Outcome{Message: fmt.Sprintf("resolving parameters: %v", err)}
		}
	}

	resp, err := e.runner.Run(ctx, &Request{
		DeviceID:     id,
		Operation:    step.Action.Operation,
		Params:       params,
		WorkflowID:   step.WorkflowID,
		WorkflowName: step.WorkflowName,
		RunIndex:     step.RunIndex,
	})
	switch {
	case errors.Is(err, context.Canceled) || ctx.Err() == context.Canceled:
		return Outcome{Cancelled: true, Message: "run cancelled"}
	case err != nil:
		return Outcome{Message: err.Error()}
	case resp == nil:
		return Outcome{Message: "empty response from backend"}
	case !resp.Success:
		msg := resp.Message
		if msg == "" {
			msg = "backend reported failure"
		}
		return Outcome{Message: msg}
	}
	return Outcome{Success: true, Message: resp.Message}
}
