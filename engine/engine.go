// Package engine implements the stepflow workflow orchestration engine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mobiq/stepflow/exec"
	"github.com/mobiq/stepflow/logkeys"
	"github.com/mobiq/stepflow/subsystem/history/storage"
	"github.com/mobiq/stepflow/workflow"

	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

var (
	ErrUnknownWorkflow = errors.New("unknown workflow")
	ErrNoExecutor      = errors.New("no step executor")
	ErrNoDevices       = errors.New("no devices")
	ErrUnsupportedStep = errors.New("unsupported step operation")
)

// DefaultStepDelay is the pause between consecutive steps of a run.
// The delay is skipped when the step on either side of the gap is a
// Wait step so two sleeps never compound.
const DefaultStepDelay = 2 * time.Second

// Engine drives workflows across device sets. Each started workflow
// gets its own run loop goroutine and its own lock; workflows make
// progress independently of one another.
type Engine struct {
	mu     sync.RWMutex
	states map[string]*state

	runner   exec.Runner
	executor *exec.Executor
	store    storage.Storage
	logger   log.Logger

	stepDelay time.Duration
}

// Options configure the engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger log.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithHistory configures recording of run history and device activity.
func WithHistory(store storage.Storage) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithStepDelay configures the delay between consecutive steps.
func WithStepDelay(d time.Duration) Option {
	return func(e *Engine) {
		e.stepDelay = d
	}
}

// New creates a new workflow engine dispatching steps through runner.
func New(runner exec.Runner, opts ...Option) *Engine {
	engine := &Engine{
		states:    make(map[string]*state),
		runner:    runner,
		logger:    log.NopLogger,
		stepDelay: DefaultStepDelay,
	}
	for _, opt := range opts {
		opt(engine)
	}
	engine.executor = exec.NewExecutor(runner, exec.WithLogger(engine.logger))
	return engine
}

func (e *Engine) state(workflowID string) *state {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.states[workflowID]
}

// Start begins executing w against devices under the given repeat
// bounds. If the workflow is already executing, its active run is
// cancelled first and the new execution begins once the old loop has
// wound down. w must not be mutated while the workflow executes.
func (e *Engine) Start(ctx context.Context, w *workflow.Workflow, devices []string, rep Repeat, resolver workflow.ParamResolver) error {
	if err := w.Validate(); err != nil {
		return err
	}

	logger := ctxlog.Logger(ctx, e.logger).With(
		logkeys.WorkflowID, w.ID,
		logkeys.WorkflowName, w.Name,
	)

	if e.runner == nil {
		return e.refuse(w, logger, ErrNoExecutor)
	}
	ids := dedupe(devices)
	if len(ids) < 1 {
		return e.refuse(w, logger, ErrNoDevices)
	}
	for _, op := range w.Operations() {
		if !e.runner.Supports(op) {
			return e.refuse(w, logger, fmt.Errorf("%w: %s", ErrUnsupportedStep, op))
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	st := newState(w.ID, w.Name, cancel)

	e.mu.Lock()
	prev := e.states[w.ID]
	e.states[w.ID] = st
	e.mu.Unlock()

	var prevDone <-chan struct{}
	if prev != nil {
		prev.requestStop()
		prevDone = prev.done
	}

	logger.Debug(
		logkeys.Message, "starting workflow",
		logkeys.GenericCount, len(ids),
		logkeys.FirstDeviceID, ids[0],
		"repeat_count", rep.Count,
		"repeat_duration", rep.Duration,
	)

	go e.run(runCtx, st, prevDone, w, ids, rep, resolver)
	return nil
}

// refuse records a start attempt stopped by a precondition.
// A live execution's state is left untouched.
func (e *Engine) refuse(w *workflow.Workflow, logger log.Logger, err error) error {
	logger.Info(logkeys.Message, "starting workflow", logkeys.Error, err)
	st := newFailedState(w.ID, w.Name, fmt.Sprintf("workflow failed to start: %v", err))
	e.mu.Lock()
	if prev := e.states[w.ID]; prev == nil || !prev.snapshot().Running {
		e.states[w.ID] = st
	}
	e.mu.Unlock()
	return err
}

// Pause suspends the workflow's run loop at its next step boundary.
// Pausing an already-paused workflow is a no-op.
func (e *Engine) Pause(ctx context.Context, workflowID string) error {
	st := e.state(workflowID)
	if st == nil {
		return fmt.Errorf("%w: %s", ErrUnknownWorkflow, workflowID)
	}
	if st.requestPause() {
		ctxlog.Logger(ctx, e.logger).Debug(
			logkeys.Message, "pausing workflow",
			logkeys.WorkflowID, workflowID,
		)
	}
	return nil
}

// Resume releases a paused workflow.
// Resuming a workflow that is not paused is a no-op.
func (e *Engine) Resume(ctx context.Context, workflowID string) error {
	st := e.state(workflowID)
	if st == nil {
		return fmt.Errorf("%w: %s", ErrUnknownWorkflow, workflowID)
	}
	if st.requestResume() {
		ctxlog.Logger(ctx, e.logger).Debug(
			logkeys.Message, "resuming workflow",
			logkeys.WorkflowID, workflowID,
		)
	}
	return nil
}

// Stop cancels the workflow's active run. In-flight step calls are
// aborted and the run is never recorded. Stopping a workflow that is
// not executing is a no-op.
func (e *Engine) Stop(ctx context.Context, workflowID string) error {
	st := e.state(workflowID)
	if st == nil {
		return fmt.Errorf("%w: %s", ErrUnknownWorkflow, workflowID)
	}
	if st.requestStop() {
		ctxlog.Logger(ctx, e.logger).Debug(
			logkeys.Message, "stopping workflow",
			logkeys.WorkflowID, workflowID,
		)
	}
	return nil
}

// Running reports whether the workflow currently has a live run loop.
func (e *Engine) Running(workflowID string) bool {
	st := e.state(workflowID)
	return st != nil && st.snapshot().Running
}

// Paused reports whether the workflow is paused or pausing.
func (e *Engine) Paused(workflowID string) bool {
	st := e.state(workflowID)
	return st != nil && st.snapshot().Paused
}

// ActiveStep returns the index of the step the workflow most recently
// executed, or zero for workflows never started.
func (e *Engine) ActiveStep(workflowID string) int {
	if st := e.state(workflowID); st != nil {
		return st.snapshot().ActiveStep
	}
	return 0
}

// CompletedSteps returns how many steps of the current (or last) run
// have completed.
func (e *Engine) CompletedSteps(workflowID string) int {
	if st := e.state(workflowID); st != nil {
		return st.snapshot().CompletedSteps
	}
	return 0
}

// StatusMessage returns the human-readable execution status message.
func (e *Engine) StatusMessage(workflowID string) string {
	if st := e.state(workflowID); st != nil {
		return st.snapshot().StatusMessage
	}
	return ""
}

// Status returns the workflow's lifecycle status.
// Workflows never started report StatusIdle.
func (e *Engine) Status(workflowID string) Status {
	if st := e.state(workflowID); st != nil {
		return st.snapshot().Status
	}
	return StatusIdle
}

// Snapshot returns the full execution state of a workflow.
func (e *Engine) Snapshot(workflowID string) (*Snapshot, error) {
	st := e.state(workflowID)
	if st == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorkflow, workflowID)
	}
	snap := st.snapshot()
	return &snap, nil
}
