package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mobiq/stepflow/exec"
	"github.com/mobiq/stepflow/logkeys"
	"github.com/mobiq/stepflow/subsystem/history/storage"
	"github.com/mobiq/stepflow/workflow"
)

var errRunCancelled = errors.New("run cancelled")

// runAttempt tracks per-device outcomes for one pass through a
// workflow. Devices start successful and are downgraded by the first
// failing step; later steps are still dispatched to them.
type runAttempt struct {
	index   int      // 1-based run index
	ids     []string // the device set, fixed for this run
	reasons map[string][]string
}

func newRunAttempt(index int, ids []string) *runAttempt {
	return &runAttempt{
		index:   index,
		ids:     ids,
		reasons: make(map[string][]string),
	}
}

func (a *runAttempt) fail(id, reason string) {
	a.reasons[id] = append(a.reasons[id], reason)
}

func (a *runAttempt) failedCount() int {
	return len(a.reasons)
}

// summary is the per-run status message.
func (a *runAttempt) summary() string {
	if a.failedCount() > 0 {
		return fmt.Sprintf("run %d completed, %d of %d devices failed", a.index, a.failedCount(), len(a.ids))
	}
	return fmt.Sprintf("run %d completed successfully", a.index)
}

// run is a workflow's run loop. Exactly one run loop is live per
// state; prevDone, when non-nil, is the done channel of the loop this
// one superseded and must be drained before the first run starts.
func (e *Engine) run(ctx context.Context, st *state, prevDone <-chan struct{}, w *workflow.Workflow, ids []string, rep Repeat, resolver workflow.ParamResolver) {
	defer st.finish()

	logger := e.logger.With(
		logkeys.WorkflowID, w.ID,
		logkeys.WorkflowName, w.Name,
	)

	defer func() {
		if r := recover(); r != nil {
			logger.Info(logkeys.Message, "run loop panic", logkeys.Error, fmt.Errorf("%v", r))
			st.setFailed(fmt.Sprintf("workflow failed: %v", r))
		}
	}()

	if prevDone != nil {
		select {
		case <-prevDone:
		case <-ctx.Done():
			st.setCancelled()
			return
		}
	}

	began := time.Now()
	completed := 0
	for {
		attempt := newRunAttempt(completed+1, ids)
		if err := e.runOnce(ctx, st, attempt, w, resolver); err != nil {
			st.setCancelled()
			logger.Debug(
				logkeys.Message, "run cancelled",
				logkeys.RunIndex, attempt.index,
			)
			return
		}
		completed++
		e.recordRun(w, attempt)
		st.runDone(attempt.summary())
		logger.Debug(
			logkeys.Message, "run completed",
			logkeys.RunIndex, attempt.index,
			"failed", attempt.failedCount(),
		)
		if !rep.Continue(completed, began, time.Now()) {
			st.setCompleted()
			return
		}
		if ctx.Err() != nil {
			st.setCancelled()
			return
		}
	}
}

// runOnce drives one pass through the workflow's steps.
// Returns errRunCancelled if the run was stopped before finishing.
func (e *Engine) runOnce(ctx context.Context, st *state, attempt *runAttempt, w *workflow.Workflow, resolver workflow.ParamResolver) error {
	st.runBegin()
	steps := w.Steps
	for i, step := range steps {
		// a pause parks here; a stop aborts here at the latest
		if !st.pauseGate(ctx) {
			return errRunCancelled
		}

		switch s := step.(type) {
		case *workflow.Wait:
			st.stepBegin(i, fmt.Sprintf("waiting %s", s.Bounded()))
			if err := sleepContext(ctx, s.Bounded()); err != nil {
				return errRunCancelled
			}
		case *workflow.Action:
			st.stepBegin(i, fmt.Sprintf("running step %q on %d devices", step.StepName(), len(attempt.ids)))
			outcomes := e.executor.ExecuteStep(ctx, &exec.StepDispatch{
				RunInfo: exec.RunInfo{
					WorkflowID:   w.ID,
					WorkflowName: w.Name,
					RunIndex:     attempt.index,
				},
				Action:    s,
				DeviceIDs: attempt.ids,
				Resolver:  resolver,
			})
			cancelled := ctx.Err() != nil
			for _, id := range attempt.ids {
				outcome := outcomes[id]
				if outcome.Cancelled {
					cancelled = true
					continue
				}
				if outcome.Failed() {
					attempt.fail(id, fmt.Sprintf("step %d (%s): %s", i+1, step.StepName(), outcome.Message))
				}
			}
			if cancelled {
				return errRunCancelled
			}
		}
		st.stepDone()

		// fixed delay between steps, skipped around Wait steps so two
		// sleeps never compound
		if i < len(steps)-1 && e.stepDelay > 0 && !isWait(step) && !isWait(steps[i+1]) {
			if err := sleepContext(ctx, e.stepDelay); err != nil {
				return errRunCancelled
			}
		}
	}
	return nil
}

// recordRun emits history and activity records for a completed run.
// Cancelled runs are never recorded. Persistence failures are logged
// and do not affect the run.
func (e *Engine) recordRun(w *workflow.Workflow, attempt *runAttempt) {
	if e.store == nil {
		return
	}
	ctx := context.Background()
	now := time.Now().UTC()
	logger := e.logger.With(
		logkeys.WorkflowID, w.ID,
		logkeys.WorkflowName, w.Name,
		logkeys.RunIndex, attempt.index,
	)

	err := e.store.RecordWorkflowRun(ctx, &storage.WorkflowRun{
		WorkflowID: w.ID,
		Timestamp:  now,
	})
	if err != nil {
		logger.Info(logkeys.Message, "recording workflow run", logkeys.Error, err)
	}

	for _, id := range attempt.ids {
		reasons := attempt.reasons[id]
		if len(reasons) < 1 {
			err = e.store.RecordDeviceRun(ctx, &storage.DeviceRun{
				DeviceID:     id,
				WorkflowID:   w.ID,
				WorkflowName: w.Name,
				Timestamp:    now,
			})
			if err != nil {
				logger.Info(logkeys.Message, "recording device run", logkeys.DeviceID, id, logkeys.Error, err)
			}
		}

		activity := &storage.Activity{
			DeviceID:    id,
			Type:        storage.ActivityTypeWorkflow,
			Label:       w.Name,
			Status:      storage.StatusSuccess,
			ReferenceID: w.ID,
			Timestamp:   now,
		}
		if len(reasons) > 0 {
			activity.Status = storage.StatusFailure
			activity.Details = strings.Join(reasons, "; ")
		}
		if err = e.store.AppendActivity(ctx, activity); err != nil {
			logger.Info(logkeys.Message, "appending activity", logkeys.DeviceID, id, logkeys.Error, err)
		}
	}
}

func isWait(s workflow.Step) bool {
	_, ok := s.(*workflow.Wait)
	return ok
}

// sleepContext sleeps for d or until ctx is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dedupe returns ids with empty and duplicate entries removed,
// preserving order.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	r := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		r = append(r, id)
	}
	return r
}
