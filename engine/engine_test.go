package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mobiq/stepflow/exec"
	"github.com/mobiq/stepflow/subsystem/history/storage"
	"github.com/mobiq/stepflow/subsystem/history/storage/inmem"
	"github.com/mobiq/stepflow/workflow"
)

// testRunner is a scriptable step executor backend.
type testRunner struct {
	mu       sync.Mutex
	requests []*exec.Request

	delay   time.Duration              // per-call processing time
	block   chan struct{}              // when non-nil calls wait for close
	fail    func(*exec.Request) string // non-empty return fails the call
	support func(string) bool          // nil supports everything
}

func (r *testRunner) Run(ctx context.Context, req *exec.Request) (*exec.Response, error) {
	r.mu.Lock()
	r.requests = append(r.requests, req)
	block := r.block
	r.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.delay > 0 {
		t := time.NewTimer(r.delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.fail != nil {
		if msg := r.fail(req); msg != "" {
			return &exec.Response{Success: false, Message: msg}, nil
		}
	}
	return &exec.Response{Success: true}, nil
}

func (r *testRunner) Supports(operation string) bool {
	if r.support == nil {
		return true
	}
	return r.support(operation)
}

func (r *testRunner) recorded() []*exec.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*exec.Request(nil), r.requests...)
}

func (r *testRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

// waitFor polls cond until it holds or a deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func actionWorkflow(id string, ops ...string) *workflow.Workflow {
	w := &workflow.Workflow{ID: id, Name: "test " + id}
	for _, op := range ops {
		w.Steps = append(w.Steps, &workflow.Action{Operation: op})
	}
	return w
}

func TestRunCompletes(t *testing.T) {
	runner := &testRunner{}
	store := inmem.New()
	e := New(runner, WithHistory(store), WithStepDelay(time.Millisecond))
	ctx := context.Background()

	w := actionWorkflow("wf-1", "a", "b", "c")
	if err := e.Start(ctx, w, []string{"x", "y", "x"}, Repeat{}, nil); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "completion", func() bool { return e.Status("wf-1") == StatusCompleted })

	if e.Running("wf-1") {
		t.Error("expected not running")
	}
	if have, want := e.CompletedSteps("wf-1"), 3; have != want {
		t.Errorf("completed steps: have: %v, want: %v", have, want)
	}
	if have, want := e.StatusMessage("wf-1"), "run 1 completed successfully"; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
	snap, err := e.Snapshot("wf-1")
	if err != nil {
		t.Fatal(err)
	}
	if have, want := snap.Runs, 1; have != want {
		t.Errorf("runs: have: %v, want: %v", have, want)
	}

	// duplicate device id deduplicated: 3 steps x 2 devices
	requests := runner.recorded()
	if have, want := len(requests), 6; have != want {
		t.Fatalf("request count: have: %v, want: %v", have, want)
	}
	// steps settle strictly in order
	for i, wantOp := range []string{"a", "a", "b", "b", "c", "c"} {
		if have := requests[i].Operation; have != wantOp {
			t.Errorf("request %d operation: have: %v, want: %v", i, have, wantOp)
		}
	}
	for _, req := range requests {
		if have, want := req.RunIndex, 1; have != want {
			t.Errorf("run index: have: %v, want: %v", have, want)
		}
		if have, want := req.WorkflowID, "wf-1"; have != want {
			t.Errorf("workflow id: have: %v, want: %v", have, want)
		}
	}

	runs, err := store.RetrieveWorkflowRuns(ctx, "wf-1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if have, want := len(runs), 1; have != want {
		t.Errorf("history run count: have: %v, want: %v", have, want)
	}
	for _, id := range []string{"x", "y"} {
		devRuns, err := store.RetrieveDeviceRuns(ctx, id, nil)
		if err != nil {
			t.Fatal(err)
		}
		if have, want := len(devRuns), 1; have != want {
			t.Errorf("device run count for %s: have: %v, want: %v", id, have, want)
		}
		entries, err := store.RetrieveActivity(ctx, id, nil)
		if err != nil {
			t.Fatal(err)
		}
		if have, want := len(entries), 1; have != want {
			t.Fatalf("activity count for %s: have: %v, want: %v", id, have, want)
		}
		if have, want := entries[0].Status, storage.StatusSuccess; have != want {
			t.Errorf("activity status for %s: have: %v, want: %v", id, have, want)
		}
		if have, want := entries[0].Details, ""; have != want {
			t.Errorf("activity details for %s: have: %v, want: %v", id, have, want)
		}
	}
}

func TestParamResolution(t *testing.T) {
	runner := &testRunner{}
	e := New(runner, WithStepDelay(time.Millisecond))

	w := &workflow.Workflow{ID: "wf-1", Name: "dial", Steps: []workflow.Step{
		&workflow.Action{Operation: "call.dial", Params: map[string]string{"number": "${number}"}},
	}}
	resolver := &workflow.TemplateResolver{Device: map[string]map[string]string{
		"a": {"number": "1000"},
		"b": {"number": "2000"},
	}}
	if err := e.Start(context.Background(), w, []string{"a", "b"}, Repeat{}, resolver); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "completion", func() bool { return e.Status("wf-1") == StatusCompleted })

	numbers := make(map[string]string)
	for _, req := range runner.recorded() {
		numbers[req.DeviceID] = req.Params["number"]
	}
	if have, want := numbers["a"], "1000"; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
	if have, want := numbers["b"], "2000"; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
}

func TestRepeatCount(t *testing.T) {
	runner := &testRunner{}
	store := inmem.New()
	e := New(runner, WithHistory(store), WithStepDelay(time.Millisecond))
	ctx := context.Background()

	w := actionWorkflow("wf-1", "a")
	if err := e.Start(ctx, w, []string{"x"}, Repeat{Count: 2}, nil); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "completion", func() bool { return e.Status("wf-1") == StatusCompleted })

	if have, want := e.StatusMessage("wf-1"), "run 2 completed successfully"; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
	requests := runner.recorded()
	if have, want := len(requests), 2; have != want {
		t.Fatalf("request count: have: %v, want: %v", have, want)
	}
	if have, want := requests[0].RunIndex, 1; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
	if have, want := requests[1].RunIndex, 2; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
	runs, err := store.RetrieveWorkflowRuns(ctx, "wf-1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if have, want := len(runs), 2; have != want {
		t.Errorf("history run count: have: %v, want: %v", have, want)
	}
}

func TestRepeatDurationFinishesRun(t *testing.T) {
	// the duration bound elapses while the first run is in progress:
	// that run finishes and no second run starts
	runner := &testRunner{delay: 30 * time.Millisecond}
	store := inmem.New()
	e := New(runner, WithHistory(store), WithStepDelay(time.Millisecond))
	ctx := context.Background()

	w := actionWorkflow("wf-1", "a")
	if err := e.Start(ctx, w, []string{"x"}, Repeat{Duration: 10 * time.Millisecond}, nil); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "completion", func() bool { return e.Status("wf-1") == StatusCompleted })

	if have, want := runner.count(), 1; have != want {
		t.Errorf("request count: have: %v, want: %v", have, want)
	}
	runs, err := store.RetrieveWorkflowRuns(ctx, "wf-1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if have, want := len(runs), 1; have != want {
		t.Errorf("history run count: have: %v, want: %v", have, want)
	}
}

func TestPauseResume(t *testing.T) {
	runner := &testRunner{block: make(chan struct{})}
	e := New(runner, WithStepDelay(time.Millisecond))
	ctx := context.Background()

	w := actionWorkflow("wf-1", "a", "b")
	if err := e.Start(ctx, w, []string{"x"}, Repeat{}, nil); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "first dispatch", func() bool { return runner.count() == 1 })

	if err := e.Pause(ctx, "wf-1"); err != nil {
		t.Fatal(err)
	}
	if !e.Paused("wf-1") {
		t.Error("expected paused")
	}
	if have, want := e.StatusMessage("wf-1"), "pause requested"; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}

	// let the in-flight step settle; the loop parks at the next boundary
	close(runner.block)
	waitFor(t, "park", func() bool { return e.Status("wf-1") == StatusPaused })
	if have, want := e.StatusMessage("wf-1"), "paused, awaiting resume"; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
	if have, want := e.CompletedSteps("wf-1"), 1; have != want {
		t.Errorf("completed steps: have: %v, want: %v", have, want)
	}

	// the second step is not dispatched while paused
	time.Sleep(20 * time.Millisecond)
	if have, want := runner.count(), 1; have != want {
		t.Errorf("request count while paused: have: %v, want: %v", have, want)
	}

	if err := e.Resume(ctx, "wf-1"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "completion", func() bool { return e.Status("wf-1") == StatusCompleted })
	if have, want := runner.count(), 2; have != want {
		t.Errorf("request count: have: %v, want: %v", have, want)
	}
	if e.Paused("wf-1") {
		t.Error("expected not paused")
	}
}

func TestPauseResumeIdempotent(t *testing.T) {
	runner := &testRunner{block: make(chan struct{})}
	e := New(runner, WithStepDelay(time.Millisecond))
	ctx := context.Background()

	w := actionWorkflow("wf-1", "a", "b")
	if err := e.Start(ctx, w, []string{"x"}, Repeat{}, nil); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "first dispatch", func() bool { return runner.count() == 1 })

	// resuming a workflow that is not paused changes nothing
	if err := e.Resume(ctx, "wf-1"); err != nil {
		t.Fatal(err)
	}
	if e.Paused("wf-1") {
		t.Error("expected not paused")
	}

	if err := e.Pause(ctx, "wf-1"); err != nil {
		t.Fatal(err)
	}
	if err := e.Pause(ctx, "wf-1"); err != nil {
		t.Fatal(err)
	}
	close(runner.block)
	waitFor(t, "park", func() bool { return e.Status("wf-1") == StatusPaused })

	if err := e.Pause(ctx, "wf-1"); err != nil {
		t.Fatal(err)
	}
	if err := e.Resume(ctx, "wf-1"); err != nil {
		t.Fatal(err)
	}
	if err := e.Resume(ctx, "wf-1"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "completion", func() bool { return e.Status("wf-1") == StatusCompleted })

	// stopping a finished workflow changes nothing
	if err := e.Stop(ctx, "wf-1"); err != nil {
		t.Fatal(err)
	}
	if have, want := e.Status("wf-1"), StatusCompleted; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
}

func TestStopMidStep(t *testing.T) {
	runner := &testRunner{block: make(chan struct{})}
	store := inmem.New()
	e := New(runner, WithHistory(store), WithStepDelay(time.Millisecond))
	ctx := context.Background()

	devices := []string{"d1", "d2", "d3", "d4", "d5"}
	w := actionWorkflow("wf-1", "a")
	if err := e.Start(ctx, w, devices, Repeat{}, nil); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "fan-out", func() bool { return runner.count() == len(devices) })

	if err := e.Stop(ctx, "wf-1"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "cancellation", func() bool { return e.Status("wf-1") == StatusCancelled })

	if have, want := e.StatusMessage("wf-1"), "workflow stopped"; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
	// each device was dispatched exactly once
	if have, want := runner.count(), len(devices); have != want {
		t.Errorf("request count: have: %v, want: %v", have, want)
	}
	// a cancelled run is never recorded
	runs, err := store.RetrieveWorkflowRuns(ctx, "wf-1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if have, want := len(runs), 0; have != want {
		t.Errorf("history run count: have: %v, want: %v", have, want)
	}
	for _, id := range devices {
		entries, err := store.RetrieveActivity(ctx, id, nil)
		if err != nil {
			t.Fatal(err)
		}
		if have, want := len(entries), 0; have != want {
			t.Errorf("activity count for %s: have: %v, want: %v", id, have, want)
		}
	}
}

func TestStopDuringWait(t *testing.T) {
	runner := &testRunner{}
	store := inmem.New()
	e := New(runner, WithHistory(store), WithStepDelay(time.Millisecond))
	ctx := context.Background()

	w := &workflow.Workflow{ID: "wf-1", Name: "waiter", Steps: []workflow.Step{
		&workflow.Action{Operation: "a"},
		&workflow.Wait{Duration: 600 * time.Second},
		&workflow.Action{Operation: "b"},
	}}
	if err := e.Start(ctx, w, []string{"x"}, Repeat{}, nil); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "wait step", func() bool { return e.ActiveStep("wf-1") == 1 })

	if err := e.Stop(ctx, "wf-1"); err != nil {
		t.Fatal(err)
	}
	// the sleep aborts promptly, long before its 600s duration
	waitFor(t, "cancellation", func() bool { return e.Status("wf-1") == StatusCancelled })

	if have, want := runner.count(), 1; have != want {
		t.Errorf("request count: have: %v, want: %v", have, want)
	}
	runs, err := store.RetrieveWorkflowRuns(ctx, "wf-1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if have, want := len(runs), 0; have != want {
		t.Errorf("history run count: have: %v, want: %v", have, want)
	}
}

func TestRestartSupersedes(t *testing.T) {
	runner := &testRunner{block: make(chan struct{})}
	store := inmem.New()
	e := New(runner, WithHistory(store), WithStepDelay(time.Millisecond))
	ctx := context.Background()

	w := actionWorkflow("wf-1", "a")
	if err := e.Start(ctx, w, []string{"old"}, Repeat{}, nil); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "first dispatch", func() bool { return runner.count() == 1 })

	// restarting cancels the prior run; the new run begins only after
	// the old loop has exited
	if err := e.Start(ctx, w, []string{"new"}, Repeat{}, nil); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "second dispatch", func() bool { return runner.count() == 2 })

	requests := runner.recorded()
	if have, want := requests[0].DeviceID, "old"; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
	if have, want := requests[1].DeviceID, "new"; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}

	close(runner.block)
	waitFor(t, "completion", func() bool { return e.Status("wf-1") == StatusCompleted })

	// only the superseding run is recorded
	runs, err := store.RetrieveWorkflowRuns(ctx, "wf-1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if have, want := len(runs), 1; have != want {
		t.Errorf("history run count: have: %v, want: %v", have, want)
	}
	devRuns, err := store.RetrieveDeviceRuns(ctx, "new", nil)
	if err != nil {
		t.Fatal(err)
	}
	if have, want := len(devRuns), 1; have != want {
		t.Errorf("device run count: have: %v, want: %v", have, want)
	}
}

func TestDeviceFailureIsolation(t *testing.T) {
	runner := &testRunner{
		fail: func(req *exec.Request) string {
			if req.Operation == "s2" && req.DeviceID == "B" {
				return "device said no"
			}
			return ""
		},
	}
	store := inmem.New()
	e := New(runner, WithHistory(store), WithStepDelay(time.Millisecond))
	ctx := context.Background()

	w := actionWorkflow("wf-1", "s1", "s2", "s3")
	if err := e.Start(ctx, w, []string{"A", "B"}, Repeat{Count: 2}, nil); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "completion", func() bool { return e.Status("wf-1") == StatusCompleted })

	if have, want := e.StatusMessage("wf-1"), "run 2 completed, 1 of 2 devices failed"; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}

	// every step still dispatched to the failing device in both runs
	perDevice := make(map[string]int)
	for _, req := range runner.recorded() {
		perDevice[req.DeviceID]++
	}
	if have, want := perDevice["A"], 6; have != want {
		t.Errorf("dispatches for A: have: %v, want: %v", have, want)
	}
	if have, want := perDevice["B"], 6; have != want {
		t.Errorf("dispatches for B: have: %v, want: %v", have, want)
	}

	runs, err := store.RetrieveWorkflowRuns(ctx, "wf-1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if have, want := len(runs), 2; have != want {
		t.Errorf("history run count: have: %v, want: %v", have, want)
	}

	aRuns, err := store.RetrieveDeviceRuns(ctx, "A", nil)
	if err != nil {
		t.Fatal(err)
	}
	if have, want := len(aRuns), 2; have != want {
		t.Errorf("device run count for A: have: %v, want: %v", have, want)
	}
	bRuns, err := store.RetrieveDeviceRuns(ctx, "B", nil)
	if err != nil {
		t.Fatal(err)
	}
	if have, want := len(bRuns), 0; have != want {
		t.Errorf("device run count for B: have: %v, want: %v", have, want)
	}

	bActivity, err := store.RetrieveActivity(ctx, "B", nil)
	if err != nil {
		t.Fatal(err)
	}
	if have, want := len(bActivity), 2; have != want {
		t.Fatalf("activity count for B: have: %v, want: %v", have, want)
	}
	for _, entry := range bActivity {
		if have, want := entry.Status, storage.StatusFailure; have != want {
			t.Errorf("activity status: have: %v, want: %v", have, want)
		}
		if !strings.Contains(entry.Details, "step 2") || !strings.Contains(entry.Details, "device said no") {
			t.Errorf("unexpected details: %v", entry.Details)
		}
	}
	aActivity, err := store.RetrieveActivity(ctx, "A", nil)
	if err != nil {
		t.Fatal(err)
	}
	if have, want := len(aActivity), 2; have != want {
		t.Fatalf("activity count for A: have: %v, want: %v", have, want)
	}
	for _, entry := range aActivity {
		if have, want := entry.Status, storage.StatusSuccess; have != want {
			t.Errorf("activity status: have: %v, want: %v", have, want)
		}
	}
}

func TestWaitSkipsStepDelay(t *testing.T) {
	runner := &testRunner{}
	// a step delay long enough that applying it around the Wait step
	// would blow the completion deadline
	e := New(runner, WithStepDelay(10*time.Second))
	ctx := context.Background()

	w := &workflow.Workflow{ID: "wf-1", Name: "waiter", Steps: []workflow.Step{
		&workflow.Wait{Duration: time.Second},
		&workflow.Action{Operation: "a"},
	}}
	began := time.Now()
	if err := e.Start(ctx, w, []string{"x"}, Repeat{}, nil); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "completion", func() bool { return e.Status("wf-1") == StatusCompleted })

	if elapsed := time.Since(began); elapsed < time.Second {
		t.Errorf("wait step did not wait: %v", elapsed)
	}
	if have, want := runner.count(), 1; have != want {
		t.Errorf("request count: have: %v, want: %v", have, want)
	}
}

func TestStepDelayBetweenActions(t *testing.T) {
	runner := &testRunner{}
	e := New(runner, WithStepDelay(100*time.Millisecond))
	ctx := context.Background()

	w := actionWorkflow("wf-1", "a", "b")
	began := time.Now()
	if err := e.Start(ctx, w, []string{"x"}, Repeat{}, nil); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "completion", func() bool { return e.Status("wf-1") == StatusCompleted })

	if elapsed := time.Since(began); elapsed < 100*time.Millisecond {
		t.Errorf("inter-step delay not applied: %v", elapsed)
	}
}

func TestStartPreconditions(t *testing.T) {
	ctx := context.Background()

	e := New(nil)
	w := actionWorkflow("wf-1", "a")
	if err := e.Start(ctx, w, []string{"x"}, Repeat{}, nil); !errors.Is(err, ErrNoExecutor) {
		t.Errorf("have: %v, want: %v", err, ErrNoExecutor)
	}
	if have, want := e.Status("wf-1"), StatusFailed; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
	if !strings.Contains(e.StatusMessage("wf-1"), "no step executor") {
		t.Errorf("unexpected message: %v", e.StatusMessage("wf-1"))
	}

	runner := &testRunner{support: func(op string) bool { return op != "bogus" }}
	e = New(runner, WithStepDelay(time.Millisecond))

	if err := e.Start(ctx, w, nil, Repeat{}, nil); !errors.Is(err, ErrNoDevices) {
		t.Errorf("have: %v, want: %v", err, ErrNoDevices)
	}
	if err := e.Start(ctx, w, []string{"", ""}, Repeat{}, nil); !errors.Is(err, ErrNoDevices) {
		t.Errorf("have: %v, want: %v", err, ErrNoDevices)
	}

	bad := actionWorkflow("wf-2", "a", "bogus")
	err := e.Start(ctx, bad, []string{"x"}, Repeat{}, nil)
	if !errors.Is(err, ErrUnsupportedStep) {
		t.Errorf("have: %v, want: %v", err, ErrUnsupportedStep)
	}
	if !strings.Contains(e.StatusMessage("wf-2"), "bogus") {
		t.Errorf("unexpected message: %v", e.StatusMessage("wf-2"))
	}
	// no run loop launched, nothing dispatched
	if have, want := runner.count(), 0; have != want {
		t.Errorf("request count: have: %v, want: %v", have, want)
	}

	if err = e.Start(ctx, &workflow.Workflow{ID: "wf-3", Name: "empty"}, []string{"x"}, Repeat{}, nil); !errors.Is(err, workflow.ErrNoSteps) {
		t.Errorf("have: %v, want: %v", err, workflow.ErrNoSteps)
	}
}

func TestRefusedStartLeavesRunAlone(t *testing.T) {
	runner := &testRunner{block: make(chan struct{})}
	e := New(runner, WithStepDelay(time.Millisecond))
	ctx := context.Background()

	w := actionWorkflow("wf-1", "a")
	if err := e.Start(ctx, w, []string{"x"}, Repeat{}, nil); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "first dispatch", func() bool { return runner.count() == 1 })

	// a refused start must not disturb the live execution
	if err := e.Start(ctx, w, nil, Repeat{}, nil); !errors.Is(err, ErrNoDevices) {
		t.Errorf("have: %v, want: %v", err, ErrNoDevices)
	}
	if have, want := e.Status("wf-1"), StatusRunning; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}

	close(runner.block)
	waitFor(t, "completion", func() bool { return e.Status("wf-1") == StatusCompleted })
}

func TestUnknownWorkflow(t *testing.T) {
	e := New(&testRunner{})
	ctx := context.Background()

	if err := e.Pause(ctx, "nope"); !errors.Is(err, ErrUnknownWorkflow) {
		t.Errorf("have: %v, want: %v", err, ErrUnknownWorkflow)
	}
	if err := e.Resume(ctx, "nope"); !errors.Is(err, ErrUnknownWorkflow) {
		t.Errorf("have: %v, want: %v", err, ErrUnknownWorkflow)
	}
	if err := e.Stop(ctx, "nope"); !errors.Is(err, ErrUnknownWorkflow) {
		t.Errorf("have: %v, want: %v", err, ErrUnknownWorkflow)
	}
	if _, err := e.Snapshot("nope"); !errors.Is(err, ErrUnknownWorkflow) {
		t.Errorf("have: %v, want: %v", err, ErrUnknownWorkflow)
	}
	if have, want := e.Status("nope"), StatusIdle; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
	if e.Running("nope") || e.Paused("nope") {
		t.Error("expected zero state for unknown workflow")
	}
	if have, want := e.ActiveStep("nope"), 0; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
	if have, want := e.StatusMessage("nope"), ""; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
}

type failStore struct{}

func (failStore) RecordWorkflowRun(context.Context, *storage.WorkflowRun) error {
	return errors.New("history down")
}

func (failStore) RecordDeviceRun(context.Context, *storage.DeviceRun) error {
	return errors.New("history down")
}

func (failStore) AppendActivity(context.Context, *storage.Activity) error {
	return errors.New("history down")
}

func TestRecorderFailureNonFatal(t *testing.T) {
	runner := &testRunner{}
	e := New(runner, WithHistory(failStore{}), WithStepDelay(time.Millisecond))

	w := actionWorkflow("wf-1", "a", "b")
	if err := e.Start(context.Background(), w, []string{"x"}, Repeat{}, nil); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "completion", func() bool { return e.Status("wf-1") == StatusCompleted })

	if have, want := e.StatusMessage("wf-1"), "run 1 completed successfully"; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
}
