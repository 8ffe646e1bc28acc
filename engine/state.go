package engine

import (
	"context"
	"sync"
)

// Status is the lifecycle state of a workflow execution.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusRunning    Status = "running"
	StatusPaused     Status = "paused"
	StatusCancelling Status = "cancelling"
	StatusCancelled  Status = "cancelled"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Snapshot is a point-in-time view of a workflow execution.
type Snapshot struct {
	WorkflowID     string `json:"workflow_id"`
	WorkflowName   string `json:"workflow_name"`
	Status         Status `json:"status"`
	Running        bool   `json:"running"`
	Paused         bool   `json:"paused"`
	ActiveStep     int    `json:"active_step"`
	CompletedSteps int    `json:"completed_steps"`
	Runs           int    `json:"runs"`
	StatusMessage  string `json:"status_message,omitempty"`
}

// state is the execution state of one workflow.
// Every Start creates a fresh state; a superseded run loop keeps its
// own (unmapped) state and so cannot clobber its successor's.
// Each state has its own lock so workflows never block each other.
type state struct {
	mu sync.Mutex

	workflowID   string
	workflowName string

	status  Status
	message string
	paused  bool

	activeStep     int
	completedSteps int
	runs           int // completed (not cancelled) runs

	cancel context.CancelFunc
	resume chan struct{} // non-nil only while the run loop is parked
	done   chan struct{} // closed when the run loop exits
}

func newState(workflowID, workflowName string, cancel context.CancelFunc) *state {
	return &state{
		workflowID:   workflowID,
		workflowName: workflowName,
		status:       StatusRunning,
		message:      "workflow started",
		cancel:       cancel,
		done:         make(chan struct{}),
	}
}

// newFailedState records a start attempt that was refused before any
// run loop launched. Its done channel starts closed.
func newFailedState(workflowID, workflowName, message string) *state {
	done := make(chan struct{})
	close(done)
	return &state{
		workflowID:   workflowID,
		workflowName: workflowName,
		status:       StatusFailed,
		message:      message,
		done:         done,
	}
}

func (s *state) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	running := s.status == StatusRunning || s.status == StatusPaused || s.status == StatusCancelling
	return Snapshot{
		WorkflowID:     s.workflowID,
		WorkflowName:   s.workflowName,
		Status:         s.status,
		Running:        running,
		Paused:         s.paused,
		ActiveStep:     s.activeStep,
		CompletedSteps: s.completedSteps,
		Runs:           s.runs,
		StatusMessage:  s.message,
	}
}

// runBegin resets the per-run progress counters.
func (s *state) runBegin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeStep = 0
	s.completedSteps = 0
}

func (s *state) stepBegin(index int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeStep = index
	s.message = message
}

func (s *state) stepDone() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completedSteps++
}

func (s *state) runDone(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs++
	s.message = message
}

// requestPause marks the workflow paused. The run loop parks at its
// next step boundary. Reports whether the request changed anything.
func (s *state) requestPause() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusRunning || s.paused {
		return false
	}
	s.paused = true
	s.message = "pause requested"
	return true
}

// requestResume releases a paused workflow.
// Reports whether the request changed anything.
func (s *state) requestResume() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.paused {
		return false
	}
	s.paused = false
	if s.resume != nil {
		close(s.resume)
		s.resume = nil
	}
	if s.status == StatusPaused {
		s.status = StatusRunning
	}
	s.message = "resuming"
	return true
}

// requestStop cancels the active run. In-flight step calls are
// aborted; the run loop exits at the earliest boundary.
// Reports whether the request changed anything.
func (s *state) requestStop() bool {
	s.mu.Lock()
	if s.status != StatusRunning && s.status != StatusPaused {
		s.mu.Unlock()
		return false
	}
	s.status = StatusCancelling
	s.message = "stopping workflow"
	s.paused = false
	if s.resume != nil {
		close(s.resume)
		s.resume = nil
	}
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return true
}

// pauseGate blocks while the workflow is paused. Resume is signalled
// by channel close, not polled. Returns false if the run was
// cancelled before or while parked.
func (s *state) pauseGate(ctx context.Context) bool {
	s.mu.Lock()
	if ctx.Err() != nil {
		s.mu.Unlock()
		return false
	}
	if !s.paused {
		s.mu.Unlock()
		return true
	}
	if s.resume == nil {
		s.resume = make(chan struct{})
	}
	resume := s.resume
	s.status = StatusPaused
	s.message = "paused, awaiting resume"
	s.mu.Unlock()

	select {
	case <-resume:
		return ctx.Err() == nil
	case <-ctx.Done():
		return false
	}
}

func (s *state) setCancelled() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusCancelled
	s.message = "workflow stopped"
}

func (s *state) setCompleted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusCompleted
}

func (s *state) setFailed(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusFailed
	s.message = message
}

// finish releases anything parked on the state and closes its done
// channel. The run loop defers this on exit.
func (s *state) finish() {
	s.mu.Lock()
	s.paused = false
	if s.resume != nil {
		close(s.resume)
		s.resume = nil
	}
	s.mu.Unlock()
	close(s.done)
}
