package engine

import "time"

// Repeat bounds how many times a workflow's run loop repeats.
// The zero value runs the workflow exactly once.
type Repeat struct {
	// Count is the number of runs to perform.
	// Zero means unbounded when Duration is set, or a single run when
	// it is not.
	Count int

	// Duration is a wall-clock window measured from the first run's
	// start. Runs keep starting until the window has elapsed. The
	// window is checked between runs only; it never interrupts a run
	// in progress.
	Duration time.Duration
}

// Continue reports whether another run should start after completed
// runs, where began is when the first run started.
// Both bounds may be set; whichever triggers first wins.
func (r Repeat) Continue(completed int, began, now time.Time) bool {
	if r.Count < 1 && r.Duration <= 0 {
		return completed < 1
	}
	if r.Count > 0 && completed >= r.Count {
		return false
	}
	if r.Duration > 0 && now.Sub(began) >= r.Duration {
		return false
	}
	return true
}
