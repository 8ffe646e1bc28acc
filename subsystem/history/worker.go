// Package history contains the retention worker for workflow run history.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/mobiq/stepflow/logkeys"
	"github.com/mobiq/stepflow/subsystem/history/storage"

	"github.com/micromdm/nanolib/log"
)

// DefaultDuration is the interval between pruning passes.
const DefaultDuration = time.Hour * 6

// DefaultRetention is how long history and activity records are kept.
const DefaultRetention = time.Hour * 24 * 30

// Worker prunes aged-out history records on an interval.
type Worker struct {
	store  storage.PruneStorage
	logger log.Logger

	// duration is the interval at which the worker will wake up to
	// prune the storage backend.
	duration time.Duration

	// retention is how old a record must be before it is pruned.
	retention time.Duration
}

type WorkerOption func(w *Worker)

func WithWorkerLogger(logger log.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = logger
	}
}

// WithWorkerDuration configures the pruning interval for the worker.
func WithWorkerDuration(d time.Duration) WorkerOption {
	return func(w *Worker) {
		w.duration = d
	}
}

// WithWorkerRetention configures how long records are kept.
func WithWorkerRetention(d time.Duration) WorkerOption {
	return func(w *Worker) {
		w.retention = d
	}
}

func NewWorker(store storage.PruneStorage, opts ...WorkerOption) *Worker {
	w := &Worker{
		store:     store,
		logger:    log.NopLogger,
		duration:  DefaultDuration,
		retention: DefaultRetention,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// RunOnce prunes records older than the retention window and logs errors.
func (w *Worker) RunOnce(ctx context.Context) error {
	cutoff := time.Now().Add(-w.retention)
	deleted, err := w.store.DeleteRecordsBefore(ctx, cutoff)
	if err != nil {
		err = fmt.Errorf("pruning records: %w", err)
		w.logger.Info(
			logkeys.Message, "pruning records",
			logkeys.Error, err,
		)
		return err
	}
	w.logger.Debug(
		logkeys.Message, "pruned records",
		logkeys.GenericCount, deleted,
		"cutoff", cutoff,
	)
	return nil
}

// Run starts and runs the worker forever on an interval.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Debug(
		logkeys.Message, "starting worker",
		"duration", w.duration,
		"retention", w.retention,
	)

	ticker := time.NewTicker(w.duration)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.RunOnce(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
