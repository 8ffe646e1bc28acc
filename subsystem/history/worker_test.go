package history

import (
	"context"
	"testing"
	"time"

	"github.com/mobiq/stepflow/subsystem/history/storage"
	"github.com/mobiq/stepflow/subsystem/history/storage/inmem"
)

func TestWorkerRunOnce(t *testing.T) {
	store := inmem.New()
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	if err := store.RecordWorkflowRun(ctx, &storage.WorkflowRun{WorkflowID: "wf-1", Timestamp: old}); err != nil {
		t.Fatal(err)
	}
	if err := store.AppendActivity(ctx, &storage.Activity{
		DeviceID:  "dev-a",
		Type:      storage.ActivityTypeWorkflow,
		Status:    storage.StatusSuccess,
		Timestamp: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}

	w := NewWorker(store, WithWorkerRetention(24*time.Hour))
	if err := w.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}

	runs, err := store.RetrieveWorkflowRuns(ctx, "wf-1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if have, want := len(runs), 0; have != want {
		t.Errorf("run count: have: %v, want: %v", have, want)
	}

	entries, err := store.RetrieveActivity(ctx, "dev-a", nil)
	if err != nil {
		t.Fatal(err)
	}
	if have, want := len(entries), 1; have != want {
		t.Errorf("activity count: have: %v, want: %v", have, want)
	}
}
