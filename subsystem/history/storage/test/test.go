// Package test offers a conformance test harness for history storage backends.
package test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mobiq/stepflow/subsystem/history/storage"
)

// TestHistoryStorage runs s through the record, retrieval, and pruning contract.
func TestHistoryStorage(t *testing.T, newStorage func() (storage.AllStorage, error)) {
	s, err := newStorage()
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	// start from an empty store in case a previous run left records
	if _, err = s.DeleteRecordsBefore(ctx, time.Now().Add(24*time.Hour)); err != nil {
		t.Fatal(err)
	}

	t0 := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)

	workflowRuns := []storage.WorkflowRun{
		{WorkflowID: "wf-1", Timestamp: t0},
		{WorkflowID: "wf-1", Timestamp: t0.Add(time.Minute)},
		{WorkflowID: "wf-1", Timestamp: t0.Add(2 * time.Minute)},
		{WorkflowID: "wf-2", Timestamp: t0.Add(3 * time.Minute)},
	}
	for _, run := range workflowRuns {
		run := run
		if err = s.RecordWorkflowRun(ctx, &run); err != nil {
			t.Fatal(err)
		}
	}

	deviceRuns := []storage.DeviceRun{
		{DeviceID: "dev-a", WorkflowID: "wf-1", WorkflowName: "morning routine", Timestamp: t0},
		{DeviceID: "dev-b", WorkflowID: "wf-1", WorkflowName: "morning routine", Timestamp: t0.Add(time.Minute)},
		{DeviceID: "dev-a", WorkflowID: "wf-2", WorkflowName: "cleanup", Timestamp: t0.Add(2 * time.Minute)},
	}
	for _, run := range deviceRuns {
		run := run
		if err = s.RecordDeviceRun(ctx, &run); err != nil {
			t.Fatal(err)
		}
	}

	activity := []storage.Activity{
		{DeviceID: "dev-b", Type: storage.ActivityTypeWorkflow, Label: "morning routine", Status: storage.StatusSuccess, ReferenceID: "wf-1", Timestamp: t0},
		{DeviceID: "dev-a", Type: storage.ActivityTypeWorkflow, Label: "morning routine", Status: storage.StatusSuccess, ReferenceID: "wf-1", Timestamp: t0.Add(time.Minute)},
		{DeviceID: "dev-a", Type: storage.ActivityTypeWorkflow, Label: "cleanup", Status: storage.StatusFailure, ReferenceID: "wf-2", Timestamp: t0.Add(2 * time.Minute), Details: "step 1 (call.dial): device said no"},
	}
	for _, entry := range activity {
		entry := entry
		if err = s.AppendActivity(ctx, &entry); err != nil {
			t.Fatal(err)
		}
	}

	// invalid records are rejected
	if err = s.RecordWorkflowRun(ctx, nil); !errors.Is(err, storage.ErrEmptyRecord) {
		t.Errorf("have: %v, want: %v", err, storage.ErrEmptyRecord)
	}
	if err = s.RecordDeviceRun(ctx, &storage.DeviceRun{WorkflowID: "wf-1"}); !errors.Is(err, storage.ErrNoDeviceID) {
		t.Errorf("have: %v, want: %v", err, storage.ErrNoDeviceID)
	}
	if err = s.AppendActivity(ctx, &storage.Activity{DeviceID: "dev-a", Status: "partial"}); !errors.Is(err, storage.ErrInvalidStatus) {
		t.Errorf("have: %v, want: %v", err, storage.ErrInvalidStatus)
	}

	runs, err := s.RetrieveWorkflowRuns(ctx, "wf-1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if have, want := len(runs), 3; have != want {
		t.Fatalf("workflow run count: have: %v, want: %v", have, want)
	}
	// most recent first
	for i, want := range []time.Time{t0.Add(2 * time.Minute), t0.Add(time.Minute), t0} {
		if !runs[i].Timestamp.Equal(want) {
			t.Errorf("run %d timestamp: have: %v, want: %v", i, runs[i].Timestamp, want)
		}
		if have, want := runs[i].WorkflowID, "wf-1"; have != want {
			t.Errorf("run %d workflow: have: %v, want: %v", i, have, want)
		}
	}

	runs, err = s.RetrieveWorkflowRuns(ctx, "wf-1", &storage.SearchOptions{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if have, want := len(runs), 2; have != want {
		t.Fatalf("limited workflow run count: have: %v, want: %v", have, want)
	}
	if !runs[0].Timestamp.Equal(t0.Add(2 * time.Minute)) {
		t.Errorf("limited runs not most recent first: %v", runs[0].Timestamp)
	}

	devRuns, err := s.RetrieveDeviceRuns(ctx, "dev-a", nil)
	if err != nil {
		t.Fatal(err)
	}
	if have, want := len(devRuns), 2; have != want {
		t.Fatalf("device run count: have: %v, want: %v", have, want)
	}
	if have, want := devRuns[0].WorkflowID, "wf-2"; have != want {
		t.Errorf("device run workflow: have: %v, want: %v", have, want)
	}
	if have, want := devRuns[1].WorkflowName, "morning routine"; have != want {
		t.Errorf("device run workflow name: have: %v, want: %v", have, want)
	}

	entries, err := s.RetrieveActivity(ctx, "dev-a", nil)
	if err != nil {
		t.Fatal(err)
	}
	if have, want := len(entries), 2; have != want {
		t.Fatalf("activity count: have: %v, want: %v", have, want)
	}
	if have, want := entries[0].Status, storage.StatusFailure; have != want {
		t.Errorf("activity status: have: %v, want: %v", have, want)
	}
	if have, want := entries[0].Details, "step 1 (call.dial): device said no"; have != want {
		t.Errorf("activity details: have: %v, want: %v", have, want)
	}
	if have, want := entries[0].Type, storage.ActivityTypeWorkflow; have != want {
		t.Errorf("activity type: have: %v, want: %v", have, want)
	}
	if have, want := entries[0].ReferenceID, "wf-2"; have != want {
		t.Errorf("activity reference: have: %v, want: %v", have, want)
	}
	if have, want := entries[1].Status, storage.StatusSuccess; have != want {
		t.Errorf("activity status: have: %v, want: %v", have, want)
	}
	if have, want := entries[1].Details, ""; have != want {
		t.Errorf("activity details: have: %v, want: %v", have, want)
	}

	deleted, err := s.DeleteRecordsBefore(ctx, t0.Add(90*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if have, want := deleted, 6; have != want {
		t.Errorf("deleted count: have: %v, want: %v", have, want)
	}

	runs, err = s.RetrieveWorkflowRuns(ctx, "wf-1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if have, want := len(runs), 1; have != want {
		t.Fatalf("workflow run count after prune: have: %v, want: %v", have, want)
	}
	if !runs[0].Timestamp.Equal(t0.Add(2 * time.Minute)) {
		t.Errorf("wrong run survived prune: %v", runs[0].Timestamp)
	}

	devRuns, err = s.RetrieveDeviceRuns(ctx, "dev-b", nil)
	if err != nil {
		t.Fatal(err)
	}
	if have, want := len(devRuns), 0; have != want {
		t.Errorf("device run count after prune: have: %v, want: %v", have, want)
	}

	entries, err = s.RetrieveActivity(ctx, "dev-a", nil)
	if err != nil {
		t.Fatal(err)
	}
	if have, want := len(entries), 1; have != want {
		t.Fatalf("activity count after prune: have: %v, want: %v", have, want)
	}
	if have, want := entries[0].Status, storage.StatusFailure; have != want {
		t.Errorf("wrong activity survived prune: %v", entries[0])
	}

	// leave the store empty for the next run
	if _, err = s.DeleteRecordsBefore(ctx, time.Now().Add(24*time.Hour)); err != nil {
		t.Fatal(err)
	}
}
