// Package kv implements a history storage backend using a key-value store.
package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/mobiq/stepflow/subsystem/history/storage"
	"github.com/mobiq/stepflow/utils/uuid"

	"github.com/micromdm/nanolib/storage/kv"
)

const (
	keyPfxRun = "run."
	keyPfxDev = "dev."
	keyPfxAct = "act."
)

// KV is a history storage backend using a key-value store.
// Records of all three kinds share one bucket under distinct key prefixes.
type KV struct {
	b    kv.KeysPrefixTraversingBucket
	ider uuid.IDer
}

// New creates a new history storage backend.
func New(b kv.KeysPrefixTraversingBucket, ider uuid.IDer) *KV {
	return &KV{b: b, ider: ider}
}

func (s *KV) append(ctx context.Context, pfx, id string, record interface{}) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	// fabricate a unique key to track this record
	return s.b.Set(ctx, pfx+id+"."+s.ider.ID(), raw)
}

// RecordWorkflowRun appends a run-level history record to the key-value store.
func (s *KV) RecordWorkflowRun(ctx context.Context, run *storage.WorkflowRun) error {
	if err := run.Validate(); err != nil {
		return err
	}
	return s.append(ctx, keyPfxRun, run.WorkflowID, run)
}

// RecordDeviceRun appends a device-level history record to the key-value store.
func (s *KV) RecordDeviceRun(ctx context.Context, run *storage.DeviceRun) error {
	if err := run.Validate(); err != nil {
		return err
	}
	return s.append(ctx, keyPfxDev, run.DeviceID, run)
}

// AppendActivity appends a device activity entry to the key-value store.
func (s *KV) AppendActivity(ctx context.Context, activity *storage.Activity) error {
	if err := activity.Validate(); err != nil {
		return err
	}
	return s.append(ctx, keyPfxAct, activity.DeviceID, activity)
}

// RetrieveWorkflowRuns returns run records for a workflow from the
// key-value store, most recent first.
func (s *KV) RetrieveWorkflowRuns(ctx context.Context, workflowID string, opt *storage.SearchOptions) ([]storage.WorkflowRun, error) {
	if workflowID == "" {
		return nil, storage.ErrNoWorkflowID
	}
	var runs []storage.WorkflowRun
	for k := range s.b.KeysPrefix(ctx, keyPfxRun+workflowID+".", nil) {
		raw, err := s.b.Get(ctx, k)
		if err != nil {
			return runs, fmt.Errorf("getting record %s: %w", k, err)
		}
		var run storage.WorkflowRun
		if err = json.Unmarshal(raw, &run); err != nil {
			return runs, fmt.Errorf("unmarshal record %s: %w", k, err)
		}
		runs = append(runs, run)
	}
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].Timestamp.After(runs[j].Timestamp) })
	if limit := opt.Limited(); len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// RetrieveDeviceRuns returns run records for a device from the
// key-value store, most recent first.
func (s *KV) RetrieveDeviceRuns(ctx context.Context, deviceID string, opt *storage.SearchOptions) ([]storage.DeviceRun, error) {
	if deviceID == "" {
		return nil, storage.ErrNoDeviceID
	}
	var runs []storage.DeviceRun
	for k := range s.b.KeysPrefix(ctx, keyPfxDev+deviceID+".", nil) {
		raw, err := s.b.Get(ctx, k)
		if err != nil {
			return runs, fmt.Errorf("getting record %s: %w", k, err)
		}
		var run storage.DeviceRun
		if err = json.Unmarshal(raw, &run); err != nil {
			return runs, fmt.Errorf("unmarshal record %s: %w", k, err)
		}
		runs = append(runs, run)
	}
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].Timestamp.After(runs[j].Timestamp) })
	if limit := opt.Limited(); len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// RetrieveActivity returns activity entries for a device from the
// key-value store, most recent first.
func (s *KV) RetrieveActivity(ctx context.Context, deviceID string, opt *storage.SearchOptions) ([]storage.Activity, error) {
	if deviceID == "" {
		return nil, storage.ErrNoDeviceID
	}
	var entries []storage.Activity
	for k := range s.b.KeysPrefix(ctx, keyPfxAct+deviceID+".", nil) {
		raw, err := s.b.Get(ctx, k)
		if err != nil {
			return entries, fmt.Errorf("getting record %s: %w", k, err)
		}
		var entry storage.Activity
		if err = json.Unmarshal(raw, &entry); err != nil {
			return entries, fmt.Errorf("unmarshal record %s: %w", k, err)
		}
		entries = append(entries, entry)
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Timestamp.After(entries[j].Timestamp) })
	if limit := opt.Limited(); len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// DeleteRecordsBefore removes history and activity records older than
// cutoff from the key-value store.
func (s *KV) DeleteRecordsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	var toDelete []string
	// very inefficient: reads every record to find its timestamp
	for k := range s.b.Keys(ctx, nil) {
		raw, err := s.b.Get(ctx, k)
		if err != nil {
			return 0, fmt.Errorf("getting record %s: %w", k, err)
		}
		var record struct {
			Timestamp time.Time `json:"timestamp"`
		}
		if err = json.Unmarshal(raw, &record); err != nil {
			return 0, fmt.Errorf("unmarshal record %s: %w", k, err)
		}
		if record.Timestamp.Before(cutoff) {
			toDelete = append(toDelete, k)
		}
	}
	if err := kv.DeleteSlice(ctx, s.b, toDelete); err != nil {
		return 0, fmt.Errorf("deleting records: %w", err)
	}
	return len(toDelete), nil
}
