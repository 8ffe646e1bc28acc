// Package http contains HTTP handlers that work with the stepflow engine.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/mobiq/stepflow/engine"
	"github.com/mobiq/stepflow/http/api"
	"github.com/mobiq/stepflow/logkeys"
	"github.com/mobiq/stepflow/workflow"

	"github.com/alexedwards/flow"
	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

var (
	ErrNoIDs     = errors.New("no device IDs provided")
	ErrNoID      = errors.New("missing id parameter")
	ErrNoStarter = errors.New("missing workflow starter")
	ErrNoEngine  = errors.New("missing engine")
)

type WorkflowStarter interface {
	Start(ctx context.Context, w *workflow.Workflow, devices []string, rep engine.Repeat, resolver workflow.ParamResolver) error
}

type WorkflowController interface {
	Pause(ctx context.Context, workflowID string) error
	Resume(ctx context.Context, workflowID string) error
	Stop(ctx context.Context, workflowID string) error
}

type WorkflowStatuser interface {
	Snapshot(workflowID string) (*engine.Snapshot, error)
}

// startRequest is the JSON body of the start workflow endpoint.
// Repeat bounds and template parameters ride alongside the workflow.
type startRequest struct {
	Workflow        workflow.Workflow            `json:"workflow"`
	DeviceIDs       []string                     `json:"device_ids"`
	RepeatCount     int                          `json:"repeat_count,omitempty"`
	DurationSeconds int                          `json:"duration_seconds,omitempty"`
	Params          map[string]string            `json:"params,omitempty"`
	DeviceParams    map[string]map[string]string `json:"device_params,omitempty"`
}

// StartWorkflowHandler creates a HandlerFunc that starts a workflow.
func StartWorkflowHandler(starter WorkflowStarter, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)

		var req startRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Info(logkeys.Message, "decoding body", logkeys.Error, err)
			api.JSONError(w, err, http.StatusBadRequest)
			return
		}
		if len(req.DeviceIDs) < 1 {
			logger.Info(logkeys.Message, "parameters", logkeys.Error, ErrNoIDs)
			api.JSONError(w, ErrNoIDs, http.StatusBadRequest)
			return
		}

		logger = logger.With(
			logkeys.WorkflowID, req.Workflow.ID,
			logkeys.WorkflowName, req.Workflow.Name,
			logkeys.FirstDeviceID, req.DeviceIDs[0],
		)
		if starter == nil {
			logger.Info(logkeys.Message, "starting workflow", logkeys.Error, ErrNoStarter)
			api.JSONError(w, ErrNoStarter, 0)
			return
		}
		if err := req.Workflow.Validate(); err != nil {
			logger.Info(logkeys.Message, "validating workflow", logkeys.Error, err)
			api.JSONError(w, err, http.StatusBadRequest)
			return
		}

		var resolver workflow.ParamResolver
		if len(req.Params) > 0 || len(req.DeviceParams) > 0 {
			resolver = &workflow.TemplateResolver{
				Common: req.Params,
				Device: req.DeviceParams,
			}
		}

		logger.Debug(logkeys.Message, "starting workflow")
		err := starter.Start(
			r.Context(),
			&req.Workflow,
			req.DeviceIDs,
			engine.Repeat{
				Count:    req.RepeatCount,
				Duration: time.Duration(req.DurationSeconds) * time.Second,
			},
			resolver,
		)
		if err != nil {
			logger.Info(logkeys.Message, "starting workflow", logkeys.Error, err)
			code := 0
			if errors.Is(err, engine.ErrNoDevices) || errors.Is(err, engine.ErrUnsupportedStep) {
				code = http.StatusBadRequest
			}
			api.JSONError(w, err, code)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// controlHandler creates a HandlerFunc around one of the engine's
// pause, resume, or stop calls. The message names the call in logs.
func controlHandler(message string, control func(context.Context, string) error, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		if control == nil {
			logger.Info(logkeys.Error, ErrNoEngine)
			api.JSONError(w, ErrNoEngine, 0)
			return
		}

		id := flow.Param(r.Context(), "id")
		if id == "" {
			logger.Info(logkeys.Message, "parameters", logkeys.Error, ErrNoID)
			api.JSONError(w, ErrNoID, http.StatusBadRequest)
			return
		}

		logger = logger.With(logkeys.WorkflowID, id)
		if err := control(r.Context(), id); err != nil {
			logger.Info(logkeys.Message, message, logkeys.Error, err)
			code := 0
			if errors.Is(err, engine.ErrUnknownWorkflow) {
				code = http.StatusNotFound
			}
			api.JSONError(w, err, code)
			return
		}

		logger.Debug(logkeys.Message, message)
		w.WriteHeader(http.StatusNoContent)
	}
}

// PauseWorkflowHandler creates a HandlerFunc that pauses a workflow.
func PauseWorkflowHandler(controller WorkflowController, logger log.Logger) http.HandlerFunc {
	if controller == nil {
		return controlHandler("pausing workflow", nil, logger)
	}
	return controlHandler("pausing workflow", controller.Pause, logger)
}

// ResumeWorkflowHandler creates a HandlerFunc that resumes a paused workflow.
func ResumeWorkflowHandler(controller WorkflowController, logger log.Logger) http.HandlerFunc {
	if controller == nil {
		return controlHandler("resuming workflow", nil, logger)
	}
	return controlHandler("resuming workflow", controller.Resume, logger)
}

// StopWorkflowHandler creates a HandlerFunc that stops a workflow.
func StopWorkflowHandler(controller WorkflowController, logger log.Logger) http.HandlerFunc {
	if controller == nil {
		return controlHandler("stopping workflow", nil, logger)
	}
	return controlHandler("stopping workflow", controller.Stop, logger)
}

// GetWorkflowHandler creates a HandlerFunc that returns JSON of the
// workflow's execution state.
func GetWorkflowHandler(statuser WorkflowStatuser, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		if statuser == nil {
			logger.Info(logkeys.Error, ErrNoEngine)
			api.JSONError(w, ErrNoEngine, 0)
			return
		}

		id := flow.Param(r.Context(), "id")
		if id == "" {
			logger.Info(logkeys.Message, "parameters", logkeys.Error, ErrNoID)
			api.JSONError(w, ErrNoID, http.StatusBadRequest)
			return
		}

		logger = logger.With(logkeys.WorkflowID, id)
		snap, err := statuser.Snapshot(id)
		if err != nil {
			logger.Info(logkeys.Message, "retrieving workflow state", logkeys.Error, err)
			code := 0
			if errors.Is(err, engine.ErrUnknownWorkflow) {
				code = http.StatusNotFound
			}
			api.JSONError(w, err, code)
			return
		}

		logger.Debug(
			logkeys.Message, "retrieved workflow state",
			"status", string(snap.Status),
		)
		w.Header().Set("Content-Type", "application/json")
		if err = json.NewEncoder(w).Encode(snap); err != nil {
			logger.Info(logkeys.Message, "encoding json to body", logkeys.Error, err)
			return
		}
	}
}
