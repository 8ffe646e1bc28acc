// Package http contains HTTP handlers for reading workflow run history.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/mobiq/stepflow/http/api"
	"github.com/mobiq/stepflow/logkeys"
	"github.com/mobiq/stepflow/subsystem/history/storage"

	"github.com/alexedwards/flow"
	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

var (
	ErrNoID      = errors.New("no ID provided")
	ErrNoStorage = errors.New("no storage backend")
)

// searchOptions assembles history search options from the request query.
func searchOptions(r *http.Request) (*storage.SearchOptions, error) {
	opt := new(storage.SearchOptions)
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			return nil, fmt.Errorf("parsing limit: %w", err)
		}
		opt.Limit = n
	}
	return opt, nil
}

// RetrieveWorkflowHistory returns an HTTP handler that retrieves run
// records for a workflow ID.
func RetrieveWorkflowHistory(store storage.ReadStorage, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		if store == nil {
			logger.Info(logkeys.Message, "retrieve workflow history", logkeys.Error, ErrNoStorage)
			api.JSONError(w, ErrNoStorage, 0)
			return
		}

		id := flow.Param(r.Context(), "id")
		if id == "" {
			logger.Info(logkeys.Message, "parameters", logkeys.Error, ErrNoID)
			api.JSONError(w, ErrNoID, http.StatusBadRequest)
			return
		}
		logger = logger.With(logkeys.WorkflowID, id)

		opt, err := searchOptions(r)
		if err != nil {
			logger.Info(logkeys.Message, "parameters", logkeys.Error, err)
			api.JSONError(w, err, http.StatusBadRequest)
			return
		}

		runs, err := store.RetrieveWorkflowRuns(r.Context(), id, opt)
		if err != nil {
			logger.Info(logkeys.Message, "retrieve workflow history", logkeys.Error, err)
			api.JSONError(w, err, 0)
			return
		}
		logger.Debug(
			logkeys.Message, "retrieved workflow history",
			logkeys.GenericCount, len(runs),
		)
		w.Header().Set("Content-type", "application/json")
		if err = json.NewEncoder(w).Encode(runs); err != nil {
			logger.Info(logkeys.Message, "encode response", logkeys.Error, err)
			return
		}
	}
}

// RetrieveDeviceHistory returns an HTTP handler that retrieves run
// records for a device ID.
func RetrieveDeviceHistory(store storage.ReadStorage, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		if store == nil {
			logger.Info(logkeys.Message, "retrieve device history", logkeys.Error, ErrNoStorage)
			api.JSONError(w, ErrNoStorage, 0)
			return
		}

		id := flow.Param(r.Context(), "id")
		if id == "" {
			logger.Info(logkeys.Message, "parameters", logkeys.Error, ErrNoID)
			api.JSONError(w, ErrNoID, http.StatusBadRequest)
			return
		}
		logger = logger.With(logkeys.DeviceID, id)

		opt, err := searchOptions(r)
		if err != nil {
			logger.Info(logkeys.Message, "parameters", logkeys.Error, err)
			api.JSONError(w, err, http.StatusBadRequest)
			return
		}

		runs, err := store.RetrieveDeviceRuns(r.Context(), id, opt)
		if err != nil {
			logger.Info(logkeys.Message, "retrieve device history", logkeys.Error, err)
			api.JSONError(w, err, 0)
			return
		}
		logger.Debug(
			logkeys.Message, "retrieved device history",
			logkeys.GenericCount, len(runs),
		)
		w.Header().Set("Content-type", "application/json")
		if err = json.NewEncoder(w).Encode(runs); err != nil {
			logger.Info(logkeys.Message, "encode response", logkeys.Error, err)
			return
		}
	}
}

// RetrieveDeviceActivity returns an HTTP handler that retrieves
// activity entries for a device ID.
func RetrieveDeviceActivity(store storage.ReadStorage, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		if store == nil {
			logger.Info(logkeys.Message, "retrieve device activity", logkeys.Error, ErrNoStorage)
			api.JSONError(w, ErrNoStorage, 0)
			return
		}

		id := flow.Param(r.Context(), "id")
		if id == "" {
			logger.Info(logkeys.Message, "parameters", logkeys.Error, ErrNoID)
			api.JSONError(w, ErrNoID, http.StatusBadRequest)
			return
		}
		logger = logger.With(logkeys.DeviceID, id)

		opt, err := searchOptions(r)
		if err != nil {
			logger.Info(logkeys.Message, "parameters", logkeys.Error, err)
			api.JSONError(w, err, http.StatusBadRequest)
			return
		}

		entries, err := store.RetrieveActivity(r.Context(), id, opt)
		if err != nil {
			logger.Info(logkeys.Message, "retrieve device activity", logkeys.Error, err)
			api.JSONError(w, err, 0)
			return
		}
		logger.Debug(
			logkeys.Message, "retrieved device activity",
			logkeys.GenericCount, len(entries),
		)
		w.Header().Set("Content-type", "application/json")
		if err = json.NewEncoder(w).Encode(entries); err != nil {
			logger.Info(logkeys.Message, "encode response", logkeys.Error, err)
			return
		}
	}
}
