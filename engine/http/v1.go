package http

import (
	"net/http"

	"github.com/micromdm/nanolib/log"
)

// APIEngine is the engine surface the API handlers drive.
type APIEngine interface {
	WorkflowStarter
	WorkflowController
	WorkflowStatuser
}

// Mux can register HTTP handlers.
// Ostensibly this supports flow router.
type Mux interface {
	// Handle registers the handler for the given pattern.
	Handle(pattern string, handler http.Handler, methods ...string)
}

// HandleAPIv1 registers the engine API handlers into mux.
// API endpoint paths are prepended with prefix.
// Authentication or any other layered handlers are not present.
// They are assumed to be layered with mux, possibly at the Handle call.
// If prefix is empty and these handlers are used in sub-paths then
// handlers should have that sub-path stripped from the request.
// The logger is adorned with a "handler" key of the endpoint name.
func HandleAPIv1(prefix string, mux Mux, logger log.Logger, e APIEngine) {
	mux.Handle(
		prefix+"/workflow/start",
		StartWorkflowHandler(e, logger.With("handler", "start workflow")),
		"POST",
	)
	mux.Handle(
		prefix+"/workflow/:id/pause",
		PauseWorkflowHandler(e, logger.With("handler", "pause workflow")),
		"POST",
	)
	mux.Handle(
		prefix+"/workflow/:id/resume",
		ResumeWorkflowHandler(e, logger.With("handler", "resume workflow")),
		"POST",
	)
	mux.Handle(
		prefix+"/workflow/:id/stop",
		StopWorkflowHandler(e, logger.With("handler", "stop workflow")),
		"POST",
	)
	mux.Handle(
		prefix+"/workflow/:id",
		GetWorkflowHandler(e, logger.With("handler", "get workflow")),
		"GET",
	)
}
