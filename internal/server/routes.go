package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// API routes - Agent (authenticated)
	mux.HandleFunc("/api/v1/agent/execute", s.app.AgentHandler.ExecuteHandler)
	mux.HandleFunc("/api/v1/agent/jobs/", s.handleAgentJobRoutes) // GET /{id}, GET /{id}/events, POST /{id}/cancel

	// Location header target; same guarded status handler
	mux.HandleFunc("/api/v1/jobs/", s.handleJobLocationRoute)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleAgentJobRoutes routes /api/v1/agent/jobs/{job_id}[/events|/cancel]
func (s *Server) handleAgentJobRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/agent/jobs/")
	if rest == "" || strings.Contains(strings.TrimSuffix(rest, "/"), "//") {
		s.app.APIHandler.NotFoundHandler(w, r)
		return
	}

	jobID, action, _ := strings.Cut(strings.TrimSuffix(rest, "/"), "/")
	if jobID == "" {
		s.app.APIHandler.NotFoundHandler(w, r)
		return
	}

	switch action {
	case "":
		s.app.AgentHandler.GetJobHandler(w, r, jobID)
	case "events":
		s.app.AgentHandler.ListEventsHandler(w, r, jobID)
	case "cancel":
		s.app.AgentHandler.CancelHandler(w, r, jobID)
	default:
		s.app.APIHandler.NotFoundHandler(w, r)
	}
}

// handleJobLocationRoute serves GET /api/v1/jobs/{job_id}, the path
// advertised in the Location header of accepted jobs
func (s *Server) handleJobLocationRoute(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/v1/jobs/"), "/")
	if jobID == "" || strings.Contains(jobID, "/") {
		s.app.APIHandler.NotFoundHandler(w, r)
		return
	}
	s.app.AgentHandler.GetJobHandler(w, r, jobID)
}
