package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mitto/internal/common"
	"github.com/ternarybob/mitto/internal/models"
	"github.com/ternarybob/mitto/internal/queue"
	"github.com/ternarybob/mitto/internal/services/orchestrator"
)

// AgentHandler serves the authenticated agent API: task admission, job
// status polling, event trails and cancellation.
type AgentHandler struct {
	orchestrator *orchestrator.Service
	validate     *validator.Validate
	logger       arbor.ILogger
}

// NewAgentHandler creates an AgentHandler
func NewAgentHandler(orchestratorService *orchestrator.Service, logger arbor.ILogger) *AgentHandler {
	return &AgentHandler{
		orchestrator: orchestratorService,
		validate:     validator.New(),
		logger:       logger,
	}
}

// ExecuteHandler handles POST /api/v1/agent/execute. Accepted jobs get
// 202 with a Location header and a Retry-After polling hint.
func (h *AgentHandler) ExecuteHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req models.ExecuteAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteErrorCode(w, common.CodeInvalidRequest, "request body is not valid JSON")
		return
	}
	if req.Mode == "" {
		req.Mode = "async"
	}
	if err := h.validate.Struct(&req); err != nil {
		WriteErrorCode(w, common.CodeValidationError, err.Error())
		return
	}

	actor := UserIDFromContext(r.Context())
	idempotencyKey := r.Header.Get("Idempotency-Key")
	httpRequestID := r.Header.Get("X-Request-ID")

	accepted, err := h.orchestrator.CreateAndEnqueue(r.Context(), &req, actor, httpRequestID, idempotencyKey)
	if err != nil {
		if errors.Is(err, queue.ErrQueueUnavailable) {
			WriteErrorCode(w, common.CodeQueueUnavailable, "job queue is unavailable, try again later")
			return
		}
		h.logger.Error().Err(err).Msg("Job admission failed")
		WriteErrorCode(w, common.CodeInternalError, "failed to accept job")
		return
	}

	w.Header().Set("Location", accepted.Location)
	w.Header().Set("Retry-After", "2")
	WriteJSON(w, http.StatusAccepted, models.ExecuteAgentResponse{
		JobID:     accepted.JobID,
		Status:    string(accepted.Status),
		RequestID: accepted.RequestID,
	})
}

// GetJobHandler handles GET /api/v1/agent/jobs/{job_id}
func (h *AgentHandler) GetJobHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	status, err := h.orchestrator.GetStatus(r.Context(), jobID, UserIDFromContext(r.Context()))
	if err != nil {
		h.writeJobError(w, jobID, err)
		return
	}
	WriteJSON(w, http.StatusOK, status)
}

// ListEventsHandler handles GET /api/v1/agent/jobs/{job_id}/events
func (h *AgentHandler) ListEventsHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	limit := QueryInt(r, "limit", 100)
	events, err := h.orchestrator.ListEvents(r.Context(), jobID, UserIDFromContext(r.Context()), limit)
	if err != nil {
		h.writeJobError(w, jobID, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"job_id": jobID,
		"events": events,
	})
}

// CancelHandler handles POST /api/v1/agent/jobs/{job_id}/cancel. Jobs
// already terminal are returned unchanged.
func (h *AgentHandler) CancelHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	status, err := h.orchestrator.Cancel(r.Context(), jobID, UserIDFromContext(r.Context()))
	if err != nil {
		h.writeJobError(w, jobID, err)
		return
	}
	WriteJSON(w, http.StatusOK, status)
}

func (h *AgentHandler) writeJobError(w http.ResponseWriter, jobID string, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrJobNotFound):
		WriteErrorCode(w, common.CodeRecordNotFound, "job "+jobID+" not found")
	case errors.Is(err, orchestrator.ErrForbidden):
		WriteErrorCode(w, common.CodeUnauthorizedAccess, "job "+jobID+" belongs to another user")
	default:
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Job request failed")
		WriteErrorCode(w, common.CodeInternalError, "failed to load job")
	}
}
