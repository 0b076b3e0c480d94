package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mitto/internal/common"
	"github.com/ternarybob/mitto/internal/models"
	"github.com/ternarybob/mitto/internal/queue"
	"github.com/ternarybob/mitto/internal/services/orchestrator"
	badgerstorage "github.com/ternarybob/mitto/internal/storage/badger"
)

type stubProducer struct {
	fail bool
}

func (p *stubProducer) EnqueueExecute(ctx context.Context, jobID, requestID, ownerUserID string) error {
	if p.fail {
		return queue.ErrQueueUnavailable
	}
	return nil
}

func newHandlerFixture(t *testing.T, producer *stubProducer) *AgentHandler {
	t.Helper()
	manager, err := badgerstorage.NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	service := orchestrator.NewService(manager.JobStorage(), manager.EventStorage(), producer, arbor.NewLogger())
	return NewAgentHandler(service, arbor.NewLogger())
}

func authedRequest(method, target, body, userID string) *http.Request {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req = req.WithContext(ContextWithUserID(req.Context(), userID))
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) common.ErrorResponse {
	t.Helper()
	var envelope common.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	return envelope
}

func TestExecuteHandlerAccepts(t *testing.T) {
	handler := newHandlerFixture(t, &stubProducer{})

	req := authedRequest("POST", "/api/v1/agent/execute",
		`{"task":"Python kodu yaz: quicksort"}`, "user-1")
	rec := httptest.NewRecorder()
	handler.ExecuteHandler(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))

	var resp models.ExecuteAgentResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, strings.HasPrefix(resp.JobID, "j_"))
	assert.Equal(t, "queued", resp.Status)
	assert.Equal(t, "/api/v1/jobs/"+resp.JobID, rec.Header().Get("Location"))
}

func TestExecuteHandlerRejectsBadJSON(t *testing.T) {
	handler := newHandlerFixture(t, &stubProducer{})

	rec := httptest.NewRecorder()
	handler.ExecuteHandler(rec, authedRequest("POST", "/api/v1/agent/execute", "{not json", "user-1"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, int(common.CodeInvalidRequest), decodeError(t, rec).Code)
}

func TestExecuteHandlerValidatesTask(t *testing.T) {
	handler := newHandlerFixture(t, &stubProducer{})

	rec := httptest.NewRecorder()
	handler.ExecuteHandler(rec, authedRequest("POST", "/api/v1/agent/execute", `{"task":""}`, "user-1"))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, int(common.CodeValidationError), decodeError(t, rec).Code)
}

func TestExecuteHandlerQueueUnavailable(t *testing.T) {
	handler := newHandlerFixture(t, &stubProducer{fail: true})

	rec := httptest.NewRecorder()
	handler.ExecuteHandler(rec, authedRequest("POST", "/api/v1/agent/execute",
		`{"task":"Python kodu yaz: quicksort"}`, "user-1"))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, int(common.CodeQueueUnavailable), decodeError(t, rec).Code)
}

func TestExecuteHandlerRequiresPost(t *testing.T) {
	handler := newHandlerFixture(t, &stubProducer{})

	rec := httptest.NewRecorder()
	handler.ExecuteHandler(rec, authedRequest("GET", "/api/v1/agent/execute", "", "user-1"))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func acceptJob(t *testing.T, handler *AgentHandler, userID string) string {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ExecuteHandler(rec, authedRequest("POST", "/api/v1/agent/execute",
		`{"task":"Python kodu yaz: quicksort"}`, userID))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp models.ExecuteAgentResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.JobID
}

func TestGetJobHandler(t *testing.T) {
	handler := newHandlerFixture(t, &stubProducer{})
	jobID := acceptJob(t, handler, "user-1")

	rec := httptest.NewRecorder()
	handler.GetJobHandler(rec, authedRequest("GET", "/api/v1/agent/jobs/"+jobID, "", "user-1"), jobID)

	assert.Equal(t, http.StatusOK, rec.Code)
	var status models.JobStatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, jobID, status.JobID)
	assert.Equal(t, models.JobStatusQueued, status.Status)
}

func TestGetJobHandlerNotFound(t *testing.T) {
	handler := newHandlerFixture(t, &stubProducer{})

	rec := httptest.NewRecorder()
	handler.GetJobHandler(rec, authedRequest("GET", "/api/v1/agent/jobs/j_missing", "", "user-1"), "j_missing")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, int(common.CodeRecordNotFound), decodeError(t, rec).Code)
}

func TestGetJobHandlerForbidden(t *testing.T) {
	handler := newHandlerFixture(t, &stubProducer{})
	jobID := acceptJob(t, handler, "user-1")

	rec := httptest.NewRecorder()
	handler.GetJobHandler(rec, authedRequest("GET", "/api/v1/agent/jobs/"+jobID, "", "user-2"), jobID)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, int(common.CodeUnauthorizedAccess), decodeError(t, rec).Code)
}

func TestListEventsHandler(t *testing.T) {
	handler := newHandlerFixture(t, &stubProducer{})
	jobID := acceptJob(t, handler, "user-1")

	rec := httptest.NewRecorder()
	handler.ListEventsHandler(rec, authedRequest("GET", "/api/v1/agent/jobs/"+jobID+"/events", "", "user-1"), jobID)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		JobID  string             `json:"job_id"`
		Events []*models.LogEvent `json:"events"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, jobID, body.JobID)
	require.Len(t, body.Events, 1)
	assert.Equal(t, models.EventRequestReceived, body.Events[0].Type)
}

func TestCancelHandler(t *testing.T) {
	handler := newHandlerFixture(t, &stubProducer{})
	jobID := acceptJob(t, handler, "user-1")

	rec := httptest.NewRecorder()
	handler.CancelHandler(rec, authedRequest("POST", "/api/v1/agent/jobs/"+jobID+"/cancel", "", "user-1"), jobID)

	assert.Equal(t, http.StatusOK, rec.Code)
	var status models.JobStatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, models.JobStatusCanceled, status.Status)
}
