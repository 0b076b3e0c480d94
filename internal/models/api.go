package models

// ExecuteAgentRequest is the body of POST /api/v1/agent/execute
type ExecuteAgentRequest struct {
	Task       string `json:"task" validate:"required,min=3"`
	Mode       string `json:"mode" validate:"omitempty,oneof=async"`
	WebhookURL string `json:"webhook_url" validate:"omitempty,url"`
}

// ExecuteAgentResponse acknowledges an accepted job
type ExecuteAgentResponse struct {
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	RequestID string `json:"request_id"`
}

// JobStatusResponse is the polling DTO for GET /api/v1/agent/jobs/{id}
type JobStatusResponse struct {
	JobID        string     `json:"job_id"`
	RequestID    string     `json:"request_id"`
	Status       JobStatus  `json:"status"`
	DecidedAgent *AgentKind `json:"decided_agent,omitempty"`
	Reason       *string    `json:"reason,omitempty"`
	Progress     *float64   `json:"progress,omitempty"`
	Attempts     int        `json:"attempts"`
	Result       *JobResult `json:"result,omitempty"`
	Error        *JobError  `json:"error,omitempty"`
	CreatedAt    string     `json:"created_at"`
	UpdatedAt    string     `json:"updated_at"`
}

// JobStatusFromJob projects a job into the polling DTO
func JobStatusFromJob(job *Job) *JobStatusResponse {
	return &JobStatusResponse{
		JobID:        job.ID,
		RequestID:    job.RequestID,
		Status:       job.Status,
		DecidedAgent: job.DecidedAgent,
		Reason:       job.Reason,
		Progress:     job.Progress,
		Attempts:     job.Attempts,
		Result:       job.Result,
		Error:        job.Error,
		CreatedAt:    job.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		UpdatedAt:    job.UpdatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
}
