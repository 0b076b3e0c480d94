package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// JobStatus represents the lifecycle state of a job
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

// IsTerminal returns true for statuses that are sinks
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCanceled:
		return true
	}
	return false
}

// AllowedTransitions is the exhaustive status graph. Terminal statuses map
// to an empty set. The storage layer enforces this table inside its
// conditional update; nothing above it re-checks transitions.
var AllowedTransitions = map[JobStatus][]JobStatus{
	JobStatusQueued:    {JobStatusRunning, JobStatusCanceled},
	JobStatusRunning:   {JobStatusSucceeded, JobStatusFailed, JobStatusCanceled},
	JobStatusSucceeded: {},
	JobStatusFailed:    {},
	JobStatusCanceled:  {},
}

// CanTransition reports whether (from, to) is an allowed edge
func CanTransition(from, to JobStatus) bool {
	for _, allowed := range AllowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AgentKind is the closed set of agents a job can be routed to
type AgentKind string

const (
	AgentKindCode    AgentKind = "code"
	AgentKindContent AgentKind = "content"
)

// JobResult is stored when a job succeeds; Output holds the agent's
// structured output as serialized JSON.
type JobResult struct {
	Agent  AgentKind       `json:"agent"`
	Output json.RawMessage `json:"output"`
}

// JobError is stored when a job fails
type JobError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Detail    map[string]any `json:"detail,omitempty"`
}

// Job is the unit of work driven through the status state machine.
// Exactly one of Result/Error is set in terminal states; both are nil
// otherwise.
type Job struct {
	ID             string     `badgerhold:"key" json:"job_id"`
	RequestID      string     `json:"request_id"`
	OwnerUserID    string     `json:"owner_user_id"`
	Task           string     `json:"task"`
	TaskHash       string     `json:"task_hash"`
	IdempotencyKey string     `badgerholdIndex:"IdempotencyKey" json:"idempotency_key,omitempty"`
	WebhookURL     string     `json:"webhook_url,omitempty"`
	Status         JobStatus  `badgerholdIndex:"Status" json:"status"`
	DecidedAgent   *AgentKind `json:"decided_agent,omitempty"`
	Reason         *string    `json:"reason,omitempty"`
	Result         *JobResult `json:"result,omitempty"`
	Error          *JobError  `json:"error,omitempty"`
	Progress       *float64   `json:"progress,omitempty"`
	Attempts       int        `json:"attempts"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `badgerholdIndex:"UpdatedAt" json:"updated_at"`
}

// NewJob constructs a queued job with progress 0.0 and insert-time
// timestamps.
func NewJob(id, requestID, ownerUserID, task, idempotencyKey, webhookURL string) *Job {
	now := time.Now().UTC()
	progress := 0.0
	return &Job{
		ID:             id,
		RequestID:      requestID,
		OwnerUserID:    ownerUserID,
		Task:           task,
		TaskHash:       TaskHash(task),
		IdempotencyKey: idempotencyKey,
		WebhookURL:     webhookURL,
		Status:         JobStatusQueued,
		Progress:       &progress,
		Attempts:       0,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Validate checks the job is well-formed before persistence
func (j *Job) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	if len(strings.TrimSpace(j.Task)) < 3 {
		return fmt.Errorf("task must be at least 3 characters")
	}
	if j.Status == "" {
		return fmt.Errorf("job status is required")
	}
	return nil
}

// TaskHash fingerprints a task as the SHA-256 of its lowercased,
// whitespace-collapsed text. Idempotency lookups key on this together
// with the caller-supplied idempotency key.
func TaskHash(task string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(task)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
