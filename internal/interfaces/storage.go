package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/mitto/internal/models"
)

// JobStorage is the durable record of jobs. All status-changing operations
// are conditional updates executed atomically at the storage layer; callers
// never read-then-write.
type JobStorage interface {
	// Create inserts a new job. Fails when the (idempotency_key, task_hash)
	// uniqueness constraint is violated.
	Create(ctx context.Context, job *models.Job) error

	// Get returns the full job or ErrNotFound
	Get(ctx context.Context, jobID string) (*models.Job, error)

	// GetByIdempotency returns the job matching (key, taskHash), or nil
	// when no such job exists
	GetByIdempotency(ctx context.Context, key, taskHash string) (*models.Job, error)

	// Transition atomically moves the job from expectedFrom to to. It
	// returns true iff the job's current status equaled expectedFrom and
	// (expectedFrom, to) is an allowed edge.
	Transition(ctx context.Context, jobID string, to, expectedFrom models.JobStatus) (bool, error)

	// Succeed sets status=succeeded and stores the result, but only when
	// the current status is queued or running. Returns whether it mutated.
	Succeed(ctx context.Context, jobID string, result *models.JobResult) (bool, error)

	// Fail sets status=failed and stores the error, but only when the
	// current status is queued or running. Returns whether it mutated.
	Fail(ctx context.Context, jobID string, jobErr *models.JobError) (bool, error)

	// SetDecision records the routing outcome
	SetDecision(ctx context.Context, jobID string, agent models.AgentKind, reason string) error

	// SetProgress stores a progress value clamped to [0, 1]
	SetProgress(ctx context.Context, jobID string, value float64) error

	// IncrementAttempts adds by to the job's attempt counter
	IncrementAttempts(ctx context.Context, jobID string, by int) error

	// ListByStatus returns jobs in the given status, most recently
	// updated first
	ListByStatus(ctx context.Context, status models.JobStatus, limit int) ([]*models.Job, error)

	// DeleteTerminalBefore removes terminal jobs whose updated_at is older
	// than cutoff and returns how many were deleted. Non-terminal jobs are
	// never touched.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// EventStorage is the append-only per-job event trail. Writes are
// best-effort from the caller's perspective; failures must never roll back
// job state.
type EventStorage interface {
	// Push persists an event
	Push(ctx context.Context, event *models.LogEvent) error

	// ListByJob returns up to limit events for the job, ordered by ts
	// ascending
	ListByJob(ctx context.Context, jobID string, limit int) ([]*models.LogEvent, error)
}

// StorageManager aggregates the storage collections over one database
// connection
type StorageManager interface {
	JobStorage() JobStorage
	EventStorage() EventStorage
	Close() error
}
