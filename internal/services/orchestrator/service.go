// Package orchestrator handles job admission: idempotent create,
// enqueue, and owner-guarded reads.
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mitto/internal/common"
	"github.com/ternarybob/mitto/internal/interfaces"
	"github.com/ternarybob/mitto/internal/models"
	"github.com/ternarybob/mitto/internal/queue"
	badgerstorage "github.com/ternarybob/mitto/internal/storage/badger"
)

var (
	// ErrJobNotFound marks a status read for a missing job
	ErrJobNotFound = errors.New("job not found")

	// ErrForbidden marks an owner mismatch on a guarded read
	ErrForbidden = errors.New("job belongs to another user")
)

// Accepted describes an admitted job
type Accepted struct {
	JobID     string
	RequestID string
	Status    models.JobStatus
	Location  string
}

// Service coordinates job admission and reads
type Service struct {
	jobs     interfaces.JobStorage
	events   interfaces.EventStorage
	producer interfaces.QueueProducer
	logger   arbor.ILogger
}

// NewService creates an orchestrator service
func NewService(jobs interfaces.JobStorage, events interfaces.EventStorage, producer interfaces.QueueProducer, logger arbor.ILogger) *Service {
	return &Service{
		jobs:     jobs,
		events:   events,
		producer: producer,
		logger:   logger,
	}
}

// CreateAndEnqueue admits a task. When idempotencyKey matches an earlier
// admission of the same normalized task, the existing job's identity is
// returned without enqueuing or logging. On queue publish failure the job
// is failed with a retryable queue_unavailable error and
// queue.ErrQueueUnavailable is returned.
func (s *Service) CreateAndEnqueue(ctx context.Context, req *models.ExecuteAgentRequest, ownerUserID, httpRequestID, idempotencyKey string) (*Accepted, error) {
	taskHash := models.TaskHash(req.Task)

	if idempotencyKey != "" {
		existing, err := s.jobs.GetByIdempotency(ctx, idempotencyKey, taskHash)
		if err != nil {
			return nil, fmt.Errorf("idempotency lookup failed: %w", err)
		}
		if existing != nil {
			s.logger.Info().
				Str("job_id", existing.ID).
				Str("idempotency_key", idempotencyKey).
				Msg("Idempotent replay, returning existing job")
			return &Accepted{
				JobID:     existing.ID,
				RequestID: existing.RequestID,
				Status:    existing.Status,
				Location:  locationPath(existing.ID),
			}, nil
		}
	}

	jobID := common.NewJobID()
	requestID := httpRequestID
	if requestID == "" {
		requestID = common.NewRequestID()
	}

	job := models.NewJob(jobID, requestID, ownerUserID, req.Task, idempotencyKey, req.WebhookURL)
	if err := s.jobs.Create(ctx, job); err != nil {
		// A concurrent admission with the same key wins the insert race;
		// resolve it as a replay.
		if idempotencyKey != "" && errors.Is(err, badgerstorage.ErrDuplicateIdempotency) {
			existing, lookupErr := s.jobs.GetByIdempotency(ctx, idempotencyKey, taskHash)
			if lookupErr == nil && existing != nil {
				return &Accepted{
					JobID:     existing.ID,
					RequestID: existing.RequestID,
					Status:    existing.Status,
					Location:  locationPath(existing.ID),
				}, nil
			}
		}
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}

	s.pushEvent(ctx, models.NewLogEvent(jobID, requestID, models.EventRequestReceived, map[string]any{
		"task_hash": taskHash,
		"owner":     ownerUserID,
	}))

	if err := s.producer.EnqueueExecute(ctx, jobID, requestID, ownerUserID); err != nil {
		s.pushEvent(ctx, models.NewLogEvent(jobID, requestID, models.EventError, map[string]any{
			"stage": "enqueue",
			"msg":   err.Error(),
		}))

		if _, failErr := s.jobs.Fail(ctx, jobID, &models.JobError{
			Code:      "queue_unavailable",
			Message:   "failed to enqueue job for execution",
			Retryable: true,
		}); failErr != nil {
			s.logger.Error().Err(failErr).Str("job_id", jobID).Msg("Failed to mark job failed after enqueue error")
		}

		s.logger.Error().
			Err(err).
			Str("job_id", jobID).
			Msg("Queue publish failed")
		return nil, fmt.Errorf("%w: %v", queue.ErrQueueUnavailable, err)
	}

	s.logger.Info().
		Str("job_id", jobID).
		Str("request_id", requestID).
		Str("owner", ownerUserID).
		Msg("Job accepted")

	return &Accepted{
		JobID:     jobID,
		RequestID: requestID,
		Status:    models.JobStatusQueued,
		Location:  locationPath(jobID),
	}, nil
}

// GetStatus fetches the job and enforces the owner guard before
// projecting the status DTO
func (s *Service) GetStatus(ctx context.Context, jobID, actorUserID string) (*models.JobStatusResponse, error) {
	job, err := s.loadOwned(ctx, jobID, actorUserID)
	if err != nil {
		return nil, err
	}
	return models.JobStatusFromJob(job), nil
}

// ListEvents returns the owner-guarded event trail for a job
func (s *Service) ListEvents(ctx context.Context, jobID, actorUserID string, limit int) ([]*models.LogEvent, error) {
	if _, err := s.loadOwned(ctx, jobID, actorUserID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	events, err := s.events.ListByJob(ctx, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return events, nil
}

// Cancel writes canceled from queued, then from running. A job already
// terminal is left untouched and its current status is returned.
func (s *Service) Cancel(ctx context.Context, jobID, actorUserID string) (*models.JobStatusResponse, error) {
	job, err := s.loadOwned(ctx, jobID, actorUserID)
	if err != nil {
		return nil, err
	}

	canceled, err := s.jobs.Transition(ctx, jobID, models.JobStatusCanceled, models.JobStatusQueued)
	if err != nil {
		return nil, fmt.Errorf("cancel transition failed: %w", err)
	}
	if !canceled {
		canceled, err = s.jobs.Transition(ctx, jobID, models.JobStatusCanceled, models.JobStatusRunning)
		if err != nil {
			return nil, fmt.Errorf("cancel transition failed: %w", err)
		}
	}

	if canceled {
		s.pushEvent(ctx, models.NewLogEvent(jobID, job.RequestID, models.EventError, map[string]any{
			"stage": "cancel",
			"msg":   "canceled_by_owner",
		}))
		s.logger.Info().Str("job_id", jobID).Msg("Job canceled")
	}

	job, err = s.jobs.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, badgerstorage.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to reload job: %w", err)
	}
	return models.JobStatusFromJob(job), nil
}

func (s *Service) loadOwned(ctx context.Context, jobID, actorUserID string) (*models.Job, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, badgerstorage.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	if job.OwnerUserID != "" && job.OwnerUserID != actorUserID {
		return nil, ErrForbidden
	}
	return job, nil
}

// pushEvent is best-effort; event log failures never affect job state
func (s *Service) pushEvent(ctx context.Context, event *models.LogEvent) {
	if err := s.events.Push(ctx, event); err != nil {
		s.logger.Debug().
			Err(err).
			Str("job_id", event.JobID).
			Str("type", string(event.Type)).
			Msg("Event write failed")
	}
}

func locationPath(jobID string) string {
	return "/api/v1/jobs/" + jobID
}
