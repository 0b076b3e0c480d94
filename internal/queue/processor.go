package queue

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mitto/internal/interfaces"
	"github.com/ternarybob/mitto/internal/models"
	"github.com/ternarybob/mitto/internal/services/router"
	storage "github.com/ternarybob/mitto/internal/storage/badger"
)

// JobProcessor drives one dequeued job through the status state machine:
// claim via CAS, route, run the selected agent, finalize. A returned
// error requests broker redelivery; every other outcome is recorded on
// the job and the message is acknowledged.
type JobProcessor struct {
	jobs     interfaces.JobStorage
	events   interfaces.EventStorage
	registry interfaces.AgentRegistry
	logger   arbor.ILogger
}

// NewJobProcessor creates a processor over the given storage and registry
func NewJobProcessor(jobs interfaces.JobStorage, events interfaces.EventStorage, registry interfaces.AgentRegistry, logger arbor.ILogger) *JobProcessor {
	return &JobProcessor{
		jobs:     jobs,
		events:   events,
		registry: registry,
		logger:   logger,
	}
}

// Process handles a single handoff. The message is redundant whenever the
// claim CAS fails (duplicate delivery, cancel race); that path logs an
// event and acknowledges without touching job state.
func (p *JobProcessor) Process(ctx context.Context, msg *models.ExecuteMessage) error {
	jobID := msg.JobID
	requestID := msg.RequestID

	if err := p.jobs.IncrementAttempts(ctx, jobID, 1); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	claimed, err := p.jobs.Transition(ctx, jobID, models.JobStatusRunning, models.JobStatusQueued)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if !claimed {
		p.pushEvent(ctx, jobID, requestID, models.EventError, map[string]any{
			"code": "state_not_queued_or_already_taken",
		})
		p.logger.Debug().
			Str("job_id", jobID).
			Msg("Job not claimable, dropping redundant delivery")
		return nil
	}

	p.pushEvent(ctx, jobID, requestID, models.EventAgentStarted, map[string]any{
		"stage": "start",
	})

	job, err := p.jobs.Get(ctx, jobID)
	if err != nil {
		if _, failErr := p.jobs.Fail(ctx, jobID, &models.JobError{
			Code:    "job_not_found",
			Message: "job record missing after claim",
		}); failErr != nil {
			p.logger.Warn().Err(failErr).Str("job_id", jobID).Msg("Failed to mark missing job as failed")
		}
		p.pushEvent(ctx, jobID, requestID, models.EventError, map[string]any{
			"code": "job_not_found",
		})
		return nil
	}

	decision := router.Decide(job.Task)
	if err := p.jobs.SetDecision(ctx, jobID, decision.Agent, decision.Reason); err != nil {
		p.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to persist routing decision")
	}
	p.pushEvent(ctx, jobID, requestID, models.EventRouteDecision, map[string]any{
		"agent":  string(decision.Agent),
		"reason": decision.Reason,
	})

	agent, err := p.registry.Get(decision.Agent)
	if err != nil {
		p.failJob(ctx, jobID, requestID, &models.JobError{
			Code:    "agent_run_error",
			Message: err.Error(),
		})
		return nil
	}

	p.pushEvent(ctx, jobID, requestID, models.EventAgentStarted, map[string]any{
		"agent": string(decision.Agent),
	})

	// Progress reports fan out as fire-and-forget writes; the WaitGroup
	// is joined on every exit path so none are lost when the message is
	// acknowledged or redelivered.
	var pending sync.WaitGroup
	progress := func(value float64) {
		pending.Add(2)
		go func() {
			defer pending.Done()
			if err := p.jobs.SetProgress(ctx, jobID, value); err != nil {
				p.logger.Debug().Err(err).Str("job_id", jobID).Msg("Progress write failed")
			}
		}()
		go func() {
			defer pending.Done()
			p.pushEvent(ctx, jobID, requestID, models.EventToolCall, map[string]any{
				"progress": value,
			})
		}()
	}

	output, runErr := agent.Run(ctx, job.Task, jobID, requestID, progress)
	pending.Wait()

	if runErr != nil {
		jobErr := classifyRunError(runErr)
		p.failJob(ctx, jobID, requestID, jobErr)
		if jobErr.Retryable {
			return runErr
		}
		return nil
	}

	succeeded, err := p.jobs.Succeed(ctx, jobID, &models.JobResult{
		Agent:  agent.Kind(),
		Output: output,
	})
	if err != nil {
		return err
	}
	if !succeeded {
		// Lost a race with cancel; the terminal filter already protected
		// the status, so just record it.
		p.pushEvent(ctx, jobID, requestID, models.EventError, map[string]any{
			"stage": "succeed",
			"msg":   "state_not_modified",
		})
		return nil
	}

	p.pushEvent(ctx, jobID, requestID, models.EventAgentFinished, map[string]any{
		"agent": string(agent.Kind()),
	})
	if err := p.jobs.SetProgress(ctx, jobID, 1.0); err != nil {
		p.logger.Debug().Err(err).Str("job_id", jobID).Msg("Final progress write failed")
	}

	p.logger.Info().
		Str("job_id", jobID).
		Str("agent", string(agent.Kind())).
		Msg("Job completed")

	return nil
}

func (p *JobProcessor) failJob(ctx context.Context, jobID, requestID string, jobErr *models.JobError) {
	if _, err := p.jobs.Fail(ctx, jobID, jobErr); err != nil {
		p.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to record job failure")
	}
	p.pushEvent(ctx, jobID, requestID, models.EventError, map[string]any{
		"code": jobErr.Code,
		"msg":  jobErr.Message,
	})
}

// pushEvent appends to the event trail, swallowing failures: event writes
// are observability only and must never affect job state.
func (p *JobProcessor) pushEvent(ctx context.Context, jobID, requestID string, eventType models.EventType, payload map[string]any) {
	event := models.NewLogEvent(jobID, requestID, eventType, payload)
	if err := p.events.Push(ctx, event); err != nil {
		p.logger.Debug().
			Err(err).
			Str("job_id", jobID).
			Str("type", string(eventType)).
			Msg("Event write failed")
	}
}

// classifyRunError maps an agent failure to the stored job error. Typed
// agent errors keep their code; anything else is a generic agent_run_error,
// retryable only for transport timeouts and network faults.
func classifyRunError(err error) *models.JobError {
	var agentErr *models.AgentError
	if errors.As(err, &agentErr) {
		return &models.JobError{
			Code:      agentErr.Code,
			Message:   agentErr.Message,
			Retryable: agentErr.Retryable,
			Detail:    agentErr.Detail,
		}
	}

	return &models.JobError{
		Code:      "agent_run_error",
		Message:   err.Error(),
		Retryable: isTransient(err),
	}
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
