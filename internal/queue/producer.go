package queue

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mitto/internal/interfaces"
	"github.com/ternarybob/mitto/internal/models"
)

// Producer publishes job handoffs to the queue. Any publish failure is
// wrapped in ErrQueueUnavailable so admission can map it to a 503 and
// fail the job.
type Producer struct {
	queue  *Manager
	logger arbor.ILogger
}

// NewProducer creates a queue producer
func NewProducer(queue *Manager, logger arbor.ILogger) interfaces.QueueProducer {
	return &Producer{
		queue:  queue,
		logger: logger,
	}
}

func (p *Producer) EnqueueExecute(ctx context.Context, jobID, requestID, ownerUserID string) error {
	body, err := (&models.ExecuteMessage{JobID: jobID, RequestID: requestID}).ToJSON()
	if err != nil {
		return fmt.Errorf("%w: failed to serialize handoff: %v", ErrQueueUnavailable, err)
	}

	msg := Message{
		Body: body,
		Headers: map[string]string{
			"request_id":    requestID,
			"job_id":        jobID,
			"owner_user_id": ownerUserID,
		},
	}

	if err := p.queue.Enqueue(ctx, msg); err != nil {
		return fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}

	p.logger.Debug().
		Str("job_id", jobID).
		Str("request_id", requestID).
		Msg("Job handoff enqueued")

	return nil
}
