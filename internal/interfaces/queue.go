package interfaces

import "context"

// QueueProducer publishes job handoffs to the broker with at-least-once
// delivery. Publish failures surface synchronously as
// queue.ErrQueueUnavailable so admission can fail the job.
type QueueProducer interface {
	EnqueueExecute(ctx context.Context, jobID, requestID, ownerUserID string) error
}
