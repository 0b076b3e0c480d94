package queue

import (
	"errors"
	"time"
)

var (
	// ErrNoMessage is returned when the queue has no visible message
	ErrNoMessage = errors.New("no messages in queue")

	// ErrQueueUnavailable is returned when a publish cannot be accepted.
	// Admission maps it to a 503 and fails the job.
	ErrQueueUnavailable = errors.New("queue unavailable")
)

// Message is a delivery handed to a worker. Headers carry tracing
// metadata (request_id, job_id, owner_user_id); the body is the JSON
// handoff.
type Message struct {
	ID           string            `json:"id"`
	Body         []byte            `json:"body"`
	Headers      map[string]string `json:"headers,omitempty"`
	ReceiveCount int               `json:"receive_count"`
}

// storedMessage is the internal structure persisted in Badger
type storedMessage struct {
	ID           string            `json:"id"`
	Body         []byte            `json:"body"`
	Headers      map[string]string `json:"headers,omitempty"`
	EnqueuedAt   time.Time         `json:"enqueued_at"`
	VisibleAt    time.Time         `json:"visible_at"`
	ReceiveCount int               `json:"receive_count"`
}
