package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mitto/internal/common"
	"github.com/ternarybob/mitto/internal/models"
)

// WorkerPool runs concurrent consumers over the queue. Each worker polls
// on a ticker, hands messages to the JobProcessor, and acknowledges or
// schedules redelivery based on the result.
type WorkerPool struct {
	queue        *Manager
	processor    *JobProcessor
	pollInterval time.Duration
	concurrency  int
	logger       arbor.ILogger
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

// NewWorkerPool creates a worker pool from queue configuration
func NewWorkerPool(queue *Manager, processor *JobProcessor, config *common.QueueConfig, logger arbor.ILogger) (*WorkerPool, error) {
	pollInterval, err := time.ParseDuration(config.PollInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid poll interval '%s': %w", config.PollInterval, err)
	}

	concurrency := config.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		queue:        queue,
		processor:    processor,
		pollInterval: pollInterval,
		concurrency:  concurrency,
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
	}, nil
}

// Start starts the worker goroutines
func (wp *WorkerPool) Start() {
	wp.logger.Info().
		Int("concurrency", wp.concurrency).
		Dur("poll_interval", wp.pollInterval).
		Msg("Starting worker pool")

	for i := 0; i < wp.concurrency; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop cancels the workers and waits for them to drain
func (wp *WorkerPool) Stop() {
	wp.logger.Info().Msg("Stopping worker pool")
	wp.cancel()
	wp.wg.Wait()
}

func (wp *WorkerPool) worker(workerID int) {
	defer wp.wg.Done()

	// Stagger worker starts to spread polls across the interval
	staggerDelay := (wp.pollInterval / time.Duration(wp.concurrency)) * time.Duration(workerID)
	if staggerDelay > 0 {
		select {
		case <-wp.ctx.Done():
			return
		case <-time.After(staggerDelay):
		}
	}

	wp.logger.Debug().
		Int("worker_id", workerID).
		Msg("Worker started")

	ticker := time.NewTicker(wp.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-wp.ctx.Done():
			wp.logger.Debug().
				Int("worker_id", workerID).
				Msg("Worker stopped")
			return

		case <-ticker.C:
			if err := wp.processOne(workerID); err != nil && !errors.Is(err, ErrNoMessage) {
				wp.logger.Warn().
					Err(err).
					Int("worker_id", workerID).
					Msg("Message processing error")
			}
		}
	}
}

// processOne receives and processes a single message. A processor error
// requests redelivery: the message stays in the queue with a shortened
// visibility so it reappears after an exponential backoff; the receive
// bound drops it after the final attempt.
func (wp *WorkerPool) processOne(workerID int) error {
	msg, deleteFn, err := wp.queue.Receive(wp.ctx)
	if err != nil {
		return err
	}

	handoff, err := models.ExecuteMessageFromJSON(msg.Body)
	if err != nil {
		wp.logger.Error().
			Err(err).
			Str("message_id", msg.ID).
			Int("worker_id", workerID).
			Msg("Invalid message body, dropping")
		if delErr := deleteFn(); delErr != nil {
			wp.logger.Warn().Err(delErr).Msg("Failed to delete invalid message")
		}
		return fmt.Errorf("invalid message body: %w", err)
	}

	start := time.Now()
	procErr := wp.processor.Process(wp.ctx, handoff)
	duration := time.Since(start)

	if procErr != nil {
		backoff := redeliveryBackoff(msg.ReceiveCount)
		wp.logger.Warn().
			Err(procErr).
			Str("job_id", handoff.JobID).
			Int("receive_count", msg.ReceiveCount).
			Dur("backoff", backoff).
			Dur("duration", duration).
			Int("worker_id", workerID).
			Msg("Job processing failed, scheduling redelivery")
		if extErr := wp.queue.Extend(wp.ctx, msg.ID, backoff); extErr != nil {
			wp.logger.Warn().Err(extErr).Str("message_id", msg.ID).Msg("Failed to shorten visibility for redelivery")
		}
		return procErr
	}

	wp.logger.Debug().
		Str("job_id", handoff.JobID).
		Dur("duration", duration).
		Int("worker_id", workerID).
		Msg("Message processed")

	if err := deleteFn(); err != nil {
		wp.logger.Warn().
			Err(err).
			Str("message_id", msg.ID).
			Msg("Failed to acknowledge message")
		return err
	}

	return nil
}

// redeliveryBackoff grows exponentially with the receive count, capped
// at 30 seconds
func redeliveryBackoff(receiveCount int) time.Duration {
	if receiveCount < 1 {
		receiveCount = 1
	}
	backoff := time.Duration(1<<uint(receiveCount)) * time.Second
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	return backoff
}
