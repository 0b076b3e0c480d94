package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mitto/internal/interfaces"
	"github.com/ternarybob/mitto/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// EventStorage implements the append-only event trail over badgerhold.
// Events are never updated or rewritten; the job sweep deletes a job's
// events together with the job.
type EventStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewEventStorage creates a new EventStorage instance
func NewEventStorage(db *BadgerDB, logger arbor.ILogger) interfaces.EventStorage {
	return &EventStorage{
		db:     db,
		logger: logger,
	}
}

func (s *EventStorage) Push(ctx context.Context, event *models.LogEvent) error {
	if event.ID == "" {
		return fmt.Errorf("event ID is required")
	}
	if event.JobID == "" {
		return fmt.Errorf("event job ID is required")
	}

	if err := s.db.Store().Insert(event.ID, event); err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// ListByJob returns events for a job in ts order. Event IDs carry a
// nanosecond prefix, so sorting by ID recovers insertion order when
// timestamps collide.
func (s *EventStorage) ListByJob(ctx context.Context, jobID string, limit int) ([]*models.LogEvent, error) {
	query := badgerhold.Where("JobID").Eq(jobID).SortBy("ID")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var events []models.LogEvent
	if err := s.db.Store().Find(&events, query); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	result := make([]*models.LogEvent, len(events))
	for i := range events {
		result[i] = &events[i]
	}
	return result, nil
}
