package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mitto/internal/interfaces"
	"github.com/ternarybob/mitto/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

var (
	// ErrNotFound is returned when a job does not exist
	ErrNotFound = errors.New("job not found")

	// ErrDuplicateIdempotency is returned when a create collides with an
	// existing (idempotency_key, task_hash) pair
	ErrDuplicateIdempotency = errors.New("duplicate idempotency key for task")
)

// idemIndexKey is the raw Badger key enforcing uniqueness of
// (idempotency_key, task_hash). Written in the same transaction as the
// job insert so concurrent admissions serialize on it.
func idemIndexKey(key, taskHash string) []byte {
	return []byte("idem:" + key + ":" + taskHash)
}

// JobStorage implements the JobStorage interface over badgerhold.
// Every status-changing operation runs as a read-modify-write inside one
// Badger transaction; Badger's conflict detection serializes concurrent
// writers, which makes Transition a true storage-layer compare-and-set.
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

// updateTx runs fn in a Badger update transaction, retrying on conflict
// so concurrent writers serialize rather than surface ErrConflict.
func (s *JobStorage) updateTx(fn func(txn *badgerdb.Txn) error) error {
	const maxRetries = 5
	var err error
	for i := 0; i < maxRetries; i++ {
		err = s.db.Store().Badger().Update(fn)
		if !errors.Is(err, badgerdb.ErrConflict) {
			return err
		}
	}
	return err
}

func (s *JobStorage) Create(ctx context.Context, job *models.Job) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("invalid job: %w", err)
	}

	return s.updateTx(func(txn *badgerdb.Txn) error {
		if job.IdempotencyKey != "" {
			key := idemIndexKey(job.IdempotencyKey, job.TaskHash)
			_, err := txn.Get(key)
			if err == nil {
				return ErrDuplicateIdempotency
			}
			if !errors.Is(err, badgerdb.ErrKeyNotFound) {
				return fmt.Errorf("failed to check idempotency index: %w", err)
			}
			if err := txn.Set(key, []byte(job.ID)); err != nil {
				return fmt.Errorf("failed to write idempotency index: %w", err)
			}
		}

		if err := s.db.Store().TxInsert(txn, job.ID, job); err != nil {
			if err == badgerhold.ErrKeyExists {
				return fmt.Errorf("job already exists: %s", job.ID)
			}
			return fmt.Errorf("failed to insert job: %w", err)
		}
		return nil
	})
}

func (s *JobStorage) Get(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

func (s *JobStorage) GetByIdempotency(ctx context.Context, key, taskHash string) (*models.Job, error) {
	if key == "" {
		return nil, nil
	}

	var job *models.Job
	err := s.db.Store().Badger().View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(idemIndexKey(key, taskHash))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read idempotency index: %w", err)
		}

		jobID, err := item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("failed to read idempotency index value: %w", err)
		}

		var found models.Job
		if err := s.db.Store().TxGet(txn, string(jobID), &found); err != nil {
			if err == badgerhold.ErrNotFound {
				// Index points at a swept job; treat as a miss
				return nil
			}
			return fmt.Errorf("failed to get job by idempotency: %w", err)
		}
		job = &found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (s *JobStorage) Transition(ctx context.Context, jobID string, to, expectedFrom models.JobStatus) (bool, error) {
	var modified bool
	err := s.updateTx(func(txn *badgerdb.Txn) error {
		modified = false

		var job models.Job
		if err := s.db.Store().TxGet(txn, jobID, &job); err != nil {
			if err == badgerhold.ErrNotFound {
				return ErrNotFound
			}
			return fmt.Errorf("failed to get job: %w", err)
		}

		if job.Status != expectedFrom || !models.CanTransition(expectedFrom, to) {
			return nil
		}

		job.Status = to
		job.UpdatedAt = time.Now().UTC()
		if err := s.db.Store().TxUpdate(txn, jobID, &job); err != nil {
			return fmt.Errorf("failed to update job: %w", err)
		}
		modified = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return modified, nil
}

func (s *JobStorage) Succeed(ctx context.Context, jobID string, result *models.JobResult) (bool, error) {
	return s.finalize(jobID, models.JobStatusSucceeded, func(job *models.Job) {
		job.Result = result
		job.Error = nil
	})
}

func (s *JobStorage) Fail(ctx context.Context, jobID string, jobErr *models.JobError) (bool, error) {
	return s.finalize(jobID, models.JobStatusFailed, func(job *models.Job) {
		job.Error = jobErr
		job.Result = nil
	})
}

// finalize moves a job to a terminal status, but only when its current
// status is queued or running. This filter is the second line of defense
// against a stale worker racing with a cancel.
func (s *JobStorage) finalize(jobID string, to models.JobStatus, apply func(job *models.Job)) (bool, error) {
	var modified bool
	err := s.updateTx(func(txn *badgerdb.Txn) error {
		modified = false

		var job models.Job
		if err := s.db.Store().TxGet(txn, jobID, &job); err != nil {
			if err == badgerhold.ErrNotFound {
				return ErrNotFound
			}
			return fmt.Errorf("failed to get job: %w", err)
		}

		if job.Status != models.JobStatusQueued && job.Status != models.JobStatusRunning {
			return nil
		}

		job.Status = to
		apply(&job)
		job.UpdatedAt = time.Now().UTC()
		if err := s.db.Store().TxUpdate(txn, jobID, &job); err != nil {
			return fmt.Errorf("failed to update job: %w", err)
		}
		modified = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return modified, nil
}

func (s *JobStorage) SetDecision(ctx context.Context, jobID string, agent models.AgentKind, reason string) error {
	return s.partialUpdate(jobID, func(job *models.Job) {
		job.DecidedAgent = &agent
		job.Reason = &reason
	})
}

func (s *JobStorage) SetProgress(ctx context.Context, jobID string, value float64) error {
	if value < 0 {
		value = 0
	} else if value > 1 {
		value = 1
	}
	return s.updateTx(func(txn *badgerdb.Txn) error {
		var job models.Job
		if err := s.db.Store().TxGet(txn, jobID, &job); err != nil {
			if err == badgerhold.ErrNotFound {
				return ErrNotFound
			}
			return fmt.Errorf("failed to get job: %w", err)
		}

		// Progress never moves backwards; milestone writes fan out to
		// goroutines and a slow one may land after a later milestone.
		if job.Progress != nil && *job.Progress > value {
			return nil
		}

		job.Progress = &value
		job.UpdatedAt = time.Now().UTC()
		if err := s.db.Store().TxUpdate(txn, jobID, &job); err != nil {
			return fmt.Errorf("failed to update job: %w", err)
		}
		return nil
	})
}

func (s *JobStorage) IncrementAttempts(ctx context.Context, jobID string, by int) error {
	return s.partialUpdate(jobID, func(job *models.Job) {
		job.Attempts += by
	})
}

// partialUpdate applies an unconditional field update and advances
// updated_at
func (s *JobStorage) partialUpdate(jobID string, apply func(job *models.Job)) error {
	return s.updateTx(func(txn *badgerdb.Txn) error {
		var job models.Job
		if err := s.db.Store().TxGet(txn, jobID, &job); err != nil {
			if err == badgerhold.ErrNotFound {
				return ErrNotFound
			}
			return fmt.Errorf("failed to get job: %w", err)
		}

		apply(&job)
		job.UpdatedAt = time.Now().UTC()
		if err := s.db.Store().TxUpdate(txn, jobID, &job); err != nil {
			return fmt.Errorf("failed to update job: %w", err)
		}
		return nil
	})
}

func (s *JobStorage) ListByStatus(ctx context.Context, status models.JobStatus, limit int) ([]*models.Job, error) {
	query := badgerhold.Where("Status").Eq(status).SortBy("UpdatedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	result := make([]*models.Job, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

func (s *JobStorage) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	var expired []models.Job
	query := badgerhold.Where("Status").
		In(models.JobStatusSucceeded, models.JobStatusFailed, models.JobStatusCanceled).
		And("UpdatedAt").Lt(cutoff)
	if err := s.db.Store().Find(&expired, query); err != nil {
		return 0, fmt.Errorf("failed to find expired jobs: %w", err)
	}

	deleted := 0
	for i := range expired {
		job := &expired[i]
		err := s.updateTx(func(txn *badgerdb.Txn) error {
			if job.IdempotencyKey != "" {
				if err := txn.Delete(idemIndexKey(job.IdempotencyKey, job.TaskHash)); err != nil {
					return fmt.Errorf("failed to delete idempotency index: %w", err)
				}
			}
			if err := s.db.Store().TxDelete(txn, job.ID, models.Job{}); err != nil && err != badgerhold.ErrNotFound {
				return fmt.Errorf("failed to delete job: %w", err)
			}
			if err := s.db.Store().TxDeleteMatching(txn, models.LogEvent{},
				badgerhold.Where("JobID").Eq(job.ID)); err != nil {
				return fmt.Errorf("failed to delete job events: %w", err)
			}
			return nil
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to delete expired job")
			continue
		}
		deleted++
	}

	return deleted, nil
}
