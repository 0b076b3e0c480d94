package orchestrator

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mitto/internal/common"
	"github.com/ternarybob/mitto/internal/interfaces"
	"github.com/ternarybob/mitto/internal/models"
	"github.com/ternarybob/mitto/internal/queue"
	badgerstorage "github.com/ternarybob/mitto/internal/storage/badger"
)

type recordingProducer struct {
	enqueued []string
	fail     bool
}

func (p *recordingProducer) EnqueueExecute(ctx context.Context, jobID, requestID, ownerUserID string) error {
	if p.fail {
		return queue.ErrQueueUnavailable
	}
	p.enqueued = append(p.enqueued, jobID)
	return nil
}

func newFixture(t *testing.T, producer interfaces.QueueProducer) (*Service, interfaces.JobStorage, interfaces.EventStorage) {
	t.Helper()
	manager, err := badgerstorage.NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	jobs := manager.JobStorage()
	events := manager.EventStorage()
	return NewService(jobs, events, producer, arbor.NewLogger()), jobs, events
}

func TestCreateAndEnqueue(t *testing.T) {
	producer := &recordingProducer{}
	service, jobs, events := newFixture(t, producer)
	ctx := context.Background()

	accepted, err := service.CreateAndEnqueue(ctx, &models.ExecuteAgentRequest{
		Task: "Python kodu yaz: quicksort",
		Mode: "async",
	}, "user-1", "", "")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(accepted.JobID, "j_"), "job id was %q", accepted.JobID)
	assert.True(t, strings.HasPrefix(accepted.RequestID, "req_"), "request id was %q", accepted.RequestID)
	assert.Equal(t, models.JobStatusQueued, accepted.Status)
	assert.Equal(t, "/api/v1/jobs/"+accepted.JobID, accepted.Location)
	assert.Equal(t, []string{accepted.JobID}, producer.enqueued)

	job, err := jobs.Get(ctx, accepted.JobID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", job.OwnerUserID)

	trail, err := events.ListByJob(ctx, accepted.JobID, 10)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, models.EventRequestReceived, trail[0].Type)
}

func TestCreateReusesHTTPRequestID(t *testing.T) {
	service, _, _ := newFixture(t, &recordingProducer{})

	accepted, err := service.CreateAndEnqueue(context.Background(), &models.ExecuteAgentRequest{
		Task: "Python kodu yaz: quicksort",
	}, "user-1", "req_upstream", "")
	require.NoError(t, err)
	assert.Equal(t, "req_upstream", accepted.RequestID)
}

func TestIdempotentReplay(t *testing.T) {
	producer := &recordingProducer{}
	service, _, events := newFixture(t, producer)
	ctx := context.Background()

	req := &models.ExecuteAgentRequest{Task: "Blog yaz: Quicksort nedir? 2 kaynaktan referans ver."}

	first, err := service.CreateAndEnqueue(ctx, req, "user-1", "", "idem-1")
	require.NoError(t, err)

	second, err := service.CreateAndEnqueue(ctx, req, "user-1", "", "idem-1")
	require.NoError(t, err)

	assert.Equal(t, first.JobID, second.JobID)
	assert.Equal(t, first.RequestID, second.RequestID)

	// The replay neither enqueued nor logged
	assert.Len(t, producer.enqueued, 1)
	trail, err := events.ListByJob(ctx, first.JobID, 10)
	require.NoError(t, err)
	assert.Len(t, trail, 1)

	// A different task under the same key is a new admission
	third, err := service.CreateAndEnqueue(ctx, &models.ExecuteAgentRequest{Task: "Blog yaz: Rust nedir?"}, "user-1", "", "idem-1")
	require.NoError(t, err)
	assert.NotEqual(t, first.JobID, third.JobID)
}

func TestQueueUnavailableFailsJob(t *testing.T) {
	service, jobs, _ := newFixture(t, &recordingProducer{fail: true})
	ctx := context.Background()

	_, err := service.CreateAndEnqueue(ctx, &models.ExecuteAgentRequest{
		Task: "Python kodu yaz: quicksort",
	}, "user-1", "", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, queue.ErrQueueUnavailable)

	// The job was persisted and marked failed with a retryable error
	failed, err := jobs.ListByStatus(ctx, models.JobStatusFailed, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.NotNil(t, failed[0].Error)
	assert.Equal(t, "queue_unavailable", failed[0].Error.Code)
	assert.True(t, failed[0].Error.Retryable)
}

func TestGetStatusOwnerGuard(t *testing.T) {
	service, _, _ := newFixture(t, &recordingProducer{})
	ctx := context.Background()

	accepted, err := service.CreateAndEnqueue(ctx, &models.ExecuteAgentRequest{
		Task: "Python kodu yaz: quicksort",
	}, "user-1", "", "")
	require.NoError(t, err)

	status, err := service.GetStatus(ctx, accepted.JobID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, accepted.JobID, status.JobID)
	assert.Equal(t, models.JobStatusQueued, status.Status)

	_, err = service.GetStatus(ctx, accepted.JobID, "user-2")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = service.GetStatus(ctx, "j_missing", "user-1")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestListEventsOwnerGuard(t *testing.T) {
	service, _, _ := newFixture(t, &recordingProducer{})
	ctx := context.Background()

	accepted, err := service.CreateAndEnqueue(ctx, &models.ExecuteAgentRequest{
		Task: "Python kodu yaz: quicksort",
	}, "user-1", "", "")
	require.NoError(t, err)

	events, err := service.ListEvents(ctx, accepted.JobID, "user-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventRequestReceived, events[0].Type)

	_, err = service.ListEvents(ctx, accepted.JobID, "user-2", 0)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCancelQueuedJob(t *testing.T) {
	service, jobs, _ := newFixture(t, &recordingProducer{})
	ctx := context.Background()

	accepted, err := service.CreateAndEnqueue(ctx, &models.ExecuteAgentRequest{
		Task: "Python kodu yaz: quicksort",
	}, "user-1", "", "")
	require.NoError(t, err)

	status, err := service.Cancel(ctx, accepted.JobID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCanceled, status.Status)

	// Canceling again is a no-op returning the current status
	status, err = service.Cancel(ctx, accepted.JobID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCanceled, status.Status)

	job, err := jobs.Get(ctx, accepted.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCanceled, job.Status)
}

func TestCancelRunningJob(t *testing.T) {
	service, jobs, _ := newFixture(t, &recordingProducer{})
	ctx := context.Background()

	accepted, err := service.CreateAndEnqueue(ctx, &models.ExecuteAgentRequest{
		Task: "Python kodu yaz: quicksort",
	}, "user-1", "", "")
	require.NoError(t, err)

	_, err = jobs.Transition(ctx, accepted.JobID, models.JobStatusRunning, models.JobStatusQueued)
	require.NoError(t, err)

	status, err := service.Cancel(ctx, accepted.JobID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCanceled, status.Status)
}

func TestCancelOwnerGuard(t *testing.T) {
	service, _, _ := newFixture(t, &recordingProducer{})
	ctx := context.Background()

	accepted, err := service.CreateAndEnqueue(ctx, &models.ExecuteAgentRequest{
		Task: "Python kodu yaz: quicksort",
	}, "user-1", "", "")
	require.NoError(t, err)

	_, err = service.Cancel(ctx, accepted.JobID, "user-2")
	assert.ErrorIs(t, err, ErrForbidden)
}
