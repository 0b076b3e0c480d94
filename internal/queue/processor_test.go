package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mitto/internal/common"
	"github.com/ternarybob/mitto/internal/interfaces"
	"github.com/ternarybob/mitto/internal/models"
	badgerstorage "github.com/ternarybob/mitto/internal/storage/badger"
)

type stubAgent struct {
	kind models.AgentKind
	run  func(ctx context.Context, task, jobID, requestID string, progress interfaces.ProgressFunc) (json.RawMessage, error)
}

func (a *stubAgent) Kind() models.AgentKind { return a.kind }

func (a *stubAgent) Run(ctx context.Context, task, jobID, requestID string, progress interfaces.ProgressFunc) (json.RawMessage, error) {
	return a.run(ctx, task, jobID, requestID, progress)
}

type stubRegistry struct {
	agent interfaces.Agent
	err   error
}

func (r *stubRegistry) Get(kind models.AgentKind) (interfaces.Agent, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.agent, nil
}

func newProcessorFixture(t *testing.T, registry interfaces.AgentRegistry) (*JobProcessor, interfaces.JobStorage, interfaces.EventStorage) {
	t.Helper()
	manager, err := badgerstorage.NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	jobs := manager.JobStorage()
	events := manager.EventStorage()
	return NewJobProcessor(jobs, events, registry, arbor.NewLogger()), jobs, events
}

func eventTypes(events []*models.LogEvent) []models.EventType {
	types := make([]models.EventType, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	return types
}

func TestProcessHappyPath(t *testing.T) {
	registry := &stubRegistry{agent: &stubAgent{
		kind: models.AgentKindCode,
		run: func(ctx context.Context, task, jobID, requestID string, progress interfaces.ProgressFunc) (json.RawMessage, error) {
			progress(0.30)
			progress(0.90)
			return json.RawMessage(`{"language":"python","code":"print(1)"}`), nil
		},
	}}
	processor, jobs, events := newProcessorFixture(t, registry)
	ctx := context.Background()

	job := models.NewJob("j_1", "req_1", "user-1", "Python kodu yaz: quicksort", "", "")
	require.NoError(t, jobs.Create(ctx, job))

	err := processor.Process(ctx, &models.ExecuteMessage{JobID: "j_1", RequestID: "req_1"})
	require.NoError(t, err)

	final, err := jobs.Get(ctx, "j_1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusSucceeded, final.Status)
	assert.Equal(t, 1, final.Attempts)
	require.NotNil(t, final.Result)
	assert.Equal(t, models.AgentKindCode, final.Result.Agent)
	require.NotNil(t, final.DecidedAgent)
	assert.Equal(t, models.AgentKindCode, *final.DecidedAgent)
	require.NotNil(t, final.Progress)
	assert.Equal(t, 1.0, *final.Progress)

	trail, err := events.ListByJob(ctx, "j_1", 100)
	require.NoError(t, err)
	types := eventTypes(trail)
	assert.Contains(t, types, models.EventRouteDecision)
	assert.Contains(t, types, models.EventAgentFinished)
	assert.Contains(t, types, models.EventToolCall)
	// agent_started fires once at claim and once with the resolved kind
	started := 0
	for _, eventType := range types {
		if eventType == models.EventAgentStarted {
			started++
		}
	}
	assert.Equal(t, 2, started)
}

func TestProcessLostClaimIsAcked(t *testing.T) {
	registry := &stubRegistry{agent: &stubAgent{
		kind: models.AgentKindCode,
		run: func(ctx context.Context, task, jobID, requestID string, progress interfaces.ProgressFunc) (json.RawMessage, error) {
			t.Fatal("agent must not run without a claim")
			return nil, nil
		},
	}}
	processor, jobs, events := newProcessorFixture(t, registry)
	ctx := context.Background()

	job := models.NewJob("j_1", "req_1", "user-1", "Python kodu yaz: quicksort", "", "")
	require.NoError(t, jobs.Create(ctx, job))
	_, err := jobs.Transition(ctx, "j_1", models.JobStatusRunning, models.JobStatusQueued)
	require.NoError(t, err)

	// Duplicate delivery: claim fails, message is redundant
	err = processor.Process(ctx, &models.ExecuteMessage{JobID: "j_1", RequestID: "req_1"})
	assert.NoError(t, err)

	final, err := jobs.Get(ctx, "j_1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, final.Status)

	trail, err := events.ListByJob(ctx, "j_1", 100)
	require.NoError(t, err)
	require.NotEmpty(t, trail)
	last := trail[len(trail)-1]
	assert.Equal(t, models.EventError, last.Type)
	assert.Equal(t, "state_not_queued_or_already_taken", last.Payload["code"])
}

func TestProcessMissingJobIsAcked(t *testing.T) {
	registry := &stubRegistry{}
	processor, _, _ := newProcessorFixture(t, registry)

	err := processor.Process(context.Background(), &models.ExecuteMessage{JobID: "j_ghost", RequestID: "req_1"})
	assert.NoError(t, err)
}

func TestProcessAgentErrorNotRetryable(t *testing.T) {
	registry := &stubRegistry{agent: &stubAgent{
		kind: models.AgentKindContent,
		run: func(ctx context.Context, task, jobID, requestID string, progress interfaces.ProgressFunc) (json.RawMessage, error) {
			progress(0.20)
			return nil, models.NewAgentError("insufficient_sources", "only 1 whitelisted source found")
		},
	}}
	processor, jobs, _ := newProcessorFixture(t, registry)
	ctx := context.Background()

	job := models.NewJob("j_1", "req_1", "user-1", "Blog yaz: Quicksort nedir? 2 kaynaktan referans ver.", "", "")
	require.NoError(t, jobs.Create(ctx, job))

	// Non-retryable failures are recorded and the message is acked
	err := processor.Process(ctx, &models.ExecuteMessage{JobID: "j_1", RequestID: "req_1"})
	assert.NoError(t, err)

	final, err := jobs.Get(ctx, "j_1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, final.Status)
	require.NotNil(t, final.Error)
	assert.Equal(t, "insufficient_sources", final.Error.Code)
	assert.False(t, final.Error.Retryable)

	// The in-flight progress write was flushed before returning
	require.NotNil(t, final.Progress)
	assert.Equal(t, 0.2, *final.Progress)
}

func TestProcessTransientErrorRequestsRedelivery(t *testing.T) {
	transient := fmt.Errorf("llm call: %w", context.DeadlineExceeded)
	registry := &stubRegistry{agent: &stubAgent{
		kind: models.AgentKindCode,
		run: func(ctx context.Context, task, jobID, requestID string, progress interfaces.ProgressFunc) (json.RawMessage, error) {
			return nil, transient
		},
	}}
	processor, jobs, _ := newProcessorFixture(t, registry)
	ctx := context.Background()

	job := models.NewJob("j_1", "req_1", "user-1", "Python kodu yaz: quicksort", "", "")
	require.NoError(t, jobs.Create(ctx, job))

	err := processor.Process(ctx, &models.ExecuteMessage{JobID: "j_1", RequestID: "req_1"})
	assert.Error(t, err)

	final, err := jobs.Get(ctx, "j_1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, final.Status)
	require.NotNil(t, final.Error)
	assert.Equal(t, "agent_run_error", final.Error.Code)
	assert.True(t, final.Error.Retryable)
}

func TestProcessSucceedLostToCancel(t *testing.T) {
	jobsRef := make(chan interfaces.JobStorage, 1)
	registry := &stubRegistry{agent: &stubAgent{
		kind: models.AgentKindCode,
		run: func(ctx context.Context, task, jobID, requestID string, progress interfaces.ProgressFunc) (json.RawMessage, error) {
			// Cancel lands while the agent is working
			jobs := <-jobsRef
			_, err := jobs.Transition(ctx, jobID, models.JobStatusCanceled, models.JobStatusRunning)
			require.NoError(t, err)
			return json.RawMessage(`{"language":"go","code":"package main"}`), nil
		},
	}}
	processor, jobs, events := newProcessorFixture(t, registry)
	jobsRef <- jobs
	ctx := context.Background()

	job := models.NewJob("j_1", "req_1", "user-1", "Python kodu yaz: quicksort", "", "")
	require.NoError(t, jobs.Create(ctx, job))

	err := processor.Process(ctx, &models.ExecuteMessage{JobID: "j_1", RequestID: "req_1"})
	assert.NoError(t, err)

	final, err := jobs.Get(ctx, "j_1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCanceled, final.Status)
	assert.Nil(t, final.Result)

	trail, err := events.ListByJob(ctx, "j_1", 100)
	require.NoError(t, err)
	found := false
	for _, e := range trail {
		if e.Type == models.EventError && e.Payload["msg"] == "state_not_modified" {
			found = true
		}
	}
	assert.True(t, found, "expected a state_not_modified error event")
}

func TestClassifyRunError(t *testing.T) {
	agentErr := classifyRunError(models.NewAgentError("empty_or_invalid_code", "code too short"))
	assert.Equal(t, "empty_or_invalid_code", agentErr.Code)
	assert.False(t, agentErr.Retryable)

	timeout := classifyRunError(fmt.Errorf("chat: %w", context.DeadlineExceeded))
	assert.Equal(t, "agent_run_error", timeout.Code)
	assert.True(t, timeout.Retryable)

	generic := classifyRunError(fmt.Errorf("model response is not valid JSON"))
	assert.Equal(t, "agent_run_error", generic.Code)
	assert.False(t, generic.Retryable)
}
