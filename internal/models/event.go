package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType classifies entries in the per-job event trail
type EventType string

const (
	EventRequestReceived EventType = "request_received"
	EventRouteDecision   EventType = "route_decision"
	EventAgentStarted    EventType = "agent_started"
	EventToolCall        EventType = "tool_call"
	EventAgentFinished   EventType = "agent_finished"
	EventError           EventType = "error"
)

// LogEvent is an immutable observability record. Events are append-only;
// per-job ordering is by TS ascending with ID as tiebreaker.
type LogEvent struct {
	ID        string         `badgerhold:"key" json:"event_id"`
	JobID     string         `badgerholdIndex:"JobID" json:"job_id"`
	RequestID string         `json:"request_id"`
	Type      EventType      `badgerholdIndex:"Type" json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	TS        time.Time      `json:"ts"`
}

// NewLogEvent builds an event with a monotonically sortable ID and a UTC
// timestamp. The nanosecond prefix keeps insertion order recoverable when
// timestamps collide.
func NewLogEvent(jobID, requestID string, eventType EventType, payload map[string]any) *LogEvent {
	now := time.Now().UTC()
	return &LogEvent{
		ID:        fmt.Sprintf("evt_%020d_%s", now.UnixNano(), uuid.New().String()[:8]),
		JobID:     jobID,
		RequestID: requestID,
		Type:      eventType,
		Payload:   payload,
		TS:        now,
	}
}
