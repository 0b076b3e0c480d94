package interfaces

import (
	"context"
	"encoding/json"

	"github.com/ternarybob/mitto/internal/models"
)

// ProgressFunc reports fractional completion in [0, 1]. Invocations are
// best-effort: implementations swallow their own failures and never panic
// into the agent.
type ProgressFunc func(value float64)

// Agent executes a task and returns its structured output serialized as
// JSON. Implementations are stateless across runs and safe for concurrent
// use.
type Agent interface {
	Kind() models.AgentKind
	Run(ctx context.Context, task, jobID, requestID string, progress ProgressFunc) (json.RawMessage, error)
}

// AgentRegistry resolves agent instances by kind
type AgentRegistry interface {
	Get(kind models.AgentKind) (Agent, error)
}
