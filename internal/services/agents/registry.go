package agents

import (
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mitto/internal/common"
	"github.com/ternarybob/mitto/internal/interfaces"
	"github.com/ternarybob/mitto/internal/models"
	"github.com/ternarybob/mitto/internal/services/llm"
	"github.com/ternarybob/mitto/internal/services/search"
)

// Registry memoizes agent instances by kind, constructing them lazily on
// first request. Construction happens outside the lock, so two concurrent
// first-gets of the same kind may construct twice; the last write wins
// and the extra instance is discarded. Agents are stateless so this is
// harmless. The instance map only grows.
type Registry struct {
	config *common.Config
	logger arbor.ILogger

	mu     sync.RWMutex
	agents map[models.AgentKind]interfaces.Agent
}

// NewRegistry creates an empty agent registry
func NewRegistry(config *common.Config, logger arbor.ILogger) *Registry {
	return &Registry{
		config: config,
		logger: logger,
		agents: make(map[models.AgentKind]interfaces.Agent),
	}
}

// Get returns the agent for the given kind, constructing it on first use
func (r *Registry) Get(kind models.AgentKind) (interfaces.Agent, error) {
	r.mu.RLock()
	agent, ok := r.agents[kind]
	r.mu.RUnlock()
	if ok {
		return agent, nil
	}

	agent, err := r.build(kind)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.agents[kind] = agent
	r.mu.Unlock()

	r.logger.Debug().
		Str("agent", string(kind)).
		Msg("Agent constructed")

	return agent, nil
}

func (r *Registry) build(kind models.AgentKind) (interfaces.Agent, error) {
	service, err := llm.GetService(r.config, r.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build LLM service for agent '%s': %w", kind, err)
	}

	switch kind {
	case models.AgentKindCode:
		return NewCodeAgent(service, r.logger), nil

	case models.AgentKindContent:
		provider, err := search.NewProvider(&r.config.Search, r.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to build search provider: %w", err)
		}
		fetcher, err := search.NewFetcher(&r.config.Search, r.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to build source fetcher: %w", err)
		}
		return NewContentAgent(service, provider, fetcher, r.config.Search.MaxCandidates, r.logger), nil

	default:
		return nil, fmt.Errorf("unknown agent kind: %s", kind)
	}
}
