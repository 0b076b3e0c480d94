package llm

import (
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mitto/internal/common"
	"github.com/ternarybob/mitto/internal/interfaces"
)

// clientKey is the full configuration tuple a client is memoized by.
// Identical requests share a client; any differing field constructs a
// new one.
type clientKey struct {
	provider    common.LLMProvider
	model       string
	apiKey      string
	temperature float32
	timeout     string
	rateLimit   string
	maxRetries  int
}

var (
	clientsMu sync.Mutex
	clients   = map[clientKey]interfaces.LLMService{}
)

// GetService returns a memoized LLM service for the configured provider,
// constructing it lazily on first use.
func GetService(config *common.Config, logger arbor.ILogger) (interfaces.LLMService, error) {
	key, err := buildKey(config)
	if err != nil {
		return nil, err
	}

	clientsMu.Lock()
	defer clientsMu.Unlock()

	if service, ok := clients[key]; ok {
		return service, nil
	}

	var service interfaces.LLMService
	switch config.LLM.DefaultProvider {
	case common.LLMProviderClaude, "":
		service, err = NewClaudeService(&config.Claude, logger)
	case common.LLMProviderGemini:
		service, err = NewGeminiService(&config.Gemini, logger)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", config.LLM.DefaultProvider)
	}
	if err != nil {
		return nil, err
	}

	clients[key] = service
	return service, nil
}

func buildKey(config *common.Config) (clientKey, error) {
	switch config.LLM.DefaultProvider {
	case common.LLMProviderClaude, "":
		return clientKey{
			provider:    common.LLMProviderClaude,
			model:       config.Claude.Model,
			apiKey:      config.Claude.APIKey,
			temperature: config.Claude.Temperature,
			timeout:     config.Claude.Timeout,
			rateLimit:   config.Claude.RateLimit,
			maxRetries:  config.Claude.MaxRetries,
		}, nil
	case common.LLMProviderGemini:
		return clientKey{
			provider:    common.LLMProviderGemini,
			model:       config.Gemini.Model,
			apiKey:      config.Gemini.APIKey,
			temperature: config.Gemini.Temperature,
			timeout:     config.Gemini.Timeout,
			rateLimit:   config.Gemini.RateLimit,
			maxRetries:  config.Gemini.MaxRetries,
		}, nil
	default:
		return clientKey{}, fmt.Errorf("unsupported LLM provider: %s", config.LLM.DefaultProvider)
	}
}
