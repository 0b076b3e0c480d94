package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mitto/internal/common"
	"github.com/ternarybob/mitto/internal/interfaces"
)

func claudeConfig(model string) *common.Config {
	return &common.Config{
		LLM: common.LLMConfig{DefaultProvider: common.LLMProviderClaude},
		Claude: common.ClaudeConfig{
			APIKey:  "test-key",
			Model:   model,
			Timeout: "30s",
		},
	}
}

func TestGetServiceMemoizesByConfig(t *testing.T) {
	logger := arbor.NewLogger()

	first, err := GetService(claudeConfig("claude-haiku-3-5-20241022"), logger)
	require.NoError(t, err)

	second, err := GetService(claudeConfig("claude-haiku-3-5-20241022"), logger)
	require.NoError(t, err)
	assert.Same(t, first, second)

	other, err := GetService(claudeConfig("claude-sonnet-4-20250514"), logger)
	require.NoError(t, err)
	assert.NotSame(t, first, other)
}

func TestGetServiceDefaultsToClaude(t *testing.T) {
	config := claudeConfig("claude-haiku-3-5-20241022")
	config.LLM.DefaultProvider = ""

	service, err := GetService(config, arbor.NewLogger())
	require.NoError(t, err)
	assert.IsType(t, &ClaudeService{}, service)
}

func TestGetServiceUnsupportedProvider(t *testing.T) {
	config := claudeConfig("claude-haiku-3-5-20241022")
	config.LLM.DefaultProvider = "openai"

	_, err := GetService(config, arbor.NewLogger())
	assert.Error(t, err)
}

func TestNewClaudeServiceRequiresAPIKey(t *testing.T) {
	_, err := NewClaudeService(&common.ClaudeConfig{Timeout: "30s"}, arbor.NewLogger())
	assert.Error(t, err)
}

func TestNewClaudeServiceRejectsBadTimeout(t *testing.T) {
	_, err := NewClaudeService(&common.ClaudeConfig{
		APIKey:  "test-key",
		Timeout: "whenever",
	}, arbor.NewLogger())
	assert.Error(t, err)
}

func TestNewLimiter(t *testing.T) {
	unlimited, err := newLimiter("")
	require.NoError(t, err)
	assert.True(t, unlimited.Allow())
	assert.True(t, unlimited.Allow())

	spaced, err := newLimiter("100ms")
	require.NoError(t, err)
	assert.True(t, spaced.Allow())
	assert.False(t, spaced.Allow())
	time.Sleep(120 * time.Millisecond)
	assert.True(t, spaced.Allow())

	_, err = newLimiter("often")
	assert.Error(t, err)
}

func TestConvertMessagesToClaude(t *testing.T) {
	messages := []interfaces.Message{
		{Role: "system", Content: "you are terse"},
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi"},
		{Role: "user", Content: "bye"},
	}

	converted, system, err := convertMessagesToClaude(messages)
	require.NoError(t, err)
	assert.Equal(t, "you are terse", system)
	assert.Len(t, converted, 3)

	_, _, err = convertMessagesToClaude(nil)
	assert.Error(t, err)

	_, _, err = convertMessagesToClaude([]interfaces.Message{{Role: "system", Content: "only system"}})
	assert.Error(t, err)
}
