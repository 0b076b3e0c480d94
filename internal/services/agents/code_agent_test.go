package agents

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mitto/internal/interfaces"
	"github.com/ternarybob/mitto/internal/models"
)

type stubLLM struct {
	response string
	err      error
	messages []interfaces.Message
}

func (s *stubLLM) Chat(ctx context.Context, messages []interfaces.Message) (string, error) {
	s.messages = messages
	return s.response, s.err
}

func (s *stubLLM) HealthCheck(ctx context.Context) error { return nil }

func (s *stubLLM) Close() error { return nil }

func TestCodeAgentHappyPath(t *testing.T) {
	llm := &stubLLM{response: `{"language":"python","code":"def quicksort(xs):\n    return xs","explanation":"toy"}`}
	agent := NewCodeAgent(llm, arbor.NewLogger())

	var reported []float64
	output, err := agent.Run(context.Background(), "Python kodu yaz: quicksort", "j_1", "req_1", func(v float64) {
		reported = append(reported, v)
	})
	require.NoError(t, err)

	var parsed models.CodeOutput
	require.NoError(t, json.Unmarshal(output, &parsed))
	assert.Equal(t, "python", parsed.Language)
	assert.Contains(t, parsed.Code, "quicksort")

	assert.Equal(t, []float64{0.30, 0.70, 0.90}, reported)
}

func TestCodeAgentStripsFenceFromResponse(t *testing.T) {
	llm := &stubLLM{response: "```json\n{\"language\":\"go\",\"code\":\"package main\\n\\nfunc main() {}\"}\n```"}
	agent := NewCodeAgent(llm, arbor.NewLogger())

	output, err := agent.Run(context.Background(), "go kodu yaz", "j_1", "req_1", nil)
	require.NoError(t, err)

	var parsed models.CodeOutput
	require.NoError(t, json.Unmarshal(output, &parsed))
	assert.Equal(t, "go", parsed.Language)
}

func TestCodeAgentStripsFenceFromCodeField(t *testing.T) {
	llm := &stubLLM{response: `{"language":"python","code":"` + "```python\\nprint(1)\\n```" + `"}`}
	agent := NewCodeAgent(llm, arbor.NewLogger())

	output, err := agent.Run(context.Background(), "python kodu yaz", "j_1", "req_1", nil)
	require.NoError(t, err)

	var parsed models.CodeOutput
	require.NoError(t, json.Unmarshal(output, &parsed))
	assert.Equal(t, "print(1)", parsed.Code)
}

func TestCodeAgentSanitizesControlChars(t *testing.T) {
	llm := &stubLLM{response: `{"language":"python","code":"print(1); print(2)"}`}
	agent := NewCodeAgent(llm, arbor.NewLogger())

	output, err := agent.Run(context.Background(), "python kodu yaz", "j_1", "req_1", nil)
	require.NoError(t, err)

	var parsed models.CodeOutput
	require.NoError(t, json.Unmarshal(output, &parsed))
	assert.Equal(t, "python", parsed.Language)
	assert.Equal(t, "print(1); print(2)", parsed.Code)
}

func TestCodeAgentKeepsTabsAndNewlines(t *testing.T) {
	assert.Equal(t, "a\tb\nc\rd", sanitizeText("a\tb\nc\rd"))
	assert.Equal(t, "ab", sanitizeText("a\x00\x08\x0b\x0c\x0e\x1fb"))
}

func TestCodeAgentRejectsShortCode(t *testing.T) {
	llm := &stubLLM{response: `{"language":"python","code":"  x  "}`}
	agent := NewCodeAgent(llm, arbor.NewLogger())

	_, err := agent.Run(context.Background(), "python kodu yaz", "j_1", "req_1", nil)
	require.Error(t, err)

	var agentErr *models.AgentError
	require.ErrorAs(t, err, &agentErr)
	assert.Equal(t, "empty_or_invalid_code", agentErr.Code)
	assert.False(t, agentErr.Retryable)
}

func TestCodeAgentRejectsInvalidJSON(t *testing.T) {
	llm := &stubLLM{response: "Sure! Here is your code: print(1)"}
	agent := NewCodeAgent(llm, arbor.NewLogger())

	_, err := agent.Run(context.Background(), "python kodu yaz", "j_1", "req_1", nil)
	assert.Error(t, err)
}

func TestCodeAgentRejectsUnknownFields(t *testing.T) {
	llm := &stubLLM{response: `{"language":"python","code":"print(1)","stdout":"1"}`}
	agent := NewCodeAgent(llm, arbor.NewLogger())

	_, err := agent.Run(context.Background(), "python kodu yaz", "j_1", "req_1", nil)
	assert.Error(t, err)
}

func TestCodeAgentNilProgress(t *testing.T) {
	llm := &stubLLM{response: `{"language":"python","code":"print(1) # ok"}`}
	agent := NewCodeAgent(llm, arbor.NewLogger())

	_, err := agent.Run(context.Background(), "python kodu yaz", "j_1", "req_1", nil)
	assert.NoError(t, err)
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, "print(1)", stripCodeFence("```python\nprint(1)\n```"))
	assert.Equal(t, "print(1)", stripCodeFence("```\nprint(1)\n```"))
	assert.Equal(t, "no fence here", stripCodeFence("no fence here"))
	// Inner fences are preserved
	assert.Equal(t, "a\n```\nb", stripCodeFence("```md\na\n```\nb\n```"))
}
