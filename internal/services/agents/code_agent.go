// Package agents implements the task-executing agents and their lazy
// process-wide registry. Agents are stateless across runs and report
// progress through a best-effort callback.
package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mitto/internal/interfaces"
	"github.com/ternarybob/mitto/internal/models"
)

var (
	// ASCII control characters except TAB, LF and CR
	ctrlCharsRe = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F]`)

	// A markdown code fence wrapping the entire string
	codeFenceRe = regexp.MustCompile("(?s)^```[a-zA-Z0-9_-]*\n(.*)\n```$")
)

// sanitizeText removes ASCII control characters that break JSON
// round-tripping downstream
func sanitizeText(s string) string {
	return ctrlCharsRe.ReplaceAllString(s, "")
}

// stripCodeFence unwraps a surrounding markdown fence, if present
func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if m := codeFenceRe.FindStringSubmatch(trimmed); m != nil {
		return m[1]
	}
	return s
}

// parseStrictJSON unwraps an optional fence around the model response and
// decodes it rejecting unknown fields
func parseStrictJSON(response string, v any) error {
	payload := stripCodeFence(response)
	decoder := json.NewDecoder(bytes.NewReader([]byte(payload)))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("model response is not valid JSON for the expected schema: %w", err)
	}
	return nil
}

// reportProgress invokes the callback when present; the callback contract
// makes invocation best-effort so no error handling is needed here
func reportProgress(progress interfaces.ProgressFunc, value float64) {
	if progress != nil {
		progress(value)
	}
}

// CodeAgent produces structured code output (language, code, explanation)
// from a single LLM call.
type CodeAgent struct {
	llm    interfaces.LLMService
	logger arbor.ILogger
}

// NewCodeAgent creates a code agent over the given LLM service
func NewCodeAgent(llm interfaces.LLMService, logger arbor.ILogger) *CodeAgent {
	return &CodeAgent{llm: llm, logger: logger}
}

func (a *CodeAgent) Kind() models.AgentKind {
	return models.AgentKindCode
}

// Run invokes the LLM once, parses the response strictly and applies the
// sanitization guardrails before returning the serialized output.
func (a *CodeAgent) Run(ctx context.Context, task, jobID, requestID string, progress interfaces.ProgressFunc) (json.RawMessage, error) {
	reportProgress(progress, 0.30)

	messages := buildCodeMessages(stripCodeFence(sanitizeText(task)))

	reportProgress(progress, 0.70)
	response, err := a.llm.Chat(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("code generation failed: %w", err)
	}

	var output models.CodeOutput
	if err := parseStrictJSON(response, &output); err != nil {
		return nil, err
	}

	output.Code = stripCodeFence(sanitizeText(output.Code))
	output.Explanation = sanitizeText(output.Explanation)
	output.Language = sanitizeText(output.Language)

	if err := output.Validate(); err != nil {
		return nil, models.NewAgentError("empty_or_invalid_code", err.Error())
	}

	reportProgress(progress, 0.90)

	a.logger.Debug().
		Str("job_id", jobID).
		Str("request_id", requestID).
		Str("language", output.Language).
		Int("code_length", len(output.Code)).
		Msg("Code agent completed")

	serialized, err := json.Marshal(&output)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize code output: %w", err)
	}
	return serialized, nil
}
