package models

import (
	"fmt"
	"strings"
)

// SourceRef is a validated content source
type SourceRef struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// CodeOutput is the structured result of the code agent
type CodeOutput struct {
	Language    string `json:"language"`
	Code        string `json:"code"`
	Explanation string `json:"explanation,omitempty"`
}

// Validate enforces the code output shape: non-empty language and at
// least 5 non-whitespace characters of code.
func (o *CodeOutput) Validate() error {
	if strings.TrimSpace(o.Language) == "" {
		return fmt.Errorf("language is required")
	}
	if len(strings.Join(strings.Fields(o.Code), "")) < 5 {
		return fmt.Errorf("code must contain at least 5 non-whitespace characters")
	}
	return nil
}

// ContentOutput is the structured result of the content agent
type ContentOutput struct {
	Answer  string      `json:"answer"`
	Sources []SourceRef `json:"sources"`
}

// Validate enforces the content output shape: answer of at least 10
// characters and at least 2 sources with usable titles.
func (o *ContentOutput) Validate() error {
	if len(strings.TrimSpace(o.Answer)) < 10 {
		return fmt.Errorf("answer must be at least 10 characters")
	}
	if len(o.Sources) < 2 {
		return fmt.Errorf("at least 2 sources are required")
	}
	for _, src := range o.Sources {
		if len(src.Title) < 2 {
			return fmt.Errorf("source title must be at least 2 characters")
		}
		if src.URL == "" {
			return fmt.Errorf("source url is required")
		}
	}
	return nil
}

// AgentError is a typed failure raised by an agent run. Code feeds the
// job error record; Retryable marks transient transport failures that
// warrant broker redelivery.
type AgentError struct {
	Code      string
	Message   string
	Retryable bool
	Detail    map[string]any
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewAgentError builds a non-retryable agent error
func NewAgentError(code, message string) *AgentError {
	return &AgentError{Code: code, Message: message}
}
