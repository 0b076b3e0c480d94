package agents

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mitto/internal/interfaces"
	"github.com/ternarybob/mitto/internal/models"
)

const minSources = 2

// ContentAgent produces a sourced answer citing at least two validated
// web sources. Candidates come from the search provider; each is
// confirmed against the domain whitelist by the fetcher before use, and
// the model's declared sources are intersected with the gathered set.
type ContentAgent struct {
	llm           interfaces.LLMService
	provider      interfaces.SearchProvider
	fetcher       interfaces.SourceFetcher
	maxCandidates int
	logger        arbor.ILogger
}

// NewContentAgent creates a content agent over the given services
func NewContentAgent(llm interfaces.LLMService, provider interfaces.SearchProvider, fetcher interfaces.SourceFetcher, maxCandidates int, logger arbor.ILogger) *ContentAgent {
	if maxCandidates <= 0 {
		maxCandidates = 5
	}
	return &ContentAgent{
		llm:           llm,
		provider:      provider,
		fetcher:       fetcher,
		maxCandidates: maxCandidates,
		logger:        logger,
	}
}

func (a *ContentAgent) Kind() models.AgentKind {
	return models.AgentKindContent
}

// gatherSources searches for candidates and validates each by fetching
// it, stopping once the minimum count is reached. Candidates that fail
// validation are skipped, not fatal.
func (a *ContentAgent) gatherSources(ctx context.Context, query string) ([]interfaces.FetchedSource, error) {
	hits, err := a.provider.Search(ctx, query, a.maxCandidates)
	if err != nil {
		return nil, fmt.Errorf("source search failed: %w", err)
	}

	sources := make([]interfaces.FetchedSource, 0, minSources)
	for _, hit := range hits {
		page, err := a.fetcher.Fetch(ctx, hit.URL)
		if err != nil {
			a.logger.Debug().
				Err(err).
				Str("url", hit.URL).
				Msg("Candidate source rejected")
			continue
		}
		title := page.Title
		if title == "" {
			title = hit.Title
		}
		sources = append(sources, interfaces.FetchedSource{
			Title:   title,
			URL:     page.URL,
			Excerpt: page.Excerpt,
		})
		if len(sources) >= minSources {
			break
		}
	}
	return sources, nil
}

// Run gathers validated sources, invokes the LLM with the source block
// and returns the answer restricted to the gathered sources.
func (a *ContentAgent) Run(ctx context.Context, task, jobID, requestID string, progress interfaces.ProgressFunc) (json.RawMessage, error) {
	reportProgress(progress, 0.20)

	sources, err := a.gatherSources(ctx, task)
	if err != nil {
		return nil, err
	}
	if len(sources) < minSources {
		return nil, models.NewAgentError("insufficient_sources",
			fmt.Sprintf("only %d whitelisted sources found, need at least %d", len(sources), minSources))
	}

	messages := buildContentMessages(task, sources)

	reportProgress(progress, 0.80)
	response, err := a.llm.Chat(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("content generation failed: %w", err)
	}

	var output models.ContentOutput
	if err := parseStrictJSON(response, &output); err != nil {
		return nil, err
	}

	// Keep only declared sources that were actually gathered
	allowed := make(map[string]struct{}, len(sources))
	for _, s := range sources {
		allowed[s.URL] = struct{}{}
	}
	filtered := make([]models.SourceRef, 0, len(output.Sources))
	for _, s := range output.Sources {
		if _, ok := allowed[s.URL]; ok {
			filtered = append(filtered, s)
		}
	}
	if len(filtered) < minSources {
		return nil, models.NewAgentError("model_output_sources_not_in_whitelist",
			fmt.Sprintf("model cited %d gathered sources, need at least %d", len(filtered), minSources))
	}
	output.Sources = filtered

	if err := output.Validate(); err != nil {
		return nil, models.NewAgentError("agent_run_error", err.Error())
	}

	reportProgress(progress, 0.90)

	a.logger.Debug().
		Str("job_id", jobID).
		Str("request_id", requestID).
		Int("sources", len(output.Sources)).
		Int("answer_length", len(output.Answer)).
		Msg("Content agent completed")

	serialized, err := json.Marshal(&output)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize content output: %w", err)
	}
	return serialized, nil
}
