// Package search finds and validates web sources for content tasks. The
// provider queries an upstream search API for candidates; the fetcher
// confirms each candidate resolves against the configured domain
// whitelist before it may be cited.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mitto/internal/common"
	"github.com/ternarybob/mitto/internal/httpclient"
	"github.com/ternarybob/mitto/internal/interfaces"
)

const maxTitleLength = 240

// Provider queries a SerpAPI-compatible endpoint for organic results
type Provider struct {
	config *common.SearchConfig
	client *http.Client
	logger arbor.ILogger
}

// NewProvider creates a search provider from configuration
func NewProvider(config *common.SearchConfig, logger arbor.ILogger) (*Provider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("search API key is required (set via MITTO_SEARCH_API_KEY or search.api_key in config)")
	}

	timeout := 10 * time.Second
	if config.FetchTimeout != "" {
		parsed, err := time.ParseDuration(config.FetchTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid fetch timeout '%s': %w", config.FetchTimeout, err)
		}
		timeout = parsed
	}

	return &Provider{
		config: config,
		client: httpclient.NewDefaultHTTPClient(timeout),
		logger: logger,
	}, nil
}

// serpResponse mirrors the subset of the SerpAPI response we consume
type serpResponse struct {
	OrganicResults []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic_results"`
	Error string `json:"error"`
}

// Search queries the upstream API and returns up to limit candidates.
// Results missing a link are dropped; titles are truncated.
func (p *Provider) Search(ctx context.Context, query string, limit int) ([]interfaces.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("search query cannot be empty")
	}
	if limit <= 0 {
		limit = p.config.MaxCandidates
	}

	reqURL, err := url.Parse(p.config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid search base URL: %w", err)
	}
	params := url.Values{}
	params.Set("api_key", p.config.APIKey)
	params.Set("q", query)
	params.Set("num", strconv.Itoa(limit))
	reqURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("search provider returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed serpResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("search provider error: %s", parsed.Error)
	}

	results := make([]interfaces.SearchResult, 0, len(parsed.OrganicResults))
	for _, r := range parsed.OrganicResults {
		if r.Link == "" {
			continue
		}
		title := strings.TrimSpace(r.Title)
		if len(title) > maxTitleLength {
			title = title[:maxTitleLength]
		}
		results = append(results, interfaces.SearchResult{
			Title:   title,
			URL:     r.Link,
			Snippet: r.Snippet,
		})
		if len(results) >= limit {
			break
		}
	}

	p.logger.Debug().
		Str("query", query).
		Int("candidates", len(results)).
		Msg("Search completed")

	return results, nil
}
