package interfaces

import "context"

// SearchResult is a raw candidate returned by the upstream search provider
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// SearchProvider queries the upstream web search API for candidate sources
type SearchProvider interface {
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
}

// FetchedSource is a validated source page
type FetchedSource struct {
	Title   string
	URL     string
	Excerpt string
}

// SourceFetcher validates a candidate URL by fetching it and extracting
// the page title and a plain-text excerpt
type SourceFetcher interface {
	Fetch(ctx context.Context, url string) (*FetchedSource, error)
}
