package search

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mitto/internal/common"
)

func newTestProvider(t *testing.T, baseURL string) *Provider {
	t.Helper()
	provider, err := NewProvider(&common.SearchConfig{
		APIKey:        "test-key",
		BaseURL:       baseURL,
		MaxCandidates: 5,
	}, arbor.NewLogger())
	require.NoError(t, err)
	return provider
}

func TestNewProviderRequiresAPIKey(t *testing.T) {
	_, err := NewProvider(&common.SearchConfig{}, arbor.NewLogger())
	assert.Error(t, err)
}

func TestSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.URL.Query().Get("api_key"))
		assert.Equal(t, "quicksort nedir", r.URL.Query().Get("q"))
		assert.Equal(t, "3", r.URL.Query().Get("num"))
		fmt.Fprint(w, `{"organic_results":[
			{"title":"Quicksort - Wikipedia","link":"https://en.wikipedia.org/wiki/Quicksort","snippet":"a sorting algorithm"},
			{"title":"No link result","snippet":"dropped"},
			{"title":"Sorting HOWTO","link":"https://docs.python.org/3/howto/sorting.html"}
		]}`)
	}))
	defer server.Close()

	provider := newTestProvider(t, server.URL)

	results, err := provider.Search(context.Background(), "quicksort nedir", 3)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Quicksort - Wikipedia", results[0].Title)
	assert.Equal(t, "https://en.wikipedia.org/wiki/Quicksort", results[0].URL)
	assert.Equal(t, "a sorting algorithm", results[0].Snippet)
	assert.Equal(t, "https://docs.python.org/3/howto/sorting.html", results[1].URL)
}

func TestSearchCapsResultsAtLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"organic_results":[
			{"title":"a","link":"https://a.example.com/"},
			{"title":"b","link":"https://b.example.com/"},
			{"title":"c","link":"https://c.example.com/"}
		]}`)
	}))
	defer server.Close()

	provider := newTestProvider(t, server.URL)

	results, err := provider.Search(context.Background(), "q", 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearchTruncatesLongTitles(t *testing.T) {
	long := strings.Repeat("t", 500)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"organic_results":[{"title":"%s","link":"https://a.example.com/"}]}`, long)
	}))
	defer server.Close()

	provider := newTestProvider(t, server.URL)

	results, err := provider.Search(context.Background(), "q", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Len(t, results[0].Title, maxTitleLength)
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	provider := newTestProvider(t, "http://127.0.0.1:0")

	_, err := provider.Search(context.Background(), "  ", 5)
	assert.Error(t, err)
}

func TestSearchProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":"Your account has run out of searches."}`)
	}))
	defer server.Close()

	provider := newTestProvider(t, server.URL)

	_, err := provider.Search(context.Background(), "q", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run out of searches")
}

func TestSearchNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	provider := newTestProvider(t, server.URL)

	_, err := provider.Search(context.Background(), "q", 5)
	assert.Error(t, err)
}
