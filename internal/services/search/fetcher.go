package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mitto/internal/common"
	"github.com/ternarybob/mitto/internal/httpclient"
	"github.com/ternarybob/mitto/internal/interfaces"
)

const (
	maxFetchBytes    = 2 << 20 // 2 MiB page cap
	maxExcerptLength = 2000
)

// ErrDomainNotAllowed marks a URL whose host is outside the whitelist
var ErrDomainNotAllowed = fmt.Errorf("domain not in whitelist")

// Fetcher validates candidate URLs against the domain whitelist and
// extracts the page title plus a plain-text excerpt
type Fetcher struct {
	config    *common.SearchConfig
	client    *http.Client
	converter *md.Converter
	logger    arbor.ILogger
}

// NewFetcher creates a source fetcher from configuration
func NewFetcher(config *common.SearchConfig, logger arbor.ILogger) (*Fetcher, error) {
	timeout := 10 * time.Second
	if config.FetchTimeout != "" {
		parsed, err := time.ParseDuration(config.FetchTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid fetch timeout '%s': %w", config.FetchTimeout, err)
		}
		timeout = parsed
	}

	return &Fetcher{
		config:    config,
		client:    httpclient.NewDefaultHTTPClient(timeout),
		converter: md.NewConverter("", true, nil),
		logger:    logger,
	}, nil
}

// Allowed reports whether the URL's host equals a whitelisted domain or
// is a subdomain of one. Non-HTTP schemes are rejected.
func (f *Fetcher) Allowed(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return false
	}

	for _, domain := range f.config.AllowedDomains {
		d := strings.ToLower(strings.TrimSpace(domain))
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// Fetch retrieves a whitelisted URL and extracts its title and excerpt.
// Returns ErrDomainNotAllowed without issuing a request when the host is
// outside the whitelist.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*interfaces.FetchedSource, error) {
	if !f.Allowed(rawURL) {
		return nil, fmt.Errorf("%w: %s", ErrDomainNotAllowed, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build fetch request: %w", err)
	}
	req.Header.Set("User-Agent", "mitto/"+common.Version)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch failed for %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch returned status %d for %s", resp.StatusCode, rawURL)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML from %s: %w", rawURL, err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}
	if len(title) > maxTitleLength {
		title = title[:maxTitleLength]
	}

	excerpt := f.extractExcerpt(doc)

	f.logger.Debug().
		Str("url", rawURL).
		Str("title", title).
		Int("excerpt_length", len(excerpt)).
		Msg("Source fetched")

	return &interfaces.FetchedSource{
		Title:   title,
		URL:     rawURL,
		Excerpt: excerpt,
	}, nil
}

// extractExcerpt converts the page body to markdown and keeps a bounded
// prefix. Script and style elements are stripped before conversion.
func (f *Fetcher) extractExcerpt(doc *goquery.Document) string {
	body := doc.Find("body").First()
	if body.Length() == 0 {
		return ""
	}

	body.Find("script, style, nav, footer, noscript").Remove()

	html, err := body.Html()
	if err != nil {
		return strings.TrimSpace(body.Text())
	}

	markdown, err := f.converter.ConvertString(html)
	if err != nil {
		markdown = body.Text()
	}

	excerpt := strings.TrimSpace(markdown)
	if len(excerpt) > maxExcerptLength {
		excerpt = excerpt[:maxExcerptLength]
	}
	return excerpt
}
