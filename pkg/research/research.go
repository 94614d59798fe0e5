// Package research provides the web search and scraping backends the agent
// uses to gather material that is not yet part of an investigation.
package research

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// ErrNotConfigured is returned when a backend is missing its credentials.
var ErrNotConfigured = errors.New("research backend not configured")

// SearchItem is a single web search hit.
type SearchItem struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Snippet     string `json:"snippet"`
	DisplayLink string `json:"displayLink"`
}

// SearchResult is what a Searcher returns for a query. Message is set when
// the search succeeded but produced nothing.
type SearchResult struct {
	Query        string       `json:"query,omitempty"`
	Results      []SearchItem `json:"results"`
	TotalResults string       `json:"totalResults,omitempty"`
	Message      string       `json:"message,omitempty"`
}

type PageMetadata struct {
	Description   string `json:"description,omitempty"`
	Author        string `json:"author,omitempty"`
	PublishedDate string `json:"publishedDate,omitempty"`
}

// ScrapeResult is the readable content of a single page.
type ScrapeResult struct {
	URL      string       `json:"url"`
	Title    string       `json:"title"`
	Content  string       `json:"content"`
	Metadata PageMetadata `json:"metadata"`
}

type Searcher interface {
	Search(ctx context.Context, query string) (*SearchResult, error)
}

type Scraper interface {
	Scrape(ctx context.Context, url string) (*ScrapeResult, error)
}

const defaultTimeout = 30 * time.Second

func defaultHTTPClient(client *http.Client) *http.Client {
	if client != nil {
		return client
	}
	return &http.Client{Timeout: defaultTimeout}
}
