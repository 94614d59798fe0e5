package research

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/OFFIS-RIT/caseboard/backend/pkg/logger"
)

const DefaultFirecrawlEndpoint = "https://api.firecrawl.dev"

// FirecrawlScraper renders pages through the Firecrawl scrape API and
// returns their main content as markdown.
type FirecrawlScraper struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

type NewFirecrawlScraperParams struct {
	APIKey     string
	Endpoint   string
	HTTPClient *http.Client
}

func NewFirecrawlScraper(params NewFirecrawlScraperParams) *FirecrawlScraper {
	endpoint := strings.TrimSuffix(params.Endpoint, "/")
	if endpoint == "" {
		endpoint = DefaultFirecrawlEndpoint
	}
	return &FirecrawlScraper{
		apiKey:   params.APIKey,
		endpoint: endpoint,
		client:   defaultHTTPClient(params.HTTPClient),
	}
}

// WithAPIKey returns a copy of the scraper using apiKey. An empty key keeps
// the current one.
func (f *FirecrawlScraper) WithAPIKey(apiKey string) *FirecrawlScraper {
	clone := *f
	if apiKey != "" {
		clone.apiKey = apiKey
	}
	return &clone
}

func (f *FirecrawlScraper) Configured() bool {
	return f != nil && f.apiKey != ""
}

type firecrawlRequest struct {
	URL             string   `json:"url"`
	Formats         []string `json:"formats"`
	OnlyMainContent bool     `json:"onlyMainContent"`
}

type firecrawlResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    struct {
		Markdown string `json:"markdown"`
		Content  string `json:"content"`
		Metadata struct {
			Title         string `json:"title"`
			Description   string `json:"description"`
			Author        string `json:"author"`
			PublishedDate string `json:"publishedDate"`
		} `json:"metadata"`
	} `json:"data"`
}

func (f *FirecrawlScraper) Scrape(ctx context.Context, pageURL string) (*ScrapeResult, error) {
	if !f.Configured() {
		return nil, fmt.Errorf("%w: Firecrawl API key not configured. Please add it in settings.", ErrNotConfigured)
	}

	body, err := json.Marshal(firecrawlRequest{
		URL:             pageURL,
		Formats:         []string{"markdown"},
		OnlyMainContent: true,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint+"/v1/scrape", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+f.apiKey)
	req.Header.Set("Content-Type", "application/json")

	logger.Debug("[Research] Scraping with Firecrawl", "url", pageURL)
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scraping failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read firecrawl response: %w", err)
	}

	var data firecrawlResponse
	decodeErr := json.Unmarshal(raw, &data)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := http.StatusText(resp.StatusCode)
		if decodeErr == nil && data.Error != "" {
			msg = data.Error
		}
		return nil, fmt.Errorf("firecrawl api error: %s", msg)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to decode firecrawl response: %w", decodeErr)
	}
	if !data.Success {
		return nil, fmt.Errorf("failed to scrape webpage")
	}

	result := &ScrapeResult{
		URL:     pageURL,
		Title:   data.Data.Metadata.Title,
		Content: data.Data.Markdown,
		Metadata: PageMetadata{
			Description:   data.Data.Metadata.Description,
			Author:        data.Data.Metadata.Author,
			PublishedDate: data.Data.Metadata.PublishedDate,
		},
	}
	if result.Title == "" {
		result.Title = pageURL
	}
	if result.Content == "" {
		result.Content = data.Data.Content
	}
	return result, nil
}
