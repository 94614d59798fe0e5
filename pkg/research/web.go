package research

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/OFFIS-RIT/caseboard/backend/pkg/logger"

	"codeberg.org/readeck/go-readability/v2"
	"github.com/k3a/html2text"
	"github.com/patrickmn/go-cache"
	"golang.org/x/net/html"
	"golang.org/x/sync/singleflight"
)

const (
	maxPageBytes     = 4 << 20
	defaultUserAgent = "Mozilla/5.0 (compatible; CaseboardResearch/1.0)"
)

// WebScraper fetches pages directly and extracts their main content with
// readability. It needs no credentials and serves as the fallback when no
// hosted scraper is configured.
type WebScraper struct {
	client    *http.Client
	userAgent string

	cache *cache.Cache
	group singleflight.Group
}

type NewWebScraperParams struct {
	HTTPClient *http.Client
	UserAgent  string
	CacheTTL   time.Duration
}

func NewWebScraper(params NewWebScraperParams) *WebScraper {
	ua := params.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	ttl := params.CacheTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &WebScraper{
		client:    defaultHTTPClient(params.HTTPClient),
		userAgent: ua,
		cache:     cache.New(ttl, 2*ttl),
	}
}

func (w *WebScraper) Scrape(ctx context.Context, pageURL string) (*ScrapeResult, error) {
	if cached, ok := w.cache.Get(pageURL); ok {
		return cached.(*ScrapeResult), nil
	}

	result, err, _ := w.group.Do(pageURL, func() (any, error) {
		res, err := w.fetch(ctx, pageURL)
		if err != nil {
			return nil, err
		}
		w.cache.Set(pageURL, res, cache.DefaultExpiration)
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*ScrapeResult), nil
}

func (w *WebScraper) fetch(ctx context.Context, pageURL string) (*ScrapeResult, error) {
	u, err := url.Parse(pageURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid url %q", pageURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", w.userAgent)

	logger.Debug("[Research] Fetching page", "url", pageURL)
	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch url: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read page: %w", err)
	}

	result := &ScrapeResult{URL: pageURL, Title: pageURL}

	if !strings.Contains(resp.Header.Get("Content-Type"), "html") {
		result.Content = strings.TrimSpace(string(body))
		return result, nil
	}

	if doc, err := html.Parse(bytes.NewReader(body)); err == nil {
		readHead(doc, result)
	}

	result.Content = articleText(body, u)
	if result.Content == "" {
		logger.Debug("[Research] Readability found no article, using plain text", "url", pageURL)
		result.Content = strings.TrimSpace(html2text.HTML2Text(string(body)))
	}
	return result, nil
}

func articleText(body []byte, u *url.URL) string {
	article, err := readability.FromReader(bytes.NewReader(body), u)
	if err != nil {
		return ""
	}
	var builder strings.Builder
	if err := article.RenderText(&builder); err != nil {
		return ""
	}
	return strings.TrimSpace(builder.String())
}

// readHead fills title and metadata from the document head.
func readHead(doc *html.Node, result *ScrapeResult) {
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if n.FirstChild != nil {
					if title := strings.TrimSpace(n.FirstChild.Data); title != "" && result.Title == result.URL {
						result.Title = title
					}
				}
			case "meta":
				name, content := metaPair(n)
				switch name {
				case "description", "og:description":
					if result.Metadata.Description == "" {
						result.Metadata.Description = content
					}
				case "author", "article:author":
					if result.Metadata.Author == "" {
						result.Metadata.Author = content
					}
				case "article:published_time", "date", "pubdate":
					if result.Metadata.PublishedDate == "" {
						result.Metadata.PublishedDate = content
					}
				}
			case "body":
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)
}

func metaPair(n *html.Node) (string, string) {
	var name, content string
	for _, attr := range n.Attr {
		switch attr.Key {
		case "name", "property":
			name = strings.ToLower(attr.Val)
		case "content":
			content = strings.TrimSpace(attr.Val)
		}
	}
	return name, content
}
