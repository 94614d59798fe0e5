package research

import (
	"context"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/caseboard/backend/pkg/logger"
)

// Chain tries each scraper in order and returns the first successful result.
// Scrapers reporting ErrNotConfigured are skipped silently.
type Chain []Scraper

func (c Chain) Scrape(ctx context.Context, pageURL string) (*ScrapeResult, error) {
	var lastErr error
	for _, s := range c {
		if s == nil {
			continue
		}
		res, err := s.Scrape(ctx, pageURL)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, ErrNotConfigured) {
			if lastErr == nil {
				lastErr = err
			}
			continue
		}
		logger.Warn("[Research] Scraper failed, trying next", "url", pageURL, "err", err)
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("%w: no scraper available", ErrNotConfigured)
	}
	return nil, lastErr
}

// Credentials are the user supplied research keys, usually read from the
// persisted settings.
type Credentials struct {
	GoogleAPIKey    string
	GoogleCX        string
	FirecrawlAPIKey string
}

// Backends holds the long lived research clients. Per request credentials
// are applied with Searcher and Scraper so caches and limiters are shared.
type Backends struct {
	Google    *GoogleSearcher
	Firecrawl *FirecrawlScraper
	Web       *WebScraper
}

func (b Backends) Searcher(creds Credentials) Searcher {
	if b.Google == nil {
		return (*GoogleSearcher)(nil)
	}
	return b.Google.WithCredentials(creds.GoogleAPIKey, creds.GoogleCX)
}

// Scraper prefers Firecrawl and falls back to the local readability scraper.
func (b Backends) Scraper(creds Credentials) Scraper {
	var chain Chain
	if b.Firecrawl != nil {
		chain = append(chain, b.Firecrawl.WithAPIKey(creds.FirecrawlAPIKey))
	}
	if b.Web != nil {
		chain = append(chain, b.Web)
	}
	return chain
}
