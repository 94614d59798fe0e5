package research

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/OFFIS-RIT/caseboard/backend/pkg/logger"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	DefaultGoogleEndpoint = "https://www.googleapis.com/"
	googleResultCount     = 5
)

// GoogleSearcher queries the Google Custom Search JSON API. Results are
// cached per engine and query, and outgoing calls share one rate limiter.
type GoogleSearcher struct {
	apiKey  string
	cx      string
	service *customsearch.Service
	cache   *cache.Cache
	limiter *rate.Limiter
}

type NewGoogleSearcherParams struct {
	APIKey     string
	CX         string
	Endpoint   string
	HTTPClient *http.Client
	// RateLimit is the number of requests per second. Zero disables limiting.
	RateLimit float64
	CacheTTL  time.Duration
}

func NewGoogleSearcher(ctx context.Context, params NewGoogleSearcherParams) (*GoogleSearcher, error) {
	endpoint := params.Endpoint
	if endpoint == "" {
		endpoint = DefaultGoogleEndpoint
	}
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}

	svc, err := customsearch.NewService(ctx,
		option.WithHTTPClient(defaultHTTPClient(params.HTTPClient)),
		option.WithEndpoint(endpoint),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create custom search service: %w", err)
	}

	ttl := params.CacheTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	limit := rate.Inf
	if params.RateLimit > 0 {
		limit = rate.Limit(params.RateLimit)
	}

	return &GoogleSearcher{
		apiKey:  params.APIKey,
		cx:      params.CX,
		service: svc,
		cache:   cache.New(ttl, 2*ttl),
		limiter: rate.NewLimiter(limit, 1),
	}, nil
}

// WithCredentials returns a searcher using the given credentials that shares
// the receiver's cache and rate limiter. Empty values keep the current ones.
func (g *GoogleSearcher) WithCredentials(apiKey, cx string) *GoogleSearcher {
	clone := *g
	if apiKey != "" {
		clone.apiKey = apiKey
	}
	if cx != "" {
		clone.cx = cx
	}
	return &clone
}

func (g *GoogleSearcher) Configured() bool {
	return g != nil && g.apiKey != "" && g.cx != ""
}

func (g *GoogleSearcher) Search(ctx context.Context, query string) (*SearchResult, error) {
	if !g.Configured() {
		return nil, fmt.Errorf("%w: Google Search API key or Custom Search Engine ID not configured. Please add them in settings.", ErrNotConfigured)
	}

	key := g.cx + "|" + query
	if cached, ok := g.cache.Get(key); ok {
		logger.Debug("[Research] Search cache hit", "query", query)
		return cached.(*SearchResult), nil
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	logger.Debug("[Research] Searching", "query", query)
	res, err := g.service.Cse.List().
		Cx(g.cx).
		Q(query).
		Num(googleResultCount).
		Context(ctx).
		Do(googleapi.QueryParameter("key", g.apiKey))
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Message != "" {
			return nil, fmt.Errorf("google search api error: %s", apiErr.Message)
		}
		return nil, fmt.Errorf("search failed: %w", err)
	}

	result := &SearchResult{Results: []SearchItem{}}
	if len(res.Items) == 0 {
		result.Message = "No results found"
	} else {
		result.Query = query
		for _, item := range res.Items {
			result.Results = append(result.Results, SearchItem{
				Title:       item.Title,
				Link:        item.Link,
				Snippet:     item.Snippet,
				DisplayLink: item.DisplayLink,
			})
		}
		result.TotalResults = "0"
		if res.SearchInformation != nil && res.SearchInformation.TotalResults != "" {
			result.TotalResults = res.SearchInformation.TotalResults
		}
	}

	g.cache.Set(key, result, cache.DefaultExpiration)
	return result, nil
}
