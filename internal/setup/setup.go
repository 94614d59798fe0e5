// Package setup builds the process wide dependencies shared by the server and
// the worker from the environment.
package setup

import (
	"context"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/caseboard/backend/internal/storage"
	"github.com/OFFIS-RIT/caseboard/backend/internal/util"
	"github.com/OFFIS-RIT/caseboard/backend/internal/workspace"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/agent"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/ai"
	oai "github.com/OFFIS-RIT/caseboard/backend/pkg/ai/ollama"
	gai "github.com/OFFIS-RIT/caseboard/backend/pkg/ai/openai"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/graph"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/leaselock"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/logger"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/research"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/store"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/store/badger"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/store/pgx"
)

// Provider returns the configured AI adapter name.
func Provider() string {
	return strings.ToLower(util.GetEnvString("AI_ADAPTER", "openai"))
}

// NewAIClient creates the reasoning client selected by AI_ADAPTER.
func NewAIClient() (ai.GraphAIClient, error) {
	maxConcurrent := int64(util.GetEnvNumeric("AI_MAX_CONCURRENT_REQUESTS", 4))

	switch Provider() {
	case "ollama":
		client, err := oai.NewGraphOllamaClient(oai.NewGraphOllamaClientParams{
			ChatModel:  util.GetEnv("AI_CHAT_MODEL"),
			ImageModel: util.GetEnv("AI_IMAGE_MODEL"),

			BaseURL: util.GetEnv("AI_CHAT_URL"),
			ApiKey:  util.GetEnv("AI_CHAT_KEY"),

			MaxConcurrentRequests: maxConcurrent,
		})
		if err != nil {
			return nil, fmt.Errorf("could not create Ollama client: %w", err)
		}
		return client, nil
	case "openai":
		return gai.NewGraphOpenAIClient(gai.NewGraphOpenAIClientParams{
			ChatModel:  util.GetEnvString("AI_CHAT_MODEL", "gpt-4o"),
			ImageModel: util.GetEnv("AI_IMAGE_MODEL"),

			ChatURL:  util.GetEnv("AI_CHAT_URL"),
			ChatKey:  util.GetEnv("AI_CHAT_KEY"),
			ImageURL: util.GetEnv("AI_IMAGE_URL"),
			ImageKey: util.GetEnv("AI_IMAGE_KEY"),

			MaxConcurrentRequests: maxConcurrent,
		}), nil
	default:
		return nil, fmt.Errorf("unknown AI_ADAPTER %q", Provider())
	}
}

// GraphConfig returns the engine defaults with the env overrides applied.
func GraphConfig() graph.Config {
	cfg := graph.DefaultConfig()
	cfg.SimilarityThreshold = util.GetEnvNumeric("GRAPH_SIMILARITY_THRESHOLD", cfg.SimilarityThreshold)
	cfg.ConfidenceIncrement = util.GetEnvNumeric("GRAPH_CONFIDENCE_INCREMENT", cfg.ConfidenceIncrement)
	return cfg
}

// Credentials returns the research keys from the environment. Keys saved in
// the settings take precedence per key.
func Credentials() research.Credentials {
	return research.Credentials{
		GoogleAPIKey:    util.GetEnv("GOOGLE_API_KEY"),
		GoogleCX:        util.GetEnv("GOOGLE_CX"),
		FirecrawlAPIKey: util.GetEnv("FIRECRAWL_API_KEY"),
	}
}

func NewResearchBackends(ctx context.Context) (research.Backends, error) {
	creds := Credentials()
	cacheTTL := util.GetEnvDuration("RESEARCH_CACHE_TTL", 0)

	google, err := research.NewGoogleSearcher(ctx, research.NewGoogleSearcherParams{
		APIKey:    creds.GoogleAPIKey,
		CX:        creds.GoogleCX,
		Endpoint:  util.GetEnv("GOOGLE_ENDPOINT"),
		RateLimit: util.GetEnvNumeric("RESEARCH_RATE_LIMIT", 0),
		CacheTTL:  cacheTTL,
	})
	if err != nil {
		return research.Backends{}, err
	}

	return research.Backends{
		Google: google,
		Firecrawl: research.NewFirecrawlScraper(research.NewFirecrawlScraperParams{
			APIKey:   creds.FirecrawlAPIKey,
			Endpoint: util.GetEnv("FIRECRAWL_ENDPOINT"),
		}),
		Web: research.NewWebScraper(research.NewWebScraperParams{
			UserAgent: util.GetEnv("RESEARCH_USER_AGENT"),
			CacheTTL:  cacheTTL,
		}),
	}, nil
}

// OpenStore opens the storage selected by STORE_ADAPTER. The postgres store
// comes with a lease lock so several processes can share it; the returned
// locker is nil for badger, which selects the in-process lock.
func OpenStore(ctx context.Context) (store.Storage, workspace.Locker, error) {
	switch adapter := strings.ToLower(util.GetEnvString("STORE_ADAPTER", "badger")); adapter {
	case "badger":
		s, err := badger.Open(badger.DefaultConfig(util.GetEnvString("BADGER_PATH", "data")))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open badger store: %w", err)
		}
		return s, nil, nil
	case "postgres":
		databaseURL := util.GetEnv("DATABASE_URL")
		if err := pgx.Migrate(databaseURL); err != nil {
			return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		s, pool, err := pgx.NewGraphDBStorage(ctx, databaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		opts := leaselock.DefaultOptions()
		opts.TTL = util.GetEnvDuration("LOCK_TTL", opts.TTL)
		return s, leaselock.New(pool, opts), nil
	default:
		return nil, nil, fmt.Errorf("unknown STORE_ADAPTER %q", adapter)
	}
}

// Deps are the dependencies every process needs.
type Deps struct {
	AI        ai.GraphAIClient
	Store     store.Storage
	Workspace *workspace.Workspace
}

func (d *Deps) Close() {
	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			logger.Error("[Setup] Failed to close store", "err", err)
		}
	}
}

// New builds the AI client, storage and workspace from the environment.
func New(ctx context.Context) (*Deps, error) {
	aiClient, err := NewAIClient()
	if err != nil {
		return nil, err
	}

	backends, err := NewResearchBackends(ctx)
	if err != nil {
		return nil, err
	}

	s, locker, err := OpenStore(ctx)
	if err != nil {
		return nil, err
	}

	cfg := GraphConfig()
	g := graph.NewGraphClient(graph.NewGraphClientParams{
		Config:   &cfg,
		AIClient: aiClient,
	})

	opts := agent.DefaultOptions()
	opts.MaxIterations = int(util.GetEnvNumeric("AGENT_MAX_ITERATIONS", float64(opts.MaxIterations)))
	opts.Model = util.GetEnv("AI_CHAT_MODEL")
	opts.Legacy = util.GetEnvBool("AGENT_LEGACY", false)
	opts.HistoryLimit = int(util.GetEnvNumeric("AGENT_HISTORY_LIMIT", float64(opts.HistoryLimit)))

	w := workspace.NewWorkspace(workspace.NewWorkspaceParams{
		Store:  s,
		Locker: locker,
		Graph:  g,
		Agent: agent.NewAgent(agent.NewAgentParams{
			AIClient: aiClient,
			Graph:    g,
			Research: backends,
			Options:  opts,
		}),
		Provider:    Provider(),
		Credentials: Credentials(),
	})

	logger.Info("[Setup] Workspace ready", "ai", Provider(), "store", util.GetEnvString("STORE_ADAPTER", "badger"))
	return &Deps{AI: aiClient, Store: s, Workspace: w}, nil
}

// NewCaptureFiles connects to the capture bucket. It returns nil when
// S3_BUCKET is not set.
func NewCaptureFiles(ctx context.Context) (*storage.CaptureFiles, error) {
	bucket := util.GetEnv("S3_BUCKET")
	if bucket == "" {
		return nil, nil
	}
	client, err := storage.NewS3Client(ctx)
	if err != nil {
		return nil, err
	}
	return storage.NewCaptureFiles(storage.NewCaptureFilesParams{
		Client:         client,
		Bucket:         bucket,
		PublicEndpoint: util.GetEnv("S3_PUBLIC_ENDPOINT"),
	}), nil
}
