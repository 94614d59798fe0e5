package graph

import (
	"time"

	"github.com/OFFIS-RIT/caseboard/backend/pkg/ai"
)

// Config holds the tunable constants of resolution, merging and traversal.
type Config struct {
	// SimilarityThreshold is the score a fuzzy candidate must exceed.
	SimilarityThreshold float64
	// ConfidenceIncrement is added to a relationship each time another piece
	// of evidence repeats it. The result is capped at 1.0.
	ConfidenceIncrement float64

	MergeDefaultConfidence  float64
	ActionDefaultConfidence float64
	ManualDefaultConfidence float64

	// Relevance assigned to entities created by each path.
	ExtractedRelevance float64
	ActionRelevance    float64
	ManualRelevance    float64

	NeighborhoodDefaultDepth int
	NeighborhoodMaxDepth     int

	// PreviewSize is how many entity names a failed resolution lists.
	PreviewSize int
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold:      0.6,
		ConfidenceIncrement:      0.1,
		MergeDefaultConfidence:   0.7,
		ActionDefaultConfidence:  0.8,
		ManualDefaultConfidence:  0.7,
		ExtractedRelevance:       0.5,
		ActionRelevance:          0.7,
		ManualRelevance:          0.5,
		NeighborhoodDefaultDepth: 2,
		NeighborhoodMaxDepth:     3,
		PreviewSize:              10,
	}
}

// GraphClient bundles the engine configuration with the reasoning service
// used for extraction. Every operation on an investigation receives the
// aggregate explicitly; the client itself holds no graph state.
//
// A GraphClient should be created using NewGraphClient.
type GraphClient struct {
	config     Config
	aiClient   ai.GraphAIClient
	maxRetries int
	retryDelay time.Duration
	now        func() time.Time
}

// NewGraphClientParams defines the configuration parameters for creating
// a new GraphClient.
//
// AIClient may be nil when the caller never extracts (e.g. pure traversal).
// MaxRetries bounds extraction attempts and defaults to 3.
type NewGraphClientParams struct {
	Config     *Config
	AIClient   ai.GraphAIClient
	MaxRetries int
}

// NewGraphClient creates a GraphClient. Zero-valued config fields fall back
// to DefaultConfig.
//
// Example:
//
//	cfg := graph.DefaultConfig()
//	cfg.SimilarityThreshold = 0.7
//	client := graph.NewGraphClient(graph.NewGraphClientParams{
//		Config:   &cfg,
//		AIClient: aiClient,
//	})
func NewGraphClient(params NewGraphClientParams) *GraphClient {
	cfg := DefaultConfig()
	if params.Config != nil {
		cfg = params.Config.withDefaults()
	}
	maxRetries := params.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &GraphClient{
		config:     cfg,
		aiClient:   params.AIClient,
		maxRetries: maxRetries,
		retryDelay: 500 * time.Millisecond,
		now:        time.Now,
	}
}

// Config returns the active configuration.
func (g *GraphClient) Config() Config {
	return g.config
}

// Resolver returns an entity resolver using the client's configuration.
func (g *GraphClient) Resolver() Resolver {
	return Resolver{Threshold: g.config.SimilarityThreshold, PreviewSize: g.config.PreviewSize}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SimilarityThreshold <= 0 {
		c.SimilarityThreshold = d.SimilarityThreshold
	}
	if c.ConfidenceIncrement <= 0 {
		c.ConfidenceIncrement = d.ConfidenceIncrement
	}
	if c.MergeDefaultConfidence <= 0 {
		c.MergeDefaultConfidence = d.MergeDefaultConfidence
	}
	if c.ActionDefaultConfidence <= 0 {
		c.ActionDefaultConfidence = d.ActionDefaultConfidence
	}
	if c.ManualDefaultConfidence <= 0 {
		c.ManualDefaultConfidence = d.ManualDefaultConfidence
	}
	if c.ExtractedRelevance <= 0 {
		c.ExtractedRelevance = d.ExtractedRelevance
	}
	if c.ActionRelevance <= 0 {
		c.ActionRelevance = d.ActionRelevance
	}
	if c.ManualRelevance <= 0 {
		c.ManualRelevance = d.ManualRelevance
	}
	if c.NeighborhoodDefaultDepth <= 0 {
		c.NeighborhoodDefaultDepth = d.NeighborhoodDefaultDepth
	}
	if c.NeighborhoodMaxDepth <= 0 {
		c.NeighborhoodMaxDepth = d.NeighborhoodMaxDepth
	}
	if c.PreviewSize <= 0 {
		c.PreviewSize = d.PreviewSize
	}
	return c
}
