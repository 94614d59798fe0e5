package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/caseboard/backend/pkg/ai"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/common"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/graph"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/logger"
)

// Tool names offered to the model.
const (
	ToolFindShortestPath   = "find_shortest_path"
	ToolGetEntityDetails   = "get_entity_details"
	ToolGetRelatedEntities = "get_related_entities"
	ToolSearchWeb          = "search_web"
	ToolScrapeAndExtract   = "scrape_and_extract"
	ToolAddToGraph         = "add_to_graph"
)

// tools returns the fixed catalogue bound to this run. Graph tools always
// read the run's latest snapshot.
func (r *run) tools() []ai.Tool {
	return []ai.Tool{
		toolFindShortestPath(r),
		toolGetEntityDetails(r),
		toolGetRelatedEntities(r),
		toolSearchWeb(r),
		toolScrapeAndExtract(r),
		toolAddToGraph(r),
	}
}

func errorResult(msg string) string {
	out, _ := json.Marshal(map[string]string{"error": msg})
	return string(out)
}

func jsonResult(v any) (string, error) {
	out, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode tool result: %w", err)
	}
	return string(out), nil
}

func parseArgs(args string) (map[string]any, error) {
	var params map[string]any
	if strings.TrimSpace(args) == "" {
		return map[string]any{}, nil
	}
	if err := json.Unmarshal([]byte(args), &params); err != nil {
		return nil, fmt.Errorf("failed to parse arguments: %w", err)
	}
	return params, nil
}

func requiredString(params map[string]any, key string) (string, error) {
	v, ok := params[key].(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("%s is required and must be a string", key)
	}
	return v, nil
}

func toolFindShortestPath(r *run) ai.Tool {
	return ai.Tool{
		Name:        ToolFindShortestPath,
		Description: ai.ToolFindShortestPathDesc,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"source": map[string]any{
					"type":        "string",
					"description": "The name of the source entity (fuzzy matching enabled - don't worry about exact spelling)",
				},
				"target": map[string]any{
					"type":        "string",
					"description": "The name of the target entity (fuzzy matching enabled - don't worry about exact spelling)",
				},
			},
			"required": []string{"source", "target"},
		},
		Handler: func(ctx context.Context, args string) (string, error) {
			params, err := parseArgs(args)
			if err != nil {
				return "", err
			}
			source, err := requiredString(params, "source")
			if err != nil {
				return "", err
			}
			target, err := requiredString(params, "target")
			if err != nil {
				return "", err
			}

			logger.Debug("[Tool] find_shortest_path", "source", source, "target", target)

			res := r.index.ShortestPath(source, target)
			ids := make([]string, 0, len(res.Path))
			for _, step := range res.Path {
				ids = append(ids, step.EntityID)
			}
			recordQueriedEntityIDs(r.tracer, ids...)
			return jsonResult(res)
		},
	}
}

func toolGetEntityDetails(r *run) ai.Tool {
	return ai.Tool{
		Name:        ToolGetEntityDetails,
		Description: ai.ToolGetEntityDetailsDesc,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"entity_name": map[string]any{
					"type":        "string",
					"description": "The name of the entity to get details for (fuzzy matching enabled)",
				},
			},
			"required": []string{"entity_name"},
		},
		Handler: func(ctx context.Context, args string) (string, error) {
			params, err := parseArgs(args)
			if err != nil {
				return "", err
			}
			name, err := requiredString(params, "entity_name")
			if err != nil {
				return "", err
			}

			logger.Debug("[Tool] get_entity_details", "entity", name)

			res := r.index.EntityDetails(name)
			recordQueriedEntityIDs(r.tracer, res.ID)
			return jsonResult(res)
		},
	}
}

func toolGetRelatedEntities(r *run) ai.Tool {
	return ai.Tool{
		Name:        ToolGetRelatedEntities,
		Description: ai.ToolGetRelatedEntitiesDesc,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"entity_name": map[string]any{
					"type":        "string",
					"description": "The name of the entity to start from (fuzzy matching enabled)",
				},
				"max_depth": map[string]any{
					"type":        "integer",
					"description": "Maximum number of hops (1-3). Default is 2.",
					"default":     2,
				},
			},
			"required": []string{"entity_name"},
		},
		Handler: func(ctx context.Context, args string) (string, error) {
			params, err := parseArgs(args)
			if err != nil {
				return "", err
			}
			name, err := requiredString(params, "entity_name")
			if err != nil {
				return "", err
			}

			depth := 0
			if raw, ok := params["max_depth"].(float64); ok && raw > 0 {
				depth = int(raw)
			}

			logger.Debug("[Tool] get_related_entities", "entity", name, "max_depth", depth)

			res := r.index.Neighborhood(name, depth)
			ids := make([]string, 0, len(res.RelatedEntities))
			for _, rel := range res.RelatedEntities {
				ids = append(ids, rel.ID)
			}
			recordQueriedEntityIDs(r.tracer, ids...)
			return jsonResult(res)
		},
	}
}

func toolSearchWeb(r *run) ai.Tool {
	return ai.Tool{
		Name:        ToolSearchWeb,
		Description: ai.ToolSearchWebDesc,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The search query. Be specific and include entity names.",
				},
			},
			"required": []string{"query"},
		},
		Handler: func(ctx context.Context, args string) (string, error) {
			params, err := parseArgs(args)
			if err != nil {
				return "", err
			}
			query, err := requiredString(params, "query")
			if err != nil {
				return "", err
			}

			logger.Debug("[Tool] search_web", "query", query)

			res, err := r.agent.research.Searcher(r.req.Credentials).Search(ctx, query)
			if err != nil {
				return "", err
			}
			return jsonResult(res)
		},
	}
}

// extractionView is what scrape_and_extract reports back to the model.
type extractionView struct {
	Entities      []common.ExtractedEntity       `json:"entities"`
	Relationships []common.ExtractedRelationship `json:"relationships"`
	SourceURL     string                         `json:"sourceUrl"`
}

type scrapeResult struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	// Extraction is an extractionView, or an error object when extraction
	// failed after a successful scrape.
	Extraction any `json:"extraction"`
}

func toolScrapeAndExtract(r *run) ai.Tool {
	return ai.Tool{
		Name:        ToolScrapeAndExtract,
		Description: ai.ToolScrapeAndExtractDesc,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{
					"type":        "string",
					"description": "The URL to scrape",
				},
			},
			"required": []string{"url"},
		},
		Handler: func(ctx context.Context, args string) (string, error) {
			params, err := parseArgs(args)
			if err != nil {
				return "", err
			}
			url, err := requiredString(params, "url")
			if err != nil {
				return "", err
			}

			logger.Debug("[Tool] scrape_and_extract", "url", url)

			page, err := r.agent.research.Scraper(r.req.Credentials).Scrape(ctx, url)
			if err != nil {
				return "", err
			}
			recordVisitedURLs(r.tracer, page.URL)

			out := scrapeResult{URL: page.URL, Title: page.Title}
			ext, err := r.agent.graph.ExtractText(ctx, page.Content, page.URL)
			if err != nil {
				logger.Warn("[Tool] Extraction of scraped page failed", "url", page.URL, "err", err)
				out.Extraction = map[string]string{"error": fmt.Sprintf("Extraction failed: %v", err)}
				return jsonResult(out)
			}

			view := extractionView{
				Entities:      ext.Entities,
				Relationships: ext.Relationships,
				SourceURL:     page.URL,
			}
			if view.Entities == nil {
				view.Entities = []common.ExtractedEntity{}
			}
			if view.Relationships == nil {
				view.Relationships = []common.ExtractedRelationship{}
			}
			out.Extraction = view
			return jsonResult(out)
		},
	}
}

type addToGraphEntity struct {
	Name              string         `json:"name"`
	Type              string         `json:"type"`
	Aliases           []string       `json:"aliases,omitempty"`
	Attributes        map[string]any `json:"attributes,omitempty"`
	SourceDescription string         `json:"sourceDescription"`
}

type addToGraphRelationship struct {
	Source      string  `json:"source"`
	Target      string  `json:"target"`
	Type        string  `json:"type"`
	Explanation string  `json:"explanation"`
	Confidence  float64 `json:"confidence,omitempty"`
}

type addToGraphArgs struct {
	SourceName    string                   `json:"source_name" jsonschema_description:"Name/title of the source (e.g., page title or URL)"`
	SourceURL     string                   `json:"source_url" jsonschema_description:"URL of the source"`
	Entities      []addToGraphEntity       `json:"entities" jsonschema_description:"Array of entities to add"`
	Relationships []addToGraphRelationship `json:"relationships" jsonschema_description:"Array of relationships to add"`
}

func (a addToGraphArgs) extraction() *common.Extraction {
	ext := &common.Extraction{
		Entities:      make([]common.ExtractedEntity, 0, len(a.Entities)),
		Relationships: make([]common.ExtractedRelationship, 0, len(a.Relationships)),
	}
	for _, e := range a.Entities {
		ext.Entities = append(ext.Entities, common.ExtractedEntity{
			Name:              e.Name,
			Type:              e.Type,
			Aliases:           e.Aliases,
			Attributes:        e.Attributes,
			SourceDescription: e.SourceDescription,
		})
	}
	for _, rel := range a.Relationships {
		ext.Relationships = append(ext.Relationships, common.ExtractedRelationship{
			Source:            rel.Source,
			Target:            rel.Target,
			Type:              rel.Type,
			Confidence:        rel.Confidence,
			SourceExplanation: rel.Explanation,
		})
	}
	return ext
}

type addedRecord struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

type addedRecords struct {
	Entities      []addedRecord `json:"entities"`
	Relationships []addedRecord `json:"relationships"`
}

type addToGraphResult struct {
	Success bool          `json:"success"`
	Source  string        `json:"source,omitempty"`
	Added   *addedRecords `json:"added,omitempty"`
	Summary string        `json:"summary,omitempty"`
	Error   string        `json:"error,omitempty"`
}

func toolAddToGraph(r *run) ai.Tool {
	return ai.Tool{
		Name:        ToolAddToGraph,
		Description: ai.ToolAddToGraphDesc,
		Parameters:  ai.SchemaMap(addToGraphArgs{}),
		Handler: func(ctx context.Context, args string) (string, error) {
			var params addToGraphArgs
			if err := ai.UnmarshalFlexible(args, &params); err != nil {
				return "", fmt.Errorf("failed to parse arguments: %w", err)
			}

			logger.Debug("[Tool] add_to_graph",
				"source", params.SourceName,
				"entities", len(params.Entities),
				"relationships", len(params.Relationships),
			)

			batch := graph.MergeBatch{
				Extraction: params.extraction(),
				Web:        &graph.WebSource{Name: params.SourceName, URL: params.SourceURL},
			}

			inv, report, err := r.commit(ctx, batch)
			if err != nil {
				return jsonResult(addToGraphResult{Error: fmt.Sprintf("Failed to add to graph: %v", err)})
			}
			r.setInvestigation(inv)

			out := addToGraphResult{Success: true, Source: params.SourceName, Summary: report.Summary()}
			out.Added = &addedRecords{Entities: []addedRecord{}, Relationships: []addedRecord{}}

			var ids []string
			for _, rec := range report.Records {
				switch rec.Kind {
				case graph.RecordEntity:
					out.Added.Entities = append(out.Added.Entities, addedRecord{Name: rec.Name, Status: rec.Status, Reason: rec.Reason})
					ids = append(ids, rec.ID)
				case graph.RecordRelationship:
					out.Added.Relationships = append(out.Added.Relationships, addedRecord{Name: rec.Name, Status: rec.Status, Reason: rec.Reason})
				case graph.RecordSource:
					ids = append(ids, rec.ID)
				}
			}
			recordCommittedEntityIDs(r.tracer, ids...)
			recordVisitedURLs(r.tracer, params.SourceURL)
			return jsonResult(out)
		},
	}
}

// commit persists the batch through the request's CommitFunc, or merges it
// into a private copy when none is set.
func (r *run) commit(ctx context.Context, batch graph.MergeBatch) (*common.Investigation, *graph.MergeReport, error) {
	if r.req.Commit != nil {
		inv, report, err := r.req.Commit(ctx, batch)
		if err != nil {
			return nil, nil, err
		}
		if inv == nil || report == nil {
			return nil, nil, fmt.Errorf("commit returned no investigation")
		}
		return inv, report, nil
	}

	clone := r.inv.Clone()
	report, err := r.agent.graph.Merge(clone, batch)
	if err != nil {
		return nil, nil, err
	}
	return clone, report, nil
}
