package graph

import (
	"fmt"

	"github.com/OFFIS-RIT/caseboard/backend/pkg/common"
)

// Index is a read-only adjacency view over one snapshot of an
// investigation. It is cheap to build and must be rebuilt after every
// mutation; it never outlives the entity and relationship slices it was
// built from.
type Index struct {
	resolver      Resolver
	defaultDepth  int
	maxDepth      int
	entities      []*common.Entity
	relationships []*common.Relationship
	byID          map[string]*common.Entity
	adjacency     map[string][]hop
}

// hop is one traversable step. Reversed is set when the step walks a
// relationship against its direction.
type hop struct {
	to       string
	rel      *common.Relationship
	reversed bool
}

// NewIndex builds an index with the client's resolver and depth limits.
func (g *GraphClient) NewIndex(inv *common.Investigation) *Index {
	return newIndex(g.Resolver(), g.config, inv.Entities, inv.Relationships)
}

// NewIndex builds an index with the default configuration.
func NewIndex(entities []*common.Entity, relationships []*common.Relationship) *Index {
	cfg := DefaultConfig()
	return newIndex(Resolver{Threshold: cfg.SimilarityThreshold, PreviewSize: cfg.PreviewSize}, cfg, entities, relationships)
}

func newIndex(r Resolver, cfg Config, entities []*common.Entity, relationships []*common.Relationship) *Index {
	idx := &Index{
		resolver:      r,
		defaultDepth:  cfg.NeighborhoodDefaultDepth,
		maxDepth:      cfg.NeighborhoodMaxDepth,
		entities:      entities,
		relationships: relationships,
		byID:          make(map[string]*common.Entity, len(entities)),
		adjacency:     make(map[string][]hop, len(entities)),
	}
	for _, e := range entities {
		idx.byID[e.ID] = e
	}
	for _, rel := range relationships {
		if idx.byID[rel.SourceID] == nil || idx.byID[rel.TargetID] == nil {
			continue
		}
		idx.adjacency[rel.SourceID] = append(idx.adjacency[rel.SourceID], hop{to: rel.TargetID, rel: rel})
		idx.adjacency[rel.TargetID] = append(idx.adjacency[rel.TargetID], hop{to: rel.SourceID, rel: rel, reversed: true})
	}
	return idx
}

// Resolve resolves a free-text name against the indexed entities.
func (idx *Index) Resolve(query string) Match {
	return idx.resolver.Resolve(query, idx.entities)
}

// PathRelationship describes the edge walked between two path steps, with
// From and To in the relationship's own direction.
type PathRelationship struct {
	RelationshipID string  `json:"relationshipId"`
	From           string  `json:"from"`
	To             string  `json:"to"`
	Type           string  `json:"type"`
	Label          string  `json:"label"`
	Confidence     float64 `json:"confidence"`
	Explanation    string  `json:"explanation"`
	Reversed       bool    `json:"reversed"`
}

// PathStep is one entity on a path plus the edge leading to the next step.
// The last step has no relationship.
type PathStep struct {
	EntityID     string            `json:"entityId"`
	Entity       string            `json:"entity"`
	Type         common.EntityType `json:"type"`
	Relationship *PathRelationship `json:"relationship,omitempty"`
}

// SearchedFor echoes the caller's original queries.
type SearchedFor struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// PathResult is the outcome of ShortestPath. Found is false, and Error
// explains why, when an endpoint did not resolve or no path exists.
type PathResult struct {
	Found       bool        `json:"found"`
	Path        []PathStep  `json:"path"`
	Length      int         `json:"length"`
	Source      string      `json:"source,omitempty"`
	Target      string      `json:"target,omitempty"`
	SearchedFor SearchedFor `json:"searchedFor"`
	Note        string      `json:"note,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// ShortestPath finds a minimum-hop connection between two fuzzy-resolved
// entities. Relationships are traversed in both directions; ties go to the
// relationship inserted first.
func (idx *Index) ShortestPath(sourceQuery, targetQuery string) PathResult {
	res := PathResult{
		Length:      -1,
		SearchedFor: SearchedFor{Source: sourceQuery, Target: targetQuery},
	}

	src := idx.Resolve(sourceQuery)
	if !src.Found() {
		res.Error = fmt.Sprintf("Source entity not found: %q. Available entities: %s", sourceQuery, src.Preview)
		return res
	}
	dst := idx.Resolve(targetQuery)
	if !dst.Found() {
		res.Error = fmt.Sprintf("Target entity not found: %q. Available entities: %s", targetQuery, dst.Preview)
		return res
	}

	res.Source = src.Entity.Name
	res.Target = dst.Entity.Name
	if src.Fuzzy(sourceQuery) || dst.Fuzzy(targetQuery) {
		res.Note = fmt.Sprintf("Fuzzy matched %q → %q and %q → %q", sourceQuery, src.Entity.Name, targetQuery, dst.Entity.Name)
	}

	from, to := src.Entity.ID, dst.Entity.ID
	if from == to {
		res.Found = true
		res.Length = 0
		res.Path = []PathStep{idx.step(from)}
		return res
	}

	type visit struct {
		prev string
		via  hop
	}
	parent := map[string]visit{from: {}}
	queue := []string{from}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, h := range idx.adjacency[current] {
			if _, seen := parent[h.to]; seen {
				continue
			}
			parent[h.to] = visit{prev: current, via: h}
			if h.to != to {
				queue = append(queue, h.to)
				continue
			}

			var ids []string
			var hops []hop
			for n := to; n != from; n = parent[n].prev {
				ids = append(ids, n)
				hops = append(hops, parent[n].via)
			}
			ids = append(ids, from)

			res.Found = true
			res.Length = len(hops)
			res.Path = make([]PathStep, 0, len(ids))
			for i := len(ids) - 1; i >= 0; i-- {
				step := idx.step(ids[i])
				if i > 0 {
					step.Relationship = idx.describe(hops[i-1])
				}
				res.Path = append(res.Path, step)
			}
			return res
		}
	}

	res.Error = "No path found between entities"
	return res
}

func (idx *Index) step(id string) PathStep {
	e := idx.byID[id]
	return PathStep{EntityID: e.ID, Entity: e.Name, Type: e.Type}
}

func (idx *Index) describe(h hop) *PathRelationship {
	rel := h.rel
	return &PathRelationship{
		RelationshipID: rel.ID,
		From:           idx.byID[rel.SourceID].Name,
		To:             idx.byID[rel.TargetID].Name,
		Type:           rel.Type,
		Label:          rel.Label,
		Confidence:     rel.Confidence,
		Explanation:    rel.Explanation(),
		Reversed:       h.reversed,
	}
}

// RelatedEntity is an entity reached by Neighborhood at the given depth.
type RelatedEntity struct {
	ID    string            `json:"id"`
	Name  string            `json:"name"`
	Type  common.EntityType `json:"type"`
	Depth int               `json:"depth"`
}

// NeighborhoodResult is the outcome of Neighborhood.
type NeighborhoodResult struct {
	Found           bool            `json:"found"`
	Entity          string          `json:"entity,omitempty"`
	RelatedEntities []RelatedEntity `json:"relatedEntities"`
	TotalFound      int             `json:"totalFound"`
	MaxDepth        int             `json:"maxDepth"`
	SearchedFor     string          `json:"searchedFor"`
	Note            string          `json:"note,omitempty"`
	Error           string          `json:"error,omitempty"`
}

// Neighborhood lists every entity within maxDepth hops of the resolved
// entity, each at its shortest depth. maxDepth <= 0 selects the default and
// values above the configured maximum are capped.
func (idx *Index) Neighborhood(query string, maxDepth int) NeighborhoodResult {
	if maxDepth <= 0 {
		maxDepth = idx.defaultDepth
	}
	maxDepth = min(maxDepth, idx.maxDepth)

	res := NeighborhoodResult{MaxDepth: maxDepth, SearchedFor: query, RelatedEntities: []RelatedEntity{}}

	m := idx.Resolve(query)
	if !m.Found() {
		res.Error = fmt.Sprintf("Entity not found: %q. Available entities: %s", query, m.Preview)
		return res
	}
	res.Found = true
	res.Entity = m.Entity.Name
	if m.Fuzzy(query) {
		res.Note = fmt.Sprintf("Fuzzy matched %q to %q", query, m.Entity.Name)
	}

	depth := map[string]int{m.Entity.ID: 0}
	queue := []string{m.Entity.ID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		d := depth[current]
		if d >= maxDepth {
			continue
		}
		for _, h := range idx.adjacency[current] {
			if _, seen := depth[h.to]; seen {
				continue
			}
			depth[h.to] = d + 1
			queue = append(queue, h.to)

			e := idx.byID[h.to]
			res.RelatedEntities = append(res.RelatedEntities, RelatedEntity{
				ID: e.ID, Name: e.Name, Type: e.Type, Depth: d + 1,
			})
		}
	}
	res.TotalFound = len(res.RelatedEntities)
	return res
}

// DetailRelationship is one relationship of an entity, oriented as stored.
type DetailRelationship struct {
	ID                string                    `json:"id"`
	From              string                    `json:"from"`
	To                string                    `json:"to"`
	Type              string                    `json:"type"`
	Label             string                    `json:"label"`
	Confidence        float64                   `json:"confidence"`
	Explanation       string                    `json:"explanation"`
	SourcesSupporting []common.SupportingSource `json:"sourcesSupporting"`
}

// DetailSource is a resolved source link.
type DetailSource struct {
	SourceEntityID string `json:"sourceEntityId"`
	Name           string `json:"name"`
	URL            string `json:"url,omitempty"`
	Description    string `json:"description"`
}

// DetailsResult is the outcome of EntityDetails.
type DetailsResult struct {
	Found         bool                 `json:"found"`
	ID            string               `json:"id,omitempty"`
	Name          string               `json:"name,omitempty"`
	Type          common.EntityType    `json:"type,omitempty"`
	Aliases       []string             `json:"aliases,omitempty"`
	Attributes    map[string]any       `json:"attributes,omitempty"`
	Flags         []string             `json:"flags,omitempty"`
	Notes         string               `json:"notes,omitempty"`
	Occurrences   int                  `json:"occurrences"`
	Relationships []DetailRelationship `json:"relationships,omitempty"`
	Sources       []DetailSource       `json:"sources,omitempty"`
	SearchedFor   string               `json:"searchedFor"`
	Note          string               `json:"note,omitempty"`
	Error         string               `json:"error,omitempty"`
}

// EntityDetails returns an entity with its relationships in both directions
// and its resolved source links.
func (idx *Index) EntityDetails(query string) DetailsResult {
	res := DetailsResult{SearchedFor: query}

	m := idx.Resolve(query)
	if !m.Found() {
		res.Error = fmt.Sprintf("Entity not found: %q. Available entities: %s", query, m.Preview)
		return res
	}
	e := m.Entity
	res.Found = true
	res.ID = e.ID
	res.Name = e.Name
	res.Type = e.Type
	res.Aliases = e.Aliases
	res.Attributes = e.Attributes
	res.Flags = e.Flags
	res.Notes = e.Notes
	res.Occurrences = len(e.Occurrences)
	if m.Fuzzy(query) {
		res.Note = fmt.Sprintf("Fuzzy matched %q to %q", query, e.Name)
	}

	for _, h := range idx.adjacency[e.ID] {
		rel := h.rel
		if h.reversed && rel.SourceID == rel.TargetID {
			continue
		}
		res.Relationships = append(res.Relationships, DetailRelationship{
			ID:                rel.ID,
			From:              idx.byID[rel.SourceID].Name,
			To:                idx.byID[rel.TargetID].Name,
			Type:              rel.Type,
			Label:             rel.Label,
			Confidence:        rel.Confidence,
			Explanation:       rel.Explanation(),
			SourcesSupporting: rel.SourcesSupporting,
		})
	}

	for _, link := range e.SourceLinks {
		ds := DetailSource{SourceEntityID: link.SourceEntityID, Description: link.Description}
		if src := idx.byID[link.SourceEntityID]; src != nil {
			ds.Name = src.Name
			ds.URL = src.AttrString(common.AttrURL)
		}
		res.Sources = append(res.Sources, ds)
	}
	return res
}
