package graph

import (
	"fmt"
	"math"
	"strings"

	"github.com/OFFIS-RIT/caseboard/backend/internal/util"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/common"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/logger"
)

// Record kinds reported by Merge.
const (
	RecordSource       = "source"
	RecordEntity       = "entity"
	RecordRelationship = "relationship"
	RecordSuggestion   = "suggestion"
	RecordCapture      = "capture"
)

const (
	untitledSource         = "Untitled Source"
	reasonEntityNotFound   = "entity not found"
	reasonEmptyName        = "empty name"
	webEntityDescription   = "Discovered from web research"
	webExistingDescription = "Mentioned in this source"
	webRelationshipReason  = "Found in web research"
)

// WebSource identifies a page the agent found during web research. A batch
// with a web origin always gets its own new source entity.
type WebSource struct {
	Name string
	URL  string
}

// MergeBatch is one extraction together with where it came from. Exactly
// one of Capture and Web should be set; a batch with neither is merged
// without provenance.
type MergeBatch struct {
	Extraction *common.Extraction
	Capture    *common.Capture
	Web        *WebSource
}

// MergeRecord reports what happened to one extracted record.
type MergeRecord struct {
	Kind   string `json:"kind"`
	Name   string `json:"name"`
	ID     string `json:"id,omitempty"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// MergeReport is the per-record outcome of a merge.
type MergeReport struct {
	SourceID string        `json:"sourceId,omitempty"`
	Records  []MergeRecord `json:"records"`
}

func (r *MergeReport) add(kind, name, id, status, reason string) {
	r.Records = append(r.Records, MergeRecord{Kind: kind, Name: name, ID: id, Status: status, Reason: reason})
}

// Count returns how many records of kind ended with status.
func (r *MergeReport) Count(kind, status string) int {
	n := 0
	for _, rec := range r.Records {
		if rec.Kind == kind && rec.Status == status {
			n++
		}
	}
	return n
}

// Summary renders the report as a single sentence for chat output.
func (r *MergeReport) Summary() string {
	return fmt.Sprintf(
		"Added %d new entities, updated %d existing entities, and created %d new relationships.",
		r.Count(RecordEntity, common.StatusCreated),
		r.Count(RecordEntity, common.StatusUpdated),
		r.Count(RecordRelationship, common.StatusCreated),
	)
}

// Merge folds one extraction batch into inv in place.
//
// Entities are matched by exact name or alias only, never fuzzily, so a merge
// cannot silently fuse two different real-world things. Relationships are
// deduplicated on (sourceId, targetId, type); a repeat bumps the confidence
// by ConfidenceIncrement up to 1.0. Records that cannot be applied are
// reported as skipped and never abort the batch.
//
// Merge does not persist anything. Callers run it against a clone and only
// publish the clone once it has been saved.
func (g *GraphClient) Merge(inv *common.Investigation, batch MergeBatch) (*MergeReport, error) {
	if inv == nil {
		return nil, fmt.Errorf("merge: nil investigation")
	}
	ext := batch.Extraction
	if ext == nil {
		ext = &common.Extraction{}
	}
	inv.Normalize()

	report := &MergeReport{}
	captureID := ""
	if batch.Capture != nil {
		captureID = batch.Capture.ID
	}

	source := g.mergeSource(inv, batch, ext, report)

	for _, extracted := range ext.Entities {
		g.mergeEntity(inv, batch, extracted, captureID, source, report)
	}
	for _, extracted := range ext.Relationships {
		g.mergeRelationship(inv, batch, extracted, captureID, source, report)
	}
	for _, s := range ext.ExplorationSuggestions {
		suggestion := g.newSuggestion(s)
		inv.ExplorationQueue = append(inv.ExplorationQueue, suggestion)
		report.add(RecordSuggestion, suggestion.Suggestion, suggestion.ID, common.StatusCreated, "")
	}

	if batch.Capture != nil && !inv.HasCapture(captureID) {
		capture := *batch.Capture
		if capture.CaptureType == "" {
			capture.CaptureType = common.DefaultCaptureType
		}
		if capture.Timestamp.IsZero() {
			capture.Timestamp = g.now()
		}
		raw := *ext
		capture.RawExtraction = &raw
		inv.Captures = append(inv.Captures, &capture)
		report.add(RecordCapture, capture.PageTitle, capture.ID, common.StatusCreated, "")
	}

	logger.Debug("[Merge] Batch merged",
		"investigation", inv.ID,
		"capture", captureID,
		"entities_created", report.Count(RecordEntity, common.StatusCreated),
		"entities_updated", report.Count(RecordEntity, common.StatusUpdated),
		"relationships_created", report.Count(RecordRelationship, common.StatusCreated),
		"relationships_updated", report.Count(RecordRelationship, common.StatusUpdated),
		"skipped", report.Count(RecordRelationship, common.StatusSkipped)+report.Count(RecordEntity, common.StatusSkipped),
	)
	return report, nil
}

// mergeSource returns the provenance entity for the batch, creating it when
// needed. Capture batches get at most one source per capture.
func (g *GraphClient) mergeSource(
	inv *common.Investigation,
	batch MergeBatch,
	ext *common.Extraction,
	report *MergeReport,
) *common.Entity {
	today := g.now().Format(common.DateLayout)

	if batch.Web != nil {
		name := strings.TrimSpace(batch.Web.Name)
		if name == "" {
			name = untitledSource
		}
		src := g.newEntity(name, common.EntitySource, 1.0)
		src.Attributes[common.AttrURL] = batch.Web.URL
		src.Attributes[common.AttrDateCollected] = today
		src.AddFlags(common.FlagWebResearch, common.FlagAIDiscovered)
		inv.Entities = append(inv.Entities, src)
		report.SourceID = src.ID
		report.add(RecordSource, src.Name, src.ID, common.StatusCreated, "")
		return src
	}

	if ext.Source == nil {
		return nil
	}

	captureID := ""
	if batch.Capture != nil {
		captureID = batch.Capture.ID
	}
	if existing := inv.SourceForCapture(captureID); existing != nil {
		report.SourceID = existing.ID
		report.add(RecordSource, existing.Name, existing.ID, common.StatusSkipped, "source already recorded for capture")
		return existing
	}

	name := strings.TrimSpace(ext.Source.Name)
	if name == "" && batch.Capture != nil {
		name = strings.TrimSpace(batch.Capture.PageTitle)
	}
	if name == "" {
		name = untitledSource
	}
	url := ext.Source.URL
	if url == "" && batch.Capture != nil {
		url = batch.Capture.SourceURL
	}
	collected := ext.Source.DateCollected
	if collected == "" {
		collected = today
	}

	src := g.newEntity(name, common.EntitySource, 1.0)
	src.Attributes[common.AttrURL] = url
	src.Attributes[common.AttrDateCollected] = collected
	if ext.Source.PublicationDate != "" {
		src.Attributes[common.AttrPublicationDate] = ext.Source.PublicationDate
	}
	src.AddFlags(common.FlagAutoGenerated)
	if captureID != "" {
		src.FirstSeen = captureID
		src.Occurrences = append(src.Occurrences, captureID)
	}
	inv.Entities = append(inv.Entities, src)
	report.SourceID = src.ID
	report.add(RecordSource, src.Name, src.ID, common.StatusCreated, "")
	return src
}

func (g *GraphClient) mergeEntity(
	inv *common.Investigation,
	batch MergeBatch,
	extracted common.ExtractedEntity,
	captureID string,
	source *common.Entity,
	report *MergeReport,
) {
	name := strings.TrimSpace(extracted.Name)
	if name == "" {
		logger.Warn("[Merge] Skipping entity without name", "investigation", inv.ID)
		report.add(RecordEntity, extracted.Name, "", common.StatusSkipped, reasonEmptyName)
		return
	}
	typ, _ := common.ParseEntityType(extracted.Type)

	description := extracted.SourceDescription
	if existing := findMergeCandidate(inv, name, extracted.Aliases, typ); existing != nil {
		if captureID != "" {
			existing.Occurrences = append(existing.Occurrences, captureID)
		}
		existing.AddAliases(name)
		existing.AddAliases(extracted.Aliases...)
		existing.MergeAttributes(extracted.Attributes)
		existing.RelevanceScore = math.Max(existing.RelevanceScore, extracted.RelevanceScore)
		if batch.Web != nil {
			if description == "" {
				description = webExistingDescription
			}
		}
		if source != nil && description != "" && existing != source {
			existing.AddSourceLink(common.SourceLink{SourceEntityID: source.ID, Description: description})
		}
		report.add(RecordEntity, existing.Name, existing.ID, common.StatusUpdated, "")
		return
	}

	relevance := extracted.RelevanceScore
	if relevance <= 0 {
		relevance = g.config.ExtractedRelevance
	}
	e := g.newEntity(name, typ, relevance)
	e.AddAliases(extracted.Aliases...)
	e.MergeAttributes(extracted.Attributes)
	e.AddFlags(extracted.Flags...)
	if captureID != "" {
		e.FirstSeen = captureID
		e.Occurrences = append(e.Occurrences, captureID)
	}
	if batch.Web != nil {
		e.AddFlags(common.FlagWebResearch, common.FlagAIDiscovered)
		if description == "" {
			description = webEntityDescription
		}
	}
	if e.IsSource() {
		if _, ok := e.Attributes[common.AttrURL]; !ok {
			e.Attributes[common.AttrURL] = ""
		}
		if _, ok := e.Attributes[common.AttrDateCollected]; !ok {
			e.Attributes[common.AttrDateCollected] = g.now().Format(common.DateLayout)
		}
	}
	if source != nil && description != "" {
		e.AddSourceLink(common.SourceLink{SourceEntityID: source.ID, Description: description})
	}
	inv.Entities = append(inv.Entities, e)
	report.add(RecordEntity, e.Name, e.ID, common.StatusCreated, "")
}

// findMergeCandidate looks for an entity the extracted record should be
// folded into. Source entities only absorb extracted sources, so a page
// titled like a company never swallows the company itself.
func findMergeCandidate(inv *common.Investigation, name string, aliases []string, typ common.EntityType) *common.Entity {
	keys := append([]string{name}, aliases...)
	for _, e := range inv.Entities {
		if e.IsSource() != (typ == common.EntitySource) {
			continue
		}
		for _, k := range keys {
			if e.MatchesName(k) {
				return e
			}
		}
	}
	return nil
}

func (g *GraphClient) mergeRelationship(
	inv *common.Investigation,
	batch MergeBatch,
	extracted common.ExtractedRelationship,
	captureID string,
	source *common.Entity,
	report *MergeReport,
) {
	label := fmt.Sprintf("%s -> %s", extracted.Source, extracted.Target)
	from := inv.EntityByName(extracted.Source)
	to := inv.EntityByName(extracted.Target)
	if from == nil || to == nil {
		logger.Warn("[Merge] Skipping relationship with unknown endpoint",
			"investigation", inv.ID, "source", extracted.Source, "target", extracted.Target)
		report.add(RecordRelationship, label, "", common.StatusSkipped, reasonEntityNotFound)
		return
	}

	typ := strings.TrimSpace(extracted.Type)
	if typ == "" {
		typ = common.DefaultRelationshipType
	}
	explanation := extracted.SourceExplanation
	if batch.Web != nil && explanation == "" {
		explanation = webRelationshipReason
	}

	key := common.RelationshipKey{SourceID: from.ID, TargetID: to.ID, Type: typ}
	if existing := inv.FindRelationship(key); existing != nil {
		if captureID != "" {
			existing.Evidence = append(existing.Evidence, captureID)
		}
		existing.Confidence = math.Min(1, existing.Confidence+g.config.ConfidenceIncrement)
		if source != nil && explanation != "" {
			existing.SourcesSupporting = append(existing.SourcesSupporting, common.SupportingSource{
				SourceEntityID: source.ID,
				Explanation:    explanation,
			})
		}
		report.add(RecordRelationship, label, existing.ID, common.StatusUpdated, "")
		return
	}

	confidence := extracted.Confidence
	if confidence <= 0 {
		confidence = g.config.MergeDefaultConfidence
	}
	rel := &common.Relationship{
		ID:                util.NewID(util.PrefixRelationship),
		SourceID:          from.ID,
		TargetID:          to.ID,
		Type:              typ,
		Label:             extracted.Label,
		Confidence:        common.ClampConfidence(confidence),
		Evidence:          []string{},
		Attributes:        map[string]any{},
		SourcesSupporting: []common.SupportingSource{},
	}
	if captureID != "" {
		rel.Evidence = append(rel.Evidence, captureID)
	}
	if batch.Web != nil {
		rel.SetAttribute(common.AttrAICreated, true)
		rel.SetAttribute(common.AttrWebResearch, true)
		rel.SetAttribute(common.AttrExplanation, extracted.SourceExplanation)
		if rel.Label == "" && extracted.SourceExplanation != "" {
			rel.Label = extracted.SourceExplanation
		}
	}
	if rel.Label == "" {
		rel.Label = typ
	}
	if source != nil && explanation != "" {
		rel.SourcesSupporting = append(rel.SourcesSupporting, common.SupportingSource{
			SourceEntityID: source.ID,
			Explanation:    explanation,
		})
	}
	inv.Relationships = append(inv.Relationships, rel)
	report.add(RecordRelationship, label, rel.ID, common.StatusCreated, "")
}

func (g *GraphClient) newEntity(name string, typ common.EntityType, relevance float64) *common.Entity {
	return &common.Entity{
		ID:             util.NewID(util.PrefixEntity),
		Name:           name,
		Type:           typ,
		Aliases:        []string{},
		Attributes:     map[string]any{},
		Occurrences:    []string{},
		RelevanceScore: relevance,
		Flags:          []string{},
		SourceLinks:    []common.SourceLink{},
	}
}

func (g *GraphClient) newSuggestion(s common.ExtractedSuggestion) common.ExplorationSuggestion {
	priority := strings.ToLower(strings.TrimSpace(s.Priority))
	switch priority {
	case common.PriorityHigh, common.PriorityMedium, common.PriorityLow:
	default:
		priority = common.PriorityMedium
	}
	related := s.RelatedEntities
	if related == nil {
		related = []string{}
	}
	return common.ExplorationSuggestion{
		ID:                util.NewID(util.PrefixExploration),
		Suggestion:        s.Suggestion,
		Reason:            s.Reason,
		Priority:          priority,
		RelatedHypothesis: s.RelatedHypothesis,
		RelatedEntities:   related,
		Status:            common.SuggestionPending,
		CreatedAt:         g.now(),
	}
}
