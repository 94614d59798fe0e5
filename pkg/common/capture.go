package common

import "time"

// Capture is one committed piece of evidence: a screenshot or a region of a
// page plus the page text and metadata scraped next to it. Captures are
// immutable once appended to an investigation.
//
// The image is either inline (ImageData, a data URL) or in object storage
// (ImageKey).
type Capture struct {
	ID            string        `json:"id"`
	ImageData     string        `json:"imageData,omitempty"`
	ImageKey      string        `json:"imageKey,omitempty"`
	SourceURL     string        `json:"sourceUrl"`
	PageTitle     string        `json:"pageTitle"`
	CaptureType   string        `json:"captureType"`
	PageText      string        `json:"pageText,omitempty"`
	Metadata      *PageMetadata `json:"metadata,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
	RawExtraction *Extraction   `json:"rawExtraction,omitempty"`
	Notes         string        `json:"notes"`
}

// DefaultCaptureType is the capture type when the capture source omits it.
const DefaultCaptureType = "full"

// PageMetadata is what the capture source scraped from the page DOM.
type PageMetadata struct {
	URL           string        `json:"url"`
	Title         string        `json:"title"`
	Description   string        `json:"description,omitempty"`
	Author        string        `json:"author,omitempty"`
	PublishedDate string        `json:"publishedDate,omitempty"`
	Headings      []PageHeading `json:"headings,omitempty"`
}

type PageHeading struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

// Exploration suggestion priorities and statuses.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"

	SuggestionPending = "pending"
)

// ExplorationSuggestion is a follow-up lead proposed by the extraction
// provider.
type ExplorationSuggestion struct {
	ID                string    `json:"id"`
	Suggestion        string    `json:"suggestion"`
	Reason            string    `json:"reason"`
	Priority          string    `json:"priority"`
	RelatedHypothesis string    `json:"relatedHypothesis,omitempty"`
	RelatedEntities   []string  `json:"relatedEntities"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"createdAt"`
}

// Extraction is the structured result the extraction provider returns for
// one piece of evidence.
type Extraction struct {
	Source                 *ExtractedSource        `json:"source,omitempty" jsonschema_description:"The captured page or document itself"`
	Entities               []ExtractedEntity       `json:"entities" jsonschema_description:"Every entity found in the evidence"`
	Relationships          []ExtractedRelationship `json:"relationships" jsonschema_description:"Every relationship found in the evidence"`
	ExplorationSuggestions []ExtractedSuggestion   `json:"explorationSuggestions,omitempty" jsonschema_description:"Concrete next steps for the investigation"`
	Summary                string                  `json:"summary,omitempty" jsonschema_description:"Brief summary of what was found"`
}

type ExtractedSource struct {
	Name            string `json:"name" jsonschema_description:"Title or identifier of the page or document"`
	URL             string `json:"url,omitempty"`
	DateCollected   string `json:"dateCollected,omitempty" jsonschema_description:"Collection date, YYYY-MM-DD"`
	PublicationDate string `json:"publicationDate,omitempty" jsonschema_description:"Publication date if stated, YYYY-MM-DD"`
}

type ExtractedEntity struct {
	Name              string         `json:"name" jsonschema_description:"Canonical name"`
	Type              string         `json:"type" jsonschema_description:"person, organization, location, financial, date, identifier, asset or event"`
	Aliases           []string       `json:"aliases,omitempty"`
	Attributes        map[string]any `json:"attributes,omitempty"`
	RelevanceScore    float64        `json:"relevanceScore,omitempty"`
	Flags             []string       `json:"flags,omitempty"`
	ExistingMatch     bool           `json:"existingMatch,omitempty"`
	SourceDescription string         `json:"sourceDescription" jsonschema_description:"What the source says about this entity"`
}

type ExtractedRelationship struct {
	Source            string  `json:"source" jsonschema_description:"Name of the source entity"`
	Target            string  `json:"target" jsonschema_description:"Name of the target entity"`
	Type              string  `json:"type" jsonschema_description:"Relationship verb phrase, e.g. director_of"`
	Label             string  `json:"label,omitempty"`
	Confidence        float64 `json:"confidence,omitempty"`
	SourceExplanation string  `json:"sourceExplanation" jsonschema_description:"How the source proves this relationship"`
}

type ExtractedSuggestion struct {
	Suggestion        string   `json:"suggestion"`
	Reason            string   `json:"reason"`
	Priority          string   `json:"priority,omitempty"`
	RelatedHypothesis string   `json:"relatedHypothesis,omitempty"`
	RelatedEntities   []string `json:"relatedEntities,omitempty"`
}
