package common

import (
	"strings"
)

// EntityType tags what kind of real-world thing an Entity stands for.
type EntityType string

const (
	EntityPerson       EntityType = "person"
	EntityOrganization EntityType = "organization"
	EntityLocation     EntityType = "location"
	EntityFinancial    EntityType = "financial"
	EntityDate         EntityType = "date"
	EntityIdentifier   EntityType = "identifier"
	EntityAsset        EntityType = "asset"
	EntityEvent        EntityType = "event"
	EntitySource       EntityType = "source"

	// EntityUnknown is stored when a producer hands us a tag outside the set.
	EntityUnknown EntityType = "unknown"
)

// EntityTypes lists the supported tags in display order.
var EntityTypes = []EntityType{
	EntityPerson,
	EntityOrganization,
	EntityLocation,
	EntityFinancial,
	EntityDate,
	EntityIdentifier,
	EntityAsset,
	EntityEvent,
	EntitySource,
}

// ParseEntityType normalizes a free-form type tag. The boolean reports whether
// the tag belongs to the supported set; unsupported tags map to EntityUnknown.
func ParseEntityType(s string) (EntityType, bool) {
	t := EntityType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range EntityTypes {
		if t == known {
			return t, true
		}
	}
	return EntityUnknown, false
}

// Attribute keys with a fixed meaning.
const (
	AttrURL             = "url"
	AttrDateCollected   = "dateCollected"
	AttrPublicationDate = "publicationDate"
	AttrExplanation     = "explanation"
	AttrAICreated       = "aiCreated"
	AttrWebResearch     = "webResearch"
)

// Entity flags written by the engine itself.
const (
	FlagAutoGenerated = "auto-generated"
	FlagAICreated     = "ai-created"
	FlagAIDiscovered  = "ai-discovered"
	FlagWebResearch   = "web-research"
	FlagManual        = "manual"
)

// DateLayout is the calendar-date format used for dateCollected and friends.
const DateLayout = "2006-01-02"

// SourceLink asserts that the Source entity SourceEntityID says Description
// about the entity carrying the link.
type SourceLink struct {
	SourceEntityID string `json:"sourceEntityId"`
	Description    string `json:"description"`
}

// SupportingSource asserts that the Source entity SourceEntityID proves a
// relationship, for the reason given in Explanation.
type SupportingSource struct {
	SourceEntityID string `json:"sourceEntityId"`
	Explanation    string `json:"explanation"`
}

// Entity is a node of the investigation graph.
//
// Occurrences is append-only: its first element is the capture the entity was
// first seen in, its last the most recent one. Source-typed entities carry
// the url and dateCollected attributes and never carry source links of their
// own.
type Entity struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Type           EntityType     `json:"type"`
	Aliases        []string       `json:"aliases"`
	Attributes     map[string]any `json:"attributes"`
	FirstSeen      string         `json:"firstSeen,omitempty"`
	Occurrences    []string       `json:"occurrences"`
	RelevanceScore float64        `json:"relevanceScore"`
	Flags          []string       `json:"flags"`
	Notes          string         `json:"notes"`
	SourceLinks    []SourceLink   `json:"sourceLinks"`
}

// IsSource reports whether the entity anchors provenance.
func (e *Entity) IsSource() bool {
	return e.Type == EntitySource
}

// AttrString returns a string attribute or "" when absent or not a string.
func (e *Entity) AttrString(key string) string {
	if e.Attributes == nil {
		return ""
	}
	s, _ := e.Attributes[key].(string)
	return s
}

// HasFlag reports whether flag is set on the entity.
func (e *Entity) HasFlag(flag string) bool {
	for _, f := range e.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// AddFlags sets every flag that is not already present.
func (e *Entity) AddFlags(flags ...string) {
	for _, f := range flags {
		if f != "" && !e.HasFlag(f) {
			e.Flags = append(e.Flags, f)
		}
	}
}

// MatchesName reports a case-insensitive exact hit on the name or an alias.
func (e *Entity) MatchesName(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	if strings.EqualFold(e.Name, name) {
		return true
	}
	for _, a := range e.Aliases {
		if strings.EqualFold(a, name) {
			return true
		}
	}
	return false
}

// AddAliases unions aliases into the entity, ignoring case duplicates and the
// entity's own name.
func (e *Entity) AddAliases(aliases ...string) {
	for _, a := range aliases {
		a = strings.TrimSpace(a)
		if a == "" || e.MatchesName(a) {
			continue
		}
		e.Aliases = append(e.Aliases, a)
	}
}

// MergeAttributes shallow-merges attrs into the entity; incoming keys win.
func (e *Entity) MergeAttributes(attrs map[string]any) {
	if len(attrs) == 0 {
		return
	}
	if e.Attributes == nil {
		e.Attributes = make(map[string]any, len(attrs))
	}
	for k, v := range attrs {
		e.Attributes[k] = v
	}
}

// AddSourceLink appends a provenance link. Source entities are cited, never
// citing, so the call is a no-op for them.
func (e *Entity) AddSourceLink(link SourceLink) {
	if e.IsSource() || link.SourceEntityID == "" {
		return
	}
	e.SourceLinks = append(e.SourceLinks, link)
}

// RelationshipKey is the dedup key of a relationship.
type RelationshipKey struct {
	SourceID string
	TargetID string
	Type     string
}

// Relationship is a directed, typed edge between two entities.
type Relationship struct {
	ID                string             `json:"id"`
	SourceID          string             `json:"sourceId"`
	TargetID          string             `json:"targetId"`
	Type              string             `json:"type"`
	Label             string             `json:"label"`
	Confidence        float64            `json:"confidence"`
	Evidence          []string           `json:"evidence"`
	Attributes        map[string]any     `json:"attributes"`
	SourcesSupporting []SupportingSource `json:"sourcesSupporting"`
}

// DefaultRelationshipType is used when a producer omits the type.
const DefaultRelationshipType = "related_to"

// Key returns the dedup key of the relationship.
func (r *Relationship) Key() RelationshipKey {
	return RelationshipKey{SourceID: r.SourceID, TargetID: r.TargetID, Type: r.Type}
}

// Explanation returns the explanation attribute, if any.
func (r *Relationship) Explanation() string {
	if r.Attributes == nil {
		return ""
	}
	s, _ := r.Attributes[AttrExplanation].(string)
	return s
}

// SetAttribute writes a single attribute, allocating the map on first use.
func (r *Relationship) SetAttribute(key string, value any) {
	if r.Attributes == nil {
		r.Attributes = map[string]any{}
	}
	r.Attributes[key] = value
}

// Touches reports whether the relationship references the entity id at
// either end.
func (r *Relationship) Touches(entityID string) bool {
	return r.SourceID == entityID || r.TargetID == entityID
}

// ClampConfidence keeps a confidence score inside [0, 1].
func ClampConfidence(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
