package common

import (
	"maps"
	"slices"
	"strings"
	"time"
)

// Investigation is the aggregate root of one case. It owns the entity and
// relationship collections, the append-only capture log and the exploration
// queue. Cross references between records are by id only.
type Investigation struct {
	ID               string                  `json:"id"`
	Title            string                  `json:"title"`
	Objective        string                  `json:"objective"`
	Hypotheses       []string                `json:"hypotheses"`
	Signals          []string                `json:"signals"`
	EntityTypes      []EntityType            `json:"entityTypes"`
	Entities         []*Entity               `json:"entities"`
	Relationships    []*Relationship         `json:"relationships"`
	Captures         []*Capture              `json:"captures"`
	ExplorationQueue []ExplorationSuggestion `json:"explorationQueue"`
	CreatedAt        time.Time               `json:"createdAt"`
	UpdatedAt        time.Time               `json:"updatedAt"`
}

// DefaultInvestigationTitle is used when an investigation is created untitled.
const DefaultInvestigationTitle = "Untitled Investigation"

// InvestigationSummary is the index row kept next to every saved investigation.
type InvestigationSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	EntityCount  int       `json:"entityCount"`
	CaptureCount int       `json:"captureCount"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Summary derives the index row for the investigation.
func (inv *Investigation) Summary() InvestigationSummary {
	return InvestigationSummary{
		ID:           inv.ID,
		Title:        inv.Title,
		EntityCount:  len(inv.Entities),
		CaptureCount: len(inv.Captures),
		UpdatedAt:    inv.UpdatedAt,
	}
}

// EntityByID returns the entity with the given id, or nil.
func (inv *Investigation) EntityByID(id string) *Entity {
	for _, e := range inv.Entities {
		if e.ID == id {
			return e
		}
	}
	return nil
}

// EntityByName returns the first entity whose name or alias equals name,
// ignoring case. Non-source entities win over a source with the same name.
func (inv *Investigation) EntityByName(name string) *Entity {
	var source *Entity
	for _, e := range inv.Entities {
		if !e.MatchesName(name) {
			continue
		}
		if !e.IsSource() {
			return e
		}
		if source == nil {
			source = e
		}
	}
	return source
}

// RelationshipByID returns the relationship with the given id, or nil.
func (inv *Investigation) RelationshipByID(id string) *Relationship {
	for _, r := range inv.Relationships {
		if r.ID == id {
			return r
		}
	}
	return nil
}

// FindRelationship returns the relationship with the given dedup key, or nil.
func (inv *Investigation) FindRelationship(key RelationshipKey) *Relationship {
	for _, r := range inv.Relationships {
		if r.Key() == key {
			return r
		}
	}
	return nil
}

// RemoveEntity deletes an entity together with every relationship touching
// it. It returns the number of relationships removed and false when the
// entity does not exist.
func (inv *Investigation) RemoveEntity(id string) (int, bool) {
	idx := slices.IndexFunc(inv.Entities, func(e *Entity) bool { return e.ID == id })
	if idx < 0 {
		return 0, false
	}
	inv.Entities = slices.Delete(inv.Entities, idx, idx+1)

	before := len(inv.Relationships)
	inv.Relationships = slices.DeleteFunc(inv.Relationships, func(r *Relationship) bool {
		return r.Touches(id)
	})
	return before - len(inv.Relationships), true
}

// RemoveRelationship deletes a relationship by id.
func (inv *Investigation) RemoveRelationship(id string) bool {
	before := len(inv.Relationships)
	inv.Relationships = slices.DeleteFunc(inv.Relationships, func(r *Relationship) bool {
		return r.ID == id
	})
	return len(inv.Relationships) != before
}

// HasCapture reports whether a capture with the given id was committed.
func (inv *Investigation) HasCapture(id string) bool {
	return slices.ContainsFunc(inv.Captures, func(c *Capture) bool { return c.ID == id })
}

// SourceForCapture returns the source entity created for a capture, or nil.
func (inv *Investigation) SourceForCapture(captureID string) *Entity {
	if captureID == "" {
		return nil
	}
	for _, e := range inv.Entities {
		if e.IsSource() && e.FirstSeen == captureID {
			return e
		}
	}
	return nil
}

// Sources returns every source-typed entity in insertion order.
func (inv *Investigation) Sources() []*Entity {
	var out []*Entity
	for _, e := range inv.Entities {
		if e.IsSource() {
			out = append(out, e)
		}
	}
	return out
}

// Clone returns a deep copy that shares no mutable state with inv. Mutations
// are staged on a clone and only published once they have been persisted.
func (inv *Investigation) Clone() *Investigation {
	out := *inv
	out.Hypotheses = slices.Clone(inv.Hypotheses)
	out.Signals = slices.Clone(inv.Signals)
	out.EntityTypes = slices.Clone(inv.EntityTypes)

	out.Entities = make([]*Entity, len(inv.Entities))
	for i, e := range inv.Entities {
		out.Entities[i] = e.Clone()
	}
	out.Relationships = make([]*Relationship, len(inv.Relationships))
	for i, r := range inv.Relationships {
		out.Relationships[i] = r.Clone()
	}
	out.Captures = make([]*Capture, len(inv.Captures))
	for i, c := range inv.Captures {
		cp := *c
		out.Captures[i] = &cp
	}
	out.ExplorationQueue = make([]ExplorationSuggestion, len(inv.ExplorationQueue))
	for i, s := range inv.ExplorationQueue {
		s.RelatedEntities = slices.Clone(s.RelatedEntities)
		out.ExplorationQueue[i] = s
	}
	return &out
}

// Clone returns a deep copy of the entity.
func (e *Entity) Clone() *Entity {
	out := *e
	out.Aliases = slices.Clone(e.Aliases)
	out.Attributes = maps.Clone(e.Attributes)
	out.Occurrences = slices.Clone(e.Occurrences)
	out.Flags = slices.Clone(e.Flags)
	out.SourceLinks = slices.Clone(e.SourceLinks)
	return &out
}

// Clone returns a deep copy of the relationship.
func (r *Relationship) Clone() *Relationship {
	out := *r
	out.Evidence = slices.Clone(r.Evidence)
	out.Attributes = maps.Clone(r.Attributes)
	out.SourcesSupporting = slices.Clone(r.SourcesSupporting)
	return &out
}

// EntityNames returns the names of the given entities, in order.
func EntityNames(entities []*Entity) []string {
	names := make([]string, len(entities))
	for i, e := range entities {
		names[i] = e.Name
	}
	return names
}

// Normalize fills nil collections so the JSON form never carries null arrays,
// and fixes records loaded from older snapshots.
func (inv *Investigation) Normalize() {
	if inv.Title == "" {
		inv.Title = DefaultInvestigationTitle
	}
	if inv.Hypotheses == nil {
		inv.Hypotheses = []string{}
	}
	if inv.Signals == nil {
		inv.Signals = []string{}
	}
	if len(inv.EntityTypes) == 0 {
		inv.EntityTypes = slices.Clone(EntityTypes)
	}
	if inv.Entities == nil {
		inv.Entities = []*Entity{}
	}
	if inv.Relationships == nil {
		inv.Relationships = []*Relationship{}
	}
	if inv.Captures == nil {
		inv.Captures = []*Capture{}
	}
	if inv.ExplorationQueue == nil {
		inv.ExplorationQueue = []ExplorationSuggestion{}
	}
	for _, e := range inv.Entities {
		e.normalize()
	}
	for _, r := range inv.Relationships {
		if r.Type == "" {
			r.Type = DefaultRelationshipType
		}
		if r.Evidence == nil {
			r.Evidence = []string{}
		}
		if r.Attributes == nil {
			r.Attributes = map[string]any{}
		}
		if r.SourcesSupporting == nil {
			r.SourcesSupporting = []SupportingSource{}
		}
	}
}

func (e *Entity) normalize() {
	if e.Aliases == nil {
		e.Aliases = []string{}
	}
	if e.Attributes == nil {
		e.Attributes = map[string]any{}
	}
	if e.Occurrences == nil {
		e.Occurrences = []string{}
	}
	if e.Flags == nil {
		e.Flags = []string{}
	}
	if e.SourceLinks == nil {
		e.SourceLinks = []SourceLink{}
	}
	if e.IsSource() {
		if _, ok := e.Attributes[AttrURL]; !ok {
			e.Attributes[AttrURL] = ""
		}
		if _, ok := e.Attributes[AttrDateCollected]; !ok {
			e.Attributes[AttrDateCollected] = ""
		}
		e.SourceLinks = []SourceLink{}
	}
}

// ContainsFold reports whether list holds s, ignoring case.
func ContainsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
