package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/caseboard/backend/internal/util"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/common"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/logger"
)

var (
	// ErrInvalidInput is returned by the manual intents when a required
	// field is missing or malformed.
	ErrInvalidInput = errors.New("invalid input")
	// ErrDuplicateRelationship is returned when a manual relationship
	// repeats an existing (source, target, type) triple.
	ErrDuplicateRelationship = errors.New("relationship already exists")
	// ErrEntityNotFound is returned when a manual intent references an
	// entity id that does not exist.
	ErrEntityNotFound = errors.New("entity not found")
)

// ActionReport lists the outcome of every action in a batch. Changed is set
// when at least one action was applied, in which case the caller must save
// the investigation and refresh its layout.
type ActionReport struct {
	Results []common.ActionResult `json:"results"`
	Changed bool                  `json:"changed"`
}

// Applied returns how many actions were applied.
func (r *ActionReport) Applied() int {
	n := 0
	for _, res := range r.Results {
		if res.Status == common.StatusApplied {
			n++
		}
	}
	return n
}

// ApplyActions executes each action independently against inv. A malformed
// or unresolvable action is logged and reported as skipped; it never stops
// the rest of the batch.
func (g *GraphClient) ApplyActions(inv *common.Investigation, actions []common.Action) *ActionReport {
	report := &ActionReport{Results: make([]common.ActionResult, 0, len(actions))}
	inv.Normalize()

	for _, action := range actions {
		err := g.applyAction(inv, action)
		if err != nil {
			logger.Warn("[Actions] Skipping action", "investigation", inv.ID, "type", action.Type, "reason", err.Error())
			report.Results = append(report.Results, common.ActionResult{
				Action: action,
				Status: common.StatusSkipped,
				Reason: err.Error(),
			})
			continue
		}
		report.Changed = true
		report.Results = append(report.Results, common.ActionResult{Action: action, Status: common.StatusApplied})
	}

	logger.Debug("[Actions] Batch applied", "investigation", inv.ID, "total", len(actions), "applied", report.Applied())
	return report
}

func (g *GraphClient) applyAction(inv *common.Investigation, action common.Action) error {
	switch action.Type {
	case common.ActionAddEntity:
		return g.actionAddEntity(inv, action.Entity)
	case common.ActionDeleteEntity:
		return actionDeleteEntity(inv, action.EntityName)
	case common.ActionAddRelationship:
		return g.actionAddRelationship(inv, action.Relationship)
	case common.ActionDeleteRelationship:
		if action.RelationshipID == "" {
			return errors.New("missing relationshipId")
		}
		if !inv.RemoveRelationship(action.RelationshipID) {
			return fmt.Errorf("relationship %q not found", action.RelationshipID)
		}
		return nil
	case common.ActionUpdateRelationship:
		return actionUpdateRelationship(inv, action.RelationshipID, action.Updates)
	case "":
		return errors.New("missing action type")
	default:
		return fmt.Errorf("unknown action type %q", action.Type)
	}
}

// actionAddEntity creates the entity without a duplicate check. Deciding
// whether an entity is new is the declaring party's job.
func (g *GraphClient) actionAddEntity(inv *common.Investigation, spec *common.ActionEntity) error {
	if spec == nil {
		return errors.New("missing entity")
	}
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return errors.New("entity name is empty")
	}
	typ, _ := common.ParseEntityType(spec.Type)

	e := g.newEntity(name, typ, g.config.ActionRelevance)
	e.AddAliases(spec.Aliases...)
	e.MergeAttributes(spec.Attributes)
	e.AddFlags(common.FlagAICreated)
	if e.IsSource() {
		if _, ok := e.Attributes[common.AttrURL]; !ok {
			e.Attributes[common.AttrURL] = ""
		}
		if _, ok := e.Attributes[common.AttrDateCollected]; !ok {
			e.Attributes[common.AttrDateCollected] = g.now().Format(common.DateLayout)
		}
	}
	inv.Entities = append(inv.Entities, e)
	return nil
}

func actionDeleteEntity(inv *common.Investigation, name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("missing entityName")
	}
	e := entityByExactName(inv, name)
	if e == nil {
		return fmt.Errorf("entity %q not found", name)
	}
	removed, _ := inv.RemoveEntity(e.ID)
	logger.Debug("[Actions] Entity deleted", "investigation", inv.ID, "entity", e.Name, "relationships_removed", removed)
	return nil
}

func (g *GraphClient) actionAddRelationship(inv *common.Investigation, spec *common.ActionRelationship) error {
	if spec == nil {
		return errors.New("missing relationship")
	}
	if strings.TrimSpace(spec.Explanation) == "" {
		return errors.New("relationship explanation is required")
	}
	from := entityByExactName(inv, spec.Source)
	if from == nil {
		return fmt.Errorf("source entity %q not found", spec.Source)
	}
	to := entityByExactName(inv, spec.Target)
	if to == nil {
		return fmt.Errorf("target entity %q not found", spec.Target)
	}

	typ := strings.TrimSpace(spec.Type)
	if typ == "" {
		typ = common.DefaultRelationshipType
	}
	key := common.RelationshipKey{SourceID: from.ID, TargetID: to.ID, Type: typ}
	if inv.FindRelationship(key) != nil {
		return fmt.Errorf("relationship %s -[%s]-> %s already exists", from.Name, typ, to.Name)
	}

	confidence := g.config.ActionDefaultConfidence
	if spec.Confidence != nil {
		confidence = *spec.Confidence
	}
	inv.Relationships = append(inv.Relationships, &common.Relationship{
		ID:         util.NewID(util.PrefixRelationship),
		SourceID:   from.ID,
		TargetID:   to.ID,
		Type:       typ,
		Label:      spec.Explanation,
		Confidence: common.ClampConfidence(confidence),
		Evidence:   []string{},
		Attributes: map[string]any{
			common.AttrAICreated:   true,
			common.AttrExplanation: spec.Explanation,
		},
		SourcesSupporting: []common.SupportingSource{},
	})
	return nil
}

func actionUpdateRelationship(inv *common.Investigation, id string, updates *common.ActionUpdates) error {
	if id == "" {
		return errors.New("missing relationshipId")
	}
	if updates == nil || (updates.Confidence == nil && updates.Explanation == nil) {
		return errors.New("missing updates")
	}
	rel := inv.RelationshipByID(id)
	if rel == nil {
		return fmt.Errorf("relationship %q not found", id)
	}
	if updates.Confidence != nil {
		rel.Confidence = common.ClampConfidence(*updates.Confidence)
	}
	if updates.Explanation != nil && *updates.Explanation != "" {
		rel.SetAttribute(common.AttrExplanation, *updates.Explanation)
	}
	return nil
}

// entityByExactName matches on the entity name only. Actions are declared
// against names the agent was shown, so aliases are not consulted. A source
// is only returned when no other entity carries the name.
func entityByExactName(inv *common.Investigation, name string) *common.Entity {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	var source *common.Entity
	for _, e := range inv.Entities {
		if !strings.EqualFold(e.Name, name) {
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

// ManualEntity is an entity a user creates by hand.
type ManualEntity struct {
	Name            string   `json:"name" validate:"required"`
	Type            string   `json:"type" validate:"required"`
	Aliases         []string `json:"aliases"`
	Notes           string   `json:"notes"`
	URL             string   `json:"url"`
	DateCollected   string   `json:"dateCollected"`
	PublicationDate string   `json:"publicationDate"`
}

// AddManualEntity appends a user-created entity. Sources must state when
// they were collected.
func (g *GraphClient) AddManualEntity(inv *common.Investigation, in ManualEntity) (*common.Entity, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: entity name is required", ErrInvalidInput)
	}
	typ, ok := common.ParseEntityType(in.Type)
	if !ok {
		return nil, fmt.Errorf("%w: unknown entity type %q", ErrInvalidInput, in.Type)
	}

	e := g.newEntity(name, typ, g.config.ManualRelevance)
	e.AddAliases(in.Aliases...)
	e.Notes = strings.TrimSpace(in.Notes)
	e.AddFlags(common.FlagManual)
	if e.IsSource() {
		if in.DateCollected == "" {
			return nil, fmt.Errorf("%w: date collected is required for sources", ErrInvalidInput)
		}
		e.Attributes[common.AttrURL] = strings.TrimSpace(in.URL)
		e.Attributes[common.AttrDateCollected] = in.DateCollected
		if in.PublicationDate != "" {
			e.Attributes[common.AttrPublicationDate] = in.PublicationDate
		}
	}
	inv.Normalize()
	inv.Entities = append(inv.Entities, e)
	return e, nil
}

// ManualRelationship is a relationship a user draws between two entities.
type ManualRelationship struct {
	SourceID   string                    `json:"sourceId" validate:"required"`
	TargetID   string                    `json:"targetId" validate:"required"`
	Type       string                    `json:"type" validate:"required"`
	Label      string                    `json:"label"`
	Confidence *float64                  `json:"confidence"`
	Sources    []common.SupportingSource `json:"sourcesSupporting"`
}

// AddManualRelationship appends a user-drawn relationship. Supporting
// sources must reference existing source entities.
func (g *GraphClient) AddManualRelationship(inv *common.Investigation, in ManualRelationship) (*common.Relationship, error) {
	typ := strings.TrimSpace(in.Type)
	if typ == "" {
		return nil, fmt.Errorf("%w: relationship type is required", ErrInvalidInput)
	}
	if inv.EntityByID(in.SourceID) == nil {
		return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, in.SourceID)
	}
	if inv.EntityByID(in.TargetID) == nil {
		return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, in.TargetID)
	}
	key := common.RelationshipKey{SourceID: in.SourceID, TargetID: in.TargetID, Type: typ}
	if inv.FindRelationship(key) != nil {
		return nil, ErrDuplicateRelationship
	}

	supporting := make([]common.SupportingSource, 0, len(in.Sources))
	for _, s := range in.Sources {
		src := inv.EntityByID(s.SourceEntityID)
		if src == nil || !src.IsSource() {
			return nil, fmt.Errorf("%w: %s is not a source entity", ErrInvalidInput, s.SourceEntityID)
		}
		supporting = append(supporting, s)
	}

	label := strings.TrimSpace(in.Label)
	if label == "" {
		label = typ
	}
	confidence := g.config.ManualDefaultConfidence
	if in.Confidence != nil {
		confidence = *in.Confidence
	}
	rel := &common.Relationship{
		ID:                util.NewID(util.PrefixRelationship),
		SourceID:          in.SourceID,
		TargetID:          in.TargetID,
		Type:              typ,
		Label:             label,
		Confidence:        common.ClampConfidence(confidence),
		Evidence:          []string{},
		Attributes:        map[string]any{},
		SourcesSupporting: supporting,
	}
	inv.Normalize()
	inv.Relationships = append(inv.Relationships, rel)
	return rel, nil
}
