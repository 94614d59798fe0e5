package agent

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/OFFIS-RIT/caseboard/backend/pkg/ai"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/common"
)

// legacyTemperature is the only temperature reasoning models accept.
const legacyTemperature = 1.0

func (r *run) legacy(ctx context.Context) (Answer, error) {
	r.round = 1
	r.transition(StateAwaitingModel)

	prompt := BuildLegacyPrompt(r.inv, r.req.Question)
	content, err := r.agent.aiClient.GenerateCompletion(ctx, prompt,
		ai.WithModel(r.model),
		ai.WithTemperature(legacyTemperature),
	)
	if err != nil {
		return r.fail(fmt.Errorf("legacy completion: %w", err))
	}

	answer, err := parseAnswer(content, false)
	if err != nil {
		return r.fail(err)
	}
	r.transition(StateDone)
	return answer, nil
}

// BuildLegacyPrompt renders the whole graph inline for models that cannot
// call tools.
func BuildLegacyPrompt(inv *common.Investigation, question string) string {
	var entities, relationships, sources []string

	for _, e := range inv.Entities {
		entities = append(entities, entityLine(e))
		if e.IsSource() {
			line := fmt.Sprintf("- [%s] %s", e.ID, e.Name)
			if url := e.AttrString(common.AttrURL); url != "" {
				line += fmt.Sprintf(" (%s)", url)
			}
			sources = append(sources, line)
		}
	}

	for _, rel := range inv.Relationships {
		line := fmt.Sprintf("- [%s] %s → %s → %s (confidence: %v)",
			rel.ID, endpointName(inv, rel.SourceID), rel.Type, endpointName(inv, rel.TargetID), rel.Confidence)
		if n := len(rel.SourcesSupporting); n > 0 {
			line += fmt.Sprintf(" [%d sources]", n)
		}
		relationships = append(relationships, line)
	}

	return fmt.Sprintf(ai.LegacyAgentPrompt,
		len(entities), strings.Join(entities, "\n"),
		len(relationships), strings.Join(relationships, "\n"),
		len(sources), strings.Join(sources, "\n"),
		question,
	)
}

func entityLine(e *common.Entity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- [%s] %s (%s)", e.ID, e.Name, e.Type)
	if len(e.Aliases) > 0 {
		fmt.Fprintf(&b, " aka %s", strings.Join(e.Aliases, ", "))
	}
	if len(e.Attributes) > 0 {
		keys := make([]string, 0, len(e.Attributes))
		for k := range e.Attributes {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		pairs := make([]string, len(keys))
		for i, k := range keys {
			pairs[i] = fmt.Sprintf("%s: %v", k, e.Attributes[k])
		}
		fmt.Fprintf(&b, " [%s]", strings.Join(pairs, ", "))
	}
	return b.String()
}

func endpointName(inv *common.Investigation, id string) string {
	if e := inv.EntityByID(id); e != nil {
		return e.Name
	}
	return id
}
