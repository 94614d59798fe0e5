package store

import (
	"cmp"
	"slices"
	"time"

	"github.com/OFFIS-RIT/caseboard/backend/pkg/common"
)

// PrepareInvestigation normalizes inv and stamps its timestamps for a save at
// now.
func PrepareInvestigation(inv *common.Investigation, now time.Time) {
	inv.Normalize()
	now = now.UTC()
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = now
	}
	inv.UpdatedAt = now
}

// PrepareConversation fills defaults and stamps conv for a save at now.
func PrepareConversation(conv *common.Conversation, now time.Time) {
	now = now.UTC()
	if conv.Title == "" {
		conv.Title = common.DefaultConversationTitle
	}
	if conv.Messages == nil {
		conv.Messages = []*common.Message{}
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = now
}

// SortInvestigationSummaries orders summaries newest first.
func SortInvestigationSummaries(s []common.InvestigationSummary) {
	slices.SortStableFunc(s, func(a, b common.InvestigationSummary) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// SortConversationSummaries orders summaries newest first.
func SortConversationSummaries(s []common.ConversationSummary) {
	slices.SortStableFunc(s, func(a, b common.ConversationSummary) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
