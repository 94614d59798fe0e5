package store

import (
	"context"
	"errors"

	"github.com/OFFIS-RIT/caseboard/backend/pkg/common"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Storage persists investigations, conversations and the global settings.
// Every save also maintains the summary index used by the list operations,
// so listing never has to load full aggregates.
type Storage interface {
	GetInvestigation(ctx context.Context, id string) (*common.Investigation, error)
	// SaveInvestigation stamps UpdatedAt (and CreatedAt on first save) on inv
	// before writing it.
	SaveInvestigation(ctx context.Context, inv *common.Investigation) error
	ListInvestigations(ctx context.Context) ([]common.InvestigationSummary, error)
	// DeleteInvestigation removes the investigation together with its
	// conversations and clears it as the active investigation.
	DeleteInvestigation(ctx context.Context, id string) error

	GetConversation(ctx context.Context, id string) (*common.Conversation, error)
	SaveConversation(ctx context.Context, conv *common.Conversation) error
	// ListConversations lists the conversations of one investigation, or all
	// of them when investigationID is empty.
	ListConversations(ctx context.Context, investigationID string) ([]common.ConversationSummary, error)
	DeleteConversation(ctx context.Context, id string) error

	// GetSettings returns DefaultSettings until settings were saved once.
	GetSettings(ctx context.Context) (common.Settings, error)
	SaveSettings(ctx context.Context, settings common.Settings) error

	// GetActiveInvestigationID returns "" when no investigation is active.
	GetActiveInvestigationID(ctx context.Context) (string, error)
	SetActiveInvestigationID(ctx context.Context, id string) error

	Close() error
}
