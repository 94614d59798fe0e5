package common

import "time"

// Message types.
const (
	MessageUser      = "user"
	MessageAssistant = "assistant"
	MessageError     = "error"
)

// DefaultConversationTitle is used when a conversation is created untitled.
const DefaultConversationTitle = "New Conversation"

// Conversation is the chat history of one investigation thread.
type Conversation struct {
	ID              string     `json:"id"`
	InvestigationID string     `json:"investigationId"`
	Title           string     `json:"title"`
	Messages        []*Message `json:"messages"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// Message is a single chat turn. Assistant messages keep the model's
// reasoning and the graph actions committed on their behalf for audit.
type Message struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Content   string         `json:"content"`
	Reasoning string         `json:"reasoning,omitempty"`
	Actions   []ActionResult `json:"actions,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// ConversationSummary is the index row kept next to every saved conversation.
type ConversationSummary struct {
	ID              string    `json:"id"`
	InvestigationID string    `json:"investigationId"`
	Title           string    `json:"title"`
	MessageCount    int       `json:"messageCount"`
	LastMessage     string    `json:"lastMessage"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

const lastMessagePreview = 100

// Summary derives the index row for the conversation.
func (c *Conversation) Summary() ConversationSummary {
	s := ConversationSummary{
		ID:              c.ID,
		InvestigationID: c.InvestigationID,
		Title:           c.Title,
		MessageCount:    len(c.Messages),
		UpdatedAt:       c.UpdatedAt,
	}
	if n := len(c.Messages); n > 0 {
		r := []rune(c.Messages[n-1].Content)
		if len(r) > lastMessagePreview {
			r = r[:lastMessagePreview]
		}
		s.LastMessage = string(r)
	}
	return s
}

// Action types understood by the action executor.
const (
	ActionAddEntity          = "add_entity"
	ActionDeleteEntity       = "delete_entity"
	ActionAddRelationship    = "add_relationship"
	ActionDeleteRelationship = "delete_relationship"
	ActionUpdateRelationship = "update_relationship"
)

// Action is one graph mutation declared by the agent or a user.
type Action struct {
	Type           string              `json:"type"`
	Entity         *ActionEntity       `json:"entity,omitempty"`
	Relationship   *ActionRelationship `json:"relationship,omitempty"`
	EntityName     string              `json:"entityName,omitempty"`
	RelationshipID string              `json:"relationshipId,omitempty"`
	Updates        *ActionUpdates      `json:"updates,omitempty"`
	Reason         string              `json:"reason,omitempty"`
}

type ActionEntity struct {
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Aliases    []string       `json:"aliases,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

type ActionRelationship struct {
	Source      string   `json:"source"`
	Target      string   `json:"target"`
	Type        string   `json:"type"`
	Explanation string   `json:"explanation"`
	Confidence  *float64 `json:"confidence,omitempty"`
}

type ActionUpdates struct {
	Confidence  *float64 `json:"confidence,omitempty"`
	Explanation *string  `json:"explanation,omitempty"`
}

// Outcome of a single action or merge record.
const (
	StatusApplied = "applied"
	StatusCreated = "created"
	StatusUpdated = "updated"
	StatusSkipped = "skipped"
)

// ActionResult reports what happened to one action.
type ActionResult struct {
	Action Action `json:"action"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}
