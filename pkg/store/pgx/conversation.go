package pgx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/caseboard/backend/pkg/common"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
)

const (
	getConversationSQL = `SELECT data FROM conversations WHERE id = $1`

	upsertConversationSQL = `
INSERT INTO conversations (id, investigation_id, title, message_count, last_message, data, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO UPDATE
SET investigation_id = EXCLUDED.investigation_id,
    title            = EXCLUDED.title,
    message_count    = EXCLUDED.message_count,
    last_message     = EXCLUDED.last_message,
    data             = EXCLUDED.data,
    updated_at       = EXCLUDED.updated_at`

	listConversationsSQL = `
SELECT id, investigation_id, title, message_count, last_message, updated_at
FROM conversations
WHERE $1 = '' OR investigation_id = $1
ORDER BY updated_at DESC, id`

	deleteConversationSQL = `DELETE FROM conversations WHERE id = $1`
)

func (s *GraphDBStorage) GetConversation(ctx context.Context, id string) (*common.Conversation, error) {
	var data []byte
	err := s.conn.QueryRow(ctx, getConversationSQL, id).Scan(&data)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return nil, fmt.Errorf("get conversation %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation %s: %w", id, err)
	}

	var conv common.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("decode conversation %s: %w", id, err)
	}
	if conv.Messages == nil {
		conv.Messages = []*common.Message{}
	}
	return &conv, nil
}

func (s *GraphDBStorage) SaveConversation(ctx context.Context, conv *common.Conversation) error {
	if conv == nil || conv.ID == "" {
		return errors.New("conversation id is required")
	}
	store.PrepareConversation(conv, s.now())

	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("encode conversation %s: %w", conv.ID, err)
	}
	sum := conv.Summary()
	_, err = s.conn.Exec(ctx, upsertConversationSQL,
		conv.ID, conv.InvestigationID, conv.Title, sum.MessageCount, sum.LastMessage, data, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save conversation %s: %w", conv.ID, err)
	}
	return nil
}

func (s *GraphDBStorage) ListConversations(ctx context.Context, investigationID string) ([]common.ConversationSummary, error) {
	rows, err := s.conn.Query(ctx, listConversationsSQL, investigationID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	out, err := pgxv5.CollectRows(rows, func(row pgxv5.CollectableRow) (common.ConversationSummary, error) {
		var sum common.ConversationSummary
		err := row.Scan(&sum.ID, &sum.InvestigationID, &sum.Title, &sum.MessageCount, &sum.LastMessage, &sum.UpdatedAt)
		return sum, err
	})
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return out, nil
}

func (s *GraphDBStorage) DeleteConversation(ctx context.Context, id string) error {
	tag, err := s.conn.Exec(ctx, deleteConversationSQL, id)
	if err != nil {
		return fmt.Errorf("delete conversation %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete conversation %s: %w", id, store.ErrNotFound)
	}
	return nil
}
