package pgx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/caseboard/backend/pkg/common"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/logger"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
)

const (
	getInvestigationSQL = `SELECT data FROM investigations WHERE id = $1`

	upsertInvestigationSQL = `
INSERT INTO investigations (id, title, entity_count, capture_count, data, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE
SET title         = EXCLUDED.title,
    entity_count  = EXCLUDED.entity_count,
    capture_count = EXCLUDED.capture_count,
    data          = EXCLUDED.data,
    updated_at    = EXCLUDED.updated_at`

	listInvestigationsSQL = `
SELECT id, title, entity_count, capture_count, updated_at
FROM investigations
ORDER BY updated_at DESC, id`

	deleteInvestigationSQL = `DELETE FROM investigations WHERE id = $1`

	deleteInvestigationConversationsSQL = `DELETE FROM conversations WHERE investigation_id = $1`

	clearActiveInvestigationSQL = `DELETE FROM app_state WHERE key = 'active_investigation' AND value = to_jsonb($1::text)`
)

func (s *GraphDBStorage) GetInvestigation(ctx context.Context, id string) (*common.Investigation, error) {
	var data []byte
	err := s.conn.QueryRow(ctx, getInvestigationSQL, id).Scan(&data)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return nil, fmt.Errorf("get investigation %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get investigation %s: %w", id, err)
	}

	var inv common.Investigation
	if err := json.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("decode investigation %s: %w", id, err)
	}
	inv.Normalize()
	return &inv, nil
}

func (s *GraphDBStorage) SaveInvestigation(ctx context.Context, inv *common.Investigation) error {
	if inv == nil || inv.ID == "" {
		return errors.New("investigation id is required")
	}
	store.PrepareInvestigation(inv, s.now())

	data, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("encode investigation %s: %w", inv.ID, err)
	}
	_, err = s.conn.Exec(ctx, upsertInvestigationSQL,
		inv.ID, inv.Title, len(inv.Entities), len(inv.Captures), data, inv.CreatedAt, inv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save investigation %s: %w", inv.ID, err)
	}
	return nil
}

func (s *GraphDBStorage) ListInvestigations(ctx context.Context) ([]common.InvestigationSummary, error) {
	rows, err := s.conn.Query(ctx, listInvestigationsSQL)
	if err != nil {
		return nil, fmt.Errorf("list investigations: %w", err)
	}
	out, err := pgxv5.CollectRows(rows, func(row pgxv5.CollectableRow) (common.InvestigationSummary, error) {
		var sum common.InvestigationSummary
		err := row.Scan(&sum.ID, &sum.Title, &sum.EntityCount, &sum.CaptureCount, &sum.UpdatedAt)
		return sum, err
	})
	if err != nil {
		return nil, fmt.Errorf("list investigations: %w", err)
	}
	return out, nil
}

// DeleteInvestigation removes the investigation, its conversations and the
// active marker in one transaction.
func (s *GraphDBStorage) DeleteInvestigation(ctx context.Context, id string) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, deleteInvestigationSQL, id)
	if err != nil {
		return fmt.Errorf("delete investigation %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete investigation %s: %w", id, store.ErrNotFound)
	}
	convs, err := tx.Exec(ctx, deleteInvestigationConversationsSQL, id)
	if err != nil {
		return fmt.Errorf("delete conversations of %s: %w", id, err)
	}
	if _, err := tx.Exec(ctx, clearActiveInvestigationSQL, id); err != nil {
		return fmt.Errorf("clear active investigation: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	logger.Debug("[Store] Investigation deleted", "investigation", id, "conversations", convs.RowsAffected())
	return nil
}
