package pgx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/caseboard/backend/pkg/common"

	pgxv5 "github.com/jackc/pgx/v5"
)

// app_state keys.
const (
	stateSettings            = "settings"
	stateActiveInvestigation = "active_investigation"
)

const (
	getStateSQL = `SELECT value FROM app_state WHERE key = $1`

	setStateSQL = `
INSERT INTO app_state (key, value) VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`

	deleteStateSQL = `DELETE FROM app_state WHERE key = $1`
)

// getState decodes the value under key into out. It reports false when the
// key was never set.
func (s *GraphDBStorage) getState(ctx context.Context, key string, out any) (bool, error) {
	var data []byte
	err := s.conn.QueryRow(ctx, getStateSQL, key).Scan(&data)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(data, out)
}

func (s *GraphDBStorage) setState(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = s.conn.Exec(ctx, setStateSQL, key, data)
	return err
}

func (s *GraphDBStorage) GetSettings(ctx context.Context) (common.Settings, error) {
	var settings common.Settings
	ok, err := s.getState(ctx, stateSettings, &settings)
	if err != nil {
		return common.Settings{}, fmt.Errorf("get settings: %w", err)
	}
	if !ok {
		return common.DefaultSettings(), nil
	}
	return settings, nil
}

func (s *GraphDBStorage) SaveSettings(ctx context.Context, settings common.Settings) error {
	if err := s.setState(ctx, stateSettings, settings); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

func (s *GraphDBStorage) GetActiveInvestigationID(ctx context.Context) (string, error) {
	var id string
	if _, err := s.getState(ctx, stateActiveInvestigation, &id); err != nil {
		return "", fmt.Errorf("get active investigation: %w", err)
	}
	return id, nil
}

func (s *GraphDBStorage) SetActiveInvestigationID(ctx context.Context, id string) error {
	var err error
	if id == "" {
		_, err = s.conn.Exec(ctx, deleteStateSQL, stateActiveInvestigation)
	} else {
		err = s.setState(ctx, stateActiveInvestigation, id)
	}
	if err != nil {
		return fmt.Errorf("set active investigation: %w", err)
	}
	return nil
}
