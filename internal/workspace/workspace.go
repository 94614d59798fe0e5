// Package workspace owns the investigation lifecycle. Every mutation runs
// under the investigation's lock against a clone of the stored aggregate,
// and the clone only replaces the stored version once it has been saved.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/OFFIS-RIT/caseboard/backend/internal/util"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/agent"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/common"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/graph"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/logger"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/research"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/store"
)

var (
	ErrNotFound = store.ErrNotFound
	// ErrInvalidInput marks requests that can never succeed as sent.
	ErrInvalidInput = errors.New("invalid input")
)

// errUnchanged ends a mutation without saving.
var errUnchanged = errors.New("unchanged")

// Workspace owns the investigations of one deployment and serialises every
// change to an investigation.
type Workspace struct {
	store  store.Storage
	locker Locker
	graph  *graph.GraphClient
	agent  *agent.Agent

	layout   graph.LayoutOptions
	provider string
	creds    research.Credentials
	now      func() time.Time
}

// NewWorkspaceParams configures NewWorkspace. Locker defaults to an
// in-process lock and Agent to one built on Graph.
type NewWorkspaceParams struct {
	Store  store.Storage
	Locker Locker
	Graph  *graph.GraphClient
	Agent  *agent.Agent
	Layout graph.LayoutOptions
	// Provider names the configured LLM adapter. The model stored in the
	// settings is only used when the settings name the same provider.
	Provider string
	// Credentials are used for every research credential the settings
	// leave empty.
	Credentials research.Credentials
}

// NewWorkspace creates a workspace over params.Store.
func NewWorkspace(params NewWorkspaceParams) *Workspace {
	locker := params.Locker
	if locker == nil {
		locker = NewKeyedLocker()
	}
	g := params.Graph
	if g == nil {
		g = graph.NewGraphClient(graph.NewGraphClientParams{})
	}
	a := params.Agent
	if a == nil {
		a = agent.NewAgent(agent.NewAgentParams{Graph: g})
	}
	layout := params.Layout
	if layout == (graph.LayoutOptions{}) {
		layout = graph.DefaultLayoutOptions()
	}
	return &Workspace{
		store:    params.Store,
		locker:   locker,
		graph:    g,
		agent:    a,
		layout:   layout,
		provider: params.Provider,
		creds:    params.Credentials,
		now:      time.Now,
	}
}

func (w *Workspace) Graph() *graph.GraphClient {
	return w.graph
}

// Mutate runs fn against a clone of the investigation while holding its
// lock and saves the clone when fn succeeds. If fn or the save fails nothing
// is published and the stored investigation is unchanged.
func (w *Workspace) Mutate(
	ctx context.Context,
	id string,
	fn func(ctx context.Context, inv *common.Investigation) error,
) (*common.Investigation, error) {
	lockCtx, unlock, err := w.locker.Lock(ctx, lockKey(id))
	if err != nil {
		return nil, fmt.Errorf("lock investigation %s: %w", id, err)
	}
	defer unlock()

	current, err := w.store.GetInvestigation(lockCtx, id)
	if err != nil {
		return nil, err
	}
	staged := current.Clone()
	if err := fn(lockCtx, staged); err != nil {
		if errors.Is(err, errUnchanged) {
			return current, nil
		}
		return nil, err
	}
	if err := lockCtx.Err(); err != nil {
		return nil, fmt.Errorf("investigation %s lock lost before save: %w", id, context.Cause(lockCtx))
	}
	if err := w.store.SaveInvestigation(lockCtx, staged); err != nil {
		return nil, err
	}
	return staged, nil
}

func lockKey(investigationID string) string {
	return "investigation:" + investigationID
}

type NewInvestigation struct {
	Title      string   `json:"title"`
	Objective  string   `json:"objective"`
	Hypotheses []string `json:"hypotheses"`
	Signals    []string `json:"signals"`
}

// CreateInvestigation stores a new investigation and makes it the active
// one.
func (w *Workspace) CreateInvestigation(ctx context.Context, in NewInvestigation) (*common.Investigation, error) {
	inv := &common.Investigation{
		ID:         util.NewID(util.PrefixInvestigation),
		Title:      strings.TrimSpace(in.Title),
		Objective:  strings.TrimSpace(in.Objective),
		Hypotheses: in.Hypotheses,
		Signals:    in.Signals,
		CreatedAt:  w.now().UTC(),
	}
	inv.Normalize()
	if err := w.store.SaveInvestigation(ctx, inv); err != nil {
		return nil, err
	}
	if err := w.store.SetActiveInvestigationID(ctx, inv.ID); err != nil {
		return nil, err
	}
	logger.Info("[Workspace] Investigation created", "investigation", inv.ID, "title", inv.Title)
	return inv, nil
}

// GetInvestigation loads one investigation or returns store.ErrNotFound.
func (w *Workspace) GetInvestigation(ctx context.Context, id string) (*common.Investigation, error) {
	return w.store.GetInvestigation(ctx, id)
}

func (w *Workspace) ListInvestigations(ctx context.Context) ([]common.InvestigationSummary, error) {
	return w.store.ListInvestigations(ctx)
}

type InvestigationUpdate struct {
	Title      *string  `json:"title"`
	Objective  *string  `json:"objective"`
	Hypotheses []string `json:"hypotheses"`
	Signals    []string `json:"signals"`
}

// UpdateInvestigation edits the descriptive fields. Nil fields are kept.
func (w *Workspace) UpdateInvestigation(ctx context.Context, id string, in InvestigationUpdate) (*common.Investigation, error) {
	return w.Mutate(ctx, id, func(_ context.Context, inv *common.Investigation) error {
		if in.Title != nil {
			inv.Title = strings.TrimSpace(*in.Title)
		}
		if in.Objective != nil {
			inv.Objective = strings.TrimSpace(*in.Objective)
		}
		if in.Hypotheses != nil {
			inv.Hypotheses = in.Hypotheses
		}
		if in.Signals != nil {
			inv.Signals = in.Signals
		}
		return nil
	})
}

func (w *Workspace) DeleteInvestigation(ctx context.Context, id string) error {
	_, unlock, err := w.locker.Lock(ctx, lockKey(id))
	if err != nil {
		return fmt.Errorf("lock investigation %s: %w", id, err)
	}
	defer unlock()

	if err := w.store.DeleteInvestigation(ctx, id); err != nil {
		return err
	}
	logger.Info("[Workspace] Investigation deleted", "investigation", id)
	return nil
}

func (w *Workspace) ActiveInvestigationID(ctx context.Context) (string, error) {
	return w.store.GetActiveInvestigationID(ctx)
}

// SetActiveInvestigation marks id as active. An empty id clears the marker.
func (w *Workspace) SetActiveInvestigation(ctx context.Context, id string) error {
	if id != "" {
		if _, err := w.store.GetInvestigation(ctx, id); err != nil {
			return err
		}
	}
	return w.store.SetActiveInvestigationID(ctx, id)
}

func (w *Workspace) Settings(ctx context.Context) (common.Settings, error) {
	return w.store.GetSettings(ctx)
}

func (w *Workspace) SaveSettings(ctx context.Context, settings common.Settings) (common.Settings, error) {
	settings = settings.WithDefaults()
	if err := w.store.SaveSettings(ctx, settings); err != nil {
		return common.Settings{}, err
	}
	return settings, nil
}
