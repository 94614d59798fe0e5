package workspace

import (
	"context"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/caseboard/backend/internal/util"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/common"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/graph"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/logger"
)

type IngestResult struct {
	Investigation *common.Investigation `json:"investigation"`
	Report        *graph.MergeReport    `json:"report"`
	// Duplicate is set when the capture had already been committed and
	// nothing was merged.
	Duplicate bool `json:"duplicate,omitempty"`
}

// Ingest merges an extraction for capture into the investigation. A capture
// that was already committed is not merged twice.
func (w *Workspace) Ingest(
	ctx context.Context,
	id string,
	capture *common.Capture,
	extraction *common.Extraction,
) (*IngestResult, error) {
	if capture == nil {
		return nil, fmt.Errorf("%w: capture is required", ErrInvalidInput)
	}
	if capture.ID == "" {
		capture.ID = util.NewID(util.PrefixCapture)
	}
	if capture.CaptureType == "" {
		capture.CaptureType = common.DefaultCaptureType
	}
	if capture.Timestamp.IsZero() {
		capture.Timestamp = w.now().UTC()
	}

	res := &IngestResult{}
	inv, err := w.Mutate(ctx, id, func(_ context.Context, inv *common.Investigation) error {
		if inv.HasCapture(capture.ID) {
			res.Duplicate = true
			res.Report = &graph.MergeReport{Records: []graph.MergeRecord{}}
			return errUnchanged
		}
		report, err := w.graph.Merge(inv, graph.MergeBatch{Extraction: extraction, Capture: capture})
		if err != nil {
			return err
		}
		res.Report = report
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.Investigation = inv

	if res.Duplicate {
		logger.Info("[Workspace] Capture already committed", "investigation", id, "capture", capture.ID)
	} else {
		logger.Info("[Workspace] Capture committed",
			"investigation", id,
			"capture", capture.ID,
			"summary", res.Report.Summary(),
		)
	}
	return res, nil
}

// ExtractPreview runs the extraction provider on capture against the
// current investigation without committing anything.
func (w *Workspace) ExtractPreview(ctx context.Context, id string, capture *common.Capture) (*common.Extraction, error) {
	if capture == nil {
		return nil, fmt.Errorf("%w: capture is required", ErrInvalidInput)
	}
	inv, err := w.store.GetInvestigation(ctx, id)
	if err != nil {
		return nil, err
	}
	return w.graph.ExtractCapture(ctx, inv, capture)
}

// Capture extracts capture and commits the result.
func (w *Workspace) Capture(ctx context.Context, id string, capture *common.Capture) (*IngestResult, error) {
	ext, err := w.ExtractPreview(ctx, id, capture)
	if err != nil {
		return nil, err
	}
	return w.Ingest(ctx, id, capture, ext)
}

type ActionsResult struct {
	Investigation *common.Investigation `json:"-"`
	Report        *graph.ActionReport   `json:"report"`
	// Layout is recomputed when at least one action was applied.
	Layout *graph.LayoutResult `json:"layout,omitempty"`
}

// ApplyActions executes actions and saves the investigation when any of them
// changed it.
func (w *Workspace) ApplyActions(ctx context.Context, id string, actions []common.Action) (*ActionsResult, error) {
	res := &ActionsResult{}
	inv, err := w.Mutate(ctx, id, func(_ context.Context, inv *common.Investigation) error {
		res.Report = w.graph.ApplyActions(inv, actions)
		if !res.Report.Changed {
			return errUnchanged
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.Investigation = inv
	if res.Report.Changed {
		layout := graph.Layout(inv.Entities, inv.Relationships, w.layout)
		res.Layout = &layout
	}
	return res, nil
}

func (w *Workspace) AddEntity(ctx context.Context, id string, in graph.ManualEntity) (*common.Entity, error) {
	var created *common.Entity
	_, err := w.Mutate(ctx, id, func(_ context.Context, inv *common.Investigation) error {
		e, err := w.graph.AddManualEntity(inv, in)
		if err != nil {
			return err
		}
		created = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (w *Workspace) AddRelationship(ctx context.Context, id string, in graph.ManualRelationship) (*common.Relationship, error) {
	var created *common.Relationship
	_, err := w.Mutate(ctx, id, func(_ context.Context, inv *common.Investigation) error {
		r, err := w.graph.AddManualRelationship(inv, in)
		if err != nil {
			return err
		}
		created = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// DeleteEntity removes an entity by id together with its relationships.
func (w *Workspace) DeleteEntity(ctx context.Context, id, entityID string) error {
	_, err := w.Mutate(ctx, id, func(_ context.Context, inv *common.Investigation) error {
		if _, ok := inv.RemoveEntity(entityID); !ok {
			return fmt.Errorf("entity %s: %w", entityID, ErrNotFound)
		}
		return nil
	})
	return err
}

func (w *Workspace) DeleteRelationship(ctx context.Context, id, relationshipID string) error {
	_, err := w.Mutate(ctx, id, func(_ context.Context, inv *common.Investigation) error {
		if !inv.RemoveRelationship(relationshipID) {
			return fmt.Errorf("relationship %s: %w", relationshipID, ErrNotFound)
		}
		return nil
	})
	return err
}

func (w *Workspace) Layout(ctx context.Context, id string, opts *graph.LayoutOptions) (*graph.LayoutResult, error) {
	inv, err := w.store.GetInvestigation(ctx, id)
	if err != nil {
		return nil, err
	}
	o := w.layout
	if opts != nil {
		o = *opts
	}
	res := graph.Layout(inv.Entities, inv.Relationships, o)
	return &res, nil
}

func (w *Workspace) index(ctx context.Context, id string) (*graph.Index, error) {
	inv, err := w.store.GetInvestigation(ctx, id)
	if err != nil {
		return nil, err
	}
	return w.graph.NewIndex(inv), nil
}

func (w *Workspace) Path(ctx context.Context, id, source, target string) (*graph.PathResult, error) {
	idx, err := w.index(ctx, id)
	if err != nil {
		return nil, err
	}
	res := idx.ShortestPath(source, target)
	return &res, nil
}

func (w *Workspace) Neighborhood(ctx context.Context, id, query string, maxDepth int) (*graph.NeighborhoodResult, error) {
	idx, err := w.index(ctx, id)
	if err != nil {
		return nil, err
	}
	res := idx.Neighborhood(query, maxDepth)
	return &res, nil
}

func (w *Workspace) EntityDetails(ctx context.Context, id, query string) (*graph.DetailsResult, error) {
	idx, err := w.index(ctx, id)
	if err != nil {
		return nil, err
	}
	res := idx.EntityDetails(query)
	return &res, nil
}

// IsInvalidInput reports whether err was caused by a request that can never
// succeed as sent.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, graph.ErrInvalidInput) ||
		errors.Is(err, graph.ErrEntityNotFound) ||
		errors.Is(err, graph.ErrDuplicateRelationship)
}
