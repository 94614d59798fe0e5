package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/caseboard/backend/internal/util"
	"github.com/OFFIS-RIT/caseboard/backend/internal/workspace"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/common"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/logger"
)

// ErrPermanent marks messages that will fail on every delivery.
var ErrPermanent = errors.New("permanent failure")

// CaptureMsg asks the worker to extract a capture and commit it. The
// screenshot travels either inline in Capture.ImageData or as an object key.
type CaptureMsg struct {
	InvestigationID string          `json:"investigationId"`
	CaptureID       string          `json:"captureId"`
	Capture         *common.Capture `json:"capture"`
	ImageKey        string          `json:"imageKey,omitempty"`
}

// CaptureEvent is published on EventsExchange after a capture was processed.
type CaptureEvent struct {
	InvestigationID string `json:"investigationId"`
	CaptureID       string `json:"captureId"`
	Summary         string `json:"summary"`
	Duplicate       bool   `json:"duplicate"`
}

func CaptureTopic(investigationID string) string {
	return "investigation." + investigationID + ".capture"
}

// EnqueueCapture assigns the capture id when missing and publishes msg to
// CaptureQueue. The returned id is what the capture will be stored under.
func EnqueueCapture(ch Publisher, msg CaptureMsg) (string, error) {
	if msg.Capture == nil {
		return "", fmt.Errorf("%w: capture is required", workspace.ErrInvalidInput)
	}
	if msg.CaptureID == "" {
		msg.CaptureID = msg.Capture.ID
	}
	if msg.CaptureID == "" {
		msg.CaptureID = util.NewID(util.PrefixCapture)
	}
	msg.Capture.ID = msg.CaptureID

	body, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	if err := PublishFIFO(ch, CaptureQueue, body); err != nil {
		return "", fmt.Errorf("failed to publish capture: %w", err)
	}
	logger.Info("[Queue] Capture enqueued", "investigation", msg.InvestigationID, "capture", msg.CaptureID)
	return msg.CaptureID, nil
}

// ImageLoader resolves an object key to an image data URL.
type ImageLoader interface {
	ImageDataURL(ctx context.Context, key string) (string, error)
}

type CaptureProcessor struct {
	workspace *workspace.Workspace
	images    ImageLoader
	events    Publisher
}

type NewCaptureProcessorParams struct {
	Workspace *workspace.Workspace
	// Images may be nil when captures never reference stored screenshots.
	Images ImageLoader
	// Events may be nil to skip change notifications.
	Events Publisher
}

func NewCaptureProcessor(params NewCaptureProcessorParams) *CaptureProcessor {
	return &CaptureProcessor{
		workspace: params.Workspace,
		images:    params.Images,
		events:    params.Events,
	}
}

// ProcessCaptureMessage extracts and commits one capture. Redelivered
// messages for a capture that was already committed are acknowledged
// without calling the extraction provider again.
func (p *CaptureProcessor) ProcessCaptureMessage(ctx context.Context, body []byte) error {
	var msg CaptureMsg
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%w: invalid capture message: %v", ErrPermanent, err)
	}
	if msg.InvestigationID == "" || msg.Capture == nil {
		return fmt.Errorf("%w: capture message without investigation or capture", ErrPermanent)
	}
	capture := msg.Capture
	if msg.CaptureID != "" {
		capture.ID = msg.CaptureID
	}
	if capture.ID == "" {
		return fmt.Errorf("%w: capture message without capture id", ErrPermanent)
	}
	if msg.ImageKey != "" {
		capture.ImageKey = msg.ImageKey
	}

	inv, err := p.workspace.GetInvestigation(ctx, msg.InvestigationID)
	if err != nil {
		return classify(err)
	}
	if inv.HasCapture(capture.ID) {
		logger.Info("[Queue] Capture already committed, skipping", "investigation", inv.ID, "capture", capture.ID)
		p.publish(CaptureEvent{InvestigationID: inv.ID, CaptureID: capture.ID, Duplicate: true})
		return nil
	}

	input := *capture
	if input.ImageData == "" && input.ImageKey != "" {
		if p.images == nil {
			return fmt.Errorf("%w: capture %s references an image but no object storage is configured", ErrPermanent, capture.ID)
		}
		dataURL, err := p.images.ImageDataURL(ctx, input.ImageKey)
		if err != nil {
			return fmt.Errorf("failed to load capture image: %w", err)
		}
		input.ImageData = dataURL
	}

	ext, err := p.workspace.ExtractPreview(ctx, msg.InvestigationID, &input)
	if err != nil {
		return classify(err)
	}

	// Stored screenshots are referenced by key; only inline ones are kept.
	if capture.ImageKey != "" {
		capture.ImageData = ""
	}
	res, err := p.workspace.Ingest(ctx, msg.InvestigationID, capture, ext)
	if err != nil {
		return classify(err)
	}

	event := CaptureEvent{InvestigationID: msg.InvestigationID, CaptureID: capture.ID, Duplicate: res.Duplicate}
	if res.Report != nil && !res.Duplicate {
		event.Summary = res.Report.Summary()
	}
	p.publish(event)
	return nil
}

func (p *CaptureProcessor) publish(event CaptureEvent) {
	if p.events == nil {
		return
	}
	body, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := PublishTopic(p.events, CaptureTopic(event.InvestigationID), body); err != nil {
		logger.Warn("[Queue] Failed to publish capture event", "investigation", event.InvestigationID, "err", err)
	}
}

func classify(err error) error {
	if errors.Is(err, workspace.ErrNotFound) || workspace.IsInvalidInput(err) {
		return fmt.Errorf("%w: %w", ErrPermanent, err)
	}
	return err
}
