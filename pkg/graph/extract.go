package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/caseboard/backend/internal/util"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/ai"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/common"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/logger"
)

// ErrNoAIClient is returned by the extraction entry points when the client
// was built without a reasoning service.
var ErrNoAIClient = errors.New("no AI client configured")

const noneYet = "None yet"
const noneSpecified = "None specified"

// BuildCapturePrompt assembles the extraction prompt for one capture from
// the investigation context, the current network and the page content.
func BuildCapturePrompt(inv *common.Investigation, capture *common.Capture) string {
	entities := noneYet
	if len(inv.Entities) > 0 {
		lines := make([]string, len(inv.Entities))
		for i, e := range inv.Entities {
			lines[i] = fmt.Sprintf("- %s (%s)", e.Name, e.Type)
		}
		entities = strings.Join(lines, "\n")
	}

	relationships := noneYet
	if len(inv.Relationships) > 0 {
		lines := make([]string, 0, len(inv.Relationships))
		for _, r := range inv.Relationships {
			from, to := inv.EntityByID(r.SourceID), inv.EntityByID(r.TargetID)
			if from == nil || to == nil {
				continue
			}
			lines = append(lines, fmt.Sprintf("- %s → %s → %s", from.Name, r.Type, to.Name))
		}
		if len(lines) > 0 {
			relationships = strings.Join(lines, "\n")
		}
	}

	return fmt.Sprintf(ai.CaptureExtractionPrompt,
		inv.Objective,
		joinOr(inv.Hypotheses, noneSpecified),
		joinOr(inv.Signals, noneSpecified),
		entities,
		relationships,
		pageSection(capture),
	)
}

func pageSection(capture *common.Capture) string {
	if capture == nil || (capture.PageText == "" && capture.Metadata == nil) {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n\nPAGE CONTENT:\n")
	if md := capture.Metadata; md != nil {
		fmt.Fprintf(&b, "URL: %s\n", md.URL)
		fmt.Fprintf(&b, "Title: %s\n", md.Title)
		if md.Description != "" {
			fmt.Fprintf(&b, "Description: %s\n", md.Description)
		}
		if md.Author != "" {
			fmt.Fprintf(&b, "Author: %s\n", md.Author)
		}
		if md.PublishedDate != "" {
			fmt.Fprintf(&b, "Published: %s\n", md.PublishedDate)
		}
		if len(md.Headings) > 0 {
			b.WriteString("\nKey Headings:\n")
			for i, h := range md.Headings {
				if i > 0 {
					b.WriteString("\n")
				}
				fmt.Fprintf(&b, "%s: %s", h.Level, h.Text)
			}
			b.WriteString("\n")
		}
	}
	if capture.PageText != "" {
		fmt.Fprintf(&b, "\nFull Page Text:\n%s\n",
			TruncateText(capture.PageText, ai.CaptureTextLimit, ai.CaptureTextTruncated))
	}
	return b.String()
}

// BuildTextPrompt assembles the extraction prompt for scraped page text.
func BuildTextPrompt(text, sourceURL string) string {
	return fmt.Sprintf(ai.TextExtractionPrompt,
		TruncateText(text, ai.ScrapeTextLimit, ai.ScrapeTextTruncated),
		sourceURL,
	)
}

// TruncateText clips text to limit characters and appends marker when it
// had to cut.
func TruncateText(text string, limit int, marker string) string {
	r := []rune(text)
	if len(r) <= limit {
		return text
	}
	return string(r[:limit]) + marker
}

func joinOr(values []string, fallback string) string {
	if len(values) == 0 {
		return fallback
	}
	return strings.Join(values, "; ")
}

// ExtractCapture asks the reasoning service for the structured content of
// a capture. The screenshot is sent when the capture carries one, otherwise
// the request is text only. Malformed replies are recovered through
// ai.ParseJSON and retried up to the client's retry budget.
func (g *GraphClient) ExtractCapture(
	ctx context.Context,
	inv *common.Investigation,
	capture *common.Capture,
) (*common.Extraction, error) {
	if g.aiClient == nil {
		return nil, ErrNoAIClient
	}
	prompt := BuildCapturePrompt(inv, capture)

	var image *ai.Image
	if capture.ImageData != "" {
		img, err := ai.ParseDataURL(capture.ImageData)
		if err != nil {
			return nil, err
		}
		image = &img
	}

	return util.RetryWithContext(ctx, g.maxRetries, g.retryDelay, func(ctx context.Context) (*common.Extraction, error) {
		var (
			content string
			err     error
		)
		if image != nil {
			content, err = g.aiClient.GenerateVisionCompletion(ctx, prompt, *image,
				ai.WithJSONMode(), ai.WithTemperature(0.1), ai.WithMaxTokens(4096))
		} else {
			content, err = g.aiClient.GenerateCompletion(ctx, prompt,
				ai.WithJSONMode(), ai.WithTemperature(0.1))
		}
		if err != nil {
			return nil, fmt.Errorf("extraction request failed: %w", err)
		}
		return parseExtraction(content)
	})
}

// ExtractText extracts entities and relationships from scraped page text.
// The result carries no source; provenance is added when it is merged.
func (g *GraphClient) ExtractText(ctx context.Context, text, sourceURL string) (*common.Extraction, error) {
	if g.aiClient == nil {
		return nil, ErrNoAIClient
	}
	prompt := BuildTextPrompt(text, sourceURL)

	return util.RetryWithContext(ctx, g.maxRetries, g.retryDelay, func(ctx context.Context) (*common.Extraction, error) {
		content, err := g.aiClient.GenerateCompletion(ctx, prompt, ai.WithJSONMode(), ai.WithTemperature(0.2))
		if err != nil {
			return nil, fmt.Errorf("extraction request failed: %w", err)
		}
		ext, err := parseExtraction(content)
		if err != nil {
			return nil, err
		}
		ext.Source = nil
		return ext, nil
	})
}

func parseExtraction(content string) (*common.Extraction, error) {
	var ext common.Extraction
	if err := ai.ParseJSON(content, &ext); err != nil {
		logger.Warn("[Extract] Unparseable extraction", "preview", ai.Preview(content, 200))
		return nil, fmt.Errorf("failed to parse extraction response: %w", err)
	}
	if ext.Entities == nil {
		ext.Entities = []common.ExtractedEntity{}
	}
	if ext.Relationships == nil {
		ext.Relationships = []common.ExtractedRelationship{}
	}
	return &ext, nil
}
