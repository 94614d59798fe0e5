package workspace

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/caseboard/backend/internal/util"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/agent"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/common"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/graph"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/logger"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/research"
)

const conversationTitleLength = 50

type AskRequest struct {
	InvestigationID string `json:"-"`
	// ConversationID continues an existing conversation. Empty starts a new
	// one.
	ConversationID string `json:"conversationId"`
	Question       string `json:"question"`
}

type AskResult struct {
	ConversationID string          `json:"conversationId"`
	Message        *common.Message `json:"message"`
	// Result is nil when the agent failed; the failure is then recorded in
	// Message.
	Result  *agent.Result       `json:"result,omitempty"`
	Actions *graph.ActionReport `json:"actions,omitempty"`
	Layout  *graph.LayoutResult `json:"layout,omitempty"`
}

// Ask runs the agent on a question and records both turns in the
// conversation. Agent failures are stored as an error message and do not
// fail the call. The investigation is not locked while the agent runs;
// add_to_graph commits and the answer's actions each go through Mutate.
func (w *Workspace) Ask(ctx context.Context, req AskRequest) (*AskResult, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, fmt.Errorf("%w: question must not be empty", ErrInvalidInput)
	}
	inv, err := w.store.GetInvestigation(ctx, req.InvestigationID)
	if err != nil {
		return nil, err
	}

	userMsg := &common.Message{
		ID:        util.NewID(util.PrefixMessage),
		Type:      common.MessageUser,
		Content:   question,
		Timestamp: w.now().UTC(),
	}
	conv, err := w.appendMessages(ctx, req.InvestigationID, req.ConversationID, userMsg)
	if err != nil {
		return nil, err
	}
	history := conv.Messages[:len(conv.Messages)-1]

	settings, err := w.store.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	model := ""
	if w.provider != "" && strings.EqualFold(settings.LLMProvider, w.provider) {
		model = settings.Model
	}

	res := &AskResult{ConversationID: conv.ID}
	result, err := w.agent.Ask(ctx, agent.Request{
		Investigation: inv,
		Question:      question,
		History:       history,
		Credentials:   w.credentials(settings),
		Model:         model,
		Commit:        w.commitFunc(req.InvestigationID),
	})
	if err != nil {
		return w.recordFailure(ctx, res, conv.ID, req.InvestigationID, err)
	}
	res.Result = result

	var actionResults []common.ActionResult
	if len(result.Actions) > 0 {
		applied, err := w.ApplyActions(ctx, req.InvestigationID, result.Actions)
		if err != nil {
			return w.recordFailure(ctx, res, conv.ID, req.InvestigationID, fmt.Errorf("apply actions: %w", err))
		}
		res.Actions = applied.Report
		res.Layout = applied.Layout
		actionResults = applied.Report.Results
	}

	res.Message = &common.Message{
		ID:        util.NewID(util.PrefixMessage),
		Type:      common.MessageAssistant,
		Content:   result.Answer.Answer,
		Reasoning: result.Reasoning,
		Actions:   actionResults,
		Timestamp: w.now().UTC(),
	}
	if _, err := w.appendMessages(ctx, req.InvestigationID, conv.ID, res.Message); err != nil {
		return nil, err
	}
	return res, nil
}

func (w *Workspace) recordFailure(
	ctx context.Context,
	res *AskResult,
	conversationID, investigationID string,
	cause error,
) (*AskResult, error) {
	if ctx.Err() != nil {
		return nil, cause
	}
	res.Message = &common.Message{
		ID:        util.NewID(util.PrefixMessage),
		Type:      common.MessageError,
		Content:   "Error: " + cause.Error(),
		Timestamp: w.now().UTC(),
	}
	logger.Warn("[Workspace] Question failed", "investigation", investigationID, "conversation", conversationID, "err", cause)
	if _, err := w.appendMessages(ctx, investigationID, conversationID, res.Message); err != nil {
		return nil, errors.Join(cause, err)
	}
	return res, nil
}

// commitFunc persists the agent's web research batches one at a time.
func (w *Workspace) commitFunc(investigationID string) agent.CommitFunc {
	return func(ctx context.Context, batch graph.MergeBatch) (*common.Investigation, *graph.MergeReport, error) {
		var report *graph.MergeReport
		inv, err := w.Mutate(ctx, investigationID, func(_ context.Context, inv *common.Investigation) error {
			r, err := w.graph.Merge(inv, batch)
			if err != nil {
				return err
			}
			report = r
			return nil
		})
		if err != nil {
			return nil, nil, err
		}
		return inv, report, nil
	}
}

// credentials prefers the keys saved in the settings and falls back to the
// process configuration per key.
func (w *Workspace) credentials(settings common.Settings) research.Credentials {
	return research.Credentials{
		GoogleAPIKey:    firstNonEmpty(settings.GoogleAPIKey, w.creds.GoogleAPIKey),
		GoogleCX:        firstNonEmpty(settings.GoogleCX, w.creds.GoogleCX),
		FirecrawlAPIKey: firstNonEmpty(settings.FirecrawlAPIKey, w.creds.FirecrawlAPIKey),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// appendMessages adds msgs to a conversation under its lock, creating the
// conversation when conversationID is empty.
func (w *Workspace) appendMessages(
	ctx context.Context,
	investigationID, conversationID string,
	msgs ...*common.Message,
) (*common.Conversation, error) {
	var conv *common.Conversation
	if conversationID == "" {
		conv = &common.Conversation{
			ID:              util.NewID(util.PrefixConversation),
			InvestigationID: investigationID,
			Title:           common.DefaultConversationTitle,
			CreatedAt:       w.now().UTC(),
		}
		conversationID = conv.ID
	}

	_, unlock, err := w.locker.Lock(ctx, "conversation:"+conversationID)
	if err != nil {
		return nil, fmt.Errorf("lock conversation %s: %w", conversationID, err)
	}
	defer unlock()

	if conv == nil {
		conv, err = w.store.GetConversation(ctx, conversationID)
		if err != nil {
			return nil, err
		}
		if conv.InvestigationID != investigationID {
			return nil, fmt.Errorf("%w: conversation %s belongs to another investigation", ErrInvalidInput, conversationID)
		}
	}

	for _, m := range msgs {
		conv.Messages = append(conv.Messages, m)
		if m.Type == common.MessageUser && conv.Title == common.DefaultConversationTitle {
			conv.Title = ConversationTitle(m.Content)
		}
	}
	if err := w.store.SaveConversation(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// ConversationTitle derives a title from the first question.
func ConversationTitle(question string) string {
	title := util.Truncate(question, conversationTitleLength)
	if title != question {
		title += "..."
	}
	return title
}

func (w *Workspace) Conversations(ctx context.Context, investigationID string) ([]common.ConversationSummary, error) {
	if _, err := w.store.GetInvestigation(ctx, investigationID); err != nil {
		return nil, err
	}
	return w.store.ListConversations(ctx, investigationID)
}

func (w *Workspace) Conversation(ctx context.Context, investigationID, id string) (*common.Conversation, error) {
	conv, err := w.store.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv.InvestigationID != investigationID {
		return nil, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	return conv, nil
}

func (w *Workspace) DeleteConversation(ctx context.Context, investigationID, id string) error {
	if _, err := w.Conversation(ctx, investigationID, id); err != nil {
		return err
	}
	return w.store.DeleteConversation(ctx, id)
}
