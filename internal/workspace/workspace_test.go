package workspace

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/OFFIS-RIT/caseboard/backend/pkg/agent"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/ai"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/ai/aitest"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/common"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/graph"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/store"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/store/badger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *badger.Store {
	t.Helper()
	s, err := badger.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestWorkspace(t *testing.T, s store.Storage, fake *aitest.Client, provider string) *Workspace {
	t.Helper()
	g := graph.NewGraphClient(graph.NewGraphClientParams{AIClient: fake})
	return NewWorkspace(NewWorkspaceParams{
		Store:    s,
		Graph:    g,
		Agent:    agent.NewAgent(agent.NewAgentParams{AIClient: fake, Graph: g}),
		Provider: provider,
	})
}

// seed creates an investigation holding Jane Doe and Acme Corp.
func seed(t *testing.T, w *Workspace) *common.Investigation {
	t.Helper()
	ctx := context.Background()
	inv, err := w.CreateInvestigation(ctx, NewInvestigation{Title: " Acme ", Objective: "Who controls Acme Corp?"})
	require.NoError(t, err)
	_, err = w.AddEntity(ctx, inv.ID, graph.ManualEntity{Name: "Jane Doe", Type: "person"})
	require.NoError(t, err)
	_, err = w.AddEntity(ctx, inv.ID, graph.ManualEntity{Name: "Acme Corp", Type: "organization"})
	require.NoError(t, err)
	inv, err = w.GetInvestigation(ctx, inv.ID)
	require.NoError(t, err)
	return inv
}

// failingStore fails every investigation save after the first n.
type failingStore struct {
	store.Storage
	mu    sync.Mutex
	saves int
	n     int
}

var errDiskFull = errors.New("disk full")

func (f *failingStore) SaveInvestigation(ctx context.Context, inv *common.Investigation) error {
	f.mu.Lock()
	f.saves++
	fail := f.saves > f.n
	f.mu.Unlock()
	if fail {
		return errDiskFull
	}
	return f.Storage.SaveInvestigation(ctx, inv)
}

func TestKeyedLocker(t *testing.T) {
	l := NewKeyedLocker()
	ctx := context.Background()

	_, unlockA, err := l.Lock(ctx, "a")
	require.NoError(t, err)

	_, unlockB, err := l.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, _, err = l.Lock(waitCtx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	acquired := make(chan struct{})
	go func() {
		_, unlock, err := l.Lock(ctx, "a")
		if err == nil {
			unlock()
			close(acquired)
		}
	}()
	unlockA()
	unlockA()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock not handed over after unlock")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Empty(t, l.locks)
}

func TestCreateInvestigation(t *testing.T) {
	w := newTestWorkspace(t, openStore(t), &aitest.Client{}, "")
	ctx := context.Background()

	inv, err := w.CreateInvestigation(ctx, NewInvestigation{Title: "  Acme  ", Hypotheses: []string{"Shell company"}})
	require.NoError(t, err)
	assert.Equal(t, "Acme", inv.Title)
	assert.False(t, inv.CreatedAt.IsZero())

	active, err := w.ActiveInvestigationID(ctx)
	require.NoError(t, err)
	assert.Equal(t, inv.ID, active)

	list, err := w.ListInvestigations(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, inv.ID, list[0].ID)

	assert.ErrorIs(t, w.SetActiveInvestigation(ctx, "inv_missing"), ErrNotFound)
	require.NoError(t, w.SetActiveInvestigation(ctx, ""))
	active, err = w.ActiveInvestigationID(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestUpdateInvestigation(t *testing.T) {
	w := newTestWorkspace(t, openStore(t), &aitest.Client{}, "")
	ctx := context.Background()
	inv := seed(t, w)

	objective := "Map Acme's owners"
	updated, err := w.UpdateInvestigation(ctx, inv.ID, InvestigationUpdate{Objective: &objective})
	require.NoError(t, err)
	assert.Equal(t, "Acme", updated.Title)
	assert.Equal(t, objective, updated.Objective)
	assert.Len(t, updated.Entities, 2)

	_, err = w.UpdateInvestigation(ctx, "inv_missing", InvestigationUpdate{Objective: &objective})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMutate_FailureLeavesStoredInvestigation(t *testing.T) {
	w := newTestWorkspace(t, openStore(t), &aitest.Client{}, "")
	ctx := context.Background()
	inv := seed(t, w)

	boom := errors.New("boom")
	_, err := w.Mutate(ctx, inv.ID, func(_ context.Context, staged *common.Investigation) error {
		staged.Entities = nil
		staged.Title = "changed"
		return boom
	})
	assert.ErrorIs(t, err, boom)

	stored, err := w.GetInvestigation(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", stored.Title)
	assert.Len(t, stored.Entities, 2)
}

func TestMutate_SaveFailure(t *testing.T) {
	s := &failingStore{Storage: openStore(t), n: 3}
	w := newTestWorkspace(t, s, &aitest.Client{}, "")
	ctx := context.Background()
	inv := seed(t, w)

	_, err := w.AddEntity(ctx, inv.ID, graph.ManualEntity{Name: "Globex", Type: "organization"})
	assert.ErrorIs(t, err, errDiskFull)

	stored, err := w.GetInvestigation(ctx, inv.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.EntityByName("Globex"))
}

func TestMutate_Serialized(t *testing.T) {
	w := newTestWorkspace(t, openStore(t), &aitest.Client{}, "")
	ctx := context.Background()
	inv := seed(t, w)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := w.AddEntity(ctx, inv.ID, graph.ManualEntity{Name: "Shell " + string(rune('A'+i)), Type: "organization"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := w.GetInvestigation(ctx, inv.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Entities, 10)
}

func TestIngest_SkipsCommittedCapture(t *testing.T) {
	w := newTestWorkspace(t, openStore(t), &aitest.Client{}, "")
	ctx := context.Background()
	inv := seed(t, w)

	capture := &common.Capture{ID: "cap_1", SourceURL: "https://registry.example/acme", PageTitle: "Acme filing"}
	ext := &common.Extraction{
		Source:   &common.ExtractedSource{Name: "Acme filing"},
		Entities: []common.ExtractedEntity{{Name: "Globex", Type: "organization", SourceDescription: "Shareholder"}},
		Relationships: []common.ExtractedRelationship{
			{Source: "Globex", Target: "Acme Corp", Type: "shareholder_of", Confidence: 0.8, SourceExplanation: "Share register"},
		},
	}

	res, err := w.Ingest(ctx, inv.ID, capture, ext)
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Equal(t, "Added 1 new entities, updated 0 existing entities, and created 1 new relationships.", res.Report.Summary())
	assert.Equal(t, common.DefaultCaptureType, capture.CaptureType)
	require.Len(t, res.Investigation.Captures, 1)

	again, err := w.Ingest(ctx, inv.ID, capture, ext)
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Empty(t, again.Report.Records)

	stored, err := w.GetInvestigation(ctx, inv.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Captures, 1)
	assert.Len(t, stored.Relationships, 1)
	assert.Len(t, stored.Entities, 4)
}

func TestCapture_ExtractsAndCommits(t *testing.T) {
	fake := &aitest.Client{Completion: aitest.Replies(`{
  "source": {"name": "Registry page"},
  "entities": [{"name": "Globex", "type": "organization", "sourceDescription": "Listed"}],
  "relationships": []
}`)}
	w := newTestWorkspace(t, openStore(t), fake, "")
	ctx := context.Background()
	inv := seed(t, w)

	capture := &common.Capture{SourceURL: "https://registry.example", PageTitle: "Registry", PageText: "Globex GmbH"}
	preview, err := w.ExtractPreview(ctx, inv.ID, capture)
	require.NoError(t, err)
	require.Len(t, preview.Entities, 1)

	stored, err := w.GetInvestigation(ctx, inv.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.EntityByName("Globex"))

	res, err := w.Capture(ctx, inv.ID, capture)
	require.NoError(t, err)
	assert.NotEmpty(t, capture.ID)
	assert.NotNil(t, res.Investigation.EntityByName("Globex"))
	assert.True(t, res.Investigation.HasCapture(capture.ID))
	assert.Equal(t, 2, fake.Count("GenerateCompletion"))
}

func TestApplyActions(t *testing.T) {
	w := newTestWorkspace(t, openStore(t), &aitest.Client{}, "")
	ctx := context.Background()
	inv := seed(t, w)

	res, err := w.ApplyActions(ctx, inv.ID, []common.Action{
		{Type: common.ActionAddRelationship, Relationship: &common.ActionRelationship{
			Source: "Jane Doe", Target: "Acme Corp", Type: "director_of", Explanation: "Board list",
		}},
		{Type: common.ActionDeleteEntity, EntityName: "Nobody"},
	})
	require.NoError(t, err)
	require.Len(t, res.Report.Results, 2)
	assert.Equal(t, common.StatusApplied, res.Report.Results[0].Status)
	assert.Equal(t, common.StatusSkipped, res.Report.Results[1].Status)
	require.NotNil(t, res.Layout)
	assert.Len(t, res.Investigation.Relationships, 1)

	unchanged, err := w.ApplyActions(ctx, inv.ID, []common.Action{{Type: common.ActionDeleteEntity, EntityName: "Nobody"}})
	require.NoError(t, err)
	assert.False(t, unchanged.Report.Changed)
	assert.Nil(t, unchanged.Layout)
}

func TestAddRelationship(t *testing.T) {
	w := newTestWorkspace(t, openStore(t), &aitest.Client{}, "")
	ctx := context.Background()
	inv := seed(t, w)
	jane, acme := inv.EntityByName("Jane Doe"), inv.EntityByName("Acme Corp")

	rel, err := w.AddRelationship(ctx, inv.ID, graph.ManualRelationship{SourceID: jane.ID, TargetID: acme.ID, Type: "director_of"})
	require.NoError(t, err)
	assert.Equal(t, "director_of", rel.Label)

	_, err = w.AddRelationship(ctx, inv.ID, graph.ManualRelationship{SourceID: jane.ID, TargetID: acme.ID, Type: "director_of"})
	assert.ErrorIs(t, err, graph.ErrDuplicateRelationship)
	assert.True(t, IsInvalidInput(err))

	_, err = w.AddRelationship(ctx, inv.ID, graph.ManualRelationship{SourceID: jane.ID, TargetID: "ent_missing", Type: "owns"})
	assert.True(t, IsInvalidInput(err))

	path, err := w.Path(ctx, inv.ID, "Acme Corp", "Jane Doe")
	require.NoError(t, err)
	assert.True(t, path.Found)

	require.NoError(t, w.DeleteRelationship(ctx, inv.ID, rel.ID))
	assert.ErrorIs(t, w.DeleteRelationship(ctx, inv.ID, rel.ID), ErrNotFound)
}

func TestDeleteEntity(t *testing.T) {
	w := newTestWorkspace(t, openStore(t), &aitest.Client{}, "")
	ctx := context.Background()
	inv := seed(t, w)
	jane := inv.EntityByName("Jane Doe")

	require.NoError(t, w.DeleteEntity(ctx, inv.ID, jane.ID))
	assert.ErrorIs(t, w.DeleteEntity(ctx, inv.ID, jane.ID), ErrNotFound)

	layout, err := w.Layout(ctx, inv.ID, nil)
	require.NoError(t, err)
	assert.Len(t, layout.Nodes, 1)
}

const askAnswer = `{
  "answer": "Jane Doe runs Acme Corp.",
  "reasoning": "Board list.",
  "actions": [{"type": "add_relationship", "relationship": {"source": "Jane Doe", "target": "Acme Corp", "type": "director_of", "explanation": "Board list"}}]
}`

func TestAsk_RecordsConversationAndAppliesActions(t *testing.T) {
	fake := &aitest.Client{ChatTurn: aitest.Turns(&ai.ChatTurn{Content: askAnswer})}
	w := newTestWorkspace(t, openStore(t), fake, "")
	ctx := context.Background()
	inv := seed(t, w)

	question := "Who is in charge of Acme Corp and since when did they hold the position?"
	res, err := w.Ask(ctx, AskRequest{InvestigationID: inv.ID, Question: question})
	require.NoError(t, err)
	require.NotNil(t, res.Result)
	assert.Equal(t, common.MessageAssistant, res.Message.Type)
	assert.Equal(t, "Jane Doe runs Acme Corp.", res.Message.Content)
	assert.Equal(t, "Board list.", res.Message.Reasoning)
	require.Len(t, res.Message.Actions, 1)
	assert.Equal(t, common.StatusApplied, res.Message.Actions[0].Status)
	assert.NotNil(t, res.Layout)

	conv, err := w.Conversation(ctx, inv.ID, res.ConversationID)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, common.MessageUser, conv.Messages[0].Type)
	assert.Equal(t, question[:50]+"...", conv.Title)

	stored, err := w.GetInvestigation(ctx, inv.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Relationships, 1)

	convs, err := w.Conversations(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, 2, convs[0].MessageCount)
}

func TestAsk_ContinuesConversation(t *testing.T) {
	fake := &aitest.Client{ChatTurn: aitest.Turns(
		&ai.ChatTurn{Content: "Jane Doe."},
		&ai.ChatTurn{Content: "Since 2019."},
	)}
	w := newTestWorkspace(t, openStore(t), fake, "")
	ctx := context.Background()
	inv := seed(t, w)

	first, err := w.Ask(ctx, AskRequest{InvestigationID: inv.ID, Question: "Who runs Acme?"})
	require.NoError(t, err)
	second, err := w.Ask(ctx, AskRequest{InvestigationID: inv.ID, ConversationID: first.ConversationID, Question: "Since when?"})
	require.NoError(t, err)
	assert.Equal(t, first.ConversationID, second.ConversationID)

	calls := fake.Calls()
	require.Len(t, calls, 2)
	msgs := calls[1].Messages
	require.Len(t, msgs, 4)
	assert.Equal(t, ai.ChatMessage{Role: ai.RoleUser, Message: "Who runs Acme?"}, msgs[1])
	assert.Equal(t, ai.ChatMessage{Role: ai.RoleAssistant, Message: "Jane Doe."}, msgs[2])
	assert.Equal(t, ai.ChatMessage{Role: ai.RoleUser, Message: "Since when?"}, msgs[3])

	conv, err := w.Conversation(ctx, inv.ID, first.ConversationID)
	require.NoError(t, err)
	assert.Len(t, conv.Messages, 4)
	assert.Equal(t, "Who runs Acme?", conv.Title)
}

func TestAsk_AgentFailureIsRecorded(t *testing.T) {
	fake := &aitest.Client{ChatTurn: func(int, []ai.ChatMessage, []ai.Tool) (*ai.ChatTurn, error) {
		return nil, errors.New("upstream unavailable")
	}}
	w := newTestWorkspace(t, openStore(t), fake, "")
	ctx := context.Background()
	inv := seed(t, w)

	res, err := w.Ask(ctx, AskRequest{InvestigationID: inv.ID, Question: "Who runs Acme?"})
	require.NoError(t, err)
	assert.Nil(t, res.Result)
	assert.Equal(t, common.MessageError, res.Message.Type)
	assert.True(t, strings.HasPrefix(res.Message.Content, "Error: "))
	assert.Contains(t, res.Message.Content, "upstream unavailable")

	conv, err := w.Conversation(ctx, inv.ID, res.ConversationID)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, common.MessageError, conv.Messages[1].Type)
}

func TestAsk_Validation(t *testing.T) {
	fake := &aitest.Client{ChatTurn: aitest.Turns(&ai.ChatTurn{Content: "Hello."})}
	w := newTestWorkspace(t, openStore(t), fake, "")
	ctx := context.Background()
	inv := seed(t, w)
	other, err := w.CreateInvestigation(ctx, NewInvestigation{Title: "Other"})
	require.NoError(t, err)

	_, err = w.Ask(ctx, AskRequest{InvestigationID: inv.ID, Question: "   "})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = w.Ask(ctx, AskRequest{InvestigationID: "inv_missing", Question: "Hi"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = w.Ask(ctx, AskRequest{InvestigationID: inv.ID, ConversationID: "conv_missing", Question: "Hi"})
	assert.ErrorIs(t, err, ErrNotFound)

	res, err := w.Ask(ctx, AskRequest{InvestigationID: inv.ID, Question: "Hi"})
	require.NoError(t, err)
	_, err = w.Ask(ctx, AskRequest{InvestigationID: other.ID, ConversationID: res.ConversationID, Question: "Hi"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = w.Conversation(ctx, other.ID, res.ConversationID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, fake.Count("GenerateChatTurn"))
}

func TestAsk_ModelFromSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		provider  string
		settings  common.Settings
		wantModel string
	}{
		{name: "matching provider", provider: "openai", settings: common.Settings{LLMProvider: "openai", Model: "gpt-4.1"}, wantModel: "gpt-4.1"},
		{name: "other provider", provider: "ollama", settings: common.Settings{LLMProvider: "openai", Model: "gpt-4.1"}, wantModel: ""},
		{name: "no provider", provider: "", settings: common.Settings{LLMProvider: "openai", Model: "gpt-4.1"}, wantModel: ""},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			fake := &aitest.Client{ChatTurn: aitest.Turns(&ai.ChatTurn{Content: "Fine."})}
			w := newTestWorkspace(t, openStore(t), fake, tc.provider)
			ctx := context.Background()
			inv := seed(t, w)
			_, err := w.SaveSettings(ctx, tc.settings)
			require.NoError(t, err)

			_, err = w.Ask(ctx, AskRequest{InvestigationID: inv.ID, Question: "Status?"})
			require.NoError(t, err)
			calls := fake.Calls()
			require.Len(t, calls, 1)
			assert.Equal(t, tc.wantModel, calls[0].Options.Model)
		})
	}
}

func TestCredentials_FallBackPerKey(t *testing.T) {
	w := NewWorkspace(NewWorkspaceParams{Store: openStore(t)})
	w.creds.GoogleAPIKey = "env-key"
	w.creds.GoogleCX = "env-cx"

	got := w.credentials(common.Settings{GoogleCX: "saved-cx", FirecrawlAPIKey: "fc"})
	assert.Equal(t, "env-key", got.GoogleAPIKey)
	assert.Equal(t, "saved-cx", got.GoogleCX)
	assert.Equal(t, "fc", got.FirecrawlAPIKey)
}

func TestConversationTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "short", in: "Who runs Acme?", want: "Who runs Acme?"},
		{name: "exactly fifty", in: strings.Repeat("a", 50), want: strings.Repeat("a", 50)},
		{name: "long", in: strings.Repeat("b", 51), want: strings.Repeat("b", 50) + "..."},
		{name: "runes", in: strings.Repeat("ü", 60), want: strings.Repeat("ü", 50) + "..."},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, ConversationTitle(tc.in))
		})
	}
}

func TestDeleteInvestigation_RemovesConversations(t *testing.T) {
	fake := &aitest.Client{ChatTurn: aitest.Turns(&ai.ChatTurn{Content: "Fine."})}
	w := newTestWorkspace(t, openStore(t), fake, "")
	ctx := context.Background()
	inv := seed(t, w)

	res, err := w.Ask(ctx, AskRequest{InvestigationID: inv.ID, Question: "Status?"})
	require.NoError(t, err)

	require.NoError(t, w.DeleteInvestigation(ctx, inv.ID))
	_, err = w.GetInvestigation(ctx, inv.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = w.store.GetConversation(ctx, res.ConversationID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, w.DeleteInvestigation(ctx, inv.ID), ErrNotFound)
}
