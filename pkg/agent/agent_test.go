package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/OFFIS-RIT/caseboard/backend/pkg/ai"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/ai/aitest"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/common"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/graph"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/research"

	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreAnyFunction("github.com/patrickmn/go-cache.(*janitor).Run"))
}

const chatTurn = "GenerateChatTurn"

// testInvestigation holds Jane Doe, director of Acme Corp and owner of
// Villa Rosa, plus the Land Registry source.
func testInvestigation() *common.Investigation {
	inv := &common.Investigation{
		ID:        "inv_agent",
		Objective: "Who controls Acme Corp?",
		Entities: []*common.Entity{
			{
				ID:         "e1",
				Name:       "Jane Doe",
				Type:       common.EntityPerson,
				Aliases:    []string{"J. Doe"},
				Attributes: map[string]any{"nationality": "DE"},
			},
			{ID: "e2", Name: "Acme Corp", Type: common.EntityOrganization},
			{ID: "e3", Name: "Villa Rosa", Type: common.EntityAsset},
			{
				ID:   "s1",
				Name: "Land Registry",
				Type: common.EntitySource,
				Attributes: map[string]any{
					common.AttrURL:           "https://land.example",
					common.AttrDateCollected: "2026-01-01",
				},
			},
		},
		Relationships: []*common.Relationship{
			{
				ID: "r1", SourceID: "e1", TargetID: "e2", Type: "director_of", Confidence: 0.9,
				SourcesSupporting: []common.SupportingSource{{SourceEntityID: "s1", Explanation: "Listed"}},
			},
			{ID: "r2", SourceID: "e1", TargetID: "e3", Type: "owns", Confidence: 0.7},
		},
	}
	inv.Normalize()
	return inv
}

func newTestAgent(fake *aitest.Client, opts Options, backends research.Backends) *Agent {
	return NewAgent(NewAgentParams{AIClient: fake, Research: backends, Options: opts})
}

func call(id, name, args string) ai.ToolCall {
	return ai.ToolCall{ID: id, Name: name, Arguments: args}
}

func toolTurn(calls ...ai.ToolCall) *ai.ChatTurn {
	return &ai.ChatTurn{ToolCalls: calls}
}

func answerTurn(content string) *ai.ChatTurn {
	return &ai.ChatTurn{Content: content}
}

// toolResults maps tool call ids to the results sent back in a round.
func toolResults(c aitest.Call) map[string]string {
	out := map[string]string{}
	for _, m := range c.Messages {
		if m.Role == ai.RoleTool {
			out[m.ToolCallID] = m.Message
		}
	}
	return out
}

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &out), s)
	return out
}

const finalAnswer = `{
  "answer": "Jane Doe is the director of Acme Corp.",
  "reasoning": "Looked up Jane Doe.",
  "actions": [{"type": "add_relationship", "relationship": {"source": "Villa Rosa", "target": "Acme Corp", "type": "collateral_for", "explanation": "Mortgage deed"}}]
}`

func TestAsk_DirectAnswer(t *testing.T) {
	fake := &aitest.Client{ChatTurn: aitest.Turns(answerTurn(finalAnswer))}
	a := newTestAgent(fake, Options{Model: "gpt-4o"}, research.Backends{})

	res, err := a.Ask(context.Background(), Request{Investigation: testInvestigation(), Question: "Who runs Acme?"})

	require.NoError(t, err)
	assert.Equal(t, ModeTools, res.Mode)
	assert.Equal(t, 1, res.Rounds)
	assert.Equal(t, "Jane Doe is the director of Acme Corp.", res.Answer.Answer)
	assert.Equal(t, "Looked up Jane Doe.", res.Reasoning)
	require.Len(t, res.Actions, 1)
	assert.Equal(t, common.ActionAddRelationship, res.Actions[0].Type)
	assert.Equal(t, "Mortgage deed", res.Actions[0].Relationship.Explanation)

	calls := fake.Calls()
	require.Len(t, calls, 1)
	msgs := calls[0].Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, ai.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Message, "- 4 entities\n- 2 relationships\n- 1 sources")
	assert.Equal(t, ai.ChatMessage{Role: ai.RoleUser, Message: "Who runs Acme?"}, msgs[1])
	assert.Equal(t, "gpt-4o", calls[0].Options.Model)
	assert.Equal(t, 0.2, calls[0].Options.Temperature)

	names := make([]string, len(calls[0].Tools))
	for i, tool := range calls[0].Tools {
		names[i] = tool.Name
	}
	assert.Equal(t, []string{
		ToolFindShortestPath, ToolGetEntityDetails, ToolGetRelatedEntities,
		ToolSearchWeb, ToolScrapeAndExtract, ToolAddToGraph,
	}, names)
}

func TestAsk_PlainTextAnswer(t *testing.T) {
	fake := &aitest.Client{ChatTurn: aitest.Turns(answerTurn("  Jane Doe runs Acme Corp.  "))}

	res, err := newTestAgent(fake, Options{}, research.Backends{}).
		Ask(context.Background(), Request{Investigation: testInvestigation(), Question: "Who runs Acme?"})

	require.NoError(t, err)
	assert.Equal(t, "Jane Doe runs Acme Corp.", res.Answer.Answer)
	assert.Equal(t, "Direct answer provided", res.Reasoning)
	assert.NotNil(t, res.Actions)
	assert.Empty(t, res.Actions)
}

func TestAsk_UnparseableAnswer(t *testing.T) {
	fake := &aitest.Client{ChatTurn: aitest.Turns(answerTurn(`{"answer": 42, "actions": "none"}`))}

	_, err := newTestAgent(fake, Options{}, research.Backends{}).
		Ask(context.Background(), Request{Investigation: testInvestigation(), Question: "Who runs Acme?"})

	assert.ErrorIs(t, err, ErrUnparseableAnswer)
}

func TestAsk_IterationLimit(t *testing.T) {
	fake := &aitest.Client{ChatTurn: aitest.Turns(
		toolTurn(call("c", ToolGetEntityDetails, `{"entity_name": "Jane Doe"}`)),
	)}
	before := testutil.ToFloat64(requestsTotal.WithLabelValues(ModeTools, outcomeLimit))

	_, err := newTestAgent(fake, Options{}, research.Backends{}).
		Ask(context.Background(), Request{Investigation: testInvestigation(), Question: "Loop forever"})

	assert.ErrorIs(t, err, ErrIterationLimit)
	assert.Equal(t, 10, fake.Count(chatTurn))
	assert.Equal(t, before+1, testutil.ToFloat64(requestsTotal.WithLabelValues(ModeTools, outcomeLimit)))
}

func TestAsk_CustomIterationLimit(t *testing.T) {
	fake := &aitest.Client{ChatTurn: aitest.Turns(
		toolTurn(call("c", ToolGetEntityDetails, `{"entity_name": "Jane Doe"}`)),
	)}

	_, err := newTestAgent(fake, Options{MaxIterations: 3}, research.Backends{}).
		Ask(context.Background(), Request{Investigation: testInvestigation(), Question: "Loop"})

	assert.ErrorIs(t, err, ErrIterationLimit)
	assert.Equal(t, 3, fake.Count(chatTurn))
}

func TestAsk_AnswerOnLastRound(t *testing.T) {
	fake := &aitest.Client{ChatTurn: func(n int, _ []ai.ChatMessage, _ []ai.Tool) (*ai.ChatTurn, error) {
		if n < 9 {
			return toolTurn(call("c", ToolGetEntityDetails, `{"entity_name": "Jane Doe"}`)), nil
		}
		return answerTurn(finalAnswer), nil
	}}

	res, err := newTestAgent(fake, Options{}, research.Backends{}).
		Ask(context.Background(), Request{Investigation: testInvestigation(), Question: "Take your time"})

	require.NoError(t, err)
	assert.Equal(t, 10, res.Rounds)
	assert.Len(t, res.Trace.ToolCalls, 9)
}

func TestAsk_ToolTranscript(t *testing.T) {
	fake := &aitest.Client{ChatTurn: aitest.Turns(
		toolTurn(
			call("call_1", ToolFindShortestPath, `{"source": "Villa Rosa", "target": "acme corp"}`),
			call("call_2", "frobnicate", `{}`),
			call("call_3", ToolGetEntityDetails, `{}`),
		),
		answerTurn(finalAnswer),
	)}

	res, err := newTestAgent(fake, Options{}, research.Backends{}).
		Ask(context.Background(), Request{Investigation: testInvestigation(), Question: "How is Villa Rosa linked to Acme?"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rounds)

	calls := fake.Calls()
	require.Len(t, calls, 2)
	msgs := calls[1].Messages
	require.Len(t, msgs, 6)

	assistant := msgs[2]
	assert.Equal(t, ai.RoleAssistant, assistant.Role)
	require.Len(t, assistant.ToolCalls, 3)

	for i, id := range []string{"call_1", "call_2", "call_3"} {
		assert.Equal(t, ai.RoleTool, msgs[3+i].Role)
		assert.Equal(t, id, msgs[3+i].ToolCallID)
	}

	results := toolResults(calls[1])
	path := decode(t, results["call_1"])
	assert.Equal(t, true, path["found"])
	assert.Equal(t, float64(2), path["length"])

	assert.JSONEq(t, `{"error": "Unknown function"}`, results["call_2"])
	assert.JSONEq(t, `{"error": "entity_name is required and must be a string"}`, results["call_3"])

	require.Len(t, res.Trace.ToolCalls, 3)
	assert.Empty(t, res.Trace.ToolCalls[0].Error)
	assert.NotEmpty(t, res.Trace.ToolCalls[1].Error)
	assert.Equal(t, []string{"e1", "e2", "e3"}, res.Trace.QueriedEntityIDs)
}

func TestAsk_RelatedEntitiesDepth(t *testing.T) {
	fake := &aitest.Client{ChatTurn: aitest.Turns(
		toolTurn(
			call("default", ToolGetRelatedEntities, `{"entity_name": "Villa Rosa"}`),
			call("one", ToolGetRelatedEntities, `{"entity_name": "Villa Rosa", "max_depth": 1}`),
		),
		answerTurn(finalAnswer),
	)}

	_, err := newTestAgent(fake, Options{}, research.Backends{}).
		Ask(context.Background(), Request{Investigation: testInvestigation(), Question: "Around Villa Rosa?"})
	require.NoError(t, err)

	results := toolResults(fake.Calls()[1])
	assert.Equal(t, float64(2), decode(t, results["default"])["totalFound"])
	assert.Equal(t, float64(2), decode(t, results["default"])["maxDepth"])
	assert.Equal(t, float64(1), decode(t, results["one"])["totalFound"])
}

func TestAsk_SearchNotConfigured(t *testing.T) {
	fake := &aitest.Client{ChatTurn: aitest.Turns(
		toolTurn(call("s", ToolSearchWeb, `{"query": "Acme Corp shareholders"}`)),
		answerTurn(finalAnswer),
	)}

	_, err := newTestAgent(fake, Options{}, research.Backends{}).
		Ask(context.Background(), Request{Investigation: testInvestigation(), Question: "Shareholders?"})
	require.NoError(t, err)

	result := decode(t, toolResults(fake.Calls()[1])["s"])
	assert.Contains(t, result["error"], "Google Search API key or Custom Search Engine ID not configured")
}

const globexPage = `<html><head><title>Globex annual report</title></head><body><article>
<p>Globex holds a minority stake in Acme Corp and appoints one member of its board. The stake was
acquired in 2021 from a fund controlled by Jane Doe, according to the filing.</p>
</article></body></html>`

func TestAsk_ScrapeAndExtract(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, "https://globex.example/report",
		func(*http.Request) (*http.Response, error) {
			resp := httpmock.NewStringResponse(http.StatusOK, globexPage)
			resp.Header.Set("Content-Type", "text/html")
			return resp, nil
		})
	backends := research.Backends{
		Web: research.NewWebScraper(research.NewWebScraperParams{HTTPClient: &http.Client{Transport: transport}}),
	}

	fake := &aitest.Client{
		ChatTurn: aitest.Turns(
			toolTurn(call("scrape", ToolScrapeAndExtract, `{"url": "https://globex.example/report"}`)),
			answerTurn(finalAnswer),
		),
		Completion: aitest.Replies(`{"entities": [{"name": "Globex", "type": "organization", "sourceDescription": "Minority shareholder"}], "relationships": []}`),
	}

	res, err := newTestAgent(fake, Options{}, backends).
		Ask(context.Background(), Request{Investigation: testInvestigation(), Question: "Who else owns Acme?"})
	require.NoError(t, err)

	result := decode(t, toolResults(fake.Calls()[2])["scrape"])
	assert.Equal(t, "https://globex.example/report", result["url"])
	assert.Equal(t, "Globex annual report", result["title"])

	extraction, ok := result["extraction"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "https://globex.example/report", extraction["sourceUrl"])
	assert.Equal(t, []any{}, extraction["relationships"])
	entities, ok := extraction["entities"].([]any)
	require.True(t, ok)
	require.Len(t, entities, 1)
	assert.Equal(t, "Globex", entities[0].(map[string]any)["name"])

	prompt := fake.Calls()[1].Prompt
	assert.Contains(t, prompt, "Globex holds a minority stake in Acme Corp")
	assert.Equal(t, []string{"https://globex.example/report"}, res.Trace.VisitedURLs)
}

const addGlobex = `{
  "source_name": "Globex annual report",
  "source_url": "https://globex.example/report",
  "entities": [{"name": "Globex", "type": "organization", "sourceDescription": "Minority shareholder"}],
  "relationships": [
    {"source": "Globex", "target": "Acme Corp", "type": "shareholder_of", "explanation": "Holds a minority stake", "confidence": 0.8},
    {"source": "Initech", "target": "Acme Corp", "type": "supplier_of", "explanation": "Mentioned in passing"}
  ]
}`

func TestAsk_AddToGraphCommits(t *testing.T) {
	fake := &aitest.Client{ChatTurn: aitest.Turns(
		toolTurn(call("add", ToolAddToGraph, addGlobex)),
		toolTurn(call("path", ToolFindShortestPath, `{"source": "Villa Rosa", "target": "Globex"}`)),
		answerTurn(finalAnswer),
	)}

	inv := testInvestigation()
	merger := graph.NewGraphClient(graph.NewGraphClientParams{})
	var batches []graph.MergeBatch
	commit := func(_ context.Context, batch graph.MergeBatch) (*common.Investigation, *graph.MergeReport, error) {
		batches = append(batches, batch)
		clone := inv.Clone()
		report, err := merger.Merge(clone, batch)
		return clone, report, err
	}

	res, err := newTestAgent(fake, Options{}, research.Backends{}).
		Ask(context.Background(), Request{Investigation: inv, Question: "Who else owns Acme?", Commit: commit})
	require.NoError(t, err)

	require.Len(t, batches, 1)
	require.NotNil(t, batches[0].Web)
	assert.Equal(t, "https://globex.example/report", batches[0].Web.URL)
	assert.Equal(t, "Holds a minority stake", batches[0].Extraction.Relationships[0].SourceExplanation)

	calls := fake.Calls()
	added := decode(t, toolResults(calls[1])["add"])
	assert.Equal(t, true, added["success"])
	assert.Equal(t, "Globex annual report", added["source"])
	assert.Equal(t, "Added 1 new entities, updated 0 existing entities, and created 1 new relationships.", added["summary"])

	records := added["added"].(map[string]any)
	rels := records["relationships"].([]any)
	require.Len(t, rels, 2)
	assert.Equal(t, "skipped", rels[1].(map[string]any)["status"])

	path := decode(t, toolResults(calls[2])["path"])
	assert.Equal(t, true, path["found"])

	require.NotNil(t, res.Investigation.EntityByName("Globex"))
	assert.Nil(t, inv.EntityByName("Globex"))
	assert.Len(t, res.Trace.CommittedEntityIDs, 2)
}

func TestAsk_AddToGraphCommitFailure(t *testing.T) {
	fake := &aitest.Client{ChatTurn: aitest.Turns(
		toolTurn(call("add", ToolAddToGraph, addGlobex)),
		answerTurn(finalAnswer),
	)}
	commit := func(context.Context, graph.MergeBatch) (*common.Investigation, *graph.MergeReport, error) {
		return nil, nil, errors.New("disk full")
	}

	inv := testInvestigation()
	res, err := newTestAgent(fake, Options{}, research.Backends{}).
		Ask(context.Background(), Request{Investigation: inv, Question: "Add Globex", Commit: commit})
	require.NoError(t, err)

	added := decode(t, toolResults(fake.Calls()[1])["add"])
	assert.Equal(t, false, added["success"])
	assert.Equal(t, "Failed to add to graph: disk full", added["error"])
	assert.Same(t, inv, res.Investigation)
	assert.Nil(t, res.Investigation.EntityByName("Globex"))
}

func TestAsk_AddToGraphWithoutCommitter(t *testing.T) {
	fake := &aitest.Client{ChatTurn: aitest.Turns(
		toolTurn(call("add", ToolAddToGraph, addGlobex)),
		answerTurn(finalAnswer),
	)}

	inv := testInvestigation()
	res, err := newTestAgent(fake, Options{}, research.Backends{}).
		Ask(context.Background(), Request{Investigation: inv, Question: "Add Globex"})
	require.NoError(t, err)

	globex := res.Investigation.EntityByName("Globex")
	require.NotNil(t, globex)
	assert.True(t, globex.HasFlag(common.FlagWebResearch))
	assert.Nil(t, inv.EntityByName("Globex"))
	assert.Len(t, inv.Entities, 4)
}

func TestAsk_History(t *testing.T) {
	var history []*common.Message
	for i := 0; i < 6; i++ {
		history = append(history,
			&common.Message{Type: common.MessageUser, Content: "question " + string(rune('a'+i))},
			&common.Message{Type: common.MessageAssistant, Content: "answer " + string(rune('a'+i))},
		)
	}
	history = append(history, &common.Message{Type: common.MessageError, Content: "Error: boom"})

	fake := &aitest.Client{ChatTurn: aitest.Turns(answerTurn(finalAnswer))}
	_, err := newTestAgent(fake, Options{}, research.Backends{}).
		Ask(context.Background(), Request{Investigation: testInvestigation(), Question: "next", History: history})
	require.NoError(t, err)

	msgs := fake.Calls()[0].Messages
	require.Len(t, msgs, 12)
	assert.Equal(t, ai.ChatMessage{Role: ai.RoleUser, Message: "question b"}, msgs[1])
	assert.Equal(t, ai.ChatMessage{Role: ai.RoleAssistant, Message: "answer f"}, msgs[10])
	assert.Equal(t, ai.ChatMessage{Role: ai.RoleUser, Message: "next"}, msgs[11])
	for _, m := range msgs {
		assert.NotContains(t, m.Message, "boom")
	}
}

func TestAsk_ModelError(t *testing.T) {
	boom := errors.New("upstream unavailable")
	fake := &aitest.Client{ChatTurn: func(int, []ai.ChatMessage, []ai.Tool) (*ai.ChatTurn, error) {
		return nil, boom
	}}

	_, err := newTestAgent(fake, Options{}, research.Backends{}).
		Ask(context.Background(), Request{Investigation: testInvestigation(), Question: "Anything"})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, fake.Count(chatTurn))
}

func TestAsk_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		agent   *Agent
		req     Request
		wantErr error
	}{
		{
			name:    "no investigation",
			agent:   newTestAgent(&aitest.Client{}, Options{}, research.Backends{}),
			req:     Request{Question: "Who?"},
			wantErr: ErrNoInvestigation,
		},
		{
			name:    "blank question",
			agent:   newTestAgent(&aitest.Client{}, Options{}, research.Backends{}),
			req:     Request{Investigation: testInvestigation(), Question: "   "},
			wantErr: ErrEmptyQuestion,
		},
		{
			name:    "no model",
			agent:   NewAgent(NewAgentParams{}),
			req:     Request{Investigation: testInvestigation(), Question: "Who?"},
			wantErr: graph.ErrNoAIClient,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.agent.Ask(context.Background(), tc.req)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestAsk_LegacyMode(t *testing.T) {
	fake := &aitest.Client{Completion: aitest.Replies("Sure:\n```json\n" + finalAnswer + "\n```")}

	res, err := newTestAgent(fake, Options{}, research.Backends{}).
		Ask(context.Background(), Request{Investigation: testInvestigation(), Question: "Who runs Acme?", Model: "o3-mini"})

	require.NoError(t, err)
	assert.Equal(t, ModeLegacy, res.Mode)
	assert.Equal(t, 1, res.Rounds)
	assert.Equal(t, "Jane Doe is the director of Acme Corp.", res.Answer.Answer)
	assert.Zero(t, fake.Count(chatTurn))

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, 1.0, calls[0].Options.Temperature)
	assert.Equal(t, "o3-mini", calls[0].Options.Model)
	assert.Contains(t, calls[0].Prompt, "USER REQUEST: Who runs Acme?")
}

func TestAsk_LegacyOption(t *testing.T) {
	fake := &aitest.Client{Completion: aitest.Replies(finalAnswer)}

	res, err := newTestAgent(fake, Options{Legacy: true, Model: "gpt-4o"}, research.Backends{}).
		Ask(context.Background(), Request{Investigation: testInvestigation(), Question: "Who runs Acme?"})

	require.NoError(t, err)
	assert.Equal(t, ModeLegacy, res.Mode)
}

func TestAsk_LegacyUnparseable(t *testing.T) {
	fake := &aitest.Client{Completion: aitest.Replies("I cannot answer that.")}

	_, err := newTestAgent(fake, Options{Legacy: true}, research.Backends{}).
		Ask(context.Background(), Request{Investigation: testInvestigation(), Question: "Who runs Acme?"})

	assert.ErrorIs(t, err, ErrUnparseableAnswer)
}

func TestBuildLegacyPrompt(t *testing.T) {
	prompt := BuildLegacyPrompt(testInvestigation(), "Who runs Acme?")

	for _, line := range []string{
		"Entities (4):\n- [e1] Jane Doe (person) aka J. Doe [nationality: DE]\n- [e2] Acme Corp (organization)\n",
		"- [s1] Land Registry (source) [dateCollected: 2026-01-01, url: https://land.example]",
		"Relationships (2):\n- [r1] Jane Doe → director_of → Acme Corp (confidence: 0.9) [1 sources]\n- [r2] Jane Doe → owns → Villa Rosa (confidence: 0.7)\n",
		"Sources (1):\n- [s1] Land Registry (https://land.example)\n",
		"USER REQUEST: Who runs Acme?",
	} {
		assert.Contains(t, prompt, line)
	}
	assert.False(t, strings.Contains(prompt, "%!"), "unformatted verb in prompt")
}

func TestUsesLegacyMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		model string
		want  bool
	}{
		{model: "gpt-4o", want: false},
		{model: "gpt-4.1-mini", want: false},
		{model: "o1-preview", want: true},
		{model: "o3-mini", want: true},
		{model: "O3", want: true},
		{model: "", want: false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.model, func(t *testing.T) {
			assert.Equal(t, tc.want, UsesLegacyMode(tc.model))
		})
	}
}

func TestParseAnswer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		content    string
		allowPlain bool
		want       string
		wantErr    bool
	}{
		{name: "bare json", content: `{"answer": "A"}`, want: "A"},
		{name: "fenced", content: "```json\n{\"answer\": \"B\"}\n```", want: "B"},
		{name: "surrounded", content: `Result: {"answer": "C"} done`, want: "C"},
		{name: "plain allowed", content: "Just text", allowPlain: true, want: "Just text"},
		{name: "plain rejected", content: "Just text", wantErr: true},
		{name: "wrong types", content: `{"answer": 1}`, allowPlain: true, wantErr: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseAnswer(tc.content, tc.allowPlain)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrUnparseableAnswer)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.Answer)
			assert.NotNil(t, got.Actions)
		})
	}
}

func TestOptions_HistoryDefaults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts Options
		want int
	}{
		{name: "zero", opts: Options{}, want: 10},
		{name: "negative", opts: Options{HistoryLimit: -1}, want: 10},
		{name: "explicit", opts: Options{HistoryLimit: 4}, want: 4},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, NewAgent(NewAgentParams{Options: tc.opts}).Options().HistoryLimit)
		})
	}
}

func TestAsk_HistoryDisabled(t *testing.T) {
	history := []*common.Message{
		{Type: common.MessageUser, Content: "hi"},
		{Type: common.MessageAssistant, Content: "hello"},
	}
	fake := &aitest.Client{ChatTurn: aitest.Turns(answerTurn(finalAnswer))}

	_, err := newTestAgent(fake, Options{DisableHistory: true}, research.Backends{}).
		Ask(context.Background(), Request{Investigation: testInvestigation(), Question: "next", History: history})
	require.NoError(t, err)

	msgs := fake.Calls()[0].Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, ai.ChatMessage{Role: ai.RoleUser, Message: "next"}, msgs[1])
}

func TestAsk_StateTransitions(t *testing.T) {
	lookup := toolTurn(call("c", ToolGetEntityDetails, `{"entity_name": "Jane Doe"}`))

	tests := []struct {
		name    string
		client  *aitest.Client
		opts    Options
		model   string
		wantErr error
		want    []StateRecord
	}{
		{
			name:   "direct answer",
			client: &aitest.Client{ChatTurn: aitest.Turns(answerTurn(finalAnswer))},
			want: []StateRecord{
				{Round: 1, State: "awaiting-model"},
				{Round: 1, State: "done"},
			},
		},
		{
			name:   "one tool round",
			client: &aitest.Client{ChatTurn: aitest.Turns(lookup, answerTurn(finalAnswer))},
			want: []StateRecord{
				{Round: 1, State: "awaiting-model"},
				{Round: 1, State: "dispatching-tools"},
				{Round: 2, State: "awaiting-model"},
				{Round: 2, State: "done"},
			},
		},
		{
			name:    "iteration limit",
			client:  &aitest.Client{ChatTurn: aitest.Turns(lookup)},
			opts:    Options{MaxIterations: 2},
			wantErr: ErrIterationLimit,
			want: []StateRecord{
				{Round: 1, State: "awaiting-model"},
				{Round: 1, State: "dispatching-tools"},
				{Round: 2, State: "awaiting-model"},
				{Round: 2, State: "dispatching-tools"},
				{Round: 2, State: "error"},
			},
		},
		{
			name:   "legacy",
			client: &aitest.Client{Completion: aitest.Replies(finalAnswer)},
			model:  "o1-mini",
			want: []StateRecord{
				{Round: 1, State: "awaiting-model"},
				{Round: 1, State: "done"},
			},
		},
		{
			name:    "legacy unparseable",
			client:  &aitest.Client{Completion: aitest.Replies("no json here")},
			opts:    Options{Legacy: true},
			wantErr: ErrUnparseableAnswer,
			want: []StateRecord{
				{Round: 1, State: "awaiting-model"},
				{Round: 1, State: "error"},
			},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			trace := NewTrace()
			res, err := newTestAgent(tc.client, tc.opts, research.Backends{}).Ask(context.Background(), Request{
				Investigation: testInvestigation(),
				Question:      "Who runs Acme?",
				Model:         tc.model,
				Tracer:        trace,
			})

			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tc.want, res.Trace.States)
			}
			assert.Equal(t, tc.want, trace.Snapshot().States)
		})
	}
}
