// Package agent answers questions about an investigation with a bounded
// tool-calling loop. The model can query the graph, research the web and
// commit new findings; its final answer may carry graph actions that the
// caller applies afterwards.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/OFFIS-RIT/caseboard/backend/pkg/ai"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/common"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/graph"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/logger"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/research"
)

var (
	// ErrIterationLimit is returned when the model still wants tools after
	// the last allowed round.
	ErrIterationLimit = errors.New("max tool iterations reached, please simplify your question")
	// ErrUnparseableAnswer is returned when the final reply holds no usable
	// answer object.
	ErrUnparseableAnswer = errors.New("failed to parse LLM response")
	// ErrEmptyQuestion is returned for a blank question.
	ErrEmptyQuestion = errors.New("question must not be empty")
	// ErrNoInvestigation is returned when the request carries no investigation.
	ErrNoInvestigation = errors.New("no investigation given")
)

// State is the phase of a running request. A run starts idle, alternates
// between awaiting-model and dispatching-tools and ends in done or error.
type State int

const (
	StateIdle State = iota
	StateAwaitingModel
	StateDispatchingTools
	StateDone
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingModel:
		return "awaiting-model"
	case StateDispatchingTools:
		return "dispatching-tools"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Answering modes.
const (
	ModeTools  = "tools"
	ModeLegacy = "legacy"
)

const directAnswerReasoning = "Direct answer provided"

// Options tune the answering loop. Zero values fall back to DefaultOptions.
type Options struct {
	// MaxIterations is the number of model rounds a request may use.
	MaxIterations int
	Model         string
	Temperature   float64
	// Legacy forces the single-shot mode without tools.
	Legacy bool
	// HistoryLimit is how many earlier conversation messages are replayed.
	HistoryLimit int
	// DisableHistory stops earlier messages from being replayed at all.
	DisableHistory bool
}

// DefaultOptions returns ten rounds, temperature 0.2 and ten history messages.
func DefaultOptions() Options {
	return Options{
		MaxIterations: 10,
		Temperature:   0.2,
		HistoryLimit:  10,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxIterations <= 0 {
		o.MaxIterations = d.MaxIterations
	}
	if o.Temperature <= 0 {
		o.Temperature = d.Temperature
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = d.HistoryLimit
	}
	return o
}

// CommitFunc persists a web research batch and returns the investigation as
// saved. The agent continues from the returned snapshot.
type CommitFunc func(ctx context.Context, batch graph.MergeBatch) (*common.Investigation, *graph.MergeReport, error)

// Request is one question against an investigation.
type Request struct {
	Investigation *common.Investigation
	Question      string
	History       []*common.Message
	Credentials   research.Credentials
	// Model overrides Options.Model for this request.
	Model string
	// Commit persists add_to_graph batches. When nil, batches are merged into
	// a private copy that is returned in Result.Investigation.
	Commit CommitFunc
	Tracer Tracer
}

// Answer is the final reply contract of the model.
type Answer struct {
	Answer    string          `json:"answer"`
	Reasoning string          `json:"reasoning"`
	Actions   []common.Action `json:"actions"`
}

// Result is the parsed answer together with how it was reached.
type Result struct {
	Answer
	Mode   string `json:"mode"`
	Rounds int    `json:"rounds"`
	// Investigation is the latest snapshot the agent worked on. It differs
	// from the request's investigation only after add_to_graph commits.
	Investigation *common.Investigation `json:"-"`
	Trace         TraceSnapshot         `json:"trace"`
}

// Agent runs questions against investigations. It holds no per-request
// state and is safe for concurrent use.
type Agent struct {
	aiClient ai.GraphAIClient
	graph    *graph.GraphClient
	research research.Backends
	opts     Options
}

// NewAgentParams configures NewAgent. Graph defaults to a client built on
// AIClient.
type NewAgentParams struct {
	AIClient ai.GraphAIClient
	Graph    *graph.GraphClient
	Research research.Backends
	Options  Options
}

// NewAgent creates an agent with params.Options completed by DefaultOptions.
func NewAgent(params NewAgentParams) *Agent {
	g := params.Graph
	if g == nil {
		g = graph.NewGraphClient(graph.NewGraphClientParams{AIClient: params.AIClient})
	}
	return &Agent{
		aiClient: params.AIClient,
		graph:    g,
		research: params.Research,
		opts:     params.Options.withDefaults(),
	}
}

func (a *Agent) Options() Options {
	return a.opts
}

// UsesLegacyMode reports whether model is a reasoning model that cannot call
// tools and must be asked in a single shot.
func UsesLegacyMode(model string) bool {
	m := strings.ToLower(model)
	return strings.Contains(m, "o1") || strings.Contains(m, "o3")
}

// Ask answers req.Question. Graph actions in the answer are returned, not
// applied.
func (a *Agent) Ask(ctx context.Context, req Request) (*Result, error) {
	if req.Investigation == nil {
		return nil, ErrNoInvestigation
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		return nil, ErrEmptyQuestion
	}
	if a.aiClient == nil {
		return nil, graph.ErrNoAIClient
	}

	model := req.Model
	if model == "" {
		model = a.opts.Model
	}

	trace := NewTrace()
	r := &run{
		agent:  a,
		req:    req,
		model:  model,
		trace:  trace,
		tracer: MultiTracer{trace, req.Tracer},
	}
	r.setInvestigation(req.Investigation)

	mode := ModeTools
	if a.opts.Legacy || UsesLegacyMode(model) {
		mode = ModeLegacy
	}

	start := time.Now()
	var (
		answer Answer
		err    error
	)
	if mode == ModeLegacy {
		answer, err = r.legacy(ctx)
	} else {
		answer, err = r.loop(ctx)
	}

	outcome := outcomeAnswered
	switch {
	case errors.Is(err, ErrIterationLimit):
		outcome = outcomeLimit
	case errors.Is(err, ErrUnparseableAnswer):
		outcome = outcomeUnparseable
	case err != nil:
		outcome = outcomeError
	}
	requestsTotal.WithLabelValues(mode, outcome).Inc()
	roundsPerRequest.Observe(float64(r.round))

	if err != nil {
		logger.Error("[Agent] Request failed",
			"investigation", req.Investigation.ID, "mode", mode, "rounds", r.round, "err", err)
		return nil, err
	}

	logger.Info("[Agent] Request answered",
		"investigation", req.Investigation.ID,
		"mode", mode,
		"rounds", r.round,
		"actions", len(answer.Actions),
		"duration", time.Since(start),
	)
	return &Result{
		Answer:        answer,
		Mode:          mode,
		Rounds:        r.round,
		Investigation: r.inv,
		Trace:         trace.Snapshot(),
	}, nil
}

// run is the state of one request.
type run struct {
	agent  *Agent
	req    Request
	model  string
	trace  *Trace
	tracer Tracer

	state State
	round int

	inv   *common.Investigation
	index *graph.Index
}

func (r *run) setInvestigation(inv *common.Investigation) {
	r.inv = inv
	r.index = r.agent.graph.NewIndex(inv)
}

// transition moves the run to s and records it in the trace.
func (r *run) transition(s State) {
	logger.Debug("[Agent] State change", "from", r.state, "to", s, "round", r.round)
	r.state = s
	r.tracer.Record(TraceEvent{Kind: TraceEventStateChange, Round: r.round, State: s})
}

// fail ends the run in the error state.
func (r *run) fail(err error) (Answer, error) {
	r.transition(StateError)
	return Answer{}, err
}

func (r *run) loop(ctx context.Context) (Answer, error) {
	tools := r.tools()
	handlers := make(map[string]ai.ToolHandler, len(tools))
	for _, t := range tools {
		handlers[t.Name] = t.Handler
	}

	msgs := r.transcript()
	var (
		turn   *ai.ChatTurn
		answer Answer
	)

	r.round = 1
	r.transition(StateAwaitingModel)
	for r.state != StateDone && r.state != StateError {
		switch r.state {
		case StateAwaitingModel:
			var err error
			turn, err = r.agent.aiClient.GenerateChatTurn(ctx, msgs, tools,
				ai.WithModel(r.model),
				ai.WithTemperature(r.agent.opts.Temperature),
			)
			if err != nil {
				return r.fail(fmt.Errorf("model round %d: %w", r.round, err))
			}
			if turn.WantsTools() {
				r.transition(StateDispatchingTools)
				continue
			}
			answer, err = parseAnswer(turn.Content, true)
			if err != nil {
				return r.fail(err)
			}
			r.transition(StateDone)

		case StateDispatchingTools:
			msgs = append(msgs, turn.Message())
			for _, call := range turn.ToolCalls {
				result := r.dispatch(ctx, handlers, call)
				msgs = append(msgs, ai.ChatMessage{
					Role:       ai.RoleTool,
					Message:    result,
					ToolCallID: call.ID,
				})
			}
			if r.round >= r.agent.opts.MaxIterations {
				return r.fail(ErrIterationLimit)
			}
			r.round++
			r.transition(StateAwaitingModel)

		default:
			return r.fail(fmt.Errorf("unexpected agent state %s", r.state))
		}
	}

	return answer, nil
}

// transcript builds the opening messages: system prompt, replayed history
// and the question.
func (r *run) transcript() []ai.ChatMessage {
	sources := len(r.inv.Sources())
	msgs := []ai.ChatMessage{{
		Role:    ai.RoleSystem,
		Message: fmt.Sprintf(ai.AgentSystemPrompt, len(r.inv.Entities), len(r.inv.Relationships), sources),
	}}
	if !r.agent.opts.DisableHistory {
		msgs = append(msgs, historyMessages(r.req.History, r.agent.opts.HistoryLimit)...)
	}
	msgs = append(msgs, ai.ChatMessage{Role: ai.RoleUser, Message: r.req.Question})
	return msgs
}

// historyMessages replays the last limit user and assistant messages. Error
// messages are never shown to the model.
func historyMessages(history []*common.Message, limit int) []ai.ChatMessage {
	if limit <= 0 {
		return nil
	}
	var out []ai.ChatMessage
	for _, m := range history {
		if m == nil || strings.TrimSpace(m.Content) == "" {
			continue
		}
		switch m.Type {
		case common.MessageUser:
			out = append(out, ai.ChatMessage{Role: ai.RoleUser, Message: m.Content})
		case common.MessageAssistant:
			out = append(out, ai.ChatMessage{Role: ai.RoleAssistant, Message: m.Content})
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func (r *run) dispatch(ctx context.Context, handlers map[string]ai.ToolHandler, call ai.ToolCall) string {
	start := time.Now()
	status := toolStatusOK

	var result string
	handler, ok := handlers[call.Name]
	if !ok {
		status = toolStatusUnknown
		logger.Warn("[Agent] Model requested unknown tool", "tool", call.Name, "round", r.round)
		result = errorResult("Unknown function")
	} else {
		out, err := handler(ctx, call.Arguments)
		if err != nil {
			status = toolStatusError
			logger.Warn("[Agent] Tool failed", "tool", call.Name, "round", r.round, "err", err)
			result = errorResult(err.Error())
		} else {
			result = out
		}
	}

	elapsed := time.Since(start)
	toolCallsTotal.WithLabelValues(call.Name, status).Inc()
	toolDuration.WithLabelValues(call.Name).Observe(elapsed.Seconds())

	event := TraceEvent{
		Kind:          TraceEventToolCall,
		Round:         r.round,
		ToolName:      call.Name,
		ToolArguments: call.Arguments,
		DurationMs:    elapsed.Milliseconds(),
	}
	if status != toolStatusOK {
		event.Error = result
	}
	r.tracer.Record(event)

	return result
}

// parseAnswer decodes the model's final content. In tool mode a reply
// without any JSON object is accepted as a plain-text answer.
func parseAnswer(content string, allowPlain bool) (Answer, error) {
	var ans Answer
	if err := ai.ParseJSON(content, &ans); err != nil {
		if allowPlain && !strings.Contains(content, "{") {
			return Answer{
				Answer:    strings.TrimSpace(content),
				Reasoning: directAnswerReasoning,
				Actions:   []common.Action{},
			}, nil
		}
		return Answer{}, fmt.Errorf("%w: %v", ErrUnparseableAnswer, err)
	}
	if ans.Actions == nil {
		ans.Actions = []common.Action{}
	}
	return ans, nil
}
