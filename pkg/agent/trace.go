package agent

import (
	"slices"
	"sync"
)

type TraceEventKind string

const (
	TraceEventToolCall          TraceEventKind = "tool_call"
	TraceEventQueriedEntityIDs  TraceEventKind = "queried_entity_ids"
	TraceEventCommittedEntities TraceEventKind = "committed_entity_ids"
	TraceEventVisitedURLs       TraceEventKind = "visited_urls"
	TraceEventStateChange       TraceEventKind = "state_change"
)

// TraceEvent is an extensible event envelope for agent tracing.
type TraceEvent struct {
	Kind TraceEventKind

	EntityIDs []string
	URLs      []string

	Round         int
	State         State
	ToolName      string
	ToolArguments string
	DurationMs    int64
	Error         string
}

// Tracer is a sink for agent tracing events.
type Tracer interface {
	Record(event TraceEvent)
}

// MultiTracer fan-outs trace events to multiple tracers.
type MultiTracer []Tracer

func (m MultiTracer) Record(event TraceEvent) {
	for _, t := range m {
		if t == nil {
			continue
		}
		t.Record(event)
	}
}

func recordQueriedEntityIDs(t Tracer, ids ...string) {
	if t == nil || len(ids) == 0 {
		return
	}
	t.Record(TraceEvent{Kind: TraceEventQueriedEntityIDs, EntityIDs: ids})
}

func recordCommittedEntityIDs(t Tracer, ids ...string) {
	if t == nil || len(ids) == 0 {
		return
	}
	t.Record(TraceEvent{Kind: TraceEventCommittedEntities, EntityIDs: ids})
}

func recordVisitedURLs(t Tracer, urls ...string) {
	if t == nil || len(urls) == 0 {
		return
	}
	t.Record(TraceEvent{Kind: TraceEventVisitedURLs, URLs: urls})
}

// ToolCallRecord is one dispatched tool call as seen in a trace.
type ToolCallRecord struct {
	Round      int    `json:"round"`
	Name       string `json:"name"`
	Arguments  string `json:"arguments"`
	DurationMs int64  `json:"durationMs"`
	Error      string `json:"error,omitempty"`
}

// StateRecord is one state transition of a run.
type StateRecord struct {
	Round int    `json:"round"`
	State string `json:"state"`
}

// Trace collects what a single agent run looked at and changed.
//
// Trace is safe for concurrent use.
type Trace struct {
	mu sync.Mutex

	toolCalls         []ToolCallRecord
	states            []StateRecord
	queriedEntityIDs  map[string]struct{}
	committedEntities map[string]struct{}
	visitedURLs       map[string]struct{}
}

type TraceSnapshot struct {
	ToolCalls          []ToolCallRecord `json:"toolCalls"`
	States             []StateRecord    `json:"states"`
	QueriedEntityIDs   []string         `json:"queriedEntityIds"`
	CommittedEntityIDs []string         `json:"committedEntityIds"`
	VisitedURLs        []string         `json:"visitedUrls"`
}

func NewTrace() *Trace {
	return &Trace{
		queriedEntityIDs:  make(map[string]struct{}),
		committedEntities: make(map[string]struct{}),
		visitedURLs:       make(map[string]struct{}),
	}
}

func (t *Trace) Record(event TraceEvent) {
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch event.Kind {
	case TraceEventToolCall:
		t.toolCalls = append(t.toolCalls, ToolCallRecord{
			Round:      event.Round,
			Name:       event.ToolName,
			Arguments:  event.ToolArguments,
			DurationMs: event.DurationMs,
			Error:      event.Error,
		})
	case TraceEventStateChange:
		t.states = append(t.states, StateRecord{Round: event.Round, State: event.State.String()})
	case TraceEventQueriedEntityIDs:
		addAll(t.queriedEntityIDs, event.EntityIDs)
	case TraceEventCommittedEntities:
		addAll(t.committedEntities, event.EntityIDs)
	case TraceEventVisitedURLs:
		addAll(t.visitedURLs, event.URLs)
	}
}

func addAll(set map[string]struct{}, values []string) {
	for _, v := range values {
		if v == "" {
			continue
		}
		set[v] = struct{}{}
	}
}

func (t *Trace) Snapshot() TraceSnapshot {
	if t == nil {
		return TraceSnapshot{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	return TraceSnapshot{
		ToolCalls:          slices.Clone(t.toolCalls),
		States:             slices.Clone(t.states),
		QueriedEntityIDs:   sortedKeys(t.queriedEntityIDs),
		CommittedEntityIDs: sortedKeys(t.committedEntities),
		VisitedURLs:        sortedKeys(t.visitedURLs),
	}
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
