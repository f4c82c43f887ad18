package bloop

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

type SpanType string

const (
	SpanGeneration SpanType = "generation"
	SpanTool       SpanType = "tool"
	SpanRetrieval  SpanType = "retrieval"
	SpanCustom     SpanType = "custom"
)

type SpanStatus string

const (
	SpanOK    SpanStatus = "ok"
	SpanError SpanStatus = "error"
)

type TraceStatus string

const (
	TraceRunning   TraceStatus = "running"
	TraceCompleted TraceStatus = "completed"
	TraceError     TraceStatus = "error"
)

// now is swapped in tests.
var now = time.Now

// Span is one timed unit of work inside a trace, such as a single model
// call. ParentSpanID is a plain reference used by the backend to rebuild the
// call tree; it is never resolved here.
type Span struct {
	ID                 string         `json:"id"`
	ParentSpanID       string         `json:"parent_span_id,omitempty"`
	SpanType           SpanType       `json:"span_type"`
	Name               string         `json:"name"`
	Model              string         `json:"model,omitempty"`
	Provider           string         `json:"provider,omitempty"`
	StartedAt          int64          `json:"started_at"`
	InputTokens        *int64         `json:"input_tokens,omitempty"`
	OutputTokens       *int64         `json:"output_tokens,omitempty"`
	Cost               *float64       `json:"cost,omitempty"`
	LatencyMS          *int64         `json:"latency_ms,omitempty"`
	TimeToFirstTokenMS *int64         `json:"time_to_first_token_ms,omitempty"`
	Status             SpanStatus     `json:"status,omitempty"`
	ErrorMessage       string         `json:"error_message,omitempty"`
	Input              string         `json:"input,omitempty"`
	Output             string         `json:"output,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`

	start time.Time
}

func NewSpan(spanType SpanType, name string) *Span {
	start := now()
	return &Span{
		ID:        uuid.NewString(),
		SpanType:  spanType,
		Name:      name,
		StartedAt: start.UnixMilli(),
		start:     start,
	}
}

func (s *Span) SetModel(model string) *Span {
	s.Model = model
	return s
}

func (s *Span) SetProvider(provider string) *Span {
	s.Provider = provider
	return s
}

func (s *Span) SetInput(input string) *Span {
	s.Input = input
	return s
}

func (s *Span) SetParent(parentSpanID string) *Span {
	s.ParentSpanID = parentSpanID
	return s
}

func (s *Span) SetMetadata(metadata map[string]any) *Span {
	s.Metadata = metadata
	return s
}

func (s *Span) SetTimeToFirstToken(d time.Duration) *Span {
	ms := d.Milliseconds()
	s.TimeToFirstTokenMS = &ms
	return s
}

func (s *Span) SetUsage(inputTokens, outputTokens int64, cost float64) {
	s.InputTokens = &inputTokens
	s.OutputTokens = &outputTokens
	s.Cost = &cost
}

func (s *Span) SetOutput(output string) {
	s.Output = output
}

// SetError marks the span failed without ending it.
func (s *Span) SetError(message string) {
	s.Status = SpanError
	s.ErrorMessage = message
}

// End stamps the latency and final status. Calling End again overwrites
// both.
func (s *Span) End(status SpanStatus) {
	latency := now().Sub(s.start).Milliseconds()
	if latency < 0 {
		latency = 0
	}
	s.LatencyMS = &latency
	s.Status = status
}

// Ended reports whether End has been called.
func (s *Span) Ended() bool {
	return s.LatencyMS != nil
}

// Trace is a named, timed collection of spans for one end-to-end operation.
// A Trace is not safe for concurrent mutation. Client.SendTrace copies it, so
// the caller keeps ownership afterwards.
type Trace struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	SessionID     string         `json:"session_id,omitempty"`
	UserID        string         `json:"user_id,omitempty"`
	Status        TraceStatus    `json:"status"`
	Input         string         `json:"input,omitempty"`
	Output        string         `json:"output,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	PromptName    string         `json:"prompt_name,omitempty"`
	PromptVersion string         `json:"prompt_version,omitempty"`
	StartedAt     int64          `json:"started_at"`
	EndedAt       *int64         `json:"ended_at,omitempty"`
	Spans         []*Span        `json:"spans"`
}

func NewTrace(name string) *Trace {
	return &Trace{
		ID:        uuid.NewString(),
		Name:      name,
		Status:    TraceRunning,
		StartedAt: now().UnixMilli(),
		Spans:     make([]*Span, 0),
	}
}

func (t *Trace) SetSessionID(id string) *Trace {
	t.SessionID = id
	return t
}

func (t *Trace) SetUserID(id string) *Trace {
	t.UserID = id
	return t
}

func (t *Trace) SetInput(input string) *Trace {
	t.Input = input
	return t
}

func (t *Trace) SetPromptName(name string) *Trace {
	t.PromptName = name
	return t
}

func (t *Trace) SetPromptVersion(version string) *Trace {
	t.PromptVersion = version
	return t
}

func (t *Trace) SetMetadata(metadata map[string]any) *Trace {
	t.Metadata = metadata
	return t
}

func (t *Trace) SetOutput(output string) *Trace {
	t.Output = output
	return t
}

// StartSpan appends a new span and returns it. The returned pointer is the
// span held by the trace, so later configuration lands in the trace.
func (t *Trace) StartSpan(spanType SpanType, name string) *Span {
	span := NewSpan(spanType, name)
	t.Spans = append(t.Spans, span)
	return span
}

// End moves the trace out of running. A second End overwrites the first.
func (t *Trace) End(status TraceStatus) {
	endedAt := now().UnixMilli()
	t.EndedAt = &endedAt
	t.Status = status
}

// snapshot copies the trace, its spans and their top-level metadata.
// Pointer fields are only ever replaced by the setters, never written
// through, so sharing them is safe.
func (t *Trace) snapshot() *Trace {
	out := *t
	out.Metadata = maps.Clone(t.Metadata)
	out.Spans = make([]*Span, len(t.Spans))
	for i, span := range t.Spans {
		if span == nil {
			continue
		}
		cp := *span
		cp.Metadata = maps.Clone(span.Metadata)
		out.Spans[i] = &cp
	}
	return &out
}
