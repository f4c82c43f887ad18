package bloop

// Event is a caller-supplied error report. ErrorType and Message are
// required; every other field is optional and omitted from the wire when
// empty.
type Event struct {
	ErrorType        string         `json:"error_type"`
	Message          string         `json:"message"`
	Source           string         `json:"source,omitempty"`
	RouteOrProcedure string         `json:"route_or_procedure,omitempty"`
	Screen           string         `json:"screen,omitempty"`
	Stack            string         `json:"stack,omitempty"`
	HTTPStatus       int            `json:"http_status,omitempty"`
	RequestID        string         `json:"request_id,omitempty"`
	UserIDHash       string         `json:"user_id_hash,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// ingestEvent is the buffered form of an Event, stamped at capture time.
type ingestEvent struct {
	Timestamp        int64          `json:"timestamp"`
	Source           string         `json:"source"`
	Environment      string         `json:"environment"`
	Release          string         `json:"release"`
	ErrorType        string         `json:"error_type"`
	Message          string         `json:"message"`
	RouteOrProcedure string         `json:"route_or_procedure,omitempty"`
	Screen           string         `json:"screen,omitempty"`
	Stack            string         `json:"stack,omitempty"`
	HTTPStatus       int            `json:"http_status,omitempty"`
	RequestID        string         `json:"request_id,omitempty"`
	UserIDHash       string         `json:"user_id_hash,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

type errorBatch struct {
	Events []ingestEvent `json:"events"`
}

type traceBatch struct {
	Traces []*Trace `json:"traces"`
}
