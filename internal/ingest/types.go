package ingest

import (
	"encoding/json"
	"time"

	"github.com/kon-rad/bloop-go"
)

const (
	QueueCapacity = 512
	MaxBatchSize  = 50
	FlushWindow   = 500 * time.Millisecond
)

type EventKind string

const (
	EventKindError EventKind = "error"
	EventKindTrace EventKind = "trace"
)

// ErrorPayload is one element of an error batch as it arrives on the wire.
type ErrorPayload struct {
	Timestamp        int64           `json:"timestamp"`
	Source           string          `json:"source"`
	Environment      string          `json:"environment"`
	Release          string          `json:"release"`
	ErrorType        string          `json:"error_type"`
	Message          string          `json:"message"`
	RouteOrProcedure string          `json:"route_or_procedure"`
	Screen           string          `json:"screen"`
	Stack            string          `json:"stack"`
	HTTPStatus       *int64          `json:"http_status"`
	RequestID        string          `json:"request_id"`
	UserIDHash       string          `json:"user_id_hash"`
	Metadata         json.RawMessage `json:"metadata"`
}

type Event struct {
	Kind       EventKind
	ProjectKey string
	ReceivedAt int64
	Error      *ErrorPayload
	Trace      *bloop.Trace
}

func TryEnqueue(ch chan Event, event Event) bool {
	select {
	case ch <- event:
		return true
	default:
		return false
	}
}
