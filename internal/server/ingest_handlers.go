package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/kon-rad/bloop-go"
	"github.com/kon-rad/bloop-go/internal/ingest"
	"github.com/kon-rad/bloop-go/internal/metrics"
	"github.com/kon-rad/bloop-go/internal/signing"
)

const DefaultMaxBodyBytes = 5 << 20

type IngestEnqueuer interface {
	Enqueue(event ingest.Event) bool
}

type IngestHandlers struct {
	enqueuer     IngestEnqueuer
	projectKeys  []string
	maxBodyBytes int64
	metrics      *metrics.Receiver
}

type errorBatchRequest struct {
	Events []ingest.ErrorPayload `json:"events"`
}

type traceBatchRequest struct {
	Traces []*bloop.Trace `json:"traces"`
}

// NewIngestHandlers builds the batch endpoints. An empty projectKeys list
// accepts any key whose signature verifies.
func NewIngestHandlers(enqueuer IngestEnqueuer, projectKeys []string, maxBodyBytes int64, m *metrics.Receiver) *IngestHandlers {
	if m == nil {
		m = metrics.NewReceiver(nil)
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &IngestHandlers{
		enqueuer:     enqueuer,
		projectKeys:  projectKeys,
		maxBodyBytes: maxBodyBytes,
		metrics:      m,
	}
}

func (h *IngestHandlers) PostErrorBatch(w http.ResponseWriter, r *http.Request) {
	key, body, ok := h.authenticate(w, r, "errors")
	if !ok {
		return
	}
	var req errorBatchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.reject(w, "errors", "invalid json", http.StatusBadRequest)
		return
	}
	for i := range req.Events {
		if req.Events[i].ErrorType == "" || req.Events[i].Message == "" {
			h.reject(w, "errors", "error_type and message are required", http.StatusBadRequest)
			return
		}
	}

	receivedAt := time.Now().UnixMilli()
	for i := range req.Events {
		h.enqueue(ingest.Event{
			Kind:       ingest.EventKindError,
			ProjectKey: key,
			ReceivedAt: receivedAt,
			Error:      &req.Events[i],
		}, "errors")
	}
	h.metrics.Batches.WithLabelValues("errors", metrics.ResultOK).Inc()
	w.WriteHeader(http.StatusAccepted)
}

func (h *IngestHandlers) PostTraceBatch(w http.ResponseWriter, r *http.Request) {
	key, body, ok := h.authenticate(w, r, "traces")
	if !ok {
		return
	}
	var req traceBatchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.reject(w, "traces", "invalid json", http.StatusBadRequest)
		return
	}
	for _, t := range req.Traces {
		if t == nil || t.ID == "" || t.Name == "" {
			h.reject(w, "traces", "trace id and name are required", http.StatusBadRequest)
			return
		}
	}

	receivedAt := time.Now().UnixMilli()
	for _, t := range req.Traces {
		h.enqueue(ingest.Event{
			Kind:       ingest.EventKindTrace,
			ProjectKey: key,
			ReceivedAt: receivedAt,
			Trace:      t,
		}, "traces")
	}
	h.metrics.Batches.WithLabelValues("traces", metrics.ResultOK).Inc()
	w.WriteHeader(http.StatusAccepted)
}

// authenticate reads the body and checks the project key and the signature
// over the raw bytes.
func (h *IngestHandlers) authenticate(w http.ResponseWriter, r *http.Request, category string) (string, []byte, bool) {
	key := r.Header.Get("X-Project-Key")
	if key == "" || (len(h.projectKeys) > 0 && !slices.Contains(h.projectKeys, key)) {
		h.reject(w, category, "unknown project key", http.StatusUnauthorized)
		return "", nil, false
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.reject(w, category, "body too large", http.StatusRequestEntityTooLarge)
			return "", nil, false
		}
		h.reject(w, category, "read body", http.StatusBadRequest)
		return "", nil, false
	}
	if !signing.Verify(key, body, r.Header.Get("X-Signature")) {
		h.reject(w, category, "invalid signature", http.StatusUnauthorized)
		return "", nil, false
	}
	return key, body, true
}

func (h *IngestHandlers) enqueue(ev ingest.Event, category string) {
	if h.enqueuer.Enqueue(ev) {
		h.metrics.Items.WithLabelValues(category).Inc()
		return
	}
	h.metrics.QueueDropped.Inc()
}

func (h *IngestHandlers) reject(w http.ResponseWriter, category, msg string, status int) {
	h.metrics.Batches.WithLabelValues(category, metrics.ResultError).Inc()
	http.Error(w, msg, status)
}
