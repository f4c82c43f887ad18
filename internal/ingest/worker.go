package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kon-rad/bloop-go"
	"github.com/kon-rad/bloop-go/internal/db"
)

type Store interface {
	InsertBatch(ctx context.Context, errs []db.ErrorInsert, traces []db.TraceInsert) error
}

// Worker drains the ingest channel into the store in batches of
// MaxBatchSize, or whatever arrived within FlushWindow.
type Worker struct {
	logger       *slog.Logger
	store        Store
	maxTextBytes int
}

func NewWorker(logger *slog.Logger, store Store, maxTextBytes int) *Worker {
	return &Worker{
		logger:       logger,
		store:        store,
		maxTextBytes: maxTextBytes,
	}
}

func (w *Worker) Run(events <-chan Event) error {
	ticker := time.NewTicker(FlushWindow)
	defer ticker.Stop()

	buffer := make([]Event, 0, MaxBatchSize)

	flush := func(batch []Event) error {
		if len(batch) == 0 {
			return nil
		}
		errs := make([]db.ErrorInsert, 0, len(batch))
		traces := make([]db.TraceInsert, 0, len(batch))
		for _, ev := range batch {
			receivedAt := ev.ReceivedAt
			if receivedAt == 0 {
				receivedAt = time.Now().UnixMilli()
			}
			switch ev.Kind {
			case EventKindError:
				if ev.Error == nil {
					continue
				}
				errs = append(errs, w.errorInsert(ev.ProjectKey, receivedAt, ev.Error))
			case EventKindTrace:
				if ev.Trace == nil {
					continue
				}
				traces = append(traces, w.traceInsert(ev.ProjectKey, receivedAt, ev.Trace))
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := w.store.InsertBatch(ctx, errs, traces); err != nil {
			return fmt.Errorf("insert batch: %w", err)
		}
		return nil
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return flush(buffer)
			}
			buffer = append(buffer, ev)
			if len(buffer) >= MaxBatchSize {
				if err := flush(buffer); err != nil {
					w.logger.Error("ingest flush failed", "error", err)
					return err
				}
				buffer = buffer[:0]
			}
		case <-ticker.C:
			if len(buffer) == 0 {
				continue
			}
			if err := flush(buffer); err != nil {
				w.logger.Error("ingest timed flush failed", "error", err)
				return err
			}
			buffer = buffer[:0]
		}
	}
}

func (w *Worker) errorInsert(projectKey string, receivedAt int64, p *ErrorPayload) db.ErrorInsert {
	metadata := ""
	if len(p.Metadata) > 0 && string(p.Metadata) != "null" {
		metadata = string(p.Metadata)
	}
	return db.ErrorInsert{
		ProjectKey:       projectKey,
		ReceivedAt:       receivedAt,
		Timestamp:        p.Timestamp,
		Source:           p.Source,
		Environment:      p.Environment,
		Release:          p.Release,
		ErrorType:        p.ErrorType,
		Message:          TruncateBytes(p.Message, w.maxTextBytes),
		RouteOrProcedure: p.RouteOrProcedure,
		Screen:           p.Screen,
		Stack:            TruncateBytes(p.Stack, w.maxTextBytes),
		HTTPStatus:       p.HTTPStatus,
		RequestID:        p.RequestID,
		UserIDHash:       p.UserIDHash,
		Metadata:         metadata,
	}
}

func (w *Worker) traceInsert(projectKey string, receivedAt int64, t *bloop.Trace) db.TraceInsert {
	row := db.TraceInsert{
		TraceID:       t.ID,
		ProjectKey:    projectKey,
		ReceivedAt:    receivedAt,
		Name:          t.Name,
		SessionID:     t.SessionID,
		UserID:        t.UserID,
		Status:        string(t.Status),
		Input:         TruncateBytes(t.Input, w.maxTextBytes),
		Output:        TruncateBytes(t.Output, w.maxTextBytes),
		Metadata:      encodeMetadata(t.Metadata),
		PromptName:    t.PromptName,
		PromptVersion: t.PromptVersion,
		StartedAt:     t.StartedAt,
		EndedAt:       t.EndedAt,
		Spans:         make([]db.SpanInsert, 0, len(t.Spans)),
	}
	for _, s := range t.Spans {
		if s == nil {
			continue
		}
		row.Spans = append(row.Spans, db.SpanInsert{
			SpanID:             s.ID,
			ParentSpanID:       s.ParentSpanID,
			SpanType:           string(s.SpanType),
			Name:               s.Name,
			Model:              s.Model,
			Provider:           s.Provider,
			StartedAt:          s.StartedAt,
			InputTokens:        s.InputTokens,
			OutputTokens:       s.OutputTokens,
			Cost:               s.Cost,
			LatencyMS:          s.LatencyMS,
			TimeToFirstTokenMS: s.TimeToFirstTokenMS,
			Status:             string(s.Status),
			ErrorMessage:       s.ErrorMessage,
			Input:              TruncateBytes(s.Input, w.maxTextBytes),
			Output:             TruncateBytes(s.Output, w.maxTextBytes),
			Metadata:           encodeMetadata(s.Metadata),
		})
	}
	return row
}

func encodeMetadata(m map[string]any) string {
	if len(m) == 0 {
		return ""
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(raw)
}
