package ingest

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/kon-rad/bloop-go"
	"github.com/kon-rad/bloop-go/internal/db"
)

func openDB(t *testing.T) *db.Manager {
	t.Helper()
	dbm, err := db.Open(filepath.Join(t.TempDir(), "bloop.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = dbm.Close() })
	return dbm
}

func TestTryEnqueueSaturation(t *testing.T) {
	t.Parallel()

	ch := make(chan Event, 1)
	ev := Event{Kind: EventKindError, Error: &ErrorPayload{ErrorType: "E", Message: "m"}}
	if ok := TryEnqueue(ch, ev); !ok {
		t.Fatalf("expected first enqueue to succeed")
	}
	if ok := TryEnqueue(ch, ev); ok {
		t.Fatalf("expected second enqueue to fail when buffer is full")
	}
}

func TestTruncateBytesKeepsRunesWhole(t *testing.T) {
	t.Parallel()

	if got := TruncateBytes("0123456789", 4); got != "0123" {
		t.Fatalf("ascii truncate = %q", got)
	}
	// "é" is two bytes; cutting at 2 would split it.
	if got := TruncateBytes("aéb", 2); got != "a" {
		t.Fatalf("rune truncate = %q, want %q", got, "a")
	}
	if got := TruncateBytes("short", 0); got != "short" {
		t.Fatalf("zero limit = %q, want input unchanged", got)
	}
	if got := TruncateBytes("short", -1); got != "short" {
		t.Fatalf("negative limit = %q, want input unchanged", got)
	}
}

func TestWorkerZeroTextLimitKeepsMessages(t *testing.T) {
	t.Parallel()

	dbm := openDB(t)
	worker := NewWorker(slog.New(slog.NewJSONHandler(io.Discard, nil)), dbm, 0)
	ch := make(chan Event, 1)
	ch <- Event{
		Kind:       EventKindError,
		ProjectKey: "pk",
		Error: &ErrorPayload{
			Timestamp: time.Now().UnixMilli(),
			ErrorType: "TypeError",
			Message:   "boom",
			Stack:     "at main()",
		},
	}
	close(ch)
	if err := worker.Run(ch); err != nil {
		t.Fatalf("worker returned error: %v", err)
	}

	row, err := dbm.LatestError(context.Background())
	if err != nil {
		t.Fatalf("latest error: %v", err)
	}
	if row.Message != "boom" || row.Stack != "at main()" {
		t.Fatalf("text erased with zero limit: %+v", row)
	}
}

func TestWorkerFlushesOnWindow(t *testing.T) {
	t.Parallel()

	dbm := openDB(t)
	worker := NewWorker(slog.New(slog.NewJSONHandler(io.Discard, nil)), dbm, 1024)
	ch := make(chan Event, QueueCapacity)
	done := make(chan error, 1)
	go func() {
		done <- worker.Run(ch)
	}()

	ch <- Event{
		Kind:       EventKindError,
		ProjectKey: "pk",
		Error: &ErrorPayload{
			Timestamp:   time.Now().UnixMilli(),
			Source:      "go",
			Environment: "production",
			ErrorType:   "TypeError",
			Message:     "boom",
			Metadata:    json.RawMessage(`{"k":"v"}`),
		},
	}

	time.Sleep(650 * time.Millisecond)

	count, err := dbm.ErrorCount(context.Background())
	if err != nil {
		t.Fatalf("error count query failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("error count = %d, want 1", count)
	}

	close(ch)
	if err := <-done; err != nil {
		t.Fatalf("worker returned error: %v", err)
	}

	row, err := dbm.LatestError(context.Background())
	if err != nil {
		t.Fatalf("latest error: %v", err)
	}
	if row.Metadata != `{"k":"v"}` {
		t.Fatalf("metadata = %q", row.Metadata)
	}
}

func TestWorkerStoresTraceSpansAndTruncates(t *testing.T) {
	t.Parallel()

	dbm := openDB(t)
	worker := NewWorker(slog.New(slog.NewJSONHandler(io.Discard, nil)), dbm, 8)
	ch := make(chan Event, QueueCapacity)
	done := make(chan error, 1)
	go func() {
		done <- worker.Run(ch)
	}()

	trace := bloop.NewTrace("agent").SetInput("0123456789abcdef")
	search := trace.StartSpan(bloop.SpanRetrieval, "search")
	search.End(bloop.SpanOK)
	llm := trace.StartSpan(bloop.SpanGeneration, "llm").SetParent(search.ID)
	llm.SetUsage(10, 20, 0.01)
	llm.End(bloop.SpanOK)
	trace.End(bloop.TraceCompleted)

	ch <- Event{Kind: EventKindTrace, ProjectKey: "pk", Trace: trace}
	close(ch)
	if err := <-done; err != nil {
		t.Fatalf("worker returned error: %v", err)
	}

	spans, err := dbm.SpansForTrace(context.Background(), trace.ID)
	if err != nil {
		t.Fatalf("spans: %v", err)
	}
	if len(spans) != 2 || spans[0].Name != "search" || spans[1].Name != "llm" {
		t.Fatalf("unexpected spans: %+v", spans)
	}
	if spans[1].ParentSpanID != search.ID || spans[1].InputTokens != 10 {
		t.Fatalf("unexpected llm span: %+v", spans[1])
	}
}
