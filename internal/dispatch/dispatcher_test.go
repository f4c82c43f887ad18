package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kon-rad/bloop-go/internal/signing"
)

type mockTransport struct {
	statusCode int
	delay      time.Duration
	// gate, when set, holds every request until it is closed.
	gate chan struct{}

	mu       sync.Mutex
	requests []*http.Request
	bodies   [][]byte

	inFlight    int64
	maxInFlight int64
}

func (m *mockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	cur := atomic.AddInt64(&m.inFlight, 1)
	defer atomic.AddInt64(&m.inFlight, -1)
	for {
		prev := atomic.LoadInt64(&m.maxInFlight)
		if cur <= prev || atomic.CompareAndSwapInt64(&m.maxInFlight, prev, cur) {
			break
		}
	}
	if m.gate != nil {
		<-m.gate
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}

	body, _ := io.ReadAll(req.Body)
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.bodies = append(m.bodies, body)
	m.mu.Unlock()

	return &http.Response{
		StatusCode: m.statusCode,
		Body:       io.NopCloser(bytes.NewReader([]byte(`{}`))),
		Header:     make(http.Header),
	}, nil
}

func (m *mockTransport) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func TestSendSignsExactBody(t *testing.T) {
	t.Parallel()

	transport := &mockTransport{statusCode: http.StatusOK}
	d := New(Options{
		Endpoint:   "http://ingest.local",
		ProjectKey: "test-key",
		HTTPClient: &http.Client{Transport: transport, Timeout: 2 * time.Second},
	})

	payload := map[string]any{"events": []map[string]any{{"error_type": "E", "message": "m"}}}
	if err := d.Send(context.Background(), "errors", ErrorsPath, payload, 1); err != nil {
		t.Fatalf("send: %v", err)
	}
	if transport.count() != 1 {
		t.Fatalf("requests = %d, want 1", transport.count())
	}

	req := transport.requests[0]
	body := transport.bodies[0]
	if req.Method != http.MethodPost {
		t.Fatalf("method = %s, want POST", req.Method)
	}
	if req.URL.String() != "http://ingest.local/v1/ingest/batch" {
		t.Fatalf("url = %s", req.URL.String())
	}
	if got := req.Header.Get("Content-Type"); got != "application/json" {
		t.Fatalf("content-type = %q", got)
	}
	if got := req.Header.Get("X-Project-Key"); got != "test-key" {
		t.Fatalf("project key header = %q", got)
	}
	if got := req.Header.Get("X-Signature"); got != signing.Sign("test-key", body) {
		t.Fatalf("signature %q does not match body", got)
	}

	var decoded map[string][]map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(decoded["events"]) != 1 {
		t.Fatalf("events = %d, want 1", len(decoded["events"]))
	}
}

func TestSendReportsNonSuccessStatus(t *testing.T) {
	t.Parallel()

	transport := &mockTransport{statusCode: http.StatusInternalServerError}
	var reported atomic.Int64
	d := New(Options{
		Endpoint:   "http://ingest.local",
		ProjectKey: "k",
		HTTPClient: &http.Client{Transport: transport},
		OnError: func(err error) {
			var dErr *Error
			if errors.As(err, &dErr) && dErr.Items == 3 && dErr.Category == "traces" {
				reported.Add(1)
			}
		},
	})

	err := d.Send(context.Background(), "traces", TracesPath, map[string]any{"traces": []int{1, 2, 3}}, 3)
	if err == nil {
		t.Fatalf("expected error for 500 response")
	}
	if reported.Load() != 1 {
		t.Fatalf("error hook calls = %d, want 1", reported.Load())
	}
}

func TestSendReportsEncodeFailure(t *testing.T) {
	t.Parallel()

	transport := &mockTransport{statusCode: http.StatusOK}
	d := New(Options{
		Endpoint:   "http://ingest.local",
		ProjectKey: "k",
		HTTPClient: &http.Client{Transport: transport},
	})

	err := d.Send(context.Background(), "errors", ErrorsPath, map[string]any{"bad": make(chan int)}, 1)
	if err == nil {
		t.Fatalf("expected encode error")
	}
	if transport.count() != 0 {
		t.Fatalf("requests = %d, want 0 after encode failure", transport.count())
	}
}

func TestGoBoundsInFlightSends(t *testing.T) {
	t.Parallel()

	transport := &mockTransport{statusCode: http.StatusOK, delay: 20 * time.Millisecond}
	d := New(Options{
		Endpoint:    "http://ingest.local",
		ProjectKey:  "k",
		HTTPClient:  &http.Client{Transport: transport},
		MaxInFlight: 2,
	})

	for i := 0; i < 10; i++ {
		d.Go("errors", ErrorsPath, map[string]any{"events": []int{i}}, 1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if transport.count() != 10 {
		t.Fatalf("requests = %d, want 10", transport.count())
	}
	if peak := atomic.LoadInt64(&transport.maxInFlight); peak > 2 {
		t.Fatalf("peak in-flight = %d, want <= 2", peak)
	}
}

func TestGoDropsBatchWhenPendingLimitReached(t *testing.T) {
	t.Parallel()

	transport := &mockTransport{statusCode: http.StatusOK, gate: make(chan struct{})}
	var full atomic.Int64
	d := New(Options{
		Endpoint:    "http://ingest.local",
		ProjectKey:  "k",
		HTTPClient:  &http.Client{Transport: transport},
		MaxInFlight: 1,
		MaxPending:  2,
		OnError: func(err error) {
			var dErr *Error
			if errors.As(err, &dErr) && errors.Is(err, ErrQueueFull) && dErr.Items == 5 {
				full.Add(1)
			}
		},
	})

	d.Go("errors", ErrorsPath, map[string]any{"events": []int{1}}, 1)
	d.Go("errors", ErrorsPath, map[string]any{"events": []int{2}}, 1)
	d.Go("errors", ErrorsPath, map[string]any{"events": []int{3, 4, 5, 6, 7}}, 5)

	if full.Load() != 1 {
		t.Fatalf("queue-full reports = %d, want 1", full.Load())
	}
	if got := d.Pending(); got != 2 {
		t.Fatalf("pending = %d, want 2", got)
	}

	close(transport.gate)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if transport.count() != 2 {
		t.Fatalf("requests = %d, want 2", transport.count())
	}
	if got := d.Pending(); got != 0 {
		t.Fatalf("pending after wait = %d, want 0", got)
	}
}

func TestWaitTimesOutAndCanBeCalledAgain(t *testing.T) {
	t.Parallel()

	transport := &mockTransport{statusCode: http.StatusOK, gate: make(chan struct{})}
	d := New(Options{
		Endpoint:   "http://ingest.local",
		ProjectKey: "k",
		HTTPClient: &http.Client{Transport: transport},
	})
	d.Go("errors", ErrorsPath, map[string]any{"events": []int{1}}, 1)

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := d.Wait(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("wait error = %v, want deadline exceeded", err)
	}

	// New work after a timed-out Wait must not disturb the next Wait.
	d.Go("errors", ErrorsPath, map[string]any{"events": []int{2}}, 1)
	close(transport.gate)

	ctx, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if err := d.Wait(ctx); err != nil {
		t.Fatalf("second wait: %v", err)
	}
	if transport.count() != 2 {
		t.Fatalf("requests = %d, want 2", transport.count())
	}
}

func TestGoAndWaitRunConcurrently(t *testing.T) {
	t.Parallel()

	transport := &mockTransport{statusCode: http.StatusOK}
	d := New(Options{
		Endpoint:   "http://ingest.local",
		ProjectKey: "k",
		HTTPClient: &http.Client{Transport: transport},
		MaxPending: 1 << 16,
	})

	const (
		producers = 8
		perThread = 200
	)
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perThread; i++ {
				d.Go("errors", ErrorsPath, map[string]any{"events": []int{i}}, 1)
			}
		}()
	}

	stop := make(chan struct{})
	waiterDone := make(chan struct{})
	go func() {
		defer close(waiterDone)
		for {
			select {
			case <-stop:
				return
			default:
			}
			ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
			_ = d.Wait(ctx)
			cancel()
		}
	}()

	wg.Wait()
	close(stop)
	<-waiterDone

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Wait(ctx); err != nil {
		t.Fatalf("final wait: %v", err)
	}
	if transport.count() != producers*perThread {
		t.Fatalf("requests = %d, want %d", transport.count(), producers*perThread)
	}
}
